package cortex

import (
	"context"
	"time"
)

type IntentType string

const (
	IntentProperty IntentType = "property_query"
	IntentUtility  IntentType = "utility_query"
	IntentTask     IntentType = "task_query"
	IntentBooking  IntentType = "booking_query"
	IntentFinance  IntentType = "finance_query"
	IntentGeneral  IntentType = "general_query"
	IntentUnknown  IntentType = "unknown"
)

func (t IntentType) Valid() bool {
	switch t {
	case IntentProperty, IntentUtility, IntentTask, IntentBooking, IntentFinance, IntentGeneral, IntentUnknown:
		return true
	}
	return false
}

type DetectedIntent struct {
	Type        IntentType `json:"type"`
	Confidence  float64    `json:"confidence"`
	Keywords    []string   `json:"keywords"`
	RawQuestion string     `json:"rawQuestion"`
}

// ExtractedEntities holds the values found in a question. A nil field means
// the question did not mention it.
type ExtractedEntities struct {
	PropertyName *string `json:"propertyName,omitempty"`
	// PropertyID is filled by grounding when a name resolves, never by extraction.
	PropertyID  *int64  `json:"propertyId,omitempty"`
	UtilityType *string `json:"utilityType,omitempty"`
	Month       *string `json:"month,omitempty"`
	Year        *int    `json:"year,omitempty"`
	DateFrom    *string `json:"dateFrom,omitempty"`
	DateTo      *string `json:"dateTo,omitempty"`
	Status      *string `json:"status,omitempty"`
	TaskType    *string `json:"taskType,omitempty"`
	FinanceType *string `json:"financeType,omitempty"`
	Timeframe   *string `json:"timeframe,omitempty"`
}

// Source records a data route that contributed to an answer.
type Source struct {
	Route   string         `json:"route"`
	Params  map[string]any `json:"params,omitempty"`
	Records int            `json:"records"`
}

// ConnectorResult is one grounding fetch. Failed fetches are kept so the
// answer can say what could not be checked.
type ConnectorResult struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Records int            `json:"records"`
	Error   string         `json:"error,omitempty"`
	Route   string         `json:"route"`
	Params  map[string]any `json:"params"`
	Latency int64          `json:"latency"`
}

type GroundedData struct {
	Intent         DetectedIntent    `json:"intent"`
	Entities       ExtractedEntities `json:"entities"`
	OrganizationID string            `json:"organizationId"`
	Facts          []ConnectorResult `json:"facts"`
}

type AnswerResult struct {
	Answer     string     `json:"answer"`
	Sources    []Source   `json:"sources"`
	Latency    int64      `json:"latency"`
	Cached     bool       `json:"cached"`
	Intent     IntentType `json:"intent"`
	Confidence float64    `json:"confidence"`
}

type Request struct {
	Question       string `json:"question"`
	OrganizationID string `json:"organizationId"`
	UserID         string `json:"userId,omitempty"`
}

type Response struct {
	AnswerResult
	Question       string `json:"question"`
	OrganizationID string `json:"organizationId"`
}

// Grounder fetches the facts needed to answer a question for one tenant.
type Grounder interface {
	GroundQuestion(ctx context.Context, intent DetectedIntent, entities ExtractedEntities, organizationID string) (*GroundedData, error)
}

// AnswerGenerator turns grounded facts into prose.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, intent DetectedIntent, data *GroundedData) (*AnswerResult, error)
}

func elapsedMillis(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
