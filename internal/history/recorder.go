// Package history persists the questions asked through the API.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hostpilotpro/captain-cortex/internal/cortex"
	"github.com/hostpilotpro/captain-cortex/internal/storage/models"
	"github.com/hostpilotpro/captain-cortex/pkg/utils"
)

const (
	DefaultLimit = 20
	MaxLimit     = 200
)

type Store interface {
	// InsertQueryWithSources stores the record and its sources atomically.
	InsertQueryWithSources(ctx context.Context, record *models.QueryRecord, sources []models.QuerySource) error
	GetQueryHistory(ctx context.Context, userID string, limit int) ([]models.QueryRecord, error)
}

type Recorder struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, now: time.Now, logger: logger}
}

// Record stores one response and its sources and returns the record id. A
// failed write leaves nothing behind and returns an empty id.
func (r *Recorder) Record(ctx context.Context, req cortex.Request, resp *cortex.Response) (string, error) {
	id := uuid.New().String()

	record := &models.QueryRecord{
		ID:             id,
		UserID:         req.UserID,
		OrganizationID: req.OrganizationID,
		QueryText:      req.Question,
		Fingerprint:    utils.QuestionFingerprint(req.Question, req.OrganizationID),
		Response:       resp.Answer,
		Intent:         string(resp.Intent),
		Confidence:     resp.Confidence,
		Cached:         resp.Cached,
		LatencyMS:      resp.Latency,
		CreatedAt:      r.now(),
	}

	sources := make([]models.QuerySource, 0, len(resp.Sources))
	for _, s := range resp.Sources {
		sources = append(sources, models.QuerySource{
			QueryID: id,
			Route:   s.Route,
			Params:  encodeParams(s.Params),
			Records: s.Records,
		})
	}

	if err := r.store.InsertQueryWithSources(ctx, record, sources); err != nil {
		return "", fmt.Errorf("failed to record question: %w", err)
	}

	r.logger.Debug("Question recorded", zap.String("query_id", id), zap.Int("sources", len(resp.Sources)))
	return id, nil
}

// List returns the newest records of a user. limit is clamped to
// [1, MaxLimit], with DefaultLimit for non-positive values.
func (r *Recorder) List(ctx context.Context, userID string, limit int) ([]models.QueryRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return r.store.GetQueryHistory(ctx, userID, limit)
}

func encodeParams(params map[string]any) string {
	if len(params) == 0 {
		return "{}"
	}
	data, err := json.Marshal(params)
	if err != nil {
		return "{}"
	}
	return string(data)
}
