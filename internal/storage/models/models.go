package models

import "time"

type Property struct {
	ID             int64     `json:"id"`
	OrganizationID string    `json:"organizationId"`
	Name           string    `json:"name"`
	Address        string    `json:"address,omitempty"`
	Bedrooms       int       `json:"bedrooms"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
}

type UtilityBill struct {
	ID             int64      `json:"id"`
	OrganizationID string     `json:"organizationId"`
	PropertyID     int64      `json:"propertyId"`
	UtilityType    string     `json:"utilityType"`
	BillMonth      time.Time  `json:"billMonth"`
	Amount         float64    `json:"amount"`
	Currency       string     `json:"currency"`
	Status         string     `json:"status"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	PaidAt         *time.Time `json:"paidAt,omitempty"`
}

type Task struct {
	ID             int64      `json:"id"`
	OrganizationID string     `json:"organizationId"`
	PropertyID     *int64     `json:"propertyId,omitempty"`
	Title          string     `json:"title"`
	TaskType       string     `json:"taskType"`
	Status         string     `json:"status"`
	Priority       string     `json:"priority"`
	AssignedTo     string     `json:"assignedTo,omitempty"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
}

type Booking struct {
	ID             int64     `json:"id"`
	OrganizationID string    `json:"organizationId"`
	PropertyID     int64     `json:"propertyId"`
	GuestName      string    `json:"guestName"`
	CheckInDate    time.Time `json:"checkInDate"`
	CheckOutDate   time.Time `json:"checkOutDate"`
	Status         string    `json:"status"`
	TotalAmount    float64   `json:"totalAmount"`
}

type FinanceRecord struct {
	ID             int64     `json:"id"`
	OrganizationID string    `json:"organizationId"`
	PropertyID     *int64    `json:"propertyId,omitempty"`
	Type           string    `json:"type"`
	Category       string    `json:"category"`
	Amount         float64   `json:"amount"`
	Description    string    `json:"description,omitempty"`
	Date           time.Time `json:"date"`
}

// QueryRecord is one answered or declined question.
type QueryRecord struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	OrganizationID string    `json:"organizationId"`
	QueryText      string    `json:"question"`
	Fingerprint    string    `json:"fingerprint"`
	Response       string    `json:"answer"`
	Intent         string    `json:"intent"`
	Confidence     float64   `json:"confidence"`
	Cached         bool      `json:"cached"`
	LatencyMS      int64     `json:"latency"`
	CreatedAt      time.Time `json:"createdAt"`
}

type QuerySource struct {
	ID      int64  `json:"id"`
	QueryID string `json:"queryId"`
	Route   string `json:"route"`
	Params  string `json:"params"`
	Records int    `json:"records"`
}
