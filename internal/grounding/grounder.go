// Package grounding fetches the tenant facts a question is answered from.
//
// Each fact is the outcome of one read-only connector over the domain store.
// Connectors retry with exponential backoff under a per-attempt timeout, and a
// connector that still fails is reported as an unsuccessful fact rather than
// an error.
package grounding

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hostpilotpro/captain-cortex/internal/cortex"
	"github.com/hostpilotpro/captain-cortex/internal/storage/models"
	"github.com/hostpilotpro/captain-cortex/pkg/retry"
)

const (
	DefaultTimeout    = 3 * time.Second
	DefaultMaxRetries = 2
)

// Store is the read side of the domain database, scoped by organization.
type Store interface {
	GetAllProperties(ctx context.Context, organizationID string) ([]models.Property, error)
	GetProperty(ctx context.Context, id int64, organizationID string) (*models.Property, error)
	GetAllUtilityBills(ctx context.Context, organizationID string) ([]models.UtilityBill, error)
	GetAllTasks(ctx context.Context, organizationID string) ([]models.Task, error)
	GetAllBookings(ctx context.Context, organizationID string) ([]models.Booking, error)
	GetAllFinances(ctx context.Context, organizationID string) ([]models.FinanceRecord, error)
}

type Config struct {
	Timeout      time.Duration
	MaxRetries   int
	InitialDelay time.Duration
	Logger       *zap.Logger
}

type Grounder struct {
	store  Store
	retry  retry.Config
	logger *zap.Logger
}

func New(store Store, cfg Config) *Grounder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Grounder{
		store: store,
		retry: retry.Config{
			MaxAttempts:    cfg.MaxRetries + 1,
			InitialDelay:   cfg.InitialDelay,
			MaxDelay:       2 * time.Second,
			Multiplier:     2,
			AttemptTimeout: cfg.Timeout,
			Logger:         cfg.Logger,
		},
		logger: cfg.Logger,
	}
}

// GroundQuestion collects the facts for intent. It only fails when ctx ends
// before grounding completes.
func (g *Grounder) GroundQuestion(ctx context.Context, intent cortex.DetectedIntent, entities cortex.ExtractedEntities, organizationID string) (*cortex.GroundedData, error) {
	data := &cortex.GroundedData{
		Intent:         intent,
		Entities:       entities,
		OrganizationID: organizationID,
		Facts:          []cortex.ConnectorResult{},
	}

	switch intent.Type {
	case cortex.IntentUtility:
		propertyID, ok := g.resolveProperty(ctx, data)
		if ok {
			data.Facts = append(data.Facts, g.FetchUtilityBills(ctx, organizationID, UtilityBillFilter{
				PropertyID: propertyID,
				Type:       entities.UtilityType,
				Month:      entities.Month,
				Year:       entities.Year,
			}))
		}

	case cortex.IntentTask:
		propertyID, ok := g.resolveProperty(ctx, data)
		if ok {
			data.Facts = append(data.Facts, g.FetchTasks(ctx, organizationID, TaskFilter{
				PropertyID: propertyID,
				Status:     entities.Status,
				TaskType:   entities.TaskType,
			}))
		}

	case cortex.IntentBooking:
		propertyID, ok := g.resolveProperty(ctx, data)
		if ok {
			data.Facts = append(data.Facts, g.FetchBookings(ctx, organizationID, BookingFilter{
				PropertyID: propertyID,
				DateFrom:   entities.DateFrom,
				DateTo:     entities.DateTo,
			}))
		}

	case cortex.IntentFinance:
		data.Facts = append(data.Facts, g.FetchFinances(ctx, organizationID, FinanceFilter{
			Type:  entities.FinanceType,
			Month: entities.Month,
			Year:  entities.Year,
		}))

	default:
		data.Facts = append(data.Facts, g.FetchProperties(ctx, organizationID, PropertyFilter{
			ID:   entities.PropertyID,
			Name: entities.PropertyName,
		}))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.logger.Debug("Question grounded",
		zap.String("intent", string(intent.Type)),
		zap.String("organization_id", organizationID),
		zap.Int("facts", len(data.Facts)),
	)
	return data, nil
}

// resolveProperty narrows dependent connectors to the named property. The
// lookup is recorded as a fact. ok is false when a name was given but no
// property in the tenant matches it, so no dependent connector should run.
func (g *Grounder) resolveProperty(ctx context.Context, data *cortex.GroundedData) (*int64, bool) {
	entities := data.Entities
	if entities.PropertyID != nil {
		return entities.PropertyID, true
	}
	if entities.PropertyName == nil {
		return nil, true
	}

	fact := g.FetchProperties(ctx, data.OrganizationID, PropertyFilter{Name: entities.PropertyName})
	data.Facts = append(data.Facts, fact)

	if !fact.Success {
		// Lookup failed: query the whole tenant.
		return nil, true
	}

	properties, _ := fact.Data.([]models.Property)
	if len(properties) == 0 {
		return nil, false
	}
	id := properties[0].ID
	return &id, true
}
