package grounding

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hostpilotpro/captain-cortex/internal/cortex"
	"github.com/hostpilotpro/captain-cortex/internal/metrics"
	"github.com/hostpilotpro/captain-cortex/internal/storage/models"
	"github.com/hostpilotpro/captain-cortex/pkg/retry"
)

const (
	RouteProperties   = "/api/properties"
	RouteUtilityBills = "/api/utility-bills"
	RouteTasks        = "/api/tasks"
	RouteBookings     = "/api/bookings"
	RouteFinances     = "/api/finances"
)

const isoDate = "2006-01-02"

type PropertyFilter struct {
	ID   *int64
	Name *string
}

type UtilityBillFilter struct {
	PropertyID *int64
	Type       *string
	Month      *string
	Year       *int
}

type TaskFilter struct {
	PropertyID *int64
	Status     *string
	TaskType   *string
	AssignedTo *string
}

type BookingFilter struct {
	PropertyID *int64
	DateFrom   *string
	DateTo     *string
}

type FinanceFilter struct {
	Type  *string
	Month *string
	Year  *int
}

// connect runs fetch under the connector retry policy and turns its outcome
// into a fact. Failures are reported in the result, never returned.
func connect[T any](ctx context.Context, g *Grounder, route string, params map[string]any, fetch func(ctx context.Context) ([]T, error)) cortex.ConnectorResult {
	start := time.Now()

	data, err := retry.DoWithResult(ctx, g.retry, fetch)
	latency := time.Since(start)

	result := cortex.ConnectorResult{
		Route:   route,
		Params:  params,
		Latency: latency.Milliseconds(),
	}

	if err != nil {
		g.logger.Error("Connector failed",
			zap.String("route", route),
			zap.Any("params", params),
			zap.Error(err),
		)
		metrics.ConnectorDuration.WithLabelValues(route, "error").Observe(latency.Seconds())

		result.Success = false
		result.Error = err.Error()
		return result
	}

	if data == nil {
		data = []T{}
	}
	metrics.ConnectorDuration.WithLabelValues(route, "ok").Observe(latency.Seconds())

	result.Success = true
	result.Data = data
	result.Records = len(data)
	return result
}

func (g *Grounder) FetchProperties(ctx context.Context, organizationID string, f PropertyFilter) cortex.ConnectorResult {
	params := newParams(organizationID)
	params.setString("name", f.Name)
	params.setInt64("id", f.ID)

	return connect(ctx, g, RouteProperties, params, func(ctx context.Context) ([]models.Property, error) {
		if f.ID != nil {
			p, err := g.store.GetProperty(ctx, *f.ID, organizationID)
			if err != nil || p == nil {
				return nil, err
			}
			return []models.Property{*p}, nil
		}

		all, err := g.store.GetAllProperties(ctx, organizationID)
		if err != nil || f.Name == nil {
			return all, err
		}

		name := strings.ToLower(*f.Name)
		filtered := []models.Property{}
		for _, p := range all {
			if strings.Contains(strings.ToLower(p.Name), name) {
				filtered = append(filtered, p)
			}
		}
		return filtered, nil
	})
}

func (g *Grounder) FetchUtilityBills(ctx context.Context, organizationID string, f UtilityBillFilter) cortex.ConnectorResult {
	params := newParams(organizationID)
	params.setInt64("propertyId", f.PropertyID)
	params.setString("type", f.Type)
	params.setString("month", f.Month)
	params.setInt("year", f.Year)

	month := parseMonth(f.Month)

	return connect(ctx, g, RouteUtilityBills, params, func(ctx context.Context) ([]models.UtilityBill, error) {
		all, err := g.store.GetAllUtilityBills(ctx, organizationID)
		if err != nil {
			return nil, err
		}

		filtered := []models.UtilityBill{}
		for _, b := range all {
			if f.PropertyID != nil && b.PropertyID != *f.PropertyID {
				continue
			}
			if f.Type != nil && !strings.EqualFold(b.UtilityType, *f.Type) {
				continue
			}
			if !inPeriod(b.BillMonth, month, f.Year) {
				continue
			}
			filtered = append(filtered, b)
		}
		return filtered, nil
	})
}

func (g *Grounder) FetchTasks(ctx context.Context, organizationID string, f TaskFilter) cortex.ConnectorResult {
	params := newParams(organizationID)
	params.setString("status", f.Status)
	params.setString("taskType", f.TaskType)
	params.setString("assignedTo", f.AssignedTo)
	params.setInt64("propertyId", f.PropertyID)

	return connect(ctx, g, RouteTasks, params, func(ctx context.Context) ([]models.Task, error) {
		all, err := g.store.GetAllTasks(ctx, organizationID)
		if err != nil {
			return nil, err
		}

		filtered := []models.Task{}
		for _, t := range all {
			if f.Status != nil && t.Status != *f.Status {
				continue
			}
			if f.TaskType != nil && !strings.EqualFold(t.TaskType, *f.TaskType) {
				continue
			}
			if f.AssignedTo != nil && t.AssignedTo != *f.AssignedTo {
				continue
			}
			if f.PropertyID != nil && (t.PropertyID == nil || *t.PropertyID != *f.PropertyID) {
				continue
			}
			filtered = append(filtered, t)
		}
		return filtered, nil
	})
}

func (g *Grounder) FetchBookings(ctx context.Context, organizationID string, f BookingFilter) cortex.ConnectorResult {
	params := newParams(organizationID)
	params.setInt64("propertyId", f.PropertyID)
	params.setString("dateFrom", f.DateFrom)
	params.setString("dateTo", f.DateTo)

	from, to, ranged := parseRange(f.DateFrom, f.DateTo)

	return connect(ctx, g, RouteBookings, params, func(ctx context.Context) ([]models.Booking, error) {
		all, err := g.store.GetAllBookings(ctx, organizationID)
		if err != nil {
			return nil, err
		}

		filtered := []models.Booking{}
		for _, b := range all {
			if f.PropertyID != nil && b.PropertyID != *f.PropertyID {
				continue
			}
			// A booking overlaps the range when it starts before the range
			// ends and ends after the range starts.
			if ranged && (b.CheckInDate.After(to) || b.CheckOutDate.Before(from)) {
				continue
			}
			filtered = append(filtered, b)
		}
		return filtered, nil
	})
}

func (g *Grounder) FetchFinances(ctx context.Context, organizationID string, f FinanceFilter) cortex.ConnectorResult {
	params := newParams(organizationID)
	params.setString("type", f.Type)
	params.setString("month", f.Month)
	params.setInt("year", f.Year)

	month := parseMonth(f.Month)

	return connect(ctx, g, RouteFinances, params, func(ctx context.Context) ([]models.FinanceRecord, error) {
		all, err := g.store.GetAllFinances(ctx, organizationID)
		if err != nil {
			return nil, err
		}

		filtered := []models.FinanceRecord{}
		for _, r := range all {
			if f.Type != nil && r.Type != *f.Type {
				continue
			}
			if !inPeriod(r.Date, month, f.Year) {
				continue
			}
			filtered = append(filtered, r)
		}
		return filtered, nil
	})
}

type paramSet map[string]any

func newParams(organizationID string) paramSet {
	return paramSet{"organizationId": organizationID}
}

func (p paramSet) setString(key string, v *string) {
	if v != nil {
		p[key] = *v
	}
}

func (p paramSet) setInt(key string, v *int) {
	if v != nil {
		p[key] = *v
	}
}

func (p paramSet) setInt64(key string, v *int64) {
	if v != nil {
		p[key] = *v
	}
}

// parseMonth returns 0 when month is absent or not 1-12.
func parseMonth(month *string) time.Month {
	if month == nil {
		return 0
	}
	n, err := strconv.Atoi(*month)
	if err != nil || n < 1 || n > 12 {
		return 0
	}
	return time.Month(n)
}

// inPeriod matches t against whichever of month and year are set.
func inPeriod(t time.Time, month time.Month, year *int) bool {
	t = t.UTC()
	if month != 0 && t.Month() != month {
		return false
	}
	if year != nil && t.Year() != *year {
		return false
	}
	return true
}

func parseRange(dateFrom, dateTo *string) (time.Time, time.Time, bool) {
	if dateFrom == nil || dateTo == nil {
		return time.Time{}, time.Time{}, false
	}
	from, err := time.Parse(isoDate, *dateFrom)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse(isoDate, *dateTo)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}
