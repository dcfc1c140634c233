package answer

import (
	"fmt"
	"strings"

	"github.com/hostpilotpro/captain-cortex/internal/cortex"
	"github.com/hostpilotpro/captain-cortex/internal/storage/models"
)

// maxListed caps how many records a template reply spells out.
const maxListed = 5

func renderTemplate(intent cortex.IntentType, data *cortex.GroundedData) string {
	var parts []string
	var failed []string

	for _, fact := range data.Facts {
		if !fact.Success {
			failed = append(failed, fact.Route)
			continue
		}

		switch records := fact.Data.(type) {
		case []models.Property:
			if s := describeProperties(records, data.Entities, intent); s != "" {
				parts = append(parts, s)
			}
		case []models.UtilityBill:
			parts = append(parts, describeBills(records))
		case []models.Task:
			parts = append(parts, describeTasks(records, data.Entities))
		case []models.Booking:
			parts = append(parts, describeBookings(records, data.Entities))
		case []models.FinanceRecord:
			parts = append(parts, describeFinances(records, data.Entities))
		}
	}

	if len(failed) > 0 {
		parts = append(parts, fmt.Sprintf("Some data could not be loaded right now (%s). Please try again shortly.", strings.Join(failed, ", ")))
	}
	if len(parts) == 0 {
		return "I couldn't find any matching records for that question."
	}
	return strings.Join(parts, "\n\n")
}

// describeProperties only speaks about a name lookup when it failed to
// match; a successful lookup is context for the connector that follows.
func describeProperties(properties []models.Property, entities cortex.ExtractedEntities, intent cortex.IntentType) string {
	lookup := intent != cortex.IntentProperty && intent != cortex.IntentGeneral
	if lookup {
		if len(properties) == 0 && entities.PropertyName != nil {
			return fmt.Sprintf("I couldn't find a property matching %q.", *entities.PropertyName)
		}
		return ""
	}

	if len(properties) == 0 {
		if entities.PropertyName != nil {
			return fmt.Sprintf("I couldn't find a property matching %q.", *entities.PropertyName)
		}
		return "There are no properties on record yet."
	}

	names := make([]string, 0, len(properties))
	for _, p := range properties {
		names = append(names, p.Name)
	}
	return fmt.Sprintf("%s on record: %s.", plural(len(properties), "property", "properties"), listed(names))
}

func describeBills(bills []models.UtilityBill) string {
	if len(bills) == 0 {
		return "No utility bills match that question."
	}

	lines := make([]string, 0, len(bills))
	unpaid := 0
	for _, b := range bills {
		if b.Status != "paid" {
			unpaid++
		}
		lines = append(lines, fmt.Sprintf("%s %s: %s (%s)",
			b.UtilityType, b.BillMonth.Format("January 2006"), b.Status, money(b.Amount, b.Currency)))
	}

	summary := fmt.Sprintf("Found %s", plural(len(bills), "utility bill", "utility bills"))
	if unpaid == 0 {
		summary += ", all paid"
	} else {
		summary += fmt.Sprintf(", %d not paid", unpaid)
	}
	return summary + ": " + listed(lines) + "."
}

func describeTasks(tasks []models.Task, entities cortex.ExtractedEntities) string {
	qualifier := ""
	if entities.Status != nil {
		qualifier = " " + *entities.Status
	}
	if entities.TaskType != nil {
		qualifier += " " + *entities.TaskType
	}

	if len(tasks) == 0 {
		return fmt.Sprintf("There are no%s tasks.", qualifier)
	}

	lines := make([]string, 0, len(tasks))
	for _, t := range tasks {
		lines = append(lines, fmt.Sprintf("%s (%s, %s priority)", t.Title, t.Status, t.Priority))
	}
	return fmt.Sprintf("There are %d%s tasks: %s.", len(tasks), qualifier, listed(lines))
}

func describeBookings(bookings []models.Booking, entities cortex.ExtractedEntities) string {
	period := ""
	if entities.DateFrom != nil && entities.DateTo != nil {
		period = fmt.Sprintf(" between %s and %s", *entities.DateFrom, *entities.DateTo)
	}

	if len(bookings) == 0 {
		return fmt.Sprintf("No bookings%s, so it is available.", period)
	}

	lines := make([]string, 0, len(bookings))
	for _, b := range bookings {
		guest := b.GuestName
		if guest == "" {
			guest = "guest"
		}
		lines = append(lines, fmt.Sprintf("%s from %s to %s", guest,
			b.CheckInDate.Format("2006-01-02"), b.CheckOutDate.Format("2006-01-02")))
	}
	return fmt.Sprintf("Booked%s: %s (%s).", period, listed(lines), plural(len(bookings), "booking", "bookings"))
}

func describeFinances(records []models.FinanceRecord, entities cortex.ExtractedEntities) string {
	period := ""
	if entities.Month != nil && entities.Year != nil {
		period = fmt.Sprintf(" for %s/%d", *entities.Month, *entities.Year)
	} else if entities.Year != nil {
		period = fmt.Sprintf(" for %d", *entities.Year)
	}

	if len(records) == 0 {
		return fmt.Sprintf("No finance records%s.", period)
	}

	var income, expense float64
	for _, r := range records {
		switch r.Type {
		case "income":
			income += r.Amount
		case "expense":
			expense += r.Amount
		}
	}

	switch {
	case entities.FinanceType != nil && *entities.FinanceType == "income":
		return fmt.Sprintf("Income%s: %s across %s.", period, money(income, "THB"), plural(len(records), "record", "records"))
	case entities.FinanceType != nil && *entities.FinanceType == "expense":
		return fmt.Sprintf("Expenses%s: %s across %s.", period, money(expense, "THB"), plural(len(records), "record", "records"))
	default:
		return fmt.Sprintf("Finances%s: income %s, expenses %s, net profit %s.", period,
			money(income, "THB"), money(expense, "THB"), money(income-expense, "THB"))
	}
}

func money(amount float64, currency string) string {
	if currency == "" || currency == "THB" {
		return fmt.Sprintf("฿%.2f", amount)
	}
	return fmt.Sprintf("%.2f %s", amount, currency)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return fmt.Sprintf("%d %s", n, many)
}

func listed(items []string) string {
	if len(items) <= maxListed {
		return strings.Join(items, "; ")
	}
	return strings.Join(items[:maxListed], "; ") + fmt.Sprintf("; and %d more", len(items)-maxListed)
}
