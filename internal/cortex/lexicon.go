package cortex

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lexicon is the word data behind intent detection and entity extraction.
// Category order is significant: it breaks score ties.
type Lexicon struct {
	Intents        []IntentKeywords `yaml:"intents"`
	Months         []MonthName      `yaml:"months"`
	UtilityAliases []Alias          `yaml:"utilityAliases"`
}

type IntentKeywords struct {
	Type     IntentType `yaml:"type"`
	Keywords []string   `yaml:"keywords"`
}

type MonthName struct {
	Name   string `yaml:"name"`
	Number string `yaml:"number"`
}

type Alias struct {
	Word  string `yaml:"word"`
	Means string `yaml:"means"`
}

// DefaultLexicon returns the built-in English tables.
func DefaultLexicon() Lexicon {
	return Lexicon{
		Intents: []IntentKeywords{
			{Type: IntentProperty, Keywords: []string{
				"property", "villa", "properties", "building", "estate", "unit",
				"house", "apartment", "residence",
			}},
			{Type: IntentUtility, Keywords: []string{
				"utility", "bill", "electricity", "water", "internet", "gas",
				"electric", "wifi", "broadband", "power", "consumption",
				"meter", "reading", "usage", "paid", "unpaid", "due", "overdue",
				"payslip", "receipt", "proof of payment",
			}},
			{Type: IntentTask, Keywords: []string{
				"task", "maintenance", "repair", "cleaning", "inspection",
				"work order", "job", "pending", "completed", "assigned",
				"scheduled", "overdue", "priority",
			}},
			{Type: IntentBooking, Keywords: []string{
				"booking", "reservation", "guest", "check-in", "checkout",
				"occupied", "vacant", "available", "booked", "reserved",
				"arrival", "departure", "stay",
			}},
			{Type: IntentFinance, Keywords: []string{
				"finance", "revenue", "expense", "income", "profit", "loss",
				"payment", "transaction", "commission", "payout", "invoice",
				"cost", "earning", "budget", "financial",
			}},
		},
		Months: []MonthName{
			{"january", "1"}, {"jan", "1"},
			{"february", "2"}, {"feb", "2"},
			{"march", "3"}, {"mar", "3"},
			{"april", "4"}, {"apr", "4"},
			{"may", "5"},
			{"june", "6"}, {"jun", "6"},
			{"july", "7"}, {"jul", "7"},
			{"august", "8"}, {"aug", "8"},
			{"september", "9"}, {"sep", "9"}, {"sept", "9"},
			{"october", "10"}, {"oct", "10"},
			{"november", "11"}, {"nov", "11"},
			{"december", "12"}, {"dec", "12"},
		},
		UtilityAliases: []Alias{
			{Word: "electric", Means: "electricity"},
			{Word: "power", Means: "electricity"},
			{Word: "wifi", Means: "internet"},
			{Word: "broadband", Means: "internet"},
		},
	}
}

// LoadLexicon reads a YAML lexicon. Sections missing from the file fall back
// to the built-in tables.
func LoadLexicon(path string) (Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Lexicon{}, fmt.Errorf("failed to read lexicon: %w", err)
	}

	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return Lexicon{}, fmt.Errorf("failed to parse lexicon: %w", err)
	}

	def := DefaultLexicon()
	if len(lex.Intents) == 0 {
		lex.Intents = def.Intents
	}
	if len(lex.Months) == 0 {
		lex.Months = def.Months
	}
	if lex.UtilityAliases == nil {
		lex.UtilityAliases = def.UtilityAliases
	}

	if err := lex.Validate(); err != nil {
		return Lexicon{}, err
	}
	return lex, nil
}

func (l Lexicon) Validate() error {
	seen := make(map[IntentType]bool, len(l.Intents))
	for _, cat := range l.Intents {
		if !cat.Type.Valid() || cat.Type == IntentUnknown {
			return fmt.Errorf("lexicon: invalid intent type %q", cat.Type)
		}
		if seen[cat.Type] {
			return fmt.Errorf("lexicon: intent %q declared twice", cat.Type)
		}
		seen[cat.Type] = true
		for _, kw := range cat.Keywords {
			if strings.TrimSpace(kw) == "" {
				return fmt.Errorf("lexicon: empty keyword in %q", cat.Type)
			}
		}
	}

	for _, m := range l.Months {
		n, err := strconv.Atoi(m.Number)
		if err != nil || n < 1 || n > 12 || m.Name == "" {
			return fmt.Errorf("lexicon: invalid month entry %q=%q", m.Name, m.Number)
		}
	}

	for _, a := range l.UtilityAliases {
		if !isUtilityType(a.Means) {
			return fmt.Errorf("lexicon: alias %q maps to unknown utility %q", a.Word, a.Means)
		}
	}
	return nil
}
