package cortex

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	utilityTypes = []string{"electricity", "water", "internet", "gas", "waste", "security"}
	taskTypes    = []string{"maintenance", "cleaning", "inspection"}

	// Checked in order; the first phrase found wins.
	taskStatuses = []struct{ phrase, status string }{
		{"pending", "pending"},
		{"completed", "completed"},
		{"in-progress", "in-progress"},
		{"in progress", "in-progress"},
		{"cancelled", "cancelled"},
		{"canceled", "cancelled"},
	}

	incomeWords  = []string{"revenue", "income", "earning"}
	expenseWords = []string{"expense", "cost", "spending"}

	villaPattern        = regexp.MustCompile(`villa\s+([a-z0-9]+(?:\s+[a-z0-9]+)*)`)
	quotedPattern       = regexp.MustCompile(`"([^"]+)"`)
	numericMonthPattern = regexp.MustCompile(`\b(1[0-2]|[1-9])(th|st|nd|rd)?\b`)
	yearPattern         = regexp.MustCompile(`\b(20\d{2})\b`)

	// Words that end a "villa <name>" capture. Keywords and month names from
	// the lexicon are added per extractor.
	nameStopWords = []string{
		"a", "an", "and", "any", "are", "at", "be", "been", "by", "can", "could",
		"current", "did", "do", "does", "for", "from", "had", "has", "have",
		"how", "in", "is", "it", "its", "last", "me", "month", "my", "need",
		"next", "now", "of", "on", "or", "our", "please", "right", "s", "should",
		"still", "that", "the", "this", "to", "today", "tomorrow", "was", "week",
		"weekend", "were", "what", "when", "which", "who", "will", "with",
		"year", "yesterday", "yet",
	}
)

const isoDate = "2006-01-02"

func isUtilityType(s string) bool {
	for _, u := range utilityTypes {
		if u == s {
			return true
		}
	}
	return false
}

type monthMatcher struct {
	pattern *regexp.Regexp
	number  string
}

type EntityExtractor struct {
	lexicon   Lexicon
	months    []monthMatcher
	stopWords map[string]bool
	now       func() time.Time
}

// NewEntityExtractor builds an extractor. now defaults to time.Now and is
// used for "this month", "this week" and "next weekend".
func NewEntityExtractor(lexicon Lexicon, now func() time.Time) *EntityExtractor {
	if now == nil {
		now = time.Now
	}

	e := &EntityExtractor{
		lexicon:   lexicon,
		stopWords: make(map[string]bool),
		now:       now,
	}

	for _, m := range lexicon.Months {
		e.months = append(e.months, monthMatcher{
			pattern: regexp.MustCompile(`\b` + regexp.QuoteMeta(strings.ToLower(m.Name)) + `\b`),
			number:  m.Number,
		})
		e.stopWords[strings.ToLower(m.Name)] = true
	}
	for _, w := range nameStopWords {
		e.stopWords[w] = true
	}
	for _, cat := range lexicon.Intents {
		for _, kw := range cat.Keywords {
			for _, w := range strings.Fields(strings.ToLower(kw)) {
				if w != "villa" {
					e.stopWords[w] = true
				}
			}
		}
	}
	for _, u := range utilityTypes {
		e.stopWords[u] = true
	}
	for _, a := range lexicon.UtilityAliases {
		e.stopWords[strings.ToLower(a.Word)] = true
	}

	return e
}

var defaultExtractor = NewEntityExtractor(DefaultLexicon(), nil)

// ExtractEntities runs every extraction rule with the built-in lexicon and
// the system clock.
func ExtractEntities(question string) ExtractedEntities {
	return defaultExtractor.Extract(question)
}

// Extract runs each rule independently; the result is their union. Values are
// not cross-checked against each other.
func (e *EntityExtractor) Extract(question string) ExtractedEntities {
	lower := strings.ToLower(question)
	now := e.now()

	var entities ExtractedEntities
	entities.PropertyName = e.propertyName(question, lower)
	entities.UtilityType = e.utilityType(lower)
	entities.Month, entities.Year = e.monthYear(question, lower, now)
	entities.DateFrom, entities.DateTo = dateRange(lower, now)
	entities.Status = taskStatus(lower)
	entities.TaskType = firstContained(lower, taskTypes)
	entities.FinanceType = financeType(lower)

	return entities
}

// propertyName prefers "villa <name>", re-title-cased, then the first
// double-quoted phrase of the original question.
func (e *EntityExtractor) propertyName(question, lower string) *string {
	for _, m := range villaPattern.FindAllStringSubmatch(lower, -1) {
		var words []string
		for _, w := range strings.Fields(m[1]) {
			if e.isStopWord(w) {
				break
			}
			words = append(words, titleCase(w))
		}
		if len(words) > 0 {
			name := "Villa " + strings.Join(words, " ")
			return &name
		}
	}

	if m := quotedPattern.FindStringSubmatch(question); m != nil {
		name := m[1]
		return &name
	}

	return nil
}

func (e *EntityExtractor) isStopWord(w string) bool {
	if e.stopWords[w] {
		return true
	}
	// plural of a keyword: "tasks", "bills", "bookings"
	return len(w) > 3 && strings.HasSuffix(w, "s") && e.stopWords[strings.TrimSuffix(w, "s")]
}

func titleCase(w string) string {
	if w == "" {
		return w
	}
	return strings.ToUpper(w[:1]) + w[1:]
}

func (e *EntityExtractor) utilityType(lower string) *string {
	if u := firstContained(lower, utilityTypes); u != nil {
		return u
	}
	for _, a := range e.lexicon.UtilityAliases {
		if strings.Contains(lower, strings.ToLower(a.Word)) {
			u := a.Means
			return &u
		}
	}
	return nil
}

func (e *EntityExtractor) monthYear(question, lower string, now time.Time) (*string, *int) {
	var month *string
	for _, m := range e.months {
		if m.pattern.MatchString(lower) {
			n := m.number
			month = &n
			break
		}
	}

	if month == nil {
		if m := numericMonthPattern.FindStringSubmatch(lower); m != nil {
			n := m[1]
			month = &n
		}
	}

	var year *int
	if m := yearPattern.FindStringSubmatch(question); m != nil {
		if y, err := strconv.Atoi(m[1]); err == nil {
			year = &y
		}
	}

	// Overrides anything found above.
	if strings.Contains(lower, "this month") || strings.Contains(lower, "current month") {
		n := strconv.Itoa(int(now.Month()))
		y := now.Year()
		return &n, &y
	}

	return month, year
}

// dateRange understands "next weekend" (the coming Saturday and Sunday, a
// week out when today is Saturday) and "this week" (Monday to Sunday, with
// weekdays counted from Sunday=0).
func dateRange(lower string, now time.Time) (*string, *string) {
	y, m, d := now.Date()
	day := func(offset int) *string {
		s := time.Date(y, m, d+offset, 0, 0, 0, 0, now.Location()).Format(isoDate)
		return &s
	}
	weekday := int(now.Weekday())

	if strings.Contains(lower, "next weekend") {
		untilSaturday := (6 - weekday + 7) % 7
		if untilSaturday == 0 {
			untilSaturday = 7
		}
		return day(untilSaturday), day(untilSaturday + 1)
	}

	if strings.Contains(lower, "this week") {
		monday := -weekday + 1
		return day(monday), day(monday + 6)
	}

	return nil, nil
}

func taskStatus(lower string) *string {
	for _, s := range taskStatuses {
		if strings.Contains(lower, s.phrase) {
			status := s.status
			return &status
		}
	}
	return nil
}

func financeType(lower string) *string {
	if firstContained(lower, incomeWords) != nil {
		t := "income"
		return &t
	}
	if firstContained(lower, expenseWords) != nil {
		t := "expense"
		return &t
	}
	return nil
}

func firstContained(lower string, candidates []string) *string {
	for _, c := range candidates {
		if strings.Contains(lower, c) {
			v := c
			return &v
		}
	}
	return nil
}
