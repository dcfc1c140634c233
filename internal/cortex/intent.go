package cortex

import (
	"sort"
	"strings"
)

// DefaultConfidenceThreshold is the minimum confidence at which a question is
// answered instead of declined.
const DefaultConfidenceThreshold = 0.15

type IntentDetector struct {
	lexicon   Lexicon
	threshold float64
}

func NewIntentDetector(lexicon Lexicon, threshold float64) *IntentDetector {
	return &IntentDetector{lexicon: lexicon, threshold: threshold}
}

var defaultDetector = NewIntentDetector(DefaultLexicon(), DefaultConfidenceThreshold)

// DetectIntent classifies a question with the built-in lexicon.
func DetectIntent(question string) DetectedIntent {
	return defaultDetector.Detect(question)
}

// IsActionableIntent reports whether intent clears the default threshold.
func IsActionableIntent(intent DetectedIntent) bool {
	return defaultDetector.IsActionable(intent)
}

type intentScore struct {
	intent   IntentType
	score    int
	keywords []string
}

// Detect scores each category by the keywords it finds in the question.
// A keyword is worth one point per word, so phrases outweigh single words.
// Confidence is the winning score divided by the question's word count,
// capped at 1.
func (d *IntentDetector) Detect(question string) DetectedIntent {
	normalized := strings.ToLower(strings.TrimSpace(question))

	var scores []intentScore
	for _, cat := range d.lexicon.Intents {
		s := intentScore{intent: cat.Type}
		for _, keyword := range cat.Keywords {
			if strings.Contains(normalized, strings.ToLower(keyword)) {
				s.keywords = append(s.keywords, keyword)
				s.score += len(strings.Split(keyword, " "))
			}
		}
		if s.score > 0 {
			scores = append(scores, s)
		}
	}

	if len(scores) == 0 {
		return DetectedIntent{
			Type:        IntentUnknown,
			Confidence:  0,
			Keywords:    []string{},
			RawQuestion: question,
		}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})
	top := scores[0]

	totalWords := len(strings.Fields(normalized))
	confidence := float64(top.score) / float64(totalWords)
	if confidence > 1 {
		confidence = 1
	}

	return DetectedIntent{
		Type:        top.intent,
		Confidence:  confidence,
		Keywords:    top.keywords,
		RawQuestion: question,
	}
}

func (d *IntentDetector) IsActionable(intent DetectedIntent) bool {
	return intent.Confidence >= d.threshold && intent.Type != IntentUnknown
}
