// Package evaluation measures how well the intent detector classifies a
// labeled set of questions.
package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hostpilotpro/captain-cortex/internal/cortex"
	"github.com/hostpilotpro/captain-cortex/pkg/logger"
)

type Classifier interface {
	Detect(question string) cortex.DetectedIntent
	IsActionable(intent cortex.DetectedIntent) bool
}

type EvaluationDataset struct {
	Items []DatasetItem `yaml:"items" json:"items"`
}

type DatasetItem struct {
	Question string            `yaml:"question" json:"question"`
	Intent   cortex.IntentType `yaml:"intent" json:"intent"`
	// Actionable, when set, also checks the decline decision.
	Actionable *bool  `yaml:"actionable,omitempty" json:"actionable,omitempty"`
	Category   string `yaml:"category,omitempty" json:"category,omitempty"`
}

type ItemResult struct {
	Question   string            `json:"question"`
	Expected   cortex.IntentType `json:"expected"`
	Detected   cortex.IntentType `json:"detected"`
	Confidence float64           `json:"confidence"`
	Actionable bool              `json:"actionable"`
	Correct    bool              `json:"correct"`
}

type IntentStats struct {
	Support        int     `json:"support"`
	TruePositives  int     `json:"truePositives"`
	FalsePositives int     `json:"falsePositives"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
}

type EvaluationReport struct {
	TotalQuestions     int                                `json:"totalQuestions"`
	CorrectCount       int                                `json:"correctCount"`
	Accuracy           float64                            `json:"accuracy"`
	ActionableCount    int                                `json:"actionableCount"`
	DeclinedCount      int                                `json:"declinedCount"`
	ActionableMismatch int                                `json:"actionableMismatch"`
	AvgConfidence      float64                            `json:"avgConfidence"`
	PerIntent          map[cortex.IntentType]*IntentStats `json:"perIntent"`
	Misclassified      []ItemResult                       `json:"misclassified"`
}

// LoadDataset reads a dataset from a .json file or, for any other
// extension, from YAML.
func LoadDataset(path string) (*EvaluationDataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	var dataset EvaluationDataset
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &dataset)
	} else {
		err = yaml.Unmarshal(data, &dataset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse dataset %s: %w", path, err)
	}

	if err := dataset.Validate(); err != nil {
		return nil, err
	}
	return &dataset, nil
}

func (d *EvaluationDataset) Validate() error {
	if len(d.Items) == 0 {
		return errors.New("dataset has no items")
	}
	for i, item := range d.Items {
		if strings.TrimSpace(item.Question) == "" {
			return fmt.Errorf("item %d: question is empty", i)
		}
		if !item.Intent.Valid() {
			return fmt.Errorf("item %d: unknown intent %q", i, item.Intent)
		}
	}
	return nil
}

type Evaluator struct {
	classifier Classifier
}

func NewEvaluator(classifier Classifier) *Evaluator {
	return &Evaluator{classifier: classifier}
}

func (e *Evaluator) EvaluateItem(item DatasetItem) ItemResult {
	detected := e.classifier.Detect(item.Question)
	return ItemResult{
		Question:   item.Question,
		Expected:   item.Intent,
		Detected:   detected.Type,
		Confidence: detected.Confidence,
		Actionable: e.classifier.IsActionable(detected),
		Correct:    detected.Type == item.Intent,
	}
}

func (e *Evaluator) RunDatasetEvaluation(ctx context.Context, dataset *EvaluationDataset) (*EvaluationReport, error) {
	logger.Info("Running dataset evaluation", zap.Int("items", len(dataset.Items)))

	report := &EvaluationReport{
		TotalQuestions: len(dataset.Items),
		PerIntent:      make(map[cortex.IntentType]*IntentStats),
		Misclassified:  []ItemResult{},
	}
	stats := func(t cortex.IntentType) *IntentStats {
		s, ok := report.PerIntent[t]
		if !ok {
			s = &IntentStats{}
			report.PerIntent[t] = s
		}
		return s
	}

	var totalConfidence float64
	for _, item := range dataset.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result := e.EvaluateItem(item)
		totalConfidence += result.Confidence
		stats(item.Intent).Support++

		if result.Correct {
			report.CorrectCount++
			stats(item.Intent).TruePositives++
		} else {
			stats(result.Detected).FalsePositives++
			report.Misclassified = append(report.Misclassified, result)
			logger.Debug("Question misclassified",
				zap.String("question", item.Question),
				zap.String("expected", string(item.Intent)),
				zap.String("detected", string(result.Detected)),
			)
		}

		if result.Actionable {
			report.ActionableCount++
		} else {
			report.DeclinedCount++
		}
		if item.Actionable != nil && *item.Actionable != result.Actionable {
			report.ActionableMismatch++
		}
	}

	if report.TotalQuestions > 0 {
		report.Accuracy = float64(report.CorrectCount) / float64(report.TotalQuestions)
		report.AvgConfidence = totalConfidence / float64(report.TotalQuestions)
	}
	for _, s := range report.PerIntent {
		if predicted := s.TruePositives + s.FalsePositives; predicted > 0 {
			s.Precision = float64(s.TruePositives) / float64(predicted)
		}
		if s.Support > 0 {
			s.Recall = float64(s.TruePositives) / float64(s.Support)
		}
	}

	logger.Info("Dataset evaluation completed",
		zap.Int("total", report.TotalQuestions),
		zap.Int("correct", report.CorrectCount),
		zap.Float64("accuracy", report.Accuracy),
		zap.Int("declined", report.DeclinedCount),
	)

	return report, nil
}

// Summary renders the report as a plain text table.
func (r *EvaluationReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Questions: %d  Correct: %d  Accuracy: %.1f%%\n",
		r.TotalQuestions, r.CorrectCount, r.Accuracy*100)
	fmt.Fprintf(&b, "Answered: %d  Declined: %d  Decline mismatches: %d  Avg confidence: %.2f\n",
		r.ActionableCount, r.DeclinedCount, r.ActionableMismatch, r.AvgConfidence)

	intents := make([]string, 0, len(r.PerIntent))
	for t := range r.PerIntent {
		intents = append(intents, string(t))
	}
	sort.Strings(intents)

	fmt.Fprintf(&b, "%-16s %7s %9s %6s\n", "intent", "support", "precision", "recall")
	for _, t := range intents {
		s := r.PerIntent[cortex.IntentType(t)]
		fmt.Fprintf(&b, "%-16s %7d %9.2f %6.2f\n", t, s.Support, s.Precision, s.Recall)
	}
	return b.String()
}
