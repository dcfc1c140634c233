package evaluation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostpilotpro/captain-cortex/internal/cortex"
)

type fixedClassifier map[string]cortex.DetectedIntent

func (f fixedClassifier) Detect(question string) cortex.DetectedIntent {
	if d, ok := f[question]; ok {
		return d
	}
	return cortex.DetectedIntent{Type: cortex.IntentUnknown}
}

func (f fixedClassifier) IsActionable(intent cortex.DetectedIntent) bool {
	return intent.Type != cortex.IntentUnknown && intent.Confidence >= 0.15
}

func boolPtr(b bool) *bool { return &b }

func TestRunDatasetEvaluation(t *testing.T) {
	classifier := fixedClassifier{
		"bill paid?":     {Type: cortex.IntentUtility, Confidence: 0.5},
		"pending tasks":  {Type: cortex.IntentTask, Confidence: 1},
		"villa booked":   {Type: cortex.IntentProperty, Confidence: 0.5},
		"profit please?": {Type: cortex.IntentFinance, Confidence: 0.1},
	}
	dataset := &EvaluationDataset{Items: []DatasetItem{
		{Question: "bill paid?", Intent: cortex.IntentUtility},
		{Question: "pending tasks", Intent: cortex.IntentTask},
		{Question: "villa booked", Intent: cortex.IntentBooking},
		{Question: "profit please?", Intent: cortex.IntentFinance, Actionable: boolPtr(true)},
	}}

	report, err := NewEvaluator(classifier).RunDatasetEvaluation(context.Background(), dataset)
	require.NoError(t, err)

	assert.Equal(t, 4, report.TotalQuestions)
	assert.Equal(t, 3, report.CorrectCount)
	assert.InDelta(t, 0.75, report.Accuracy, 1e-9)
	assert.Equal(t, 3, report.ActionableCount)
	assert.Equal(t, 1, report.DeclinedCount)
	assert.Equal(t, 1, report.ActionableMismatch)
	assert.InDelta(t, 0.525, report.AvgConfidence, 1e-9)

	require.Len(t, report.Misclassified, 1)
	assert.Equal(t, cortex.IntentProperty, report.Misclassified[0].Detected)

	booking := report.PerIntent[cortex.IntentBooking]
	assert.Equal(t, 1, booking.Support)
	assert.Equal(t, 0.0, booking.Recall)
	property := report.PerIntent[cortex.IntentProperty]
	assert.Equal(t, 0, property.Support)
	assert.Equal(t, 1, property.FalsePositives)
	assert.Equal(t, 0.0, property.Precision)
	assert.Equal(t, 1.0, report.PerIntent[cortex.IntentTask].Precision)

	assert.Contains(t, report.Summary(), "Accuracy: 75.0%")
}

func TestRunDatasetEvaluation_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEvaluator(fixedClassifier{}).RunDatasetEvaluation(ctx, &EvaluationDataset{
		Items: []DatasetItem{{Question: "q", Intent: cortex.IntentTask}},
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadDataset_WithDefaultDetector(t *testing.T) {
	dataset, err := LoadDataset(filepath.Join("testdata", "questions.yaml"))
	require.NoError(t, err)
	require.Len(t, dataset.Items, 5)

	detector := cortex.NewIntentDetector(cortex.DefaultLexicon(), cortex.DefaultConfidenceThreshold)
	report, err := NewEvaluator(detector).RunDatasetEvaluation(context.Background(), dataset)
	require.NoError(t, err)

	// "Is Test Villa booked" ties property and booking; property is listed first.
	assert.Equal(t, 4, report.CorrectCount)
	require.Len(t, report.Misclassified, 1)
	assert.Equal(t, cortex.IntentBooking, report.Misclassified[0].Expected)
	assert.Equal(t, 0, report.ActionableMismatch)
}

func TestLoadDataset_JSONAndValidation(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "set.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"items":[{"question":"pending tasks","intent":"task_query"}]}`), 0o644))
	dataset, err := LoadDataset(good)
	require.NoError(t, err)
	assert.Equal(t, cortex.IntentTask, dataset.Items[0].Intent)

	tests := []struct {
		name    string
		content string
	}{
		{"empty", "items: []\n"},
		{"blank question", "items:\n  - question: ' '\n    intent: task_query\n"},
		{"unknown intent", "items:\n  - question: tasks\n    intent: weather_query\n"},
		{"malformed", "items: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := LoadDataset(path)
			assert.Error(t, err)
		})
	}

	_, err = LoadDataset(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
