package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hostpilotpro/captain-cortex/internal/cortex"
	"github.com/hostpilotpro/captain-cortex/internal/evaluation"
	"github.com/hostpilotpro/captain-cortex/pkg/config"
	appLogger "github.com/hostpilotpro/captain-cortex/pkg/logger"
)

var (
	cfgPath     string
	lexiconPath string
	threshold   float64
	asJSON      bool
	minAccuracy float64
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "evaluate <dataset>",
		Short: "Score the intent detector against a labeled question set",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}

	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (defaults to ./config.yaml when present)")
	rootCmd.Flags().StringVar(&lexiconPath, "lexicon", "", "lexicon YAML overriding cortex.lexiconPath")
	rootCmd.Flags().Float64Var(&threshold, "threshold", -1, "confidence threshold overriding cortex.confidenceThreshold")
	rootCmd.Flags().BoolVar(&asJSON, "json", false, "print the full report as JSON")
	rootCmd.Flags().Float64Var(&minAccuracy, "min-accuracy", 0, "exit non-zero when accuracy is below this fraction")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	var cfg *config.Config
	var err error
	if cfgPath != "" {
		cfg, err = config.LoadFile(cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	if err := appLogger.Init("warn", "console", "stderr"); err != nil {
		return err
	}
	defer appLogger.Sync()

	lexicon := cortex.DefaultLexicon()
	if lexiconPath == "" {
		lexiconPath = cfg.Cortex.LexiconPath
	}
	if lexiconPath != "" {
		if lexicon, err = cortex.LoadLexicon(lexiconPath); err != nil {
			return err
		}
	}
	if threshold < 0 {
		threshold = cfg.Cortex.ConfidenceThreshold
	}

	dataset, err := evaluation.LoadDataset(args[0])
	if err != nil {
		return err
	}

	evaluator := evaluation.NewEvaluator(cortex.NewIntentDetector(lexicon, threshold))
	report, err := evaluator.RunDatasetEvaluation(context.Background(), dataset)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		fmt.Fprint(out, report.Summary())
		for _, m := range report.Misclassified {
			fmt.Fprintf(out, "  miss: %q expected=%s detected=%s confidence=%.2f\n",
				m.Question, m.Expected, m.Detected, m.Confidence)
		}
	}

	if report.Accuracy < minAccuracy {
		appLogger.Warn("Accuracy below target",
			zap.Float64("accuracy", report.Accuracy),
			zap.Float64("min_accuracy", minAccuracy),
		)
		return fmt.Errorf("accuracy %.3f is below %.3f", report.Accuracy, minAccuracy)
	}
	return nil
}
