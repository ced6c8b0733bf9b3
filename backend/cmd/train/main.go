// Command train fits the session classifier on a labeled CSV and writes the
// artifact set the dashboard serves from.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/config"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/ml"
	"github.com/sanchi1004/Cybersecurity-AI-Blockchain-Dashboard/backend/system"
	"github.com/spf13/pflag"
)

func main() {
	flags := pflag.NewFlagSet("train", pflag.ExitOnError)
	config.RegisterFlags(flags)
	dataset := flags.String("dataset", "", "training CSV (overrides training.dataset)")
	trees := flags.Int("trees", 0, "number of trees (overrides training.trees)")
	seed := flags.Int64("seed", 0, "split and forest seed (overrides training.seed)")
	testSize := flags.Float64("test-size", 0, "held-out fraction (overrides training.test_size)")
	fitFull := flags.Bool("scaler-fit-full", false, "fit the scaler on all rows before the split")
	synthesize := flags.Int("synthesize", 0, "write N synthetic rows to the dataset path before training")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	tc := cfg.Training
	if flags.Changed("dataset") {
		tc.Dataset = *dataset
	}
	if flags.Changed("trees") {
		tc.Trees = *trees
	}
	if flags.Changed("seed") {
		tc.Seed = *seed
	}
	if flags.Changed("test-size") {
		tc.TestSize = *testSize
	}
	if flags.Changed("scaler-fit-full") {
		tc.ScalerFitFull = *fitFull
	}
	if flags.Changed("synthesize") {
		tc.Synthesize = *synthesize
	}

	system.InitConsoleLogger(system.ParseLevel(cfg.Log.Level))
	defer system.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, tc, cfg.Artifacts.Dir); err != nil {
		system.Error("Training failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, tc config.Training, artifactsDir string) error {
	if tc.Synthesize > 0 {
		if err := writeSynthetic(tc.Dataset, tc.Synthesize, uint64(tc.Seed)); err != nil {
			return err
		}
		system.Info("Wrote %d synthetic sessions to %s", tc.Synthesize, tc.Dataset)
	}

	ds, err := ml.LoadCSVFile(tc.Dataset)
	if err != nil {
		return err
	}
	system.Info("Loaded %d sessions from %s", ds.Len(), tc.Dataset)

	started := time.Now()
	artifacts, err := ml.Train(ctx, ds, ml.TrainConfig{
		TestSize:      tc.TestSize,
		Seed:          tc.Seed,
		Trees:         tc.Trees,
		ScalerFitFull: tc.ScalerFitFull,
	})
	if err != nil {
		return err
	}
	if tc.ScalerFitFull {
		system.Warn("Scaler was fit on all rows; held-out accuracy is optimistic")
	}

	manifest, err := artifacts.Save(artifactsDir)
	if err != nil {
		return err
	}

	m := artifacts.Metrics
	system.Info("Trained %d trees in %s, model %s saved to %s", tc.Trees, time.Since(started).Round(time.Millisecond), manifest.Fingerprint(), artifactsDir)
	system.Info("Accuracy: %.4f", m.Accuracy)
	system.Info("Confusion matrix: %v", m.ConfusionMatrix)
	system.Info("Classification report:\n%s", m.ReportText())
	for _, fi := range m.RankedImportances() {
		system.Info("  %-22s %.4f", fi.Feature, fi.Importance)
	}

	return nil
}

func writeSynthetic(path string, n int, seed uint64) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create dataset directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset: %w", err)
	}
	defer f.Close()

	if err := ml.WriteCSV(f, ml.Synthesize(n, seed)); err != nil {
		return fmt.Errorf("failed to write dataset: %w", err)
	}

	return f.Close()
}
