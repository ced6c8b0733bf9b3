package ml

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// TrainConfig holds the reproducibility knobs of a training run.
type TrainConfig struct {
	TestSize float64
	Seed     int64
	Trees    int
	// ScalerFitFull fits the scaler on every row before the split. This leaks
	// held-out statistics into training and only exists for parity with
	// artifacts produced that way.
	ScalerFitFull bool
	Workers       int
}

// DefaultTrainConfig returns the 80/20 split, seed 42, 100-tree setup.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		TestSize: 0.2,
		Seed:     42,
		Trees:    100,
	}
}

// Artifacts bundles everything inference needs.
type Artifacts struct {
	Model    *Forest
	Encoders EncoderSet
	Scaler   *Scaler
	Metrics  *Metrics
}

// SplitIndices shuffles 0..n-1 with seed and returns (train, test), with
// ceil(testSize*n) rows held out.
func SplitIndices(n int, testSize float64, seed int64) ([]int, []int, error) {
	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTest <= 0 || nTrain <= 0 {
		return nil, nil, fmt.Errorf("test size %v leaves an empty split for %d rows", testSize, n)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)

	return perm[nTest:], perm[:nTest], nil
}

// Train runs the full job: encode, split, scale, fit, evaluate.
func Train(ctx context.Context, ds *Dataset, cfg TrainConfig) (*Artifacts, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, ErrEmptyDataset
	}

	encoders := make(EncoderSet, len(CategoricalColumns))
	for _, col := range CategoricalColumns {
		values := make([]string, ds.Len())
		for i, s := range ds.Sessions {
			values[i] = s.categorical(col)
		}
		encoders[col] = FitLabelEncoder(values)
	}

	rows := make([][]float64, ds.Len())
	for i, s := range ds.Sessions {
		row, err := s.Row(encoders)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		rows[i] = row
	}

	trainIdx, testIdx, err := SplitIndices(ds.Len(), cfg.TestSize, cfg.Seed)
	if err != nil {
		return nil, err
	}

	xTrain, yTrain := gather(rows, ds.Labels, trainIdx)
	xTest, yTest := gather(rows, ds.Labels, testIdx)

	scalerRows := xTrain
	if cfg.ScalerFitFull {
		scalerRows = rows
	}
	scaler, err := FitScaler(scalerRows, FeatureNames)
	if err != nil {
		return nil, err
	}

	if xTrain, err = scaler.TransformAll(xTrain); err != nil {
		return nil, err
	}
	if xTest, err = scaler.TransformAll(xTest); err != nil {
		return nil, err
	}

	model, err := FitForest(ctx, xTrain, yTrain, ForestConfig{Trees: cfg.Trees, Seed: cfg.Seed, Workers: cfg.Workers})
	if err != nil {
		return nil, err
	}

	predicted := make([]int, len(xTest))
	for i, row := range xTest {
		if predicted[i], err = model.Predict(row); err != nil {
			return nil, err
		}
	}

	accuracy, cm, report := Evaluate(yTest, predicted)

	metrics := &Metrics{
		Accuracy:           accuracy,
		ConfusionMatrix:    cm,
		FeatureImportances: append([]float64(nil), model.Importances...),
		Features:           append([]string(nil), FeatureNames...),
		Report:             report,
		Rows:               ds.Len(),
		TrainRows:          len(trainIdx),
		TestRows:           len(testIdx),
		Trees:              cfg.Trees,
		Seed:               cfg.Seed,
		ScalerFitFull:      cfg.ScalerFitFull,
		TrainedAt:          time.Now().UTC(),
	}

	return &Artifacts{Model: model, Encoders: encoders, Scaler: scaler, Metrics: metrics}, nil
}

func gather(rows [][]float64, labels []int, idx []int) ([][]float64, []int) {
	x := make([][]float64, len(idx))
	y := make([]int, len(idx))
	for k, i := range idx {
		x[k] = rows[i]
		y[k] = labels[i]
	}

	return x, y
}
