package ml

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ForestConfig controls ensemble training.
type ForestConfig struct {
	Trees int
	Seed  int64
	// Workers bounds parallel tree construction; 0 means GOMAXPROCS.
	Workers int
}

// Forest is a bagged ensemble of CART trees. It is immutable once fitted.
type Forest struct {
	Trees       []*Tree   `json:"trees"`
	NFeatures   int       `json:"n_features"`
	Importances []float64 `json:"importances"`
}

// FitForest trains cfg.Trees trees. Per-tree seeds are drawn up front from
// cfg.Seed, so the result does not depend on worker scheduling.
func FitForest(ctx context.Context, x [][]float64, y []int, cfg ForestConfig) (*Forest, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("forest needs matching non-empty inputs, got %d rows and %d labels", len(x), len(y))
	}
	if cfg.Trees <= 0 {
		return nil, fmt.Errorf("forest needs at least one tree")
	}

	nFeatures := len(x[0])
	maxFeatures := int(math.Sqrt(float64(nFeatures)))
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	master := rand.New(rand.NewSource(cfg.Seed))
	seeds := make([]int64, cfg.Trees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	trees := make([]*Tree, cfg.Trees)
	importances := make([][]float64, cfg.Trees)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			trees[i], importances[i] = fitTree(x, y, maxFeatures, seeds[i])

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := make([]float64, nFeatures)
	for _, imp := range importances {
		for j, v := range imp {
			total[j] += v
		}
	}

	var sum float64
	for _, v := range total {
		sum += v
	}
	if sum > 0 {
		for j := range total {
			total[j] /= sum
		}
	}

	return &Forest{Trees: trees, NFeatures: nFeatures, Importances: total}, nil
}

// PredictProba returns the mean class distribution over all trees.
func (f *Forest) PredictProba(row []float64) ([2]float64, error) {
	if len(row) != f.NFeatures {
		return [2]float64{}, fmt.Errorf("%w: row has %d features, model expects %d", ErrArtifactMismatch, len(row), f.NFeatures)
	}

	var p [2]float64
	for _, t := range f.Trees {
		tp := t.Proba(row)
		p[0] += tp[0]
		p[1] += tp[1]
	}

	n := float64(len(f.Trees))
	p[0] /= n
	p[1] /= n

	return p, nil
}

// Predict returns the predicted class: 1 when the attack probability is at
// least DecisionThreshold.
func (f *Forest) Predict(row []float64) (int, error) {
	p, err := f.PredictProba(row)
	if err != nil {
		return 0, err
	}

	return classFor(p[1]), nil
}

// DecisionThreshold separates attack from normal on the positive-class probability.
const DecisionThreshold = 0.5

func classFor(positive float64) int {
	if positive >= DecisionThreshold {
		return 1
	}

	return 0
}
