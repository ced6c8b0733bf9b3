package ml

import (
	"fmt"
	"math"
)

// Scaler standardizes every column to zero mean and unit variance.
type Scaler struct {
	Features []string  `json:"features"`
	Mean     []float64 `json:"mean"`
	Scale    []float64 `json:"scale"`
}

// FitScaler computes per-column mean and population standard deviation.
// Constant columns get a scale of 1 so they pass through centered.
func FitScaler(rows [][]float64, features []string) (*Scaler, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("cannot fit scaler on empty data")
	}

	width := len(features)
	mean := make([]float64, width)
	for _, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row has %d columns, expected %d", ErrArtifactMismatch, len(row), width)
		}
		for j, v := range row {
			mean[j] += v
		}
	}

	n := float64(len(rows))
	for j := range mean {
		mean[j] /= n
	}

	scale := make([]float64, width)
	for _, row := range rows {
		for j, v := range row {
			d := v - mean[j]
			scale[j] += d * d
		}
	}

	for j := range scale {
		scale[j] = math.Sqrt(scale[j] / n)
		if scale[j] == 0 {
			scale[j] = 1
		}
	}

	return &Scaler{
		Features: append([]string(nil), features...),
		Mean:     mean,
		Scale:    scale,
	}, nil
}

// Transform returns a scaled copy of row.
func (s *Scaler) Transform(row []float64) ([]float64, error) {
	if len(row) != len(s.Mean) {
		return nil, fmt.Errorf("%w: row has %d columns, scaler expects %d", ErrArtifactMismatch, len(row), len(s.Mean))
	}

	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}

	return out, nil
}

// TransformAll scales every row.
func (s *Scaler) TransformAll(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		scaled, err := s.Transform(row)
		if err != nil {
			return nil, err
		}
		out[i] = scaled
	}

	return out, nil
}
