package ml

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Metrics is written once per training run and read by the insights view.
type Metrics struct {
	Accuracy           float64   `json:"accuracy"`
	ConfusionMatrix    [][]int   `json:"confusion_matrix"`
	FeatureImportances []float64 `json:"feature_importances"`
	Features           []string  `json:"features"`

	Report        []ClassReport `json:"report"`
	Rows          int           `json:"rows"`
	TrainRows     int           `json:"train_rows"`
	TestRows      int           `json:"test_rows"`
	Trees         int           `json:"trees"`
	Seed          int64         `json:"seed"`
	ScalerFitFull bool          `json:"scaler_fit_full"`
	TrainedAt     time.Time     `json:"trained_at"`
}

// ClassReport mirrors one row of a classification report.
type ClassReport struct {
	Class     string  `json:"class"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Evaluate computes accuracy, the 2x2 confusion matrix (rows actual,
// columns predicted) and the per-class report.
func Evaluate(actual, predicted []int) (float64, [][]int, []ClassReport) {
	cm := [][]int{{0, 0}, {0, 0}}
	correct := 0
	for i := range actual {
		cm[actual[i]][predicted[i]]++
		if actual[i] == predicted[i] {
			correct++
		}
	}

	accuracy := 0.0
	if len(actual) > 0 {
		accuracy = float64(correct) / float64(len(actual))
	}

	names := []string{LabelNormal, LabelAttack}
	report := make([]ClassReport, 2)
	for c := 0; c < 2; c++ {
		tp := float64(cm[c][c])
		predictedC := float64(cm[0][c] + cm[1][c])
		support := cm[c][0] + cm[c][1]

		r := ClassReport{Class: names[c], Support: support}
		if predictedC > 0 {
			r.Precision = tp / predictedC
		}
		if support > 0 {
			r.Recall = tp / float64(support)
		}
		if r.Precision+r.Recall > 0 {
			r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
		}
		report[c] = r
	}

	return accuracy, cm, report
}

// ReportText renders the classification report as an aligned table.
func (m *Metrics) ReportText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%10s %10s %10s %10s %10s\n", "", "precision", "recall", "f1-score", "support")
	for _, r := range m.Report {
		fmt.Fprintf(&b, "%10s %10.2f %10.2f %10.2f %10d\n", r.Class, r.Precision, r.Recall, r.F1, r.Support)
	}
	fmt.Fprintf(&b, "\n%10s %32.2f %10d\n", "accuracy", m.Accuracy, m.TestRows)

	return b.String()
}

// FeatureImportance pairs a feature with its score.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// RankedImportances returns features ordered by descending importance.
func (m *Metrics) RankedImportances() []FeatureImportance {
	out := make([]FeatureImportance, len(m.Features))
	for i, f := range m.Features {
		out[i] = FeatureImportance{Feature: f}
		if i < len(m.FeatureImportances) {
			out[i].Importance = m.FeatureImportances[i]
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Importance > out[j].Importance
	})

	return out
}
