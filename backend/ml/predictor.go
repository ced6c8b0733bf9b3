package ml

import "fmt"

// Verdict labels.
const (
	LabelNormal = "normal"
	LabelAttack = "attack"
)

// Prediction is the outcome of scoring one session.
type Prediction struct {
	Label      string  `json:"label"`
	Attack     bool    `json:"attack"`
	Confidence float64 `json:"confidence"`
}

// Predictor serves inference from a frozen artifact set. It holds no mutable
// state and is safe for concurrent use.
type Predictor struct {
	artifacts   *Artifacts
	manifest    *Manifest
	fingerprint string
}

// NewPredictor wraps loaded artifacts. manifest may be nil for in-memory artifacts.
func NewPredictor(a *Artifacts, manifest *Manifest) (*Predictor, error) {
	if err := a.check(); err != nil {
		return nil, err
	}

	p := &Predictor{artifacts: a, manifest: manifest}
	if manifest != nil {
		p.fingerprint = manifest.Fingerprint()
	}

	return p, nil
}

// LoadPredictor loads and verifies the artifact directory.
func LoadPredictor(dir string) (*Predictor, error) {
	a, manifest, err := LoadArtifacts(dir)
	if err != nil {
		return nil, err
	}

	return NewPredictor(a, manifest)
}

// Predict encodes, scales and scores s. Unknown categories and out-of-range
// values fail without a result.
func (p *Predictor) Predict(s Session) (Prediction, error) {
	if err := s.Validate(); err != nil {
		return Prediction{}, err
	}

	row, err := s.Row(p.artifacts.Encoders)
	if err != nil {
		return Prediction{}, err
	}

	scaled, err := p.artifacts.Scaler.Transform(row)
	if err != nil {
		return Prediction{}, err
	}

	proba, err := p.artifacts.Model.PredictProba(scaled)
	if err != nil {
		return Prediction{}, fmt.Errorf("inference failed: %w", err)
	}

	confidence := proba[1]
	attack := classFor(confidence) == 1

	label := LabelNormal
	if attack {
		label = LabelAttack
	}

	return Prediction{Label: label, Attack: attack, Confidence: confidence}, nil
}

// Metrics returns the training metrics bundle.
func (p *Predictor) Metrics() *Metrics {
	return p.artifacts.Metrics
}

// Categories lists the accepted categorical values per column.
func (p *Predictor) Categories() map[string][]string {
	return p.artifacts.Encoders.Classes()
}

// Fingerprint identifies the loaded artifact set; empty for unsaved artifacts.
func (p *Predictor) Fingerprint() string {
	return p.fingerprint
}

// Trees returns the ensemble size.
func (p *Predictor) Trees() int {
	return len(p.artifacts.Model.Trees)
}
