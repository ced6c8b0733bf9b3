package ml

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/zeebo/blake3"
)

// Artifact file names inside the artifact directory.
const (
	ModelFile    = "model.json"
	ScalerFile   = "scaler.json"
	EncodersFile = "encoders.json"
	MetricsFile  = "metrics.json"
	ManifestFile = "manifest.json"

	// FormatVersion is bumped whenever an artifact layout changes.
	FormatVersion = 1
)

var ErrArtifactMismatch = errors.New("artifact mismatch")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var renameDir = os.Rename

// Manifest pins the artifact set: layout version, column order and a BLAKE3
// digest per file.
type Manifest struct {
	FormatVersion int               `json:"format_version"`
	Features      []string          `json:"features"`
	Files         map[string]string `json:"files"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Fingerprint is a digest over the manifest entries, shown on the status page.
func (m *Manifest) Fingerprint() string {
	h := blake3.New()
	for _, name := range []string{ModelFile, ScalerFile, EncodersFile, MetricsFile} {
		h.Write([]byte(name))
		h.Write([]byte(m.Files[name]))
	}

	return hex.EncodeToString(h.Sum(nil))[:16]
}

func digest(data []byte) string {
	sum := blake3.Sum256(data)

	return hex.EncodeToString(sum[:])
}

// Save writes the four artifacts and the manifest. Files are staged in a
// sibling temp directory and swapped in only after everything serialized.
func (a *Artifacts) Save(dir string) (*Manifest, error) {
	payloads := map[string]any{
		ModelFile:    a.Model,
		ScalerFile:   a.Scaler,
		EncodersFile: a.Encoders,
		MetricsFile:  a.Metrics,
	}

	encoded := make(map[string][]byte, len(payloads))
	manifest := &Manifest{
		FormatVersion: FormatVersion,
		Features:      append([]string(nil), FeatureNames...),
		Files:         make(map[string]string, len(payloads)),
		CreatedAt:     time.Now().UTC(),
	}

	for name, v := range payloads {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", name, err)
		}
		encoded[name] = data
		manifest.Files[name] = digest(data)
	}

	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	encoded[ManifestFile] = manifestData

	parent := filepath.Dir(filepath.Clean(dir))
	if err := os.MkdirAll(parent, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact parent: %w", err)
	}

	staging, err := os.MkdirTemp(parent, ".artifacts-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	for name, data := range encoded {
		if err := os.WriteFile(filepath.Join(staging, name), data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	// The previous set stays on disk until the new one is in place.
	previous := ""
	if _, err := os.Stat(dir); err == nil {
		previous = staging + ".prev"
		if err := renameDir(dir, previous); err != nil {
			return nil, fmt.Errorf("failed to move aside %s: %w", dir, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
	}

	if err := renameDir(staging, dir); err != nil {
		if previous != "" {
			if rerr := renameDir(previous, dir); rerr != nil {
				return nil, fmt.Errorf("failed to move artifacts into %s: %w (previous set left at %s: %v)", dir, err, previous, rerr)
			}
		}

		return nil, fmt.Errorf("failed to move artifacts into %s: %w", dir, err)
	}

	if previous != "" {
		if err := os.RemoveAll(previous); err != nil {
			return nil, fmt.Errorf("failed to remove previous artifacts: %w", err)
		}
	}

	return manifest, nil
}

// LoadArtifacts reads and verifies an artifact directory. Any missing file,
// digest mismatch, version mismatch or column-order mismatch is an error.
func LoadArtifacts(dir string) (*Artifacts, *Manifest, error) {
	manifestData, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return nil, nil, fmt.Errorf("%w: manifest: %v", ErrArtifactMismatch, err)
	}
	if manifest.FormatVersion != FormatVersion {
		return nil, nil, fmt.Errorf("%w: format version %d, expected %d", ErrArtifactMismatch, manifest.FormatVersion, FormatVersion)
	}
	if !slices.Equal(manifest.Features, FeatureNames) {
		return nil, nil, fmt.Errorf("%w: feature order %v, expected %v", ErrArtifactMismatch, manifest.Features, FeatureNames)
	}

	a := &Artifacts{}
	targets := []struct {
		name string
		v    any
	}{
		{ModelFile, &a.Model},
		{ScalerFile, &a.Scaler},
		{EncodersFile, &a.Encoders},
		{MetricsFile, &a.Metrics},
	}

	for _, t := range targets {
		data, err := os.ReadFile(filepath.Join(dir, t.name))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read %s: %w", t.name, err)
		}
		if want := manifest.Files[t.name]; want != digest(data) {
			return nil, nil, fmt.Errorf("%w: %s digest does not match manifest", ErrArtifactMismatch, t.name)
		}
		if err := json.Unmarshal(data, t.v); err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrArtifactMismatch, t.name, err)
		}
	}

	if err := a.check(); err != nil {
		return nil, nil, err
	}

	return a, &manifest, nil
}

func (a *Artifacts) check() error {
	switch {
	case a.Model == nil || len(a.Model.Trees) == 0:
		return fmt.Errorf("%w: model has no trees", ErrArtifactMismatch)
	case a.Model.NFeatures != len(FeatureNames):
		return fmt.Errorf("%w: model expects %d features", ErrArtifactMismatch, a.Model.NFeatures)
	case a.Scaler == nil || !slices.Equal(a.Scaler.Features, FeatureNames):
		return fmt.Errorf("%w: scaler column order differs", ErrArtifactMismatch)
	case len(a.Scaler.Mean) != len(FeatureNames) || len(a.Scaler.Scale) != len(FeatureNames):
		return fmt.Errorf("%w: scaler width differs", ErrArtifactMismatch)
	case a.Metrics == nil:
		return fmt.Errorf("%w: metrics missing", ErrArtifactMismatch)
	}

	for _, col := range CategoricalColumns {
		if enc, ok := a.Encoders[col]; !ok || len(enc.Classes) == 0 {
			return fmt.Errorf("%w: encoder for %s missing", ErrArtifactMismatch, col)
		}
	}

	for i, t := range a.Model.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("%w: tree %d is empty", ErrArtifactMismatch, i)
		}
	}

	return nil
}
