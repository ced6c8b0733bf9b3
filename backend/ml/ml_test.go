package ml

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainSmall(t *testing.T, cfg TrainConfig) (*Dataset, *Artifacts) {
	t.Helper()

	ds := Synthesize(600, 7)
	a, err := Train(context.Background(), ds, cfg)
	require.NoError(t, err)

	return ds, a
}

func smallConfig() TrainConfig {
	cfg := DefaultTrainConfig()
	cfg.Trees = 20

	return cfg
}

func TestLabelEncoderSortsClasses(t *testing.T) {
	enc := FitLabelEncoder([]string{"UDP", "TCP", "UDP"})
	assert.Equal(t, []string{"TCP", "UDP"}, enc.Classes)

	code, err := enc.Transform("UDP")
	require.NoError(t, err)
	assert.Equal(t, 1, code)

	_, err = enc.Transform("ICMP")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestScalerStandardizes(t *testing.T) {
	rows := [][]float64{{1, 5}, {3, 5}, {5, 5}}
	s, err := FitScaler(rows, []string{"a", "b"})
	require.NoError(t, err)

	assert.InDelta(t, 3.0, s.Mean[0], 1e-12)
	assert.Equal(t, 1.0, s.Scale[1], "constant column keeps unit scale")

	out, err := s.TransformAll(rows)
	require.NoError(t, err)

	var sum, sq float64
	for _, r := range out {
		sum += r[0]
		sq += r[0] * r[0]
	}
	assert.InDelta(t, 0, sum/3, 1e-12)
	assert.InDelta(t, 1, sq/3, 1e-12)

	_, err = s.Transform([]float64{1})
	assert.ErrorIs(t, err, ErrArtifactMismatch)
}

func TestSplitIndicesHoldsOutCeiling(t *testing.T) {
	train, test, err := SplitIndices(11, 0.2, 42)
	require.NoError(t, err)
	assert.Len(t, test, 3)
	assert.Len(t, train, 8)

	again, _, _ := SplitIndices(11, 0.2, 42)
	assert.Equal(t, train, again)

	_, _, err = SplitIndices(1, 0.2, 42)
	assert.Error(t, err)
}

func TestLoadCSVErrors(t *testing.T) {
	header := "session_id,network_packet_size,protocol_type,login_attempts,session_duration,encryption_used,ip_reputation_score,failed_logins,browser_type,unusual_time_access,attack_detected\n"

	t.Run("missing column", func(t *testing.T) {
		_, err := LoadCSV(strings.NewReader("session_id,attack_detected\nSID_1,1\n"))
		assert.ErrorIs(t, err, ErrMissingColumn)
	})

	t.Run("malformed number", func(t *testing.T) {
		_, err := LoadCSV(strings.NewReader(header + "SID_1,abc,TCP,2,10.5,AES,0.3,1,Chrome,0,1\n"))
		assert.ErrorIs(t, err, ErrMalformedValue)
	})

	t.Run("empty category", func(t *testing.T) {
		_, err := LoadCSV(strings.NewReader(header + "SID_1,500,TCP,2,10.5,,0.3,1,Chrome,0,1\n"))
		assert.ErrorIs(t, err, ErrMalformedValue)
	})

	t.Run("no rows", func(t *testing.T) {
		_, err := LoadCSV(strings.NewReader(header))
		assert.ErrorIs(t, err, ErrEmptyDataset)
	})

	t.Run("valid", func(t *testing.T) {
		ds, err := LoadCSV(strings.NewReader(header + "SID_1,500.0,UDP,2,10.5,DES,0.3,1,Edge,1,0\n"))
		require.NoError(t, err)
		require.Equal(t, 1, ds.Len())
		assert.Equal(t, 500, ds.Sessions[0].NetworkPacketSize)
		assert.True(t, ds.Sessions[0].UnusualTimeAccess)
		assert.Equal(t, 0, ds.Labels[0])
	})
}

func TestCSVRoundTrip(t *testing.T) {
	ds := Synthesize(50, 1)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, ds))

	back, err := LoadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, ds.Sessions, back.Sessions)
	assert.Equal(t, ds.Labels, back.Labels)
}

func TestTrainProducesUsableMetrics(t *testing.T) {
	_, a := trainSmall(t, smallConfig())

	m := a.Metrics
	assert.Equal(t, 600, m.Rows)
	assert.Equal(t, 120, m.TestRows)
	assert.Equal(t, 480, m.TrainRows)
	assert.Greater(t, m.Accuracy, 0.75)
	assert.Equal(t, FeatureNames, m.Features)

	total := 0
	for _, row := range m.ConfusionMatrix {
		for _, v := range row {
			total += v
		}
	}
	assert.Equal(t, m.TestRows, total)

	var sum float64
	for _, v := range m.FeatureImportances {
		assert.GreaterOrEqual(t, v, 0.0)
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	ranked := m.RankedImportances()
	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].Importance, ranked[i].Importance)
	}
	assert.Contains(t, m.ReportText(), "precision")
}

func TestPredictConfidenceAndThreshold(t *testing.T) {
	ds, a := trainSmall(t, smallConfig())

	p, err := NewPredictor(a, nil)
	require.NoError(t, err)

	for _, s := range ds.Sessions[:200] {
		got, err := p.Predict(s)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got.Confidence, 0.0)
		assert.LessOrEqual(t, got.Confidence, 1.0)
		assert.Equal(t, got.Confidence >= DecisionThreshold, got.Attack)
		if got.Attack {
			assert.Equal(t, LabelAttack, got.Label)
		} else {
			assert.Equal(t, LabelNormal, got.Label)
		}
	}
}

func TestPredictRejectsUnknownCategory(t *testing.T) {
	_, a := trainSmall(t, smallConfig())
	p, err := NewPredictor(a, nil)
	require.NoError(t, err)

	s := DefaultSession()
	s.ProtocolType = "ICMP"
	_, err = p.Predict(s)
	assert.ErrorIs(t, err, ErrUnknownCategory)

	s = DefaultSession()
	s.BrowserType = "Safari"
	_, err = p.Predict(s)
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestPredictRejectsOutOfRange(t *testing.T) {
	_, a := trainSmall(t, smallConfig())
	p, err := NewPredictor(a, nil)
	require.NoError(t, err)

	s := DefaultSession()
	s.IPReputationScore = 1.5
	_, err = p.Predict(s)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestTrainingIsDeterministic(t *testing.T) {
	cfg := smallConfig()
	_, first := trainSmall(t, cfg)
	_, second := trainSmall(t, cfg)

	p1, err := NewPredictor(first, nil)
	require.NoError(t, err)
	p2, err := NewPredictor(second, nil)
	require.NoError(t, err)

	scenario := DefaultSession()
	a, err := p1.Predict(scenario)
	require.NoError(t, err)
	b, err := p2.Predict(scenario)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, first.Metrics.Accuracy, second.Metrics.Accuracy)
}

func TestArtifactsRoundTripBitIdentical(t *testing.T) {
	ds, a := trainSmall(t, smallConfig())
	dir := filepath.Join(t.TempDir(), "artifacts")

	manifest, err := a.Save(dir)
	require.NoError(t, err)
	assert.Len(t, manifest.Files, 4)

	for _, name := range []string{ModelFile, ScalerFile, EncodersFile, MetricsFile, ManifestFile} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	loaded, err := LoadPredictor(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, loaded.Fingerprint())

	mem, err := NewPredictor(a, nil)
	require.NoError(t, err)

	for _, s := range ds.Sessions[:100] {
		want, err := mem.Predict(s)
		require.NoError(t, err)
		got, err := loaded.Predict(s)
		require.NoError(t, err)
		assert.Equal(t, want.Confidence, got.Confidence)
		assert.Equal(t, want.Label, got.Label)
	}
}

func TestLoadArtifactsDetectsTampering(t *testing.T) {
	_, a := trainSmall(t, smallConfig())
	dir := filepath.Join(t.TempDir(), "artifacts")
	_, err := a.Save(dir)
	require.NoError(t, err)

	path := filepath.Join(dir, ScalerFile)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(data, ' '), 0o644))

	_, err = LoadPredictor(dir)
	assert.ErrorIs(t, err, ErrArtifactMismatch)
}

func TestSaveReplacesPreviousArtifacts(t *testing.T) {
	_, first := trainSmall(t, smallConfig())
	cfg := smallConfig()
	cfg.Trees = 10
	_, second := trainSmall(t, cfg)

	parent := t.TempDir()
	dir := filepath.Join(parent, "artifacts")

	_, err := first.Save(dir)
	require.NoError(t, err)
	want, err := second.Save(dir)
	require.NoError(t, err)

	_, got, err := LoadArtifacts(dir)
	require.NoError(t, err)
	assert.Equal(t, want.Files, got.Files)

	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "artifacts", entries[0].Name())
}

func TestFailedSaveKeepsPreviousArtifacts(t *testing.T) {
	_, first := trainSmall(t, smallConfig())
	cfg := smallConfig()
	cfg.Trees = 10
	_, second := trainSmall(t, cfg)

	parent := t.TempDir()
	dir := filepath.Join(parent, "artifacts")

	want, err := first.Save(dir)
	require.NoError(t, err)

	// Fail only the move of the new set into place.
	renameDir = func(from, to string) error {
		if to == dir && !strings.HasSuffix(from, ".prev") {
			return os.ErrPermission
		}

		return os.Rename(from, to)
	}
	t.Cleanup(func() { renameDir = os.Rename })

	_, err = second.Save(dir)
	require.ErrorIs(t, err, os.ErrPermission)

	_, got, err := LoadArtifacts(dir)
	require.NoError(t, err)
	assert.Equal(t, want.Files, got.Files)

	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestLoadArtifactsMissingDir(t *testing.T) {
	_, err := LoadPredictor(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestScalerFitFullChangesOnlyScaler(t *testing.T) {
	cfg := smallConfig()
	_, split := trainSmall(t, cfg)

	cfg.ScalerFitFull = true
	_, full := trainSmall(t, cfg)

	assert.True(t, full.Metrics.ScalerFitFull)
	assert.NotEqual(t, split.Scaler.Mean, full.Scaler.Mean)
}
