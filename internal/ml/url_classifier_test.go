package ml

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phishguard/risk-engine/internal/domain/features"
)

func writeURLModel(t *testing.T, dir, version string, weights []float64, bias float64) {
	t.Helper()
	model := URLModel{
		FeatureNames: append([]string{}, features.Names...),
		Weights:      weights,
		Bias:         bias,
		TrainedAt:    time.Now().UTC(),
		Accuracy:     0.9,
	}
	path := filepath.Join(dir, urlModelFile)
	if version != LatestVersion {
		path = filepath.Join(dir, "versions", urlModelPrefix+version+".json")
	}
	require.NoError(t, writeJSONAtomic(path, model))
}

func zeroWeights() []float64 {
	return make([]float64, len(features.Names))
}

func TestURLClassifier_UnloadedPredictsNeutral(t *testing.T) {
	c := NewURLClassifier(t.TempDir())

	assert.False(t, c.Loaded())
	assert.Equal(t, 0.5, c.Predict(features.Extract("https://example.com")))
}

func TestURLClassifier_LoadsLatestArtifact(t *testing.T) {
	dir := t.TempDir()
	writeURLModel(t, dir, LatestVersion, zeroWeights(), 2.0)

	c := NewURLClassifier(dir)

	require.True(t, c.Loaded())
	assert.Equal(t, LatestVersion, c.CurrentVersion())
	// All-zero weights leave only the bias: sigmoid(2) ≈ 0.88.
	assert.InDelta(t, 0.8807, c.Predict(features.Extract("https://example.com")), 0.001)
}

func TestURLClassifier_SwitchVersion(t *testing.T) {
	dir := t.TempDir()
	writeURLModel(t, dir, LatestVersion, zeroWeights(), 2.0)
	writeURLModel(t, dir, "20260101_000000", zeroWeights(), -2.0)

	c := NewURLClassifier(dir)
	require.NoError(t, c.SwitchVersion("20260101_000000"))

	assert.Equal(t, "20260101_000000", c.CurrentVersion())
	assert.InDelta(t, 0.1192, c.Predict(features.Extract("https://example.com")), 0.001)
}

func TestURLClassifier_SwitchFailureLeavesActiveModel(t *testing.T) {
	dir := t.TempDir()
	writeURLModel(t, dir, LatestVersion, zeroWeights(), 2.0)

	c := NewURLClassifier(dir)
	before := c.Predict(features.Extract("https://example.com"))

	err := c.SwitchVersion("20990101_000000")
	require.Error(t, err)
	assert.Equal(t, LatestVersion, c.CurrentVersion())
	assert.Equal(t, before, c.Predict(features.Extract("https://example.com")))
}

func TestURLClassifier_SwitchRejectsSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	writeURLModel(t, dir, LatestVersion, zeroWeights(), 0)

	// A stale artifact trained against a different feature schema.
	bad := URLModel{FeatureNames: []string{"only_one"}, Weights: []float64{1}}
	require.NoError(t, writeJSONAtomic(
		filepath.Join(dir, "versions", urlModelPrefix+"20250101_000000.json"), bad))

	c := NewURLClassifier(dir)
	err := c.SwitchVersion("20250101_000000")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "feature schema mismatch")
	assert.Equal(t, LatestVersion, c.CurrentVersion())
}

func TestURLClassifier_ListVersions(t *testing.T) {
	dir := t.TempDir()
	writeURLModel(t, dir, LatestVersion, zeroWeights(), 0)
	writeURLModel(t, dir, "20250101_000000", zeroWeights(), 0)
	writeURLModel(t, dir, "20260101_000000", zeroWeights(), 0)

	c := NewURLClassifier(dir)

	assert.Equal(t, []string{LatestVersion, "20260101_000000", "20250101_000000"},
		c.ListVersions(), "named versions sort most-recent-first")
}

func writeURLDataset(t *testing.T, rows int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(strings.Join(features.Names, ","))
	b.WriteString(",label\n")

	for i := 0; i < rows; i++ {
		vec := make([]string, len(features.Names))
		for j := range vec {
			vec[j] = "0"
		}
		label := 0
		if i%2 == 0 {
			vec[0] = "5.0" // url_length strongly separates the classes
			label = 1
		} else {
			vec[0] = "1.0"
		}
		b.WriteString(strings.Join(vec, ","))
		b.WriteString(fmt.Sprintf(",%d\n", label))
	}

	path := filepath.Join(t.TempDir(), "urls.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestURLClassifier_Train(t *testing.T) {
	dir := t.TempDir()
	c := NewURLClassifier(dir)
	require.False(t, c.Loaded())

	report, err := c.Train(writeURLDataset(t, 40))
	require.NoError(t, err)

	assert.Equal(t, 32, report.TrainingSamples)
	assert.Equal(t, 8, report.TestSamples)
	assert.Greater(t, report.Accuracy, 0.9, "linearly separable data must be learned")
	assert.NotEmpty(t, report.Version)

	// Training activates the fresh model and persists both artifacts.
	assert.True(t, c.Loaded())
	assert.FileExists(t, filepath.Join(dir, urlModelFile))
	assert.FileExists(t, filepath.Join(dir, "versions", urlModelPrefix+report.Version+".json"))

	// A classifier constructed later picks the new model up as latest.
	fresh := NewURLClassifier(dir)
	assert.True(t, fresh.Loaded())
}

func TestURLClassifier_TrainRejectsTinyDataset(t *testing.T) {
	c := NewURLClassifier(t.TempDir())

	_, err := c.Train(writeURLDataset(t, 4))
	assert.Error(t, err)
}
