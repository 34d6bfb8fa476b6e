package ml

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/phishguard/risk-engine/internal/domain"
	"github.com/phishguard/risk-engine/internal/domain/features"
)

const (
	urlModelFile   = "url_model.json"
	urlModelPrefix = "url_model_"
)

// URLModel is the persisted artifact for the URL classifier: a logistic
// model over the fixed lexical feature schema.
type URLModel struct {
	FeatureNames    []string  `json:"feature_names"`
	Weights         []float64 `json:"weights"`
	Bias            float64   `json:"bias"`
	TrainedAt       time.Time `json:"trained_at"`
	TrainingSamples int       `json:"training_samples"`
	TestSamples     int       `json:"test_samples"`
	Accuracy        float64   `json:"accuracy"`
}

// validate checks the artifact against the live feature schema before it
// may be installed.
func (m *URLModel) validate() error {
	if len(m.FeatureNames) != len(features.Names) || len(m.Weights) != len(features.Names) {
		return fmt.Errorf("feature schema mismatch: artifact has %d features, extractor has %d",
			len(m.FeatureNames), len(features.Names))
	}
	for i, name := range features.Names {
		if m.FeatureNames[i] != name {
			return fmt.Errorf("feature schema mismatch at %d: artifact %q, extractor %q", i, m.FeatureNames[i], name)
		}
	}
	return nil
}

// urlSnapshot pairs a loaded model with its version name. model is nil for
// the unloaded state.
type urlSnapshot struct {
	version string
	model   *URLModel
}

// URLClassifier predicts P(phishing) from a URL feature vector. Safe for
// concurrent use: the active snapshot is behind an atomic pointer.
type URLClassifier struct {
	dir  string
	snap atomic.Pointer[urlSnapshot]
	now  func() time.Time
}

// NewURLClassifier loads the latest artifacts from dir. A missing artifact
// leaves the classifier unloaded (neutral predictions), not failed.
func NewURLClassifier(dir string) *URLClassifier {
	c := &URLClassifier{dir: dir, now: time.Now}

	snap, err := c.loadSnapshot(LatestVersion)
	if err != nil {
		slog.Warn("url model not loaded, predictions neutral", "dir", dir, "error", err)
		snap = &urlSnapshot{version: LatestVersion}
	}
	c.snap.Store(snap)
	return c
}

func (c *URLClassifier) versionsDir() string { return filepath.Join(c.dir, "versions") }

func (c *URLClassifier) artifactPath(version string) string {
	if version == LatestVersion {
		return filepath.Join(c.dir, urlModelFile)
	}
	return filepath.Join(c.versionsDir(), urlModelPrefix+version+".json")
}

func (c *URLClassifier) loadSnapshot(version string) (*urlSnapshot, error) {
	var model URLModel
	if err := readJSON(c.artifactPath(version), &model); err != nil {
		return nil, err
	}
	if err := model.validate(); err != nil {
		return nil, err
	}
	return &urlSnapshot{version: version, model: &model}, nil
}

// Predict returns P(phishing) for the feature vector. An unloaded model
// returns the neutral 0.5 rather than failing.
func (c *URLClassifier) Predict(v features.Vector) float64 {
	snap := c.snap.Load()
	if snap == nil || snap.model == nil {
		return 0.5
	}
	return sigmoid(dot(snap.model.Weights, v.Ordered()) + snap.model.Bias)
}

// CurrentVersion returns the active version identifier.
func (c *URLClassifier) CurrentVersion() string {
	return c.snap.Load().version
}

// Loaded reports whether a trained model is active.
func (c *URLClassifier) Loaded() bool {
	return c.snap.Load().model != nil
}

// ListVersions returns "latest" plus every named snapshot with its artifact
// present, most-recent-first by name.
func (c *URLClassifier) ListVersions() []string {
	versions := []string{LatestVersion}

	entries, err := os.ReadDir(c.versionsDir())
	if err != nil {
		return versions
	}
	named := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, urlModelPrefix) && strings.HasSuffix(name, ".json") {
			named = append(named, strings.TrimSuffix(strings.TrimPrefix(name, urlModelPrefix), ".json"))
		}
	}
	sortVersionsDesc(named)
	return append(versions, named...)
}

// SwitchVersion activates the named snapshot. Copy-on-write: the candidate
// is loaded and validated fully before a single pointer swap; on any failure
// the previously active snapshot remains untouched.
func (c *URLClassifier) SwitchVersion(version string) error {
	snap, err := c.loadSnapshot(version)
	if err != nil {
		return fmt.Errorf("switch url model to %q: %w", version, err)
	}
	c.snap.Store(snap)
	slog.Info("url model switched", "version", version, "accuracy", snap.model.Accuracy)
	return nil
}

// Train fits a logistic model on the CSV dataset (feature columns plus a
// "label" column), evaluates it on a held-out split, persists it as the
// latest artifacts and a fresh timestamp-named version, and only then swaps
// the serving snapshot. The in-memory model a concurrent request may be
// reading is never mutated.
func (c *URLClassifier) Train(datasetPath string) (domain.TrainReport, error) {
	X, y, err := loadURLDataset(datasetPath)
	if err != nil {
		return domain.TrainReport{}, err
	}
	if len(X) < 10 {
		return domain.TrainReport{}, fmt.Errorf("dataset too small: %d samples", len(X))
	}

	trainX, trainY, testX, testY := split(X, y, 0.2)

	weights, bias := fitLogistic(trainX, trainY)

	correct := 0
	for i := range testX {
		prob := sigmoid(dot(weights, testX[i]) + bias)
		if (prob >= 0.5) == (testY[i] == 1) {
			correct++
		}
	}
	accuracy := float64(correct) / float64(len(testX))

	version := newVersionName(c.now())
	model := &URLModel{
		FeatureNames:    append([]string{}, features.Names...),
		Weights:         weights,
		Bias:            bias,
		TrainedAt:       c.now().UTC(),
		TrainingSamples: len(trainX),
		TestSamples:     len(testX),
		Accuracy:        accuracy,
	}

	// Artifacts first; the serving snapshot only changes once both writes
	// have succeeded.
	if err := writeJSONAtomic(c.artifactPath(LatestVersion), model); err != nil {
		return domain.TrainReport{}, err
	}
	if err := writeJSONAtomic(c.artifactPath(version), model); err != nil {
		return domain.TrainReport{}, err
	}

	c.snap.Store(&urlSnapshot{version: LatestVersion, model: model})
	slog.Info("url model trained", "version", version, "accuracy", accuracy,
		"train_samples", len(trainX), "test_samples", len(testX))

	return domain.TrainReport{
		Accuracy:        accuracy,
		TrainingSamples: len(trainX),
		TestSamples:     len(testX),
		Version:         version,
	}, nil
}

// loadURLDataset reads a CSV with a header naming the feature columns and a
// label column. Rows are projected onto the extractor's schema order.
func loadURLDataset(path string) ([][]float64, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read dataset: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil, fmt.Errorf("dataset has no data rows")
	}

	header := rows[0]
	columnIndex := make(map[string]int, len(header))
	for i, name := range header {
		columnIndex[strings.TrimSpace(name)] = i
	}
	labelCol, ok := columnIndex["label"]
	if !ok {
		return nil, nil, fmt.Errorf("dataset must have a %q column", "label")
	}
	for _, name := range features.Names {
		if _, ok := columnIndex[name]; !ok {
			return nil, nil, fmt.Errorf("dataset missing feature column %q", name)
		}
	}

	var X [][]float64
	var y []int
	for _, row := range rows[1:] {
		vec := make([]float64, len(features.Names))
		for i, name := range features.Names {
			val, err := strconv.ParseFloat(strings.TrimSpace(row[columnIndex[name]]), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("bad value for %s: %w", name, err)
			}
			vec[i] = val
		}
		label, err := strconv.Atoi(strings.TrimSpace(row[labelCol]))
		if err != nil {
			return nil, nil, fmt.Errorf("bad label: %w", err)
		}
		X = append(X, vec)
		y = append(y, label)
	}
	return X, y, nil
}

// split shuffles deterministically and holds out testFraction of the data.
func split(X [][]float64, y []int, testFraction float64) (trainX [][]float64, trainY []int, testX [][]float64, testY []int) {
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	rng := rand.New(rand.NewSource(42))
	rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

	testCount := int(float64(len(X)) * testFraction)
	if testCount < 1 {
		testCount = 1
	}
	for i, j := range idx {
		if i < testCount {
			testX = append(testX, X[j])
			testY = append(testY, y[j])
		} else {
			trainX = append(trainX, X[j])
			trainY = append(trainY, y[j])
		}
	}
	return trainX, trainY, testX, testY
}

// fitLogistic runs full-batch gradient descent. The dataset sizes involved
// (tens of thousands of rows, 21 features) make anything fancier pointless.
func fitLogistic(X [][]float64, y []int) (weights []float64, bias float64) {
	const (
		epochs       = 300
		learningRate = 0.1
	)

	weights = make([]float64, len(features.Names))
	n := float64(len(X))

	for epoch := 0; epoch < epochs; epoch++ {
		gradW := make([]float64, len(weights))
		gradB := 0.0
		for i := range X {
			pred := sigmoid(dot(weights, X[i]) + bias)
			diff := pred - float64(y[i])
			for j := range weights {
				gradW[j] += diff * X[i][j]
			}
			gradB += diff
		}
		for j := range weights {
			weights[j] -= learningRate * gradW[j] / n
		}
		bias -= learningRate * gradB / n
	}
	return weights, bias
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
