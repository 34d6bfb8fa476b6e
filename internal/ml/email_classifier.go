package ml

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/phishguard/risk-engine/internal/domain"
)

const (
	emailModelFile      = "email_model.json"
	emailVectorizerFile = "email_vectorizer.json"
	emailVersionsDir    = "versions"

	maxVocabulary = 5000
	laplaceAlpha  = 1.0
)

// EmailModel is the persisted multinomial naive Bayes model. Log probability
// slices are index-aligned with the vectorizer vocabulary.
type EmailModel struct {
	LogPriorHam     float64   `json:"log_prior_ham"`
	LogPriorPhish   float64   `json:"log_prior_phish"`
	LogProbHam      []float64 `json:"log_prob_ham"`
	LogProbPhish    []float64 `json:"log_prob_phish"`
	TrainedAt       time.Time `json:"trained_at"`
	TrainingSamples int       `json:"training_samples"`
	TestSamples     int       `json:"test_samples"`
	Accuracy        float64   `json:"accuracy"`
}

// EmailVectorizer holds the fitted vocabulary.
type EmailVectorizer struct {
	Vocabulary []string `json:"vocabulary"`
}

func (m *EmailModel) validate(vocabSize int) error {
	if len(m.LogProbHam) != vocabSize || len(m.LogProbPhish) != vocabSize {
		return fmt.Errorf("model/vocabulary size mismatch: %d/%d log-probs for %d terms",
			len(m.LogProbHam), len(m.LogProbPhish), vocabSize)
	}
	return nil
}

// emailSnapshot is an immutable loaded model. The classifier swaps whole
// snapshots so readers never observe a half-switched state.
type emailSnapshot struct {
	version    string
	model      *EmailModel
	vectorizer *EmailVectorizer
	vocabIndex map[string]int

	// topIndicators are the vocabulary terms with the largest
	// phishing-vs-ham log-likelihood gap, precomputed once per load.
	topIndicators []string
}

// EmailClassifier scores email text with a versioned naive Bayes model.
type EmailClassifier struct {
	dir  string
	snap atomic.Pointer[emailSnapshot]
	now  func() time.Time
}

// NewEmailClassifier loads the latest model from dir. A missing or broken
// artifact is not fatal; the classifier starts unloaded and predicts neutral.
func NewEmailClassifier(dir string) *EmailClassifier {
	c := &EmailClassifier{dir: dir, now: time.Now}
	snap, err := c.loadSnapshot(LatestVersion)
	if err != nil {
		slog.Warn("email model unavailable, starting unloaded", "dir", dir, "error", err)
		snap = &emailSnapshot{version: LatestVersion}
	}
	c.snap.Store(snap)
	return c
}

func (c *EmailClassifier) versionDir(version string) string {
	if version == LatestVersion {
		return c.dir
	}
	return filepath.Join(c.dir, emailVersionsDir, version)
}

func (c *EmailClassifier) loadSnapshot(version string) (*emailSnapshot, error) {
	dir := c.versionDir(version)

	var vec EmailVectorizer
	if err := readJSON(filepath.Join(dir, emailVectorizerFile), &vec); err != nil {
		return nil, fmt.Errorf("read vectorizer: %w", err)
	}
	var model EmailModel
	if err := readJSON(filepath.Join(dir, emailModelFile), &model); err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	if err := model.validate(len(vec.Vocabulary)); err != nil {
		return nil, err
	}

	index := make(map[string]int, len(vec.Vocabulary))
	for i, term := range vec.Vocabulary {
		index[term] = i
	}

	return &emailSnapshot{
		version:       version,
		model:         &model,
		vectorizer:    &vec,
		vocabIndex:    index,
		topIndicators: topPhishingTerms(&model, &vec, 5),
	}, nil
}

// topPhishingTerms ranks vocabulary terms by how much more likely they are
// under the phishing class than under ham.
func topPhishingTerms(m *EmailModel, vec *EmailVectorizer, n int) []string {
	type ranked struct {
		term  string
		delta float64
	}
	all := make([]ranked, len(vec.Vocabulary))
	for i, term := range vec.Vocabulary {
		all[i] = ranked{term: term, delta: m.LogProbPhish[i] - m.LogProbHam[i]}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].delta != all[j].delta {
			return all[i].delta > all[j].delta
		}
		return all[i].term < all[j].term
	})
	if n > len(all) {
		n = len(all)
	}
	terms := make([]string, n)
	for i := 0; i < n; i++ {
		terms[i] = all[i].term
	}
	return terms
}

// Loaded reports whether a model is active.
func (c *EmailClassifier) Loaded() bool {
	return c.snap.Load().model != nil
}

// CurrentVersion returns the active model version.
func (c *EmailClassifier) CurrentVersion() string {
	return c.snap.Load().version
}

// ListVersions returns the live version followed by the named version
// directories, newest first.
func (c *EmailClassifier) ListVersions() []string {
	versions := []string{LatestVersion}
	entries, err := os.ReadDir(filepath.Join(c.dir, emailVersionsDir))
	if err != nil {
		return versions
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sortVersionsDesc(names)
	return append(versions, names...)
}

// SwitchVersion activates the named version. The new snapshot is fully
// loaded and validated before the pointer moves, so a failed switch leaves
// the active model untouched.
func (c *EmailClassifier) SwitchVersion(version string) error {
	snap, err := c.loadSnapshot(version)
	if err != nil {
		return fmt.Errorf("switch email model to %q: %w", version, err)
	}
	c.snap.Store(snap)
	slog.Info("email model switched", "version", version)
	return nil
}

func emailRiskLevel(p float64) string {
	switch {
	case p < 0.3:
		return "low"
	case p < 0.7:
		return "medium"
	default:
		return "high"
	}
}

// Predict scores the combined subject and body. It returns the phishing
// probability and a detail map suitable for API responses. An unloaded
// classifier returns the neutral 0.5.
func (c *EmailClassifier) Predict(subject, body string) (float64, map[string]any) {
	snap := c.snap.Load()
	if snap.model == nil {
		return 0.5, map[string]any{"error": "Model not loaded"}
	}

	text := strings.TrimSpace(subject + " " + body)
	counts := termCounts(text)

	logHam := snap.model.LogPriorHam
	logPhish := snap.model.LogPriorPhish
	for term, n := range counts {
		i, ok := snap.vocabIndex[term]
		if !ok {
			continue
		}
		logHam += float64(n) * snap.model.LogProbHam[i]
		logPhish += float64(n) * snap.model.LogProbPhish[i]
	}

	// Posterior via the stable two-class softmax.
	p := 1.0 / (1.0 + math.Exp(logHam-logPhish))

	return p, map[string]any{
		"phishing_probability":    p,
		"confidence":              math.Abs(p-0.5) * 2,
		"top_phishing_indicators": snap.topIndicators,
		"processed_text_length":   len(preprocess(text)),
		"risk_level":              emailRiskLevel(p),
	}
}

type emailSample struct {
	text  string
	label int
}

func loadEmailDataset(path string) ([]emailSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read dataset header: %w", err)
	}
	textCol, labelCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "text":
			textCol = i
		case "label":
			labelCol = i
		}
	}
	if textCol < 0 || labelCol < 0 {
		return nil, fmt.Errorf("dataset %s missing text/label columns", path)
	}

	var samples []emailSample
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read dataset row: %w", err)
		}
		if len(row) <= textCol || len(row) <= labelCol {
			continue
		}
		label, err := parseLabel(row[labelCol])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(samples)+2, err)
		}
		samples = append(samples, emailSample{text: row[textCol], label: label})
	}
	if len(samples) < 10 {
		return nil, fmt.Errorf("dataset %s too small: %d samples", path, len(samples))
	}
	return samples, nil
}

func parseLabel(raw string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "0", "ham", "legitimate", "safe":
		return 0, nil
	case "1", "phishing", "spam", "malicious":
		return 1, nil
	}
	return 0, fmt.Errorf("unrecognized label %q", raw)
}

// buildVocabulary keeps the most frequent terms across the corpus, capped at
// maxVocabulary, ordered by frequency then term for stable output.
func buildVocabulary(docs []map[string]int) []string {
	totals := map[string]int{}
	for _, counts := range docs {
		for term, n := range counts {
			totals[term] += n
		}
	}
	terms := make([]string, 0, len(totals))
	for term := range totals {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if totals[terms[i]] != totals[terms[j]] {
			return totals[terms[i]] > totals[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > maxVocabulary {
		terms = terms[:maxVocabulary]
	}
	sort.Strings(terms)
	return terms
}

// Train fits a fresh model from the CSV dataset, persists it as both the
// latest artifact and a named version, and activates it.
func (c *EmailClassifier) Train(datasetPath string) (domain.TrainReport, error) {
	samples, err := loadEmailDataset(datasetPath)
	if err != nil {
		return domain.TrainReport{}, err
	}

	rng := rand.New(rand.NewSource(42))
	rng.Shuffle(len(samples), func(i, j int) {
		samples[i], samples[j] = samples[j], samples[i]
	})
	testSize := len(samples) / 5
	test, train := samples[:testSize], samples[testSize:]

	docs := make([]map[string]int, len(train))
	for i, s := range train {
		docs[i] = termCounts(s.text)
	}
	vocab := buildVocabulary(docs)
	index := make(map[string]int, len(vocab))
	for i, term := range vocab {
		index[term] = i
	}

	model := fitNaiveBayes(docs, train, vocab, index)
	model.TrainedAt = c.now().UTC()
	model.TrainingSamples = len(train)
	model.TestSamples = len(test)

	vec := &EmailVectorizer{Vocabulary: vocab}
	snap := &emailSnapshot{
		version:       LatestVersion,
		model:         model,
		vectorizer:    vec,
		vocabIndex:    index,
		topIndicators: topPhishingTerms(model, vec, 5),
	}
	model.Accuracy = evalEmailAccuracy(snap, test)

	version := newVersionName(c.now())
	for _, dir := range []string{c.dir, filepath.Join(c.dir, emailVersionsDir, version)} {
		if err := writeJSONAtomic(filepath.Join(dir, emailVectorizerFile), vec); err != nil {
			return domain.TrainReport{}, fmt.Errorf("persist vectorizer: %w", err)
		}
		if err := writeJSONAtomic(filepath.Join(dir, emailModelFile), model); err != nil {
			return domain.TrainReport{}, fmt.Errorf("persist model: %w", err)
		}
	}

	c.snap.Store(snap)
	slog.Info("email model trained",
		"version", version,
		"accuracy", model.Accuracy,
		"vocabulary", len(vocab),
		"train_samples", len(train),
		"test_samples", len(test))

	return domain.TrainReport{
		Accuracy:        model.Accuracy,
		TrainingSamples: len(train),
		TestSamples:     len(test),
		Version:         version,
	}, nil
}

func fitNaiveBayes(docs []map[string]int, train []emailSample, vocab []string, index map[string]int) *EmailModel {
	hamTerms := make([]float64, len(vocab))
	phishTerms := make([]float64, len(vocab))
	var hamDocs, phishDocs int
	var hamTotal, phishTotal float64

	for i, s := range train {
		if s.label == 1 {
			phishDocs++
		} else {
			hamDocs++
		}
		for term, n := range docs[i] {
			j, ok := index[term]
			if !ok {
				continue
			}
			if s.label == 1 {
				phishTerms[j] += float64(n)
				phishTotal += float64(n)
			} else {
				hamTerms[j] += float64(n)
				hamTotal += float64(n)
			}
		}
	}

	model := &EmailModel{
		LogPriorHam:   math.Log(float64(hamDocs+1) / float64(len(train)+2)),
		LogPriorPhish: math.Log(float64(phishDocs+1) / float64(len(train)+2)),
		LogProbHam:    make([]float64, len(vocab)),
		LogProbPhish:  make([]float64, len(vocab)),
	}
	hamDenom := hamTotal + laplaceAlpha*float64(len(vocab))
	phishDenom := phishTotal + laplaceAlpha*float64(len(vocab))
	for j := range vocab {
		model.LogProbHam[j] = math.Log((hamTerms[j] + laplaceAlpha) / hamDenom)
		model.LogProbPhish[j] = math.Log((phishTerms[j] + laplaceAlpha) / phishDenom)
	}
	return model
}

func evalEmailAccuracy(snap *emailSnapshot, test []emailSample) float64 {
	if len(test) == 0 {
		return 0
	}
	c := &EmailClassifier{now: time.Now}
	c.snap.Store(snap)
	correct := 0
	for _, s := range test {
		p, _ := c.Predict("", s.text)
		if (p >= 0.5) == (s.label == 1) {
			correct++
		}
	}
	return float64(correct) / float64(len(test))
}
