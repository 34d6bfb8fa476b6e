// Package ml implements the two versioned phishing classifiers: a logistic
// model over URL lexical features and a bag-of-terms naive Bayes model over
// email text. Model snapshots are immutable; switching or retraining builds
// the candidate fully in isolation and installs it with a single atomic
// pointer swap, so in-flight predictions always see a consistent model.
package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// LatestVersion is the reserved identifier for the currently active,
// unnamed artifacts.
const LatestVersion = "latest"

// newVersionName produces the timestamp-named snapshot identifier used when
// training persists a versioned copy.
func newVersionName(now time.Time) string {
	return now.UTC().Format("20060102_150405")
}

// writeJSONAtomic persists v to path via a temp file and rename, so readers
// never observe a half-written artifact.
func writeJSONAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("install artifact: %w", err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode artifact %s: %w", filepath.Base(path), err)
	}
	return nil
}

// sortVersionsDesc orders snapshot names most-recent-first. Timestamp names
// sort correctly lexicographically.
func sortVersionsDesc(versions []string) {
	sort.Sort(sort.Reverse(sort.StringSlice(versions)))
}
