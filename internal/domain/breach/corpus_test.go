package breach

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDataset(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "breaches.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const sampleDataset = `[
	{"password": "hunter2", "count": 3},
	{"password": "correct horse battery staple"},
	{"email": "alice@example.com", "source": "MegaCorp", "breach_date": "2023-05-01", "data_classes": ["emails", "passwords"]},
	{"email": "alice@example.com", "source": "OtherSite", "breach_date": "2024-11-12"},
	{"email": "Bob@Example.com", "source": "MegaCorp", "breach_date": "2023-05-01"}
]`

func TestLoad(t *testing.T) {
	corpus, err := Load(writeDataset(t, sampleDataset))
	require.NoError(t, err)

	passwords, emails := corpus.Size()
	assert.Equal(t, 2, passwords)
	assert.Equal(t, 2, emails, "emails are keyed case-insensitively")
}

func TestLoad_MissingFileReturnsEmptyCorpus(t *testing.T) {
	corpus, err := Load(filepath.Join(t.TempDir(), "nope.json"))

	require.Error(t, err)
	require.NotNil(t, corpus, "a missing dataset degrades, it does not disable lookups")
	breached, count := corpus.CheckPassword("anything")
	assert.False(t, breached)
	assert.Zero(t, count)
}

func TestCheckPassword(t *testing.T) {
	corpus, err := Load(writeDataset(t, sampleDataset))
	require.NoError(t, err)

	breached, count := corpus.CheckPassword("hunter2")
	assert.True(t, breached)
	assert.Equal(t, 3, count)

	breached, count = corpus.CheckPassword("correct horse battery staple")
	assert.True(t, breached)
	assert.Equal(t, 1, count, "records without a count default to one occurrence")

	breached, count = corpus.CheckPassword("neverseen")
	assert.False(t, breached)
	assert.Equal(t, 0, count)
}

func TestCheckEmail(t *testing.T) {
	corpus, err := Load(writeDataset(t, sampleDataset))
	require.NoError(t, err)

	breached, records := corpus.CheckEmail("alice@example.com")
	require.True(t, breached)
	require.Len(t, records, 2)
	assert.Equal(t, "MegaCorp", records[0].Source)
	assert.Equal(t, []string{"emails", "passwords"}, records[0].DataClasses)

	breached, _ = corpus.CheckEmail("  ALICE@EXAMPLE.COM ")
	assert.True(t, breached, "lookup normalizes case and whitespace")

	breached, _ = corpus.CheckEmail("nobody@example.com")
	assert.False(t, breached)
}

func TestCheckEmail_TestDomainFallback(t *testing.T) {
	corpus, err := Load(writeDataset(t, sampleDataset))
	require.NoError(t, err)

	breached, records := corpus.CheckEmail("alice@test.com")
	require.True(t, breached, "@test.com falls back to the @example.com record")
	assert.Len(t, records, 2)

	breached, _ = corpus.CheckEmail("stranger@test.com")
	assert.False(t, breached)
}
