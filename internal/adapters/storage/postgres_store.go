// Package storage implements ports.AssessmentStore for PostgreSQL.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/phishguard/risk-engine/internal/domain"
)

// PostgresStore persists completed assessments for history and reporting.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Conservative pool settings; tune for workload in production.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// InitSchema creates the assessments table if it doesn't exist.
// In production, use proper migration tools.
func (s *PostgresStore) InitSchema() error {
	schema := `
	-- Assessment history. Component breakdowns and recommendations are
	-- stored as JSONB: they are always read alongside their parent row,
	-- and their shape evolves with the scoring weights.
	CREATE TABLE IF NOT EXISTS assessments (
		id UUID PRIMARY KEY,
		url TEXT NOT NULL,
		overall_score DECIMAL(5,2) NOT NULL,
		risk_level VARCHAR(10) NOT NULL,
		components JSONB,
		recommendations JSONB,
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	-- Backs RecentAssessments
	CREATE INDEX IF NOT EXISTS idx_assessments_created ON assessments(created_at DESC);
	-- Backs CountHighRisk and level-filtered dashboards
	CREATE INDEX IF NOT EXISTS idx_assessments_level ON assessments(risk_level, created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveAssessment inserts a completed assessment.
func (s *PostgresStore) SaveAssessment(ctx context.Context, a *domain.RiskAssessment) error {
	componentsJSON, err := json.Marshal(a.Components)
	if err != nil {
		return fmt.Errorf("marshal components: %w", err)
	}
	recsJSON, err := json.Marshal(a.Recommendations)
	if err != nil {
		return fmt.Errorf("marshal recommendations: %w", err)
	}

	query := `
		INSERT INTO assessments (id, url, overall_score, risk_level, components, recommendations, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.db.ExecContext(ctx, query,
		a.ID, a.URL, a.OverallScore, a.Level,
		componentsJSON, recsJSON, a.Timestamp,
	)
	return err
}

// RecentAssessments returns the newest assessments, most recent first.
func (s *PostgresStore) RecentAssessments(ctx context.Context, limit int) ([]domain.RiskAssessment, error) {
	query := `
		SELECT id, url, overall_score, risk_level, components, recommendations, created_at
		FROM assessments
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RiskAssessment
	for rows.Next() {
		var a domain.RiskAssessment
		var componentsJSON, recsJSON []byte
		if err := rows.Scan(&a.ID, &a.URL, &a.OverallScore, &a.Level,
			&componentsJSON, &recsJSON, &a.Timestamp); err != nil {
			return nil, err
		}
		if len(componentsJSON) > 0 {
			if err := json.Unmarshal(componentsJSON, &a.Components); err != nil {
				return nil, fmt.Errorf("unmarshal components: %w", err)
			}
		}
		if len(recsJSON) > 0 {
			if err := json.Unmarshal(recsJSON, &a.Recommendations); err != nil {
				return nil, fmt.Errorf("unmarshal recommendations: %w", err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountHighRisk returns how many stored assessments landed at the high level.
func (s *PostgresStore) CountHighRisk(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assessments WHERE risk_level = $1`,
		domain.LevelHigh,
	).Scan(&count)
	return count, err
}
