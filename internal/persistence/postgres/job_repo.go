// Package postgres implements the persistence repositories against
// PostgreSQL. Grounded on internal/persistence/postgres/trades_repo.go:
// sqlx for scanning, context-scoped timeouts per call, jsonb-encoded
// attribute columns, and lib/pq error-code inspection for duplicate
// detection.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/hedgemesh/internal/persistence"
)

type jobRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewJobRepo creates a PostgreSQL-backed persistence.JobRepo.
func NewJobRepo(db *sqlx.DB, timeout time.Duration) persistence.JobRepo {
	return &jobRepo{db: db, timeout: timeout}
}

func (r *jobRepo) Insert(ctx context.Context, record persistence.JobRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	venuesJSON, err := json.Marshal(record.Venues)
	if err != nil {
		return fmt.Errorf("marshal venues: %w", err)
	}
	attributesJSON, err := json.Marshal(record.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}

	query := `
		INSERT INTO job_records (job_id, strategy, symbol, venues, notional, final_state, reason, pnl, submitted_at, finished_at, attributes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	err = r.db.QueryRowxContext(ctx, query,
		record.JobID, record.Strategy, record.Symbol, venuesJSON, record.Notional,
		record.FinalState, record.Reason, record.PnL, record.SubmittedAt, record.FinishedAt, attributesJSON).
		Scan(&record.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate job record: %w", err)
		}
		return fmt.Errorf("insert job record: %w", err)
	}
	return nil
}

func (r *jobRepo) InsertBatch(ctx context.Context, records []persistence.JobRecord) error {
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(records)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO job_records (job_id, strategy, symbol, venues, notional, final_state, reason, pnl, submitted_at, finished_at, attributes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		venuesJSON, err := json.Marshal(record.Venues)
		if err != nil {
			return fmt.Errorf("marshal venues: %w", err)
		}
		attributesJSON, err := json.Marshal(record.Attributes)
		if err != nil {
			return fmt.Errorf("marshal attributes: %w", err)
		}
		_, err = stmt.ExecContext(ctx,
			record.JobID, record.Strategy, record.Symbol, venuesJSON, record.Notional,
			record.FinalState, record.Reason, record.PnL, record.SubmittedAt, record.FinishedAt, attributesJSON)
		if err != nil {
			return fmt.Errorf("insert job record in batch: %w", err)
		}
	}
	return tx.Commit()
}

func (r *jobRepo) RecentForSymbol(ctx context.Context, symbol string, limit int) ([]persistence.JobRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, job_id, strategy, symbol, venues, notional, final_state, reason, pnl, submitted_at, finished_at, attributes
		FROM job_records
		WHERE symbol = $1
		ORDER BY finished_at DESC
		LIMIT $2`

	rows, err := r.db.QueryxContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query job records by symbol: %w", err)
	}
	defer rows.Close()
	return scanJobRows(rows)
}

func scanJobRows(rows *sqlx.Rows) ([]persistence.JobRecord, error) {
	var out []persistence.JobRecord
	for rows.Next() {
		var (
			rec            persistence.JobRecord
			venuesJSON     []byte
			attributesJSON []byte
		)
		if err := rows.Scan(&rec.ID, &rec.JobID, &rec.Strategy, &rec.Symbol, &venuesJSON,
			&rec.Notional, &rec.FinalState, &rec.Reason, &rec.PnL, &rec.SubmittedAt, &rec.FinishedAt, &attributesJSON); err != nil {
			return nil, fmt.Errorf("scan job record: %w", err)
		}
		if len(venuesJSON) > 0 {
			if err := json.Unmarshal(venuesJSON, &rec.Venues); err != nil {
				return nil, fmt.Errorf("unmarshal venues: %w", err)
			}
		}
		if len(attributesJSON) > 0 {
			if err := json.Unmarshal(attributesJSON, &rec.Attributes); err != nil {
				return nil, fmt.Errorf("unmarshal attributes: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
