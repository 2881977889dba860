package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/hedgemesh/internal/persistence"
)

type riskEventRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRiskEventRepo creates a PostgreSQL-backed persistence.RiskEventRepo.
func NewRiskEventRepo(db *sqlx.DB, timeout time.Duration) persistence.RiskEventRepo {
	return &riskEventRepo{db: db, timeout: timeout}
}

func (r *riskEventRepo) Insert(ctx context.Context, event persistence.RiskEvent) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO risk_events (ts, job_id, venue, kind, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	return r.db.QueryRowxContext(ctx, query, event.Timestamp, event.JobID, event.Venue, event.Kind, event.Reason).Scan(&event.ID)
}

func (r *riskEventRepo) RecentForVenue(ctx context.Context, venue string, limit int) ([]persistence.RiskEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, ts, job_id, venue, kind, reason
		FROM risk_events
		WHERE venue = $1
		ORDER BY ts DESC
		LIMIT $2`
	rows, err := r.db.QueryxContext(ctx, query, venue, limit)
	if err != nil {
		return nil, fmt.Errorf("query risk events by venue: %w", err)
	}
	defer rows.Close()

	var out []persistence.RiskEvent
	for rows.Next() {
		var e persistence.RiskEvent
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.JobID, &e.Venue, &e.Kind, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan risk event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
