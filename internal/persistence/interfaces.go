// Package persistence defines the storage contracts the control plane
// writes its durable history through: terminal job records and risk
// events. Grounded on internal/persistence/interfaces.go's repository
// interface shape, generalized from trade/regime/premove rows to the
// job/risk rows this system produces.
package persistence

import (
	"context"
	"time"
)

// JobRecord is one finished job's durable record.
type JobRecord struct {
	ID           int64                  `json:"id" db:"id"`
	JobID        string                 `json:"job_id" db:"job_id"`
	Strategy     string                 `json:"strategy" db:"strategy"`
	Symbol       string                 `json:"symbol" db:"symbol"`
	Venues       []string               `json:"venues" db:"-"`
	Notional     float64                `json:"notional" db:"notional"`
	FinalState   string                 `json:"final_state" db:"final_state"`
	Reason       string                 `json:"reason" db:"reason"`
	PnL          float64                `json:"pnl" db:"pnl"`
	SubmittedAt  time.Time              `json:"submitted_at" db:"submitted_at"`
	FinishedAt   time.Time              `json:"finished_at" db:"finished_at"`
	Attributes   map[string]interface{} `json:"attributes" db:"attributes"`
}

// RiskEvent is one risk-evaluator decision worth keeping a durable
// trail of: a hard reject, a soft warn, or an auto-halt trip.
type RiskEvent struct {
	ID        int64     `json:"id" db:"id"`
	Timestamp time.Time `json:"ts" db:"ts"`
	JobID     string    `json:"job_id" db:"job_id"`
	Venue     string    `json:"venue" db:"venue"`
	Kind      string    `json:"kind" db:"kind"` // reject | warn | auto_halt
	Reason    string    `json:"reason" db:"reason"`
}

// JobRepo persists terminal job records.
type JobRepo interface {
	Insert(ctx context.Context, record JobRecord) error
	InsertBatch(ctx context.Context, records []JobRecord) error
	RecentForSymbol(ctx context.Context, symbol string, limit int) ([]JobRecord, error)
}

// RiskEventRepo persists risk-evaluator decisions.
type RiskEventRepo interface {
	Insert(ctx context.Context, event RiskEvent) error
	RecentForVenue(ctx context.Context, venue string, limit int) ([]RiskEvent, error)
}
