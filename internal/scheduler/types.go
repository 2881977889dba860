package scheduler

import (
	"time"

	"github.com/sawpanic/hedgemesh/internal/capital"
	"github.com/sawpanic/hedgemesh/internal/job"
	"github.com/sawpanic/hedgemesh/internal/risk"
	"github.com/sawpanic/hedgemesh/internal/scoring"
)

// MarketContext bundles the per-tick inputs C4 and C2 each need. The
// scheduler does not interpret any of these fields itself; it only
// threads them through to Evaluate and Score.
type MarketContext struct {
	Risk    risk.Context
	Scoring scoring.MarketContext
}

// RunningJob is what a Dispatcher receives: the job plus the capital
// reservation backing it, so the dispatcher (and eventually the
// execution engine) knows exactly what was soft-locked.
type RunningJob struct {
	Job         job.Job
	Reservation *capital.Reservation
	StartedAt   time.Time
}

// Dispatcher hands a reserved job off for execution. The scheduler
// always invokes Dispatch from its own goroutine so a slow or blocking
// Dispatch cannot stall a tick; Dispatch is expected to report back
// exactly once via finish, from any goroutine, once the job resolves.
type Dispatcher interface {
	Dispatch(j RunningJob, finish func(JobResult))
}

// JobResult is what OnJobFinished needs to reconcile capital and risk
// state for a completed or failed job.
type JobResult struct {
	Success bool
	Reason  string
	PnL     float64
	Volume  float64
	Fees    float64
}

// TickReport summarizes the outcome of a single Tick call.
type TickReport struct {
	Scheduled        int
	Rejected         int
	Skipped          int
	PendingRemaining int
	RunningTotal     int

	ScheduledIDs []string
	RejectedIDs  []string
}

// pendingEntry is a queued job awaiting evaluation, carrying its
// submit order for stable tie-breaking during ranking.
type pendingEntry struct {
	job      job.Job
	submitTS time.Time
	seq      uint64
}

// candidate is a pending entry that survived both the risk and capital
// gates this tick, carrying the score it will be ranked by.
type candidate struct {
	entry   pendingEntry
	verdict risk.Verdict
	score   scoring.Score
}
