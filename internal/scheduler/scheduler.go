package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/hedgemesh/internal/capital"
	"github.com/sawpanic/hedgemesh/internal/job"
	"github.com/sawpanic/hedgemesh/internal/risk"
	"github.com/sawpanic/hedgemesh/internal/scoring"
)

// Scheduler is C5. A single goroutine is expected to call Tick
// repeatedly (the caller's ticker loop); Submit and OnJobFinished are
// safe to call concurrently from any goroutine, including from within
// a Dispatcher's finish callback.
type Scheduler struct {
	cfg        Config
	risk       *risk.Evaluator
	capital    *capital.Coordinator
	dispatcher Dispatcher

	mu        sync.Mutex
	pending   []pendingEntry
	nextSeq   uint64
	running   map[string]runningEntry
	venueLoad map[string]int

	termMu  sync.Mutex
	term    []job.Record
	termPos int
	termLen int
}

type runningEntry struct {
	job         job.Job
	reservation *capital.Reservation
	venues      []string
	startedAt   time.Time
}

// New creates a scheduler bound to a risk evaluator, capital
// coordinator, and dispatcher.
func New(cfg Config, riskEval *risk.Evaluator, coordinator *capital.Coordinator, dispatcher Dispatcher) *Scheduler {
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = 10000
	}
	if cfg.TerminalRingSize <= 0 {
		cfg.TerminalRingSize = 10000
	}
	return &Scheduler{
		cfg:        cfg,
		risk:       riskEval,
		capital:    coordinator,
		dispatcher: dispatcher,
		running:    make(map[string]runningEntry),
		venueLoad:  make(map[string]int),
		term:       make([]job.Record, cfg.TerminalRingSize),
	}
}

// Submit enqueues j for evaluation on the next Tick. It rejects
// outright once the pending queue is at MaxPending, so a producer
// flood degrades as backpressure rather than unbounded memory growth.
func (s *Scheduler) Submit(j job.Job) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) >= s.cfg.MaxPending {
		return false, "pending queue full"
	}
	s.nextSeq++
	s.pending = append(s.pending, pendingEntry{job: j, submitTS: j.SubmitTS, seq: s.nextSeq})
	return true, ""
}

// PendingCount reports the current pending-queue depth.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// RunningCount reports the current number of in-flight jobs.
func (s *Scheduler) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Tick runs one deterministic evaluate-rank-dispatch cycle:
//
//  1. Snapshot pending jobs and running/venue load counters.
//  2. If the global running count is already at cap, skip the whole
//     tick (nothing new can be dispatched regardless of rank).
//  3. Evaluate every pending job against the risk evaluator. Hard
//     rejects (kill switch, auto_halt, daily loss, blacklists) are
//     pulled from pending and recorded terminal. Unoverridden soft
//     rejects (min edge, failure streak, final score) stay pending —
//     they may pass on a later tick once conditions or the risk mode
//     change. Everything else survives as a candidate.
//  4. Filter survivors through CanReserve; capital failures stay
//     pending untouched, since capital may free up by a later tick.
//  5. Rank survivors by final score descending, tie-broken by earlier
//     submit sequence.
//  6. Walk the ranked list greedily: check the global cap, check the
//     per-venue cap for every leg venue, attempt Reserve, and on
//     success move the job to running and dispatch it. A job that
//     fails any of these checks is left pending, not rejected.
//  7. Return a TickReport describing what happened.
func (s *Scheduler) Tick(ctx MarketContext) TickReport {
	s.mu.Lock()
	snapshot := make([]pendingEntry, len(s.pending))
	copy(snapshot, s.pending)
	runningTotal := len(s.running)
	s.mu.Unlock()

	report := TickReport{RunningTotal: runningTotal}

	if runningTotal >= s.cfg.MaxGlobalRunning {
		report.Skipped = len(snapshot)
		report.PendingRemaining = len(snapshot)
		return report
	}

	stillPending := make([]pendingEntry, 0, len(snapshot))
	candidates := make([]candidate, 0, len(snapshot))
	rejectedIDs := make([]string, 0)

	for _, entry := range snapshot {
		verdict := s.risk.Evaluate(entry.job, ctx.Risk)
		if verdict.Decision == risk.DecisionReject {
			if verdict.Hard {
				s.recordTerminal(job.Record{
					Job:        withStatus(entry.job, job.StatusRejected),
					FinalState: job.StatusRejected,
					Reason:     verdict.Reason,
					FinishedAt: time.Now(),
				})
				rejectedIDs = append(rejectedIDs, entry.job.ID)
				continue
			}
			// Soft reject without override: stays pending, may pass on
			// a later tick once conditions or the risk mode change.
			stillPending = append(stillPending, entry)
			rejectedIDs = append(rejectedIDs, entry.job.ID)
			continue
		}

		if ok, _ := s.capital.CanReserve(entry.job); !ok {
			stillPending = append(stillPending, entry)
			continue
		}

		sc := scoring.Score(entry.job, ctx.Scoring)
		candidates = append(candidates, candidate{entry: entry, verdict: verdict, score: sc})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score.FinalScore != candidates[j].score.FinalScore {
			return candidates[i].score.FinalScore > candidates[j].score.FinalScore
		}
		return candidates[i].entry.seq < candidates[j].entry.seq
	})

	scheduledIDs := make([]string, 0)
	for _, c := range candidates {
		if s.tryDispatch(c) {
			scheduledIDs = append(scheduledIDs, c.entry.job.ID)
			continue
		}
		stillPending = append(stillPending, c.entry)
	}

	s.mu.Lock()
	s.pending = stillPending
	report.RunningTotal = len(s.running)
	s.mu.Unlock()

	report.Scheduled = len(scheduledIDs)
	report.Rejected = len(rejectedIDs)
	report.PendingRemaining = len(stillPending)
	report.ScheduledIDs = scheduledIDs
	report.RejectedIDs = rejectedIDs
	return report
}

// tryDispatch attempts the final global/per-venue cap check plus
// Reserve for one candidate, and on success starts it running and
// hands it to the dispatcher. It returns false (leaving the job
// pending) on any capacity or reservation failure.
func (s *Scheduler) tryDispatch(c candidate) bool {
	venues := c.entry.job.Venues()

	s.mu.Lock()
	if len(s.running) >= s.cfg.MaxGlobalRunning {
		s.mu.Unlock()
		return false
	}
	if s.cfg.MaxPerVenue > 0 {
		for _, v := range venues {
			if s.venueLoad[v] >= s.cfg.MaxPerVenue {
				s.mu.Unlock()
				return false
			}
		}
	}
	s.mu.Unlock()

	reservation, err := s.capital.Reserve(c.entry.job)
	if err != nil {
		return false
	}

	s.mu.Lock()
	s.running[c.entry.job.ID] = runningEntry{
		job:         c.entry.job,
		reservation: reservation,
		venues:      venues,
		startedAt:   time.Now(),
	}
	for _, v := range venues {
		s.venueLoad[v]++
	}
	s.mu.Unlock()

	running := RunningJob{Job: withStatus(c.entry.job, job.StatusRunning), Reservation: reservation, StartedAt: time.Now()}
	go s.dispatcher.Dispatch(running, func(result JobResult) {
		s.OnJobFinished(c.entry.job.ID, result)
	})
	return true
}

// OnJobFinished reconciles a completed or failed job: it releases the
// capital reservation, updates the risk evaluator's failure streak,
// decrements venue load, records a terminal entry, and removes the
// job from running. Safe to call from any goroutine, including from
// within the Dispatcher's own finish callback.
func (s *Scheduler) OnJobFinished(jobID string, result JobResult) {
	s.mu.Lock()
	re, ok := s.running[jobID]
	if !ok {
		s.mu.Unlock()
		log.Warn().Str("job_id", jobID).Msg("OnJobFinished called for unknown or already-finished job")
		return
	}
	delete(s.running, jobID)
	for _, v := range re.venues {
		if s.venueLoad[v] > 0 {
			s.venueLoad[v]--
		}
	}
	s.mu.Unlock()

	outcome := capital.OutcomeFailed
	status := job.StatusFailed
	if result.Success {
		outcome = capital.OutcomeFilled
		status = job.StatusCompleted
	}
	s.capital.Release(re.reservation, outcome, result.PnL, result.Volume, result.Fees)

	if result.Success {
		s.risk.RecordSuccess()
	} else {
		s.risk.RecordFailure(result.Reason)
	}

	s.recordTerminal(job.Record{
		Job:        withStatus(re.job, status),
		FinalState: status,
		Reason:     result.Reason,
		FinishedAt: time.Now(),
	})
}

// recordTerminal writes into the bounded terminal ring, overwriting
// the oldest entry once full.
func (s *Scheduler) recordTerminal(r job.Record) {
	s.termMu.Lock()
	defer s.termMu.Unlock()
	s.term[s.termPos] = r
	s.termPos = (s.termPos + 1) % len(s.term)
	if s.termLen < len(s.term) {
		s.termLen++
	}
}

// TerminalRecords returns a copy of the terminal ring's current
// contents, most-recent last.
func (s *Scheduler) TerminalRecords() []job.Record {
	s.termMu.Lock()
	defer s.termMu.Unlock()
	out := make([]job.Record, s.termLen)
	start := (s.termPos - s.termLen + len(s.term)) % len(s.term)
	for i := 0; i < s.termLen; i++ {
		out[i] = s.term[(start+i)%len(s.term)]
	}
	return out
}

func withStatus(j job.Job, status job.Status) job.Job {
	j.Status = status
	return j
}
