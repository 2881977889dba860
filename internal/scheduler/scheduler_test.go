package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/hedgemesh/internal/capital"
	"github.com/sawpanic/hedgemesh/internal/job"
	"github.com/sawpanic/hedgemesh/internal/risk"
	"github.com/sawpanic/hedgemesh/internal/scoring"
	"github.com/sawpanic/hedgemesh/internal/venue"
)

// fakeDispatcher records every job it is asked to run and holds its
// finish callback until the test explicitly resolves it via
// finishOne, so assertions on running/terminal state never race the
// scheduler's own dispatch goroutine.
type fakeDispatcher struct {
	mu      sync.Mutex
	started []string
	pending map[string]func(JobResult)
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{pending: make(map[string]func(JobResult))}
}

func (f *fakeDispatcher) Dispatch(j RunningJob, finish func(JobResult)) {
	f.mu.Lock()
	f.started = append(f.started, j.Job.ID)
	f.pending[j.Job.ID] = finish
	f.mu.Unlock()
}

func (f *fakeDispatcher) finishOne(t *testing.T, jobID string, result JobResult) {
	t.Helper()
	f.mu.Lock()
	finish, ok := f.pending[jobID]
	if ok {
		delete(f.pending, jobID)
	}
	f.mu.Unlock()
	require.True(t, ok, "no pending dispatch for job %s", jobID)
	finish(result)
}

// waitForDispatches blocks until the dispatcher has recorded n started
// jobs, bounding out at a second to keep a stuck test from hanging.
func waitForDispatches(t *testing.T, disp *fakeDispatcher, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		disp.mu.Lock()
		defer disp.mu.Unlock()
		return len(disp.started) == n
	}, time.Second, time.Millisecond)
}

func newTestRig(t *testing.T) (*Scheduler, *fakeDispatcher, *venue.Registry) {
	t.Helper()
	reg := venue.New()
	reg.Register(venue.Config{ID: "A", Equity: 10000, TradeEnabled: true})
	reg.Register(venue.Config{ID: "B", Equity: 10000, TradeEnabled: true})

	coord := capital.New(capital.DefaultConfig(), reg)
	riskEval := risk.New(risk.DefaultConfig())
	disp := newFakeDispatcher()

	s := New(DefaultConfig(), riskEval, coord, disp)
	return s, disp, reg
}

func arbJob(t *testing.T, reg *venue.Registry, edgeBps float64) job.Job {
	t.Helper()
	j, err := job.New(job.StrategyArbitrage, "BTC-USD", []job.Leg{
		{Venue: "A", Side: venue.SideBuy, Quantity: 1},
		{Venue: "B", Side: venue.SideSell, Quantity: 1},
	}, 200, edgeBps, "test", time.Now(), reg)
	require.NoError(t, err)
	return j
}

func favorableTickContext() MarketContext {
	return MarketContext{
		Risk: risk.Context{
			Equity:                     10000,
			TodayVolume:                100000,
			SpreadBps:                  func(v, s string) float64 { return 1 },
			VolatilityStdev:            func(v, s string) float64 { return 0.001 },
			LatencyMsFor:               func(v string) float64 { return 20 },
			LiquidationDistancePct:     func(v, s string) float64 { return 90 },
			FundingMinutesToSettlement: func(v, s string) float64 { return 120 },
		},
		Scoring: scoring.DefaultMarketContext(),
	}
}

func TestSubmit_RejectsWhenPendingFull(t *testing.T) {
	s, _, reg := newTestRig(t)
	s.cfg.MaxPending = 1
	ok, _ := s.Submit(arbJob(t, reg, 20))
	require.True(t, ok)
	ok2, reason := s.Submit(arbJob(t, reg, 20))
	assert.False(t, ok2)
	assert.NotEmpty(t, reason)
}

func TestTick_SchedulesHighQualityJob(t *testing.T) {
	s, disp, reg := newTestRig(t)
	ok, _ := s.Submit(arbJob(t, reg, 20))
	require.True(t, ok)

	report := s.Tick(favorableTickContext())
	assert.Equal(t, 1, report.Scheduled)
	assert.Equal(t, 0, report.Rejected)
	assert.Equal(t, 1, s.RunningCount())
	waitForDispatches(t, disp, 1)
}

func TestTick_HardRejectsNeverDispatch(t *testing.T) {
	s, disp, reg := newTestRig(t)
	s.risk.SetGlobalKillSwitch(true)
	ok, _ := s.Submit(arbJob(t, reg, 20))
	require.True(t, ok)

	report := s.Tick(favorableTickContext())
	assert.Equal(t, 0, report.Scheduled)
	assert.Equal(t, 1, report.Rejected)
	assert.Empty(t, disp.started)
	assert.Equal(t, 0, s.PendingCount())

	terms := s.TerminalRecords()
	require.Len(t, terms, 1)
	assert.Equal(t, job.StatusRejected, terms[0].FinalState)
}

func TestTick_SoftRejectStaysPendingAndPassesAfterModeSwitch(t *testing.T) {
	s, disp, reg := newTestRig(t)
	ok, _ := s.Submit(arbJob(t, reg, 3)) // below balanced MinEdgeBps(4), above aggressive(2)
	require.True(t, ok)

	report := s.Tick(favorableTickContext())
	assert.Equal(t, 0, report.Scheduled)
	assert.Equal(t, 1, report.Rejected)
	assert.Equal(t, 1, report.PendingRemaining)
	assert.Equal(t, 1, s.PendingCount())
	assert.Empty(t, disp.started)
	assert.Empty(t, s.TerminalRecords(), "a soft reject without override must not be recorded terminal")

	require.NoError(t, s.risk.SetMode(risk.ModeAggressive))
	report2 := s.Tick(favorableTickContext())
	assert.Equal(t, 1, report2.Scheduled)
	assert.Equal(t, 0, report2.PendingRemaining)
	waitForDispatches(t, disp, 1)
}

func TestTick_SkipsEntirelyAtGlobalCap(t *testing.T) {
	s, _, reg := newTestRig(t)
	s.cfg.MaxGlobalRunning = 0
	ok, _ := s.Submit(arbJob(t, reg, 20))
	require.True(t, ok)

	report := s.Tick(favorableTickContext())
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.PendingRemaining)
}

func TestTick_RanksByFinalScoreDescending(t *testing.T) {
	s, disp, reg := newTestRig(t)
	// Lower edge still above the soft-reject floor but scored lower.
	lowEdge := arbJob(t, reg, 5)
	highEdge := arbJob(t, reg, 50)
	_, _ = s.Submit(lowEdge)
	_, _ = s.Submit(highEdge)

	report := s.Tick(favorableTickContext())
	require.Equal(t, 2, report.Scheduled)
	require.Len(t, report.ScheduledIDs, 2)
	waitForDispatches(t, disp, 2)
	// ScheduledIDs is built synchronously in rank order; the
	// higher-edge job scores higher and must rank first.
	assert.Equal(t, highEdge.ID, report.ScheduledIDs[0])
	assert.Equal(t, lowEdge.ID, report.ScheduledIDs[1])
}

func TestOnJobFinished_ReleasesCapitalAndUpdatesRisk(t *testing.T) {
	s, disp, reg := newTestRig(t)
	j := arbJob(t, reg, 20)
	_, _ = s.Submit(j)
	report := s.Tick(favorableTickContext())
	require.Equal(t, 1, report.Scheduled)
	waitForDispatches(t, disp, 1)
	require.Equal(t, 1, s.RunningCount())

	disp.finishOne(t, j.ID, JobResult{Success: false, Reason: "simulated fill failure"})

	assert.Equal(t, 0, s.RunningCount())
	terms := s.TerminalRecords()
	require.Len(t, terms, 1)
	assert.Equal(t, job.StatusFailed, terms[0].FinalState)

	snap, ok := s.capital.Snapshot("A")
	require.True(t, ok)
	pool := snap.Pools[venue.PoolArb]
	assert.Equal(t, 0.0, pool.InFlight)
	assert.Equal(t, 0.0, pool.Used)
}

func TestOnJobFinished_UnknownJobIsIgnored(t *testing.T) {
	s, _, _ := newTestRig(t)
	assert.NotPanics(t, func() {
		s.OnJobFinished("nonexistent", JobResult{Success: true})
	})
}

func TestTick_CapitalFailureStaysPending(t *testing.T) {
	s, disp, reg := newTestRig(t)
	// Oversized notional blows the single-venue cap (10% of the S2
	// budget, which is 2000 on a 10000-equity venue at the default 20%
	// arb split) so CanReserve fails and the job must stay pending,
	// not be rejected.
	j, err := job.New(job.StrategyArbitrage, "BTC-USD", []job.Leg{
		{Venue: "A", Side: venue.SideBuy, Quantity: 1},
		{Venue: "B", Side: venue.SideSell, Quantity: 1},
	}, 5000, 20, "test", time.Now(), reg)
	require.NoError(t, err)
	ok1, _ := s.Submit(j)
	require.True(t, ok1)
	ok2, _ := s.Submit(j)
	require.True(t, ok2)

	report := s.Tick(favorableTickContext())
	assert.Equal(t, 0, report.Scheduled)
	assert.Equal(t, 0, report.Rejected)
	assert.Equal(t, 2, report.PendingRemaining)
	assert.Empty(t, disp.started)
}

func TestTerminalRecords_WrapsAtRingSize(t *testing.T) {
	s, _, reg := newTestRig(t)
	s.cfg.TerminalRingSize = 2
	s.term = make([]job.Record, 2)
	s.risk.SetGlobalKillSwitch(true)

	for i := 0; i < 3; i++ {
		_, _ = s.Submit(arbJob(t, reg, 20))
		s.Tick(favorableTickContext())
	}

	terms := s.TerminalRecords()
	assert.Len(t, terms, 2)
}
