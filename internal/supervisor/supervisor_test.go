package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/hedgemesh/internal/errs"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.OpenStreak = 3
	cfg.HalfOpenWait = 20 * time.Millisecond
	cfg.RateLimitRPS = 0 // disable limiter in most tests to avoid timing flakiness
	return cfg
}

func TestAllow_TradingBlockedByGlobalKillSwitch(t *testing.T) {
	s := New(testConfig())
	s.RegisterTrading("A", true)
	s.SetGlobalKillSwitch(true)
	res := s.Allow(context.Background(), "A", RoleTrading)
	assert.False(t, res.Allowed)
}

func TestAllow_TradingBlockedByTradeDisabled(t *testing.T) {
	s := New(testConfig())
	s.RegisterTrading("A", false)
	res := s.Allow(context.Background(), "A", RoleTrading)
	assert.False(t, res.Allowed)
}

func TestAllow_MarketDataIgnoresKillSwitch(t *testing.T) {
	s := New(testConfig())
	s.SetGlobalKillSwitch(true)
	res := s.Allow(context.Background(), "A", RoleMarketData)
	assert.True(t, res.Allowed)
}

func TestRecordResult_OpensCircuitAfterStreak(t *testing.T) {
	s := New(testConfig())
	s.RegisterTrading("A", true)
	for i := 0; i < 3; i++ {
		s.RecordResult("A", RoleTrading, 10, false)
	}
	h, ok := s.Health("A", RoleTrading)
	require.True(t, ok)
	assert.Equal(t, StateCircuitOpen, h.State)

	res := s.Allow(context.Background(), "A", RoleTrading)
	assert.False(t, res.Allowed)
	assert.Equal(t, "circuit open", res.Reason)
}

func TestCircuit_HalfOpenAfterCooldown(t *testing.T) {
	s := New(testConfig())
	s.RegisterTrading("A", true)
	for i := 0; i < 3; i++ {
		s.RecordResult("A", RoleTrading, 10, false)
	}
	time.Sleep(30 * time.Millisecond)

	res := s.Allow(context.Background(), "A", RoleTrading)
	assert.True(t, res.Allowed)
	h, _ := s.Health("A", RoleTrading)
	assert.Equal(t, StateDegraded, h.State)
}

func TestRecordResult_TradeBreakerTripsIndependentlyOfCircuitState(t *testing.T) {
	cfg := testConfig()
	cfg.OpenStreak = 10 // keep the main state machine's circuit closed
	s := New(cfg)
	s.RegisterTrading("A", true)

	for i := 0; i < 3; i++ {
		s.RecordResult("A", RoleTrading, 10, false)
	}

	h, ok := s.Health("A", RoleTrading)
	require.True(t, ok)
	assert.NotEqual(t, StateCircuitOpen, h.State)

	res := s.Allow(context.Background(), "A", RoleTrading)
	assert.False(t, res.Allowed)
	assert.Equal(t, "trading breaker open", res.Reason)
}

func TestRecordResult_HighLatencyMarksDegraded(t *testing.T) {
	s := New(testConfig())
	s.RecordResult("A", RoleMarketData, s.cfg.MaxLatencyMs+1, true)
	h, _ := s.Health("A", RoleMarketData)
	assert.Equal(t, StateDegraded, h.State)
}

func TestRecordResult_SuccessClearsStreakAndDegradation(t *testing.T) {
	s := New(testConfig())
	s.RecordResult("A", RoleMarketData, 10, false)
	s.RecordResult("A", RoleMarketData, 10, true)
	h, _ := s.Health("A", RoleMarketData)
	assert.Equal(t, StateConnected, h.State)
	assert.Equal(t, 0, h.ErrorStreak)
}

func TestCheckHeartbeat_OpensOnTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.HeartbeatTimeout = 10 * time.Millisecond
	s := New(cfg)
	s.Heartbeat("A", RoleMarketData)
	time.Sleep(20 * time.Millisecond)
	s.CheckHeartbeat("A", RoleMarketData)
	h, _ := s.Health("A", RoleMarketData)
	assert.Equal(t, StateCircuitOpen, h.State)
}

func TestIsDegraded_TrueWhenNotConnected(t *testing.T) {
	s := New(testConfig())
	assert.False(t, s.IsDegraded("A")) // never observed, treated as not-degraded
	s.RecordResult("A", RoleTrading, 10, false)
	assert.True(t, s.IsDegraded("A"))
}

func TestRetryBackoff_DoublesAndCaps(t *testing.T) {
	cfg := testConfig()
	cfg.RetryBaseDelay = 10 * time.Millisecond
	cfg.RetryMaxDelay = 25 * time.Millisecond
	s := New(cfg)
	assert.Equal(t, 10*time.Millisecond, s.RetryBackoff(1))
	assert.Equal(t, 20*time.Millisecond, s.RetryBackoff(2))
	assert.Equal(t, 25*time.Millisecond, s.RetryBackoff(3))
}

func TestDo_RetriesOnlyRetryableErrors(t *testing.T) {
	s := New(testConfig())
	attempts := 0
	err := s.Do(context.Background(), nil, func(ctx context.Context) error {
		attempts++
		return errs.New(errs.KindOrderRejected, "not retryable")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_RetriesTransportErrorsUpToMax(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 2
	cfg.RetryBaseDelay = time.Millisecond
	s := New(cfg)
	attempts := 0
	err := s.Do(context.Background(), nil, func(ctx context.Context) error {
		attempts++
		return errs.New(errs.KindTransport, "connection reset")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_SucceedsWithoutExhaustingRetries(t *testing.T) {
	s := New(testConfig())
	attempts := 0
	err := s.Do(context.Background(), nil, func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return errs.New(errs.KindTimeout, "timed out")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestDo_CustomPredicate(t *testing.T) {
	s := New(testConfig())
	custom := func(err error) bool { return errors.Is(err, errBoom) }
	attempts := 0
	err := s.Do(context.Background(), custom, func(ctx context.Context) error {
		attempts++
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, s.cfg.MaxRetries+1, attempts)
}

var errBoom = errors.New("boom")
