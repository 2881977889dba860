// Package supervisor implements C7, the Connection Supervisor: a
// per-(venue, role) circuit breaker and health tracker, token-bucket
// rate limiting, and global/per-venue kill switches gating every
// trading request. Grounded on the teacher's circuit-breaker Manager
// (internal/net/circuit/circuit.go, generalized from a single Closed/
// Open/Half-Open machine to the five-state Disconnected/Connecting/
// Connected/Degraded/CircuitOpen machine this system needs) and its
// per-host token-bucket limiter (internal/net/ratelimit/limiter.go,
// built on golang.org/x/time/rate).
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Role distinguishes a venue's market-data connection (no credentials
// required) from its trading connection (credentials, kill-switch and
// trade_enabled gated).
type Role string

const (
	RoleMarketData Role = "market-data"
	RoleTrading    Role = "trading"
)

// State is a connection's position in the circuit-breaker state
// machine.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDegraded     State = "degraded"
	StateCircuitOpen  State = "circuit_open"
)

// Config holds the per-connection tunables.
type Config struct {
	MaxLatencyMs     float64       `yaml:"max_latency_ms"` // above this, a success still marks Degraded
	OpenStreak       int           `yaml:"open_streak"`    // consecutive failures before CircuitOpen, default 5
	HalfOpenWait     time.Duration `yaml:"half_open_wait"` // cooldown before a CircuitOpen connection may probe again
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
	RateLimitRPS     float64       `yaml:"rate_limit_rps"`
	RateLimitBurst   int           `yaml:"rate_limit_burst"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay    time.Duration `yaml:"retry_max_delay"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxLatencyMs:     500,
		OpenStreak:       5,
		HalfOpenWait:     30 * time.Second,
		HeartbeatTimeout: 15 * time.Second,
		RateLimitRPS:     10,
		RateLimitBurst:   20,
		MaxRetries:       3,
		RetryBaseDelay:   100 * time.Millisecond,
		RetryMaxDelay:    5 * time.Second,
	}
}

// ConnectionHealth is one (venue, role) connection's observable state.
type ConnectionHealth struct {
	VenueID       string
	Role          Role
	State         State
	LastHeartbeat time.Time
	ErrorStreak   int
	OpenedAt      time.Time
	LastLatencyMs float64
}

type connection struct {
	mu      sync.Mutex
	health  ConnectionHealth
	limiter *rate.Limiter
	cfg     Config

	// tradeBreaker is a second, independent circuit specifically for
	// trading-role connections: it trips on the same consecutive- or
	// rate-of-failure rule the rest of the book uses for its breakers,
	// as a backstop that keeps tripping even if a bug ever let the
	// State machine above drift out of CircuitOpen.
	tradeBreaker *gobreaker.CircuitBreaker
}

var errTradeResultFailure = errors.New("trading request failed")

// newTradeBreaker builds the trading breaker; its open period matches
// halfOpenWait so it does not block the probe Allow admits after the
// circuit's cooldown.
func newTradeBreaker(venueID string, halfOpenWait time.Duration) *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{Name: "trading:" + venueID}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	if halfOpenWait > 0 {
		st.Timeout = halfOpenWait
	}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		if counts.Requests < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
	}
	return gobreaker.NewCircuitBreaker(st)
}

// Supervisor is C7. It tracks one connection object per (venue, role)
// pair plus global and per-venue trading kill switches.
type Supervisor struct {
	cfg Config

	mu    sync.Mutex
	conns map[string]*connection

	killMu        sync.RWMutex
	killGlobal    bool
	killVenue     map[string]bool
	tradeEnabled  map[string]bool
}

// New creates a supervisor with default per-connection tunables cfg
// applied to every connection it lazily creates.
func New(cfg Config) *Supervisor {
	if cfg.OpenStreak <= 0 {
		cfg.OpenStreak = 5
	}
	return &Supervisor{
		cfg:          cfg,
		conns:        make(map[string]*connection),
		killVenue:    make(map[string]bool),
		tradeEnabled: make(map[string]bool),
	}
}

func connKey(venueID string, role Role) string {
	return venueID + "|" + string(role)
}

// RegisterTrading marks whether trade_enabled is set for a venue; a
// trading-role request is refused while this is false, independent of
// circuit state.
func (s *Supervisor) RegisterTrading(venueID string, tradeEnabled bool) {
	s.killMu.Lock()
	s.tradeEnabled[venueID] = tradeEnabled
	s.killMu.Unlock()
}

// SetGlobalKillSwitch flips the global trading kill switch.
func (s *Supervisor) SetGlobalKillSwitch(on bool) {
	s.killMu.Lock()
	s.killGlobal = on
	s.killMu.Unlock()
}

// SetVenueKillSwitch flips one venue's trading kill switch.
func (s *Supervisor) SetVenueKillSwitch(venueID string, on bool) {
	s.killMu.Lock()
	if on {
		s.killVenue[venueID] = true
	} else {
		delete(s.killVenue, venueID)
	}
	s.killMu.Unlock()
}

func (s *Supervisor) ensureConn(venueID string, role Role) *connection {
	key := connKey(venueID, role)
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conns[key]; ok {
		return c
	}
	c := &connection{
		health: ConnectionHealth{VenueID: venueID, Role: role, State: StateDisconnected},
		cfg:    s.cfg,
	}
	if s.cfg.RateLimitRPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(s.cfg.RateLimitRPS), s.cfg.RateLimitBurst)
	}
	if role == RoleTrading {
		c.tradeBreaker = newTradeBreaker(venueID, s.cfg.HalfOpenWait)
	}
	s.conns[key] = c
	return c
}

// Health returns a copy of one connection's current health, or false
// if it has never been observed.
func (s *Supervisor) Health(venueID string, role Role) (ConnectionHealth, bool) {
	s.mu.Lock()
	c, ok := s.conns[connKey(venueID, role)]
	s.mu.Unlock()
	if !ok {
		return ConnectionHealth{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.health, true
}

// Connect transitions Connecting -> Connected on success, or
// Connecting -> Disconnected on failure.
func (s *Supervisor) Connect(venueID string, role Role, err error) {
	c := s.ensureConn(venueID, role)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.health.State = StateConnecting
	if err != nil {
		c.health.State = StateDisconnected
		return
	}
	c.health.State = StateConnected
	c.health.ErrorStreak = 0
}

// Heartbeat records a liveness pulse. If the caller's own heartbeat
// loop calls CheckHeartbeat afterward and finds it stale, the circuit
// opens; no reason is recorded on the connection.
func (s *Supervisor) Heartbeat(venueID string, role Role) {
	c := s.ensureConn(venueID, role)
	c.mu.Lock()
	c.health.LastHeartbeat = time.Now()
	c.mu.Unlock()
}

// CheckHeartbeat opens the circuit if the connection has gone silent
// longer than the configured heartbeat timeout. Intended to be called
// from a per-connection heartbeat loop ticker.
func (s *Supervisor) CheckHeartbeat(venueID string, role Role) {
	c := s.ensureConn(venueID, role)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.health.LastHeartbeat.IsZero() {
		return
	}
	if time.Since(c.health.LastHeartbeat) > c.cfg.HeartbeatTimeout && c.health.State != StateCircuitOpen {
		c.health.State = StateCircuitOpen
		c.health.OpenedAt = time.Now()
	}
}

// AllowResult is what Allow reports before a caller attempts a
// request, so trading callers can short-circuit without ever issuing
// the underlying call.
type AllowResult struct {
	Allowed bool
	Reason  string
}

// Allow reports whether a request against (venueID, role) may proceed
// right now: kill switches (trading role only), circuit state, and
// rate-limit availability are all evaluated without mutating state
// beyond the half-open probe transition the state machine itself
// requires.
func (s *Supervisor) Allow(ctx context.Context, venueID string, role Role) AllowResult {
	if role == RoleTrading {
		s.killMu.RLock()
		killed := s.killGlobal || s.killVenue[venueID] || !s.tradeEnabled[venueID]
		s.killMu.RUnlock()
		if killed {
			return AllowResult{Allowed: false, Reason: "trading disabled: kill switch or trade_enabled=false"}
		}
	}

	c := s.ensureConn(venueID, role)
	c.mu.Lock()
	switch c.health.State {
	case StateCircuitOpen:
		if time.Since(c.health.OpenedAt) >= c.cfg.HalfOpenWait {
			c.health.State = StateDegraded
		} else {
			c.mu.Unlock()
			return AllowResult{Allowed: false, Reason: "circuit open"}
		}
	}
	c.mu.Unlock()

	if c.tradeBreaker != nil && c.tradeBreaker.State() == gobreaker.StateOpen {
		return AllowResult{Allowed: false, Reason: "trading breaker open"}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return AllowResult{Allowed: false, Reason: fmt.Sprintf("rate limit wait: %v", err)}
		}
	}
	return AllowResult{Allowed: true}
}

// RecordResult feeds a completed request's outcome back into the
// state machine: success below MaxLatencyMs clears Degraded and
// resets the error streak; success above it marks Degraded; failure
// increments the streak and opens the circuit once it reaches
// OpenStreak.
func (s *Supervisor) RecordResult(venueID string, role Role, latencyMs float64, success bool) {
	c := s.ensureConn(venueID, role)

	if c.tradeBreaker != nil {
		_, _ = c.tradeBreaker.Execute(func() (interface{}, error) {
			if success {
				return nil, nil
			}
			return nil, errTradeResultFailure
		})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.health.LastLatencyMs = latencyMs

	if success {
		c.health.ErrorStreak = 0
		if latencyMs > c.cfg.MaxLatencyMs {
			c.health.State = StateDegraded
		} else {
			c.health.State = StateConnected
		}
		return
	}

	c.health.ErrorStreak++
	if c.health.ErrorStreak >= c.cfg.OpenStreak {
		c.health.State = StateCircuitOpen
		c.health.OpenedAt = time.Now()
		return
	}
	if c.health.State == StateConnected {
		c.health.State = StateDegraded
	}
}

// IsDegraded reports whether a venue's trading connection is anything
// but fully Connected, for C6's forced-degradation check. A trading
// connection the supervisor has never observed counts as not degraded.
func (s *Supervisor) IsDegraded(venueID string) bool {
	h, ok := s.Health(venueID, RoleTrading)
	if !ok {
		return false
	}
	return h.State != StateConnected
}

// RetryBackoff returns the delay before attempt number n (1-indexed),
// doubling from RetryBaseDelay and capped at RetryMaxDelay.
func (s *Supervisor) RetryBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := s.cfg.RetryBaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d > s.cfg.RetryMaxDelay {
			return s.cfg.RetryMaxDelay
		}
	}
	return d
}
