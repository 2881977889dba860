// Package venue holds the venue registry: the configured set of
// exchanges the control plane knows about, their equity, pool
// percentages and trading flags. It has no behavior of its own beyond
// lookups — C3/C4/C7 each layer venue-keyed state on top of it.
package venue

import (
	"fmt"
	"sort"
	"sync"
)

// Pool identifies one of the three capital partitions of a venue's
// equity.
type Pool string

const (
	PoolWash    Pool = "S1"
	PoolArb     Pool = "S2"
	PoolReserve Pool = "S3"
)

// Side is a leg direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Config is the static, operator-supplied description of a venue.
type Config struct {
	ID             string         `yaml:"id"`
	Equity         float64        `yaml:"equity"`
	PoolPct        map[Pool]float64 `yaml:"pool_pct"` // defaults 70/20/10
	TradeEnabled   bool           `yaml:"trade_enabled"`
	CredentialEnv  []string       `yaml:"credential_env_vars"`
	RateLimitRPS   float64        `yaml:"rate_limit_rps"`
	RateLimitBurst int            `yaml:"rate_limit_burst"`
	RESTBaseURL    string         `yaml:"rest_base_url"`
	WSFeedURL      string         `yaml:"ws_feed_url"` // empty means no live quote feed for this venue
	SafeMode       bool           `yaml:"safe_mode"`
	SafeModePools  []Pool         `yaml:"safe_mode_pools"` // default {S1, S3}
}

// DefaultPoolPct is the default 70/20/10 wash/arb/reserve split.
func DefaultPoolPct() map[Pool]float64 {
	return map[Pool]float64{PoolWash: 0.70, PoolArb: 0.20, PoolReserve: 0.10}
}

// DefaultSafeModePools is the default pool set a safe-mode venue
// still allows.
func DefaultSafeModePools() []Pool {
	return []Pool{PoolWash, PoolReserve}
}

// Registry is the concurrency-safe, in-process venue catalog.
// Registration and deregistration are rare operator actions; lookups
// happen on every hot path in C1/C3/C4/C7, guarded by a single mutex
// since the map is small and contention is dominated by the per-venue
// state layered on top in C3/C7, not by registry lookups themselves.
type Registry struct {
	mu      sync.Mutex
	venues  map[string]Config
}

// New creates an empty venue registry.
func New() *Registry {
	return &Registry{venues: make(map[string]Config)}
}

// Register adds or replaces a venue's static configuration.
func (r *Registry) Register(cfg Config) {
	if cfg.PoolPct == nil {
		cfg.PoolPct = DefaultPoolPct()
	}
	if len(cfg.SafeModePools) == 0 {
		cfg.SafeModePools = DefaultSafeModePools()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.venues[cfg.ID] = cfg
}

// Deregister removes a venue from the registry.
func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.venues, id)
}

// Get returns a venue's config and whether it exists.
func (r *Registry) Get(id string) (Config, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.venues[id]
	return c, ok
}

// UpdateEquity updates a venue's equity in place, preserving every
// other field.
func (r *Registry) UpdateEquity(id string, equity float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.venues[id]
	if !ok {
		return fmt.Errorf("venue %s not registered", id)
	}
	c.Equity = equity
	r.venues[id] = c
	return nil
}

// IDs returns all registered venue IDs, sorted — used by C3's
// cross-venue lock ordering.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.venues))
	for id := range r.venues {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns a snapshot of every registered venue config.
func (r *Registry) All() []Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Config, 0, len(r.venues))
	for _, c := range r.venues {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
