// Package config loads the control plane's YAML configuration and
// holds it behind a lock-free, hot-reloadable pointer. Grounded on
// internal/config/guards.go's load-from-file idiom (gopkg.in/yaml
// unmarshal into a tagged struct, wrapped error on read/parse
// failure) and internal/ops/switches.go's SwitchManager shape,
// generalized from a mutex-guarded struct to an atomic.Pointer swap so
// a reload between scheduler ticks never blocks a tick that's already
// reading the old config.
package config

import (
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/hedgemesh/internal/capital"
	"github.com/sawpanic/hedgemesh/internal/execution"
	"github.com/sawpanic/hedgemesh/internal/marketdata"
	"github.com/sawpanic/hedgemesh/internal/risk"
	"github.com/sawpanic/hedgemesh/internal/scheduler"
	"github.com/sawpanic/hedgemesh/internal/supervisor"
	"github.com/sawpanic/hedgemesh/internal/venue"
)

// Root is the full, YAML-loaded configuration tree for one control
// plane instance.
type Root struct {
	Venues     []venue.Config     `yaml:"venues"`
	Marketdata marketdata.Config  `yaml:"marketdata"`
	Capital    capital.Config     `yaml:"capital"`
	Risk       risk.Config        `yaml:"risk"`
	Scheduler  scheduler.Config   `yaml:"scheduler"`
	Supervisor supervisor.Config  `yaml:"supervisor"`
	Execution  execution.Config   `yaml:"execution"`
	Switches   SwitchConfig       `yaml:"switches"`
	HTTP       HTTPConfig         `yaml:"http"`
	Postgres   PostgresConfig     `yaml:"postgres"`
}

// SwitchConfig holds the operator emergency toggles, in the same
// emergency/provider/venue shape the teacher's ops package uses.
type SwitchConfig struct {
	Emergency EmergencySwitchConfig `yaml:"emergency"`
	Venues    map[string]bool       `yaml:"venues"`
}

// EmergencySwitchConfig mirrors the teacher's global emergency
// switches, narrowed to what this control plane actually gates.
type EmergencySwitchConfig struct {
	GlobalKillSwitch bool `yaml:"global_kill_switch"`
	ReadOnlyMode     bool `yaml:"read_only_mode"`
}

// HTTPConfig configures the operator HTTP API.
type HTTPConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// PostgresConfig configures the persistence layer's database
// connection.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Load reads and parses a YAML config file from disk.
func Load(path string) (*Root, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var root Root
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	applyDefaults(&root)
	return &root, nil
}

func applyDefaults(r *Root) {
	if r.Marketdata == (marketdata.Config{}) {
		r.Marketdata = marketdata.DefaultConfig()
	}
	if r.Capital == (capital.Config{}) {
		r.Capital = capital.DefaultConfig()
	}
	if r.Scheduler == (scheduler.Config{}) {
		r.Scheduler = scheduler.DefaultConfig()
	}
	if r.Supervisor == (supervisor.Config{}) {
		r.Supervisor = supervisor.DefaultConfig()
	}
	if r.Execution == (execution.Config{}) {
		r.Execution = execution.DefaultConfig()
	}
	if r.Risk.InitialMode == "" {
		r.Risk = risk.DefaultConfig()
	}
	if r.HTTP.ListenAddr == "" {
		r.HTTP.ListenAddr = ":8080"
	}
	if r.Postgres.TimeoutSeconds <= 0 {
		r.Postgres.TimeoutSeconds = 5
	}
}

// Store holds the current Root behind an atomic pointer so readers
// never block on a concurrent Reload. Grounded on the teacher's
// SwitchManager, which serves the same "read-heavy, rarely-updated
// config" shape under a sync.RWMutex; this control plane swaps the
// whole tree instead of mutating fields in place, so a reader either
// sees the entirely-old or entirely-new config, never a partial edit.
type Store struct {
	ptr atomic.Pointer[Root]

	// manualOverride is the operator's live soft-reject override
	// toggle (POST /control/override). It lives outside Root because
	// it's runtime operator state, not something a config file reload
	// should ever touch or clear.
	manualOverride atomic.Bool
}

// NewStore creates a Store seeded with an initial Root.
func NewStore(initial *Root) *Store {
	s := &Store{}
	s.ptr.Store(initial)
	return s
}

// SetManualOverride flips the live soft-reject override toggle.
func (s *Store) SetManualOverride(on bool) {
	s.manualOverride.Store(on)
}

// ManualOverrideOn reports the current soft-reject override setting.
func (s *Store) ManualOverrideOn() bool {
	return s.manualOverride.Load()
}

// Current returns the currently active configuration.
func (s *Store) Current() *Root {
	return s.ptr.Load()
}

// Reload re-reads the config file from disk and atomically swaps it
// in; a malformed file leaves the previous configuration untouched.
func (s *Store) Reload(path string) error {
	next, err := Load(path)
	if err != nil {
		return err
	}
	s.ptr.Store(next)
	return nil
}

// IsGlobalKillSwitchOn reports the current global kill switch setting.
func (s *Store) IsGlobalKillSwitchOn() bool {
	return s.Current().Switches.Emergency.GlobalKillSwitch
}

// IsVenueEnabled reports whether a venue's switch is on; unknown
// venues default to enabled so a config that never mentions a venue
// doesn't silently disable it.
func (s *Store) IsVenueEnabled(venueID string) bool {
	on, known := s.Current().Switches.Venues[venueID]
	if !known {
		return true
	}
	return on
}
