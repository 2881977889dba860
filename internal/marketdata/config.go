package marketdata

import "time"

// Config holds the quote pipeline's configurable thresholds.
type Config struct {
	StaleMs             int64   `yaml:"stale_ms"`               // default 2000
	MaxDeviation        float64 `yaml:"max_deviation"`          // default 0.01 (1%)
	LatencyWarnMs       int64   `yaml:"latency_warn_ms"`        // default 50
	LatencyBadMs        int64   `yaml:"latency_bad_ms"`         // default 200
	FreshnessWarnMs     int64   `yaml:"freshness_warn_ms"`      // default 500
	FreshnessBadMs      int64   `yaml:"freshness_bad_ms"`       // default 1500
	VarianceWarnPct     float64 `yaml:"variance_warn_pct"`      // default 0.001 (0.1%)
	VarianceBadPct      float64 `yaml:"variance_bad_pct"`       // default 0.005 (0.5%)
	QualityGoodThresh   float64 `yaml:"quality_good_threshold"` // default 80
	QualityWarnThresh   float64 `yaml:"quality_warn_threshold"` // default 50
	ShardCount          int     `yaml:"shard_count"`            // default 32
}

// DefaultConfig returns production-grade quote pipeline defaults.
func DefaultConfig() Config {
	return Config{
		StaleMs:           2000,
		MaxDeviation:      0.01,
		LatencyWarnMs:     50,
		LatencyBadMs:      200,
		FreshnessWarnMs:   500,
		FreshnessBadMs:    1500,
		VarianceWarnPct:   0.001,
		VarianceBadPct:    0.005,
		QualityGoodThresh: 80,
		QualityWarnThresh: 50,
		ShardCount:        32,
	}
}

func (c Config) staleDuration() time.Duration {
	return time.Duration(c.StaleMs) * time.Millisecond
}
