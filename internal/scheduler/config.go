package scheduler

import (
	"time"

	"github.com/smallbiznis/shelfpay/internal/config"
)

// Config controls sweep intervals, batch sizes and staleness thresholds.
type Config struct {
	Enabled              bool
	RunInterval          time.Duration
	BatchSize            int
	PayoutRefreshAfter   time.Duration
	RefundStaleAfter     time.Duration
	UnresolvedAlertAfter time.Duration
	JobTimeout           time.Duration
	EnabledJobs          []string
}

func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		RunInterval:          time.Minute,
		BatchSize:            50,
		PayoutRefreshAfter:   30 * time.Minute,
		RefundStaleAfter:     time.Hour,
		UnresolvedAlertAfter: time.Hour,
		JobTimeout:           30 * time.Second,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:              cfg.Sweep.Enabled,
		RunInterval:          cfg.Sweep.Interval,
		BatchSize:            cfg.Sweep.BatchSize,
		PayoutRefreshAfter:   cfg.Sweep.PayoutRefreshAfter,
		RefundStaleAfter:     cfg.Sweep.RefundStaleAfter,
		UnresolvedAlertAfter: cfg.Sweep.UnresolvedAlertAfter,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.PayoutRefreshAfter <= 0 {
		c.PayoutRefreshAfter = defaults.PayoutRefreshAfter
	}
	if c.RefundStaleAfter <= 0 {
		c.RefundStaleAfter = defaults.RefundStaleAfter
	}
	if c.UnresolvedAlertAfter <= 0 {
		c.UnresolvedAlertAfter = defaults.UnresolvedAlertAfter
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
