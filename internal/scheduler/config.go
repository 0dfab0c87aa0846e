package scheduler

import (
	"time"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval           time.Duration
	PayoutInterval        time.Duration
	BusinessSweepInterval time.Duration
	AutoCancelInterval    time.Duration
	RefundRetryInterval   time.Duration
	BatchSize             int
	JobTimeout            time.Duration
	LockTTL               time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:           time.Minute,
		PayoutInterval:        time.Hour,
		BusinessSweepInterval: 30 * time.Minute,
		AutoCancelInterval:    10 * time.Minute,
		RefundRetryInterval:   15 * time.Minute,
		BatchSize:             50,
		JobTimeout:            2 * time.Minute,
		LockTTL:               5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.PayoutInterval <= 0 {
		c.PayoutInterval = defaults.PayoutInterval
	}
	if c.BusinessSweepInterval <= 0 {
		c.BusinessSweepInterval = defaults.BusinessSweepInterval
	}
	if c.AutoCancelInterval <= 0 {
		c.AutoCancelInterval = defaults.AutoCancelInterval
	}
	if c.RefundRetryInterval <= 0 {
		c.RefundRetryInterval = defaults.RefundRetryInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}

func ProvideConfig() Config {
	return DefaultConfig()
}
