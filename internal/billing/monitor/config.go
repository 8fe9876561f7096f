package monitor

import "time"

// Config controls the event backlog monitor loop.
type Config struct {
	PollInterval time.Duration
	// StaleAfter is how long an event may sit pending before the monitor
	// flags it in the logs.
	StaleAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 30 * time.Second,
		StaleAfter:   10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaults.StaleAfter
	}
	return c
}
