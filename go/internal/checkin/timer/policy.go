package timer

import "time"

// Policy bounds what a single check-in session may do
type Policy struct {
	MaxDurationMinutes float64       `yaml:"max_duration_minutes"`
	MaxExtensions      int           `yaml:"max_extensions"`
	MaxWatchers        int           `yaml:"max_watchers"`
	NotifyTimeout      time.Duration `yaml:"notify_timeout"`
}

// DefaultPolicy returns the policy used when no config file overrides it
func DefaultPolicy() Policy {
	return Policy{
		MaxDurationMinutes: 24 * 60,
		MaxExtensions:      10,
		MaxWatchers:        25,
		NotifyTimeout:      15 * time.Second,
	}
}
