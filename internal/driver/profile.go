package driver

import "time"

// Profile is an immutable load-test configuration.
type Profile struct {
	Name            string        `json:"name"`
	ConcurrentUsers int           `json:"concurrent_users"`
	TotalUsers      int           `json:"total_users"`
	Duration        time.Duration `json:"duration"`
	Delay           time.Duration `json:"delay"`
	Jitter          time.Duration `json:"jitter"`
}

// Presets is the fixed catalog of named load profiles.
func Presets() map[string]Profile {
	return map[string]Profile{
		"light":     {Name: "light", ConcurrentUsers: 10, TotalUsers: 50, Duration: 60 * time.Second, Delay: 500 * time.Millisecond, Jitter: 200 * time.Millisecond},
		"medium":    {Name: "medium", ConcurrentUsers: 50, TotalUsers: 200, Duration: 120 * time.Second, Delay: 200 * time.Millisecond, Jitter: 300 * time.Millisecond},
		"heavy":     {Name: "heavy", ConcurrentUsers: 100, TotalUsers: 500, Duration: 300 * time.Second, Delay: 100 * time.Millisecond, Jitter: 200 * time.Millisecond},
		"extreme":   {Name: "extreme", ConcurrentUsers: 200, TotalUsers: 1000, Duration: 600 * time.Second, Delay: 50 * time.Millisecond, Jitter: 100 * time.Millisecond},
		"endurance": {Name: "endurance", ConcurrentUsers: 50, TotalUsers: 500, Duration: 1800 * time.Second, Delay: 200 * time.Millisecond, Jitter: 300 * time.Millisecond},
	}
}

// PresetNames lists the catalog in menu order.
func PresetNames() []string {
	return []string{"light", "medium", "heavy", "extreme", "endurance"}
}
