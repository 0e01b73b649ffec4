package domain

import "time"

// Availability is the recorded knowledge about whether a specific mirror
// hosts a specific identifier.
type Availability string

const (
	AvailabilityUnknown Availability = "unknown"
	AvailabilityPresent Availability = "present"
	AvailabilityAbsent  Availability = "absent"
)

// MirrorSite represents one origin server hosting copies of the resource set.
// Health state is mutated only through the registry.
type MirrorSite struct {
	Name         string    `json:"name"`
	BaseURL      string    `json:"base_url"`
	Country      string    `json:"country,omitempty"`
	Priority     int       `json:"priority"`
	IsActive     bool      `json:"is_active"`
	HealthScore  float64   `json:"health_score"`
	FailureCount int       `json:"failure_count"`
	LastChecked  time.Time `json:"last_checked,omitzero"`
	LastError    string    `json:"last_error,omitempty"`
}
