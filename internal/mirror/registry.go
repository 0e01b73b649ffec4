// Package mirror tracks the health of known mirror sites and selects one
// per transfer attempt using a weighted policy.
package mirror

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nkosarev/mirrorfetch/internal/domain"
)

// Severity grades how much a reported failure should cost a mirror.
// A not-found costs less than a timeout, since it may reflect catalog
// incompleteness rather than mirror unreliability.
type Severity int

const (
	SeverityMinor Severity = iota
	SeverityModerate
	SeveritySevere
)

// RegistryOptions configures health scoring.
type RegistryOptions struct {
	SuccessIncrement float64
	MinorPenalty     float64
	ModeratePenalty  float64
	SeverePenalty    float64
	// FailureThreshold is the consecutive-failure count after which a
	// mirror is deactivated. Successes reactivate it.
	FailureThreshold int
	// RecencyWindow is how many of the most recent selections are
	// remembered for the selector's load-spreading penalty.
	RecencyWindow int
}

// DefaultRegistryOptions returns options with sensible defaults.
func DefaultRegistryOptions() RegistryOptions {
	return RegistryOptions{
		SuccessIncrement: 0.1,
		MinorPenalty:     0.05,
		ModeratePenalty:  0.15,
		SeverePenalty:    0.3,
		FailureThreshold: 5,
		RecencyWindow:    3,
	}
}

// Registry is the durable record of known mirrors and their health state.
// It is the single shared mutable resource in the system: every mutation
// goes through its methods under one lock.
type Registry struct {
	mu           sync.Mutex
	opts         RegistryOptions
	file         string
	mirrors      []*domain.MirrorSite
	availability map[string]map[string]domain.Availability // identifier -> base URL -> state
	recent       []string
	logger       *slog.Logger
}

// NewRegistry creates a registry persisting to file. Mirrors are loaded
// from the file if it exists; otherwise seed is used.
func NewRegistry(file string, seed []domain.MirrorSite, opts RegistryOptions, logger *slog.Logger) (*Registry, error) {
	r := &Registry{
		opts:         opts,
		file:         file,
		availability: make(map[string]map[string]domain.Availability),
		logger:       logger,
	}

	loaded, err := r.load()
	if err != nil {
		return nil, err
	}
	if !loaded {
		for i := range seed {
			m := seed[i]
			m.BaseURL = NormalizeBaseURL(m.BaseURL)
			if m.HealthScore == 0 && m.FailureCount == 0 {
				m.HealthScore = 1.0
				m.IsActive = true
			}
			r.mirrors = append(r.mirrors, &m)
		}
	}

	logger.Info("mirror registry initialized", "file", file, "mirrors", len(r.mirrors))
	return r, nil
}

// NormalizeBaseURL ensures a base URL carries no trailing slash so URL
// construction stays uniform.
func NormalizeBaseURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/")
}

func (r *Registry) load() (bool, error) {
	data, err := os.ReadFile(r.file)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read mirrors file: %w", err)
	}

	if len(data) == 0 {
		return false, nil
	}

	var mirrors []*domain.MirrorSite
	if err := json.Unmarshal(data, &mirrors); err != nil {
		return false, fmt.Errorf("unmarshal mirrors file: %w", err)
	}

	for _, m := range mirrors {
		m.BaseURL = NormalizeBaseURL(m.BaseURL)
	}
	r.mirrors = mirrors
	return true, nil
}

// Persist writes the full mirror list, including health and failure state,
// so a restart preserves learned reliability.
func (r *Registry) Persist() error {
	r.mu.Lock()
	data, err := json.MarshalIndent(r.mirrors, "", "  ")
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal mirrors: %w", err)
	}

	tempFile := r.file + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return fmt.Errorf("write temporary mirrors file: %w", err)
	}

	if err := os.Rename(tempFile, r.file); err != nil {
		return fmt.Errorf("rename temporary mirrors file: %w", err)
	}

	r.logger.Debug("mirrors persisted", "file", r.file)
	return nil
}

// ActiveMirrors returns copies of all active mirrors ordered by priority
// (highest first), then name.
func (r *Registry) ActiveMirrors() []domain.MirrorSite {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.MirrorSite
	for _, m := range r.mirrors {
		if m.IsActive {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// AllMirrors returns copies of every known mirror, active or not, in the
// same order as ActiveMirrors.
func (r *Registry) AllMirrors() []domain.MirrorSite {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.MirrorSite, 0, len(r.mirrors))
	for _, m := range r.mirrors {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// AddMirror registers a new mirror or updates an existing one by base URL,
// keeping learned health state on update.
func (r *Registry) AddMirror(name, baseURL, country string, priority int) {
	baseURL = NormalizeBaseURL(baseURL)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.mirrors {
		if m.BaseURL == baseURL {
			m.Name = name
			m.Country = country
			m.Priority = priority
			m.IsActive = true
			r.logger.Info("mirror updated", "name", name, "base_url", baseURL)
			return
		}
	}

	r.mirrors = append(r.mirrors, &domain.MirrorSite{
		Name:        name,
		BaseURL:     baseURL,
		Country:     country,
		Priority:    priority,
		IsActive:    true,
		HealthScore: 1.0,
	})
	r.logger.Info("mirror added", "name", name, "base_url", baseURL)
}

// Deactivate takes a mirror out of rotation without deleting it. Reports
// whether the base URL named a known mirror.
func (r *Registry) Deactivate(baseURL string) bool {
	baseURL = NormalizeBaseURL(baseURL)

	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.find(baseURL)
	if m == nil {
		return false
	}
	m.IsActive = false
	r.logger.Info("mirror deactivated", "base_url", baseURL)
	return true
}

// must hold r.mu
func (r *Registry) find(baseURL string) *domain.MirrorSite {
	for _, m := range r.mirrors {
		if m.BaseURL == baseURL {
			return m
		}
	}
	return nil
}

// ReportSuccess raises the mirror's health score toward 1.0 and decays its
// failure count. Decay rather than instant reset avoids oscillation from a
// single lucky attempt.
func (r *Registry) ReportSuccess(baseURL string) {
	baseURL = NormalizeBaseURL(baseURL)

	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.find(baseURL)
	if m == nil {
		return
	}

	m.HealthScore = min(1.0, m.HealthScore+r.opts.SuccessIncrement)
	m.FailureCount /= 2
	m.LastChecked = time.Now()
	m.LastError = ""
	if !m.IsActive {
		r.logger.Info("mirror reactivated", "name", m.Name, "base_url", baseURL)
		m.IsActive = true
	}

	r.logger.Debug("mirror success reported", "base_url", baseURL, "health", m.HealthScore)
}

// ReportFailure lowers the mirror's health score by a severity-scaled
// amount and bumps its failure count. A mirror at score 0 stays in the
// list with near-zero selection probability and can recover through later
// successes.
func (r *Registry) ReportFailure(baseURL string, severity Severity, reason string) {
	baseURL = NormalizeBaseURL(baseURL)

	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.find(baseURL)
	if m == nil {
		return
	}

	m.HealthScore = max(0, m.HealthScore-r.penalty(severity))
	m.FailureCount++
	m.LastChecked = time.Now()
	m.LastError = reason

	if m.FailureCount > r.opts.FailureThreshold {
		r.logger.Warn("mirror deactivated after repeated failures",
			"name", m.Name,
			"base_url", baseURL,
			"failure_count", m.FailureCount,
		)
		m.IsActive = false
	}

	r.logger.Debug("mirror failure reported",
		"base_url", baseURL,
		"severity", severity,
		"health", m.HealthScore,
	)
}

func (r *Registry) penalty(severity Severity) float64 {
	switch severity {
	case SeverityModerate:
		return r.opts.ModeratePenalty
	case SeveritySevere:
		return r.opts.SeverePenalty
	default:
		return r.opts.MinorPenalty
	}
}

// MarkAbsent records a definitive not-found for (mirror, identifier), so
// later selections for that identifier skip the mirror.
func (r *Registry) MarkAbsent(baseURL, identifier string) {
	r.setAvailability(baseURL, identifier, domain.AvailabilityAbsent)
}

// MarkPresent records that a mirror definitively hosts an identifier.
func (r *Registry) MarkPresent(baseURL, identifier string) {
	r.setAvailability(baseURL, identifier, domain.AvailabilityPresent)
}

func (r *Registry) setAvailability(baseURL, identifier string, state domain.Availability) {
	baseURL = NormalizeBaseURL(baseURL)

	r.mu.Lock()
	defer r.mu.Unlock()

	byMirror, ok := r.availability[identifier]
	if !ok {
		byMirror = make(map[string]domain.Availability)
		r.availability[identifier] = byMirror
	}
	byMirror[baseURL] = state
}

// AvailabilityFor returns the recorded availability per mirror base URL
// for an identifier. Mirrors without a record are unknown.
func (r *Registry) AvailabilityFor(identifier string) map[string]domain.Availability {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]domain.Availability, len(r.availability[identifier]))
	for baseURL, state := range r.availability[identifier] {
		out[baseURL] = state
	}
	return out
}

// NoteSelection records that a mirror was just picked, feeding the
// selector's recency penalty.
func (r *Registry) NoteSelection(baseURL string) {
	baseURL = NormalizeBaseURL(baseURL)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.recent = append(r.recent, baseURL)
	if window := r.opts.RecencyWindow; len(r.recent) > window*3 {
		r.recent = r.recent[len(r.recent)-window:]
	}
}

// RecentlyUsed returns the base URLs selected within the trailing window.
func (r *Registry) RecentlyUsed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	window := r.opts.RecencyWindow
	if window > len(r.recent) {
		window = len(r.recent)
	}
	return append([]string(nil), r.recent[len(r.recent)-window:]...)
}
