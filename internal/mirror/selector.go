package mirror

import (
	"math/rand"
	"sync"

	"github.com/nkosarev/mirrorfetch/internal/domain"
	errs "github.com/nkosarev/mirrorfetch/internal/errors"
)

// SelectorOptions configures the weighting policy.
type SelectorOptions struct {
	// RecencyPenalty multiplies the weight of mirrors picked within the
	// trailing window, spreading load across mirrors. Must be in (0,1].
	RecencyPenalty float64
	// CountryBonus multiplies the weight of mirrors whose country is in
	// PreferredCountries. Must be >= 1.
	CountryBonus       float64
	PreferredCountries []string
}

// DefaultSelectorOptions returns options with sensible defaults.
func DefaultSelectorOptions() SelectorOptions {
	return SelectorOptions{
		RecencyPenalty: 0.3,
		CountryBonus:   1.5,
	}
}

// Selector picks one mirror per attempt with a weighted random draw:
// weight = health_score * priority * recency_penalty * country_bonus,
// damped by the mirror's failure count. Randomized selection distributes
// load statistically instead of always hammering the single best mirror.
type Selector struct {
	registry *Registry
	opts     SelectorOptions

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a selector over the registry. The random source is
// injectable so tests can fix it for reproducibility.
func NewSelector(registry *Registry, src rand.Source, opts SelectorOptions) *Selector {
	return &Selector{
		registry: registry,
		opts:     opts,
		rng:      rand.New(src),
	}
}

// Select picks a mirror for the identifier from candidates. Inactive
// mirrors and mirrors confirmed absent for this identifier are excluded.
// Returns ErrExhausted when no candidate remains.
func (s *Selector) Select(identifier string, candidates []domain.MirrorSite) (*domain.MirrorSite, error) {
	availability := s.registry.AvailabilityFor(identifier)

	eligible := make([]domain.MirrorSite, 0, len(candidates))
	for _, m := range candidates {
		if !m.IsActive {
			continue
		}
		if availability[m.BaseURL] == domain.AvailabilityAbsent {
			continue
		}
		eligible = append(eligible, m)
	}

	if len(eligible) == 0 {
		return nil, errs.ErrExhausted
	}

	recent := make(map[string]bool)
	for _, baseURL := range s.registry.RecentlyUsed() {
		recent[baseURL] = true
	}

	weights := make([]float64, len(eligible))
	var total float64
	for i, m := range eligible {
		w := m.HealthScore * float64(m.Priority)
		w /= 1 + float64(m.FailureCount*m.FailureCount)
		if recent[m.BaseURL] {
			w *= s.opts.RecencyPenalty
		}
		if s.preferred(m.Country) {
			w *= s.opts.CountryBonus
		}
		weights[i] = w
		total += w
	}

	var picked *domain.MirrorSite
	if total <= 0 {
		// All weights zero: uniform draw rather than failing outright.
		picked = &eligible[s.randIntn(len(eligible))]
	} else {
		draw := s.randFloat() * total
		var cum float64
		for i := range eligible {
			cum += weights[i]
			if draw < cum {
				picked = &eligible[i]
				break
			}
		}
		if picked == nil {
			picked = &eligible[len(eligible)-1]
		}
	}

	s.registry.NoteSelection(picked.BaseURL)
	return picked, nil
}

func (s *Selector) preferred(country string) bool {
	for _, c := range s.opts.PreferredCountries {
		if c == country {
			return true
		}
	}
	return false
}

func (s *Selector) randFloat() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func (s *Selector) randIntn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}
