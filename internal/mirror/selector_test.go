package mirror

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/nkosarev/mirrorfetch/internal/domain"
	errs "github.com/nkosarev/mirrorfetch/internal/errors"
)

func newSelectorFixture(t *testing.T, mirrors []domain.MirrorSite, opts SelectorOptions) (*Registry, *Selector) {
	t.Helper()
	file := filepath.Join(t.TempDir(), "mirrors.json")
	registryOpts := DefaultRegistryOptions()
	registryOpts.RecencyWindow = 0 // disable the load-spreading penalty for deterministic ratios
	r, err := NewRegistry(file, mirrors, registryOpts, newTestLogger())
	if err != nil {
		t.Fatalf("NewRegistry error: %v", err)
	}
	return r, NewSelector(r, rand.NewSource(1), opts)
}

func TestSelector_SkipsInactiveAndZeroHealth(t *testing.T) {
	mirrors := []domain.MirrorSite{
		{Name: "healthy", BaseURL: "https://healthy.example.org", Priority: 1, IsActive: true, HealthScore: 1.0, FailureCount: 1},
		{Name: "dead", BaseURL: "https://dead.example.org", Priority: 1, IsActive: true, HealthScore: 0, FailureCount: 1},
		{Name: "off", BaseURL: "https://off.example.org", Priority: 1, IsActive: false, HealthScore: 1.0, FailureCount: 1},
	}
	registry, selector := newSelectorFixture(t, mirrors, DefaultSelectorOptions())

	for i := 0; i < 500; i++ {
		m, err := selector.Select("id-1", registry.AllMirrors())
		if err != nil {
			t.Fatalf("Select error: %v", err)
		}
		if m.Name != "healthy" {
			t.Fatalf("draw %d picked %q, want always healthy while another eligible mirror exists", i, m.Name)
		}
	}
}

func TestSelector_WeightedDrawConvergesToRatio(t *testing.T) {
	// 2:1 health ratio with equal priority should converge to a 2:1 pick
	// ratio within 10% over 10000 draws.
	mirrors := []domain.MirrorSite{
		{Name: "strong", BaseURL: "https://strong.example.org", Priority: 1, IsActive: true, HealthScore: 1.0},
		{Name: "weak", BaseURL: "https://weak.example.org", Priority: 1, IsActive: true, HealthScore: 0.5},
	}
	registry, selector := newSelectorFixture(t, mirrors, DefaultSelectorOptions())

	counts := make(map[string]int)
	const draws = 10000
	for i := 0; i < draws; i++ {
		m, err := selector.Select("id-2", registry.ActiveMirrors())
		if err != nil {
			t.Fatalf("Select error: %v", err)
		}
		counts[m.Name]++
	}

	ratio := float64(counts["strong"]) / float64(counts["weak"])
	if math.Abs(ratio-2.0) > 0.2 {
		t.Errorf("expected pick ratio near 2.0, got %.3f (%v)", ratio, counts)
	}
}

func TestSelector_ThreeMirrorHealthScenario(t *testing.T) {
	mirrors := []domain.MirrorSite{
		{Name: "m1", BaseURL: "https://m1.example.org", Priority: 1, IsActive: true, HealthScore: 1.0},
		{Name: "m2", BaseURL: "https://m2.example.org", Priority: 1, IsActive: true, HealthScore: 0.5},
		{Name: "m3", BaseURL: "https://m3.example.org", Priority: 1, IsActive: true, HealthScore: 0},
	}
	registry, selector := newSelectorFixture(t, mirrors, DefaultSelectorOptions())

	counts := make(map[string]int)
	for i := 0; i < 10000; i++ {
		m, err := selector.Select("id-3", registry.ActiveMirrors())
		if err != nil {
			t.Fatalf("Select error: %v", err)
		}
		counts[m.Name]++
	}

	if counts["m3"] != 0 {
		t.Errorf("expected zero-health mirror never picked, got %d picks", counts["m3"])
	}
	ratio := float64(counts["m1"]) / float64(counts["m2"])
	if math.Abs(ratio-2.0) > 0.2 {
		t.Errorf("expected m1 picked roughly twice as often as m2, ratio %.3f", ratio)
	}
}

func TestSelector_ExcludesConfirmedAbsent(t *testing.T) {
	mirrors := []domain.MirrorSite{
		{Name: "a", BaseURL: "https://a.example.org", Priority: 1, IsActive: true, HealthScore: 1.0},
		{Name: "b", BaseURL: "https://b.example.org", Priority: 1, IsActive: true, HealthScore: 1.0},
	}
	registry, selector := newSelectorFixture(t, mirrors, DefaultSelectorOptions())

	registry.MarkAbsent("https://a.example.org", "id-42")

	for i := 0; i < 200; i++ {
		m, err := selector.Select("id-42", registry.ActiveMirrors())
		if err != nil {
			t.Fatalf("Select error: %v", err)
		}
		if m.Name == "a" {
			t.Fatalf("picked mirror confirmed absent for the identifier")
		}
	}

	// The absence record is scoped to one identifier.
	picked := make(map[string]bool)
	for i := 0; i < 200; i++ {
		m, err := selector.Select("other-id", registry.ActiveMirrors())
		if err != nil {
			t.Fatalf("Select error: %v", err)
		}
		picked[m.Name] = true
	}
	if !picked["a"] {
		t.Errorf("expected mirror a still eligible for other identifiers")
	}
}

func TestSelector_AllZeroWeightsFallsBackToUniform(t *testing.T) {
	mirrors := []domain.MirrorSite{
		{Name: "a", BaseURL: "https://a.example.org", Priority: 1, IsActive: true, HealthScore: 0},
		{Name: "b", BaseURL: "https://b.example.org", Priority: 1, IsActive: true, HealthScore: 0},
	}
	registry, selector := newSelectorFixture(t, mirrors, DefaultSelectorOptions())

	counts := make(map[string]int)
	for i := 0; i < 1000; i++ {
		m, err := selector.Select("id-9", registry.ActiveMirrors())
		if err != nil {
			t.Fatalf("Select error: %v", err)
		}
		counts[m.Name]++
	}
	if counts["a"] == 0 || counts["b"] == 0 {
		t.Errorf("expected uniform fallback to pick both mirrors, got %v", counts)
	}
}

func TestSelector_ExhaustedWhenNothingEligible(t *testing.T) {
	mirrors := []domain.MirrorSite{
		{Name: "a", BaseURL: "https://a.example.org", Priority: 1, IsActive: true, HealthScore: 1.0},
	}
	registry, selector := newSelectorFixture(t, mirrors, DefaultSelectorOptions())
	registry.MarkAbsent("https://a.example.org", "id-1")

	if _, err := selector.Select("id-1", registry.ActiveMirrors()); err != errs.ErrExhausted {
		t.Errorf("expected ErrExhausted, got %v", err)
	}

	if _, err := selector.Select("id-1", nil); err != errs.ErrExhausted {
		t.Errorf("expected ErrExhausted on empty candidates, got %v", err)
	}
}

func TestSelector_CountryBonusPrefersConfiguredCountry(t *testing.T) {
	mirrors := []domain.MirrorSite{
		{Name: "local", BaseURL: "https://local.example.org", Country: "DE", Priority: 1, IsActive: true, HealthScore: 1.0},
		{Name: "remote", BaseURL: "https://remote.example.org", Country: "US", Priority: 1, IsActive: true, HealthScore: 1.0},
	}
	opts := DefaultSelectorOptions()
	opts.PreferredCountries = []string{"DE"}
	opts.CountryBonus = 3.0
	registry, selector := newSelectorFixture(t, mirrors, opts)

	counts := make(map[string]int)
	for i := 0; i < 10000; i++ {
		m, err := selector.Select("id-5", registry.ActiveMirrors())
		if err != nil {
			t.Fatalf("Select error: %v", err)
		}
		counts[m.Name]++
	}

	ratio := float64(counts["local"]) / float64(counts["remote"])
	if math.Abs(ratio-3.0) > 0.45 {
		t.Errorf("expected pick ratio near 3.0 with country bonus, got %.3f", ratio)
	}
}
