package mirror

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/nkosarev/mirrorfetch/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedMirrors() []domain.MirrorSite {
	return []domain.MirrorSite{
		{Name: "alpha", BaseURL: "https://alpha.example.org/", Country: "US", Priority: 5},
		{Name: "beta", BaseURL: "https://beta.example.org", Country: "DE", Priority: 3},
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	file := filepath.Join(t.TempDir(), "mirrors.json")
	r, err := NewRegistry(file, seedMirrors(), DefaultRegistryOptions(), newTestLogger())
	if err != nil {
		t.Fatalf("NewRegistry error: %v", err)
	}
	return r
}

func TestRegistry_SeedNormalizesAndActivates(t *testing.T) {
	r := newTestRegistry(t)

	mirrors := r.ActiveMirrors()
	if len(mirrors) != 2 {
		t.Fatalf("expected 2 active mirrors, got %d", len(mirrors))
	}
	if mirrors[0].BaseURL != "https://alpha.example.org" {
		t.Errorf("expected trailing slash stripped, got %q", mirrors[0].BaseURL)
	}
	if mirrors[0].HealthScore != 1.0 {
		t.Errorf("expected seed health 1.0, got %g", mirrors[0].HealthScore)
	}
	if mirrors[0].Priority < mirrors[1].Priority {
		t.Errorf("expected priority ordering, got %d before %d", mirrors[0].Priority, mirrors[1].Priority)
	}
}

func TestRegistry_ReportFailureLowersHealth(t *testing.T) {
	r := newTestRegistry(t)

	r.ReportFailure("https://alpha.example.org", SeverityModerate, "status 503")

	m := r.ActiveMirrors()[0]
	if m.HealthScore != 0.85 {
		t.Errorf("expected health 0.85 after moderate failure, got %g", m.HealthScore)
	}
	if m.FailureCount != 1 {
		t.Errorf("expected failure count 1, got %d", m.FailureCount)
	}
	if m.LastError != "status 503" {
		t.Errorf("expected last error recorded, got %q", m.LastError)
	}
}

func TestRegistry_HealthScoreStaysInBounds(t *testing.T) {
	r := newTestRegistry(t)

	for i := 0; i < 20; i++ {
		r.ReportFailure("https://alpha.example.org", SeveritySevere, "boom")
	}
	for _, m := range r.AllMirrors() {
		if m.BaseURL == "https://alpha.example.org" && m.HealthScore != 0 {
			t.Errorf("expected health floored at 0, got %g", m.HealthScore)
		}
	}

	for i := 0; i < 30; i++ {
		r.ReportSuccess("https://alpha.example.org")
	}
	for _, m := range r.AllMirrors() {
		if m.BaseURL == "https://alpha.example.org" && m.HealthScore != 1.0 {
			t.Errorf("expected health capped at 1.0, got %g", m.HealthScore)
		}
	}
}

func TestRegistry_FailureCountDecaysOnSuccess(t *testing.T) {
	r := newTestRegistry(t)

	for i := 0; i < 4; i++ {
		r.ReportFailure("https://beta.example.org", SeverityMinor, "timeout")
	}
	r.ReportSuccess("https://beta.example.org")

	for _, m := range r.AllMirrors() {
		if m.BaseURL == "https://beta.example.org" {
			if m.FailureCount != 2 {
				t.Errorf("expected failure count halved to 2, got %d", m.FailureCount)
			}
		}
	}
}

func TestRegistry_DeactivationAndRecovery(t *testing.T) {
	r := newTestRegistry(t)

	for i := 0; i < 6; i++ {
		r.ReportFailure("https://beta.example.org", SeveritySevere, "refused")
	}

	if len(r.ActiveMirrors()) != 1 {
		t.Fatalf("expected beta deactivated after threshold, have %d active", len(r.ActiveMirrors()))
	}

	r.ReportSuccess("https://beta.example.org")
	if len(r.ActiveMirrors()) != 2 {
		t.Errorf("expected beta reactivated after success")
	}
}

func TestRegistry_DeactivateByBaseURL(t *testing.T) {
	r := newTestRegistry(t)

	if !r.Deactivate("https://alpha.example.org/") {
		t.Fatal("expected known mirror deactivated, trailing slash normalized")
	}
	if n := len(r.ActiveMirrors()); n != 1 {
		t.Errorf("expected 1 active mirror after deactivation, got %d", n)
	}

	if r.Deactivate("https://nowhere.example.org") {
		t.Error("expected unknown base URL reported as not found")
	}
}

func TestRegistry_PersistRoundTrip(t *testing.T) {
	file := filepath.Join(t.TempDir(), "mirrors.json")
	r, err := NewRegistry(file, seedMirrors(), DefaultRegistryOptions(), newTestLogger())
	if err != nil {
		t.Fatalf("NewRegistry error: %v", err)
	}

	r.ReportFailure("https://alpha.example.org", SeverityModerate, "status 500")
	r.ReportFailure("https://alpha.example.org", SeverityModerate, "status 500")
	if err := r.Persist(); err != nil {
		t.Fatalf("Persist error: %v", err)
	}

	if _, err := os.Stat(file); err != nil {
		t.Fatalf("expected mirrors file to exist: %v", err)
	}

	reloaded, err := NewRegistry(file, nil, DefaultRegistryOptions(), newTestLogger())
	if err != nil {
		t.Fatalf("NewRegistry reload error: %v", err)
	}

	for _, m := range reloaded.AllMirrors() {
		if m.BaseURL == "https://alpha.example.org" {
			if m.HealthScore != 0.7 {
				t.Errorf("expected restored health 0.7, got %g", m.HealthScore)
			}
			if m.FailureCount != 2 {
				t.Errorf("expected restored failure count 2, got %d", m.FailureCount)
			}
		}
	}
}

func TestRegistry_Availability(t *testing.T) {
	r := newTestRegistry(t)

	r.MarkAbsent("https://alpha.example.org", "book-42")
	r.MarkPresent("https://beta.example.org", "book-42")

	avail := r.AvailabilityFor("book-42")
	if avail["https://alpha.example.org"] != domain.AvailabilityAbsent {
		t.Errorf("expected alpha absent, got %q", avail["https://alpha.example.org"])
	}
	if avail["https://beta.example.org"] != domain.AvailabilityPresent {
		t.Errorf("expected beta present, got %q", avail["https://beta.example.org"])
	}
	if len(r.AvailabilityFor("book-7")) != 0 {
		t.Errorf("expected no records for unseen identifier")
	}
}
