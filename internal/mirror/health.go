package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthChecker probes mirrors with HEAD requests and feeds the outcome
// back into the registry, the same path transfer outcomes take.
type HealthChecker struct {
	registry *Registry
	client   *http.Client
	logger   *slog.Logger
}

// NewHealthChecker creates a health checker with the given probe timeout.
func NewHealthChecker(registry *Registry, timeout time.Duration, logger *slog.Logger) *HealthChecker {
	return &HealthChecker{
		registry: registry,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// CheckAll probes every known mirror concurrently and returns the health
// status per base URL.
func (h *HealthChecker) CheckAll(ctx context.Context) map[string]bool {
	mirrors := h.registry.AllMirrors()
	results := make([]bool, len(mirrors))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, m := range mirrors {
		i, m := i, m
		g.Go(func() error {
			results[i] = h.check(ctx, m.BaseURL)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]bool, len(mirrors))
	for i, m := range mirrors {
		out[m.BaseURL] = results[i]
	}
	return out
}

func (h *HealthChecker) check(ctx context.Context, baseURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, baseURL+"/", nil)
	if err != nil {
		h.registry.ReportFailure(baseURL, SeveritySevere, err.Error())
		return false
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Warn("mirror health probe failed", "base_url", baseURL, "error", err)
		h.registry.ReportFailure(baseURL, SeveritySevere, err.Error())
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		h.registry.ReportFailure(baseURL, SeverityModerate, fmt.Sprintf("probe status %d", resp.StatusCode))
		return false
	}

	h.registry.ReportSuccess(baseURL)
	return true
}
