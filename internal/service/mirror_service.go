package service

import (
	"context"
	"log/slog"

	"github.com/nkosarev/mirrorfetch/internal/domain"
	errpkg "github.com/nkosarev/mirrorfetch/internal/errors"
	"github.com/nkosarev/mirrorfetch/internal/mirror"
	"github.com/nkosarev/mirrorfetch/internal/validation"
)

// MirrorService exposes registry operations to the API surface.
type MirrorService struct {
	registry *mirror.Registry
	checker  *mirror.HealthChecker
	logger   *slog.Logger
}

// NewMirrorService creates a MirrorService.
func NewMirrorService(registry *mirror.Registry, checker *mirror.HealthChecker, logger *slog.Logger) *MirrorService {
	return &MirrorService{
		registry: registry,
		checker:  checker,
		logger:   logger,
	}
}

// ListMirrors returns every known mirror with its health state.
func (s *MirrorService) ListMirrors() []domain.MirrorSite {
	return s.registry.AllMirrors()
}

// AddMirror validates and registers a mirror, then persists the list.
func (s *MirrorService) AddMirror(req *domain.AddMirrorRequest) error {
	if err := validation.ValidateBaseURL(req.BaseURL); err != nil {
		return err
	}

	s.registry.AddMirror(req.Name, req.BaseURL, req.Country, req.Priority)
	if err := s.registry.Persist(); err != nil {
		s.logger.Error("failed to persist mirrors", "error", err)
		return err
	}
	return nil
}

// DeactivateMirror takes a mirror out of rotation and persists the change.
func (s *MirrorService) DeactivateMirror(baseURL string) error {
	if !s.registry.Deactivate(baseURL) {
		return errpkg.ErrMirrorNotFound
	}
	if err := s.registry.Persist(); err != nil {
		s.logger.Error("failed to persist mirrors after deactivation", "base_url", baseURL, "error", err)
		return err
	}
	return nil
}

// CheckMirrors probes all mirrors, persists the updated health state and
// returns per-mirror results.
func (s *MirrorService) CheckMirrors(ctx context.Context) (map[string]bool, error) {
	results := s.checker.CheckAll(ctx)
	if err := s.registry.Persist(); err != nil {
		s.logger.Error("failed to persist mirrors after health check", "error", err)
		return nil, err
	}
	return results, nil
}
