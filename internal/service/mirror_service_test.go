package service

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkosarev/mirrorfetch/internal/domain"
	errpkg "github.com/nkosarev/mirrorfetch/internal/errors"
	"github.com/nkosarev/mirrorfetch/internal/mirror"
)

func newMirrorService(t *testing.T, seed []domain.MirrorSite) *MirrorService {
	t.Helper()
	logger := newTestLogger()
	registry, err := mirror.NewRegistry(
		filepath.Join(t.TempDir(), "mirrors.json"),
		seed,
		mirror.DefaultRegistryOptions(),
		logger,
	)
	require.NoError(t, err)
	checker := mirror.NewHealthChecker(registry, time.Second, logger)
	return NewMirrorService(registry, checker, logger)
}

func TestDeactivateMirror(t *testing.T) {
	svc := newMirrorService(t, []domain.MirrorSite{
		{Name: "alpha", BaseURL: "https://alpha.example.org", Priority: 5},
	})

	require.NoError(t, svc.DeactivateMirror("https://alpha.example.org"))

	mirrors := svc.ListMirrors()
	require.Len(t, mirrors, 1)
	assert.False(t, mirrors[0].IsActive)
}

func TestDeactivateMirror_Unknown(t *testing.T) {
	svc := newMirrorService(t, []domain.MirrorSite{
		{Name: "alpha", BaseURL: "https://alpha.example.org", Priority: 5},
	})

	err := svc.DeactivateMirror("https://nowhere.example.org")
	assert.ErrorIs(t, err, errpkg.ErrMirrorNotFound)
}
