package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/nkosarev/mirrorfetch/internal/api/http"
	cfgpkg "github.com/nkosarev/mirrorfetch/internal/config"
	"github.com/nkosarev/mirrorfetch/internal/domain"
	"github.com/nkosarev/mirrorfetch/internal/mirror"
	repo "github.com/nkosarev/mirrorfetch/internal/repository"
	svc "github.com/nkosarev/mirrorfetch/internal/service"
	"github.com/nkosarev/mirrorfetch/internal/storage"
	"github.com/nkosarev/mirrorfetch/internal/transfer"
	"github.com/nkosarev/mirrorfetch/internal/worker"
)

// Seed mirrors used the first time the process starts without a persisted
// mirror list.
var defaultMirrors = []domain.MirrorSite{
	{Name: "primary", BaseURL: "https://mirror-a.example.org", Country: "US", Priority: 5},
	{Name: "secondary", BaseURL: "https://mirror-b.example.org", Country: "US", Priority: 4},
	{Name: "europe", BaseURL: "https://mirror-c.example.org", Country: "DE", Priority: 2},
}

func main() {
	cfg, err := cfgpkg.Load()
	if err != nil {
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			slog.Error("configuration file not found", "error", err)
		} else {
			slog.Error("failed to load configuration", "error", err)
		}
		os.Exit(1)
	}

	cfgpkg.SetupLogger(cfg)
	slog.Info("configuration loaded successfully")

	registry, err := mirror.NewRegistry(cfg.MirrorsFile, defaultMirrors, mirror.RegistryOptions{
		SuccessIncrement: cfg.SuccessIncrement,
		MinorPenalty:     cfg.MinorPenalty,
		ModeratePenalty:  cfg.ModeratePenalty,
		SeverePenalty:    cfg.SeverePenalty,
		FailureThreshold: cfg.FailureThreshold,
		RecencyWindow:    cfg.RecencyWindow,
	}, slog.Default())
	if err != nil {
		slog.Error("failed to initialize mirror registry", "error", err)
		os.Exit(1)
	}

	selector := mirror.NewSelector(registry, rand.NewSource(time.Now().UnixNano()), mirror.SelectorOptions{
		RecencyPenalty:     cfg.RecencyPenalty,
		CountryBonus:       cfg.CountryBonus,
		PreferredCountries: cfg.PreferredCountry,
	})

	files := storage.NewFileStorage(cfg.DownloadDir)
	engine := transfer.NewEngine(files, transfer.EngineOptions{
		Timeout:       cfg.TransferTimeout,
		HeaderTimeout: cfg.HeaderTimeout,
		ChunkSize:     cfg.ChunkSize,
		UserAgent:     cfg.UserAgent,
	}, slog.Default())

	classifier := transfer.NewClassifier(transfer.ClassifierOptions{
		MaxAttempts:          cfg.MaxAttempts,
		MaxSameMirrorRetries: cfg.MaxSameMirrorRetries,
		RetryBackoff:         cfg.RetryBackoff,
		RateLimitBackoff:     cfg.RateLimitBackoff,
	})

	coordinator := worker.NewCoordinator(registry, selector, engine, classifier, slog.Default())

	batchStorage, err := repo.NewBatchStorage(cfg.StateFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Error("state file does not exist", "error", err)
		} else {
			slog.Error("failed to initialize batch repository", "error", err)
		}
		os.Exit(1)
	}

	batchService := svc.NewBatchService(batchStorage, coordinator, cfg, slog.Default())
	checker := mirror.NewHealthChecker(registry, cfg.HeaderTimeout, slog.Default())
	mirrorService := svc.NewMirrorService(registry, checker, slog.Default())

	if err := batchService.RecoverPendingBatches(context.Background()); err != nil {
		slog.Error("failed to recover pending batches", "error", err)
	}

	router := h.NewRouter(batchService, mirrorService, slog.Default())
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
		IdleTimeout:  cfg.HTTPTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}

	if err := batchService.Shutdown(shutdownCtx); err != nil {
		slog.Error("batch service shutdown failed", "error", err)
	}

	if err := registry.Persist(); err != nil {
		slog.Error("failed to persist mirror state", "error", err)
	} else {
		slog.Info("server stopped gracefully")
	}
}
