package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nkosarev/mirrorfetch/internal/config"
	"github.com/nkosarev/mirrorfetch/internal/domain"
	"github.com/nkosarev/mirrorfetch/internal/metrics"
	repo "github.com/nkosarev/mirrorfetch/internal/repository"
	"github.com/nkosarev/mirrorfetch/internal/validation"
	"github.com/nkosarev/mirrorfetch/internal/worker"
)

// BatchService accepts batches of transfer requests and runs them through
// the coordinator in the background.
type BatchService struct {
	batchRepo   repo.BatchRepo
	coordinator *worker.Coordinator
	cfg         *config.Config
	logger      *slog.Logger

	mu       sync.Mutex
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	runCtx   context.Context
	stopping bool
}

// NewBatchService creates a BatchService. Background batch runs live under
// the service's own context so Shutdown can pause them cleanly.
func NewBatchService(batchRepo repo.BatchRepo, coordinator *worker.Coordinator, cfg *config.Config, logger *slog.Logger) *BatchService {
	ctx, cancel := context.WithCancel(context.Background())
	return &BatchService{
		batchRepo:   batchRepo,
		coordinator: coordinator,
		cfg:         cfg,
		logger:      logger,
		runCtx:      ctx,
		cancel:      cancel,
	}
}

// CreateBatch validates the request, persists a new batch and starts
// processing it in the background.
func (s *BatchService) CreateBatch(ctx context.Context, req *domain.CreateBatchRequest) (*domain.Batch, error) {
	for _, t := range req.Transfers {
		if err := validation.ValidateDestination(t.Destination); err != nil {
			return nil, err
		}
	}

	tasks := make([]domain.TransferTask, 0, len(req.Transfers))
	for _, t := range req.Transfers {
		tasks = append(tasks, domain.TransferTask{
			Identifier:      t.Identifier,
			Path:            t.Path,
			DestinationPath: t.Destination,
			ExpectedSize:    t.Size,
			Priority:        t.Priority,
			Status:          domain.TaskStatusPending,
		})
	}

	batch := &domain.Batch{
		ID:        uuid.New(),
		Status:    domain.BatchStatusPending,
		Tasks:     tasks,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := s.batchRepo.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	metrics.BatchesCreated.Inc()
	s.logger.Info("batch created", "batch_id", batch.ID, "tasks_count", len(tasks))

	s.startRun(batch)
	return batch, nil
}

// GetBatch retrieves a batch by ID.
func (s *BatchService) GetBatch(ctx context.Context, id uuid.UUID) (*domain.Batch, error) {
	return s.batchRepo.GetBatch(ctx, id)
}

func (s *BatchService) startRun(batch *domain.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.runBatch(s.runCtx, batch); err != nil {
			s.logger.Error("batch processing failed", "batch_id", batch.ID, "error", err)
		}
	}()
}

func (s *BatchService) runBatch(ctx context.Context, batch *domain.Batch) error {
	batch.Status = domain.BatchStatusInProgress
	if err := s.batchRepo.UpdateBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to update batch status: %w", err)
	}

	tasks := make([]*domain.TransferTask, 0, len(batch.Tasks))
	for i := range batch.Tasks {
		tasks = append(tasks, &batch.Tasks[i])
	}

	runErr := s.coordinator.Run(ctx, tasks, s.cfg.MaxConcurrency)

	batch.Status = batchStatusFrom(batch, runErr)
	if err := s.batchRepo.UpdateBatch(context.Background(), batch); err != nil {
		return fmt.Errorf("failed to save batch outcome: %w", err)
	}

	s.logger.Info("batch finished", "batch_id", batch.ID, "status", batch.Status)
	return runErr
}

func batchStatusFrom(batch *domain.Batch, runErr error) domain.BatchStatus {
	if runErr != nil {
		return domain.BatchStatusFailed
	}

	anyPending := false
	allFailed := len(batch.Tasks) > 0
	for i := range batch.Tasks {
		switch batch.Tasks[i].Status {
		case domain.TaskStatusFailed:
		case domain.TaskStatusPending, domain.TaskStatusPaused, domain.TaskStatusInFlight:
			anyPending = true
			allFailed = false
		default:
			allFailed = false
		}
	}

	switch {
	case anyPending:
		// Interrupted mid-run; a later resume invocation continues it.
		return domain.BatchStatusPending
	case allFailed:
		return domain.BatchStatusFailed
	default:
		return domain.BatchStatusCompleted
	}
}

// RecoverPendingBatches re-runs batches whose tasks were left pending or
// paused by an earlier process. Paused tasks resume from their on-disk
// partial files; no separate ledger is needed because the partial file
// size plus the stored identifier/destination mapping is the durable
// state.
func (s *BatchService) RecoverPendingBatches(ctx context.Context) error {
	pending, err := s.batchRepo.GetBatchesByStatus(ctx, domain.BatchStatusPending)
	if err != nil {
		return fmt.Errorf("failed to get pending batches: %w", err)
	}

	inProgress, err := s.batchRepo.GetBatchesByStatus(ctx, domain.BatchStatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to get in-progress batches: %w", err)
	}

	batches := append(pending, inProgress...)

	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}

		for i := range batch.Tasks {
			if batch.Tasks[i].Status == domain.TaskStatusInFlight {
				batch.Tasks[i].Status = domain.TaskStatusPending
				batch.Tasks[i].Error = ""
			}
			if batch.Tasks[i].Status == domain.TaskStatusPaused {
				batch.Tasks[i].Status = domain.TaskStatusPending
			}
		}

		if err := s.batchRepo.UpdateBatch(ctx, batch); err != nil {
			s.logger.Error("failed to recover batch", "batch_id", batch.ID, "error", err)
			continue
		}

		s.logger.Info("recovering batch", "batch_id", batch.ID, "tasks_count", len(batch.Tasks))
		s.startRun(batch)
	}

	return nil
}

// Shutdown stops accepting new runs, cancels in-flight transfers and waits
// for them to reach a consistent paused state or for ctx to expire.
func (s *BatchService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("batch service stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
