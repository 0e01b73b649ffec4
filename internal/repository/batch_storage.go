package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nkosarev/mirrorfetch/internal/domain"
	errpkg "github.com/nkosarev/mirrorfetch/internal/errors"
)

// BatchStorage provides in-memory and file-based storage for batches.
type BatchStorage struct {
	mu      sync.RWMutex
	batches map[uuid.UUID]*domain.Batch
	file    string
}

// NewBatchStorage creates a new BatchStorage and loads batches from the
// state file if it exists.
func NewBatchStorage(filePath string) (*BatchStorage, error) {
	repo := &BatchStorage{
		batches: make(map[uuid.UUID]*domain.Batch),
		file:    filepath.Clean(filePath),
	}

	if err := repo.restoreBatches(); err != nil {
		return nil, fmt.Errorf("failed to load state from file: %w", err)
	}

	slog.Info("batch repository initialized", "file_path", repo.file, "batches_count", len(repo.batches))
	return repo, nil
}

func (r *BatchStorage) restoreBatches() error {
	if isFileNotExist(r.file) {
		slog.Info("state file does not exist, starting with empty state", "file_path", r.file)
		return nil
	}

	data, err := os.ReadFile(r.file)
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}

	if len(data) == 0 {
		slog.Warn("state file is empty")
		return nil
	}

	var batches []*domain.Batch
	if err := json.Unmarshal(data, &batches); err != nil {
		return fmt.Errorf("failed to unmarshal state file: %w", err)
	}

	for _, batch := range batches {
		r.batches[batch.ID] = batch
	}

	slog.Info("state loaded from file", "batches_count", len(batches), "file_path", r.file)
	return nil
}

func isFileNotExist(filePath string) bool {
	_, err := os.Stat(filePath)
	return os.IsNotExist(err)
}

func (r *BatchStorage) persistBatches() error {
	r.mu.RLock()
	batches := make([]*domain.Batch, 0, len(r.batches))
	for _, batch := range r.batches {
		batches = append(batches, batch)
	}
	r.mu.RUnlock()

	data, err := json.MarshalIndent(batches, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal batches: %w", err)
	}

	tempFile := r.file + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tempFile, r.file); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	slog.Debug("state saved to file", "batches_count", len(batches), "file_path", r.file)
	return nil
}

// CreateBatch adds a new batch and persists it to the state file.
func (r *BatchStorage) CreateBatch(ctx context.Context, batch *domain.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.batches[batch.ID] = batch
	r.mu.Unlock()

	if err := r.persistBatches(); err != nil {
		return fmt.Errorf("failed to save state after creating batch: %w", err)
	}

	slog.Debug("batch created and saved", "batch_id", batch.ID)
	return nil
}

// GetBatch retrieves a copy of a batch by ID. Callers get a snapshot, not
// the live record a background run may still be mutating.
func (r *BatchStorage) GetBatch(ctx context.Context, id uuid.UUID) (*domain.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	batch, exists := r.batches[id]
	var snapshot *domain.Batch
	if exists {
		snapshot = cloneBatch(batch)
	}
	r.mu.RUnlock()

	if !exists {
		return nil, errpkg.ErrBatchNotFound
	}
	return snapshot, nil
}

func cloneBatch(batch *domain.Batch) *domain.Batch {
	out := *batch
	out.Tasks = append([]domain.TransferTask(nil), batch.Tasks...)
	return &out
}

// UpdateBatch updates an existing batch and persists it to the state file.
func (r *BatchStorage) UpdateBatch(ctx context.Context, batch *domain.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	batch.UpdatedAt = time.Now()
	r.batches[batch.ID] = batch
	r.mu.Unlock()

	if err := r.persistBatches(); err != nil {
		return fmt.Errorf("failed to save state after updating batch: %w", err)
	}

	slog.Debug("batch updated and saved", "batch_id", batch.ID, "status", batch.Status)
	return nil
}

// GetBatchesByStatus returns all batches with the specified status.
func (r *BatchStorage) GetBatchesByStatus(ctx context.Context, status domain.BatchStatus) ([]*domain.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	var filtered []*domain.Batch
	for _, batch := range r.batches {
		if batch.Status == status {
			filtered = append(filtered, batch)
		}
	}
	r.mu.RUnlock()

	return filtered, nil
}
