package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nkosarev/mirrorfetch/internal/domain"
	errpkg "github.com/nkosarev/mirrorfetch/internal/errors"
)

func newTestBatch(status domain.BatchStatus) *domain.Batch {
	return &domain.Batch{
		ID:     uuid.New(),
		Status: status,
		Tasks: []domain.TransferTask{
			{Identifier: "id-1", Path: "/item", DestinationPath: "item.bin", Status: domain.TaskStatusPending},
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func TestBatchStorage_CreateAndGet(t *testing.T) {
	file := filepath.Join(t.TempDir(), "state.json")
	repo, err := NewBatchStorage(file)
	if err != nil {
		t.Fatalf("NewBatchStorage error: %v", err)
	}

	batch := newTestBatch(domain.BatchStatusPending)
	if err := repo.CreateBatch(context.Background(), batch); err != nil {
		t.Fatalf("CreateBatch error: %v", err)
	}

	got, err := repo.GetBatch(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("GetBatch error: %v", err)
	}
	if got.ID != batch.ID {
		t.Errorf("expected ID %s, got %s", batch.ID, got.ID)
	}
}

func TestBatchStorage_GetReturnsSnapshot(t *testing.T) {
	repo, err := NewBatchStorage(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("NewBatchStorage error: %v", err)
	}

	batch := newTestBatch(domain.BatchStatusPending)
	if err := repo.CreateBatch(context.Background(), batch); err != nil {
		t.Fatalf("CreateBatch error: %v", err)
	}

	first, err := repo.GetBatch(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("GetBatch error: %v", err)
	}
	first.Status = domain.BatchStatusFailed
	first.Tasks[0].Status = domain.TaskStatusFailed

	second, err := repo.GetBatch(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("GetBatch error: %v", err)
	}
	if second.Status != domain.BatchStatusPending {
		t.Errorf("mutating a returned batch leaked into storage: status %s", second.Status)
	}
	if second.Tasks[0].Status != domain.TaskStatusPending {
		t.Errorf("mutating a returned task leaked into storage: status %s", second.Tasks[0].Status)
	}
}

func TestBatchStorage_GetMissingReturnsNotFound(t *testing.T) {
	repo, err := NewBatchStorage(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("NewBatchStorage error: %v", err)
	}

	_, err = repo.GetBatch(context.Background(), uuid.New())
	if !errors.Is(err, errpkg.ErrBatchNotFound) {
		t.Errorf("expected ErrBatchNotFound, got %v", err)
	}
}

func TestBatchStorage_StateSurvivesRestart(t *testing.T) {
	file := filepath.Join(t.TempDir(), "state.json")
	repo, err := NewBatchStorage(file)
	if err != nil {
		t.Fatalf("NewBatchStorage error: %v", err)
	}

	batch := newTestBatch(domain.BatchStatusPending)
	batch.Tasks[0].Status = domain.TaskStatusPaused
	batch.Tasks[0].BytesTransferred = 1234
	if err := repo.CreateBatch(context.Background(), batch); err != nil {
		t.Fatalf("CreateBatch error: %v", err)
	}

	reloaded, err := NewBatchStorage(file)
	if err != nil {
		t.Fatalf("NewBatchStorage reload error: %v", err)
	}

	got, err := reloaded.GetBatch(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("GetBatch after reload error: %v", err)
	}
	if got.Tasks[0].Status != domain.TaskStatusPaused {
		t.Errorf("expected paused task restored, got %s", got.Tasks[0].Status)
	}
	if got.Tasks[0].BytesTransferred != 1234 {
		t.Errorf("expected byte count restored, got %d", got.Tasks[0].BytesTransferred)
	}
}

func TestBatchStorage_GetBatchesByStatus(t *testing.T) {
	repo, err := NewBatchStorage(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("NewBatchStorage error: %v", err)
	}

	pending := newTestBatch(domain.BatchStatusPending)
	completed := newTestBatch(domain.BatchStatusCompleted)
	for _, b := range []*domain.Batch{pending, completed} {
		if err := repo.CreateBatch(context.Background(), b); err != nil {
			t.Fatalf("CreateBatch error: %v", err)
		}
	}

	got, err := repo.GetBatchesByStatus(context.Background(), domain.BatchStatusPending)
	if err != nil {
		t.Fatalf("GetBatchesByStatus error: %v", err)
	}
	if len(got) != 1 || got[0].ID != pending.ID {
		t.Errorf("expected only the pending batch, got %d batches", len(got))
	}
}
