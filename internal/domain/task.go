package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a TransferTask.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusInFlight  TaskStatus = "in_flight"
	TaskStatusPaused    TaskStatus = "paused"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether the status admits no further automatic work.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// BatchStatus represents the current state of a Batch.
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusInProgress BatchStatus = "in_progress"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

// TransferTask is one identifier-to-destination transfer request tracked
// through its own state machine. DestinationPath is relative to the
// configured download directory; Path is the canonical path for the
// identifier supplied by the catalog collaborator.
type TransferTask struct {
	Identifier       string     `json:"identifier"`
	Path             string     `json:"path"`
	DestinationPath  string     `json:"destination_path"`
	ExpectedSize     int64      `json:"expected_size,omitempty"`
	Priority         int        `json:"priority,omitempty"`
	BytesTransferred int64      `json:"bytes_transferred"`
	Status           TaskStatus `json:"status"`
	AttemptCount     int        `json:"attempt_count"`
	LastMirror       string     `json:"last_mirror,omitempty"`
	Error            string     `json:"error,omitempty"`
}

// Batch groups the transfer tasks submitted in one request.
type Batch struct {
	ID        uuid.UUID      `json:"id"`
	Status    BatchStatus    `json:"status"`
	Tasks     []TransferTask `json:"tasks"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Finished reports whether every task in the batch reached a terminal or
// paused state.
func (b *Batch) Finished() bool {
	for i := range b.Tasks {
		st := b.Tasks[i].Status
		if st != TaskStatusCompleted && st != TaskStatusFailed && st != TaskStatusPaused {
			return false
		}
	}
	return true
}

// BatchStats aggregates per-task outcomes for reporting.
type BatchStats struct {
	Total            int   `json:"total"`
	Completed        int   `json:"completed"`
	Failed           int   `json:"failed"`
	Paused           int   `json:"paused"`
	Pending          int   `json:"pending"`
	BytesTransferred int64 `json:"bytes_transferred"`
}

// Stats computes aggregate counts and the total bytes on disk across the
// batch's tasks.
func (b *Batch) Stats() BatchStats {
	stats := BatchStats{Total: len(b.Tasks)}
	for i := range b.Tasks {
		t := &b.Tasks[i]
		stats.BytesTransferred += t.BytesTransferred
		switch t.Status {
		case TaskStatusCompleted:
			stats.Completed++
		case TaskStatusFailed:
			stats.Failed++
		case TaskStatusPaused:
			stats.Paused++
		default:
			stats.Pending++
		}
	}
	return stats
}
