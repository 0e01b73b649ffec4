package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransferRequest describes one requested transfer inside a batch.
type TransferRequest struct {
	Identifier  string `json:"identifier" validate:"required"`
	Path        string `json:"path" validate:"required"`
	Destination string `json:"destination" validate:"required"`
	Size        int64  `json:"size,omitempty" validate:"gte=0"`
	Priority    int    `json:"priority,omitempty" validate:"gte=0,lte=10"`
}

// CreateBatchRequest represents the request body for submitting a batch of
// transfers.
type CreateBatchRequest struct {
	Transfers []TransferRequest `json:"transfers" validate:"required,min=1,max=100,dive"`
}

// BatchResponse represents the response returned for a batch, including one
// outcome record per submitted transfer.
type BatchResponse struct {
	ID        uuid.UUID      `json:"batch_id"`
	Status    BatchStatus    `json:"status"`
	Stats     BatchStats     `json:"stats"`
	Tasks     []TransferTask `json:"tasks"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// AddMirrorRequest represents the request body for registering a mirror.
type AddMirrorRequest struct {
	Name     string `json:"name" validate:"required"`
	BaseURL  string `json:"base_url" validate:"required,url"`
	Country  string `json:"country,omitempty" validate:"omitempty,len=2"`
	Priority int    `json:"priority" validate:"gte=1,lte=10"`
}

// DeactivateMirrorRequest represents the request body for taking a mirror
// out of rotation.
type DeactivateMirrorRequest struct {
	BaseURL string `json:"base_url" validate:"required,url"`
}
