// Package errors defines the transfer error taxonomy shared by the engine,
// the failure classifier and the mirror registry.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrBatchNotFound  = errors.New("batch not found")
	ErrMirrorNotFound = errors.New("mirror not found")
	ErrExhausted      = errors.New("no eligible mirror remaining")
)

// Kind classifies a transfer failure for retry and routing decisions.
type Kind string

const (
	// KindNotFound means the resource is absent at a specific mirror,
	// not necessarily absent everywhere.
	KindNotFound Kind = "not_found"
	// KindTransient covers timeouts, connection resets and 5xx answers.
	KindTransient Kind = "transient"
	// KindRateLimited means the mirror asked us to slow down (429).
	KindRateLimited Kind = "rate_limited"
	// KindIntegrityMismatch means the byte count on disk disagrees with
	// the expected size after the stream closed.
	KindIntegrityMismatch Kind = "integrity_mismatch"
	// KindExhausted means no eligible mirror remains for the task.
	KindExhausted Kind = "exhausted"
	// KindFatal covers local resource failures such as disk or permission
	// errors; it halts the whole batch.
	KindFatal Kind = "fatal"
)

// TransferError is a typed failure of one transfer attempt.
type TransferError struct {
	Kind        Kind
	Mirror      string
	StatusCode  int
	Interrupted bool // stream broke mid-body, partial file retained
	Err         error
}

func (e *TransferError) Error() string {
	if e.Mirror != "" {
		return fmt.Sprintf("transfer via %s: %s: %v", e.Mirror, e.Kind, e.Err)
	}
	return fmt.Sprintf("transfer: %s: %v", e.Kind, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from err, defaulting to KindTransient
// for untyped errors.
func KindOf(err error) Kind {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, ErrExhausted) {
		return KindExhausted
	}
	return KindTransient
}
