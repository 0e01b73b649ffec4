// Package transfer performs single resumable streamed transfers and
// classifies their failures.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	errs "github.com/nkosarev/mirrorfetch/internal/errors"
	"github.com/nkosarev/mirrorfetch/internal/storage"
)

// ProgressFunc observes transfer progress. written is the total bytes on
// disk so far, total the expected size (0 when unknown).
type ProgressFunc func(written, total int64)

// EngineOptions configures the transfer engine.
type EngineOptions struct {
	// Timeout bounds one whole request. Generous, since bodies are large;
	// HeaderTimeout bounds the wait for response headers.
	Timeout       time.Duration
	HeaderTimeout time.Duration
	ChunkSize     int
	UserAgent     string
}

// DefaultEngineOptions returns options with sensible defaults.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		Timeout:       30 * time.Minute,
		HeaderTimeout: 30 * time.Second,
		ChunkSize:     32 * 1024,
		UserAgent:     "mirrorfetch/1.0",
	}
}

// Result describes the bytes on disk after a transfer attempt. On typed
// failure it accompanies the error: a retained partial file shows up here
// as BytesTransferred with Completed false.
type Result struct {
	BytesTransferred int64
	Completed        bool
	Resumed          bool
}

// Engine executes one resumable, streamed transfer per call. It never
// buffers whole artifacts in memory.
type Engine struct {
	files  *storage.FileStorage
	client *http.Client
	opts   EngineOptions
	logger *slog.Logger
}

// NewEngine creates a transfer engine writing through files.
func NewEngine(files *storage.FileStorage, opts EngineOptions, logger *slog.Logger) *Engine {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 32 * 1024
	}
	return &Engine{
		files: files,
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				ResponseHeaderTimeout: opts.HeaderTimeout,
			},
		},
		opts:   opts,
		logger: logger,
	}
}

// Transfer streams sourceURL to dest (relative to the download dir),
// resuming from an existing partial file when possible. expectedSize of 0
// means unknown. A destination already matching expectedSize short-circuits
// without any network request.
func (e *Engine) Transfer(ctx context.Context, sourceURL, dest string, expectedSize int64, progress ProgressFunc) (Result, error) {
	offset, exists, err := e.files.PartialSize(dest)
	if err != nil {
		return Result{}, &errs.TransferError{Kind: errs.KindFatal, Err: err}
	}

	if exists && expectedSize > 0 {
		if offset == expectedSize {
			e.logger.Debug("destination already complete", "dest", dest, "size", offset)
			return Result{BytesTransferred: offset, Completed: true}, nil
		}
		if offset > expectedSize {
			// Stale partial from a different resource revision.
			e.logger.Warn("partial file larger than expected, restarting", "dest", dest, "partial", offset, "expected", expectedSize)
			if err := e.files.Remove(dest); err != nil {
				return Result{}, &errs.TransferError{Kind: errs.KindFatal, Err: err}
			}
			offset = 0
		}
	}
	if !exists {
		offset = 0
	}

	res, terr := e.attempt(ctx, sourceURL, dest, expectedSize, offset, progress)
	if terr != nil {
		var te *errs.TransferError
		if errors.As(terr, &te) && te.Kind == errs.KindIntegrityMismatch && offset > 0 {
			// Stale resume state must never be silently kept: drop the
			// partial and retry once from byte zero.
			e.logger.Warn("resumed transfer failed integrity check, restarting from zero", "dest", dest)
			if rmErr := e.files.Remove(dest); rmErr != nil {
				return Result{}, e.withMirror(&errs.TransferError{Kind: errs.KindFatal, Err: rmErr}, sourceURL)
			}
			res, terr = e.attempt(ctx, sourceURL, dest, expectedSize, 0, progress)
		}
	}
	return res, e.withMirror(terr, sourceURL)
}

// withMirror stamps the mirror host onto a typed failure so messages name
// the mirror the attempt went through.
func (e *Engine) withMirror(err error, sourceURL string) error {
	if err == nil {
		return nil
	}
	var te *errs.TransferError
	if errors.As(err, &te) && te.Mirror == "" {
		if u, uerr := url.Parse(sourceURL); uerr == nil {
			te.Mirror = u.Host
		}
	}
	return err
}

func (e *Engine) attempt(ctx context.Context, sourceURL, dest string, expectedSize, offset int64, progress ProgressFunc) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return Result{}, &errs.TransferError{Kind: errs.KindFatal, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", e.opts.UserAgent)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{BytesTransferred: offset}, ctx.Err()
		}
		return Result{BytesTransferred: offset}, &errs.TransferError{Kind: errs.KindTransient, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Result{BytesTransferred: offset}, &errs.TransferError{Kind: errs.KindNotFound, StatusCode: resp.StatusCode, Err: fmt.Errorf("status %s", resp.Status)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return Result{BytesTransferred: offset}, &errs.TransferError{Kind: errs.KindRateLimited, StatusCode: resp.StatusCode, Err: fmt.Errorf("status %s", resp.Status)}
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		// A 416 to an unranged request is a mirror defect, not stale resume
		// state; restarting would loop forever against the same answer.
		if offset == 0 {
			return Result{}, &errs.TransferError{Kind: errs.KindTransient, StatusCode: resp.StatusCode, Err: fmt.Errorf("status %s to unranged request", resp.Status)}
		}
		// The partial no longer lines up with the resource; discard it and
		// start over.
		if err := e.files.Remove(dest); err != nil {
			return Result{}, &errs.TransferError{Kind: errs.KindFatal, Err: err}
		}
		e.logger.Warn("range not satisfiable, restarting from zero", "url", sourceURL, "dest", dest)
		return e.attempt(ctx, sourceURL, dest, expectedSize, 0, progress)
	case resp.StatusCode >= 500:
		return Result{BytesTransferred: offset}, &errs.TransferError{Kind: errs.KindTransient, StatusCode: resp.StatusCode, Err: fmt.Errorf("status %s", resp.Status)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return Result{BytesTransferred: offset}, &errs.TransferError{Kind: errs.KindTransient, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	resumed := offset > 0
	if resumed && resp.StatusCode != http.StatusPartialContent {
		// Server ignored the range header: fall back to a full restart.
		e.logger.Debug("server ignored range request, restarting from zero", "url", sourceURL)
		offset = 0
		resumed = false
	}

	if expectedSize > 0 && resp.ContentLength > 0 {
		if total := offset + resp.ContentLength; total != expectedSize {
			if offset > 0 {
				// Resource changed since the partial was written.
				if err := e.files.Remove(dest); err != nil {
					return Result{}, &errs.TransferError{Kind: errs.KindFatal, Err: err}
				}
				e.logger.Warn("resource size changed, restarting from zero", "url", sourceURL, "got", total, "expected", expectedSize)
				return e.attempt(ctx, sourceURL, dest, expectedSize, 0, progress)
			}
			return Result{}, &errs.TransferError{
				Kind:       errs.KindIntegrityMismatch,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("server reports %d bytes, expected %d", resp.ContentLength, expectedSize),
			}
		}
	}

	var file *os.File
	if offset > 0 {
		file, err = e.files.OpenAppend(dest)
	} else {
		file, err = e.files.Create(dest)
	}
	if err != nil {
		return Result{BytesTransferred: offset}, &errs.TransferError{Kind: errs.KindFatal, Err: err}
	}
	defer file.Close()

	written, copyErr := e.copyChunks(ctx, file, resp.Body, offset, expectedSize, progress)
	total := offset + written

	if copyErr != nil {
		// Flush what arrived so the partial file is a consistent resume
		// point, then report.
		if syncErr := file.Sync(); syncErr != nil {
			return Result{BytesTransferred: total}, &errs.TransferError{Kind: errs.KindFatal, Err: syncErr}
		}
		if errors.Is(copyErr, context.Canceled) || errors.Is(copyErr, context.DeadlineExceeded) {
			return Result{BytesTransferred: total, Resumed: resumed}, copyErr
		}
		var te *errs.TransferError
		if errors.As(copyErr, &te) {
			return Result{BytesTransferred: total, Resumed: resumed}, copyErr
		}
		return Result{BytesTransferred: total, Resumed: resumed}, &errs.TransferError{
			Kind:        errs.KindTransient,
			Interrupted: true,
			Err:         fmt.Errorf("stream interrupted: %w", copyErr),
		}
	}

	if expectedSize > 0 && total != expectedSize {
		// A size mismatch at completion is an integrity failure, not a
		// silent success. Remove the file so no stale state lingers.
		if err := e.files.Remove(dest); err != nil {
			return Result{}, &errs.TransferError{Kind: errs.KindFatal, Err: err}
		}
		return Result{}, &errs.TransferError{
			Kind: errs.KindIntegrityMismatch,
			Err:  fmt.Errorf("wrote %d bytes, expected %d", total, expectedSize),
		}
	}

	e.logger.Debug("transfer completed", "url", sourceURL, "dest", dest, "bytes", total, "resumed", resumed)
	return Result{BytesTransferred: total, Completed: true, Resumed: resumed}, nil
}

// copyChunks streams src to dst chunk by chunk, observing ctx between
// chunks so cancellation always lands on a flushed boundary.
func (e *Engine) copyChunks(ctx context.Context, dst *os.File, src io.Reader, offset, expectedSize int64, progress ProgressFunc) (int64, error) {
	buf := make([]byte, e.opts.ChunkSize)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, readErr := src.Read(buf)
		if nr > 0 {
			nw, writeErr := dst.Write(buf[:nr])
			if nw > 0 {
				written += int64(nw)
				if progress != nil {
					progress(offset+written, expectedSize)
				}
			}
			if writeErr != nil {
				return written, &errs.TransferError{Kind: errs.KindFatal, Err: writeErr}
			}
			if nw != nr {
				return written, &errs.TransferError{Kind: errs.KindFatal, Err: io.ErrShortWrite}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return written, nil
			}
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			return written, readErr
		}
	}
}
