// Package worker schedules transfer tasks under a bounded concurrency
// budget and drives the per-task retry loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nkosarev/mirrorfetch/internal/domain"
	errs "github.com/nkosarev/mirrorfetch/internal/errors"
	"github.com/nkosarev/mirrorfetch/internal/metrics"
	"github.com/nkosarev/mirrorfetch/internal/mirror"
	"github.com/nkosarev/mirrorfetch/internal/transfer"
)

// Coordinator runs batches of transfer tasks. At most maxConcurrency
// transfers are in flight at once; queued tasks wait ordered by caller
// priority, then submission order.
type Coordinator struct {
	registry   *mirror.Registry
	selector   *mirror.Selector
	engine     *transfer.Engine
	classifier *transfer.Classifier
	logger     *slog.Logger
}

// NewCoordinator wires the engine, selector and classifier together.
func NewCoordinator(
	registry *mirror.Registry,
	selector *mirror.Selector,
	engine *transfer.Engine,
	classifier *transfer.Classifier,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		registry:   registry,
		selector:   selector,
		engine:     engine,
		classifier: classifier,
		logger:     logger,
	}
}

// Run executes every task and returns when all have reached completed,
// paused or failed. A single task failure never aborts siblings; a fatal
// local error cancels the rest of the batch, leaving untouched tasks
// pending and interrupted ones paused. Cancelling ctx stops new transfers
// and brings in-flight ones to a consistent paused state.
func (c *Coordinator) Run(ctx context.Context, tasks []*domain.TransferTask, maxConcurrency int) error {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	order := make([]int, len(tasks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return tasks[order[a]].Priority > tasks[order[b]].Priority
	})

	g, runCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)

	for _, idx := range order {
		task := tasks[idx]
		if task.Status.Terminal() {
			continue
		}
		g.Go(func() error {
			if runCtx.Err() != nil {
				// Batch aborted before this task was dispatched.
				return nil
			}
			return c.runTask(runCtx, task)
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("batch aborted: %w", err)
	}
	return nil
}

// runTask drives one task through selection, transfer and classification
// until it reaches a terminal or paused state. Returns an error only for
// fatal local failures, which cancels the sibling tasks via the group.
func (c *Coordinator) runTask(ctx context.Context, task *domain.TransferTask) error {
	task.Status = domain.TaskStatusInFlight

	tried := make(map[string]bool)
	sameMirror := 0
	// A retry-same verdict pins the mirror for the next attempt instead of
	// re-entering the weighted draw.
	var pinned *domain.MirrorSite

	for task.AttemptCount < c.classifier.MaxAttempts() {
		if ctx.Err() != nil {
			c.pauseOrReset(task)
			return nil
		}

		m := pinned
		pinned = nil
		if m == nil {
			var err error
			m, err = c.pickMirror(task, tried)
			if err != nil {
				metrics.TransfersFailed.Inc()
				task.Status = domain.TaskStatusFailed
				task.Error = "all candidate mirrors exhausted"
				c.logger.Warn("task exhausted all mirrors", "identifier", task.Identifier, "attempts", task.AttemptCount)
				return nil
			}
		}

		if m.BaseURL != task.LastMirror {
			sameMirror = 0
		}
		task.LastMirror = m.BaseURL
		task.AttemptCount++

		sourceURL := m.BaseURL + task.Path
		c.logger.Info("transfer attempt",
			"identifier", task.Identifier,
			"mirror", m.Name,
			"url", sourceURL,
			"attempt", task.AttemptCount,
		)

		metrics.TransfersTotal.Inc()
		metrics.TransfersInFlight.Inc()
		start := time.Now()
		res, terr := c.engine.Transfer(ctx, sourceURL, task.DestinationPath, task.ExpectedSize, func(written, total int64) {
			task.BytesTransferred = written
		})
		metrics.TransfersInFlight.Dec()
		task.BytesTransferred = res.BytesTransferred

		if terr == nil {
			metrics.TransfersSuccess.Inc()
			metrics.TransferBytes.Add(float64(res.BytesTransferred))
			metrics.TransferDuration.Observe(time.Since(start).Seconds())
			if res.Resumed {
				metrics.TransfersResumed.Inc()
			}
			c.registry.ReportSuccess(m.BaseURL)
			c.registry.MarkPresent(m.BaseURL, task.Identifier)
			task.Status = domain.TaskStatusCompleted
			task.Error = ""
			c.logger.Info("transfer completed",
				"identifier", task.Identifier,
				"mirror", m.Name,
				"bytes", res.BytesTransferred,
			)
			return nil
		}

		if errors.Is(terr, context.Canceled) || errors.Is(terr, context.DeadlineExceeded) {
			c.pauseOrReset(task)
			return nil
		}

		c.logger.Warn("transfer attempt failed",
			"identifier", task.Identifier,
			"mirror", m.Name,
			"kind", errs.KindOf(terr),
			"error", terr,
		)

		verdict := c.classifier.Classify(terr, task.AttemptCount, sameMirror)
		if verdict.Penalize {
			metrics.MirrorFailures.Inc()
			c.registry.ReportFailure(m.BaseURL, verdict.Severity, verdict.Reason)
		}
		if verdict.MarkAbsent {
			c.registry.MarkAbsent(m.BaseURL, task.Identifier)
		}

		switch verdict.Decision {
		case transfer.DecisionAbort:
			task.Status = domain.TaskStatusFailed
			task.Error = verdict.Reason
			c.logger.Error("fatal local failure, aborting batch", "identifier", task.Identifier, "error", verdict.Reason)
			return fmt.Errorf("fatal failure on %s: %s", task.Identifier, verdict.Reason)

		case transfer.DecisionFail:
			metrics.TransfersFailed.Inc()
			task.Status = domain.TaskStatusFailed
			task.Error = verdict.Reason
			return nil

		case transfer.DecisionRetryOther:
			metrics.TransferRetries.Inc()
			tried[m.BaseURL] = true
			sameMirror = 0

		case transfer.DecisionRetrySame, transfer.DecisionPause:
			metrics.TransferRetries.Inc()
			sameMirror++
			pinned = m
			if !c.sleep(ctx, verdict.Delay) {
				c.pauseOrReset(task)
				return nil
			}
		}
	}

	// Attempt budget spent. Interrupted transfers keep their partial file
	// and stay resumable; everything else is a hard failure.
	if task.BytesTransferred > 0 && task.ExpectedSize != task.BytesTransferred {
		task.Status = domain.TaskStatusPaused
		task.Error = "attempt budget exhausted, partial file retained"
	} else {
		task.Status = domain.TaskStatusFailed
		task.Error = "attempt budget exhausted"
	}
	metrics.TransfersFailed.Inc()
	return nil
}

func (c *Coordinator) pickMirror(task *domain.TransferTask, tried map[string]bool) (*domain.MirrorSite, error) {
	active := c.registry.ActiveMirrors()
	candidates := make([]domain.MirrorSite, 0, len(active))
	for _, m := range active {
		if !tried[m.BaseURL] {
			candidates = append(candidates, m)
		}
	}
	return c.selector.Select(task.Identifier, candidates)
}

// pauseOrReset records cancellation: tasks with bytes on disk pause for a
// later resume run, untouched ones go back to pending.
func (c *Coordinator) pauseOrReset(task *domain.TransferTask) {
	if task.BytesTransferred > 0 && task.Status != domain.TaskStatusCompleted {
		task.Status = domain.TaskStatusPaused
		task.Error = ""
		c.logger.Info("task paused", "identifier", task.Identifier, "bytes", task.BytesTransferred)
		return
	}
	task.Status = domain.TaskStatusPending
}

func (c *Coordinator) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
