package transfer

import (
	"errors"
	"time"

	errs "github.com/nkosarev/mirrorfetch/internal/errors"
	"github.com/nkosarev/mirrorfetch/internal/mirror"
)

// Decision is what the classifier tells the coordinator to do next with a
// failed attempt.
type Decision int

const (
	// DecisionRetrySame retries the same mirror, after Verdict.Delay.
	DecisionRetrySame Decision = iota
	// DecisionRetryOther retries a different mirror immediately.
	DecisionRetryOther
	// DecisionPause keeps the partial file and schedules a resume attempt.
	DecisionPause
	// DecisionFail marks this task failed; siblings keep running.
	DecisionFail
	// DecisionAbort halts the whole batch (local resource failure).
	DecisionAbort
)

// Verdict carries the decision plus the registry side effects the
// coordinator must apply.
type Verdict struct {
	Decision   Decision
	Delay      time.Duration
	Severity   mirror.Severity
	MarkAbsent bool
	Penalize   bool
	Reason     string
}

// ClassifierOptions bounds retry behavior.
type ClassifierOptions struct {
	// MaxAttempts is the total attempt budget per task across all mirrors.
	MaxAttempts int
	// MaxSameMirrorRetries bounds consecutive retries against one mirror
	// for connection-level failures before moving on.
	MaxSameMirrorRetries int
	RetryBackoff         time.Duration
	RateLimitBackoff     time.Duration
}

// DefaultClassifierOptions returns options with sensible defaults.
func DefaultClassifierOptions() ClassifierOptions {
	return ClassifierOptions{
		MaxAttempts:          6,
		MaxSameMirrorRetries: 2,
		RetryBackoff:         2 * time.Second,
		RateLimitBackoff:     10 * time.Second,
	}
}

// Classifier maps transfer outcomes to retry, fallback, pause or fatal
// decisions.
type Classifier struct {
	opts ClassifierOptions
}

// NewClassifier creates a classifier.
func NewClassifier(opts ClassifierOptions) *Classifier {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultClassifierOptions().MaxAttempts
	}
	return &Classifier{opts: opts}
}

// MaxAttempts exposes the per-task attempt budget.
func (c *Classifier) MaxAttempts() int {
	return c.opts.MaxAttempts
}

// Classify decides what to do with a failed attempt. attempt counts all
// attempts for the task so far; sameMirror counts consecutive attempts
// against the current mirror.
func (c *Classifier) Classify(err error, attempt, sameMirror int) Verdict {
	var te *errs.TransferError
	if !errors.As(err, &te) {
		if errors.Is(err, errs.ErrExhausted) {
			return Verdict{Decision: DecisionFail, Reason: "all candidate mirrors exhausted"}
		}
		return Verdict{Decision: DecisionRetryOther, Penalize: true, Severity: mirror.SeverityModerate, Reason: err.Error()}
	}

	switch te.Kind {
	case errs.KindNotFound:
		// Absence at one mirror says little about the mirror itself.
		return Verdict{
			Decision:   DecisionRetryOther,
			Severity:   mirror.SeverityMinor,
			MarkAbsent: true,
			Penalize:   true,
			Reason:     te.Error(),
		}

	case errs.KindRateLimited:
		return Verdict{
			Decision: DecisionRetrySame,
			Delay:    c.opts.RateLimitBackoff,
			Severity: mirror.SeverityMinor,
			Penalize: true,
			Reason:   te.Error(),
		}

	case errs.KindTransient:
		if te.Interrupted {
			// Partial file retained on disk; resume against the same
			// mirror after a short pause.
			return Verdict{
				Decision: DecisionPause,
				Delay:    c.opts.RetryBackoff,
				Severity: mirror.SeverityMinor,
				Penalize: true,
				Reason:   te.Error(),
			}
		}
		if te.StatusCode >= 500 {
			return Verdict{
				Decision: DecisionRetryOther,
				Severity: mirror.SeverityModerate,
				Penalize: true,
				Reason:   te.Error(),
			}
		}
		// Timeout or connection reset: give the same mirror a bounded
		// number of chances before moving on.
		if sameMirror < c.opts.MaxSameMirrorRetries {
			return Verdict{
				Decision: DecisionRetrySame,
				Delay:    c.opts.RetryBackoff * time.Duration(sameMirror+1),
				Severity: mirror.SeverityModerate,
				Penalize: true,
				Reason:   te.Error(),
			}
		}
		return Verdict{
			Decision: DecisionRetryOther,
			Severity: mirror.SeverityModerate,
			Penalize: true,
			Reason:   te.Error(),
		}

	case errs.KindIntegrityMismatch:
		// The engine already restarted from zero once; the mirror's copy
		// does not match, so try another.
		return Verdict{
			Decision: DecisionRetryOther,
			Severity: mirror.SeverityModerate,
			Penalize: true,
			Reason:   te.Error(),
		}

	case errs.KindExhausted:
		return Verdict{Decision: DecisionFail, Reason: "all candidate mirrors exhausted"}

	case errs.KindFatal:
		return Verdict{Decision: DecisionAbort, Reason: te.Error()}

	default:
		return Verdict{Decision: DecisionFail, Reason: te.Error()}
	}
}
