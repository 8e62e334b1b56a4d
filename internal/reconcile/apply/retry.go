package apply

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/enthus-appdev/n8nctl/internal/reconcile/op"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/report"
)

type temporary interface {
	Temporary() bool
}

type notFound interface {
	NotFound() bool
}

// IsTransient reports whether err is worth retrying: timeouts, network
// failures and errors that classify themselves as temporary (429, 5xx).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t temporary
	if errors.As(err, &t) && t.Temporary() {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}

// IsNotFound reports whether err means the target entity does not exist.
func IsNotFound(err error) bool {
	var nf notFound
	return errors.As(err, &nf) && nf.NotFound()
}

// classify maps the last error of an operation to its failure class.
func classify(o op.Operation, err error) report.FailureClass {
	switch {
	case !IsTransient(err):
		return report.FailureRejected
	case !o.Idempotent():
		return report.FailureAmbiguous
	default:
		return report.FailureTransient
	}
}

func (e *Executor) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.opts.InitialBackoff
	b.MaxInterval = e.opts.MaxBackoff
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.opts.MaxRetries)), ctx)
}

// retry runs call until it succeeds, fails permanently, or the retry budget
// is spent. Only idempotent operations are retried, and only on transient
// errors. Retrying stops early when ctx is cancelled; the call in progress
// is never interrupted. It returns the number of attempts and the last error.
func (e *Executor) retry(ctx context.Context, o op.Operation, call func() error) (int, error) {
	var (
		attempts int
		last     error
	)
	operation := func() error {
		attempts++
		last = call()
		if last == nil {
			return nil
		}
		if !o.Idempotent() || !IsTransient(last) {
			return backoff.Permanent(last)
		}
		return last
	}
	notify := func(err error, wait time.Duration) {
		e.logger.Warn().
			Err(err).
			Str("operation", o.String()).
			Int("attempt", attempts).
			Dur("backoff", wait).
			Msg("Retrying operation")
	}

	// The returned error may be ctx.Err(); the call's own error is what matters.
	_ = backoff.RetryNotify(operation, e.newBackOff(ctx), notify)
	return attempts, last
}
