// Package apply executes a plan against a remote instance. It is the only
// stage of the pipeline that mutates remote state.
package apply

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/enthus-appdev/n8nctl/internal/reconcile/entity"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/op"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/plan"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/report"
)

// Defaults used when Options leaves a field unset.
const (
	DefaultConcurrency    = 4
	DefaultMaxRetries     = 3
	DefaultCallTimeout    = 30 * time.Second
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 10 * time.Second
)

// Mutator is the mutating half of the remote capability set.
type Mutator interface {
	Create(ctx context.Context, e entity.Entity, ids entity.Resolver) (string, error)
	Update(ctx context.Context, remoteID string, e entity.Entity, ids entity.Resolver) error
	Delete(ctx context.Context, ref entity.Ref, remoteID string) error
	SetActive(ctx context.Context, ref entity.Ref, remoteID string, active bool) error
}

// Options tunes the executor.
type Options struct {
	// Concurrency bounds the number of remote calls in flight.
	Concurrency int
	// MaxRetries bounds the retries of an idempotent operation; zero disables retrying.
	MaxRetries int
	// CallTimeout applies to every single remote call.
	CallTimeout time.Duration

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// DryRun records every operation as skipped without calling the remote.
	DryRun bool
}

// DefaultOptions returns the options used by the CLI when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Concurrency:    DefaultConcurrency,
		MaxRetries:     DefaultMaxRetries,
		CallTimeout:    DefaultCallTimeout,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
	}
}

// Option configures optional collaborators of the executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger.With().Str("component", "apply").Logger()
	}
}

// WithMetrics records per-operation metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithTracer sets the tracer used for per-operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) { e.tracer = t }
}

// Executor applies plans. It never rolls back: every outcome is recorded and
// a later run converges whatever was left over.
type Executor struct {
	remote  Mutator
	opts    Options
	logger  zerolog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// New creates an executor for the given remote.
func New(remote Mutator, opts Options, options ...Option) *Executor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = DefaultInitialBackoff
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = max(DefaultMaxBackoff, opts.InitialBackoff)
	}

	e := &Executor{
		remote: remote,
		opts:   opts,
		logger: zerolog.Nop(),
		tracer: otel.Tracer("github.com/enthus-appdev/n8nctl/apply"),
	}
	for _, o := range options {
		o(e)
	}
	return e
}

// Apply runs every operation of p whose dependencies were applied. current is
// the state the plan was computed against; it seeds the id registry. Cancelling
// ctx stops dispatching; calls already in flight run to completion.
func (e *Executor) Apply(ctx context.Context, p *plan.Plan, current *entity.Collection) *report.Result {
	res := report.NewResult(p.Len(), p.Preserved)
	defer func() { res.FinishedAt = time.Now() }()

	logger := e.logger.With().Str("run", res.RunID).Logger()
	logger.Info().Int("operations", p.Len()).Bool("dry_run", e.opts.DryRun).Msg("Applying plan")

	if e.opts.DryRun {
		for i, o := range p.Operations {
			e.record(logger, res, i, report.Skipped(o, report.ReasonDryRun))
		}
		return res
	}

	e.dispatch(ctx, logger, p, res, NewRegistry(current))
	return res
}

type completion struct {
	index   int
	outcome report.Outcome
	ready   []int
}

// dispatch is the single owner of the ready queue and of the outcome slots.
// Workers only run remote calls and settle dependency counters.
func (e *Executor) dispatch(ctx context.Context, logger zerolog.Logger, p *plan.Plan, res *report.Result, ids *Registry) {
	s := newScheduler(p)
	completions := make(chan completion, p.Len())

	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)

	inflight := 0
	done := ctx.Done()
	cancelled := false

	for {
		for !cancelled && s.ready.Len() > 0 && inflight < e.opts.Concurrency {
			if ctx.Err() != nil {
				cancelled = true
				break
			}
			i := s.pop()
			o := p.Operations[i]

			if s.blocked(i) {
				e.record(logger, res, i, report.Skipped(o, report.ReasonDependencyFailed))
				s.push(s.settle(i, false)...)
				continue
			}

			inflight++
			g.Go(func() error {
				out := e.execute(ctx, o, ids)
				completions <- completion{
					index:   i,
					outcome: out,
					ready:   s.settle(i, out.Status == report.StatusApplied),
				}
				return nil
			})
		}

		if inflight == 0 {
			break
		}

		select {
		case c := <-completions:
			inflight--
			e.record(logger, res, c.index, c.outcome)
			s.push(c.ready...)
		case <-done:
			cancelled = true
			done = nil
		}
	}
	_ = g.Wait()

	for i, o := range p.Operations {
		if res.Outcomes[i].Status == "" {
			e.record(logger, res, i, report.Skipped(o, report.ReasonCancelled))
		}
	}
}

func (e *Executor) record(logger zerolog.Logger, res *report.Result, i int, out report.Outcome) {
	res.Outcomes[i] = out
	e.metrics.observe(out)

	var evt *zerolog.Event
	switch out.Status {
	case report.StatusFailed:
		evt = logger.Error().Err(out.Err)
	case report.StatusSkipped:
		evt = logger.Warn()
		if out.Reason == report.ReasonDryRun {
			evt = logger.Info()
		}
	default:
		evt = logger.Info()
	}
	evt.Str("operation", out.Operation.String()).
		Str("status", string(out.Status)).
		Str("reason", out.Reason).
		Int("attempts", out.Attempts).
		Dur("duration", out.Duration).
		Msg("Operation finished")
}

// execute runs one operation with retries. The remote call is detached from
// run cancellation so it is never aborted mid-flight.
func (e *Executor) execute(ctx context.Context, o op.Operation, ids *Registry) report.Outcome {
	start := time.Now()

	callCtx, span := e.tracer.Start(context.WithoutCancel(ctx), "n8nctl.apply."+string(o.Kind),
		trace.WithAttributes(
			attribute.String("n8n.entity.kind", string(o.Ref.Kind)),
			attribute.String("n8n.entity.name", o.Ref.Name),
			attribute.String("n8n.operation", string(o.Kind)),
		))
	defer span.End()

	attempts, err := e.retry(ctx, o, func() error {
		return e.call(callCtx, o, ids)
	})
	span.SetAttributes(attribute.Int("n8n.attempts", attempts))

	if err != nil {
		class := classify(o, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(class))
		return report.Failed(o, class, err, attempts, time.Since(start))
	}
	span.SetStatus(codes.Ok, "")
	return report.Applied(o, attempts, time.Since(start))
}

var errUnresolved = errors.New("remote id unknown")

// call issues a single remote call under the per-call timeout.
func (e *Executor) call(ctx context.Context, o op.Operation, ids *Registry) error {
	ctx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()

	switch o.Kind {
	case op.Create:
		id, err := e.remote.Create(ctx, o.Desired, ids)
		if err != nil {
			return err
		}
		ids.Set(o.Ref, id)
		return nil

	case op.Update:
		return e.remote.Update(ctx, o.RemoteID(), o.Desired, ids)

	case op.Activate, op.Deactivate:
		id, ok := ids.RemoteID(o.Ref)
		if !ok {
			return fmt.Errorf("%s: %w", o.Ref, errUnresolved)
		}
		return e.remote.SetActive(ctx, o.Ref, id, o.Kind == op.Activate)

	case op.Delete:
		err := e.remote.Delete(ctx, o.Ref, o.RemoteID())
		if err != nil && !IsNotFound(err) {
			return err
		}
		ids.Remove(o.Ref)
		return nil
	}
	return fmt.Errorf("unsupported operation %q", o.Kind)
}
