// Package reconcile composes the reconciliation pipeline: load desired and
// current state, diff, order, apply and report.
package reconcile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/enthus-appdev/n8nctl/internal/reconcile/apply"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/differ"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/entity"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/loader"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/plan"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/report"
)

// Remote is the capability set the engine needs from an n8n instance.
type Remote interface {
	loader.Lister
	apply.Mutator
}

// Options configures a reconciliation run.
type Options struct {
	PreserveUntracked bool
	HashMode          entity.HashMode
	Apply             apply.Options
}

// Reconciler runs the pipeline. It holds no state between runs.
type Reconciler struct {
	opts      Options
	logger    zerolog.Logger
	executors []apply.Option
}

// New creates a reconciler. The apply options wire metrics and tracing into
// the executor.
func New(opts Options, logger zerolog.Logger, executorOptions ...apply.Option) *Reconciler {
	if opts.HashMode == "" {
		opts.HashMode = entity.HashStructural
	}
	return &Reconciler{
		opts:      opts,
		logger:    logger,
		executors: append([]apply.Option{apply.WithLogger(logger)}, executorOptions...),
	}
}

// Run loads the definitions below path and reconciles remote against them.
// A non-nil error means the run was aborted before any mutation.
func (r *Reconciler) Run(ctx context.Context, path string, remote Remote) (*report.Result, error) {
	desired, err := loader.NewLocal(r.opts.HashMode, r.logger).Load(ctx, path)
	if err != nil {
		return nil, err
	}
	return r.Reconcile(ctx, desired, remote)
}

// Reconcile converges remote toward an already loaded desired state.
func (r *Reconciler) Reconcile(ctx context.Context, desired *entity.Collection, remote Remote) (*report.Result, error) {
	current, err := loader.NewRemote(r.opts.HashMode, r.logger).Load(ctx, remote)
	if err != nil {
		return nil, err
	}

	p, err := r.Plan(desired, current)
	if err != nil {
		return nil, err
	}

	return apply.New(remote, r.opts.Apply, r.executors...).Apply(ctx, p, current), nil
}

// Plan computes the ordered operations turning current into desired.
func (r *Reconciler) Plan(desired, current *entity.Collection) (*plan.Plan, error) {
	delta := differ.Diff(desired, current, differ.Options{PreserveUntracked: r.opts.PreserveUntracked})

	p, err := plan.Order(delta, desired, current)
	if err != nil {
		return nil, fmt.Errorf("failed to order operations: %w", err)
	}

	r.logger.Info().
		Int("operations", p.Len()).
		Int("preserved", len(p.Preserved)).
		Msg("Computed plan")
	return p, nil
}
