package reconcile

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/enthus-appdev/n8nctl/internal/cmd/cmdutil"
	"github.com/enthus-appdev/n8nctl/internal/config"
	"github.com/enthus-appdev/n8nctl/internal/reconcile"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/apply"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/entity"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/report"
	"github.com/enthus-appdev/n8nctl/internal/telemetry"
	"github.com/enthus-appdev/n8nctl/internal/watch"
)

type flags struct {
	preserveUntracked bool
	dryRun            bool
	watch             bool
	hashMode          string
	concurrency       int
	maxRetries        int
	callTimeout       time.Duration
	metricsFile       string
	traceFile         string
}

// NewReconcileCmd creates the reconcile command
func NewReconcileCmd(version string) *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "reconcile <local-path> [remote-target]",
		Short: "Converge an n8n instance toward local definitions",
		Long: `Load workflow, tag and credential definitions from a directory and apply
the create, update, activate and delete operations needed to make the
remote instance match them.

The remote target is a configured instance name or a URL. For a URL the API
key is read from N8N_API_KEY. Without a target the active instance is used.

Settings from n8nctl.toml in the definition directory apply unless
overridden by flags.

Exit codes:
  0  success
  2  definition errors
  3  remote unavailable
  4  cyclic dependency
  5  one or more operations failed`,
		Example: `  n8nctl reconcile ./n8n prod
  n8nctl reconcile ./n8n https://n8n.example.com --preserve-untracked
  n8nctl reconcile ./n8n --watch`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, &f, version)
		},
	}

	cmd.Flags().BoolVar(&f.preserveUntracked, "preserve-untracked", false, "Do not delete remote entities without a definition")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Print the plan without changing the remote instance")
	cmd.Flags().BoolVar(&f.watch, "watch", false, "Reconcile again whenever definition files change")
	cmd.Flags().StringVar(&f.hashMode, "hash-mode", string(entity.HashStructural), "Workflow comparison mode: structural, or exact where embedded remote ids count as changes")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", apply.DefaultConcurrency, "Maximum number of remote calls in flight")
	cmd.Flags().IntVar(&f.maxRetries, "max-retries", apply.DefaultMaxRetries, "Retries of an idempotent operation on transient errors")
	cmd.Flags().DurationVar(&f.callTimeout, "call-timeout", apply.DefaultCallTimeout, "Timeout of a single remote call")
	cmd.Flags().StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus metrics of the run to this file")
	cmd.Flags().StringVar(&f.traceFile, "trace-file", "", "Write OpenTelemetry spans of the run to this file")

	return cmd
}

// NewPlanCmd creates the plan command, a dry run of reconcile
func NewPlanCmd(version string) *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "plan <local-path> [remote-target]",
		Short: "Show the operations reconcile would apply",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.dryRun = true
			return run(cmd, args, &f, version)
		},
	}

	cmd.Flags().BoolVar(&f.preserveUntracked, "preserve-untracked", false, "Do not delete remote entities without a definition")
	cmd.Flags().StringVar(&f.hashMode, "hash-mode", string(entity.HashStructural), "Workflow comparison mode: structural, or exact where embedded remote ids count as changes")

	return cmd
}

// options layers flags that were set explicitly over the project file.
func (f *flags) options(cmd *cobra.Command, dir string) (reconcile.Options, error) {
	opts, err := config.LoadProject(dir, reconcile.Options{
		HashMode: entity.HashStructural,
		Apply:    apply.DefaultOptions(),
	})
	if err != nil {
		return opts, err
	}

	changed := cmd.Flags().Changed
	if changed("preserve-untracked") {
		opts.PreserveUntracked = f.preserveUntracked
	}
	if changed("hash-mode") {
		mode, err := entity.ParseHashMode(f.hashMode)
		if err != nil {
			return opts, err
		}
		opts.HashMode = mode
	}
	if changed("concurrency") {
		if f.concurrency < 1 {
			return opts, fmt.Errorf("--concurrency must be at least 1")
		}
		opts.Apply.Concurrency = f.concurrency
	}
	if changed("max-retries") {
		opts.Apply.MaxRetries = f.maxRetries
	}
	if changed("call-timeout") {
		opts.Apply.CallTimeout = f.callTimeout
	}
	if f.dryRun {
		opts.Apply.DryRun = true
	}
	return opts, nil
}

func run(cmd *cobra.Command, args []string, f *flags, version string) error {
	dir := args[0]
	target := ""
	if len(args) > 1 {
		target = args[1]
	}

	logger, err := cmdutil.Logger(cmd)
	if err != nil {
		return err
	}

	opts, err := f.options(cmd, dir)
	if err != nil {
		return err
	}

	remote, instance, err := cmdutil.Remote(target)
	if err != nil {
		return err
	}
	logger.Debug().Str("instance", instance.Name).Str("url", instance.URL).Msg("Resolved remote target")

	tracing, err := telemetry.NewTracing(f.traceFile, version)
	if err != nil {
		return err
	}
	defer func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("Failed to flush traces")
		}
	}()

	executorOptions := []apply.Option{apply.WithTracer(tracing.Tracer("github.com/enthus-appdev/n8nctl/apply"))}
	var metrics *apply.Metrics
	if f.metricsFile != "" {
		metrics = apply.NewMetrics()
		executorOptions = append(executorOptions, apply.WithMetrics(metrics))
	}
	r := reconcile.New(opts, logger, executorOptions...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	once := func(ctx context.Context) error {
		res, err := r.Run(ctx, dir, remote)
		if err != nil {
			return err
		}
		if metrics != nil {
			if err := metrics.WriteFile(f.metricsFile); err != nil {
				logger.Warn().Err(err).Str("path", f.metricsFile).Msg("Failed to write metrics")
			}
		}
		if err := printResult(cmd, res); err != nil {
			return err
		}
		return report.Summarize(res).Err()
	}

	err = once(ctx)
	if !f.watch {
		return err
	}
	if err != nil {
		printError(cmd, logger, err)
	}

	return watch.Watch(ctx, dir, watch.DefaultDelay, logger, func(ctx context.Context) {
		if err := once(ctx); err != nil {
			printError(cmd, logger, err)
		}
	})
}

func printResult(cmd *cobra.Command, res *report.Result) error {
	if cmdutil.IsJSON(cmd) {
		return cmdutil.PrintJSON(map[string]interface{}{
			"summary":  report.Summarize(res),
			"outcomes": res.Outcomes,
		})
	}
	return report.WriteText(cmd.OutOrStdout(), res)
}

// printError reports a failed run in watch mode, where it does not end the command.
func printError(cmd *cobra.Command, logger zerolog.Logger, err error) {
	logger.Error().Err(err).Int("exit_code", reconcile.ExitCode(err)).Msg("Reconciliation failed")
	if !cmdutil.IsJSON(cmd) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
	}
}
