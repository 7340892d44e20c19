package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/svm/internal/app"
	"github.com/roach88/svm/internal/codec"
	"github.com/roach88/svm/internal/engine"
	"github.com/roach88/svm/internal/kits"
	"github.com/roach88/svm/internal/kits/sys"
	"github.com/roach88/svm/internal/status"
	"github.com/roach88/svm/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string        // image store path
	Config   string        // runtime config file (YAML)
	Schema   string        // schema policy for images
	Duration time.Duration // stop after this long; 0 runs until interrupted

	// StrictPlatform requires the app to carry its own sys::PlatformService
	// instead of falling back to the host platform.
	StrictPlatform bool

	// Clock allows overriding the scan clock (for testing).
	// If nil, defaults to the system clock.
	Clock engine.Clock
}

// RunSummary reports how a run ended.
type RunSummary struct {
	App      string `json:"app"`
	Result   string `json:"result"`
	Cycles   uint64 `json:"cycles"`
	Overruns uint64 `json:"overruns"`
	Restarts int    `json:"restarts"`
	Error    string `json:"error,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <source>",
		Short: "Run an app in the scan loop",
		Long: `Run an app in the scan loop until it stops, is interrupted or
--duration elapses.

The source is an app description (.cue, .yaml), a binary image (.sab) or
db:<app> for the latest image of an app in the --db image store. The app's
quit action saves it back to the image file or, with --db, as a new image
revision. A restart reloads the source and starts again.

The exit status is the app's status: 0 after a clean stop, otherwise the
numeric code that ended it (for example 43 for an image with a bad magic
number, 53 when --strict-platform finds no platform service).

Example:
  svm run plant.sab
  svm run --db ./svm.db db:plant --duration 10s
  svm run plant.yaml --config runtime.yaml --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite image store")
	cmd.Flags().StringVar(&opts.Config, "config", "", "runtime config file (YAML) overriding the app's timing")
	cmd.Flags().StringVar(&opts.Schema, "schema", "subset", "image schema policy (subset|exact|name-only)")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().BoolVar(&opts.StrictPlatform, "strict-platform", false, "require a sys::PlatformService in the app")

	return cmd
}

func runApp(opts *RunOptions, arg string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	src, err := ParseSource(arg)
	if err != nil {
		code, message := parseCompileError(err)
		return outputRunFailure(formatter, code, message, StatusOf(err))
	}
	policy, err := codec.ParseSchemaPolicy(opts.Schema)
	if err != nil {
		return outputRunFailure(formatter, ErrCodeUnsupported, err.Error(), status.InvalidArgs)
	}

	var st *store.Store
	if opts.Database != "" {
		logger.Info("opening image store", "path", opts.Database)
		st, err = store.Open(opts.Database)
		if err != nil {
			return outputRunFailure(formatter, ErrCodeDatabase, fmt.Sprintf("opening image store: %v", err), status.CannotOpenFile)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing image store", "error", closeErr)
			}
		}()
	}

	host := &engine.HostPlatform{Logger: logger}
	catalog, err := kits.Catalog(sys.WithHost(host))
	if err != nil {
		return outputRunFailure(formatter, ErrCodeGeneric, err.Error(), status.CannotInitApp)
	}
	loadOpts := LoadOptions{Catalog: catalog, Store: st, Policy: policy, Logger: logger}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()
	if opts.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test or --duration)
		}
	}()

	var (
		summary RunSummary
		res     status.Result
	)
	for {
		a, err := LoadSource(ctx, src, loadOpts)
		if err != nil {
			code, message := parseCompileError(err)
			return outputRunFailure(formatter, code, message, StatusOf(err))
		}
		sched, err := newScheduler(opts, a, src, st, host, logger)
		if err != nil {
			return outputRunFailure(formatter, ErrCodeGeneric, err.Error(), status.InvalidArgs)
		}

		formatter.VerboseLog("Running %s", a)
		res = runLoop(ctx, sched, logger)

		stats := sched.Stats()
		summary.App = a.Root().Name()
		summary.Result = res.Kind.String()
		summary.Cycles += stats.Cycles
		summary.Overruns += stats.Overruns
		if res.Err != nil {
			summary.Error = res.Err.Error()
		}

		if res.Kind != status.Restarting || ctx.Err() != nil {
			break
		}
		summary.Restarts++
		logger.Info("restarting", "source", src.String(), "restarts", summary.Restarts)
	}

	if err := outputRunSummary(formatter, summary); err != nil {
		return err
	}
	return runExitError(res)
}

// runExitError carries a result's status out as the process exit status.
// A clean stop returns nil.
func runExitError(res status.Result) error {
	code := res.ExitCode()
	if code == 0 {
		return nil
	}
	if res.Err != nil {
		return NewExitError(code, fmt.Sprintf("app %s: %v", res.Kind, res.Err))
	}
	return NewExitError(code, fmt.Sprintf("app %s", res.Kind))
}

// newScheduler configures a scheduler for one load of the app.
func newScheduler(opts *RunOptions, a *app.App, src Source, st *store.Store, host *engine.HostPlatform, logger *slog.Logger) (*engine.Scheduler, error) {
	schedOpts := []engine.Option{engine.WithLogger(logger)}

	if opts.Config != "" {
		cfg, err := engine.LoadConfig(opts.Config, engine.ConfigFromApp(a))
		if err != nil {
			return nil, err
		}
		schedOpts = append(schedOpts, engine.WithConfig(cfg))
	}
	if opts.Clock != nil {
		schedOpts = append(schedOpts, engine.WithClock(opts.Clock))
	}
	if !opts.StrictPlatform && a.LookupService(engine.PlatformServiceType) == nil {
		schedOpts = append(schedOpts, engine.WithPlatform(host))
	}

	switch {
	case st != nil:
		schedOpts = append(schedOpts, engine.WithSaver(st))
	case src.Kind == SourceImage:
		path := src.Path
		schedOpts = append(schedOpts, engine.WithSaver(engine.SaverFunc(func(ctx context.Context, a *app.App) error {
			return codec.SaveFile(path, a)
		})))
	}
	return engine.New(a, schedOpts...), nil
}

// runLoop runs the full lifecycle. A host process resumes immediately after
// a hibernate or yield, so only terminal results end the loop.
func runLoop(ctx context.Context, sched *engine.Scheduler, logger *slog.Logger) status.Result {
	if err := sched.Start(ctx, nil); err != nil {
		logger.Error("start failed", "error", err)
		return status.Fail(err)
	}
	res := sched.Run(ctx)
	for res.Resumable() {
		if ctx.Err() != nil {
			res = status.Result{Kind: status.Stopped}
			break
		}
		logger.Debug("resuming", "after", res.Kind.String())
		res = sched.Resume(ctx)
	}
	return sched.Shutdown(res)
}

// outputRunSummary outputs the run summary.
func outputRunSummary(formatter *OutputFormatter, summary RunSummary) error {
	if formatter.Format == "json" {
		return formatter.Success(summary)
	}

	fmt.Fprintf(formatter.Writer, "App %s %s after %d cycle(s)", summary.App, summary.Result, summary.Cycles)
	if summary.Overruns > 0 {
		fmt.Fprintf(formatter.Writer, ", %d overrun(s)", summary.Overruns)
	}
	if summary.Restarts > 0 {
		fmt.Fprintf(formatter.Writer, ", %d restart(s)", summary.Restarts)
	}
	fmt.Fprintln(formatter.Writer)
	if summary.Error != "" {
		fmt.Fprintf(formatter.Writer, "  error: %s\n", summary.Error)
	}
	return nil
}

// outputRunFailure outputs an error that prevented the app from running and
// exits with its status code.
func outputRunFailure(formatter *OutputFormatter, code, message string, st status.Code) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(int(st), fmt.Sprintf("%s: %s", code, message))
}

// outputRunError outputs an error for commands that edit or inspect apps.
func outputRunError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}
