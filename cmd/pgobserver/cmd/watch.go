package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/psantana5/pgobserver/internal/config"
	"github.com/psantana5/pgobserver/internal/observe"
	"github.com/psantana5/pgobserver/internal/platform"
	"github.com/psantana5/pgobserver/internal/report"
	"github.com/psantana5/pgobserver/pkg/logging"
	"github.com/psantana5/pgobserver/pkg/shutdown"
	"github.com/psantana5/pgobserver/pkg/tracing"
)

func runWatch(cmd *cobra.Command, opts *watchOptions, d deps) error {
	if opts.pid <= 0 {
		return fmt.Errorf("invalid --pid %d: must be a positive process id", opts.pid)
	}
	if opts.interval < 1 {
		return fmt.Errorf("invalid --interval %d: must be at least 1 second", opts.interval)
	}
	switch opts.outputFormat {
	case report.FormatText, report.FormatJSON, report.FormatYAML:
	default:
		return fmt.Errorf("invalid --output %q: want text, json or yaml", opts.outputFormat)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Console only until the config says where the log file goes
	console := logging.New(cmd.ErrOrStderr(), logging.ParseLevel(opts.logLevel), false)

	host := d.detectPlatform(ctx)
	if err := platform.Check(host); err != nil {
		console.Error(fmt.Sprintf("%s platform is not supported", host.OS))
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		console.Error(fmt.Sprintf("Failed to load config: %v", err))
		return err
	}

	logger, err := openLogger(cmd, opts, cfg)
	if err != nil {
		console.Error(err.Error())
		return err
	}

	mgr := shutdown.New(10*time.Second, logger)
	defer mgr.Shutdown()
	mgr.RegisterCloser("logger", logger)

	tp, err := tracing.New(ctx, tracing.Config{
		ServiceName:    "pgobserver",
		ServiceVersion: Version,
		Endpoint:       cfg.Tracing.Endpoint,
	}, logger)
	if err != nil {
		logger.Warn(fmt.Sprintf("Tracing unavailable: %v", err))
		tp, _ = tracing.New(ctx, tracing.Config{ServiceName: "pgobserver"}, logger)
	}
	mgr.Register("tracing", tp.Shutdown)

	metrics := report.NewMetrics()

	target := observe.Target{
		PID:          opts.pid,
		PollInterval: time.Duration(opts.interval) * time.Second,
	}
	watcher := observe.New(target, d.newNotifier(cfg.Email, logger),
		observe.WithPoller(d.poller),
		observe.WithLogger(logger),
		observe.WithTracer(tp.Tracer()),
		observe.WithRecorder(metrics),
	)

	if opts.metricsAddr != "" {
		srv := report.NewServer(opts.metricsAddr, metrics, func() string { return watcher.State().String() }, logger)
		if err := srv.Start(); err != nil {
			return err
		}
		mgr.Register("metrics server", srv.Shutdown)
	}

	mode := report.ModeForeground
	if opts.daemon {
		mode = report.ModeBackground
	}

	logger.Info(fmt.Sprintf("Starting pgobserver %s on %s", Version, host), map[string]interface{}{
		"pid":      opts.pid,
		"mode":     mode,
		"interval": target.PollInterval.String(),
		"config":   opts.configPath,
		"log":      logger.Path(),
	})
	logger.Debug("Email settings", cfg.Email.LogFields())

	watchCtx, stop := mgr.Context(ctx)
	defer stop()

	var out observe.Outcome
	if opts.daemon {
		done := watcher.Start(watchCtx)
		o, ok := <-done
		if !ok {
			return fmt.Errorf("watch for pid %d did not run", opts.pid)
		}
		out = o
	} else {
		out, err = watcher.Once(watchCtx)
		if err != nil {
			return err
		}
	}

	if out.Reason == observe.ReasonCancelled && mgr.Interrupted() {
		logger.Info("Stopped watching on operator interrupt")
	}

	result := report.NewResult(mode, out)
	metrics.RecordResult(result)
	result.LogSummary(logger)

	if opts.metricsFile != "" {
		if err := report.WriteTextfile(opts.metricsFile, metrics.Registry()); err != nil {
			logger.Warn(fmt.Sprintf("Failed to write metrics file: %v", err))
		}
	}

	return report.Render(cmd.OutOrStdout(), result, opts.outputFormat)
}

// openLogger builds the process-wide logger. Flags win over the [log] section.
func openLogger(cmd *cobra.Command, opts *watchOptions, cfg *config.Config) (*logging.Logger, error) {
	level := cfg.Log.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	dir := cfg.Log.Dir
	if opts.logDir != "" {
		dir = opts.logDir
	}

	logger, err := logging.NewFileLogger(dir, cmd.ErrOrStderr(), logging.ParseLevel(level), false)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return logger, nil
}
