package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/psantana5/pgobserver/internal/config"
	"github.com/psantana5/pgobserver/internal/notify"
	"github.com/psantana5/pgobserver/internal/observe"
	"github.com/psantana5/pgobserver/internal/platform"
	"github.com/psantana5/pgobserver/internal/report"
	"github.com/psantana5/pgobserver/pkg/logging"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=..."
var Version = "dev"

// watchOptions holds the flag values of one invocation
type watchOptions struct {
	configPath   string
	pid          int
	daemon       bool
	interval     int
	outputFormat string
	logLevel     string
	logDir       string
	metricsAddr  string
	metricsFile  string
}

// deps are the collaborators a test can swap out
type deps struct {
	detectPlatform func(context.Context) platform.Info
	newNotifier    func(config.EmailConfig, *logging.Logger) observe.Notifier
	poller         observe.Poller
}

func defaultDeps() deps {
	return deps{
		detectPlatform: platform.Detect,
		newNotifier: func(cfg config.EmailConfig, logger *logging.Logger) observe.Notifier {
			return notify.NewSMTPNotifier(cfg, logger)
		},
		poller: observe.ProcessTable{},
	}
}

// Execute runs the root command
func Execute() error {
	return newRootCmd(defaultDeps()).Execute()
}

func newRootCmd(d deps) *cobra.Command {
	opts := &watchOptions{}

	rootCmd := &cobra.Command{
		Use:   "pgobserver -p PID [-d] [-i SECONDS] [-c CONFIG]",
		Short: "Send an email when a process finishes",
		Long: `pgobserver watches one process id and emails the configured recipients
once that process is no longer running.

Without -d it checks once: if the process is already gone the notification
is sent, otherwise nothing happens. With -d it keeps polling every
--interval seconds until the process exits (one notification) or it is
interrupted (no notification).

Example:
  pgobserver -p 1234
  pgobserver -p 1234 -d -i 5 -c /etc/pgobserver/config.ini
  pgobserver -p 1234 -d --metrics-addr :9310 -o json`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts, d)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "configuration file")
	flags.IntVarP(&opts.pid, "pid", "p", 0, "process id to watch (required)")
	flags.BoolVarP(&opts.daemon, "daemon", "d", false, "keep polling in the background until the process exits")
	flags.IntVarP(&opts.interval, "interval", "i", 2, "poll interval in seconds")
	flags.StringVarP(&opts.outputFormat, "output", "o", report.FormatText, "result format: text, json or yaml")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (default from config, else info)")
	flags.StringVar(&opts.logDir, "log-dir", "", "directory for the daily log file (default from config, else .)")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics, /healthz and /status on this address while watching")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile when the watch ends")
	_ = rootCmd.MarkFlagRequired("pid")

	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pgobserver %s\n", Version)
		},
	}
}
