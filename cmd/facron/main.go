// Command facron is a filesystem-event cron daemon. It reads a table of
// "<path> <mask> <command...>" entries, watches every path through fanotify
// (or fsnotify), and launches the entry's command each time a matching event
// happens. SIGHUP reloads the table; SIGINT and SIGTERM stop the daemon.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/facron/facron/internal/command"
)

// daemonizedEnv marks the re-executed background copy of the daemon.
const daemonizedEnv = "FACRON_DAEMONIZED=1"

func main() {
	os.Exit(execute(os.Args[1:]))
}

// execute runs the command line and returns the process exit status.
func execute(args []string) int {
	var opts options
	status := 0

	root := &cobra.Command{
		Use:           "facron",
		Short:         "Run commands when watched files are accessed or modified",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.confSet = cmd.Flags().Changed("conf")
			opts.levelSet = cmd.Flags().Changed("log-level")
			if opts.daemon && os.Getenv("FACRON_DAEMONIZED") == "" {
				return daemonize(cmd, args)
			}
			status = run(cmd.Context(), opts)
			return nil
		},
	}
	root.Flags().StringVarP(&opts.confPath, "conf", "c", "", "facron table to load (default from settings, else /etc/facron.conf)")
	root.Flags().BoolVarP(&opts.daemon, "daemon", "d", false, "detach from the terminal and run in the background")
	root.Flags().StringVar(&opts.settingsPath, "settings", "", "optional YAML settings file")
	root.Flags().StringVar(&opts.logLevel, "log-level", "", "minimum log level: debug, info, warn or error")

	spawn := &cobra.Command{
		Use:    command.SpawnCommand + " -- argv...",
		Short:  "Start argv detached and exit (used internally)",
		Hidden: true,
		Args:   cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, argv []string) error {
			return command.RunIntermediate(argv)
		},
	}
	root.AddCommand(spawn)

	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "facron: %v\n", err)
		return 1
	}
	return status
}

// daemonize starts a detached copy of the process with the same arguments
// and returns once it is running.
func daemonize(cmd *cobra.Command, args []string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	pid, err := command.Daemonize(exe, args, []string{daemonizedEnv})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "facron running in the background (pid %d)\n", pid)
	return nil
}

// newLogger constructs a *slog.Logger that writes JSON-structured log records
// to stderr at the requested minimum level.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
