package cli

import (
	"context"
	"fmt"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/t77yq/cronthat/internal/config"
	"github.com/t77yq/cronthat/internal/cronexpr"
	"github.com/t77yq/cronthat/internal/events"
	"github.com/t77yq/cronthat/internal/logging"
	"github.com/t77yq/cronthat/internal/monitor"
	"github.com/t77yq/cronthat/internal/runner"
	"github.com/t77yq/cronthat/internal/scheduler"
	"github.com/t77yq/cronthat/internal/storage"
)

// flagKeys maps command line flags to configuration keys
var flagKeys = map[string]string{
	"stop-on-error":   config.KeyStopOnError,
	"repetitions":     config.KeyRepetitions,
	"until":           config.KeyUntil,
	"run-immediately": config.KeyRunImmediately,
	"shell":           config.KeyShell,
	"workdir":         config.KeyWorkDir,
	"env":             config.KeyEnv,
	"timezone":        config.KeyTimezone,
	"history-db":      config.KeyHistoryDB,
	"host-stats":      config.KeyHostStats,
	"nats-url":        config.KeyNATSURL,
	"nats-stream":     config.KeyNATSStream,
	"log-level":       config.KeyLogLevel,
	"log-format":      config.KeyLogFormat,
}

// NewRootCommand creates the cronthat command and its subcommands
func NewRootCommand(a *App) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "cronthat [flags] EXPRESSION [--] COMMAND [ARGS...]",
		Short: "Run a command on a cron schedule with second precision",
		Long: `Schedule a command for execution in an interactive shell with a six field
cron expression (second minute hour day-of-month month day-of-week). The
command keeps running until interrupted or until --repetitions or --until is
reached. Flags go before the expression: everything after it is passed to
the command unchanged, including words that look like cronthat flags.`,
		Example: `  cronthat "*/10 * * * * *" -- date
  cronthat -n 3 -e "0 */5 * * * *" make test
  cronthat "0 * * * * *" tail -n 5 /var/log/syslog
  cronthat -u "2026-12-31 23:59:59" "0 0 9 * * mon-fri" -- ./report.sh`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       BuildVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd, cfgFile)
			if err != nil {
				a.exitCode = ExitUsage
				return err
			}
			if len(args) == 0 {
				return cmd.Help()
			}
			return a.runSchedule(cmd.Context(), v, args)
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./cronthat.yaml)")
	cmd.PersistentFlags().String("history-db", "", "record every run in this SQLite database")
	cmd.PersistentFlags().String("log-level", "error", "log level: debug, info, warn or error")
	cmd.PersistentFlags().String("log-format", "console", "log format: console or json")
	cmd.PersistentFlags().String("timezone", "Local", "timezone the schedule is evaluated in")

	flags := cmd.Flags()
	flags.BoolP("stop-on-error", "e", false, "stop when the command returns a non-zero exit code")
	flags.IntP("repetitions", "n", 0, "number of times the command should be executed (mutually exclusive with --until)")
	flags.StringP("until", "u", "", "when to stop, as \"YYYY-MM-DD HH:MM:SS\" (mutually exclusive with --repetitions)")
	flags.BoolP("run-immediately", "i", false, "run once at start in addition to the scheduled occurrences")
	flags.String("shell", runner.DefaultShell, "shell used to run the command line, empty to execute it directly")
	flags.String("workdir", "", "working directory of the command (default is the current directory)")
	flags.StringArray("env", nil, "extra KEY=VALUE environment variable for the command, repeatable")
	flags.Bool("host-stats", true, "attach a host CPU and memory sample to every history record")
	flags.String("nats-url", "", "publish run events to this NATS server")
	flags.String("nats-stream", events.DefaultStream, "JetStream stream for run events")
	cmd.MarkFlagsMutuallyExclusive("repetitions", "until")
	// The command's own flags must reach it untouched.
	flags.SetInterspersed(false)

	cmd.AddCommand(
		newNextCommand(a, &cfgFile),
		newHistoryCommand(a, &cfgFile),
		newVersionCommand(),
	)
	return cmd
}

// newViper loads the config file and environment and binds the flags the
// command defines, so an explicit flag wins over both.
func newViper(cmd *cobra.Command, cfgFile string) (*viper.Viper, error) {
	v, err := config.NewViper(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	return v, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

func (a *App) runSchedule(ctx context.Context, v *viper.Viper, args []string) error {
	cfg, err := config.Load(v, args)
	if err != nil {
		a.exitCode = ExitUsage
		return err
	}

	logger, err := logging.NewWithWriter(cfg.LogLevel, cfg.LogFormat, a.Err)
	if err != nil {
		a.exitCode = ExitUsage
		return err
	}
	defer logger.Sync()

	schedule, err := cronexpr.Parse(cfg.Expression)
	if err != nil {
		a.exitCode = ExitUsage
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	policy, err := cfg.Policy()
	if err != nil {
		a.exitCode = ExitUsage
		return err
	}

	r, cleanup, err := a.buildRunner(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(ctx, a.Signals...)
	defer stop()

	s := scheduler.New(schedule, policy, r, logger,
		scheduler.WithClock(a.Clock),
		scheduler.WithLocation(cfg.Location))

	report, err := s.Run(ctx, cfg.Command)
	a.exitCode = ExitCode(report)
	if err != nil {
		return err
	}
	if report.StoppedByError {
		return errStoppedOnError
	}
	return nil
}

// buildRunner wraps the process runner with the terminal banner and, when
// configured, the event publisher and the history recorder.
func (a *App) buildRunner(cfg *config.Config, logger *zap.Logger) (runner.Runner, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var r runner.Runner = runner.NewExecRunner(logger,
		runner.WithShell(cfg.Shell),
		runner.WithWorkingDir(cfg.WorkDir),
		runner.WithEnv(cfg.Env),
		runner.WithStdio(a.In, a.Out, a.Err))
	r = newBanner(r, a.Out, a.now(cfg.Location), cfg.StopOnError)

	if cfg.NATSURL != "" {
		nc, js, err := events.Connect(events.DefaultConnectConfig(cfg.NATSURL), logger)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() {
			if err := nc.Drain(); err != nil {
				logger.Warn("Failed to drain NATS connection", zap.Error(err))
			}
		})
		if err := events.EnsureStream(js, cfg.NATSStream); err != nil {
			cleanup()
			return nil, nil, err
		}
		r = events.NewPublisher(js, r, cfg.Expression, logger)
	}

	if cfg.HistoryDB != "" {
		history, err := storage.NewSQLiteRunHistory(logger, cfg.HistoryDB)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, func() {
			if err := history.Close(); err != nil {
				logger.Warn("Failed to close run history", zap.Error(err))
			}
		})

		opts := []storage.RecorderOption{storage.WithNow(a.Clock.Now)}
		if cfg.HostStats {
			opts = append(opts, storage.WithSampler(monitor.NewHostSampler(logger, 0)))
		}
		r = storage.NewRecorder(r, history, cfg.Expression, logger, opts...)
	}

	return r, cleanup, nil
}

func (a *App) now(loc *time.Location) func() time.Time {
	return func() time.Time {
		return a.Clock.Now().In(loc)
	}
}
