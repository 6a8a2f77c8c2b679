package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t77yq/cronthat/internal/config"
	"github.com/t77yq/cronthat/internal/logging"
	"github.com/t77yq/cronthat/internal/model"
	"github.com/t77yq/cronthat/internal/storage"
)

// ErrNoHistory is returned when a history command runs without a database
var ErrNoHistory = errors.New("no history database configured, use --history-db")

const historyTimeLayout = "2006-01-02 15:04:05"

func newHistoryCommand(a *App, cfgFile *string) *cobra.Command {
	var (
		limit      int
		offset     int
		status     string
		expression string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filters := map[string]interface{}{}
			if status != "" {
				filters["status"] = model.RunStatus(status)
			}
			if expression != "" {
				filters["expression"] = expression
			}

			return a.withHistory(cmd, *cfgFile, func(ctx context.Context, history storage.RunHistory, loc *time.Location) error {
				records, err := history.List(ctx, filters, offset, limit)
				if err != nil {
					return err
				}
				total, err := history.Count(ctx, filters)
				if err != nil {
					return err
				}
				printRecords(cmd.OutOrStdout(), records, loc)
				fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d runs\n", len(records), total)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "maximum number of runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")
	cmd.Flags().StringVar(&status, "status", "", "only list runs with this status (running, succeeded, failed, spawn_failed)")
	cmd.Flags().StringVar(&expression, "expression", "", "only list runs of this cron expression")

	cmd.AddCommand(
		newShowCommand(a, cfgFile),
		newPruneCommand(a, cfgFile),
	)
	return cmd
}

func newShowCommand(a *App, cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show every recorded detail of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withHistory(cmd, *cfgFile, func(ctx context.Context, history storage.RunHistory, loc *time.Location) error {
				record, err := history.Get(ctx, args[0])
				if err != nil {
					return fmt.Errorf("run %s: %w", args[0], err)
				}
				printRecord(cmd.OutOrStdout(), record, loc)
				return nil
			})
		},
	}
}

func newPruneCommand(a *App, cfgFile *string) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete recorded runs older than a given age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				a.exitCode = ExitUsage
				return fmt.Errorf("--older-than must be positive, got %s", olderThan)
			}

			return a.withHistory(cmd, *cfgFile, func(ctx context.Context, history storage.RunHistory, loc *time.Location) error {
				deleted, err := history.DeleteBefore(ctx, a.Clock.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d runs\n", deleted)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of the newest run to delete")
	return cmd
}

// withHistory opens the configured history database for the duration of fn
func (a *App) withHistory(cmd *cobra.Command, cfgFile string, fn func(context.Context, storage.RunHistory, *time.Location) error) error {
	v, err := newViper(cmd, cfgFile)
	if err != nil {
		a.exitCode = ExitUsage
		return err
	}

	path := v.GetString(config.KeyHistoryDB)
	if path == "" {
		a.exitCode = ExitUsage
		return ErrNoHistory
	}
	loc, err := config.LoadLocation(v.GetString(config.KeyTimezone))
	if err != nil {
		a.exitCode = ExitUsage
		return err
	}

	logger, err := logging.NewWithWriter(v.GetString(config.KeyLogLevel), v.GetString(config.KeyLogFormat), a.Err)
	if err != nil {
		a.exitCode = ExitUsage
		return err
	}
	defer logger.Sync()

	history, err := storage.NewSQLiteRunHistory(logger, path)
	if err != nil {
		return err
	}
	defer func() {
		if err := history.Close(); err != nil {
			logger.Warn("Failed to close run history", zap.Error(err))
		}
	}()

	return fn(cmd.Context(), history, loc)
}

func printRecords(out io.Writer, records []*model.RunRecord, loc *time.Location) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSEQ\tSTARTED\tDURATION\tSTATUS\tEXIT\tCPU%\tMEM%\tCOMMAND")
	for _, record := range records {
		exit := "-"
		if record.ExitCode != nil {
			exit = strconv.Itoa(*record.ExitCode)
		}
		cpu, mem := "-", "-"
		if record.Host != nil {
			cpu = strconv.FormatFloat(record.Host.CPUUsage, 'f', 1, 64)
			mem = strconv.FormatFloat(record.Host.MemoryUsage, 'f', 1, 64)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			record.ID,
			record.Sequence,
			record.StartedAt.In(loc).Format(historyTimeLayout),
			formatDuration(record.Duration),
			record.Status,
			exit,
			cpu,
			mem,
			strings.Join(record.Command, " "))
	}
	w.Flush()
}

func printRecord(out io.Writer, record *model.RunRecord, loc *time.Location) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", record.ID)
	fmt.Fprintf(w, "Expression:\t%s\n", record.Expression)
	fmt.Fprintf(w, "Command:\t%s\n", strings.Join(record.Command, " "))
	fmt.Fprintf(w, "Sequence:\t%d\n", record.Sequence)
	fmt.Fprintf(w, "Status:\t%s\n", record.Status)
	if record.ExitCode != nil {
		fmt.Fprintf(w, "Exit code:\t%d\n", *record.ExitCode)
	}
	if record.Error != "" {
		fmt.Fprintf(w, "Error:\t%s\n", record.Error)
	}
	fmt.Fprintf(w, "Scheduled:\t%s\n", record.ScheduledAt.In(loc).Format(historyTimeLayout))
	fmt.Fprintf(w, "Started:\t%s\n", record.StartedAt.In(loc).Format(historyTimeLayout))
	if record.CompletedAt != nil {
		fmt.Fprintf(w, "Completed:\t%s\n", record.CompletedAt.In(loc).Format(historyTimeLayout))
	}
	fmt.Fprintf(w, "Duration:\t%s\n", formatDuration(record.Duration))
	if record.Host != nil {
		fmt.Fprintf(w, "Host CPU:\t%.1f%%\n", record.Host.CPUUsage)
		fmt.Fprintf(w, "Host memory:\t%.1f%%\n", record.Host.MemoryUsage)
		fmt.Fprintf(w, "Load average:\t%.2f\n", record.Host.LoadAverage)
	}
	w.Flush()
}

// formatDuration rounds d for display
func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(10 * time.Millisecond).String()
	}
}
