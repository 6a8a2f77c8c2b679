package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/t77yq/cronthat/internal/config"
	"github.com/t77yq/cronthat/internal/cronexpr"
)

// NextLayout formats the occurrences printed by the next command
const NextLayout = "2006-01-02 15:04:05 Mon MST"

func newNextCommand(a *App, cfgFile *string) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "next EXPRESSION",
		Short: "Print the upcoming occurrences of a cron expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				a.exitCode = ExitUsage
				return fmt.Errorf("count must be at least 1, got %d", count)
			}

			v, err := newViper(cmd, *cfgFile)
			if err != nil {
				a.exitCode = ExitUsage
				return err
			}
			loc, err := config.LoadLocation(v.GetString(config.KeyTimezone))
			if err != nil {
				a.exitCode = ExitUsage
				return err
			}

			schedule, err := cronexpr.Parse(args[0])
			if err != nil {
				a.exitCode = ExitUsage
				return fmt.Errorf("invalid cron expression: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "expression: %s\n", schedule.String())

			upcoming := schedule.Upcoming(a.Clock.Now().In(loc), count)
			if len(upcoming) == 0 {
				fmt.Fprintln(out, "no upcoming occurrence")
				return nil
			}
			for _, t := range upcoming {
				fmt.Fprintln(out, t.Format(NextLayout))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "c", 5, "number of occurrences to print")
	return cmd
}
