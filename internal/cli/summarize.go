package cli

import (
	"github.com/spf13/cobra"

	"github.com/talkmeter/server/internal/utils/clock"
)

func newSummarizeCmd(s *state) *cobra.Command {
	var day string
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize every account active on a service day",
		Long: "Builds a summary of each account's dialog for the day and stores it on the " +
			"day's last interaction. Without --day the previous service day is used.",
		Args: cobra.NoArgs,
		RunE: s.run(func(cmd *cobra.Command, rt *Runtime, args []string) error {
			target := clock.AddDays(rt.Calendar.Today(), -1)
			if day != "" {
				parsed, err := clock.ParseDay(day)
				if err != nil {
					return err
				}
				target = parsed
			}
			report, err := rt.Summary.RunDaily(commandContext(cmd), target)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		}),
	}
	cmd.Flags().StringVar(&day, "day", "", "service day as YYYY-MM-DD")
	return cmd
}
