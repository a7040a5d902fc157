package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPaymentsCmd(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payments",
		Short: "Inspect and reconcile payments",
	}

	var olderThan time.Duration
	unresolved := &cobra.Command{
		Use:   "unresolved",
		Short: "List payments not yet succeeded or canceled",
		Args:  cobra.NoArgs,
		RunE: s.run(func(cmd *cobra.Command, rt *Runtime, args []string) error {
			age := olderThan
			if !cmd.Flags().Changed("older-than") {
				age = rt.UnresolvedAfter
			}
			payments, err := rt.Admin.ListUnresolvedPayments(commandContext(cmd), age)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), payments)
		}),
	}
	unresolved.Flags().DurationVar(&olderThan, "older-than", time.Hour, "minimum payment age")

	var reconcileAge time.Duration
	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Re-check unresolved card payments with the gateway",
		Args:  cobra.NoArgs,
		RunE: s.run(func(cmd *cobra.Command, rt *Runtime, args []string) error {
			age := reconcileAge
			if !cmd.Flags().Changed("older-than") {
				age = rt.UnresolvedAfter
			}
			resolved, err := rt.Payments.ReconcileUnresolved(commandContext(cmd), age)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d payments resolved\n", resolved)
			return err
		}),
	}
	reconcile.Flags().DurationVar(&reconcileAge, "older-than", time.Hour, "minimum payment age")

	cmd.AddCommand(unresolved, reconcile)
	return cmd
}
