package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/talkmeter/server/internal/model"
)

func newAccountsCmd(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Inspect and change accounts",
	}

	var filter model.AccountFilter
	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts ordered by id",
		Args:  cobra.NoArgs,
		RunE: s.run(func(cmd *cobra.Command, rt *Runtime, args []string) error {
			accounts, err := rt.Admin.ListAccounts(commandContext(cmd), filter)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), accounts)
		}),
	}
	list.Flags().BoolVar(&filter.SubscribedOnly, "subscribed", false, "only accounts with a subscription")
	list.Flags().IntVar(&filter.Limit, "limit", 200, "page size")
	list.Flags().IntVar(&filter.Offset, "offset", 0, "page offset")

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show one account",
		Args:  accountIDArg,
		RunE: accountAction(s, func(ctx context.Context, rt *Runtime, id int64) (*model.Account, error) {
			return rt.Admin.GetAccount(ctx, id)
		}),
	}

	grant := &cobra.Command{
		Use:   "grant ID",
		Short: "Activate a subscription without a payment",
		Args:  accountIDArg,
		RunE: accountAction(s, func(ctx context.Context, rt *Runtime, id int64) (*model.Account, error) {
			return rt.Admin.Grant30Days(ctx, id)
		}),
	}

	reset := &cobra.Command{
		Use:   "reset ID",
		Short: "Drop the subscription and restore the free quota",
		Args:  accountIDArg,
		RunE: accountAction(s, func(ctx context.Context, rt *Runtime, id int64) (*model.Account, error) {
			return rt.Admin.ResetToFree(ctx, id)
		}),
	}

	var confirmed bool
	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an account with its interactions and payments",
		Args:  accountIDArg,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return fmt.Errorf("deleting account %s is irreversible, pass --yes to confirm", args[0])
			}
			return nil
		},
		RunE: s.run(func(cmd *cobra.Command, rt *Runtime, args []string) error {
			id, _ := parseID(args[0])
			if err := rt.Admin.DeleteAccount(commandContext(cmd), id); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "account %d deleted\n", id)
			return err
		}),
	}
	del.Flags().BoolVar(&confirmed, "yes", false, "confirm deletion")

	cmd.AddCommand(list, get, grant, reset, del)
	return cmd
}

// accountIDArg requires exactly one positive account id.
func accountIDArg(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return err
	}
	_, err := parseID(args[0])
	return err
}

func accountAction(s *state, fn func(ctx context.Context, rt *Runtime, id int64) (*model.Account, error)) func(*cobra.Command, []string) error {
	return s.run(func(cmd *cobra.Command, rt *Runtime, args []string) error {
		id, _ := parseID(args[0])
		acc, err := fn(commandContext(cmd), rt, id)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), acc)
	})
}
