package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newTokenCmd(s *state) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token ADMIN_ID",
		Short: "Issue a bearer token for the admin HTTP API",
		Args:  accountIDArg,
		RunE: s.run(func(cmd *cobra.Command, rt *Runtime, args []string) error {
			id, _ := parseID(args[0])
			token, err := rt.Tokens.Issue(id, ttl)
			if err != nil {
				return err
			}
			// Refuse tokens the API would reject anyway.
			if _, err := rt.Tokens.Validate(token); err != nil {
				return fmt.Errorf("admin %d: %w", id, err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		}),
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
