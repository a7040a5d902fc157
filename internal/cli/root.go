package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/talkmeter/server/internal/domain/admin"
	"github.com/talkmeter/server/internal/domain/payment"
	"github.com/talkmeter/server/internal/domain/summary"
	"github.com/talkmeter/server/internal/utils/clock"
	"github.com/talkmeter/server/internal/utils/middleware"
)

// Runtime is what the commands operate on.
type Runtime struct {
	Admin           admin.AdminDomain
	Payments        payment.PaymentDomain
	Summary         summary.SummaryDomain
	Calendar        *clock.Calendar
	Tokens          *middleware.AdminTokens
	UnresolvedAfter time.Duration
	Close           func()
}

// Loader builds the runtime on first use so --help works without config.
type Loader func() (*Runtime, error)

type state struct {
	load Loader
}

// run loads the runtime, calls fn and releases the runtime even when fn fails.
func (s *state) run(fn func(cmd *cobra.Command, rt *Runtime, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		rt, err := s.load()
		if err != nil {
			return fmt.Errorf("load runtime: %w", err)
		}
		if rt.Close != nil {
			defer rt.Close()
		}
		return fn(cmd, rt, args)
	}
}

// NewRootCmd creates the ledgerctl command tree.
func NewRootCmd(load Loader) *cobra.Command {
	s := &state{load: load}

	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Administer accounts, payments and daily summaries",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newAccountsCmd(s),
		newPaymentsCmd(s),
		newSummarizeCmd(s),
		newTokenCmd(s),
	)
	return root
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid account id %q", arg)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
