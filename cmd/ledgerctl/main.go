package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/talkmeter/server/internal/app"
	"github.com/talkmeter/server/internal/cli"
)

func main() {
	root := cli.NewRootCmd(func() (*cli.Runtime, error) {
		cfg, err := app.LoadConfig()
		if err != nil {
			return nil, err
		}
		deps, cleanup, err := app.InitializeDependencies(cfg)
		if err != nil {
			return nil, err
		}
		return &cli.Runtime{
			Admin:           deps.AdminDomain,
			Payments:        deps.PaymentDomain,
			Summary:         deps.SummaryDomain,
			Calendar:        deps.Calendar,
			Tokens:          deps.AdminTokens,
			UnresolvedAfter: deps.Config.Ledger.UnresolvedAfter,
			Close: func() {
				_ = deps.ZapLogger.Sync()
				cleanup()
			},
		}, nil
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
