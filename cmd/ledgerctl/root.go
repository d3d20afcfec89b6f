package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Srijan10011/Business-Calc-sub000/internal/app"
	"github.com/Srijan10011/Business-Calc-sub000/internal/config"
	"github.com/Srijan10011/Business-Calc-sub000/internal/logging"
	"github.com/Srijan10011/Business-Calc-sub000/internal/service"
)

type runtime struct {
	cfg    config.Config
	logger *slog.Logger
}

func (r *runtime) openService(ctx context.Context) (*service.Service, app.Closers, error) {
	return app.OpenService(ctx, r.cfg, r.logger)
}

func newRootCommand() *cobra.Command {
	rt := &runtime{}
	var debug bool

	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operate the business ledger",
		Long: `ledgerctl runs maintenance tasks against the ledger database.

Example:
  ledgerctl migrate
  ledgerctl provision --business biz-1
  ledgerctl rollover --business biz-1 --month 2024-06`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			rt.cfg = config.Load()
			level := rt.cfg.LogLevel
			if debug {
				level = "debug"
			}
			rt.logger = logging.New(level, "text", os.Stderr)
		},
	}
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newMigrateCommand(rt))
	rootCmd.AddCommand(newProvisionCommand(rt))
	rootCmd.AddCommand(newRolloverCommand(rt))
	rootCmd.AddCommand(newTokenCommand(rt))
	rootCmd.AddCommand(newPublishSaleCommand(rt))

	return rootCmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
