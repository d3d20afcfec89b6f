package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Srijan10011/Business-Calc-sub000/internal/domain"
	"github.com/Srijan10011/Business-Calc-sub000/internal/events"
	"github.com/Srijan10011/Business-Calc-sub000/internal/httpapi"
	pgstore "github.com/Srijan10011/Business-Calc-sub000/internal/store/postgres"
)

func newMigrateCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			if err := pgstore.RunMigrations(rt.cfg.DatabaseURL); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			rt.logger.Info("migrations applied")
			return nil
		},
	}
}

func newProvisionCommand(rt *runtime) *cobra.Command {
	var businessID string

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create the default accounts of a business",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closers, err := rt.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closers.Close(rt.logger)

			accounts, err := svc.CreateDefaultAccounts(cmd.Context(), operator(businessID))
			if err != nil {
				return fmt.Errorf("provision %s: %w", businessID, err)
			}
			return printJSON(cmd, accounts)
		},
	}
	cmd.Flags().StringVar(&businessID, "business", "", "business id (required)")
	_ = cmd.MarkFlagRequired("business")
	return cmd
}

func newRolloverCommand(rt *runtime) *cobra.Command {
	var businessID string
	var month string

	cmd := &cobra.Command{
		Use:   "rollover",
		Short: "Archive recurring-cost months up to the given month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closers, err := rt.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closers.Close(rt.logger)

			resp, err := svc.RolloverRecurringCosts(cmd.Context(), operator(businessID), month)
			if err != nil {
				return fmt.Errorf("rollover %s: %w", businessID, err)
			}
			return printJSON(cmd, resp)
		},
	}
	cmd.Flags().StringVar(&businessID, "business", "", "business id (required)")
	cmd.Flags().StringVar(&month, "month", "", "target month YYYY-MM (default current month)")
	_ = cmd.MarkFlagRequired("business")
	return cmd
}

// newTokenCommand mints a bearer token for local testing of the HTTP API.
func newTokenCommand(rt *runtime) *cobra.Command {
	var bc domain.BusinessContext
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a development bearer token with AUTH_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(rt.cfg.AuthSecret) < 32 {
				return errors.New("AUTH_SECRET must be set and at least 32 characters")
			}
			token, err := httpapi.NewVerifier(rt.cfg.AuthSecret).Sign(bc, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&bc.BusinessID, "business", "", "business id (required)")
	cmd.Flags().StringVar(&bc.UserID, "user", "ledgerctl", "token subject")
	cmd.Flags().StringVar(&bc.Role, "role", "owner", "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("business")
	return cmd
}

func newPublishSaleCommand(rt *runtime) *cobra.Command {
	var msg events.SaleMessage

	cmd := &cobra.Command{
		Use:   "publish-sale",
		Short: "Publish a sale event to the ledger queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfg.AMQPURL == "" {
				return errors.New("AMQP_URL is required")
			}
			client, err := events.NewClient(rt.cfg.AMQPURL, rt.cfg.AMQPExchange, rt.cfg.AMQPQueue, rt.logger)
			if err != nil {
				return err
			}
			defer client.Close()
			return client.PublishSale(cmd.Context(), msg)
		},
	}
	cmd.Flags().StringVar(&msg.BusinessID, "business", "", "business id (required)")
	cmd.Flags().StringVar(&msg.ProductID, "product", "", "product id (required)")
	cmd.Flags().StringVar(&msg.AccountID, "account", "", "receiving account id (required)")
	cmd.Flags().Int64Var(&msg.RevenueCents, "revenue", 0, "revenue in minor units")
	cmd.Flags().IntVar(&msg.Quantity, "quantity", 1, "units sold")
	cmd.Flags().StringVar(&msg.Reference, "reference", "", "order reference")
	cmd.Flags().StringVar(&msg.IdempotencyKey, "idempotency-key", "", "dedup key")
	for _, name := range []string{"business", "product", "account"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func operator(businessID string) domain.BusinessContext {
	return domain.BusinessContext{BusinessID: businessID, UserID: "ledgerctl", Role: "system"}
}
