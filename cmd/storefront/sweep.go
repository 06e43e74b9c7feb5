package main

import (
	"fmt"
	"time"

	"github.com/farellandr/storefront/config"
	"github.com/farellandr/storefront/internal/services"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	sweepOlderThan time.Duration
	sweepDryRun    bool
)

var sweepCmd = &cobra.Command{
	Use:   "sweep-payments",
	Short: "Fail pending payments older than the pending TTL",
	Long: `sweep-payments marks PENDING payments whose transaction date is older than
--older-than (default: pending_payment_ttl from the policy file) as FAILED.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()

		db, err := config.InitDatabase(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}

		svc, err := services.New(services.Deps{DB: db, Logger: logger, Policy: cfg.Policy.Services()})
		if err != nil {
			return err
		}

		if sweepDryRun {
			stale, err := svc.Payments.PendingOlderThan(cmd.Context(), sweepOlderThan)
			if err != nil {
				return err
			}
			for _, p := range stale {
				logger.Info("would expire payment",
					zap.String("payment_id", p.ID.String()),
					zap.String("reference", p.PaymentReference),
					zap.Time("transaction_date", p.TransactionDate),
				)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d pending payments would be expired\n", len(stale))
			return nil
		}

		expired, err := svc.Payments.ExpireStalePending(cmd.Context(), sweepOlderThan)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d pending payments expired\n", expired)
		return nil
	},
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepOlderThan, "older-than", 0, "age after which a pending payment is expired")
	sweepCmd.Flags().BoolVar(&sweepDryRun, "dry-run", false, "list the payments without changing them")
	rootCmd.AddCommand(sweepCmd)
}
