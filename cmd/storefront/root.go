package main

import (
	"fmt"

	"github.com/farellandr/storefront/config"
	"github.com/farellandr/storefront/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "storefront",
	Short: "Order, payment and inventory backend for the storefront",
	Long: `storefront serves the cart, order, payment, wishlist and category API
and ships maintenance commands for the same database.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
}

// bootstrap loads the env file if present, then config and logger.
func bootstrap() (*config.Config, *zap.Logger, error) {
	if err := godotenv.Load(envFile); err != nil {
		fmt.Printf("No %s file found, reading configuration from the environment\n", envFile)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, logger, nil
}
