package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/Skotchmaster/marketplace/internal/payments"
	"github.com/Skotchmaster/marketplace/internal/repo"
	"github.com/Skotchmaster/marketplace/internal/service"
	"github.com/Skotchmaster/marketplace/pkg/config"
	pkgdb "github.com/Skotchmaster/marketplace/pkg/db"
	"github.com/Skotchmaster/marketplace/pkg/events"
	"github.com/Skotchmaster/marketplace/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "marketplacectl",
		Short:        "Maintenance commands for the marketplace database and payment accounts",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(backfillSlugsCmd())
	rootCmd.AddCommand(syncProductsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func open(ctx context.Context) (config.Config, *gorm.DB, error) {
	cfg := config.Load()
	slog.SetDefault(logging.New(cfg.LogLevel).With("service", cfg.ServiceName+"-ctl"))

	if cfg.DatabaseURL == "" {
		return cfg, nil, fmt.Errorf("DATABASE_URL is not set")
	}
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := pkgdb.Open(openCtx, cfg.DatabaseURL)
	if err != nil {
		return cfg, nil, fmt.Errorf("db open: %w", err)
	}
	return cfg, db, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer pkgdb.Close(db)

			if err := repo.Migrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func backfillSlugsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-slugs",
		Short: "Give every user without a profile slug a generated one",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer pkgdb.Close(db)

			svc := &service.AccountService{Repo: &repo.GormRepo{DB: db}}
			n, err := svc.BackfillSlugs(cmd.Context())
			if err != nil {
				return fmt.Errorf("backfill slugs: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %d users\n", n)
			return nil
		},
	}
}

func syncProductsCmd() *cobra.Command {
	var seller string

	cmd := &cobra.Command{
		Use:     "sync-products",
		Short:   "Push a seller's unsynced products to their connected payment account",
		Example: `  marketplacectl sync-products --seller user_2abc`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer pkgdb.Close(db)
			if cfg.StripeSecretKey == "" {
				return fmt.Errorf("STRIPE_SECRET_KEY is not set")
			}

			svc := &service.CatalogService{
				Repo:         &repo.GormRepo{DB: db},
				Payments:     payments.NewStripe(cfg.StripeSecretKey),
				Events:       events.Noop{},
				Compensation: service.Compensator{Attempts: cfg.CompensationAttempts, Backoff: cfg.CompensationBackoff},
			}
			report, err := svc.SyncAll(cmd.Context(), service.Actor{ID: seller})
			if err != nil {
				return fmt.Errorf("sync products: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "synced: %d, skipped: %d, failed: %d\n", len(report.Synced), report.Skipped, len(report.Failed))
			for _, id := range report.Failed {
				fmt.Fprintf(out, "  failed %s\n", id)
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d products failed to sync", len(report.Failed))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&seller, "seller", "", "id of the seller whose products are synced")
	_ = cmd.MarkFlagRequired("seller")
	return cmd
}
