package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"association/internal/config"
	"association/internal/logging"
	"association/internal/store"
)

var migrateSteps int

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Postgres schema migrations",
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE:  func(cmd *cobra.Command, _ []string) error { return runMigrate(cmd.Context(), false) },
	}
	down.Flags().IntVarP(&migrateSteps, "steps", "n", 1, "Number of migrations to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE:  func(cmd *cobra.Command, _ []string) error { return runMigrate(cmd.Context(), true) },
		},
		down,
	)
	return cmd
}

func runMigrate(ctx context.Context, up bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	defer func() { _ = log.Sync() }()

	if cfg.StoreBackend != "postgres" {
		return fmt.Errorf("migrations apply to the postgres backend, STORE_BACKEND is %q", cfg.StoreBackend)
	}
	db, err := store.NewDB(ctx, cfg.DatabaseURL, cfg.ConnectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := store.NewMigrator(db.Client, log)
	if err != nil {
		return err
	}
	if up {
		return m.Up()
	}
	for i := 0; i < migrateSteps; i++ {
		if err := m.Down(); err != nil {
			return err
		}
	}
	return nil
}
