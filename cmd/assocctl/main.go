package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"association/internal/config"
	"association/internal/logging"
	"association/internal/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "assocctl",
		Short:         "Association attendance operator tool",
		Long:          `assocctl manages the schema, members, meetings and access tokens of the attendance service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newMigrateCommand(),
		newMemberCommand(),
		newMeetingCommand(),
		newTokenCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type env struct {
	cfg     config.App
	log     *zap.Logger
	records *store.Records
}

func (e *env) Close() {
	if e.records != nil {
		_ = e.records.Close(context.Background())
	}
	_ = e.log.Sync()
}

// openEnv loads configuration and, when withStore is set, the record store.
func openEnv(ctx context.Context, withStore bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	e := &env{cfg: cfg, log: logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})}
	if !withStore {
		return e, nil
	}
	if cfg.StoreBackend == "memory" {
		return nil, fmt.Errorf("STORE_BACKEND=memory has no persistent records to manage")
	}
	e.records, err = store.OpenRecords(ctx, cfg, e.log)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	return e, nil
}
