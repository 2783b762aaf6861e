package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"casegate/internal/compliance"
	"casegate/internal/domain"
	"casegate/internal/storage"
)

var (
	dsn          string
	outputFormat string
)

// ctlStore is everything the CLI reads or writes.
type ctlStore interface {
	compliance.SnapshotLoader
	compliance.RuleSource
	compliance.BlockerStore
	compliance.OpenCaseLister
	UpsertRule(ctx context.Context, r domain.ComplianceRule) error
	ListRules(ctx context.Context, organizationID string) ([]domain.ComplianceRule, error)
}

var openStore = func(ctx context.Context, dsn string) (ctlStore, func() error, error) {
	if dsn == "" {
		return nil, nil, fmt.Errorf("database dsn is required (--dsn or POSTGRES_DSN)")
	}
	pg, err := storage.NewPostgresStore(dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

var rootCmd = &cobra.Command{
	Use:           "casegatectl",
	Short:         "Administer compliance rules and inspect case blockers",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("POSTGRES_DSN"), "postgres connection string")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format: text, json")
}

func withStore(cmd *cobra.Command, fn func(ctx context.Context, store ctlStore) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, closeFn, err := openStore(ctx, dsn)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	return fn(ctx, store)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
