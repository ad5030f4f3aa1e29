package cmd

import (
	"context"
	"fmt"

	"github.com/goliatone/go-connections/core"
	"github.com/goliatone/go-connections/migrations"
	sqlstore "github.com/goliatone/go-connections/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the user store schema to the configured SQL database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			if cfg.Store.IsMongoDriver() {
				appLogger.Info("mongo store needs no migrations; indexes are created on startup")
				return nil
			}
			client, err := openMigratedClient(cmd.Context(), cfg.Store)
			if err != nil {
				return err
			}
			return client.Close()
		},
	}
}

// openMigratedClient opens the SQL store and brings its schema up to date.
func openMigratedClient(ctx context.Context, store core.StoreConfig) (*persistence.Client, error) {
	dialect, err := migrations.DialectForDriver(store.Driver)
	if err != nil {
		return nil, err
	}
	client, err := sqlstore.NewPersistenceClient(store)
	if err != nil {
		return nil, err
	}
	reg, err := migrations.Apply(ctx, client, dialect)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	appLogger.Info("migrations applied", "dialect", dialect, "source", reg.SourceLabel)
	return client, nil
}
