// Package bootstrap builds infrastructure shared by the server and the operator CLI.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/boddenberg/acquiring-core-go/internal/config"
	"github.com/boddenberg/acquiring-core-go/internal/infra/boltstore"
	"github.com/boddenberg/acquiring-core-go/internal/infra/postgres"
	"github.com/boddenberg/acquiring-core-go/internal/port"
)

// OpenRepository opens the store selected by STORE_DRIVER. Postgres schemas
// are migrated on open.
func OpenRepository(ctx context.Context, cfg *config.Config) (port.Repository, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		repo, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return repo, nil
	case config.StoreBolt:
		return boltstore.Open(cfg.BoltPath)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
