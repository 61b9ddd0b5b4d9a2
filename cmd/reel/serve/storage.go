package servecmder

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/reel/pkg/dotdir"
	"github.com/papercomputeco/reel/pkg/storage"
	"github.com/papercomputeco/reel/pkg/storage/inmemory"
	"github.com/papercomputeco/reel/pkg/storage/postgres"
	"github.com/papercomputeco/reel/pkg/storage/sqlite"
)

func (c *ServeCommander) newStorageDriver(ctx context.Context) (storage.Driver, error) {
	switch c.cfg.Storage.Provider {
	case "inmemory":
		c.logger.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	case "postgres":
		if c.cfg.Storage.PostgresDSN == "" {
			return nil, errors.New("postgres storage requires storage.postgres_dsn")
		}
		driver, err := postgres.NewDriver(ctx, c.cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL driver: %w", err)
		}
		c.logger.Info("using PostgreSQL storage")
		return driver, nil

	case "", "sqlite":
		path := c.cfg.Storage.SQLitePath
		if path == "" {
			var err error
			path, err = dotdir.NewManager().Path(c.configDir, "reel.db")
			if err != nil {
				return nil, err
			}
		}
		driver, err := sqlite.NewSQLiteDriver(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite driver: %w", err)
		}
		c.logger.Info("using SQLite storage", zap.String("path", path))
		return driver, nil

	default:
		return nil, fmt.Errorf("unknown storage provider: %q", c.cfg.Storage.Provider)
	}
}
