package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/render-ledger/internal/config"
	"github.com/magabrotheeeer/render-ledger/internal/migrations"
	"github.com/magabrotheeeer/render-ledger/internal/storage"
	"github.com/magabrotheeeer/render-ledger/internal/storage/filestore"
	"github.com/magabrotheeeer/render-ledger/internal/storage/memstore"
	"github.com/magabrotheeeer/render-ledger/internal/storage/postgres"
	"github.com/magabrotheeeer/render-ledger/internal/storage/redisstore"
)

// openBackend открывает носитель коллекции по драйверу из конфига.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Backend, error) {
	const op = "app.ledger.openBackend"

	switch cfg.Driver {
	case config.StorageMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		return memstore.New(), nil
	case config.StorageFile:
		b, err := filestore.New(cfg.FilePath)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return b, nil
	case config.StoragePostgres:
		b, err := postgres.New(ctx, cfg.StorageConnectionString, cfg.CollectionName)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		version, err := migrations.Run(b.DB, cfg.MigrationsPath)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		logger.Info("schema migrated", slog.Uint64("version", uint64(version)))
		if err := b.CheckReady(ctx); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return b, nil
	case config.StorageRedis:
		b, err := redisstore.New(ctx, cfg.RedisConnection, cfg.CollectionName)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%s: unknown storage driver %q", op, cfg.Driver)
	}
}
