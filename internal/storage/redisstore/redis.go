// Package redisstore хранит коллекцию учётных записей в одном ключе Redis.
// SET заменяет значение целиком, поэтому частичной записи не бывает.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/render-ledger/internal/config"
	"github.com/magabrotheeeer/render-ledger/internal/storage"
)

// Backend носитель коллекции в Redis.
type Backend struct {
	Db  *redis.Client
	key string
}

// New подключается к Redis и проверяет соединение.
func New(ctx context.Context, cfg config.RedisConnection, collection string) (*Backend, error) {
	const op = "storage.redisstore.New"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Backend{Db: db, key: Key(collection)}, nil
}

// Key возвращает ключ Redis для коллекции.
func Key(collection string) string {
	return "ledger:collection:" + collection
}

// Load читает коллекцию. Отсутствующий ключ означает пустую коллекцию.
func (b *Backend) Load(ctx context.Context) (*storage.Collection, error) {
	const op = "storage.redisstore.Load"
	var c storage.Collection

	val, err := b.Db.Get(ctx, b.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return &c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := json.Unmarshal(val, &c); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &c, nil
}

// Save заменяет коллекцию целиком, без срока жизни.
func (b *Backend) Save(ctx context.Context, c *storage.Collection) error {
	const op = "storage.redisstore.Save"
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := b.Db.Set(ctx, b.key, data, 0).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close закрывает клиент Redis.
func (b *Backend) Close() error {
	return b.Db.Close()
}
