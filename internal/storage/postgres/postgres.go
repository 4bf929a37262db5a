// Package postgres хранит коллекцию учётных записей в PostgreSQL одной строкой JSONB.
// Строка заменяется целиком одним INSERT ... ON CONFLICT, поэтому запись атомарна.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/magabrotheeeer/render-ledger/internal/storage"
)

// Backend инкапсулирует соединение с PostgreSQL и имя коллекции.
type Backend struct {
	DB   *sql.DB
	name string
}

// New создаёт подключение к PostgreSQL и проверяет его.
func New(ctx context.Context, connectionString, name string) (*Backend, error) {
	const op = "storage.postgres.New"

	db, err := sql.Open("pgx", connectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return NewWithDB(db, name), nil
}

// NewWithDB оборачивает уже открытое соединение.
func NewWithDB(db *sql.DB, name string) *Backend {
	return &Backend{DB: db, name: name}
}

// Load читает коллекцию. Отсутствие строки означает пустую коллекцию.
func (b *Backend) Load(ctx context.Context) (*storage.Collection, error) {
	const op = "storage.postgres.Load"

	var payload []byte
	err := b.DB.QueryRowContext(ctx,
		`SELECT payload FROM ledger_collections WHERE name = $1`, b.name).Scan(&payload)
	var c storage.Collection
	if errors.Is(err, sql.ErrNoRows) {
		return &c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &c, nil
}

// Save заменяет коллекцию целиком и увеличивает версию строки.
func (b *Backend) Save(ctx context.Context, c *storage.Collection) error {
	const op = "storage.postgres.Save"

	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	_, err = b.DB.ExecContext(ctx, `
		INSERT INTO ledger_collections (name, payload, version, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (name) DO UPDATE
		SET payload = EXCLUDED.payload,
		    version = ledger_collections.version + 1,
		    updated_at = NOW()`,
		b.name, payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CheckReady проверяет, что миграции применены.
func (b *Backend) CheckReady(ctx context.Context) error {
	const op = "storage.postgres.CheckReady"
	var exists bool
	err := b.DB.QueryRowContext(ctx, `SELECT EXISTS (
        SELECT FROM information_schema.tables
        WHERE table_name = 'ledger_collections'
    )`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return fmt.Errorf("%s: table ledger_collections is missing", op)
	}
	return nil
}

// Close закрывает пул соединений.
func (b *Backend) Close() error {
	return b.DB.Close()
}
