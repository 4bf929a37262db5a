// Package memstore хранит коллекцию в памяти процесса. Используется в тестах
// и при локальном запуске без внешнего хранилища.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/magabrotheeeer/render-ledger/internal/storage"
)

// Backend держит сериализованную копию коллекции, чтобы Load
// каждый раз возвращал независимый экземпляр.
type Backend struct {
	mu      sync.Mutex
	data    []byte
	saveErr error
	saves   int
}

// New создаёт пустой Backend.
func New() *Backend {
	return &Backend{}
}

// Load возвращает копию сохранённой коллекции.
func (b *Backend) Load(ctx context.Context) (*storage.Collection, error) {
	const op = "storage.memstore.Load"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var c storage.Collection
	if len(b.data) == 0 {
		return &c, nil
	}
	if err := json.Unmarshal(b.data, &c); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &c, nil
}

// Save заменяет коллекцию целиком.
func (b *Backend) Save(ctx context.Context, c *storage.Collection) error {
	const op = "storage.memstore.Save"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.saveErr != nil {
		return fmt.Errorf("%s: %w", op, b.saveErr)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	b.data = data
	b.saves++
	return nil
}

// FailSaves заставляет последующие Save возвращать err; nil снимает сбой.
func (b *Backend) FailSaves(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saveErr = err
}

// Saves возвращает число успешных записей.
func (b *Backend) Saves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

// Close ничего не делает.
func (b *Backend) Close() error {
	return nil
}
