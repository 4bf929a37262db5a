// Package filestore хранит коллекцию в JSON-файле. Запись идёт во временный
// файл рядом с целевым и затем атомарно переименовывается поверх него.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/magabrotheeeer/render-ledger/internal/storage"
)

// Backend файловый носитель коллекции.
type Backend struct {
	path string
}

// New создаёт Backend и каталог для файла, если его нет.
func New(path string) (*Backend, error) {
	const op = "storage.filestore.New"
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Backend{path: path}, nil
}

// Load читает коллекцию. Отсутствующий файл означает пустую коллекцию.
func (b *Backend) Load(ctx context.Context) (*storage.Collection, error) {
	const op = "storage.filestore.Load"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var c storage.Collection
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return &c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(data) == 0 {
		return &c, nil
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &c, nil
}

// Save записывает коллекцию целиком через временный файл и rename.
func (b *Backend) Save(ctx context.Context, c *storage.Collection) (err error) {
	const op = "storage.filestore.Save"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(b.path), "."+filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Path возвращает путь к файлу коллекции.
func (b *Backend) Path() string {
	return b.path
}

// Close ничего не делает: файл открывается только на время операции.
func (b *Backend) Close() error {
	return nil
}
