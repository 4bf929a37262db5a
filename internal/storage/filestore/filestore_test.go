package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/render-ledger/internal/models"
	"github.com/magabrotheeeer/render-ledger/internal/storage"
)

func TestBackend_LoadMissingFile(t *testing.T) {
	b, err := New(filepath.Join(t.TempDir(), "nested", "accounts.json"))
	require.NoError(t, err)

	c, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestBackend_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	b, err := New(filepath.Join(dir, "accounts.json"))
	require.NoError(t, err)
	ctx := context.Background()

	c := &storage.Collection{}
	c.Insert(models.AccountRecord{ID: "1", Email: "ana@x.com", FreeMonthlyPeriod: "2024-05"})
	require.NoError(t, b.Save(ctx, c))

	c.Insert(models.AccountRecord{ID: "2", Email: "bob@x.com"})
	require.NoError(t, b.Save(ctx, c))

	loaded, err := b.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())
	assert.Equal(t, "2024-05", loaded.Accounts[0].FreeMonthlyPeriod)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestBackend_LoadCorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	b, err := New(path)
	require.NoError(t, err)

	_, err = b.Load(context.Background())
	assert.Error(t, err)
}

func TestBackend_SaveFailureKeepsPreviousFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.json")
	b, err := New(path)
	require.NoError(t, err)
	ctx := context.Background()

	c := &storage.Collection{}
	c.Insert(models.AccountRecord{ID: "1", Email: "ana@x.com"})
	require.NoError(t, b.Save(ctx, c))

	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o700) })
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	c.Insert(models.AccountRecord{ID: "2", Email: "bob@x.com"})
	assert.Error(t, b.Save(ctx, c))

	loaded, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
}

func TestBackend_CanceledContext(t *testing.T) {
	b, err := New(filepath.Join(t.TempDir(), "accounts.json"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = b.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, b.Save(ctx, &storage.Collection{}), context.Canceled)
}
