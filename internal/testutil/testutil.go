// Package testutil provides shared test helpers for setting up vaults and stores.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/kiln/internal/eav/memstore"
	"github.com/starford/kiln/internal/eav/sqlitestore"
	"github.com/starford/kiln/internal/storage"
)

// TestSQLiteStore creates a temporary SQLite store that is automatically cleaned up.
func TestSQLiteStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	dbFile, err := os.CreateTemp("", "kiln-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() {
		os.Remove(dbFile.Name())
		os.Remove(dbFile.Name() + "-wal")
		os.Remove(dbFile.Name() + "-shm")
	})

	s, err := sqlitestore.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMemStore returns an empty in-memory store.
func TestMemStore(t *testing.T) *memstore.Store {
	t.Helper()
	s := memstore.New()
	t.Cleanup(func() { s.Close() })
	return s
}

// TestVault creates a temporary vault directory with a storage provider.
func TestVault(t *testing.T, opts ...storage.FSOption) (string, *storage.FS) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}
