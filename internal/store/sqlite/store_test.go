package sqlite

import (
	"path/filepath"
	"testing"

	"fundledger/internal/store"
	"fundledger/internal/store/storetest"

	"github.com/stretchr/testify/require"
)

func TestSqliteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := NewSqliteStore(filepath.Join(t.TempDir(), "ledger.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSqliteStoreInMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := NewSqliteStore(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestNewSqliteStoreRejectsEmptyPath(t *testing.T) {
	_, err := NewSqliteStore("  ")
	require.Error(t, err)
}
