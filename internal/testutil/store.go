package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/napa14-design/infrahub/internal/rules"
	"github.com/napa14-design/infrahub/internal/storage"
)

// OpenStore opens a record store backed by a temporary sqlite file.
// Closed automatically when the test finishes.
func OpenStore(t *testing.T) *storage.Store {
	t.Helper()

	logger := zap.NewNop()
	store, err := storage.Open(logger, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

// OpenRuleStore creates a rule store sharing the record store's
// database.
func OpenRuleStore(t *testing.T, store *storage.Store) *rules.Store {
	t.Helper()

	ruleStore, err := rules.NewStore(zap.NewNop(), store.DB())
	require.NoError(t, err)
	return ruleStore
}
