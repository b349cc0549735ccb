package boltkv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/greydoubt/cozo/internal/kv"
	"github.com/greydoubt/cozo/internal/kv/kvtest"
)

func TestConformance(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Store {
		s, err := New(&StoreConfig{Path: filepath.Join(t.TempDir(), "cozo.db"), NoSync: true, Checksum: true}, zap.NewNop())
		require.NoError(t, err)
		return s
	})
}

func TestConformanceWithoutChecksum(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Store {
		s, err := New(&StoreConfig{Path: filepath.Join(t.TempDir(), "cozo.db"), NoSync: true}, zap.NewNop())
		require.NoError(t, err)
		return s
	})
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
	_, err = New(&StoreConfig{}, nil)
	assert.Error(t, err)
}

func TestChecksumMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cozo.db")
	s, err := New(&StoreConfig{Path: path}, zap.NewNop())
	require.NoError(t, err)
	txn, err := s.Begin(true)
	require.NoError(t, err)
	require.NoError(t, txn.Put([]byte("k"), []byte("v")))
	require.NoError(t, txn.Commit())
	require.NoError(t, s.Close())

	s, err = New(&StoreConfig{Path: path, Checksum: true}, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()
	txn, err = s.Begin(false)
	require.NoError(t, err)
	defer txn.Rollback()

	_, err = txn.Get([]byte("k"))
	assert.ErrorIs(t, err, kv.ErrCorrupted)
}
