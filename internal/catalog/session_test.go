package catalog

import (
	stderrors "errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/greydoubt/cozo/internal/errors"
	"github.com/greydoubt/cozo/internal/kv"
	"github.com/greydoubt/cozo/internal/kv/memkv"
	"github.com/greydoubt/cozo/internal/metrics"
	"github.com/greydoubt/cozo/internal/tuple"
	"github.com/greydoubt/cozo/internal/value"
)

func newTestSession(t *testing.T, cfg Config) *Session {
	t.Helper()
	root, err := memkv.New().Begin(true)
	require.NoError(t, err)
	local, err := memkv.New().Begin(true)
	require.NoError(t, err)
	return NewSession(root, local, cfg, zap.NewNop(), metrics.NewMetrics("test", prometheus.NewRegistry()))
}

func resolveInt(t *testing.T, s *Session, name string) (int64, bool) {
	t.Helper()
	v, ok, err := s.ResolveValue(name)
	require.NoError(t, err)
	if !ok {
		return 0, false
	}
	i, isInt := v.(value.Int)
	require.True(t, isInt, "expected Int, got %T", v)
	return int64(i), true
}

func TestScopeID(t *testing.T) {
	s := RootScope
	assert.True(t, s.IsRoot())
	assert.Equal(t, RootScope, s.Pop())

	child := s.Push().Push()
	assert.Equal(t, 2, child.Depth())
	assert.Equal(t, int64(-2), child.Code())
	assert.Equal(t, ScopeID(-1), child.Pop())
	assert.Equal(t, "scope(-2)", child.String())
	assert.Equal(t, "root", s.String())
}

func TestDataKind(t *testing.T) {
	assert.Equal(t, "Assoc", KindAssoc.String())
	assert.True(t, KindIndex.IsTable())
	assert.False(t, KindType.IsTable())

	_, err := DataKindOf(tuple.New(99).AsView())
	assert.ErrorIs(t, err, errors.ErrCorruptedData)
}

func TestDefineAndResolve(t *testing.T) {
	s := newTestSession(t, Config{})

	require.NoError(t, s.DefineVariable("x", value.Int(1), true))
	got, ok := resolveInt(t, s, "x")
	require.True(t, ok)
	assert.Equal(t, int64(1), got)

	_, ok = resolveInt(t, s, "missing")
	assert.False(t, ok)
}

func TestScopeIsolation(t *testing.T) {
	s := newTestSession(t, Config{})
	require.NoError(t, s.DefineVariable("x", value.Int(1), true))

	require.NoError(t, s.PushScope())
	require.NoError(t, s.DefineVariable("x", value.Int(2), false))
	require.NoError(t, s.DefineVariable("y", value.Int(3), false))

	require.NoError(t, s.PushScope())
	require.NoError(t, s.DefineVariable("x", value.Int(4), false))

	// Innermost wins
	got, _ := resolveInt(t, s, "x")
	assert.Equal(t, int64(4), got)
	got, ok := resolveInt(t, s, "y")
	require.True(t, ok, "outer local definitions stay visible")
	assert.Equal(t, int64(3), got)

	require.NoError(t, s.PopScope())
	got, _ = resolveInt(t, s, "x")
	assert.Equal(t, int64(2), got)

	require.NoError(t, s.PopScope())
	assert.Equal(t, RootScope, s.Scope())
	got, _ = resolveInt(t, s, "x")
	assert.Equal(t, int64(1), got, "root definition visible again once shadowing scope is gone")
	_, ok = resolveInt(t, s, "y")
	assert.False(t, ok)
}

func TestResolveValueWrongKind(t *testing.T) {
	s := newTestSession(t, Config{})
	require.NoError(t, s.Define("T", NewPayload(KindType).PushText("Int"), true))

	_, _, err := s.ResolveValue("T")
	assert.ErrorIs(t, err, errors.ErrUnexpectedDataKind)
	assert.True(t, errors.IsUserError(err))
}

func TestDefineVariableRejectsBadName(t *testing.T) {
	s := newTestSession(t, Config{})
	err := s.DefineVariable("$x", value.Int(1), true)
	assert.ErrorIs(t, err, errors.ErrInvalidName)
}

func TestAllocateTableID(t *testing.T) {
	s := newTestSession(t, Config{})

	for want := int64(1); want <= 3; want++ {
		id, err := s.AllocateTableID(true)
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}

	// Each space has its own counter
	id, err := s.AllocateTableID(false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestAllocateTableIDExhausted(t *testing.T) {
	s := newTestSession(t, Config{})
	require.NoError(t, s.DefineRawKey(counterKey(), tuple.New(catalogPrefix).PushInt(MaxTableID), true))

	_, err := s.AllocateTableID(true)
	assert.ErrorIs(t, err, errors.ErrTableIDExhausted)
}

func TestAllocateTableIDCorruptCounter(t *testing.T) {
	s := newTestSession(t, Config{})
	require.NoError(t, s.DefineRawKey(counterKey(), tuple.New(catalogPrefix).PushText("nope"), true))

	_, err := s.AllocateTableID(true)
	assert.ErrorIs(t, err, errors.ErrCorruptedData)
	assert.False(t, errors.IsUserError(err))
}

func TestPushScopeOverflow(t *testing.T) {
	s := newTestSession(t, Config{MaxScopeDepth: 3})
	for i := 0; i < 3; i++ {
		require.NoError(t, s.PushScope())
	}
	err := s.PushScope()
	assert.ErrorIs(t, err, errors.ErrStackOverflow)
	assert.Equal(t, 3, s.Scope().Depth())
}

func TestDefaultScopeLimit(t *testing.T) {
	s := newTestSession(t, Config{})
	for i := 0; i < DefaultMaxScopeDepth; i++ {
		require.NoError(t, s.PushScope())
	}
	assert.ErrorIs(t, s.PushScope(), errors.ErrStackOverflow)
}

func TestRawKeys(t *testing.T) {
	s := newTestSession(t, Config{})
	key := tuple.New(catalogPrefix).PushText("raw")

	ok, err := s.KeyExists(key, false)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.DefineRawKey(key, nil, false))
	ok, err = s.KeyExists(key, false)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.DelKey(key, false))
	ok, err = s.KeyExists(key, false)
	require.NoError(t, err)
	assert.False(t, ok)
}

type mockTxn struct {
	mock.Mock
}

func (m *mockTxn) Get(key []byte) ([]byte, error) {
	args := m.Called(key)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *mockTxn) Put(key, val []byte) error {
	return m.Called(key, val).Error(0)
}

func (m *mockTxn) Delete(key []byte) error {
	return m.Called(key).Error(0)
}

func (m *mockTxn) DeleteRange(start, end []byte) error {
	return m.Called(start, end).Error(0)
}

func (m *mockTxn) Iterator() kv.Iterator {
	return m.Called().Get(0).(kv.Iterator)
}

func (m *mockTxn) Commit() error   { return m.Called().Error(0) }
func (m *mockTxn) Rollback() error { return m.Called().Error(0) }

func newMockSession(t *testing.T, root *mockTxn) *Session {
	t.Helper()
	local, err := memkv.New().Begin(true)
	require.NoError(t, err)
	return NewSession(root, local, Config{}, nil, nil)
}

func TestStorageErrorsPropagate(t *testing.T) {
	diskErr := stderrors.New("disk gone")

	tests := []struct {
		name      string
		getErr    error
		putErr    error
		want      error
		expectPut bool
	}{
		{name: "read failure", getErr: diskErr, want: errors.ErrStorage},
		{name: "corrupted value", getErr: kv.ErrCorrupted, want: errors.ErrCorruptedData},
		{name: "write failure", getErr: kv.ErrNotFound, putErr: diskErr, want: errors.ErrStorage, expectPut: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := &mockTxn{}
			root.On("Get", mock.Anything).Return(nil, tt.getErr)
			if tt.expectPut {
				root.On("Put", mock.Anything, mock.Anything).Return(tt.putErr)
			}
			s := newMockSession(t, root)

			_, err := s.AllocateTableID(true)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.False(t, errors.IsUserError(err))
			if tt.getErr == diskErr || tt.putErr == diskErr {
				assert.ErrorIs(t, err, diskErr)
			}
			root.AssertExpectations(t)
		})
	}
}
