package catalog

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greydoubt/cozo/internal/errors"
	"github.com/greydoubt/cozo/internal/syntax"
	"github.com/greydoubt/cozo/internal/value"
)

// localKeysExceptCounter lists what the local space holds besides the id
// counter, which outlives every scope.
func localKeysExceptCounter(t *testing.T, s *Session) []string {
	t.Helper()
	entries, err := s.Dump(false)
	require.NoError(t, err)
	var keys []string
	for _, e := range entries {
		if bytes.Equal(e.Key.Bytes(), counterKey().Bytes()) {
			continue
		}
		keys = append(keys, e.Key.String())
	}
	return keys
}

func TestPopScopeCleanup(t *testing.T) {
	s := newTestSession(t, Config{})
	defineSchema(t, s)
	rootBefore, err := s.Dump(true)
	require.NoError(t, err)

	require.NoError(t, s.PushScope())
	require.NoError(t, s.RunDefinition(syntax.Local(syntax.NodeDef("Temp",
		syntax.Col("id", "Int", true),
		syntax.Col("label", "Text", false)))))
	require.NoError(t, s.RunDefinition(syntax.Local(syntax.EdgeDef("Temp", "Link", "Person"))))
	require.NoError(t, s.RunDefinition(syntax.Local(syntax.AssocDef("Note", "Temp", syntax.Col("text", "Text", false)))))
	require.NoError(t, s.DefineVariable("limit", value.Int(10), false))

	temp, ok, err := s.ResolveTable("Temp")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, temp.Associates, 1)
	for i := int64(0); i < 5; i++ {
		require.NoError(t, s.PutRow(temp.Ref, []value.Value{value.Int(i)}, []value.Value{value.Text("row")}))
	}
	n, err := s.CountRows(temp.Ref)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	require.NoError(t, s.PopScope())
	assert.Equal(t, RootScope, s.Scope())

	assert.Empty(t, localKeysExceptCounter(t, s))
	n, err = s.CountRows(temp.Ref)
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, name := range []string{"Temp", "Link", "Note", "limit"} {
		_, ok, err := s.Resolve(name)
		require.NoError(t, err)
		assert.False(t, ok, name)
	}

	// The root space is never touched by a pop
	rootAfter, err := s.Dump(true)
	require.NoError(t, err)
	assert.Equal(t, rootBefore, rootAfter)

	person, _, err := s.ResolveTable("Person")
	require.NoError(t, err)
	require.Len(t, person.Associates, 1)
}

func TestPopScopeOnlyTouchesItsDepth(t *testing.T) {
	s := newTestSession(t, Config{})

	require.NoError(t, s.PushScope())
	require.NoError(t, s.RunDefinition(syntax.Local(syntax.NodeDef("Outer", syntax.Col("id", "Int", true)))))
	outer, _, err := s.ResolveTable("Outer")
	require.NoError(t, err)
	require.NoError(t, s.PutRow(outer.Ref, []value.Value{value.Int(1)}, nil))

	require.NoError(t, s.PushScope())
	require.NoError(t, s.RunDefinition(syntax.Local(syntax.NodeDef("Inner", syntax.Col("id", "Int", true)))))
	require.NoError(t, s.RunDefinition(syntax.Local(syntax.AssocDef("Tag", "Outer", syntax.Col("t", "Text", false)))))
	inner, _, err := s.ResolveTable("Inner")
	require.NoError(t, err)
	require.NoError(t, s.PutRow(inner.Ref, []value.Value{value.Int(1)}, nil))

	outer, _, err = s.ResolveTable("Outer")
	require.NoError(t, err)
	require.Len(t, outer.Associates, 1)

	require.NoError(t, s.PopScope())

	_, ok, err := s.Resolve("Inner")
	require.NoError(t, err)
	assert.False(t, ok)

	outer, ok, err = s.ResolveTable("Outer")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, outer.Associates, "back-references of the popped scope are gone")

	vals, ok, err := s.GetRow(outer.Ref, []value.Value{value.Int(1)})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, vals)

	n, err := s.CountRows(inner.Ref)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPopRootScope(t *testing.T) {
	s := newTestSession(t, Config{})
	require.NoError(t, s.DefineVariable("root_local", value.Int(1), false))
	require.NoError(t, s.DefineVariable("durable", value.Int(2), true))

	require.NoError(t, s.PopScope())
	assert.Equal(t, RootScope, s.Scope())

	_, ok, err := s.Resolve("root_local")
	require.NoError(t, err)
	assert.False(t, ok, "local root-level definitions are swept")

	_, ok, err = s.Resolve("durable")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeleteCascades(t *testing.T) {
	s := newTestSession(t, Config{})
	defineSchema(t, s)

	person, _, err := s.ResolveTable("Person")
	require.NoError(t, err)
	work := person.Associates[0].Ref
	require.NoError(t, s.PutRow(work, []value.Value{value.Int(7)}, []value.Value{value.Int(42)}))

	require.NoError(t, s.Delete("WorkInfo", true))

	_, ok, err := s.Resolve("WorkInfo")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.TablePayload(work.ID, true)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.CountRows(work)
	require.NoError(t, err)
	assert.Zero(t, n)

	ok, err = s.KeyExists(backRefKey("Person", RootScope, KindAssoc, "WorkInfo"), true)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.KeyExists(backRefScopeKey(RootScope, "Person", KindAssoc, "WorkInfo"), true)
	require.NoError(t, err)
	assert.False(t, ok)

	// Unrelated entries survive
	ok, err = s.KeyExists(backRefKey("Person", RootScope, KindEdge, "Friend"), true)
	require.NoError(t, err)
	assert.True(t, ok)
	id, err := s.AllocateTableID(true)
	require.NoError(t, err)
	assert.Equal(t, int64(4), id, "ids are not reused")

	// Missing names are a no-op
	require.NoError(t, s.Delete("WorkInfo", true))
}

func TestDeleteRejectsTableWithDependents(t *testing.T) {
	s := newTestSession(t, Config{})
	defineSchema(t, s)
	before, err := s.Dump(true)
	require.NoError(t, err)

	err = s.Delete("Person", true)
	require.ErrorIs(t, err, errors.ErrDependentsExist)
	assert.ElementsMatch(t, []string{"Friend", "WorkInfo"}, err.(*errors.CatalogError).Details["members"])

	after, err := s.Dump(true)
	require.NoError(t, err)
	assert.Equal(t, before, after, "rejected delete writes nothing")
}

func TestRedefinedTableDoesNotInheritAssociations(t *testing.T) {
	s := newTestSession(t, Config{})
	defineSchema(t, s)

	require.NoError(t, s.Delete("WorkInfo", true))
	require.NoError(t, s.Delete("Friend", true))
	require.NoError(t, s.Delete("Person", true))
	require.NoError(t, s.RunDefinition(syntax.Global(personDef())))

	person, ok, err := s.ResolveTable("Person")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, TableRef{Global: true, ID: 4}, person.Ref)
	assert.Empty(t, person.Associates)
}

func TestShadowingTableHidesOuterAssociations(t *testing.T) {
	s := newTestSession(t, Config{})
	defineSchema(t, s)

	require.NoError(t, s.PushScope())
	require.NoError(t, s.RunDefinition(syntax.Local(syntax.NodeDef("Person", syntax.Col("id", "Int", true)))))

	person, ok, err := s.ResolveTable("Person")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, person.Ref.Global)
	assert.Empty(t, person.Associates)

	require.NoError(t, s.RunDefinition(syntax.Local(syntax.AssocDef("Badge", "Person", syntax.Col("level", "Int", false)))))
	person, _, err = s.ResolveTable("Person")
	require.NoError(t, err)
	require.Len(t, person.Associates, 1)
	assert.Equal(t, "Badge", person.Associates[0].Name)
	assert.Equal(t, person.Ref, person.Associates[0].Owner)

	require.NoError(t, s.PopScope())
	person, _, err = s.ResolveTable("Person")
	require.NoError(t, err)
	require.Len(t, person.Associates, 1)
	assert.Equal(t, "WorkInfo", person.Associates[0].Name)
}

func TestDeleteLocal(t *testing.T) {
	s := newTestSession(t, Config{})
	require.NoError(t, s.PushScope())
	require.NoError(t, s.RunDefinition(syntax.Local(syntax.NodeDef("T", syntax.Col("id", "Int", true)))))
	require.NoError(t, s.Delete("T", false))

	assert.Empty(t, localKeysExceptCounter(t, s))
}

func TestRows(t *testing.T) {
	s := newTestSession(t, Config{})
	defineSchema(t, s)
	person, _, err := s.ResolveTable("Person")
	require.NoError(t, err)

	key := []value.Value{value.Int(1)}
	row := []value.Value{value.Text("ann"), value.Null{}, value.List{value.Text("chess")}}
	require.NoError(t, s.PutRow(person.Ref, key, row))

	got, ok, err := s.GetRow(person.Ref, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, row, got)

	tests := []struct {
		name string
		key  []value.Value
		vals []value.Value
	}{
		{"wrong key type", []value.Value{value.Text("1")}, row},
		{"missing value column", key, row[:2]},
		{"nullability enforced", key, []value.Value{value.Null{}, value.Null{}, value.Null{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.PutRow(person.Ref, tt.key, tt.vals)
			assert.ErrorIs(t, err, errors.ErrInvalidArgument)
		})
	}

	var seen int
	require.NoError(t, s.PutRow(person.Ref, []value.Value{value.Int(2)}, row))
	require.NoError(t, s.ScanRows(person.Ref, func(k, _ []value.Value) (bool, error) {
		seen++
		assert.Equal(t, value.Int(seen), k[0])
		return true, nil
	}))
	assert.Equal(t, 2, seen)

	_, _, err = s.GetRow(TableRef{Global: true, ID: 99}, key)
	require.NoError(t, err)
	err = s.PutRow(TableRef{Global: true, ID: 99}, key, row)
	assert.ErrorIs(t, err, errors.ErrUndefinedType)
}
