package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greydoubt/cozo/internal/syntax"
	"github.com/greydoubt/cozo/internal/value"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"a=1", "$b=\"x\"", "c={\"float\":\"2.5\"}"})
	require.NoError(t, err)
	assert.Equal(t, value.Int(1), params["$a"])
	assert.Equal(t, value.Text("x"), params["$b"])
	assert.Equal(t, value.Float(2.5), params["$c"])

	for _, bad := range []string{"a", "=1", "a={"} {
		_, err := parseParams([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestDecodeQuery(t *testing.T) {
	q, err := decodeQuery([]byte(`{
		"from": [{"table": "Person", "binding": "p"}],
		"where": {"op": ">", "args": [{"field": "age", "of": {"var": "p"}}, {"var": "$min"}]},
		"select": [{"name": "n", "expr": {"field": "name", "of": {"var": "p"}}}],
		"params": {"$min": 18}
	}`))
	require.NoError(t, err)
	require.Len(t, q.From, 1)
	assert.Equal(t, "Person", q.From[0].Table)
	assert.Equal(t, "p", q.From[0].Binding)
	assert.NotNil(t, q.Where)
	require.Len(t, q.Select.Fields, 1)
	assert.Equal(t, "n", q.Select.Fields[0].Name)
	assert.Equal(t, value.Int(18), q.Params["$min"])

	_, err = decodeQuery([]byte(`{"where": {"op": 1}}`))
	assert.Error(t, err)
}

func TestDecodeDefinitions(t *testing.T) {
	one, err := decodeDefinitions([]byte(`{"rule":"global_def","children":[]}`))
	require.NoError(t, err)
	assert.Len(t, one, 1)
	assert.Equal(t, syntax.RuleGlobalDef, one[0].Rule)

	many, err := decodeDefinitions([]byte(` [{"rule":"global_def"},{"rule":"local_def"}]`))
	require.NoError(t, err)
	assert.Len(t, many, 2)
}
