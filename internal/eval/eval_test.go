package eval

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/greydoubt/cozo/internal/errors"
	"github.com/greydoubt/cozo/internal/metrics"
	"github.com/greydoubt/cozo/internal/value"
)

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) ResolveValue(name string) (value.Value, bool, error) {
	args := m.Called(name)
	v, _ := args.Get(0).(value.Value)
	return v, args.Bool(1), args.Error(2)
}

// mapResolver resolves from a fixed set of constants.
type mapResolver map[string]value.Value

func (r mapResolver) ResolveValue(name string) (value.Value, bool, error) {
	v, ok := r[name]
	return v, ok, nil
}

func ap(op value.Op, args ...value.Value) value.Apply {
	return value.NewApply(op, args...)
}

func v(name string) value.Variable { return value.Variable(name) }

func TestNumericExample(t *testing.T) {
	e := New(nil, zap.NewNop(), nil)
	expr := ap(value.OpAdd,
		ap(value.OpDiv, value.Int(1), value.Int(10)),
		ap(value.OpMul,
			ap(value.OpAdd, ap(value.OpMinus, value.Int(2)), value.Int(3)),
			ap(value.OpPow, value.Int(4), value.Int(5))))

	ground, out, err := e.Eval(expr, nil, nil)
	require.NoError(t, err)
	assert.True(t, ground)
	f, ok := out.(value.Float)
	require.True(t, ok, "got %T", out)
	assert.InDelta(t, 1024.1, float64(f), 1e-9)
}

func TestGroundOperators(t *testing.T) {
	tests := []struct {
		name string
		expr value.Value
		want value.Value
	}{
		{"int add", ap(value.OpAdd, value.Int(2), value.Int(3)), value.Int(5)},
		{"int sub", ap(value.OpSub, value.Int(2), value.Int(3)), value.Int(-1)},
		{"int mul", ap(value.OpMul, value.Int(4), value.Int(3)), value.Int(12)},
		{"int div floats", ap(value.OpDiv, value.Int(7), value.Int(2)), value.Float(3.5)},
		{"int pow floats", ap(value.OpPow, value.Int(2), value.Int(3)), value.Float(8)},
		{"int mod", ap(value.OpMod, value.Int(7), value.Int(3)), value.Int(1)},
		{"mixed add promotes", ap(value.OpAdd, value.Int(1), value.Float(0.5)), value.Float(1.5)},
		{"mixed sub promotes", ap(value.OpSub, value.Float(1.5), value.Int(1)), value.Float(0.5)},
		{"float mul", ap(value.OpMul, value.Float(1.5), value.Float(2)), value.Float(3)},
		{"gt", ap(value.OpGt, value.Int(2), value.Int(1)), value.Bool(true)},
		{"ge mixed", ap(value.OpGe, value.Int(2), value.Float(2)), value.Bool(true)},
		{"lt", ap(value.OpLt, value.Float(2.5), value.Int(2)), value.Bool(false)},
		{"le", ap(value.OpLe, value.Int(2), value.Int(2)), value.Bool(true)},
		{"eq", ap(value.OpEq, value.Text("a"), value.Text("a")), value.Bool(true)},
		{"ne", ap(value.OpNe, value.Int(1), value.Int(2)), value.Bool(true)},
		{"eq across kinds is false", ap(value.OpEq, value.Int(1), value.Text("1")), value.Bool(false)},
		{"negative zero equals zero", ap(value.OpEq, value.Float(math.Copysign(0, -1)), value.Float(0)), value.Bool(true)},
		{"negative zero not unequal", ap(value.OpNe, value.Float(math.Copysign(0, -1)), value.Float(0)), value.Bool(false)},
		{"negative zero le zero", ap(value.OpLe, value.Float(math.Copysign(0, -1)), value.Float(0)), value.Bool(true)},
		{"nan equals nan", ap(value.OpEq, value.Float(math.NaN()), value.Float(math.NaN())), value.Bool(true)},
		{"int add at the edge", ap(value.OpAdd, value.Int(math.MaxInt64-1), value.Int(1)), value.Int(math.MaxInt64)},
		{"int mul negative", ap(value.OpMul, value.Int(-1), value.Int(math.MaxInt64)), value.Int(-math.MaxInt64)},
		{"str cat", ap(value.OpStrCat, value.Text("ab"), value.Text("cd")), value.Text("abcd")},
		{"minus int", ap(value.OpMinus, value.Int(3)), value.Int(-3)},
		{"minus float", ap(value.OpMinus, value.Float(1.5)), value.Float(-1.5)},
		{"negate", ap(value.OpNegate, value.Bool(true)), value.Bool(false)},
		{"is null", ap(value.OpIsNull, value.Null{}), value.Bool(true)},
		{"is null on value", ap(value.OpIsNull, value.Int(1)), value.Bool(false)},
		{"not null", ap(value.OpNotNull, value.Int(1)), value.Bool(true)},
		{"not null on null", ap(value.OpNotNull, value.Null{}), value.Bool(false)},
		{"scalar passes through", value.Text("x"), value.Text("x")},
		{"end sentinel passes through", value.EndSentinel{}, value.EndSentinel{}},
		{"list reduces element-wise", value.List{ap(value.OpAdd, value.Int(1), value.Int(1)), value.Int(3)},
			value.List{value.Int(2), value.Int(3)}},
		{"dict reduces element-wise", value.Dict{"a": ap(value.OpNegate, value.Bool(false))},
			value.Dict{"a": value.Bool(true)}},
	}

	e := New(nil, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ground, out, err := e.Eval(tt.expr, nil, nil)
			require.NoError(t, err)
			assert.True(t, ground)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestNullPropagation(t *testing.T) {
	ops := []value.Op{
		value.OpAdd, value.OpSub, value.OpMul, value.OpDiv, value.OpMod, value.OpPow,
		value.OpEq, value.OpNe, value.OpGt, value.OpGe, value.OpLt, value.OpLe, value.OpStrCat,
	}
	e := New(nil, nil, nil)
	for _, op := range ops {
		t.Run(op.String(), func(t *testing.T) {
			// Null wins even against a residual operand
			ground, out, err := e.Eval(ap(op, value.Null{}, v("row")), nil, NewBindings("row"))
			require.NoError(t, err)
			assert.True(t, ground)
			assert.Equal(t, value.Null{}, out)

			ground, out, err = e.Eval(ap(op, value.Int(1), value.Null{}), nil, nil)
			require.NoError(t, err)
			assert.True(t, ground)
			assert.Equal(t, value.Null{}, out)
		})
	}

	for _, op := range []value.Op{value.OpMinus, value.OpNegate} {
		ground, out, err := e.Eval(ap(op, value.Null{}), nil, nil)
		require.NoError(t, err)
		assert.True(t, ground)
		assert.Equal(t, value.Null{}, out)
	}
}

func TestInvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		expr value.Value
	}{
		{"add text", ap(value.OpAdd, value.Text("a"), value.Int(1))},
		{"mod float", ap(value.OpMod, value.Float(1), value.Int(2))},
		{"mod by zero", ap(value.OpMod, value.Int(1), value.Int(0))},
		{"add overflow", ap(value.OpAdd, value.Int(math.MaxInt64), value.Int(1))},
		{"add underflow", ap(value.OpAdd, value.Int(math.MinInt64), value.Int(-1))},
		{"sub overflow", ap(value.OpSub, value.Int(math.MinInt64), value.Int(1))},
		{"mul overflow", ap(value.OpMul, value.Int(math.MaxInt64/2+1), value.Int(2))},
		{"mul min by minus one", ap(value.OpMul, value.Int(-1), value.Int(math.MinInt64))},
		{"minus min int", ap(value.OpMinus, value.Int(math.MinInt64))},
		{"compare text", ap(value.OpGt, value.Text("b"), value.Text("a"))},
		{"str cat int", ap(value.OpStrCat, value.Text("a"), value.Int(1))},
		{"minus bool", ap(value.OpMinus, value.Bool(true))},
		{"negate int", ap(value.OpNegate, value.Int(1))},
		{"and non-bool", ap(value.OpAnd, value.Bool(true), value.Int(1))},
		{"or non-bool", ap(value.OpOr, value.Text("x"))},
		{"and residual list", ap(value.OpAnd, value.List{v("row")})},
		{"binary arity", ap(value.OpAdd, value.Int(1))},
		{"unary arity", ap(value.OpMinus, value.Int(1), value.Int(2))},
	}

	e := New(nil, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := e.Eval(tt.expr, nil, NewBindings("row"))
			assert.ErrorIs(t, err, errors.ErrInvalidArgument)
			assert.True(t, errors.IsUserError(err))
		})
	}
}

func TestLogicErrors(t *testing.T) {
	tests := []struct {
		name string
		expr value.Value
	}{
		{"field access on int", value.FieldAccess{Field: "a", Base: value.Int(1)}},
		{"index access on text", value.IdxAccess{Index: 0, Base: value.Text("abc")}},
		{"concat scalar", ap(value.OpConcat, value.List{value.Int(1)}, value.Int(2))},
		{"invalid operator", value.Apply{Op: value.OpInvalid}},
	}

	e := New(nil, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := e.Eval(tt.expr, nil, nil)
			assert.ErrorIs(t, err, errors.ErrLogic)
		})
	}
}

func TestThreeValuedLogic(t *testing.T) {
	row := v("row")
	tests := []struct {
		name       string
		expr       value.Value
		wantGround bool
		want       value.Value
	}{
		{"true and false", ap(value.OpAnd, value.Bool(true), value.Bool(false)), true, value.Bool(false)},
		{"true and true", ap(value.OpAnd, value.Bool(true), value.Bool(true)), true, value.Bool(true)},
		{"empty and", ap(value.OpAnd), true, value.Bool(true)},
		{"empty or", ap(value.OpOr), true, value.Bool(false)},
		{"true or null", ap(value.OpOr, value.Bool(true), value.Null{}), true, value.Bool(true)},
		{"null or true", ap(value.OpOr, value.Null{}, value.Bool(true)), true, value.Bool(true)},
		{"true and null", ap(value.OpAnd, value.Bool(true), value.Null{}), true, value.Null{}},
		{"false or null", ap(value.OpOr, value.Bool(false), value.Null{}), true, value.Null{}},
		{"false and residual", ap(value.OpAnd, value.Bool(false), row), true, value.Bool(false)},
		{"residual and false", ap(value.OpAnd, row, value.Bool(false)), true, value.Bool(false)},
		{"true or residual", ap(value.OpOr, row, value.Bool(true)), true, value.Bool(true)},
		{"true and residual", ap(value.OpAnd, value.Bool(true), row), false, ap(value.OpAnd, row)},
		{"null and residual keeps trailing null", ap(value.OpAnd, value.Null{}, row, value.Bool(true)),
			false, ap(value.OpAnd, row, value.Null{})},
		{"residuals kept in order", ap(value.OpOr, v("b"), value.Bool(false), row),
			false, ap(value.OpOr, v("b"), row)},
	}

	e := New(nil, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ground, out, err := e.Eval(tt.expr, nil, NewBindings("row", "b"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantGround, ground)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestShortCircuitSkipsLookups(t *testing.T) {
	r := &mockResolver{}
	e := New(r, nil, nil)

	ground, out, err := e.Eval(ap(value.OpAnd, value.Bool(false), v("expensive")), nil, nil)
	require.NoError(t, err)
	assert.True(t, ground)
	assert.Equal(t, value.Bool(false), out)

	ground, out, err = e.Eval(ap(value.OpOr, value.Bool(true), v("expensive")), nil, nil)
	require.NoError(t, err)
	assert.True(t, ground)
	assert.Equal(t, value.Bool(true), out)

	r.AssertNotCalled(t, "ResolveValue", mock.Anything)
}

func TestResidualShape(t *testing.T) {
	r := &mockResolver{}
	r.On("ResolveValue", "a").Return(nil, false, nil)
	r.On("ResolveValue", "b").Return(nil, false, nil)
	e := New(r, nil, nil)

	expr := ap(value.OpAdd, v("a"), v("b"))
	ground, out, err := e.Eval(expr, nil, nil)
	require.NoError(t, err)
	assert.False(t, ground)
	assert.Equal(t, expr, out)
	r.AssertExpectations(t)
}

func TestNoPartialFolding(t *testing.T) {
	e := New(nil, nil, nil)
	ground, out, err := e.Eval(ap(value.OpAdd, ap(value.OpAdd, value.Int(1), value.Int(2)), v("row")), nil, NewBindings("row"))
	require.NoError(t, err)
	assert.False(t, ground)
	assert.Equal(t, ap(value.OpAdd, value.Int(3), v("row")), out)
}

func TestVariables(t *testing.T) {
	consts := mapResolver{
		"limit":  value.Int(10),
		"shadow": value.Int(1),
		"expr":   ap(value.OpAdd, v("row"), value.Int(1)),
	}
	e := New(consts, nil, nil)
	params := Params{"$p": value.Text("hi")}
	bindings := NewBindings("row", "shadow")

	tests := []struct {
		name       string
		expr       value.Value
		wantGround bool
		want       value.Value
	}{
		{"bound parameter", v("$p"), true, value.Text("hi")},
		{"unbound parameter is deferred", v("$q"), false, v("$q")},
		{"catalog constant", v("limit"), true, value.Int(10)},
		{"catalog miss", v("nope"), false, v("nope")},
		{"row binding stays residual", v("row"), false, v("row")},
		{"binding hides catalog", v("shadow"), false, v("shadow")},
		{"stored residual is not ground", v("expr"), false, ap(value.OpAdd, v("row"), value.Int(1))},
		{"constants fold", ap(value.OpMul, v("limit"), value.Int(2)), true, value.Int(20)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ground, out, err := e.Eval(tt.expr, params, bindings)
			require.NoError(t, err)
			assert.Equal(t, tt.wantGround, ground)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestResolverErrorsPropagate(t *testing.T) {
	r := &mockResolver{}
	r.On("ResolveValue", "T").Return(nil, false, errors.UnexpectedDataKind("Type"))
	e := New(r, nil, nil)

	_, _, err := e.Eval(ap(value.OpAdd, v("T"), value.Int(1)), nil, nil)
	assert.ErrorIs(t, err, errors.ErrUnexpectedDataKind)
}

func TestAccessors(t *testing.T) {
	rec := value.Dict{"name": value.Text("ann"), "tags": value.List{value.Text("a"), value.Text("b")}}
	tests := []struct {
		name       string
		expr       value.Value
		wantGround bool
		want       value.Value
	}{
		{"field", value.FieldAccess{Field: "name", Base: rec}, true, value.Text("ann")},
		{"missing field", value.FieldAccess{Field: "age", Base: rec}, true, value.Null{}},
		{"nested index", value.IdxAccess{Index: 1, Base: value.FieldAccess{Field: "tags", Base: rec}}, true, value.Text("b")},
		{"index out of range", value.IdxAccess{Index: 5, Base: value.List{value.Int(1)}}, true, value.Null{}},
		{"negative index", value.IdxAccess{Index: -1, Base: value.List{value.Int(1)}}, true, value.Null{}},
		{"residual base", value.FieldAccess{Field: "x", Base: v("row")}, false, value.FieldAccess{Field: "x", Base: v("row")}},
		{"residual element", value.IdxAccess{Index: 0, Base: value.List{v("row")}}, false, v("row")},
		{"base reduced before access", value.FieldAccess{Field: "x",
			Base: value.IdxAccess{Index: 0, Base: v("row")}}, false,
			value.FieldAccess{Field: "x", Base: value.IdxAccess{Index: 0, Base: v("row")}}},
	}

	e := New(nil, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ground, out, err := e.Eval(tt.expr, nil, NewBindings("row"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantGround, ground)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestCoalesce(t *testing.T) {
	tests := []struct {
		name       string
		expr       value.Value
		wantGround bool
		want       value.Value
	}{
		{"first non-null wins", ap(value.OpCoalesce, value.Null{}, value.Int(1), value.Int(2)), true, value.Int(1)},
		{"all null", ap(value.OpCoalesce, value.Null{}, value.Null{}), true, value.Null{}},
		{"single residual unwrapped", ap(value.OpCoalesce, value.Null{}, v("row")), false, v("row")},
		{"residual then ground", ap(value.OpCoalesce, v("row"), value.Int(3)), true, value.Int(3)},
		{"residuals kept", ap(value.OpCoalesce, v("row"), value.Null{}, v("b")), false,
			ap(value.OpCoalesce, v("row"), v("b"))},
	}

	e := New(nil, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ground, out, err := e.Eval(tt.expr, nil, NewBindings("row", "b"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantGround, ground)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestConcat(t *testing.T) {
	one, two, three := value.Int(1), value.Int(2), value.Int(3)
	tests := []struct {
		name       string
		expr       value.Value
		wantGround bool
		want       value.Value
	}{
		{"lists merge", ap(value.OpConcat, value.List{one}, value.List{two, three}), true, value.List{one, two, three}},
		{"empty", ap(value.OpConcat), true, value.List{}},
		{"residual splits runs", ap(value.OpConcat, value.List{one}, v("row"), value.List{two}, value.List{three}), false,
			ap(value.OpConcat, value.List{one}, v("row"), value.List{two, three})},
		{"leading residual", ap(value.OpConcat, v("row"), value.List{one}), false,
			ap(value.OpConcat, v("row"), value.List{one})},
		{"list with residual element", ap(value.OpConcat, value.List{one}, value.List{v("row")}), false,
			value.List{one, v("row")}},
	}

	e := New(nil, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ground, out, err := e.Eval(tt.expr, nil, NewBindings("row"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantGround, ground)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestResidualNullTests(t *testing.T) {
	e := New(nil, nil, nil)
	ground, out, err := e.Eval(ap(value.OpIsNull, v("row")), nil, NewBindings("row"))
	require.NoError(t, err)
	assert.False(t, ground)
	assert.Equal(t, ap(value.OpIsNull, v("row")), out)

	ground, out, err = e.Eval(ap(value.OpNegate, v("row")), nil, NewBindings("row"))
	require.NoError(t, err)
	assert.False(t, ground)
	assert.Equal(t, ap(value.OpNegate, v("row")), out)
}

func TestEvaluationMetrics(t *testing.T) {
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	e := New(nil, zap.NewNop(), m)

	_, _, err := e.Eval(value.Int(1), nil, nil)
	require.NoError(t, err)
	_, _, err = e.Eval(v("row"), nil, NewBindings("row"))
	require.NoError(t, err)
	_, _, err = e.Eval(ap(value.OpAdd, value.Text("a"), value.Int(1)), nil, nil)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues(metrics.ResultGround)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues(metrics.ResultResidual)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues(metrics.ResultError)))
}
