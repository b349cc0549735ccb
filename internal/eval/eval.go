// Package eval implements the partial evaluator: it folds an expression tree
// against bound parameters and catalog constants, returning whether the result
// is ground together with the reduced tree.
package eval

import (
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/greydoubt/cozo/internal/errors"
	"github.com/greydoubt/cozo/internal/metrics"
	"github.com/greydoubt/cozo/internal/validation"
	"github.com/greydoubt/cozo/internal/value"
)

// Resolver looks up named constants. catalog.Session implements it.
type Resolver interface {
	ResolveValue(name string) (value.Value, bool, error)
}

// Params maps parameter names, sigil included, to their values.
type Params map[string]value.Value

// Bindings names row-scope variables. They are never looked up and always
// stay residual.
type Bindings map[string]struct{}

// NewBindings builds a binding set from names.
func NewBindings(names ...string) Bindings {
	b := make(Bindings, len(names))
	for _, n := range names {
		b[n] = struct{}{}
	}
	return b
}

// Evaluator reduces expressions. It holds no per-call state and may be reused
// for any number of evaluations against the same resolver.
type Evaluator struct {
	resolver Resolver
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// New creates an evaluator. A nil resolver resolves nothing.
func New(r Resolver, logger *zap.Logger, m *metrics.Metrics) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		resolver: r,
		logger:   logger,
		metrics:  m,
	}
}

// Eval reduces expr as far as params, bindings and the resolver allow. The
// returned bool reports whether the result is ground. A residual result
// evaluates identically to expr once the missing values are supplied.
func (e *Evaluator) Eval(expr value.Value, params Params, bindings Bindings) (bool, value.Value, error) {
	start := time.Now()
	p := &pass{e: e, params: params, bindings: bindings}
	ground, out, err := p.eval(expr)
	duration := time.Since(start).Seconds()

	switch {
	case err != nil:
		e.metrics.RecordEvaluation(metrics.ResultError, duration)
		e.logger.Debug("Evaluation failed",
			zap.String("expr", value.Format(expr)),
			zap.Error(err))
		return false, nil, err
	case ground:
		e.metrics.RecordEvaluation(metrics.ResultGround, duration)
	default:
		e.metrics.RecordEvaluation(metrics.ResultResidual, duration)
	}
	return ground, out, nil
}

// pass carries the inputs of one evaluation.
type pass struct {
	e        *Evaluator
	params   Params
	bindings Bindings
}

func (p *pass) eval(v value.Value) (bool, value.Value, error) {
	switch x := v.(type) {
	case nil:
		return true, value.Null{}, nil
	case value.Null, value.Bool, value.Int, value.Float, value.Text, value.Uuid, value.EndSentinel:
		return true, v, nil
	case value.List:
		out := make(value.List, len(x))
		ground := true
		for i, el := range x {
			g, r, err := p.eval(el)
			if err != nil {
				return false, nil, err
			}
			ground = ground && g
			out[i] = r
		}
		return ground, out, nil
	case value.Dict:
		out := make(value.Dict, len(x))
		ground := true
		for k, el := range x {
			g, r, err := p.eval(el)
			if err != nil {
				return false, nil, err
			}
			ground = ground && g
			out[k] = r
		}
		return ground, out, nil
	case value.Variable:
		return p.variable(x)
	case value.FieldAccess:
		return p.fieldAccess(x)
	case value.IdxAccess:
		return p.idxAccess(x)
	case value.Apply:
		return p.apply(x)
	}
	return false, nil, errors.LogicError(fmt.Sprintf("cannot evaluate value of type %T", v))
}

func (p *pass) variable(v value.Variable) (bool, value.Value, error) {
	name := string(v)
	if strings.HasPrefix(name, validation.ParamSigil) {
		if d, ok := p.params[name]; ok {
			return value.IsEvaluated(d), d, nil
		}
		return false, v, nil
	}
	if _, ok := p.bindings[name]; ok {
		return false, v, nil
	}
	if p.e.resolver == nil {
		return false, v, nil
	}
	d, ok, err := p.e.resolver.ResolveValue(name)
	if err != nil {
		return false, nil, err
	}
	if !ok {
		return false, v, nil
	}
	return value.IsEvaluated(d), d, nil
}

func (p *pass) fieldAccess(f value.FieldAccess) (bool, value.Value, error) {
	_, base, err := p.eval(f.Base)
	if err != nil {
		return false, nil, err
	}
	switch b := base.(type) {
	case value.Dict:
		el, ok := b[f.Field]
		if !ok {
			return true, value.Null{}, nil
		}
		return value.IsEvaluated(el), el, nil
	case value.Variable, value.FieldAccess, value.IdxAccess, value.Apply:
		return false, value.FieldAccess{Field: f.Field, Base: b}, nil
	}
	return false, nil, errors.LogicError("field access ." + f.Field + " on a non-record " + value.Format(base))
}

func (p *pass) idxAccess(a value.IdxAccess) (bool, value.Value, error) {
	_, base, err := p.eval(a.Base)
	if err != nil {
		return false, nil, err
	}
	switch b := base.(type) {
	case value.List:
		if a.Index < 0 || a.Index >= len(b) {
			return true, value.Null{}, nil
		}
		el := b[a.Index]
		return value.IsEvaluated(el), el, nil
	case value.Variable, value.FieldAccess, value.IdxAccess, value.Apply:
		return false, value.IdxAccess{Index: a.Index, Base: b}, nil
	}
	return false, nil, errors.LogicError(fmt.Sprintf("index access [%d] on a non-list %s", a.Index, value.Format(base)))
}

func (p *pass) apply(a value.Apply) (bool, value.Value, error) {
	switch a.Op {
	case value.OpStrCat, value.OpAdd, value.OpSub, value.OpMul, value.OpDiv, value.OpMod, value.OpPow,
		value.OpEq, value.OpNe, value.OpGt, value.OpGe, value.OpLt, value.OpLe:
		return p.binary(a.Op, a.Args)
	case value.OpNegate, value.OpMinus:
		return p.unary(a.Op, a.Args)
	case value.OpIsNull, value.OpNotNull:
		return p.nullTest(a.Op, a.Args)
	case value.OpAnd:
		return p.logical(a.Args, false)
	case value.OpOr:
		return p.logical(a.Args, true)
	case value.OpCoalesce:
		return p.coalesce(a.Args)
	case value.OpConcat:
		return p.concat(a.Args)
	case value.OpInvalid:
		return false, nil, errors.LogicError("invalid operator in expression")
	}
	return false, nil, errors.LogicError("unknown operator " + a.Op.String())
}

func arityError(op value.Op, want, got int) error {
	return errors.InvalidArgument(fmt.Sprintf("operator %s takes %d arguments, got %d", op, want, got), nil)
}

// binary handles the null-propagating two-operand operators.
func (p *pass) binary(op value.Op, args []value.Value) (bool, value.Value, error) {
	if len(args) != 2 {
		return false, nil, arityError(op, 2, len(args))
	}
	lg, l, err := p.eval(args[0])
	if err != nil {
		return false, nil, err
	}
	rg, r, err := p.eval(args[1])
	if err != nil {
		return false, nil, err
	}
	if value.IsNull(l) || value.IsNull(r) {
		return true, value.Null{}, nil
	}
	if !lg || !rg {
		return false, value.NewApply(op, l, r), nil
	}
	out, err := applyBinary(op, l, r)
	if err != nil {
		return false, nil, err
	}
	return true, out, nil
}

func (p *pass) unary(op value.Op, args []value.Value) (bool, value.Value, error) {
	if len(args) != 1 {
		return false, nil, arityError(op, 1, len(args))
	}
	g, v, err := p.eval(args[0])
	if err != nil {
		return false, nil, err
	}
	if value.IsNull(v) {
		return true, value.Null{}, nil
	}
	if !g {
		return false, value.NewApply(op, v), nil
	}
	switch x := v.(type) {
	case value.Int:
		if op == value.OpMinus {
			if x == math.MinInt64 {
				return false, nil, overflowError(op, x)
			}
			return true, -x, nil
		}
	case value.Float:
		if op == value.OpMinus {
			return true, -x, nil
		}
	case value.Bool:
		if op == value.OpNegate {
			return true, !x, nil
		}
	}
	return false, nil, operandError(op, v)
}

func (p *pass) nullTest(op value.Op, args []value.Value) (bool, value.Value, error) {
	if len(args) != 1 {
		return false, nil, arityError(op, 1, len(args))
	}
	g, v, err := p.eval(args[0])
	if err != nil {
		return false, nil, err
	}
	isNull := op == value.OpIsNull
	if value.IsNull(v) {
		return true, value.Bool(isNull), nil
	}
	if !g {
		return false, value.NewApply(op, v), nil
	}
	return true, value.Bool(!isNull), nil
}

// logical folds AND (stopOn false) and OR (stopOn true) with three-valued
// semantics. Arguments after a short-circuit are never evaluated.
func (p *pass) logical(args []value.Value, stopOn bool) (bool, value.Value, error) {
	op := value.OpAnd
	if stopOn {
		op = value.OpOr
	}
	var residual []value.Value
	hasNull := false
	for _, arg := range args {
		g, v, err := p.eval(arg)
		if err != nil {
			return false, nil, err
		}
		if g {
			switch b := v.(type) {
			case value.Null:
				hasNull = true
			case value.Bool:
				if bool(b) == stopOn {
					return true, b, nil
				}
			default:
				return false, nil, operandError(op, v)
			}
			continue
		}
		switch v.(type) {
		case value.List, value.Dict:
			return false, nil, operandError(op, v)
		}
		residual = append(residual, v)
	}

	if len(residual) == 0 {
		if hasNull {
			return true, value.Null{}, nil
		}
		return true, value.Bool(!stopOn), nil
	}
	if hasNull {
		residual = append(residual, value.Null{})
	}
	return false, value.NewApply(op, residual...), nil
}

func (p *pass) coalesce(args []value.Value) (bool, value.Value, error) {
	var residual []value.Value
	for _, arg := range args {
		g, v, err := p.eval(arg)
		if err != nil {
			return false, nil, err
		}
		if !g {
			residual = append(residual, v)
			continue
		}
		if !value.IsNull(v) {
			return true, v, nil
		}
	}
	switch len(residual) {
	case 0:
		return true, value.Null{}, nil
	case 1:
		return false, residual[0], nil
	}
	return false, value.NewApply(value.OpCoalesce, residual...), nil
}

// concat flattens list arguments. Lists next to each other merge; a residual
// argument closes the running list and is kept as its own piece.
func (p *pass) concat(args []value.Value) (bool, value.Value, error) {
	var pieces []value.Value
	current := value.List{}
	ground := true
	for _, arg := range args {
		g, v, err := p.eval(arg)
		if err != nil {
			return false, nil, err
		}
		ground = ground && g
		switch x := v.(type) {
		case value.List:
			current = append(current, x...)
		case value.Variable, value.FieldAccess, value.IdxAccess, value.Apply:
			if len(current) > 0 {
				pieces = append(pieces, current)
				current = value.List{}
			}
			pieces = append(pieces, x)
		default:
			return false, nil, errors.LogicError("cannot concat incompatible types: " + value.Format(v))
		}
	}
	if len(pieces) == 0 {
		return ground, current, nil
	}
	if len(current) > 0 {
		pieces = append(pieces, current)
	}
	return false, value.NewApply(value.OpConcat, pieces...), nil
}

func operandError(op value.Op, vals ...value.Value) error {
	kinds := make([]string, len(vals))
	for i, v := range vals {
		kinds[i] = v.Kind().String()
	}
	return errors.InvalidArgument(fmt.Sprintf("operator %s does not accept %s", op, strings.Join(kinds, ", ")), nil).
		WithDetail("op", op.String())
}

// equal compares floats numerically, so -0.0 == 0.0 and NaN == NaN, and
// everything else structurally.
func equal(l, r value.Value) bool {
	lf, lok := l.(value.Float)
	rf, rok := r.(value.Float)
	if lok && rok {
		return lf == rf || (math.IsNaN(float64(lf)) && math.IsNaN(float64(rf)))
	}
	return value.Equal(l, r)
}

func overflowError(op value.Op, vals ...value.Value) error {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = value.Format(v)
	}
	return errors.InvalidArgument(fmt.Sprintf("integer overflow in %s %s", op, strings.Join(parts, ", ")), nil).
		WithDetail("op", op.String())
}

// applyBinary computes a binary operator over two ground, non-null operands.
func applyBinary(op value.Op, l, r value.Value) (value.Value, error) {
	switch op {
	case value.OpStrCat:
		ls, lok := l.(value.Text)
		rs, rok := r.(value.Text)
		if !lok || !rok {
			return nil, operandError(op, l, r)
		}
		return ls + rs, nil
	case value.OpEq:
		return value.Bool(equal(l, r)), nil
	case value.OpNe:
		return value.Bool(!equal(l, r)), nil
	case value.OpMod:
		li, lok := l.(value.Int)
		ri, rok := r.(value.Int)
		if !lok || !rok {
			return nil, operandError(op, l, r)
		}
		if ri == 0 {
			return nil, errors.InvalidArgument("modulo by zero", nil)
		}
		return li % ri, nil
	}

	if li, ok := l.(value.Int); ok {
		if ri, ok := r.(value.Int); ok {
			switch op {
			case value.OpAdd:
				sum := li + ri
				if (li > 0 && ri > 0 && sum < 0) || (li < 0 && ri < 0 && sum >= 0) {
					return nil, overflowError(op, l, r)
				}
				return sum, nil
			case value.OpSub:
				diff := li - ri
				if (li^ri)&(li^diff) < 0 {
					return nil, overflowError(op, l, r)
				}
				return diff, nil
			case value.OpMul:
				prod := li * ri
				if li != 0 && (prod/li != ri || (li == -1 && ri == math.MinInt64)) {
					return nil, overflowError(op, l, r)
				}
				return prod, nil
			case value.OpGt:
				return value.Bool(li > ri), nil
			case value.OpGe:
				return value.Bool(li >= ri), nil
			case value.OpLt:
				return value.Bool(li < ri), nil
			case value.OpLe:
				return value.Bool(li <= ri), nil
			}
		}
	}

	lf, lok := asFloat(l)
	rf, rok := asFloat(r)
	if !lok || !rok {
		return nil, operandError(op, l, r)
	}
	switch op {
	case value.OpAdd:
		return value.Float(lf + rf), nil
	case value.OpSub:
		return value.Float(lf - rf), nil
	case value.OpMul:
		return value.Float(lf * rf), nil
	case value.OpDiv:
		return value.Float(lf / rf), nil
	case value.OpPow:
		return value.Float(math.Pow(lf, rf)), nil
	case value.OpGt:
		return value.Bool(lf > rf), nil
	case value.OpGe:
		return value.Bool(lf >= rf), nil
	case value.OpLt:
		return value.Bool(lf < rf), nil
	case value.OpLe:
		return value.Bool(lf <= rf), nil
	}
	return nil, errors.LogicError("operator " + op.String() + " is not binary")
}

func asFloat(v value.Value) (float64, bool) {
	switch x := v.(type) {
	case value.Int:
		return float64(x), true
	case value.Float:
		return float64(x), true
	}
	return 0, false
}
