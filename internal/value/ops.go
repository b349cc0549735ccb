package value

import (
	"fmt"
)

// Op is the closed set of operators the evaluator understands.
type Op uint8

const (
	OpInvalid Op = iota
	OpStrCat
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpEq
	OpNe
	OpGt
	OpGe
	OpLt
	OpLe
	OpAnd
	OpOr
	OpCoalesce
	OpNegate
	OpMinus
	OpIsNull
	OpNotNull
	OpConcat
)

var opSymbols = [...]string{
	OpInvalid:  "<invalid>",
	OpStrCat:   "++",
	OpAdd:      "+",
	OpSub:      "-",
	OpMul:      "*",
	OpDiv:      "/",
	OpMod:      "%",
	OpPow:      "^",
	OpEq:       "==",
	OpNe:       "!=",
	OpGt:       ">",
	OpGe:       ">=",
	OpLt:       "<",
	OpLe:       "<=",
	OpAnd:      "&&",
	OpOr:       "||",
	OpCoalesce: "~~",
	OpNegate:   "!",
	OpMinus:    "--",
	OpIsNull:   "is_null",
	OpNotNull:  "not_null",
	OpConcat:   "concat",
}

var opsBySymbol = func() map[string]Op {
	m := make(map[string]Op, len(opSymbols))
	for i, s := range opSymbols {
		if Op(i) == OpInvalid {
			continue
		}
		m[s] = Op(i)
	}
	return m
}()

// String returns the operator symbol.
func (o Op) String() string {
	if int(o) < len(opSymbols) {
		return opSymbols[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// ParseOp maps a symbol to its operator. Unknown symbols are rejected here so
// that the evaluator never sees an operator it cannot handle.
func ParseOp(symbol string) (Op, error) {
	if op, ok := opsBySymbol[symbol]; ok {
		return op, nil
	}
	return OpInvalid, fmt.Errorf("unknown operator %q", symbol)
}

// Arity returns the fixed argument count of o, or -1 for variadic operators.
func (o Op) Arity() int {
	switch o {
	case OpNegate, OpMinus, OpIsNull, OpNotNull:
		return 1
	case OpAnd, OpOr, OpCoalesce, OpConcat:
		return -1
	case OpInvalid:
		return 0
	default:
		return 2
	}
}

// Valid reports whether o is a known operator.
func (o Op) Valid() bool {
	return o > OpInvalid && int(o) < len(opSymbols)
}
