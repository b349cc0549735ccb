// Package value holds the runtime value model shared by the tuple codec, the
// catalog and the partial evaluator.
//
// A Value is either concrete (Null, Bool, Int, Float, Text, Uuid, List, Dict),
// an unevaluated expression node (Variable, FieldAccess, IdxAccess, Apply), or
// the EndSentinel marker used only to close tuple ranges.
package value

import (
	"github.com/google/uuid"
)

// Kind is the tag of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindText
	KindUuid
	KindList
	KindDict
	KindVariable
	KindFieldAccess
	KindIdxAccess
	KindApply
	KindEndSentinel
)

var kindNames = [...]string{
	KindNull:        "Null",
	KindBool:        "Bool",
	KindInt:         "Int",
	KindFloat:       "Float",
	KindText:        "Text",
	KindUuid:        "Uuid",
	KindList:        "List",
	KindDict:        "Dict",
	KindVariable:    "Variable",
	KindFieldAccess: "FieldAccess",
	KindIdxAccess:   "IdxAccess",
	KindApply:       "Apply",
	KindEndSentinel: "EndSentinel",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Value is implemented by every member of the tagged union below.
type Value interface {
	Kind() Kind
}

type (
	Null        struct{}
	Bool        bool
	Int         int64
	Float       float64
	Text        string
	Uuid        uuid.UUID
	List        []Value
	Dict        map[string]Value
	Variable    string
	EndSentinel struct{}
)

// FieldAccess reads Field out of the record produced by Base.
type FieldAccess struct {
	Field string
	Base  Value
}

// IdxAccess reads element Index out of the list produced by Base.
type IdxAccess struct {
	Index int
	Base  Value
}

// Apply is an operator applied to its arguments.
type Apply struct {
	Op   Op
	Args []Value
}

func (Null) Kind() Kind        { return KindNull }
func (Bool) Kind() Kind        { return KindBool }
func (Int) Kind() Kind         { return KindInt }
func (Float) Kind() Kind       { return KindFloat }
func (Text) Kind() Kind        { return KindText }
func (Uuid) Kind() Kind        { return KindUuid }
func (List) Kind() Kind        { return KindList }
func (Dict) Kind() Kind        { return KindDict }
func (Variable) Kind() Kind    { return KindVariable }
func (FieldAccess) Kind() Kind { return KindFieldAccess }
func (IdxAccess) Kind() Kind   { return KindIdxAccess }
func (Apply) Kind() Kind       { return KindApply }
func (EndSentinel) Kind() Kind { return KindEndSentinel }

// NewApply builds an operator application.
func NewApply(op Op, args ...Value) Apply {
	if args == nil {
		args = []Value{}
	}
	return Apply{Op: op, Args: args}
}

// IsNull reports whether v is the Null value. A nil interface counts as Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// IsExpression reports whether v is one of the unevaluated node kinds.
func IsExpression(v Value) bool {
	switch v.(type) {
	case Variable, FieldAccess, IdxAccess, Apply:
		return true
	}
	return false
}

// IsEvaluated is the structural groundness predicate: concrete scalars and
// collections made only of concrete values are evaluated.
func IsEvaluated(v Value) bool {
	switch x := v.(type) {
	case nil, Null, Bool, Int, Float, Text, Uuid, EndSentinel:
		return true
	case List:
		for _, el := range x {
			if !IsEvaluated(el) {
				return false
			}
		}
		return true
	case Dict:
		for _, el := range x {
			if !IsEvaluated(el) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// FromGo converts plain Go values into Values. Unknown types yield ok=false.
func FromGo(x interface{}) (Value, bool) {
	switch v := x.(type) {
	case nil:
		return Null{}, true
	case Value:
		return v, true
	case bool:
		return Bool(v), true
	case int:
		return Int(v), true
	case int32:
		return Int(v), true
	case int64:
		return Int(v), true
	case float32:
		return Float(v), true
	case float64:
		return Float(v), true
	case string:
		return Text(v), true
	case uuid.UUID:
		return Uuid(v), true
	case []Value:
		return List(v), true
	case map[string]Value:
		return Dict(v), true
	}
	return nil, false
}
