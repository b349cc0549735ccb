// Package typing describes column types stored in definition payloads.
//
// Typings are persisted in their canonical text form, for example
// {name:Text,age:?Int} or [(Int,Float)]. Named references to Type
// definitions are expanded when parsed, so stored typings never depend on
// names that can later be popped out of scope.
package typing

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/greydoubt/cozo/internal/value"
)

// Kind is the shape of a Typing.
type Kind uint8

const (
	Any Kind = iota
	Bool
	Int
	Float
	Text
	Uuid
	Nullable
	Homogeneous
	UnnamedTuple
	NamedTuple
)

var primitives = map[string]Kind{
	"Any":   Any,
	"Bool":  Bool,
	"Int":   Int,
	"Float": Float,
	"Text":  Text,
	"Uuid":  Uuid,
}

var kindNames = [...]string{
	Any:          "Any",
	Bool:         "Bool",
	Int:          "Int",
	Float:        "Float",
	Text:         "Text",
	Uuid:         "Uuid",
	Nullable:     "Nullable",
	Homogeneous:  "Homogeneous",
	UnnamedTuple: "UnnamedTuple",
	NamedTuple:   "NamedTuple",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Field is one column of a NamedTuple.
type Field struct {
	Name string
	Type Typing
}

// Typing is a type descriptor.
type Typing struct {
	Kind   Kind
	Elem   *Typing  // Nullable, Homogeneous
	Items  []Typing // UnnamedTuple
	Fields []Field  // NamedTuple
}

// Primitive returns the typing of a scalar kind.
func Primitive(k Kind) Typing { return Typing{Kind: k} }

// NullableOf wraps t. Wrapping a nullable typing again is a no-op.
func NullableOf(t Typing) Typing {
	if t.Kind == Nullable {
		return t
	}
	return Typing{Kind: Nullable, Elem: &t}
}

// ListOf is a homogeneous list of t.
func ListOf(t Typing) Typing { return Typing{Kind: Homogeneous, Elem: &t} }

// TupleOf is an unnamed tuple.
func TupleOf(items ...Typing) Typing {
	if items == nil {
		items = []Typing{}
	}
	return Typing{Kind: UnnamedTuple, Items: items}
}

// Record is a named tuple.
func Record(fields ...Field) Typing {
	if fields == nil {
		fields = []Field{}
	}
	return Typing{Kind: NamedTuple, Fields: fields}
}

// IsEmptyRecord reports whether t is the named tuple with no fields.
func (t Typing) IsEmptyRecord() bool {
	return t.Kind == NamedTuple && len(t.Fields) == 0
}

// String renders the canonical form.
func (t Typing) String() string {
	var sb strings.Builder
	t.write(&sb)
	return sb.String()
}

func (t Typing) write(sb *strings.Builder) {
	switch t.Kind {
	case Nullable:
		sb.WriteByte('?')
		t.Elem.write(sb)
	case Homogeneous:
		sb.WriteByte('[')
		t.Elem.write(sb)
		sb.WriteByte(']')
	case UnnamedTuple:
		sb.WriteByte('(')
		for i, it := range t.Items {
			if i > 0 {
				sb.WriteByte(',')
			}
			it.write(sb)
		}
		sb.WriteByte(')')
	case NamedTuple:
		sb.WriteByte('{')
		for i, f := range t.Fields {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(f.Name)
			sb.WriteByte(':')
			f.Type.write(sb)
		}
		sb.WriteByte('}')
	default:
		sb.WriteString(t.Kind.String())
	}
}

// Check reports whether v conforms to t. Int is accepted where Float is
// expected; missing record fields count as Null.
func (t Typing) Check(v value.Value) bool {
	switch t.Kind {
	case Any:
		return true
	case Nullable:
		return value.IsNull(v) || t.Elem.Check(v)
	}
	switch x := v.(type) {
	case value.Bool:
		return t.Kind == Bool
	case value.Int:
		return t.Kind == Int || t.Kind == Float
	case value.Float:
		return t.Kind == Float
	case value.Text:
		return t.Kind == Text
	case value.Uuid:
		return t.Kind == Uuid
	case value.List:
		switch t.Kind {
		case Homogeneous:
			for _, el := range x {
				if !t.Elem.Check(el) {
					return false
				}
			}
			return true
		case UnnamedTuple:
			if len(x) != len(t.Items) {
				return false
			}
			for i, el := range x {
				if !t.Items[i].Check(el) {
					return false
				}
			}
			return true
		}
	case value.Dict:
		if t.Kind != NamedTuple {
			return false
		}
		known := make(map[string]struct{}, len(t.Fields))
		for _, f := range t.Fields {
			known[f.Name] = struct{}{}
			el, ok := x[f.Name]
			if !ok {
				el = value.Null{}
			}
			if !f.Type.Check(el) {
				return false
			}
		}
		for k := range x {
			if _, ok := known[k]; !ok {
				return false
			}
		}
		return true
	}
	return false
}

// Resolver expands named type references.
type Resolver interface {
	ResolveType(name string) (Typing, bool, error)
}

// UndefinedError is returned for a named reference that cannot be resolved.
type UndefinedError struct {
	Name string
}

func (e *UndefinedError) Error() string {
	return fmt.Sprintf("undefined type %q", e.Name)
}

// Parse reads the text form. Names that are not primitives are looked up
// through r, which may be nil.
func Parse(s string, r Resolver) (Typing, error) {
	p := &parser{src: s, resolver: r}
	t, err := p.parseTyping()
	if err != nil {
		return Typing{}, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return Typing{}, p.errorf("unexpected trailing input")
	}
	return t, nil
}

type parser struct {
	src      string
	pos      int
	resolver Resolver
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("typing %q at %d: %s", p.src, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *parser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) expect(c byte) error {
	if p.peek() != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

func isIdentByte(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}

func (p *parser) ident() (string, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && isIdentByte(p.src[p.pos], p.pos == start) {
		p.pos++
	}
	if start == p.pos {
		return "", p.errorf("expected identifier")
	}
	return p.src[start:p.pos], nil
}

func (p *parser) parseTyping() (Typing, error) {
	switch p.peek() {
	case '?':
		p.pos++
		inner, err := p.parseTyping()
		if err != nil {
			return Typing{}, err
		}
		return NullableOf(inner), nil
	case '[':
		p.pos++
		inner, err := p.parseTyping()
		if err != nil {
			return Typing{}, err
		}
		if err := p.expect(']'); err != nil {
			return Typing{}, err
		}
		return ListOf(inner), nil
	case '(':
		p.pos++
		items := []Typing{}
		for p.peek() != ')' {
			if len(items) > 0 {
				if err := p.expect(','); err != nil {
					return Typing{}, err
				}
			}
			it, err := p.parseTyping()
			if err != nil {
				return Typing{}, err
			}
			items = append(items, it)
		}
		p.pos++
		return TupleOf(items...), nil
	case '{':
		p.pos++
		fields := []Field{}
		seen := map[string]bool{}
		for p.peek() != '}' {
			if len(fields) > 0 {
				if err := p.expect(','); err != nil {
					return Typing{}, err
				}
			}
			name, err := p.ident()
			if err != nil {
				return Typing{}, err
			}
			if seen[name] {
				return Typing{}, p.errorf("duplicate field %q", name)
			}
			seen[name] = true
			if err := p.expect(':'); err != nil {
				return Typing{}, err
			}
			ft, err := p.parseTyping()
			if err != nil {
				return Typing{}, err
			}
			fields = append(fields, Field{Name: name, Type: ft})
		}
		p.pos++
		return Record(fields...), nil
	case 0:
		return Typing{}, p.errorf("unexpected end of input")
	}

	name, err := p.ident()
	if err != nil {
		return Typing{}, err
	}
	if k, ok := primitives[name]; ok {
		return Primitive(k), nil
	}
	if p.resolver == nil {
		return Typing{}, &UndefinedError{Name: name}
	}
	t, ok, err := p.resolver.ResolveType(name)
	if err != nil {
		return Typing{}, err
	}
	if !ok {
		return Typing{}, &UndefinedError{Name: name}
	}
	return t, nil
}
