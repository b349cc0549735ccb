// Package plan builds logical query plans over catalog tables.
package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/greydoubt/cozo/internal/catalog"
	"github.com/greydoubt/cozo/internal/value"
)

// Plan is a node of a logical query plan.
type Plan interface {
	// Bindings lists the row bindings the plan introduces, in order.
	Bindings() []string
	isPlan()
}

// OuterJoinType selects which sides of an outer join keep unmatched rows.
type OuterJoinType int

const (
	LeftJoin OuterJoinType = iota
	RightJoin
	FullOuterJoin
)

func (t OuterJoinType) String() string {
	switch t {
	case LeftJoin:
		return "left"
	case RightJoin:
		return "right"
	case FullOuterJoin:
		return "full"
	}
	return fmt.Sprintf("join(%d)", int(t))
}

// ColID addresses a column inside a table's key or value tuple.
type ColID struct {
	IsKey bool
	Index int
}

func (c ColID) String() string {
	if c.IsKey {
		return fmt.Sprintf("key[%d]", c.Index)
	}
	return fmt.Sprintf("val[%d]", c.Index)
}

// Accessor locates a column of a bound table.
type Accessor struct {
	Table catalog.TableRef
	Col   ColID
}

// AccessorMap maps binding -> column name -> accessor.
type AccessorMap map[string]map[string]Accessor

// Lookup finds the accessor of binding.column.
func (m AccessorMap) Lookup(binding, column string) (Accessor, bool) {
	cols, ok := m[binding]
	if !ok {
		return Accessor{}, false
	}
	a, ok := cols[column]
	return a, ok
}

func (m AccessorMap) merge(other AccessorMap) {
	for b, cols := range other {
		m[b] = cols
	}
}

// SelectField is one output column of a projection.
type SelectField struct {
	Name string
	Expr value.Value
}

// Selection is the output shape of a projection or grouping.
type Selection struct {
	Fields []SelectField
}

type (
	Union struct {
		Args []Plan
	}

	Intersection struct {
		Args []Plan
	}

	Difference struct {
		Left  Plan
		Right Plan
	}

	Projection struct {
		Arg        Plan
		Projection Selection
	}

	Grouping struct {
		Arg        Plan
		Projection Selection
	}

	InnerJoinGroup struct {
		Args []Plan
	}

	InnerJoin struct {
		Left     Plan
		Right    Plan
		LeftKey  []string
		RightKey []string
	}

	OuterJoin struct {
		Type     OuterJoinType
		Left     Plan
		Right    Plan
		LeftKey  []string
		RightKey []string
	}

	Filter struct {
		Rel       Plan
		Predicate value.Value
	}

	BaseRelation struct {
		Table     string
		Binding   string
		Info      *catalog.TableInfo
		Accessors AccessorMap
	}
)

func (Union) isPlan()          {}
func (Intersection) isPlan()   {}
func (Difference) isPlan()     {}
func (Projection) isPlan()     {}
func (Grouping) isPlan()       {}
func (InnerJoinGroup) isPlan() {}
func (InnerJoin) isPlan()      {}
func (OuterJoin) isPlan()      {}
func (Filter) isPlan()         {}
func (BaseRelation) isPlan()   {}

func bindingsOf(args ...Plan) []string {
	var out []string
	for _, a := range args {
		out = append(out, a.Bindings()...)
	}
	return out
}

func (p Union) Bindings() []string          { return bindingsOf(p.Args...) }
func (p Intersection) Bindings() []string   { return bindingsOf(p.Args...) }
func (p Difference) Bindings() []string     { return p.Left.Bindings() }
func (p Projection) Bindings() []string     { return p.Arg.Bindings() }
func (p Grouping) Bindings() []string       { return p.Arg.Bindings() }
func (p InnerJoinGroup) Bindings() []string { return bindingsOf(p.Args...) }
func (p InnerJoin) Bindings() []string      { return bindingsOf(p.Left, p.Right) }
func (p OuterJoin) Bindings() []string      { return bindingsOf(p.Left, p.Right) }
func (p Filter) Bindings() []string         { return p.Rel.Bindings() }
func (p BaseRelation) Bindings() []string   { return []string{p.Binding} }

// Accessors collects the accessor maps of every base relation under p.
func Accessors(p Plan) AccessorMap {
	out := AccessorMap{}
	walk(p, func(n Plan) {
		if br, ok := n.(BaseRelation); ok {
			out.merge(br.Accessors)
		}
	})
	return out
}

func children(p Plan) []Plan {
	switch n := p.(type) {
	case Union:
		return n.Args
	case Intersection:
		return n.Args
	case Difference:
		return []Plan{n.Left, n.Right}
	case Projection:
		return []Plan{n.Arg}
	case Grouping:
		return []Plan{n.Arg}
	case InnerJoinGroup:
		return n.Args
	case InnerJoin:
		return []Plan{n.Left, n.Right}
	case OuterJoin:
		return []Plan{n.Left, n.Right}
	case Filter:
		return []Plan{n.Rel}
	}
	return nil
}

func walk(p Plan, fn func(Plan)) {
	if p == nil {
		return
	}
	fn(p)
	for _, c := range children(p) {
		walk(c, fn)
	}
}

// Format renders a plan as an indented tree.
func Format(p Plan) string {
	var sb strings.Builder
	format(&sb, p, 0)
	return sb.String()
}

func formatSelection(s Selection) string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.Name + ": " + value.Format(f.Expr)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func format(sb *strings.Builder, p Plan, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	switch n := p.(type) {
	case Union:
		sb.WriteString("Union")
	case Intersection:
		sb.WriteString("Intersection")
	case Difference:
		sb.WriteString("Difference")
	case Projection:
		sb.WriteString("Projection " + formatSelection(n.Projection))
	case Grouping:
		sb.WriteString("Grouping " + formatSelection(n.Projection))
	case InnerJoinGroup:
		sb.WriteString("InnerJoinGroup")
	case InnerJoin:
		fmt.Fprintf(sb, "InnerJoin %v = %v", n.LeftKey, n.RightKey)
	case OuterJoin:
		fmt.Fprintf(sb, "OuterJoin(%s) %v = %v", n.Type, n.LeftKey, n.RightKey)
	case Filter:
		sb.WriteString("Filter " + value.Format(n.Predicate))
	case BaseRelation:
		fmt.Fprintf(sb, "BaseRelation %s:%s (%s)", n.Binding, n.Table, n.Info.Ref)
		cols := n.Accessors[n.Binding]
		names := make([]string, 0, len(cols))
		for name := range cols {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			a := cols[name]
			fmt.Fprintf(sb, "\n%s%s -> %s %s", strings.Repeat("  ", depth+1), name, a.Table, a.Col)
		}
	case nil:
		sb.WriteString("<nil>")
	default:
		fmt.Fprintf(sb, "%T", p)
	}
	sb.WriteString("\n")
	for _, c := range children(p) {
		format(sb, c, depth+1)
	}
}
