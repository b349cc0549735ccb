package plan

import (
	"go.uber.org/zap"

	"github.com/greydoubt/cozo/internal/catalog"
	"github.com/greydoubt/cozo/internal/errors"
	"github.com/greydoubt/cozo/internal/eval"
	"github.com/greydoubt/cozo/internal/typing"
	"github.com/greydoubt/cozo/internal/value"
)

// TableResolver resolves table names. catalog.Session implements it.
type TableResolver interface {
	ResolveTable(name string) (*catalog.TableInfo, bool, error)
}

// FromEl is one table bound in a query's from clause.
type FromEl struct {
	Table   string
	Binding string
}

// Query is the parsed shape of a relational query.
type Query struct {
	From   []FromEl
	Where  value.Value
	Select Selection
	Params eval.Params
}

// Builder turns queries into logical plans.
type Builder struct {
	tables    TableResolver
	evaluator *eval.Evaluator
	logger    *zap.Logger
}

// NewBuilder creates a plan builder.
func NewBuilder(tables TableResolver, evaluator *eval.Evaluator, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		tables:    tables,
		evaluator: evaluator,
		logger:    logger,
	}
}

// Build plans a full query: base relations, then the filter, then the
// projection.
func (b *Builder) Build(q Query) (Plan, error) {
	p, err := b.From(q.From...)
	if err != nil {
		return nil, err
	}
	if p, err = b.Where(p, q.Where, q.Params); err != nil {
		return nil, err
	}
	if p, err = b.Select(p, q.Select, q.Params); err != nil {
		return nil, err
	}
	b.logger.Debug("Query planned",
		zap.Strings("bindings", p.Bindings()),
		zap.Int("filters", countFilters(p)))
	return p, nil
}

// From binds tables. Several tables form an inner join group.
func (b *Builder) From(els ...FromEl) (Plan, error) {
	if len(els) == 0 {
		return nil, errors.InvalidArgument("query has no from clause", nil)
	}
	seen := make(map[string]bool, len(els))
	args := make([]Plan, 0, len(els))
	for _, el := range els {
		binding := el.Binding
		if binding == "" {
			binding = el.Table
		}
		if seen[binding] {
			return nil, errors.DuplicateNames([]string{binding})
		}
		seen[binding] = true

		rel, err := b.BaseRelation(el.Table, binding)
		if err != nil {
			return nil, err
		}
		args = append(args, rel)
	}
	if len(args) == 1 {
		return args[0], nil
	}
	return InnerJoinGroup{Args: args}, nil
}

// BaseRelation resolves table and binds it under binding.
func (b *Builder) BaseRelation(table, binding string) (BaseRelation, error) {
	info, ok, err := b.tables.ResolveTable(table)
	if err != nil {
		return BaseRelation{}, err
	}
	if !ok {
		return BaseRelation{}, errors.UndefinedType(table)
	}
	return BaseRelation{
		Table:     table,
		Binding:   binding,
		Info:      info,
		Accessors: AccessorMap{binding: columnAccessors(info)},
	}, nil
}

func addColumns(cols map[string]Accessor, ref catalog.TableRef, t typing.Typing, isKey bool) {
	for i, f := range t.Fields {
		cols[f.Name] = Accessor{Table: ref, Col: ColID{IsKey: isKey, Index: i}}
	}
}

// columnAccessors maps every column of a table and its associations. A later
// association column shadows an earlier column of the same name.
func columnAccessors(info *catalog.TableInfo) map[string]Accessor {
	cols := make(map[string]Accessor)
	addColumns(cols, info.Ref, info.KeyTyping, true)
	addColumns(cols, info.Ref, info.ValTyping, false)
	for _, assoc := range info.Associates {
		addColumns(cols, assoc.Ref, assoc.KeyTyping, true)
		addColumns(cols, assoc.Ref, assoc.ValTyping, false)
	}
	return cols
}

// Where folds the predicate and wraps p in a filter. A predicate that folds
// to true is dropped. Row bindings of p stay residual.
func (b *Builder) Where(p Plan, pred value.Value, params eval.Params) (Plan, error) {
	if pred == nil {
		return p, nil
	}
	ground, folded, err := b.evaluator.Eval(pred, params, eval.NewBindings(p.Bindings()...))
	if err != nil {
		return nil, err
	}
	if ground {
		switch x := folded.(type) {
		case value.Bool:
			if x {
				return p, nil
			}
		case value.Null:
		default:
			return nil, errors.InvalidArgument("filter is not a boolean: "+value.Format(folded), nil)
		}
	}
	return Filter{Rel: p, Predicate: folded}, nil
}

// Select folds each output expression and wraps p in a projection.
func (b *Builder) Select(p Plan, sel Selection, params eval.Params) (Plan, error) {
	names := make([]string, 0, len(sel.Fields))
	for _, f := range sel.Fields {
		names = append(names, f.Name)
	}
	if dups := duplicates(names); len(dups) > 0 {
		return nil, errors.DuplicateNames(dups)
	}

	bindings := eval.NewBindings(p.Bindings()...)
	out := Selection{Fields: make([]SelectField, len(sel.Fields))}
	for i, f := range sel.Fields {
		_, folded, err := b.evaluator.Eval(f.Expr, params, bindings)
		if err != nil {
			return nil, err
		}
		out.Fields[i] = SelectField{Name: f.Name, Expr: folded}
	}
	return Projection{Arg: p, Projection: out}, nil
}

func duplicates(names []string) []string {
	seen := make(map[string]int, len(names))
	var out []string
	for _, n := range names {
		seen[n]++
		if seen[n] == 2 {
			out = append(out, n)
		}
	}
	return out
}

func countFilters(p Plan) int {
	n := 0
	walk(p, func(node Plan) {
		if _, ok := node.(Filter); ok {
			n++
		}
	})
	return n
}
