package catalog

import (
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/greydoubt/cozo/internal/errors"
	"github.com/greydoubt/cozo/internal/syntax"
	"github.com/greydoubt/cozo/internal/tuple"
	"github.com/greydoubt/cozo/internal/typing"
	"github.com/greydoubt/cozo/internal/value"
)

// definition is a parsed DDL statement ready to be written.
type definition struct {
	name     string
	payload  *tuple.Owned
	backRefs []*tuple.Owned
	needsID  bool
}

// RunDefinition translates a global_def or local_def tree into catalog
// entries. Every check runs before the first write, so a rejected
// definition leaves the transaction untouched.
func (s *Session) RunDefinition(n *syntax.Node) error {
	name, err := s.runDefinition(n)
	if err != nil {
		s.metrics.RecordDDLRejected(errors.GetCode(err).String())
		s.logger.Warn("Definition rejected",
			zap.String("name", name),
			zap.Error(err))
	}
	return err
}

func (s *Session) runDefinition(n *syntax.Node) (string, error) {
	if n == nil {
		return "", errors.LogicError("nil definition tree")
	}
	var inRoot bool
	switch n.Rule {
	case syntax.RuleGlobalDef:
		inRoot = true
	case syntax.RuleLocalDef:
		inRoot = false
	default:
		return "", errors.LogicError("encountered definition with rule " + n.Rule.String())
	}

	d, err := s.parseDefinition(n.Child(0), inRoot)
	if err != nil {
		return "", err
	}

	exists, err := s.definitionExists(d.name, inRoot)
	if err != nil {
		return d.name, err
	}
	if exists {
		return d.name, errors.NameConflict(d.name)
	}

	if d.needsID {
		id, err := s.AllocateTableID(inRoot)
		if err != nil {
			return d.name, err
		}
		if err := d.payload.InsertValuesAt(0, value.Bool(inRoot), value.Int(id)); err != nil {
			return d.name, errors.LogicError("failed to stamp table id: " + err.Error())
		}
		if err := s.DefineRawKey(tableInfoKey(id), d.payload, inRoot); err != nil {
			return d.name, err
		}
	}
	for _, k := range d.backRefs {
		if err := s.DefineRawKey(k, nil, inRoot); err != nil {
			return d.name, err
		}
	}
	return d.name, s.Define(d.name, d.payload, inRoot)
}

func (s *Session) parseDefinition(n *syntax.Node, inRoot bool) (*definition, error) {
	if n == nil {
		return nil, errors.InvalidDefinition("", "empty definition")
	}
	switch n.Rule {
	case syntax.RuleNodeDef:
		return s.parseNodeDef(n)
	case syntax.RuleEdgeDef:
		return s.parseEdgeDef(n, inRoot)
	case syntax.RuleAssocDef:
		return s.parseAssocDef(n, inRoot)
	case syntax.RuleTypeDef:
		return s.parseTypeDef(n)
	case syntax.RuleIndexDef:
		return nil, errors.NotImplemented("index definitions")
	default:
		return nil, errors.LogicError("unexpected definition rule " + n.Rule.String())
	}
}

func (s *Session) defName(n *syntax.Node) (string, error) {
	if n == nil || n.Rule != syntax.RuleName {
		return "", errors.InvalidDefinition("", "expected a name")
	}
	if err := s.validator.ValidateName(n.Text); err != nil {
		return "", err
	}
	return n.Text, nil
}

func (s *Session) parseTyping(owner string, n *syntax.Node) (typing.Typing, error) {
	if n == nil || n.Rule != syntax.RuleTyping {
		return typing.Typing{}, errors.InvalidDefinition(owner, "expected a typing")
	}
	t, err := typing.Parse(n.Text, s)
	if err != nil {
		var undefined *typing.UndefinedError
		if stderrors.As(err, &undefined) {
			return typing.Typing{}, errors.UndefinedType(undefined.Name)
		}
		if errors.IsCatalogError(err) {
			return typing.Typing{}, err
		}
		return typing.Typing{}, errors.InvalidDefinition(owner, err.Error())
	}
	return t, nil
}

// parseCols splits column definitions into key and value records.
func (s *Session) parseCols(owner string, n *syntax.Node) (keys, vals typing.Typing, err error) {
	if n == nil {
		return typing.Record(), typing.Record(), nil
	}
	if n.Rule != syntax.RuleColDefs {
		return typing.Typing{}, typing.Typing{}, errors.InvalidDefinition(owner, "expected column definitions")
	}

	type column struct {
		isKey  bool
		name   string
		typing *syntax.Node
	}
	cols := make([]column, 0, len(n.Children))
	names := make([]string, 0, len(n.Children))
	for _, c := range n.Children {
		if c == nil || c.Rule != syntax.RuleColDef {
			return typing.Typing{}, typing.Typing{}, errors.InvalidDefinition(owner, "expected a column definition")
		}
		idx := 0
		isKey := c.Child(0) != nil && c.Child(0).Rule == syntax.RuleKeyMarker
		if isKey {
			idx = 1
		}
		nameNode := c.Child(idx)
		if nameNode == nil || nameNode.Rule != syntax.RuleName {
			return typing.Typing{}, typing.Typing{}, errors.InvalidDefinition(owner, "column without a name")
		}
		cols = append(cols, column{isKey: isKey, name: nameNode.Text, typing: c.Child(idx + 1)})
		names = append(names, nameNode.Text)
	}
	if err := s.validator.ValidateColumns(names); err != nil {
		return typing.Typing{}, typing.Typing{}, err
	}

	var keyFields, valFields []typing.Field
	for _, c := range cols {
		t, err := s.parseTyping(owner, c.typing)
		if err != nil {
			return typing.Typing{}, typing.Typing{}, err
		}
		f := typing.Field{Name: c.name, Type: t}
		if c.isKey {
			keyFields = append(keyFields, f)
		} else {
			valFields = append(valFields, f)
		}
	}
	return typing.Record(keyFields...), typing.Record(valFields...), nil
}

// tableRef resolves an existing table by name.
func (s *Session) tableRef(name string) (DataKind, TableRef, error) {
	payload, ok, err := s.Resolve(name)
	if err != nil {
		return 0, TableRef{}, err
	}
	if !ok {
		return 0, TableRef{}, errors.UndefinedType(name)
	}
	kind, err := DataKindOf(payload)
	if err != nil {
		return 0, TableRef{}, err
	}
	if !kind.IsTable() {
		return kind, TableRef{}, errors.UnexpectedDataKind(kind.String())
	}
	ref, err := refAt(payload, 0)
	if err != nil {
		return kind, TableRef{}, errors.CorruptedData("table "+name+" has a malformed id", err)
	}
	return kind, ref, nil
}

func (s *Session) parseNodeDef(n *syntax.Node) (*definition, error) {
	name, err := s.defName(n.Child(0))
	if err != nil {
		return nil, err
	}
	keys, vals, err := s.parseCols(name, n.Child(1))
	if err != nil {
		return nil, err
	}
	payload := NewPayload(KindNode).
		PushText(keys.String()).
		PushText(vals.String()).
		PushNull().
		PushNull()
	return &definition{name: name, payload: payload, needsID: true}, nil
}

func (s *Session) parseEdgeDef(n *syntax.Node, inRoot bool) (*definition, error) {
	srcName, err := s.defName(n.Child(0))
	if err != nil {
		return nil, err
	}
	name, err := s.defName(n.Child(1))
	if err != nil {
		return nil, err
	}
	dstName, err := s.defName(n.Child(2))
	if err != nil {
		return nil, err
	}

	endpoint := func(table string) (TableRef, error) {
		kind, ref, err := s.tableRef(table)
		if err != nil {
			return TableRef{}, err
		}
		if inRoot && !ref.Global {
			return TableRef{}, errors.IncompatibleEdge(name, table)
		}
		if kind != KindNode {
			return TableRef{}, errors.UnexpectedDataKind(kind.String())
		}
		return ref, nil
	}
	src, err := endpoint(srcName)
	if err != nil {
		return nil, err
	}
	dst, err := endpoint(dstName)
	if err != nil {
		return nil, err
	}

	keys, vals, err := s.parseCols(name, n.Child(3))
	if err != nil {
		return nil, err
	}

	payload := NewPayload(KindEdge).
		PushBool(src.Global).PushInt(src.ID).
		PushBool(dst.Global).PushInt(dst.ID).
		PushText(keys.String()).
		PushText(vals.String()).
		PushNull().
		PushNull()

	scope := s.scopeFor(inRoot)
	refs := backRefPair(srcName, scope, KindEdge, name)
	if dstName != srcName {
		refs = append(refs, backRefPair(dstName, scope, KindEdge, name)...)
	}
	return &definition{name: name, payload: payload, backRefs: refs, needsID: true}, nil
}

func (s *Session) parseAssocDef(n *syntax.Node, inRoot bool) (*definition, error) {
	name, err := s.defName(n.Child(0))
	if err != nil {
		return nil, err
	}
	srcName, err := s.defName(n.Child(1))
	if err != nil {
		return nil, err
	}
	_, src, err := s.tableRef(srcName)
	if err != nil {
		return nil, err
	}
	if inRoot && !src.Global {
		return nil, errors.IncompatibleEdge(name, srcName)
	}

	keys, vals, err := s.parseCols(name, n.Child(2))
	if err != nil {
		return nil, err
	}
	if !keys.IsEmptyRecord() {
		return nil, errors.InvalidDefinition(name, "associations cannot have key columns")
	}

	payload := NewPayload(KindAssoc).
		PushBool(src.Global).PushInt(src.ID).
		PushText(vals.String())
	refs := backRefPair(srcName, s.scopeFor(inRoot), KindAssoc, name)
	return &definition{name: name, payload: payload, backRefs: refs, needsID: true}, nil
}

func (s *Session) parseTypeDef(n *syntax.Node) (*definition, error) {
	name, err := s.defName(n.Child(0))
	if err != nil {
		return nil, err
	}
	t, err := s.parseTyping(name, n.Child(1))
	if err != nil {
		return nil, err
	}
	payload := NewPayload(KindType).PushText(t.String())
	return &definition{name: name, payload: payload}, nil
}
