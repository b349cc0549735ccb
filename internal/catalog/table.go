package catalog

import (
	"bytes"
	"fmt"

	"go.uber.org/zap"

	"github.com/greydoubt/cozo/internal/errors"
	"github.com/greydoubt/cozo/internal/kv"
	"github.com/greydoubt/cozo/internal/tuple"
	"github.com/greydoubt/cozo/internal/typing"
	"github.com/greydoubt/cozo/internal/value"
)

// TableRef addresses a table's row partition.
type TableRef struct {
	Global bool
	ID     int64
}

func (r TableRef) String() string {
	if r.Global {
		return fmt.Sprintf("global:%d", r.ID)
	}
	return fmt.Sprintf("local:%d", r.ID)
}

// AssocInfo describes an association attached to a table.
type AssocInfo struct {
	Name      string
	Ref       TableRef
	Owner     TableRef
	KeyTyping typing.Typing
	ValTyping typing.Typing
}

// TableInfo is the resolved shape of a table definition.
type TableInfo struct {
	Name      string
	Kind      DataKind
	Ref       TableRef
	KeyTyping typing.Typing
	ValTyping typing.Typing

	// Src is the source of an edge or the owner of an association. Dst is
	// set for edges only.
	Src TableRef
	Dst TableRef

	Associates []AssocInfo
}

func refAt(payload tuple.View, idx int) (TableRef, error) {
	global, ok := payload.GetBool(idx)
	if !ok {
		return TableRef{}, fmt.Errorf("slot %d is not a bool", idx)
	}
	id, ok := payload.GetInt(idx + 1)
	if !ok {
		return TableRef{}, fmt.Errorf("slot %d is not an int", idx+1)
	}
	return TableRef{Global: global, ID: id}, nil
}

func (s *Session) typingAt(name string, payload tuple.View, idx int) (typing.Typing, error) {
	text, ok := payload.GetText(idx)
	if !ok {
		return typing.Typing{}, errors.CorruptedData(fmt.Sprintf("table %s: slot %d is not a typing", name, idx), nil)
	}
	t, err := typing.Parse(text, s)
	if err != nil {
		return typing.Typing{}, errors.CorruptedData("table "+name+" has an unreadable typing", err)
	}
	return t, nil
}

// decodeTable reads a table payload. Associates are not filled in.
func (s *Session) decodeTable(name string, payload tuple.View) (*TableInfo, error) {
	kind, err := DataKindOf(payload)
	if err != nil {
		return nil, err
	}
	info := &TableInfo{Name: name, Kind: kind}
	if !kind.IsTable() {
		return nil, errors.UnexpectedDataKind(kind.String())
	}
	if info.Ref, err = refAt(payload, 0); err != nil {
		return nil, errors.CorruptedData("table "+name+" has a malformed id", err)
	}

	switch kind {
	case KindNode:
		if info.KeyTyping, err = s.typingAt(name, payload, 2); err != nil {
			return nil, err
		}
		if info.ValTyping, err = s.typingAt(name, payload, 3); err != nil {
			return nil, err
		}
	case KindEdge:
		if info.Src, err = refAt(payload, 2); err != nil {
			return nil, errors.CorruptedData("edge "+name+" has a malformed source", err)
		}
		if info.Dst, err = refAt(payload, 4); err != nil {
			return nil, errors.CorruptedData("edge "+name+" has a malformed destination", err)
		}
		if info.KeyTyping, err = s.typingAt(name, payload, 6); err != nil {
			return nil, err
		}
		if info.ValTyping, err = s.typingAt(name, payload, 7); err != nil {
			return nil, err
		}
	case KindAssoc:
		if info.Src, err = refAt(payload, 2); err != nil {
			return nil, errors.CorruptedData("association "+name+" has a malformed owner", err)
		}
		info.KeyTyping = typing.Record()
		if info.ValTyping, err = s.typingAt(name, payload, 4); err != nil {
			return nil, err
		}
	default:
		return nil, errors.NotImplemented(kind.String() + " tables")
	}
	return info, nil
}

// ResolveTable resolves name to its table info, including the associations
// attached to it.
func (s *Session) ResolveTable(name string) (*TableInfo, bool, error) {
	payload, ok, err := s.Resolve(name)
	if err != nil || !ok {
		return nil, false, err
	}
	info, err := s.decodeTable(name, payload)
	if err != nil {
		return nil, false, err
	}

	related, err := s.RelatedDefinitions(name)
	if err != nil {
		return nil, false, err
	}
	for _, r := range related {
		assoc, err := s.decodeTable(r.Name, r.Payload)
		if err != nil {
			return nil, false, err
		}
		// Associations of a shadowed table share its name but not its ref.
		if assoc.Src != info.Ref {
			continue
		}
		info.Associates = append(info.Associates, AssocInfo{
			Name:      r.Name,
			Ref:       assoc.Ref,
			Owner:     assoc.Src,
			KeyTyping: assoc.KeyTyping,
			ValTyping: assoc.ValTyping,
		})
	}
	return info, true, nil
}

func (s *Session) tableByRef(ref TableRef) (*TableInfo, error) {
	payload, ok, err := s.TablePayload(ref.ID, ref.Global)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.UndefinedType(ref.String())
	}
	return s.decodeTable(ref.String(), payload)
}

func checkColumns(what string, fields []typing.Field, vals []value.Value) error {
	if len(vals) != len(fields) {
		return errors.InvalidArgument(fmt.Sprintf("%s: expected %d columns, got %d", what, len(fields), len(vals)), nil)
	}
	for i, f := range fields {
		if !f.Type.Check(vals[i]) {
			return errors.InvalidArgument(fmt.Sprintf("%s: column %s expects %s, got %s",
				what, f.Name, f.Type.String(), value.Format(vals[i])), nil)
		}
	}
	return nil
}

func rowKey(ref TableRef, key []value.Value) (*tuple.Owned, error) {
	k, err := tuple.FromValues(uint32(ref.ID), key...)
	if err != nil {
		return nil, errors.InvalidArgument("row key cannot be encoded", err)
	}
	return k, nil
}

// PutRow writes one row into a table's partition. Node keys are checked
// against the key typing; edge and association keys address their
// endpoints and are stored as given. Values are checked against the value
// typing.
func (s *Session) PutRow(ref TableRef, key, vals []value.Value) error {
	info, err := s.tableByRef(ref)
	if err != nil {
		return err
	}
	if info.Kind == KindNode {
		if err := checkColumns("key", info.KeyTyping.Fields, key); err != nil {
			return err
		}
	}
	if err := checkColumns("value", info.ValTyping.Fields, vals); err != nil {
		return err
	}

	k, err := rowKey(ref, key)
	if err != nil {
		return err
	}
	v, err := tuple.FromValues(uint32(KindData), vals...)
	if err != nil {
		return errors.InvalidArgument("row value cannot be encoded", err)
	}
	if err := s.put(ref.Global, k.Bytes(), v.Bytes()); err != nil {
		return err
	}
	s.metrics.RecordRowWrite()
	s.logger.Debug("Row written", zap.Stringer("table", ref))
	return nil
}

// GetRow reads the values stored under key.
func (s *Session) GetRow(ref TableRef, key []value.Value) ([]value.Value, bool, error) {
	k, err := rowKey(ref, key)
	if err != nil {
		return nil, false, err
	}
	raw, ok, err := s.get(ref.Global, k.Bytes())
	if err != nil || !ok {
		return nil, false, err
	}
	vals, err := tuple.ViewOf(raw).Values()
	if err != nil {
		return nil, false, errors.CorruptedData("malformed row", err)
	}
	return vals, true, nil
}

// ScanRows calls fn for every row of a table in key order until fn returns
// false. fn must not use the session.
func (s *Session) ScanRows(ref TableRef, fn func(key, vals []value.Value) (bool, error)) error {
	start, end := tuple.Range(RowPartition(ref.ID).AsView())
	it := s.space(ref.Global).Iterator()
	defer it.Close()
	for it.Seek(start); it.Valid(); it.Next() {
		if bytes.Compare(it.Key(), end) >= 0 {
			break
		}
		key, err := tuple.ViewOf(it.Key()).Values()
		if err != nil {
			return errors.CorruptedData("malformed row key", err)
		}
		vals, err := tuple.ViewOf(it.Value()).Values()
		if err != nil {
			return errors.CorruptedData("malformed row", err)
		}
		more, err := fn(key, vals)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	if err := it.Err(); err != nil {
		return storageError("failed to scan rows", err)
	}
	return nil
}

// CountRows returns the number of rows in a table's partition.
func (s *Session) CountRows(ref TableRef) (int, error) {
	start, end := tuple.Range(RowPartition(ref.ID).AsView())
	keys, err := kv.CollectRange(s.space(ref.Global), start, end)
	if err != nil {
		return 0, storageError("failed to count rows", err)
	}
	return len(keys), nil
}
