package catalog

import (
	"time"

	"go.uber.org/zap"

	"github.com/greydoubt/cozo/internal/errors"
	"github.com/greydoubt/cozo/internal/kv"
	"github.com/greydoubt/cozo/internal/tuple"
	"github.com/greydoubt/cozo/internal/value"
)

// PushScope enters a new nested scope.
func (s *Session) PushScope() error {
	if s.scope.Depth() >= s.maxScopeDepth {
		return errors.StackOverflow(s.scope.Depth()+1, s.maxScopeDepth)
	}
	s.scope = s.scope.Push()
	s.metrics.RecordScopePush(s.scope.Depth())
	return nil
}

// teardown accumulates the mutations of one cleanup. Keys are collected
// while scanning and applied once every iterator is closed.
type teardown struct {
	keys   [][]byte
	tables []int64
}

func (t *teardown) addKey(k []byte) {
	t.keys = append(t.keys, k)
}

// dropTable schedules the table info key and the row partition of id.
func (t *teardown) dropTable(id int64) {
	t.addKey(tableInfoKey(id).Bytes())
	t.tables = append(t.tables, id)
}

func (s *Session) apply(inRoot bool, t *teardown) error {
	txn := s.space(inRoot)
	for _, id := range t.tables {
		start, end := tuple.Range(RowPartition(id).AsView())
		if err := txn.DeleteRange(start, end); err != nil {
			return storageError("failed to drop row partition", err)
		}
	}
	for _, k := range t.keys {
		if err := s.del(inRoot, k); err != nil {
			return err
		}
	}
	return nil
}

// scheduleTable drops the table owned by payload, if any.
func scheduleTable(t *teardown, name string, payload tuple.View) error {
	kind, err := DataKindOf(payload)
	if err != nil {
		return err
	}
	if !kind.IsTable() {
		return nil
	}
	id, ok := payload.GetInt(1)
	if !ok {
		return errors.CorruptedData("table definition "+name+" has no table id", nil)
	}
	t.dropTable(id)
	return nil
}

// PopScope tears down the current scope: every definition made in it, the
// row partitions of its tables, and its back-references, then moves to the
// parent scope. Popping the root scope cleans local root-level definitions
// and stays at the root.
func (s *Session) PopScope() error {
	start := time.Now()
	scope := s.scope
	td := &teardown{}

	// Names defined in this scope
	var names []string
	err := kv.ScanPrefix(s.local, sweepPrefix(scope).Bytes(), func(k, _ []byte) (bool, error) {
		name, ok := tuple.ViewOf(k).GetText(1)
		if !ok {
			return false, errors.CorruptedData("malformed scope sweep entry", nil)
		}
		names = append(names, name)
		td.addKey(kv.Clone(k))
		return true, nil
	})
	if err != nil {
		return storageError("failed to scan scope", err)
	}

	for _, name := range names {
		key := definitionKey(name, scope).Bytes()
		raw, ok, err := s.get(false, key)
		if err != nil {
			return err
		}
		if !ok {
			return errors.CorruptedData("sweep entry without definition: "+name, nil)
		}
		if err := scheduleTable(td, name, tuple.ViewOf(raw)); err != nil {
			return err
		}
		td.addKey(key)
	}

	// Back-references registered in this scope, with their companions
	err = kv.ScanPrefix(s.local, backRefScopePrefix(scope).Bytes(), func(k, _ []byte) (bool, error) {
		companion, err := backRefCompanion(tuple.ViewOf(k))
		if err != nil {
			return false, err
		}
		td.addKey(kv.Clone(k))
		td.addKey(companion)
		return true, nil
	})
	if err != nil {
		return storageError("failed to scan back-references", err)
	}

	if err := s.apply(false, td); err != nil {
		return err
	}
	s.scope = scope.Pop()

	s.metrics.RecordScopePop(time.Since(start).Seconds(), s.scope.Depth(), len(td.tables), len(td.keys))
	if len(td.tables) > 0 {
		s.logger.Info("Scope popped",
			zap.Int("depth", scope.Depth()),
			zap.Int("definitions", len(names)),
			zap.Int("tables_dropped", len(td.tables)))
	} else {
		s.logger.Debug("Scope popped",
			zap.Int("depth", scope.Depth()),
			zap.Int("definitions", len(names)))
	}
	return nil
}

// backRefCompanion rebuilds the forward key [Null, table, scope, ...] from a
// scope-ordered key [Null, scope, table, ...].
func backRefCompanion(k tuple.View) ([]byte, error) {
	vals, err := k.Values()
	if err != nil {
		return nil, errors.CorruptedData("malformed back-reference", err)
	}
	if len(vals) < 3 {
		return nil, errors.CorruptedData("back-reference too short", nil)
	}
	out := make([]value.Value, 0, len(vals))
	out = append(out, vals[0], vals[2], vals[1])
	out = append(out, vals[3:]...)
	companion, err := tuple.FromValues(k.Prefix(), out...)
	if err != nil {
		return nil, errors.CorruptedData("malformed back-reference", err)
	}
	return companion.Bytes(), nil
}

// Delete removes the definition of name in the root scope or in the current
// local scope. Tables are cleaned up the same way PopScope cleans them: the
// table info, the row partition and the back-references the table
// registered are removed too. Deleting a missing name is not an error.
func (s *Session) Delete(name string, inRoot bool) error {
	scope := s.scopeFor(inRoot)
	key := definitionKey(name, scope).Bytes()
	raw, ok, err := s.get(inRoot, key)
	if err != nil || !ok {
		return err
	}

	kind, err := DataKindOf(tuple.ViewOf(raw))
	if err != nil {
		return err
	}
	if kind.IsTable() {
		if err := s.checkNoDependents(name, scope, inRoot); err != nil {
			return err
		}
	}

	td := &teardown{}
	if err := scheduleTable(td, name, tuple.ViewOf(raw)); err != nil {
		return err
	}
	td.addKey(key)
	if !inRoot {
		td.addKey(sweepKey(scope, name).Bytes())
	}

	// Back-references whose member is name
	prefix := tuple.New(catalogPrefix).PushNull()
	err = kv.ScanPrefix(s.space(inRoot), prefix.Bytes(), func(k, _ []byte) (bool, error) {
		if memberOf(tuple.ViewOf(k), scope) == name {
			td.addKey(kv.Clone(k))
		}
		return true, nil
	})
	if err != nil {
		return storageError("failed to scan back-references", err)
	}

	if err := s.apply(inRoot, td); err != nil {
		return err
	}
	s.metrics.RecordDeletion(inRoot)
	if len(td.tables) > 0 {
		s.metrics.RecordTableDropped()
	}
	s.logger.Debug("Definition deleted",
		zap.String("name", name),
		zap.Bool("in_root", inRoot),
		zap.Int("tables_dropped", len(td.tables)))
	return nil
}

// checkNoDependents rejects deleting a table that edges or associations
// defined in the same scope still point at.
func (s *Session) checkNoDependents(table string, scope ScopeID, inRoot bool) error {
	var members []string
	err := kv.ScanPrefix(s.space(inRoot), backRefPrefix(table).Bytes(), func(k, _ []byte) (bool, error) {
		if member := memberOf(tuple.ViewOf(k), scope); member != "" && member != table {
			members = append(members, member)
		}
		return true, nil
	})
	if err != nil {
		return storageError("failed to scan back-references", err)
	}
	if len(members) > 0 {
		s.metrics.RecordDDLRejected(errors.ErrCodeDependentsExist.String())
		return errors.DependentsExist(table, members)
	}
	return nil
}

// memberOf returns the member name of a back-reference in either
// orientation if it was registered in scope, and "" otherwise. The id
// counter [Null] shares the scanned prefix and yields "".
func memberOf(k tuple.View, scope ScopeID) string {
	if k.Len() != 5 {
		return ""
	}
	depthSlot := 2
	if _, ok := k.GetInt(1); ok {
		depthSlot = 1
	}
	d, ok := k.GetInt(depthSlot)
	if !ok || d != scope.Code() {
		return ""
	}
	member, _ := k.GetText(4)
	return member
}
