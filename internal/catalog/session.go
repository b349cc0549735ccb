// Package catalog implements the scoped schema catalog: named definitions in
// a durable root space and an ephemeral local space, a lexical scope stack,
// table id allocation and the DDL translator that writes table definitions.
package catalog

import (
	stderrors "errors"
	"math"

	"go.uber.org/zap"

	"github.com/greydoubt/cozo/internal/errors"
	"github.com/greydoubt/cozo/internal/kv"
	"github.com/greydoubt/cozo/internal/metrics"
	"github.com/greydoubt/cozo/internal/tuple"
	"github.com/greydoubt/cozo/internal/typing"
	"github.com/greydoubt/cozo/internal/validation"
	"github.com/greydoubt/cozo/internal/value"
)

const (
	// DefaultMaxScopeDepth bounds scope nesting.
	DefaultMaxScopeDepth = 1024

	// MaxTableID is the largest id that fits a row partition prefix.
	MaxTableID = math.MaxUint32
)

// Config tunes a Session.
type Config struct {
	MaxScopeDepth int
	MaxNameLength int
	MaxColumns    int
}

// Session owns one transaction over each space and the current scope. A
// Session is not safe for concurrent use.
type Session struct {
	root          kv.Txn
	local         kv.Txn
	scope         ScopeID
	maxScopeDepth int
	validator     *validation.Validator
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

// NewSession creates a session over the given root and local transactions.
// Both must be writable. logger and m may be nil.
func NewSession(root, local kv.Txn, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxScopeDepth <= 0 {
		cfg.MaxScopeDepth = DefaultMaxScopeDepth
	}
	return &Session{
		root:          root,
		local:         local,
		scope:         RootScope,
		maxScopeDepth: cfg.MaxScopeDepth,
		validator:     validation.NewValidatorWithLimits(cfg.MaxNameLength, cfg.MaxColumns),
		logger:        logger,
		metrics:       m,
	}
}

// Scope returns the current scope.
func (s *Session) Scope() ScopeID {
	return s.scope
}

func (s *Session) space(inRoot bool) kv.Txn {
	if inRoot {
		return s.root
	}
	return s.local
}

func (s *Session) scopeFor(inRoot bool) ScopeID {
	if inRoot {
		return RootScope
	}
	return s.scope
}

func storageError(op string, err error) error {
	if errors.IsCatalogError(err) {
		return err
	}
	if stderrors.Is(err, kv.ErrCorrupted) {
		return errors.CorruptedData(op, err)
	}
	return errors.StorageFailed(op, err)
}

func (s *Session) get(inRoot bool, key []byte) ([]byte, bool, error) {
	v, err := s.space(inRoot).Get(key)
	if stderrors.Is(err, kv.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storageError("failed to read catalog key", err)
	}
	return v, true, nil
}

func (s *Session) put(inRoot bool, key, val []byte) error {
	if err := s.space(inRoot).Put(key, val); err != nil {
		return storageError("failed to write catalog key", err)
	}
	return nil
}

func (s *Session) del(inRoot bool, key []byte) error {
	if err := s.space(inRoot).Delete(key); err != nil {
		return storageError("failed to delete catalog key", err)
	}
	return nil
}

// Define writes payload under name. Root definitions are keyed at the root
// scope; local ones at the current scope, with a sweep index entry so the
// scope can be torn down. An existing definition under the same key is
// replaced.
func (s *Session) Define(name string, payload *tuple.Owned, inRoot bool) error {
	scope := s.scopeFor(inRoot)
	if err := s.put(inRoot, definitionKey(name, scope).Bytes(), payload.Bytes()); err != nil {
		return err
	}
	if !inRoot {
		if err := s.put(false, sweepKey(scope, name).Bytes(), nil); err != nil {
			return err
		}
	}

	kind, _ := DataKindOf(payload.AsView())
	s.metrics.RecordDefinition(kind.String(), inRoot)
	s.logger.Debug("Definition written",
		zap.String("name", name),
		zap.String("kind", kind.String()),
		zap.Int("depth", scope.Depth()),
		zap.Bool("in_root", inRoot))
	return nil
}

// DefineVariable stores a constant the evaluator can resolve by name.
func (s *Session) DefineVariable(name string, v value.Value, inRoot bool) error {
	if err := s.validator.ValidateName(name); err != nil {
		return err
	}
	payload := NewPayload(KindValue)
	if err := payload.PushValue(v); err != nil {
		return errors.InvalidArgument("cannot store variable "+name, err)
	}
	return s.Define(name, payload, inRoot)
}

// Resolve looks name up in the local space first, where the innermost live
// definition sorts first, then in the root space.
func (s *Session) Resolve(name string) (tuple.View, bool, error) {
	prefix := nameKey(name).Bytes()

	var found []byte
	err := kv.ScanPrefix(s.local, prefix, func(_, v []byte) (bool, error) {
		found = kv.Clone(v)
		return false, nil
	})
	if err != nil {
		return tuple.View{}, false, storageError("failed to scan local definitions", err)
	}
	if found != nil {
		return tuple.ViewOf(found), true, nil
	}

	v, ok, err := s.get(true, definitionKey(name, RootScope).Bytes())
	if err != nil || !ok {
		return tuple.View{}, false, err
	}
	return tuple.ViewOf(v), true, nil
}

// ResolveValue returns the constant stored under name.
func (s *Session) ResolveValue(name string) (value.Value, bool, error) {
	payload, ok, err := s.Resolve(name)
	if err != nil || !ok {
		return nil, false, err
	}
	kind, err := DataKindOf(payload)
	if err != nil {
		return nil, false, err
	}
	if kind != KindValue {
		return nil, false, errors.UnexpectedDataKind(kind.String())
	}
	v, ok := payload.Get(0)
	if !ok {
		return nil, false, errors.CorruptedData("value definition "+name+" has no value slot", nil)
	}
	return v, true, nil
}

// ResolveType expands a named type definition. It makes a Session usable as
// a typing.Resolver.
func (s *Session) ResolveType(name string) (typing.Typing, bool, error) {
	payload, ok, err := s.Resolve(name)
	if err != nil || !ok {
		return typing.Typing{}, false, err
	}
	kind, err := DataKindOf(payload)
	if err != nil {
		return typing.Typing{}, false, err
	}
	if kind != KindType {
		return typing.Typing{}, false, errors.UnexpectedDataKind(kind.String())
	}
	text, ok := payload.GetText(0)
	if !ok {
		return typing.Typing{}, false, errors.CorruptedData("type definition "+name+" has no typing slot", nil)
	}
	t, err := typing.Parse(text, s)
	if err != nil {
		return typing.Typing{}, false, errors.CorruptedData("stored typing of "+name+" does not parse", err)
	}
	return t, true, nil
}

// AllocateTableID increments the id counter of one space and returns the new
// value. Ids start at 1 and are never reused.
func (s *Session) AllocateTableID(inRoot bool) (int64, error) {
	key := counterKey().Bytes()
	raw, ok, err := s.get(inRoot, key)
	if err != nil {
		return 0, err
	}

	var last int64
	if ok {
		n, ok := tuple.ViewOf(raw).GetInt(0)
		if !ok {
			return 0, errors.CorruptedData("table id counter is not an integer", nil)
		}
		last = n
	}
	if last >= MaxTableID {
		return 0, errors.TableIDExhausted(MaxTableID)
	}

	next := last + 1
	if err := s.put(inRoot, key, tuple.New(catalogPrefix).PushInt(next).Bytes()); err != nil {
		return 0, err
	}
	s.metrics.RecordTableID(inRoot)
	return next, nil
}

// TablePayload fetches the table info stored for id.
func (s *Session) TablePayload(id int64, inRoot bool) (tuple.View, bool, error) {
	v, ok, err := s.get(inRoot, tableInfoKey(id).Bytes())
	if err != nil || !ok {
		return tuple.View{}, false, err
	}
	return tuple.ViewOf(v), true, nil
}

// Related is one definition found through the back-reference index.
type Related struct {
	Name    string
	Payload tuple.View
}

// RelatedDefinitions returns every association attached to table, from both
// spaces.
func (s *Session) RelatedDefinitions(table string) ([]Related, error) {
	prefix := backRefPrefix(table).Bytes()

	var members []string
	for _, inRoot := range []bool{true, false} {
		err := kv.ScanPrefix(s.space(inRoot), prefix, func(k, _ []byte) (bool, error) {
			member, ok := tuple.ViewOf(k).GetText(4)
			if !ok {
				return false, errors.CorruptedData("malformed back-reference for "+table, nil)
			}
			members = append(members, member)
			return true, nil
		})
		if err != nil {
			return nil, storageError("failed to scan back-references", err)
		}
	}

	var related []Related
	for _, member := range members {
		payload, ok, err := s.Resolve(member)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		kind, err := DataKindOf(payload)
		if err != nil {
			return nil, err
		}
		if kind == KindAssoc {
			related = append(related, Related{Name: member, Payload: payload})
		}
	}
	return related, nil
}

// KeyExists reports whether key is present in a space.
func (s *Session) KeyExists(key *tuple.Owned, inRoot bool) (bool, error) {
	_, ok, err := s.get(inRoot, key.Bytes())
	return ok, err
}

// DelKey removes one raw key.
func (s *Session) DelKey(key *tuple.Owned, inRoot bool) error {
	return s.del(inRoot, key.Bytes())
}

// DefineRawKey writes key with an optional value tuple.
func (s *Session) DefineRawKey(key, val *tuple.Owned, inRoot bool) error {
	var b []byte
	if val != nil {
		b = val.Bytes()
	}
	return s.put(inRoot, key.Bytes(), b)
}

// Entry is one decoded catalog or row pair.
type Entry struct {
	Key   tuple.View
	Value tuple.View
}

// Dump lists every pair of a space in key order.
func (s *Session) Dump(inRoot bool) ([]Entry, error) {
	var entries []Entry
	err := kv.ScanPrefix(s.space(inRoot), nil, func(k, v []byte) (bool, error) {
		entries = append(entries, Entry{
			Key:   tuple.ViewOf(kv.Clone(k)),
			Value: tuple.ViewOf(kv.Clone(v)),
		})
		return true, nil
	})
	if err != nil {
		return nil, storageError("failed to dump catalog", err)
	}
	return entries, nil
}

func (s *Session) definitionExists(name string, inRoot bool) (bool, error) {
	_, ok, err := s.get(inRoot, definitionKey(name, s.scopeFor(inRoot)).Bytes())
	return ok, err
}
