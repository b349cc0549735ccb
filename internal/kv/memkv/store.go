// Package memkv is an in-memory kv.Store on a copy-on-write B-tree. Each
// transaction works on a clone of the committed tree, so rollback is free and
// commit is a pointer swap.
package memkv

import (
	"bytes"
	"sync"

	"github.com/google/btree"

	"github.com/greydoubt/cozo/internal/kv"
)

const degree = 32

type item struct {
	key   []byte
	value []byte
}

func less(a, b item) bool {
	return bytes.Compare(a.key, b.key) < 0
}

var _ kv.Store = &Store{}

// Store holds the committed tree.
type Store struct {
	mu      sync.Mutex
	tree    *btree.BTreeG[item]
	version uint64
	closed  bool
}

// New returns an empty store.
func New() *Store {
	return &Store{tree: btree.NewG(degree, less)}
}

// Begin snapshots the committed tree.
func (s *Store) Begin(writable bool) (kv.Txn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, kv.ErrTxnDone
	}
	return &Txn{
		store:    s,
		tree:     s.tree.Clone(),
		base:     s.version,
		writable: writable,
	}, nil
}

// Len returns the number of committed keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Len()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.tree = btree.NewG(degree, less)
	return nil
}

func (s *Store) commit(t *Txn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kv.ErrTxnDone
	}
	// first committer wins
	if s.version != t.base {
		return kv.ErrConflict
	}
	s.tree = t.tree
	s.version++
	return nil
}

var _ kv.Txn = &Txn{}

// Txn is a private clone of the tree.
type Txn struct {
	store    *Store
	tree     *btree.BTreeG[item]
	base     uint64
	writable bool
	dirty    bool
	done     bool
}

func (t *Txn) check(write bool) error {
	if t.done {
		return kv.ErrTxnDone
	}
	if write && !t.writable {
		return kv.ErrReadOnly
	}
	return nil
}

func (t *Txn) Get(key []byte) ([]byte, error) {
	if err := t.check(false); err != nil {
		return nil, err
	}
	it, ok := t.tree.Get(item{key: key})
	if !ok {
		return nil, kv.ErrNotFound
	}
	return kv.Clone(it.value), nil
}

func (t *Txn) Put(key, value []byte) error {
	if err := t.check(true); err != nil {
		return err
	}
	v := make([]byte, len(value))
	copy(v, value)
	t.tree.ReplaceOrInsert(item{key: kv.Clone(key), value: v})
	t.dirty = true
	return nil
}

func (t *Txn) Delete(key []byte) error {
	if err := t.check(true); err != nil {
		return err
	}
	if _, ok := t.tree.Delete(item{key: key}); ok {
		t.dirty = true
	}
	return nil
}

func (t *Txn) DeleteRange(start, end []byte) error {
	if err := t.check(true); err != nil {
		return err
	}
	var doomed []item
	t.tree.AscendRange(item{key: start}, item{key: end}, func(it item) bool {
		doomed = append(doomed, it)
		return true
	})
	for _, it := range doomed {
		t.tree.Delete(it)
	}
	if len(doomed) > 0 {
		t.dirty = true
	}
	return nil
}

func (t *Txn) Iterator() kv.Iterator {
	return &Iterator{txn: t}
}

// Commit publishes the clone. Read-only or clean transactions never
// conflict.
func (t *Txn) Commit() error {
	if t.done {
		return kv.ErrTxnDone
	}
	t.done = true
	if !t.writable || !t.dirty {
		return nil
	}
	return t.store.commit(t)
}

func (t *Txn) Rollback() error {
	t.done = true
	return nil
}

var _ kv.Iterator = &Iterator{}

// Iterator re-seeks past the current key on every Next, so it tolerates
// writes to the txn between steps.
type Iterator struct {
	txn   *Txn
	cur   item
	valid bool
	err   error
}

func (i *Iterator) seekFrom(key []byte, inclusive bool) {
	i.valid = false
	if err := i.txn.check(false); err != nil {
		i.err = err
		return
	}
	i.txn.tree.AscendGreaterOrEqual(item{key: key}, func(it item) bool {
		if !inclusive && bytes.Equal(it.key, key) {
			return true
		}
		i.cur = it
		i.valid = true
		return false
	})
}

func (i *Iterator) Seek(key []byte) {
	i.seekFrom(key, true)
}

func (i *Iterator) Next() {
	if !i.valid {
		return
	}
	i.seekFrom(i.cur.key, false)
}

func (i *Iterator) Valid() bool { return i.valid }

func (i *Iterator) Key() []byte {
	if !i.valid {
		return nil
	}
	return i.cur.key
}

func (i *Iterator) Value() []byte {
	if !i.valid {
		return nil
	}
	return i.cur.value
}

func (i *Iterator) Err() error { return i.err }

func (i *Iterator) Close() error {
	i.valid = false
	return nil
}
