package badgerkv

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/greydoubt/cozo/internal/kv"
)

var _ kv.Txn = &Txn{}

// Txn wraps a Badger transaction. Badger allows only one open iterator per
// read-write transaction.
type Txn struct {
	tx       *badger.Txn
	writable bool
	envelope kv.Envelope
	done     bool
}

func (t *Txn) Get(key []byte) ([]byte, error) {
	if t.done {
		return nil, kv.ErrTxnDone
	}
	item, err := t.tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	stored, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return t.envelope.Open(stored)
}

func (t *Txn) Put(key, value []byte) error {
	if t.done {
		return kv.ErrTxnDone
	}
	if !t.writable {
		return kv.ErrReadOnly
	}
	// badger holds on to both slices until commit
	return t.wrap(t.tx.Set(kv.Clone(key), t.envelope.Seal(value)))
}

func (t *Txn) Delete(key []byte) error {
	if t.done {
		return kv.ErrTxnDone
	}
	if !t.writable {
		return kv.ErrReadOnly
	}
	return t.wrap(t.tx.Delete(kv.Clone(key)))
}

func (t *Txn) DeleteRange(start, end []byte) error {
	if t.done {
		return kv.ErrTxnDone
	}
	if !t.writable {
		return kv.ErrReadOnly
	}
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := t.tx.NewIterator(opts)
	var keys [][]byte
	for it.Seek(start); it.Valid(); it.Next() {
		k := it.Item().Key()
		if bytes.Compare(k, end) >= 0 {
			break
		}
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range keys {
		if err := t.wrap(t.tx.Delete(k)); err != nil {
			return err
		}
	}
	return nil
}

func (t *Txn) wrap(err error) error {
	if errors.Is(err, badger.ErrTxnTooBig) {
		return fmt.Errorf("badger transaction too large: %w", err)
	}
	return err
}

func (t *Txn) Iterator() kv.Iterator {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchSize = 10
	return &Iterator{
		iter:     t.tx.NewIterator(opts),
		envelope: t.envelope,
	}
}

func (t *Txn) Commit() error {
	if t.done {
		return kv.ErrTxnDone
	}
	t.done = true
	if !t.writable {
		t.tx.Discard()
		return nil
	}
	err := t.tx.Commit()
	if errors.Is(err, badger.ErrConflict) {
		return kv.ErrConflict
	}
	return err
}

func (t *Txn) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.tx.Discard()
	return nil
}
