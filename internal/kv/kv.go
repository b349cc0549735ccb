// Package kv is the ordered transactional key-value contract the catalog is
// written against. Backends live in the badgerkv, boltkv and memkv
// subpackages.
package kv

import (
	"bytes"
	"errors"
)

var (
	// ErrNotFound is returned by Txn.Get for a missing key.
	ErrNotFound = errors.New("kv: key not found")
	// ErrCorrupted is returned when a stored value fails its integrity check.
	ErrCorrupted = errors.New("kv: corrupted value")
	// ErrConflict is returned by Commit when a concurrent transaction won.
	ErrConflict = errors.New("kv: transaction conflict")
	// ErrTxnDone is returned by operations on a committed or rolled back txn.
	ErrTxnDone = errors.New("kv: transaction already finished")
	// ErrReadOnly is returned by writes on a read-only txn.
	ErrReadOnly = errors.New("kv: transaction is read-only")
)

// Store opens transactions.
type Store interface {
	Begin(writable bool) (Txn, error)
	Close() error
}

// Txn is a snapshot-isolated transaction. A Txn is used by one goroutine.
type Txn interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error

	// DeleteRange removes every key in [start, end). It must not be called
	// while an iterator of the same txn is open.
	DeleteRange(start, end []byte) error

	// Iterator returns an unpositioned forward iterator. At most one iterator
	// per txn may be open at a time.
	Iterator() Iterator

	Commit() error
	Rollback() error
}

// Iterator walks keys in ascending byte order.
type Iterator interface {
	Seek(key []byte)
	Next()
	Valid() bool

	// Key and Value are only valid until the next call to Seek, Next or
	// Close. Copy them to keep them longer.
	Key() []byte
	Value() []byte

	// Err reports a failure that invalidated the iterator.
	Err() error
	Close() error
}

// ScanPrefix calls fn for every pair whose key starts with prefix, stopping
// early when fn returns false.
func ScanPrefix(txn Txn, prefix []byte, fn func(key, value []byte) (bool, error)) error {
	it := txn.Iterator()
	defer it.Close()
	for it.Seek(prefix); it.Valid(); it.Next() {
		if !bytes.HasPrefix(it.Key(), prefix) {
			break
		}
		more, err := fn(it.Key(), it.Value())
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return it.Err()
}

// CollectRange copies every key in [start, end).
func CollectRange(txn Txn, start, end []byte) ([][]byte, error) {
	var keys [][]byte
	it := txn.Iterator()
	defer it.Close()
	for it.Seek(start); it.Valid(); it.Next() {
		if bytes.Compare(it.Key(), end) >= 0 {
			break
		}
		keys = append(keys, Clone(it.Key()))
	}
	return keys, it.Err()
}

// Clone copies b, preserving nil.
func Clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
