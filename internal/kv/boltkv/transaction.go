package boltkv

import (
	"bytes"

	"go.etcd.io/bbolt"

	"github.com/greydoubt/cozo/internal/kv"
)

var _ kv.Txn = &Txn{}

type Txn struct {
	tx       *bbolt.Tx
	bucket   *bbolt.Bucket
	writable bool
	envelope kv.Envelope
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
	v := t.bucket.Get(key)
	if v == nil {
		return nil, kv.ErrNotFound
	}
	data, err := t.envelope.Open(v)
	if err != nil {
		return nil, err
	}
	return kv.Clone(data), nil
}

func (t *Txn) Put(key, value []byte) error {
	if err := t.check(true); err != nil {
		return err
	}
	return t.bucket.Put(kv.Clone(key), t.envelope.Seal(value))
}

func (t *Txn) Delete(key []byte) error {
	if err := t.check(true); err != nil {
		return err
	}
	return t.bucket.Delete(key)
}

func (t *Txn) DeleteRange(start, end []byte) error {
	if err := t.check(true); err != nil {
		return err
	}
	var keys [][]byte
	c := t.bucket.Cursor()
	for k, _ := c.Seek(start); k != nil && bytes.Compare(k, end) < 0; k, _ = c.Next() {
		keys = append(keys, kv.Clone(k))
	}
	for _, k := range keys {
		if err := t.bucket.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (t *Txn) Iterator() kv.Iterator {
	return &Iterator{cursor: t.bucket.Cursor(), envelope: t.envelope}
}

func (t *Txn) Commit() error {
	if t.done {
		return kv.ErrTxnDone
	}
	t.done = true
	if t.writable {
		return t.tx.Commit()
	}
	return t.tx.Rollback()
}

func (t *Txn) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}
