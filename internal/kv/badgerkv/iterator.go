package badgerkv

import (
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/greydoubt/cozo/internal/kv"
)

var _ kv.Iterator = &Iterator{}

type Iterator struct {
	close    sync.Once
	iter     *badger.Iterator
	envelope kv.Envelope
	valid    bool
	key      []byte
	val      []byte
	err      error
}

func (i *Iterator) load() {
	i.key, i.val, i.valid = nil, nil, false
	if !i.iter.Valid() {
		return
	}
	item := i.iter.Item()
	stored, err := item.ValueCopy(nil)
	if err != nil {
		i.err = err
		return
	}
	val, err := i.envelope.Open(stored)
	if err != nil {
		i.err = err
		return
	}
	i.key = item.Key()
	i.val = val
	i.valid = true
}

func (i *Iterator) Seek(k []byte) {
	if i.err != nil {
		return
	}
	i.iter.Seek(k)
	i.load()
}

func (i *Iterator) Next() {
	if !i.valid {
		return
	}
	i.iter.Next()
	i.load()
}

func (i *Iterator) Valid() bool   { return i.valid }
func (i *Iterator) Key() []byte   { return i.key }
func (i *Iterator) Value() []byte { return i.val }
func (i *Iterator) Err() error    { return i.err }

func (i *Iterator) Close() error {
	i.close.Do(func() {
		i.valid = false
		i.iter.Close()
	})
	return nil
}
