package boltkv

import (
	"go.etcd.io/bbolt"

	"github.com/greydoubt/cozo/internal/kv"
)

var _ kv.Iterator = &Iterator{}

type Iterator struct {
	cursor   *bbolt.Cursor
	envelope kv.Envelope
	valid    bool
	key      []byte
	val      []byte
	err      error
}

func (i *Iterator) load(k, v []byte) {
	i.key, i.val, i.valid = nil, nil, false
	if k == nil {
		return
	}
	data, err := i.envelope.Open(v)
	if err != nil {
		i.err = err
		return
	}
	i.key, i.val, i.valid = k, data, true
}

func (i *Iterator) Seek(k []byte) {
	if i.err != nil {
		return
	}
	i.load(i.cursor.Seek(k))
}

func (i *Iterator) Next() {
	if !i.valid {
		return
	}
	i.load(i.cursor.Next())
}

func (i *Iterator) Valid() bool   { return i.valid }
func (i *Iterator) Key() []byte   { return i.key }
func (i *Iterator) Value() []byte { return i.val }
func (i *Iterator) Err() error    { return i.err }

func (i *Iterator) Close() error {
	i.valid = false
	return nil
}
