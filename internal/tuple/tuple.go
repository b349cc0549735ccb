// Package tuple implements the order-preserving binary tuple used for every
// key and value the catalog stores.
//
// A tuple is a 4-byte big-endian prefix discriminator followed by
// self-delimiting slots. Byte order of two encodings equals the logical order
// of their (prefix, slots...) sequences, and a tuple is a logical prefix of
// another exactly when its bytes are a byte-prefix of the other's.
package tuple

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/greydoubt/cozo/internal/value"
)

// View is a read-only tuple over a borrowed buffer. Views returned by store
// iterators are only valid until the iterator moves.
type View struct {
	data []byte
}

// ViewOf wraps b without copying.
func ViewOf(b []byte) View {
	return View{data: b}
}

// Bytes returns the encoding.
func (v View) Bytes() []byte {
	return v.data
}

// Prefix returns the prefix discriminator, or 0 for a truncated buffer.
func (v View) Prefix() uint32 {
	if len(v.data) < PrefixLen {
		return 0
	}
	return binary.BigEndian.Uint32(v.data)
}

// StartsWith reports whether p is a prefix of v.
func (v View) StartsWith(p View) bool {
	return bytes.HasPrefix(v.data, p.data)
}

// Clone copies v into an owned tuple.
func (v View) Clone() *Owned {
	buf := make([]byte, len(v.data))
	copy(buf, v.data)
	return &Owned{View{data: buf}}
}

func (v View) slots() []byte {
	if len(v.data) < PrefixLen {
		return nil
	}
	return v.data[PrefixLen:]
}

// offset returns the byte offset of slot idx inside the slot area.
func (v View) offset(idx int) (int, bool) {
	if idx < 0 {
		return 0, false
	}
	b := v.slots()
	pos := 0
	for i := 0; i < idx; i++ {
		if pos >= len(b) {
			return 0, false
		}
		_, rest, err := readValue(b[pos:])
		if err != nil {
			return 0, false
		}
		pos = len(b) - len(rest)
	}
	return pos, true
}

// Get decodes slot idx. It returns false when the slot does not exist or
// cannot be decoded, so callers may probe variable-length tuples.
func (v View) Get(idx int) (value.Value, bool) {
	pos, ok := v.offset(idx)
	if !ok {
		return nil, false
	}
	b := v.slots()
	if pos >= len(b) {
		return nil, false
	}
	val, _, err := readValue(b[pos:])
	if err != nil {
		return nil, false
	}
	return val, true
}

// IsNull reports whether slot idx holds Null.
func (v View) IsNull(idx int) bool {
	val, ok := v.Get(idx)
	return ok && value.IsNull(val)
}

// GetBool returns slot idx when it is a Bool.
func (v View) GetBool(idx int) (bool, bool) {
	val, ok := v.Get(idx)
	if !ok {
		return false, false
	}
	b, ok := val.(value.Bool)
	return bool(b), ok
}

// GetInt returns slot idx when it is an Int.
func (v View) GetInt(idx int) (int64, bool) {
	val, ok := v.Get(idx)
	if !ok {
		return 0, false
	}
	i, ok := val.(value.Int)
	return int64(i), ok
}

// GetFloat returns slot idx when it is a Float.
func (v View) GetFloat(idx int) (float64, bool) {
	val, ok := v.Get(idx)
	if !ok {
		return 0, false
	}
	f, ok := val.(value.Float)
	return float64(f), ok
}

// GetText returns slot idx when it is Text.
func (v View) GetText(idx int) (string, bool) {
	val, ok := v.Get(idx)
	if !ok {
		return "", false
	}
	s, ok := val.(value.Text)
	return string(s), ok
}

// GetUuid returns slot idx when it is a Uuid.
func (v View) GetUuid(idx int) (uuid.UUID, bool) {
	val, ok := v.Get(idx)
	if !ok {
		return uuid.Nil, false
	}
	u, ok := val.(value.Uuid)
	return uuid.UUID(u), ok
}

// Values decodes every slot. Unlike the getters it reports malformed input.
func (v View) Values() ([]value.Value, error) {
	if len(v.data) < PrefixLen {
		return nil, malformed("short prefix")
	}
	b := v.slots()
	out := []value.Value{}
	for len(b) > 0 {
		val, rest, err := readValue(b)
		if err != nil {
			return nil, err
		}
		out = append(out, val)
		b = rest
	}
	return out, nil
}

// Len returns the number of decodable slots.
func (v View) Len() int {
	b := v.slots()
	n := 0
	for len(b) > 0 {
		_, rest, err := readValue(b)
		if err != nil {
			break
		}
		n++
		b = rest
	}
	return n
}

func (v View) String() string {
	var sb strings.Builder
	sb.WriteString("<")
	sb.WriteString(strconv.FormatUint(uint64(v.Prefix()), 10))
	sb.WriteString(">(")
	vals, err := v.Values()
	if err != nil {
		sb.WriteString("malformed)")
		return sb.String()
	}
	for i, val := range vals {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(value.Format(val))
	}
	sb.WriteString(")")
	return sb.String()
}

// Owned is a tuple under construction that owns its buffer. Getters are
// inherited from View.
type Owned struct {
	View
}

// New starts an empty tuple with the given prefix.
func New(prefix uint32) *Owned {
	buf := make([]byte, PrefixLen, 32)
	binary.BigEndian.PutUint32(buf, prefix)
	return &Owned{View{data: buf}}
}

// FromValues builds a tuple from prefix and slots.
func FromValues(prefix uint32, vals ...value.Value) (*Owned, error) {
	t := New(prefix)
	for _, v := range vals {
		if err := t.PushValue(v); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// AsView returns a view over the current buffer. It is invalidated by
// further pushes.
func (t *Owned) AsView() View {
	return t.View
}

// PushNull appends Null.
func (t *Owned) PushNull() *Owned {
	t.data = append(t.data, tagNull)
	return t
}

// PushBool appends a Bool.
func (t *Owned) PushBool(b bool) *Owned {
	if b {
		t.data = append(t.data, tagTrue)
	} else {
		t.data = append(t.data, tagFalse)
	}
	return t
}

// PushInt appends an Int.
func (t *Owned) PushInt(i int64) *Owned {
	t.data = appendIntBody(append(t.data, tagInt), i)
	return t
}

// PushFloat appends a Float.
func (t *Owned) PushFloat(f float64) *Owned {
	t.data = appendFloatBody(append(t.data, tagFloat), f)
	return t
}

// PushText appends Text.
func (t *Owned) PushText(s string) *Owned {
	t.data = appendTextBody(append(t.data, tagText), s)
	return t
}

// PushUuid appends a Uuid.
func (t *Owned) PushUuid(id uuid.UUID) *Owned {
	t.data = append(append(t.data, tagUuid), id[:]...)
	return t
}

// PushValue appends any encodable value, including collections and
// expression trees.
func (t *Owned) PushValue(v value.Value) error {
	data, err := appendValue(t.data, v)
	if err != nil {
		return err
	}
	t.data = data
	return nil
}

// Extend appends the slots of other, ignoring its prefix.
func (t *Owned) Extend(other View) *Owned {
	t.data = append(t.data, other.slots()...)
	return t
}

// Seal appends the end sentinel. A sealed prefix is the exclusive upper bound
// of the range of all tuples starting with that prefix.
func (t *Owned) Seal() *Owned {
	t.data = append(t.data, tagEndSentinel)
	return t
}

// Sealed returns a sealed copy, leaving t untouched.
func (t *Owned) Sealed() *Owned {
	return t.Clone().Seal()
}

// InsertValuesAt splices vals in front of slot idx. idx may equal Len().
func (t *Owned) InsertValuesAt(idx int, vals ...value.Value) error {
	pos, ok := t.offset(idx)
	if !ok {
		return malformed("slot %d out of range", idx)
	}
	var ins []byte
	var err error
	for _, v := range vals {
		if ins, err = appendValue(ins, v); err != nil {
			return err
		}
	}
	at := PrefixLen + pos
	out := make([]byte, 0, len(t.data)+len(ins))
	out = append(out, t.data[:at]...)
	out = append(out, ins...)
	out = append(out, t.data[at:]...)
	t.data = out
	return nil
}

// Range returns the half-open key range [prefix, sealed prefix) covering every
// tuple that starts with prefix.
func Range(prefix View) (start, end []byte) {
	end = make([]byte, len(prefix.data)+1)
	copy(end, prefix.data)
	end[len(prefix.data)] = tagEndSentinel
	return prefix.data, end
}
