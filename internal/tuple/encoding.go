package tuple

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/greydoubt/cozo/internal/value"
)

// Slot tags. Their numeric order is the cross-kind order of value.Compare.
const (
	tagNull        byte = 0x02
	tagFalse       byte = 0x04
	tagTrue        byte = 0x05
	tagInt         byte = 0x10
	tagFloat       byte = 0x11
	tagText        byte = 0x20
	tagUuid        byte = 0x21
	tagList        byte = 0x30
	tagDict        byte = 0x31
	tagVariable    byte = 0x40
	tagFieldAccess byte = 0x41
	tagIdxAccess   byte = 0x42
	tagApply       byte = 0x43
	tagEndSentinel byte = 0xFF

	// collection terminator, below every tag
	tagEnd byte = 0x00

	escapeByte byte = 0xFF
	textTerm   byte = 0x01
)

// PrefixLen is the width of the prefix discriminator.
const PrefixLen = 4

// ErrMalformed is returned when bytes do not hold a valid tuple encoding.
var ErrMalformed = errors.New("tuple: malformed encoding")

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

func appendUint64(dst []byte, u uint64) []byte {
	return binary.BigEndian.AppendUint64(dst, u)
}

func appendIntBody(dst []byte, i int64) []byte {
	return appendUint64(dst, uint64(i)^(1<<63))
}

func appendFloatBody(dst []byte, f float64) []byte {
	return appendUint64(dst, value.FloatKey(f))
}

// appendTextBody escapes 0x00 as 00 FF and terminates with 00 01, so no
// encoded text is a byte-prefix of another.
func appendTextBody(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		c := s[i]
		dst = append(dst, c)
		if c == 0x00 {
			dst = append(dst, escapeByte)
		}
	}
	return append(dst, 0x00, textTerm)
}

// appendValue encodes one slot.
func appendValue(dst []byte, v value.Value) ([]byte, error) {
	switch x := v.(type) {
	case nil, value.Null:
		return append(dst, tagNull), nil
	case value.Bool:
		if x {
			return append(dst, tagTrue), nil
		}
		return append(dst, tagFalse), nil
	case value.Int:
		return appendIntBody(append(dst, tagInt), int64(x)), nil
	case value.Float:
		return appendFloatBody(append(dst, tagFloat), float64(x)), nil
	case value.Text:
		return appendTextBody(append(dst, tagText), string(x)), nil
	case value.Uuid:
		dst = append(dst, tagUuid)
		return append(dst, x[:]...), nil
	case value.List:
		dst = append(dst, tagList)
		var err error
		for _, el := range x {
			if dst, err = appendValue(dst, el); err != nil {
				return nil, err
			}
		}
		return append(dst, tagEnd), nil
	case value.Dict:
		dst = append(dst, tagDict)
		var err error
		for _, k := range value.SortedKeys(x) {
			dst = appendTextBody(append(dst, tagText), k)
			if dst, err = appendValue(dst, x[k]); err != nil {
				return nil, err
			}
		}
		return append(dst, tagEnd), nil
	case value.Variable:
		return appendTextBody(append(dst, tagVariable), string(x)), nil
	case value.FieldAccess:
		dst = appendTextBody(append(dst, tagFieldAccess), x.Field)
		return appendValue(dst, x.Base)
	case value.IdxAccess:
		dst = appendIntBody(append(dst, tagIdxAccess), int64(x.Index))
		return appendValue(dst, x.Base)
	case value.Apply:
		if !x.Op.Valid() {
			return nil, fmt.Errorf("tuple: cannot encode invalid operator %s", x.Op)
		}
		dst = appendTextBody(append(dst, tagApply), x.Op.String())
		var err error
		for _, el := range x.Args {
			if dst, err = appendValue(dst, el); err != nil {
				return nil, err
			}
		}
		return append(dst, tagEnd), nil
	case value.EndSentinel:
		return append(dst, tagEndSentinel), nil
	}
	return nil, fmt.Errorf("tuple: cannot encode %T", v)
}

func readUint64(b []byte) (uint64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, malformed("short fixed-width slot")
	}
	return binary.BigEndian.Uint64(b), b[8:], nil
}

func readTextBody(b []byte) (string, []byte, error) {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		c := b[i]
		if c != 0x00 {
			out = append(out, c)
			continue
		}
		if i+1 >= len(b) {
			return "", nil, malformed("unterminated text")
		}
		switch b[i+1] {
		case escapeByte:
			out = append(out, 0x00)
			i++
		case textTerm:
			return string(out), b[i+2:], nil
		default:
			return "", nil, malformed("bad text escape 0x%02x", b[i+1])
		}
	}
	return "", nil, malformed("unterminated text")
}

// readValue decodes one slot and returns the remaining bytes.
func readValue(b []byte) (value.Value, []byte, error) {
	if len(b) == 0 {
		return nil, nil, malformed("empty slot")
	}
	tag, rest := b[0], b[1:]
	switch tag {
	case tagNull:
		return value.Null{}, rest, nil
	case tagFalse:
		return value.Bool(false), rest, nil
	case tagTrue:
		return value.Bool(true), rest, nil
	case tagInt:
		u, rest, err := readUint64(rest)
		if err != nil {
			return nil, nil, err
		}
		return value.Int(int64(u ^ (1 << 63))), rest, nil
	case tagFloat:
		u, rest, err := readUint64(rest)
		if err != nil {
			return nil, nil, err
		}
		if u&(1<<63) != 0 {
			u &^= 1 << 63
		} else {
			u = ^u
		}
		return value.Float(math.Float64frombits(u)), rest, nil
	case tagText:
		s, rest, err := readTextBody(rest)
		if err != nil {
			return nil, nil, err
		}
		return value.Text(s), rest, nil
	case tagUuid:
		if len(rest) < 16 {
			return nil, nil, malformed("short uuid")
		}
		var id uuid.UUID
		copy(id[:], rest[:16])
		return value.Uuid(id), rest[16:], nil
	case tagList:
		items, rest, err := readSeq(rest)
		if err != nil {
			return nil, nil, err
		}
		return value.List(items), rest, nil
	case tagDict:
		d := value.Dict{}
		for {
			if len(rest) == 0 {
				return nil, nil, malformed("unterminated dict")
			}
			if rest[0] == tagEnd {
				return d, rest[1:], nil
			}
			if rest[0] != tagText {
				return nil, nil, malformed("dict key tag 0x%02x", rest[0])
			}
			k, r, err := readTextBody(rest[1:])
			if err != nil {
				return nil, nil, err
			}
			v, r, err := readValue(r)
			if err != nil {
				return nil, nil, err
			}
			d[k] = v
			rest = r
		}
	case tagVariable:
		s, rest, err := readTextBody(rest)
		if err != nil {
			return nil, nil, err
		}
		return value.Variable(s), rest, nil
	case tagFieldAccess:
		f, rest, err := readTextBody(rest)
		if err != nil {
			return nil, nil, err
		}
		base, rest, err := readValue(rest)
		if err != nil {
			return nil, nil, err
		}
		return value.FieldAccess{Field: f, Base: base}, rest, nil
	case tagIdxAccess:
		u, rest, err := readUint64(rest)
		if err != nil {
			return nil, nil, err
		}
		base, rest, err := readValue(rest)
		if err != nil {
			return nil, nil, err
		}
		return value.IdxAccess{Index: int(int64(u ^ (1 << 63))), Base: base}, rest, nil
	case tagApply:
		sym, rest, err := readTextBody(rest)
		if err != nil {
			return nil, nil, err
		}
		op, err := value.ParseOp(sym)
		if err != nil {
			return nil, nil, malformed("%v", err)
		}
		args, rest, err := readSeq(rest)
		if err != nil {
			return nil, nil, err
		}
		return value.Apply{Op: op, Args: args}, rest, nil
	case tagEndSentinel:
		return value.EndSentinel{}, rest, nil
	}
	return nil, nil, malformed("unknown tag 0x%02x", tag)
}

func readSeq(b []byte) ([]value.Value, []byte, error) {
	items := []value.Value{}
	for {
		if len(b) == 0 {
			return nil, nil, malformed("unterminated sequence")
		}
		if b[0] == tagEnd {
			return items, b[1:], nil
		}
		v, rest, err := readValue(b)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, v)
		b = rest
	}
}
