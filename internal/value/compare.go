package value

import (
	"bytes"
	"math"
	"sort"
	"strings"
)

// rank orders kinds for the total order. It matches the tag order of the
// tuple encoding.
func rank(v Value) int {
	if v == nil {
		return int(KindNull)
	}
	return int(v.Kind())
}

// FloatKey maps a float to a uint64 whose unsigned order equals the float
// order (negative values flipped, positive values with the sign bit set).
func FloatKey(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | 1<<63
}

// Compare is the total order used for tuples: kinds compare by rank, values of
// one kind by their natural order. It never fails, unlike the evaluator's
// comparison operators which reject mixed kinds.
func Compare(a, b Value) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch x := a.(type) {
	case nil, Null, EndSentinel:
		return 0
	case Bool:
		y := b.(Bool)
		switch {
		case x == y:
			return 0
		case !bool(x):
			return -1
		default:
			return 1
		}
	case Int:
		return cmpInt(int64(x), int64(b.(Int)))
	case Float:
		ka, kb := FloatKey(float64(x)), FloatKey(float64(b.(Float)))
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		}
		return 0
	case Text:
		return strings.Compare(string(x), string(b.(Text)))
	case Uuid:
		y := b.(Uuid)
		return bytes.Compare(x[:], y[:])
	case List:
		return compareSlices(x, b.(List))
	case Dict:
		return compareDicts(x, b.(Dict))
	case Variable:
		return strings.Compare(string(x), string(b.(Variable)))
	case FieldAccess:
		y := b.(FieldAccess)
		if c := strings.Compare(x.Field, y.Field); c != 0 {
			return c
		}
		return Compare(x.Base, y.Base)
	case IdxAccess:
		y := b.(IdxAccess)
		if c := cmpInt(int64(x.Index), int64(y.Index)); c != 0 {
			return c
		}
		return Compare(x.Base, y.Base)
	case Apply:
		y := b.(Apply)
		if c := strings.Compare(x.Op.String(), y.Op.String()); c != 0 {
			return c
		}
		return compareSlices(x.Args, y.Args)
	}
	return 0
}

// Equal reports structural identity under the total order.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareSlices(a, b []Value) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmpInt(int64(len(a)), int64(len(b)))
}

func compareDicts(a, b Dict) int {
	ka, kb := SortedKeys(a), SortedKeys(b)
	for i := 0; i < len(ka) && i < len(kb); i++ {
		if c := strings.Compare(ka[i], kb[i]); c != 0 {
			return c
		}
		if c := Compare(a[ka[i]], b[kb[i]]); c != 0 {
			return c
		}
	}
	return cmpInt(int64(len(ka)), int64(len(kb)))
}

// SortedKeys returns the keys of d in ascending order.
func SortedKeys(d Dict) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
