package value

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Format renders v in a compact expression syntax, used in logs and the CLI.
func Format(v Value) string {
	var sb strings.Builder
	writeValue(&sb, v)
	return sb.String()
}

func writeValue(sb *strings.Builder, v Value) {
	switch x := v.(type) {
	case nil, Null:
		sb.WriteString("null")
	case Bool:
		sb.WriteString(strconv.FormatBool(bool(x)))
	case Int:
		sb.WriteString(strconv.FormatInt(int64(x), 10))
	case Float:
		s := strconv.FormatFloat(float64(x), 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEnI") {
			s += ".0"
		}
		sb.WriteString(s)
	case Text:
		sb.WriteString(strconv.Quote(string(x)))
	case Uuid:
		sb.WriteString("u\"")
		sb.WriteString(uuid.UUID(x).String())
		sb.WriteString("\"")
	case List:
		sb.WriteByte('[')
		for i, el := range x {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeValue(sb, el)
		}
		sb.WriteByte(']')
	case Dict:
		sb.WriteByte('{')
		for i, k := range SortedKeys(x) {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteString(": ")
			writeValue(sb, x[k])
		}
		sb.WriteByte('}')
	case Variable:
		sb.WriteString(string(x))
	case FieldAccess:
		writeValue(sb, x.Base)
		sb.WriteByte('.')
		sb.WriteString(x.Field)
	case IdxAccess:
		writeValue(sb, x.Base)
		sb.WriteByte('[')
		sb.WriteString(strconv.Itoa(x.Index))
		sb.WriteByte(']')
	case Apply:
		if x.Op.Arity() == 2 && len(x.Args) == 2 {
			sb.WriteByte('(')
			writeValue(sb, x.Args[0])
			sb.WriteByte(' ')
			sb.WriteString(x.Op.String())
			sb.WriteByte(' ')
			writeValue(sb, x.Args[1])
			sb.WriteByte(')')
			return
		}
		sb.WriteString(x.Op.String())
		sb.WriteByte('(')
		for i, el := range x.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeValue(sb, el)
		}
		sb.WriteByte(')')
	case EndSentinel:
		sb.WriteString("<end>")
	default:
		sb.WriteString("<?>")
	}
}
