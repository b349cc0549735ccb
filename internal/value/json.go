package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// JSON form of expression trees, used by the CLI:
//
//	null, true, 1, 1.5, "text", [..]   concrete scalars and lists
//	{"float": "2"}                      float that would otherwise read as Int
//	{"uuid": "..."}                     Uuid
//	{"dict": {"k": ...}}                Dict
//	{"var": "name"}                     Variable
//	{"field": "f", "of": ...}           FieldAccess
//	{"idx": 0, "of": ...}               IdxAccess
//	{"op": "+", "args": [...]}          Apply
//	{"sentinel": true}                  EndSentinel

// FromJSON decodes an expression tree.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode expression: %w", err)
	}
	return fromRaw(raw)
}

func fromRaw(raw interface{}) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(x), nil
	case string:
		return Text(x), nil
	case json.Number:
		s := x.String()
		if !strings.ContainsAny(s, ".eE") {
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return Int(i), nil
			}
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q: %w", s, err)
		}
		return Float(f), nil
	case []interface{}:
		out := make(List, 0, len(x))
		for _, el := range x {
			v, err := fromRaw(el)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case map[string]interface{}:
		return fromObject(x)
	}
	return nil, fmt.Errorf("unsupported json value %T", raw)
}

func fromObject(obj map[string]interface{}) (Value, error) {
	if name, ok := obj["var"]; ok {
		s, ok := name.(string)
		if !ok {
			return nil, fmt.Errorf("var must be a string")
		}
		return Variable(s), nil
	}
	if sym, ok := obj["op"]; ok {
		s, ok := sym.(string)
		if !ok {
			return nil, fmt.Errorf("op must be a string")
		}
		op, err := ParseOp(s)
		if err != nil {
			return nil, err
		}
		rawArgs, _ := obj["args"].([]interface{})
		args := make([]Value, 0, len(rawArgs))
		for _, a := range rawArgs {
			v, err := fromRaw(a)
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		}
		if n := op.Arity(); n >= 0 && n != len(args) {
			return nil, fmt.Errorf("operator %s takes %d arguments, got %d", op, n, len(args))
		}
		return Apply{Op: op, Args: args}, nil
	}
	if f, ok := obj["field"]; ok {
		s, ok := f.(string)
		if !ok {
			return nil, fmt.Errorf("field must be a string")
		}
		base, err := fromRaw(obj["of"])
		if err != nil {
			return nil, err
		}
		return FieldAccess{Field: s, Base: base}, nil
	}
	if i, ok := obj["idx"]; ok {
		n, ok := i.(json.Number)
		if !ok {
			return nil, fmt.Errorf("idx must be a number")
		}
		idx, err := strconv.Atoi(n.String())
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("idx must be a non-negative integer")
		}
		base, err := fromRaw(obj["of"])
		if err != nil {
			return nil, err
		}
		return IdxAccess{Index: idx, Base: base}, nil
	}
	if u, ok := obj["uuid"]; ok {
		s, _ := u.(string)
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("bad uuid: %w", err)
		}
		return Uuid(id), nil
	}
	if f, ok := obj["float"]; ok {
		switch x := f.(type) {
		case string:
			v, err := strconv.ParseFloat(x, 64)
			if err != nil {
				return nil, fmt.Errorf("bad float: %w", err)
			}
			return Float(v), nil
		case json.Number:
			v, err := x.Float64()
			if err != nil {
				return nil, fmt.Errorf("bad float: %w", err)
			}
			return Float(v), nil
		}
		return nil, fmt.Errorf("float must be a string or number")
	}
	if d, ok := obj["dict"]; ok {
		m, ok := d.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("dict must be an object")
		}
		out := make(Dict, len(m))
		for k, el := range m {
			v, err := fromRaw(el)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	}
	if _, ok := obj["sentinel"]; ok {
		return EndSentinel{}, nil
	}
	return nil, fmt.Errorf("unrecognised object; records must be wrapped as {\"dict\": ...}")
}

// ToJSON encodes an expression tree in the form accepted by FromJSON.
func ToJSON(v Value) ([]byte, error) {
	return json.Marshal(toRaw(v))
}

func toRaw(v Value) interface{} {
	switch x := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(x)
	case Int:
		return int64(x)
	case Float:
		f := float64(x)
		if math.IsInf(f, 0) || math.IsNaN(f) || f == math.Trunc(f) {
			return map[string]interface{}{"float": strconv.FormatFloat(f, 'g', -1, 64)}
		}
		return f
	case Text:
		return string(x)
	case Uuid:
		return map[string]interface{}{"uuid": uuid.UUID(x).String()}
	case List:
		out := make([]interface{}, len(x))
		for i, el := range x {
			out[i] = toRaw(el)
		}
		return out
	case Dict:
		m := make(map[string]interface{}, len(x))
		for k, el := range x {
			m[k] = toRaw(el)
		}
		return map[string]interface{}{"dict": m}
	case Variable:
		return map[string]interface{}{"var": string(x)}
	case FieldAccess:
		return map[string]interface{}{"field": x.Field, "of": toRaw(x.Base)}
	case IdxAccess:
		return map[string]interface{}{"idx": x.Index, "of": toRaw(x.Base)}
	case Apply:
		args := make([]interface{}, len(x.Args))
		for i, el := range x.Args {
			args[i] = toRaw(el)
		}
		return map[string]interface{}{"op": x.Op.String(), "args": args}
	case EndSentinel:
		return map[string]interface{}{"sentinel": true}
	}
	return nil
}
