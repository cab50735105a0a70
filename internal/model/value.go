package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindSequence
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSequence:
		return "array"
	case KindMapping:
		return "object"
	default:
		return "null"
	}
}

// Entry is a single key/value pair of a mapping
type Entry struct {
	Key   string
	Value Value
}

// Value is a node of a semi-structured fact document.
// The zero Value is null.
type Value struct {
	kind    Kind
	b       bool
	n       float64
	s       string
	seq     []Value
	entries []Entry
	index   map[string]int
}

// Null returns the null value
func Null() Value { return Value{} }

// Bool wraps a boolean
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a number
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Int wraps an integer
func Int(n int) Value { return Number(float64(n)) }

// String wraps a string
func String(s string) Value { return Value{kind: KindString, s: s} }

// Sequence wraps an ordered list of values
func Sequence(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindSequence, seq: items}
}

// Mapping builds a mapping preserving entry order. Later duplicates replace earlier ones.
func Mapping(entries ...Entry) Value {
	v := Value{kind: KindMapping, entries: make([]Entry, 0, len(entries)), index: make(map[string]int, len(entries))}
	for _, e := range entries {
		v.set(e.Key, e.Value)
	}
	return v
}

// Pair is shorthand for a mapping entry
func Pair(key string, value Value) Entry {
	return Entry{Key: key, Value: value}
}

func (v *Value) set(key string, value Value) {
	if i, ok := v.index[key]; ok {
		v.entries[i].Value = value
		return
	}
	v.index[key] = len(v.entries)
	v.entries = append(v.entries, Entry{Key: key, Value: value})
}

// Kind reports the variant held by v
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsContainer reports whether v is a sequence or a mapping
func (v Value) IsContainer() bool { return v.kind == KindSequence || v.kind == KindMapping }

// AsBool returns the boolean payload
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the numeric payload
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsString returns the string payload
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsInt returns the payload as an integer when v is an integral number
func (v Value) AsInt() (int, bool) {
	if v.kind != KindNumber || v.n != math.Trunc(v.n) || math.IsInf(v.n, 0) {
		return 0, false
	}
	return int(v.n), true
}

// Elements returns the items of a sequence
func (v Value) Elements() []Value {
	if v.kind != KindSequence {
		return nil
	}
	return v.seq
}

// Entries returns the entries of a mapping in document order
func (v Value) Entries() []Entry {
	if v.kind != KindMapping {
		return nil
	}
	return v.entries
}

// Get looks up a key in a mapping
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMapping {
		return Value{}, false
	}
	i, ok := v.index[key]
	if !ok {
		return Value{}, false
	}
	return v.entries[i].Value, true
}

// At returns the i-th element of a sequence
func (v Value) At(i int) (Value, bool) {
	if v.kind != KindSequence || i < 0 || i >= len(v.seq) {
		return Value{}, false
	}
	return v.seq[i], true
}

// Len returns the element count of a container, 0 otherwise
func (v Value) Len() int {
	switch v.kind {
	case KindSequence:
		return len(v.seq)
	case KindMapping:
		return len(v.entries)
	default:
		return 0
	}
}

// Equal compares two values structurally. Strings never equal numbers.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindSequence:
		if len(v.seq) != len(o.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(o.seq[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(v.entries) != len(o.entries) {
			return false
		}
		for _, e := range v.entries {
			ov, ok := o.Get(e.Key)
			if !ok || !e.Value.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders scalars verbatim and containers as placeholders
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return formatNumber(v.n)
	case KindString:
		return v.s
	case KindSequence:
		return "[array]"
	default:
		return "{object}"
	}
}

// Literal renders v the way it is written in a rulespec: scalars verbatim,
// sequences as bracketed lists.
func (v Value) Literal() string {
	if v.kind != KindSequence {
		return v.String()
	}
	parts := make([]string, len(v.seq))
	for i, item := range v.seq {
		parts[i] = item.Literal()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// key is an unambiguous encoding used to de-duplicate facts
func (v Value) key() string {
	switch v.kind {
	case KindNull:
		return "n"
	case KindBool:
		return "b:" + strconv.FormatBool(v.b)
	case KindNumber:
		return "f:" + formatNumber(v.n)
	case KindString:
		return "s:" + strconv.Quote(v.s)
	case KindSequence:
		var sb strings.Builder
		sb.WriteString("[")
		for _, item := range v.seq {
			sb.WriteString(item.key())
			sb.WriteString(",")
		}
		sb.WriteString("]")
		return sb.String()
	default:
		var sb strings.Builder
		sb.WriteString("{")
		for _, e := range v.entries {
			sb.WriteString(strconv.Quote(e.Key))
			sb.WriteString(":")
			sb.WriteString(e.Value.key())
			sb.WriteString(",")
		}
		sb.WriteString("}")
		return sb.String()
	}
}

// Interface converts v into plain Go values (map[string]interface{},
// []interface{}, float64, string, bool, nil) as produced by encoding/json.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindSequence:
		out := make([]interface{}, len(v.seq))
		for i, item := range v.seq {
			out[i] = item.Interface()
		}
		return out
	case KindMapping:
		out := make(map[string]interface{}, len(v.entries))
		for _, e := range v.entries {
			out[e.Key] = e.Value.Interface()
		}
		return out
	default:
		return nil
	}
}

// FromInterface converts decoded Go values into a Value. Map keys are sorted
// since Go maps carry no order.
func FromInterface(x interface{}) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case float32:
		return Number(float64(t)), nil
	case float64:
		return Number(t), nil
	case []interface{}:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := FromInterface(item)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = v
		}
		return Sequence(items...), nil
	case []string:
		items := make([]Value, len(t))
		for i, s := range t {
			items[i] = String(s)
		}
		return Sequence(items...), nil
	case map[string]interface{}:
		keys := sortedKeys(t)
		entries := make([]Entry, 0, len(t))
		for _, k := range keys {
			v, err := FromInterface(t[k])
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			entries = append(entries, Pair(k, v))
		}
		return Mapping(entries...), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", x)
	}
}

func formatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}
