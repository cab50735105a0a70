package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// Format is the serialization a document was read from
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseDocument decodes a YAML or JSON document. JSON is detected by its
// leading brace or bracket; everything else is read as YAML.
func ParseDocument(data []byte) (Value, error) {
	v, _, err := ParseDocumentFormat(data)
	return v, err
}

// ParseDocumentFormat is ParseDocument that also reports which format parsed
func ParseDocumentFormat(data []byte) (Value, Format, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Null(), FormatYAML, nil
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		if v, err := ParseJSON(trimmed); err == nil {
			return v, FormatJSON, nil
		}
		// flow-style YAML also starts with a brace
	}
	v, err := ParseYAML(data)
	return v, FormatYAML, err
}

// ParseJSON decodes a JSON document preserving object key order
func ParseJSON(data []byte) (Value, error) {
	if !gjson.ValidBytes(data) {
		return Value{}, fmt.Errorf("invalid JSON document")
	}
	return fromResult(gjson.ParseBytes(data)), nil
}

func fromResult(r gjson.Result) Value {
	switch r.Type {
	case gjson.False:
		return Bool(false)
	case gjson.True:
		return Bool(true)
	case gjson.Number:
		return Number(r.Num)
	case gjson.String:
		return String(r.Str)
	case gjson.JSON:
		if r.IsArray() {
			items := []Value{}
			r.ForEach(func(_, item gjson.Result) bool {
				items = append(items, fromResult(item))
				return true
			})
			return Sequence(items...)
		}
		var entries []Entry
		r.ForEach(func(key, item gjson.Result) bool {
			entries = append(entries, Pair(key.Str, fromResult(item)))
			return true
		})
		return Mapping(entries...)
	default:
		return Null()
	}
}

// ParseYAML decodes a YAML document preserving mapping key order
func ParseYAML(data []byte) (Value, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return Value{}, fmt.Errorf("parse YAML: %w", err)
	}
	return newNodeDecoder().decode(&node)
}

// UnmarshalYAML implements yaml.Unmarshaler
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	out, err := newNodeDecoder().decode(node)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// ErrExcessiveAliasing is returned for YAML documents whose aliases expand
// far beyond their own size
var ErrExcessiveAliasing = errors.New("document contains excessive aliasing")

// nodeDecoder converts a yaml.Node tree, expanding aliases under the same
// limits the yaml.v3 decoder applies
type nodeDecoder struct {
	expanding  map[*yaml.Node]bool
	depth      int // Number of aliases currently being expanded
	count      int // Nodes decoded
	aliasCount int // Nodes decoded through an alias
}

func newNodeDecoder() *nodeDecoder {
	return &nodeDecoder{expanding: make(map[*yaml.Node]bool)}
}

func (d *nodeDecoder) alias(n *yaml.Node) (Value, error) {
	if n.Alias == nil {
		return Value{}, fmt.Errorf("line %d: unknown anchor", n.Line)
	}
	if d.expanding[n.Alias] {
		return Value{}, fmt.Errorf("line %d: anchor '%s' refers to itself", n.Line, n.Value)
	}
	d.expanding[n.Alias] = true
	d.depth++
	defer func() {
		delete(d.expanding, n.Alias)
		d.depth--
	}()
	return d.decode(n.Alias)
}

// excessive mirrors yaml.v3's alias ratio: small documents may be almost
// entirely aliased, large ones only by a tenth.
func (d *nodeDecoder) excessive() bool {
	if d.aliasCount <= 100 || d.count <= 1000 {
		return false
	}
	ratio := 0.99
	switch {
	case d.count >= 4000000:
		ratio = 0.10
	case d.count > 400000:
		ratio = 0.99 - 0.89*(float64(d.count-400000)/3600000)
	}
	return float64(d.aliasCount)/float64(d.count) > ratio
}

func (d *nodeDecoder) decode(n *yaml.Node) (Value, error) {
	d.count++
	if d.depth > 0 {
		d.aliasCount++
	}
	if d.excessive() {
		return Value{}, ErrExcessiveAliasing
	}

	switch n.Kind {
	case 0:
		return Null(), nil
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Null(), nil
		}
		return d.decode(n.Content[0])
	case yaml.AliasNode:
		return d.alias(n)
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!null":
			return Null(), nil
		case "!!bool":
			var b bool
			if err := n.Decode(&b); err != nil {
				return Value{}, fmt.Errorf("line %d: %w", n.Line, err)
			}
			return Bool(b), nil
		case "!!int", "!!float":
			var f float64
			if err := n.Decode(&f); err != nil {
				return Value{}, fmt.Errorf("line %d: %w", n.Line, err)
			}
			return Number(f), nil
		default:
			return String(n.Value), nil
		}
	case yaml.SequenceNode:
		items := make([]Value, 0, len(n.Content))
		for _, c := range n.Content {
			item, err := d.decode(c)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return Sequence(items...), nil
	case yaml.MappingNode:
		entries := make([]Entry, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, err := d.decode(n.Content[i])
			if err != nil {
				return Value{}, err
			}
			if k.IsContainer() {
				return Value{}, fmt.Errorf("line %d: mapping keys must be scalars", n.Content[i].Line)
			}
			item, err := d.decode(n.Content[i+1])
			if err != nil {
				return Value{}, err
			}
			entries = append(entries, Pair(k.String(), item))
		}
		return Mapping(entries...), nil
	}
	return Value{}, fmt.Errorf("line %d: unsupported YAML node", n.Line)
}

// MarshalYAML implements yaml.Marshaler
func (v Value) MarshalYAML() (interface{}, error) {
	return v.node(), nil
}

func (v Value) node() *yaml.Node {
	switch v.kind {
	case KindBool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v.b)}
	case KindNumber:
		tag := "!!float"
		if _, ok := v.AsInt(); ok {
			tag = "!!int"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: formatNumber(v.n)}
	case KindString:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.s}
	case KindSequence:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.seq {
			n.Content = append(n.Content, item.node())
		}
		return n
	case KindMapping:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, e := range v.entries {
			n.Content = append(n.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Key},
				e.Value.node())
		}
		return n
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
}

// MarshalJSON implements json.Marshaler, keeping mapping order
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) writeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return fmt.Errorf("number %v has no JSON encoding", v.n)
		}
		buf.WriteString(formatNumber(v.n))
	case KindString:
		b, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindSequence:
		buf.WriteByte('[')
		for i, item := range v.seq {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMapping:
		buf.WriteByte('{')
		for i, e := range v.entries {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(e.Key)
			if err != nil {
				return err
			}
			buf.Write(k)
			buf.WriteByte(':')
			if err := e.Value.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler
func (v *Value) UnmarshalJSON(data []byte) error {
	out, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
