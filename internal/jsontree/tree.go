// Package jsontree turns arbitrary JSON into a collapsible tree.
package jsontree

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
)

type Kind int

const (
	Null Kind = iota
	String
	Number
	Bool
	Array
	Object
)

// Node is one JSON value. Containers own their expansion state.
type Node struct {
	Key      string
	Kind     Kind
	Value    string
	Children []*Node
	Expanded bool
}

// Disclosure reports whether the node can be expanded or collapsed.
func (n *Node) Disclosure() bool {
	return (n.Kind == Array || n.Kind == Object) && len(n.Children) > 0
}

// Label is the value text shown next to the key.
func (n *Node) Label() string {
	switch n.Kind {
	case Null:
		return "null"
	case String, Number, Bool:
		return n.Value
	case Array:
		if len(n.Children) == 0 {
			return "[]"
		}
		return fmt.Sprintf("[%d]", len(n.Children))
	case Object:
		if len(n.Children) == 0 {
			return "{}"
		}
		return fmt.Sprintf("{...} %d keys", len(n.Children))
	}
	return ""
}

// Toggle flips a disclosure node. Leaves are unaffected.
func (n *Node) Toggle() {
	if n.Disclosure() {
		n.Expanded = !n.Expanded
	}
}

// SetAll expands or collapses every disclosure below and including n.
func (n *Node) SetAll(expanded bool) {
	if n.Disclosure() {
		n.Expanded = expanded
	}
	for _, c := range n.Children {
		c.SetAll(expanded)
	}
}

// ExpandToDepth expands containers shallower than depth and collapses the rest.
// The root is depth 0; a negative depth expands everything.
func (n *Node) ExpandToDepth(depth int) {
	n.expandTo(0, depth)
}

func (n *Node) expandTo(level, depth int) {
	if n.Disclosure() {
		n.Expanded = depth < 0 || level < depth
	}
	for _, c := range n.Children {
		c.expandTo(level+1, depth)
	}
}

// Find walks keys from n and returns the matching descendant.
func (n *Node) Find(path []string) *Node {
	cur := n
	for _, key := range path {
		var next *Node
		for _, c := range cur.Children {
			if c.Key == key {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

// Depth returns the number of container levels, counting the root as 1 when it is a container.
func (n *Node) Depth() int {
	if n.Kind != Array && n.Kind != Object {
		return 0
	}
	max := 0
	for _, c := range n.Children {
		if d := c.Depth(); d > max {
			max = d
		}
	}
	return max + 1
}

// Parse builds a tree from raw JSON, keeping object key order.
func Parse(raw []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	root, err := parseValue(dec, "")
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected trailing data after JSON value")
	}
	return root, nil
}

func parseValue(dec *json.Decoder, key string) (*Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return parseToken(dec, key, tok)
}

func parseToken(dec *json.Decoder, key string, tok json.Token) (*Node, error) {
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '[':
			n := &Node{Key: key, Kind: Array, Expanded: true}
			for i := 0; dec.More(); i++ {
				child, err := parseValue(dec, strconv.Itoa(i))
				if err != nil {
					return nil, err
				}
				n.Children = append(n.Children, child)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		case '{':
			n := &Node{Key: key, Kind: Object, Expanded: true}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				name, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", kt)
				}
				child, err := parseValue(dec, name)
				if err != nil {
					return nil, err
				}
				n.Children = append(n.Children, child)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", v)
	case nil:
		return &Node{Key: key, Kind: Null}, nil
	case string:
		return &Node{Key: key, Kind: String, Value: strconv.Quote(v)}, nil
	case json.Number:
		return &Node{Key: key, Kind: Number, Value: v.String()}, nil
	case bool:
		return &Node{Key: key, Kind: Bool, Value: strconv.FormatBool(v)}, nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

// Build makes a tree from a decoded value. Map keys are sorted.
func Build(v any) *Node {
	return build("", v)
}

func build(key string, v any) *Node {
	switch t := v.(type) {
	case nil:
		return &Node{Key: key, Kind: Null}
	case string:
		return &Node{Key: key, Kind: String, Value: strconv.Quote(t)}
	case bool:
		return &Node{Key: key, Kind: Bool, Value: strconv.FormatBool(t)}
	case json.Number:
		return &Node{Key: key, Kind: Number, Value: t.String()}
	case float64:
		return &Node{Key: key, Kind: Number, Value: strconv.FormatFloat(t, 'f', -1, 64)}
	case float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return &Node{Key: key, Kind: Number, Value: fmt.Sprint(t)}
	case []any:
		n := &Node{Key: key, Kind: Array, Expanded: true}
		for i, item := range t {
			n.Children = append(n.Children, build(strconv.Itoa(i), item))
		}
		return n
	case map[string]any:
		n := &Node{Key: key, Kind: Object, Expanded: true}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			n.Children = append(n.Children, build(k, t[k]))
		}
		return n
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return &Node{Key: key, Kind: String, Value: strconv.Quote(fmt.Sprint(t))}
		}
		n, err := Parse(b)
		if err != nil {
			return &Node{Key: key, Kind: String, Value: strconv.Quote(string(b))}
		}
		n.Key = key
		return n
	}
}
