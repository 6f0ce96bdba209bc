// Package document models the rich-text article tree stored for each post
// and provides the traversals used by export and import.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmpty is returned by Parse when there is no article to parse.
var ErrEmpty = errors.New("document: empty article")

// Node is one element of an article tree. Fields the editor adds beyond the
// ones modelled here are kept verbatim so a decode/encode cycle is lossless.
type Node struct {
	Type    string
	Attrs   map[string]any
	Content []*Node
	Text    string
	Marks   []*Mark

	extra map[string]json.RawMessage
}

// Mark is an inline annotation on a text node, such as a link.
type Mark struct {
	Type  string
	Attrs map[string]any

	extra map[string]json.RawMessage
}

var nodeKeys = map[string]bool{"type": true, "attrs": true, "content": true, "text": true, "marks": true}

func (n *Node) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*n = Node{}
	if v, ok := raw["type"]; ok {
		if err := json.Unmarshal(v, &n.Type); err != nil {
			return fmt.Errorf("node type: %w", err)
		}
	}
	if v, ok := raw["text"]; ok {
		if err := json.Unmarshal(v, &n.Text); err != nil {
			return fmt.Errorf("node text: %w", err)
		}
	}
	if v, ok := raw["attrs"]; ok {
		attrs, err := decodeAttrs(v)
		if err != nil {
			return fmt.Errorf("node attrs: %w", err)
		}
		n.Attrs = attrs
	}
	if v, ok := raw["content"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &n.Content); err != nil {
			return err
		}
	}
	if v, ok := raw["marks"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &n.Marks); err != nil {
			return err
		}
	}
	for k, v := range raw {
		if !nodeKeys[k] {
			if n.extra == nil {
				n.extra = make(map[string]json.RawMessage)
			}
			n.extra[k] = v
		}
	}
	return nil
}

func (n *Node) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(n.extra)+5)
	for k, v := range n.extra {
		out[k] = v
	}
	out["type"] = n.Type
	if n.Attrs != nil {
		out["attrs"] = n.Attrs
	}
	if n.Content != nil {
		out["content"] = n.Content
	}
	if n.Text != "" {
		out["text"] = n.Text
	}
	if n.Marks != nil {
		out["marks"] = n.Marks
	}
	return json.Marshal(out)
}

func (m *Mark) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Mark{}
	for k, v := range raw {
		switch k {
		case "type":
			if err := json.Unmarshal(v, &m.Type); err != nil {
				return fmt.Errorf("mark type: %w", err)
			}
		case "attrs":
			attrs, err := decodeAttrs(v)
			if err != nil {
				return fmt.Errorf("mark attrs: %w", err)
			}
			m.Attrs = attrs
		default:
			if m.extra == nil {
				m.extra = make(map[string]json.RawMessage)
			}
			m.extra[k] = v
		}
	}
	return nil
}

func (m *Mark) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.extra)+2)
	for k, v := range m.extra {
		out[k] = v
	}
	out["type"] = m.Type
	if m.Attrs != nil {
		out["attrs"] = m.Attrs
	}
	return json.Marshal(out)
}

// decodeAttrs keeps numbers as json.Number so they re-encode unchanged.
func decodeAttrs(data []byte) (map[string]any, error) {
	if isNull(data) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var attrs map[string]any
	if err := dec.Decode(&attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

func isNull(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) == 0 || bytes.Equal(data, []byte("null"))
}

// Parse decodes an article. The article may be the tree itself or a JSON
// string holding the encoded tree, as older exports store it.
func Parse(data []byte) (*Node, error) {
	data = bytes.TrimSpace(data)
	if isNull(data) {
		return nil, ErrEmpty
	}
	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, fmt.Errorf("document: decode article string: %w", err)
		}
		if inner == "" {
			return nil, ErrEmpty
		}
		return Parse([]byte(inner))
	}
	if data[0] != '{' {
		return nil, fmt.Errorf("document: article must be an object")
	}
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("document: decode article: %w", err)
	}
	return &n, nil
}

// Encode returns the JSON form of the tree.
func Encode(n *Node) ([]byte, error) {
	return json.Marshal(n)
}

// Placeholder returns the article used when a post is created without one.
func Placeholder() *Node {
	return &Node{
		Type: "doc",
		Content: []*Node{
			{Type: "paragraph", Content: []*Node{{Type: "text", Text: "Start writing here."}}},
		},
	}
}

// Walk calls fn for n and every descendant in depth-first order. Returning
// false from fn skips that node's children.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Content {
		Walk(c, fn)
	}
}

// Clone returns a deep copy of the tree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{Type: n.Type, Text: n.Text, Attrs: cloneMap(n.Attrs), extra: n.extra}
	if n.Content != nil {
		c.Content = make([]*Node, len(n.Content))
		for i, child := range n.Content {
			c.Content[i] = child.Clone()
		}
	}
	if n.Marks != nil {
		c.Marks = make([]*Mark, len(n.Marks))
		for i, m := range n.Marks {
			if m == nil {
				continue
			}
			c.Marks[i] = &Mark{Type: m.Type, Attrs: cloneMap(m.Attrs), extra: m.extra}
		}
	}
	return c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
