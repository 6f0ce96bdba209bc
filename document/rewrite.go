package document

import (
	"sort"
	"strings"
)

// Rewriter substitutes old references with new ones inside string attributes.
// All mappings are applied in one pass; where several old references match at
// the same position the longest one wins.
type Rewriter struct {
	table    map[string]string
	replacer *strings.Replacer
}

// NewRewriter builds a Rewriter from an old-to-new table. Empty keys and
// identity mappings are ignored.
func NewRewriter(table map[string]string) *Rewriter {
	keys := make([]string, 0, len(table))
	clean := make(map[string]string, len(table))
	for k, v := range table {
		if k == "" || k == v {
			continue
		}
		keys = append(keys, k)
		clean[k] = v
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, clean[k])
	}
	return &Rewriter{table: clean, replacer: strings.NewReplacer(pairs...)}
}

// Len reports the number of active mappings.
func (r *Rewriter) Len() int { return len(r.table) }

// Lookup returns the exact replacement for s, if one is mapped.
func (r *Rewriter) Lookup(s string) (string, bool) {
	v, ok := r.table[s]
	return v, ok
}

// String rewrites every occurrence of a known reference in s.
func (r *Rewriter) String(s string) string {
	if len(r.table) == 0 {
		return s
	}
	return r.replacer.Replace(s)
}

// Apply returns a rewritten copy of the tree. Node and mark attributes are
// rewritten at any nesting depth; text content is left alone.
func (r *Rewriter) Apply(root *Node) *Node {
	out := root.Clone()
	if len(r.table) == 0 {
		return out
	}
	Walk(out, func(n *Node) bool {
		r.rewriteMap(n.Attrs)
		for _, m := range n.Marks {
			if m != nil {
				r.rewriteMap(m.Attrs)
			}
		}
		return true
	})
	return out
}

func (r *Rewriter) rewriteMap(m map[string]any) {
	for k, v := range m {
		m[k] = r.rewriteValue(v)
	}
}

func (r *Rewriter) rewriteValue(v any) any {
	switch t := v.(type) {
	case string:
		return r.String(t)
	case map[string]any:
		r.rewriteMap(t)
		return t
	case []any:
		for i := range t {
			t[i] = r.rewriteValue(t[i])
		}
		return t
	default:
		return v
	}
}
