package plan

import (
	"strings"

	"github.com/rpattn/cypherql/internal/cyphertext"
)

// Path is the chain of output names (alias or field name) from an operation root down to a field
type Path []string

// Append returns a new path with name added; p is never modified
func (p Path) Append(name string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, name)
}

// Key is the map key of p
func (p Path) Key() string {
	return strings.Join(p, ".")
}

func (p Path) String() string {
	return p.Key()
}

// ParsePathKey is the inverse of Key
func ParsePathKey(key string) Path {
	if key == "" {
		return nil
	}
	return strings.Split(key, ".")
}

// HasPrefix reports whether p starts with prefix
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Last returns the output name of the field p points to
func (p Path) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// ParamKey is the namespaced parameter name of the node at p
func ParamKey(p Path) string {
	return "field_" + cyphertext.Join(p...)
}

// Root is an independent plan tree compiled into one statement
type Root struct {
	Path  Path
	Node  Node
	Write bool
}

// Output is the response key of the root field
func (r Root) Output() string {
	return r.Path.Last()
}

// Tree holds the plans of one operation. It is built once and only read afterwards.
type Tree struct {
	roots []Root
	nodes map[string]Node
}

// NewTree records roots and indexes every planned node below them by path
func NewTree(roots []Root) *Tree {
	t := &Tree{
		roots: append([]Root(nil), roots...),
		nodes: make(map[string]Node),
	}
	for _, r := range t.roots {
		_ = Walk(r.Path, r.Node, func(p Path, n Node) error {
			t.nodes[p.Key()] = n
			return nil
		})
	}
	return t
}

// Roots returns the independent plan trees in request order
func (t *Tree) Roots() []Root {
	return append([]Root(nil), t.roots...)
}

// Lookup returns the plan recorded at p
func (t *Tree) Lookup(p Path) (Node, bool) {
	n, ok := t.nodes[p.Key()]
	return n, ok
}

// Len is the number of planned fields across all roots
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Walk visits n and then every planned descendant, depth first in selection order.
// Edge endpoints are visited where the endpoint field appears in the edge's selection.
// The emitter projects fields in this same order.
func Walk(path Path, n Node, fn func(Path, Node) error) error {
	if err := fn(path, n); err != nil {
		return err
	}
	edge, _ := n.(*EdgeTraversal)
	return walkSelection(path, &n.Info().Selection, edge, fn)
}

func walkSelection(path Path, sel *Selection, edge *EdgeTraversal, fn func(Path, Node) error) error {
	for _, f := range sel.Fields {
		if f.Kind != Object {
			continue
		}
		if child, ok := sel.Child(f.Output); ok {
			if err := Walk(path.Append(f.Output), child, fn); err != nil {
				return err
			}
			continue
		}
		if edge == nil {
			continue
		}
		if endpoint, ok := edge.Endpoint(f.Output); ok {
			if err := walkSelection(path.Append(f.Output), &endpoint.Selection, nil, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
