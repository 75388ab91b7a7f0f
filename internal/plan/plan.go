package plan

// ArgGroup names one bucket of values a statement can reference as a parameter
type ArgGroup string

const (
	GroupArgs      ArgGroup = "args"
	GroupGenerated ArgGroup = "generated"
	GroupVirtual   ArgGroup = "virtual"
)

// ParentParam is the parameter carrying the enclosing binding into a statement
const ParentParam = "parent"

// ParentsParam carries the parent values of a batched root statement
const ParentsParam = "parents"

// FieldKind tells the emitter how to project a requested sub-field
type FieldKind int

const (
	// Scalar fields are read as a property of the current binding
	Scalar FieldKind = iota
	// Typename fields project the object type name as a literal
	Typename
	// Object fields are backed by a child plan or an edge endpoint
	Object
	// External fields are not read from the store. They stay out of the projection
	// and resolve to null.
	External
)

// Field is one requested sub-field of a planned selection
type Field struct {
	Output   string
	Name     string
	Kind     FieldKind
	TypeName string
}

// Selection is the requested shape below a plan node.
// Children holds the plan of every object field the store supplies, keyed by output name.
type Selection struct {
	Fields   []Field
	Children map[string]Node
}

// Child returns the plan for the field with the given output name
func (s *Selection) Child(output string) (Node, bool) {
	n, ok := s.Children[output]
	return n, ok
}

// AddField appends a projected field
func (s *Selection) AddField(f Field) {
	s.Fields = append(s.Fields, f)
}

// AddChild appends an object field backed by n
func (s *Selection) AddChild(f Field, n Node) {
	if s.Children == nil {
		s.Children = make(map[string]Node)
	}
	f.Kind = Object
	s.Fields = append(s.Fields, f)
	s.Children[f.Output] = n
}

// Base carries what every plan kind shares
type Base struct {
	// Type and Field identify the schema field the node was extracted from
	Type  string
	Field string
	List  bool
	// Leaf is set when the field returns a scalar, so its value is used without projection
	Leaf bool

	Args      map[string]any
	Generated map[string]any
	// Virtual holds the arguments of the enclosing virtual group, if any
	Virtual map[string]any

	// Groups lists the argument groups the node's text references
	Groups []ArgGroup

	Selection
}

// Info exposes the shared part of a node
func (b *Base) Info() *Base {
	return b
}

// Uses reports whether the node's text references group g
func (b *Base) Uses(g ArgGroup) bool {
	for _, x := range b.Groups {
		if x == g {
			return true
		}
	}
	return false
}

// NeedsParams reports whether the node owns a namespaced parameter entry
func (b *Base) NeedsParams() bool {
	return len(b.Groups) > 0
}

// Node is a planned field. The set of implementations is closed; use Accept to dispatch.
type Node interface {
	Info() *Base
	Accept(v Visitor) error
	sealed()
}

// Visitor has one method per plan kind
type Visitor interface {
	RawStatement(n *RawStatement) error
	Structured(n *Structured) error
	NodeTraversal(n *NodeTraversal) error
	EdgeTraversal(n *EdgeTraversal) error
	VirtualGroup(n *VirtualGroup) error
}

// RawStatement runs an opaque parametrized statement
type RawStatement struct {
	Base
	Statement string
}

func (n *RawStatement) Accept(v Visitor) error { return v.RawStatement(n) }
func (*RawStatement) sealed()                  {}

// Clauses holds the clause fragments of a structured plan, each list in author order
type Clauses struct {
	Match         []string
	OptionalMatch []string
	Create        []string
	Merge         []string
	Set           []string
	Delete        []string
	DetachDelete  []string
	Remove        []string
}

// Fragments returns every fragment in emission order
func (c Clauses) Fragments() []string {
	var out []string
	for _, list := range [][]string{c.Match, c.OptionalMatch, c.Create, c.Merge, c.Set, c.Delete, c.DetachDelete, c.Remove} {
		out = append(out, list...)
	}
	return out
}

// Writes reports whether any clause modifies the graph
func (c Clauses) Writes() bool {
	return len(c.Create)+len(c.Merge)+len(c.Set)+len(c.Delete)+len(c.DetachDelete)+len(c.Remove) > 0
}

// Structured composes a statement from clause lists
type Structured struct {
	Base
	Clauses Clauses
	OrderBy []string
	Skip    string
	Limit   string
	Return  string
}

func (n *Structured) Accept(v Visitor) error { return v.Structured(n) }
func (*Structured) sealed()                  {}

// Paginated reports whether ordering or pagination was declared
func (n *Structured) Paginated() bool {
	return len(n.OrderBy) > 0 || n.Skip != "" || n.Limit != ""
}

// Direction of a relationship step seen from the parent binding
type Direction string

const (
	In  Direction = "IN"
	Out Direction = "OUT"
)

// Traversal describes one relationship step from the parent binding
type Traversal struct {
	Relationship string
	Direction    Direction
	Label        string
	Filter       string
}

// NodeTraversal projects the node reached by following one relationship
type NodeTraversal struct {
	Base
	Traversal
}

func (n *NodeTraversal) Accept(v Visitor) error { return v.NodeTraversal(n) }
func (*NodeTraversal) sealed()                  {}

// Endpoint is the far node of an edge traversal, exposed as a field of the edge type
type Endpoint struct {
	Output string
	Field  string
	Selection
}

// EdgeTraversal projects the relationship itself. Endpoints holds one entry per requested
// alias of the Target field; all of them read the same far node.
type EdgeTraversal struct {
	Base
	Traversal
	Target    string
	Endpoints []*Endpoint
}

// Endpoint returns the endpoint requested under output
func (n *EdgeTraversal) Endpoint(output string) (*Endpoint, bool) {
	for _, e := range n.Endpoints {
		if e.Output == output {
			return e, true
		}
	}
	return nil, false
}

func (n *EdgeTraversal) Accept(v Visitor) error { return v.EdgeTraversal(n) }
func (*EdgeTraversal) sealed()                  {}

// VirtualGroup groups plans anchored to the parent's binding without traversing.
// Implicit groups stand in for unplanned object fields that have planned descendants.
type VirtualGroup struct {
	Base
	Implicit bool
}

func (n *VirtualGroup) Accept(v Visitor) error { return v.VirtualGroup(n) }
func (*VirtualGroup) sealed()                  {}

// CanBeRoot reports whether n can start a plan tree. Traversals and groups need a parent binding.
func CanBeRoot(n Node) bool {
	switch n.(type) {
	case *RawStatement, *Structured:
		return true
	}
	return false
}
