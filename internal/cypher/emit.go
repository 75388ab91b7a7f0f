package cypher

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rpattn/cypherql/internal/cyphertext"
	"github.com/rpattn/cypherql/internal/domain"
	"github.com/rpattn/cypherql/internal/plan"
)

// Procedures used to run a statement in an isolated scope
const (
	ProcSingle = "apoc.cypher.runFirstColumnSingle"
	ProcMany   = "apoc.cypher.runFirstColumnMany"
	ProcWrite  = "apoc.cypher.doIt"
)

// Variables a batched statement binds for every parent
const (
	BatchIndex  = "__index"
	batchParent = "__parent"
)

// Statement is the composed query of one root field
type Statement struct {
	Path   plan.Path
	Column string
	Text   string
	List   bool
	Write  bool
	Shape  []Shape
	// Batch is set when the statement runs once per entry of $parents.
	// Every row then carries the entry's position under BatchIndex.
	Batch bool

	placeholders []string
}

// Placeholders returns the namespaced parameter keys the text references, sorted
func (s *Statement) Placeholders() []string {
	return append([]string(nil), s.placeholders...)
}

// Shape tells which projected fields are plain properties and which are nested subqueries.
// Fields left to other resolvers have a Shape but no projection entry.
type Shape struct {
	Output string
	Nested bool
	List   bool
	Fields []Shape
}

// Emit composes the statement for one root plan tree
func Emit(root plan.Root) (*Statement, error) {
	return emit(root, false)
}

// EmitBatch composes a read statement that evaluates root once for every value in $parents,
// each bound where $parent would be
func EmitBatch(root plan.Root) (*Statement, error) {
	if root.Write {
		return nil, &domain.CompilationError{Root: root.Path.Key(), Reason: "writes cannot be batched", Err: domain.ErrBatchWrite}
	}
	return emit(root, true)
}

func emit(root plan.Root, batch bool) (*Statement, error) {
	e := &emitter{placeholders: make(map[string]struct{})}
	v := &rootEmitter{emitter: e, root: root, column: cyphertext.Identifier(root.Output()), parent: "$" + plan.ParentParam}
	if batch {
		v.parent = batchParent
	}
	if err := root.Node.Accept(v); err != nil {
		return nil, err
	}
	if batch {
		v.text = strings.Join([]string{
			fmt.Sprintf("UNWIND range(0, size($%s) - 1) AS %s", plan.ParentsParam, BatchIndex),
			"CALL {",
			"WITH " + BatchIndex,
			fmt.Sprintf("WITH $%s[%s] AS %s", plan.ParentsParam, BatchIndex, batchParent),
			v.text,
			"}",
			"RETURN " + BatchIndex + ", " + v.column,
		}, "\n")
	}

	keys := make([]string, 0, len(e.placeholders))
	for k := range e.placeholders {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return &Statement{
		Path:         root.Path,
		Column:       v.column,
		Text:         v.text,
		List:         root.Node.Info().List,
		Write:        root.Write,
		Shape:        v.shape,
		Batch:        batch,
		placeholders: keys,
	}, nil
}

type emitter struct {
	placeholders map[string]struct{}
}

// placeholder returns the namespaced reference to group g of the node at path
func (e *emitter) placeholder(path plan.Path, g plan.ArgGroup) string {
	key := plan.ParamKey(path)
	e.placeholders[key] = struct{}{}
	return "$" + key + "." + string(g)
}

// scope renders the parameter map handed to an isolated statement
func (e *emitter) scope(b *plan.Base, path plan.Path, parent string) string {
	entries := []string{plan.ParentParam + ": " + parent}
	for _, g := range b.Groups {
		entries = append(entries, string(g)+": "+e.placeholder(path, g))
	}
	return "{" + strings.Join(entries, ", ") + "}"
}

// inline maps the node's group parameters to namespaced placeholders for text emitted in place
func (e *emitter) inline(b *plan.Base, path plan.Path) map[string]string {
	m := make(map[string]string, len(b.Groups)+1)
	for _, g := range b.Groups {
		m[string(g)] = e.placeholder(path, g)
	}
	return m
}

// project renders sel over binding. Nested plans get bindings named prefix_<output>,
// with the output encoded the same way parameter keys are.
// literal renders a plain map instead of a map projection.
func (e *emitter) project(binding, prefix string, sel *plan.Selection, path plan.Path, edge *plan.EdgeTraversal, target string, literal bool) (string, []Shape, error) {
	entries := make([]string, 0, len(sel.Fields))
	shapes := make([]Shape, 0, len(sel.Fields))

	for _, f := range sel.Fields {
		key := cyphertext.Name(f.Output)
		switch f.Kind {
		case plan.Scalar:
			if !literal && f.Output == f.Name {
				entries = append(entries, "."+cyphertext.Name(f.Name))
			} else {
				entries = append(entries, key+": "+binding+"."+cyphertext.Name(f.Name))
			}
			shapes = append(shapes, Shape{Output: f.Output})

		case plan.Typename:
			entries = append(entries, key+": "+cyphertext.Quote(f.TypeName))
			shapes = append(shapes, Shape{Output: f.Output})

		case plan.External:
			shapes = append(shapes, Shape{Output: f.Output})

		case plan.Object:
			p := path.Append(f.Output)
			childBinding := prefix + "_" + cyphertext.Segment(f.Output)

			if child, ok := sel.Child(f.Output); ok {
				v := &nestedEmitter{emitter: e, anchor: binding, binding: childBinding, path: p}
				if err := child.Accept(v); err != nil {
					return "", nil, err
				}
				entries = append(entries, key+": "+v.expr)
				shapes = append(shapes, Shape{Output: f.Output, Nested: true, List: child.Info().List, Fields: v.shape})
				continue
			}

			if edge == nil {
				continue
			}
			if endpoint, ok := edge.Endpoint(f.Output); ok {
				expr, shape, err := e.project(target, childBinding, &endpoint.Selection, p, nil, "", false)
				if err != nil {
					return "", nil, err
				}
				entries = append(entries, key+": "+expr)
				shapes = append(shapes, Shape{Output: f.Output, Nested: true, Fields: shape})
			}
		}
	}

	body := "{" + strings.Join(entries, ", ") + "}"
	if literal {
		return body, shapes, nil
	}
	return binding + " " + body, shapes, nil
}

// output projects the value of a statement-backed node; scalar results are used as they are
func (e *emitter) output(b *plan.Base, binding, prefix string, path plan.Path) (string, []Shape, error) {
	if b.Leaf {
		return binding, nil, nil
	}
	return e.project(binding, prefix, &b.Selection, path, nil, "", false)
}

// filter renders the WHERE part of a traversal
func (e *emitter) filter(b *plan.Base, text string, path plan.Path, anchor, this, edge string) (string, error) {
	if text == "" {
		return "", nil
	}
	params := e.inline(b, path)
	params[plan.ParentParam] = anchor
	vars := map[string]string{"this": this}
	if edge != "" {
		vars["edge"] = edge
	}
	out, err := cyphertext.Rewrite(text, params, vars)
	if err != nil {
		return "", domain.NewConfigurationError(b.Type, b.Field, domain.ErrMalformedText, "filter: %v", err)
	}
	return " WHERE " + out, nil
}

// pattern renders one relationship step from the anchor binding
func pattern(from, relVar string, t plan.Traversal, to string) string {
	rel := "[" + relVar + ":" + cyphertext.Name(t.Relationship) + "]"
	node := "(" + to
	if t.Label != "" {
		node += ":" + cyphertext.Name(t.Label)
	}
	node += ")"
	if t.Direction == plan.In {
		return "(" + from + ")<-" + rel + "-" + node
	}
	return "(" + from + ")-" + rel + "->" + node
}

// comprehension wraps source into a list comprehension, keeping only the first element for singular fields
func comprehension(list bool, source, proj string) string {
	c := fmt.Sprintf("[%s | %s]", source, proj)
	if list {
		return c
	}
	return "head(" + c + ")"
}

// subquery runs statement in an isolated scope and projects each returned value
func subquery(list bool, binding, statement, scope, proj string) string {
	if list {
		return comprehension(true, fmt.Sprintf("%s IN %s(%s, %s)", binding, ProcMany, cyphertext.Quote(statement), scope), proj)
	}
	return comprehension(false, fmt.Sprintf("%s IN [%s(%s, %s)]", binding, ProcSingle, cyphertext.Quote(statement), scope), proj)
}

// structuredBody renders the clauses of n. params rewrites group placeholders; nil keeps them as written.
func structuredBody(n *plan.Structured, params map[string]string) ([]string, error) {
	rewrite := func(text string) (string, error) {
		text = strings.TrimSpace(text)
		if len(params) == 0 {
			return text, nil
		}
		out, err := cyphertext.Rewrite(text, params, nil)
		if err != nil {
			return "", domain.NewConfigurationError(n.Type, n.Field, domain.ErrMalformedText, "%v", err)
		}
		return out, nil
	}

	var lines []string
	c := n.Clauses
	for _, group := range []struct {
		keyword   string
		fragments []string
	}{
		{"MATCH", c.Match},
		{"OPTIONAL MATCH", c.OptionalMatch},
		{"CREATE", c.Create},
		{"MERGE", c.Merge},
		{"SET", c.Set},
		{"DELETE", c.Delete},
		{"DETACH DELETE", c.DetachDelete},
		{"REMOVE", c.Remove},
	} {
		for _, f := range group.fragments {
			text, err := rewrite(f)
			if err != nil {
				return nil, err
			}
			lines = append(lines, group.keyword+" "+text)
		}
	}

	if !n.Paginated() && n.List {
		return lines, nil
	}

	var sb strings.Builder
	sb.WriteString("WITH " + n.Return)
	if len(n.OrderBy) > 0 {
		items := make([]string, len(n.OrderBy))
		for i, item := range n.OrderBy {
			text, err := rewrite(item)
			if err != nil {
				return nil, err
			}
			items[i] = text
		}
		sb.WriteString(" ORDER BY " + strings.Join(items, ", "))
	}
	if n.Skip != "" {
		text, err := rewrite(n.Skip)
		if err != nil {
			return nil, err
		}
		sb.WriteString(" SKIP " + text)
	}
	limit := n.Limit
	if !n.List {
		limit = "1"
	}
	if limit != "" {
		text, err := rewrite(limit)
		if err != nil {
			return nil, err
		}
		sb.WriteString(" LIMIT " + text)
	}
	return append(lines, sb.String()), nil
}

// rootEmitter composes the statement for a root field.
// parent is the expression the root statement sees as $parent.
type rootEmitter struct {
	*emitter
	root   plan.Root
	column string
	parent string
	text   string
	shape  []Shape
}

func (v *rootEmitter) RawStatement(n *plan.RawStatement) error {
	binding := v.column
	proj, shape, err := v.output(&n.Base, binding, binding, v.root.Path)
	if err != nil {
		return err
	}
	statement := cyphertext.Quote(n.Statement)
	scope := v.scope(&n.Base, v.root.Path, v.parent)

	var lines []string
	switch {
	case v.root.Write:
		lines = append(lines, fmt.Sprintf("CALL %s(%s, %s) YIELD value", ProcWrite, statement, scope))
		if !n.List {
			lines = append(lines, "WITH value LIMIT 1")
		}
		lines = append(lines, "WITH value[head(keys(value))] AS "+binding)
	case n.List:
		lines = append(lines, fmt.Sprintf("UNWIND %s(%s, %s) AS %s", ProcMany, statement, scope, binding))
	default:
		lines = append(lines, fmt.Sprintf("WITH %s(%s, %s) AS %s", ProcSingle, statement, scope, binding))
	}
	lines = append(lines, "RETURN "+proj+" AS "+v.column)

	v.text = strings.Join(lines, "\n")
	v.shape = shape
	return nil
}

func (v *rootEmitter) Structured(n *plan.Structured) error {
	params := v.inline(&n.Base, v.root.Path)
	if v.parent != "$"+plan.ParentParam {
		params[plan.ParentParam] = v.parent
	}
	lines, err := structuredBody(n, params)
	if err != nil {
		return err
	}
	proj, shape, err := v.output(&n.Base, n.Return, v.column, v.root.Path)
	if err != nil {
		return err
	}
	lines = append(lines, "RETURN "+proj+" AS "+v.column)

	v.text = strings.Join(lines, "\n")
	v.shape = shape
	return nil
}

func (v *rootEmitter) detached(b *plan.Base) error {
	return domain.NewConfigurationError(b.Type, b.Field, domain.ErrDetachedPlan, "root field %s", v.root.Path)
}

func (v *rootEmitter) NodeTraversal(n *plan.NodeTraversal) error { return v.detached(&n.Base) }
func (v *rootEmitter) EdgeTraversal(n *plan.EdgeTraversal) error { return v.detached(&n.Base) }
func (v *rootEmitter) VirtualGroup(n *plan.VirtualGroup) error   { return v.detached(&n.Base) }

// nestedEmitter renders the value expression of a planned field below a root.
// anchor is the binding in scope; binding is the name the field's own values get.
type nestedEmitter struct {
	*emitter
	anchor  string
	binding string
	path    plan.Path
	expr    string
	shape   []Shape
}

func (v *nestedEmitter) RawStatement(n *plan.RawStatement) error {
	proj, shape, err := v.output(&n.Base, v.binding, v.binding, v.path)
	if err != nil {
		return err
	}
	v.expr = subquery(n.List, v.binding, n.Statement, v.scope(&n.Base, v.path, v.anchor), proj)
	v.shape = shape
	return nil
}

func (v *nestedEmitter) Structured(n *plan.Structured) error {
	if n.Clauses.Writes() {
		return domain.NewConfigurationError(n.Type, n.Field, domain.ErrNestedWrite, "at %s", v.path)
	}
	lines, err := structuredBody(n, nil)
	if err != nil {
		return err
	}
	lines = append(lines, "RETURN "+n.Return)

	proj, shape, err := v.output(&n.Base, v.binding, v.binding, v.path)
	if err != nil {
		return err
	}
	v.expr = subquery(n.List, v.binding, strings.Join(lines, "\n"), v.scope(&n.Base, v.path, v.anchor), proj)
	v.shape = shape
	return nil
}

func (v *nestedEmitter) NodeTraversal(n *plan.NodeTraversal) error {
	relVar := ""
	if uses, err := cyphertext.References(n.Filter, "edge"); err == nil && uses {
		relVar = v.binding + "_0edge"
	}
	where, err := v.filter(&n.Base, n.Filter, v.path, v.anchor, v.binding, relVar)
	if err != nil {
		return err
	}
	proj, shape, err := v.project(v.binding, v.binding, &n.Selection, v.path, nil, "", false)
	if err != nil {
		return err
	}
	v.expr = comprehension(n.List, pattern(v.anchor, relVar, n.Traversal, v.binding)+where, proj)
	v.shape = shape
	return nil
}

func (v *nestedEmitter) EdgeTraversal(n *plan.EdgeTraversal) error {
	target := v.binding + "_0" + cyphertext.Segment(n.Target)
	where, err := v.filter(&n.Base, n.Filter, v.path, v.anchor, target, v.binding)
	if err != nil {
		return err
	}
	proj, shape, err := v.project(v.binding, v.binding, &n.Selection, v.path, n, target, false)
	if err != nil {
		return err
	}
	v.expr = comprehension(n.List, pattern(v.anchor, v.binding, n.Traversal, target)+where, proj)
	v.shape = shape
	return nil
}

func (v *nestedEmitter) VirtualGroup(n *plan.VirtualGroup) error {
	proj, shape, err := v.project(v.anchor, v.binding, &n.Selection, v.path, nil, "", true)
	if err != nil {
		return err
	}
	if n.List {
		proj = "[" + proj + "]"
	}
	v.expr = proj
	v.shape = shape
	return nil
}
