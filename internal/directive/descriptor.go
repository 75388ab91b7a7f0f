package directive

import (
	"fmt"
	"strings"

	"github.com/rpattn/cypherql/internal/cyphertext"
	"github.com/rpattn/cypherql/internal/domain"
	"github.com/rpattn/cypherql/internal/plan"
	"github.com/rpattn/cypherql/pkg/argpath"
	"github.com/vektah/gqlparser/v2/ast"
)

// Kind is the data-access strategy a field declares
type Kind int

const (
	None Kind = iota
	Raw
	Structured
	External
	NodeTraversal
	EdgeTraversal
	Virtual
)

func (k Kind) String() string {
	switch k {
	case Raw:
		return "raw"
	case Structured:
		return "structured"
	case External:
		return "external"
	case NodeTraversal:
		return "node traversal"
	case EdgeTraversal:
		return "edge traversal"
	case Virtual:
		return "virtual"
	}
	return "none"
}

// DefaultEdgeTarget is the edge-type field exposing the far node when @edge names none
const DefaultEdgeTarget = "node"

// Descriptor is the parsed directive configuration of one schema field
type Descriptor struct {
	Type  string
	Field string
	Kind  Kind
	List  bool

	Cases []Case

	Clauses plan.Clauses
	OrderBy []string
	Skip    string
	Limit   string
	Return  string

	Traversal plan.Traversal
	Target    string

	GenerateIDs []string

	err error
}

// Err returns the configuration error found while parsing, if any
func (d *Descriptor) Err() error {
	return d.err
}

// Parse reads the store directives declared on def
func Parse(typeName string, def *ast.FieldDefinition, names Names) *Descriptor {
	d := &Descriptor{
		Type:  typeName,
		Field: def.Name,
		List:  def.Type != nil && def.Type.Elem != nil,
	}
	d.err = d.parse(def, names)
	return d
}

func (d *Descriptor) fail(cause error, format string, args ...any) error {
	return domain.NewConfigurationError(d.Type, d.Field, cause, format, args...)
}

func (d *Descriptor) parse(def *ast.FieldDefinition, names Names) error {
	backing := map[Kind]string{
		Raw:           names.Cypher,
		Structured:    names.Clauses,
		External:      names.External,
		NodeTraversal: names.Relation,
		EdgeTraversal: names.Edge,
		Virtual:       names.Virtual,
	}

	var found []string
	var dir *ast.Directive
	for _, kind := range []Kind{Raw, Structured, External, NodeTraversal, EdgeTraversal, Virtual} {
		if x := def.Directives.ForName(backing[kind]); x != nil {
			found = append(found, "@"+x.Name)
			d.Kind = kind
			dir = x
		}
	}
	if len(found) > 1 {
		d.Kind = None
		return d.fail(domain.ErrConflictingDirectives, "found %s", strings.Join(found, ", "))
	}

	if gen := def.Directives.ForName(names.GenerateID); gen != nil {
		ids, err := stringListArg(gen, "names")
		if err != nil {
			return d.fail(domain.ErrMalformedText, "@%s: %v", gen.Name, err)
		}
		if len(ids) == 0 {
			ids = []string{"id"}
		}
		d.GenerateIDs = ids
	}

	switch d.Kind {
	case Raw:
		return d.parseRaw(dir)
	case Structured:
		return d.parseStructured(dir)
	case NodeTraversal, EdgeTraversal:
		return d.parseTraversal(dir)
	}
	return nil
}

func (d *Descriptor) parseRaw(dir *ast.Directive) error {
	if arg := dir.Arguments.ForName("statements"); arg != nil && arg.Value != nil {
		raw, err := arg.Value.Value(nil)
		if err != nil {
			return d.fail(domain.ErrMissingStatement, "statements: %v", err)
		}
		list, _ := raw.([]any)
		for i, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return d.fail(domain.ErrMissingStatement, "statements[%d] is not an object", i)
			}
			stmt, _ := m["statement"].(string)
			when, _ := m["when"].(string)
			if strings.TrimSpace(stmt) == "" {
				return d.fail(domain.ErrMissingStatement, "statements[%d] has no statement", i)
			}
			if when != "" {
				if _, err := argpath.Parse(when); err != nil {
					return d.fail(domain.ErrMalformedText, "statements[%d].when: %v", i, err)
				}
			}
			d.Cases = append(d.Cases, Case{When: when, Statement: stmt})
		}
	}

	stmt, err := stringArg(dir, "statement")
	if err != nil {
		return d.fail(domain.ErrMissingStatement, "statement: %v", err)
	}
	if strings.TrimSpace(stmt) != "" {
		d.Cases = append(d.Cases, Case{Statement: stmt})
	}

	if len(d.Cases) == 0 {
		return d.fail(domain.ErrMissingStatement, "@%s needs statement or statements", dir.Name)
	}
	for i, c := range d.Cases {
		if _, err := cyphertext.Params(c.Statement); err != nil {
			return d.fail(domain.ErrMalformedText, "statement %d: %v", i, err)
		}
	}
	return nil
}

func (d *Descriptor) parseStructured(dir *ast.Directive) error {
	lists := []struct {
		name string
		dst  *[]string
	}{
		{"match", &d.Clauses.Match},
		{"optionalMatch", &d.Clauses.OptionalMatch},
		{"create", &d.Clauses.Create},
		{"merge", &d.Clauses.Merge},
		{"set", &d.Clauses.Set},
		{"delete", &d.Clauses.Delete},
		{"detachDelete", &d.Clauses.DetachDelete},
		{"remove", &d.Clauses.Remove},
		{"orderBy", &d.OrderBy},
	}
	for _, l := range lists {
		v, err := stringListArg(dir, l.name)
		if err != nil {
			return d.fail(domain.ErrMalformedText, "%s: %v", l.name, err)
		}
		*l.dst = v
	}

	var err error
	if d.Skip, err = stringArg(dir, "skip"); err != nil {
		return d.fail(domain.ErrMalformedText, "skip: %v", err)
	}
	if d.Limit, err = stringArg(dir, "limit"); err != nil {
		return d.fail(domain.ErrMalformedText, "limit: %v", err)
	}
	if d.Return, err = stringArg(dir, "return"); err != nil {
		return d.fail(domain.ErrMissingReturn, "return: %v", err)
	}
	d.Return = strings.TrimSpace(d.Return)
	if d.Return == "" {
		return d.fail(domain.ErrMissingReturn, "@%s needs a return binding", dir.Name)
	}
	if cyphertext.Identifier(d.Return) != d.Return {
		return d.fail(domain.ErrMissingReturn, "return binding %q is not a plain identifier", d.Return)
	}

	for _, text := range d.texts() {
		if _, err := cyphertext.Params(text); err != nil {
			return d.fail(domain.ErrMalformedText, "%q: %v", text, err)
		}
	}
	return nil
}

func (d *Descriptor) parseTraversal(dir *ast.Directive) error {
	name, err := stringArg(dir, "name")
	if err != nil || strings.TrimSpace(name) == "" {
		return d.fail(domain.ErrInvalidTraversal, "@%s needs a relationship name", dir.Name)
	}
	direction, err := stringArg(dir, "direction")
	if err != nil || direction == "" {
		return d.fail(domain.ErrInvalidTraversal, "@%s needs a direction", dir.Name)
	}
	switch plan.Direction(direction) {
	case plan.In, plan.Out:
	default:
		return d.fail(domain.ErrInvalidTraversal, "direction %q is not IN or OUT", direction)
	}

	label, err := stringArg(dir, "label")
	if err != nil {
		return d.fail(domain.ErrInvalidTraversal, "label: %v", err)
	}
	filter, err := stringArg(dir, "filter")
	if err != nil {
		return d.fail(domain.ErrInvalidTraversal, "filter: %v", err)
	}
	if _, err := cyphertext.Params(filter); err != nil {
		return d.fail(domain.ErrMalformedText, "filter: %v", err)
	}

	d.Traversal = plan.Traversal{
		Relationship: name,
		Direction:    plan.Direction(direction),
		Label:        label,
		Filter:       strings.TrimSpace(filter),
	}

	if d.Kind == EdgeTraversal {
		if d.Target, err = stringArg(dir, "target"); err != nil {
			return d.fail(domain.ErrInvalidTraversal, "target: %v", err)
		}
		if d.Target == "" {
			d.Target = DefaultEdgeTarget
		}
	}
	return nil
}

// texts returns every author-written fragment of a structured descriptor
func (d *Descriptor) texts() []string {
	out := d.Clauses.Fragments()
	out = append(out, d.OrderBy...)
	if d.Skip != "" {
		out = append(out, d.Skip)
	}
	if d.Limit != "" {
		out = append(out, d.Limit)
	}
	return out
}

func argValue(dir *ast.Directive, name string) (any, error) {
	arg := dir.Arguments.ForName(name)
	if arg == nil || arg.Value == nil {
		return nil, nil
	}
	return arg.Value.Value(nil)
}

func stringArg(dir *ast.Directive, name string) (string, error) {
	v, err := argValue(dir, name)
	if err != nil || v == nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected a string, got %T", v)
	}
	return s, nil
}

func stringListArg(dir *ast.Directive, name string) ([]string, error) {
	v, err := argValue(dir, name)
	if err != nil || v == nil {
		return nil, err
	}
	switch list := v.(type) {
	case string:
		return []string{list}, nil
	case []any:
		out := make([]string, 0, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d: expected a string, got %T", i, item)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a list of strings, got %T", v)
}
