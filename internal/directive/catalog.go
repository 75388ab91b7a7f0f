package directive

import (
	"errors"
	"sort"

	"github.com/rpattn/cypherql/internal/cyphertext"
	"github.com/rpattn/cypherql/internal/domain"
	"github.com/rpattn/cypherql/internal/plan"
	"github.com/vektah/gqlparser/v2/ast"
)

// Catalog maps (type, field) to parsed directive descriptors.
// It is built once per schema and is safe for concurrent use.
type Catalog struct {
	names  Names
	ids    IDGenerator
	fields map[string]map[string]*Descriptor
	errs   []error
}

// Option configures a Catalog
type Option func(*Catalog)

// WithIDGenerator overrides the generator used for @generateId fields
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Catalog) {
		if g != nil {
			c.ids = g
		}
	}
}

// NewCatalog parses the directives of every object and interface field of schema
func NewCatalog(schema *ast.Schema, names Names, opts ...Option) *Catalog {
	c := &Catalog{
		names:  names.WithDefaults(),
		ids:    UUIDGenerator{},
		fields: make(map[string]map[string]*Descriptor),
	}
	for _, opt := range opts {
		opt(c)
	}

	typeNames := make([]string, 0, len(schema.Types))
	for name, def := range schema.Types {
		if def.BuiltIn || (def.Kind != ast.Object && def.Kind != ast.Interface) {
			continue
		}
		typeNames = append(typeNames, name)
	}
	sort.Strings(typeNames)

	for _, typeName := range typeNames {
		def := schema.Types[typeName]
		fields := make(map[string]*Descriptor, len(def.Fields))
		for _, f := range def.Fields {
			d := Parse(typeName, f, c.names)
			if d.err != nil {
				c.errs = append(c.errs, d.err)
			}
			fields[f.Name] = d
		}
		c.fields[typeName] = fields
	}
	return c
}

// Validate returns every configuration error found in the schema
func (c *Catalog) Validate() error {
	return errors.Join(c.errs...)
}

// Describe returns the descriptor for typeName.def, parsing it when the catalog has not seen it
func (c *Catalog) Describe(typeName string, def *ast.FieldDefinition) *Descriptor {
	if fields, ok := c.fields[typeName]; ok {
		if d, ok := fields[def.Name]; ok {
			return d
		}
	}
	return Parse(typeName, def, c.names)
}

// ExtractField is Describe followed by Extract
func (c *Catalog) ExtractField(typeName string, def *ast.FieldDefinition, args map[string]any) (plan.Node, error) {
	return c.Extract(c.Describe(typeName, def), args)
}

// Extract turns a descriptor and the field's resolved arguments into a plan node.
// It returns nil when the field is resolved outside the store.
func (c *Catalog) Extract(d *Descriptor, args map[string]any) (plan.Node, error) {
	if d.err != nil {
		return nil, d.err
	}
	if args == nil {
		args = map[string]any{}
	}

	switch d.Kind {
	case Raw:
		stmt, _, err := ResolveStatement(d.Cases, args)
		if err != nil {
			return nil, domain.NewConfigurationError(d.Type, d.Field, domain.ErrNoMatchingStatement, "%v", err)
		}
		base, err := c.base(d, args, stmt)
		if err != nil {
			return nil, err
		}
		return &plan.RawStatement{Base: base, Statement: stmt}, nil

	case Structured:
		base, err := c.base(d, args, d.texts()...)
		if err != nil {
			return nil, err
		}
		return &plan.Structured{
			Base:    base,
			Clauses: d.Clauses,
			OrderBy: d.OrderBy,
			Skip:    d.Skip,
			Limit:   d.Limit,
			Return:  d.Return,
		}, nil

	case NodeTraversal:
		base, err := c.base(d, args, d.Traversal.Filter)
		if err != nil {
			return nil, err
		}
		return &plan.NodeTraversal{Base: base, Traversal: d.Traversal}, nil

	case EdgeTraversal:
		base, err := c.base(d, args, d.Traversal.Filter)
		if err != nil {
			return nil, err
		}
		return &plan.EdgeTraversal{Base: base, Traversal: d.Traversal, Target: d.Target}, nil

	case Virtual:
		base, err := c.base(d, args)
		if err != nil {
			return nil, err
		}
		return &plan.VirtualGroup{Base: base}, nil
	}
	return nil, nil
}

func (c *Catalog) base(d *Descriptor, args map[string]any, texts ...string) (plan.Base, error) {
	groups, err := groupsOf(texts...)
	if err != nil {
		return plan.Base{}, domain.NewConfigurationError(d.Type, d.Field, domain.ErrMalformedText, "%v", err)
	}

	generated := make(map[string]any, len(d.GenerateIDs))
	for _, name := range d.GenerateIDs {
		generated[name] = c.ids.NewID()
	}

	return plan.Base{
		Type:      d.Type,
		Field:     d.Field,
		List:      d.List,
		Args:      args,
		Generated: generated,
		Groups:    groups,
	}, nil
}

// groupsOf returns the argument groups referenced across texts, in a fixed order
func groupsOf(texts ...string) ([]plan.ArgGroup, error) {
	used := make(map[string]bool)
	for _, text := range texts {
		params, err := cyphertext.Params(text)
		if err != nil {
			return nil, err
		}
		for _, p := range params {
			used[p] = true
		}
	}

	var groups []plan.ArgGroup
	for _, g := range []plan.ArgGroup{plan.GroupArgs, plan.GroupGenerated, plan.GroupVirtual} {
		if used[string(g)] {
			groups = append(groups, g)
		}
	}
	return groups, nil
}
