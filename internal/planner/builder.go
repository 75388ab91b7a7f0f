package planner

import (
	"log/slog"

	"github.com/rpattn/cypherql/internal/directive"
	"github.com/rpattn/cypherql/internal/domain"
	"github.com/rpattn/cypherql/internal/plan"
	"github.com/vektah/gqlparser/v2/ast"
)

// Builder walks requested selections against the schema and produces plan trees
type Builder struct {
	schema  *ast.Schema
	catalog *directive.Catalog
	logger  *slog.Logger
}

// New creates a Builder. A nil logger discards output.
func New(schema *ast.Schema, catalog *directive.Catalog, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{
		schema:  schema,
		catalog: catalog,
		logger:  logger,
	}
}

// Build plans every root field of op. vars must already be coerced.
func (b *Builder) Build(op *ast.OperationDefinition, vars map[string]any) (*plan.Tree, error) {
	return b.BuildSelection(op.SelectionSet, vars, op.Operation == ast.Mutation)
}

// BuildSelection plans the fields of a root selection set
func (b *Builder) BuildSelection(set ast.SelectionSet, vars map[string]any, write bool) (*plan.Tree, error) {
	w := &walker{Builder: b, vars: vars, write: write}
	if err := w.walkRoots(set, nil); err != nil {
		return nil, err
	}
	return plan.NewTree(w.roots), nil
}

type walker struct {
	*Builder
	vars  map[string]any
	write bool
	roots []plan.Root
}

// walkRoots handles fields that have no planned ancestor. A planned field starts a new
// tree; an unplanned object field is walked further so its planned descendants become roots.
func (w *walker) walkRoots(set ast.SelectionSet, path plan.Path) error {
	for _, f := range CollectFields(set, w.vars) {
		if f.Definition == nil || f.Name == "__typename" {
			continue
		}
		p := path.Append(f.Output())

		d := w.describe(f)
		if d.Kind == directive.External {
			w.logger.Debug("field resolved externally", "path", p.Key())
			continue
		}
		node, err := w.catalog.Extract(d, f.ArgumentMap(w.vars))
		if err != nil {
			return err
		}

		if node == nil {
			if w.composite(f) {
				if err := w.walkRoots(f.Selections, p); err != nil {
					return err
				}
			}
			continue
		}

		if !plan.CanBeRoot(node) {
			return domain.NewConfigurationError(d.Type, d.Field, domain.ErrDetachedPlan,
				"%s directive at %s has no planned parent", d.Kind, p.Key())
		}
		if w.composite(f) {
			if err := w.fill(&node.Info().Selection, node, f.Selections, p, nil); err != nil {
				return err
			}
		} else {
			node.Info().Leaf = true
		}
		w.logger.Debug("planned root field", "path", p.Key(), "kind", d.Kind.String())
		w.roots = append(w.roots, plan.Root{Path: p, Node: node, Write: w.write})
	}
	return nil
}

// fill records the sub-selection of owner into sel. virtual carries the arguments of
// an enclosing group; it is handed to every plan created directly below it.
// Fields the store does not supply are kept as External so the response still has their keys.
func (w *walker) fill(sel *plan.Selection, owner plan.Node, set ast.SelectionSet, path plan.Path, virtual map[string]any) error {
	edge, _ := owner.(*plan.EdgeTraversal)
	// an implicit group has no binding of its own, so its plain fields are not store backed
	vg, _ := owner.(*plan.VirtualGroup)
	implicit := vg != nil && vg.Implicit

	for _, f := range CollectFields(set, w.vars) {
		if f.Definition == nil {
			continue
		}
		out := f.Output()
		p := path.Append(out)

		if f.Name == "__typename" {
			typeName := ""
			if f.ObjectDefinition != nil {
				typeName = f.ObjectDefinition.Name
			}
			sel.AddField(plan.Field{Output: out, Name: f.Name, Kind: plan.Typename, TypeName: typeName})
			continue
		}

		if edge != nil && f.Name == edge.Target && w.composite(f) {
			endpoint := &plan.Endpoint{Output: out, Field: f.Name}
			if err := w.fill(&endpoint.Selection, nil, f.Selections, p, nil); err != nil {
				return err
			}
			edge.Endpoints = append(edge.Endpoints, endpoint)
			sel.AddField(plan.Field{Output: out, Name: f.Name, Kind: plan.Object})
			continue
		}

		d := w.describe(f)
		if d.Kind == directive.External {
			sel.AddField(plan.Field{Output: out, Name: f.Name, Kind: plan.External})
			continue
		}
		args := f.ArgumentMap(w.vars)
		node, err := w.catalog.Extract(d, args)
		if err != nil {
			return err
		}

		if node != nil {
			info := node.Info()
			if virtual != nil {
				info.Virtual = virtual
			}
			var childVirtual map[string]any
			if group, ok := node.(*plan.VirtualGroup); ok {
				childVirtual = group.Args
			}
			if w.composite(f) {
				if err := w.fill(&info.Selection, node, f.Selections, p, childVirtual); err != nil {
					return err
				}
			} else {
				info.Leaf = true
			}
			w.logger.Debug("planned field", "path", p.Key(), "kind", d.Kind.String())
			sel.AddChild(plan.Field{Output: out, Name: f.Name}, node)
			continue
		}

		if !w.composite(f) {
			kind := plan.Scalar
			if implicit {
				kind = plan.External
			}
			sel.AddField(plan.Field{Output: out, Name: f.Name, Kind: kind})
			continue
		}

		// unplanned object field: a group if something below it is planned, null otherwise
		if args == nil {
			args = map[string]any{}
		}
		group := &plan.VirtualGroup{
			Base: plan.Base{
				Type:      d.Type,
				Field:     d.Field,
				List:      d.List,
				Args:      args,
				Generated: map[string]any{},
				Virtual:   virtual,
			},
			Implicit: true,
		}
		if err := w.fill(&group.Selection, group, f.Selections, p, args); err != nil {
			return err
		}
		if len(group.Children) == 0 {
			w.logger.Debug("object field resolved externally", "path", p.Key())
			sel.AddField(plan.Field{Output: out, Name: f.Name, Kind: plan.External})
			continue
		}
		sel.AddChild(plan.Field{Output: out, Name: f.Name}, group)
	}
	return nil
}

func (w *walker) describe(f *CollectedField) *directive.Descriptor {
	typeName := ""
	if f.ObjectDefinition != nil {
		typeName = f.ObjectDefinition.Name
	}
	return w.catalog.Describe(typeName, f.Definition)
}

// composite reports whether the field's output type has sub-fields
func (w *walker) composite(f *CollectedField) bool {
	if f.Definition == nil || f.Definition.Type == nil {
		return false
	}
	def, ok := w.schema.Types[f.Definition.Type.Name()]
	if !ok {
		return false
	}
	switch def.Kind {
	case ast.Object, ast.Interface, ast.Union:
		return true
	}
	return false
}
