package graphql

import (
	"context"
	"errors"

	"github.com/99designs/gqlgen/graphql"
	"github.com/rpattn/cypherql/internal/executor"
	"github.com/rpattn/cypherql/internal/middleware"
	"github.com/rpattn/cypherql/internal/plan"
	"github.com/rpattn/cypherql/pkg/argpath"
	"github.com/vektah/gqlparser/v2/ast"
)

var errNoFieldContext = errors.New("resolve field: no gqlgen field in context")

// ResolveField compiles and runs the field gqlgen is currently resolving. It lets a
// gqlgen resolver hand one field, with its whole sub-selection, to the graph store.
// parent is bound to $parent, typically the object the enclosing resolver returned.
//
// When the request carries field loaders (see middleware.FieldLoaders), query fields
// resolved for many parents are batched into one statement per field.
func (h *Handler) ResolveField(ctx context.Context, parent any) (any, error) {
	if !graphql.HasOperationContext(ctx) {
		return nil, errNoFieldContext
	}
	oc := graphql.GetOperationContext(ctx)
	fc := graphql.GetFieldContext(ctx)
	if fc == nil || fc.Field.Field == nil {
		return nil, errNoFieldContext
	}

	write := oc.Operation != nil && oc.Operation.Operation == ast.Mutation
	if loaders := middleware.FieldLoadersFromContext(ctx); loaders != nil && !write {
		return loaders.Load(ctx, fc.Field.Field, parent)
	}

	vars := argpath.NormalizeMap(oc.Variables)
	compiled, err := h.compiler.CompileSelection(ctx, ast.SelectionSet{fc.Field.Field}, vars, write, parent)
	if err != nil {
		return nil, err
	}
	results, err := h.executor.Execute(ctx, compiled)
	if err != nil {
		return nil, err
	}

	if r, ok := resultFor(results, fc.Field.Field); ok {
		return shaped(r.Value, r.Root.Statement.Shape), nil
	}
	return nil, nil
}

// ResolveBatch resolves field once for every parent with a single statement.
// It is the batch function behind the field loaders.
func (h *Handler) ResolveBatch(ctx context.Context, field *ast.Field, parents []any) ([]any, error) {
	if !graphql.HasOperationContext(ctx) {
		return nil, errNoFieldContext
	}
	vars := argpath.NormalizeMap(graphql.GetOperationContext(ctx).Variables)

	compiled, err := h.compiler.CompileBatch(ctx, ast.SelectionSet{field}, vars, parents)
	if err != nil {
		return nil, err
	}
	results, err := h.executor.Execute(ctx, compiled)
	if err != nil {
		return nil, err
	}

	values := make([]any, len(parents))
	r, ok := resultFor(results, field)
	if !ok {
		return values, nil
	}
	batch, _ := r.Value.([]any)
	for i := range values {
		if i < len(batch) {
			values[i] = shaped(batch[i], r.Root.Statement.Shape)
		}
	}
	h.logger.Debug("resolved field batch", "field", field.Name, "parents", len(parents))
	return values, nil
}

// resultFor finds the result of the statement rooted at field itself
func resultFor(results []executor.Result, field *ast.Field) (executor.Result, bool) {
	out := field.Alias
	if out == "" {
		out = field.Name
	}
	key := plan.Path{out}.Key()
	for _, r := range results {
		if r.Root.Statement.Path.Key() == key {
			return r, true
		}
	}
	return executor.Result{}, false
}
