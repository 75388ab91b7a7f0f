package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/rpattn/cypherql/internal/cypher"
	"github.com/rpattn/cypherql/internal/directive"
	"github.com/rpattn/cypherql/internal/domain"
	"github.com/rpattn/cypherql/internal/plan"
	"github.com/rpattn/cypherql/internal/planner"
	"github.com/vektah/gqlparser/v2/ast"
	"golang.org/x/sync/errgroup"
)

// Compiler turns GraphQL operations into Cypher statements.
// It holds only read-only schema metadata and is safe for concurrent use.
type Compiler struct {
	schema  *ast.Schema
	catalog *directive.Catalog
	builder *planner.Builder
	logger  *slog.Logger
}

// Option configures a Compiler
type Option func(*Compiler)

// WithLogger sets the observer for planning and emission events
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compiler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Compiler for schema
func New(schema *ast.Schema, catalog *directive.Catalog, opts ...Option) *Compiler {
	c := &Compiler{
		schema:  schema,
		catalog: catalog,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.builder = planner.New(schema, catalog, c.logger)
	return c
}

// Schema returns the schema the compiler was built for
func (c *Compiler) Schema() *ast.Schema {
	return c.schema
}

// Operation is the compiled form of one GraphQL operation
type Operation struct {
	Name  string
	Write bool
	Tree  *plan.Tree
	Roots []Root
}

// Root is one statement and its parameters, ready for execution
type Root struct {
	Statement *cypher.Statement
	Params    cypher.Params
}

// Compile plans and emits op. vars must already be coerced against the operation's
// variable definitions. parent is bound to $parent in every root statement.
func (c *Compiler) Compile(ctx context.Context, op *ast.OperationDefinition, vars map[string]any, parent any) (*Operation, error) {
	compiled, err := c.CompileSelection(ctx, op.SelectionSet, vars, op.Operation == ast.Mutation, parent)
	if err != nil {
		return nil, err
	}
	compiled.Name = op.Name
	return compiled, nil
}

// CompileSelection compiles the fields of a root selection set
func (c *Compiler) CompileSelection(ctx context.Context, set ast.SelectionSet, vars map[string]any, write bool, parent any) (*Operation, error) {
	return c.compile(ctx, set, vars, write, func(r plan.Root) (Root, error) {
		return c.emit(r, parent)
	})
}

// CompileBatch compiles a read selection set so that each root statement runs once for
// every value in parents. Rows carry the position of their parent in cypher.BatchIndex.
func (c *Compiler) CompileBatch(ctx context.Context, set ast.SelectionSet, vars map[string]any, parents []any) (*Operation, error) {
	return c.compile(ctx, set, vars, false, func(r plan.Root) (Root, error) {
		return c.emitBatch(r, parents)
	})
}

func (c *Compiler) compile(ctx context.Context, set ast.SelectionSet, vars map[string]any, write bool, emit func(plan.Root) (Root, error)) (*Operation, error) {
	tree, err := c.builder.BuildSelection(set, vars, write)
	if err != nil {
		return nil, err
	}

	roots := tree.Roots()
	compiled := make([]Root, len(roots))

	g, gctx := errgroup.WithContext(ctx)
	for i, r := range roots {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			root, err := emit(r)
			if err != nil {
				return err
			}
			compiled[i] = root
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Operation{Write: write, Tree: tree, Roots: compiled}, nil
}

func (c *Compiler) emit(r plan.Root, parent any) (Root, error) {
	stmt, err := cypher.Emit(r)
	if err != nil {
		return Root{}, err
	}
	params, err := cypher.Namespace(r, parent)
	if err != nil {
		return Root{}, err
	}
	return c.verified(r, stmt, params)
}

func (c *Compiler) emitBatch(r plan.Root, parents []any) (Root, error) {
	stmt, err := cypher.EmitBatch(r)
	if err != nil {
		return Root{}, err
	}
	params, err := cypher.NamespaceBatch(r, parents)
	if err != nil {
		return Root{}, err
	}
	return c.verified(r, stmt, params)
}

func (c *Compiler) verified(r plan.Root, stmt *cypher.Statement, params cypher.Params) (Root, error) {
	if err := checkPlaceholders(r, stmt.Placeholders(), params.Keys()); err != nil {
		return Root{}, err
	}

	c.logger.Debug("compiled root field",
		"path", r.Path.Key(),
		"write", r.Write,
		"list", stmt.List,
		"batch", stmt.Batch,
		"statement", stmt.Text,
	)
	return Root{Statement: stmt, Params: params}, nil
}

// checkPlaceholders verifies that the emitted text and the parameter dictionary agree
func checkPlaceholders(r plan.Root, placeholders, keys []string) error {
	if slices.Equal(placeholders, keys) {
		return nil
	}

	var missing, unused []string
	for _, p := range placeholders {
		if !slices.Contains(keys, p) {
			missing = append(missing, p)
		}
	}
	for _, k := range keys {
		if !slices.Contains(placeholders, k) {
			unused = append(unused, k)
		}
	}
	return &domain.CompilationError{
		Root: r.Path.Key(),
		Reason: fmt.Sprintf("missing parameters [%s], unused parameters [%s]",
			strings.Join(missing, ", "), strings.Join(unused, ", ")),
		Err: domain.ErrPlaceholderMismatch,
	}
}
