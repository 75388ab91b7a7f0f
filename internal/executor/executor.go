package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/rpattn/cypherql/internal/compiler"
	"github.com/rpattn/cypherql/internal/cypher"
	"github.com/rpattn/cypherql/internal/db"
	"github.com/rpattn/cypherql/internal/domain"
	"github.com/rpattn/cypherql/internal/plan"
	"golang.org/x/sync/errgroup"
)

// Store opens transactions against the graph store
type Store interface {
	ExecuteRead(ctx context.Context, fn func(db.Tx) error) error
	ExecuteWrite(ctx context.Context, fn func(db.Tx) error) error
}

// Result is the value of one root field
type Result struct {
	Root  compiler.Root
	Value any
}

// Executor runs compiled operations
type Executor struct {
	store  Store
	logger *slog.Logger
}

// New creates an Executor
func New(store Store, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{store: store, logger: logger}
}

// Execute runs every root of op. Writes share one transaction and run in order,
// so a failure rolls back the whole mutation. Reads run concurrently, each in its own transaction.
func (e *Executor) Execute(ctx context.Context, op *compiler.Operation) ([]Result, error) {
	results := make([]Result, len(op.Roots))

	if op.Write {
		err := e.store.ExecuteWrite(ctx, func(tx db.Tx) error {
			for i, root := range op.Roots {
				value, err := e.run(ctx, tx, root)
				if err != nil {
					return err
				}
				results[i] = Result{Root: root, Value: value}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, root := range op.Roots {
		g.Go(func() error {
			return e.store.ExecuteRead(gctx, func(tx db.Tx) error {
				value, err := e.run(gctx, tx, root)
				if err != nil {
					return err
				}
				results[i] = Result{Root: root, Value: value}
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Executor) run(ctx context.Context, tx db.Tx, root compiler.Root) (any, error) {
	stmt := root.Statement
	start := time.Now()

	rows, err := tx.Run(ctx, stmt.Text, map[string]any(root.Params))
	if err != nil {
		e.logger.Error("statement failed", "path", stmt.Path.Key(), "error", err)
		return nil, &domain.ExecutionError{Field: stmt.Path.Key(), Err: err}
	}

	e.logger.Debug("statement executed",
		"path", stmt.Path.Key(),
		"rows", len(rows),
		"duration", time.Since(start),
	)
	if stmt.Batch {
		parents, _ := root.Params[plan.ParentsParam].([]any)
		return CollectBatch(rows, stmt.Column, stmt.List, len(parents)), nil
	}
	return Collect(rows, stmt.Column, stmt.List), nil
}

// Collect turns the rows of one statement into the field value.
// List fields get every row; singular fields get the first row or nil.
func Collect(rows []map[string]any, column string, list bool) any {
	if list {
		values := make([]any, 0, len(rows))
		for _, row := range rows {
			values = append(values, row[column])
		}
		return values
	}
	if len(rows) == 0 {
		return nil
	}
	return rows[0][column]
}

// CollectBatch splits the rows of a batched statement by parent position.
// The result holds one field value per parent, as Collect would build it.
func CollectBatch(rows []map[string]any, column string, list bool, n int) []any {
	values := make([]any, n)
	if list {
		for i := range values {
			values[i] = []any{}
		}
	}
	for _, row := range rows {
		i, ok := batchIndex(row[cypher.BatchIndex])
		if !ok || i < 0 || i >= n {
			continue
		}
		if list {
			values[i] = append(values[i].([]any), row[column])
		} else if values[i] == nil {
			values[i] = row[column]
		}
	}
	return values
}

func batchIndex(v any) (int, bool) {
	switch i := v.(type) {
	case int64:
		return int(i), true
	case int:
		return i, true
	}
	return 0, false
}
