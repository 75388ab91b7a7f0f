package fieldloader

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/graph-gophers/dataloader"
	"github.com/vektah/gqlparser/v2/ast"
)

// BatchFunc resolves field once for every parent and returns the values in parent order
type BatchFunc func(ctx context.Context, field *ast.Field, parents []any) ([]any, error)

// Loaders batches the resolution of a field across the parents of one request.
// Every requested field, with its own arguments and sub-selection, gets its own loader.
type Loaders struct {
	fetch BatchFunc
	wait  time.Duration

	mu      sync.Mutex
	loaders map[*ast.Field]*dataloader.Loader
}

// Option configures Loaders
type Option func(*Loaders)

// WithWait sets how long a loader collects parents before it runs the batch
func WithWait(d time.Duration) Option {
	return func(l *Loaders) {
		l.wait = d
	}
}

// New creates the loaders of one request
func New(fetch BatchFunc, opts ...Option) *Loaders {
	l := &Loaders{
		fetch:   fetch,
		wait:    5 * time.Millisecond,
		loaders: make(map[*ast.Field]*dataloader.Loader),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load queues parent for field and waits for the batch it lands in
func (l *Loaders) Load(ctx context.Context, field *ast.Field, parent any) (any, error) {
	raw, err := json.Marshal(parent)
	if err != nil {
		return nil, fmt.Errorf("failed to key parent: %w", err)
	}
	return l.loader(field).Load(ctx, parentKey{id: string(raw), value: parent})()
}

func (l *Loaders) loader(field *ast.Field) *dataloader.Loader {
	l.mu.Lock()
	defer l.mu.Unlock()

	if loader, ok := l.loaders[field]; ok {
		return loader
	}
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		parents := make([]any, len(keys))
		for i, k := range keys {
			parents[i] = k.Raw()
		}

		values, err := l.fetch(ctx, field, parents)
		if err == nil && len(values) != len(keys) {
			err = fmt.Errorf("batch for %s returned %d values for %d parents", field.Name, len(values), len(keys))
		}
		results := make([]*dataloader.Result, len(keys))
		for i := range results {
			if err != nil {
				results[i] = &dataloader.Result{Error: err}
				continue
			}
			results[i] = &dataloader.Result{Data: values[i]}
		}
		return results
	}
	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(l.wait))
	l.loaders[field] = loader
	return loader
}

// parentKey identifies a parent by its JSON encoding and carries the value itself
type parentKey struct {
	id    string
	value any
}

func (k parentKey) String() string   { return k.id }
func (k parentKey) Raw() interface{} { return k.value }
