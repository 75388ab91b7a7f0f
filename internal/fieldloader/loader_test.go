package fieldloader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"
)

func TestLoadBatchesParentsOfOneField(t *testing.T) {
	var calls atomic.Int32
	var batch []any
	l := New(func(_ context.Context, field *ast.Field, parents []any) ([]any, error) {
		calls.Add(1)
		batch = parents
		out := make([]any, len(parents))
		for i, p := range parents {
			out[i] = field.Name + ":" + p.(map[string]any)["id"].(string)
		}
		return out, nil
	}, WithWait(50*time.Millisecond))
	field := &ast.Field{Name: "friends"}

	ids := []string{"a", "b", "c"}
	values := make([]any, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := l.Load(context.Background(), field, map[string]any{"id": id})
			assert.NoError(t, err)
			values[i] = v
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Len(t, batch, 3)
	assert.Equal(t, []any{"friends:a", "friends:b", "friends:c"}, values)
}

func TestLoadKeepsFieldsApart(t *testing.T) {
	var calls atomic.Int32
	l := New(func(_ context.Context, _ *ast.Field, parents []any) ([]any, error) {
		calls.Add(1)
		return parents, nil
	})

	_, err := l.Load(context.Background(), &ast.Field{Name: "a"}, 1)
	require.NoError(t, err)
	_, err = l.Load(context.Background(), &ast.Field{Name: "a"}, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLoadErrors(t *testing.T) {
	storeErr := errors.New("connection reset")
	failing := New(func(context.Context, *ast.Field, []any) ([]any, error) {
		return nil, storeErr
	})
	_, err := failing.Load(context.Background(), &ast.Field{Name: "x"}, 1)
	assert.ErrorIs(t, err, storeErr)

	short := New(func(context.Context, *ast.Field, []any) ([]any, error) {
		return nil, nil
	})
	_, err = short.Load(context.Background(), &ast.Field{Name: "x"}, 1)
	assert.ErrorContains(t, err, "returned 0 values for 1 parents")

	_, err = short.Load(context.Background(), &ast.Field{Name: "x"}, func() {})
	assert.ErrorContains(t, err, "failed to key parent")
}
