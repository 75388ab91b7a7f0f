package executor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rpattn/cypherql/internal/compiler"
	"github.com/rpattn/cypherql/internal/cypher"
	"github.com/rpattn/cypherql/internal/db"
	"github.com/rpattn/cypherql/internal/domain"
	"github.com/rpattn/cypherql/internal/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	write     bool
	statement string
	params    map[string]any
}

// fakeStore records statements and answers them from a fixed table
type fakeStore struct {
	mu      sync.Mutex
	rows    map[string][]map[string]any
	fail    map[string]error
	calls   []call
	reads   int
	writes  int
	aborted int
}

type fakeTx struct {
	store *fakeStore
	write bool
}

func (t fakeTx) Run(_ context.Context, statement string, params map[string]any) ([]map[string]any, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.calls = append(t.store.calls, call{write: t.write, statement: statement, params: params})
	if err, ok := t.store.fail[statement]; ok {
		return nil, err
	}
	return t.store.rows[statement], nil
}

func (s *fakeStore) ExecuteRead(_ context.Context, fn func(db.Tx) error) error {
	s.mu.Lock()
	s.reads++
	s.mu.Unlock()
	return s.finish(fn(fakeTx{store: s}))
}

func (s *fakeStore) ExecuteWrite(_ context.Context, fn func(db.Tx) error) error {
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return s.finish(fn(fakeTx{store: s, write: true}))
}

func (s *fakeStore) finish(err error) error {
	if err != nil {
		s.mu.Lock()
		s.aborted++
		s.mu.Unlock()
	}
	return err
}

func root(output, text string, list bool) compiler.Root {
	return compiler.Root{
		Statement: &cypher.Statement{
			Path:   plan.Path{output},
			Column: output,
			Text:   text,
			List:   list,
		},
		Params: cypher.Params{plan.ParentParam: nil},
	}
}

func TestExecuteReadRunsEachRootInItsOwnTransaction(t *testing.T) {
	store := &fakeStore{rows: map[string][]map[string]any{
		"q1": {{"movies": map[string]any{"title": "A"}}, {"movies": map[string]any{"title": "B"}}},
		"q2": {{"me": map[string]any{"name": "ann"}}},
	}}
	op := &compiler.Operation{Roots: []compiler.Root{
		root("movies", "q1", true),
		root("me", "q2", false),
	}}

	results, err := New(store, nil).Execute(context.Background(), op)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, []any{map[string]any{"title": "A"}, map[string]any{"title": "B"}}, results[0].Value)
	assert.Equal(t, map[string]any{"name": "ann"}, results[1].Value)
	assert.Equal(t, 2, store.reads)
	assert.Equal(t, 0, store.writes)
}

func TestExecuteWriteSharesOneTransaction(t *testing.T) {
	store := &fakeStore{rows: map[string][]map[string]any{
		"w1": {{"createMovie": map[string]any{"id": "1"}}},
		"w2": {{"deleteMovie": true}},
	}}
	op := &compiler.Operation{Write: true, Roots: []compiler.Root{
		root("createMovie", "w1", false),
		root("deleteMovie", "w2", false),
	}}

	results, err := New(store, nil).Execute(context.Background(), op)
	require.NoError(t, err)

	assert.Equal(t, 1, store.writes)
	assert.Equal(t, 0, store.reads)
	require.Len(t, store.calls, 2)
	assert.Equal(t, "w1", store.calls[0].statement)
	assert.Equal(t, "w2", store.calls[1].statement)
	assert.True(t, store.calls[0].write)
	assert.Equal(t, map[string]any{"id": "1"}, results[0].Value)
	assert.Equal(t, true, results[1].Value)
}

func TestExecuteWriteFailureAbortsWholeMutation(t *testing.T) {
	storeErr := errors.New("constraint violated")
	store := &fakeStore{
		rows: map[string][]map[string]any{"w1": {{"a": 1}}},
		fail: map[string]error{"w2": storeErr},
	}
	op := &compiler.Operation{Write: true, Roots: []compiler.Root{
		root("a", "w1", false),
		root("b", "w2", false),
		root("c", "w3", false),
	}}

	_, err := New(store, nil).Execute(context.Background(), op)
	require.Error(t, err)

	var execErr *domain.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "b", execErr.Field)
	assert.ErrorIs(t, err, storeErr)
	assert.Equal(t, 1, store.aborted)
	assert.Len(t, store.calls, 2)
}

func TestExecutePassesParameters(t *testing.T) {
	store := &fakeStore{}
	r := root("movie", "q", false)
	r.Params["field_movie"] = map[string]any{"args": map[string]any{"id": "m1"}, "generated": map[string]any{}}

	results, err := New(store, nil).Execute(context.Background(), &compiler.Operation{Roots: []compiler.Root{r}})
	require.NoError(t, err)
	assert.Nil(t, results[0].Value)

	require.Len(t, store.calls, 1)
	assert.Equal(t, map[string]any(r.Params), store.calls[0].params)
}

func TestCollect(t *testing.T) {
	rows := []map[string]any{{"x": 1}, {"x": 2}}

	assert.Equal(t, []any{1, 2}, Collect(rows, "x", true))
	assert.Equal(t, 1, Collect(rows, "x", false))
	assert.Nil(t, Collect(nil, "x", false))
	assert.Equal(t, []any{}, Collect(nil, "x", true))
}

func TestCollectBatch(t *testing.T) {
	rows := []map[string]any{
		{cypher.BatchIndex: int64(2), "x": "c1"},
		{cypher.BatchIndex: int64(0), "x": "a1"},
		{cypher.BatchIndex: int64(2), "x": "c2"},
		{cypher.BatchIndex: int64(7), "x": "stray"},
	}

	assert.Equal(t, []any{[]any{"a1"}, []any{}, []any{"c1", "c2"}}, CollectBatch(rows, "x", true, 3))
	assert.Equal(t, []any{"a1", nil, "c1"}, CollectBatch(rows, "x", false, 3))
	assert.Equal(t, []any{}, CollectBatch(nil, "x", false, 0))
}

func TestExecuteBatchedRoot(t *testing.T) {
	store := &fakeStore{rows: map[string][]map[string]any{
		"b": {
			{cypher.BatchIndex: int64(1), "friends": map[string]any{"name": "bob"}},
			{cypher.BatchIndex: int64(0), "friends": map[string]any{"name": "cy"}},
		},
	}}
	r := root("friends", "b", true)
	r.Statement.Batch = true
	r.Params = cypher.Params{plan.ParentsParam: []any{map[string]any{"id": "1"}, map[string]any{"id": "2"}}}

	results, err := New(store, nil).Execute(context.Background(), &compiler.Operation{Roots: []compiler.Root{r}})
	require.NoError(t, err)
	assert.Equal(t, []any{
		[]any{map[string]any{"name": "cy"}},
		[]any{map[string]any{"name": "bob"}},
	}, results[0].Value)
	assert.Equal(t, 1, store.reads)
}
