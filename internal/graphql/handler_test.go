package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	gqlgen "github.com/99designs/gqlgen/graphql"
	"github.com/rpattn/cypherql/internal/auth"
	"github.com/rpattn/cypherql/internal/compiler"
	"github.com/rpattn/cypherql/internal/db"
	"github.com/rpattn/cypherql/internal/directive"
	"github.com/rpattn/cypherql/internal/executor"
	"github.com/rpattn/cypherql/internal/fieldloader"
	"github.com/rpattn/cypherql/internal/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

type fakeStore struct {
	mu      sync.Mutex
	respond func(statement string, params map[string]any) ([]map[string]any, error)
	writes  int
	params  []map[string]any
}

type fakeTx struct{ store *fakeStore }

func (t fakeTx) Run(_ context.Context, statement string, params map[string]any) ([]map[string]any, error) {
	t.store.mu.Lock()
	t.store.params = append(t.store.params, params)
	t.store.mu.Unlock()
	return t.store.respond(statement, params)
}

func (s *fakeStore) ExecuteRead(_ context.Context, fn func(db.Tx) error) error {
	return fn(fakeTx{store: s})
}

func (s *fakeStore) ExecuteWrite(_ context.Context, fn func(db.Tx) error) error {
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return fn(fakeTx{store: s})
}

func newTestHandler(t *testing.T, store *fakeStore) *Handler {
	t.Helper()
	schema, err := directive.LoadSchemaFiles(directive.DefaultNames(), "testdata/schema.graphql")
	require.NoError(t, err)
	catalog := directive.NewCatalog(schema, directive.DefaultNames())
	require.NoError(t, catalog.Validate())
	return NewHandler(compiler.New(schema, catalog), executor.New(store, nil), nil)
}

type response struct {
	Data   json.RawMessage  `json:"data"`
	Errors []map[string]any `json:"errors"`
}

func post(t *testing.T, h http.Handler, body map[string]any) (int, response) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(raw)))

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestServeQueryKeepsRequestOrder(t *testing.T) {
	store := &fakeStore{respond: func(statement string, _ map[string]any) ([]map[string]any, error) {
		require.True(t, strings.HasSuffix(statement, "AS user"))
		return []map[string]any{{"user": map[string]any{
			"friends":    []any{map[string]any{"name": "bob"}},
			"__typename": "User",
			"name":       "ann",
		}}}, nil
	}}
	h := newTestHandler(t, store)

	code, resp := post(t, h, map[string]any{
		"query": `{ version user(id: "1") { name __typename friends { name } } }`,
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, resp.Errors)
	assert.Equal(t, `{"version":null,"user":{"name":"ann","__typename":"User","friends":[{"name":"bob"}]}}`, string(resp.Data))
}

func TestServeNestsSkipLayerRoots(t *testing.T) {
	store := &fakeStore{respond: func(string, map[string]any) ([]map[string]any, error) {
		return []map[string]any{{"owner": map[string]any{"name": "ann"}}}, nil
	}}
	h := newTestHandler(t, store)

	_, resp := post(t, h, map[string]any{"query": `{ __typename viewer { account { owner { name } } } }`})
	assert.Equal(t, `{"__typename":"Query","viewer":{"account":{"owner":{"name":"ann"}}}}`, string(resp.Data))
}

func TestServeVariables(t *testing.T) {
	store := &fakeStore{respond: func(string, map[string]any) ([]map[string]any, error) {
		return nil, nil
	}}
	h := newTestHandler(t, store)

	_, resp := post(t, h, map[string]any{
		"query":     `query Find($id: ID!) { user(id: $id) { name } }`,
		"variables": map[string]any{"id": "42"},
	})
	assert.Equal(t, `{"user":null}`, string(resp.Data))

	require.Len(t, store.params, 1)
	entry := store.params[0]["field_user"].(map[string]any)
	assert.Equal(t, map[string]any{"id": "42"}, entry["args"])
}

func TestServeBindsRequestParent(t *testing.T) {
	store := &fakeStore{respond: func(string, map[string]any) ([]map[string]any, error) {
		return []map[string]any{{"owner": map[string]any{"name": "ann"}}}, nil
	}}
	h := auth.Middleware("X-Owner-ID", "ownerId")(newTestHandler(t, store))

	raw, err := json.Marshal(map[string]any{"query": `{ viewer { account { owner { name } } } }`})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(raw))
	req.Header.Set("X-Owner-ID", "o1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.params, 1)
	assert.Equal(t, map[string]any{"ownerId": "o1"}, store.params[0]["parent"])
}

func TestServeGET(t *testing.T) {
	store := &fakeStore{respond: func(string, map[string]any) ([]map[string]any, error) {
		return []map[string]any{{"users": map[string]any{"id": "1"}}, {"users": map[string]any{"id": "2"}}}, nil
	}}
	h := newTestHandler(t, store)

	q := url.Values{"query": {`{ users { id } }`}}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/query?"+q.Encode(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"users":[{"id":"1"},{"id":"2"}]}}`, rec.Body.String())
}

func TestServeMutationUsesWriteTransaction(t *testing.T) {
	store := &fakeStore{respond: func(statement string, _ map[string]any) ([]map[string]any, error) {
		require.True(t, strings.HasPrefix(statement, "CALL apoc.cypher.doIt("))
		return []map[string]any{{"rename": map[string]any{"name": "bob"}}}, nil
	}}
	h := newTestHandler(t, store)

	_, resp := post(t, h, map[string]any{"query": `mutation { rename(id: "1", name: "bob") { name } }`})
	assert.Equal(t, `{"rename":{"name":"bob"}}`, string(resp.Data))
	assert.Equal(t, 1, store.writes)
}

func TestServeErrors(t *testing.T) {
	failing := &fakeStore{respond: func(string, map[string]any) ([]map[string]any, error) {
		return nil, errors.New("connection reset")
	}}

	tests := []struct {
		name   string
		store  *fakeStore
		body   map[string]any
		status int
		code   string
		path   []any
	}{
		{
			name:   "parse error",
			store:  failing,
			body:   map[string]any{"query": `{ user(id: "1") { name `},
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "unknown operation",
			store:  failing,
			body:   map[string]any{"query": `query A { version }`, "operationName": "B"},
			status: http.StatusUnprocessableEntity,
			code:   CodeInvalidQuery,
		},
		{
			name:   "detached traversal",
			store:  failing,
			body:   map[string]any{"query": `{ lonely { name } }`},
			status: http.StatusOK,
			code:   CodeConfiguration,
		},
		{
			name:   "store failure",
			store:  failing,
			body:   map[string]any{"query": `{ user(id: "1") { name } }`},
			status: http.StatusOK,
			code:   CodeExecution,
			path:   []any{"user"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := post(t, newTestHandler(t, tt.store), tt.body)
			assert.Equal(t, tt.status, status)
			require.NotEmpty(t, resp.Errors)
			if tt.code != "" {
				ext, _ := resp.Errors[0]["extensions"].(map[string]any)
				assert.Equal(t, tt.code, ext["code"])
			}
			if tt.path != nil {
				assert.Equal(t, tt.path, resp.Errors[0]["path"])
			}
		})
	}
}

func TestServeRejectsEmptyRequest(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/query", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveField(t *testing.T) {
	store := &fakeStore{respond: func(string, map[string]any) ([]map[string]any, error) {
		return []map[string]any{{"users": map[string]any{"name": "ann"}}}, nil
	}}
	h := newTestHandler(t, store)

	ctx, _ := fieldContext(t, h, `{ users { name } }`, map[string]any{})

	value, err := h.ResolveField(ctx, map[string]any{"id": "p"})
	require.NoError(t, err)
	assert.Equal(t, []any{object{{Key: "name", Value: "ann"}}}, value)
	assert.Equal(t, map[string]any{"id": "p"}, store.params[0]["parent"])
}

// fieldContext builds the gqlgen contexts for the first root field of query
func fieldContext(t *testing.T, h *Handler, query string, vars map[string]any) (context.Context, *ast.Field) {
	t.Helper()
	doc, errs := gqlparser.LoadQuery(h.compiler.Schema(), query)
	require.Empty(t, errs)
	field := doc.Operations[0].SelectionSet[0].(*ast.Field)

	ctx := gqlgen.WithOperationContext(context.Background(), &gqlgen.OperationContext{
		Doc:       doc,
		Operation: doc.Operations[0],
		Variables: vars,
	})
	ctx = gqlgen.WithFieldContext(ctx, &gqlgen.FieldContext{
		Field: gqlgen.CollectedField{Field: field, Selections: field.SelectionSet},
	})
	return ctx, field
}

func TestResolveFieldNormalizesVariables(t *testing.T) {
	store := &fakeStore{respond: func(string, map[string]any) ([]map[string]any, error) {
		return nil, nil
	}}
	h := newTestHandler(t, store)

	ctx, _ := fieldContext(t, h, `query($ns: [Int!]) { ranked(ns: $ns) { name } }`,
		map[string]any{"ns": []any{json.Number("1"), json.Number("2")}})
	value, err := h.ResolveField(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{}, value)

	require.Len(t, store.params, 1)
	args := store.params[0]["field_ranked"].(map[string]any)["args"]
	assert.Equal(t, map[string]any{"ns": []any{int64(1), int64(2)}}, args)
}

func TestResolveFieldBatchesParents(t *testing.T) {
	store := &fakeStore{respond: func(statement string, params map[string]any) ([]map[string]any, error) {
		require.True(t, strings.HasPrefix(statement, "UNWIND range(0, size($parents) - 1) AS __index\n"))
		var rows []map[string]any
		for i, p := range params["parents"].([]any) {
			id := p.(map[string]any)["id"]
			rows = append(rows, map[string]any{"__index": int64(i), "users": map[string]any{"name": "friend of " + id.(string)}})
		}
		return rows, nil
	}}
	h := newTestHandler(t, store)

	ctx, _ := fieldContext(t, h, `{ users { name } }`, map[string]any{})
	ctx = middleware.ContextWithFieldLoaders(ctx, fieldloader.New(h.ResolveBatch, fieldloader.WithWait(50*time.Millisecond)))

	ids := []string{"a", "b", "c"}
	values := make([]any, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := h.ResolveField(ctx, map[string]any{"id": id})
			assert.NoError(t, err)
			values[i] = v
		}()
	}
	wg.Wait()

	require.Len(t, store.params, 1)
	assert.Len(t, store.params[0]["parents"], 3)
	assert.NotContains(t, store.params[0], "parent")
	for i, id := range ids {
		assert.Equal(t, []any{object{{Key: "name", Value: "friend of " + id}}}, values[i])
	}
}

func TestResolveFieldDoesNotBatchMutations(t *testing.T) {
	store := &fakeStore{respond: func(statement string, _ map[string]any) ([]map[string]any, error) {
		require.True(t, strings.HasPrefix(statement, "CALL apoc.cypher.doIt("))
		return []map[string]any{{"rename": map[string]any{"name": "bob"}}}, nil
	}}
	h := newTestHandler(t, store)

	ctx, _ := fieldContext(t, h, `mutation { rename(id: "1", name: "bob") { name } }`, map[string]any{})
	ctx = middleware.ContextWithFieldLoaders(ctx, fieldloader.New(h.ResolveBatch))

	value, err := h.ResolveField(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, object{{Key: "name", Value: "bob"}}, value)
	assert.Equal(t, 1, store.writes)
}

func TestServeFillsExternalFieldsWithNull(t *testing.T) {
	store := &fakeStore{respond: func(statement string, _ map[string]any) ([]map[string]any, error) {
		require.True(t, strings.HasSuffix(statement, "RETURN u {.name} AS user"))
		return []map[string]any{{"user": map[string]any{"name": "ann"}}}, nil
	}}
	h := newTestHandler(t, store)

	_, resp := post(t, h, map[string]any{"query": `{ user(id: "1") { name avatar { url } profile { bio } } }`})
	assert.Empty(t, resp.Errors)
	assert.Equal(t, `{"user":{"name":"ann","avatar":null,"profile":null}}`, string(resp.Data))
}

func TestResolveFieldNeedsContext(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})
	_, err := h.ResolveField(context.Background(), nil)
	assert.ErrorIs(t, err, errNoFieldContext)

	_, err = h.ResolveBatch(context.Background(), &ast.Field{Name: "users"}, []any{nil})
	assert.ErrorIs(t, err, errNoFieldContext)
}

func TestToGQLError(t *testing.T) {
	assert.Equal(t, CodeTimeout, toGQLError(context.DeadlineExceeded, "op").Extensions["code"])
	assert.Equal(t, CodeCancelled, toGQLError(context.Canceled, "op").Extensions["code"])
	assert.Equal(t, CodeInternal, toGQLError(errors.New("x"), "op").Extensions["code"])
}
