package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rpattn/cypherql/internal/fieldloader"
	"github.com/stretchr/testify/assert"
	"github.com/vektah/gqlparser/v2/ast"
)

func TestFieldLoadersArePerRequest(t *testing.T) {
	fetch := func(_ context.Context, _ *ast.Field, parents []any) ([]any, error) {
		return parents, nil
	}

	var seen []*fieldloader.Loaders
	h := FieldLoaders(fetch)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, FieldLoadersFromContext(r.Context()))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/query", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/query", nil))

	assert.Len(t, seen, 2)
	assert.NotNil(t, seen[0])
	assert.NotSame(t, seen[0], seen[1])
	assert.Nil(t, FieldLoadersFromContext(context.Background()))
}
