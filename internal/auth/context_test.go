package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParentFromContext(t *testing.T) {
	_, ok := ParentFromContext(context.Background())
	assert.False(t, ok)

	_, ok = ParentFromContext(ContextWithParent(context.Background(), map[string]any{}))
	assert.False(t, ok)

	parent, ok := ParentFromContext(ContextWithParent(context.Background(), map[string]any{"userId": "u1"}))
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"userId": "u1"}, parent)
}

func TestMiddleware(t *testing.T) {
	var seen map[string]any
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ParentFromContext(r.Context())
	})
	h := Middleware("X-User-ID", "userId")(next)

	req := httptest.NewRequest(http.MethodPost, "/query", nil)
	req.Header.Set("X-User-ID", " u1 ")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, map[string]any{"userId": "u1"}, seen)

	seen = nil
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/query", nil))
	assert.Nil(t, seen)
}

func TestMiddlewareDisabled(t *testing.T) {
	var called bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, ok := ParentFromContext(r.Context())
		assert.False(t, ok)
	})

	req := httptest.NewRequest(http.MethodPost, "/query", nil)
	req.Header.Set("X-User-ID", "u1")
	Middleware("", "userId")(next).ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, called)
}
