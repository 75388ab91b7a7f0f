package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const parentKey contextKey = "parent"

// ContextWithParent returns a new context whose root statements see parent as $parent.
func ContextWithParent(ctx context.Context, parent map[string]any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, parentKey, parent)
}

// ParentFromContext retrieves the request scoped parent value from the context, if any.
func ParentFromContext(ctx context.Context) (map[string]any, bool) {
	if ctx == nil {
		return nil, false
	}
	parent, ok := ctx.Value(parentKey).(map[string]any)
	if !ok || len(parent) == 0 {
		return nil, false
	}
	return parent, true
}

// Middleware binds the value of header to $parent.<key> for every request carrying it.
// Requests without the header pass through unscoped. An empty header disables it.
func Middleware(header, key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if header == "" || key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			value := strings.TrimSpace(r.Header.Get(header))
			if value == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := ContextWithParent(r.Context(), map[string]any{key: value})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
