package middleware

import (
	"context"
	"net/http"

	"github.com/rpattn/cypherql/internal/fieldloader"
)

type ctxKey string

const fieldLoadersKey ctxKey = "fieldLoaders"

// FieldLoaders attaches a fresh set of field loaders to every request context
func FieldLoaders(fetch fieldloader.BatchFunc, opts ...fieldloader.Option) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := ContextWithFieldLoaders(r.Context(), fieldloader.New(fetch, opts...))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ContextWithFieldLoaders returns a context carrying loaders
func ContextWithFieldLoaders(ctx context.Context, loaders *fieldloader.Loaders) context.Context {
	return context.WithValue(ctx, fieldLoadersKey, loaders)
}

// FieldLoadersFromContext retrieves the request's field loaders
func FieldLoadersFromContext(ctx context.Context) *fieldloader.Loaders {
	if l, ok := ctx.Value(fieldLoadersKey).(*fieldloader.Loaders); ok {
		return l
	}
	return nil
}
