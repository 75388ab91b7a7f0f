package graphql

import (
	"context"
	"errors"

	"github.com/rpattn/cypherql/internal/domain"
	"github.com/rpattn/cypherql/internal/plan"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Error codes reported in the extensions of a GraphQL error
const (
	CodeConfiguration = "CONFIGURATION_ERROR"
	CodeCompilation   = "COMPILATION_ERROR"
	CodeExecution     = "EXECUTION_ERROR"
	CodeInvalidQuery  = "GRAPHQL_VALIDATION_FAILED"
	CodeCancelled     = "CANCELLED"
	CodeTimeout       = "DEADLINE_EXCEEDED"
	CodeInternal      = "INTERNAL_ERROR"
)

// toGQLError maps compiler and store failures to GraphQL errors
func toGQLError(err error, operation string) *gqlerror.Error {
	var gqlErr *gqlerror.Error
	if errors.As(err, &gqlErr) {
		return gqlErr
	}

	ext := map[string]any{"operation": operation}
	out := &gqlerror.Error{Message: err.Error(), Err: err, Extensions: ext}

	var (
		cfgErr  *domain.ConfigurationError
		compErr *domain.CompilationError
		execErr *domain.ExecutionError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		ext["code"] = CodeTimeout
	case errors.Is(err, context.Canceled):
		ext["code"] = CodeCancelled
	case errors.As(err, &cfgErr):
		ext["code"] = CodeConfiguration
		ext["type"] = cfgErr.Type
		ext["field"] = cfgErr.Field
	case errors.As(err, &compErr):
		ext["code"] = CodeCompilation
		out.Path = responsePath(compErr.Root)
	case errors.As(err, &execErr):
		ext["code"] = CodeExecution
		out.Path = responsePath(execErr.Field)
	default:
		ext["code"] = CodeInternal
	}
	return out
}

func responsePath(key string) ast.Path {
	if key == "" {
		return nil
	}
	var path ast.Path
	for _, seg := range plan.ParsePathKey(key) {
		path = append(path, ast.PathName(seg))
	}
	return path
}

func invalidQuery(message string) *gqlerror.Error {
	return &gqlerror.Error{
		Message:    message,
		Extensions: map[string]any{"code": CodeInvalidQuery},
	}
}
