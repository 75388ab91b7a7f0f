package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/rpattn/cypherql/internal/auth"
	"github.com/rpattn/cypherql/internal/compiler"
	"github.com/rpattn/cypherql/internal/executor"
	"github.com/rpattn/cypherql/pkg/argpath"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
)

// maxBodySize caps the size of a POSTed request
const maxBodySize = 1 << 20

// Handler serves GraphQL operations by compiling them to Cypher and running them on the store
type Handler struct {
	compiler *compiler.Compiler
	executor *executor.Executor
	logger   *slog.Logger
}

// NewHandler creates a new GraphQL handler
func NewHandler(c *compiler.Compiler, e *executor.Executor, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{compiler: c, executor: e, logger: logger}
}

// ServeHTTP accepts GET and POST requests in the usual GraphQL over HTTP shape.
// A parent bound by auth.Middleware is passed to every root statement.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	params, err := readParams(w, r)
	if err != nil {
		writeResponse(w, http.StatusBadRequest, &graphql.Response{Errors: gqlerror.List{invalidQuery(err.Error())}})
		return
	}

	var parent any
	if p, ok := auth.ParentFromContext(r.Context()); ok {
		parent = p
	}
	resp, status := h.exec(r.Context(), params, parent)
	writeResponse(w, status, resp)
}

func (h *Handler) exec(ctx context.Context, params *graphql.RawParams, parent any) (*graphql.Response, int) {
	schema := h.compiler.Schema()

	doc, errs := gqlparser.LoadQuery(schema, params.Query)
	if len(errs) > 0 {
		return &graphql.Response{Errors: errs}, http.StatusUnprocessableEntity
	}

	op := doc.Operations.ForName(params.OperationName)
	if op == nil {
		msg := "operation not found"
		if params.OperationName == "" {
			msg = "operation name is required when the document has several operations"
		}
		return &graphql.Response{Errors: gqlerror.List{invalidQuery(msg)}}, http.StatusUnprocessableEntity
	}
	if op.Operation == ast.Subscription {
		return &graphql.Response{Errors: gqlerror.List{invalidQuery("subscriptions are not supported")}}, http.StatusUnprocessableEntity
	}

	vars, verr := validator.VariableValues(schema, op, params.Variables)
	if verr != nil {
		return &graphql.Response{Errors: gqlerror.List{toGQLError(verr, op.Name)}}, http.StatusUnprocessableEntity
	}
	vars = argpath.NormalizeMap(vars)

	start := time.Now()
	compiled, err := h.compiler.Compile(ctx, op, vars, parent)
	if err != nil {
		h.logger.Error("failed to compile operation", "operation", op.Name, "error", err)
		return &graphql.Response{Errors: gqlerror.List{toGQLError(err, op.Name)}}, http.StatusOK
	}

	results, err := h.executor.Execute(ctx, compiled)
	if err != nil {
		h.logger.Error("failed to execute operation", "operation", op.Name, "error", err)
		return &graphql.Response{Errors: gqlerror.List{toGQLError(err, op.Name)}}, http.StatusOK
	}

	data, err := json.Marshal(newAssembler(vars, results).build(op.SelectionSet, rootTypeName(schema, op), nil))
	if err != nil {
		return &graphql.Response{Errors: gqlerror.List{toGQLError(fmt.Errorf("failed to encode response: %w", err), op.Name)}}, http.StatusOK
	}

	h.logger.Debug("operation served",
		"operation", op.Name,
		"roots", len(compiled.Roots),
		"duration", time.Since(start),
	)
	return &graphql.Response{Data: data}, http.StatusOK
}

func rootTypeName(schema *ast.Schema, op *ast.OperationDefinition) string {
	var def *ast.Definition
	switch op.Operation {
	case ast.Mutation:
		def = schema.Mutation
	case ast.Subscription:
		def = schema.Subscription
	default:
		def = schema.Query
	}
	if def == nil {
		return ""
	}
	return def.Name
}

func readParams(w http.ResponseWriter, r *http.Request) (*graphql.RawParams, error) {
	params := &graphql.RawParams{}
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		params.Query = q.Get("query")
		params.OperationName = q.Get("operationName")
		if raw := q.Get("variables"); raw != "" {
			dec := json.NewDecoder(strings.NewReader(raw))
			dec.UseNumber()
			if err := dec.Decode(&params.Variables); err != nil {
				return nil, fmt.Errorf("invalid variables: %w", err)
			}
		}
	case http.MethodPost:
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
		dec.UseNumber()
		if err := dec.Decode(params); err != nil {
			return nil, fmt.Errorf("invalid request body: %w", err)
		}
	default:
		return nil, fmt.Errorf("method %s is not allowed", r.Method)
	}
	if params.Query == "" {
		return nil, fmt.Errorf("no query provided")
	}
	return params, nil
}

func writeResponse(w http.ResponseWriter, status int, resp *graphql.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
