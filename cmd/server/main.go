package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/rpattn/cypherql/internal/auth"
	"github.com/rpattn/cypherql/internal/compiler"
	"github.com/rpattn/cypherql/internal/config"
	"github.com/rpattn/cypherql/internal/db"
	"github.com/rpattn/cypherql/internal/directive"
	"github.com/rpattn/cypherql/internal/executor"
	"github.com/rpattn/cypherql/internal/graphql"
	"github.com/rpattn/cypherql/internal/middleware"
	"github.com/rs/cors"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, found, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := config.NewLogger(cfg.Log, os.Stdout).With("service", "cypherql", "pid", os.Getpid())
	slog.SetDefault(logger)
	if !found {
		logger.Info("no config.yaml found, using defaults and env vars")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load the schema and check every directive before accepting traffic
	schema, err := directive.LoadSchemaFiles(cfg.Directives, cfg.Schema.Paths...)
	if err != nil {
		return err
	}
	catalog := directive.NewCatalog(schema, cfg.Directives)
	if err := catalog.Validate(); err != nil {
		return err
	}

	conn, err := db.NewConnection(ctx, cfg.Neo4j, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(context.Background()); err != nil {
			logger.Warn("failed to close graph store connection", "error", err)
		}
	}()

	c := compiler.New(schema, catalog, compiler.WithLogger(logger.With("component", "compiler")))
	exec := executor.New(conn, logger.With("component", "executor"))
	handler := graphql.NewHandler(c, exec, logger)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})
	logging := middleware.Logging(logger.With("component", "http"))
	scoped := auth.Middleware(cfg.Server.ParentHeader, cfg.Server.ParentKey)
	loaders := middleware.FieldLoaders(handler.ResolveBatch)

	mux := http.NewServeMux()
	mux.Handle("/query", corsHandler.Handler(logging(scoped(loaders(handler)))))
	if cfg.Server.Playground {
		mux.Handle("/", corsHandler.Handler(logging(playground.Handler("GraphQL playground", "/query"))))
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting GraphQL server", "addr", cfg.Server.Addr, "playground", cfg.Server.Playground)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server exited")
	return nil
}
