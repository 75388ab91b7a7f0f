package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/config"
)

// Config holds graph store configuration
type Config struct {
	URI      string `mapstructure:"uri"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`

	MaxConnectionPoolSize int           `mapstructure:"max_connection_pool_size"`
	ConnectionTimeout     time.Duration `mapstructure:"connection_timeout"`
}

// Tx runs statements inside one store transaction
type Tx interface {
	Run(ctx context.Context, statement string, params map[string]any) ([]map[string]any, error)
}

// Connection wraps the neo4j driver
type Connection struct {
	Driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// NewConnection creates a new driver and verifies that the store is reachable
func NewConnection(ctx context.Context, cfg Config, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""), func(c *config.Config) {
		if cfg.MaxConnectionPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
		}
		if cfg.ConnectionTimeout > 0 {
			c.SocketConnectTimeout = cfg.ConnectionTimeout
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to reach graph store at %s: %w", cfg.URI, err)
	}

	return &Connection{Driver: driver, database: cfg.Database, logger: logger}, nil
}

// Close closes the driver and its connection pool
func (c *Connection) Close(ctx context.Context) error {
	if c.Driver == nil {
		return nil
	}
	return c.Driver.Close(ctx)
}

// ExecuteRead runs fn inside a read transaction
func (c *Connection) ExecuteRead(ctx context.Context, fn func(Tx) error) error {
	return c.execute(ctx, neo4j.AccessModeRead, fn)
}

// ExecuteWrite runs fn inside a write transaction. The transaction is
// committed when fn returns nil and rolled back otherwise.
func (c *Connection) ExecuteWrite(ctx context.Context, fn func(Tx) error) error {
	return c.execute(ctx, neo4j.AccessModeWrite, fn)
}

// execute runs fn in one explicit transaction. A failed transaction is never retried.
func (c *Connection) execute(ctx context.Context, mode neo4j.AccessMode, fn func(Tx) error) error {
	session := c.Driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: c.database})
	defer func() {
		if err := session.Close(ctx); err != nil {
			c.logger.Warn("failed to close session", "error", err)
		}
	}()

	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	return c.runInTx(ctx, tx, fn)
}

// explicitTx is the part of neo4j.ExplicitTransaction the connection drives
type explicitTx interface {
	Run(ctx context.Context, cypher string, params map[string]any) (neo4j.ResultWithContext, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

func (c *Connection) runInTx(ctx context.Context, tx explicitTx, fn func(Tx) error) error {
	if err := fn(storeTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			c.logger.Warn("failed to roll back transaction", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type storeTx struct {
	tx explicitTx
}

// Run executes statement and collects every record as a column map
func (s storeTx) Run(ctx context.Context, statement string, params map[string]any) ([]map[string]any, error) {
	result, err := s.tx.Run(ctx, statement, params)
	if err != nil {
		return nil, err
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]any, 0, len(records))
	for _, record := range records {
		rows = append(rows, record.AsMap())
	}
	return rows, nil
}

// DefaultConfig returns a default graph store configuration
func DefaultConfig() Config {
	return Config{
		URI:                   "neo4j://localhost:7687",
		User:                  "neo4j",
		Password:              "password",
		Database:              "neo4j",
		MaxConnectionPoolSize: 50,
		ConnectionTimeout:     5 * time.Second,
	}
}
