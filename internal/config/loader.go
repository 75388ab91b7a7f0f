package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rpattn/cypherql/internal/db"
	"github.com/rpattn/cypherql/internal/directive"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. CYPHERQL_NEO4J_URI
const EnvPrefix = "CYPHERQL"

// Config is the full service configuration
type Config struct {
	Server     ServerConfig    `mapstructure:"server"`
	Neo4j      db.Config       `mapstructure:"neo4j"`
	Schema     SchemaConfig    `mapstructure:"schema"`
	Log        LogConfig       `mapstructure:"log"`
	Directives directive.Names `mapstructure:"directives"`
}

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	Playground     bool     `mapstructure:"playground"`
	// ParentHeader names the request header bound to $parent.<ParentKey>. Empty disables it.
	ParentHeader string `mapstructure:"parent_header"`
	ParentKey    string `mapstructure:"parent_key"`
}

// SchemaConfig lists the SDL files the compiler is built from
type SchemaConfig struct {
	Paths []string `mapstructure:"paths"`
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the configuration used when no file or env override is present
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
			Playground:     true,
			ParentKey:      "userId",
		},
		Neo4j:      db.DefaultConfig(),
		Schema:     SchemaConfig{Paths: []string{"schema.graphql"}},
		Log:        LogConfig{Level: "info", Format: "text"},
		Directives: directive.DefaultNames(),
	}
}

// Load reads config.yaml from configPath (if present) and applies CYPHERQL_* env overrides
func Load(configPath string) (Config, bool, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, Default())

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, false, fmt.Errorf("failed to read config: %w", err)
		}
		found = false
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, found, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Directives = cfg.Directives.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, found, err
	}
	return cfg, found, nil
}

// Validate reports settings the service cannot start with
func (c Config) Validate() error {
	if c.Neo4j.URI == "" {
		return fmt.Errorf("invalid config: neo4j.uri is required")
	}
	if c.Server.ParentHeader != "" && c.Server.ParentKey == "" {
		return fmt.Errorf("invalid config: server.parent_key is required with server.parent_header")
	}
	if len(c.Schema.Paths) == 0 {
		return fmt.Errorf("invalid config: schema.paths is required")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid config: unknown log format %q", c.Log.Format)
	}
	if err := c.Directives.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override it
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("server.playground", d.Server.Playground)
	v.SetDefault("server.parent_header", d.Server.ParentHeader)
	v.SetDefault("server.parent_key", d.Server.ParentKey)

	v.SetDefault("neo4j.uri", d.Neo4j.URI)
	v.SetDefault("neo4j.user", d.Neo4j.User)
	v.SetDefault("neo4j.password", d.Neo4j.Password)
	v.SetDefault("neo4j.database", d.Neo4j.Database)
	v.SetDefault("neo4j.max_connection_pool_size", d.Neo4j.MaxConnectionPoolSize)
	v.SetDefault("neo4j.connection_timeout", d.Neo4j.ConnectionTimeout)

	v.SetDefault("schema.paths", d.Schema.Paths)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("directives.cypher", d.Directives.Cypher)
	v.SetDefault("directives.clauses", d.Directives.Clauses)
	v.SetDefault("directives.external", d.Directives.External)
	v.SetDefault("directives.relation", d.Directives.Relation)
	v.SetDefault("directives.edge", d.Directives.Edge)
	v.SetDefault("directives.virtual", d.Directives.Virtual)
	v.SetDefault("directives.generate_id", d.Directives.GenerateID)
	v.SetDefault("directives.case_input_type", d.Directives.CaseInputType)
}
