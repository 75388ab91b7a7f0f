// Command cyphergen prints the Cypher statements a GraphQL operation compiles to,
// without touching a graph store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rpattn/cypherql/internal/compiler"
	"github.com/rpattn/cypherql/internal/config"
	"github.com/rpattn/cypherql/internal/directive"
	"github.com/rpattn/cypherql/pkg/argpath"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/validator"
	"gopkg.in/yaml.v3"
)

type options struct {
	configPath string
	schemas    string
	query      string
	operation  string
	variables  string
	format     string
	verbose    bool
}

type rootOutput struct {
	Path      string         `json:"path" yaml:"path"`
	Column    string         `json:"column" yaml:"column"`
	List      bool           `json:"list" yaml:"list"`
	Statement string         `json:"statement" yaml:"statement"`
	Params    map[string]any `json:"params" yaml:"params"`
}

type output struct {
	Operation string       `json:"operation,omitempty" yaml:"operation,omitempty"`
	Write     bool         `json:"write" yaml:"write"`
	Roots     []rootOutput `json:"roots" yaml:"roots"`
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", ".", "directory containing config.yaml")
	flag.StringVar(&opts.schemas, "schema", "", "comma separated SDL files (defaults to schema.paths from config)")
	flag.StringVar(&opts.query, "query", "", "file holding the GraphQL operation, - for stdin")
	flag.StringVar(&opts.operation, "operation", "", "operation name when the document has several")
	flag.StringVar(&opts.variables, "variables", "", "JSON object of variable values")
	flag.StringVar(&opts.format, "format", "yaml", "output format: yaml or json")
	flag.BoolVar(&opts.verbose, "v", false, "log planning details to stderr")
	flag.Parse()

	if err := run(opts, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "cyphergen: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options, stdin io.Reader, stdout io.Writer) error {
	cfg, _, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	} else {
		cfg.Log.Level = "error"
	}
	logger := config.NewLogger(cfg.Log, os.Stderr)

	paths := cfg.Schema.Paths
	if opts.schemas != "" {
		paths = strings.Split(opts.schemas, ",")
	}
	schema, err := directive.LoadSchemaFiles(cfg.Directives, paths...)
	if err != nil {
		return err
	}
	catalog := directive.NewCatalog(schema, cfg.Directives)
	if err := catalog.Validate(); err != nil {
		return err
	}

	query, err := readQuery(opts.query, stdin)
	if err != nil {
		return err
	}
	doc, errs := gqlparser.LoadQuery(schema, query)
	if len(errs) > 0 {
		return errs
	}
	op := doc.Operations.ForName(opts.operation)
	if op == nil {
		return fmt.Errorf("operation %q not found", opts.operation)
	}

	var raw map[string]any
	if opts.variables != "" {
		dec := json.NewDecoder(strings.NewReader(opts.variables))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("failed to parse variables: %w", err)
		}
	}
	vars, verr := validator.VariableValues(schema, op, raw)
	if verr != nil {
		return verr
	}
	vars = argpath.NormalizeMap(vars)

	c := compiler.New(schema, catalog, compiler.WithLogger(logger))
	compiled, err := c.Compile(context.Background(), op, vars, nil)
	if err != nil {
		return err
	}

	out := output{Operation: compiled.Name, Write: compiled.Write}
	for _, r := range compiled.Roots {
		out.Roots = append(out.Roots, rootOutput{
			Path:      r.Statement.Path.Key(),
			Column:    r.Statement.Column,
			List:      r.Statement.List,
			Statement: r.Statement.Text,
			Params:    r.Params,
		})
	}
	return write(stdout, opts.format, out)
}

func readQuery(path string, stdin io.Reader) (string, error) {
	if path == "" {
		return "", fmt.Errorf("no query file given")
	}
	var (
		content []byte
		err     error
	)
	if path == "-" {
		content, err = io.ReadAll(stdin)
	} else {
		content, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read query: %w", err)
	}
	return string(content), nil
}

func write(w io.Writer, format string, out output) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
