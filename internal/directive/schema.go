package directive

import (
	"fmt"
	"os"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

// LoadSchema parses the given SDL sources together with the directive declarations for names
func LoadSchema(names Names, sources ...*ast.Source) (*ast.Schema, error) {
	names = names.WithDefaults()
	if err := names.Validate(); err != nil {
		return nil, err
	}

	all := make([]*ast.Source, 0, len(sources)+1)
	all = append(all, &ast.Source{Name: "cypher_directives.graphql", Input: SDL(names), BuiltIn: true})
	all = append(all, sources...)

	schema, err := gqlparser.LoadSchema(all...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	return schema, nil
}

// LoadSchemaFiles reads SDL files from disk and loads them with LoadSchema
func LoadSchemaFiles(names Names, paths ...string) (*ast.Schema, error) {
	sources := make([]*ast.Source, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
		}
		sources = append(sources, &ast.Source{Name: path, Input: string(content)})
	}
	return LoadSchema(names, sources...)
}
