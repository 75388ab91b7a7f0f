package graphql

import (
	"bytes"
	"encoding/json"

	"github.com/rpattn/cypherql/internal/cypher"
	"github.com/rpattn/cypherql/internal/executor"
	"github.com/rpattn/cypherql/internal/plan"
	"github.com/rpattn/cypherql/internal/planner"
	"github.com/vektah/gqlparser/v2/ast"
)

type member struct {
	Key   string
	Value any
}

// object is a JSON object that keeps its keys in response order
type object []member

func (o object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(m.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(m.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the value stored under key
func (o object) Get(key string) (any, bool) {
	for _, m := range o {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// shaped reorders a store value so its keys follow the projection order.
// Keys the store did not return are null.
func shaped(value any, shape []cypher.Shape) any {
	if len(shape) == 0 {
		return value
	}
	switch v := value.(type) {
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = shaped(item, shape)
		}
		return out
	case map[string]any:
		out := make(object, 0, len(shape))
		for _, s := range shape {
			field, ok := v[s.Output]
			if !ok {
				out = append(out, member{Key: s.Output})
				continue
			}
			if s.Nested {
				field = shaped(field, s.Fields)
			}
			out = append(out, member{Key: s.Output, Value: field})
		}
		return out
	}
	return value
}

// assembler builds the data object of an operation from its root results
type assembler struct {
	vars   map[string]any
	values map[string]any
	paths  []plan.Path
}

func newAssembler(vars map[string]any, results []executor.Result) *assembler {
	a := &assembler{vars: vars, values: make(map[string]any, len(results))}
	for _, r := range results {
		stmt := r.Root.Statement
		a.values[stmt.Path.Key()] = shaped(r.Value, stmt.Shape)
		a.paths = append(a.paths, stmt.Path)
	}
	return a
}

// build walks the requested selection. Roots land at their path; fields the compiler
// left to other resolvers are null.
func (a *assembler) build(set ast.SelectionSet, typeName string, path plan.Path) object {
	fields := planner.CollectFields(set, a.vars)
	out := make(object, 0, len(fields))
	for _, f := range fields {
		p := path.Append(f.Output())
		out = append(out, member{Key: f.Output(), Value: a.value(f, typeName, p)})
	}
	return out
}

func (a *assembler) value(f *planner.CollectedField, typeName string, p plan.Path) any {
	if f.Name == "__typename" {
		return typeName
	}
	if v, ok := a.values[p.Key()]; ok {
		return v
	}
	if !a.below(p) || f.Definition == nil || f.Definition.Type == nil {
		return nil
	}
	return a.build(f.Selections, f.Definition.Type.Name(), p)
}

// below reports whether some root lives under p
func (a *assembler) below(p plan.Path) bool {
	for _, rp := range a.paths {
		if len(rp) > len(p) && rp.HasPrefix(p) {
			return true
		}
	}
	return false
}
