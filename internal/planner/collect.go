package planner

import (
	"github.com/vektah/gqlparser/v2/ast"
)

// CollectedField is a requested field after fragments are flattened and
// same-named selections are merged
type CollectedField struct {
	*ast.Field
	Selections ast.SelectionSet
}

// Output is the response key of the field
func (f *CollectedField) Output() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// CollectFields flattens fragment spreads and inline fragments and drops selections
// excluded by @skip or @include. Fields sharing an output name merge their sub-selections
// and keep the position of the first occurrence.
func CollectFields(set ast.SelectionSet, vars map[string]any) []*CollectedField {
	var out []*CollectedField
	index := make(map[string]*CollectedField)
	collect(set, vars, map[string]bool{}, func(f *ast.Field) {
		key := f.Alias
		if key == "" {
			key = f.Name
		}
		if existing, ok := index[key]; ok {
			existing.Selections = append(existing.Selections, f.SelectionSet...)
			return
		}
		cf := &CollectedField{Field: f, Selections: append(ast.SelectionSet(nil), f.SelectionSet...)}
		index[key] = cf
		out = append(out, cf)
	})
	return out
}

func collect(set ast.SelectionSet, vars map[string]any, visited map[string]bool, add func(*ast.Field)) {
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			if !shouldInclude(s.Directives, vars) {
				continue
			}
			add(s)
		case *ast.InlineFragment:
			if !shouldInclude(s.Directives, vars) {
				continue
			}
			collect(s.SelectionSet, vars, visited, add)
		case *ast.FragmentSpread:
			if !shouldInclude(s.Directives, vars) || visited[s.Name] {
				continue
			}
			if s.Definition == nil {
				continue
			}
			visited[s.Name] = true
			collect(s.Definition.SelectionSet, vars, visited, add)
		}
	}
}

func shouldInclude(dirs ast.DirectiveList, vars map[string]any) bool {
	if d := dirs.ForName("skip"); d != nil && ifArg(d, vars) {
		return false
	}
	if d := dirs.ForName("include"); d != nil && !ifArg(d, vars) {
		return false
	}
	return true
}

func ifArg(d *ast.Directive, vars map[string]any) bool {
	arg := d.Arguments.ForName("if")
	if arg == nil || arg.Value == nil {
		return false
	}
	v, err := arg.Value.Value(vars)
	if err != nil {
		return false
	}
	b, _ := v.(bool)
	return b
}
