package cypher

import (
	"fmt"
	"sort"

	"github.com/rpattn/cypherql/internal/domain"
	"github.com/rpattn/cypherql/internal/plan"
)

// Params is the parameter dictionary of one root statement
type Params map[string]any

// Keys returns the namespaced keys, sorted. The parent entries are not namespaced and are left out.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		if k == plan.ParentParam || k == plan.ParentsParam {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Namespace builds the parameters for root. It walks the tree in the emitter's order and
// gives every node that references an argument group one entry under its path key.
func Namespace(root plan.Root, parent any) (Params, error) {
	params := Params{plan.ParentParam: parent}
	owners := make(map[string]string)

	err := plan.Walk(root.Path, root.Node, func(p plan.Path, n plan.Node) error {
		b := n.Info()
		if !b.NeedsParams() {
			return nil
		}
		key := plan.ParamKey(p)
		if other, ok := owners[key]; ok {
			return &domain.CompilationError{
				Root:   root.Path.Key(),
				Reason: fmt.Sprintf("%s and %s both map to %s", other, p.Key(), key),
				Err:    domain.ErrKeyCollision,
			}
		}
		owners[key] = p.Key()

		entry := map[string]any{
			string(plan.GroupArgs):      orEmpty(b.Args),
			string(plan.GroupGenerated): orEmpty(b.Generated),
		}
		if b.Virtual != nil || b.Uses(plan.GroupVirtual) {
			entry[string(plan.GroupVirtual)] = orEmpty(b.Virtual)
		}
		params[key] = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return params, nil
}

// NamespaceBatch builds the parameters of a statement emitted with EmitBatch
func NamespaceBatch(root plan.Root, parents []any) (Params, error) {
	params, err := Namespace(root, nil)
	if err != nil {
		return nil, err
	}
	delete(params, plan.ParentParam)
	if parents == nil {
		parents = []any{}
	}
	params[plan.ParentsParam] = parents
	return params, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
