package directive

import (
	"errors"
	"fmt"

	"github.com/rpattn/cypherql/pkg/argpath"
)

// Case pairs a statement with the argument path that guards it. An empty When is unconditional.
type Case struct {
	When      string
	Statement string
}

// Unconditional reports whether the case always matches
func (c Case) Unconditional() bool {
	return c.When == ""
}

// errNoMatch is returned by ResolveStatement when the cases are exhausted
var errNoMatch = errors.New("no case matched and no unconditional case exists")

// ResolveStatement returns the statement of the first case, in order, that is unconditional
// or whose guard path resolves to a truthy value in args.
func ResolveStatement(cases []Case, args map[string]any) (string, int, error) {
	for i, c := range cases {
		if c.Unconditional() {
			return c.Statement, i, nil
		}
		v, ok, err := argpath.Lookup(args, c.When)
		if err != nil {
			return "", -1, fmt.Errorf("case %d: %w", i, err)
		}
		if ok && argpath.Truthy(v) {
			return c.Statement, i, nil
		}
	}
	return "", -1, errNoMatch
}
