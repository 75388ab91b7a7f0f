package directive

import (
	"fmt"
	"strings"
)

// Names is the table of directive names the compiler recognizes.
// Every entry can be renamed without changing behavior.
type Names struct {
	Cypher        string `mapstructure:"cypher" yaml:"cypher"`
	Clauses       string `mapstructure:"clauses" yaml:"clauses"`
	External      string `mapstructure:"external" yaml:"external"`
	Relation      string `mapstructure:"relation" yaml:"relation"`
	Edge          string `mapstructure:"edge" yaml:"edge"`
	Virtual       string `mapstructure:"virtual" yaml:"virtual"`
	GenerateID    string `mapstructure:"generate_id" yaml:"generate_id"`
	CaseInputType string `mapstructure:"case_input_type" yaml:"case_input_type"`
}

// DefaultNames returns the stock directive names
func DefaultNames() Names {
	return Names{
		Cypher:        "cypher",
		Clauses:       "cypherClauses",
		External:      "external",
		Relation:      "relation",
		Edge:          "edge",
		Virtual:       "virtual",
		GenerateID:    "generateId",
		CaseInputType: "CypherCase",
	}
}

// WithDefaults fills empty entries from DefaultNames
func (n Names) WithDefaults() Names {
	d := DefaultNames()
	fill := func(v *string, def string) {
		if strings.TrimSpace(*v) == "" {
			*v = def
		}
	}
	fill(&n.Cypher, d.Cypher)
	fill(&n.Clauses, d.Clauses)
	fill(&n.External, d.External)
	fill(&n.Relation, d.Relation)
	fill(&n.Edge, d.Edge)
	fill(&n.Virtual, d.Virtual)
	fill(&n.GenerateID, d.GenerateID)
	fill(&n.CaseInputType, d.CaseInputType)
	return n
}

// Validate checks that every name is set and no two roles share a name
func (n Names) Validate() error {
	seen := make(map[string]string)
	for role, name := range map[string]string{
		"cypher":      n.Cypher,
		"clauses":     n.Clauses,
		"external":    n.External,
		"relation":    n.Relation,
		"edge":        n.Edge,
		"virtual":     n.Virtual,
		"generate_id": n.GenerateID,
	} {
		if name == "" {
			return fmt.Errorf("directive name for %s cannot be empty", role)
		}
		if other, ok := seen[name]; ok {
			// report in a stable order
			if other > role {
				role, other = other, role
			}
			return fmt.Errorf("directive name %q is used for both %s and %s", name, other, role)
		}
		seen[name] = role
	}
	if n.CaseInputType == "" {
		return fmt.Errorf("case input type name cannot be empty")
	}
	return nil
}

// SDL renders the directive declarations a schema needs so the parser accepts them
func SDL(n Names) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "input %s {\n  when: String\n  statement: String!\n}\n\n", n.CaseInputType)
	fmt.Fprintf(&sb, "directive @%s(statement: String, statements: [%s!]) on FIELD_DEFINITION\n", n.Cypher, n.CaseInputType)
	fmt.Fprintf(&sb, "directive @%s(match: [String!], optionalMatch: [String!], create: [String!], merge: [String!], "+
		"set: [String!], delete: [String!], detachDelete: [String!], remove: [String!], "+
		"orderBy: [String!], skip: String, limit: String, return: String) on FIELD_DEFINITION\n", n.Clauses)
	fmt.Fprintf(&sb, "directive @%s on FIELD_DEFINITION\n", n.External)
	fmt.Fprintf(&sb, "directive @%s(name: String, direction: String, label: String, filter: String) on FIELD_DEFINITION\n", n.Relation)
	fmt.Fprintf(&sb, "directive @%s(name: String, direction: String, label: String, filter: String, target: String) on FIELD_DEFINITION\n", n.Edge)
	fmt.Fprintf(&sb, "directive @%s on FIELD_DEFINITION\n", n.Virtual)
	fmt.Fprintf(&sb, "directive @%s(names: [String!]) on FIELD_DEFINITION\n", n.GenerateID)
	return sb.String()
}
