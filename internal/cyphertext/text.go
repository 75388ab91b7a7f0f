package cyphertext

import (
	"fmt"
	"strings"
)

// Escape makes s safe to embed between double quotes in a Cypher string literal
func Escape(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, c := range s {
		switch c {
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteRune(c)
		}
	}
	return sb.String()
}

// Quote returns s as a double-quoted Cypher string literal
func Quote(s string) string {
	return `"` + Escape(s) + `"`
}

// Identifier sanitizes s into a plain Cypher variable or parameter name.
// Every character outside [A-Za-z0-9_] becomes an underscore.
func Identifier(s string) string {
	if s == "" {
		return "_"
	}
	var sb strings.Builder
	sb.Grow(len(s) + 1)
	for i, c := range s {
		switch {
		case isIdentStart(c):
			sb.WriteRune(c)
		case c >= '0' && c <= '9':
			if i == 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(c)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// Name renders a label or relationship type, backtick-quoting it when it is not a plain identifier
func Name(s string) string {
	if s != "" && Identifier(s) == s {
		return s
	}
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// Segment encodes one path segment for use inside a joined identifier.
// Underscores become "_1", so a lone "_" in the joined result is always a separator
// and "_0" never occurs; callers may append "_0..." suffixes without clashing.
func Segment(s string) string {
	return strings.ReplaceAll(Identifier(s), "_", "_1")
}

// Join builds a namespaced identifier from path segments.
// Distinct segment lists always give distinct results.
func Join(segments ...string) string {
	parts := make([]string, len(segments))
	for i, s := range segments {
		parts[i] = Segment(s)
	}
	return strings.Join(parts, "_")
}

func isIdentStart(c rune) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// Params lists the parameter names referenced in text, in order of first appearance.
// References inside string literals, quoted names and comments are ignored.
func Params(text string) ([]string, error) {
	var names []string
	seen := make(map[string]bool)
	err := scan(text, func(tok token) string {
		if tok.kind == tokParam && !seen[tok.value] {
			seen[tok.value] = true
			names = append(names, tok.value)
		}
		return tok.text
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// References reports whether text uses the bare variable name outside literals and property access
func References(text, name string) (bool, error) {
	found := false
	err := scan(text, func(tok token) string {
		if tok.kind == tokIdent && tok.value == name && tok.variable {
			found = true
		}
		return tok.text
	})
	return found, err
}

// Rewrite replaces parameter references and bare variables in text.
// params maps a parameter name (without '$') to its full replacement; vars maps a variable
// name to a replacement identifier. Property keys, labels and map keys are left alone.
func Rewrite(text string, params, vars map[string]string) (string, error) {
	var sb strings.Builder
	sb.Grow(len(text))
	err := scan(text, func(tok token) string {
		switch tok.kind {
		case tokParam:
			if r, ok := params[tok.value]; ok {
				return r
			}
		case tokIdent:
			if r, ok := vars[tok.value]; ok && tok.variable {
				return r
			}
		}
		return tok.text
	}, &sb)
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

type tokenKind int

const (
	tokOther tokenKind = iota
	tokParam
	tokIdent
)

type token struct {
	kind     tokenKind
	text     string // raw text as it appears in the input
	value    string // parameter or identifier name
	variable bool   // identifier used in variable position
}

// scan walks text and hands every token to fn; the returned strings are written to out when given
func scan(text string, fn func(token) string, out ...*strings.Builder) error {
	var sb *strings.Builder
	if len(out) > 0 {
		sb = out[0]
	}
	emit := func(tok token) {
		r := fn(tok)
		if sb != nil {
			sb.WriteString(r)
		}
	}

	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case c == '\'' || c == '"':
			end, err := skipString(text, i)
			if err != nil {
				return err
			}
			emit(token{kind: tokOther, text: text[i:end]})
			i = end
		case c == '`':
			end, err := skipQuotedName(text, i)
			if err != nil {
				return err
			}
			emit(token{kind: tokOther, text: text[i:end]})
			i = end
		case c == '/' && i+1 < len(text) && text[i+1] == '/':
			end := strings.IndexByte(text[i:], '\n')
			if end == -1 {
				end = len(text)
			} else {
				end += i
			}
			emit(token{kind: tokOther, text: text[i:end]})
			i = end
		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			end := strings.Index(text[i+2:], "*/")
			if end == -1 {
				return fmt.Errorf("unterminated comment at offset %d", i)
			}
			end += i + 4
			emit(token{kind: tokOther, text: text[i:end]})
			i = end
		case c == '$':
			j := i + 1
			for j < len(text) && isIdentPart(text[j]) {
				j++
			}
			if j == i+1 {
				emit(token{kind: tokOther, text: "$"})
				i++
				continue
			}
			emit(token{kind: tokParam, text: text[i:j], value: text[i+1 : j]})
			i = j
		case c >= '0' && c <= '9':
			j := i + 1
			for j < len(text) && (isIdentPart(text[j]) || text[j] == '.') {
				if text[j] == '.' && (j+1 >= len(text) || text[j+1] < '0' || text[j+1] > '9') {
					break
				}
				j++
			}
			emit(token{kind: tokOther, text: text[i:j]})
			i = j
		case isIdentStart(rune(c)):
			j := i + 1
			for j < len(text) && isIdentPart(text[j]) {
				j++
			}
			emit(token{
				kind:     tokIdent,
				text:     text[i:j],
				value:    text[i:j],
				variable: isVariablePosition(text, i, j),
			})
			i = j
		default:
			emit(token{kind: tokOther, text: text[i : i+1]})
			i++
		}
	}
	return nil
}

// isVariablePosition rejects property keys (n.name), labels (n:Label) and map keys ({name: 1})
func isVariablePosition(text string, start, end int) bool {
	if start > 0 && (text[start-1] == '.' || text[start-1] == ':') {
		return false
	}

	prev := start - 1
	for prev >= 0 && isSpace(text[prev]) {
		prev--
	}
	next := end
	for next < len(text) && isSpace(text[next]) {
		next++
	}
	if next < len(text) && text[next] == ':' && prev >= 0 && (text[prev] == '{' || text[prev] == ',') {
		return false
	}
	return true
}

func skipString(text string, start int) (int, error) {
	quote := text[start]
	i := start + 1
	for i < len(text) {
		switch text[i] {
		case '\\':
			i += 2
			continue
		case quote:
			return i + 1, nil
		}
		i++
	}
	return 0, fmt.Errorf("unterminated string literal at offset %d", start)
}

func skipQuotedName(text string, start int) (int, error) {
	i := start + 1
	for i < len(text) {
		if text[i] == '`' {
			if i+1 < len(text) && text[i+1] == '`' {
				i += 2
				continue
			}
			return i + 1, nil
		}
		i++
	}
	return 0, fmt.Errorf("unterminated quoted name at offset %d", start)
}
