package rules

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokName
	tokKeyword
	tokPlaceholder
	tokOp
)

// keywords are reserved words. Only the boolean operators and the three
// constants have a place in the grammar; the rest exist so that statements
// such as "import os" or "lambda: 0" fail to parse instead of being read as
// names.
var keywords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true, "is": true,
	"True": true, "False": true, "None": true,
	"import": true, "from": true, "lambda": true, "if": true, "else": true,
	"elif": true, "for": true, "while": true, "def": true, "class": true,
	"return": true, "yield": true, "await": true, "async": true, "with": true,
	"as": true, "del": true, "global": true, "nonlocal": true, "pass": true,
	"raise": true, "try": true, "except": true, "finally": true,
	"assert": true, "break": true, "continue": true,
}

// operators recognised by the lexer, longest first. Anything else,
// including "=" and ";", is a syntax error.
var operators = []string{
	"**", "//", "==", "!=", "<=", ">=",
	"+", "-", "*", "/", "%", "<", ">",
	"(", ")", "[", "]", "{", "}", ",", ".", ":",
}

type token struct {
	kind tokenKind
	text string
	pos  int
	// component and key of a placeholder
	component string
	key       string
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return fmt.Sprintf("%q", t.text)
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func lex(src string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '$':
			tok, next, err := lexPlaceholder(src, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = next

		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			start := i
			for i < len(src) && isDigit(src[i]) {
				i++
			}
			if i < len(src) && src[i] == '.' {
				i++
				for i < len(src) && isDigit(src[i]) {
					i++
				}
			}
			if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
				j := i + 1
				if j < len(src) && (src[j] == '+' || src[j] == '-') {
					j++
				}
				if j < len(src) && isDigit(src[j]) {
					for j < len(src) && isDigit(src[j]) {
						j++
					}
					i = j
				}
			}
			tokens = append(tokens, token{kind: tokNumber, text: src[start:i], pos: start})

		case c == '\'' || c == '"':
			tok, next, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = next

		case isIdentStart(c):
			start := i
			for i < len(src) && (isIdentStart(src[i]) || isDigit(src[i])) {
				i++
			}
			word := src[start:i]
			kind := tokName
			if keywords[word] {
				kind = tokKeyword
			}
			tokens = append(tokens, token{kind: kind, text: word, pos: start})

		default:
			op := ""
			for _, candidate := range operators {
				if strings.HasPrefix(src[i:], candidate) {
					op = candidate
					break
				}
			}
			if op == "" {
				return nil, fmt.Errorf("unexpected character %q at offset %d", c, i)
			}
			tokens = append(tokens, token{kind: tokOp, text: op, pos: i})
			i += len(op)
		}
	}

	return append(tokens, token{kind: tokEOF, pos: len(src)}), nil
}

// lexPlaceholder reads "${Component.Key}". The reference is split at the
// first dot, so keys may contain dots but component names may not.
func lexPlaceholder(src string, start int) (token, int, error) {
	if !strings.HasPrefix(src[start:], "${") {
		return token{}, 0, fmt.Errorf("unexpected character '$' at offset %d", start)
	}
	end := strings.IndexByte(src[start:], '}')
	if end < 0 {
		return token{}, 0, fmt.Errorf("unterminated placeholder at offset %d", start)
	}
	ref := src[start+2 : start+end]
	component, key, ok := strings.Cut(ref, ".")
	component = strings.TrimSpace(component)
	key = strings.TrimSpace(key)
	if !ok || component == "" || key == "" {
		return token{}, 0, fmt.Errorf("placeholder %q must have the form ${Component.Key}", src[start:start+end+1])
	}

	return token{
		kind:      tokPlaceholder,
		text:      src[start : start+end+1],
		pos:       start,
		component: component,
		key:       key,
	}, start + end + 1, nil
}

func lexString(src string, start int) (token, int, error) {
	quote := src[start]
	var b strings.Builder
	i := start + 1
	for i < len(src) {
		c := src[i]
		switch {
		case c == quote:
			return token{kind: tokString, text: b.String(), pos: start}, i + 1, nil
		case c == '\n':
			return token{}, 0, fmt.Errorf("unterminated string at offset %d", start)
		case c == '\\' && i+1 < len(src):
			switch src[i+1] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\', '\'', '"':
				b.WriteByte(src[i+1])
			default:
				b.WriteByte('\\')
				b.WriteByte(src[i+1])
			}
			i += 2
		default:
			b.WriteByte(c)
			i++
		}
	}
	return token{}, 0, fmt.Errorf("unterminated string at offset %d", start)
}
