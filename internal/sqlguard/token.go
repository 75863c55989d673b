package sqlguard

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenQuotedIdent
	tokenNumber
	tokenString
	tokenSymbol
)

type token struct {
	kind  tokenKind
	value string
}

// tokenize splits a statement into identifiers, numbers, string literals,
// and symbols. Comments are dropped. Identifier values are lowercased so all
// later checks are case-insensitive.
func tokenize(sqlText string) ([]token, error) {
	runes := []rune(sqlText)
	tokens := make([]token, 0, len(runes)/4)
	i := 0

	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}

		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			closed := false
			for i+1 < len(runes) {
				if runes[i] == '*' && runes[i+1] == '/' {
					i += 2
					closed = true
					break
				}
				i++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated block comment")
			}

		case r == '\'':
			value, next, err := readQuoted(runes, i, '\'')
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokenString, value: value})
			i = next

		case r == '"':
			value, next, err := readQuoted(runes, i, '"')
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokenQuotedIdent, value: strings.ToLower(value)})
			i = next

		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			tokens = append(tokens, token{kind: tokenIdent, value: strings.ToLower(string(runes[start:i]))})

		case unicode.IsDigit(r) || (r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.' || runes[i] == 'e' || runes[i] == 'E' ||
				((runes[i] == '+' || runes[i] == '-') && i > start && (runes[i-1] == 'e' || runes[i-1] == 'E'))) {
				i++
			}
			tokens = append(tokens, token{kind: tokenNumber, value: string(runes[start:i])})

		default:
			tokens = append(tokens, token{kind: tokenSymbol, value: string(r)})
			i++
		}
	}

	return tokens, nil
}

// readQuoted consumes a quoted region starting at start, handling doubled
// quote escapes. It returns the inner value and the index after the closing
// quote.
func readQuoted(runes []rune, start int, quote rune) (string, int, error) {
	var b strings.Builder
	i := start + 1
	for i < len(runes) {
		if runes[i] == quote {
			if i+1 < len(runes) && runes[i+1] == quote {
				b.WriteRune(quote)
				i += 2
				continue
			}
			return b.String(), i + 1, nil
		}
		b.WriteRune(runes[i])
		i++
	}
	return "", 0, fmt.Errorf("unterminated quote starting at offset %d", start)
}
