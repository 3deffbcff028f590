// Package sqlfmt lays out generated SQL for display. It only breaks lines
// before top-level clauses and conditions and never touches literals.
package sqlfmt

import (
	"strings"
	"unicode"
)

var clauses = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "JOIN": true,
	"INNER": true, "LEFT": true, "RIGHT": true, "FULL": true, "CROSS": true,
	"GROUP": true, "ORDER": true, "HAVING": true, "LIMIT": true, "OFFSET": true,
	"UNION": true, "RETURNING": true, "SET": true, "VALUES": true,
	"DELETE": true, "UPDATE": true, "INSERT": true, "WITH": true,
}

var joinModifiers = map[string]bool{
	"INNER": true, "LEFT": true, "RIGHT": true, "FULL": true, "CROSS": true, "OUTER": true,
}

var conditionClauses = map[string]bool{"WHERE": true, "HAVING": true}

var keywords = map[string]bool{
	"AND": true, "OR": true, "BY": true, "OUTER": true, "ON": true, "AS": true,
	"NOT": true, "IN": true, "IS": true, "NULL": true, "DISTINCT": true,
}

type token struct {
	text   string
	space  bool
	quoted bool
}

// Format returns query with one clause per line and top-level AND/OR
// conditions indented below their clause. Keywords are upper-cased.
func Format(query string) string {
	toks := tokenize(query)
	if len(toks) == 0 {
		return ""
	}

	var b strings.Builder
	depth := 0
	prev := ""
	inCondition := false
	for _, t := range toks {
		text := t.text
		upper := strings.ToUpper(text)
		if text == ")" && depth > 0 {
			depth--
		}

		brk := ""
		if !t.quoted && depth == 0 {
			switch {
			case clauses[upper] && !(upper == "JOIN" && joinModifiers[prev]) && !(joinModifiers[upper] && joinModifiers[prev]):
				brk = "\n"
				inCondition = conditionClauses[upper]
			case inCondition && (upper == "AND" || upper == "OR"):
				brk = "\n  "
			}
		}
		if !t.quoted && (clauses[upper] || keywords[upper]) {
			text = upper
		}

		switch {
		case b.Len() == 0:
		case brk != "":
			b.WriteString(brk)
		case t.space:
			b.WriteByte(' ')
		}
		b.WriteString(text)

		if text == "(" {
			depth++
		}
		if !t.quoted {
			prev = upper
		}
	}
	return b.String()
}

func tokenize(query string) []token {
	var toks []token
	rs := []rune(query)
	space := false
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			space = true
			i++
		case r == '\'' || r == '"' || r == '`':
			j := i + 1
			for j < len(rs) {
				if rs[j] == r {
					if j+1 < len(rs) && rs[j+1] == r {
						j += 2
						continue
					}
					break
				}
				j++
			}
			end := j + 1
			if end > len(rs) {
				end = len(rs)
			}
			toks = append(toks, token{text: string(rs[i:end]), space: space, quoted: true})
			space = false
			i = end
		case r == '(' || r == ')':
			toks = append(toks, token{text: string(r), space: space})
			space = false
			i++
		default:
			j := i
			for j < len(rs) && !unicode.IsSpace(rs[j]) && rs[j] != '(' && rs[j] != ')' &&
				rs[j] != '\'' && rs[j] != '"' && rs[j] != '`' {
				j++
			}
			toks = append(toks, token{text: string(rs[i:j]), space: space})
			space = false
			i = j
		}
	}
	return toks
}
