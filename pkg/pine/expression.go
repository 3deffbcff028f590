package pine

import "strings"

// Delimiter separates expression stages.
const Delimiter = "|"

// Clean trims the expression and strips exactly one trailing delimiter.
func Clean(expression string) string {
	e := strings.TrimSpace(expression)
	if strings.HasSuffix(e, Delimiter) {
		e = strings.TrimSpace(strings.TrimSuffix(e, Delimiter))
	}
	return e
}

// Prettify normalizes the spacing around delimiters: "a|b |c" becomes
// "a | b | c". A trailing delimiter is kept so the user can keep typing.
func Prettify(expression string) string {
	if strings.TrimSpace(expression) == "" {
		return ""
	}
	parts := strings.Split(expression, Delimiter)
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, " "+Delimiter+" ")
}

// ReplaceLastStage swaps the final stage of expression for fragment.
// An expression ending in a delimiter has an empty final stage, so the
// fragment is appended.
func ReplaceLastStage(expression, fragment string) string {
	parts := strings.Split(expression, Delimiter)
	parts[len(parts)-1] = fragment
	return strings.Join(parts, " "+Delimiter+" ")
}

// LastStage returns the trimmed final stage of expression.
func LastStage(expression string) string {
	i := strings.LastIndex(expression, Delimiter)
	return strings.TrimSpace(expression[i+1:])
}

// Stages returns the trimmed, non-empty stages of expression.
func Stages(expression string) []string {
	var stages []string
	for _, p := range strings.Split(expression, Delimiter) {
		if s := strings.TrimSpace(p); s != "" {
			stages = append(stages, s)
		}
	}
	return stages
}

// Pipe appends stage to expression after cleaning it.
func Pipe(expression, stage string) string {
	e := Clean(expression)
	if e == "" {
		return stage
	}
	return e + " " + Delimiter + " " + stage
}
