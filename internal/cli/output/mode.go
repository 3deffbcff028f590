// Package output renders CLI results for terminals, markdown consumers and scripts.
package output

import (
	"fmt"
	"strings"
)

// Mode selects how command output is rendered.
type Mode string

// Output modes.
const (
	ModeAuto     Mode = "auto"     // text on a TTY, markdown otherwise
	ModeText     Mode = "text"     // styled terminal output
	ModeMarkdown Mode = "markdown" // plain markdown, agent friendly
	ModeJSON     Mode = "json"
	ModeYAML     Mode = "yaml"
)

// Modes lists every accepted mode in display order.
func Modes() []string {
	return []string{string(ModeAuto), string(ModeText), string(ModeMarkdown), string(ModeJSON), string(ModeYAML)}
}

// ParseMode validates s as an output mode. The empty string means auto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeText, ModeMarkdown, ModeJSON, ModeYAML:
		return m, nil
	case "md":
		return ModeMarkdown, nil
	default:
		return ModeAuto, fmt.Errorf("unknown output mode %q (want one of %s)", s, strings.Join(Modes(), "|"))
	}
}

// Structured reports whether the mode emits machine-readable documents.
func (m Mode) Structured() bool {
	return m == ModeJSON || m == ModeYAML
}
