package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/muesli/termenv"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Renderer writes command output in the configured mode.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
	isTTY  bool
	lg     *lipgloss.Renderer
	styles *Styles
}

// NewRenderer creates a renderer, detecting whether out is a terminal.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	return NewRendererWithTTY(out, errOut, isTerminal(out), mode)
}

// NewRendererWithTTY creates a renderer with an explicit TTY state.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode Mode) *Renderer {
	if mode == "" {
		mode = ModeAuto
	}
	lg := lipgloss.NewRenderer(out)
	if !isTTY {
		lg.SetColorProfile(termenv.Ascii)
	}
	return &Renderer{
		out:    out,
		errOut: errOut,
		mode:   mode,
		isTTY:  isTTY,
		lg:     lg,
		styles: NewStyles(lg),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits in int
}

// Mode returns the configured mode, which may be auto.
func (r *Renderer) Mode() Mode { return r.mode }

// EffectiveMode resolves auto to text on a terminal and markdown elsewhere.
func (r *Renderer) EffectiveMode() Mode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// IsTTY reports whether output goes to a terminal.
func (r *Renderer) IsTTY() bool { return r.isTTY }

// Styles returns the text mode styles.
func (r *Renderer) Styles() *Styles { return r.styles }

// Out returns the primary writer.
func (r *Renderer) Out() io.Writer { return r.out }

// Println writes a line to the primary writer.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted output to the primary writer.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// Header prints a header in the current mode followed by a blank line.
func (r *Renderer) Header(level int, text string) {
	if r.EffectiveMode() == ModeText {
		style := r.styles.Header1
		if level > 1 {
			style = r.styles.Header2
		}
		r.Println(style.Render(text))
	} else {
		r.Println(FormatHeader(level, text))
	}
	r.Println("")
}

// Swatch renders a colored marker for hex, or nothing outside text mode.
func (r *Renderer) Swatch(hex string) string {
	if r.EffectiveMode() != ModeText {
		return ""
	}
	return r.lg.NewStyle().Foreground(lipgloss.Color(hex)).Render("■") + " "
}

// Success prints a success line.
func (r *Renderer) Success(msg string) {
	if r.EffectiveMode() == ModeText {
		r.Println(r.styles.Success.Render("✓ " + msg))
		return
	}
	r.Println(msg)
}

// Muted prints a de-emphasized line.
func (r *Renderer) Muted(msg string) {
	if r.EffectiveMode() == ModeText {
		r.Println(r.styles.Muted.Render(msg))
		return
	}
	r.Println(msg)
}

// Warning prints a warning to the error writer.
func (r *Renderer) Warning(msg string) {
	if r.EffectiveMode() == ModeText {
		_, _ = fmt.Fprintln(r.errOut, r.styles.Warning.Render("! "+msg))
		return
	}
	_, _ = fmt.Fprintln(r.errOut, "Warning: "+msg)
}

// Error prints an error to the error writer.
func (r *Renderer) Error(msg string) {
	if r.EffectiveMode() == ModeText {
		_, _ = fmt.Fprintln(r.errOut, r.styles.Error.Render("✗ "+msg))
		return
	}
	_, _ = fmt.Fprintln(r.errOut, "Error: "+msg)
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// YAML writes v as a YAML document.
func (r *Renderer) YAML(v any) error {
	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// Structured writes v in JSON or YAML according to the effective mode.
// It reports false when the mode is not structured and nothing was written.
func (r *Renderer) Structured(v any) (bool, error) {
	switch r.EffectiveMode() {
	case ModeJSON:
		return true, r.JSON(v)
	case ModeYAML:
		return true, r.YAML(v)
	default:
		return false, nil
	}
}

// Table renders rows under header as a light box table in text mode and a
// markdown table otherwise, followed by a row count.
func (r *Renderer) Table(header []string, rows [][]any) {
	if len(rows) == 0 {
		r.Println("(0 rows)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)

	headerRow := make(table.Row, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	t.AppendHeader(headerRow)

	for _, row := range rows {
		tr := make(table.Row, len(header))
		for i := range header {
			var v any
			if i < len(row) {
				v = row[i]
			}
			tr[i] = FormatValue(v)
		}
		t.AppendRow(tr)
	}

	if r.EffectiveMode() == ModeText {
		t.SetStyle(table.StyleLight)
		t.Render()
	} else {
		t.RenderMarkdown()
	}
	noun := "rows"
	if len(rows) == 1 {
		noun = "row"
	}
	r.Printf("(%d %s)\n", len(rows), noun)
}
