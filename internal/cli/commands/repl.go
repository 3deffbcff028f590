package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/pine/internal/cli/output"
	"github.com/leapstack-labs/pine/internal/prefs"
	"github.com/leapstack-labs/pine/internal/session"
)

const (
	replPrompt      = "pine> "
	replHistoryFile = "pine_history"
)

var dotCommands = []string{
	".next", ".prev", ".apply", ".eval", ".graph", ".query",
	".mode", ".clear", ".help", ".quit", ".exit",
}

// NewREPLCommand creates the repl command.
func NewREPLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Compose expressions interactively",
		Long: `Start an interactive session. Every line replaces the expression and
prints the generated SQL once the build settles.

Tab completes the suggested fragments for the last stage. Use .next and
.prev to walk the suggestions and .apply to commit one.`,
		Args: cobra.NoArgs,
		RunE: runREPL,
	}
}

func runREPL(cmd *cobra.Command, _ []string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	s, err := cmdCtx.OpenSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	historyFile := ""
	if cmdCtx.Cfg.StatePath != ":memory:" {
		historyFile = filepath.Join(filepath.Dir(cmdCtx.Cfg.StatePath), replHistoryFile)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     historyFile,
		AutoComplete:    &hintCompleter{session: s},
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdin:           io.NopCloser(cmd.InOrStdin()),
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	r := &repl{session: s, renderer: cmdCtx.Renderer, prefs: cmdCtx.Prefs}
	r.renderer.Printf("Pine REPL (service: %s)\n", cmdCtx.Cfg.GatewayURL)
	r.renderer.Println("Type .help for commands, .quit to exit")
	r.renderer.Println("")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if quit := r.handleLine(ctx, line); quit {
			return nil
		}
	}
}

// repl holds the interactive loop state apart from readline so lines can be
// driven directly.
type repl struct {
	session  *session.Session
	renderer *output.Renderer
	prefs    *prefs.Store
}

// handleLine runs one input line and reports whether the loop should stop.
func (r *repl) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, ".") {
		r.build(ctx, line)
		return false
	}

	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])
	arg := ""
	if len(parts) > 1 {
		arg = parts[1]
	}

	switch command {
	case ".quit", ".exit":
		return true
	case ".help":
		r.renderer.Println(replHelp)
	case ".next", ".prev":
		r.move(command, arg)
	case ".apply":
		r.apply(ctx)
	case ".eval":
		if err := r.session.Evaluate(ctx); err != nil {
			r.renderer.Error(err.Error())
		}
		r.check(renderResult(r.renderer, r.session.Snapshot()))
	case ".graph":
		r.check(renderGraph(r.renderer, r.session.Snapshot()))
	case ".query":
		r.showQuery()
	case ".mode":
		r.mode(ctx, arg)
	case ".clear":
		r.renderer.Printf("\033[H\033[2J")
	default:
		r.renderer.Error(fmt.Sprintf("Unknown command: %s (type .help for commands)", command))
	}
	return false
}

func (r *repl) build(ctx context.Context, expression string) {
	st, err := buildOnce(ctx, r.session, expression)
	if err != nil {
		r.renderer.Error(err.Error())
		return
	}
	r.showBuild(st)
}

func (r *repl) showBuild(st session.State) {
	if st.Query != "" {
		r.renderer.Println(st.Query)
	}
	if st.Error != "" {
		r.renderer.Error(st.Error)
	}
	if st.Message != "" {
		r.renderer.Muted(st.Message)
	}
}

func (r *repl) showQuery() {
	st := r.session.Snapshot()
	if st.Query == "" {
		r.renderer.Muted("(no query)")
		return
	}
	r.renderer.Println(st.Query)
}

func (r *repl) move(command, arg string) {
	offset := 1
	if arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil {
			r.renderer.Error(fmt.Sprintf("invalid offset %q", arg))
			return
		}
		offset = n
	}
	if command == ".prev" {
		offset = -offset
	}

	hint, err := r.session.SelectNextCandidate(offset)
	if err != nil {
		r.renderer.Error(err.Error())
		return
	}
	if hint == nil {
		r.renderer.Muted("(no suggestions)")
		return
	}
	st := r.session.Snapshot()
	preview, err := r.session.ExpressionUsingCandidate()
	if err != nil {
		r.renderer.Error(err.Error())
		return
	}
	r.renderer.Printf("[%d] %s.%s  %s\n", *st.CandidateIndex, hint.Schema, hint.Table, hint.Pine)
	r.renderer.Muted(preview)
}

func (r *repl) apply(ctx context.Context) {
	expression, err := r.session.ApplyCandidate()
	if err != nil {
		r.renderer.Error(err.Error())
		return
	}
	r.renderer.Println(expression)
	if err := r.session.WaitIdle(ctx); err != nil {
		r.renderer.Error(err.Error())
		return
	}
	r.showBuild(r.session.Snapshot())
}

func (r *repl) mode(ctx context.Context, arg string) {
	if arg == "" {
		r.renderer.Println(output.Title(string(r.session.Snapshot().Mode)))
		return
	}
	m, err := session.ParseMode(arg)
	if err != nil {
		r.renderer.Error(err.Error())
		return
	}
	if err := r.session.SetMode(m); err != nil {
		r.renderer.Error(err.Error())
		return
	}
	if r.prefs != nil {
		if err := r.prefs.Set(ctx, prefs.KeyMode, string(m)); err != nil {
			r.renderer.Warning(fmt.Sprintf("mode not saved: %v", err))
		}
	}
	r.renderer.Success("mode " + string(m))
}

func (r *repl) check(err error) {
	if err != nil {
		r.renderer.Error(err.Error())
	}
}

const replHelp = `
Commands:
  <expression>    Replace the expression and build it
  .next [n]       Select the next suggestion (or move n)
  .prev [n]       Select the previous suggestion
  .apply          Replace the last stage with the selected suggestion
  .eval           Evaluate the expression
  .graph          Show the join graph
  .query          Show the generated SQL
  .mode [m]       Show or set the mode (input|graph|result|none)
  .clear          Clear the screen
  .quit / .exit   Exit the REPL

Tips:
  - Tab completes suggestions for the last stage
  - Use arrow keys to navigate history
`

// hintCompleter completes dot-commands and the suggested fragments for the
// stage under the cursor.
type hintCompleter struct {
	session *session.Session
}

// Do implements readline.AutoCompleter.
func (c *hintCompleter) Do(line []rune, pos int) ([][]rune, int) {
	text := string(line[:pos])

	var prefix string
	var options []string
	if strings.HasPrefix(text, ".") && !strings.Contains(text, " ") {
		prefix = text
		options = dotCommands
	} else {
		i := strings.LastIndex(text, "|")
		prefix = strings.TrimLeft(text[i+1:], " ")
		options = hintFragments(c.session.Snapshot())
	}

	var out [][]rune
	for _, opt := range options {
		if strings.HasPrefix(opt, prefix) && opt != prefix {
			out = append(out, []rune(opt[len(prefix):]))
		}
	}
	return out, len([]rune(prefix))
}
