// Package commands implements the pine CLI subcommands.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/leapstack-labs/pine/internal/cli/config"
	"github.com/leapstack-labs/pine/internal/cli/output"
	"github.com/leapstack-labs/pine/internal/client"
	"github.com/leapstack-labs/pine/internal/prefs"
	"github.com/leapstack-labs/pine/internal/session"
)

// CommandContext holds the resources most commands need.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
	Prefs    *prefs.Store
	Client   *client.Client
}

// NewCommandContext creates a CommandContext with the preference store and a
// service client. The cleanup function must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cmdCtx, err := NewCommandContextWithoutStore(cmd)
	if err != nil {
		return nil, nil, err
	}

	store, err := prefs.Open(cmdCtx.Cfg.StatePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open preferences: %w", err)
	}
	cmdCtx.Prefs = store

	cleanup := func() {
		_ = store.Close()
	}
	return cmdCtx, cleanup, nil
}

// NewCommandContextWithoutStore creates a CommandContext without opening the
// preference store.
func NewCommandContextWithoutStore(cmd *cobra.Command) (*CommandContext, error) {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	r, err := newRenderer(cmd, cfg)
	if err != nil {
		return nil, err
	}

	gw := client.NewHTTPGateway(client.HTTPConfig{
		BaseURL: cfg.GatewayURL,
		Timeout: cfg.GatewayTimeout,
	})

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
		Client:   client.New(gw, logger),
	}, nil
}

func newRenderer(cmd *cobra.Command, cfg *config.Config) (*output.Renderer, error) {
	mode, err := output.ParseMode(cfg.OutputFormat)
	if err != nil {
		return nil, err
	}
	return output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode), nil
}

// getConfig returns the loaded configuration, or defaults when the root
// command did not run (as in unit tests of single commands).
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return config.Default()
}

// SessionConfig returns the session configuration with stored preferences
// applied over the config file values.
func (c *CommandContext) SessionConfig(ctx context.Context) (session.Config, error) {
	opts := c.Cfg.EvaluationOptions()
	mode := session.ModeNone

	if c.Prefs != nil {
		var err error
		if opts.DeleteLimit, err = c.Prefs.Int(ctx, prefs.KeyDeleteLimit, opts.DeleteLimit); err != nil {
			return session.Config{}, err
		}
		if opts.DeleteDepth, err = c.Prefs.Int(ctx, prefs.KeyDeleteDepth, opts.DeleteDepth); err != nil {
			return session.Config{}, err
		}
		if opts.DryRun, err = c.Prefs.Bool(ctx, prefs.KeyDeleteDryRun, opts.DryRun); err != nil {
			return session.Config{}, err
		}
		v, ok, err := c.Prefs.Get(ctx, prefs.KeyMode)
		if err != nil {
			return session.Config{}, err
		}
		if ok {
			if mode, err = session.ParseMode(v); err != nil {
				return session.Config{}, err
			}
		}
	}
	opts.Logger = c.Logger

	return session.Config{
		Client:     c.Client,
		Evaluation: opts,
		Debounce:   c.Cfg.Debounce,
		Mode:       mode,
		Logger:     c.Logger,
	}, nil
}

// OpenSession creates a session from SessionConfig.
func (c *CommandContext) OpenSession(ctx context.Context) (*session.Session, error) {
	cfg, err := c.SessionConfig(ctx)
	if err != nil {
		return nil, err
	}
	return session.New(cfg)
}

// buildOnce sets the expression and waits for its build to be applied.
func buildOnce(ctx context.Context, s *session.Session, expression string) (session.State, error) {
	if err := s.SetExpression(expression); err != nil {
		return session.State{}, err
	}
	if err := s.WaitIdle(ctx); err != nil {
		return session.State{}, err
	}
	return s.Snapshot(), nil
}

// readExpression joins args, or reads stdin when args is empty and stdin is
// not a terminal.
func readExpression(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && isTerminal(f) {
		return "", fmt.Errorf("expression required")
	}
	b, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	expression := strings.TrimSpace(string(b))
	if expression == "" {
		return "", fmt.Errorf("expression required")
	}
	return expression, nil
}

// buildError turns a stored build error into a command error.
func buildError(st session.State) error {
	if st.Error == "" {
		return nil
	}
	if st.ErrorType != "" {
		return fmt.Errorf("build failed (%s): %s", st.ErrorType, st.Error)
	}
	return fmt.Errorf("build failed: %s", st.Error)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits in int
}
