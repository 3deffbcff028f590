package commands

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/pine/internal/session"
	"github.com/leapstack-labs/pine/internal/ui"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Port      int
	NoBrowser bool
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session API for editor front ends",
		Long: `Start a local HTTP server exposing one Pine session per editor tab.

The API creates and closes sessions, replaces expressions, moves the
candidate cursor and evaluates. GET /api/sessions/{id}/updates streams the
session snapshot as server-sent events after every change.`,
		Example: `  # Serve on the configured port
  pine serve

  # Serve on a custom port without opening a browser
  pine serve --port 4000 --no-browser`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Port, "port", 0, "Port to serve on (default: 33334)")
	cmd.Flags().BoolVar(&opts.NoBrowser, "no-browser", false, "Don't auto-open browser")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	sessCfg, err := cmdCtx.SessionConfig(ctx)
	if err != nil {
		return err
	}
	manager := session.NewManager(sessCfg)

	// CLI flags override config file
	uiCfg := cmdCtx.Cfg.GetUIConfig()
	port := uiCfg.Port
	if opts.Port != 0 {
		port = opts.Port
	}
	autoOpen := uiCfg.AutoOpen && !opts.NoBrowser

	server := ui.NewServer(ui.Config{
		Manager:       manager,
		Port:          port,
		SessionSecret: uiCfg.SessionSecret,
		Logger:        cmdCtx.Logger,
	})

	url := fmt.Sprintf("http://localhost:%d/api/session", port)
	if autoOpen {
		go openBrowser(url)
	}

	cmdCtx.Renderer.Printf("Serving sessions on http://localhost:%d (service: %s)\n", port, cmdCtx.Cfg.GatewayURL)
	cmdCtx.Renderer.Muted("Press Ctrl+C to stop")

	return server.Serve(ctx)
}

// openBrowser opens the default browser to the specified URL.
func openBrowser(url string) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url) //nolint:noctx
	case "linux":
		cmd = exec.Command("xdg-open", url) //nolint:noctx
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url) //nolint:noctx
	default:
		return
	}

	_ = cmd.Start()
}
