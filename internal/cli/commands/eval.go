package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/pine/internal/client"
	"github.com/leapstack-labs/pine/internal/session"
)

// EvalOptions holds options for the eval command.
type EvalOptions struct {
	DryRun bool
}

// NewEvalCommand creates the eval command.
func NewEvalCommand() *cobra.Command {
	opts := &EvalOptions{}

	cmd := &cobra.Command{
		Use:   "eval <expression>",
		Short: "Evaluate an expression",
		Long: `Build and evaluate an expression.

Table queries print their rows. Expressions ending in "delete!" run a
recursive delete: dependent rows are counted up to delete_depth levels and
removed deepest first, each in batches of at most delete_limit rows.
Use --dry-run to print the plan without deleting anything.`,
		Example: `  pine eval "users | l: 10"
  pine eval "users | w: id = 3 | delete!" --dry-run
  pine eval "users" -o markdown`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Plan deletes without running them")

	return cmd
}

func runEval(cmd *cobra.Command, args []string, opts *EvalOptions) error {
	expression, err := readExpression(cmd, args)
	if err != nil {
		return err
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	sessCfg, err := cmdCtx.SessionConfig(ctx)
	if err != nil {
		return err
	}
	if opts.DryRun {
		sessCfg.Evaluation.DryRun = true
	}
	s, err := session.New(sessCfg)
	if err != nil {
		return err
	}
	defer s.Close()

	st, err := buildOnce(ctx, s, expression)
	if err != nil {
		return err
	}
	if err := buildError(st); err != nil {
		return err
	}

	evalErr := s.Evaluate(ctx)
	if err := renderResult(cmdCtx.Renderer, s.Snapshot()); err != nil {
		return err
	}
	if evalErr != nil {
		var serr *client.ServerError
		if errors.As(evalErr, &serr) && serr.Type != "" {
			return fmt.Errorf("%s: %s", serr.Type, serr.Message)
		}
		return evalErr
	}
	return nil
}
