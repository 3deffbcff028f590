package commands

import (
	"github.com/spf13/cobra"
)

// NewBuildCommand creates the build command.
func NewBuildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <expression>",
		Short: "Translate an expression into SQL",
		Long: `Send an expression to the Pine service and print the generated SQL,
the detected operation and the suggested next tables.

With no arguments the expression is read from stdin.`,
		Example: `  pine build "users | orders"
  echo "users | w: id = 1" | pine build
  pine build "users |" -o json`,
		RunE: runBuild,
	}
	return cmd
}

func runBuild(cmd *cobra.Command, args []string) error {
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
	s, err := cmdCtx.OpenSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	st, err := buildOnce(ctx, s, expression)
	if err != nil {
		return err
	}
	if err := renderBuild(cmdCtx.Renderer, st); err != nil {
		return err
	}
	return buildError(st)
}
