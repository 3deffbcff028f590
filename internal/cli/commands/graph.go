package commands

import (
	"github.com/spf13/cobra"
)

// GraphOptions holds options for the graph command.
type GraphOptions struct {
	Candidate int
}

// NewGraphCommand creates the graph command.
func NewGraphCommand() *cobra.Command {
	opts := &GraphOptions{}

	cmd := &cobra.Command{
		Use:   "graph <expression>",
		Short: "Show the join graph for an expression",
		Long: `Build an expression and print the derived graph: the selected tables,
the joins between them and the suggested next tables.

--candidate selects a suggestion the way repeated "next" presses would.
Negative values count from the end of the list.`,
		Example: `  pine graph "users | orders"
  pine graph "users |" --candidate 2
  pine graph "users |" --candidate -1 -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd, args, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Candidate, "candidate", "c", 0, "Select the suggestion at this index")

	return cmd
}

func runGraph(cmd *cobra.Command, args []string, opts *GraphOptions) error {
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
	if err := buildError(st); err != nil {
		return err
	}

	if cmd.Flags().Changed("candidate") {
		// The first move from an unset cursor always lands on 0.
		if _, err := s.SelectNextCandidate(0); err != nil {
			return err
		}
		if opts.Candidate != 0 {
			if _, err := s.SelectNextCandidate(opts.Candidate); err != nil {
				return err
			}
		}
		st = s.Snapshot()
	}

	return renderGraph(cmdCtx.Renderer, st)
}
