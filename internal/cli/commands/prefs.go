package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/pine/internal/cli/output"
	"github.com/leapstack-labs/pine/internal/prefs"
)

// NewPrefsCommand creates the prefs command and its subcommands.
func NewPrefsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Manage stored preferences",
		Long: `Preferences are stored in the state database and override the
configuration file for the delete plugin and the initial REPL mode.

Known keys: ` + strings.Join(prefs.Keys(), ", "),
		Example: `  pine prefs list
  pine prefs set delete_limit 500
  pine prefs get mode
  pine prefs unset delete_dry_run`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPrefs(cmd, func(c *CommandContext) error {
				list, err := c.Prefs.List(cmd.Context())
				if err != nil {
					return err
				}
				return renderPrefs(c.Renderer, list)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "get <key>",
		Short:     "Print a preference",
		Args:      cobra.ExactArgs(1),
		ValidArgs: prefs.Keys(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrefs(cmd, func(c *CommandContext) error {
				value, ok, err := c.Prefs.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("preference %s is not set", args[0])
				}
				c.Renderer.Println(value)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "set <key> <value>",
		Short:     "Store a preference",
		Args:      cobra.ExactArgs(2),
		ValidArgs: prefs.Keys(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrefs(cmd, func(c *CommandContext) error {
				if err := c.Prefs.Set(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				c.Renderer.Success(fmt.Sprintf("%s = %s", args[0], args[1]))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "unset <key>",
		Short:     "Remove a preference",
		Args:      cobra.ExactArgs(1),
		ValidArgs: prefs.Keys(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrefs(cmd, func(c *CommandContext) error {
				removed, err := c.Prefs.Unset(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !removed {
					c.Renderer.Muted(args[0] + " was not set")
					return nil
				}
				c.Renderer.Success("removed " + args[0])
				return nil
			})
		},
	})

	return cmd
}

func withPrefs(cmd *cobra.Command, fn func(*CommandContext) error) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(cmdCtx)
}

func renderPrefs(r *output.Renderer, list []prefs.Pref) error {
	if list == nil {
		list = []prefs.Pref{}
	}
	if ok, err := r.Structured(list); ok {
		return err
	}
	if len(list) == 0 {
		r.Muted("No preferences set.")
		return nil
	}
	rows := make([][]any, 0, len(list))
	for _, p := range list {
		rows = append(rows, []any{p.Key, p.Value, p.UpdatedAt.Local().Format(time.DateTime)})
	}
	r.Table([]string{"key", "value", "updated"}, rows)
	return nil
}
