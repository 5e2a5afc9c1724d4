package commands

import (
	"fmt"

	"github.com/reeflective/console"
	"github.com/spf13/cobra"
)

// shellCmd launches an interactive rangingctl shell on reeflective/console
// rather than a hand-rolled bufio REPL: the console package already gives
// history, completion, and a prompt loop around the same cobra command
// tree rangingctl uses in single-shot mode.
func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive rangingctl shell",
		Long:  "Launches a readline-backed REPL over the same commands rangingctl runs in single-shot mode.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			app := console.New("rangingctl")

			menu := app.NewMenu("rangingctl")
			menu.SetCommands(func() *cobra.Command {
				return shellRootCommand()
			})
			menu.Prompt().Primary = func() string {
				return fmt.Sprintf("rangingctl(%s)> ", serverAddr)
			}

			if err := app.Start(); err != nil {
				return fmt.Errorf("start shell: %w", err)
			}
			return nil
		},
	}
}

// shellRootCommand rebuilds the command tree minus the shell command
// itself, so the interactive shell doesn't offer to recursively nest
// shells.
func shellRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "rangingctl",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(sessionsCmd())
	root.AddCommand(versionCmd())
	return root
}
