package cli

import (
	"github.com/spf13/cobra"

	"github.com/matflow/matflow-cli/internal/browser"
)

// newBrowseCmd creates the 'browse' command.
func newBrowseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse the dataset tree interactively",
		Long: `Open an interactive dataset browser.

Keys: ↑/k ↓/j move, enter selects, space expands a folder, d deletes,
r refreshes, ? shows help and q quits. Selections made by other matflow
processes sharing the same state file appear immediately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := openSession()
			if err != nil {
				return err
			}
			defer session.Close()

			return browser.Run(GetContext(), session, session.WatchState)
		},
	}
}
