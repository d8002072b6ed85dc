package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove <document-id>...",
	Short: "Remove documents and all their passages",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	for _, id := range args {
		n, err := a.Remove(cmd.Context(), id)
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: not found\n", id)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s (%d passages)\n", id, n)
	}
	return nil
}
