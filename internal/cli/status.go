package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what is stored",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	status, err := a.Status(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if statusJSON {
		output, _ := json.MarshalIndent(status, "", "  ")
		fmt.Fprintln(out, string(output))
		return nil
	}

	cfg := GetConfig()
	fmt.Fprintf(out, "Store:     %s (%s)\n", cfg.StorePath(GetRootDir()), cfg.Store.Backend)
	fmt.Fprintf(out, "Documents: %d\n", status.Documents)
	fmt.Fprintf(out, "Passages:  %d\n", status.Passages)
	if status.Fingerprint != nil {
		fmt.Fprintf(out, "Embedding: %s\n", status.Fingerprint)
	}
	return nil
}
