package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export cases as JSON",
		Long:  "Export every case as a JSON array, oldest first. The output can be fed to import.",
		Args:  cobra.NoArgs,
		RunE:  runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.store.ExportAll(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(cmd, records)
}
