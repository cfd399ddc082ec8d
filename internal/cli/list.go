package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cases, newest first",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}

	cmd.Flags().IntP("limit", "l", 0, "Max results (0 for all)")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.store.List(cmd.Context())
	if err != nil {
		return err
	}

	records := snap.Presentation()
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	if textFormat() {
		return printRecords(cmd.OutOrStdout(), records)
	}
	return printJSON(cmd, records)
}
