package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/casefile/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search cases by title or suspect",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}

	cmd.Flags().Bool("resolved", false, "Only solved cases")
	cmd.Flags().Bool("unresolved", false, "Only unsolved cases")
	cmd.Flags().IntP("limit", "l", 20, "Max results")
	cmd.MarkFlagsMutuallyExclusive("resolved", "unresolved")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	var resolved *bool
	switch {
	case cmd.Flags().Changed("resolved"):
		v := true
		resolved = &v
	case cmd.Flags().Changed("unresolved"):
		v := false
		resolved = &v
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.store.Search(cmd.Context(), store.SearchParams{
		Query:    strings.Join(args, " "),
		Resolved: resolved,
		Limit:    limit,
	})
	if err != nil {
		return err
	}

	if textFormat() {
		return printRecords(cmd.OutOrStdout(), results)
	}
	if results == nil {
		return printJSON(cmd, []struct{}{})
	}
	return printJSON(cmd, results)
}
