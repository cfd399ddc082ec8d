package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.store.Stats(cmd.Context())
	if err != nil {
		return err
	}

	if textFormat() {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "database:     %s (%s)\n", stats.DBPath, humanize.Bytes(uint64(stats.DBSizeBytes)))
		fmt.Fprintf(w, "cases:        %s\n", humanize.Comma(int64(stats.Total)))
		fmt.Fprintf(w, "solved:       %s\n", humanize.Comma(int64(stats.Resolved)))
		fmt.Fprintf(w, "unsolved:     %s\n", humanize.Comma(int64(stats.Unresolved)))
		fmt.Fprintf(w, "with suspect: %s\n", humanize.Comma(int64(stats.WithSuspect)))
		fmt.Fprintf(w, "retired ids:  %s\n", humanize.Comma(int64(stats.Retired)))
		return nil
	}
	return printJSON(cmd, stats)
}
