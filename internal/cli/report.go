package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "report <id>",
		Short: "Print the case report",
		Long:  "Print a plain-text report of a case, ready to share.",
		Args:  cobra.ExactArgs(1),
		RunE:  runReport,
	}

	RootCmd.AddCommand(cmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.store.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	if !r.Reportable() {
		return errors.New("case has no title")
	}

	if textFormat() {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), r.Report())
		return err
	}
	return printJSON(cmd, map[string]string{"id": r.ID.String(), "report": r.Report()})
}
