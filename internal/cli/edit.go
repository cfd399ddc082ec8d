package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a case",
		Long:  "Apply the given fields to a case. Clearing the title discards the case.",
		Args:  cobra.ExactArgs(1),
		RunE:  runEdit,
	}

	addEditFlags(cmd)

	RootCmd.AddCommand(cmd)
}

func runEdit(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	e := a.editSession()
	if _, err := e.Load(cmd.Context(), id); err != nil {
		return err
	}

	if err := applyEditFlags(cmd, e); err != nil {
		return err
	}

	return finishEdit(cmd, e)
}
