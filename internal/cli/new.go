package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/casefile/internal/model"
	"github.com/rcliao/casefile/internal/session"
	"github.com/rcliao/casefile/internal/temporal"
)

func init() {
	cmd := &cobra.Command{
		Use:   "new [title]",
		Short: "Open a new case",
		Long:  "Create a case stamped now, then apply the given fields. A case left without a title is discarded.",
		RunE:  runNew,
	}

	addEditFlags(cmd)

	RootCmd.AddCommand(cmd)
}

// addEditFlags registers the record fields shared by new and edit.
func addEditFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("title", "t", "", "Case title")
	cmd.Flags().String("date", "", "Date discovered (YYYY-MM-DD); keeps the time")
	cmd.Flags().String("time", "", "Time discovered (HH:MM); keeps the date")
	cmd.Flags().Bool("resolved", false, "Mark the case solved")
	cmd.Flags().Bool("unresolved", false, "Mark the case not solved")
	cmd.Flags().String("suspect", "", "Suspect name (empty clears)")
	cmd.MarkFlagsMutuallyExclusive("resolved", "unresolved")
}

// applyEditFlags pushes changed flags into the edit session. Date and time go
// through the temporal editor so each keeps the other half.
func applyEditFlags(cmd *cobra.Command, e *session.Edit) error {
	flags := cmd.Flags()

	if flags.Changed("title") {
		title, _ := flags.GetString("title")
		if err := e.SetTitle(title); err != nil {
			return err
		}
	}
	if flags.Changed("date") {
		s, _ := flags.GetString("date")
		d, err := temporal.ParseDate(s)
		if err != nil {
			return err
		}
		if err := e.EditDate(d); err != nil {
			return err
		}
	}
	if flags.Changed("time") {
		s, _ := flags.GetString("time")
		c, err := temporal.ParseClock(s)
		if err != nil {
			return err
		}
		if err := e.EditTime(c); err != nil {
			return err
		}
	}
	if flags.Changed("resolved") {
		if err := e.SetResolved(true); err != nil {
			return err
		}
	}
	if flags.Changed("unresolved") {
		if err := e.SetResolved(false); err != nil {
			return err
		}
	}
	if flags.Changed("suspect") {
		name, _ := flags.GetString("suspect")
		if err := e.SetSuspect(name); err != nil {
			return err
		}
	}
	return nil
}

// editResult is printed by commands that end an edit session.
type editResult struct {
	model.Record
	Discarded bool `json:"discarded,omitempty"`
}

func runNew(cmd *cobra.Command, args []string) error {
	if len(args) > 0 && cmd.Flags().Changed("title") {
		return errors.New("give the title as an argument or with --title, not both")
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	id, err := session.NewList(a.store, session.WithListLogger(a.log)).CreateRecord(ctx)
	if err != nil {
		return err
	}

	e := a.editSession()
	if _, err := e.Load(ctx, id); err != nil {
		return err
	}

	editErr := applyEditFlags(cmd, e)
	if editErr == nil && len(args) > 0 {
		editErr = e.SetTitle(strings.Join(args, " "))
	}
	if editErr != nil {
		// Leave nothing behind for a case that could not be filled in.
		_ = e.SetTitle("")
		_, _ = e.Close(ctx)
		return editErr
	}

	return finishEdit(cmd, e)
}

func finishEdit(cmd *cobra.Command, e *session.Edit) error {
	r := e.Record()
	deleted, err := e.Close(cmd.Context())
	if err != nil {
		return err
	}

	if textFormat() {
		if deleted {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "untitled case discarded")
			return err
		}
		return printRecords(cmd.OutOrStdout(), []model.Record{r})
	}
	return printJSON(cmd, editResult{Record: r, Discarded: deleted})
}
