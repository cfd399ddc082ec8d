package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/casefile/internal/model"
	"github.com/rcliao/casefile/internal/temporal"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a case",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}

	RootCmd.AddCommand(cmd)
}

type caseView struct {
	model.Record
	Date      string `json:"date"`
	Time      string `json:"time"`
	Photo     bool   `json:"photo"`
	PhotoPath string `json:"photo_path"`
}

func runGet(cmd *cobra.Command, args []string) error {
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

	layout := a.layout()
	view := caseView{
		Record:    r,
		Date:      temporal.FormatDate(r.Timestamp),
		Time:      temporal.FormatClock(r.Timestamp),
		Photo:     layout.Exists(id),
		PhotoPath: layout.Path(id),
	}

	if textFormat() {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s\n", r.Title)
		fmt.Fprintf(w, "  id:       %s\n", r.ID)
		fmt.Fprintf(w, "  date:     %s %s\n", view.Date, view.Time)
		fmt.Fprintf(w, "  solved:   %s\n", yesNo(r.Resolved))
		fmt.Fprintf(w, "  suspect:  %s\n", r.Suspect)
		fmt.Fprintf(w, "  photo:    %s\n", yesNo(view.Photo))
		return nil
	}
	return printJSON(cmd, view)
}
