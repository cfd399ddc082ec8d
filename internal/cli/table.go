package cli

import (
	"fmt"
	"io"

	"github.com/gosuri/uitable"

	"github.com/rcliao/casefile/internal/model"
)

func printRecords(w io.Writer, records []model.Record) error {
	tbl := uitable.New()
	tbl.MaxColWidth = 48
	tbl.Wrap = true
	tbl.AddRow("ID", "DISCOVERED", "TITLE", "SOLVED", "SUSPECT")
	for _, r := range records {
		tbl.AddRow(r.ID, r.Timestamp.Format(model.ListLayout), r.Title, yesNo(r.Resolved), r.Suspect)
	}
	_, err := fmt.Fprintln(w, tbl)
	return err
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
