package model

import "fmt"

const (
	// DateLayout is the long date shown for a case.
	DateLayout = "Monday, 02 January 2006"
	// TimeLayout is the 24-hour clock shown for a case.
	TimeLayout = "15:04"
	// ListLayout combines date and time for list rows.
	ListLayout = DateLayout + " 15:04"
)

// Reportable reports whether a case report can be produced for r.
func (r Record) Reportable() bool {
	return !r.Untitled()
}

// Report renders the plain-text case report shared with other apps.
func (r Record) Report() string {
	solved := "The case is not solved"
	if r.Resolved {
		solved = "The case is solved"
	}

	suspect := "there is no suspect."
	if r.HasSuspect() {
		suspect = fmt.Sprintf("the suspect is %s.", r.Suspect)
	}

	return fmt.Sprintf("%s! The case was discovered on %s at %s. %s, and %s",
		r.Title,
		r.Timestamp.Format(DateLayout),
		r.Timestamp.Format(TimeLayout),
		solved,
		suspect)
}
