package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/oklog/ulid/v2"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/casefile/internal/diff"
	"github.com/rcliao/casefile/internal/model"
	"github.com/rcliao/casefile/internal/session"
	"github.com/rcliao/casefile/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print changes to the case list as they happen",
		Long:  "Follow the case list and print the edit script of every change, including changes made by other casefile processes.",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}

	cmd.Flags().Duration("delay", store.DefaultWatchDelay, "How long to let filesystem events settle")
	cmd.Flags().Int("frames", 0, "Exit after this many frames (0 runs until interrupted)")

	RootCmd.AddCommand(cmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	delay, _ := cmd.Flags().GetDuration("delay")
	limit, _ := cmd.Flags().GetInt("frames")

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.store.Watch(ctx, delay); err != nil {
		return err
	}

	list := session.NewList(a.store, session.WithListLogger(a.log))
	p := &framePrinter{w: cmd.OutOrStdout(), json: !textFormat()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return list.Run(gctx) })
	g.Go(func() error {
		n := 0
		for frame := range list.Frames() {
			if err := p.print(frame); err != nil {
				return err
			}
			n++
			if limit > 0 && n >= limit {
				cancel()
				return nil
			}
		}
		return nil
	})
	return g.Wait()
}

// framePrinter renders frames and remembers the last snapshot so updates
// can show what changed.
type framePrinter struct {
	w    io.Writer
	json bool
	prev map[ulid.ULID]model.Record
}

var (
	insertColor = color.New(color.FgGreen)
	removeColor = color.New(color.FgRed)
	updateColor = color.New(color.FgYellow)
	faint       = color.New(color.Faint)
)

func (p *framePrinter) print(f session.Frame) error {
	defer p.remember(f.Snapshot)

	if p.json {
		b, err := json.Marshal(f)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(p.w, string(b))
		return err
	}

	ins, rem, upd := f.Script.Counts()
	faint.Fprintf(p.w, "-- %d cases: +%d -%d ~%d\n", len(f.Snapshot), ins, rem, upd)
	for _, op := range f.Script.Ops {
		switch op.Kind {
		case diff.Insert:
			insertColor.Fprintf(p.w, "+ %3d %s %s\n", op.Pos, op.ID, op.Record.Title)
		case diff.Remove:
			removeColor.Fprintf(p.w, "- %3d %s %s\n", op.Pos, op.ID, op.Record.Title)
		case diff.Update:
			updateColor.Fprintf(p.w, "~ %3d %s ", op.Pos, op.ID)
			fmt.Fprintln(p.w, p.describeUpdate(op.Record))
		}
	}
	if f.Mode.Count > 0 {
		faint.Fprintf(p.w, "   %s\n", f.Title)
	}
	return nil
}

func (p *framePrinter) remember(snap model.Snapshot) {
	p.prev = make(map[ulid.ULID]model.Record, len(snap))
	for _, r := range snap {
		p.prev[r.ID] = r
	}
}

func (p *framePrinter) describeUpdate(r model.Record) string {
	old, ok := p.prev[r.ID]
	if !ok {
		return r.Title
	}

	parts := []string{titleDiff(old.Title, r.Title)}
	if old.Resolved != r.Resolved {
		parts = append(parts, "solved="+yesNo(r.Resolved))
	}
	if !old.Timestamp.Equal(r.Timestamp) {
		parts = append(parts, "discovered="+r.Timestamp.Format(model.ListLayout))
	}
	if old.Suspect != r.Suspect {
		parts = append(parts, fmt.Sprintf("suspect=%q", r.Suspect))
	}
	return strings.Join(parts, " ")
}

// titleDiff marks deletions as [-x-] and insertions as {+x+}, or colours
// them when the terminal allows.
func titleDiff(before, after string) string {
	if before == after {
		return after
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(before, after, false))
	if !color.NoColor {
		return dmp.DiffPrettyText(diffs)
	}

	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			b.WriteString("[-" + d.Text + "-]")
		case diffmatchpatch.DiffInsert:
			b.WriteString("{+" + d.Text + "+}")
		default:
			b.WriteString(d.Text)
		}
	}
	return b.String()
}
