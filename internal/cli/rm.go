package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/casefile/internal/batch"
	"github.com/rcliao/casefile/internal/session"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm <id>...",
		Short: "Delete cases",
		Long:  "Select the given cases and delete them as one batch. Unknown ids are skipped.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRm,
	}

	RootCmd.AddCommand(cmd)
}

type rmResult struct {
	batch.Result
	Missing []ulid.ULID `json:"missing,omitempty"`
}

func runRm(cmd *cobra.Command, args []string) error {
	ids := make([]ulid.ULID, 0, len(args))
	seen := map[ulid.ULID]bool{}
	for _, arg := range args {
		id, err := parseID(arg)
		if err != nil {
			return err
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	list := session.NewList(a.store,
		session.WithListLogger(a.log),
		session.WithAttachments(a.layout()),
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return list.Run(gctx) })

	var res rmResult
	var commitErr error
	g.Go(func() error {
		defer cancel()
		if _, ok := <-list.Frames(); !ok {
			return errors.New("store closed before the first snapshot")
		}
		for _, id := range ids {
			if !list.ToggleSelection(id) {
				res.Missing = append(res.Missing, id)
			}
		}
		res.Result, commitErr = list.CommitDelete(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if textFormat() {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "deleted %d\n", len(res.Deleted))
		for _, id := range res.Failed {
			fmt.Fprintf(w, "failed  %s\n", id)
		}
		for _, id := range res.Missing {
			fmt.Fprintf(w, "missing %s\n", id)
		}
	} else if err := printJSON(cmd, res); err != nil {
		return err
	}
	return commitErr
}
