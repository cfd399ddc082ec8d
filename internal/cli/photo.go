package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/casefile/internal/imaging"
	"github.com/rcliao/casefile/internal/session"
)

func init() {
	cmd := &cobra.Command{
		Use:   "photo <id> <image>",
		Short: "Attach a photo to a case",
		Long:  "Copy an image into the case's photo slot. The slot is writable only while the copy runs.",
		Args:  cobra.ExactArgs(2),
		RunE:  runPhoto,
	}

	RootCmd.AddCommand(cmd)
}

type photoResult struct {
	ID     string             `json:"id"`
	Path   string             `json:"path"`
	Source imaging.Dimensions `json:"source"`
}

func runPhoto(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	// Refuse anything we could not show later.
	dims, err := imaging.ProbeDimensions(args[1])
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	e := a.editSession(session.WithCapturer(session.FileCapturer{Source: args[1]}))
	if _, err := e.Load(ctx, id); err != nil {
		return err
	}

	captureErr := e.CapturePhoto(ctx)
	path, _ := e.PhotoPath()
	if _, err := e.Close(ctx); err != nil && captureErr == nil {
		captureErr = err
	}
	if captureErr != nil {
		return captureErr
	}

	if textFormat() {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s: %dx%d %s\n", path, dims.Width, dims.Height, dims.Format)
		return err
	}
	return printJSON(cmd, photoResult{ID: id.String(), Path: path, Source: dims})
}
