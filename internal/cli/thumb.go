package cli

import (
	"fmt"
	"image/png"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/casefile/internal/imaging"
)

func init() {
	cmd := &cobra.Command{
		Use:   "thumb <id>",
		Short: "Decode a case photo for a viewport",
		Long:  "Decode the case photo reduced to fit the viewport and report the sample factor. With -o the result is written as PNG.",
		Args:  cobra.ExactArgs(1),
		RunE:  runThumb,
	}

	cmd.Flags().Int("width", 0, "Viewport width (default from config)")
	cmd.Flags().Int("height", 0, "Viewport height (default from config)")
	cmd.Flags().StringP("output", "o", "", "Write the decoded image to this PNG file")

	RootCmd.AddCommand(cmd)
}

type thumbResult struct {
	ID      string             `json:"id"`
	Present bool               `json:"present"`
	Reason  string             `json:"reason,omitempty"`
	Source  imaging.Dimensions `json:"source"`
	Factor  int                `json:"factor"`
	Width   int                `json:"width"`
	Height  int                `json:"height"`
	Output  string             `json:"output,omitempty"`
}

func runThumb(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	width, _ := cmd.Flags().GetInt("width")
	height, _ := cmd.Flags().GetInt("height")
	output, _ := cmd.Flags().GetString("output")

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if _, err := a.store.Get(ctx, id); err != nil {
		return err
	}

	bounds := a.viewport()
	if width > 0 {
		bounds.Width = width
	}
	if height > 0 {
		bounds.Height = height
	}

	pic := <-a.decoder().LoadAsync(ctx, a.layout().Path(id), bounds)

	res := thumbResult{
		ID:      id.String(),
		Present: pic.Present(),
		Source:  pic.Source,
		Factor:  pic.Factor,
	}
	if pic.Err != nil {
		res.Reason = pic.Err.Error()
	}
	if pic.Present() {
		b := pic.Image.Bounds()
		res.Width, res.Height = b.Dx(), b.Dy()

		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := png.Encode(f, pic.Image); err != nil {
				f.Close()
				return fmt.Errorf("encode %s: %w", output, err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			res.Output = output
		}
	}

	if textFormat() {
		w := cmd.OutOrStdout()
		if !res.Present {
			_, err := fmt.Fprintf(w, "no photo (%s)\n", res.Reason)
			return err
		}
		_, err := fmt.Fprintf(w, "%dx%d -> %dx%d (1/%d)\n", res.Source.Width, res.Source.Height, res.Width, res.Height, res.Factor)
		return err
	}
	return printJSON(cmd, res)
}
