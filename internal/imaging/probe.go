// Package imaging decodes attachment photos without materialising them at
// full resolution.
package imaging

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"

	// Decoders available to probing and generic decoding.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	// ErrNoImage means there is no file to decode. Callers show a placeholder.
	ErrNoImage = errors.New("no image")
	// ErrDecodeFailure means the file exists but cannot be decoded within
	// limits.
	ErrDecodeFailure = errors.New("decode failure")
)

// Dimensions is the size and format of an encoded image.
type Dimensions struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

// ProbeDimensions reads only the image header at path.
func ProbeDimensions(path string) (Dimensions, error) {
	f, err := open(path)
	if err != nil {
		return Dimensions{}, err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return Dimensions{}, fmt.Errorf("%w: probe %s: %v", ErrDecodeFailure, path, err)
	}
	return Dimensions{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

func open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoImage, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	info, err := f.Stat()
	if err == nil && info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is a directory", ErrNoImage, path)
	}
	return f, nil
}
