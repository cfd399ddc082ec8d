package imaging

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"strings"

	"github.com/rcliao/casefile/internal/logging"
)

// DefaultMaxPixels caps how many pixels the generic decoder may allocate for
// a full-resolution source.
const DefaultMaxPixels = 48_000_000

// Bounds is the viewport an image is decoded for.
type Bounds struct {
	Width  int
	Height int
}

// Picture is the outcome of Load. Image is nil when nothing could be decoded;
// Err then says why.
type Picture struct {
	Image  image.Image
	Source Dimensions
	Factor int
	Err    error
}

// Present reports whether the picture holds an image.
func (p Picture) Present() bool {
	return p.Image != nil
}

// Decoder decodes images at a reduced size.
type Decoder struct {
	maxPixels int
	log       logging.Logger
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithMaxPixels sets the pixel budget of the generic decoder.
func WithMaxPixels(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxPixels = n
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(d *Decoder) {
		if l != nil {
			d.log = l
		}
	}
}

func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		maxPixels: DefaultMaxPixels,
		log:       logging.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Load probes path, picks a sample factor for b and decodes. It never fails:
// problems are reported through Picture.Err.
func (d *Decoder) Load(ctx context.Context, path string, b Bounds) Picture {
	dims, err := ProbeDimensions(path)
	if err != nil {
		d.log.Debug(ctx, "no picture", "path", path, "err", err)
		return Picture{Err: err}
	}

	factor := ComputeSampleFactor(dims.Width, dims.Height, b.Width, b.Height)
	img, err := d.DecodeScaled(ctx, path, factor)
	if err != nil {
		d.log.Debug(ctx, "no picture", "path", path, "factor", factor, "err", err)
		return Picture{Source: dims, Factor: factor, Err: err}
	}
	return Picture{Image: img, Source: dims, Factor: factor}
}

// LoadAsync runs Load on its own goroutine. The channel yields one Picture and
// is then closed.
func (d *Decoder) LoadAsync(ctx context.Context, path string, b Bounds) <-chan Picture {
	ch := make(chan Picture, 1)
	go func() {
		defer close(ch)
		ch <- d.Load(ctx, path, b)
	}()
	return ch
}

// DecodeScaled decodes every factor-th row and column of the image at path.
// The result is ceil(w/factor) x ceil(h/factor) pixels. Non-interlaced PNG and
// baseline JPEG are streamed; other inputs are decoded at full size within the
// pixel budget.
func (d *Decoder) DecodeScaled(ctx context.Context, path string, factor int) (img image.Image, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	factor = max(factor, 1)

	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	defer func() {
		if r := recover(); r != nil {
			d.log.Warn(ctx, "decoder panic", "path", path, "panic", r)
			img, err = nil, fmt.Errorf("%w: %v", ErrDecodeFailure, r)
		}
	}()

	br := bufio.NewReader(f)
	head, _ := br.Peek(len(pngSignature))
	switch {
	case strings.HasPrefix(string(head), pngSignature):
		img, err := decodePNG(ctx, br, factor, d.maxPixels)
		if !errors.Is(err, errInterlaced) {
			return orNil(img, err)
		}
		d.log.Debug(ctx, "interlaced png, using generic decoder", "path", path)
	case strings.HasPrefix(string(head), jpegSignature):
		img, err := decodeJPEG(ctx, br, factor, d.maxPixels)
		if !errors.Is(err, errJPEGFallback) {
			return orNil(img, err)
		}
		d.log.Debug(ctx, "jpeg not streamable, using generic decoder", "path", path)
	}

	return d.decodeGeneric(ctx, f, factor)
}

// orNil keeps a typed nil image out of the interface on error.
func orNil[T image.Image](img T, err error) (image.Image, error) {
	if err != nil {
		return nil, err
	}
	return img, nil
}

// decodeGeneric decodes at full resolution within the pixel budget, then
// samples.
func (d *Decoder) decodeGeneric(ctx context.Context, f *os.File, factor int) (image.Image, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	cfg, _, err := image.DecodeConfig(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	if cfg.Width*cfg.Height > d.maxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecodeFailure, cfg.Width, cfg.Height, d.maxPixels)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	src, _, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if factor == 1 {
		return src, nil
	}
	return subsample(ctx, src, factor)
}

func subsample(ctx context.Context, src image.Image, factor int) (*image.NRGBA, error) {
	b := src.Bounds()
	outW, outH := scaledSize(b.Dx(), b.Dy(), factor)
	dst := image.NewNRGBA(image.Rect(0, 0, outW, outH))
	for oy := 0; oy < outH; oy++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for ox := 0; ox < outW; ox++ {
			dst.Set(ox, oy, src.At(b.Min.X+ox*factor, b.Min.Y+oy*factor))
		}
	}
	return dst, nil
}

var defaultDecoder = NewDecoder()

// DecodeScaled decodes with the default pixel budget.
func DecodeScaled(ctx context.Context, path string, factor int) (image.Image, error) {
	return defaultDecoder.DecodeScaled(ctx, path, factor)
}
