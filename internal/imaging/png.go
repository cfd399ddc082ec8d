package imaging

import (
	"bufio"
	"compress/zlib"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"image"
	"image/color"
	"io"
)

const pngSignature = "\x89PNG\r\n\x1a\n"

// maxRowBytes bounds the two row buffers the streaming decoder keeps.
const maxRowBytes = 1 << 26

// errInterlaced sends Adam7 images to the generic decoder; their rows are not
// stored in display order.
var errInterlaced = errors.New("interlaced png")

const (
	ctGray      = 0
	ctRGB       = 2
	ctPaletted  = 3
	ctGrayAlpha = 4
	ctRGBA      = 6
)

type pngHeader struct {
	width      int
	height     int
	depth      int
	colorType  byte
	interlaced bool
}

func (h pngHeader) channels() int {
	switch h.colorType {
	case ctRGB:
		return 3
	case ctGrayAlpha:
		return 2
	case ctRGBA:
		return 4
	default:
		return 1
	}
}

func (h pngHeader) bitsPerPixel() int { return h.channels() * h.depth }

func (h pngHeader) rowBytes() int { return (h.width*h.bitsPerPixel() + 7) / 8 }

// filterStride is the byte distance to the corresponding byte of the pixel to
// the left, as used by the Sub, Average and Paeth filters.
func (h pngHeader) filterStride() int { return max(h.bitsPerPixel()/8, 1) }

func (h pngHeader) validate() error {
	if h.width <= 0 || h.height <= 0 {
		return fmt.Errorf("bad size %dx%d", h.width, h.height)
	}
	ok := false
	switch h.colorType {
	case ctGray:
		ok = h.depth == 1 || h.depth == 2 || h.depth == 4 || h.depth == 8 || h.depth == 16
	case ctPaletted:
		ok = h.depth == 1 || h.depth == 2 || h.depth == 4 || h.depth == 8
	case ctRGB, ctGrayAlpha, ctRGBA:
		ok = h.depth == 8 || h.depth == 16
	}
	if !ok {
		return fmt.Errorf("unsupported color type %d at depth %d", h.colorType, h.depth)
	}
	return nil
}

// pngStream walks the chunk structure and exposes the concatenated IDAT
// payload as an io.Reader.
type pngStream struct {
	r         *bufio.Reader
	hdr       pngHeader
	palette   []color.NRGBA
	trns      []byte
	remaining uint32
	crc       hash.Hash32
	done      bool
}

func (s *pngStream) chunkHeader() (uint32, string, error) {
	var buf [8]byte
	if _, err := io.ReadFull(s.r, buf[:]); err != nil {
		return 0, "", err
	}
	return binary.BigEndian.Uint32(buf[:4]), string(buf[4:]), nil
}

func (s *pngStream) checkCRC(sum uint32) error {
	var buf [4]byte
	if _, err := io.ReadFull(s.r, buf[:]); err != nil {
		return err
	}
	if binary.BigEndian.Uint32(buf[:]) != sum {
		return errors.New("checksum mismatch")
	}
	return nil
}

func (s *pngStream) readChunk(length uint32, typ string, limit uint32) ([]byte, error) {
	if length > limit {
		return nil, fmt.Errorf("%s chunk too long", typ)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(s.r, data); err != nil {
		return nil, err
	}
	crc := crc32.NewIEEE()
	crc.Write([]byte(typ))
	crc.Write(data)
	if err := s.checkCRC(crc.Sum32()); err != nil {
		return nil, fmt.Errorf("%s: %w", typ, err)
	}
	return data, nil
}

// start reads up to the first IDAT chunk.
func (s *pngStream) start() error {
	var sig [8]byte
	if _, err := io.ReadFull(s.r, sig[:]); err != nil {
		return err
	}
	if string(sig[:]) != pngSignature {
		return errors.New("not a png")
	}

	seenHeader := false
	for {
		length, typ, err := s.chunkHeader()
		if err != nil {
			return err
		}
		switch typ {
		case "IHDR":
			data, err := s.readChunk(length, typ, 13)
			if err != nil {
				return err
			}
			if len(data) != 13 {
				return errors.New("short IHDR")
			}
			s.hdr = pngHeader{
				width:      int(binary.BigEndian.Uint32(data[0:4])),
				height:     int(binary.BigEndian.Uint32(data[4:8])),
				depth:      int(data[8]),
				colorType:  data[9],
				interlaced: data[12] != 0,
			}
			if err := s.hdr.validate(); err != nil {
				return err
			}
			seenHeader = true
		case "PLTE":
			data, err := s.readChunk(length, typ, 256*3)
			if err != nil {
				return err
			}
			s.palette = make([]color.NRGBA, len(data)/3)
			for i := range s.palette {
				s.palette[i] = color.NRGBA{R: data[3*i], G: data[3*i+1], B: data[3*i+2], A: 0xff}
			}
		case "tRNS":
			data, err := s.readChunk(length, typ, 256)
			if err != nil {
				return err
			}
			s.trns = data
		case "IDAT":
			if !seenHeader {
				return errors.New("IDAT before IHDR")
			}
			if s.hdr.interlaced {
				return errInterlaced
			}
			if s.hdr.colorType == ctPaletted && len(s.palette) == 0 {
				return errors.New("missing palette")
			}
			s.applyPaletteAlpha()
			s.remaining = length
			s.crc = crc32.NewIEEE()
			s.crc.Write([]byte(typ))
			return nil
		case "IEND":
			return errors.New("no image data")
		default:
			if _, err := io.CopyN(io.Discard, s.r, int64(length)+4); err != nil {
				return err
			}
		}
	}
}

func (s *pngStream) applyPaletteAlpha() {
	if s.hdr.colorType != ctPaletted {
		return
	}
	for i, a := range s.trns {
		if i < len(s.palette) {
			s.palette[i].A = a
		}
	}
}

// Read returns IDAT payload bytes, crossing chunk boundaries as needed.
func (s *pngStream) Read(p []byte) (int, error) {
	for s.remaining == 0 {
		if s.done {
			return 0, io.EOF
		}
		if err := s.checkCRC(s.crc.Sum32()); err != nil {
			return 0, fmt.Errorf("IDAT: %w", err)
		}
		length, typ, err := s.chunkHeader()
		if err != nil {
			return 0, err
		}
		if typ != "IDAT" {
			s.done = true
			return 0, io.EOF
		}
		s.remaining = length
		s.crc.Reset()
		s.crc.Write([]byte(typ))
	}

	if uint32(len(p)) > s.remaining {
		p = p[:s.remaining]
	}
	n, err := s.r.Read(p)
	s.crc.Write(p[:n])
	s.remaining -= uint32(n)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

// decodePNG decodes every factor-th row and column of a non-interlaced PNG.
// Only two unfiltered rows are held at a time.
func decodePNG(ctx context.Context, r io.Reader, factor, maxPixels int) (*image.NRGBA, error) {
	s := &pngStream{r: bufio.NewReader(r)}
	if err := s.start(); err != nil {
		if errors.Is(err, errInterlaced) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: png: %v", ErrDecodeFailure, err)
	}

	h := s.hdr
	outW, outH := scaledSize(h.width, h.height, factor)
	if maxPixels > 0 && outW*outH > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d output exceeds %d pixels", ErrDecodeFailure, outW, outH, maxPixels)
	}
	rowLen := h.rowBytes()
	if rowLen > maxRowBytes {
		return nil, fmt.Errorf("%w: png row of %d bytes", ErrDecodeFailure, rowLen)
	}

	zr, err := zlib.NewReader(s)
	if err != nil {
		return nil, fmt.Errorf("%w: png: %v", ErrDecodeFailure, err)
	}
	defer zr.Close()

	// Byte 0 of each buffer is the row's filter type.
	cur := make([]byte, rowLen+1)
	prev := make([]byte, rowLen+1)
	dst := image.NewNRGBA(image.Rect(0, 0, outW, outH))
	stride := h.filterStride()

	for y := 0; y < h.height; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(zr, cur); err != nil {
			return nil, fmt.Errorf("%w: png row %d: %v", ErrDecodeFailure, y, err)
		}
		if err := unfilter(cur[0], cur[1:], prev[1:], stride); err != nil {
			return nil, fmt.Errorf("%w: png row %d: %v", ErrDecodeFailure, y, err)
		}
		if y%factor == 0 {
			s.emitRow(dst, y/factor, cur[1:], factor)
		}
		prev, cur = cur, prev
	}

	return dst, nil
}

func unfilter(ft byte, cdat, pdat []byte, stride int) error {
	switch ft {
	case 0:
	case 1:
		for i := stride; i < len(cdat); i++ {
			cdat[i] += cdat[i-stride]
		}
	case 2:
		for i := range cdat {
			cdat[i] += pdat[i]
		}
	case 3:
		for i := range cdat {
			var left int
			if i >= stride {
				left = int(cdat[i-stride])
			}
			cdat[i] += uint8((left + int(pdat[i])) / 2)
		}
	case 4:
		for i := range cdat {
			var a, c uint8
			if i >= stride {
				a = cdat[i-stride]
				c = pdat[i-stride]
			}
			cdat[i] += paeth(a, pdat[i], c)
		}
	default:
		return fmt.Errorf("bad filter type %d", ft)
	}
	return nil
}

func paeth(a, b, c uint8) uint8 {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func (s *pngStream) emitRow(dst *image.NRGBA, oy int, row []byte, factor int) {
	w := dst.Rect.Dx()
	for ox := 0; ox < w; ox++ {
		c := s.pixel(row, ox*factor)
		off := dst.PixOffset(ox, oy)
		dst.Pix[off+0] = c.R
		dst.Pix[off+1] = c.G
		dst.Pix[off+2] = c.B
		dst.Pix[off+3] = c.A
	}
}

// pixel converts pixel x of an unfiltered row to 8-bit NRGBA. 16-bit samples
// keep their high byte.
func (s *pngStream) pixel(row []byte, x int) color.NRGBA {
	h := s.hdr
	switch h.colorType {
	case ctGray:
		var v, raw uint16
		switch h.depth {
		case 16:
			raw = binary.BigEndian.Uint16(row[2*x:])
			v = raw >> 8
		case 8:
			raw = uint16(row[x])
			v = raw
		default:
			raw = uint16(subByte(row, x, h.depth))
			v = raw * (0xff / (1<<h.depth - 1))
		}
		a := uint8(0xff)
		if len(s.trns) >= 2 && binary.BigEndian.Uint16(s.trns) == raw {
			a = 0
		}
		g := uint8(v)
		return color.NRGBA{R: g, G: g, B: g, A: a}

	case ctRGB:
		var c color.NRGBA
		var raw [3]uint16
		if h.depth == 16 {
			for i := range raw {
				raw[i] = binary.BigEndian.Uint16(row[6*x+2*i:])
			}
			c = color.NRGBA{R: row[6*x], G: row[6*x+2], B: row[6*x+4], A: 0xff}
		} else {
			for i := range raw {
				raw[i] = uint16(row[3*x+i])
			}
			c = color.NRGBA{R: row[3*x], G: row[3*x+1], B: row[3*x+2], A: 0xff}
		}
		if len(s.trns) >= 6 &&
			binary.BigEndian.Uint16(s.trns[0:]) == raw[0] &&
			binary.BigEndian.Uint16(s.trns[2:]) == raw[1] &&
			binary.BigEndian.Uint16(s.trns[4:]) == raw[2] {
			c.A = 0
		}
		return c

	case ctPaletted:
		var idx int
		if h.depth < 8 {
			idx = int(subByte(row, x, h.depth))
		} else {
			idx = int(row[x])
		}
		if idx >= len(s.palette) {
			return color.NRGBA{A: 0xff}
		}
		return s.palette[idx]

	case ctGrayAlpha:
		if h.depth == 16 {
			return color.NRGBA{R: row[4*x], G: row[4*x], B: row[4*x], A: row[4*x+2]}
		}
		return color.NRGBA{R: row[2*x], G: row[2*x], B: row[2*x], A: row[2*x+1]}

	default: // ctRGBA
		if h.depth == 16 {
			return color.NRGBA{R: row[8*x], G: row[8*x+2], B: row[8*x+4], A: row[8*x+6]}
		}
		return color.NRGBA{R: row[4*x], G: row[4*x+1], B: row[4*x+2], A: row[4*x+3]}
	}
}

// subByte extracts sample x from a row packed at depth 1, 2 or 4 bits.
func subByte(row []byte, x, depth int) uint8 {
	perByte := 8 / depth
	b := row[x/perByte]
	shift := 8 - depth*(x%perByte+1)
	return (b >> shift) & (1<<depth - 1)
}
