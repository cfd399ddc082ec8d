package imaging

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
)

const jpegSignature = "\xff\xd8"

// maxBandBytes bounds the per-component MCU row buffers of the streaming
// JPEG decoder.
const maxBandBytes = 1 << 26

// errJPEGFallback sends JPEGs the row decoder does not stream (progressive,
// arithmetic-coded, multi-scan, CMYK, RGB, 12-bit) to the generic decoder.
var errJPEGFallback = errors.New("jpeg needs a full decode")

const (
	mSOF0  = 0xc0
	mSOF1  = 0xc1
	mDHT   = 0xc4
	mSOF15 = 0xcf
	mRST0  = 0xd0
	mRST7  = 0xd7
	mEOI   = 0xd9
	mSOS   = 0xda
	mDQT   = 0xdb
	mDRI   = 0xdd
	mAPP14 = 0xee
)

// unzig maps zig-zag coefficient order to natural order.
var unzig = [64]int{
	0, 1, 8, 16, 9, 2, 3, 10,
	17, 24, 32, 25, 18, 11, 4, 5,
	12, 19, 26, 33, 40, 48, 41, 34,
	27, 20, 13, 6, 7, 14, 21, 28,
	35, 42, 49, 56, 57, 50, 43, 36,
	29, 22, 15, 23, 30, 37, 44, 51,
	58, 59, 52, 45, 38, 31, 39, 46,
	53, 60, 61, 54, 47, 55, 62, 63,
}

// idctCos[x][u] is C(u)/2 * cos((2x+1)uπ/16).
var idctCos = func() (t [8][8]float32) {
	for x := 0; x < 8; x++ {
		for u := 0; u < 8; u++ {
			c := 1.0
			if u == 0 {
				c = math.Sqrt2 / 2
			}
			t[x][u] = float32(c * math.Cos(float64(2*x+1)*float64(u)*math.Pi/16) / 2)
		}
	}
	return t
}()

type huffTable struct {
	maxcode [17]int32
	valptr  [17]int32
	mincode [17]int32
	vals    []byte
	ok      bool
}

func (t *huffTable) build(counts [16]int, vals []byte) error {
	t.vals = append([]byte(nil), vals...)
	var code, k int32
	for l := 1; l <= 16; l++ {
		n := int32(counts[l-1])
		t.valptr[l] = k
		t.mincode[l] = code
		t.maxcode[l] = -1
		if n > 0 {
			t.maxcode[l] = code + n - 1
		}
		code += n
		k += n
		if code > 1<<l {
			return errors.New("bad huffman table")
		}
		code <<= 1
	}
	t.ok = true
	return nil
}

type jpegComponent struct {
	id     byte
	h, v   int
	tq     int
	td, ta int
	pred   int32
	stride int
	// band holds one MCU row of samples.
	band []byte
}

type jpegStream struct {
	r *bufio.Reader

	width, height int
	comps         []jpegComponent
	scan          []int
	quant         [4][64]int32
	huff          [2][4]huffTable
	restart       int

	adobe          bool
	adobeTransform byte

	acc    uint32
	nbits  uint
	marker byte
}

func (s *jpegStream) readFull(p []byte) error {
	_, err := io.ReadFull(s.r, p)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}

func (s *jpegStream) readByte() (byte, error) {
	b, err := s.r.ReadByte()
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return b, err
}

func (s *jpegStream) segmentLength() (int, error) {
	var n [2]byte
	if err := s.readFull(n[:]); err != nil {
		return 0, err
	}
	l := int(binary.BigEndian.Uint16(n[:])) - 2
	if l < 0 {
		return 0, errors.New("bad segment length")
	}
	return l, nil
}

func (s *jpegStream) segment() ([]byte, error) {
	l, err := s.segmentLength()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, l)
	return buf, s.readFull(buf)
}

func (s *jpegStream) skipSegment() error {
	l, err := s.segmentLength()
	if err != nil {
		return err
	}
	if _, err := s.r.Discard(l); err != nil {
		return io.ErrUnexpectedEOF
	}
	return nil
}

// nextMarker skips to the next marker and returns its code.
func (s *jpegStream) nextMarker() (byte, error) {
	for {
		b, err := s.readByte()
		if err != nil {
			return 0, err
		}
		if b != 0xff {
			continue
		}
		for b == 0xff {
			if b, err = s.readByte(); err != nil {
				return 0, err
			}
		}
		if b != 0 {
			return b, nil
		}
	}
}

// start reads the headers up to and including the first SOS.
func (s *jpegStream) start() error {
	var soi [2]byte
	if err := s.readFull(soi[:]); err != nil {
		return err
	}
	if string(soi[:]) != jpegSignature {
		return errors.New("missing SOI marker")
	}

	for {
		m, err := s.nextMarker()
		if err != nil {
			return err
		}
		switch {
		case m == mSOF0 || m == mSOF1:
			data, err := s.segment()
			if err != nil {
				return err
			}
			if err := s.frame(data); err != nil {
				return err
			}
		case m > mSOF1 && m <= mSOF15 && m != mDHT:
			return errJPEGFallback
		case m == mDHT:
			data, err := s.segment()
			if err != nil {
				return err
			}
			if err := s.tables(data); err != nil {
				return err
			}
		case m == mDQT:
			data, err := s.segment()
			if err != nil {
				return err
			}
			if err := s.quantTables(data); err != nil {
				return err
			}
		case m == mDRI:
			data, err := s.segment()
			if err != nil {
				return err
			}
			if len(data) != 2 {
				return errors.New("bad DRI length")
			}
			s.restart = int(binary.BigEndian.Uint16(data))
		case m == mAPP14:
			data, err := s.segment()
			if err != nil {
				return err
			}
			if len(data) >= 12 && string(data[:5]) == "Adobe" {
				s.adobe = true
				s.adobeTransform = data[11]
			}
		case m == mSOS:
			if s.comps == nil {
				return errors.New("scan before frame header")
			}
			data, err := s.segment()
			if err != nil {
				return err
			}
			return s.scanHeader(data)
		case m == mEOI:
			return errors.New("no image data")
		case m >= mRST0 && m <= mRST7:
		default:
			if err := s.skipSegment(); err != nil {
				return err
			}
		}
	}
}

func (s *jpegStream) frame(data []byte) error {
	if s.comps != nil {
		return errors.New("multiple frame headers")
	}
	if len(data) < 6 {
		return errors.New("short frame header")
	}
	if data[0] != 8 {
		return errJPEGFallback
	}
	s.height = int(binary.BigEndian.Uint16(data[1:]))
	s.width = int(binary.BigEndian.Uint16(data[3:]))
	if s.height == 0 {
		return errJPEGFallback
	}
	if s.width == 0 {
		return errors.New("zero width")
	}
	nf := int(data[5])
	if nf != 1 && nf != 3 {
		return errJPEGFallback
	}
	if len(data) != 6+3*nf {
		return errors.New("bad frame header length")
	}

	s.comps = make([]jpegComponent, nf)
	for i := range s.comps {
		p := data[6+3*i:]
		c := &s.comps[i]
		c.id = p[0]
		c.h, c.v = int(p[1]>>4), int(p[1]&0x0f)
		c.tq = int(p[2])
		if c.h < 1 || c.h > 4 || c.v < 1 || c.v > 4 {
			return fmt.Errorf("bad sampling factors %dx%d", c.h, c.v)
		}
		if c.tq > 3 {
			return errors.New("bad quantization table id")
		}
	}
	if nf == 1 {
		// A lone component is always coded one block per MCU.
		s.comps[0].h, s.comps[0].v = 1, 1
	}
	return nil
}

func (s *jpegStream) quantTables(data []byte) error {
	for len(data) > 0 {
		pq, tq := data[0]>>4, data[0]&0x0f
		if tq > 3 {
			return errors.New("bad quantization table id")
		}
		data = data[1:]
		q := &s.quant[tq]
		switch pq {
		case 0:
			if len(data) < 64 {
				return errors.New("short DQT")
			}
			for i := range q {
				q[i] = int32(data[i])
			}
			data = data[64:]
		case 1:
			if len(data) < 128 {
				return errors.New("short DQT")
			}
			for i := range q {
				q[i] = int32(binary.BigEndian.Uint16(data[2*i:]))
			}
			data = data[128:]
		default:
			return errors.New("bad quantization precision")
		}
	}
	return nil
}

func (s *jpegStream) tables(data []byte) error {
	for len(data) > 0 {
		if len(data) < 17 {
			return errors.New("short DHT")
		}
		tc, th := data[0]>>4, data[0]&0x0f
		if tc > 1 || th > 3 {
			return errors.New("bad huffman table id")
		}
		var counts [16]int
		total := 0
		for i := range counts {
			counts[i] = int(data[1+i])
			total += counts[i]
		}
		data = data[17:]
		if total > 256 || len(data) < total {
			return errors.New("bad huffman table length")
		}
		if err := s.huff[tc][th].build(counts, data[:total]); err != nil {
			return err
		}
		data = data[total:]
	}
	return nil
}

func (s *jpegStream) scanHeader(data []byte) error {
	if len(data) < 1 {
		return errors.New("short scan header")
	}
	ns := int(data[0])
	if len(data) != 1+2*ns+3 {
		return errors.New("bad scan header length")
	}
	if ns != len(s.comps) {
		return errJPEGFallback
	}
	if len(s.comps) == 3 {
		rgb := s.comps[0].id == 'R' && s.comps[1].id == 'G' && s.comps[2].id == 'B'
		if rgb || (s.adobe && s.adobeTransform == 0) {
			return errJPEGFallback
		}
	}

	s.scan = make([]int, ns)
	for i := 0; i < ns; i++ {
		id, sel := data[1+2*i], data[2+2*i]
		ci := -1
		for j := range s.comps {
			if s.comps[j].id == id {
				ci = j
			}
		}
		if ci < 0 {
			return fmt.Errorf("scan names unknown component %d", id)
		}
		c := &s.comps[ci]
		c.td, c.ta = int(sel>>4), int(sel&0x0f)
		if c.td > 3 || c.ta > 3 || !s.huff[0][c.td].ok || !s.huff[1][c.ta].ok {
			return errors.New("scan uses a missing huffman table")
		}
		s.scan[i] = ci
	}
	tail := data[1+2*ns:]
	if tail[0] != 0 || tail[1] != 63 {
		return errJPEGFallback
	}
	return nil
}

// fill tops up the bit accumulator from the entropy-coded segment. Once a
// marker is reached it supplies zero bits.
func (s *jpegStream) fill() error {
	for s.nbits <= 24 {
		var c byte
		if s.marker == 0 {
			b, err := s.readByte()
			if err != nil {
				return err
			}
			if b == 0xff {
				b2, err := s.readByte()
				for err == nil && b2 == 0xff {
					b2, err = s.readByte()
				}
				if err != nil {
					return err
				}
				if b2 == 0 {
					c = 0xff
				} else {
					s.marker = b2
				}
			} else {
				c = b
			}
		}
		s.acc |= uint32(c) << (24 - s.nbits)
		s.nbits += 8
	}
	return nil
}

// bits reads n bits, 1 <= n <= 16, most significant first.
func (s *jpegStream) bits(n int) (int32, error) {
	if s.nbits < uint(n) {
		if err := s.fill(); err != nil {
			return 0, err
		}
	}
	v := int32(s.acc >> (32 - uint(n)))
	s.acc <<= uint(n)
	s.nbits -= uint(n)
	return v, nil
}

func (s *jpegStream) decodeHuff(t *huffTable) (byte, error) {
	var code int32
	for l := 1; l <= 16; l++ {
		b, err := s.bits(1)
		if err != nil {
			return 0, err
		}
		code = code<<1 | b
		if t.maxcode[l] >= 0 && code <= t.maxcode[l] {
			return t.vals[t.valptr[l]+code-t.mincode[l]], nil
		}
	}
	return 0, errors.New("bad huffman code")
}

func (s *jpegStream) receiveExtend(n int) (int32, error) {
	if n == 0 {
		return 0, nil
	}
	v, err := s.bits(n)
	if err != nil {
		return 0, err
	}
	if v < 1<<uint(n-1) {
		v += -(1 << uint(n)) + 1
	}
	return v, nil
}

// block decodes and dequantizes one 8x8 block of c into blk, natural order.
func (s *jpegStream) block(c *jpegComponent, blk *[64]int32) error {
	*blk = [64]int32{}
	q := &s.quant[c.tq]

	t, err := s.decodeHuff(&s.huff[0][c.td])
	if err != nil {
		return err
	}
	if t > 15 {
		return errors.New("bad DC size")
	}
	diff, err := s.receiveExtend(int(t))
	if err != nil {
		return err
	}
	c.pred += diff
	blk[0] = c.pred * q[0]

	for k := 1; k < 64; {
		rs, err := s.decodeHuff(&s.huff[1][c.ta])
		if err != nil {
			return err
		}
		r, size := int(rs>>4), int(rs&0x0f)
		if size == 0 {
			if r != 15 {
				break
			}
			k += 16
			continue
		}
		k += r
		if k > 63 {
			return errors.New("bad AC run")
		}
		v, err := s.receiveExtend(size)
		if err != nil {
			return err
		}
		blk[unzig[k]] = v * q[k]
		k++
	}
	return nil
}

// resync consumes the restart marker expected between intervals.
func (s *jpegStream) resync() error {
	s.acc, s.nbits = 0, 0
	for s.marker == 0 {
		b, err := s.readByte()
		if err != nil {
			return err
		}
		if b != 0xff {
			continue
		}
		for b == 0xff {
			if b, err = s.readByte(); err != nil {
				return err
			}
		}
		s.marker = b
	}
	if s.marker < mRST0 || s.marker > mRST7 {
		return fmt.Errorf("expected restart marker, got %#x", s.marker)
	}
	s.marker = 0
	for i := range s.comps {
		s.comps[i].pred = 0
	}
	return nil
}

// idct writes the level-shifted inverse DCT of blk to dst with the given
// stride.
func idct(blk *[64]int32, dst []byte, stride int) {
	var tmp [64]float32
	for v := 0; v < 8; v++ {
		row := blk[v*8 : v*8+8]
		for x := 0; x < 8; x++ {
			var sum float32
			for u := 0; u < 8; u++ {
				sum += idctCos[x][u] * float32(row[u])
			}
			tmp[v*8+x] = sum
		}
	}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			var sum float32
			for v := 0; v < 8; v++ {
				sum += idctCos[y][v] * tmp[v*8+x]
			}
			dst[y*stride+x] = clamp8(sum + 128)
		}
	}
}

func clamp8(f float32) byte {
	f += 0.5
	switch {
	case f <= 0:
		return 0
	case f >= 255:
		return 255
	}
	return byte(f)
}

// decodeJPEG decodes every factor-th row and column of a baseline JPEG. It
// holds one MCU row of samples per component, never the full image.
func decodeJPEG(ctx context.Context, r io.Reader, factor, maxPixels int) (image.Image, error) {
	s := &jpegStream{r: bufio.NewReader(r)}
	if err := s.start(); err != nil {
		if errors.Is(err, errJPEGFallback) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: jpeg: %v", ErrDecodeFailure, err)
	}

	outW, outH := scaledSize(s.width, s.height, factor)
	if maxPixels > 0 && outW*outH > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d output exceeds %d pixels", ErrDecodeFailure, outW, outH, maxPixels)
	}

	hmax, vmax := 1, 1
	for _, c := range s.comps {
		hmax, vmax = max(hmax, c.h), max(vmax, c.v)
	}
	mcuW, mcuH := 8*hmax, 8*vmax
	mcusX := (s.width + mcuW - 1) / mcuW
	mcusY := (s.height + mcuH - 1) / mcuH
	for i := range s.comps {
		c := &s.comps[i]
		c.stride = mcusX * c.h * 8
		n := c.stride * c.v * 8
		if n > maxBandBytes {
			return nil, fmt.Errorf("%w: jpeg band of %d bytes", ErrDecodeFailure, n)
		}
		c.band = make([]byte, n)
	}

	out := newJPEGOutput(len(s.comps), outW, outH)
	var blk [64]int32
	mcu := 0
	for my := 0; my < mcusY; my++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for mx := 0; mx < mcusX; mx++ {
			if s.restart > 0 && mcu > 0 && mcu%s.restart == 0 {
				if err := s.resync(); err != nil {
					return nil, fmt.Errorf("%w: jpeg mcu %d: %v", ErrDecodeFailure, mcu, err)
				}
			}
			for _, ci := range s.scan {
				c := &s.comps[ci]
				for v := 0; v < c.v; v++ {
					for h := 0; h < c.h; h++ {
						if err := s.block(c, &blk); err != nil {
							return nil, fmt.Errorf("%w: jpeg mcu %d: %v", ErrDecodeFailure, mcu, err)
						}
						off := v*8*c.stride + (mx*c.h+h)*8
						idct(&blk, c.band[off:], c.stride)
					}
				}
			}
			mcu++
		}
		s.emitBand(out, my*mcuH, mcuH, factor, hmax, vmax)
	}

	return out.result(), nil
}

type jpegOutput struct {
	gray *image.Gray
	rgba *image.RGBA
}

func newJPEGOutput(ncomp, w, h int) jpegOutput {
	r := image.Rect(0, 0, w, h)
	if ncomp == 1 {
		return jpegOutput{gray: image.NewGray(r)}
	}
	return jpegOutput{rgba: image.NewRGBA(r)}
}

func (o jpegOutput) result() image.Image {
	if o.gray != nil {
		return o.gray
	}
	return o.rgba
}

func (o jpegOutput) bounds() image.Rectangle {
	return o.result().Bounds()
}

// emitBand samples the output rows that fall in the MCU row starting at
// source row y0. Chroma is taken from the nearest subsampled position.
func (s *jpegStream) emitBand(out jpegOutput, y0, bandH, factor, hmax, vmax int) {
	b := out.bounds()
	outW, outH := b.Dx(), b.Dy()

	for oy := (y0 + factor - 1) / factor; oy < outH && oy*factor < y0+bandH; oy++ {
		sy := oy*factor - y0
		if out.gray != nil {
			c := &s.comps[0]
			row := c.band[sy*c.stride:]
			pix := out.gray.Pix[oy*out.gray.Stride:]
			for ox := 0; ox < outW; ox++ {
				pix[ox] = row[ox*factor]
			}
			continue
		}

		yc, cb, cr := &s.comps[0], &s.comps[1], &s.comps[2]
		yRow := yc.band[(sy*yc.v/vmax)*yc.stride:]
		cbRow := cb.band[(sy*cb.v/vmax)*cb.stride:]
		crRow := cr.band[(sy*cr.v/vmax)*cr.stride:]
		pix := out.rgba.Pix[oy*out.rgba.Stride:]
		for ox := 0; ox < outW; ox++ {
			sx := ox * factor
			rr, gg, bb := color.YCbCrToRGB(
				yRow[sx*yc.h/hmax],
				cbRow[sx*cb.h/hmax],
				crRow[sx*cr.h/hmax],
			)
			p := pix[4*ox : 4*ox+4]
			p[0], p[1], p[2], p[3] = rr, gg, bb, 0xff
		}
	}
}
