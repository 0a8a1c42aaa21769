package decode

import (
	"bytes"
	"image"

	"github.com/valyala/bytebufferpool"
	"golang.org/x/image/webp"
)

// WebP decodes still WebP images in pure Go. Pixel buffers come from a
// shared pool and go back to it on Free, so they are reused by later
// decodes.
type WebP struct {
	pool bytebufferpool.Pool
}

var _ Codec = (*WebP)(nil)

// NewWebP creates a WebP codec with its own buffer pool.
func NewWebP() *WebP {
	return &WebP{}
}

func (c *WebP) GetInfo(data []byte) (int, int, bool) {
	cfg, err := webp.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}

func (c *WebP) DecodeRGB(data []byte) (Allocation, int, int, error) {
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, err
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	buf := c.pool.Get()
	buf.B = packRGB(buf.B[:0], img)
	return &poolAllocation{pool: &c.pool, buf: buf}, w, h, nil
}

// packRGB appends img as packed 8-bit RGB, dropping alpha.
func packRGB(dst []byte, img image.Image) []byte {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			dst = append(dst, byte(r>>8), byte(g>>8), byte(bl>>8))
		}
	}
	return dst
}

type poolAllocation struct {
	pool *bytebufferpool.Pool
	buf  *bytebufferpool.ByteBuffer
}

func (a *poolAllocation) Bytes() []byte { return a.buf.B }

func (a *poolAllocation) Free() {
	a.pool.Put(a.buf)
	a.buf = nil
}
