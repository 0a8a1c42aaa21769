// Package decode turns fetched image bytes into RGB pixel buffers owned by
// the Go heap.
//
// Codecs hand back pixels in memory they allocated themselves (C heap,
// buffer pool). That memory is wrapped in a ForeignBuffer, copied out, and
// released exactly once before Decode returns; callers never see it.
package decode

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sipeed/discordant/pkg/logger"
)

// BytesPerPixel is the size of one RGB pixel.
const BytesPerPixel = 3

// ErrReleased is returned when a ForeignBuffer is read after Release.
var ErrReleased = errors.New("decode: foreign buffer already released")

// Allocation is memory owned by a codec's allocator. Bytes is only valid
// until Free; Free must be called exactly once.
type Allocation interface {
	Bytes() []byte
	Free()
}

// Codec is an image codec with its own allocator.
type Codec interface {
	// GetInfo reports whether data is in a format the codec can decode.
	GetInfo(data []byte) (width, height int, ok bool)
	// DecodeRGB decodes data into packed RGB pixels.
	DecodeRGB(data []byte) (pixels Allocation, width, height int, err error)
}

// ForeignBuffer owns a codec allocation until Release. It never exposes the
// allocation itself, only a copy of its contents.
type ForeignBuffer struct {
	mu       sync.Mutex
	alloc    Allocation
	length   int
	released bool
}

func newForeignBuffer(alloc Allocation, length int) *ForeignBuffer {
	return &ForeignBuffer{alloc: alloc, length: length}
}

// CopyOut copies the first length bytes of the allocation into a new slice.
func (b *ForeignBuffer) CopyOut() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil, ErrReleased
	}
	src := b.alloc.Bytes()
	if len(src) < b.length {
		return nil, fmt.Errorf("decode: codec returned %d bytes, want %d", len(src), b.length)
	}
	out := make([]byte, b.length)
	copy(out, src[:b.length])
	return out, nil
}

// Release frees the allocation. Only the first call has an effect.
func (b *ForeignBuffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return
	}
	b.released = true
	b.alloc.Free()
	b.alloc = nil
}

// Image is a decoded, Go-owned RGB image.
type Image struct {
	Pix    []byte
	Width  int
	Height int
	Stride int
}

// Decoder adapts a Codec.
type Decoder struct {
	codec Codec
}

// NewDecoder creates a decoder over codec.
func NewDecoder(codec Codec) *Decoder {
	return &Decoder{codec: codec}
}

// Decode returns the image in data, or false when the codec does not
// recognise the format or fails to decode it. Unsupported formats (for
// example animated images) are expected and are not errors.
func (d *Decoder) Decode(data []byte) (*Image, bool) {
	if _, _, ok := d.codec.GetInfo(data); !ok {
		logger.DebugCF("decode", "Unsupported image format", map[string]interface{}{
			"bytes": len(data),
		})
		return nil, false
	}

	alloc, width, height, err := d.codec.DecodeRGB(data)
	if err != nil {
		logger.WarnCF("decode", "Decode failed", map[string]interface{}{
			"bytes": len(data),
			"error": err.Error(),
		})
		return nil, false
	}

	buf := newForeignBuffer(alloc, width*height*BytesPerPixel)
	defer buf.Release()

	pix, err := buf.CopyOut()
	if err != nil {
		logger.WarnCF("decode", "Copy out of codec buffer failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, false
	}

	return &Image{
		Pix:    pix,
		Width:  width,
		Height: height,
		Stride: width * BytesPerPixel,
	}, true
}
