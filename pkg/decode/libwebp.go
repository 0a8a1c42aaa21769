//go:build cgo && libwebp

package decode

/*
#cgo pkg-config: libwebp
#include <stdlib.h>
#include <webp/decode.h>
*/
import "C"

import (
	"errors"
	"unsafe"
)

// LibWebP decodes through the system libwebp. Pixel buffers live on the C
// heap and are returned with WebPFree.
type LibWebP struct{}

var _ Codec = LibWebP{}

func (LibWebP) GetInfo(data []byte) (int, int, bool) {
	if len(data) == 0 {
		return 0, 0, false
	}
	var w, h C.int
	ok := C.WebPGetInfo((*C.uint8_t)(unsafe.Pointer(&data[0])), C.size_t(len(data)), &w, &h)
	return int(w), int(h), ok != 0
}

func (LibWebP) DecodeRGB(data []byte) (Allocation, int, int, error) {
	if len(data) == 0 {
		return nil, 0, 0, errors.New("libwebp: empty input")
	}
	var w, h C.int
	ptr := C.WebPDecodeRGB((*C.uint8_t)(unsafe.Pointer(&data[0])), C.size_t(len(data)), &w, &h)
	if ptr == nil {
		return nil, 0, 0, errors.New("libwebp: decode failed")
	}
	n := int(w) * int(h) * BytesPerPixel
	return &cAllocation{ptr: ptr, n: n}, int(w), int(h), nil
}

type cAllocation struct {
	ptr *C.uint8_t
	n   int
}

func (a *cAllocation) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(a.ptr)), a.n)
}

func (a *cAllocation) Free() {
	C.WebPFree(unsafe.Pointer(a.ptr))
	a.ptr = nil
}
