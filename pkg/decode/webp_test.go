package decode

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

// referenceRGB decodes the PNG the WebP fixtures were made from.
func referenceRGB(t *testing.T) []byte {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", "blue-purple-pink.png"))
	require.NoError(t, err)
	defer f.Close()

	img, err := png.Decode(f)
	require.NoError(t, err)
	return packRGB(nil, img)
}

func TestWebPDecodesFixtures(t *testing.T) {
	ref := referenceRGB(t)

	tests := []struct {
		file string
		// maxMeanDiff bounds the mean per-channel difference from the PNG.
		maxMeanDiff float64
	}{
		{file: "blue-purple-pink.lossless.webp", maxMeanDiff: 0},
		{file: "blue-purple-pink.lossy.webp", maxMeanDiff: 12},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			data := readFixture(t, tt.file)

			w, h, ok := NewWebP().GetInfo(data)
			require.True(t, ok)
			assert.Equal(t, 150, w)
			assert.Equal(t, 100, h)

			img, ok := NewDecoder(NewWebP()).Decode(data)
			require.True(t, ok)
			assert.Equal(t, 150, img.Width)
			assert.Equal(t, 100, img.Height)
			assert.Equal(t, 150*3, img.Stride)
			require.Len(t, img.Pix, 150*100*3)

			var sum int
			for i := range img.Pix {
				d := int(img.Pix[i]) - int(ref[i])
				if d < 0 {
					d = -d
				}
				sum += d
			}
			assert.LessOrEqual(t, float64(sum)/float64(len(img.Pix)), tt.maxMeanDiff)
		})
	}
}

func TestWebPLosslessKnownPixels(t *testing.T) {
	img, ok := NewDecoder(NewWebP()).Decode(readFixture(t, "blue-purple-pink.lossless.webp"))
	require.True(t, ok)

	pixel := func(x, y int) []byte {
		off := y*img.Stride + x*3
		return img.Pix[off : off+3]
	}
	assert.Equal(t, []byte{15, 16, 10}, pixel(0, 0))
	assert.Equal(t, []byte{172, 177, 167}, pixel(75, 50))
	assert.Equal(t, []byte{18, 16, 17}, pixel(149, 99))
}
