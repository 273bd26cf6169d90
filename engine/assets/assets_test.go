package assets

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/spaghettifunk/lumen/engine/renderer/gputest"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// twoRows is a 2x2 image, red on top and blue at the bottom.
func twoRows() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for x := 0; x < 2; x++ {
		img.Set(x, 0, color.NRGBA{R: 255, A: 255})
		img.Set(x, 1, color.NRGBA{B: 255, A: 255})
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodePNG(t *testing.T) {
	img, err := DecodeImage("sky.png", encodePNG(t, twoRows()), ImageParams{})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), img.Width)
	assert.Equal(t, uint32(2), img.Height)
	assert.Equal(t, []byte{255, 0, 0, 255}, img.Pixels[:4])
	assert.Equal(t, []byte{0, 0, 255, 255}, img.Pixels[8:12])
}

func TestDecodeBMP(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, twoRows()))

	img, err := DecodeImage("sky.bmp", buf.Bytes(), ImageParams{})
	require.NoError(t, err)
	assert.Len(t, img.Pixels, 16)
	assert.Equal(t, []byte{255, 0, 0, 255}, img.Pixels[:4])
}

func TestDecodeFlipY(t *testing.T) {
	img, err := DecodeImage("sky.png", encodePNG(t, twoRows()), ImageParams{FlipY: true})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 255, 255}, img.Pixels[:4])
	assert.Equal(t, []byte{255, 0, 0, 255}, img.Pixels[8:12])
}

func TestDecodeDownscales(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 64, 16))
	img, err := DecodeImage("wide.png", encodePNG(t, src), ImageParams{MaxExtent: 32})
	require.NoError(t, err)
	assert.Equal(t, uint32(32), img.Width)
	assert.Equal(t, uint32(8), img.Height)
	assert.Len(t, img.Pixels, 32*8*4)
}

func TestDecodeRejectsUnknown(t *testing.T) {
	_, err := DecodeImage("notes.txt", []byte("definitely not an image"), ImageParams{})
	assert.Error(t, err)
}

func TestLoadSkymapFallback(t *testing.T) {
	sky := LoadSkymap("")
	assert.Equal(t, uint32(gradientWidth), sky.Width)
	assert.Len(t, sky.Pixels, gradientWidth*gradientHeight*4)

	sky = LoadSkymap(filepath.Join(t.TempDir(), "missing.png"))
	assert.Equal(t, "gradient sky", sky.Name)
}

func TestLoadSkymapFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sky.png")
	require.NoError(t, os.WriteFile(path, encodePNG(t, twoRows()), 0o644))

	sky := LoadSkymap(path)
	assert.Equal(t, "sky.png", sky.Name)
	assert.Equal(t, uint32(2), sky.Width)
}

func TestGradientSkymap(t *testing.T) {
	sky := GradientSkymap(4, 8)
	top := sky.Pixels[:4]
	bottom := sky.Pixels[len(sky.Pixels)-4:]
	assert.Greater(t, top[2], top[0], "the zenith is blue")
	assert.Equal(t, uint8(255), top[3])
	assert.Less(t, bottom[2], top[2])
}

func TestUpload(t *testing.T) {
	device := gputest.NewDevice()
	sky := GradientSkymap(4, 2)

	img, view, err := Upload(device, sky)
	require.NoError(t, err)
	assert.Same(t, img, view.Image())
	assert.Equal(t, metadata.FormatR8G8B8A8Unorm, img.Format())
	assert.Equal(t, metadata.ImageLayoutShaderReadOnly, img.Layout())
	assert.Equal(t, sky.Pixels, img.(*gputest.Image).Pixels)
}

func TestUploadSizeMismatch(t *testing.T) {
	device := gputest.NewDevice()
	_, _, err := Upload(device, &Image{Name: "broken", Width: 4, Height: 4, Pixels: make([]byte, 3)})
	assert.Error(t, err)
	assert.True(t, device.Images[0].Released())
}
