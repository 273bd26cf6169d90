// Package assets loads image files into RGBA8 pixels ready for upload.
package assets

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// supportedImages are the sniffed extensions a decoder is registered for.
var supportedImages = map[string]bool{
	"png":  true,
	"jpg":  true,
	"gif":  true,
	"bmp":  true,
	"tif":  true,
	"webp": true,
}

type ImageParams struct {
	// FlipY stores the rows bottom up.
	FlipY bool
	// MaxExtent downscales images whose width or height exceeds it. Zero keeps the size.
	MaxExtent uint32
}

// Image is a decoded image as tightly packed RGBA8 rows.
type Image struct {
	Name   string
	Width  uint32
	Height uint32
	Pixels []byte
}

// LoadImage reads and decodes the image at path.
func LoadImage(path string, params ImageParams) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeImage(filepath.Base(path), data, params)
}

// DecodeImage sniffs the format of data before decoding it.
func DecodeImage(name string, data []byte, params ImageParams) (*Image, error) {
	kind, err := filetype.Match(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if kind == filetype.Unknown || !supportedImages[kind.Extension] {
		return nil, fmt.Errorf("%s: unsupported image type %q", name, kind.MIME.Value)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to decode %s: %w", name, format, err)
	}
	return fromImage(name, src, params), nil
}

func fromImage(name string, src image.Image, params ImageParams) *Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if m := int(params.MaxExtent); m > 0 && (w > m || h > m) {
		if w >= h {
			w, h = m, max(1, h*m/w)
		} else {
			w, h = max(1, w*m/h), m
		}
	}

	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(rgba, rgba.Bounds(), src, b, draw.Src, nil)
	}

	img := &Image{Name: name, Width: uint32(w), Height: uint32(h), Pixels: rgba.Pix}
	if params.FlipY {
		img.flipY()
	}
	return img
}

func (i *Image) flipY() {
	stride := int(i.Width) * 4
	row := make([]byte, stride)
	for top, bottom := 0, int(i.Height)-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := i.Pixels[top*stride : (top+1)*stride]
		b := i.Pixels[bottom*stride : (bottom+1)*stride]
		copy(row, a)
		copy(a, b)
		copy(b, row)
	}
}
