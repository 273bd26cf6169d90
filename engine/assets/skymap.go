package assets

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	emath "github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const (
	gradientWidth  = 256
	gradientHeight = 128
	// skymaps larger than this are downscaled on load
	maxSkymapExtent = 8192
)

// LoadSkymap loads the equirectangular sky at path. An empty path, or a file that cannot
// be loaded, yields the procedural gradient sky.
func LoadSkymap(path string) *Image {
	if path == "" {
		core.LogDebug("no skymap configured, using the gradient sky")
		return GradientSkymap(gradientWidth, gradientHeight)
	}
	img, err := LoadImage(path, ImageParams{MaxExtent: maxSkymapExtent})
	if err != nil {
		core.LogWarn("failed to load skymap %s, using the gradient sky: %s", path, err.Error())
		return GradientSkymap(gradientWidth, gradientHeight)
	}
	core.LogInfo("skymap %s loaded (%dx%d)", path, img.Width, img.Height)
	return img
}

var (
	zenith  = [3]float32{0.30, 0.50, 0.90}
	horizon = [3]float32{0.85, 0.90, 1.00}
	ground  = [3]float32{0.35, 0.33, 0.30}
)

// GradientSkymap generates an equirectangular sky: blue at the zenith, pale at the
// horizon and a flat ground below it.
func GradientSkymap(width, height uint32) *Image {
	img := &Image{Name: "gradient sky", Width: width, Height: height, Pixels: make([]byte, 0, width*height*4)}
	for y := uint32(0); y < height; y++ {
		// 1 at the zenith, 0 at the horizon, negative below
		elevation := 1 - 2*(float32(y)+0.5)/float32(height)
		var c [3]float32
		if elevation >= 0 {
			c = lerp(horizon, zenith, elevation)
		} else {
			c = lerp(horizon, ground, emath.Clamp(-elevation*4, 0, 1))
		}
		for x := uint32(0); x < width; x++ {
			img.Pixels = append(img.Pixels, unorm(c[0]), unorm(c[1]), unorm(c[2]), 255)
		}
	}
	return img
}

func lerp(a, b [3]float32, t float32) [3]float32 {
	return [3]float32{a[0] + (b[0]-a[0])*t, a[1] + (b[1]-a[1])*t, a[2] + (b[2]-a[2])*t}
}

func unorm(f float32) uint8 {
	return uint8(emath.Clamp(f, 0, 1)*255 + 0.5)
}

// Upload creates a sampled R8G8B8A8 image holding img and a view of it.
func Upload(device metadata.Device, img *Image) (metadata.Image, metadata.ImageView, error) {
	gpu, err := device.CreateImage(metadata.ImageDesc{
		Name:   img.Name,
		Width:  img.Width,
		Height: img.Height,
		Format: metadata.FormatR8G8B8A8Unorm,
		Usage:  metadata.ImageUsageSampled | metadata.ImageUsageTransferDst,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create image %s: %w", img.Name, err)
	}
	if err := device.UploadImage(gpu, img.Pixels); err != nil {
		gpu.Release()
		return nil, nil, fmt.Errorf("failed to upload image %s: %w", img.Name, err)
	}
	view, err := device.CreateImageView(gpu)
	if err != nil {
		gpu.Release()
		return nil, nil, err
	}
	return gpu, view, nil
}
