package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/core"
)

// GeometryConfig is one primitive before it is packed into the scene buffers.
// Indices are local to the primitive.
type GeometryConfig struct {
	Name      string
	Positions []mgl32.Vec3
	// Colors and TexCoords are optional, when present they have one entry per position.
	Colors    []mgl32.Vec4
	TexCoords []mgl32.Vec2
	Indices   []uint32
	Material  uint32
}

/**
 * @brief Generates a single triangle in the xy plane, facing +z.
 * @param size The length of the triangle's sides. Defaults to one when zero.
 * @param name The name of the generated geometry.
 */
func GenerateTriangleConfig(size float32, name string) *GeometryConfig {
	if size == 0 {
		core.LogWarn("size must be nonzero. Defaulting to one.")
		size = 1
	}
	half := size * 0.5
	return &GeometryConfig{
		Name: name,
		Positions: []mgl32.Vec3{
			{-half, -half, 0},
			{half, -half, 0},
			{0, half, 0},
		},
		Indices: []uint32{0, 1, 2},
	}
}

/**
 * @brief Generates a plane in the xz plane, facing +y, made of xSegmentCount * zSegmentCount quads.
 *
 * @param width The overall width of the plane. Must be non-zero.
 * @param depth The overall depth of the plane. Must be non-zero.
 * @param xSegmentCount The number of segments along the x-axis. Must be non-zero.
 * @param zSegmentCount The number of segments along the z-axis. Must be non-zero.
 * @param tileX The number of times the texture tiles across the x-axis. Must be non-zero.
 * @param tileY The number of times the texture tiles across the z-axis. Must be non-zero.
 * @param name The name of the generated geometry.
 */
func GeneratePlaneConfig(width, depth float32, xSegmentCount, zSegmentCount uint32, tileX, tileY float32, name string) *GeometryConfig {
	if width == 0 {
		core.LogWarn("Width must be nonzero. Defaulting to one.")
		width = 1.0
	}
	if depth == 0 {
		core.LogWarn("Depth must be nonzero. Defaulting to one.")
		depth = 1.0
	}
	if xSegmentCount < 1 {
		core.LogWarn("xSegmentCount must be a positive number. Defaulting to one.")
		xSegmentCount = 1
	}
	if zSegmentCount < 1 {
		core.LogWarn("zSegmentCount must be a positive number. Defaulting to one.")
		zSegmentCount = 1
	}
	if tileX == 0 {
		core.LogWarn("tileX must be nonzero. Defaulting to one.")
		tileX = 1.0
	}
	if tileY == 0 {
		core.LogWarn("tileY must be nonzero. Defaulting to one.")
		tileY = 1.0
	}

	quads := xSegmentCount * zSegmentCount
	config := &GeometryConfig{
		Name:      name,
		Positions: make([]mgl32.Vec3, quads*4),
		TexCoords: make([]mgl32.Vec2, quads*4),
		Indices:   make([]uint32, quads*6),
	}

	// quads do not share vertices
	segWidth := width / float32(xSegmentCount)
	segDepth := depth / float32(zSegmentCount)
	halfWidth := width * 0.5
	halfDepth := depth * 0.5
	for z := uint32(0); z < zSegmentCount; z++ {
		for x := uint32(0); x < xSegmentCount; x++ {
			minX := float32(x)*segWidth - halfWidth
			minZ := float32(z)*segDepth - halfDepth
			maxX := minX + segWidth
			maxZ := minZ + segDepth
			minU := float32(x) / float32(xSegmentCount) * tileX
			minV := float32(z) / float32(zSegmentCount) * tileY
			maxU := float32(x+1) / float32(xSegmentCount) * tileX
			maxV := float32(z+1) / float32(zSegmentCount) * tileY

			v := (z*xSegmentCount + x) * 4
			config.Positions[v+0] = mgl32.Vec3{minX, 0, maxZ}
			config.Positions[v+1] = mgl32.Vec3{maxX, 0, minZ}
			config.Positions[v+2] = mgl32.Vec3{minX, 0, minZ}
			config.Positions[v+3] = mgl32.Vec3{maxX, 0, maxZ}
			config.TexCoords[v+0] = mgl32.Vec2{minU, minV}
			config.TexCoords[v+1] = mgl32.Vec2{maxU, maxV}
			config.TexCoords[v+2] = mgl32.Vec2{minU, maxV}
			config.TexCoords[v+3] = mgl32.Vec2{maxU, minV}

			i := (z*xSegmentCount + x) * 6
			copy(config.Indices[i:i+6], []uint32{v, v + 1, v + 2, v, v + 3, v + 1})
		}
	}
	return config
}

// cubeFaces lists, per face, the normal and the four corners as signs of the half extents.
var cubeFaces = [6]struct {
	normal  mgl32.Vec3
	corners [4]mgl32.Vec3
}{
	// front
	{mgl32.Vec3{0, 0, 1}, [4]mgl32.Vec3{{-1, -1, 1}, {1, 1, 1}, {-1, 1, 1}, {1, -1, 1}}},
	// back
	{mgl32.Vec3{0, 0, -1}, [4]mgl32.Vec3{{1, -1, -1}, {-1, 1, -1}, {1, 1, -1}, {-1, -1, -1}}},
	// left
	{mgl32.Vec3{-1, 0, 0}, [4]mgl32.Vec3{{-1, -1, -1}, {-1, 1, 1}, {-1, 1, -1}, {-1, -1, 1}}},
	// right
	{mgl32.Vec3{1, 0, 0}, [4]mgl32.Vec3{{1, -1, 1}, {1, 1, -1}, {1, 1, 1}, {1, -1, -1}}},
	// bottom
	{mgl32.Vec3{0, -1, 0}, [4]mgl32.Vec3{{1, -1, 1}, {-1, -1, -1}, {1, -1, -1}, {-1, -1, 1}}},
	// top
	{mgl32.Vec3{0, 1, 0}, [4]mgl32.Vec3{{-1, 1, 1}, {1, 1, -1}, {-1, 1, -1}, {1, 1, 1}}},
}

/**
 * @brief Generates an axis aligned cube centered on the origin, four vertices per face.
 * Every face gets a flat vertex color derived from its normal.
 *
 * @param width The overall width of the cube. Must be non-zero.
 * @param height The overall height of the cube. Must be non-zero.
 * @param depth The overall depth of the cube. Must be non-zero.
 * @param tileX The number of times the texture tiles across a face on the x-axis. Must be non-zero.
 * @param tileY The number of times the texture tiles across a face on the y-axis. Must be non-zero.
 * @param name The name of the generated geometry.
 */
func GenerateCubeConfig(width, height, depth, tileX, tileY float32, name string) *GeometryConfig {
	if width == 0 {
		core.LogWarn("Width must be nonzero. Defaulting to one.")
		width = 1.0
	}
	if height == 0 {
		core.LogWarn("Height must be nonzero. Defaulting to one.")
		height = 1.0
	}
	if depth == 0 {
		core.LogWarn("Depth must be nonzero. Defaulting to one.")
		depth = 1
	}
	if tileX == 0 {
		core.LogWarn("tileX must be nonzero. Defaulting to one.")
		tileX = 1.0
	}
	if tileY == 0 {
		core.LogWarn("tileY must be nonzero. Defaulting to one.")
		tileY = 1.0
	}

	half := mgl32.Vec3{width * 0.5, height * 0.5, depth * 0.5}
	uvs := [4]mgl32.Vec2{{0, 0}, {tileX, tileY}, {0, tileY}, {tileX, 0}}

	config := &GeometryConfig{
		Name:      name,
		Positions: make([]mgl32.Vec3, 0, 24),
		Colors:    make([]mgl32.Vec4, 0, 24),
		TexCoords: make([]mgl32.Vec2, 0, 24),
		Indices:   make([]uint32, 0, 36),
	}
	for i, face := range cubeFaces {
		// map the normal from [-1,1] to [0.25,1] so no face is black
		c := face.normal.Mul(0.375).Add(mgl32.Vec3{0.625, 0.625, 0.625})
		for j, corner := range face.corners {
			config.Positions = append(config.Positions, mgl32.Vec3{corner[0] * half[0], corner[1] * half[1], corner[2] * half[2]})
			config.Colors = append(config.Colors, c.Vec4(1))
			config.TexCoords = append(config.TexCoords, uvs[j])
		}
		v := uint32(i * 4)
		config.Indices = append(config.Indices, v, v+1, v+2, v, v+3, v+1)
	}
	return config
}
