package scene

import (
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// NoScene is the preset name that loads nothing.
const NoScene = "none"

type preset func(b *Builder)

var presets = map[string]preset{
	"triangle": triangleScene,
	"cube":     cubeScene,
	"cubes":    cubesScene,
	"plane":    planeScene,
}

// Presets lists the procedural scene names, NoScene excluded.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewBuilderFor returns a builder filled with the named preset.
func NewBuilderFor(name string) (*Builder, error) {
	p, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown scene %q, available: %v", name, Presets())
	}
	b := NewBuilder(name)
	p(b)
	return b, nil
}

// Load builds and uploads the named preset. NoScene yields a nil scene.
func Load(device metadata.Device, name string) (*Scene, error) {
	if name == NoScene || name == "" {
		return nil, nil
	}
	b, err := NewBuilderFor(name)
	if err != nil {
		return nil, err
	}
	return b.Build(device)
}

func solid(r, g, b float32) metadata.MaterialInfo {
	return metadata.MaterialInfo{BaseColorFactor: [4]float32{r, g, b, 1}}
}

func triangleScene(b *Builder) {
	b.AddMaterial(solid(1, 1, 1))
	mesh := b.AddMesh(GenerateTriangleConfig(2, "triangle"))
	b.AddInstance(mesh, mgl32.Ident4())
}

func cubeScene(b *Builder) {
	b.AddMaterial(solid(1, 1, 1))
	mesh := b.AddMesh(GenerateCubeConfig(2, 2, 2, 1, 1, "cube"))
	b.AddInstance(mesh, mgl32.HomogRotate3DY(mgl32.DegToRad(30)).Mul4(mgl32.HomogRotate3DX(mgl32.DegToRad(20))))
}

func planeScene(b *Builder) {
	b.AddMaterial(solid(0.8, 0.8, 0.8))
	mesh := b.AddMesh(GeneratePlaneConfig(10, 10, 4, 4, 4, 4, "plane"))
	b.AddInstance(mesh, mgl32.Translate3D(0, -1, 0))
}

// cubesScene is a 3x3 grid of cubes of alternating materials standing on a floor.
func cubesScene(b *Builder) {
	floorMat := b.AddMaterial(solid(0.8, 0.8, 0.8))
	red := b.AddMaterial(solid(0.9, 0.2, 0.2))
	blue := b.AddMaterial(solid(0.2, 0.3, 0.9))

	floor := GeneratePlaneConfig(12, 12, 1, 1, 1, 1, "floor")
	floor.Material = floorMat
	floorMesh := b.AddMesh(floor)
	b.AddInstance(floorMesh, mgl32.Translate3D(0, -1, 0))

	redCube := GenerateCubeConfig(1, 1, 1, 1, 1, "red cube")
	redCube.Material = red
	blueCube := GenerateCubeConfig(1, 1, 1, 1, 1, "blue cube")
	blueCube.Material = blue
	cubes := [2]int{b.AddMesh(redCube), b.AddMesh(blueCube)}

	for z := -1; z <= 1; z++ {
		for x := -1; x <= 1; x++ {
			t := mgl32.Translate3D(float32(x)*2.5, -0.5, float32(z)*2.5).
				Mul4(mgl32.HomogRotate3DY(float32(x+z) * 0.3))
			b.AddInstance(cubes[(x+z+2)%2], t)
		}
	}
}
