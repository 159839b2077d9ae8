// Package scene resolves the object graph of a 3MF package and assembles it
// into a single normalized triangle mesh.
package scene

import (
	"fmt"
	gomath "math"

	"github.com/Faultbox/mesh3mf/pkg/formats"
	"github.com/Faultbox/mesh3mf/pkg/math"
)

// DefaultTargetSize is the extent of the longest axis after normalization.
const DefaultTargetSize = 10

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	Min [3]float32
	Max [3]float32
}

// Geometry is the assembled scene, ready for upload. Vertices, Normals and
// Colors hold three floats per vertex; Indices hold three per triangle.
// Colors is nil when no instance carries color; otherwise uncolored slots
// hold NoColor.
type Geometry struct {
	Vertices []float32
	Normals  []float32
	Colors   []float32
	Indices  []uint32

	// Bounds is the normalized bounding box.
	Bounds Bounds
	// Center and Scale map normalized coordinates back to model units:
	// source = normalized/Scale + Center.
	Center math.Vec3
	Scale  float64

	Instances int
	Unit      formats.Unit
	Metadata  map[string]string
}

// VertexCount returns the number of vertices.
func (g *Geometry) VertexCount() int {
	return len(g.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (g *Geometry) TriangleCount() int {
	return len(g.Indices) / 3
}

// Assemble concatenates the instances into one mesh. Each instance's
// vertices are transformed by its world matrix and its indices are offset
// by the vertices already emitted. The result is centered on the origin and
// uniformly scaled so its longest axis equals targetSize; a degenerate
// extent keeps scale 1. Instances with a mirroring transform have their
// winding reversed so faces keep pointing outward. A vertex that leaves the
// float64 range once transformed fails with ErrGeometryTooLarge.
func Assemble(instances []ResolvedInstance, targetSize float64) (*Geometry, error) {
	var vertexCount, indexCount int
	withColors := false
	for _, inst := range instances {
		mesh := inst.Mesh()
		vertexCount += len(mesh.Vertices)
		indexCount += 3 * len(mesh.Triangles)
		if inst.Colors != nil {
			withColors = true
		}
	}
	if vertexCount == 0 || indexCount == 0 {
		return nil, ErrEmptyScene
	}
	if uint64(vertexCount) > gomath.MaxUint32 {
		return nil, fmt.Errorf("%w: %d vertices", ErrGeometryTooLarge, vertexCount)
	}

	positions := make([]math.Vec3, 0, vertexCount)
	indices := make([]uint32, 0, indexCount)
	var colors []float32
	if withColors {
		colors = make([]float32, 0, 3*vertexCount)
	}

	box := math.EmptyBox()
	for _, inst := range instances {
		mesh := inst.Mesh()
		base := uint32(len(positions))

		identity := inst.World.IsIdentity()
		for _, v := range mesh.Vertices {
			p := v
			if !identity {
				p = inst.World.TransformPoint(v)
			}
			if !p.IsFinite() {
				return nil, fmt.Errorf("%w: object %s has a vertex outside the float64 range", ErrGeometryTooLarge, inst.Object.ID)
			}
			positions = append(positions, p)
			box.Extend(p)
		}

		mirrored := inst.World.Determinant3() < 0
		for _, tri := range mesh.Triangles {
			a, b, c := tri.V[0], tri.V[1], tri.V[2]
			if mirrored {
				b, c = c, b
			}
			indices = append(indices, base+uint32(a), base+uint32(b), base+uint32(c))
		}

		if withColors {
			if inst.Colors != nil {
				colors = append(colors, inst.Colors...)
			} else {
				for i := 0; i < 3*len(mesh.Vertices); i++ {
					colors = append(colors, NoColor)
				}
			}
		}
	}

	center := box.Center()
	half := box.HalfSize().MaxComponent()
	scale := 1.0
	normalize := func(p math.Vec3) math.Vec3 { return p.Sub(center) }
	if half > 0 && targetSize > 0 {
		// Divide before multiplying so offsets near the float64 limits
		// cannot overflow.
		k := targetSize / 2
		scale = k / half
		normalize = func(p math.Vec3) math.Vec3 {
			d := p.Sub(center)
			return math.Vec3{X: d.X / half * k, Y: d.Y / half * k, Z: d.Z / half * k}
		}
	}

	g := &Geometry{
		Vertices:  make([]float32, 3*len(positions)),
		Colors:    colors,
		Indices:   indices,
		Center:    center,
		Scale:     scale,
		Instances: len(instances),
	}
	for i, p := range positions {
		n := normalize(p)
		positions[i] = n
		g.Vertices[3*i] = float32(n.X)
		g.Vertices[3*i+1] = float32(n.Y)
		g.Vertices[3*i+2] = float32(n.Z)
	}

	lo := normalize(box.Min)
	hi := normalize(box.Max)
	g.Bounds = Bounds{
		Min: [3]float32{float32(lo.X), float32(lo.Y), float32(lo.Z)},
		Max: [3]float32{float32(hi.X), float32(hi.Y), float32(hi.Z)},
	}

	g.Normals = vertexNormals(positions, indices)
	return g, nil
}

// vertexNormals computes area-weighted vertex normals. The cross product of
// two triangle edges has a length of twice the triangle area, so summing the
// raw products weights each face by its area. Vertices touched only by
// degenerate triangles get +Z.
func vertexNormals(positions []math.Vec3, indices []uint32) []float32 {
	sums := make([]math.Vec3, len(positions))
	for i := 0; i+2 < len(indices); i += 3 {
		a, b, c := indices[i], indices[i+1], indices[i+2]
		face := positions[b].Sub(positions[a]).Cross(positions[c].Sub(positions[a]))
		sums[a] = sums[a].Add(face)
		sums[b] = sums[b].Add(face)
		sums[c] = sums[c].Add(face)
	}

	normals := make([]float32, 3*len(positions))
	for i, s := range sums {
		n := s.Normalize()
		if n == (math.Vec3{}) {
			n = math.Vec3{Z: 1}
		}
		normals[3*i] = float32(n.X)
		normals[3*i+1] = float32(n.Y)
		normals[3*i+2] = float32(n.Z)
	}
	return normals
}
