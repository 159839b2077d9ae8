package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/Faultbox/mesh3mf/pkg/scene"
)

// writeOBJ writes g as a Wavefront OBJ file with vertex normals. Vertex
// colors, when present, use the common "v x y z r g b" extension; uncolored
// vertices are written white.
func writeOBJ(path string, g *scene.Geometry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encodeOBJ(f, g); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func encodeOBJ(w io.Writer, g *scene.Geometry) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# %d vertices, %d triangles\n", g.VertexCount(), g.TriangleCount())

	for i := 0; i < g.VertexCount(); i++ {
		v := g.Vertices[3*i : 3*i+3]
		if g.Colors == nil {
			fmt.Fprintf(bw, "v %g %g %g\n", v[0], v[1], v[2])
			continue
		}
		c := g.Colors[3*i : 3*i+3]
		r, gr, b := c[0], c[1], c[2]
		if r == scene.NoColor {
			r, gr, b = 1, 1, 1
		}
		fmt.Fprintf(bw, "v %g %g %g %g %g %g\n", v[0], v[1], v[2], r, gr, b)
	}
	for i := 0; i < g.VertexCount(); i++ {
		n := g.Normals[3*i : 3*i+3]
		fmt.Fprintf(bw, "vn %g %g %g\n", n[0], n[1], n[2])
	}
	for i := 0; i+2 < len(g.Indices); i += 3 {
		a, b, c := g.Indices[i]+1, g.Indices[i+1]+1, g.Indices[i+2]+1
		fmt.Fprintf(bw, "f %d//%d %d//%d %d//%d\n", a, a, b, b, c, c)
	}
	return bw.Flush()
}
