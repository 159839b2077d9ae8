package scene

import (
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"go.uber.org/multierr"

	"github.com/Faultbox/mesh3mf/pkg/formats"
)

// MaterialNamespace is the materials and properties extension namespace.
const MaterialNamespace = "http://schemas.microsoft.com/3dmanufacturing/material/2015/02"

// NoColor fills color slots of vertices no triangle assigned a color to.
const NoColor float32 = -1

// RGB is a color with components in [0,1].
type RGB [3]float32

// ColorGroup is an indexed list of colors. Entries whose color could not be
// parsed are nil and leave their vertices uncolored.
type ColorGroup struct {
	ID     string
	Colors []*RGB
}

// At returns the color at index i, or nil if i is out of range or the entry
// is unusable.
func (g ColorGroup) At(i int) *RGB {
	if i < 0 || i >= len(g.Colors) {
		return nil
	}
	return g.Colors[i]
}

// ParseColor parses a #RRGGBB or #RRGGBBAA color. Alpha is discarded. When
// linear is set the sRGB components are converted to linear light.
func ParseColor(s string, linear bool) (RGB, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	if len(s) == 9 {
		s = s[:7]
	}
	if len(s) != 7 {
		return RGB{}, fmt.Errorf("invalid color %q", s)
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return RGB{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	if linear {
		r, g, b := c.LinearRgb()
		return RGB{float32(r), float32(g), float32(b)}, nil
	}
	return RGB{float32(c.R), float32(c.G), float32(c.B)}, nil
}

// ApplyColors expands the triangle property indices of mesh into a
// per-vertex RGB buffer. Triangles without a pid use the object's pid and
// pindex; p2 and p3 fall back to p1. Triangles naming an unknown group or an
// out-of-range index leave their vertices untouched. When a vertex is shared
// by triangles of different colors, the last triangle wins. The result is
// nil if no vertex was colored.
func ApplyColors(mesh *formats.Mesh, groups map[string]ColorGroup, objPID string, objPIndex int) []float32 {
	if mesh == nil || len(groups) == 0 {
		return nil
	}

	buf := make([]float32, 3*len(mesh.Vertices))
	for i := range buf {
		buf[i] = NoColor
	}

	colored := false
	for _, tri := range mesh.Triangles {
		pid := tri.PID
		p := tri.P
		if pid == "" {
			pid = objPID
			if p[0] == formats.NoProperty {
				p[0] = objPIndex
			}
		}
		group, ok := groups[pid]
		if !ok || p[0] == formats.NoProperty {
			continue
		}
		for j := 1; j < 3; j++ {
			if p[j] == formats.NoProperty {
				p[j] = p[0]
			}
		}
		for j, v := range tri.V {
			c := group.At(p[j])
			if c == nil {
				continue
			}
			copy(buf[3*v:3*v+3], c[:])
			colored = true
		}
	}

	if !colored {
		return nil
	}
	return buf
}

// MaterialsFactory returns a factory for the materials extension. It reads
// <colorgroup> resources and core <basematerials> display colors.
func MaterialsFactory(linear bool) ExtensionFactory {
	return func() Extension {
		return &materials{linear: linear, parts: make(map[string]map[string]ColorGroup)}
	}
}

type materials struct {
	linear bool
	parts  map[string]map[string]ColorGroup // part path -> group id -> group
}

func (m *materials) Namespace() string {
	return MaterialNamespace
}

// Accepts parts with base materials, which live in the core namespace.
func (m *materials) Accepts(part *formats.Model) bool {
	return len(part.BaseMaterials) > 0
}

func (m *materials) Load(part *formats.Model) error {
	groups := m.parts[part.Path]
	if groups == nil {
		groups = make(map[string]ColorGroup)
		m.parts[part.Path] = groups
	}

	var errs error
	for _, bm := range part.BaseMaterials {
		group := ColorGroup{ID: bm.ID, Colors: make([]*RGB, len(bm.Materials))}
		for i, mat := range bm.Materials {
			c, err := ParseColor(mat.DisplayColor, m.linear)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("basematerials %q entry %d: %w", bm.ID, i, err))
				continue
			}
			group.Colors[i] = &c
		}
		groups[bm.ID] = group
	}

	if !part.Declares(MaterialNamespace) {
		return errs
	}
	for _, el := range part.Extensions {
		if el.XMLName.Space != MaterialNamespace || el.XMLName.Local != "colorgroup" {
			continue
		}
		id := strings.TrimSpace(el.Attr("id"))
		if id == "" {
			errs = multierr.Append(errs, fmt.Errorf("colorgroup without id in %s", part.Path))
			continue
		}
		group := ColorGroup{ID: id}
		for _, child := range el.Children {
			if child.XMLName.Local != "color" {
				continue
			}
			c, err := ParseColor(child.Attr("color"), m.linear)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("colorgroup %q entry %d: %w", id, len(group.Colors), err))
				group.Colors = append(group.Colors, nil)
				continue
			}
			group.Colors = append(group.Colors, &c)
		}
		groups[id] = group
	}
	return errs
}

func (m *materials) VertexColors(obj *formats.Object) []float32 {
	if obj.Mesh == nil {
		return nil
	}
	return ApplyColors(obj.Mesh, m.parts[obj.Part], obj.PID, obj.PIndex)
}
