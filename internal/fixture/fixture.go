// Package fixture builds small 3MF packages in memory for tests.
package fixture

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Namespaces used by generated model parts.
const (
	CoreNamespace     = "http://schemas.microsoft.com/3dmanufacturing/core/2015/02"
	MaterialNamespace = "http://schemas.microsoft.com/3dmanufacturing/material/2015/02"
	ModelRelType      = "http://schemas.microsoft.com/3dmanufacturing/2013/01/3dmodel"
	TextureRelType    = "http://schemas.microsoft.com/3dmanufacturing/2013/01/3dtexture"
)

// RootModelPath is where generated packages place the root model part.
const RootModelPath = "3D/3dmodel.model"

const contentTypes = `<?xml version="1.0" encoding="UTF-8"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
 <Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
 <Default Extension="model" ContentType="application/vnd.ms-package.3dmanufacturing-3dmodel+xml"/>
</Types>`

// File is one archive entry.
type File struct {
	Name string
	Data []byte
}

// Archive writes files into a ZIP archive in the given order.
func Archive(files ...File) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, f := range files {
		fw, err := w.Create(f.Name)
		if err != nil {
			panic(fmt.Sprintf("fixture: creating %s: %v", f.Name, err))
		}
		if _, err := fw.Write(f.Data); err != nil {
			panic(fmt.Sprintf("fixture: writing %s: %v", f.Name, err))
		}
	}
	if err := w.Close(); err != nil {
		panic(fmt.Sprintf("fixture: closing archive: %v", err))
	}
	return buf.Bytes()
}

// ContentTypes returns the [Content_Types].xml entry.
func ContentTypes() File {
	return File{Name: "[Content_Types].xml", Data: []byte(contentTypes)}
}

// Rels returns a _rels/.rels entry pointing at target.
func Rels(target string) File {
	return RelsAt("_rels/.rels", target, ModelRelType)
}

// RelsAt returns a .rels entry named name with one relationship of relType.
func RelsAt(name, target, relType string) File {
	return File{Name: name, Data: []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
 <Relationship Target="%s" Id="rel0" Type="%s"/>
</Relationships>`, target, relType))}
}

// Package returns a complete single-part package with the given model XML.
func Package(model string) []byte {
	return Archive(
		ContentTypes(),
		Rels("/"+RootModelPath),
		File{Name: RootModelPath, Data: []byte(model)},
	)
}

// Model wraps resources and build XML into a model document declaring the
// core and material namespaces.
func Model(resources, build string) string {
	return ModelWithNamespaces(resources, build, `xmlns:m="`+MaterialNamespace+`"`)
}

// ModelWithNamespaces is Model with caller-provided extra root attributes.
func ModelWithNamespaces(resources, build, extra string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&b, `<model unit="millimeter" xml:lang="en-US" xmlns="%s" %s>`+"\n", CoreNamespace, extra)
	b.WriteString(" <resources>\n")
	b.WriteString(resources)
	b.WriteString(" </resources>\n")
	if build != "" {
		b.WriteString(" <build>\n")
		b.WriteString(build)
		b.WriteString(" </build>\n")
	}
	b.WriteString("</model>\n")
	return b.String()
}

// CubeVertices are the corners of a unit cube.
var CubeVertices = [8][3]float64{
	{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
}

// CubeTriangles are the 12 outward-facing triangles of the unit cube.
var CubeTriangles = [12][3]int{
	{0, 2, 1}, {0, 3, 2}, // bottom
	{4, 5, 6}, {4, 6, 7}, // top
	{0, 1, 5}, {0, 5, 4}, // front
	{1, 2, 6}, {1, 6, 5}, // right
	{2, 3, 7}, {2, 7, 6}, // back
	{3, 0, 4}, {3, 4, 7}, // left
}

// CubeMesh returns the <mesh> element of the unit cube.
func CubeMesh() string {
	var b strings.Builder
	b.WriteString("   <mesh>\n    <vertices>\n")
	for _, v := range CubeVertices {
		fmt.Fprintf(&b, `     <vertex x="%g" y="%g" z="%g"/>`+"\n", v[0], v[1], v[2])
	}
	b.WriteString("    </vertices>\n    <triangles>\n")
	for _, t := range CubeTriangles {
		fmt.Fprintf(&b, `     <triangle v1="%d" v2="%d" v3="%d"/>`+"\n", t[0], t[1], t[2])
	}
	b.WriteString("    </triangles>\n   </mesh>\n")
	return b.String()
}

// CubeObject returns an <object> holding the unit cube mesh.
func CubeObject(id string) string {
	return fmt.Sprintf(`  <object id="%s" type="model">`+"\n%s  </object>\n", id, CubeMesh())
}

// TriangleObject returns an <object> with one triangle; extra is appended to
// the triangle element's attributes.
func TriangleObject(id, extra string) string {
	return fmt.Sprintf(`  <object id="%s" type="model">
   <mesh>
    <vertices>
     <vertex x="0" y="0" z="0"/>
     <vertex x="1" y="0" z="0"/>
     <vertex x="0" y="1" z="0"/>
    </vertices>
    <triangles>
     <triangle v1="0" v2="1" v3="2" %s/>
    </triangles>
   </mesh>
  </object>
`, id, extra)
}

// ComponentsObject returns an <object> whose components reference refs.
// Each ref is "objectid" or "objectid|transform".
func ComponentsObject(id string, refs ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `  <object id="%s" type="model">`+"\n   <components>\n", id)
	for _, ref := range refs {
		oid, transform, _ := strings.Cut(ref, "|")
		if transform != "" {
			fmt.Fprintf(&b, `    <component objectid="%s" transform="%s"/>`+"\n", oid, transform)
		} else {
			fmt.Fprintf(&b, `    <component objectid="%s"/>`+"\n", oid)
		}
	}
	b.WriteString("   </components>\n  </object>\n")
	return b.String()
}

// Item returns a build <item>; an empty transform is omitted.
func Item(objectID, transform string) string {
	if transform == "" {
		return fmt.Sprintf(`  <item objectid="%s"/>`+"\n", objectID)
	}
	return fmt.Sprintf(`  <item objectid="%s" transform="%s"/>`+"\n", objectID, transform)
}

// Translation returns a transform attribute value translating by (x, y, z).
func Translation(x, y, z float64) string {
	return fmt.Sprintf("1 0 0 0 1 0 0 0 1 %g %g %g", x, y, z)
}
