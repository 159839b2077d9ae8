package formats

import (
	"encoding/xml"
	"errors"
	"fmt"
	gomath "math"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/Faultbox/mesh3mf/pkg/math"
)

// Model document errors.
var (
	ErrMalformedXML     = errors.New("malformed XML")
	ErrMissingResources = errors.New("model has no resources element")

	// Issue kinds. These never fail a parse; they are collected in Model.Issues.
	ErrInvalidObject    = errors.New("invalid object")
	ErrInvalidMesh      = errors.New("invalid mesh")
	ErrInvalidReference = errors.New("invalid reference")
)

// NoProperty marks an absent p1/p2/p3 triangle attribute.
const NoProperty = -1

// Unit is the unit of measure for model coordinates.
type Unit string

const (
	UnitMicron     Unit = "micron"
	UnitMillimeter Unit = "millimeter"
	UnitCentimeter Unit = "centimeter"
	UnitInch       Unit = "inch"
	UnitFoot       Unit = "foot"
	UnitMeter      Unit = "meter"
)

// ParseUnit returns the unit named by s, or millimeter if s is absent or
// not recognized.
func ParseUnit(s string) Unit {
	switch u := Unit(strings.TrimSpace(s)); u {
	case UnitMicron, UnitMillimeter, UnitCentimeter, UnitInch, UnitFoot, UnitMeter:
		return u
	default:
		return UnitMillimeter
	}
}

// Millimeters returns the length of one unit in millimeters.
func (u Unit) Millimeters() float64 {
	switch u {
	case UnitMicron:
		return 0.001
	case UnitCentimeter:
		return 10
	case UnitInch:
		return 25.4
	case UnitFoot:
		return 304.8
	case UnitMeter:
		return 1000
	default:
		return 1
	}
}

// MetadataKeys is the allow-list of metadata names kept by the parser.
var MetadataKeys = []string{
	"Title", "Designer", "Description", "Copyright",
	"LicenseTerms", "Rating", "CreationDate", "ModificationDate",
}

func isMetadataKey(name string) bool {
	for _, k := range MetadataKeys {
		if k == name {
			return true
		}
	}
	return false
}

// ObjectKind classifies an object resource.
type ObjectKind int

const (
	ObjectModel   ObjectKind = iota // Printable model
	ObjectSupport                   // Support or solid support
	ObjectOther                     // Anything else (surface, other, unknown)
)

// String returns a human-readable object kind name.
func (k ObjectKind) String() string {
	switch k {
	case ObjectModel:
		return "model"
	case ObjectSupport:
		return "support"
	case ObjectOther:
		return "other"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

func parseObjectKind(s string) ObjectKind {
	switch strings.TrimSpace(s) {
	case "", "model":
		return ObjectModel
	case "support", "solidsupport":
		return ObjectSupport
	default:
		return ObjectOther
	}
}

// Triangle is one mesh face. V holds 0-based vertex indices; P holds
// property indices or NoProperty.
type Triangle struct {
	V   [3]int
	P   [3]int
	PID string
}

// Mesh is an indexed triangle mesh.
type Mesh struct {
	Vertices  []math.Vec3
	Triangles []Triangle
}

// Component instances another object, by id, with a transform.
type Component struct {
	ObjectID  string
	Transform math.Mat4
	Path      string // production extension part path, informational
}

// Object is an object resource. At most one of Mesh and Components is set.
// Empty is true when the object has no usable geometry; it is retained so
// references to it still resolve.
type Object struct {
	ID         string
	Name       string
	Kind       ObjectKind
	PID        string
	PIndex     int // NoProperty when absent
	Mesh       *Mesh
	Components []Component
	Empty      bool
	Part       string // archive path of the owning model part
}

// BuildItem places an object into the scene.
type BuildItem struct {
	ObjectID   string
	Transform  math.Mat4
	PartNumber string
	Path       string
}

// BaseMaterial is one entry of a <basematerials> group.
type BaseMaterial struct {
	Name         string
	DisplayColor string
}

// BaseMaterialGroup is a core-namespace <basematerials> resource.
type BaseMaterialGroup struct {
	ID        string
	Materials []BaseMaterial
}

// Element is a resource element the core parser does not model, kept with its
// attributes and children for extensions.
type Element struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []Element  `xml:",any"`
}

// Attr returns the value of the attribute with the given local name.
func (e Element) Attr(local string) string {
	for _, a := range e.Attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// Model is a parsed model part.
type Model struct {
	Path               string
	Unit               Unit
	Language           string
	Metadata           map[string]string
	Namespaces         map[string]string // prefix ("" for default) -> URI
	RequiredExtensions []string
	Objects            []*Object
	BaseMaterials      []BaseMaterialGroup
	Extensions         []Element
	Build              []BuildItem

	// Issues collects per-object anomalies that were absorbed during parsing.
	Issues error

	objects map[string]*Object
}

// Object returns the object with the given id, or nil.
func (m *Model) Object(id string) *Object {
	return m.objects[id]
}

// Declares reports whether the namespace URI is declared on the root element.
func (m *Model) Declares(uri string) bool {
	for _, ns := range m.Namespaces {
		if ns == uri {
			return true
		}
	}
	return false
}

// Err returns the collected issues, or nil.
func (m *Model) Err() error {
	return m.Issues
}

func (m *Model) addIssue(err error) {
	m.Issues = multierr.Append(m.Issues, err)
}

// XML shapes. Names are matched by local name so that documents using a
// prefixed core namespace still decode.

type xmlModel struct {
	XMLName            xml.Name      `xml:"model"`
	Unit               string        `xml:"unit,attr"`
	Lang               string        `xml:"http://www.w3.org/XML/1998/namespace lang,attr"`
	RequiredExtensions string        `xml:"requiredextensions,attr"`
	Attrs              []xml.Attr    `xml:",any,attr"`
	Metadata           []xmlMetadata `xml:"metadata"`
	Resources          *xmlResources `xml:"resources"`
	Build              *xmlBuild     `xml:"build"`
}

type xmlMetadata struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type xmlResources struct {
	Objects       []xmlObject        `xml:"object"`
	BaseMaterials []xmlBaseMaterials `xml:"basematerials"`
	Other         []Element          `xml:",any"`
}

type xmlBaseMaterials struct {
	ID    string    `xml:"id,attr"`
	Bases []xmlBase `xml:"base"`
}

type xmlBase struct {
	Name         string `xml:"name,attr"`
	DisplayColor string `xml:"displaycolor,attr"`
}

type xmlObject struct {
	ID         string         `xml:"id,attr"`
	Name       string         `xml:"name,attr"`
	Type       string         `xml:"type,attr"`
	PID        string         `xml:"pid,attr"`
	PIndex     string         `xml:"pindex,attr"`
	Mesh       *xmlMesh       `xml:"mesh"`
	Components *xmlComponents `xml:"components"`
}

type xmlMesh struct {
	Vertices  []xmlVertex   `xml:"vertices>vertex"`
	Triangles []xmlTriangle `xml:"triangles>triangle"`
}

type xmlVertex struct {
	X string `xml:"x,attr"`
	Y string `xml:"y,attr"`
	Z string `xml:"z,attr"`
}

type xmlTriangle struct {
	V1  string `xml:"v1,attr"`
	V2  string `xml:"v2,attr"`
	V3  string `xml:"v3,attr"`
	P1  string `xml:"p1,attr"`
	P2  string `xml:"p2,attr"`
	P3  string `xml:"p3,attr"`
	PID string `xml:"pid,attr"`
}

type xmlComponents struct {
	Items []xmlComponent `xml:"component"`
}

type xmlComponent struct {
	ObjectID  string `xml:"objectid,attr"`
	Transform string `xml:"transform,attr"`
	Path      string `xml:"path,attr"`
}

type xmlBuild struct {
	Items []xmlItem `xml:"item"`
}

type xmlItem struct {
	ObjectID   string `xml:"objectid,attr"`
	Transform  string `xml:"transform,attr"`
	PartNumber string `xml:"partnumber,attr"`
	Path       string `xml:"path,attr"`
}

// ParseModel parses a model part.
func ParseModel(data []byte) (*Model, error) {
	return ParseModelPart("", data)
}

// ParseModelPart parses the model part stored at path. Anomalies confined to
// one object or reference are recorded in Model.Issues; only unreadable XML
// and a missing resources element fail the parse.
func ParseModelPart(path string, data []byte) (*Model, error) {
	var doc xmlModel
	if err := newDecoder(data).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedXML, displayPath(path), err)
	}

	model := &Model{
		Path:       path,
		Unit:       ParseUnit(doc.Unit),
		Language:   doc.Lang,
		Metadata:   make(map[string]string),
		Namespaces: make(map[string]string),
		objects:    make(map[string]*Object),
	}

	for _, a := range doc.Attrs {
		switch {
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			model.Namespaces[""] = a.Value
		case a.Name.Space == "xmlns":
			model.Namespaces[a.Name.Local] = a.Value
		}
	}
	// The decoder resolves the root element's own namespace.
	if doc.XMLName.Space != "" {
		if _, ok := model.Namespaces[""]; !ok {
			model.Namespaces[""] = doc.XMLName.Space
		}
	}
	model.RequiredExtensions = strings.Fields(doc.RequiredExtensions)

	for _, md := range doc.Metadata {
		if isMetadataKey(md.Name) {
			model.Metadata[md.Name] = strings.TrimSpace(md.Value)
		}
	}

	if doc.Resources == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingResources, displayPath(path))
	}

	for _, bm := range doc.Resources.BaseMaterials {
		group := BaseMaterialGroup{ID: bm.ID}
		for _, b := range bm.Bases {
			group.Materials = append(group.Materials, BaseMaterial{Name: b.Name, DisplayColor: b.DisplayColor})
		}
		model.BaseMaterials = append(model.BaseMaterials, group)
	}
	model.Extensions = doc.Resources.Other

	for i := range doc.Resources.Objects {
		obj, err := model.parseObject(&doc.Resources.Objects[i])
		if err != nil {
			model.addIssue(err)
			continue
		}
		if _, dup := model.objects[obj.ID]; dup {
			model.addIssue(fmt.Errorf("%w: duplicate object id %q in %s", ErrInvalidObject, obj.ID, displayPath(path)))
			continue
		}
		model.objects[obj.ID] = obj
		model.Objects = append(model.Objects, obj)
	}

	if doc.Build != nil {
		for _, it := range doc.Build.Items {
			item, err := parseBuildItem(it)
			if err != nil {
				model.addIssue(err)
				continue
			}
			model.Build = append(model.Build, item)
		}
	}

	return model, nil
}

func (m *Model) parseObject(x *xmlObject) (*Object, error) {
	id := strings.TrimSpace(x.ID)
	if id == "" {
		return nil, fmt.Errorf("%w: object without id in %s", ErrInvalidObject, displayPath(m.Path))
	}

	obj := &Object{
		ID:     id,
		Name:   x.Name,
		Kind:   parseObjectKind(x.Type),
		PID:    strings.TrimSpace(x.PID),
		PIndex: NoProperty,
		Part:   m.Path,
	}
	if x.PIndex != "" {
		idx, err := parseIndex(x.PIndex)
		if err != nil {
			m.addIssue(fmt.Errorf("%w: object %q pindex: %v", ErrInvalidObject, id, err))
		} else {
			obj.PIndex = idx
		}
	}

	switch {
	case x.Mesh != nil:
		if x.Components != nil {
			m.addIssue(fmt.Errorf("%w: object %q has both mesh and components, using mesh", ErrInvalidObject, id))
		}
		mesh, err := parseMesh(x.Mesh)
		if err != nil {
			m.addIssue(fmt.Errorf("%w: object %q: %v", ErrInvalidMesh, id, err))
			obj.Empty = true
			break
		}
		obj.Mesh = mesh

	case x.Components != nil:
		for _, c := range x.Components.Items {
			comp, err := parseComponent(c)
			if err != nil {
				m.addIssue(fmt.Errorf("object %q: %w", id, err))
				continue
			}
			obj.Components = append(obj.Components, comp)
		}
		obj.Empty = len(obj.Components) == 0

	default:
		obj.Empty = true
	}

	return obj, nil
}

func parseMesh(x *xmlMesh) (*Mesh, error) {
	if len(x.Vertices) == 0 {
		return nil, errors.New("no vertices")
	}
	if len(x.Triangles) == 0 {
		return nil, errors.New("no triangles")
	}

	mesh := &Mesh{
		Vertices:  make([]math.Vec3, len(x.Vertices)),
		Triangles: make([]Triangle, len(x.Triangles)),
	}

	for i, v := range x.Vertices {
		var err error
		p := &mesh.Vertices[i]
		if p.X, err = parseCoord(v.X); err != nil {
			return nil, fmt.Errorf("vertex %d x: %v", i, err)
		}
		if p.Y, err = parseCoord(v.Y); err != nil {
			return nil, fmt.Errorf("vertex %d y: %v", i, err)
		}
		if p.Z, err = parseCoord(v.Z); err != nil {
			return nil, fmt.Errorf("vertex %d z: %v", i, err)
		}
	}

	count := len(mesh.Vertices)
	for i, t := range x.Triangles {
		tri := &mesh.Triangles[i]
		for j, s := range [3]string{t.V1, t.V2, t.V3} {
			idx, err := parseIndex(s)
			if err != nil {
				return nil, fmt.Errorf("triangle %d v%d: %v", i, j+1, err)
			}
			if idx >= count {
				return nil, fmt.Errorf("triangle %d v%d: index %d out of range (%d vertices)", i, j+1, idx, count)
			}
			tri.V[j] = idx
		}
		for j, s := range [3]string{t.P1, t.P2, t.P3} {
			tri.P[j] = NoProperty
			if s == "" {
				continue
			}
			idx, err := parseIndex(s)
			if err != nil {
				return nil, fmt.Errorf("triangle %d p%d: %v", i, j+1, err)
			}
			tri.P[j] = idx
		}
		tri.PID = strings.TrimSpace(t.PID)
	}

	return mesh, nil
}

func parseComponent(x xmlComponent) (Component, error) {
	id := strings.TrimSpace(x.ObjectID)
	if id == "" {
		return Component{}, fmt.Errorf("%w: component without objectid", ErrInvalidReference)
	}
	transform, err := parseOptionalTransform(x.Transform)
	if err != nil {
		return Component{}, fmt.Errorf("%w: component %q: %w", ErrInvalidReference, id, err)
	}
	return Component{ObjectID: id, Transform: transform, Path: x.Path}, nil
}

func parseBuildItem(x xmlItem) (BuildItem, error) {
	id := strings.TrimSpace(x.ObjectID)
	if id == "" {
		return BuildItem{}, fmt.Errorf("%w: build item without objectid", ErrInvalidReference)
	}
	transform, err := parseOptionalTransform(x.Transform)
	if err != nil {
		return BuildItem{}, fmt.Errorf("%w: build item %q: %w", ErrInvalidReference, id, err)
	}
	return BuildItem{ObjectID: id, Transform: transform, PartNumber: x.PartNumber, Path: x.Path}, nil
}

func parseCoord(s string) (float64, error) {
	if s == "" {
		return 0, errors.New("missing")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if gomath.IsNaN(v) || gomath.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not finite", s)
	}
	return v, nil
}

func parseIndex(s string) (int, error) {
	if s == "" {
		return 0, errors.New("missing")
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 31)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

func displayPath(p string) string {
	if p == "" {
		return "model"
	}
	return p
}
