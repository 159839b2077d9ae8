package formats

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/Faultbox/mesh3mf/pkg/encoding"
)

// Relationship types and well-known part names.
const (
	ModelRelationshipType = "http://schemas.microsoft.com/3dmanufacturing/2013/01/3dmodel"
	RootRelsPath          = "_rels/.rels"
)

// Relationship errors.
var (
	ErrNoRootRelationship = errors.New("no root model relationship")
)

// Relationship is one <Relationship> element of a .rels part.
type Relationship struct {
	Target string `xml:"Target,attr"`
	ID     string `xml:"Id,attr"`
	Type   string `xml:"Type,attr"`
}

type relationships struct {
	Items []Relationship `xml:"Relationship"`
}

// EntryReader is the subset of an archive the resolver needs.
type EntryReader interface {
	List() []string
	Read(path string) ([]byte, error)
}

// ParseRelationships parses a .rels part.
func ParseRelationships(data []byte) ([]Relationship, error) {
	var rels relationships
	if err := newDecoder(data).Decode(&rels); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedXML, err)
	}
	return rels.Items, nil
}

// ResolveRootModelPath finds the archive path of the root model part from the
// package relationships. _rels/.rels is consulted first; within it the 3D
// model relationship is preferred over the first one listed. Without it, the
// first part-level .rels carrying a 3D model relationship is used. Targets
// outside the model part pattern are ignored. The returned path is not
// checked for existence.
func ResolveRootModelPath(a EntryReader) (string, error) {
	paths := a.List()
	for _, p := range paths {
		if p == RootRelsPath {
			return resolveFromRels(a, p, true)
		}
	}

	err := fmt.Errorf("%w: no .rels entry", ErrNoRootRelationship)
	for _, p := range paths {
		if !strings.HasSuffix(p, ".rels") {
			continue
		}
		target, relsErr := resolveFromRels(a, p, false)
		if relsErr == nil {
			return target, nil
		}
		err = relsErr
	}
	return "", err
}

// resolveFromRels picks the root model target of one .rels part. With
// anyType unset only 3D model relationships qualify.
func resolveFromRels(a EntryReader, relsPath string, anyType bool) (string, error) {
	data, err := a.Read(relsPath)
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", ErrNoRootRelationship, relsPath, err)
	}

	rels, err := ParseRelationships(data)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNoRootRelationship, relsPath, err)
	}

	first := ""
	for _, rel := range rels {
		if strings.TrimSpace(rel.Target) == "" {
			continue
		}
		target := resolveTarget(relsPath, rel.Target)
		if !IsModelPart(target) {
			continue
		}
		if rel.Type == ModelRelationshipType {
			return target, nil
		}
		if anyType && first == "" {
			first = target
		}
	}
	if first == "" {
		return "", fmt.Errorf("%w: %s has no model part relationship", ErrNoRootRelationship, relsPath)
	}
	return first, nil
}

// resolveTarget turns a relationship target into an archive path. Absolute
// targets are package-rooted; relative ones resolve against the directory
// of the part that owns the .rels file ("X/_rels/Y.rels" belongs to "X/Y").
func resolveTarget(relsPath, target string) string {
	target = strings.ReplaceAll(strings.TrimSpace(target), "\\", "/")
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(path.Clean(target), "/")
	}
	base := path.Dir(path.Dir(relsPath))
	if base == "." {
		base = ""
	}
	return strings.TrimPrefix(path.Clean(path.Join("/", base, target)), "/")
}

// IsModelPart reports whether p is a model part: under 3D/ at any depth with
// a .model suffix.
func IsModelPart(p string) bool {
	return strings.HasPrefix(p, "3D/") && strings.HasSuffix(p, ".model") && len(p) > len("3D/.model")
}

// ModelParts filters paths down to model parts, keeping their order.
func ModelParts(paths []string) []string {
	var parts []string
	for _, p := range paths {
		if IsModelPart(p) {
			parts = append(parts, p)
		}
	}
	return parts
}

func newDecoder(data []byte) *xml.Decoder {
	d := xml.NewDecoder(bytes.NewReader(encoding.TrimBOM(data)))
	d.CharsetReader = encoding.CharsetReader
	return d
}
