package scene

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Faultbox/mesh3mf/pkg/container"
	"github.com/Faultbox/mesh3mf/pkg/formats"
)

// Build errors. The archive and document errors are re-exported so callers
// only need this package to classify a failure.
var (
	ErrCorruptArchive      = container.ErrCorruptArchive
	ErrEntryNotFound       = container.ErrEntryNotFound
	ErrNoRootRelationship  = formats.ErrNoRootRelationship
	ErrMalformedXML        = formats.ErrMalformedXML
	ErrMissingResources    = formats.ErrMissingResources
	ErrUnresolvedReference = errors.New("unresolved object reference")
	ErrReferenceCycle      = errors.New("object reference cycle")
	ErrEmptyScene          = errors.New("scene contains no geometry")

	// ErrDuplicateObject is an unresolved-reference error: ids are global
	// across parts, so a collision leaves references ambiguous.
	ErrDuplicateObject = fmt.Errorf("%w: duplicate object id", ErrUnresolvedReference)

	ErrInstanceLimit    = errors.New("object graph exceeds instance limit")
	ErrGeometryTooLarge = errors.New("geometry exceeds index range")
)

// ReferenceError describes a failed object reference.
type ReferenceError struct {
	Err      error
	ObjectID string   // the id that could not be resolved, or that closed a cycle
	Referrer string   // referencing object id; empty for a build item
	Part     string   // model part of the referrer or duplicate
	Path     []string // active object path, for cycles
}

func (e *ReferenceError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	fmt.Fprintf(&b, ": object %q", e.ObjectID)
	if e.Referrer != "" {
		fmt.Fprintf(&b, " referenced by object %q", e.Referrer)
	} else if !errors.Is(e.Err, ErrDuplicateObject) {
		b.WriteString(" referenced by build item")
	}
	if e.Part != "" {
		fmt.Fprintf(&b, " in %s", e.Part)
	}
	if len(e.Path) > 0 {
		fmt.Fprintf(&b, " (path %s)", strings.Join(e.Path, " -> "))
	}
	return b.String()
}

func (e *ReferenceError) Unwrap() error {
	return e.Err
}
