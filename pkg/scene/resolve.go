package scene

import (
	"fmt"

	"github.com/Faultbox/mesh3mf/pkg/formats"
	"github.com/Faultbox/mesh3mf/pkg/math"
)

// ObjectTable maps object ids to objects across all model parts.
type ObjectTable map[string]*formats.Object

// NewObjectTable merges the objects of every part. Ids are global within a
// package; an id defined by two parts fails with ErrDuplicateObject.
func NewObjectTable(parts []*formats.Model) (ObjectTable, error) {
	table := make(ObjectTable)
	for _, part := range parts {
		for _, obj := range part.Objects {
			if prev, ok := table[obj.ID]; ok {
				return nil, &ReferenceError{
					Err:      ErrDuplicateObject,
					ObjectID: obj.ID,
					Part:     fmt.Sprintf("%s and %s", prev.Part, obj.Part),
				}
			}
			table[obj.ID] = obj
		}
	}
	return table, nil
}

// ResolvedInstance is one mesh placed in world space.
type ResolvedInstance struct {
	Object *formats.Object
	World  math.Mat4

	// Colors is a per-vertex RGB buffer for Object.Mesh, filled by the
	// pipeline when a color-bearing extension is active.
	Colors []float32
}

// Mesh returns the instanced mesh.
func (r ResolvedInstance) Mesh() *formats.Mesh {
	return r.Object.Mesh
}

// ResolveObjects expands build items into world-space mesh instances in
// depth-first order. Empty objects are skipped. A component path that
// revisits an object already on the active path fails with
// ErrReferenceCycle; a missing id fails with ErrUnresolvedReference.
//
// limit bounds the number of objects visited, so acyclic graphs with heavy
// fan-out fail with ErrInstanceLimit instead of expanding without bound.
// A limit of zero or less disables the check.
func ResolveObjects(objects ObjectTable, items []formats.BuildItem, limit int) ([]ResolvedInstance, error) {
	r := &resolver{
		objects: objects,
		active:  make(map[string]bool),
		limit:   limit,
	}
	for _, item := range items {
		if err := r.visit(item.ObjectID, "", "", item.Transform); err != nil {
			return nil, err
		}
	}
	return r.out, nil
}

type resolver struct {
	objects ObjectTable
	active  map[string]bool
	path    []string
	out     []ResolvedInstance
	visits  int
	limit   int
}

func (r *resolver) visit(id, referrer, part string, world math.Mat4) error {
	obj, ok := r.objects[id]
	if !ok {
		return &ReferenceError{Err: ErrUnresolvedReference, ObjectID: id, Referrer: referrer, Part: part}
	}
	if r.active[id] {
		cycle := make([]string, len(r.path), len(r.path)+1)
		copy(cycle, r.path)
		return &ReferenceError{
			Err:      ErrReferenceCycle,
			ObjectID: id,
			Referrer: referrer,
			Part:     part,
			Path:     append(cycle, id),
		}
	}

	r.visits++
	if r.limit > 0 && r.visits > r.limit {
		return fmt.Errorf("%w: more than %d objects visited", ErrInstanceLimit, r.limit)
	}

	if obj.Empty {
		return nil
	}
	if obj.Mesh != nil {
		r.out = append(r.out, ResolvedInstance{Object: obj, World: world})
		return nil
	}

	r.active[id] = true
	r.path = append(r.path, id)
	for _, c := range obj.Components {
		if err := r.visit(c.ObjectID, id, obj.Part, world.Mul(c.Transform)); err != nil {
			return err
		}
	}
	r.path = r.path[:len(r.path)-1]
	delete(r.active, id)
	return nil
}
