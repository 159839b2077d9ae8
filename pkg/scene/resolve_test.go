package scene

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/Faultbox/mesh3mf/pkg/formats"
	"github.com/Faultbox/mesh3mf/pkg/math"
)

func triangleMesh() *formats.Mesh {
	return &formats.Mesh{
		Vertices: []math.Vec3{{}, {X: 1}, {Y: 1}},
		Triangles: []formats.Triangle{
			{V: [3]int{0, 1, 2}, P: [3]int{formats.NoProperty, formats.NoProperty, formats.NoProperty}},
		},
	}
}

func meshObject(id string) *formats.Object {
	return &formats.Object{ID: id, PIndex: formats.NoProperty, Mesh: triangleMesh(), Part: "3D/3dmodel.model"}
}

func groupObject(id string, comps ...formats.Component) *formats.Object {
	return &formats.Object{ID: id, PIndex: formats.NoProperty, Components: comps, Part: "3D/3dmodel.model"}
}

func ref(id string, m math.Mat4) formats.Component {
	return formats.Component{ObjectID: id, Transform: m}
}

func item(id string, m math.Mat4) formats.BuildItem {
	return formats.BuildItem{ObjectID: id, Transform: m}
}

func translate(x, y, z float64) math.Mat4 {
	return math.Affine([12]float64{1, 0, 0, 0, 1, 0, 0, 0, 1, x, y, z})
}

func scaling(x, y, z float64) math.Mat4 {
	return math.Affine([12]float64{x, 0, 0, 0, y, 0, 0, 0, z, 0, 0, 0})
}

func table(objs ...*formats.Object) ObjectTable {
	t := make(ObjectTable)
	for _, o := range objs {
		t[o.ID] = o
	}
	return t
}

func TestResolveSingleMesh(t *testing.T) {
	objs := table(meshObject("1"))
	got, err := ResolveObjects(objs, []formats.BuildItem{item("1", translate(1, 2, 3))}, 0)
	if err != nil {
		t.Fatalf("ResolveObjects failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 instance, got %d", len(got))
	}
	if got[0].Object.ID != "1" {
		t.Errorf("instance object = %q, want 1", got[0].Object.ID)
	}
	if p := got[0].World.TransformPoint(math.Vec3{}); p != (math.Vec3{X: 1, Y: 2, Z: 3}) {
		t.Errorf("world origin = %v, want (1,2,3)", p)
	}
}

func TestResolveComposition(t *testing.T) {
	// item -> A -> B (translate 10) -> C (scale 2) -> mesh
	objs := table(
		groupObject("A", ref("B", translate(10, 0, 0))),
		groupObject("B", ref("C", scaling(2, 2, 2))),
		meshObject("C"),
	)
	got, err := ResolveObjects(objs, []formats.BuildItem{item("A", translate(0, 5, 0))}, 0)
	if err != nil {
		t.Fatalf("ResolveObjects failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 instance, got %d", len(got))
	}

	want := math.Vec3{X: 12, Y: 5}
	if p := got[0].World.TransformPoint(math.Vec3{X: 1}); p != want {
		t.Errorf("world point = %v, want %v", p, want)
	}
}

func TestResolveDepthFirstOrder(t *testing.T) {
	objs := table(
		groupObject("root", ref("g", math.Identity()), ref("m3", math.Identity())),
		groupObject("g", ref("m1", math.Identity()), ref("m2", math.Identity())),
		meshObject("m1"), meshObject("m2"), meshObject("m3"),
	)
	got, err := ResolveObjects(objs, []formats.BuildItem{item("root", math.Identity())}, 0)
	if err != nil {
		t.Fatalf("ResolveObjects failed: %v", err)
	}

	var ids []string
	for _, inst := range got {
		ids = append(ids, inst.Object.ID)
	}
	if want := []string{"m1", "m2", "m3"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("order = %v, want %v", ids, want)
	}
}

func TestResolveSharedObjectIsNotCycle(t *testing.T) {
	objs := table(
		groupObject("1", ref("2", math.Identity()), ref("3", math.Identity())),
		groupObject("2", ref("4", math.Identity())),
		groupObject("3", ref("4", translate(1, 0, 0))),
		meshObject("4"),
	)
	got, err := ResolveObjects(objs, []formats.BuildItem{item("1", math.Identity())}, 0)
	if err != nil {
		t.Fatalf("diamond graph should resolve, got %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 instances, got %d", len(got))
	}
}

func TestResolveRepeatedBuildItems(t *testing.T) {
	objs := table(meshObject("1"))
	items := []formats.BuildItem{item("1", math.Identity()), item("1", translate(5, 0, 0))}
	got, err := ResolveObjects(objs, items, 0)
	if err != nil {
		t.Fatalf("ResolveObjects failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 instances, got %d", len(got))
	}
}

func TestResolveUnresolved(t *testing.T) {
	tests := []struct {
		name         string
		objs         ObjectTable
		items        []formats.BuildItem
		wantID       string
		wantReferrer string
	}{
		{
			name:   "build item",
			objs:   table(meshObject("1")),
			items:  []formats.BuildItem{item("7", math.Identity())},
			wantID: "7",
		},
		{
			name:         "component",
			objs:         table(groupObject("1", ref("99", math.Identity()))),
			items:        []formats.BuildItem{item("1", math.Identity())},
			wantID:       "99",
			wantReferrer: "1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveObjects(tt.objs, tt.items, 0)
			if !errors.Is(err, ErrUnresolvedReference) {
				t.Fatalf("expected ErrUnresolvedReference, got %v", err)
			}
			var refErr *ReferenceError
			if !errors.As(err, &refErr) {
				t.Fatalf("expected *ReferenceError, got %T", err)
			}
			if refErr.ObjectID != tt.wantID || refErr.Referrer != tt.wantReferrer {
				t.Errorf("got object %q referrer %q, want %q %q", refErr.ObjectID, refErr.Referrer, tt.wantID, tt.wantReferrer)
			}
		})
	}
}

func TestResolveCycle(t *testing.T) {
	tests := []struct {
		name     string
		objs     ObjectTable
		wantPath []string
	}{
		{
			name:     "self reference",
			objs:     table(groupObject("1", ref("1", math.Identity()))),
			wantPath: []string{"1", "1"},
		},
		{
			name: "two objects",
			objs: table(
				groupObject("1", ref("2", math.Identity())),
				groupObject("2", ref("1", math.Identity())),
			),
			wantPath: []string{"1", "2", "1"},
		},
		{
			name: "cycle below a mesh sibling",
			objs: table(
				groupObject("1", ref("m", math.Identity()), ref("2", math.Identity())),
				groupObject("2", ref("3", math.Identity())),
				groupObject("3", ref("2", math.Identity())),
				meshObject("m"),
			),
			wantPath: []string{"1", "2", "3", "2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveObjects(tt.objs, []formats.BuildItem{item("1", math.Identity())}, 0)
			if !errors.Is(err, ErrReferenceCycle) {
				t.Fatalf("expected ErrReferenceCycle, got %v", err)
			}
			var refErr *ReferenceError
			if !errors.As(err, &refErr) {
				t.Fatalf("expected *ReferenceError, got %T", err)
			}
			if !reflect.DeepEqual(refErr.Path, tt.wantPath) {
				t.Errorf("cycle path = %v, want %v", refErr.Path, tt.wantPath)
			}
		})
	}
}

func TestResolveSkipsEmptyObjects(t *testing.T) {
	empty := &formats.Object{ID: "2", PIndex: formats.NoProperty, Empty: true}
	objs := table(
		groupObject("1", ref("2", math.Identity()), ref("3", math.Identity())),
		empty,
		meshObject("3"),
	)
	got, err := ResolveObjects(objs, []formats.BuildItem{item("1", math.Identity()), item("2", math.Identity())}, 0)
	if err != nil {
		t.Fatalf("ResolveObjects failed: %v", err)
	}
	if len(got) != 1 || got[0].Object.ID != "3" {
		t.Errorf("expected only object 3, got %d instances", len(got))
	}
}

func TestResolveInstanceLimit(t *testing.T) {
	// Each level references the next twice: 2^40 paths without a limit.
	const depth = 40
	objs := make(ObjectTable)
	for i := 0; i < depth; i++ {
		id := fmt.Sprintf("L%d", i)
		next := fmt.Sprintf("L%d", i+1)
		objs[id] = groupObject(id, ref(next, math.Identity()), ref(next, translate(1, 0, 0)))
	}
	objs[fmt.Sprintf("L%d", depth)] = meshObject(fmt.Sprintf("L%d", depth))

	done := make(chan error, 1)
	go func() {
		_, err := ResolveObjects(objs, []formats.BuildItem{item("L0", math.Identity())}, 10_000)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrInstanceLimit) {
			t.Errorf("expected ErrInstanceLimit, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("resolution did not terminate")
	}
}

func TestNewObjectTable(t *testing.T) {
	a := &formats.Model{Path: "3D/a.model", Objects: []*formats.Object{{ID: "1", Part: "3D/a.model"}}}
	b := &formats.Model{Path: "3D/b.model", Objects: []*formats.Object{{ID: "2", Part: "3D/b.model"}}}

	objs, err := NewObjectTable([]*formats.Model{a, b})
	if err != nil {
		t.Fatalf("NewObjectTable failed: %v", err)
	}
	if len(objs) != 2 || objs["2"].Part != "3D/b.model" {
		t.Errorf("unexpected table: %v", objs)
	}

	dup := &formats.Model{Path: "3D/c.model", Objects: []*formats.Object{{ID: "1", Part: "3D/c.model"}}}
	_, err = NewObjectTable([]*formats.Model{a, dup})
	if !errors.Is(err, ErrDuplicateObject) {
		t.Fatalf("expected ErrDuplicateObject, got %v", err)
	}
	if !errors.Is(err, ErrUnresolvedReference) {
		t.Errorf("duplicate ids should classify as unresolved references, got %v", err)
	}
}

func TestReferenceErrorMessage(t *testing.T) {
	err := &ReferenceError{Err: ErrReferenceCycle, ObjectID: "1", Referrer: "2", Part: "3D/3dmodel.model", Path: []string{"1", "2", "1"}}
	want := `object reference cycle: object "1" referenced by object "2" in 3D/3dmodel.model (path 1 -> 2 -> 1)`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
