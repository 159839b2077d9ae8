package math

import (
	"math"
	"testing"
)

func TestIdentity(t *testing.T) {
	m := Identity()
	// Diagonal should be 1
	if m[0] != 1 || m[5] != 1 || m[10] != 1 || m[15] != 1 {
		t.Error("Identity diagonal should be 1")
	}
	if !m.IsIdentity() {
		t.Error("IsIdentity returned false for Identity()")
	}
	if translate(0, 0, 1).IsIdentity() {
		t.Error("IsIdentity returned true for a translation")
	}
}

func TestMulIdentity(t *testing.T) {
	m := translate(1, 2, 3)
	result := m.Mul(Identity())

	for i := 0; i < 16; i++ {
		if result[i] != m[i] {
			t.Errorf("M * I should equal M, element %d: got %f, want %f", i, result[i], m[i])
		}
	}
}

func TestAffine(t *testing.T) {
	// Uniform scale 2 with translation (10, 20, 30).
	m := Affine([12]float64{2, 0, 0, 0, 2, 0, 0, 0, 2, 10, 20, 30})

	got := m.TransformPoint(Vec3{1, 2, 3})
	want := Vec3{12, 24, 36}
	if !vecNear(got, want) {
		t.Errorf("Affine scale+translate: got %v, want %v", got, want)
	}
}

func TestAffineRowVectorConvention(t *testing.T) {
	// Row-vector form: x' = x*m00 + y*m10 + z*m20 + m30.
	// m01 = 1 maps input x into output y.
	m := Affine([12]float64{0, 1, 0, -1, 0, 0, 0, 0, 1, 0, 0, 0})

	got := m.TransformPoint(Vec3{1, 0, 0})
	if !vecNear(got, Vec3{0, 1, 0}) {
		t.Errorf("x axis should map to y axis, got %v", got)
	}
	got = m.TransformPoint(Vec3{0, 1, 0})
	if !vecNear(got, Vec3{-1, 0, 0}) {
		t.Errorf("y axis should map to -x axis, got %v", got)
	}
}

func TestMulOrder(t *testing.T) {
	// m.Mul(other) applies other first.
	s := scaling(2, 2, 2)
	tr := translate(1, 0, 0)

	got := tr.Mul(s).TransformPoint(Vec3{1, 0, 0})
	if !vecNear(got, Vec3{3, 0, 0}) {
		t.Errorf("translate(scale(p)): got %v, want (3, 0, 0)", got)
	}
	got = s.Mul(tr).TransformPoint(Vec3{1, 0, 0})
	if !vecNear(got, Vec3{4, 0, 0}) {
		t.Errorf("scale(translate(p)): got %v, want (4, 0, 0)", got)
	}
}

func TestTransformPoint(t *testing.T) {
	m := translate(10, 20, 30)
	result := m.TransformPoint(Vec3{1, 2, 3})

	expected := Vec3{11, 22, 33}
	if result != expected {
		t.Errorf("TransformPoint: got %v, want %v", result, expected)
	}
}

func TestDeterminant3(t *testing.T) {
	tests := []struct {
		name string
		m    Mat4
		want float64
	}{
		{"identity", Identity(), 1},
		{"scale", scaling(2, 3, 4), 24},
		{"mirror", scaling(-1, 1, 1), -1},
		{"translation only", translate(5, 5, 5), 1},
		{"singular", scaling(1, 0, 1), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.Determinant3(); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Determinant3() = %f, want %f", got, tt.want)
			}
		})
	}
}

func vecNear(a, b Vec3) bool {
	const eps = 1e-9
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps && math.Abs(a.Z-b.Z) < eps
}

func translate(x, y, z float64) Mat4 {
	return Affine([12]float64{1, 0, 0, 0, 1, 0, 0, 0, 1, x, y, z})
}

func scaling(x, y, z float64) Mat4 {
	return Affine([12]float64{x, 0, 0, 0, y, 0, 0, 0, z, 0, 0, 0})
}
