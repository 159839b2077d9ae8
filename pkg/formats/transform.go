package formats

import (
	"errors"
	"fmt"
	gomath "math"
	"strconv"
	"strings"

	"github.com/Faultbox/mesh3mf/pkg/math"
)

// ErrInvalidTransform is reported for transform attributes that are not
// exactly 12 finite numbers.
var ErrInvalidTransform = errors.New("invalid transform")

// ParseTransform parses a 3MF transform attribute: 12 whitespace-separated
// numbers "m00 m01 m02 m10 m11 m12 m20 m21 m22 m30 m31 m32".
func ParseTransform(s string) (math.Mat4, error) {
	fields := strings.Fields(s)
	if len(fields) != 12 {
		return math.Identity(), fmt.Errorf("%w: expected 12 values, got %d", ErrInvalidTransform, len(fields))
	}

	var v [12]float64
	for i, f := range fields {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil || gomath.IsNaN(n) || gomath.IsInf(n, 0) {
			return math.Identity(), fmt.Errorf("%w: value %d %q is not a finite number", ErrInvalidTransform, i, f)
		}
		v[i] = n
	}
	return math.Affine(v), nil
}

// parseOptionalTransform treats an absent or blank attribute as identity.
func parseOptionalTransform(s string) (math.Mat4, error) {
	if strings.TrimSpace(s) == "" {
		return math.Identity(), nil
	}
	return ParseTransform(s)
}
