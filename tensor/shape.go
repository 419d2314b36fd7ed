package tensor

import (
	"errors"
	"fmt"
	"math"
)

// Dynamic marks a dimension left unbound, typically the batch dimension.
const Dynamic int64 = -1

var (
	errAmbiguousShape = errors.New("shape has more than one dynamic dimension")
	errIndivisible    = errors.New("dynamic dimension is not integral")
	errShapeOverflow  = errors.New("shape element count overflows int64")
)

// checkShape validates dimensions and returns the product of the bound ones and
// the index of the dynamic dimension (-1 when there is none).
//
// A zero dimension makes the product zero whatever the other dimensions are.
func checkShape(shape []int64) (known int64, dynamic int, err error) {
	known, dynamic = 1, -1
	zero, overflow := false, false
	for i, d := range shape {
		switch {
		case d == Dynamic:
			if dynamic >= 0 {
				return 0, 0, errAmbiguousShape
			}
			dynamic = i
		case d < 0:
			return 0, 0, fmt.Errorf("shape dimension %d is negative (%d)", i, d)
		case d == 0:
			zero = true
		case known > math.MaxInt64/d:
			overflow = true
		default:
			known *= d
		}
	}
	switch {
	case zero:
		return 0, dynamic, nil
	case overflow:
		return 0, 0, fmt.Errorf("%w: %v", errShapeOverflow, shape)
	}
	return known, dynamic, nil
}

// resolveShape binds a dynamic dimension so that the shape holds n elements.
func resolveShape(shape []int64, n int) ([]int64, error) {
	known, dynamic, err := checkShape(shape)
	if err != nil {
		return nil, err
	}
	out := append([]int64(nil), shape...)
	if dynamic < 0 {
		if known != int64(n) {
			return nil, fmt.Errorf("shape %v holds %d elements, buffer has %d", shape, known, n)
		}
		return out, nil
	}
	if known == 0 {
		if n != 0 {
			return nil, fmt.Errorf("shape %v holds no elements, buffer has %d", shape, n)
		}
		return nil, fmt.Errorf("dynamic dimension of shape %v cannot be inferred from an empty buffer", shape)
	}
	if int64(n)%known != 0 {
		return nil, fmt.Errorf("%w: %d elements for shape %v", errIndivisible, n, shape)
	}
	out[dynamic] = int64(n) / known
	return out, nil
}

// NumElements returns the element count of a fully bound shape.
func NumElements(shape []int64) (int, error) {
	known, dynamic, err := checkShape(shape)
	if err != nil {
		return 0, err
	}
	if dynamic >= 0 {
		return 0, fmt.Errorf("shape %v is not fully bound", shape)
	}
	if known > math.MaxInt {
		return 0, fmt.Errorf("%w: %v", errShapeOverflow, shape)
	}
	return int(known), nil
}
