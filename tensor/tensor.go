// Package tensor converts between in-memory tensors and wire.Tensor records.
//
// Decoding depends only on (serializer, dtype, shape). The declared TensorType
// travels as metadata, so a tensor produced under one framework decodes the
// same way for any target framework.
package tensor

import (
	"fmt"
	"reflect"

	"github.com/parall4x/bittensor/wire"
)

// Tensor is the native, framework-neutral form of a tensor.
//
// Data holds the elements in row-major order and must be one of []float32,
// []float64, []int32, []int64 or []string. Shape may contain a single -1 on
// tensors that are about to be encoded; decoded tensors always have a fully
// bound shape.
type Tensor struct {
	Shape        []int64
	DType        wire.DataType
	Data         any
	RequiresGrad bool
	// Framework records which framework the tensor is meant for. It never
	// affects encoding or decoding.
	Framework wire.TensorType
}

// New builds a tensor from data, inferring its dtype.
func New(shape []int64, data any) (*Tensor, error) {
	dt, n := dtypeOf(data)
	if dt == wire.UNKNOWN {
		return nil, fmt.Errorf("tensor: unsupported element type %T", data)
	}
	if _, err := resolveShape(shape, n); err != nil {
		return nil, err
	}
	return &Tensor{Shape: append([]int64(nil), shape...), DType: dt, Data: data}, nil
}

func FromFloat32(shape []int64, data []float32) *Tensor {
	return &Tensor{Shape: append([]int64(nil), shape...), DType: wire.FLOAT32, Data: data}
}

func FromFloat64(shape []int64, data []float64) *Tensor {
	return &Tensor{Shape: append([]int64(nil), shape...), DType: wire.FLOAT64, Data: data}
}

func FromInt32(shape []int64, data []int32) *Tensor {
	return &Tensor{Shape: append([]int64(nil), shape...), DType: wire.INT32, Data: data}
}

func FromInt64(shape []int64, data []int64) *Tensor {
	return &Tensor{Shape: append([]int64(nil), shape...), DType: wire.INT64, Data: data}
}

func FromStrings(shape []int64, data []string) *Tensor {
	return &Tensor{Shape: append([]int64(nil), shape...), DType: wire.UTF8, Data: data}
}

// Zeros returns a zero-filled tensor. shape must be fully bound.
func Zeros(dtype wire.DataType, shape []int64) (*Tensor, error) {
	n, err := NumElements(shape)
	if err != nil {
		return nil, err
	}
	t := &Tensor{Shape: append([]int64(nil), shape...), DType: dtype}
	switch dtype {
	case wire.FLOAT32:
		t.Data = make([]float32, n)
	case wire.FLOAT64:
		t.Data = make([]float64, n)
	case wire.INT32:
		t.Data = make([]int32, n)
	case wire.INT64:
		t.Data = make([]int64, n)
	case wire.UTF8:
		t.Data = make([]string, n)
	default:
		return nil, fmt.Errorf("tensor: unsupported dtype %s", dtype)
	}
	return t, nil
}

// Len returns the number of elements held in Data.
func (t *Tensor) Len() int {
	if t == nil {
		return 0
	}
	_, n := dtypeOf(t.Data)
	return n
}

// ElementType returns the dtype implied by Data, regardless of DType.
func (t *Tensor) ElementType() wire.DataType {
	if t == nil {
		return wire.UNKNOWN
	}
	dt, _ := dtypeOf(t.Data)
	return dt
}

// Float32 returns the elements when the tensor holds FLOAT32 data.
func (t *Tensor) Float32() ([]float32, bool) {
	v, ok := t.Data.([]float32)
	return v, ok
}

func (t *Tensor) Float64() ([]float64, bool) {
	v, ok := t.Data.([]float64)
	return v, ok
}

func (t *Tensor) Int32() ([]int32, bool) {
	v, ok := t.Data.([]int32)
	return v, ok
}

func (t *Tensor) Int64() ([]int64, bool) {
	v, ok := t.Data.([]int64)
	return v, ok
}

func (t *Tensor) Strings() ([]string, bool) {
	v, ok := t.Data.([]string)
	return v, ok
}

// Equal compares dtype, shape and elements. Framework and RequiresGrad are ignored.
func Equal(a, b *Tensor) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.DType != b.DType || !reflect.DeepEqual(a.Shape, b.Shape) {
		return false
	}
	if a.Len() == 0 && b.Len() == 0 {
		return true
	}
	return reflect.DeepEqual(a.Data, b.Data)
}

func dtypeOf(data any) (wire.DataType, int) {
	switch v := data.(type) {
	case []float32:
		return wire.FLOAT32, len(v)
	case []float64:
		return wire.FLOAT64, len(v)
	case []int32:
		return wire.INT32, len(v)
	case []int64:
		return wire.INT64, len(v)
	case []string:
		return wire.UTF8, len(v)
	default:
		return wire.UNKNOWN, 0
	}
}
