package model

import "fmt"

// DType identifies the element type of a tensor.
type DType string

// Element types the feature pipeline produces.
const (
	Float32 DType = "float32"
	Float16 DType = "float16"
	Int64   DType = "int64"
	Uint8   DType = "uint8"
)

// Size returns the width of one element in bytes, or 0 for an unknown type.
func (d DType) Size() int {
	switch d {
	case Float32:
		return 4
	case Float16:
		return 2
	case Int64:
		return 8
	case Uint8:
		return 1
	default:
		return 0
	}
}

// Tensor is a raw numeric feature blob together with its layout. Data holds
// the elements in row-major order, little-endian.
type Tensor struct {
	DType DType   `json:"dtype"`
	Shape []int64 `json:"shape"`
	Data  []byte  `json:"-"`
}

// Elems returns the number of elements the shape describes.
func (t Tensor) Elems() int64 {
	if len(t.Shape) == 0 {
		return 0
	}

	n := int64(1)
	for _, dim := range t.Shape {
		n *= dim
	}

	return n
}

// Validate checks that the data length matches the declared layout.
func (t Tensor) Validate() error {
	size := t.DType.Size()
	if size == 0 {
		return fmt.Errorf("unknown tensor dtype: %q", t.DType)
	}

	if want := t.Elems() * int64(size); int64(len(t.Data)) != want {
		return fmt.Errorf("tensor data is %d bytes, layout needs %d", len(t.Data), want)
	}

	return nil
}
