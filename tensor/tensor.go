// Package tensor holds the dense float32 tensors that cross the boundary between
// this module and the diffusion library: latents, decoded images and intermediate
// activations captured by forward hooks.
//
// Only the glue operations needed around the external pipeline live here (shape
// bookkeeping, batch selection, stacking, permutation, scaling). The numerical
// heavy lifting stays inside the diffusion library.
package tensor

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas/blas32"
)

// Sentinel errors for tensor operations.
var (
	ErrInvalidShape    = errors.New("tensor: invalid shape")
	ErrShapeMismatch   = errors.New("tensor: shape mismatch")
	ErrIndexOutOfRange = errors.New("tensor: index out of range")
	ErrInvalidData     = errors.New("tensor: invalid data")
)

// Tensor is a dense, row-major float32 tensor.
type Tensor struct {
	shape []int
	data  []float32
}

// New creates a tensor with the given shape backed by data.
// The data slice is used directly, not copied.
func New(shape []int, data []float32) (*Tensor, error) {
	n, err := NumElements(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("%w: shape %v needs %d values, got %d", ErrInvalidData, shape, n, len(data))
	}
	return &Tensor{shape: append([]int(nil), shape...), data: data}, nil
}

// MustNew is like New but panics on error. Intended for tests and constants.
func MustNew(shape []int, data []float32) *Tensor {
	t, err := New(shape, data)
	if err != nil {
		panic(err)
	}
	return t
}

// NumElements returns the number of values a tensor of this shape holds.
func NumElements(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("%w: empty shape", ErrInvalidShape)
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("%w: %v", ErrInvalidShape, shape)
		}
		if d > math.MaxInt/n {
			return 0, fmt.Errorf("%w: %v overflows the element count", ErrInvalidShape, shape)
		}
		n *= d
	}
	return n, nil
}

// Shape returns a copy of the tensor's shape.
func (t *Tensor) Shape() []int {
	return append([]int(nil), t.shape...)
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int {
	return t.shape[i]
}

// Len returns the total number of values.
func (t *Tensor) Len() int {
	return len(t.data)
}

// Data returns the underlying values. Mutating the slice mutates the tensor.
func (t *Tensor) Data() []float32 {
	return t.data
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		shape: append([]int(nil), t.shape...),
		data:  append([]float32(nil), t.data...),
	}
}

// Equal reports whether both tensors have the same shape and values.
func (t *Tensor) Equal(o *Tensor) bool {
	if t == nil || o == nil {
		return t == o
	}
	if len(t.shape) != len(o.shape) || len(t.data) != len(o.data) {
		return false
	}
	for i := range t.shape {
		if t.shape[i] != o.shape[i] {
			return false
		}
	}
	for i := range t.data {
		if t.data[i] != o.data[i] {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer without dumping the values.
func (t *Tensor) String() string {
	if t == nil {
		return "<Tensor nil>"
	}
	return fmt.Sprintf("<Tensor shape=%v>", t.shape)
}

// Index selects element i along the first dimension and returns it as a new
// tensor of rank-1. For a latent batch [B, C, H, W], Index(0) yields [C, H, W].
func (t *Tensor) Index(i int) (*Tensor, error) {
	if len(t.shape) < 2 {
		return nil, fmt.Errorf("%w: cannot index rank %d tensor", ErrInvalidShape, len(t.shape))
	}
	if i < 0 || i >= t.shape[0] {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, t.shape[0])
	}
	stride := len(t.data) / t.shape[0]
	out := make([]float32, stride)
	copy(out, t.data[i*stride:(i+1)*stride])
	return &Tensor{shape: append([]int(nil), t.shape[1:]...), data: out}, nil
}

// Stack joins tensors of identical shape along a new leading dimension.
func Stack(ts []*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("%w: nothing to stack", ErrInvalidShape)
	}
	first := ts[0]
	out := make([]float32, 0, len(ts)*len(first.data))
	for i, t := range ts {
		if !sameShape(first.shape, t.shape) {
			return nil, fmt.Errorf("%w: element %d has shape %v, want %v", ErrShapeMismatch, i, t.shape, first.shape)
		}
		out = append(out, t.data...)
	}
	shape := append([]int{len(ts)}, first.shape...)
	return &Tensor{shape: shape, data: out}, nil
}

// ToHWC permutes a [C, H, W] tensor to channels-last [H, W, C].
func (t *Tensor) ToHWC() (*Tensor, error) {
	if len(t.shape) != 3 {
		return nil, fmt.Errorf("%w: ToHWC needs rank 3, got %v", ErrInvalidShape, t.shape)
	}
	c, h, w := t.shape[0], t.shape[1], t.shape[2]
	out := make([]float32, len(t.data))
	for ci := 0; ci < c; ci++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out[(y*w+x)*c+ci] = t.data[(ci*h+y)*w+x]
			}
		}
	}
	return &Tensor{shape: []int{h, w, c}, data: out}, nil
}

// Scale returns a new tensor with every value multiplied by alpha.
func (t *Tensor) Scale(alpha float32) *Tensor {
	out := t.Clone()
	blas32.Scal(alpha, blas32.Vector{N: len(out.data), Data: out.data, Inc: 1})
	return out
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
