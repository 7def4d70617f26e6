package tensor

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		shape   []int
		data    []float32
		wantErr error
	}{
		{name: "valid", shape: []int{2, 3}, data: make([]float32, 6)},
		{name: "empty shape", shape: nil, data: nil, wantErr: ErrInvalidShape},
		{name: "zero dim", shape: []int{2, 0}, data: nil, wantErr: ErrInvalidShape},
		{name: "element count overflow", shape: []int{1, 3, 1 << 32, 1 << 32}, data: nil, wantErr: ErrInvalidShape},
		{name: "length mismatch", shape: []int{2, 2}, data: make([]float32, 3), wantErr: ErrInvalidData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.shape, tt.data)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestIndex(t *testing.T) {
	x := MustNew([]int{2, 1, 2, 2}, []float32{1, 2, 3, 4, 5, 6, 7, 8})

	second, err := x.Index(1)
	if err != nil {
		t.Fatalf("Index(1): %v", err)
	}
	if diff := cmp.Diff([]int{1, 2, 2}, second.Shape()); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float32{5, 6, 7, 8}, second.Data()); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}

	// Index returns a copy
	second.Data()[0] = 99
	if x.Data()[4] != 5 {
		t.Error("Index should not alias the source tensor")
	}

	if _, err := x.Index(2); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Index(2) error = %v, want ErrIndexOutOfRange", err)
	}
	vec := MustNew([]int{3}, []float32{1, 2, 3})
	if _, err := vec.Index(0); !errors.Is(err, ErrInvalidShape) {
		t.Errorf("Index on rank 1 error = %v, want ErrInvalidShape", err)
	}
}

func TestStack(t *testing.T) {
	a := MustNew([]int{2}, []float32{1, 2})
	b := MustNew([]int{2}, []float32{3, 4})

	s, err := Stack([]*Tensor{a, b})
	if err != nil {
		t.Fatalf("Stack: %v", err)
	}
	if diff := cmp.Diff([]int{2, 2}, s.Shape()); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float32{1, 2, 3, 4}, s.Data()); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}

	c := MustNew([]int{3}, []float32{1, 2, 3})
	if _, err := Stack([]*Tensor{a, c}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Stack mismatched error = %v, want ErrShapeMismatch", err)
	}
	if _, err := Stack(nil); !errors.Is(err, ErrInvalidShape) {
		t.Errorf("Stack(nil) error = %v, want ErrInvalidShape", err)
	}
}

func TestToHWC(t *testing.T) {
	// 2 channels, 1x2 spatial
	chw := MustNew([]int{2, 1, 2}, []float32{
		1, 2, // channel 0
		10, 20, // channel 1
	})
	hwc, err := chw.ToHWC()
	if err != nil {
		t.Fatalf("ToHWC: %v", err)
	}
	if diff := cmp.Diff([]int{1, 2, 2}, hwc.Shape()); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float32{1, 10, 2, 20}, hwc.Data()); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestScale(t *testing.T) {
	x := MustNew([]int{3}, []float32{1, -2, 4})
	y := x.Scale(0.5)
	if diff := cmp.Diff([]float32{0.5, -1, 2}, y.Data()); diff != "" {
		t.Errorf("scaled mismatch (-want +got):\n%s", diff)
	}
	if x.Data()[0] != 1 {
		t.Error("Scale should not modify the receiver")
	}
}

func TestEqual(t *testing.T) {
	a := MustNew([]int{2}, []float32{1, 2})
	if !a.Equal(a.Clone()) {
		t.Error("clone should be equal")
	}
	if a.Equal(MustNew([]int{1, 2}, []float32{1, 2})) {
		t.Error("different shapes should not be equal")
	}
	var nilT *Tensor
	if !nilT.Equal(nil) {
		t.Error("nil tensors should be equal")
	}
}
