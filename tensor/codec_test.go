package tensor

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFloat32Codec(t *testing.T) {
	values := []float32{0, 1.5, -2.25, 1e-3}
	got, err := DecodeFloat32(EncodeFloat32(values))
	if err != nil {
		t.Fatalf("DecodeFloat32: %v", err)
	}
	if diff := cmp.Diff(values, got); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}

	// little-endian layout of 1.0 is 00 00 80 3f
	buf := EncodeFloat32([]float32{1})
	if diff := cmp.Diff([]byte{0x00, 0x00, 0x80, 0x3f}, buf); diff != "" {
		t.Errorf("byte layout mismatch (-want +got):\n%s", diff)
	}

	if _, err := DecodeFloat32([]byte{1, 2, 3}); !errors.Is(err, ErrInvalidData) {
		t.Errorf("odd length error = %v, want ErrInvalidData", err)
	}
}

func TestFloat16Codec(t *testing.T) {
	// values exactly representable in half precision
	values := []float32{0, 0.5, -1, 2048}
	buf := EncodeFloat16(values)
	if len(buf) != 2*len(values) {
		t.Fatalf("encoded length = %d, want %d", len(buf), 2*len(values))
	}
	got, err := DecodeFloat16(buf)
	if err != nil {
		t.Fatalf("DecodeFloat16: %v", err)
	}
	if diff := cmp.Diff(values, got); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}

	if _, err := DecodeFloat16([]byte{1}); !errors.Is(err, ErrInvalidData) {
		t.Errorf("odd length error = %v, want ErrInvalidData", err)
	}
}

func TestDecodeUnsupportedDType(t *testing.T) {
	if _, err := Decode([]int{1}, "bf16", []byte{0, 0}); !errors.Is(err, ErrInvalidData) {
		t.Errorf("error = %v, want ErrInvalidData", err)
	}
	if _, err := Encode(MustNew([]int{1}, []float32{1}), "i8"); !errors.Is(err, ErrInvalidData) {
		t.Errorf("error = %v, want ErrInvalidData", err)
	}
}

func TestDecodeShapeCheck(t *testing.T) {
	buf := EncodeFloat32([]float32{1, 2, 3})
	if _, err := Decode([]int{2, 2}, DTypeFloat32, buf); !errors.Is(err, ErrInvalidData) {
		t.Errorf("error = %v, want ErrInvalidData", err)
	}
	x, err := Decode([]int{3}, DTypeFloat32, buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if x.Len() != 3 {
		t.Errorf("Len = %d, want 3", x.Len())
	}
}
