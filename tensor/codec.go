package tensor

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// Data types used on the wire and on disk.
const (
	DTypeFloat32 = "f32"
	DTypeFloat16 = "f16"
)

// EncodeFloat32 serialises values as little-endian float32.
func EncodeFloat32(values []float32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// DecodeFloat32 parses little-endian float32 values.
// The byte length must be a multiple of 4.
func DecodeFloat32(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("%w: buffer length %d is not a multiple of 4", ErrInvalidData, len(buf))
	}
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return out, nil
}

// EncodeFloat16 serialises values as little-endian IEEE 754 half precision.
func EncodeFloat16(values []float32) []byte {
	buf := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(buf[2*i:], float16.Fromfloat32(v).Bits())
	}
	return buf
}

// DecodeFloat16 parses little-endian half precision values into float32.
func DecodeFloat16(buf []byte) ([]float32, error) {
	if len(buf)%2 != 0 {
		return nil, fmt.Errorf("%w: buffer length %d is not a multiple of 2", ErrInvalidData, len(buf))
	}
	out := make([]float32, len(buf)/2)
	for i := range out {
		out[i] = float16.Frombits(binary.LittleEndian.Uint16(buf[2*i:])).Float32()
	}
	return out, nil
}

// Encode serialises the tensor values using dtype.
func Encode(t *Tensor, dtype string) ([]byte, error) {
	switch dtype {
	case DTypeFloat32, "":
		return EncodeFloat32(t.data), nil
	case DTypeFloat16:
		return EncodeFloat16(t.data), nil
	default:
		return nil, fmt.Errorf("%w: unsupported dtype %q", ErrInvalidData, dtype)
	}
}

// Decode builds a tensor from raw bytes in the given dtype.
func Decode(shape []int, dtype string, buf []byte) (*Tensor, error) {
	var (
		values []float32
		err    error
	)
	switch dtype {
	case DTypeFloat32, "":
		values, err = DecodeFloat32(buf)
	case DTypeFloat16:
		values, err = DecodeFloat16(buf)
	default:
		return nil, fmt.Errorf("%w: unsupported dtype %q", ErrInvalidData, dtype)
	}
	if err != nil {
		return nil, err
	}
	return New(shape, values)
}
