package sdruntime

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"golang.org/x/image/draw"

	"sdprobe/tensor"
)

// Image conversion errors
var (
	ErrImageEmpty       = errors.New("sdruntime: image data is empty")
	ErrImageInvalidSize = errors.New("sdruntime: invalid image dimensions")
)

// Postprocess maps VAE output from [-1, 1] to [0, 1]: clamp(x/2 + 0.5, 0, 1).
// The input is not modified.
func Postprocess(decoded *tensor.Tensor) *tensor.Tensor {
	out := decoded.Clone()
	data := out.Data()
	for i, v := range data {
		data[i] = clamp01(v/2 + 0.5)
	}
	return out
}

// ToImage converts a [3, H, W] tensor with values in [0, 1] to an RGBA image.
// Values outside [0, 1] are clamped.
func ToImage(chw *tensor.Tensor) (*image.RGBA, error) {
	if chw.Rank() != 3 || chw.Dim(0) != 3 {
		return nil, fmt.Errorf("%w: expected [3, H, W], got %v", ErrImageInvalidSize, chw.Shape())
	}
	h, w := chw.Dim(1), chw.Dim(2)
	plane := h * w
	data := chw.Data()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			img.SetRGBA(x, y, color.RGBA{
				R: to8bit(data[i]),
				G: to8bit(data[plane+i]),
				B: to8bit(data[2*plane+i]),
				A: 0xff,
			})
		}
	}
	return img, nil
}

// DecodedToImage postprocesses one decoded sample [3, H, W] and converts it to an image.
func DecodedToImage(decoded *tensor.Tensor) (*image.RGBA, error) {
	return ToImage(Postprocess(decoded))
}

// EncodePNG encodes an image to PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrImageEmpty
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// ContactSheet lays images out left to right, each scaled to fit a cell x cell
// square, on a black background. It returns nil for an empty slice.
func ContactSheet(images []image.Image, cell int) *image.RGBA {
	if len(images) == 0 || cell <= 0 {
		return nil
	}

	sheet := image.NewRGBA(image.Rect(0, 0, cell*len(images), cell))
	draw.Draw(sheet, sheet.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	for i, img := range images {
		b := img.Bounds()
		scale := float64(cell) / float64(max(b.Dx(), b.Dy()))
		w := int(float64(b.Dx()) * scale)
		h := int(float64(b.Dy()) * scale)
		offX := i*cell + (cell-w)/2
		offY := (cell - h) / 2
		dst := image.Rect(offX, offY, offX+w, offY+h)
		draw.CatmullRom.Scale(sheet, dst, img, b, draw.Over, nil)
	}
	return sheet
}

// clamp01 limits v to [0, 1]. NaN maps to 0.
func clamp01(v float32) float32 {
	if math.IsNaN(float64(v)) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func to8bit(v float32) uint8 {
	return uint8(clamp01(v)*255 + 0.5)
}
