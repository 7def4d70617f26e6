package sdruntime

import (
	"fmt"
	"image"
	"sort"
	"time"

	"sdprobe/tensor"
)

// Result aggregates everything one generation call produced.
type Result struct {
	Prompt        string
	Seed          int64
	Model         string
	Pretrained    string
	Device        Device
	Steps         int
	GuidanceScale float64
	Width         int // final image width in pixels
	Height        int // final image height in pixels
	Duration      time.Duration

	// Representations holds the outputs captured at each requested position,
	// one tensor per forward pass, in call order.
	Representations map[string][]*tensor.Tensor

	// Images holds the decoded latents after every denoising step.
	Images []image.Image

	ResultLatent *tensor.Tensor // final latents of the first sample [C, h, w]
	ResultTensor *tensor.Tensor // VAE output of the first sample [3, H, W], range [-1, 1]
	ResultImage  image.Image    // postprocessed ResultTensor
}

// Positions returns the captured positions sorted by name.
func (r *Result) Positions() []string {
	out := make([]string, 0, len(r.Representations))
	for p := range r.Representations {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// String implements fmt.Stringer without dumping tensors.
func (r *Result) String() string {
	return fmt.Sprintf("<Result prompt=%q seed=%d ...>", r.Prompt, r.Seed)
}
