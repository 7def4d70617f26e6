package cmd

import (
	"context"
	"math"
	"math/rand"

	"sdprobe/sdruntime"
	"sdprobe/tensor"
)

var fakePositions = []string{"down_blocks[0]", "mid_block"}

// fakeBackend produces deterministic pipelines small enough for CLI tests.
type fakeBackend struct {
	accelerator bool
	closed      bool
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) AcceleratorAvailable(ctx context.Context) (bool, error) {
	return b.accelerator, nil
}

func (b *fakeBackend) Load(ctx context.Context, spec sdruntime.LoadSpec) (sdruntime.Pipeline, error) {
	return &fakePipeline{device: spec.Device}, nil
}

func (b *fakeBackend) Close() error {
	b.closed = true
	return nil
}

type fakePipeline struct {
	device sdruntime.Device
}

func (p *fakePipeline) Device() sdruntime.Device  { return p.device }
func (p *fakePipeline) Positions() []string       { return fakePositions }
func (p *fakePipeline) VAEScalingFactor() float64 { return 0.18215 }
func (p *fakePipeline) Close() error              { return nil }

// Run fires every position once per step with a [1, 2, 2, 2] output.
func (p *fakePipeline) Run(ctx context.Context, req sdruntime.RunRequest) (*tensor.Tensor, error) {
	rng := rand.New(rand.NewSource(req.Seed))
	data := make([]float32, 4*2*2)
	for i := range data {
		data[i] = float32(rng.NormFloat64())
	}
	latents := tensor.MustNew([]int{1, 4, 2, 2}, data)

	for step := 0; step < req.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, pos := range fakePositions {
			out := make([]float32, 8)
			for i := range out {
				out[i] = float32(rng.NormFloat64()) + 1
			}
			if _, err := req.Hooks.Fire(sdruntime.HookCall{
				Position: pos,
				Step:     step,
				Output:   tensor.MustNew([]int{1, 2, 2, 2}, out),
			}); err != nil {
				return nil, err
			}
		}
		if req.OnStepEnd != nil {
			if err := req.OnStepEnd(step, float64(1000-step), latents); err != nil {
				return nil, err
			}
		}
	}
	return latents.Clone(), nil
}

// DecodeVAE upsamples each latent pixel to a 4x4 block.
func (p *fakePipeline) DecodeVAE(ctx context.Context, latents *tensor.Tensor) (*tensor.Tensor, error) {
	b, h, w := latents.Dim(0), latents.Dim(2), latents.Dim(3)
	H, W := h*4, w*4
	in := latents.Data()
	plane := latents.Len() / b
	out := make([]float32, b*3*H*W)
	for bi := 0; bi < b; bi++ {
		for c := 0; c < 3; c++ {
			for y := 0; y < H; y++ {
				for x := 0; x < W; x++ {
					v := in[bi*plane+(y/4)*w+x/4]
					out[((bi*3+c)*H+y)*W+x] = float32(math.Tanh(float64(v)))
				}
			}
		}
	}
	return tensor.New([]int{b, 3, H, W}, out)
}
