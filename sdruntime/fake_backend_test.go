package sdruntime

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"

	"sdprobe/tensor"
)

// fakeBackend stands in for the diffusion library. Its pipelines are
// deterministic in the seed so generation can be checked end to end.
type fakeBackend struct {
	accelerator bool
	loadErr     error
	positions   []string

	mu    sync.Mutex
	specs []LoadSpec
	pipes []*fakePipeline
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) AcceleratorAvailable(ctx context.Context) (bool, error) {
	return b.accelerator, nil
}

func (b *fakeBackend) Load(ctx context.Context, spec LoadSpec) (Pipeline, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.specs = append(b.specs, spec)
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	p := &fakePipeline{device: spec.Device, positions: b.positions}
	b.pipes = append(b.pipes, p)
	return p, nil
}

func (b *fakeBackend) lastSpec() LoadSpec {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.specs[len(b.specs)-1]
}

const (
	fakeLatentChannels = 4
	fakeLatentSize     = 2
	fakeScale          = 4 // decoded pixels per latent pixel
	fakeScalingFactor  = 0.18215
)

type fakePipeline struct {
	device    Device
	positions []string

	lastReq    RunRequest
	hooked     []string // hook positions registered when Run started
	closeCalls int
	runErr     error
	decodeErr  error
}

func (p *fakePipeline) Device() Device            { return p.device }
func (p *fakePipeline) Positions() []string       { return p.positions }
func (p *fakePipeline) VAEScalingFactor() float64 { return fakeScalingFactor }

func (p *fakePipeline) Close() error {
	p.closeCalls++
	return nil
}

// Run draws initial latents from the seed and, each step, fires every
// available position and pulls the latents toward the mean of each output.
func (p *fakePipeline) Run(ctx context.Context, req RunRequest) (*tensor.Tensor, error) {
	p.lastReq = req
	p.hooked = req.Hooks.Positions()
	if p.runErr != nil {
		return nil, p.runErr
	}

	rng := rand.New(rand.NewSource(req.Seed))
	n := fakeLatentChannels * fakeLatentSize * fakeLatentSize
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(rng.NormFloat64())
	}
	latents := tensor.MustNew([]int{1, fakeLatentChannels, fakeLatentSize, fakeLatentSize}, data)

	positions := p.positions
	if len(positions) == 0 {
		positions = UNetPositions
	}

	for step := 0; step < req.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, pos := range positions {
			out := make([]float32, 8)
			for i := range out {
				out[i] = float32(rng.NormFloat64()) + float32(step)
			}
			output := tensor.MustNew([]int{1, 2, 2, 2}, out)

			replaced, err := req.Hooks.Fire(HookCall{Position: pos, Step: step, Output: output})
			if err != nil {
				return nil, err
			}
			if replaced != nil {
				output = replaced
			}

			var mean float32
			for _, v := range output.Data() {
				mean += v
			}
			mean /= float32(output.Len())
			for i := range data {
				data[i] = 0.9*data[i] + 0.01*mean
			}
		}
		if req.OnStepEnd != nil {
			if err := req.OnStepEnd(step, float64(1000-step*1000/req.Steps), latents); err != nil {
				return nil, err
			}
		}
	}
	return latents.Clone(), nil
}

// DecodeVAE upsamples channel 0 through tanh into three identical channels.
func (p *fakePipeline) DecodeVAE(ctx context.Context, latents *tensor.Tensor) (*tensor.Tensor, error) {
	if p.decodeErr != nil {
		return nil, p.decodeErr
	}
	b, h, w := latents.Dim(0), latents.Dim(2), latents.Dim(3)
	H, W := h*fakeScale, w*fakeScale
	in := latents.Data()
	plane := latents.Len() / b
	out := make([]float32, b*3*H*W)
	for bi := 0; bi < b; bi++ {
		for c := 0; c < 3; c++ {
			for y := 0; y < H; y++ {
				for x := 0; x < W; x++ {
					v := in[bi*plane+(y/fakeScale)*w+x/fakeScale]
					out[((bi*3+c)*H+y)*W+x] = float32(math.Tanh(float64(v) * fakeScalingFactor))
				}
			}
		}
	}
	return tensor.New([]int{b, 3, H, W}, out)
}

var errFake = errors.New("fake failure")
