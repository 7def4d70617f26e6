package sdruntime

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"

	"sdprobe/logging"
	"sdprobe/tensor"
)

// Generator wraps one loaded pipeline and runs instrumented generations on it.
//
// Each Generate call:
//   - validates params and fills preset defaults (ResolveParams)
//   - registers forward hooks for representation capture and modification
//   - decodes the latents after every step into Result.Images
//   - decodes the final latents into ResultTensor and ResultImage
//
// Calls are serialized; a Generator drives a single device.
type Generator struct {
	backend  Backend
	preset   Preset
	device   Device
	pipeline Pipeline
	logger   *logging.Logger

	mu     sync.Mutex
	closed bool
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *logging.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGenerator looks up modelName in the preset registry, resolves device and
// loads the pipeline through b. An empty modelName selects DefaultModel.
// Names that are not registered are handed to the backend as raw pretrained
// identifiers; such generators need explicit steps and guidance.
func NewGenerator(ctx context.Context, b Backend, modelName string, device Device, opts ...Option) (*Generator, error) {
	if b == nil {
		return nil, ErrBackendUnavailable
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	g := &Generator{
		backend: b,
		preset:  LookupPreset(modelName),
		logger:  logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.Named("sdruntime")

	resolved, err := ResolveDevice(ctx, b, device)
	if err != nil {
		return nil, err
	}
	g.device = resolved

	start := time.Now()
	pipe, err := g.preset.Load(ctx, b, resolved)
	if err != nil {
		if errors.Is(err, ErrInvalidSteps) || errors.Is(err, ErrBackendUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrModelLoadFailed, g.preset.Pretrained, err)
	}
	g.pipeline = pipe

	g.logger.Info("pipeline loaded",
		zap.String("model", g.preset.Name),
		zap.String("pretrained", g.preset.Pretrained),
		zap.String("backend", b.Name()),
		zap.String("device", string(resolved)),
		zap.Bool("preset_defaults", g.preset.HasDefaults),
		zap.Duration("load_time", time.Since(start)),
	)
	return g, nil
}

// Preset returns the preset the generator was built from.
func (g *Generator) Preset() Preset {
	return g.preset
}

// Device returns the resolved device.
func (g *Generator) Device() Device {
	return g.device
}

// Positions lists the positions hooks can attach to on the loaded pipeline.
func (g *Generator) Positions() []string {
	if p := g.pipeline.Positions(); len(p) > 0 {
		return p
	}
	return append([]string(nil), UNetPositions...)
}

// Generate runs one text-to-image call.
//
// Error cases:
//   - ErrPipelineClosed: Close was called
//   - ErrInvalidPrompt, ErrInvalidParams: params fail validation
//   - ErrInvalidPosition: an ExtractPositions entry is not available
//   - ErrMissingSteps, ErrMissingGuidance: unset and the model has no default
//   - ErrHookFailed: the modification returned an error
//   - ErrGenerationFailed, ErrDecodeFailed: the pipeline failed
func (g *Generator) Generate(ctx context.Context, params GenerateParams) (*Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, ErrPipelineClosed
	}

	if err := ValidateParams(params); err != nil {
		return nil, err
	}
	available := g.Positions()
	if err := ValidatePositions(params.ExtractPositions, available); err != nil {
		return nil, err
	}
	rp, err := ResolveParams(g.preset, params)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Prompt:          rp.Prompt,
		Seed:            rp.Seed,
		Model:           g.preset.Name,
		Pretrained:      g.preset.Pretrained,
		Device:          g.device,
		Steps:           rp.Steps,
		GuidanceScale:   rp.GuidanceScale,
		Representations: make(map[string][]*tensor.Tensor, len(params.ExtractPositions)),
	}
	for _, pos := range params.ExtractPositions {
		res.Representations[pos] = nil
	}

	hooks := NewHookRegistry()
	for _, pos := range hookPositions(params, available) {
		remove := hooks.Register(pos, g.captureHook(res, params.Modification))
		defer remove()
	}

	log := g.logger.With(zap.Int64("seed", rp.Seed))
	log.Debug("generation started",
		zap.Int("steps", rp.Steps),
		zap.Float64("guidance_scale", rp.GuidanceScale),
		zap.Strings("extract_positions", params.ExtractPositions),
		zap.Bool("modified", params.Modification != nil),
	)

	start := time.Now()
	latents, err := g.pipeline.Run(ctx, RunRequest{
		Prompt:         rp.Prompt,
		NegativePrompt: rp.NegativePrompt,
		Steps:          rp.Steps,
		GuidanceScale:  rp.GuidanceScale,
		Seed:           rp.Seed,
		Width:          rp.Width,
		Height:         rp.Height,
		Hooks:          hooks,
		OnStepEnd: func(step int, timestep float64, latents *tensor.Tensor) error {
			img, err := g.decodeFirst(ctx, latents)
			if err != nil {
				return fmt.Errorf("step %d: %w", step, err)
			}
			res.Images = append(res.Images, img)
			log.Debug("step decoded", zap.Int("step", step), zap.Float64("timestep", timestep))
			return nil
		},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, ErrHookFailed) || errors.Is(err, ErrDecodeFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	if res.ResultLatent, err = latents.Index(0); err != nil {
		return nil, fmt.Errorf("%w: final latents: %w", ErrGenerationFailed, err)
	}
	decoded, err := g.vaeDecode(ctx, latents)
	if err != nil {
		return nil, err
	}
	if res.ResultTensor, err = decoded.Index(0); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	img, err := DecodedToImage(res.ResultTensor)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	res.ResultImage = img
	res.Height, res.Width = res.ResultTensor.Dim(1), res.ResultTensor.Dim(2)
	res.Duration = time.Since(start)

	calls := 0
	for _, reps := range res.Representations {
		calls += len(reps)
	}
	log.Info("generation complete", logging.GenerationFields(logging.GenerationMetrics{
		Model:         res.Model,
		Device:        string(res.Device),
		Steps:         res.Steps,
		GuidanceScale: res.GuidanceScale,
		Seed:          res.Seed,
		Width:         res.Width,
		Height:        res.Height,
		Positions:     len(res.Representations),
		HookCalls:     calls,
		Duration:      res.Duration,
	}))
	return res, nil
}

// hookPositions returns the positions a call needs hooks on: every available
// position when a modification is set, otherwise the requested ones. Each
// position appears once, in first-requested order.
func hookPositions(params GenerateParams, available []string) []string {
	if params.Modification != nil {
		return available
	}
	seen := make(map[string]bool, len(params.ExtractPositions))
	var out []string
	for _, pos := range params.ExtractPositions {
		if !seen[pos] {
			seen[pos] = true
			out = append(out, pos)
		}
	}
	return out
}

// captureHook stores the unmodified output for requested positions, then
// applies mod.
func (g *Generator) captureHook(res *Result, mod ForwardHook) ForwardHook {
	return func(call HookCall) (*tensor.Tensor, error) {
		if reps, ok := res.Representations[call.Position]; ok {
			res.Representations[call.Position] = append(reps, call.Output.Clone())
		}
		if mod == nil {
			return nil, nil
		}
		return mod(call)
	}
}

// vaeDecode scales latents by 1/VAEScalingFactor and decodes them.
func (g *Generator) vaeDecode(ctx context.Context, latents *tensor.Tensor) (*tensor.Tensor, error) {
	sf := g.pipeline.VAEScalingFactor()
	if sf == 0 {
		return nil, fmt.Errorf("%w: pipeline reports zero VAE scaling factor", ErrDecodeFailed)
	}
	decoded, err := g.pipeline.DecodeVAE(ctx, latents.Scale(float32(1/sf)))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	return decoded, nil
}

func (g *Generator) decodeFirst(ctx context.Context, latents *tensor.Tensor) (image.Image, error) {
	decoded, err := g.vaeDecode(ctx, latents)
	if err != nil {
		return nil, err
	}
	first, err := decoded.Index(0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	img, err := DecodedToImage(first)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	return img, nil
}

// Close releases the pipeline. Safe to call more than once.
func (g *Generator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true
	g.logger.Debug("closing pipeline", zap.String("model", g.preset.Name))
	return g.pipeline.Close()
}

// QuickGenerate loads model on b, generates prompt with preset defaults and a
// random seed, and closes the pipeline.
func QuickGenerate(ctx context.Context, b Backend, model, prompt string) (*Result, error) {
	gen, err := NewGenerator(ctx, b, model, DeviceAuto)
	if err != nil {
		return nil, err
	}
	defer gen.Close()

	return gen.Generate(ctx, GenerateParams{Prompt: prompt, Seed: -1})
}
