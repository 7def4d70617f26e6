package sdruntime

import (
	"fmt"
	"slices"
)

// GenerateParams holds parameters for a single generation call.
type GenerateParams struct {
	Prompt         string   // Required: text description of the image to generate
	NegativePrompt string   // Optional: what to avoid in the image
	Steps          int      // Inference steps (0 = preset default)
	GuidanceScale  *float64 // Classifier-free guidance scale (nil = preset default)
	Seed           int64    // Random seed in [0, 2^32) for reproducibility (-1 for random)
	Width          int      // Image width in pixels (0 = pipeline default)
	Height         int      // Image height in pixels (0 = pipeline default)

	// ExtractPositions lists the network positions whose outputs are collected
	// into Result.Representations.
	ExtractPositions []string

	// Modification, when set, is applied to the output of every available
	// position. A non-nil return replaces the module output.
	Modification ForwardHook
}

// Guidance returns a pointer to g, for use as GenerateParams.GuidanceScale.
func Guidance(g float64) *float64 {
	return &g
}

// Parameter validation constants
const (
	MinImageSize     = 128
	MaxImageSize     = 2048
	ImageSizeMultple = 8 // Image dimensions must be divisible by this

	MinSteps = 1
	MaxSteps = 150

	MinGuidanceScale = 0.0
	MaxGuidanceScale = 30.0

	MaxSeed = 1<<32 - 1

	MaxPromptLength = 1000
)

// ValidateParams checks the caller-supplied fields of p. Fields left at their
// "use default" value (Steps 0, GuidanceScale nil, Width/Height 0, Seed -1) pass.
// Preset resolution happens later in ResolveParams.
func ValidateParams(p GenerateParams) error {
	if err := ValidatePrompt(p.Prompt); err != nil {
		return err
	}

	if p.Steps != 0 && (p.Steps < MinSteps || p.Steps > MaxSteps) {
		return fmt.Errorf("%w: steps %d must be between %d and %d",
			ErrInvalidParams, p.Steps, MinSteps, MaxSteps)
	}

	if p.GuidanceScale != nil {
		g := *p.GuidanceScale
		if g < MinGuidanceScale || g > MaxGuidanceScale {
			return fmt.Errorf("%w: guidance scale %.2f must be between %.1f and %.1f",
				ErrInvalidParams, g, MinGuidanceScale, MaxGuidanceScale)
		}
	}

	if p.Seed != -1 && (p.Seed < 0 || p.Seed > MaxSeed) {
		return fmt.Errorf("%w: seed %d must be -1 or between 0 and %d",
			ErrInvalidParams, p.Seed, int64(MaxSeed))
	}

	if err := validateDimension("width", p.Width); err != nil {
		return err
	}
	if err := validateDimension("height", p.Height); err != nil {
		return err
	}

	return ValidateNegativePrompt(p.NegativePrompt)
}

func validateDimension(name string, v int) error {
	if v == 0 {
		return nil
	}
	if v < MinImageSize || v > MaxImageSize {
		return fmt.Errorf("%w: %s %d must be between %d and %d",
			ErrInvalidParams, name, v, MinImageSize, MaxImageSize)
	}
	if v%ImageSizeMultple != 0 {
		return fmt.Errorf("%w: %s %d must be divisible by %d",
			ErrInvalidParams, name, v, ImageSizeMultple)
	}
	return nil
}

// ValidatePositions checks that every requested position is one the pipeline exposes.
func ValidatePositions(requested, available []string) error {
	for _, pos := range requested {
		if !slices.Contains(available, pos) {
			return fmt.Errorf("%w: %q (available: %v)", ErrInvalidPosition, pos, available)
		}
	}
	return nil
}

// ResolvedParams are GenerateParams with preset defaults and the seed filled in.
type ResolvedParams struct {
	Prompt         string
	NegativePrompt string
	Steps          int
	GuidanceScale  float64
	Seed           int64
	Width          int
	Height         int
}

// ResolveParams fills unset steps and guidance from the preset and draws a
// random seed when p.Seed is -1. It fails when the preset carries no default
// for a value the caller left unset.
func ResolveParams(preset Preset, p GenerateParams) (ResolvedParams, error) {
	steps := p.Steps
	if steps == 0 {
		if !preset.HasDefaults {
			return ResolvedParams{}, fmt.Errorf("%w: model %q has no default step count", ErrMissingSteps, preset.Name)
		}
		steps = preset.Steps
	}

	var guidance float64
	if p.GuidanceScale != nil {
		guidance = *p.GuidanceScale
	} else {
		if !preset.HasDefaults {
			return ResolvedParams{}, fmt.Errorf("%w: model %q has no default guidance scale", ErrMissingGuidance, preset.Name)
		}
		guidance = preset.GuidanceScale
	}

	seed := p.Seed
	if seed < 0 {
		var err error
		if seed, err = RandomSeed(); err != nil {
			return ResolvedParams{}, err
		}
	}

	return ResolvedParams{
		Prompt:         p.Prompt,
		NegativePrompt: p.NegativePrompt,
		Steps:          steps,
		GuidanceScale:  guidance,
		Seed:           seed,
		Width:          p.Width,
		Height:         p.Height,
	}, nil
}
