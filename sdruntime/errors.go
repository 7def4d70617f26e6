// Package sdruntime provides the diffusion pipeline wrapper.
package sdruntime

import "errors"

// Sentinel errors for SD runtime operations.
// These are domain-specific errors that provide clear failure modes.
var (
	// Backend and model errors
	ErrBackendUnavailable = errors.New("sdruntime: diffusion backend not available")
	ErrModelLoadFailed    = errors.New("sdruntime: failed to load model")
	ErrPipelineClosed     = errors.New("sdruntime: pipeline is closed")

	// Generation errors
	ErrGenerationFailed = errors.New("sdruntime: image generation failed")
	ErrDecodeFailed     = errors.New("sdruntime: VAE decode failed")
	ErrHookFailed       = errors.New("sdruntime: forward hook failed")
	ErrSeedUnavailable  = errors.New("sdruntime: cannot draw a random seed")

	// Input validation errors
	ErrInvalidPrompt   = errors.New("sdruntime: invalid prompt")
	ErrInvalidParams   = errors.New("sdruntime: invalid generation parameters")
	ErrInvalidSteps    = errors.New("sdruntime: invalid number of steps")
	ErrMissingSteps    = errors.New("sdruntime: steps must be specified")
	ErrMissingGuidance = errors.New("sdruntime: guidance_scale must be specified")
	ErrInvalidPosition = errors.New("sdruntime: unknown extract position")
	ErrInvalidDevice   = errors.New("sdruntime: invalid device")

	// Preset errors
	ErrInvalidPreset = errors.New("sdruntime: invalid preset")
)
