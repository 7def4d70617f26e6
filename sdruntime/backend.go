// Package sdruntime provides the diffusion pipeline wrapper.
//
// This file defines the seam between this module and the diffusion library.
// A Backend loads pretrained pipelines; a Pipeline runs the denoising loop,
// fires forward hooks at named positions, reports each finished step and
// decodes latents through its VAE. Implementations:
//
//   - remote.Client: a diffusers worker reached over a websocket
//   - StubBackend: returned when no worker is configured; every Load fails
package sdruntime

import (
	"context"
	"fmt"
	"strings"

	"sdprobe/tensor"
)

// Device names a compute device understood by the diffusion library.
type Device string

// Known devices. DeviceAuto resolves to DeviceCUDA or DeviceCPU.
const (
	DeviceAuto Device = "auto"
	DeviceCUDA Device = "cuda"
	DeviceCPU  Device = "cpu"
	DeviceMPS  Device = "mps"
)

// ParseDevice validates a device string. Empty means auto.
func ParseDevice(s string) (Device, error) {
	switch d := Device(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return DeviceAuto, nil
	case DeviceAuto, DeviceCUDA, DeviceCPU, DeviceMPS:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q (want auto, cuda, cpu or mps)", ErrInvalidDevice, s)
	}
}

// ResolveDevice turns DeviceAuto into a concrete device by asking the backend
// whether an accelerator is present. Concrete devices are returned unchanged.
func ResolveDevice(ctx context.Context, b Backend, d Device) (Device, error) {
	if d != DeviceAuto {
		return d, nil
	}
	ok, err := b.AcceleratorAvailable(ctx)
	if err != nil {
		return "", fmt.Errorf("check accelerator: %w", err)
	}
	if ok {
		return DeviceCUDA, nil
	}
	return DeviceCPU, nil
}

// CheckpointRef points at a weights file inside a model repository.
type CheckpointRef struct {
	Repo string `json:"repo" yaml:"repo"`
	File string `json:"file" yaml:"file"`
}

// SchedulerSpec replaces the pipeline's default noise scheduler.
// Empty fields keep the scheduler's own configuration.
type SchedulerSpec struct {
	Class           string `json:"class" yaml:"class"`
	TimestepSpacing string `json:"timestep_spacing,omitempty" yaml:"timestep_spacing,omitempty"`
	PredictionType  string `json:"prediction_type,omitempty" yaml:"prediction_type,omitempty"`
}

// LoadSpec describes how the diffusion library should build a pipeline.
type LoadSpec struct {
	// Pretrained is the model repository identifier (e.g. "stabilityai/sd-turbo").
	Pretrained string `json:"pretrained"`
	Device     Device `json:"device"`
	DType      string `json:"dtype,omitempty"`
	Variant    string `json:"variant,omitempty"`

	// UNet, when set, loads denoiser weights from another repository on top of
	// the architecture described by Pretrained.
	UNet      *CheckpointRef `json:"unet,omitempty"`
	Scheduler *SchedulerSpec `json:"scheduler,omitempty"`

	// UpcastVAE runs the VAE in float32 when its config asks for it.
	UpcastVAE bool `json:"upcast_vae"`
}

// DefaultLoadSpec returns the spec used for presets without a custom loader:
// the library's auto text-to-image pipeline in float16.
func DefaultLoadSpec(pretrained string, device Device) LoadSpec {
	return LoadSpec{
		Pretrained: pretrained,
		Device:     device,
		DType:      "float16",
		UpcastVAE:  true,
	}
}

// StepCallback is invoked after every denoising step with the current latents.
type StepCallback func(step int, timestep float64, latents *tensor.Tensor) error

// RunRequest is one text-to-image call against a loaded pipeline.
type RunRequest struct {
	Prompt         string
	NegativePrompt string
	Steps          int
	GuidanceScale  float64
	Seed           int64
	Width          int // 0 = pipeline default
	Height         int // 0 = pipeline default

	// Hooks are fired at every position they are registered on.
	Hooks *HookRegistry

	// OnStepEnd, when set, is called after every step.
	OnStepEnd StepCallback
}

// Pipeline is a loaded text-to-image model.
type Pipeline interface {
	// Device reports where the pipeline runs.
	Device() Device

	// Positions lists the denoiser positions forward hooks can attach to.
	Positions() []string

	// VAEScalingFactor is the factor latents are divided by before decoding.
	VAEScalingFactor() float64

	// Run executes the denoising loop and returns the final latents [B, C, H, W].
	Run(ctx context.Context, req RunRequest) (*tensor.Tensor, error)

	// DecodeVAE decodes already-scaled latents into image space [B, 3, H, W].
	DecodeVAE(ctx context.Context, latents *tensor.Tensor) (*tensor.Tensor, error)

	// Close releases the pipeline.
	Close() error
}

// Backend loads pipelines from the diffusion library.
type Backend interface {
	Name() string
	AcceleratorAvailable(ctx context.Context) (bool, error)
	Load(ctx context.Context, spec LoadSpec) (Pipeline, error)
}
