package sdruntime

import (
	"context"
	"fmt"
)

// StubBackend is used when no diffusion worker is configured.
// It reports no accelerator and refuses to load models, which keeps the CLI
// and the wrapper usable for validation and preset inspection.
type StubBackend struct{}

// Name identifies the backend in logs.
func (StubBackend) Name() string {
	return "stub"
}

// AcceleratorAvailable always reports false.
func (StubBackend) AcceleratorAvailable(ctx context.Context) (bool, error) {
	return false, nil
}

// Load fails with ErrBackendUnavailable.
func (StubBackend) Load(ctx context.Context, spec LoadSpec) (Pipeline, error) {
	return nil, fmt.Errorf("%w: cannot load %q (stub backend). "+
		"Set SDPROBE_WORKER_URL to a diffusers worker to enable generation",
		ErrBackendUnavailable, spec.Pretrained)
}
