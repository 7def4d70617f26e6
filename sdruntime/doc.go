// Package sdruntime wraps a pretrained text-to-image diffusion pipeline with
// the instrumentation needed to study it.
//
// Model loading, the denoising loop and the VAE live in an external diffusion
// library reached through the Backend and Pipeline interfaces. This package
// adds:
//
//   - Presets: named models with default steps and guidance scale
//   - Forward hooks: capture or replace U-Net outputs at named positions
//   - Step decoding: every intermediate latent decoded to an image
//   - Seeding and VAE postprocessing
//   - Result: everything one call produced, in one value
//
// # Quick Start
//
//	gen, err := sdruntime.NewGenerator(ctx, backend, "SD-Turbo", sdruntime.DeviceAuto,
//	    sdruntime.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer gen.Close()
//
//	res, err := gen.Generate(ctx, sdruntime.GenerateParams{
//	    Prompt:           "a lighthouse at dusk",
//	    Seed:             42,
//	    ExtractPositions: []string{"mid_block", "up_blocks[1]"},
//	})
//
// res.Representations["mid_block"] then holds one tensor per U-Net forward
// pass, and res.Images one image per denoising step.
//
// # Unknown Models
//
// A model name that is not a registered preset is passed through as a raw
// pretrained identifier. It carries no defaults, so Generate fails with
// ErrMissingSteps or ErrMissingGuidance unless both are given.
//
// # Modification
//
// GenerateParams.Modification is called at every available position after the
// output has been captured. Returning a tensor replaces the module output for
// the rest of the network:
//
//	params.Modification = func(call sdruntime.HookCall) (*tensor.Tensor, error) {
//	    if call.Position != "mid_block" {
//	        return nil, nil
//	    }
//	    return call.Output.Scale(0), nil
//	}
//
// # Thread Safety
//
// Generate calls on one Generator are serialized. HookRegistry and the preset
// registry are safe for concurrent use.
package sdruntime
