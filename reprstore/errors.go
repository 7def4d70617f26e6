// Package reprstore persists generation results to disk and loads
// representation buffers back for analysis.
//
// A saved run directory looks like:
//
//	result.png
//	steps.png              contact sheet of the per-step images
//	steps/step_000.png
//	latent.bin             final latents, float32 little-endian
//	repr/<position>.bin    [steps, H, W, C] float32 little-endian
//	manifest.yaml          shapes, sizes and sha256 checksums
package reprstore

import "errors"

var (
	ErrNoResult         = errors.New("reprstore: nothing to save")
	ErrManifestNotFound = errors.New("reprstore: manifest not found")
	ErrInvalidManifest  = errors.New("reprstore: invalid manifest")
	ErrFileNotFound     = errors.New("reprstore: file not found")
	ErrChecksumMismatch = errors.New("reprstore: checksum mismatch")
	ErrUnknownPosition  = errors.New("reprstore: position not in manifest")
	ErrFetchFailed      = errors.New("reprstore: fetch failed")
	ErrInvalidBuffer    = errors.New("reprstore: invalid representation buffer")
	ErrNotCached        = errors.New("reprstore: representation not fetched")
)
