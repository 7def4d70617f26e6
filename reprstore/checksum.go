package reprstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CalculateChecksum computes the SHA256 of a file, streaming its contents.
// Returns the lowercase hex-encoded hash.
func CalculateChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify re-hashes every file listed in the manifest of dir.
//
// Returns:
//   - the manifest if all checksums match
//   - ErrManifestNotFound if dir holds no manifest
//   - ErrFileNotFound if a listed file is missing
//   - ErrChecksumMismatch naming the first corrupted file
func Verify(dir string) (*Manifest, error) {
	m, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}
	for _, f := range m.Files {
		got, err := CalculateChecksum(filepath.Join(dir, filepath.FromSlash(f.Path)))
		if err != nil {
			return nil, err
		}
		if got != f.SHA256 {
			return nil, fmt.Errorf("%w: %s: expected %s, got %s", ErrChecksumMismatch, f.Path, f.SHA256, got)
		}
	}
	return m, nil
}
