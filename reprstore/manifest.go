package reprstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the name of the manifest inside a run directory.
const ManifestFile = "manifest.yaml"

const manifestVersion = 1

// File kinds recorded in the manifest.
const (
	KindImage          = "image"
	KindLatent         = "latent"
	KindRepresentation = "representation"
)

// Manifest describes a saved run.
type Manifest struct {
	Version       int       `yaml:"version"`
	Prompt        string    `yaml:"prompt"`
	Seed          int64     `yaml:"seed"`
	Model         string    `yaml:"model"`
	Pretrained    string    `yaml:"pretrained"`
	Device        string    `yaml:"device"`
	Steps         int       `yaml:"steps"`
	GuidanceScale float64   `yaml:"guidance_scale"`
	Width         int       `yaml:"width"`
	Height        int       `yaml:"height"`
	DurationMS    int64     `yaml:"duration_ms"`
	CreatedAt     time.Time `yaml:"created_at"`
	Files         []File    `yaml:"files"`
}

// File is one entry of the manifest. Path is slash-separated and relative
// to the run directory.
type File struct {
	Path     string `yaml:"path"`
	Kind     string `yaml:"kind"`
	Position string `yaml:"position,omitempty"`
	Shape    []int  `yaml:"shape,omitempty"`
	DType    string `yaml:"dtype,omitempty"`
	Size     int64  `yaml:"size"`
	SHA256   string `yaml:"sha256"`
}

// Representation returns the entry for position.
func (m *Manifest) Representation(position string) (File, error) {
	for _, f := range m.Files {
		if f.Kind == KindRepresentation && f.Position == position {
			return f, nil
		}
	}
	return File{}, fmt.Errorf("%w: %q", ErrUnknownPosition, position)
}

// Positions lists the saved representation positions in manifest order.
func (m *Manifest) Positions() []string {
	var out []string
	for _, f := range m.Files {
		if f.Kind == KindRepresentation {
			out = append(out, f.Position)
		}
	}
	return out
}

// LoadManifest reads and validates dir/manifest.yaml.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, dir)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidManifest, m.Version)
	}
	for _, f := range m.Files {
		if f.Path == "" || strings.HasPrefix(f.Path, "/") || strings.Contains(f.Path, "..") {
			return nil, fmt.Errorf("%w: bad file path %q", ErrInvalidManifest, f.Path)
		}
	}
	return &m, nil
}

func writeManifest(dir string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o644)
}
