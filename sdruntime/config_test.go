package sdruntime

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const testPresetsYAML = `
presets:
  - name: Dreamshaper
    pretrained: Lykon/dreamshaper-8
    steps: 25
    guidance_scale: 7.0
  - name: Lightning-2
    steps: 2
    guidance_scale: 0
    lightning: true
`

func TestParsePresetFile(t *testing.T) {
	presets, err := ParsePresetFile([]byte(testPresetsYAML))
	if err != nil {
		t.Fatalf("ParsePresetFile() error = %v", err)
	}
	if len(presets) != 2 {
		t.Fatalf("len = %d, want 2", len(presets))
	}
	if presets[0].Pretrained != "Lykon/dreamshaper-8" || presets[0].Loader != nil {
		t.Errorf("presets[0] = %+v", presets[0])
	}
	if presets[1].Loader == nil {
		t.Error("lightning entry has no loader")
	}
}

func TestParsePresetFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed", "presets: [name: x"},
		{"missing name", "presets:\n  - steps: 4\n"},
		{"unsupported lightning steps", "presets:\n  - name: L3\n    steps: 3\n    lightning: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePresetFile([]byte(tt.yaml)); !errors.Is(err, ErrInvalidPreset) {
				t.Errorf("ParsePresetFile() error = %v, want ErrInvalidPreset", err)
			}
		})
	}
}

func TestLoadPresetsFile(t *testing.T) {
	t.Cleanup(ResetPresets)

	path := filepath.Join(t.TempDir(), "presets.yaml")
	if err := os.WriteFile(path, []byte(testPresetsYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := LoadPresetsFile(path)
	if err != nil {
		t.Fatalf("LoadPresetsFile() error = %v", err)
	}
	if n != 2 {
		t.Errorf("registered %d presets, want 2", n)
	}
	p := LookupPreset("Lightning-2")
	if !p.HasDefaults || p.Pretrained != "Lightning-2" || p.Steps != 2 {
		t.Errorf("Lightning-2 = %+v", p)
	}
}

func TestLoadPresetsFile_Missing(t *testing.T) {
	if _, err := LoadPresetsFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("LoadPresetsFile() on missing file returned nil error")
	}
}
