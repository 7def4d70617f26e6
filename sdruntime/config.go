package sdruntime

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PresetFileEntry is one model in a presets file.
//
// Example presets.yaml:
//
//	presets:
//	  - name: Dreamshaper
//	    pretrained: Lykon/dreamshaper-8
//	    steps: 25
//	    guidance_scale: 7.0
//	  - name: Lightning-2
//	    steps: 2
//	    guidance_scale: 0
//	    lightning: true
type PresetFileEntry struct {
	Name          string  `yaml:"name"`
	Pretrained    string  `yaml:"pretrained"`
	Steps         int     `yaml:"steps"`
	GuidanceScale float64 `yaml:"guidance_scale"`

	// Lightning selects the SDXL-Lightning loader for Steps.
	Lightning bool `yaml:"lightning"`
}

// PresetFile is the top-level document of a presets file.
type PresetFile struct {
	Presets []PresetFileEntry `yaml:"presets"`
}

// ParsePresetFile decodes a presets document into presets ready for registration.
func ParsePresetFile(data []byte) ([]Preset, error) {
	var doc PresetFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse presets: %v", ErrInvalidPreset, err)
	}

	out := make([]Preset, 0, len(doc.Presets))
	for i, e := range doc.Presets {
		if e.Name == "" {
			return nil, fmt.Errorf("%w: entry %d has no name", ErrInvalidPreset, i)
		}
		p := Preset{
			Name:          e.Name,
			Pretrained:    e.Pretrained,
			Steps:         e.Steps,
			GuidanceScale: e.GuidanceScale,
		}
		if e.Lightning {
			if _, err := LightningLoadSpec(e.Steps, DeviceCPU); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPreset, e.Name, err)
			}
			p.Loader = LightningLoader(e.Steps)
		}
		out = append(out, p)
	}
	return out, nil
}

// LoadPresetsFile reads a presets file and registers every entry.
// It returns the number of presets registered.
func LoadPresetsFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read presets file: %w", err)
	}

	parsed, err := ParsePresetFile(data)
	if err != nil {
		return 0, err
	}

	for _, p := range parsed {
		if err := RegisterPreset(p); err != nil {
			return 0, err
		}
	}
	return len(parsed), nil
}
