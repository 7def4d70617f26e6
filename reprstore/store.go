package reprstore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"sdprobe/sdruntime"
	"sdprobe/tensor"
)

// ContactSheetCell is the edge length of one image in steps.png.
const ContactSheetCell = 256

var positionReplacer = strings.NewReplacer("[", "_", "]", "", ".", "_", "/", "_")

// PositionFile returns the relative path of the buffer saved for position.
func PositionFile(position string) string {
	return path.Join("repr", positionReplacer.Replace(position)+".bin")
}

// Save writes r into dir, finishing with manifest.yaml, and returns the manifest.
// dir is created if needed; existing files are overwritten.
func Save(dir string, r *sdruntime.Result) (*Manifest, error) {
	if r == nil {
		return nil, ErrNoResult
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}

	w := &runWriter{dir: dir}
	m := &Manifest{
		Version:       manifestVersion,
		Prompt:        r.Prompt,
		Seed:          r.Seed,
		Model:         r.Model,
		Pretrained:    r.Pretrained,
		Device:        string(r.Device),
		Steps:         r.Steps,
		GuidanceScale: r.GuidanceScale,
		Width:         r.Width,
		Height:        r.Height,
		DurationMS:    r.Duration.Milliseconds(),
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}

	if r.ResultImage != nil {
		if err := w.png("result.png", r.ResultImage); err != nil {
			return nil, err
		}
	}
	for i, img := range r.Images {
		if err := w.png(fmt.Sprintf("steps/step_%03d.png", i), img); err != nil {
			return nil, err
		}
	}
	if sheet := sdruntime.ContactSheet(r.Images, ContactSheetCell); sheet != nil {
		if err := w.png("steps.png", sheet); err != nil {
			return nil, err
		}
	}

	if r.ResultLatent != nil {
		if err := w.tensor("latent.bin", File{Kind: KindLatent}, r.ResultLatent); err != nil {
			return nil, err
		}
	}

	for _, pos := range r.Positions() {
		stacked, err := ExportRepresentation(r.Representations[pos])
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", pos, err)
		}
		if stacked == nil {
			continue
		}
		if err := w.tensor(PositionFile(pos), File{Kind: KindRepresentation, Position: pos}, stacked); err != nil {
			return nil, err
		}
	}

	m.Files = w.files
	if err := writeManifest(dir, m); err != nil {
		return nil, err
	}
	return m, nil
}

// ExportRepresentation turns the captures of one position into a single
// [steps, H, W, C] tensor: batch element 0 of every capture, channels last.
// Captures may be [B, C, H, W] or already [C, H, W]. Returns nil for no captures.
func ExportRepresentation(captures []*tensor.Tensor) (*tensor.Tensor, error) {
	if len(captures) == 0 {
		return nil, nil
	}
	steps := make([]*tensor.Tensor, 0, len(captures))
	for i, c := range captures {
		chw := c
		if c.Rank() == 4 {
			var err error
			if chw, err = c.Index(0); err != nil {
				return nil, fmt.Errorf("capture %d: %w", i, err)
			}
		}
		hwc, err := chw.ToHWC()
		if err != nil {
			return nil, fmt.Errorf("capture %d: %w", i, err)
		}
		steps = append(steps, hwc)
	}
	return tensor.Stack(steps)
}

// LoadRepresentation reads the saved buffer for position from dir.
func LoadRepresentation(dir, position string) (*tensor.Tensor, error) {
	m, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}
	f, err := m.Representation(position)
	if err != nil {
		return nil, err
	}
	return loadTensor(dir, f)
}

// LoadLatent reads the saved final latents from dir.
func LoadLatent(dir string) (*tensor.Tensor, error) {
	m, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}
	for _, f := range m.Files {
		if f.Kind == KindLatent {
			return loadTensor(dir, f)
		}
	}
	return nil, fmt.Errorf("%w: latent.bin", ErrFileNotFound)
}

func loadTensor(dir string, f File) (*tensor.Tensor, error) {
	buf, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(f.Path)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, f.Path)
		}
		return nil, err
	}
	t, err := tensor.Decode(f.Shape, f.DType, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidBuffer, f.Path, err)
	}
	return t, nil
}

// runWriter writes files under dir and records their manifest entries.
type runWriter struct {
	dir   string
	files []File
}

func (w *runWriter) png(rel string, img image.Image) error {
	data, err := sdruntime.EncodePNG(img)
	if err != nil {
		return fmt.Errorf("%s: %w", rel, err)
	}
	return w.write(rel, data, File{Kind: KindImage})
}

func (w *runWriter) tensor(rel string, f File, t *tensor.Tensor) error {
	data, err := tensor.Encode(t, tensor.DTypeFloat32)
	if err != nil {
		return fmt.Errorf("%s: %w", rel, err)
	}
	f.Shape = t.Shape()
	f.DType = tensor.DTypeFloat32
	return w.write(rel, data, f)
}

func (w *runWriter) write(rel string, data []byte, f File) error {
	full := filepath.Join(w.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", path.Dir(rel), err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	sum := sha256.Sum256(data)
	f.Path = rel
	f.Size = int64(len(data))
	f.SHA256 = hex.EncodeToString(sum[:])
	w.files = append(w.files, f)
	return nil
}
