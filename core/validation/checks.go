package validation

import (
	"context"
	"errors"
	"fmt"
	"os"

	"sdprobe/core"
	"sdprobe/db"
	"sdprobe/sdruntime"
)

// OutputDirWritable checks that runs can be saved under dir.
func OutputDirWritable(dir string) CheckFunc {
	return func(ctx context.Context) (string, error) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create %s: %w", dir, err)
		}
		f, err := os.CreateTemp(dir, ".sdprobe-check-*")
		if err != nil {
			return "", fmt.Errorf("%s is not writable: %w", dir, err)
		}
		name := f.Name()
		f.Close()
		os.Remove(name)
		return dir + " is writable", nil
	}
}

// PresetsFile checks that an optional presets file parses.
func PresetsFile(path string) CheckFunc {
	return func(ctx context.Context) (string, error) {
		if path == "" {
			return fmt.Sprintf("%d built-in presets", len(sdruntime.Presets())), nil
		}
		if err := core.CheckFileExists(path); err != nil {
			return "", core.ErrInvalidValue(core.EnvPresetsFile, path, err.Error())
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		parsed, err := sdruntime.ParsePresetFile(data)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d presets in %s", len(parsed), path), nil
	}
}

// HistoryDB checks that the run history opens and migrates.
func HistoryDB(path string) CheckFunc {
	return func(ctx context.Context) (string, error) {
		d, err := db.Open(path)
		if err != nil {
			return "", err
		}
		defer d.Close()

		n, err := db.NewRepository(d).CountRuns(ctx)
		if err != nil {
			return "", err
		}
		version, dirty, err := db.MigrationVersion(path)
		if err != nil {
			return "", err
		}
		if dirty {
			return "", fmt.Errorf("schema version %d is dirty; a migration was interrupted", version)
		}
		return fmt.Sprintf("%d runs recorded (schema v%d)", n, version), nil
	}
}

// Model checks that name is a registered preset. A raw pretrained
// identifier yields a warning, since it has no default steps or guidance.
func Model(name string) CheckFunc {
	return func(ctx context.Context) (string, error) {
		if !sdruntime.IsKnownPreset(name) {
			return "", Warn("%q is not a preset; generate needs --steps and --guidance", name)
		}
		p := sdruntime.LookupPreset(name)
		return fmt.Sprintf("%s (%s, %d steps)", p.Name, p.Pretrained, p.Steps), nil
	}
}

// LogFile reports where the log file is written.
func LogFile(path string) CheckFunc {
	return func(ctx context.Context) (string, error) {
		if path == "" {
			return "file logging disabled", nil
		}
		return "writing to " + path, nil
	}
}

// Backend checks that b answers and reports its accelerator. The stub
// backend yields a warning, since it cannot generate.
func Backend(b sdruntime.Backend) CheckFunc {
	return func(ctx context.Context) (string, error) {
		accel, err := b.AcceleratorAvailable(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return "", fmt.Errorf("%s backend did not answer in time: %w", b.Name(), err)
			}
			return "", err
		}
		if _, ok := b.(sdruntime.StubBackend); ok {
			return "", Warn("no worker configured; set %s to enable generation", core.EnvWorkerURL)
		}
		if !accel {
			return "", Warn("%s backend has no accelerator; generation runs on CPU", b.Name())
		}
		return b.Name() + " backend has an accelerator", nil
	}
}
