package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var configEnvVars = []string{
	EnvWorkerURL, EnvWorkerToken, EnvWorkerDType, EnvDevice, EnvModel, EnvOutputDir,
	EnvDBPath, EnvPresetsFile, EnvTimeout, EnvNoHistory, EnvPositions, EnvLogFile, EnvLogLevel, EnvDevMode,
}

// clearEnv unsets every config variable for the test and restores them after,
// including ones a loaded env file added.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvVars {
		old, had := os.LookupEnv(key)
		os.Unsetenv(key)
		t.Cleanup(func() {
			if had {
				os.Setenv(key, old)
			} else {
				os.Unsetenv(key)
			}
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.HasWorker() {
		t.Error("HasWorker() = true with no SDPROBE_WORKER_URL")
	}
	if cfg.Device != "auto" || cfg.Model != "SD-1.5" || cfg.WorkerDType != "f32" {
		t.Errorf("defaults = device %q model %q dtype %q", cfg.Device, cfg.Model, cfg.WorkerDType)
	}
	if cfg.OutputDir != DefaultOutputDir {
		t.Errorf("OutputDir = %q, want %q", cfg.OutputDir, DefaultOutputDir)
	}
	if want := filepath.Join(DefaultOutputDir, "history.db"); cfg.DBPath != want {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, want)
	}
	if cfg.Timeout != 600*time.Second {
		t.Errorf("Timeout = %v, want 10m", cfg.Timeout)
	}
	if cfg.LogFile != DefaultLogFile || cfg.DevMode || cfg.NoHistory {
		t.Errorf("LogFile = %q DevMode = %v NoHistory = %v", cfg.LogFile, cfg.DevMode, cfg.NoHistory)
	}
}

func TestLoadConfig_EnvFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "test.env")
	content := `SDPROBE_WORKER_URL=ws://gpu-box:8765/ws
SDPROBE_WORKER_TOKEN=hf_secret
SDPROBE_DEVICE=CUDA
SDPROBE_MODEL=SD-Turbo
SDPROBE_OUTPUT_DIR=/data/runs
SDPROBE_TIMEOUT_SECONDS=30
SDPROBE_NO_HISTORY=yes
SDPROBE_POSITIONS=mid_block, up_blocks[1],
DEV_MODE=true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	// already-set variables win over the file
	t.Setenv(EnvModel, "Lightning-4step")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if !cfg.HasWorker() || cfg.WorkerURL != "ws://gpu-box:8765/ws" || cfg.WorkerToken != "hf_secret" {
		t.Errorf("worker = %q token %q", cfg.WorkerURL, cfg.WorkerToken)
	}
	if cfg.Device != "cuda" {
		t.Errorf("Device = %q, want cuda", cfg.Device)
	}
	if cfg.Model != "Lightning-4step" {
		t.Errorf("Model = %q, want the pre-set Lightning-4step", cfg.Model)
	}
	if cfg.DBPath != filepath.Join("/data/runs", "history.db") {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.Timeout != 30*time.Second || !cfg.NoHistory || !cfg.DevMode {
		t.Errorf("Timeout = %v NoHistory = %v DevMode = %v", cfg.Timeout, cfg.NoHistory, cfg.DevMode)
	}
	if diff := cmp.Diff([]string{"mid_block", "up_blocks[1]"}, cfg.Positions); diff != "" {
		t.Errorf("Positions mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		wantCode string
	}{
		{"http worker url", EnvWorkerURL, "http://gpu-box:8765", ErrCodeInvalidWorkerURL},
		{"worker url without host", EnvWorkerURL, "ws://", ErrCodeInvalidWorkerURL},
		{"unknown device", EnvDevice, "tpu", ErrCodeInvalidDevice},
		{"bad dtype", EnvWorkerDType, "bf16", ErrCodeInvalidValue},
		{"bad timeout", EnvTimeout, "soon", ErrCodeInvalidValue},
		{"negative timeout", EnvTimeout, "-5", ErrCodeInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig("")
			if got := GetErrorCode(err); got != tt.wantCode {
				t.Errorf("LoadConfig() error = %v (code %q), want code %q", err, got, tt.wantCode)
			}
		})
	}
}

func TestLoadConfig_MissingEnvFile(t *testing.T) {
	clearEnv(t)
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	if GetErrorCode(err) != ErrCodeEnvFileMissing {
		t.Errorf("LoadConfig() error = %v, want ENV_FILE_MISSING", err)
	}
}

func TestCheckFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CheckFileExists(file); err != nil {
		t.Errorf("CheckFileExists(file) = %v", err)
	}
	if err := CheckFileExists(dir); err == nil {
		t.Error("CheckFileExists(dir) = nil, want error")
	}
	if err := CheckFileExists(filepath.Join(dir, "nope")); err == nil {
		t.Error("CheckFileExists(missing) = nil, want error")
	}
}
