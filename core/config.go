// Package core holds configuration loading, configuration errors and exit
// codes shared by the CLI.
package core

import (
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables read by LoadConfig.
const (
	EnvWorkerURL   = "SDPROBE_WORKER_URL"
	EnvWorkerToken = "SDPROBE_WORKER_TOKEN"
	EnvWorkerDType = "SDPROBE_WORKER_DTYPE"
	EnvDevice      = "SDPROBE_DEVICE"
	EnvModel       = "SDPROBE_MODEL"
	EnvOutputDir   = "SDPROBE_OUTPUT_DIR"
	EnvDBPath      = "SDPROBE_DB_PATH"
	EnvPresetsFile = "SDPROBE_PRESETS_FILE"
	EnvTimeout     = "SDPROBE_TIMEOUT_SECONDS"
	EnvNoHistory   = "SDPROBE_NO_HISTORY"
	EnvPositions   = "SDPROBE_POSITIONS"
	EnvLogFile     = "SDPROBE_LOG_FILE"
	EnvLogLevel    = "SDPROBE_LOG_LEVEL"
	EnvDevMode     = "DEV_MODE"
)

// Defaults applied by LoadConfig.
const (
	DefaultDevice         = "auto"
	DefaultModel          = "SD-1.5"
	DefaultOutputDir      = "./runs"
	DefaultLogFile        = "sdprobe.log"
	DefaultTimeoutSeconds = 600
	DefaultWorkerDType    = "f32"
)

// Config holds everything the CLI reads from the environment.
type Config struct {
	// Worker connection. An empty WorkerURL selects the offline stub backend.
	WorkerURL   string
	WorkerToken string
	WorkerDType string // f32 or f16

	Device string // auto, cuda, mps or cpu
	Model  string

	OutputDir   string
	DBPath      string
	PresetsFile string
	NoHistory   bool

	// Positions are captured by generate when --position is not given.
	Positions []string

	// Timeout bounds one command, including model load. Zero disables it.
	Timeout time.Duration

	LogFile  string
	LogLevel string
	DevMode  bool
}

// LoadConfig loads envFile (or ./.env when envFile is empty and the file
// exists) and reads the configuration from the environment. Variables that
// are already set win over the file.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, ErrEnvFileMissing(envFile)
			}
			return nil, ErrInvalidValue("env file", envFile, err.Error())
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, ErrInvalidValue("env file", ".env", err.Error())
	}

	cfg := &Config{
		WorkerURL:   GetEnvOrDefault(EnvWorkerURL, ""),
		WorkerToken: GetEnvOrDefault(EnvWorkerToken, ""),
		WorkerDType: strings.ToLower(GetEnvOrDefault(EnvWorkerDType, DefaultWorkerDType)),
		Device:      strings.ToLower(GetEnvOrDefault(EnvDevice, DefaultDevice)),
		Model:       GetEnvOrDefault(EnvModel, DefaultModel),
		OutputDir:   GetEnvOrDefault(EnvOutputDir, DefaultOutputDir),
		PresetsFile: GetEnvOrDefault(EnvPresetsFile, ""),
		NoHistory:   ParseBoolEnv(EnvNoHistory, false),
		Positions:   ParseListEnv(EnvPositions),
		LogFile:     GetEnvOrDefault(EnvLogFile, DefaultLogFile),
		LogLevel:    GetEnvOrDefault(EnvLogLevel, ""),
		DevMode:     ParseBoolEnv(EnvDevMode, false),
	}
	cfg.DBPath = GetEnvOrDefault(EnvDBPath, filepath.Join(cfg.OutputDir, "history.db"))

	timeout, err := ParseDurationEnv(EnvTimeout, DefaultTimeoutSeconds)
	if err != nil {
		return nil, err
	}
	cfg.Timeout = timeout

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values LoadConfig cannot repair.
func (c *Config) Validate() error {
	if c.WorkerURL != "" {
		if err := ValidateWorkerURL(c.WorkerURL); err != nil {
			return err
		}
	}
	switch c.Device {
	case "auto", "cuda", "mps", "cpu":
	default:
		return ErrInvalidDevice(c.Device)
	}
	switch c.WorkerDType {
	case "f32", "f16":
	default:
		return ErrInvalidValue(EnvWorkerDType, c.WorkerDType, "expected f32 or f16")
	}
	if c.OutputDir == "" {
		return ErrMissingConfig(EnvOutputDir)
	}
	return nil
}

// HasWorker reports whether a remote worker is configured.
func (c *Config) HasWorker() bool {
	return c.WorkerURL != ""
}

// ValidateWorkerURL checks for a ws:// or wss:// URL with a host.
func ValidateWorkerURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidWorkerURL(raw, err.Error())
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return ErrInvalidWorkerURL(raw, "scheme must be ws or wss")
	}
	if u.Host == "" {
		return ErrInvalidWorkerURL(raw, "missing host")
	}
	return nil
}

// CheckFileExists returns an error if path does not exist or is a directory.
func CheckFileExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.New(path + " is a directory")
	}
	return nil
}
