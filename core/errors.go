package core

import (
	"errors"
	"fmt"
)

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeEnvFileMissing   = "ENV_FILE_MISSING"
	ErrCodeInvalidWorkerURL = "INVALID_WORKER_URL"
	ErrCodeInvalidDevice    = "INVALID_DEVICE"
	ErrCodeInvalidValue     = "INVALID_VALUE"
	ErrCodeMissingConfig    = "MISSING_CONFIG"
	ErrCodeWorkerAuth       = "WORKER_AUTH_FAILED"
)

// ErrEnvFileMissing returns an error for a .env file that was asked for but not found.
func ErrEnvFileMissing(path string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeEnvFileMissing,
		Message: fmt.Sprintf("Configuration file not found: %s", path),
		Action:  "Create the file or drop the --env-file flag",
	}
}

// ErrInvalidWorkerURL returns an error for a malformed SDPROBE_WORKER_URL.
func ErrInvalidWorkerURL(url, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidWorkerURL,
		Message: fmt.Sprintf("Invalid SDPROBE_WORKER_URL '%s': %s", url, reason),
		Action:  "Set SDPROBE_WORKER_URL to a websocket URL (e.g., ws://localhost:8765/ws)",
	}
}

// ErrInvalidDevice returns an error for an unknown SDPROBE_DEVICE.
func ErrInvalidDevice(device string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidDevice,
		Message: fmt.Sprintf("Invalid SDPROBE_DEVICE '%s'", device),
		Action:  "Set SDPROBE_DEVICE to auto, cuda, mps or cpu",
	}
}

// ErrInvalidValue returns an error for a variable that failed to parse.
func ErrInvalidValue(varName, value, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidValue,
		Message: fmt.Sprintf("Invalid %s '%s': %s", varName, value, reason),
		Action:  fmt.Sprintf("Fix %s in your environment or .env file", varName),
	}
}

// ErrMissingConfig returns an error for missing required configuration.
func ErrMissingConfig(varName string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingConfig,
		Message: fmt.Sprintf("Missing required configuration: %s", varName),
		Action:  fmt.Sprintf("Set %s in your .env file", varName),
	}
}

// ErrWorkerAuth returns an error for a worker that rejected the token.
func ErrWorkerAuth(reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeWorkerAuth,
		Message: fmt.Sprintf("Worker rejected the credentials: %s", reason),
		Action:  "Check SDPROBE_WORKER_TOKEN",
	}
}

// IsConfigError reports whether err wraps a ConfigError and returns it.
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error if it wraps a ConfigError.
func GetErrorCode(err error) string {
	if configErr, ok := IsConfigError(err); ok {
		return configErr.Code
	}
	return ""
}
