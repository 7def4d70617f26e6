package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnvOrDefault returns the value of key, or defaultValue when unset or empty.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// ParseIntEnv parses key as an integer. Unset yields defaultValue; an
// unparsable value is an error naming the variable.
func ParseIntEnv(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, ErrInvalidValue(key, value, "expected an integer")
	}
	return n, nil
}

// ParseBoolEnv parses key as a boolean.
// Accepts case-insensitive "true", "1", "yes", "on" and "false", "0", "no", "off".
// Anything else yields defaultValue.
func ParseBoolEnv(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return defaultValue
	}
}

// ParseDurationEnv parses key as a whole number of seconds.
func ParseDurationEnv(key string, defaultSeconds int) (time.Duration, error) {
	n, err := ParseIntEnv(key, defaultSeconds)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, ErrInvalidValue(key, fmt.Sprint(n), "must not be negative")
	}
	return time.Duration(n) * time.Second, nil
}

// ParseListEnv splits key on commas, dropping empty items.
func ParseListEnv(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
