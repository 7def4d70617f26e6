package core

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestGetEnvOrDefault(t *testing.T) {
	const key = "TEST_SDPROBE_GET_ENV"

	t.Setenv(key, "custom_value")
	if got := GetEnvOrDefault(key, "default"); got != "custom_value" {
		t.Errorf("GetEnvOrDefault() = %q, want custom_value", got)
	}

	t.Setenv(key, "   ")
	if got := GetEnvOrDefault(key, "default"); got != "default" {
		t.Errorf("GetEnvOrDefault(blank) = %q, want default", got)
	}
}

func TestParseIntEnv(t *testing.T) {
	const key = "TEST_SDPROBE_INT"

	tests := []struct {
		value   string
		want    int
		wantErr bool
	}{
		{"", 7, false},
		{"42", 42, false},
		{" -3 ", -3, false},
		{"4.5", 0, true},
		{"many", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv(key, tt.value)
			got, err := ParseIntEnv(key, 7)
			if tt.wantErr {
				if GetErrorCode(err) != ErrCodeInvalidValue {
					t.Errorf("ParseIntEnv(%q) error = %v, want INVALID_VALUE", tt.value, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseIntEnv(%q) = %d, %v; want %d", tt.value, got, err, tt.want)
			}
		})
	}
}

func TestParseBoolEnv(t *testing.T) {
	const key = "TEST_SDPROBE_BOOL"

	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"TRUE", false, true},
		{"on", false, true},
		{"0", true, false},
		{"No", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv(key, tt.value)
		if got := ParseBoolEnv(key, tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	const key = "TEST_SDPROBE_DURATION"

	t.Setenv(key, "")
	if got, err := ParseDurationEnv(key, 90); err != nil || got != 90*time.Second {
		t.Errorf("ParseDurationEnv(default) = %v, %v", got, err)
	}
	t.Setenv(key, "0")
	if got, err := ParseDurationEnv(key, 90); err != nil || got != 0 {
		t.Errorf("ParseDurationEnv(0) = %v, %v", got, err)
	}
}

func TestParseListEnv(t *testing.T) {
	const key = "TEST_SDPROBE_LIST"

	t.Setenv(key, "mid_block, up_blocks[0],,  ")
	if diff := cmp.Diff([]string{"mid_block", "up_blocks[0]"}, ParseListEnv(key)); diff != "" {
		t.Errorf("ParseListEnv() mismatch (-want +got):\n%s", diff)
	}
	t.Setenv(key, "")
	if got := ParseListEnv(key); got != nil {
		t.Errorf("ParseListEnv(empty) = %v, want nil", got)
	}
}
