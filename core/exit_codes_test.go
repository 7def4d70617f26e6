package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitCodeSuccess},
		{"plain", errors.New("boom"), ExitCodeError},
		{"config", fmt.Errorf("load: %w", ErrMissingConfig("X")), ExitCodeConfig},
		{"cancelled", fmt.Errorf("generate: %w", context.Canceled), ExitCodeSIGINT},
		{"deadline", context.DeadlineExceeded, ExitCodeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCodeFor(tt.err); got != tt.want {
				t.Errorf("ExitCodeFor() = %d (%s), want %d", got, ExitCodeName(got), tt.want)
			}
		})
	}
}

func TestIsSignalExit(t *testing.T) {
	for code, want := range map[int]bool{
		ExitCodeSuccess: false,
		ExitCodeConfig:  false,
		ExitCodeSIGINT:  true,
		ExitCodeSIGTERM: true,
	} {
		if got := IsSignalExit(code); got != want {
			t.Errorf("IsSignalExit(%d) = %v, want %v", code, got, want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		-1:             "0 B",
		512:            "512 B",
		1536:           "1.50 KB",
		3 * BytesPerMB: "3.00 MB",
		BytesPerGB + 1: "1.00 GB",
	}
	for in, want := range tests {
		if got := FormatBytes(in); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
