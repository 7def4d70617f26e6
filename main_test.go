package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/fatih/color"

	"sdprobe/core"
)

func TestPrintError(t *testing.T) {
	color.NoColor = true

	tests := []struct {
		name string
		err  error
		code int
		want string
	}{
		{
			name: "config error",
			err:  core.ErrInvalidDevice("tpu"),
			code: core.ExitCodeConfig,
			want: "Error: " + core.ErrInvalidDevice("tpu").Message + "\n  " + core.ErrInvalidDevice("tpu").Action + "\n",
		},
		{
			name: "interrupted",
			err:  fmt.Errorf("generate: %w", context.Canceled),
			code: core.ExitCodeSIGINT,
			want: "Stopped: interrupted (SIGINT)\n",
		},
		{
			name: "terminated with a failure",
			err:  errors.New("worker closed the connection"),
			code: core.ExitCodeSIGTERM,
			want: "Stopped: terminated (SIGTERM)\nError: worker closed the connection\n",
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			code: core.ExitCodeError,
			want: "Error: boom\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printError(&buf, tt.err, tt.code)
			if got := buf.String(); got != tt.want {
				t.Errorf("printError() = %q, want %q", got, tt.want)
			}
		})
	}
}
