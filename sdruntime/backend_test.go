package sdruntime

import (
	"context"
	"errors"
	"testing"
)

func TestParseDevice(t *testing.T) {
	tests := []struct {
		in      string
		want    Device
		wantErr bool
	}{
		{"", DeviceAuto, false},
		{"auto", DeviceAuto, false},
		{"CUDA", DeviceCUDA, false},
		{" cpu ", DeviceCPU, false},
		{"mps", DeviceMPS, false},
		{"tpu", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDevice(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidDevice) {
				t.Errorf("ParseDevice(%q) error = %v, want ErrInvalidDevice", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseDevice(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestStubBackend(t *testing.T) {
	var b StubBackend
	if b.Name() != "stub" {
		t.Errorf("Name() = %q", b.Name())
	}
	ok, err := b.AcceleratorAvailable(context.Background())
	if ok || err != nil {
		t.Errorf("AcceleratorAvailable() = %v, %v; want false, nil", ok, err)
	}
	d, err := ResolveDevice(context.Background(), b, DeviceAuto)
	if err != nil || d != DeviceCPU {
		t.Errorf("ResolveDevice(auto) = %q, %v; want cpu", d, err)
	}
	if _, err := b.Load(context.Background(), DefaultLoadSpec("x", DeviceCPU)); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("Load() error = %v, want ErrBackendUnavailable", err)
	}
}
