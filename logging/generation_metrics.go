package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// GenerationMetrics summarises one diffusion run for structured logs.
//
// Example:
//
//	logger.Info("generation complete", logging.GenerationFields(logging.GenerationMetrics{
//		Model:    "SD-Turbo",
//		Steps:    2,
//		Seed:     42,
//		Duration: 1200 * time.Millisecond,
//	}))
type GenerationMetrics struct {
	Model         string
	Device        string
	Steps         int
	GuidanceScale float64
	Seed          int64
	Width         int
	Height        int
	Positions     int // positions with captured representations
	HookCalls     int // total captured tensors across positions
	Duration      time.Duration
}

// StepsPerSecond is the denoising throughput, or 0 for an unfinished run.
func (m GenerationMetrics) StepsPerSecond() float64 {
	if m.Duration <= 0 {
		return 0
	}
	return float64(m.Steps) / m.Duration.Seconds()
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (m GenerationMetrics) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("model", m.Model)
	if m.Device != "" {
		enc.AddString("device", m.Device)
	}
	enc.AddInt("steps", m.Steps)
	enc.AddFloat64("guidance_scale", m.GuidanceScale)
	enc.AddInt64("seed", m.Seed)
	enc.AddInt("width", m.Width)
	enc.AddInt("height", m.Height)
	enc.AddInt("positions", m.Positions)
	enc.AddInt("hook_calls", m.HookCalls)
	enc.AddInt64("duration_ms", m.Duration.Milliseconds())
	enc.AddFloat64("steps_per_second", m.StepsPerSecond())
	return nil
}

// GenerationFields wraps metrics in a single "generation" field.
func GenerationFields(m GenerationMetrics) zap.Field {
	return zap.Object("generation", m)
}

// TimingFields returns start, end and duration fields for an operation.
func TimingFields(start, end time.Time) []zap.Field {
	return []zap.Field{
		zap.Time("start_time", start),
		zap.Time("end_time", end),
		zap.Duration("duration", end.Sub(start)),
	}
}
