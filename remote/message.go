// Package remote implements sdruntime.Backend against a diffusion worker
// reached over a websocket.
//
// The worker hosts the diffusion library. Both sides exchange JSON envelopes
// {type, timestamp, data}. A generation is one request followed by a stream
// of worker messages:
//
//	client                         worker
//	generate          ------>
//	                  <------      hook      (per hooked position, per pass)
//	hook_reply        ------>
//	                  <------      step      (per step, when requested)
//	decode            ------>                (optional, while a step is open)
//	                  <------      decoded
//	step_reply        ------>
//	                  <------      result | error
//
// Every hook and step message is answered by exactly one reply. Pipelines
// are owned by the worker process and survive reconnects.
package remote

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"sdprobe/tensor"
)

// Client to worker.
const (
	MessageTypeDevices   = "devices"
	MessageTypeLoad      = "load"
	MessageTypeGenerate  = "generate"
	MessageTypeHookReply = "hook_reply"
	MessageTypeStepReply = "step_reply"
	MessageTypeDecode    = "decode"
	MessageTypeClose     = "close"
)

// Worker to client. MessageTypeDevices is reused for the reply.
const (
	MessageTypeLoaded  = "loaded"
	MessageTypeHook    = "hook"
	MessageTypeStep    = "step"
	MessageTypeResult  = "result"
	MessageTypeDecoded = "decoded"
	MessageTypeClosed  = "closed"
	MessageTypeError   = "error"
)

// Message is the envelope for every frame. Data is decoded according to Type.
type Message struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage builds an envelope stamped with the current time.
func NewMessage(msgType string, data interface{}) (Message, error) {
	m := Message{Type: msgType, Timestamp: time.Now().UTC()}
	if data == nil {
		return m, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	m.Data = raw
	return m, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v interface{}) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%w: %s message has no data", ErrProtocol, m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrProtocol, m.Type, err)
	}
	return nil
}

// WireTensor carries a tensor as base64 little-endian values.
type WireTensor struct {
	Shape []int  `json:"shape"`
	DType string `json:"dtype"`
	Data  string `json:"data"`
}

// ToWire encodes t with dtype (tensor.DTypeFloat32 or tensor.DTypeFloat16).
func ToWire(t *tensor.Tensor, dtype string) (WireTensor, error) {
	buf, err := tensor.Encode(t, dtype)
	if err != nil {
		return WireTensor{}, err
	}
	return WireTensor{
		Shape: t.Shape(),
		DType: dtype,
		Data:  base64.StdEncoding.EncodeToString(buf),
	}, nil
}

// Tensor decodes w.
func (w WireTensor) Tensor() (*tensor.Tensor, error) {
	buf, err := base64.StdEncoding.DecodeString(w.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: tensor data: %v", ErrProtocol, err)
	}
	dtype := w.DType
	if dtype == "" {
		dtype = tensor.DTypeFloat32
	}
	t, err := tensor.Decode(w.Shape, dtype, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	return t, nil
}

// DevicesData answers a devices request.
type DevicesData struct {
	Accelerator bool     `json:"accelerator"`
	Devices     []string `json:"devices,omitempty"`
}

// LoadedData answers a load request.
type LoadedData struct {
	PipelineID       string   `json:"pipeline_id"`
	Device           string   `json:"device"`
	Positions        []string `json:"positions"`
	VAEScalingFactor float64  `json:"vae_scaling_factor"`
}

// GenerateData starts a generation on a loaded pipeline.
type GenerateData struct {
	PipelineID     string   `json:"pipeline_id"`
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	Steps          int      `json:"steps"`
	GuidanceScale  float64  `json:"guidance_scale"`
	Seed           int64    `json:"seed"`
	Width          int      `json:"width,omitempty"`
	Height         int      `json:"height,omitempty"`
	HookPositions  []string `json:"hook_positions,omitempty"`
	StepCallback   bool     `json:"step_callback"`
}

// HookData reports one forward pass at a hooked position.
type HookData struct {
	Position string       `json:"position"`
	Step     int          `json:"step"`
	Inputs   []WireTensor `json:"inputs,omitempty"`
	Output   WireTensor   `json:"output"`
}

// HookReplyData answers a hook. Replacement nil keeps the original output.
// Abort asks the worker to stop the generation.
type HookReplyData struct {
	Replacement *WireTensor `json:"replacement,omitempty"`
	Abort       bool        `json:"abort,omitempty"`
}

// StepData reports the latents after a finished denoising step.
type StepData struct {
	Step     int        `json:"step"`
	Timestep float64    `json:"timestep"`
	Latents  WireTensor `json:"latents"`
}

// StepReplyData answers a step.
type StepReplyData struct {
	Abort bool `json:"abort,omitempty"`
}

// ResultData carries the final latents of a generation.
type ResultData struct {
	Latents WireTensor `json:"latents"`
}

// DecodeData asks the worker to run the VAE decoder on latents.
type DecodeData struct {
	PipelineID string     `json:"pipeline_id"`
	Latents    WireTensor `json:"latents"`
}

// DecodedData carries VAE output.
type DecodedData struct {
	Images WireTensor `json:"images"`
}

// CloseData releases a pipeline.
type CloseData struct {
	PipelineID string `json:"pipeline_id"`
}

// ErrorData reports a worker-side failure.
type ErrorData struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
