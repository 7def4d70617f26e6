package remote

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sdprobe/sdruntime"
	"sdprobe/tensor"
)

// pipeline is a worker-side pipeline addressed by id.
type pipeline struct {
	client    *Client
	id        string
	device    sdruntime.Device
	positions []string
	scaling   float64

	// stepConn is the connection of the running generation while a step
	// callback executes; DecodeVAE reuses it instead of taking the lock.
	stepConn atomic.Pointer[websocket.Conn]
	closed   atomic.Bool
}

var _ sdruntime.Pipeline = (*pipeline)(nil)

func (p *pipeline) Device() sdruntime.Device  { return p.device }
func (p *pipeline) Positions() []string       { return append([]string(nil), p.positions...) }
func (p *pipeline) VAEScalingFactor() float64 { return p.scaling }

// Run starts a generation and services hook and step messages until the
// worker sends the final latents.
func (p *pipeline) Run(ctx context.Context, req sdruntime.RunRequest) (*tensor.Tensor, error) {
	if p.closed.Load() {
		return nil, sdruntime.ErrPipelineClosed
	}

	c := p.client
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connLocked(ctx)
	if err != nil {
		return nil, err
	}
	defer c.watch(ctx, conn)()

	start := time.Now()
	err = c.send(ctx, conn, MessageTypeGenerate, GenerateData{
		PipelineID:     p.id,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Steps:          req.Steps,
		GuidanceScale:  req.GuidanceScale,
		Seed:           req.Seed,
		Width:          req.Width,
		Height:         req.Height,
		HookPositions:  req.Hooks.Positions(),
		StepCallback:   req.OnStepEnd != nil,
	})
	if err != nil {
		return nil, err
	}

	hookCalls := 0
	for {
		m, err := c.recv(ctx, conn)
		if err != nil {
			return nil, err
		}

		switch m.Type {
		case MessageTypeHook:
			hookCalls++
			if err := p.handleHook(ctx, conn, m, req.Hooks); err != nil {
				c.dropLocked()
				return nil, err
			}

		case MessageTypeStep:
			if err := p.handleStep(ctx, conn, m, req.OnStepEnd); err != nil {
				c.dropLocked()
				return nil, err
			}

		case MessageTypeResult:
			var r ResultData
			if err := m.Decode(&r); err != nil {
				c.dropLocked()
				return nil, err
			}
			latents, err := r.Latents.Tensor()
			if err != nil {
				c.dropLocked()
				return nil, err
			}
			c.logger.Debug("generation finished on worker",
				zap.String("pipeline_id", p.id),
				zap.Int("hook_calls", hookCalls),
				zap.Duration("elapsed", time.Since(start)),
			)
			return latents, nil

		case MessageTypeError:
			return nil, workerError(m)

		default:
			c.dropLocked()
			return nil, fmt.Errorf("%w: unexpected %q during generation", ErrProtocol, m.Type)
		}
	}
}

// handleHook fires the local hooks and sends exactly one hook_reply.
func (p *pipeline) handleHook(ctx context.Context, conn *websocket.Conn, m Message, hooks *sdruntime.HookRegistry) error {
	var h HookData
	if err := m.Decode(&h); err != nil {
		return err
	}
	out, err := h.Output.Tensor()
	if err != nil {
		return err
	}
	inputs := make([]*tensor.Tensor, 0, len(h.Inputs))
	for _, w := range h.Inputs {
		in, err := w.Tensor()
		if err != nil {
			return err
		}
		inputs = append(inputs, in)
	}

	replaced, hookErr := hooks.Fire(sdruntime.HookCall{
		Position: h.Position,
		Step:     h.Step,
		Inputs:   inputs,
		Output:   out,
	})

	var reply HookReplyData
	switch {
	case hookErr != nil:
		reply.Abort = true
	case replaced != nil:
		w, err := ToWire(replaced, p.client.cfg.DType)
		if err != nil {
			hookErr = err
			reply.Abort = true
			break
		}
		reply.Replacement = &w
	}

	if err := p.client.send(ctx, conn, MessageTypeHookReply, reply); err != nil {
		return err
	}
	return hookErr
}

// handleStep runs the step callback and sends exactly one step_reply.
func (p *pipeline) handleStep(ctx context.Context, conn *websocket.Conn, m Message, onStep sdruntime.StepCallback) error {
	var s StepData
	if err := m.Decode(&s); err != nil {
		return err
	}

	var stepErr error
	if onStep != nil {
		latents, err := s.Latents.Tensor()
		if err != nil {
			return err
		}
		p.stepConn.Store(conn)
		stepErr = onStep(s.Step, s.Timestep, latents)
		p.stepConn.Store(nil)
	}

	if err := p.client.send(ctx, conn, MessageTypeStepReply, StepReplyData{Abort: stepErr != nil}); err != nil {
		return err
	}
	return stepErr
}

// DecodeVAE runs the worker's VAE decoder on latents.
func (p *pipeline) DecodeVAE(ctx context.Context, latents *tensor.Tensor) (*tensor.Tensor, error) {
	if p.closed.Load() {
		return nil, sdruntime.ErrPipelineClosed
	}

	w, err := ToWire(latents, p.client.cfg.DType)
	if err != nil {
		return nil, err
	}
	req := DecodeData{PipelineID: p.id, Latents: w}

	var d DecodedData
	if conn := p.stepConn.Load(); conn != nil {
		// inside a step callback: Run holds the lock on this goroutine
		err = p.client.exchange(ctx, conn, MessageTypeDecode, req, MessageTypeDecoded, &d)
	} else {
		err = p.client.call(ctx, MessageTypeDecode, req, MessageTypeDecoded, &d)
	}
	if err != nil {
		return nil, err
	}
	return d.Images.Tensor()
}

// Close releases the pipeline on the worker. Safe to call more than once.
func (p *pipeline) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), DefaultCloseWait)
	defer cancel()
	return p.client.call(ctx, MessageTypeClose, CloseData{PipelineID: p.id}, MessageTypeClosed, nil)
}
