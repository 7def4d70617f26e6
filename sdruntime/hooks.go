package sdruntime

import (
	"fmt"
	"sync"

	"sdprobe/tensor"
)

// UNetPositions are the denoiser positions hooks can attach to on the
// Stable Diffusion family of U-Nets.
var UNetPositions = []string{
	"conv_in",
	"down_blocks[0]",
	"down_blocks[1]",
	"down_blocks[2]",
	"mid_block",
	"up_blocks[0]",
	"up_blocks[1]",
	"up_blocks[2]",
	"conv_out",
}

// HookCall describes one completed forward pass of a hooked module.
type HookCall struct {
	Position string           // module position, e.g. "mid_block"
	Step     int              // denoising step index
	Inputs   []*tensor.Tensor // module inputs, when the pipeline provides them
	Output   *tensor.Tensor   // module output
}

// ForwardHook observes a module's output. Returning a non-nil tensor replaces
// the output for later hooks and for the rest of the network.
type ForwardHook func(call HookCall) (*tensor.Tensor, error)

type registeredHook struct {
	id   uint64
	hook ForwardHook
}

// HookRegistry holds forward hooks keyed by position.
// It is safe for concurrent use.
type HookRegistry struct {
	mu     sync.Mutex
	hooks  map[string][]registeredHook
	order  []string
	nextID uint64
}

// NewHookRegistry creates an empty registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{hooks: make(map[string][]registeredHook)}
}

// Register attaches hook at position and returns a function that detaches it.
// The returned function may be called any number of times.
func (r *HookRegistry) Register(position string, hook ForwardHook) (remove func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	if _, ok := r.hooks[position]; !ok {
		r.order = append(r.order, position)
	}
	r.hooks[position] = append(r.hooks[position], registeredHook{id: id, hook: hook})

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(position, id) })
	}
}

func (r *HookRegistry) remove(position string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hooks := r.hooks[position]
	for i, h := range hooks {
		if h.id == id {
			hooks = append(hooks[:i:i], hooks[i+1:]...)
			break
		}
	}
	if len(hooks) > 0 {
		r.hooks[position] = hooks
		return
	}

	delete(r.hooks, position)
	for i, p := range r.order {
		if p == position {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}

// Positions lists positions with at least one hook, in first-registration order.
func (r *HookRegistry) Positions() []string {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// Len returns the total number of registered hooks.
func (r *HookRegistry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, hs := range r.hooks {
		n += len(hs)
	}
	return n
}

// Fire runs the hooks registered at call.Position in registration order.
// It returns the replacement output, or nil when no hook replaced it.
func (r *HookRegistry) Fire(call HookCall) (*tensor.Tensor, error) {
	if r == nil {
		return nil, nil
	}

	r.mu.Lock()
	hooks := append([]registeredHook(nil), r.hooks[call.Position]...)
	r.mu.Unlock()

	var replaced *tensor.Tensor
	for _, h := range hooks {
		out, err := h.hook(call)
		if err != nil {
			return nil, fmt.Errorf("%w: %s step %d: %w", ErrHookFailed, call.Position, call.Step, err)
		}
		if out != nil {
			replaced = out
			call.Output = out
		}
	}
	return replaced, nil
}
