package sdruntime

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"sdprobe/tensor"
)

func TestHookRegistry_RegisterAndRemove(t *testing.T) {
	r := NewHookRegistry()
	noop := func(HookCall) (*tensor.Tensor, error) { return nil, nil }

	removeMid := r.Register("mid_block", noop)
	removeIn := r.Register("conv_in", noop)
	r.Register("mid_block", noop)

	if diff := cmp.Diff([]string{"mid_block", "conv_in"}, r.Positions()); diff != "" {
		t.Errorf("Positions() mismatch (-want +got):\n%s", diff)
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}

	removeMid()
	removeMid()
	if r.Len() != 2 {
		t.Errorf("Len() after double remove = %d, want 2", r.Len())
	}

	removeIn()
	if diff := cmp.Diff([]string{"mid_block"}, r.Positions()); diff != "" {
		t.Errorf("Positions() mismatch (-want +got):\n%s", diff)
	}
}

func TestHookRegistry_FireOrderAndReplacement(t *testing.T) {
	r := NewHookRegistry()
	orig := tensor.MustNew([]int{2}, []float32{1, 2})
	repl := tensor.MustNew([]int{2}, []float32{9, 9})

	var order []string
	r.Register("mid_block", func(c HookCall) (*tensor.Tensor, error) {
		order = append(order, "first")
		return repl, nil
	})
	r.Register("mid_block", func(c HookCall) (*tensor.Tensor, error) {
		order = append(order, "second")
		if !c.Output.Equal(repl) {
			t.Errorf("second hook saw %v, want replacement", c.Output.Data())
		}
		return nil, nil
	})

	got, err := r.Fire(HookCall{Position: "mid_block", Step: 0, Output: orig})
	if err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	if got != repl {
		t.Errorf("Fire() = %v, want the replacement", got)
	}
	if diff := cmp.Diff([]string{"first", "second"}, order); diff != "" {
		t.Errorf("hook order mismatch (-want +got):\n%s", diff)
	}

	got, err = r.Fire(HookCall{Position: "conv_in", Output: orig})
	if err != nil || got != nil {
		t.Errorf("Fire() on unhooked position = %v, %v; want nil, nil", got, err)
	}
}

func TestHookRegistry_FireError(t *testing.T) {
	r := NewHookRegistry()
	r.Register("up_blocks[0]", func(HookCall) (*tensor.Tensor, error) { return nil, errFake })

	_, err := r.Fire(HookCall{Position: "up_blocks[0]", Step: 3})
	if !errors.Is(err, ErrHookFailed) || !errors.Is(err, errFake) {
		t.Errorf("Fire() error = %v, want ErrHookFailed wrapping errFake", err)
	}
}

func TestHookRegistry_Nil(t *testing.T) {
	var r *HookRegistry
	if got, err := r.Fire(HookCall{Position: "mid_block"}); got != nil || err != nil {
		t.Errorf("nil Fire() = %v, %v", got, err)
	}
	if r.Len() != 0 || r.Positions() != nil {
		t.Error("nil registry reported hooks")
	}
}

func TestHookRegistry_Concurrent(t *testing.T) {
	r := NewHookRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			remove := r.Register("mid_block", func(HookCall) (*tensor.Tensor, error) { return nil, nil })
			if _, err := r.Fire(HookCall{Position: "mid_block"}); err != nil {
				t.Errorf("Fire() error = %v", err)
			}
			remove()
		}()
	}
	wg.Wait()
	if r.Len() != 0 {
		t.Errorf("Len() = %d after all removals", r.Len())
	}
}
