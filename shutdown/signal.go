// Package shutdown turns interrupt signals into context cancellation for the
// command line: the first SIGINT or SIGTERM cancels the running command, a
// repeated signal forces the process down.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"sdprobe/core"
	"sdprobe/logging"
)

// SignalCounter tracks repeated shutdown signals and triggers forced shutdown.
//
//	counter := NewSignalCounter(2, func() { os.Exit(core.ExitCodeSIGINT) })
//	counter.Increment() // graceful
//	counter.Increment() // onForce
type SignalCounter struct {
	mu         sync.Mutex
	count      int
	forceAfter int
	onForce    func()
}

// NewSignalCounter calls onForce (may be nil) on every increment from
// forceAfter on.
func NewSignalCounter(forceAfter int, onForce func()) *SignalCounter {
	return &SignalCounter{
		forceAfter: forceAfter,
		onForce:    onForce,
	}
}

// Increment increases the signal count by one and returns the new count.
// The callback runs under the lock, so it should be fast or exit the process.
func (s *SignalCounter) Increment() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	if s.count >= s.forceAfter && s.onForce != nil {
		s.onForce()
	}
	return s.count
}

// Watcher cancels a context on the first signal and remembers which signal
// it was, so the process can exit with the matching code.
type Watcher struct {
	logger  *logging.Logger
	cancel  context.CancelFunc
	counter *SignalCounter

	mu       sync.Mutex
	received os.Signal

	sigChan chan os.Signal
	done    chan struct{}
	stopped sync.Once
}

// Watch derives a context from parent that is cancelled on SIGINT or SIGTERM.
// A second signal calls onForce, which normally exits the process.
// Call Stop when the command has finished.
func Watch(parent context.Context, logger *logging.Logger, onForce func()) (context.Context, *Watcher) {
	ctx, w := newWatcher(parent, logger, onForce)
	signal.Notify(w.sigChan, os.Interrupt, syscall.SIGTERM)
	go w.loop()
	return ctx, w
}

func newWatcher(parent context.Context, logger *logging.Logger, onForce func()) (context.Context, *Watcher) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(parent)
	w := &Watcher{
		logger:  logger,
		cancel:  cancel,
		sigChan: make(chan os.Signal, 2),
		done:    make(chan struct{}),
	}
	w.counter = NewSignalCounter(2, func() {
		w.logger.Warn("received second signal, forcing exit")
		if onForce != nil {
			onForce()
		}
	})
	return ctx, w
}

func (w *Watcher) loop() {
	for {
		select {
		case sig := <-w.sigChan:
			w.handle(sig)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handle(sig os.Signal) {
	w.mu.Lock()
	if w.received == nil {
		w.received = sig
	}
	w.mu.Unlock()

	if w.counter.Increment() == 1 {
		w.logger.Info("received signal, cancelling", zap.String("signal", sig.String()))
		w.cancel()
	}
}

// Received returns the first signal, or nil.
func (w *Watcher) Received() os.Signal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.received
}

// ExitCode maps the outcome of a command to a process exit code. A command
// interrupted by a signal exits with that signal's code.
func (w *Watcher) ExitCode(err error) int {
	switch w.Received() {
	case syscall.SIGTERM:
		return core.ExitCodeSIGTERM
	case os.Interrupt:
		return core.ExitCodeSIGINT
	}
	return core.ExitCodeFor(err)
}

// Stop releases the signal handler and the context.
func (w *Watcher) Stop() {
	w.stopped.Do(func() {
		signal.Stop(w.sigChan)
		close(w.done)
		w.cancel()
	})
}
