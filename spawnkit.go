// Package spawnkit is the convenience surface over the supervision core:
// a Spawner owning one manager.Manager, with CheckOutput/CheckCall for
// run-and-wait child processes and Spawn for scoped background children.
package spawnkit

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kahiteam/spawnkit/manager"
	"github.com/kahiteam/spawnkit/process"
)

// DefaultTimeout bounds CheckOutput/CheckCall and the wait in
// Handle.Close when the caller does not pass WithTimeout.
const DefaultTimeout = 5 * time.Second

// Option configures a Spawner at construction time.
type Option func(*Spawner)

// WithLogger sets the logger used for diagnostics and for CheckCall's
// child-output capture.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Spawner) { s.logger = logger }
}

// WithMetrics wires a metrics sink through to the underlying Manager.
func WithMetrics(sink manager.MetricsSink) Option {
	return func(s *Spawner) { s.metrics = sink }
}

// WithSpawner overrides the process spawner, mainly so tests can run the
// full facade against a mock instead of real children.
func WithSpawner(sp process.Spawner) Option {
	return func(s *Spawner) { s.procSpawner = sp }
}

// Spawner is the session-scoped entry point: construct one with New,
// Start it when the session begins, and Stop it when the session ends.
// All methods are safe to call from any goroutine.
type Spawner struct {
	mgr         *manager.Manager
	logger      *slog.Logger
	metrics     manager.MetricsSink
	procSpawner process.Spawner
}

// New builds a Spawner and its Manager. Call Start before using it.
func New(opts ...Option) *Spawner {
	s := &Spawner{}
	for _, opt := range opts {
		opt(s)
	}
	if s.procSpawner == nil {
		s.procSpawner = &process.ExecSpawner{}
	}

	mopts := []manager.Option{manager.WithLogger(s.logger)}
	if s.metrics != nil {
		mopts = append(mopts, manager.WithMetrics(s.metrics))
	}
	s.mgr = manager.New(s.procSpawner, mopts...)
	return s
}

// Manager exposes the underlying Manager for callers that want to load
// long-lived configs or subscribe to its event bus directly.
func (s *Spawner) Manager() *manager.Manager { return s.mgr }

// Start launches the supervision loop.
func (s *Spawner) Start() error { return s.mgr.Start() }

// Stop reaps everything still alive and tears the loop down. Idempotent.
func (s *Spawner) Stop() { s.mgr.Stop() }

// CallOption tunes one CheckOutput/CheckCall/Spawn invocation.
type CallOption func(*callOpts)

type callOpts struct {
	env              map[string]string
	timeout          time.Duration
	ignoreExitStatus bool
}

// WithEnv overlays extra environment variables onto the child.
func WithEnv(env map[string]string) CallOption {
	return func(o *callOpts) { o.env = env }
}

// WithTimeout bounds the wait for the child's exit.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOpts) { o.timeout = d }
}

// WithIgnoreExitStatus makes CheckCall report a non-zero exit status as a
// plain return value instead of a ProcessError. Spawn failures still
// propagate as errors.
func WithIgnoreExitStatus() CallOption {
	return func(o *callOpts) { o.ignoreExitStatus = true }
}

func applyCallOpts(opts []CallOption) callOpts {
	o := callOpts{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// CheckOutput runs cmd to completion and returns its stdout. A non-zero
// exit or a spawn failure is returned as an error (*process.ProcessError
// for the former).
func (s *Spawner) CheckOutput(cmd string, opts ...CallOption) ([]byte, error) {
	o := applyCallOpts(opts)

	w := newWaiter(s.mgr, cmd, o.env, false, nil)
	if err := w.start(); err != nil {
		return nil, err
	}
	defer w.stop()

	return w.wait(o.timeout)
}

// CheckCall runs cmd to completion, forwarding its stdout and stderr to
// the Spawner's logger, and returns the child's exit status. Unless
// WithIgnoreExitStatus is given, a non-zero status is also returned as a
// *process.ProcessError.
func (s *Spawner) CheckCall(cmd string, opts ...CallOption) (int, error) {
	o := applyCallOpts(opts)

	w := newWaiter(s.mgr, cmd, o.env, true, s.logger)
	if err := w.start(); err != nil {
		return 0, err
	}
	defer w.stop()

	_, err := w.wait(o.timeout)
	status := w.exitStatus()

	var perr *process.ProcessError
	if err != nil && o.ignoreExitStatus && errors.As(err, &perr) && perr.Err == nil {
		return status, nil
	}
	return status, err
}

// Spawn launches cmd in the background and returns a Handle scoped to
// it: the child runs until the Handle is closed (or it exits on its
// own). Close reaps the child and waits for its exit.
func (s *Spawner) Spawn(cmd string, opts ...CallOption) (*Handle, error) {
	o := applyCallOpts(opts)

	w := newWaiter(s.mgr, cmd, o.env, false, nil)
	if err := w.start(); err != nil {
		return nil, err
	}
	return &Handle{w: w, timeout: o.timeout}, nil
}

// Handle is a live background child started by Spawn.
type Handle struct {
	w       *waiter
	timeout time.Duration
	closed  bool
}

// Name returns the generated config name, usable for subscribing to the
// child's state topics on the Manager's bus.
func (h *Handle) Name() string { return h.w.cfg.Name }

// Wait blocks until the child exits and returns its captured stdout.
func (h *Handle) Wait(timeout time.Duration) ([]byte, error) {
	return h.w.wait(timeout)
}

// Close reaps the child (SIGTERM, escalating to SIGKILL after the
// graceful timeout) and waits for its exit. Safe to call twice.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true

	// Unload first so the reap's SIGTERM drives the exit event while the
	// exit listener is still wired, then wait, then unwire.
	_ = h.w.mgr.Unload(h.w.cfg.Name)
	_, err := h.w.wait(h.timeout)
	h.w.unwire()

	var perr *process.ProcessError
	if errors.As(err, &perr) && perr.Err == nil && perr.TermSignal != nil {
		// The SIGTERM the reap itself sent is the expected way out.
		return nil
	}
	return err
}

func anonymousName() string {
	return "spawn-" + uuid.New().String()
}
