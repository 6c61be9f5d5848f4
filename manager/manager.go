// Package manager implements the Manager: the single event-loop owner of
// all child-process configs, live processes, timers, and pipes. Public
// methods (Load/Unload/Commit/Start/Stop) are safe to call from any
// goroutine; they hand work to a dedicated loop goroutine over a command
// channel rather than sharing a mutex with it.
package manager

import (
	"log/slog"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/kahiteam/spawnkit/eventbus"
	"github.com/kahiteam/spawnkit/process"
	"github.com/kahiteam/spawnkit/tracker"
)

// tickInterval is how often the loop drains the eventbus in the absence
// of other work.
const tickInterval = 2 * time.Millisecond

// MetricsSink is the subset of metrics.Collector the Manager updates, as
// an interface so tests and callers that don't want Prometheus can pass
// nil or a fake.
type MetricsSink interface {
	IncSpawn()
	IncExit(once bool)
	IncRestart()
	SetRunning(n int)
	SetTrackerPending(n int)
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithLogger sets the logger used for loop diagnostics and is passed
// through to Process/Stream/Tracker.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics wires a metrics sink the loop updates on every spawn,
// exit, and restart.
func WithMetrics(sink MetricsSink) Option {
	return func(m *Manager) { m.metrics = sink }
}

// WithBus injects a pre-built Emitter, mainly for tests that want to
// subscribe before any process exists. Defaults to a fresh eventbus.New.
func WithBus(bus *eventbus.Emitter) Option {
	return func(m *Manager) { m.bus = bus }
}

// Manager owns the event loop. The zero value is not usable; construct
// with New.
type Manager struct {
	bus     *eventbus.Emitter
	tracker *tracker.Tracker
	logger  *slog.Logger
	spawner process.Spawner
	metrics MetricsSink
	session uuid.UUID

	cmds chan command
	quit chan struct{}

	started atomic.Bool

	// Loop-goroutine-owned state: touched only from loop(), which is why
	// these need no mutex of their own (process.Table's internal mutex
	// is incidental, not load-bearing, here).
	states  *process.Table
	running map[int]*process.Process
	nextPid int
}

// New constructs a Manager bound to spawner (use &process.ExecSpawner{}
// for real children, or a *process.MockSpawner in tests). Call Start
// before Load/Unload/Commit.
func New(spawner process.Spawner, opts ...Option) *Manager {
	m := &Manager{
		spawner: spawner,
		session: uuid.New(),
		cmds:    make(chan command, 256),
		quit:    make(chan struct{}),
		states:  process.NewTable(),
		running: make(map[int]*process.Process),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.bus == nil {
		m.bus = eventbus.New(slogErrorAdapter{m.logger})
	}
	m.tracker = tracker.New(slogWarnAdapter{m.logger})
	return m
}

// slogErrorAdapter and slogWarnAdapter let a nil *slog.Logger satisfy
// eventbus.Logger/tracker.Logger without every call site nil-checking.
type slogErrorAdapter struct{ logger *slog.Logger }

func (a slogErrorAdapter) Error(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Error(msg, args...)
	}
}

type slogWarnAdapter struct{ logger *slog.Logger }

func (a slogWarnAdapter) Error(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Error(msg, args...)
	}
}

func (a slogWarnAdapter) Warn(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Warn(msg, args...)
	}
}

// Bus exposes the Emitter test code and the spawnkit facade subscribe
// to. Subscriptions are safe from any goroutine; listener invocation
// itself only ever happens from the loop goroutine's Tick call.
func (m *Manager) Bus() *eventbus.Emitter { return m.bus }

// Session returns the uuid stamped on every event this Manager
// publishes.
func (m *Manager) Session() uuid.UUID { return m.session }

// Started reports whether Start has been called without a matching
// Stop.
func (m *Manager) Started() bool {
	return m.started.Load()
}

// Start launches the loop goroutine. A Manager may be started at most
// once in its lifetime; construct a new Manager per session.
func (m *Manager) Start() error {
	select {
	case <-m.quit:
		return ErrAlreadyStarted{}
	default:
	}
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted{}
	}
	go m.loop()
	m.bus.Publish(process.RootTopic("start"), Meta{Event: "start", Session: m.session})
	return nil
}

// Stop reaps every loaded state, waits for the tracker to drain (every
// SIGTERM either acknowledged by exit or escalated to SIGKILL), then
// tears down the tracker and emitter. Idempotent and synchronous.
func (m *Manager) Stop() {
	if !m.started.CompareAndSwap(true, false) {
		return
	}
	close(m.quit)

	reply := make(chan struct{})
	m.cmds <- cmdStop{reply: reply}
	<-reply
}

// Load inserts a fresh State for cfg and, if start is true, spawns its
// first process. Returns ProcessConflict if cfg.Name is already loaded.
func (m *Manager) Load(cfg process.Config, start bool) error {
	reply := make(chan error, 1)
	if err := m.dispatch(cmdLoad{cfg: cfg, start: start, reply: reply}); err != nil {
		return err
	}
	return m.await(reply)
}

// Unload removes name's state and reaps every live process it owns.
// Returns ProcessNotFound if name was never loaded.
func (m *Manager) Unload(name string) error {
	reply := make(chan error, 1)
	if err := m.dispatch(cmdUnload{name: name, reply: reply}); err != nil {
		return err
	}
	return m.await(reply)
}

// Commit spawns a single "once" process for name's state: it never
// triggers a respawn on exit, and its exit event always carries
// Once=true. A zero gracefulTimeout falls back to tracker's default.
func (m *Manager) Commit(name string, gracefulTimeout time.Duration, env map[string]string) error {
	reply := make(chan error, 1)
	if err := m.dispatch(cmdCommit{name: name, gracefulTimeout: gracefulTimeout, env: env, reply: reply}); err != nil {
		return err
	}
	return m.await(reply)
}

// dispatch enqueues c, returning ErrNotStarted if the manager was never
// started or has begun stopping before the send could land.
func (m *Manager) dispatch(c command) error {
	if !m.started.Load() {
		return ErrNotStarted{}
	}
	select {
	case m.cmds <- c:
		return nil
	case <-m.quit:
		return ErrNotStarted{}
	}
}

func (m *Manager) await(reply <-chan error) error {
	select {
	case err := <-reply:
		return err
	case <-m.quit:
		return ErrNotStarted{}
	}
}

func (m *Manager) meta(event, name string, pid int) Meta {
	return Meta{Event: event, Session: m.session, Name: name, Pid: pid}
}

// onExit is the process.ExitCallback every spawned Process is given. It
// hands the exit off to the loop goroutine via m.cmds rather than
// mutating m.states/m.running directly, since those are loop-owned --
// this runs on the Process's own wait goroutine (or synchronously on
// the loop goroutine itself, for a spawn failure), so it must never
// block on m.cmds directly.
func (m *Manager) onExit(p *process.Process, exitStatus, termSignal *int, spawnErr error) {
	go func() {
		m.cmds <- cmdExit{proc: p, exitStatus: exitStatus, termSignal: termSignal, err: spawnErr}
	}()
}

func (m *Manager) countRunning() int {
	return len(m.running)
}

// reapState sends SIGTERM to every live process of st and arms the
// tracker's graceful-timeout watchdog for each.
func (m *Manager) reapState(name string, st *process.State) {
	st.Stop()
	live := st.Drain()

	for _, p := range live {
		delete(m.running, p.Pid)

		timeout := p.GracefulTimeout
		if timeout <= 0 {
			timeout = tracker.DefaultGracefulTimeout
		}
		if err := p.Kill(syscall.SIGTERM); err != nil && m.logger != nil {
			m.logger.Error("manager: SIGTERM delivery failed", "name", name, "pid", p.Pid, "error", err)
		}
		m.tracker.Check(p, timeout)

		if m.metrics != nil {
			m.metrics.SetTrackerPending(m.tracker.Pending())
		}

		ev := ReapEvent{Meta: m.meta("reap", name, p.Pid), OSPid: p.OSPid}
		m.bus.Publish(process.RootTopic("reap"), ev)
		m.bus.Publish(st.Config.ReapTopic(), ev)
		m.bus.Publish(process.ProcReapTopic(p.Pid), ev)
	}
}

// spawnProcess assigns the next monotonic internal pid, builds and
// spawns a Process for st, and publishes the spawn events. A spawn
// failure still indexes the Process (it is unwound moments later via
// the async exit callback, the same path a normal exit takes).
func (m *Manager) spawnProcess(name string, st *process.State, once bool, gracefulTimeout time.Duration, env map[string]string) {
	m.nextPid++
	pid := m.nextPid

	p := process.NewProcess(pid, st.Config, m.bus, m.logger, m.spawner, m.onExit)
	m.running[pid] = p
	st.Enqueue(p)

	if err := p.Spawn(st.Config, once, gracefulTimeout, env); err != nil {
		if m.logger != nil {
			m.logger.Error("manager: spawn failed", "name", name, "pid", pid, "error", err)
		}
		return
	}

	if m.metrics != nil {
		m.metrics.IncSpawn()
		m.metrics.SetRunning(m.countRunning())
	}

	ev := SpawnEvent{Meta: m.meta("spawn", name, pid), OSPid: p.OSPid}
	m.bus.Publish(process.RootTopic("spawn"), ev)
	m.bus.Publish(st.Config.SpawnTopic(), ev)
	m.bus.Publish(process.ProcSpawnTopic(pid), ev)
}

// manageProcesses respawns exactly one process for st if it is not
// stopped and currently has none running.
func (m *Manager) manageProcesses(name string, st *process.State) {
	if st.Stopped() || st.Active() {
		return
	}
	m.spawnProcess(name, st, false, 0, nil)
}

// onProcessExit runs on the loop goroutine for every cmdExit: it
// unchecks the tracker, unindexes the process, publishes the exit
// event, and triggers exactly one respawn when appropriate.
func (m *Manager) onProcessExit(p *process.Process, exitStatus, termSignal *int, spawnErr error) {
	m.tracker.Uncheck(p)
	delete(m.running, p.Pid)

	if m.metrics != nil {
		m.metrics.IncExit(p.Once)
		m.metrics.SetRunning(m.countRunning())
		m.metrics.SetTrackerPending(m.tracker.Pending())
	}

	st, ok := m.states.Get(p.Name)
	exitTopic := process.Config{Name: p.Name}.ExitTopic()
	if ok {
		st.Remove(p)
		exitTopic = st.Config.ExitTopic()
	}

	ev := ExitEvent{
		Meta:       m.meta("exit", p.Name, p.Pid),
		ExitStatus: exitStatus,
		TermSignal: termSignal,
		Once:       p.Once,
		Err:        spawnErr,
	}
	m.bus.Publish(process.RootTopic("exit"), ev)
	m.bus.Publish(exitTopic, ev)

	if ok && !st.Stopped() && !p.Once {
		if m.metrics != nil {
			m.metrics.IncRestart()
		}
		m.manageProcesses(p.Name, st)
	}
}
