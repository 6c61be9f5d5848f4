package spawnkit

import (
	"log/slog"
	"sync"
	"time"

	"github.com/kahiteam/spawnkit/eventbus"
	"github.com/kahiteam/spawnkit/future"
	"github.com/kahiteam/spawnkit/manager"
	"github.com/kahiteam/spawnkit/process"
)

// waiter runs one anonymous once-process through the Manager and bridges
// its exit event to a future.Future. It loads a uniquely-named config,
// subscribes to the child's read and exit topics, commits, and resolves
// the future from the exit listener: a spawn failure becomes the
// future's exception, a non-zero exit becomes a *process.ProcessError,
// and a clean exit resolves to the concatenated stdout bytes.
type waiter struct {
	mgr *manager.Manager
	cfg process.Config
	fut *future.Future

	logOutput bool
	logger    *slog.Logger

	readSub eventbus.Subscription
	exitSub eventbus.Subscription

	// Buffers are appended from the bus's dispatching goroutine and read
	// when resolving the future on that same goroutine; status is read by
	// the caller after wait, ordered by the future's own lock.
	mu     sync.Mutex
	bufs   map[process.Label][]byte
	status int
}

func newWaiter(mgr *manager.Manager, cmd string, env map[string]string, logOutput bool, logger *slog.Logger) *waiter {
	w := &waiter{
		mgr:       mgr,
		logOutput: logOutput,
		logger:    logger,
		bufs:      make(map[process.Label][]byte),
	}
	w.cfg = process.Config{
		Name:          anonymousName(),
		Cmd:           cmd,
		Env:           env,
		CaptureStdout: true,
		CaptureStderr: true,
	}
	w.fut = future.New(futureLogger{logger})
	return w
}

// start loads the config without spawning, wires the listeners, then
// commits a single once-process for it.
func (w *waiter) start() error {
	if err := w.mgr.Load(w.cfg, false); err != nil {
		return err
	}

	bus := w.mgr.Bus()
	w.readSub = bus.Subscribe(process.Topic{"proc"}, w.onRead, false)
	w.exitSub = bus.Subscribe(w.cfg.ExitTopic(), w.onExit, true)

	if err := w.mgr.Commit(w.cfg.Name, 0, nil); err != nil {
		w.unwire()
		_ = w.mgr.Unload(w.cfg.Name)
		return err
	}
	return nil
}

// stop tears the waiter down: listeners first, then the state itself,
// reaping the child if it is still alive. Tolerates an already-unloaded
// state so Handle.Close and a session Stop can race benignly.
func (w *waiter) stop() {
	w.unwire()
	_ = w.mgr.Unload(w.cfg.Name)
}

func (w *waiter) unwire() {
	bus := w.mgr.Bus()
	bus.Unsubscribe(w.readSub)
	bus.Unsubscribe(w.exitSub)
}

// onRead collects every chunk the child writes. The subscription is at
// the "proc" prefix, so it also sees spawn/reap payloads for every
// process on the bus; the type assertion plus name check narrow it to
// this waiter's own output.
func (w *waiter) onRead(topic process.Topic, payload any) {
	rp, ok := payload.(process.ReadPayload)
	if !ok || rp.Name != w.cfg.Name || rp.Data == nil {
		return
	}
	label := process.Label(topic[len(topic)-1])

	w.mu.Lock()
	w.bufs[label] = append(w.bufs[label], rp.Data...)
	w.mu.Unlock()

	if w.logOutput && w.logger != nil {
		w.logger.Info("child output",
			"name", w.cfg.Name, "pid", rp.Pid, "stream", string(label), "data", string(rp.Data))
	}
}

func (w *waiter) onExit(_ process.Topic, payload any) {
	ev, ok := payload.(manager.ExitEvent)
	if !ok {
		return
	}

	if ev.Err != nil {
		_ = w.fut.SetException(&process.ProcessError{Cmd: w.cfg.Cmd, Err: ev.Err})
		return
	}

	status := 0
	if ev.ExitStatus != nil {
		status = *ev.ExitStatus
	}
	w.mu.Lock()
	w.status = status
	stdout := w.bufs[process.LabelStdout]
	w.mu.Unlock()

	if status != 0 || ev.TermSignal != nil {
		_ = w.fut.SetException(&process.ProcessError{
			Cmd:        w.cfg.Cmd,
			ExitStatus: ev.ExitStatus,
			TermSignal: ev.TermSignal,
		})
		return
	}
	_ = w.fut.SetResult(stdout)
}

// wait blocks on the future and narrows its result back to bytes.
func (w *waiter) wait(timeout time.Duration) ([]byte, error) {
	v, err := w.fut.Result(timeout)
	if err != nil {
		return nil, err
	}
	out, _ := v.([]byte)
	return out, nil
}

func (w *waiter) exitStatus() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// futureLogger adapts a nil-able *slog.Logger to future.Logger.
type futureLogger struct{ logger *slog.Logger }

func (l futureLogger) Error(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Error(msg, args...)
	}
}
