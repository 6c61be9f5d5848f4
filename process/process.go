package process

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/kahiteam/spawnkit/eventbus"
)

// ExitCallback is invoked exactly once when a Process's child terminates
// (or fails to spawn at all). exitStatus/termSignal are nil when spawn
// itself failed; spawnErr is nil on a normal (even non-zero) exit.
type ExitCallback func(p *Process, exitStatus, termSignal *int, spawnErr error)

// Process is the mutable runtime handle for one live child. Pid is the
// Manager-assigned monotonic internal id, distinct from OSPid.
type Process struct {
	Pid             int
	OSPid           int
	Name            string
	GracefulTimeout time.Duration
	Once            bool
	ExitStatus      *int
	TermSignal      *int

	mu      sync.Mutex
	running bool

	bus      *eventbus.Emitter
	logger   *slog.Logger
	spawner  Spawner
	spawned  SpawnedProcess
	streams  [3]*Stream
	onExit   ExitCallback
	exitOnce sync.Once
}

// NewProcess constructs a Process bound to internal id pid for config
// cfg. It does not spawn; call Spawn to launch the child.
func NewProcess(pid int, cfg Config, bus *eventbus.Emitter, logger *slog.Logger, spawner Spawner, onExit ExitCallback) *Process {
	return &Process{
		Pid: pid, Name: cfg.Name,
		bus: bus, logger: logger, spawner: spawner, onExit: onExit,
	}
}

// Running reports whether the child is currently alive.
func (p *Process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Spawn launches the child described by cfg, merging envOverlay onto its
// environment, wires its Streams onto bus, and starts a goroutine that
// waits for the OS exit and drives the exit callback. once marks this as
// a non-restarting process.
func (p *Process) Spawn(cfg Config, once bool, gracefulTimeout time.Duration, envOverlay map[string]string) error {
	p.mu.Lock()
	p.Once = once
	p.GracefulTimeout = gracefulTimeout
	p.mu.Unlock()

	cwd, err := cfg.resolveCwd()
	if err != nil {
		p.failSpawn(err)
		return err
	}
	command, args, err := cfg.resolveCommand()
	if err != nil {
		p.failSpawn(err)
		return err
	}
	env := cfg.resolveEnv(envOverlay)

	spawned, err := p.spawner.Spawn(SpawnConfig{Command: command, Args: args, Dir: cwd, Env: env})
	if err != nil {
		p.failSpawn(err)
		return err
	}

	p.mu.Lock()
	p.spawned = spawned
	p.OSPid = spawned.Pid()
	p.running = true
	p.mu.Unlock()

	p.streams[0] = NewWriteStream(p.bus, p.logger, p.Name, p.Pid, LabelStdin, spawned.StdinPipe())
	// Only wire a Stream -- and so only start a goroutine draining it --
	// for the stdio pipes cfg actually asks to capture. An uncaptured
	// pipe is still opened by the Spawner but never read here, so its
	// bytes are simply never published.
	if cfg.CaptureStdout {
		p.streams[1] = NewReadStream(p.bus, p.logger, p.Name, p.Pid, LabelStdout, spawned.StdoutPipe())
	}
	if cfg.CaptureStderr {
		p.streams[2] = NewReadStream(p.bus, p.logger, p.Name, p.Pid, LabelStderr, spawned.StderrPipe())
	}
	for _, s := range p.streams {
		if s != nil {
			s.Start()
		}
	}

	go p.waitLoop()
	return nil
}

// failSpawn drives the exit callback with a spawn error and no OS pid,
// for a child that never started.
func (p *Process) failSpawn(err error) {
	p.exitOnce.Do(func() {
		if p.onExit != nil {
			p.onExit(p, nil, nil, err)
		}
	})
}

func (p *Process) waitLoop() {
	state, err := p.spawned.Wait()
	p.handleExit(state, err)
}

func (p *Process) handleExit(state *os.ProcessState, waitErr error) {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	var exitStatus, termSignal *int
	if state != nil {
		code := state.ExitCode()
		exitStatus = &code
		if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			sig := int(ws.Signal())
			termSignal = &sig
		}
	}
	p.ExitStatus = exitStatus
	p.TermSignal = termSignal

	for _, s := range p.streams {
		if s == nil {
			continue
		}
		s.SpeculativeRead()
		s.Stop()
	}

	p.exitOnce.Do(func() {
		if p.onExit != nil {
			p.onExit(p, exitStatus, termSignal, waitErr)
		}
	})
}

// Kill sends sig to the OS process. A signal to an already-dead process
// (ESRCH) is swallowed; any other error propagates.
func (p *Process) Kill(sig os.Signal) error {
	p.mu.Lock()
	spawned := p.spawned
	p.mu.Unlock()
	if spawned == nil {
		return nil
	}
	err := spawned.Signal(sig)
	if err != nil && errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	if err != nil && errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// ParseSignal maps a signal name (TERM, HUP, INT, QUIT, KILL, USR1,
// USR2, STOP, CONT) to its os.Signal, defaulting to SIGTERM for an
// unrecognized name.
func ParseSignal(name string) os.Signal {
	switch name {
	case "HUP":
		return syscall.SIGHUP
	case "INT":
		return syscall.SIGINT
	case "QUIT":
		return syscall.SIGQUIT
	case "KILL":
		return syscall.SIGKILL
	case "USR1":
		return syscall.SIGUSR1
	case "USR2":
		return syscall.SIGUSR2
	case "STOP":
		return syscall.SIGSTOP
	case "CONT":
		return syscall.SIGCONT
	default:
		return syscall.SIGTERM
	}
}
