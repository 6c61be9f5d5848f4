package manager

import (
	"time"

	"github.com/kahiteam/spawnkit/process"
)

// command is the MPSC message type the loop goroutine consumes from
// Manager.cmds. Every public mutator (Load/Unload/Commit) and the
// internal exit callback funnels through here so states/running/nextPid
// are touched from exactly one goroutine.
type command interface{}

type cmdLoad struct {
	cfg   process.Config
	start bool
	reply chan error
}

type cmdUnload struct {
	name  string
	reply chan error
}

type cmdCommit struct {
	name            string
	gracefulTimeout time.Duration
	env             map[string]string
	reply           chan error
}

type cmdExit struct {
	proc       *process.Process
	exitStatus *int
	termSignal *int
	err        error
}

type cmdStop struct {
	reply chan struct{}
}

// loop is the Manager's single event-loop goroutine. It owns states,
// running, and nextPid exclusively, and is the only goroutine that ever
// calls eventbus.Emitter.Tick.
func (m *Manager) loop() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	shutdownDone := make(chan struct{}, 1)
	var stopReply chan struct{}

	for {
		select {
		case c := <-m.cmds:
			switch cmd := c.(type) {
			case cmdLoad:
				cmd.reply <- m.doLoad(cmd.cfg, cmd.start)
			case cmdUnload:
				cmd.reply <- m.doUnload(cmd.name)
			case cmdCommit:
				cmd.reply <- m.doCommit(cmd.name, cmd.gracefulTimeout, cmd.env)
			case cmdExit:
				m.onProcessExit(cmd.proc, cmd.exitStatus, cmd.termSignal, cmd.err)
			case cmdStop:
				stopReply = cmd.reply
				m.doStop(shutdownDone)
			}
		case <-shutdownDone:
			m.finalizeStop()
			close(stopReply)
			return
		case <-ticker.C:
		}
		m.bus.Tick()
	}
}

// doLoad inserts a fresh State, publishes "load", and spawns the first
// process if start is requested.
func (m *Manager) doLoad(cfg process.Config, start bool) error {
	st := process.NewState(cfg)
	if !m.states.Insert(cfg.Name, st) {
		return &ProcessConflict{Name: cfg.Name}
	}

	m.bus.Publish(process.RootTopic("load"), LoadEvent{Meta: m.meta("load", cfg.Name, 0)})
	if start {
		m.spawnProcess(cfg.Name, st, false, 0, nil)
	}
	return nil
}

// doUnload publishes "unload", removes the state from the table, and
// reaps every process it still owns.
func (m *Manager) doUnload(name string) error {
	st, ok := m.states.Get(name)
	if !ok {
		return &ProcessNotFound{Name: name}
	}

	m.bus.Publish(process.RootTopic("unload"), UnloadEvent{Meta: m.meta("unload", name, 0)})
	m.states.Delete(name)
	m.reapState(name, st)
	return nil
}

// doCommit spawns a single once process for name's state, which never
// triggers a respawn on exit.
func (m *Manager) doCommit(name string, gracefulTimeout time.Duration, env map[string]string) error {
	st, ok := m.states.Get(name)
	if !ok {
		return &ProcessNotFound{Name: name}
	}

	m.bus.Publish(process.RootTopic("commit"), CommitEvent{Meta: m.meta("commit", name, 0)})
	m.spawnProcess(name, st, true, gracefulTimeout, env)
	return nil
}

// doStop marks every state stopped and reaps it, then arms shutdownDone
// to fire once the tracker has drained every escalation -- immediately,
// if nothing needed reaping.
func (m *Manager) doStop(shutdownDone chan struct{}) {
	m.states.Each(func(name string, st *process.State) {
		m.reapState(name, st)
	})
	m.tracker.OnDone(func() {
		select {
		case shutdownDone <- struct{}{}:
		default:
		}
	})
}

// finalizeStop stops the tracker, then publishes "stop", flushes it to
// subscribers, and stops the emitter, in that order.
func (m *Manager) finalizeStop() {
	m.tracker.Stop()
	m.bus.Publish(process.RootTopic("stop"), Meta{Event: "stop", Session: m.session})
	m.bus.Tick()
	m.bus.Stop()
}
