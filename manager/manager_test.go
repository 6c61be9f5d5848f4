package manager

import (
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/kahiteam/spawnkit/eventbus"
	"github.com/kahiteam/spawnkit/process"
)

// fakeSpawner hands out *process.MockProcess instances and records every
// signal delivered to each, keyed by spawn order (1-indexed).
type fakeSpawner struct {
	mu      sync.Mutex
	procs   []*process.MockProcess
	signals map[int][]os.Signal
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{signals: make(map[int][]os.Signal)}
}

func (f *fakeSpawner) Spawn(cfg process.SpawnConfig) (process.SpawnedProcess, error) {
	f.mu.Lock()
	idx := len(f.procs) + 1
	mp := process.NewMockProcess(9000 + idx)
	mp.SetSignalFn(func(sig os.Signal) error {
		f.mu.Lock()
		f.signals[idx] = append(f.signals[idx], sig)
		f.mu.Unlock()
		return nil
	})
	f.procs = append(f.procs, mp)
	f.mu.Unlock()
	return mp, nil
}

func (f *fakeSpawner) nth(i int) *process.MockProcess {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.procs[i-1]
}

func (f *fakeSpawner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.procs)
}

func (f *fakeSpawner) signalsFor(i int) []os.Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]os.Signal(nil), f.signals[i]...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %s", timeout)
	}
}

func newStartedManager(t *testing.T) (*Manager, *fakeSpawner) {
	t.Helper()
	spawner := newFakeSpawner()
	m := New(spawner)
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(m.Stop)
	return m, spawner
}

func TestLoadStartSpawnsAndRespawnsOnExit(t *testing.T) {
	m, spawner := newStartedManager(t)

	var exitCount int
	var mu sync.Mutex
	m.Bus().Subscribe(process.Config{Name: "web"}.ExitTopic(), func(eventbus.Topic, any) {
		mu.Lock()
		exitCount++
		mu.Unlock()
	}, false)

	if err := m.Load(process.Config{Name: "web", Cmd: "true"}, true); err != nil {
		t.Fatalf("Load: %v", err)
	}

	waitFor(t, time.Second, func() bool { return spawner.count() == 1 })

	spawner.nth(1).Exit(nil, nil)

	waitFor(t, time.Second, func() bool { return spawner.count() == 2 })

	mu.Lock()
	got := exitCount
	mu.Unlock()
	if got != 1 {
		t.Fatalf("expected exactly one exit event before respawn, got %d", got)
	}
}

func TestLoadDuplicateNameIsConflict(t *testing.T) {
	m, _ := newStartedManager(t)

	if err := m.Load(process.Config{Name: "dup", Cmd: "true"}, false); err != nil {
		t.Fatalf("first Load: %v", err)
	}
	err := m.Load(process.Config{Name: "dup", Cmd: "true"}, false)
	if _, ok := err.(*ProcessConflict); !ok {
		t.Fatalf("expected *ProcessConflict, got %v (%T)", err, err)
	}
}

func TestUnloadUnknownNameIsNotFound(t *testing.T) {
	m, _ := newStartedManager(t)

	err := m.Unload("ghost")
	if _, ok := err.(*ProcessNotFound); !ok {
		t.Fatalf("expected *ProcessNotFound, got %v (%T)", err, err)
	}
}

func TestCommitOnceNeverRespawnsAndMarksOnce(t *testing.T) {
	m, spawner := newStartedManager(t)

	if err := m.Load(process.Config{Name: "job", Cmd: "true"}, false); err != nil {
		t.Fatalf("Load: %v", err)
	}

	var gotOnce bool
	var exitCount int
	var mu sync.Mutex
	m.Bus().Subscribe(process.Config{Name: "job"}.ExitTopic(), func(_ eventbus.Topic, payload any) {
		ev := payload.(ExitEvent)
		mu.Lock()
		exitCount++
		gotOnce = ev.Once
		mu.Unlock()
	}, false)

	if err := m.Commit("job", 0, nil); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	waitFor(t, time.Second, func() bool { return spawner.count() == 1 })

	spawner.nth(1).Exit(nil, nil)

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return exitCount == 1
	})

	time.Sleep(20 * time.Millisecond) // give a wrongful respawn a chance to happen
	if spawner.count() != 1 {
		t.Fatalf("commit/once process must not respawn, spawn count = %d", spawner.count())
	}
	mu.Lock()
	defer mu.Unlock()
	if !gotOnce {
		t.Fatal("exit event for a committed process must carry Once=true")
	}
}

func TestUnloadEscalatesToSIGKILLAfterGracefulTimeout(t *testing.T) {
	m, spawner := newStartedManager(t)

	if err := m.Load(process.Config{Name: "svc", Cmd: "true"}, false); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.Commit("svc", 20*time.Millisecond, nil); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	waitFor(t, time.Second, func() bool { return spawner.count() == 1 })

	if err := m.Unload("svc"); err != nil {
		t.Fatalf("Unload: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		sigs := spawner.signalsFor(1)
		return len(sigs) == 2
	})

	sigs := spawner.signalsFor(1)
	if sigs[0] != syscall.SIGTERM || sigs[1] != syscall.SIGKILL {
		t.Fatalf("expected [TERM, KILL], got %v", sigs)
	}

	spawner.nth(1).Exit(nil, nil)
}

func TestStopDrainsTrackerBeforeReturning(t *testing.T) {
	spawner := newFakeSpawner()
	m := New(spawner)
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Load(process.Config{Name: "svc", Cmd: "true"}, false); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.Commit("svc", 15*time.Millisecond, nil); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	waitFor(t, time.Second, func() bool { return spawner.count() == 1 })

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after tracker drain")
	}

	if m.Started() {
		t.Fatal("Started() should be false after Stop")
	}
	// A second Stop must be a synchronous no-op.
	m.Stop()

	spawner.nth(1).Exit(nil, nil)
}
