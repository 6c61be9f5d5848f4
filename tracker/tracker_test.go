package tracker

import (
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/kahiteam/spawnkit/eventbus"
	"github.com/kahiteam/spawnkit/process"
)

// spawnMock builds a Process backed directly by a MockProcess so the test
// can control signal delivery and exit timing precisely.
func spawnMock(t *testing.T, pid int) (*process.Process, *process.MockProcess) {
	t.Helper()
	bus := eventbus.New(nil)
	mp := process.NewMockProcess(7000 + pid)

	var killSignals []os.Signal
	var mu sync.Mutex
	mp.SetSignalFn(func(sig os.Signal) error {
		mu.Lock()
		killSignals = append(killSignals, sig)
		mu.Unlock()
		return nil
	})

	spawner := &process.MockSpawner{SpawnFn: func(process.SpawnConfig) (process.SpawnedProcess, error) {
		return mp, nil
	}}
	p := process.NewProcess(pid, process.Config{Name: "svc"}, bus, nil, spawner, func(*process.Process, *int, *int, error) {})
	if err := p.Spawn(process.Config{Name: "svc"}, false, 0, nil); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	return p, mp
}

func TestCheckSendsSIGKILLAfterTimeout(t *testing.T) {
	p, mp := spawnMock(t, 1)
	var mu sync.Mutex
	var sigs []os.Signal
	mp.SetSignalFn(func(sig os.Signal) error {
		mu.Lock()
		sigs = append(sigs, sig)
		mu.Unlock()
		return nil
	})
	tr := New(nil)

	tr.Check(p, 20*time.Millisecond)

	done := make(chan struct{})
	tr.OnDone(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tracker never drained")
	}

	// The process is still "running" (mock never exited), so the
	// escalation must have sent SIGKILL.
	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		got := append([]os.Signal(nil), sigs...)
		mu.Unlock()
		if len(got) > 0 {
			if got[0] != syscall.SIGKILL {
				t.Fatalf("signals = %v, want [KILL]", got)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no SIGKILL delivered after the graceful timeout")
		}
		time.Sleep(time.Millisecond)
	}
	mp.Exit(nil, nil) // unblock the process's waitLoop goroutine so it doesn't leak
}

func TestUncheckCancelsTimer(t *testing.T) {
	p, mp := spawnMock(t, 2)
	tr := New(nil)

	tr.Check(p, 50*time.Millisecond)
	tr.Uncheck(p)

	if tr.Pending() != 0 {
		t.Fatalf("expected no pending entries after Uncheck, got %d", tr.Pending())
	}

	// Give the (cancelled) timer a chance to fire if it incorrectly
	// wasn't stopped.
	time.Sleep(100 * time.Millisecond)
	mp.Exit(nil, nil)
}

func TestOnDoneFiresImmediatelyWhenAlreadyEmpty(t *testing.T) {
	tr := New(nil)
	fired := false
	tr.OnDone(func() { fired = true })
	if !fired {
		t.Fatal("OnDone should fire immediately when no entries are pending")
	}
}

func TestOnDoneFiresOnceAcrossMultipleEntries(t *testing.T) {
	p1, mp1 := spawnMock(t, 3)
	p2, mp2 := spawnMock(t, 4)
	tr := New(nil)

	tr.Check(p1, time.Hour)
	tr.Check(p2, time.Hour)

	var count int
	var mu sync.Mutex
	tr.OnDone(func() { mu.Lock(); count++; mu.Unlock() })

	tr.Uncheck(p1)
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	if count != 0 {
		t.Fatalf("OnDone fired before all entries cleared: count=%d", count)
	}
	mu.Unlock()

	tr.Uncheck(p2)
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	if count != 1 {
		t.Fatalf("expected OnDone to fire exactly once, got %d", count)
	}
	mu.Unlock()

	mp1.Exit(nil, nil)
	mp2.Exit(nil, nil)
}

func TestStopCancelsWithoutKillOrCallback(t *testing.T) {
	p, mp := spawnMock(t, 5)
	var mu sync.Mutex
	var sigs []os.Signal
	mp.SetSignalFn(func(sig os.Signal) error {
		mu.Lock()
		sigs = append(sigs, sig)
		mu.Unlock()
		return nil
	})
	tr := New(nil)

	called := false
	tr.OnDone(func() { called = true })
	_ = called // OnDone fires immediately (empty); reset below
	tr.onDone = nil

	tr.Check(p, 10*time.Millisecond)
	fired := false
	tr.OnDone(func() { fired = true })

	tr.Stop()
	time.Sleep(50 * time.Millisecond)

	if fired {
		t.Fatal("Stop must not invoke OnDone callbacks")
	}
	if tr.Pending() != 0 {
		t.Fatalf("expected Stop to clear pending entries, got %d", tr.Pending())
	}
	mu.Lock()
	if len(sigs) != 0 {
		t.Fatalf("Stop must not send signals, got %v", sigs)
	}
	mu.Unlock()

	mp.Exit(nil, nil)
}
