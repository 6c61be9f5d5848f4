package eventbus

import "testing"

func TestBasic(t *testing.T) {
	e := New(nil)
	var got []any
	e.Subscribe(Topic{"a"}, func(topic Topic, payload any) {
		got = append(got, payload)
	}, false)

	e.Publish(Topic{"a"}, 1)
	e.Tick()

	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("got %v, want [1]", got)
	}
}

func TestPublishValue(t *testing.T) {
	e := New(nil)
	var got any
	e.Subscribe(Topic{"a"}, func(topic Topic, payload any) { got = payload }, false)

	e.Publish(Topic{"a"}, "hello")
	e.Tick()

	if got != "hello" {
		t.Fatalf("got %v, want hello", got)
	}
}

func TestPublishOnce(t *testing.T) {
	e := New(nil)
	var calls int
	e.Subscribe(Topic{"a"}, func(topic Topic, payload any) { calls++ }, true)

	e.Publish(Topic{"a"}, nil)
	e.Tick()
	e.Publish(Topic{"a"}, nil)
	e.Tick()

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestMultipleListener(t *testing.T) {
	e := New(nil)
	var a, b int
	e.Subscribe(Topic{"x"}, func(topic Topic, payload any) { a++ }, false)
	e.Subscribe(Topic{"x"}, func(topic Topic, payload any) { b++ }, false)

	e.Publish(Topic{"x"}, nil)
	e.Tick()

	if a != 1 || b != 1 {
		t.Fatalf("a=%d b=%d, want 1,1", a, b)
	}
}

func TestMultipart(t *testing.T) {
	e := New(nil)
	var ab []any
	var a []any
	e.Subscribe(Topic{"a", "b"}, func(topic Topic, payload any) { ab = append(ab, payload) }, false)
	e.Subscribe(Topic{"a"}, func(topic Topic, payload any) { a = append(a, payload) }, false)

	e.Publish(Topic{"a", "b"}, 1)
	e.Publish(Topic{"a"}, 2)
	e.Tick()

	if len(ab) != 1 || ab[0] != 1 {
		t.Fatalf("ab = %v, want [1]", ab)
	}
	if len(a) != 2 || a[0] != 1 || a[1] != 2 {
		t.Fatalf("a = %v, want [1 2]", a)
	}
}

func TestMultipart2(t *testing.T) {
	e := New(nil)
	var sawTopic Topic
	e.Subscribe(Topic{"a", "b"}, func(topic Topic, payload any) { sawTopic = topic }, false)

	e.Publish(Topic{"a", "b", "c"}, nil)
	e.Tick()

	if sawTopic.String() != "a.b.c" {
		t.Fatalf("sawTopic = %v, want a.b.c", sawTopic)
	}
}

func TestWildcard(t *testing.T) {
	e := New(nil)
	var got []string
	e.Subscribe(Topic{}, func(topic Topic, payload any) { got = append(got, topic.String()) }, false)

	e.Publish(Topic{"a"}, nil)
	e.Publish(Topic{"x", "y"}, nil)
	e.Tick()

	if len(got) != 2 || got[0] != "a" || got[1] != "x.y" {
		t.Fatalf("got %v, want [a x.y]", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	e := New(nil)
	var got []any
	sub := e.Subscribe(Topic{"a"}, func(topic Topic, payload any) { got = append(got, payload) }, false)

	e.Publish(Topic{"a"}, 1)
	e.Tick()
	e.Unsubscribe(sub)
	e.Publish(Topic{"a"}, 2)
	e.Tick()

	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("got %v, want [1]", got)
	}
}

func TestDeliveryIsExactlyOncePerPrefix(t *testing.T) {
	e := New(nil)
	var calls int
	e.Subscribe(Topic{"a"}, func(topic Topic, payload any) { calls++ }, false)

	e.Publish(Topic{"a", "b"}, nil)
	e.Tick()

	if calls != 1 {
		t.Fatalf("calls = %d, want exactly 1 (no duplicate prefix delivery)", calls)
	}
}

func TestPublishDuringTickIsDeferred(t *testing.T) {
	e := New(nil)
	var got []any
	e.Subscribe(Topic{"a"}, func(topic Topic, payload any) {
		got = append(got, payload)
		if payload == 1 {
			e.Publish(Topic{"a"}, 2)
		}
	}, false)

	e.Publish(Topic{"a"}, 1)
	e.Tick()
	if len(got) != 1 {
		t.Fatalf("after first tick got %v, want [1]", got)
	}

	e.Tick()
	if len(got) != 2 || got[1] != 2 {
		t.Fatalf("after second tick got %v, want [1 2]", got)
	}
}

type emitterPanicLogger struct{ calls int }

func (p *emitterPanicLogger) Error(msg string, args ...any) { p.calls++ }

func TestListenerPanicIsLoggedAndRemoved(t *testing.T) {
	logger := &emitterPanicLogger{}
	e := New(logger)
	var otherCalls int
	e.Subscribe(Topic{"a"}, func(topic Topic, payload any) { panic("boom") }, false)
	e.Subscribe(Topic{"a"}, func(topic Topic, payload any) { otherCalls++ }, false)

	e.Publish(Topic{"a"}, nil)
	e.Tick()
	e.Publish(Topic{"a"}, nil)
	e.Tick()

	if otherCalls != 2 {
		t.Fatalf("otherCalls = %d, want 2", otherCalls)
	}
	if logger.calls != 1 {
		t.Fatalf("logger.calls = %d, want 1", logger.calls)
	}
}

func TestPending(t *testing.T) {
	e := New(nil)
	e.Subscribe(Topic{"a"}, func(topic Topic, payload any) {}, false)
	e.Publish(Topic{"a"}, nil)
	if e.Pending() == 0 {
		t.Fatal("expected pending deliveries before Tick")
	}
	e.Tick()
	if e.Pending() != 0 {
		t.Fatalf("expected 0 pending after Tick, got %d", e.Pending())
	}
}

func TestStopClearsState(t *testing.T) {
	e := New(nil)
	var calls int
	e.Subscribe(Topic{"a"}, func(topic Topic, payload any) { calls++ }, false)
	e.Publish(Topic{"a"}, nil)
	e.Stop()
	e.Tick()
	e.Publish(Topic{"a"}, nil)
	e.Tick()

	if calls != 0 {
		t.Fatalf("calls = %d, want 0 after Stop", calls)
	}
}
