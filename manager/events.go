package manager

import "github.com/google/uuid"

// Meta carries the fields every event payload includes -- event name,
// config name, internal pid -- plus the session id stamped by this
// Manager instance so logs/events from concurrent Managers in one test
// binary don't interleave indistinguishably.
type Meta struct {
	Event   string
	Session uuid.UUID
	Name    string
	Pid     int
}

// LoadEvent is published on "load" when a config is accepted.
type LoadEvent struct {
	Meta
}

// UnloadEvent is published on "unload" when a state is removed.
type UnloadEvent struct {
	Meta
}

// CommitEvent is published on "commit" when a once process is requested.
type CommitEvent struct {
	Meta
}

// SpawnEvent is published on "spawn" / "state.<name>.spawn" /
// "proc.<pid>.spawn" whenever a child is launched.
type SpawnEvent struct {
	Meta
	OSPid int
}

// ReapEvent is published on "reap" / "state.<name>.reap" /
// "proc.<pid>.reap" whenever a child is sent SIGTERM for shutdown.
type ReapEvent struct {
	Meta
	OSPid int
}

// ExitEvent is published on "exit" / "state.<name>.exit" whenever a
// child terminates (or fails to spawn at all).
type ExitEvent struct {
	Meta
	ExitStatus *int
	TermSignal *int
	Once       bool
	Err        error
}
