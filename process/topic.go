package process

import (
	"strconv"

	"github.com/kahiteam/spawnkit/eventbus"
)

// Topic is an alias so callers of this package don't need to import
// eventbus just to read a topic back off an Event payload.
type Topic = eventbus.Topic

// RootTopic names one of the single-token Manager lifecycle topics
// ("load", "unload", "commit", "start", "stop", "spawn", "reap",
// "exit").
func RootTopic(name string) Topic { return Topic{name} }

// ProcSpawnTopic and ProcReapTopic name the per-process topics
// ("proc.<pid>.spawn" / "proc.<pid>.reap") a Manager publishes on
// alongside the read/write topics defined in stream.go.
func ProcSpawnTopic(pid int) Topic { return Topic{"proc", strconv.Itoa(pid), "spawn"} }
func ProcReapTopic(pid int) Topic  { return Topic{"proc", strconv.Itoa(pid), "reap"} }
