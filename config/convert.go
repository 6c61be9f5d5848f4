package config

import (
	"time"

	"github.com/kahiteam/spawnkit/process"
)

// Entry pairs the process.Config a ProcessEntry resolves to with the
// load-time knobs (Autostart, GracefulTimeout) that aren't part of
// process.Config itself because they govern how Manager.Load/Commit is
// called, not the child's own spawn parameters.
type Entry struct {
	Config          process.Config
	Autostart       bool
	GracefulTimeout time.Duration
}

// ToEntry converts a decoded ProcessEntry (post ApplyDefaults) into the
// process.Config plus load-time knobs cmd/spawnkit needs.
func (p ProcessEntry) ToEntry() Entry {
	captureStdout := DefaultCaptureStdout
	if p.CaptureStdout != nil {
		captureStdout = *p.CaptureStdout
	}
	captureStderr := DefaultCaptureStderr
	if p.CaptureStderr != nil {
		captureStderr = *p.CaptureStderr
	}

	return Entry{
		Config: process.Config{
			Name:          p.Name,
			Cmd:           p.Cmd,
			Args:          p.Args,
			Env:           p.Env,
			Cwd:           p.Cwd,
			OSEnv:         p.OSEnv,
			CaptureStdout: captureStdout,
			CaptureStderr: captureStderr,
		},
		Autostart:       p.Autostart,
		GracefulTimeout: time.Duration(p.GracefulMs) * time.Millisecond,
	}
}

// Entries converts every process in f to an Entry, in file order.
func (f *File) Entries() []Entry {
	out := make([]Entry, len(f.Process))
	for i, p := range f.Process {
		out[i] = p.ToEntry()
	}
	return out
}
