package manager

import "fmt"

// ProcessNotFound is returned by Unload/Commit when no state with the
// given name has been loaded.
type ProcessNotFound struct {
	Name string
}

func (e *ProcessNotFound) Error() string {
	return fmt.Sprintf("manager: no process named %q", e.Name)
}

// ProcessConflict is returned by Load when name is already present in
// the states table.
type ProcessConflict struct {
	Name string
}

func (e *ProcessConflict) Error() string {
	return fmt.Sprintf("manager: process %q already loaded", e.Name)
}

// ErrNotStarted is returned by Load/Unload/Commit when called before
// Start or after Stop.
type ErrNotStarted struct{}

func (ErrNotStarted) Error() string { return "manager: not started" }

// ErrAlreadyStarted is returned by Start when the Manager has already
// been started, including after it has been stopped.
type ErrAlreadyStarted struct{}

func (ErrAlreadyStarted) Error() string { return "manager: already started" }
