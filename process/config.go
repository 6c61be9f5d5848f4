// Package process implements one live child process: spawning, stdio
// streaming through an eventbus, speculative drain on exit, and
// graceful-then-forceful termination support for its tracker.
package process

import (
	"fmt"
	"os"
	"strings"
)

// Config is an immutable declarative process configuration. Name must be
// unique within a Manager.
type Config struct {
	Name          string
	Cmd           string
	Args          []string // nil means split Cmd by shell-word rules
	Env           map[string]string
	Cwd           string // empty means Getwd()
	OSEnv         bool   // merge the supervisor's own environment
	CaptureStdout bool
	CaptureStderr bool
}

// SpawnTopic, ReapTopic, and ExitTopic name the per-config ("state")
// topics external callers subscribe to: "state.<name>.spawn",
// "state.<name>.reap", "state.<name>.exit". The process-level
// read/write topics are only known once a Process is spawned and
// assigned an internal pid; see ReadTopic/WriteTopic and
// ProcSpawnTopic/ProcReapTopic.
func (c Config) SpawnTopic() Topic { return Topic{"state", c.Name, "spawn"} }
func (c Config) ReapTopic() Topic  { return Topic{"state", c.Name, "reap"} }
func (c Config) ExitTopic() Topic  { return Topic{"state", c.Name, "exit"} }

// resolveCwd applies the Cwd-or-Getwd default.
func (c Config) resolveCwd() (string, error) {
	if c.Cwd != "" {
		return c.Cwd, nil
	}
	return Getwd()
}

// resolveCommand splits Cmd by shell-word rules when Args is nil; if
// more than one token results, the first becomes the executable and the
// rest become args.
func (c Config) resolveCommand() (string, []string, error) {
	if c.Args != nil {
		return c.Cmd, c.Args, nil
	}
	tokens, err := SplitCommand(c.Cmd)
	if err != nil {
		return "", nil, fmt.Errorf("process: invalid command %q: %w", c.Cmd, err)
	}
	if len(tokens) == 0 {
		return c.Cmd, nil, nil
	}
	return tokens[0], tokens[1:], nil
}

// resolveEnv merges overlay onto c.Env (overlay wins), starting from the
// supervisor's own environment when OSEnv is set.
func (c Config) resolveEnv(overlay map[string]string) []string {
	merged := make(map[string]string)
	if c.OSEnv {
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok {
				merged[k] = v
			}
		}
	}
	for k, v := range c.Env {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}

	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out
}

// Getwd resolves the working directory the way a login shell does:
// prefer $PWD over os.Getwd() only when they name the same inode and
// device (so a symlinked or bind-mounted $PWD is honored, but a stale
// $PWD left over from a parent shell is not).
func Getwd() (string, error) {
	real, err := os.Getwd()
	if err != nil {
		return "", err
	}

	pwd := os.Getenv("PWD")
	if pwd == "" {
		return real, nil
	}

	pwdInfo, err := os.Stat(pwd)
	if err != nil {
		return real, nil
	}
	realInfo, err := os.Stat(real)
	if err != nil {
		return real, nil
	}
	if os.SameFile(pwdInfo, realInfo) {
		return pwd, nil
	}
	return real, nil
}
