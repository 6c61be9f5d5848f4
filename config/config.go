// Package config loads declarative spawnkit fixtures from TOML: a
// `[[process]]`-table file that decodes into a slice of process.Config
// plus the load-time knobs the CLI needs.
package config

// File is the top-level shape of a spawnkit TOML config file.
type File struct {
	Process []ProcessEntry `toml:"process"`
}

// ProcessEntry mirrors process.Config's fields with TOML tags, plus the
// defaultable fields ApplyDefaults fills in. It is decoded first and
// converted by ToEntry to an Entry: a process.Config plus the load-time
// knobs.
type ProcessEntry struct {
	Name          string            `toml:"name"`
	Cmd           string            `toml:"cmd"`
	Args          []string          `toml:"args"`
	Env           map[string]string `toml:"env"`
	Cwd           string            `toml:"cwd"`
	OSEnv         bool              `toml:"os_env"`
	CaptureStdout *bool             `toml:"capture_stdout"`
	CaptureStderr *bool             `toml:"capture_stderr"`
	Autostart     bool              `toml:"autostart"`
	GracefulMs    int               `toml:"graceful_timeout_ms"`
}
