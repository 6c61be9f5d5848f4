package config

import "time"

// Default values applied by ApplyDefaults.
const (
	DefaultCaptureStdout = true
	DefaultCaptureStderr = true
	DefaultGracefulMs    = int(10 * time.Second / time.Millisecond)
)

// ApplyDefaults fills in zero-value fields of every process entry with
// their default values.
func ApplyDefaults(f *File) {
	for i := range f.Process {
		p := &f.Process[i]
		if p.CaptureStdout == nil {
			v := DefaultCaptureStdout
			p.CaptureStdout = &v
		}
		if p.CaptureStderr == nil {
			v := DefaultCaptureStderr
			p.CaptureStderr = &v
		}
		if p.GracefulMs == 0 {
			p.GracefulMs = DefaultGracefulMs
		}
	}
}
