package config

import (
	"fmt"
	"strings"
)

// Validate checks a File for semantic errors and returns all of them,
// accumulating every process's errors instead of failing fast on the
// first.
func Validate(f *File) []error {
	var errs []error
	seen := make(map[string]bool, len(f.Process))

	for i, p := range f.Process {
		prefix := fmt.Sprintf("process[%d]", i)
		if p.Name != "" {
			prefix = fmt.Sprintf("process %q", p.Name)
		}

		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", prefix))
		} else if seen[p.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate process name", prefix))
		}
		seen[p.Name] = true

		if strings.TrimSpace(p.Cmd) == "" {
			errs = append(errs, fmt.Errorf("%s: cmd is required", prefix))
		}
		if p.GracefulMs < 0 {
			errs = append(errs, fmt.Errorf("%s: graceful_timeout_ms must be >= 0, got %d", prefix, p.GracefulMs))
		}
	}

	return errs
}
