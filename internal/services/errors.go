package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks an option set or config value that cannot be used.
	ErrConfiguration = errors.New("configuration error")
	// ErrAlreadyRunning marks a start request while a batch holds the execution slot.
	ErrAlreadyRunning = errors.New("job already running")
	// ErrExecutableNotFound marks a missing external transcoder.
	ErrExecutableNotFound = errors.New("executable not found")
	// ErrSubprocess marks a per-pair external tool failure.
	ErrSubprocess = errors.New("subprocess failure")
	// ErrMatchingAmbiguity marks files excluded from matching because their stem is shared.
	ErrMatchingAmbiguity = errors.New("matching ambiguity")
	// ErrNotFound marks a missing directory or file.
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrSubprocess
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns a short machine-readable classification for err, used in API
// payloads and history rows.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrAlreadyRunning):
		return "already_running"
	case errors.Is(err, ErrExecutableNotFound):
		return "executable_not_found"
	case errors.Is(err, ErrMatchingAmbiguity):
		return "matching_ambiguity"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSubprocess):
		return "subprocess"
	default:
		return "internal"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
