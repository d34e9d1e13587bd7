package mirror

import (
	"errors"
	"fmt"
)

var (
	// ErrOutsideRoot is returned when a path does not lie under the source root.
	ErrOutsideRoot = errors.New("path is outside the source root")

	// ErrInsideSource is returned when a mirror path would land in the source
	// tree, which happens when the source root lies inside the destination.
	ErrInsideSource = errors.New("mirror path is inside the source tree")

	// ErrConverterFailed is returned when the converter exits with a nonzero status
	// or cannot be started.
	ErrConverterFailed = errors.New("converter failed")

	// ErrConverterTimeout is returned when a conversion exceeds its timeout.
	ErrConverterTimeout = errors.New("converter timed out")
)

// PathError records a path that could not be mapped into the mirror tree.
type PathError struct {
	Path string
	Root string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("mirror %s (root %s): %v", e.Path, e.Root, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

// ConversionError describes a failed conversion of one document.
type ConversionError struct {
	Source   string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ConversionError) Error() string {
	if e.ExitCode > 0 {
		return fmt.Sprintf("convert %s: exit status %d: %v", e.Source, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("convert %s: %v", e.Source, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }
