package mirror

import "fmt"

// EventKind is the kind of a filesystem change notification.
type EventKind int

const (
	// Created indicates a new file or directory.
	Created EventKind = iota
	// Modified indicates an existing file or directory changed.
	Modified
	// Deleted indicates a file or directory was removed.
	Deleted
	// Moved indicates a file or directory was renamed away from Path.
	Moved
)

// String returns a human-readable representation of the kind.
func (k EventKind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Moved:
		return "moved"
	default:
		return "unknown"
	}
}

// ChangeEvent is one change notification for an entry under the source tree.
type ChangeEvent struct {
	Kind  EventKind
	Path  string
	IsDir bool
}

func (e ChangeEvent) String() string {
	if e.IsDir {
		return fmt.Sprintf("%s dir %s", e.Kind, e.Path)
	}
	return fmt.Sprintf("%s file %s", e.Kind, e.Path)
}
