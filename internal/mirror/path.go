package mirror

import (
	"path/filepath"
	"strings"
)

// MirrorPath returns the destination-tree path for path, which must lie under
// sourceRoot. The relative part is preserved verbatim, including the suffix.
func MirrorPath(sourceRoot, destRoot, path string) (string, error) {
	rel, err := relativeTo(sourceRoot, path)
	if err != nil {
		return "", err
	}
	return filepath.Join(destRoot, rel), nil
}

func relativeTo(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", &PathError{Path: path, Root: root, Err: err}
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &PathError{Path: path, Root: root, Err: ErrOutsideRoot}
	}
	return rel, nil
}

// Mapper binds the two tree roots together and applies the document suffix rules.
type Mapper struct {
	SourceRoot string
	DestRoot   string

	// Suffix identifies documents in the source tree, e.g. ".txt".
	Suffix string

	// DestSuffix, when set, replaces Suffix on mirrored document names.
	DestSuffix string
}

// IsDocument reports whether name carries the document suffix.
func (m Mapper) IsDocument(name string) bool {
	return m.Suffix == "" || strings.HasSuffix(name, m.Suffix)
}

// Dir maps a source directory to its mirror directory.
func (m Mapper) Dir(path string) (string, error) {
	dest, err := MirrorPath(m.SourceRoot, m.DestRoot, path)
	if err != nil {
		return "", err
	}
	return m.checkTarget(dest)
}

// Document maps a source document to its mirror file.
func (m Mapper) Document(path string) (string, error) {
	dest, err := MirrorPath(m.SourceRoot, m.DestRoot, path)
	if err != nil {
		return "", err
	}
	if m.DestSuffix != "" && m.Suffix != "" && strings.HasSuffix(dest, m.Suffix) {
		dest = strings.TrimSuffix(dest, m.Suffix) + m.DestSuffix
	}
	return m.checkTarget(dest)
}

// InSource reports whether path is the source root or lies beneath it.
func (m Mapper) InSource(path string) bool {
	_, err := relativeTo(m.SourceRoot, path)
	return err == nil
}

// checkTarget refuses mirror paths that overlap the source tree, so no
// mirror write or removal can touch a source file.
func (m Mapper) checkTarget(dest string) (string, error) {
	if m.InSource(dest) {
		return "", &PathError{Path: dest, Root: m.SourceRoot, Err: ErrInsideSource}
	}
	return dest, nil
}
