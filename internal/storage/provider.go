// Package storage defines the file-system abstraction over a tree's storage root.
package storage

import "time"

// Provider is the interface for file operations below a storage root. All
// paths are relative to that root.
type Provider interface {
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Exists reports whether a file is present at path.
	Exists(path string) (bool, error)
	// Abs returns the absolute location of path.
	Abs(path string) (string, error)
	// Marker returns the modification marker of the file at path.
	Marker(path string) (Marker, error)
}

// Marker identifies one on-disk version of a file. The checksum decides when
// both markers carry one; ModTime and Size are the fallback.
type Marker struct {
	ModTime  time.Time
	Size     int64
	Checksum string
}

// IsZero reports whether m describes no file.
func (m Marker) IsZero() bool {
	return m.ModTime.IsZero() && m.Size == 0 && m.Checksum == ""
}

// Same reports whether m and other describe the same file contents.
func (m Marker) Same(other Marker) bool {
	if m.Checksum != "" && other.Checksum != "" {
		return m.Checksum == other.Checksum
	}
	return m.ModTime.Equal(other.ModTime) && m.Size == other.Size
}
