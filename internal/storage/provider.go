// Package storage defines read access to a project's base directory.
package storage

import "io/fs"

// Provider is the interface for project file access. Paths are relative
// to the provider's root.
type Provider interface {
	// Root returns the absolute root directory.
	Root() string
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Stat describes the file at path.
	Stat(path string) (fs.FileInfo, error)
	// Abs resolves path to an absolute path under the root.
	Abs(path string) (string, error)
}
