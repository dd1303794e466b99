// Package home manages the entity runtime's home directory layout
// (spec §6's on-disk layout): the event log, state document, snapshot
// index, scheduler table, organization digest, daemon artefacts, and
// export bundles all live under one root. Grounded on the teacher's
// internal/home (platform-default resolution, atomic EnsureExists)
// adapted from its store-oriented layout to the runtime's own.
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir represents an entity runtime home directory.
type Dir struct {
	root string
}

// New creates a Dir with an explicit root path.
func New(root string) Dir {
	return Dir{root: root}
}

// Default returns a Dir using the platform-appropriate default location:
//   - Linux:   ~/.config/entity
//   - macOS:   ~/Library/Application Support/entity
//   - Windows: %APPDATA%/entity
func Default() (Dir, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return Dir{}, fmt.Errorf("determine config directory: %w", err)
	}
	return Dir{root: filepath.Join(base, "entity")}, nil
}

// Root returns the home directory path; it is also the base directory
// passed to eventlog.Config.Dir, statestore.Config.Dir, and
// snapshot.Config.Dir, which each own their own subdirectory beneath it.
func (d Dir) Root() string {
	return d.root
}

// ConfigPath returns the path to the runtime-config file.
func (d Dir) ConfigPath() string {
	return filepath.Join(d.root, "config.json")
}

// OrganizationHashPath returns the path to the immutable organization
// digest sidecar file.
func (d Dir) OrganizationHashPath() string {
	return filepath.Join(d.root, "ORGANIZATION.sha256")
}

// SpecificationPath returns the path to the canonical specification text
// whose digest feeds the organization hash.
func (d Dir) SpecificationPath() string {
	return filepath.Join(d.root, "spec", "SPECIFICATION.md")
}

// SchedulerPath returns the path to the persistent scheduler table.
func (d Dir) SchedulerPath() string {
	return filepath.Join(d.root, "state", "scheduler.json")
}

// PidPath, SockPath, and LogPath return the daemon's lifecycle artefacts.
func (d Dir) PidPath() string { return filepath.Join(d.root, "daemon.pid") }
func (d Dir) SockPath() string { return filepath.Join(d.root, "daemon.sock") }
func (d Dir) LogPath() string { return filepath.Join(d.root, "daemon.log") }

// ExportsDir returns the directory portable bundles are written to.
func (d Dir) ExportsDir() string {
	return filepath.Join(d.root, "exports")
}

// EnsureExists creates the home directory (and parents) if it doesn't exist.
func (d Dir) EnsureExists() error {
	if err := os.MkdirAll(d.root, 0o750); err != nil {
		return fmt.Errorf("create home directory %s: %w", d.root, err)
	}
	return nil
}
