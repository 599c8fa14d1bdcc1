package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store lays out stage artifacts under root/<owner>/<unit>/. A committed
// artifact is the only signal that a stage finished; partially written files
// never become visible because every write goes through a temp file renamed
// into place.
type Store struct {
	root string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Path returns the absolute location of a named artifact.
func (s *Store) Path(owner, unit, name string) string {
	return filepath.Join(s.root, owner, unit, name)
}

// PartPath returns the location of one fan-out fragment.
func (s *Store) PartPath(owner, unit string, ordinal int) string {
	return filepath.Join(s.root, owner, unit, "parts", fmt.Sprintf("%03d.md", ordinal))
}

// PartDir returns the fragment directory for a unit.
func (s *Store) PartDir(owner, unit string) string {
	return filepath.Join(s.root, owner, unit, "parts")
}

// Exists reports whether an artifact has been committed.
func (s *Store) Exists(owner, unit, name string) bool {
	_, err := os.Stat(s.Path(owner, unit, name))
	return err == nil
}

// PartExists reports whether a fan-out fragment has been committed.
func (s *Store) PartExists(owner, unit string, ordinal int) bool {
	_, err := os.Stat(s.PartPath(owner, unit, ordinal))
	return err == nil
}

// Load reads a committed artifact.
func (s *Store) Load(owner, unit, name string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(owner, unit, name))
	if err != nil {
		return nil, fmt.Errorf("load artifact %s/%s/%s: %w", owner, unit, name, err)
	}
	return data, nil
}

// Save commits an artifact atomically.
func (s *Store) Save(owner, unit, name string, data []byte) error {
	return WriteFileAtomic(s.Path(owner, unit, name), data)
}

// SavePart commits one fan-out fragment atomically.
func (s *Store) SavePart(owner, unit string, ordinal int, data []byte) error {
	return WriteFileAtomic(s.PartPath(owner, unit, ordinal), data)
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it into place, creating parent directories as needed.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit %s: %w", path, err)
	}
	return nil
}
