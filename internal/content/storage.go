package content

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// Location selects one of the two storage roots
type Location int

const (
	// LocationContent is the writable content area
	LocationContent Location = iota
	// LocationBundle is the read-only asset bundle shipped with the application
	LocationBundle
)

func (l Location) String() string {
	if l == LocationBundle {
		return "bundle"
	}
	return "content"
}

// Storage gives path-scoped access to the content area and the bundle.
// All paths are slash separated and relative to the selected root.
type Storage struct {
	content afero.Fs
	bundle  afero.Fs
}

// NewStorage creates a storage over the given roots. A nil bundle means the
// application ships no assets.
func NewStorage(contentFs, bundleFs afero.Fs) *Storage {
	if bundleFs == nil {
		bundleFs = afero.NewMemMapFs()
	}
	return &Storage{
		content: contentFs,
		bundle:  afero.NewReadOnlyFs(bundleFs),
	}
}

// NewOsStorage roots the content area at contentDir and the bundle at bundleDir
func NewOsStorage(contentDir, bundleDir string) *Storage {
	osFs := afero.NewOsFs()
	var bundleFs afero.Fs
	if bundleDir != "" {
		bundleFs = afero.NewBasePathFs(osFs, bundleDir)
	}
	return NewStorage(afero.NewBasePathFs(osFs, contentDir), bundleFs)
}

// Fs returns the filesystem backing a location
func (s *Storage) Fs(loc Location) afero.Fs {
	if loc == LocationBundle {
		return s.bundle
	}
	return s.content
}

// Exists reports whether a regular file exists at p
func (s *Storage) Exists(loc Location, p string) bool {
	info, err := s.Fs(loc).Stat(clean(p))
	return err == nil && !info.IsDir()
}

// Checksum computes the fingerprint of a stored file
func (s *Storage) Checksum(loc Location, p string) (string, error) {
	file, err := s.Fs(loc).Open(clean(p))
	if err != nil {
		return "", fmt.Errorf("failed to open %s file %s: %w", loc, p, err)
	}
	defer file.Close()

	return Checksum(file)
}

// FileMatches reports whether p exists at loc and carries the expected checksum
func (s *Storage) FileMatches(loc Location, p, checksum string) bool {
	if !s.Exists(loc, p) {
		return false
	}
	actual, err := s.Checksum(loc, p)
	if err != nil {
		return false
	}
	return actual == checksum
}

// ResolvedMatches checks p the way content is looked up at runtime: the content
// area first, then the bundle.
func (s *Storage) ResolvedMatches(p, checksum string) bool {
	if s.Exists(LocationContent, p) {
		return s.FileMatches(LocationContent, p, checksum)
	}
	return s.FileMatches(LocationBundle, p, checksum)
}

// ReadFile reads a whole file
func (s *Storage) ReadFile(loc Location, p string) ([]byte, error) {
	return afero.ReadFile(s.Fs(loc), clean(p))
}

// WriteFile replaces a file in the content area, creating parent directories
func (s *Storage) WriteFile(p string, data []byte) error {
	p = clean(p)
	if err := s.content.MkdirAll(path.Dir(p), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", p, err)
	}
	return afero.WriteFile(s.content, p, data, 0644)
}

// WriteFileAtomic writes to a sibling temp file and renames it over p
func (s *Storage) WriteFileAtomic(p string, data []byte) error {
	p = clean(p)
	tmp := p + ".tmp"
	if err := s.WriteFile(tmp, data); err != nil {
		return err
	}
	if err := s.content.Rename(tmp, p); err != nil {
		_ = s.content.Remove(tmp)
		return fmt.Errorf("failed to commit %s: %w", p, err)
	}
	return nil
}

// AppendFile appends data to a file in the content area, creating it if needed
func (s *Storage) AppendFile(p string, data []byte) error {
	p = clean(p)
	file, err := s.content.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s for append: %w", p, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("failed to append to %s: %w", p, err)
	}
	return file.Close()
}

// Delete removes a file from the content area. Missing files are not an error.
func (s *Storage) Delete(p string) error {
	if err := s.content.Remove(clean(p)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", p, err)
	}
	return nil
}

// DeleteDir removes a directory tree from the content area
func (s *Storage) DeleteDir(p string) error {
	if err := s.content.RemoveAll(clean(p)); err != nil {
		return fmt.Errorf("failed to delete directory %s: %w", p, err)
	}
	return nil
}

// MkdirAll creates a directory path in the content area
func (s *Storage) MkdirAll(p string) error {
	if err := s.content.MkdirAll(clean(p), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", p, err)
	}
	return nil
}

// Move renames a file inside the content area, replacing any existing file
func (s *Storage) Move(from, to string) error {
	to = clean(to)
	if err := s.content.MkdirAll(path.Dir(to), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", to, err)
	}
	if err := s.Delete(to); err != nil {
		return err
	}
	if err := s.content.Rename(clean(from), to); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", from, to, err)
	}
	return nil
}

// clean roots a slash path at "/" so it can never climb out of its filesystem
func clean(p string) string {
	return path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
}
