package part

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

// Storage is the directory of one part on a file system
type Storage struct {
	fs  afero.Fs
	dir string
}

// NewStorage returns the storage of dir, creating the directory if needed
func NewStorage(fs afero.Fs, dir string) (*Storage, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create part directory %s: %w", dir, err)
	}
	return &Storage{fs: fs, dir: dir}, nil
}

// OpenStorage returns the storage of an existing directory
func OpenStorage(fs afero.Fs, dir string) (*Storage, error) {
	info, err := fs.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open part directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return &Storage{fs: fs, dir: dir}, nil
}

func (s *Storage) Fs() afero.Fs { return s.fs }
func (s *Storage) Dir() string  { return s.dir }

// Path returns the full path of a file of the part
func (s *Storage) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Create creates or truncates a file of the part
func (s *Storage) Create(name string) (afero.File, error) {
	f, err := s.fs.OpenFile(s.Path(name), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", name, err)
	}
	return f, nil
}

// Open opens a file of the part for reading
func (s *Storage) Open(name string) (afero.File, error) {
	f, err := s.fs.Open(s.Path(name))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return f, nil
}

// Exists reports whether a file of the part exists
func (s *Storage) Exists(name string) bool {
	ok, err := afero.Exists(s.fs, s.Path(name))
	return err == nil && ok
}

// Size returns the size of a file of the part
func (s *Storage) Size(name string) (int64, error) {
	info, err := s.fs.Stat(s.Path(name))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Remove deletes a file of the part. A missing file is not an error.
func (s *Storage) Remove(name string) error {
	err := s.fs.Remove(s.Path(name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return nil
}

// ReadFile returns the content of a file of the part
func (s *Storage) ReadFile(name string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.Path(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// WriteFile writes data into a new file, optionally syncing it
func (s *Storage) WriteFile(name string, data []byte, sync bool) error {
	f, err := s.Create(name)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		return multierr.Append(fmt.Errorf("failed to write %s: %w", name, err), f.Close())
	}
	if sync {
		if err := f.Sync(); err != nil {
			return multierr.Append(fmt.Errorf("failed to sync %s: %w", name, err), f.Close())
		}
	}
	return f.Close()
}

// Files lists the names of all files of the part
func (s *Storage) Files() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// RemoveAll deletes the part directory with everything in it
func (s *Storage) RemoveAll() error {
	if err := s.fs.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", s.dir, err)
	}
	return nil
}

// Rename moves the part directory to dir, which must not exist
func (s *Storage) Rename(dir string) error {
	if ok, _ := afero.DirExists(s.fs, dir); ok {
		return fmt.Errorf("part directory %s already exists", dir)
	}
	if err := s.fs.Rename(s.dir, dir); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", s.dir, dir, err)
	}
	s.dir = dir
	return nil
}
