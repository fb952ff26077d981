package sync

import (
	"os"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/sidkik/dfsync/pkg/errors"
)

// Storage is a flat directory of shared files.
type Storage struct {
	fs afero.Fs
}

// NewStorage returns a Storage rooted at `dir` within `fs`.
func NewStorage(fs afero.Fs, dir string) *Storage {
	return &Storage{fs: afero.NewBasePathFs(fs, dir)}
}

// NewOsStorage returns a Storage for `dir` on the local disk.
func NewOsStorage(dir string) *Storage {
	return NewStorage(afero.NewOsFs(), dir)
}

// ValidateName checks that `name` refers to a single entry directly inside
// the shared directory.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return errors.InvalidFilename{Name: name, Reason: "not a file name"}
	case strings.ContainsAny(name, `/\`):
		return errors.InvalidFilename{Name: name, Reason: "must not contain a path separator"}
	case strings.ContainsAny(name, "\"\r\n\x00"):
		return errors.InvalidFilename{Name: name, Reason: "contains a reserved character"}
	}
	return nil
}

// Open opens `name` for reading.
func (s *Storage) Open(name string) (afero.File, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	f, err := s.fs.Open(name)
	if os.IsNotExist(err) {
		return nil, errors.FileNotFound{Path: name}
	}
	return f, err
}

// Create opens `name` for writing, truncating it if it exists.
func (s *Storage) Create(name string) (afero.File, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return s.fs.Create(name)
}

// Remove deletes `name`. Removing a file that doesn't exist isn't an error.
func (s *Storage) Remove(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	if err := s.fs.Remove(name); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Exists returns whether `name` is a regular file in the storage.
func (s *Storage) Exists(name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}

	fi, err := s.fs.Stat(name)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fi.Mode().IsRegular(), nil
}

// List returns the names of the regular files in the storage, sorted.
func (s *Storage) List() ([]string, error) {
	infos, err := afero.ReadDir(s.fs, "/")
	if err != nil {
		return nil, errors.WithContext(err, "read dir")
	}

	var names []string
	for _, fi := range infos {
		if fi.Mode().IsRegular() {
			names = append(names, fi.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
