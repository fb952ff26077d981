package config

import (
	"io"
	"os"

	"github.com/spf13/afero"

	"github.com/sidkik/dfsync/pkg/errors"
)

// ValidateDirectory checks that `path` can be used as a shared directory. It
// must exist, be a directory, and be both readable and writable.
func ValidateDirectory(path string) error {
	fi, err := fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.InvalidDirectory{Path: path, Reason: "it does not exist"}
		}
		return errors.WithContext(err, "stat")
	}

	if !fi.IsDir() {
		return errors.InvalidDirectory{Path: path, Reason: "it is not a directory"}
	}

	dir, err := fs.Open(path)
	if err != nil {
		return errors.InvalidDirectory{Path: path, Reason: "it is not readable"}
	}
	_, err = dir.Readdirnames(1)
	dir.Close()
	if err != nil && err != io.EOF {
		return errors.InvalidDirectory{Path: path, Reason: "it is not readable"}
	}

	probe, err := afero.TempFile(fs, path, ".dfsync-probe")
	if err != nil {
		return errors.InvalidDirectory{Path: path, Reason: "it is not writable"}
	}
	probe.Close()

	if err := fs.Remove(probe.Name()); err != nil {
		return errors.WithContext(err, "remove write probe")
	}
	return nil
}
