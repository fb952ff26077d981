package sync

import (
	"crypto/sha512"
	"encoding/base64"
	"io"

	"github.com/sidkik/dfsync/pkg/errors"
)

// Hash returns the sha512 hash of the contents of `name`.
func (s *Storage) Hash(name string) (string, error) {
	f, err := s.Open(name)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := sha512.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", errors.WithContext(err, "read")
	}
	return base64.StdEncoding.EncodeToString(hasher.Sum(nil)), nil
}
