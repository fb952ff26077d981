package errors

import (
	"fmt"
)

// InvalidFilename is returned for names that don't refer to a single entry
// of the shared directory.
type InvalidFilename struct {
	Name   string
	Reason string
}

func (err InvalidFilename) Error() string {
	return fmt.Sprintf("invalid filename %q: %s", err.Name, err.Reason)
}

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// InvalidDirectory represents a directory that can't be used as a shared
// directory.
type InvalidDirectory struct {
	Path   string
	Reason string
}

func (err InvalidDirectory) Error() string {
	return fmt.Sprintf("%q can not be used: %s", err.Path, err.Reason)
}
