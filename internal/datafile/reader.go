// Package datafile reads the experiment identifier recorded inside a run's
// data file.
//
// ICAT overwrites the RB number of calibration runs with a placeholder. The
// real RB number is still written into the NeXus file by the instrument
// control software, so it can be recovered from there. Only that one field is
// interpreted; the rest of the container format is left to the backend.
package datafile

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultField is the NeXus field holding the RB number.
const DefaultField = "experiment_identifier"

var (
	// ErrFileOpen matches any FileOpenError.
	ErrFileOpen = errors.New("cannot open data file")

	// ErrFieldRead matches any FieldReadError.
	ErrFieldRead = errors.New("cannot read field from data file")

	// ErrFieldMissing is returned by a Container when an entry lacks the field.
	ErrFieldMissing = errors.New("field not present")
)

// FileOpenError reports a data file that could not be opened.
type FileOpenError struct {
	Path string
	Err  error
}

func (e *FileOpenError) Error() string {
	return fmt.Sprintf("cannot open file '%s': %v", e.Path, e.Err)
}

func (e *FileOpenError) Unwrap() error { return e.Err }

func (e *FileOpenError) Is(target error) bool { return target == ErrFileOpen }

// FieldReadError reports a data file that did not yield the requested field.
type FieldReadError struct {
	Path   string
	Field  string
	Reason string
	Err    error
}

func (e *FieldReadError) Error() string {
	msg := fmt.Sprintf("could not read %s from datafile '%s': %s", e.Field, e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FieldReadError) Unwrap() error { return e.Err }

func (e *FieldReadError) Is(target error) bool { return target == ErrFieldRead }

// Container is an opened, read-only data file.
type Container interface {
	// Entries lists the top-level entry names in file order.
	Entries() ([]string, error)
	// ReadString decodes the first element of field within entry.
	// It returns ErrFieldMissing if the entry has no such field.
	ReadString(entry, field string) (string, error)
	Close() error
}

// Opener opens data files read-only.
type Opener interface {
	Open(path string) (Container, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(path string) (Container, error)

func (f OpenerFunc) Open(path string) (Container, error) { return f(path) }

// Reader extracts the experiment identifier from data files.
type Reader struct {
	opener   Opener
	rewrites []PathRewrite
	field    string
}

// NewReader creates a Reader. A nil rewrites slice uses DefaultRewrites and an
// empty field uses DefaultField.
func NewReader(opener Opener, rewrites []PathRewrite, field string) *Reader {
	if rewrites == nil {
		rewrites = DefaultRewrites
	}
	if field == "" {
		field = DefaultField
	}
	return &Reader{opener: opener, rewrites: rewrites, field: field}
}

// ReadExperimentIdentifier returns the RB number stored in the data file at location.
// The value comes from the first top-level entry that carries the field.
func (r *Reader) ReadExperimentIdentifier(location string) (string, error) {
	path := NormalizePath(location, r.rewrites)

	c, err := r.opener.Open(path)
	if err != nil {
		return "", &FileOpenError{Path: path, Err: err}
	}
	defer c.Close()

	entries, err := c.Entries()
	if err != nil {
		return "", &FieldReadError{Path: path, Field: r.field, Reason: "cannot list entries", Err: err}
	}
	if len(entries) == 0 {
		return "", &FieldReadError{Path: path, Field: r.field, Reason: "datafile does not have any items that can be iterated"}
	}

	for _, entry := range entries {
		value, err := c.ReadString(entry, r.field)
		if errors.Is(err, ErrFieldMissing) {
			continue
		}
		if err != nil {
			return "", &FieldReadError{Path: path, Field: r.field, Reason: fmt.Sprintf("cannot decode %s/%s", entry, r.field), Err: err}
		}
		return cleanValue(value), nil
	}

	return "", &FieldReadError{Path: path, Field: r.field, Reason: "no entry contains the field"}
}

// cleanValue strips the NUL and space padding of fixed-length HDF5 strings,
// in any mix.
func cleanValue(s string) string {
	return strings.Trim(s, "\x00 \t\r\n")
}
