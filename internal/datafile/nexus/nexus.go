//go:build cgo

package nexus

import (
	"errors"
	"fmt"

	"gonum.org/v1/hdf5"

	"github.com/autoreduction/autosubmit/internal/datafile"
)

var (
	// ErrNotString is returned when the field is not a string dataset.
	ErrNotString = errors.New("dataset is not a string")

	// ErrVariableLengthString is returned for variable-length string datasets,
	// which the hdf5 bindings cannot read into Go memory.
	ErrVariableLengthString = errors.New("variable-length string datasets are not supported")
)

// Opener opens NeXus files read-only.
type Opener struct{}

// Open implements datafile.Opener.
func (Opener) Open(path string) (datafile.Container, error) {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, err
	}
	return &File{f: f}, nil
}

// File is an open NeXus file.
type File struct {
	f *hdf5.File
}

// Entries lists the top-level groups (NXentry and friends) in name order.
func (c *File) Entries() ([]string, error) {
	n, err := c.f.NumObjects()
	if err != nil {
		return nil, fmt.Errorf("failed to count top-level objects: %w", err)
	}

	entries := make([]string, 0, n)
	for i := uint(0); i < n; i++ {
		typ, err := c.f.ObjectTypeByIndex(i)
		if err != nil {
			return nil, fmt.Errorf("failed to read type of object %d: %w", i, err)
		}
		if typ != hdf5.H5G_GROUP {
			continue
		}
		name, err := c.f.ObjectNameByIndex(i)
		if err != nil {
			return nil, fmt.Errorf("failed to read name of object %d: %w", i, err)
		}
		entries = append(entries, name)
	}
	return entries, nil
}

// ReadString returns the first element of the string dataset entry/field.
func (c *File) ReadString(entry, field string) (string, error) {
	g, err := c.f.OpenGroup(entry)
	if err != nil {
		return "", fmt.Errorf("failed to open group %s: %w", entry, err)
	}
	defer g.Close()

	if !g.LinkExists(field) {
		return "", datafile.ErrFieldMissing
	}

	ds, err := g.OpenDataset(field)
	if err != nil {
		return "", fmt.Errorf("failed to open dataset %s/%s: %w", entry, field, err)
	}
	defer ds.Close()

	dtype, err := ds.Datatype()
	if err != nil {
		return "", fmt.Errorf("failed to read datatype: %w", err)
	}
	defer dtype.Close()

	if dtype.Class() != hdf5.T_STRING {
		return "", fmt.Errorf("%s/%s: %w", entry, field, ErrNotString)
	}
	if (&hdf5.VarLenType{Datatype: *dtype}).IsVariableStr() {
		return "", fmt.Errorf("%s/%s: %w", entry, field, ErrVariableLengthString)
	}

	space := ds.Space()
	if space == nil {
		return "", fmt.Errorf("failed to read dataspace of %s/%s", entry, field)
	}
	defer space.Close()
	points := space.SimpleExtentNPoints()
	if points < 1 {
		points = 1
	}

	// Fixed-length strings are laid out back to back, one element per size bytes.
	size := int(dtype.Size())
	if size == 0 {
		return "", fmt.Errorf("dataset %s/%s has zero-sized elements", entry, field)
	}
	buf := make([]byte, size*points)
	if err := ds.Read(&buf); err != nil {
		return "", fmt.Errorf("failed to read fixed-length string: %w", err)
	}
	return string(buf[:size]), nil
}

// Close releases the file handle.
func (c *File) Close() error {
	return c.f.Close()
}
