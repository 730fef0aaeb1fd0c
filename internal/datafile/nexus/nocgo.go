//go:build !cgo

package nexus

import (
	"errors"

	"github.com/autoreduction/autosubmit/internal/datafile"
)

// ErrUnsupported is returned by Open in binaries built without cgo.
var ErrUnsupported = errors.New("nexus support requires cgo and libhdf5")

// Opener opens NeXus files read-only.
type Opener struct{}

// Open implements datafile.Opener.
func (Opener) Open(path string) (datafile.Container, error) {
	return nil, ErrUnsupported
}
