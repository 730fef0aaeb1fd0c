// Package nexus opens ISIS NeXus (HDF5) files for the datafile reader.
//
// It needs cgo and the HDF5 C library. Keeping it apart from package datafile
// lets the reader logic build and test without either. Binaries built with
// CGO_ENABLED=0 get an Opener that always fails.
package nexus
