// Copyright 2019-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package archive

import "errors"

var (
	errShortHeader   = errors.New("archive: short file header")
	errBadMagic      = errors.New("archive: bad magic number")
	errBadVersion    = errors.New("archive: unsupported version")
	errBlockTooLarge = errors.New("archive: block size exceeds maximum buffer size")
	errNoTrailer     = errors.New("archive: file has no summary trailer")
)

// ErrCorrupt wraps a corruption condition detected mid-file: the current
// file is abandoned but the caller should continue to the next one, per
// spec.md §7's corruption handling rule.
type ErrCorrupt struct {
	Err error
}

func (e *ErrCorrupt) Error() string { return "archive: corrupt: " + e.Err.Error() }
func (e *ErrCorrupt) Unwrap() error { return e.Err }
