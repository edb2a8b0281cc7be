// Copyright 2019-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package fileseq implements the file iterator spec.md's orchestrator
// treats as an opaque external collaborator (GetNextFile): walking a
// flat, already-expanded list of archive paths and skipping any whose
// filename-encoded timestamp falls outside the configured time window
// without opening them.
package fileseq

import (
	"io"
	"os"
	"regexp"
	"time"

	"github.com/flowdump/nfproc/pkg/minilog"
)

// stampRE matches nfcapd-style filename timestamps: "nfcapd.YYYYMMDDhhmmss".
var stampRE = regexp.MustCompile(`(\d{14})`)

// Sequence walks a fixed list of paths in order, opening each in turn.
type Sequence struct {
	paths      []string
	twinStart  time.Time
	twinEnd    time.Time
	haveWindow bool
	pos        int

	Skipped int
}

// New builds a Sequence over paths, in the order given (the caller —
// cmd/nfproc — is responsible for any directory expansion or glob
// resolution and for supplying paths already in the desired order).
// A zero twinStart/twinEnd disables time-window filtering.
func New(paths []string, twinStart, twinEnd time.Time) *Sequence {
	return &Sequence{
		paths:      paths,
		twinStart:  twinStart,
		twinEnd:    twinEnd,
		haveWindow: !twinStart.IsZero() || !twinEnd.IsZero(),
	}
}

// Next opens the next path not skipped by the time window, returning
// its handle, its path, and true. It returns (nil, "", false) once the
// sequence is exhausted. Exactly one read-fd is ever open at a time:
// the caller must Close the previous handle before calling Next again.
func (s *Sequence) Next() (io.ReadCloser, string, bool) {
	for s.pos < len(s.paths) {
		p := s.paths[s.pos]
		s.pos++

		if s.haveWindow && !s.inWindow(p) {
			s.Skipped++
			continue
		}

		f, err := os.Open(p)
		if err != nil {
			minilog.Error("fileseq: opening %s: %v", p, err)
			s.Skipped++
			continue
		}
		return f, p, true
	}
	return nil, "", false
}

// inWindow reports whether p's filename-encoded timestamp falls within
// [twinStart, twinEnd). A filename carrying no recognizable timestamp
// is never skipped by this check — the window only excludes files it
// can positively place outside the range.
func (s *Sequence) inWindow(p string) bool {
	m := stampRE.FindString(p)
	if m == "" {
		return true
	}
	t, err := time.Parse("20060102150405", m)
	if err != nil {
		return true
	}
	if !s.twinStart.IsZero() && t.Before(s.twinStart) {
		return false
	}
	if !s.twinEnd.IsZero() && !t.Before(s.twinEnd) {
		return false
	}
	return true
}

// ParseStamp is exposed for callers that want to sort a file list by
// its encoded timestamp before constructing a Sequence (spec.md's
// date-sort mode reorders across all files globally).
func ParseStamp(p string) (time.Time, bool) {
	m := stampRE.FindString(p)
	if m == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("20060102150405", m)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
