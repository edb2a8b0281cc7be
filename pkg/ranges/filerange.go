// Copyright (2012) Sandia Corporation.
// Under the terms of Contract DE-AC04-94AL85000 with Sandia Corporation,
// the U.S. Government retains certain rights in this software.

// filerange adapts this package's bracket-list expansion to cmd/nfproc's
// -M/-R flags (nfdump.c's Mdirs/Rfile): -M takes a comma/bracket
// expression naming a set of directories (e.g. "/data/router[1-5]"),
// exactly the host-list shape SplitList already expands; -R names one
// directory, optionally narrowed to a filename slice with "dir/a:b".
package ranges

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ExpandDirs expands a comma/bracket directory expression, as SplitList
// would expand a host list, into a list of existing directory paths.
func ExpandDirs(expr string) ([]string, error) {
	names, err := SplitList(expr)
	if err != nil {
		return nil, fmt.Errorf("ranges: -M expression %q: %w", expr, err)
	}
	for _, n := range names {
		fi, err := os.Stat(n)
		if err != nil {
			return nil, fmt.Errorf("ranges: -M directory %q: %w", n, err)
		}
		if !fi.IsDir() {
			return nil, fmt.Errorf("ranges: -M entry %q is not a directory", n)
		}
	}
	return names, nil
}

// ExpandFileRange implements -R: expr is either a bare directory (every
// regular file in it, sorted) or "dir/first:last", which keeps only the
// sorted filenames in [first, last] inclusive. first or last may be
// empty to mean "from the start"/"to the end" of the sorted listing.
func ExpandFileRange(expr string) ([]string, error) {
	dir := expr
	first, last := "", ""
	hasSlice := false

	if idx := strings.IndexByte(expr, ':'); idx >= 0 {
		hasSlice = true
		slashIdx := strings.LastIndexByte(expr[:idx], string(os.PathSeparator)[0])
		if slashIdx < 0 {
			return nil, fmt.Errorf("ranges: -R expression %q missing directory component", expr)
		}
		dir = expr[:slashIdx]
		first = expr[slashIdx+1 : idx]
		last = expr[idx+1:]
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("ranges: -R directory %q: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	if !hasSlice {
		return joinDir(dir, names), nil
	}

	var sliced []string
	started := first == ""
	for _, n := range names {
		if !started && n == first {
			started = true
		}
		if started {
			sliced = append(sliced, n)
		}
		if last != "" && n == last {
			break
		}
	}
	return joinDir(dir, sliced), nil
}

func joinDir(dir string, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = filepath.Join(dir, n)
	}
	return out
}
