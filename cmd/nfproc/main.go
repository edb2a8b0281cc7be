// Copyright 2019-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// nfproc is the CLI entrypoint: it parses flags mirroring nfdump.c's
// getopt table, expands -r/-R/-M into a flat file list, and hands the
// result to pkg/orchestrator.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/flowdump/nfproc/pkg/archive"
	"github.com/flowdump/nfproc/pkg/fileseq"
	"github.com/flowdump/nfproc/pkg/minilog"
	"github.com/flowdump/nfproc/pkg/orchestrator"
	"github.com/flowdump/nfproc/pkg/ranges"
)

// Exit codes, per spec.md §6/§7.
const (
	exitAlloc  = 250
	exitFilter = 254
	exitUsage  = 255
)

var (
	f_r = flag.String("r", "", "read input from file or directory")
	f_R = flag.String("R", "", "read input from a directory, optionally sliced as dir/first:last")
	f_M = flag.String("M", "", "read input from multiple directories, e.g. /data/router[1-5]")

	f_w = flag.String("w", "", "write output to file ('-' for stdout)")
	f_y = flag.Bool("y", false, "compress a written archive with gzip (not part of nfdump.c's getopt table)")
	f_z = flag.Bool("z", false, "zero flows: write only the summary trailer, no data blocks")
	f_i = flag.String("i", "", "rewrite only the -r file's ident header and exit")

	f_f = flag.String("f", "", "read filter expression from file")
	filterArg = flag.String("filter", "", "inline filter expression (positional args are also accepted)")

	f_t = flag.String("t", "", "time window yyyy/MM/dd.hh:mm:ss[-yyyy/MM/dd.hh:mm:ss]")

	f_A = flag.String("A", "", "aggregate on the given mask, e.g. srcip4/24,dstport")
	f_s = flag.String("s", "", "element-stat expression, same mask vocabulary as -A")
	f_O = flag.String("O", "", "order statistics by: flows, packets, bytes, bps, pps, bpp")
	f_n = flag.Int("n", 0, "limit statistics to the top N entries (0 = all, max 1000)")

	f_m = flag.Bool("m", false, "sort output by first-seen timestamp across all input files")
	f_c = flag.Uint64("c", 0, "stop after this many matching flows")

	f_K = flag.String("K", "", "anonymize addresses with this CryptoPAn key")
	f_o = flag.String("o", "", "output format: raw, line, long, extended, pipe, or fmt:<template>")
	f_6 = flag.Bool("6", false, "print full-width IPv6 addresses")

	f_l = flag.Uint64("l", 0, "only consider flows with at least this many packets")
	f_L = flag.Uint64("L", 0, "only consider flows with at least this many bytes")

	f_N = flag.Bool("N", false, "print plain numeric addresses (no-op: this build never resolves hostnames)")
	f_I = flag.Bool("I", false, "print summary statistics only, no per-record output")
	f_q = flag.Bool("q", false, "quiet: suppress headers and the summary line")

	f_ident = flag.String("ident", "nfproc", "ident string to store in a newly written archive")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [options] [filter expression]\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	minilog.Init()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(err.(exitError).code)
	}
}

// exitError carries the exit code the error should terminate the
// process with, per spec.md §6's 0/250/254/255 taxonomy.
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }

func usageErrorf(format string, args ...interface{}) exitError {
	return exitError{exitUsage, fmt.Errorf(format, args...)}
}

func run() error {
	if *f_i != "" {
		if *f_r == "" {
			return usageErrorf("-i requires -r <file>")
		}
		if strings.ContainsRune(*f_i, ' ') {
			return usageErrorf("ident must not contain spaces")
		}
		if err := archive.RewriteIdent(*f_r, *f_i); err != nil {
			return exitError{exitAlloc, fmt.Errorf("rewriting ident: %w", err)}
		}
		return nil
	}

	paths, err := resolveInputs()
	if err != nil {
		return usageErrorf("%v", err)
	}

	twinStart, twinEnd, err := parseTimeWindow(*f_t)
	if err != nil {
		return usageErrorf("-t: %v", err)
	}

	if *f_m {
		sort.SliceStable(paths, func(i, j int) bool {
			ti, oki := fileseq.ParseStamp(paths[i])
			tj, okj := fileseq.ParseStamp(paths[j])
			if !oki || !okj {
				return paths[i] < paths[j]
			}
			return ti.Before(tj)
		})
	}

	filterExpr, err := resolveFilter()
	if err != nil {
		return usageErrorf("%v", err)
	}

	cfg := orchestrator.Config{
		InputPaths: paths,
		WritePath:  *f_w,
		WriteGzip:  *f_y,
		Ident:      *f_ident,

		FilterExpr: filterExpr,

		TwinStart: twinStart,
		TwinEnd:   twinEnd,

		AggregateExpr: *f_A,
		StatExpr:      *f_s,
		OrderBy:       *f_O,
		TopN:          *f_n,

		DateSorted: *f_m,

		Limit:     *f_c,
		ZeroFlows: *f_z,

		FormatName: *f_o,
		V6Wide:     *f_6,

		MinPackets: *f_l,
		MinBytes:   *f_L,

		AnonymizeKey: *f_K,

		StatOnly: *f_I,
		Quiet:    *f_q,

		Output: os.Stdout,
	}

	if _, err := orchestrator.Run(cfg); err != nil {
		if strings.Contains(err.Error(), "filter compile") {
			return exitError{exitFilter, err}
		}
		return exitError{exitAlloc, err}
	}
	return nil
}

// resolveInputs expands -r/-R/-M into a flat, already-ordered list of
// archive paths. Directory expansion and globbing are a CLI-layer
// concern (spec.md §1's non-goals keep it out of pkg/fileseq).
func resolveInputs() ([]string, error) {
	switch {
	case *f_R != "":
		return ranges.ExpandFileRange(*f_R)

	case *f_M != "":
		dirs, err := ranges.ExpandDirs(*f_M)
		if err != nil {
			return nil, err
		}
		var paths []string
		for _, d := range dirs {
			if *f_r != "" {
				paths = append(paths, filepath.Join(d, *f_r))
				continue
			}
			files, err := listDir(d)
			if err != nil {
				return nil, err
			}
			paths = append(paths, files...)
		}
		return paths, nil

	case *f_r != "":
		fi, err := os.Stat(*f_r)
		if err != nil {
			return nil, err
		}
		if fi.IsDir() {
			return listDir(*f_r)
		}
		return []string{*f_r}, nil

	default:
		return nil, fmt.Errorf("one of -r, -R, or -M is required")
	}
}

func listDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return paths, nil
}

func resolveFilter() (string, error) {
	if *f_f != "" {
		b, err := os.ReadFile(*f_f)
		if err != nil {
			return "", fmt.Errorf("reading filter file: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	if *filterArg != "" {
		return *filterArg, nil
	}
	if flag.NArg() > 0 {
		return strings.Join(flag.Args(), " "), nil
	}
	return "", nil
}

// timeLayout matches spec.md §6's "yyyy/MM/dd.hh:mm:ss" CLI time format.
const timeLayout = "2006/01/02.15:04:05"

// parseTimeWindow parses "-t start-end" (either side may be omitted) into
// a pair of time.Time, zero-valued when unset or absent.
func parseTimeWindow(s string) (time.Time, time.Time, error) {
	if s == "" {
		return time.Time{}, time.Time{}, nil
	}

	parts := strings.SplitN(s, "-", 2)
	start, err := parseTimestamp(parts[0])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if len(parts) == 1 {
		return start, time.Time{}, nil
	}
	end, err := parseTimestamp(parts[1])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q, want %s: %w", s, timeLayout, err)
	}
	return t, nil
}
