// Copyright 2019-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package orchestrator implements the C8 orchestrator: it drives
// C1 (archive) -> C2 (record) -> C3 (filter) -> C5 (stats), then
// dispatches each accepted record to exactly one of C4 (aggregate),
// C6 (anonymize) + C1-write, or C7 (direct render), per spec.md §4.8's
// dispatch table.
package orchestrator

import (
	"fmt"
	"io"
	"time"

	"github.com/flowdump/nfproc/pkg/aggregate"
)

// Config mirrors the CLI flags cmd/nfproc parses, mapped directly onto
// nfdump.c's getopt table (spec.md §6's "informative, not core" CLI
// surface). Run is the single entry point; cmd/nfproc only builds a
// Config and interprets the returned error.
type Config struct {
	InputPaths []string // already expanded by the CLI layer (no globbing here)
	WritePath  string   // "" = no archive write; "-" = stdout, no trailer
	WriteGzip  bool     // -y, not part of nfdump.c's own getopt table
	Ident      string

	FilterExpr string

	TwinStart time.Time
	TwinEnd   time.Time

	AggregateExpr string // -A
	StatExpr      string // -s (element-stat key, reuses the mask vocabulary)
	OrderBy       string // -O
	TopN          int    // -n

	DateSorted bool // -m

	Limit     uint64 // -c, limitflows
	ZeroFlows bool   // -z

	FormatName string // -o
	V6Wide     bool   // -6

	MinPackets uint64 // -l, packet_limit_string in nfdump.c
	MinBytes   uint64 // -L, byte_limit_string in nfdump.c

	AnonymizeKey string // -K

	StatOnly bool // -I, print_stat in nfdump.c: summary counters only, no per-record output
	Quiet    bool // -q

	Output io.Writer // direct-render / summary destination; defaults to io.Discard if nil
}

func (c *Config) writer() io.Writer {
	if c.Output == nil {
		return io.Discard
	}
	return c.Output
}

type mode int

const (
	modeWrite mode = iota
	modeAggregate
	modeElementStat
	modeDateSort
	modeDirectPrint
)

func (c *Config) mode() mode {
	switch {
	case c.WritePath != "":
		return modeWrite
	case c.AggregateExpr != "":
		return modeAggregate
	case c.StatExpr != "":
		return modeElementStat
	case c.DateSorted:
		return modeDateSort
	default:
		return modeDirectPrint
	}
}

func (c *Config) aggregateMask() (aggregate.Mask, error) {
	expr := c.AggregateExpr
	if expr == "" {
		expr = c.StatExpr
	}
	m, err := aggregate.ParseMask(expr)
	if err != nil {
		return aggregate.Mask{}, fmt.Errorf("orchestrator: bad aggregation expression: %w", err)
	}
	return m, nil
}
