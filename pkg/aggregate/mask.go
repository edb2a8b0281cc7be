// Copyright 2019-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package aggregate implements the C4 aggregation engine: a hash table
// keyed by a configurable bitmask projection of the master record, with
// Top-N selection over the accumulated entries.
package aggregate

import (
	"fmt"
	"strconv"
	"strings"
)

// Mask selects which master-record fields contribute to the
// aggregation key. Unselected fields are left zero in the fixed-width
// key, so two records differing only in an unselected field always
// land in the same bucket.
type Mask struct {
	SrcIP, DstIP     bool
	SrcIPBits        int // 0 means "full width"; else top-N bits for v4/v6
	DstIPBits        int
	SrcPort, DstPort bool
	SrcAS, DstAS     bool
	Proto            bool
}

// ParseMask compiles a comma- or space-separated list of aggregation
// tokens (srcip, dstip, srcip4/N, dstip4/N, srcip6/N, dstip6/N,
// srcport, dstport, srcas, dstas, proto) into a Mask.
//
// If both srcip and dstip are selected, AS numbers are folded into the
// key automatically, preserving AS attribution for aggregated address
// pairs (spec.md §4.4's special rule). This repo implements only the
// effective, final assignment of that rule directly — the source's own
// mask table assigns the AS-inclusion bit twice during initialization,
// and the second write is the one that takes effect, so there's nothing
// here to reproduce beyond the end result.
func ParseMask(expr string) (Mask, error) {
	var m Mask
	expr = strings.ReplaceAll(expr, ",", " ")
	for _, tok := range strings.Fields(expr) {
		if err := m.applyToken(tok); err != nil {
			return Mask{}, err
		}
	}
	if m.SrcIP && m.DstIP {
		m.SrcAS = true
		m.DstAS = true
	}
	return m, nil
}

func (m *Mask) applyToken(tok string) error {
	switch {
	case tok == "srcip":
		m.SrcIP = true
	case tok == "dstip":
		m.DstIP = true
	case tok == "srcport":
		m.SrcPort = true
	case tok == "dstport":
		m.DstPort = true
	case tok == "srcas":
		m.SrcAS = true
	case tok == "dstas":
		m.DstAS = true
	case tok == "proto":
		m.Proto = true

	case strings.HasPrefix(tok, "srcip4/"):
		n, err := bits(tok, "srcip4/", 32)
		if err != nil {
			return err
		}
		m.SrcIP, m.SrcIPBits = true, n
	case strings.HasPrefix(tok, "dstip4/"):
		n, err := bits(tok, "dstip4/", 32)
		if err != nil {
			return err
		}
		m.DstIP, m.DstIPBits = true, n
	case strings.HasPrefix(tok, "srcip6/"):
		n, err := bits(tok, "srcip6/", 128)
		if err != nil {
			return err
		}
		m.SrcIP, m.SrcIPBits = true, n
	case strings.HasPrefix(tok, "dstip6/"):
		n, err := bits(tok, "dstip6/", 128)
		if err != nil {
			return err
		}
		m.DstIP, m.DstIPBits = true, n

	default:
		return fmt.Errorf("aggregate: unknown mask token %q", tok)
	}
	return nil
}

func bits(tok, prefix string, max int) (int, error) {
	s := strings.TrimPrefix(tok, prefix)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("aggregate: bad bit count in %q: %w", tok, err)
	}
	if n < 1 || n > max {
		return 0, fmt.Errorf("aggregate: bit count %d out of range 1..%d in %q", n, max, tok)
	}
	return n, nil
}

// maskHi64/maskLo64 build the top-N-bit mask for a 128-bit value split
// across two 64-bit halves, with bits counted from the most
// significant bit of the high half.
func maskHi64(n int) uint64 {
	if n <= 0 {
		return 0
	}
	if n >= 64 {
		return ^uint64(0)
	}
	return ^uint64(0) << (64 - n)
}

func maskLo64(n int) uint64 {
	lo := n - 64
	if lo <= 0 {
		return 0
	}
	if lo >= 64 {
		return ^uint64(0)
	}
	return ^uint64(0) << (64 - lo)
}

// mask32 builds the top-N-bit mask for a 32-bit v4 address.
func mask32(n int) uint32 {
	if n <= 0 {
		return 0
	}
	if n >= 32 {
		return ^uint32(0)
	}
	return ^uint32(0) << (32 - n)
}
