// Copyright 2019-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package stats implements the per-protocol and global flow counters
// that make up an archive's summary trailer (C5 in the design).
package stats

import (
	"github.com/flowdump/nfproc/pkg/record"
	"github.com/flowdump/nfproc/pkg/xmath"
)

const (
	ProtoICMP = 1
	ProtoTCP  = 6
	ProtoUDP  = 17
)

// Window is a (second, millisecond) timestamp pair, compared
// lexicographically as spec.md requires for first/last-seen tracking.
type Window struct {
	Sec  uint32
	Msec uint16
}

// Min returns the lexicographically smaller of a and b: the smaller
// second, tie-broken by the smaller millisecond.
func (a Window) Min(b Window) Window {
	if a.Sec != xmath.Min(a.Sec, b.Sec) {
		a, b = b, a
	}
	if a.Sec != b.Sec {
		return a
	}
	return Window{a.Sec, xmath.Min(a.Msec, b.Msec)}
}

// Max returns the lexicographically larger of a and b: the larger
// second, tie-broken by the larger millisecond.
func (a Window) Max(b Window) Window {
	if a.Sec != xmath.Max(a.Sec, b.Sec) {
		a, b = b, a
	}
	if a.Sec != b.Sec {
		return a
	}
	return Window{a.Sec, xmath.Max(a.Msec, b.Msec)}
}

// Record accumulates the counters that make up the archive summary
// trailer: total and per-protocol flow/packet/byte counts, the
// first/last-seen window across every accepted record, and the number of
// data blocks written.
type Record struct {
	NumFlows   uint64
	NumPackets uint64
	NumOctets  uint64

	NumFlowsICMP, NumPacketsICMP, NumOctetsICMP uint64
	NumFlowsTCP, NumPacketsTCP, NumOctetsTCP    uint64
	NumFlowsUDP, NumPacketsUDP, NumOctetsUDP    uint64
	NumFlowsOther, NumPacketsOther, NumOctetsOther uint64

	FirstSeen Window
	LastSeen  Window

	NumBlocks uint32

	// SkippedFlows counts records lost to skipped/corrupt blocks (spec.md
	// §7 item 3, §8 scenario 6) — a block-level loss, not folded through
	// Update since the records inside it were never decoded.
	SkippedFlows uint64

	seeded bool
}

// Update folds one accepted master record into the accumulator. It is
// called exactly once per record that passes the filter, regardless of
// the orchestrator's dispatch mode (spec.md §4.8: "the accumulator in C5
// runs regardless").
func (r *Record) Update(m *record.Master) {
	switch m.Protocol {
	case ProtoICMP:
		r.NumFlowsICMP++
		r.NumPacketsICMP += m.NumPackets
		r.NumOctetsICMP += m.NumOctets
	case ProtoTCP:
		r.NumFlowsTCP++
		r.NumPacketsTCP += m.NumPackets
		r.NumOctetsTCP += m.NumOctets
	case ProtoUDP:
		r.NumFlowsUDP++
		r.NumPacketsUDP += m.NumPackets
		r.NumOctetsUDP += m.NumOctets
	default:
		r.NumFlowsOther++
		r.NumPacketsOther += m.NumPackets
		r.NumOctetsOther += m.NumOctets
	}

	r.NumFlows++
	r.NumPackets += m.NumPackets
	r.NumOctets += m.NumOctets

	first := Window{m.First, m.MsecFirst}
	last := Window{m.Last, m.MsecLast}

	if !r.seeded {
		r.FirstSeen = first
		r.LastSeen = last
		r.seeded = true
		return
	}
	r.FirstSeen = r.FirstSeen.Min(first)
	r.LastSeen = r.LastSeen.Max(last)
}

// DurationMillis returns the (last - first) duration in milliseconds,
// used by rate derivations (bps/pps/bpp). A zero or negative span yields
// zero, matching spec.md's "duration zero yields rate zero".
func (r *Record) DurationMillis() int64 {
	d := int64(r.LastSeen.Sec-r.FirstSeen.Sec)*1000 + int64(r.LastSeen.Msec) - int64(r.FirstSeen.Msec)
	if d < 0 {
		return 0
	}
	return d
}

// BitsPerSecond, PacketsPerSecond and BytesPerPacket are the derived
// averages over the whole accumulated window, printed in the run's
// summary line.
func (r *Record) BitsPerSecond() uint64 {
	ms := r.DurationMillis()
	if ms == 0 {
		return 0
	}
	return (r.NumOctets * 8 * 1000) / uint64(ms)
}

func (r *Record) PacketsPerSecond() uint64 {
	ms := r.DurationMillis()
	if ms == 0 {
		return 0
	}
	return (r.NumPackets * 1000) / uint64(ms)
}

func (r *Record) BytesPerPacket() uint64 {
	if r.NumPackets == 0 {
		return 0
	}
	return r.NumOctets / r.NumPackets
}
