// Copyright 2019-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package aggregate

import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/flowdump/nfproc/pkg/record"
	"github.com/flowdump/nfproc/pkg/stats"
)

// numPrealloc mirrors nfdump.c's NumPrealloc: the initial bucket-slice
// capacity hint, sized so ordinary-sized captures never trigger map
// growth mid-run.
const numPrealloc = 128 * 1024

// Entry is one accumulated aggregation bucket: flow count, packet/byte
// sums, first/last-seen window, OR-accumulated TCP flags, and a
// representative record kept for output rendering.
type Entry struct {
	Key   key
	Flows uint64

	Packets uint64
	Octets  uint64

	First stats.Window
	Last  stats.Window

	TCPFlags uint8

	Rep    *record.Master
	RepRaw []byte // on-disk encoding of Rep, for the "raw" output format

	seq int // insertion order, used to break Top-N ties
}

func (e *Entry) DurationMillis() int64 {
	d := int64(e.Last.Sec-e.First.Sec)*1000 + int64(e.Last.Msec) - int64(e.First.Msec)
	if d < 0 {
		return 0
	}
	return d
}

func (e *Entry) BitsPerSecond() uint64 {
	ms := e.DurationMillis()
	if ms == 0 {
		return 0
	}
	return (e.Octets * 8 * 1000) / uint64(ms)
}

func (e *Entry) PacketsPerSecond() uint64 {
	ms := e.DurationMillis()
	if ms == 0 {
		return 0
	}
	return (e.Packets * 1000) / uint64(ms)
}

func (e *Entry) BytesPerPacket() uint64 {
	if e.Packets == 0 {
		return 0
	}
	return e.Octets / e.Packets
}

// Table is the C4 hash table: keyed by xxhash of the masked record
// projection, with a slice chain per bucket compared by full key
// equality rather than trusting the hash alone (spec.md §9's "hash of
// the projected fields and a separate equality check").
type Table struct {
	mask    Mask
	buckets map[uint64][]*Entry
	nextSeq int
}

// New creates an empty aggregation table for the given mask.
func New(mask Mask) *Table {
	return &Table{
		mask:    mask,
		buckets: make(map[uint64][]*Entry, numPrealloc),
	}
}

// Insert folds one master record into its aggregation bucket, creating
// a new Entry on first sight of a key. raw is the on-disk encoding of m
// (used only to render the entry if it becomes the bucket's
// representative under the "raw" output format); callers that never
// select raw output may pass nil.
func (t *Table) Insert(m *record.Master, raw []byte) {
	k := computeKey(t.mask, m)
	h := xxhash.Sum64(k[:])

	for _, e := range t.buckets[h] {
		if e.Key == k {
			t.update(e, m)
			return
		}
	}

	e := &Entry{Key: k, Rep: m, RepRaw: raw, seq: t.nextSeq}
	t.nextSeq++
	t.update(e, m)
	t.buckets[h] = append(t.buckets[h], e)
}

func (t *Table) update(e *Entry, m *record.Master) {
	e.Flows++
	e.Packets += m.NumPackets
	e.Octets += m.NumOctets
	e.TCPFlags |= m.TCPFlags

	first := stats.Window{Sec: m.First, Msec: m.MsecFirst}
	last := stats.Window{Sec: m.Last, Msec: m.MsecLast}
	if e.Flows == 1 {
		e.First, e.Last = first, last
		return
	}
	e.First = e.First.Min(first)
	e.Last = e.Last.Max(last)
}

// Len reports the number of distinct aggregation entries.
func (t *Table) Len() int {
	n := 0
	for _, b := range t.buckets {
		n += len(b)
	}
	return n
}

// Order selects the Top-N sort key.
type Order int

const (
	OrderFlows Order = iota
	OrderPackets
	OrderBytes
	OrderBPS
	OrderPPS
	OrderBPP
)

// ParseOrder maps an orchestrator -O flag value to an Order.
func ParseOrder(s string) (Order, error) {
	switch s {
	case "", "flows":
		return OrderFlows, nil
	case "packets":
		return OrderPackets, nil
	case "bytes":
		return OrderBytes, nil
	case "bps":
		return OrderBPS, nil
	case "pps":
		return OrderPPS, nil
	case "bpp":
		return OrderBPP, nil
	default:
		return 0, fmt.Errorf("aggregate: unknown order %q", s)
	}
}

func orderKey(o Order, e *Entry) uint64 {
	switch o {
	case OrderPackets:
		return e.Packets
	case OrderBytes:
		return e.Octets
	case OrderBPS:
		return e.BitsPerSecond()
	case OrderPPS:
		return e.PacketsPerSecond()
	case OrderBPP:
		return e.BytesPerPacket()
	default:
		return e.Flows
	}
}

// TopN returns the n highest entries by the given order, descending,
// ties broken by insertion order. n is clamped to [1, 1000] per
// spec.md §4.4's record-statistics bound.
func (t *Table) TopN(o Order, n int) []*Entry {
	if n < 1 {
		n = 1
	}
	if n > 1000 {
		n = 1000
	}

	all := make([]*Entry, 0, t.Len())
	for _, b := range t.buckets {
		all = append(all, b...)
	}

	sort.Slice(all, func(i, j int) bool {
		ki, kj := orderKey(o, all[i]), orderKey(o, all[j])
		if ki != kj {
			return ki > kj
		}
		return all[i].seq < all[j].seq
	})

	if len(all) > n {
		all = all[:n]
	}
	return all
}
