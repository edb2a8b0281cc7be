// Copyright 2019-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package record implements the on-disk common-record codec and the
// fixed-width master record it expands into. The on-disk layout is
// modeled on the nfdump common_record_t: a leading size/flags/mark
// header, a fixed block of protocol/port/counter fields, and either an
// IPv4 or IPv6 address pair selected by a family flag.
package record

import (
	"encoding/binary"
	"fmt"
)

// Family selects which address pair a record carries. Modeled as a tagged
// union rather than a bit flag inspected ad hoc at every call site.
type Family uint8

const (
	IPv4 Family = iota
	IPv6
)

func (f Family) String() string {
	if f == IPv6 {
		return "ipv6"
	}
	return "ipv4"
}

const (
	flagIPv6 = 1 << 0

	// headerLen is size(2) + flags(2) + mark(2).
	headerLen = 6
	// fixedLen is the fixed field block following the header, before
	// the address pair.
	fixedLen = 36

	v4AddrLen = 8  // two uint32 addresses
	v6AddrLen = 32 // two [16]byte addresses

	// MinRecordLen is the smallest legal on-disk record (v4 addresses,
	// no trailing extension).
	MinRecordLen = headerLen + fixedLen + v4AddrLen
)

// Common is the on-disk common record, decoded into Go fields but not
// yet widened into a Master record. Extra carries any trailing
// extension bytes verbatim (nfdump's optional extension map); this
// implementation does not interpret them, only preserves them for
// round-trip fidelity.
type Common struct {
	Size  uint16
	Flags uint16
	Mark  uint16

	Protocol  uint8
	TCPFlags  uint8
	Tos       uint8
	SrcPort   uint16
	DstPort   uint16
	Input     uint16
	Output    uint16
	SrcAS     uint16
	DstAS     uint16
	First     uint32
	Last      uint32
	MsecFirst uint16
	MsecLast  uint16
	NumPkts   uint32
	NumOctets uint32

	Family  Family
	SrcIP4  uint32
	DstIP4  uint32
	SrcIP6  [16]byte
	DstIP6  [16]byte

	Extra []byte
}

// Decode parses a single common record from b, which must contain at
// least the record's declared Size bytes. It returns the record and the
// number of bytes consumed (equal to the declared size).
func Decode(b []byte) (*Common, int, error) {
	if len(b) < headerLen {
		return nil, 0, fmt.Errorf("record: short buffer: %d bytes", len(b))
	}

	size := binary.LittleEndian.Uint16(b[0:2])
	if int(size) < MinRecordLen {
		return nil, 0, fmt.Errorf("record: size %d below minimum %d", size, MinRecordLen)
	}
	if int(size) > len(b) {
		return nil, 0, fmt.Errorf("record: declared size %d exceeds available %d bytes", size, len(b))
	}

	c := &Common{
		Size:  size,
		Flags: binary.LittleEndian.Uint16(b[2:4]),
		Mark:  binary.LittleEndian.Uint16(b[4:6]),
	}

	f := b[headerLen:]
	c.Protocol = f[0]
	c.TCPFlags = f[1]
	c.Tos = f[2]
	// f[3] reserved
	c.SrcPort = binary.LittleEndian.Uint16(f[4:6])
	c.DstPort = binary.LittleEndian.Uint16(f[6:8])
	c.Input = binary.LittleEndian.Uint16(f[8:10])
	c.Output = binary.LittleEndian.Uint16(f[10:12])
	c.SrcAS = binary.LittleEndian.Uint16(f[12:14])
	c.DstAS = binary.LittleEndian.Uint16(f[14:16])
	c.First = binary.LittleEndian.Uint32(f[16:20])
	c.Last = binary.LittleEndian.Uint32(f[20:24])
	c.MsecFirst = binary.LittleEndian.Uint16(f[24:26])
	c.MsecLast = binary.LittleEndian.Uint16(f[26:28])
	c.NumPkts = binary.LittleEndian.Uint32(f[28:32])
	c.NumOctets = binary.LittleEndian.Uint32(f[32:36])

	addr := f[fixedLen:]
	if c.Flags&flagIPv6 != 0 {
		c.Family = IPv6
		if len(addr) < v6AddrLen {
			return nil, 0, fmt.Errorf("record: truncated v6 address block")
		}
		copy(c.SrcIP6[:], addr[0:16])
		copy(c.DstIP6[:], addr[16:32])
		if extra := int(size) - (headerLen + fixedLen + v6AddrLen); extra > 0 {
			c.Extra = append([]byte(nil), addr[v6AddrLen:v6AddrLen+extra]...)
		}
	} else {
		c.Family = IPv4
		if len(addr) < v4AddrLen {
			return nil, 0, fmt.Errorf("record: truncated v4 address block")
		}
		c.SrcIP4 = binary.LittleEndian.Uint32(addr[0:4])
		c.DstIP4 = binary.LittleEndian.Uint32(addr[4:8])
		if extra := int(size) - (headerLen + fixedLen + v4AddrLen); extra > 0 {
			c.Extra = append([]byte(nil), addr[v4AddrLen:v4AddrLen+extra]...)
		}
	}

	return c, int(size), nil
}

// Encode serializes c back to its on-disk form, recomputing Size from
// the current Family and Extra length rather than trusting a stale
// cached value.
func (c *Common) Encode() []byte {
	addrLen := v4AddrLen
	if c.Family == IPv6 {
		addrLen = v6AddrLen
	}
	size := headerLen + fixedLen + addrLen + len(c.Extra)
	b := make([]byte, size)

	flags := c.Flags &^ flagIPv6
	if c.Family == IPv6 {
		flags |= flagIPv6
	}

	binary.LittleEndian.PutUint16(b[0:2], uint16(size))
	binary.LittleEndian.PutUint16(b[2:4], flags)
	binary.LittleEndian.PutUint16(b[4:6], c.Mark)

	f := b[headerLen:]
	f[0] = c.Protocol
	f[1] = c.TCPFlags
	f[2] = c.Tos
	binary.LittleEndian.PutUint16(f[4:6], c.SrcPort)
	binary.LittleEndian.PutUint16(f[6:8], c.DstPort)
	binary.LittleEndian.PutUint16(f[8:10], c.Input)
	binary.LittleEndian.PutUint16(f[10:12], c.Output)
	binary.LittleEndian.PutUint16(f[12:14], c.SrcAS)
	binary.LittleEndian.PutUint16(f[14:16], c.DstAS)
	binary.LittleEndian.PutUint32(f[16:20], c.First)
	binary.LittleEndian.PutUint32(f[20:24], c.Last)
	binary.LittleEndian.PutUint16(f[24:26], c.MsecFirst)
	binary.LittleEndian.PutUint16(f[26:28], c.MsecLast)
	binary.LittleEndian.PutUint32(f[28:32], c.NumPkts)
	binary.LittleEndian.PutUint32(f[32:36], c.NumOctets)

	addr := f[fixedLen:]
	if c.Family == IPv6 {
		copy(addr[0:16], c.SrcIP6[:])
		copy(addr[16:32], c.DstIP6[:])
		copy(addr[v6AddrLen:], c.Extra)
	} else {
		binary.LittleEndian.PutUint32(addr[0:4], c.SrcIP4)
		binary.LittleEndian.PutUint32(addr[4:8], c.DstIP4)
		copy(addr[v4AddrLen:], c.Extra)
	}

	return b
}
