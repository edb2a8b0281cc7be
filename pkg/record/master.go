// Copyright 2019-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package record

// Master is the fixed-width, promoted-widths in-memory view of a common
// record: the evaluation context handed to the filter and aggregation
// engines. Both address pairs are always present as their natural Go
// widths; Family selects which one is meaningful, following the redesign
// note to model the on-disk family flag as a tagged union rather than a
// bit test sprinkled through every consumer.
type Master struct {
	Family Family

	SrcIP4 uint32
	DstIP4 uint32
	SrcIP6 [16]byte
	DstIP6 [16]byte

	Protocol uint8
	TCPFlags uint8
	Tos      uint8

	SrcPort uint16
	DstPort uint16
	Input   uint16
	Output  uint16
	SrcAS   uint16
	DstAS   uint16

	First     uint32
	Last      uint32
	MsecFirst uint16
	MsecLast  uint16

	NumPackets uint64
	NumOctets  uint64
}

// Expand promotes a decoded on-disk Common record into a Master record.
// Field widths are widened with no endianness reinterpretation: the
// decode step in Common already normalized byte order.
func Expand(c *Common) *Master {
	return &Master{
		Family:     c.Family,
		SrcIP4:     c.SrcIP4,
		DstIP4:     c.DstIP4,
		SrcIP6:     c.SrcIP6,
		DstIP6:     c.DstIP6,
		Protocol:   c.Protocol,
		TCPFlags:   c.TCPFlags,
		Tos:        c.Tos,
		SrcPort:    c.SrcPort,
		DstPort:    c.DstPort,
		Input:      c.Input,
		Output:     c.Output,
		SrcAS:      c.SrcAS,
		DstAS:      c.DstAS,
		First:      c.First,
		Last:       c.Last,
		MsecFirst:  c.MsecFirst,
		MsecLast:   c.MsecLast,
		NumPackets: uint64(c.NumPkts),
		NumOctets:  uint64(c.NumOctets),
	}
}

// SrcIP6Hi/SrcIP6Lo and DstIP6Hi/DstIP6Lo return the two halves of the
// 128-bit address as big-endian uint64s, used by the aggregation engine
// for subnet masking split across two words. For a v4 record these
// report the v4 address in the low bits of the low word, zero elsewhere,
// matching spec.md's "v4 addresses live in the low 32 bits" invariant.
func (m *Master) SrcIP6Hi() uint64 {
	if m.Family == IPv4 {
		return 0
	}
	return be64(m.SrcIP6[0:8])
}

func (m *Master) SrcIP6Lo() uint64 {
	if m.Family == IPv4 {
		return uint64(m.SrcIP4)
	}
	return be64(m.SrcIP6[8:16])
}

func (m *Master) DstIP6Hi() uint64 {
	if m.Family == IPv4 {
		return 0
	}
	return be64(m.DstIP6[0:8])
}

func (m *Master) DstIP6Lo() uint64 {
	if m.Family == IPv4 {
		return uint64(m.DstIP4)
	}
	return be64(m.DstIP6[8:16])
}

func be64(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}
