// Copyright 2019-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package archive

import (
	"encoding/binary"

	"github.com/flowdump/nfproc/pkg/stats"
)

// trailerLen is the fixed encoded size of a stats.Record on disk: 15
// uint64 counters, two (uint32,uint16) windows, one uint32 block count.
const trailerLen = 15*8 + 2*(4+2) + 4

func encodeTrailer(s *stats.Record) []byte {
	b := make([]byte, trailerLen)
	o := 0
	putU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(b[o:o+8], v)
		o += 8
	}
	putU64(s.NumFlows)
	putU64(s.NumPackets)
	putU64(s.NumOctets)
	putU64(s.NumFlowsICMP)
	putU64(s.NumPacketsICMP)
	putU64(s.NumOctetsICMP)
	putU64(s.NumFlowsTCP)
	putU64(s.NumPacketsTCP)
	putU64(s.NumOctetsTCP)
	putU64(s.NumFlowsUDP)
	putU64(s.NumPacketsUDP)
	putU64(s.NumOctetsUDP)
	putU64(s.NumFlowsOther)
	putU64(s.NumPacketsOther)
	putU64(s.NumOctetsOther)

	binary.LittleEndian.PutUint32(b[o:o+4], s.FirstSeen.Sec)
	o += 4
	binary.LittleEndian.PutUint16(b[o:o+2], s.FirstSeen.Msec)
	o += 2
	binary.LittleEndian.PutUint32(b[o:o+4], s.LastSeen.Sec)
	o += 4
	binary.LittleEndian.PutUint16(b[o:o+2], s.LastSeen.Msec)
	o += 2

	binary.LittleEndian.PutUint32(b[o:o+4], s.NumBlocks)
	return b
}

func decodeTrailer(b []byte) (*stats.Record, error) {
	if len(b) < trailerLen {
		return nil, errNoTrailer
	}
	s := &stats.Record{}
	o := 0
	getU64 := func() uint64 {
		v := binary.LittleEndian.Uint64(b[o : o+8])
		o += 8
		return v
	}
	s.NumFlows = getU64()
	s.NumPackets = getU64()
	s.NumOctets = getU64()
	s.NumFlowsICMP = getU64()
	s.NumPacketsICMP = getU64()
	s.NumOctetsICMP = getU64()
	s.NumFlowsTCP = getU64()
	s.NumPacketsTCP = getU64()
	s.NumOctetsTCP = getU64()
	s.NumFlowsUDP = getU64()
	s.NumPacketsUDP = getU64()
	s.NumOctetsUDP = getU64()
	s.NumFlowsOther = getU64()
	s.NumPacketsOther = getU64()
	s.NumOctetsOther = getU64()

	s.FirstSeen.Sec = binary.LittleEndian.Uint32(b[o : o+4])
	o += 4
	s.FirstSeen.Msec = binary.LittleEndian.Uint16(b[o : o+2])
	o += 2
	s.LastSeen.Sec = binary.LittleEndian.Uint32(b[o : o+4])
	o += 4
	s.LastSeen.Msec = binary.LittleEndian.Uint16(b[o : o+2])
	o += 2

	s.NumBlocks = binary.LittleEndian.Uint32(b[o : o+4])
	return s, nil
}
