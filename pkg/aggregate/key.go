// Copyright 2019-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package aggregate

import (
	"encoding/binary"

	"github.com/flowdump/nfproc/pkg/record"
)

// keyLen is the fixed width of an encoded key: family(1) + srcip(16) +
// dstip(16) + srcport(2) + dstport(2) + srcas(2) + dstas(2) + proto(1).
// Every record produces a key of this width regardless of which fields
// the mask selects; unselected fields are left zero, which is what
// makes two records differing only in an unselected field collide.
const keyLen = 1 + 16 + 16 + 2 + 2 + 2 + 2 + 1

// key is the masked, fixed-width projection of a master record used
// both as the hash table's bucket-equality comparand and, via xxhash,
// as its bucket index.
type key [keyLen]byte

func computeKey(m Mask, r *record.Master) key {
	var k key
	k[0] = byte(r.Family)

	if m.SrcIP {
		putIP(k[1:17], r, r.SrcIP4, r.SrcIP6, m.SrcIPBits)
	}
	if m.DstIP {
		putIP(k[17:33], r, r.DstIP4, r.DstIP6, m.DstIPBits)
	}
	if m.SrcPort {
		binary.BigEndian.PutUint16(k[33:35], r.SrcPort)
	}
	if m.DstPort {
		binary.BigEndian.PutUint16(k[35:37], r.DstPort)
	}
	if m.SrcAS {
		binary.BigEndian.PutUint16(k[37:39], r.SrcAS)
	}
	if m.DstAS {
		binary.BigEndian.PutUint16(k[39:41], r.DstAS)
	}
	if m.Proto {
		k[41] = r.Protocol
	}
	return k
}

// putIP writes a masked address into a 16-byte key slot. For IPv4, the
// address occupies the low 4 bytes with the top-N bit mask applied over
// those 32 bits; for IPv6, the full 16 bytes are masked over their
// natural bit order. bits == 0 means "full width", matching
// spec.md's srcip/dstip (unqualified) token.
func putIP(dst []byte, r *record.Master, v4 uint32, v6 [16]byte, bits int) {
	if r.Family == record.IPv4 {
		n := bits
		if n == 0 {
			n = 32
		}
		binary.BigEndian.PutUint32(dst[12:16], v4&mask32(n))
		return
	}

	n := bits
	if n == 0 {
		n = 128
	}
	hi := binary.BigEndian.Uint64(v6[0:8]) & maskHi64(n)
	lo := binary.BigEndian.Uint64(v6[8:16]) & maskLo64(n)
	binary.BigEndian.PutUint64(dst[0:8], hi)
	binary.BigEndian.PutUint64(dst[8:16], lo)
}
