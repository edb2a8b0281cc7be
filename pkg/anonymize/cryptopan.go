// Copyright 2019-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package anonymize

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"

	"github.com/flowdump/nfproc/pkg/record"
)

// Anonymizer implements Crypto-PAn: a prefix-preserving pseudonymization
// of IP addresses. Two addresses sharing the same top-N bits always
// anonymize to addresses sharing the same top-N bits, for every N up to
// the address width — the same invariant nfdump documents for its own
// "-K" anonymization flag.
//
// There is no third-party Crypto-PAn implementation in the example
// corpus; the block cipher itself is the standard library's
// crypto/aes, used here only as the pseudo-random function the
// algorithm calls for at each bit position.
type Anonymizer struct {
	block cipher.Block
	pad   [aes.BlockSize]byte
}

// New derives an Anonymizer from a 32-byte key: the first 16 bytes seed
// the AES cipher used as the per-bit PRF, the second 16 bytes are
// encrypted once under that cipher to produce the fixed 128-bit pad
// used to fill in the bits beyond whatever prefix is under
// consideration at each step.
func New(key [KeyLen]byte) (*Anonymizer, error) {
	block, err := aes.NewCipher(key[:16])
	if err != nil {
		return nil, err
	}
	a := &Anonymizer{block: block}
	block.Encrypt(a.pad[:], key[16:32])
	return a, nil
}

// anonymizeBits runs the bit-by-bit cascade over addr (nBits wide,
// left-justified in a 16-byte big-endian buffer) and returns the
// anonymized address in the same representation.
func (a *Anonymizer) anonymizeBits(addr [16]byte, nBits int) [16]byte {
	var result [16]byte
	var block [aes.BlockSize]byte
	var out [aes.BlockSize]byte

	for pos := 0; pos < nBits; pos++ {
		overlayPrefix(&block, a.pad, addr, pos)
		a.block.Encrypt(out[:], block[:])

		origBit := bitAt(addr[:], pos)
		flip := out[0] >> 7
		setBit(result[:], pos, origBit^flip)
	}
	return result
}

// overlayPrefix fills dst with the first nBits bits of addr followed by
// the corresponding bits of pad, matching bits per bit position rather
// than per byte so the cascade is exact at any bit width.
func overlayPrefix(dst *[aes.BlockSize]byte, pad, addr [16]byte, nBits int) {
	*dst = pad
	full := nBits / 8
	copy(dst[:full], addr[:full])
	if rem := nBits % 8; rem > 0 {
		mask := byte(0xFF << (8 - rem))
		dst[full] = (addr[full] & mask) | (dst[full] &^ mask)
	}
}

func bitAt(b []byte, pos int) byte {
	return (b[pos/8] >> (7 - uint(pos%8))) & 1
}

func setBit(b []byte, pos int, v byte) {
	shift := 7 - uint(pos%8)
	if v&1 != 0 {
		b[pos/8] |= 1 << shift
	} else {
		b[pos/8] &^= 1 << shift
	}
}

// AnonymizeV4 returns the anonymized form of a 32-bit IPv4 address.
func (a *Anonymizer) AnonymizeV4(addr uint32) uint32 {
	var buf [16]byte
	binary.BigEndian.PutUint32(buf[0:4], addr)
	out := a.anonymizeBits(buf, 32)
	return binary.BigEndian.Uint32(out[0:4])
}

// AnonymizeV6 returns the anonymized form of a 128-bit IPv6 address.
func (a *Anonymizer) AnonymizeV6(addr [16]byte) [16]byte {
	return a.anonymizeBits(addr, 128)
}

// Apply anonymizes m's source and destination addresses in place,
// dispatching on Family so callers never need to branch on address
// width themselves.
func (a *Anonymizer) Apply(m *record.Master) {
	if m.Family == record.IPv4 {
		m.SrcIP4 = a.AnonymizeV4(m.SrcIP4)
		m.DstIP4 = a.AnonymizeV4(m.DstIP4)
		return
	}
	m.SrcIP6 = a.AnonymizeV6(m.SrcIP6)
	m.DstIP6 = a.AnonymizeV6(m.DstIP6)
}
