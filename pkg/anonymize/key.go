// Copyright 2019-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package anonymize implements prefix-preserving IP anonymization
// (Crypto-PAn, C6) applied either while writing a new archive or while
// rendering output for display.
package anonymize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// KeyLen is the width of a Crypto-PAn key: 16 bytes for the AES cipher
// key, 16 bytes for the pad seed.
const KeyLen = 32

// pbkdf2Salt is fixed rather than per-run random: the passphrase form
// exists so operators can reproduce the same anonymization mapping
// across separate invocations given the same passphrase, which a
// random salt would defeat.
var pbkdf2Salt = []byte("nfproc-cryptopan-v1")

const pbkdf2Iterations = 100000

// ParseKey accepts the two forms nfdump.c's ParseCryptoPAnKey documents
// (a literal 32-character string, or "0x" followed by 64 hex digits)
// plus a supplemental "@<passphrase>" form that derives the 32-byte key
// via PBKDF2-HMAC-SHA256, for operators who would rather not manage a
// raw key file.
func ParseKey(s string) ([KeyLen]byte, error) {
	var key [KeyLen]byte

	switch {
	case strings.HasPrefix(s, "@"):
		derived := pbkdf2.Key([]byte(s[1:]), pbkdf2Salt, pbkdf2Iterations, KeyLen, sha256.New)
		copy(key[:], derived)
		return key, nil

	case len(s) == KeyLen:
		copy(key[:], s)
		return key, nil

	case len(s) == 2+2*KeyLen && strings.HasPrefix(s, "0x"):
		raw, err := hex.DecodeString(s[2:])
		if err != nil {
			return key, fmt.Errorf("anonymize: bad hex key: %w", err)
		}
		copy(key[:], raw)
		return key, nil

	default:
		return key, fmt.Errorf("anonymize: key must be a %d-character string, \"0x\"+%d hex digits, or \"@passphrase\"", KeyLen, 2*KeyLen)
	}
}
