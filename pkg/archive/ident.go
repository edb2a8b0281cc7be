// Copyright 2019-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package archive

import "os"

// identOffset is the byte offset of the Ident field within the encoded
// file header: magic(2) + version(2).
const identOffset = 4

// RewriteIdent overwrites the file header's identifier in place without
// touching the rest of the archive, mirroring nfdump's "-i" early-exit
// path that rewrites only the header and leaves every block untouched.
func RewriteIdent(path string, ident string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	hb := make([]byte, fileHeaderLen)
	if _, err := f.ReadAt(hb, 0); err != nil {
		return err
	}
	h, err := decodeFileHeader(hb)
	if err != nil {
		return err
	}
	if h.Magic != Magic {
		return errBadMagic
	}

	var buf [IdentLen]byte
	setIdent(&buf, ident)
	_, err = f.WriteAt(buf[:], identOffset)
	return err
}
