// Copyright 2019-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package archive

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Reader walks the block stream of a single archive file. It owns one
// growable input buffer (never shrunk) capped at MaxBufferSize, per the
// lifecycle described in spec.md §3.
type Reader struct {
	r      io.Reader
	closer io.Closer
	Header *FileHeader

	buf          []byte
	skippedIDs   uint64
	skippedFlows uint64
}

// Open reads the file header from r and returns a Reader positioned at
// the first data block. If gzipped is true, r is wrapped in a gzip
// reader first.
func Open(r io.ReadCloser, gzipped bool) (*Reader, error) {
	var src io.Reader = r
	var closer io.Closer = r

	if gzipped {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		src = gz
		closer = multiCloser{gz, r}
	}

	hb := make([]byte, fileHeaderLen)
	if _, err := io.ReadFull(src, hb); err != nil {
		return nil, fmt.Errorf("archive: reading file header: %w", err)
	}
	h, err := decodeFileHeader(hb)
	if err != nil {
		return nil, err
	}
	if h.Magic != Magic {
		return nil, errBadMagic
	}
	if h.Version != Version {
		return nil, errBadVersion
	}

	return &Reader{
		r:      src,
		closer: closer,
		Header: h,
		buf:    make([]byte, MinReadBuffer),
	}, nil
}

// MinReadBuffer is the reader's initial buffer allocation.
const MinReadBuffer = 64 * 1024

// Close releases the underlying file descriptor(s).
func (rd *Reader) Close() error { return rd.closer.Close() }

// SkippedBlocks reports how many non-DataBlockType1 blocks were
// encountered and skipped so far.
func (rd *Reader) SkippedBlocks() uint64 { return rd.skippedIDs }

// SkippedFlows reports the total record count (block header's
// NumRecords) lost to skipped or oversize blocks so far, per spec.md §7
// item 3 and §8 scenario 6's skipped_flows counter.
func (rd *Reader) SkippedFlows() uint64 { return rd.skippedFlows }

// NextBlock reads the next data block, retrying short reads until the
// declared size is satisfied (spec.md §4.1: "looped until satisfied").
// It returns io.EOF when the stream is cleanly exhausted. Blocks whose id
// is not DataBlockType1 are skipped and NextBlock is retried internally.
// A declared block size above MaxBufferSize is reported as *ErrCorrupt
// and the file should be abandoned.
func (rd *Reader) NextBlock() (numRecords int, payload []byte, err error) {
	for {
		var hb [blockHeaderLen]byte
		if _, err := io.ReadFull(rd.r, hb[:]); err != nil {
			if err == io.EOF {
				return 0, nil, io.EOF
			}
			return 0, nil, fmt.Errorf("archive: reading block header: %w", err)
		}
		bh := decodeBlockHeader(hb[:])

		if bh.Size > MaxBufferSize {
			rd.skippedFlows += uint64(bh.NumRecords)
			return 0, nil, &ErrCorrupt{Err: fmt.Errorf("%w: %d > %d", errBlockTooLarge, bh.Size, MaxBufferSize)}
		}
		if int(bh.Size) > cap(rd.buf) {
			rd.buf = make([]byte, bh.Size)
		}
		block := rd.buf[:bh.Size]
		if _, err := io.ReadFull(rd.r, block); err != nil {
			return 0, nil, fmt.Errorf("archive: short read for block payload: %w", err)
		}

		if bh.ID != DataBlockType1 {
			rd.skippedIDs++
			rd.skippedFlows += uint64(bh.NumRecords)
			continue
		}

		return int(bh.NumRecords), block, nil
	}
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
