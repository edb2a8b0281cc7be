// Copyright 2019-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/flowdump/nfproc/pkg/record"
	"github.com/flowdump/nfproc/pkg/stats"
)

// Writer accumulates records into a fixed-size staging buffer and
// flushes it as a single block once it exceeds OutputFlushLimit, then
// finalizes the file with a summary trailer on Close (C1 writer
// contract, spec.md §4.1).
//
// Writing to Stdout streams the header and blocks with no trailer, per
// spec.md's "-" sink behavior.
type Writer struct {
	w         io.Writer
	wc        io.Closer
	tmpPath   string
	finalPath string

	staging []byte
	nRecs   uint32
	blocks  uint32

	gz *gzip.Writer

	closed bool
}

// CreateStdout opens a writer that streams to w (normally os.Stdout)
// with no trailer and no temp-file staging.
func CreateStdout(w io.Writer, ident string) (*Writer, error) {
	wr := &Writer{w: w, staging: make([]byte, 0, OutputFlushLimit*2)}
	if err := wr.writeHeader(ident); err != nil {
		return nil, err
	}
	return wr, nil
}

// Create opens path for writing, staging to a uniquely named temp file
// in the same directory and renaming onto path only on a successful
// Close. This means a crash or write error during the run never leaves
// a corrupt or partial file visible at path — only an orphaned temp
// file, which a cleanup pass can recognize by its ".nfproc-*.tmp" name.
func Create(path string, ident string, gzipped bool) (*Writer, error) {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".nfproc-%s.tmp", uuid.NewString()))

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}

	wr := &Writer{
		w:         f,
		wc:        f,
		tmpPath:   tmp,
		finalPath: path,
		staging:   make([]byte, 0, OutputFlushLimit*2),
	}

	if gzipped {
		gz := gzip.NewWriter(f)
		wr.w = gz
		wr.gz = gz
	}

	if err := wr.writeHeader(ident); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, err
	}
	return wr, nil
}

func (wr *Writer) writeHeader(ident string) error {
	h := &FileHeader{Magic: Magic, Version: Version}
	setIdent(&h.Ident, ident)
	_, err := wr.w.Write(h.encode())
	return err
}

// WriteRecord appends one encoded common record to the staging buffer,
// flushing a block first if appending would exceed OutputFlushLimit.
func (wr *Writer) WriteRecord(c *record.Common) error {
	enc := c.Encode()
	if len(wr.staging)+len(enc) > OutputFlushLimit && wr.nRecs > 0 {
		if err := wr.flush(); err != nil {
			return err
		}
	}
	wr.staging = append(wr.staging, enc...)
	wr.nRecs++
	return nil
}

func (wr *Writer) flush() error {
	if wr.nRecs == 0 {
		return nil
	}
	bh := blockHeader{Size: uint32(len(wr.staging)), NumRecords: wr.nRecs, ID: DataBlockType1}
	if _, err := wr.w.Write(bh.encode()); err != nil {
		return fmt.Errorf("archive: failed to write output buffer to disk: %w", err)
	}
	if _, err := wr.w.Write(wr.staging); err != nil {
		return fmt.Errorf("archive: failed to write output buffer to disk: %w", err)
	}
	wr.blocks++
	wr.staging = wr.staging[:0]
	wr.nRecs = 0
	return nil
}

// Close flushes any partial block, writes the summary trailer (unless
// this writer targets stdout), and atomically renames the staged temp
// file onto its final path.
//
// A write failure during Close leaves the temp file in place (never
// renamed onto the final path) so the absence of the final file, or of
// its trailer, makes a partial run detectable (spec.md §7).
func (wr *Writer) Close(sum *stats.Record) error {
	if wr.closed {
		return nil
	}
	wr.closed = true

	if err := wr.flush(); err != nil {
		return wr.abort(err)
	}

	if wr.finalPath != "" {
		sum.NumBlocks = wr.blocks
		if _, err := wr.w.Write(encodeTrailer(sum)); err != nil {
			return wr.abort(fmt.Errorf("archive: failed to write summary trailer: %w", err))
		}
	}

	if wr.gz != nil {
		if err := wr.gz.Close(); err != nil {
			return wr.abort(err)
		}
	}
	if wr.wc != nil {
		if err := wr.wc.Close(); err != nil {
			return wr.abort(err)
		}
	}

	if wr.finalPath != "" {
		if err := os.Rename(wr.tmpPath, wr.finalPath); err != nil {
			return err
		}
	}
	return nil
}

func (wr *Writer) abort(cause error) error {
	if wr.wc != nil {
		wr.wc.Close()
	}
	return cause
}
