package archive

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/flowdump/nfproc/pkg/record"
	"github.com/flowdump/nfproc/pkg/stats"
)

func sampleCommon(n uint32) *record.Common {
	return &record.Common{
		Family:    record.IPv4,
		First:     1000 + n,
		Last:      1001 + n,
		SrcPort:   80,
		DstPort:   443,
		Protocol:  stats.ProtoTCP,
		NumPkts:   n + 1,
		NumOctets: (n + 1) * 100,
		SrcIP4:    0x0a000000 | n,
		DstIP4:    0x0a000100 | n,
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.nf")

	wr, err := Create(path, "test-ident", false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	const n = 5000
	for i := 0; i < n; i++ {
		if err := wr.WriteRecord(sampleCommon(uint32(i))); err != nil {
			t.Fatalf("WriteRecord: %v", err)
		}
	}
	sum := &stats.Record{NumFlows: n}
	if err := wr.Close(sum); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	rd, err := Open(f, false)
	if err != nil {
		t.Fatalf("archive.Open: %v", err)
	}
	defer rd.Close()

	if rd.Header.IdentString() != "test-ident" {
		t.Fatalf("ident mismatch: %q", rd.Header.IdentString())
	}

	count := 0
	for {
		num, payload, err := rd.NextBlock()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextBlock: %v", err)
		}
		off := 0
		for i := 0; i < num; i++ {
			c, adv, err := record.Decode(payload[off:])
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if c.NumPkts != uint32(count+1) {
				t.Fatalf("record %d packets = %d, want %d", count, c.NumPkts, count+1)
			}
			off += adv
			count++
		}
	}
	if count != n {
		t.Fatalf("read %d records, want %d", count, n)
	}
	if rd.SkippedBlocks() != 0 {
		t.Fatalf("unexpected skipped blocks: %d", rd.SkippedBlocks())
	}
}

func TestStdoutSinkHasNoTrailer(t *testing.T) {
	var buf bytes.Buffer
	wr, err := CreateStdout(&buf, "pipe")
	if err != nil {
		t.Fatalf("CreateStdout: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := wr.WriteRecord(sampleCommon(uint32(i))); err != nil {
			t.Fatalf("WriteRecord: %v", err)
		}
	}
	if err := wr.Close(&stats.Record{}); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rd, err := Open(io.NopCloser(&buf), false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	num, _, err := rd.NextBlock()
	if err != nil {
		t.Fatalf("NextBlock: %v", err)
	}
	if num != 3 {
		t.Fatalf("num = %d, want 3", num)
	}
	if _, _, err := rd.NextBlock(); err != io.EOF {
		t.Fatalf("expected EOF after sole block, got %v", err)
	}
}

// shortReadConn dribbles bytes out a few at a time to exercise the
// reader's io.ReadFull-based short-read recovery.
type shortReadConn struct {
	data []byte
	pos  int
}

func (s *shortReadConn) Read(p []byte) (int, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	n := 3
	if n > len(p) {
		n = len(p)
	}
	if s.pos+n > len(s.data) {
		n = len(s.data) - s.pos
	}
	copy(p, s.data[s.pos:s.pos+n])
	s.pos += n
	return n, nil
}

func TestShortReadRecovery(t *testing.T) {
	var buf bytes.Buffer
	wr, err := CreateStdout(&buf, "dribble")
	if err != nil {
		t.Fatalf("CreateStdout: %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := wr.WriteRecord(sampleCommon(uint32(i))); err != nil {
			t.Fatalf("WriteRecord: %v", err)
		}
	}
	if err := wr.Close(&stats.Record{}); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rd, err := Open(io.NopCloser(&shortReadConn{data: buf.Bytes()}), false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	num, payload, err := rd.NextBlock()
	if err != nil {
		t.Fatalf("NextBlock: %v", err)
	}
	if num != 10 {
		t.Fatalf("num = %d, want 10", num)
	}
	if len(payload) == 0 {
		t.Fatalf("empty payload")
	}
}

func TestCorruptBlockSkipped(t *testing.T) {
	var buf bytes.Buffer
	wr, err := CreateStdout(&buf, "skip-me")
	if err != nil {
		t.Fatalf("CreateStdout: %v", err)
	}
	if err := wr.WriteRecord(sampleCommon(0)); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	if err := wr.Close(&stats.Record{}); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw := buf.Bytes()
	bogus := blockHeader{Size: 8, NumRecords: 1, ID: 99}
	mixed := append(append([]byte{}, raw[:fileHeaderLen]...), bogus.encode()...)
	mixed = append(mixed, make([]byte, 8)...)
	mixed = append(mixed, raw[fileHeaderLen:]...)

	rd, err := Open(io.NopCloser(bytes.NewReader(mixed)), false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	num, _, err := rd.NextBlock()
	if err != nil {
		t.Fatalf("NextBlock: %v", err)
	}
	if num != 1 {
		t.Fatalf("num = %d, want 1", num)
	}
	if rd.SkippedBlocks() != 1 {
		t.Fatalf("skipped = %d, want 1", rd.SkippedBlocks())
	}
	if rd.SkippedFlows() != 1 {
		t.Fatalf("skipped flows = %d, want 1 (the bogus block's NumRecords)", rd.SkippedFlows())
	}
}

// TestSkippedFlowsCountsRecordsNotBlocks covers spec.md §8 scenario 6: a
// block with id != DATA_BLOCK_TYPE_1 is skipped and logged, processing
// continues with subsequent blocks, and skipped_flows is incremented by
// the skipped block's own record count rather than by one per block.
func TestSkippedFlowsCountsRecordsNotBlocks(t *testing.T) {
	var hdr FileHeader
	hdr.Magic, hdr.Version = Magic, Version
	var buf bytes.Buffer
	buf.Write(hdr.encode())

	bogus := blockHeader{Size: 8, NumRecords: 42, ID: 99}
	buf.Write(bogus.encode())
	buf.Write(make([]byte, 8))

	good := blockHeader{Size: 0, NumRecords: 0, ID: DataBlockType1}
	buf.Write(good.encode())

	rd, err := Open(io.NopCloser(&buf), false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	num, _, err := rd.NextBlock()
	if err != nil {
		t.Fatalf("NextBlock: %v", err)
	}
	if num != 0 {
		t.Fatalf("num = %d, want 0", num)
	}
	if rd.SkippedBlocks() != 1 {
		t.Fatalf("skipped blocks = %d, want 1", rd.SkippedBlocks())
	}
	if rd.SkippedFlows() != 42 {
		t.Fatalf("skipped flows = %d, want 42", rd.SkippedFlows())
	}
}

func TestOversizedBlockReportsCorrupt(t *testing.T) {
	var hdr FileHeader
	hdr.Magic, hdr.Version = Magic, Version
	var buf bytes.Buffer
	buf.Write(hdr.encode())
	bh := blockHeader{Size: MaxBufferSize + 1, NumRecords: 1, ID: DataBlockType1}
	buf.Write(bh.encode())

	rd, err := Open(io.NopCloser(&buf), false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, _, err = rd.NextBlock()
	var ce *ErrCorrupt
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ErrCorrupt, got %T: %v", err, err)
	}
}
