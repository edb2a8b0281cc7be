package orchestrator

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flowdump/nfproc/pkg/archive"
	"github.com/flowdump/nfproc/pkg/record"
	"github.com/flowdump/nfproc/pkg/stats"
)

func writeSampleArchive(t *testing.T, path string, n int) {
	t.Helper()
	wr, err := archive.Create(path, "test", false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < n; i++ {
		proto := uint8(stats.ProtoTCP)
		if i%2 == 0 {
			proto = stats.ProtoUDP
		}
		c := &record.Common{
			Family:    record.IPv4,
			Protocol:  proto,
			SrcPort:   uint16(53),
			DstPort:   uint16(1000 + i),
			NumPkts:   uint32(i + 1),
			NumOctets: uint32((i + 1) * 100),
			First:     uint32(1000 + i),
			Last:      uint32(1001 + i),
			SrcIP4:    0x0a000001,
			DstIP4:    0x0a000002,
		}
		if err := wr.WriteRecord(c); err != nil {
			t.Fatalf("WriteRecord: %v", err)
		}
	}
	if err := wr.Close(&stats.Record{}); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPassThroughCopy(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.nf")
	out := filepath.Join(dir, "out.nf")
	writeSampleArchive(t, in, 100)

	sum, err := Run(Config{
		InputPaths: []string{in},
		WritePath:  out,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.NumFlows != 100 {
		t.Fatalf("NumFlows = %d, want 100", sum.NumFlows)
	}
	if sum.NumFlowsTCP != 50 || sum.NumFlowsUDP != 50 {
		t.Fatalf("tcp/udp split = %d/%d, want 50/50", sum.NumFlowsTCP, sum.NumFlowsUDP)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	rd, err := archive.Open(f, false)
	if err != nil {
		t.Fatalf("archive.Open: %v", err)
	}
	count := 0
	for {
		num, _, err := rd.NextBlock()
		if err != nil {
			break
		}
		count += num
	}
	if count != 100 {
		t.Fatalf("output record count = %d, want 100", count)
	}
}

func TestFilterAndCount(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.nf")
	writeSampleArchive(t, in, 20)

	var buf bytes.Buffer
	sum, err := Run(Config{
		InputPaths: []string{in},
		FilterExpr: "proto udp and src port 53",
		Output:     &buf,
		Quiet:      true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.NumFlows != 10 {
		t.Fatalf("NumFlows = %d, want 10 (only even-indexed udp/53 records)", sum.NumFlows)
	}
	if sum.NumFlowsTCP != 0 {
		t.Fatalf("NumFlowsTCP = %d, want 0", sum.NumFlowsTCP)
	}
}

func TestAggregateMode(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.nf")
	writeSampleArchive(t, in, 10)

	var buf bytes.Buffer
	sum, err := Run(Config{
		InputPaths:    []string{in},
		AggregateExpr: "srcip",
		Output:        &buf,
		Quiet:         true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.NumFlows != 10 {
		t.Fatalf("NumFlows = %d, want 10", sum.NumFlows)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected aggregate output to be rendered")
	}
}

func TestLimitFlowsStopsRun(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.nf")
	writeSampleArchive(t, in, 50)

	var buf bytes.Buffer
	sum, err := Run(Config{
		InputPaths: []string{in},
		Limit:      5,
		Output:     &buf,
		Quiet:      true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.NumFlows != 5 {
		t.Fatalf("NumFlows = %d, want 5", sum.NumFlows)
	}
}

func TestZeroFlowsWritesOnlyTrailer(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.nf")
	out := filepath.Join(dir, "out.nf")
	writeSampleArchive(t, in, 10)

	sum, err := Run(Config{
		InputPaths: []string{in},
		WritePath:  out,
		ZeroFlows:  true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.NumFlows != 10 {
		t.Fatalf("NumFlows = %d, want 10 (accumulator still runs)", sum.NumFlows)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	rd, err := archive.Open(f, false)
	if err != nil {
		t.Fatalf("archive.Open: %v", err)
	}
	if _, _, err := rd.NextBlock(); err == nil {
		t.Fatalf("expected no data blocks when zero_flows is set")
	}
}

func TestAnonymizeRewritesAddressesOnWrite(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.nf")
	out := filepath.Join(dir, "out.nf")
	writeSampleArchive(t, in, 5)

	_, err := Run(Config{
		InputPaths:   []string{in},
		WritePath:    out,
		AnonymizeKey: "abcdefghijklmnopqrstuvwxyz012345",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	rd, err := archive.Open(f, false)
	if err != nil {
		t.Fatalf("archive.Open: %v", err)
	}
	num, payload, err := rd.NextBlock()
	if err != nil || num == 0 {
		t.Fatalf("NextBlock: num=%d err=%v", num, err)
	}
	c, _, err := record.Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if c.SrcIP4 == 0x0a000001 {
		t.Fatalf("expected source address to be anonymized, got unchanged value")
	}
}

func TestStatOnlySuppressesRecordOutput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.nf")
	writeSampleArchive(t, in, 10)

	var buf bytes.Buffer
	sum, err := Run(Config{
		InputPaths: []string{in},
		StatOnly:   true,
		Output:     &buf,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.NumFlows != 10 {
		t.Fatalf("NumFlows = %d, want 10", sum.NumFlows)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "Summary:") {
		t.Fatalf("expected exactly one Summary line, got %q", buf.String())
	}
}

// encodeBogusBlockHeader builds the wire bytes of a data block header
// (spec.md §6: 4×u32 size, num_records, id, pad) naming a block id this
// reader never recognizes, so NextBlock skips it and folds its declared
// record count into skipped_flows.
func encodeBogusBlockHeader(size, numRecords, id uint32) []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint32(b[0:4], size)
	binary.LittleEndian.PutUint32(b[4:8], numRecords)
	binary.LittleEndian.PutUint32(b[8:12], id)
	return b
}

// TestCorruptBlockIncrementsSkippedFlows covers spec.md §8 scenario 6 at
// the orchestrator level: a bogus block spliced into an otherwise-valid
// archive is skipped and logged, every real record around it is still
// counted, and the summary's skipped-flows counter reflects the bogus
// block's own record count.
func TestCorruptBlockIncrementsSkippedFlows(t *testing.T) {
	dir := t.TempDir()
	clean := filepath.Join(dir, "clean.nf")
	writeSampleArchive(t, clean, 20)

	raw, err := os.ReadFile(clean)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	fileHeaderLen := 2 + 2 + archive.IdentLen + 4
	const bogusID = 99
	const bogusRecords = 7

	var mixed bytes.Buffer
	mixed.Write(raw[:fileHeaderLen])
	mixed.Write(encodeBogusBlockHeader(8, bogusRecords, bogusID))
	mixed.Write(make([]byte, 8)) // bogus block's (unparsed) payload
	mixed.Write(raw[fileHeaderLen:])

	corrupt := filepath.Join(dir, "corrupt.nf")
	if err := os.WriteFile(corrupt, mixed.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var out bytes.Buffer
	sum, err := Run(Config{
		InputPaths: []string{corrupt},
		Output:     &out,
		Quiet:      true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.NumFlows != 20 {
		t.Fatalf("NumFlows = %d, want 20 (bogus block must not swallow real records)", sum.NumFlows)
	}
	if sum.SkippedFlows != bogusRecords {
		t.Fatalf("SkippedFlows = %d, want %d", sum.SkippedFlows, bogusRecords)
	}
}

func TestNoFilesReadIsAnError(t *testing.T) {
	dir := t.TempDir()
	_, err := Run(Config{
		InputPaths: []string{filepath.Join(dir, "does-not-exist.nf")},
		Output:     &bytes.Buffer{},
		Quiet:      true,
	})
	if err == nil {
		t.Fatalf("expected error when no input file can be read")
	}
}
