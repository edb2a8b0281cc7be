// Copyright 2019-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package orchestrator

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/flowdump/nfproc/pkg/aggregate"
	"github.com/flowdump/nfproc/pkg/anonymize"
	"github.com/flowdump/nfproc/pkg/archive"
	"github.com/flowdump/nfproc/pkg/fileseq"
	"github.com/flowdump/nfproc/pkg/filter"
	"github.com/flowdump/nfproc/pkg/format"
	"github.com/flowdump/nfproc/pkg/minilog"
	"github.com/flowdump/nfproc/pkg/record"
	"github.com/flowdump/nfproc/pkg/stats"
)

// run bundles the state Run closes its per-record dispatch over, so
// that state doesn't have to travel through every helper's argument
// list by hand.
type run struct {
	cfg  Config
	mode mode

	filter     *filter.Filter
	anonymizer *anonymize.Anonymizer
	aggTbl     *aggregate.Table
	writer     *archive.Writer
	renderer   *format.Compiled
	out        io.Writer

	dateSortBuf []dateSortEntry

	sum    stats.Record
	passed uint64
	limit  uint64
}

// dateSortEntry pairs a record with its on-disk encoding, so the "raw"
// output format still has bytes to hex-dump once date-sort mode has
// buffered every record for global reordering.
type dateSortEntry struct {
	m   *record.Master
	raw []byte
}

// Run drives one full pass over cfg.InputPaths and returns the
// accumulated summary statistics. The returned error, if any, should be
// classified by the caller into the exit-code taxonomy of spec.md §6/§7
// (cmd/nfproc does this — Run itself only returns plain errors).
func Run(cfg Config) (stats.Record, error) {
	r := &run{cfg: cfg, mode: cfg.mode(), out: cfg.writer(), limit: cfg.Limit}

	var err error
	r.filter, err = filter.Compile(cfg.FilterExpr)
	if err != nil {
		return r.sum, fmt.Errorf("filter compile: %w", err)
	}

	if cfg.AnonymizeKey != "" {
		key, err := anonymize.ParseKey(cfg.AnonymizeKey)
		if err != nil {
			return r.sum, fmt.Errorf("anonymize key: %w", err)
		}
		r.anonymizer, err = anonymize.New(key)
		if err != nil {
			return r.sum, fmt.Errorf("anonymize init: %w", err)
		}
	}

	if r.mode == modeAggregate || r.mode == modeElementStat {
		mask, err := cfg.aggregateMask()
		if err != nil {
			return r.sum, err
		}
		r.aggTbl = aggregate.New(mask)
	}

	if r.mode == modeWrite {
		if cfg.WritePath == "-" {
			r.writer, err = archive.CreateStdout(r.out, cfg.Ident)
		} else {
			r.writer, err = archive.Create(cfg.WritePath, cfg.Ident, cfg.WriteGzip)
		}
		if err != nil {
			return r.sum, fmt.Errorf("archive create: %w", err)
		}
	}

	if r.mode != modeWrite {
		formatName := cfg.FormatName
		if formatName == "" {
			formatName = "line"
		}
		if cfg.V6Wide && !strings.HasSuffix(formatName, "6") && formatName != "raw" {
			formatName += "6"
		}
		r.renderer, err = format.Compile(formatName)
		if err != nil {
			return r.sum, fmt.Errorf("format compile: %w", err)
		}
	}

	if err := r.processAll(); err != nil {
		return r.sum, err
	}

	if r.writer != nil {
		if err := r.writer.Close(&r.sum); err != nil {
			return r.sum, fmt.Errorf("archive close: %w", err)
		}
		return r.sum, nil
	}

	r.finish()
	return r.sum, nil
}

func (r *run) processAll() error {
	seq := fileseq.New(r.cfg.InputPaths, r.cfg.TwinStart, r.cfg.TwinEnd)
	anySucceeded := false

	if r.mode == modeDirectPrint && !r.cfg.Quiet && !r.cfg.StatOnly {
		io.WriteString(r.out, r.renderer.Header()+"\n")
	}

	for {
		if r.limit > 0 && r.passed >= r.limit {
			break
		}
		rc, path, ok := seq.Next()
		if !ok {
			break
		}
		if r.processOneFile(rc, path) {
			anySucceeded = true
		}
		rc.Close()
	}

	if len(r.cfg.InputPaths) > 0 && !anySucceeded {
		return errors.New("orchestrator: no input file could be read")
	}
	return nil
}

// processOneFile walks every block/record of one already-opened archive
// and dispatches accepted records per the orchestrator's mode. It
// returns true if the file was read far enough to count as a success
// (spec.md §7's "I/O errors on read... never abort the whole run unless
// no files succeed").
func (r *run) processOneFile(rc io.ReadCloser, path string) bool {
	rd, err := archive.Open(rc, strings.HasSuffix(path, ".gz"))
	if err != nil {
		minilog.Error("orchestrator: opening %s: %v", path, err)
		return false
	}
	defer rd.Close()
	defer func() { r.sum.SkippedFlows += rd.SkippedFlows() }()

	for {
		if r.limit > 0 && r.passed >= r.limit {
			break
		}

		num, payload, err := rd.NextBlock()
		if err == io.EOF {
			break
		}
		var ce *archive.ErrCorrupt
		if errors.As(err, &ce) {
			minilog.Error("orchestrator: corrupt block in %s: %v, skipping rest of file", path, err)
			break
		}
		if err != nil {
			minilog.Error("orchestrator: reading %s: %v", path, err)
			break
		}

		off := 0
		for i := 0; i < num; i++ {
			c, adv, err := record.Decode(payload[off:])
			if err != nil {
				minilog.Error("orchestrator: corrupt record in %s: %v, skipping rest of file", path, err)
				return true
			}
			off += adv

			m := record.Expand(c)
			if !r.filter.Eval(m) {
				continue
			}
			if r.cfg.MinPackets > 0 && m.NumPackets < r.cfg.MinPackets {
				continue
			}
			if r.cfg.MinBytes > 0 && m.NumOctets < r.cfg.MinBytes {
				continue
			}

			r.sum.Update(m)
			r.passed++
			r.dispatch(m, c)

			if r.limit > 0 && r.passed >= r.limit {
				return true
			}
		}
	}

	return true
}

func (r *run) dispatch(m *record.Master, c *record.Common) {
	switch r.mode {
	case modeWrite:
		if r.anonymizer != nil {
			anonymizeCommon(r.anonymizer, c)
		}
		if !r.cfg.ZeroFlows {
			if err := r.writer.WriteRecord(c); err != nil {
				minilog.Error("orchestrator: writing record: %v", err)
			}
		}
	case modeAggregate, modeElementStat:
		r.aggTbl.Insert(m, c.Encode())
	case modeDateSort:
		r.dateSortBuf = append(r.dateSortBuf, dateSortEntry{m: m, raw: c.Encode()})
	case modeDirectPrint:
		if !r.cfg.StatOnly {
			io.WriteString(r.out, r.renderer.Render(directRow(m), c.Encode())+"\n")
		}
	}
}

func (r *run) finish() {
	switch r.mode {
	case modeAggregate, modeElementStat:
		order, err := aggregate.ParseOrder(r.cfg.OrderBy)
		if err != nil {
			minilog.Error("orchestrator: %v, defaulting to flows order", err)
			order = aggregate.OrderFlows
		}
		n := r.cfg.TopN
		if n == 0 {
			n = 1000
		}
		if !r.cfg.StatOnly {
			if !r.cfg.Quiet {
				io.WriteString(r.out, r.renderer.Header()+"\n")
			}
			for _, e := range r.aggTbl.TopN(order, n) {
				io.WriteString(r.out, r.renderer.Render(entryRow(e), e.RepRaw)+"\n")
			}
		}

	case modeDateSort:
		sort.SliceStable(r.dateSortBuf, func(i, j int) bool {
			if r.dateSortBuf[i].m.First != r.dateSortBuf[j].m.First {
				return r.dateSortBuf[i].m.First < r.dateSortBuf[j].m.First
			}
			return r.dateSortBuf[i].m.MsecFirst < r.dateSortBuf[j].m.MsecFirst
		})
		if !r.cfg.StatOnly {
			if !r.cfg.Quiet {
				io.WriteString(r.out, r.renderer.Header()+"\n")
			}
			for _, e := range r.dateSortBuf {
				io.WriteString(r.out, r.renderer.Render(directRow(e.m), e.raw)+"\n")
			}
		}
	}

	if !r.cfg.Quiet {
		printSummary(r.out, &r.sum)
	}
}

func anonymizeCommon(a *anonymize.Anonymizer, c *record.Common) {
	if c.Family == record.IPv4 {
		c.SrcIP4 = a.AnonymizeV4(c.SrcIP4)
		c.DstIP4 = a.AnonymizeV4(c.DstIP4)
		return
	}
	c.SrcIP6 = a.AnonymizeV6(c.SrcIP6)
	c.DstIP6 = a.AnonymizeV6(c.DstIP6)
}

func directRow(m *record.Master) format.Row {
	ms := int64(m.Last-m.First)*1000 + int64(m.MsecLast) - int64(m.MsecFirst)
	if ms < 0 {
		ms = 0
	}
	row := format.Row{M: m}
	if ms > 0 {
		row.BPS = (m.NumOctets * 8 * 1000) / uint64(ms)
		row.PPS = (m.NumPackets * 1000) / uint64(ms)
	}
	if m.NumPackets > 0 {
		row.BPP = m.NumOctets / m.NumPackets
	}
	return row
}

func entryRow(e *aggregate.Entry) format.Row {
	m := *e.Rep
	m.NumPackets = e.Packets
	m.NumOctets = e.Octets
	m.First, m.MsecFirst = e.First.Sec, e.First.Msec
	m.Last, m.MsecLast = e.Last.Sec, e.Last.Msec
	m.TCPFlags = e.TCPFlags
	return format.Row{M: &m, BPS: e.BitsPerSecond(), PPS: e.PacketsPerSecond(), BPP: e.BytesPerPacket()}
}

func printSummary(w io.Writer, s *stats.Record) {
	fmt.Fprintf(w, "Summary: total flows: %d, total bytes: %d, total packets: %d, avg bps: %d, avg pps: %d, avg bpp: %d, skipped flows: %d\n",
		s.NumFlows, s.NumOctets, s.NumPackets, s.BitsPerSecond(), s.PacketsPerSecond(), s.BytesPerPacket(), s.SkippedFlows)
}
