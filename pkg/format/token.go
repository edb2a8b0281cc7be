// Copyright 2019-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package format implements the C7 output formatter: a format string
// compiled once into a sequence of literal spans and token renderers,
// applied per record, mirroring nfdump.c's ParseOutputFormat +
// format_special split between a populated global printmap and a
// per-record render pass.
package format

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/flowdump/nfproc/pkg/record"
)

// Row is the per-record rendering context: the master record plus the
// derived rates a handful of tokens need, computed once per record by
// the caller rather than recomputed per token.
type Row struct {
	M   *record.Master
	BPS uint64
	PPS uint64
	BPP uint64
}

// tokenFunc renders one token's column for a row. v6Long widens address
// columns when set, matching the format's "6" suffix mode.
type tokenFunc func(r Row, v6Long bool) string

var tokenTable = map[string]tokenFunc{
	"ts":  func(r Row, _ bool) string { return renderTime(r.M.First, r.M.MsecFirst) },
	"te":  func(r Row, _ bool) string { return renderTime(r.M.Last, r.M.MsecLast) },
	"td":  func(r Row, _ bool) string { return renderDuration(r.M) },
	"pr":  func(r Row, _ bool) string { return protoName(r.M.Protocol) },
	"sa":  func(r Row, v6 bool) string { return renderAddr(r.M, true, v6) },
	"da":  func(r Row, v6 bool) string { return renderAddr(r.M, false, v6) },
	"sap": func(r Row, v6 bool) string { return renderAddrPort(r.M, true, v6) },
	"dap": func(r Row, v6 bool) string { return renderAddrPort(r.M, false, v6) },
	"sp":  func(r Row, _ bool) string { return strconv.Itoa(int(r.M.SrcPort)) },
	"dp":  func(r Row, _ bool) string { return strconv.Itoa(int(r.M.DstPort)) },
	"sas": func(r Row, _ bool) string { return strconv.Itoa(int(r.M.SrcAS)) },
	"das": func(r Row, _ bool) string { return strconv.Itoa(int(r.M.DstAS)) },
	"in":  func(r Row, _ bool) string { return strconv.Itoa(int(r.M.Input)) },
	"out": func(r Row, _ bool) string { return strconv.Itoa(int(r.M.Output)) },
	"pkt": func(r Row, _ bool) string { return strconv.FormatUint(r.M.NumPackets, 10) },
	"byt": func(r Row, _ bool) string { return strconv.FormatUint(r.M.NumOctets, 10) },
	"fl":  func(r Row, _ bool) string { return "1" },
	"flg": func(r Row, _ bool) string { return renderFlags(r.M.TCPFlags) },
	"tos": func(r Row, _ bool) string { return strconv.Itoa(int(r.M.Tos)) },
	"bps": func(r Row, _ bool) string { return strconv.FormatUint(r.BPS, 10) },
	"pps": func(r Row, _ bool) string { return strconv.FormatUint(r.PPS, 10) },
	"bpp": func(r Row, _ bool) string { return strconv.FormatUint(r.BPP, 10) },
}

func renderTime(sec uint32, msec uint16) string {
	t := time.Unix(int64(sec), int64(msec)*int64(time.Millisecond)).UTC()
	return t.Format("2006-01-02 15:04:05.000")
}

func renderDuration(m *record.Master) string {
	ms := int64(m.Last-m.First)*1000 + int64(m.MsecLast) - int64(m.MsecFirst)
	if ms < 0 {
		ms = 0
	}
	return fmt.Sprintf("%d.%03d", ms/1000, ms%1000)
}

func protoName(p uint8) string {
	switch p {
	case 1:
		return "ICMP"
	case 6:
		return "TCP"
	case 17:
		return "UDP"
	default:
		return strconv.Itoa(int(p))
	}
}

func renderAddr(m *record.Master, src bool, v6Long bool) string {
	if m.Family == record.IPv4 {
		v := m.DstIP4
		if src {
			v = m.SrcIP4
		}
		ip := net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
		return ip.String()
	}
	addr := m.DstIP6
	if src {
		addr = m.SrcIP6
	}
	ip := net.IP(addr[:])
	if v6Long {
		return fullV6(ip)
	}
	return ip.String()
}

func fullV6(ip net.IP) string {
	parts := make([]string, 8)
	for i := 0; i < 8; i++ {
		parts[i] = fmt.Sprintf("%02x%02x", ip[2*i], ip[2*i+1])
	}
	return strings.Join(parts, ":")
}

// renderAddrPort concatenates address and port, ':' for v4 and '.' for
// v6 — matching the documented alternative separator for the wider v6
// literal form, where ':' would be ambiguous with the address itself.
func renderAddrPort(m *record.Master, src bool, v6Long bool) string {
	addr := renderAddr(m, src, v6Long)
	port := m.DstPort
	if src {
		port = m.SrcPort
	}
	sep := ":"
	if m.Family == record.IPv6 {
		sep = "."
	}
	return addr + sep + strconv.Itoa(int(port))
}

func renderFlags(flags uint8) string {
	const names = "UAPRSF"
	b := make([]byte, 6)
	for i := 0; i < 6; i++ {
		if flags&(1<<(5-i)) != 0 {
			b[i] = names[i]
		} else {
			b[i] = '.'
		}
	}
	return string(b)
}
