// Package sevenk implements the 7K stream parser/resynchronizer (spec
// component C, §4.1): a state machine that drives a transport.ByteStream
// through frame.NetworkFrame/frame.DataRecordFrame validation, byte-wise
// resync on any inconsistency, and per-parser statistics, grounded on the
// mbtrn r7kr reader's r7k_parse loop (original_source/src/mbtrn/r7kr/
// r7kc.c, r7k-reader.c).
package sevenk

import (
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/reson7k/sonarcore/pkg/frame"
	"github.com/reson7k/sonarcore/pkg/transport"
)

var byteOrder = binary.LittleEndian

// Mode selects which wire shape the parser expects (spec §4.1 "Two frame
// modes are supported").
type Mode int

const (
	// NetStream expects an NF immediately followed by its DRF, as seen on a
	// live 7K data center connection.
	NetStream Mode = iota
	// DRFStream expects a bare DRF with no enclosing NF, as found in a
	// recorded .s7k capture.
	DRFStream
)

// Status is the parser's typed outcome for a single Next call (spec §4.1
// "Failure semantics").
type Status int

const (
	StatusOK Status = iota
	StatusTimeout
	StatusEOF
	StatusSocketClosed
	StatusBufferFull
	StatusChecksum
	StatusProtoVersion
	StatusSyncPattern
	StatusSize
	StatusStaleTimestamp
	StatusUnrecognizedRecordID
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusEOF:
		return "EOF"
	case StatusSocketClosed:
		return "SOCKET_CLOSED"
	case StatusBufferFull:
		return "BUFFER_FULL"
	case StatusChecksum:
		return "CHECKSUM"
	case StatusProtoVersion:
		return "PROTO_VERSION"
	case StatusSyncPattern:
		return "SYNC_PATTERN"
	case StatusSize:
		return "SIZE"
	case StatusStaleTimestamp:
		return "STALE_TIMESTAMP"
	case StatusUnrecognizedRecordID:
		return "UNRECOGNIZED_RECORD_ID"
	default:
		return "UNKNOWN"
	}
}

// Errors for the non-OK Status values, so a caller that prefers the error
// idiom over switching on Status still gets a stable sentinel to errors.Is
// against. PROTO_VERSION, SYNC_PATTERN and SIZE have no sentinel of their
// own and map to errStatusHasNoSentinel.
var (
	ErrTimeout              = errors.New("sevenk: read timeout")
	ErrEOF                  = errors.New("sevenk: end of stream")
	ErrSocketClosed         = errors.New("sevenk: socket closed")
	ErrBufferFull           = errors.New("sevenk: buffer full during resync")
	ErrChecksum             = errors.New("sevenk: checksum mismatch")
	ErrStaleTimestamp       = errors.New("sevenk: frame older than floor")
	ErrUnrecognizedRecordID = errors.New("sevenk: unrecognized record type id")
	errStatusHasNoSentinel  = errors.New("sevenk: internal status without sentinel")
)

func statusError(s Status) error {
	switch s {
	case StatusOK:
		return nil
	case StatusTimeout:
		return ErrTimeout
	case StatusEOF:
		return ErrEOF
	case StatusSocketClosed:
		return ErrSocketClosed
	case StatusBufferFull:
		return ErrBufferFull
	case StatusChecksum:
		return ErrChecksum
	case StatusStaleTimestamp:
		return ErrStaleTimestamp
	case StatusUnrecognizedRecordID:
		return ErrUnrecognizedRecordID
	default:
		return errStatusHasNoSentinel
	}
}

// Stats holds the parser's monotone counters (spec §3 "Parser statistics").
type Stats struct {
	SourceBytes   uint64
	ParsedBytes   uint64
	ParsedRecords uint64
	UnreadBytes   uint64
	SyncBytes     uint64
	ResyncCount   uint64
	Last          Status
}

// defaultBufferCap bounds how many unconsumed bytes the parser will hold
// while scanning for a frame boundary before reporting BUFFER_FULL.
const defaultBufferCap = 1 << 20

// Parser drives a transport.ByteStream through the NF/DRF validation state
// machine, one validated frame.Frame per Next call. A Parser is
// single-threaded per transport (spec §4.1 "Concurrency"); give each
// transport its own Parser.
type Parser struct {
	mode    Mode
	stream  transport.ByteStream
	timeout time.Duration

	buf    []byte // unconsumed bytes, buf[0] is the current frame start
	bufCap int

	stats Stats
}

// NewParser returns a Parser reading mode-shaped frames from stream, with
// each underlying read bounded by timeout (0 disables the deadline).
func NewParser(mode Mode, stream transport.ByteStream, timeout time.Duration) *Parser {
	return &Parser{
		mode:    mode,
		stream:  stream,
		timeout: timeout,
		buf:     make([]byte, 0, defaultBufferCap),
		bufCap:  defaultBufferCap,
	}
}

// SetTimeout changes the per-read deadline used by subsequent fill calls,
// letting a caller (e.g. the control client awaiting a reply) tighten or
// relax the budget without constructing a new Parser mid-connection.
func (p *Parser) SetTimeout(timeout time.Duration) {
	p.timeout = timeout
}

// Stats returns a snapshot of the parser's running counters.
func (p *Parser) Stats() Stats {
	s := p.stats
	s.UnreadBytes = uint64(len(p.buf))
	return s
}

// consume drops the first n bytes of the working buffer.
func (p *Parser) consume(n int) {
	p.buf = p.buf[:copy(p.buf, p.buf[n:])]
}

// fill ensures at least need bytes are buffered, issuing further reads as
// necessary and tolerating short reads (spec §4.1 "Partial/short reads").
func (p *Parser) fill(need int) Status {
	if need > p.bufCap {
		return StatusBufferFull
	}
	for len(p.buf) < need {
		room := p.bufCap - len(p.buf)
		tmp := make([]byte, room)
		n, err := p.stream.ReadTimeout(tmp, p.timeout)
		if n > 0 {
			p.buf = append(p.buf, tmp[:n]...)
			p.stats.SourceBytes += uint64(n)
			continue
		}
		switch {
		case errors.Is(err, transport.ErrTimeout):
			return StatusTimeout
		case errors.Is(err, io.EOF):
			return StatusEOF
		default:
			return StatusSocketClosed
		}
	}
	return StatusOK
}

// resyncNet implements the NF resync policy: shift one byte, scan forward
// testing only the NF protocol version field (spec §4.1 "Resync policy").
func (p *Parser) resyncNet() Status {
	p.stats.ResyncCount++
	var skipped uint64

	// Always shift past the candidate that just failed validation before
	// testing again, or a still-present invalid header re-matches forever.
	if st := p.fill(1); st != StatusOK {
		p.stats.SyncBytes += skipped
		return st
	}
	p.consume(1)
	skipped++

	for {
		if st := p.fill(2); st != StatusOK {
			p.stats.SyncBytes += skipped
			return st
		}
		if byteOrderUint16(p.buf) == frame.NFProto {
			p.stats.SyncBytes += skipped
			return StatusOK
		}
		p.consume(1)
		skipped++
		if skipped > uint64(p.bufCap) {
			p.stats.SyncBytes += skipped
			return StatusBufferFull
		}
	}
}

// resyncDRF implements the DRF resync policy for DRF_STREAM mode: scan for
// a candidate whose protocol version and sync pattern both check out.
func (p *Parser) resyncDRF() Status {
	p.stats.ResyncCount++
	var skipped uint64

	if st := p.fill(1); st != StatusOK {
		p.stats.SyncBytes += skipped
		return st
	}
	p.consume(1)
	skipped++

	for {
		if st := p.fill(frame.DRFSize); st != StatusOK {
			p.stats.SyncBytes += skipped
			return st
		}
		if drf, err := frame.DecodeDataRecordFrame(p.buf); err == nil &&
			drf.ProtocolVersion == frame.DRFProto && drf.SyncPattern == frame.DRFSync {
			p.stats.SyncBytes += skipped
			return StatusOK
		}
		p.consume(1)
		skipped++
		if skipped > uint64(p.bufCap) {
			p.stats.SyncBytes += skipped
			return StatusBufferFull
		}
	}
}

func byteOrderUint16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

// Next reads, validates, and returns exactly one frame, or a typed failure.
// newerThan is the caller's "reject anything not strictly newer than this
// many seconds-of-day" floor (spec §4.1 "VALIDATE_TIMESTAMP"); pass 0 to
// accept unconditionally.
func (p *Parser) Next(newerThan float64) (frame.Frame, Status, error) {
	for {
		if p.mode == NetStream {
			fr, st, err, retry := p.nextNetStream(newerThan)
			if retry {
				continue
			}
			return fr, st, err
		}
		fr, st, err, retry := p.nextDRFStream(newerThan)
		if retry {
			continue
		}
		return fr, st, err
	}
}

func (p *Parser) nextNetStream(newerThan float64) (frame.Frame, Status, error, bool) {
	if st := p.fill(frame.NFSize); st != StatusOK {
		p.stats.Last = st
		return frame.Frame{}, st, statusError(st), false
	}
	nf, err := frame.DecodeNetworkFrame(p.buf)
	if err != nil || !nf.Valid() {
		if st := p.resyncNet(); st != StatusOK {
			p.stats.Last = st
			return frame.Frame{}, st, statusError(st), false
		}
		return frame.Frame{}, StatusOK, nil, true
	}

	if st := p.fill(frame.NFSize + frame.DRFSize); st != StatusOK {
		p.stats.Last = st
		return frame.Frame{}, st, statusError(st), false
	}
	drf, err := frame.DecodeDataRecordFrame(p.buf[frame.NFSize:])
	if err != nil || !drf.Valid() {
		if st := p.resyncNet(); st != StatusOK {
			p.stats.Last = st
			return frame.Frame{}, st, statusError(st), false
		}
		return frame.Frame{}, StatusOK, nil, true
	}

	total := frame.NFSize + int(drf.Size)
	if st := p.fill(total); st != StatusOK {
		p.stats.Last = st
		return frame.Frame{}, st, statusError(st), false
	}

	return p.acceptFrame(nf, drf, total, frame.NFSize+frame.DRFSize, newerThan, p.resyncNet)
}

func (p *Parser) nextDRFStream(newerThan float64) (frame.Frame, Status, error, bool) {
	if st := p.fill(frame.DRFSize); st != StatusOK {
		p.stats.Last = st
		return frame.Frame{}, st, statusError(st), false
	}
	drf, err := frame.DecodeDataRecordFrame(p.buf)
	if err != nil || !drf.Valid() {
		if st := p.resyncDRF(); st != StatusOK {
			p.stats.Last = st
			return frame.Frame{}, st, statusError(st), false
		}
		return frame.Frame{}, StatusOK, nil, true
	}

	total := int(drf.Size)
	if st := p.fill(total); st != StatusOK {
		p.stats.Last = st
		return frame.Frame{}, st, statusError(st), false
	}

	return p.acceptFrame(frame.NetworkFrame{}, drf, total, frame.DRFSize, newerThan, p.resyncDRF)
}

// acceptFrame runs the shared checksum/record-type/timestamp validation
// common to both modes once a structurally valid NF+DRF (or bare DRF) has
// been buffered. It consumes exactly total bytes when the frame is
// accepted, has an unrecognized record id, or is stale; on a checksum
// mismatch it calls resync instead, which shifts one byte and scans on.
func (p *Parser) acceptFrame(nf frame.NetworkFrame, drf frame.DataRecordFrame, total, dataStart int, newerThan float64, resync func() Status) (frame.Frame, Status, error, bool) {
	drfStart := total - int(drf.Size)

	if drf.HasChecksum() {
		payload := p.buf[drfStart : drfStart+int(drf.Size)-4]
		want := frame.Checksum(payload)
		got := byteOrder.Uint32(p.buf[drfStart+int(drf.Size)-4 : total])
		if want != got {
			if st := resync(); st != StatusOK {
				p.stats.Last = st
				return frame.Frame{}, st, statusError(st), false
			}
			return frame.Frame{}, StatusOK, nil, true
		}
	}

	if !frame.Recognized[frame.RecordTypeID(drf.RecordTypeID)] {
		p.consume(total)
		p.stats.Last = StatusUnrecognizedRecordID
		return frame.Frame{}, StatusUnrecognizedRecordID, ErrUnrecognizedRecordID, false
	}

	if newerThan > 0 {
		sec := secondsOfDay(drf.Time)
		if sec <= newerThan {
			p.consume(total)
			p.stats.Last = StatusStaleTimestamp
			return frame.Frame{}, StatusStaleTimestamp, ErrStaleTimestamp, false
		}
	}

	// Frame.Data carries the record tail exactly as DRF.Size bounds it
	// (header+data+checksum, if present) so Frame.Payload can split the
	// checksum out on demand rather than this layer pre-deciding it away.
	data := append([]byte(nil), p.buf[dataStart:total]...)
	fr := frame.Frame{NF: nf, DRF: drf, Data: data}

	p.consume(total)
	p.stats.ParsedBytes += uint64(total)
	p.stats.ParsedRecords++
	p.stats.Last = StatusOK
	return fr, StatusOK, nil, false
}

// secondsOfDay converts a 7K-epoch timestamp to seconds within its day, the
// unit the timestamp floor comparison uses (spec §4.1 "VALIDATE_TIMESTAMP").
func secondsOfDay(t frame.Timestamp7K) float64 {
	return float64(t.Hours)*3600 + float64(t.Minutes)*60 + float64(t.Seconds)
}
