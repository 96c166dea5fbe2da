package sevenk

import (
	"io"
	"testing"
	"time"

	"github.com/reson7k/sonarcore/pkg/frame"
)

// memStream is a transport.ByteStream backed by a fixed in-memory buffer,
// used to drive the parser against hand-built byte sequences without a real
// socket or file.
type memStream struct {
	data   []byte
	pos    int
	chunk  int // if >0, ReadTimeout never returns more than chunk bytes
	closed bool
}

func (m *memStream) ReadTimeout(p []byte, _ time.Duration) (int, error) {
	if m.pos >= len(m.data) {
		return 0, io.EOF
	}
	n := len(p)
	if m.chunk > 0 && n > m.chunk {
		n = m.chunk
	}
	if rem := len(m.data) - m.pos; n > rem {
		n = rem
	}
	copy(p, m.data[m.pos:m.pos+n])
	m.pos += n
	return n, nil
}

func (m *memStream) Write(p []byte) (int, error) { return len(p), nil }
func (m *memStream) Close() error                { m.closed = true; return nil }

// buildFrame assembles a valid byte sequence for one record: optionally
// wrapped in an NF (netStream), with a DRF header, the given payload, and
// (if withChecksum) a trailing byte-sum checksum.
func buildFrame(t *testing.T, recordType frame.RecordTypeID, payload []byte, withChecksum, netStream bool) []byte {
	t.Helper()

	size := uint32(frame.DRFSize + len(payload))
	var flags uint16
	if withChecksum {
		size += 4
		flags = 0x1
	}

	drf := frame.DataRecordFrame{
		ProtocolVersion: frame.DRFProto,
		Offset:          frame.DRFSize,
		SyncPattern:     frame.DRFSync,
		Size:            size,
		Time:            frame.TimestampFrom7K(time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)),
		RecordVersion:   1,
		RecordTypeID:    uint32(recordType),
		DeviceID:        42,
		Flags:           flags,
	}

	body := append(drf.Encode(), payload...)
	if withChecksum {
		sum := frame.Checksum(body)
		sumBytes := make([]byte, 4)
		byteOrder.PutUint32(sumBytes, sum)
		body = append(body, sumBytes...)
	}

	if !netStream {
		return body
	}

	nf := frame.NetworkFrame{
		ProtocolVersion: frame.NFProto,
		Offset:          frame.NFSize,
		TotalPackets:    1,
		TotalRecords:    1,
		PacketSize:      uint32(frame.NFSize) + size,
		TotalSize:       size,
	}
	return append(nf.Encode(), body...)
}

func TestParserNetStreamHappyPath(t *testing.T) {
	f1 := buildFrame(t, frame.RTBathymetry, []byte("ping-one"), true, true)
	f2 := buildFrame(t, frame.RTPosition, []byte("nav-fix"), false, true)

	stream := &memStream{data: append(append([]byte{}, f1...), f2...)}
	p := NewParser(NetStream, stream, time.Second)

	fr, status, err := p.Next(0)
	if err != nil || status != StatusOK {
		t.Fatalf("first Next: status=%v err=%v", status, err)
	}
	if fr.DRF.RecordTypeID != uint32(frame.RTBathymetry) {
		t.Fatalf("first frame record type = %d, want %d", fr.DRF.RecordTypeID, frame.RTBathymetry)
	}
	checked, _, ok := fr.Payload()
	if !ok || string(checked.Data) != "ping-one" {
		t.Fatalf("first frame payload = %q, ok=%v", checked.Data, ok)
	}

	fr2, status2, err2 := p.Next(0)
	if err2 != nil || status2 != StatusOK {
		t.Fatalf("second Next: status=%v err=%v", status2, err2)
	}
	if fr2.DRF.RecordTypeID != uint32(frame.RTPosition) {
		t.Fatalf("second frame record type = %d, want %d", fr2.DRF.RecordTypeID, frame.RTPosition)
	}

	stats := p.Stats()
	if stats.ParsedRecords != 2 {
		t.Fatalf("ParsedRecords = %d, want 2", stats.ParsedRecords)
	}
}

func TestParserResyncSkipsGarbage(t *testing.T) {
	garbage := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01, 0x02}
	valid := buildFrame(t, frame.RTDepth, []byte("depth-sample"), false, true)

	stream := &memStream{data: append(append([]byte{}, garbage...), valid...)}
	p := NewParser(NetStream, stream, time.Second)

	fr, status, err := p.Next(0)
	if err != nil || status != StatusOK {
		t.Fatalf("Next after garbage: status=%v err=%v", status, err)
	}
	if fr.DRF.RecordTypeID != uint32(frame.RTDepth) {
		t.Fatalf("record type = %d, want %d", fr.DRF.RecordTypeID, frame.RTDepth)
	}

	stats := p.Stats()
	if stats.ResyncCount == 0 {
		t.Fatal("expected ResyncCount > 0 after leading garbage")
	}
	if stats.SyncBytes == 0 {
		t.Fatal("expected SyncBytes > 0 after leading garbage")
	}
}

func TestParserUnrecognizedRecordID(t *testing.T) {
	valid := buildFrame(t, frame.RecordTypeID(9999), []byte("x"), false, true)
	stream := &memStream{data: valid}
	p := NewParser(NetStream, stream, time.Second)

	_, status, err := p.Next(0)
	if status != StatusUnrecognizedRecordID {
		t.Fatalf("status = %v, want StatusUnrecognizedRecordID", status)
	}
	if err == nil {
		t.Fatal("expected a non-nil error")
	}
}

func TestParserChecksumMismatchThenRecovers(t *testing.T) {
	bad := buildFrame(t, frame.RTDepth, []byte("corrupt"), true, true)
	// Flip a payload byte after the checksum was computed so it no longer matches.
	badIdx := frame.NFSize + frame.DRFSize
	bad[badIdx] ^= 0xFF

	good := buildFrame(t, frame.RTDepth, []byte("clean"), true, true)

	stream := &memStream{data: append(append([]byte{}, bad...), good...)}
	p := NewParser(NetStream, stream, time.Second)

	fr, status, err := p.Next(0)
	if err != nil || status != StatusOK {
		t.Fatalf("Next after corrupt frame: status=%v err=%v", status, err)
	}
	checked, _, ok := fr.Payload()
	if !ok || string(checked.Data) != "clean" {
		t.Fatalf("payload = %q, ok=%v, want \"clean\"", checked.Data, ok)
	}
	if p.Stats().ResyncCount == 0 {
		t.Fatal("expected a resync after the checksum mismatch")
	}
}

func TestParserDRFStreamMode(t *testing.T) {
	f := buildFrame(t, frame.RTHeading, []byte("hdg"), false, false)
	stream := &memStream{data: f}
	p := NewParser(DRFStream, stream, time.Second)

	fr, status, err := p.Next(0)
	if err != nil || status != StatusOK {
		t.Fatalf("Next: status=%v err=%v", status, err)
	}
	if fr.DRF.RecordTypeID != uint32(frame.RTHeading) {
		t.Fatalf("record type = %d, want %d", fr.DRF.RecordTypeID, frame.RTHeading)
	}
}

func TestParserShortReadsAreTolerated(t *testing.T) {
	f := buildFrame(t, frame.RTSoundVelocity, []byte("svp-cast"), true, true)
	stream := &memStream{data: f, chunk: 3} // force many short reads
	p := NewParser(NetStream, stream, time.Second)

	fr, status, err := p.Next(0)
	if err != nil || status != StatusOK {
		t.Fatalf("Next over chunked reads: status=%v err=%v", status, err)
	}
	checked, _, ok := fr.Payload()
	if !ok || string(checked.Data) != "svp-cast" {
		t.Fatalf("payload = %q, ok=%v", checked.Data, ok)
	}
}

func TestParserEOFOnEmptyStream(t *testing.T) {
	stream := &memStream{}
	p := NewParser(NetStream, stream, time.Second)

	_, status, err := p.Next(0)
	if status != StatusEOF {
		t.Fatalf("status = %v, want StatusEOF", status)
	}
	if err == nil {
		t.Fatal("expected a non-nil error")
	}
}

func TestParserStaleTimestampRejected(t *testing.T) {
	f := buildFrame(t, frame.RTHeading, []byte("old"), false, true)
	stream := &memStream{data: f}
	p := NewParser(NetStream, stream, time.Second)

	// The built frame's time is 12:00:00 = 43200s-of-day; a floor above that
	// must reject it without triggering a resync.
	_, status, err := p.Next(90000)
	if status != StatusStaleTimestamp {
		t.Fatalf("status = %v, want StatusStaleTimestamp", status)
	}
	if err == nil {
		t.Fatal("expected a non-nil error")
	}
	if p.Stats().ResyncCount != 0 {
		t.Fatal("a stale timestamp should not trigger a resync")
	}
}
