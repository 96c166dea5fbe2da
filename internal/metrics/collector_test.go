package metrics

import (
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/reson7k/sonarcore/pkg/frame"
	"github.com/reson7k/sonarcore/pkg/sevenk"
)

// memStream is a transport.ByteStream backed by a fixed in-memory buffer.
type memStream struct {
	data []byte
	pos  int
}

func (m *memStream) ReadTimeout(p []byte, _ time.Duration) (int, error) {
	if m.pos >= len(m.data) {
		return 0, io.EOF
	}
	n := copy(p, m.data[m.pos:])
	m.pos += n
	return n, nil
}
func (m *memStream) Write(p []byte) (int, error) { return len(p), nil }
func (m *memStream) Close() error                { return nil }

func buildFrame(t *testing.T, recordType frame.RecordTypeID, payload []byte) []byte {
	t.Helper()
	size := uint32(frame.DRFSize + len(payload))
	drf := frame.DataRecordFrame{
		ProtocolVersion: frame.DRFProto,
		Offset:          frame.DRFSize,
		SyncPattern:     frame.DRFSync,
		Size:            size,
		Time:            frame.TimestampFrom7K(time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)),
		RecordVersion:   1,
		RecordTypeID:    uint32(recordType),
	}
	return append(drf.Encode(), payload...)
}

func TestParserCollectorReportsRegisteredParser(t *testing.T) {
	data := buildFrame(t, frame.RTDepth, []byte("abcdefgh"))
	p := sevenk.NewParser(sevenk.DRFStream, &memStream{data: data}, time.Second)
	if _, status, err := p.Next(0); err != nil || status != sevenk.StatusOK {
		t.Fatalf("priming read: status=%v err=%v", status, err)
	}

	c := NewParserCollector(nil)
	c.Add("capture-1", p)

	if n := testutil.CollectAndCount(c); n != 6 {
		t.Fatalf("collected metric count = %d, want 6", n)
	}

	stats := p.Stats()
	if stats.ParsedRecords != 1 {
		t.Fatalf("parser stats ParsedRecords = %d, want 1", stats.ParsedRecords)
	}
}

func TestParserCollectorRemoveStopsReporting(t *testing.T) {
	data := buildFrame(t, frame.RTDepth, []byte("x"))
	p := sevenk.NewParser(sevenk.DRFStream, &memStream{data: data}, time.Second)

	c := NewParserCollector(nil)
	c.Add("capture-1", p)
	if n := testutil.CollectAndCount(c); n != 6 {
		t.Fatalf("collected metric count with one parser = %d, want 6", n)
	}

	c.Remove("capture-1")
	if n := testutil.CollectAndCount(c); n != 0 {
		t.Fatalf("collected metric count after Remove = %d, want 0", n)
	}
}
