package replay

import (
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/alitto/pond"

	"github.com/reson7k/sonarcore/pkg/frame"
	"github.com/reson7k/sonarcore/pkg/sevenk"
)

// memStream is a transport.ByteStream over a fixed in-memory buffer, used
// to drive Server.Run against a hand-built capture without a real file.
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

// buildDRF assembles one bare DRF+payload record stamped at ts, the shape
// of a DRFStream capture file.
func buildDRF(t *testing.T, recordType frame.RecordTypeID, ts time.Time, payload []byte) []byte {
	t.Helper()
	drf := frame.DataRecordFrame{
		ProtocolVersion: frame.DRFProto,
		Offset:          frame.DRFSize,
		SyncPattern:     frame.DRFSync,
		Size:            uint32(frame.DRFSize + len(payload)),
		Time:            frame.TimestampFrom7K(ts),
		RecordVersion:   1,
		RecordTypeID:    uint32(recordType),
	}
	return append(drf.Encode(), payload...)
}

func TestHandshakeAddsSubscribedClient(t *testing.T) {
	srvConn, cliConn := net.Pipe()
	defer cliConn.Close()

	s := &Server{log: slog.Default()}

	ids := []frame.RecordTypeID{frame.RTDepth, frame.RTHeading}
	data := make([]byte, rthSize+4+4*len(ids))
	binary.LittleEndian.PutUint32(data[0:4], frame.RemconSub) // remcon_id
	binary.LittleEndian.PutUint32(data[rthSize:rthSize+4], uint32(len(ids)))
	for i, id := range ids {
		off := rthSize + 4 + 4*i
		binary.LittleEndian.PutUint32(data[off:off+4], uint32(id))
	}
	subWire := buildNetStreamFrame(t, frame.RTRemcon, data)

	done := make(chan error, 1)
	go func() { done <- s.handshake(srvConn) }()

	if _, err := cliConn.Write(subWire); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	// Read back the ACK the server sends before returning from handshake.
	ackBuf := make([]byte, frame.NFSize+frame.DRFSize+ackRTHSize)
	if _, err := io.ReadFull(cliConn, ackBuf); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	nf, err := frame.DecodeNetworkFrame(ackBuf)
	if err != nil || !nf.Valid() {
		t.Fatalf("decode ACK NF: %v", err)
	}
	drf, err := frame.DecodeDataRecordFrame(ackBuf[frame.NFSize:])
	if err != nil {
		t.Fatalf("decode ACK DRF: %v", err)
	}
	if frame.RecordTypeID(drf.RecordTypeID) != frame.RTRemconACK {
		t.Fatalf("ack record type = %d, want RTRemconACK", drf.RecordTypeID)
	}

	if err := <-done; err != nil {
		t.Fatalf("handshake: %v", err)
	}

	clients := s.snapshotClients()
	if len(clients) != 1 {
		t.Fatalf("client count = %d, want 1", len(clients))
	}
	if !clients[0].subs[frame.RTDepth] || !clients[0].subs[frame.RTHeading] {
		t.Fatal("client subscription set missing requested ids")
	}
}

// buildNetStreamFrame assembles a full NF+DRF+data record with no checksum,
// the shape a subscribing client sends its SUB request in.
func buildNetStreamFrame(t *testing.T, recordType frame.RecordTypeID, data []byte) []byte {
	t.Helper()
	size := uint32(frame.DRFSize + len(data))
	drf := frame.DataRecordFrame{
		ProtocolVersion: frame.DRFProto,
		Offset:          frame.DRFSize,
		SyncPattern:     frame.DRFSync,
		Size:            size,
		Time:            frame.TimestampFrom7K(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)),
		RecordVersion:   1,
		RecordTypeID:    uint32(recordType),
	}
	body := append(drf.Encode(), data...)
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

func TestRunDeliversOnlySubscribedRecordType(t *testing.T) {
	base := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	capture := append(
		buildDRF(t, frame.RTDepth, base, []byte("depth-1")),
		buildDRF(t, frame.RTHeading, base.Add(time.Millisecond), []byte("heading-1"))...,
	)
	source := sevenk.NewParser(sevenk.DRFStream, &memStream{data: capture}, time.Second)

	srvConn, cliConn := net.Pipe()
	defer cliConn.Close()

	s := &Server{pool: pond.New(4, 16), minDelay: 0, maxDelay: time.Millisecond}
	s.addClient(&client{conn: srvConn, subs: map[frame.RecordTypeID]bool{frame.RTDepth: true}})

	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(source) }()

	buf := make([]byte, frame.NFSize+frame.DRFSize+len("depth-1"))
	if _, err := io.ReadFull(cliConn, buf); err != nil {
		t.Fatalf("read delivered frame: %v", err)
	}
	drf, err := frame.DecodeDataRecordFrame(buf[frame.NFSize:])
	if err != nil {
		t.Fatalf("decode delivered DRF: %v", err)
	}
	if frame.RecordTypeID(drf.RecordTypeID) != frame.RTDepth {
		t.Fatalf("delivered record type = %d, want RTDepth", drf.RecordTypeID)
	}

	if err := <-runErr; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestPaceClampsGapToMaxDelay(t *testing.T) {
	s := &Server{minDelay: 0, maxDelay: 5 * time.Millisecond}
	start := time.Now()
	s.pace(50 * time.Millisecond)
	elapsed := time.Since(start)
	if elapsed > 30*time.Millisecond {
		t.Fatalf("pace did not clamp to max_delay: elapsed %v", elapsed)
	}
}

func TestPaceEnforcesMinDelay(t *testing.T) {
	s := &Server{minDelay: 10 * time.Millisecond, maxDelay: time.Second}
	start := time.Now()
	s.pace(time.Millisecond)
	elapsed := time.Since(start)
	if elapsed < 8*time.Millisecond {
		t.Fatalf("pace did not enforce min_delay: elapsed %v", elapsed)
	}
}
