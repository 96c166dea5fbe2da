package control

import (
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/reson7k/sonarcore/pkg/frame"
)

// fakeDevice is a transport.ByteStream test double that plays the far side
// of the control channel: it records everything written to it and, once a
// reply has been queued by the test, serves it back through ReadTimeout.
type fakeDevice struct {
	sent  []byte
	reply []byte
	pos   int
}

func (f *fakeDevice) Write(p []byte) (int, error) {
	f.sent = append(f.sent, p...)
	return len(p), nil
}

func (f *fakeDevice) ReadTimeout(p []byte, _ time.Duration) (int, error) {
	if f.pos >= len(f.reply) {
		return 0, io.EOF
	}
	n := copy(p, f.reply[f.pos:])
	f.pos += n
	return n, nil
}

func (f *fakeDevice) Close() error { return nil }

// buildReply assembles an NF+DRF reply carrying recordType and data, the
// shape the device sends back for ACK/NACK/CONFIG_DATA. A nil data stands
// for a zeroed ACK/NACK record header (ticket plus 16 byte tracking
// number): a DRF with no bytes past its 64 byte header is not valid.
func buildReply(t *testing.T, recordType frame.RecordTypeID, data []byte) []byte {
	t.Helper()

	if data == nil {
		data = make([]byte, 4+16)
	}
	size := uint32(frame.DRFSize + len(data))
	drf := frame.DataRecordFrame{
		ProtocolVersion: frame.DRFProto,
		Offset:          frame.DRFSize,
		SyncPattern:     frame.DRFSync,
		Size:            size,
		Time:            frame.TimestampFrom7K(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)),
		RecordVersion:   1,
		RecordTypeID:    uint32(recordType),
		DeviceID:        device7KCenter,
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

// TestSubscribeCleanACK models the "clean subscribe" end-to-end scenario:
// the client subscribes to a set of record types and the device replies
// with a single ACK.
func TestSubscribeCleanACK(t *testing.T) {
	dev := &fakeDevice{reply: buildReply(t, frame.RTRemconACK, nil)}
	c, err := NewClient(dev, "7125_200", time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ids := []frame.RecordTypeID{1003, 1006, 1008, 1010, 1012, 1013, 1015, 1016, 7000, 7004, 7027}
	if err := c.Subscribe(ids, time.Second); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// Verify the wire record the device received: NF, then DRF carrying a
	// REMCON record whose body encodes the subscribed id count and list.
	nf, err := frame.DecodeNetworkFrame(dev.sent)
	if err != nil {
		t.Fatalf("decode sent NF: %v", err)
	}
	if !nf.Valid() {
		t.Fatal("sent NF is not valid")
	}
	drf, err := frame.DecodeDataRecordFrame(dev.sent[frame.NFSize:])
	if err != nil {
		t.Fatalf("decode sent DRF: %v", err)
	}
	if frame.RecordTypeID(drf.RecordTypeID) != frame.RTRemcon {
		t.Fatalf("sent record type = %d, want RTRemcon", drf.RecordTypeID)
	}

	body := dev.sent[frame.NFSize+frame.DRFSize:]
	remconID := binary.LittleEndian.Uint32(body[0:4])
	if remconID != frame.RemconSub {
		t.Fatalf("remcon_id = %d, want RemconSub", remconID)
	}
	count := binary.LittleEndian.Uint32(body[rthSize : rthSize+4])
	if int(count) != len(ids) {
		t.Fatalf("subscribed count = %d, want %d", count, len(ids))
	}
	for i, id := range ids {
		got := binary.LittleEndian.Uint32(body[rthSize+4+4*i : rthSize+8+4*i])
		if frame.RecordTypeID(got) != id {
			t.Fatalf("subscribed id[%d] = %d, want %d", i, got, id)
		}
	}
}

func TestSubscribeNACK(t *testing.T) {
	dev := &fakeDevice{reply: buildReply(t, frame.RTRemconNACK, nil)}
	c, err := NewClient(dev, "T50", time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := c.Subscribe([]frame.RecordTypeID{frame.RTDepth}, time.Second); err != ErrNACK {
		t.Fatalf("Subscribe err = %v, want ErrNACK", err)
	}
}

func TestRequestConfigACKThenConfigData(t *testing.T) {
	ack := buildReply(t, frame.RTRemconACK, nil)
	cfgData := make([]byte, 4)
	binary.LittleEndian.PutUint32(cfgData, uint32(frame.RTDepth))
	cfg := buildReply(t, frame.RTConfigData, cfgData)

	dev := &fakeDevice{reply: append(ack, cfg...)}
	c, err := NewClient(dev, "7125_400", time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	fr, err := c.RequestConfig(frame.RTDepth, time.Second)
	if err != nil {
		t.Fatalf("RequestConfig: %v", err)
	}
	if frame.RecordTypeID(fr.DRF.RecordTypeID) != frame.RTConfigData {
		t.Fatalf("reply record type = %d, want RTConfigData", fr.DRF.RecordTypeID)
	}
}

func TestNewClientUnknownMnemonic(t *testing.T) {
	dev := &fakeDevice{}
	if _, err := NewClient(dev, "bogus", time.Second); !errors.Is(err, ErrUnknownMnemonic) {
		t.Fatalf("NewClient err = %v, want ErrUnknownMnemonic", err)
	}
}

func TestTicketsAndTrackingNumbersAreMonotone(t *testing.T) {
	a := nextTicket()
	b := nextTicket()
	if b <= a {
		t.Fatalf("ticket counter not monotone: %d then %d", a, b)
	}
	ta := nextTrackingNumber()
	tb := nextTrackingNumber()
	if binary.LittleEndian.Uint64(ta[:8]) >= binary.LittleEndian.Uint64(tb[:8]) {
		t.Fatal("tracking number counter not monotone")
	}
}
