package frame

import (
	"testing"
	"time"
)

func TestNetworkFrameRoundTrip(t *testing.T) {
	nf := NetworkFrame{
		ProtocolVersion:  NFProto,
		Offset:           NFSize,
		TotalPackets:     1,
		TotalRecords:     1,
		TransmissionID:   7,
		PacketSize:       DRFSize + NFSize,
		TotalSize:        DRFSize,
		SequenceNumber:   42,
		DestDeviceID:     100,
		DestEnumerator:   0,
		SourceEnumerator: 0,
		SourceDeviceID:   200,
	}

	buf := nf.Encode()
	if len(buf) != NFSize {
		t.Fatalf("encoded NF length = %d, want %d", len(buf), NFSize)
	}

	got, err := DecodeNetworkFrame(buf)
	if err != nil {
		t.Fatalf("DecodeNetworkFrame: %v", err)
	}
	if got != nf {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, nf)
	}
	if !got.Valid() {
		t.Fatal("round-tripped NF should satisfy Valid()")
	}
}

func TestNetworkFrameValidRejectsBadPacketSize(t *testing.T) {
	nf := NetworkFrame{
		ProtocolVersion: NFProto,
		Offset:          NFSize,
		TotalPackets:    1,
		TotalSize:       DRFSize,
		PacketSize:      DRFSize, // missing + NFSize
	}
	if nf.Valid() {
		t.Fatal("Valid() should reject packet_size != total_size + sizeof(NF)")
	}
}

func TestDataRecordFrameRoundTrip(t *testing.T) {
	ts := TimestampFrom7K(time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC))
	drf := DataRecordFrame{
		ProtocolVersion: DRFProto,
		Offset:          DRFSize,
		SyncPattern:     DRFSync,
		Size:            DRFSize + 16,
		Time:            ts,
		RecordVersion:   1,
		RecordTypeID:    uint32(RTBathymetry),
		DeviceID:        123456,
		Flags:           0x1,
	}

	buf := drf.Encode()
	if len(buf) != DRFSize {
		t.Fatalf("encoded DRF length = %d, want %d", len(buf), DRFSize)
	}

	got, err := DecodeDataRecordFrame(buf)
	if err != nil {
		t.Fatalf("DecodeDataRecordFrame: %v", err)
	}
	if got != drf {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, drf)
	}
	if !got.Valid() {
		t.Fatal("round-tripped DRF should satisfy Valid()")
	}
	if !got.HasChecksum() {
		t.Fatal("HasChecksum() should be true when flags bit 0 is set")
	}
}

func TestDataRecordFrameValidRejectsBadSyncPattern(t *testing.T) {
	drf := DataRecordFrame{
		ProtocolVersion: DRFProto,
		SyncPattern:     0xDEAD,
		Size:            DRFSize + 4,
	}
	if drf.Valid() {
		t.Fatal("Valid() should reject a bad sync pattern")
	}
}

func TestChecksum(t *testing.T) {
	data := []byte{1, 2, 3, 4, 0xFF}
	want := uint32(1 + 2 + 3 + 4 + 0xFF)
	if got := Checksum(data); got != want {
		t.Fatalf("Checksum(%v) = %d, want %d", data, got, want)
	}
}

func TestFramePayloadSplitsChecksum(t *testing.T) {
	drf := DataRecordFrame{Flags: 0x1}
	data := []byte{10, 20, 30, 0, 0, 0, 60}
	f := Frame{DRF: drf, Data: data}

	checked, plain, ok := f.Payload()
	if !ok {
		t.Fatal("Payload() should report a checksum was split out")
	}
	if plain != nil {
		t.Fatalf("plain data should be nil when a checksum was split, got %v", plain)
	}
	if len(checked.Data) != len(data)-4 {
		t.Fatalf("checked.Data length = %d, want %d", len(checked.Data), len(data)-4)
	}
	if checked.Checksum != byteOrder.Uint32(data[len(data)-4:]) {
		t.Fatalf("checked.Checksum = %d, want %d", checked.Checksum, byteOrder.Uint32(data[len(data)-4:]))
	}
}

func TestFramePayloadNoChecksum(t *testing.T) {
	drf := DataRecordFrame{Flags: 0}
	data := []byte{1, 2, 3}
	f := Frame{DRF: drf, Data: data}

	_, plain, ok := f.Payload()
	if ok {
		t.Fatal("Payload() should report no checksum was split out")
	}
	if string(plain) != string(data) {
		t.Fatalf("plain = %v, want %v", plain, data)
	}
}

func TestTimestamp7KRoundTrip(t *testing.T) {
	in := time.Date(2026, 7, 31, 14, 5, 30, 0, time.UTC)
	ts := TimestampFrom7K(in)
	out := ts.Time()

	if out.Year() != in.Year() || out.YearDay() != in.YearDay() ||
		out.Hour() != in.Hour() || out.Minute() != in.Minute() || out.Second() != in.Second() {
		t.Fatalf("Timestamp7K round trip mismatch: got %v, want %v", out, in)
	}
}
