// Package frame implements the 7K Network Frame (NF) and Data Record Frame
// (DRF) wire layouts: the outer transport envelope and the typed record
// header used when a Reson 7K data center is the source, plus the 7K-epoch
// timestamp and byte-sum checksum both layers share.
package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

// Wire constants (spec "7K wire protocol"): protocol version tags, fixed
// header sizes, and the DRF sync pattern the DRF-stream resync scan looks
// for.
const (
	NFProto  uint16 = 0x0010
	NFSize          = 36
	DRFProto uint16 = 0x0005
	DRFSize         = 64
	DRFSync  uint32 = 0x0000FFFF
)

var byteOrder = binary.LittleEndian

// ErrShortBuffer is returned when a buffer is too small to hold a complete
// header of the requested kind.
var ErrShortBuffer = errors.New("frame: buffer too short")

// Timestamp7K is the 7K-epoch time carried in every DRF header: calendar
// year and day-of-year, fractional seconds within the minute, and the
// enclosing hour/minute.
type Timestamp7K struct {
	Year    uint16
	Day     uint16
	Seconds float32
	Hours   uint8
	Minutes uint8
}

// Time converts t to a time.Time in UTC, anchored at the start of Year.
func (t Timestamp7K) Time() time.Time {
	base := time.Date(int(t.Year), time.January, 1, 0, 0, 0, 0, time.UTC)
	base = base.AddDate(0, 0, int(t.Day)-1)
	base = base.Add(time.Duration(t.Hours) * time.Hour)
	base = base.Add(time.Duration(t.Minutes) * time.Minute)
	whole := float64(int(t.Seconds))
	frac := float64(t.Seconds) - whole
	base = base.Add(time.Duration(whole) * time.Second)
	base = base.Add(time.Duration(frac * float64(time.Second)))
	return base
}

// TimestampFrom7K builds a Timestamp7K from a calendar time.
func TimestampFrom7K(t time.Time) Timestamp7K {
	u := t.UTC()
	return Timestamp7K{
		Year:    uint16(u.Year()),
		Day:     uint16(u.YearDay()),
		Seconds: float32(u.Second()) + float32(u.Nanosecond())/1e9,
		Hours:   uint8(u.Hour()),
		Minutes: uint8(u.Minute()),
	}
}

// NetworkFrame is the 36 byte outer envelope used whenever the 7K data
// center is the transport: it wraps exactly one DRF and carries the
// transport-level sizing and addressing the stream parser validates before
// trusting the DRF that follows.
type NetworkFrame struct {
	ProtocolVersion  uint16
	Offset           uint16
	TotalPackets     uint32
	TotalRecords     uint16
	TransmissionID   uint16
	PacketSize       uint32
	TotalSize        uint32
	SequenceNumber   uint32
	DestDeviceID     uint32
	DestEnumerator   uint16
	SourceEnumerator uint16
	SourceDeviceID   uint32
}

// DecodeNetworkFrame decodes the fixed 36 byte NF header from the front of
// buf.
func DecodeNetworkFrame(buf []byte) (NetworkFrame, error) {
	if len(buf) < NFSize {
		return NetworkFrame{}, ErrShortBuffer
	}
	var nf NetworkFrame
	r := bytes.NewReader(buf[:NFSize])
	if err := binary.Read(r, byteOrder, &nf); err != nil {
		return NetworkFrame{}, err
	}
	return nf, nil
}

// Encode serializes nf to its fixed 36 byte wire form.
func (nf NetworkFrame) Encode() []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, byteOrder, &nf)
	return buf.Bytes()
}

// Valid reports whether nf passes the NF acceptance rules a stream parser
// checks before trusting the DRF that follows (spec §4.1 "Acceptance rules
// for NF"): protocol version, packet counts, and the packet_size/total_size
// relationship.
func (nf NetworkFrame) Valid() bool {
	return nf.ProtocolVersion == NFProto &&
		nf.TotalPackets >= 1 &&
		nf.TotalRecords == 1 &&
		nf.TotalSize >= DRFSize &&
		nf.Offset >= NFSize &&
		nf.PacketSize == nf.TotalSize+NFSize
}

// DataRecordFrame is the 64 byte record header that follows a
// NetworkFrame (or, in DRF_STREAM mode, stands alone): the typed record
// envelope carrying the record's type, originating device, and 7K
// timestamp. Reserved* fields preserve the vendor's fixed 64 byte layout
// without claiming meaning the spec's data model does not assign them.
type DataRecordFrame struct {
	ProtocolVersion    uint16
	Offset             uint16
	SyncPattern        uint32
	Size               uint32
	OptionalDataOffset uint32
	OptionalDataID     uint32
	Time               Timestamp7K
	Reserved1          uint16
	RecordVersion      uint16
	RecordTypeID       uint32
	DeviceID           uint32
	SystemEnumerator   uint16
	Flags              uint16
	Reserved2          uint32
	TotalFragments     uint32
	FragmentIndex      uint32
	Reserved3          uint32
	Reserved4          uint16
}

// HasChecksum reports whether the DRF's data is followed by a 4-byte
// byte-sum checksum (low bit of Flags).
func (drf DataRecordFrame) HasChecksum() bool {
	return drf.Flags&0x1 != 0
}

// DecodeDataRecordFrame decodes the fixed 64 byte DRF header from the
// front of buf.
func DecodeDataRecordFrame(buf []byte) (DataRecordFrame, error) {
	if len(buf) < DRFSize {
		return DataRecordFrame{}, ErrShortBuffer
	}
	var drf DataRecordFrame
	r := bytes.NewReader(buf[:DRFSize])
	if err := binary.Read(r, byteOrder, &drf); err != nil {
		return DataRecordFrame{}, err
	}
	return drf, nil
}

// Encode serializes drf to its fixed 64 byte wire form.
func (drf DataRecordFrame) Encode() []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, byteOrder, &drf)
	return buf.Bytes()
}

// MaxFrameBytes bounds a DRF's advertised size (spec §3 "sizeof(DRF) < size
// <= MAX_FRAME_BYTES"); a larger value can only be a corrupt or
// misidentified header.
const MaxFrameBytes = 1 << 20

// Valid reports whether drf passes the DRF acceptance rules (spec §4.1
// "Acceptance for DRF"): protocol version, sync pattern, and a size that
// fits within the frame ceiling.
func (drf DataRecordFrame) Valid() bool {
	return drf.ProtocolVersion == DRFProto &&
		drf.SyncPattern == DRFSync &&
		drf.Size > DRFSize && drf.Size <= MaxFrameBytes
}

// Checksum computes the 7K byte-sum checksum: the sum, modulo 2^32, of
// every byte in data. Shared by the DRF trailer and the GSF record store,
// which use the same additive scheme.
func Checksum(data []byte) uint32 {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return sum
}

// Frame is a fully decoded NF+DRF+data unit as handed to a caller by the
// stream parser. Carrying the checksum presence as a sum type (per Design
// Notes §9, "express as a sum type on the decoded frame") rather than an
// implicit tail avoids a caller needing to re-inspect Flags.
type Frame struct {
	NF   NetworkFrame
	DRF  DataRecordFrame
	Data []byte
}

// Checked is data's trailing checksum when the DRF's checksum flag is set.
type Checked struct {
	Data     []byte
	Checksum uint32
}

// EncodeWire re-serializes f as a standalone NF+DRF+data unit, stamping
// sequenceNumber into the NF (replay/publish drivers that re-send an
// already-decoded Frame use this rather than hand-building NF fields each
// time).
func (f Frame) EncodeWire(sequenceNumber uint32) []byte {
	nf := NetworkFrame{
		ProtocolVersion: NFProto,
		Offset:          NFSize,
		TotalPackets:    1,
		TotalRecords:    1,
		SequenceNumber:  sequenceNumber,
		PacketSize:      uint32(NFSize) + f.DRF.Size,
		TotalSize:       f.DRF.Size,
	}
	out := append(nf.Encode(), f.DRF.Encode()...)
	return append(out, f.Data...)
}

// Payload returns the frame's record data with its checksum split out, as
// a sum type over whether the DRF carried one.
func (f Frame) Payload() (Checked, []byte, bool) {
	if !f.DRF.HasChecksum() {
		return Checked{}, f.Data, false
	}
	if len(f.Data) < 4 {
		return Checked{}, f.Data, false
	}
	n := len(f.Data) - 4
	sum := byteOrder.Uint32(f.Data[n:])
	return Checked{Data: f.Data[:n], Checksum: sum}, nil, true
}

// RecordTypeID identifies a 7K data record type (spec §3/§6).
type RecordTypeID uint32

// Record type ids named by the spec: the control protocol's REMCON family
// and the subscribable sonar record types used by the end-to-end test
// scenarios.
const (
	RTSonarSettings  RecordTypeID = 7000
	RTBeamGeometry   RecordTypeID = 7004
	RTBathymetry     RecordTypeID = 7027
	RTPosition       RecordTypeID = 1003
	RTSoundVelocity  RecordTypeID = 1006
	RTDepth          RecordTypeID = 1008
	RTCTD            RecordTypeID = 1010
	RTRollPitchHeave RecordTypeID = 1012
	RTHeading        RecordTypeID = 1013
	RTSurvey         RecordTypeID = 1015
	RTNavigation     RecordTypeID = 1016
	RTRemcon         RecordTypeID = 7500
	RTRemconACK      RecordTypeID = 7501
	RTRemconNACK     RecordTypeID = 7502
	RTConfigData     RecordTypeID = 7001
)

// REMCON sub-operation ids (spec §4.3).
const (
	RemconSub    uint32 = 1
	RemconReqRec uint32 = 2
)

// Recognized is the closed set of record_type_ids the stream parser accepts
// (spec §3 "7K Record-type catalog"); for any id outside this set the
// parser consumes the frame's bytes and returns an unrecognized-record-id
// status for that frame, without resync.
var Recognized = map[RecordTypeID]bool{
	RTSonarSettings:  true,
	RTBeamGeometry:   true,
	RTBathymetry:     true,
	RTPosition:       true,
	RTSoundVelocity:  true,
	RTDepth:          true,
	RTCTD:            true,
	RTRollPitchHeave: true,
	RTHeading:        true,
	RTSurvey:         true,
	RTNavigation:     true,
	RTRemcon:         true,
	RTRemconACK:      true,
	RTRemconNACK:     true,
	RTConfigData:     true,
}
