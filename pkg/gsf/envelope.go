package gsf

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Stream is the minimal byte-stream contract the GSF layer needs from an
// opened file: sequential read/write plus seek, so both *os.File and an
// in-memory *bytes.Reader (used by tests) satisfy it.
type Stream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
}

// Tell reports the current position of stream without moving it.
func Tell(stream Stream) (int64, error) {
	return stream.Seek(0, 1)
}

// Version is a GSF library version parsed from the leading "GSF-vM.m"
// header record. The padding rule applied to every record (§3) depends on
// whether Version is at or before 1.2.
type Version struct {
	Major int
	Minor int
}

// PadsByTruncation reports whether this version uses the historical (buggy)
// padding rule of padding by size mod 4, preserved here for read/write
// compatibility with files written by GSF <= 1.2 (Design Notes §9,
// "Version-dependent padding").
func (v Version) PadsByTruncation() bool {
	if v.Major < 1 {
		return true
	}
	return v.Major == 1 && v.Minor <= 2
}

// Padding computes the number of pad bytes that must follow a record whose
// encoded data is n bytes, for this file's GSF version.
func (v Version) Padding(n uint32) uint32 {
	if v.PadsByTruncation() {
		return n % 4
	}
	return (4 - n%4) % 4
}

const currentHeaderVersion = "GSF-v3.10"

// headerRecordBody returns the NUL-padded ASCII body of the opening HEADER
// record written by Create.
func headerRecordBody() []byte {
	buf := make([]byte, 12)
	copy(buf, []byte(currentHeaderVersion))
	return buf
}

// parseVersion parses the "GSF-vM.m" header payload. A payload that does
// not match the expected prefix is UNRECOGNIZED_FILE (§4.4 "On any other
// open, the first record read must parse as such a header").
func parseVersion(body []byte) (Version, error) {
	trimmed := bytes.TrimRight(body, "\x00")
	var major, minor int
	n, err := fmt.Sscanf(string(trimmed), "GSF-v%d.%d", &major, &minor)
	if err != nil || n != 2 {
		return Version{}, ErrUnrecognizedFile
	}
	return Version{Major: major, Minor: minor}, nil
}

// RecordHdr describes a decoded GSF record envelope: its type, the size of
// its data payload (excluding the envelope and any checksum), the file
// offset at which the payload begins, and whether a checksum trails it.
type RecordHdr struct {
	Id           RecordID
	Datasize     uint32
	ByteIndex    int64
	ChecksumFlag bool
	Reserved     uint32
}

// packed_id bit layout (§3 "GSF record envelope").
const (
	checksumBit   uint32 = 0x80000000
	reservedMask  uint32 = 0x7FC00000
	reservedShift        = 22
	recordIDMask  uint32 = 0x003FFFFF
)

func packID(id RecordID, checksum bool) uint32 {
	v := uint32(id) & recordIDMask
	if checksum {
		v |= checksumBit
	}
	return v
}

// decodeRecordHdr decodes the 8 byte [data_size][packed_id] envelope header
// that precedes every GSF record's payload. The stream cursor must sit
// immediately after those 8 bytes on return so the caller can read
// Datasize (+4 if ChecksumFlag) payload bytes next.
func decodeRecordHdr(stream Stream) (RecordHdr, error) {
	var blob [2]uint32
	if err := binary.Read(stream, binary.BigEndian, &blob); err != nil {
		return RecordHdr{}, err
	}

	dataSize := blob[0]
	packed := blob[1]

	pos, err := Tell(stream)
	if err != nil {
		return RecordHdr{}, err
	}

	return RecordHdr{
		Id:           RecordID(packed & recordIDMask),
		Datasize:     dataSize,
		ByteIndex:    pos,
		ChecksumFlag: packed&checksumBit != 0,
		Reserved:     (packed & reservedMask) >> reservedShift,
	}, nil
}

// encodeRecordHdr writes the 8 byte envelope header for a record whose
// (already padded) data is dataSize bytes.
func encodeRecordHdr(stream Stream, id RecordID, dataSize uint32, checksum bool) error {
	blob := [2]uint32{dataSize, packID(id, checksum)}
	return binary.Write(stream, binary.BigEndian, &blob)
}

// checksum computes the GSF byte-sum checksum (a CRC32 in the reference
// implementation's successors, but the wire format this store speaks is the
// classic 32-bit additive sum used by gsf.c's gsfChecksum): the sum, modulo
// 2^32, of every byte in data.
func checksum(data []byte) uint32 {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return sum
}
