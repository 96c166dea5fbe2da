package gsf

import (
	"bytes"
	"errors"
	"fmt"
)

// OpenMode selects the access pattern a File is opened under (§4.4 "File
// lifecycle"). The _INDEX variants additionally build or consume a sidecar
// Index alongside the data file.
type OpenMode int

const (
	READONLY OpenMode = iota
	UPDATE
	CREATE
	APPEND
	READONLY_INDEX
	UPDATE_INDEX
	CREATE_INDEX
	APPEND_INDEX
)

// indexed reports whether mode builds or consumes a sidecar index.
func (m OpenMode) indexed() bool {
	switch m {
	case READONLY_INDEX, UPDATE_INDEX, CREATE_INDEX, APPEND_INDEX:
		return true
	default:
		return false
	}
}

// writable reports whether mode permits WriteRecord.
func (m OpenMode) writable() bool {
	switch m {
	case UPDATE, CREATE, APPEND, UPDATE_INDEX, CREATE_INDEX, APPEND_INDEX:
		return true
	default:
		return false
	}
}

// lastOp tracks the direction of the most recent operation on a File, so a
// UPDATE-class handle can flush the underlying stream's buffers on a
// read/write direction change (§4.4).
type lastOp int

const (
	opNone lastOp = iota
	opRead
	opWrite
	opFlush
)

// File is an open GSF record store: a byte stream plus the version, scale
// factor table, and bookkeeping state needed to decode and encode records
// sequentially or (when opened _INDEX) at random by ping number.
//
// A File is not safe for concurrent use; every GSF file handle is a
// single-threaded cooperative object (§5 "Scheduling model").
type File struct {
	Path    string
	Mode    OpenMode
	Version Version

	stream   Stream
	lastOp   lastOp
	scales   *ScaleFactorTable
	Index    *Index
	filesize int64
}

// Open opens path under mode against an already-positioned Stream (typically
// an *os.File). The caller supplies the stream rather than a filename so
// tests can exercise File against an in-memory buffer. indexStream is the
// sidecar index file's stream and is only consulted/written for a _INDEX
// mode; pass nil to always rebuild the index in memory without persisting
// it.
func Open(stream Stream, indexStream Stream, path string, mode OpenMode, filesize int64) (*File, error) {
	f := &File{
		Path:     path,
		Mode:     mode,
		stream:   stream,
		scales:   NewScaleFactorTable(),
		filesize: filesize,
	}

	switch mode {
	case CREATE, CREATE_INDEX:
		if err := f.writeHeader(); err != nil {
			return nil, err
		}
	default:
		if err := f.readHeader(); err != nil {
			return nil, err
		}
	}

	if mode.indexed() {
		idx, err := openIndex(f, indexStream)
		if err != nil {
			return nil, err
		}
		f.Index = idx
	}

	return f, nil
}

// writeHeader writes the opening HEADER record carrying this library's
// version string, used by CREATE/CREATE_INDEX.
func (f *File) writeHeader() error {
	f.Version = Version{Major: 3, Minor: 10}
	if err := encodeRecordHdr(f.stream, HEADER, uint32(len(headerRecordBody())), false); err != nil {
		return err
	}
	_, err := f.stream.Write(headerRecordBody())
	f.lastOp = opWrite
	return err
}

// readHeader reads and validates the first record of the file, which must
// parse as a "GSF-vM.m" header. Any other outcome is UNRECOGNIZED_FILE
// (§4.4 "On any other open, the first record read must parse as such a
// header; failure returns UNRECOGNIZED_FILE and releases the slot").
func (f *File) readHeader() error {
	hdr, err := decodeRecordHdr(f.stream)
	if err != nil {
		return fmt.Errorf("gsf: reading header record: %w", ErrUnrecognizedFile)
	}
	if hdr.Id != HEADER {
		return ErrUnrecognizedFile
	}

	body := make([]byte, hdr.Datasize)
	if _, err := f.stream.Read(body); err != nil {
		return fmt.Errorf("gsf: reading header body: %w", ErrUnrecognizedFile)
	}

	version, err := parseVersion(body)
	if err != nil {
		return err
	}
	f.Version = version
	f.lastOp = opRead
	return nil
}

// flushIfDirectionChanged issues a flush when switching between read and
// write on a writable mode, per §4.4's last_op tracking.
func (f *File) flushIfDirectionChanged(next lastOp) error {
	if !f.Mode.writable() {
		return nil
	}
	if f.lastOp != opNone && f.lastOp != opFlush && f.lastOp != next {
		if flusher, ok := f.stream.(interface{ Flush() error }); ok {
			if err := flusher.Flush(); err != nil {
				return ErrFlush
			}
		}
		f.lastOp = opFlush
	}
	return nil
}

// Record is a single decoded GSF record: its envelope header and the typed
// body produced by the decoder for its record id.
type Record struct {
	Header RecordHdr
	Body   any
}

// ReadNextRecord reads and decodes the next record in sequential order,
// advancing the stream. A record whose size is <= 8 or > MAX_RECORD_SIZE is
// a fatal framing error. A short read at EOF rewinds to the start of the
// attempted record and returns ErrReadToEndOfFile (§4.4, §7 "GSF layer is
// additionally stricter ...").
func (f *File) ReadNextRecord() (Record, error) {
	if err := f.flushIfDirectionChanged(opRead); err != nil {
		return Record{}, err
	}

	start, err := Tell(f.stream)
	if err != nil {
		return Record{}, ErrFileSeek
	}

	hdr, err := decodeRecordHdr(f.stream)
	if err != nil {
		_, _ = f.stream.Seek(start, 0)
		return Record{}, ErrReadToEndOfFile
	}

	if hdr.Datasize <= 8 || hdr.Datasize > MAX_RECORD_SIZE {
		return Record{}, ErrRecordSize
	}

	readLen := hdr.Datasize
	if hdr.ChecksumFlag {
		readLen += 4
	}
	payload := make([]byte, readLen)
	if n, err := fillBuffer(f.stream, payload); err != nil || n < len(payload) {
		_, _ = f.stream.Seek(start, 0)
		return Record{}, ErrReadToEndOfFile
	}

	body := payload
	if hdr.ChecksumFlag {
		body = payload[:hdr.Datasize]
		want := checksum(body)
		got := uint32(payload[hdr.Datasize])<<24 | uint32(payload[hdr.Datasize+1])<<16 |
			uint32(payload[hdr.Datasize+2])<<8 | uint32(payload[hdr.Datasize+3])
		if want != got {
			return Record{}, ErrChecksumFailure
		}
	}

	decoded, err := f.decodeBody(hdr.Id, body)
	if err != nil {
		return Record{}, err
	}

	f.lastOp = opRead
	return Record{Header: hdr, Body: decoded}, nil
}

// fillBuffer reads exactly len(buf) bytes from stream, tolerating the short
// reads a real file or socket may return (§3 "Partial/short reads").
func fillBuffer(stream Stream, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := stream.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, errors.New("gsf: short read")
		}
	}
	return total, nil
}

// decodeBody dispatches a record's raw payload to the decoder for its id.
// An unrecognized id is reported but does not stop the caller from
// continuing past the record (the bytes have already been consumed).
func (f *File) decodeBody(id RecordID, body []byte) (any, error) {
	switch id {
	case HEADER:
		return parseVersion(body)
	case SWATH_BATHYMETRY_PING:
		return DecodePing(body, f.scales)
	case SOUND_VELOCITY_PROFILE:
		return DecodeSoundVelocityProfile(body)
	case PROCESSING_PARAMETERS:
		return DecodeProcessingParameters(body)
	case COMMENT:
		return DecodeComment(body)
	case SWATH_BATHY_SUMMARY:
		return DecodeSwathBathySummary(bytes.NewReader(body))
	case ATTITUDE:
		return DecodeAttitude(body)
	default:
		return nil, ErrUnrecognizedRecordID
	}
}

// WriteRecord encodes body for recordID, pads it per the file's version
// rule, and appends the envelope plus payload (plus checksum, if
// requested) to the stream.
func (f *File) WriteRecord(recordID RecordID, body []byte, withChecksum bool) error {
	if !f.Mode.writable() {
		return ErrBadAccessMode
	}
	if err := f.flushIfDirectionChanged(opWrite); err != nil {
		return err
	}

	pad := f.Version.Padding(uint32(len(body)))
	padded := append(append([]byte{}, body...), make([]byte, pad)...)

	if err := encodeRecordHdr(f.stream, recordID, uint32(len(padded)), withChecksum); err != nil {
		return ErrWrite
	}
	if _, err := f.stream.Write(padded); err != nil {
		return ErrWrite
	}
	if withChecksum {
		sum := checksum(padded)
		sumBytes := []byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)}
		if _, err := f.stream.Write(sumBytes); err != nil {
			return ErrWrite
		}
	}

	f.lastOp = opWrite
	return nil
}

// Close flushes any buffered writes. Once closed the File must not be used.
func (f *File) Close() error {
	if flusher, ok := f.stream.(interface{ Flush() error }); ok {
		if err := flusher.Flush(); err != nil {
			return ErrFlush
		}
	}
	return nil
}
