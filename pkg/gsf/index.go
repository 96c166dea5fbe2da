package gsf

import (
	"encoding/binary"
	"errors"
	"sort"
)

// indexMagic identifies a sidecar index file written by this package.
const indexMagic uint32 = 0x47534658 // "GSFX"

// indexEntry is one {sec, nsec, addr} triple recorded for a single record
// of some record type (§6 "Sidecar index file layout").
type indexEntry struct {
	Sec  int32
	Nsec int32
	Addr int64
}

// Index is the sidecar index for a GSF file opened under a _INDEX mode: a
// per-record-type block of entries, plus a parallel array of the byte
// offsets of every SWATH_BATHYMETRY_PING record that carried a
// SCALE_FACTORS subrecord (used to resolve the scale factor table in force
// at an arbitrary ping without a full sequential scan).
type Index struct {
	SourceSize    int64
	blocks        map[RecordID][]indexEntry
	scaleAddrs    []int64
	lastScaleAddr int64
}

// newIndex returns an empty index sized for a fresh build.
func newIndex() *Index {
	return &Index{blocks: make(map[RecordID][]indexEntry), lastScaleAddr: -1}
}

// openIndex loads the sidecar index from indexStream if its header's
// recorded source size matches f.filesize, otherwise (or if indexStream is
// nil) rebuilds it from a sequential scan and, when f was opened in a
// writable mode, persists the rebuilt index back to indexStream (§4.4 "If the index file
// header ... differs, the index is rebuilt. If the index magic is absent
// or malformed, the index is rebuilt unconditionally").
func openIndex(f *File, indexStream Stream) (*Index, error) {
	if indexStream != nil {
		if idx, err := LoadIndex(indexStream, f.filesize); err == nil {
			return idx, nil
		}
	}

	idx, err := buildIndex(f)
	if err != nil {
		return nil, err
	}

	if indexStream != nil && f.Mode.writable() {
		_ = SaveIndex(idx, indexStream)
	}

	return idx, nil
}

// buildIndex performs a full sequential scan of f from its current header
// position, recording every record's {sec, nsec, addr} under its record id
// and collecting the addresses of scale-factor-bearing pings.
func buildIndex(f *File) (*Index, error) {
	idx := newIndex()
	idx.SourceSize = f.filesize

	for {
		scalesBefore := f.scales.count

		rec, err := f.ReadNextRecord()
		if errors.Is(err, ErrReadToEndOfFile) {
			break
		}
		if errors.Is(err, ErrUnrecognizedRecordID) {
			continue
		}
		if err != nil {
			return nil, err
		}

		// ByteIndex is the payload offset; the index stores the record start,
		// 8 bytes earlier, which is where ReadPing decodes the header.
		addr := rec.Header.ByteIndex - 8
		sec, nsec := recordTimestamp(rec.Body)
		entry := indexEntry{Sec: sec, Nsec: nsec, Addr: addr}
		idx.blocks[rec.Header.Id] = append(idx.blocks[rec.Header.Id], entry)

		// A ping is a scale-factor candidate only if decoding it added a
		// subrecord id not yet present in the running table (the count of
		// set ids grew), not merely because it is a ping; a SCALE_FACTORS
		// subrecord that only changes existing entries is not recorded.
		if rec.Header.Id == SWATH_BATHYMETRY_PING && f.scales.count != scalesBefore {
			idx.scaleAddrs = append(idx.scaleAddrs, addr)
		}
	}

	return idx, nil
}

// recordTimestamp extracts the (seconds, nanoseconds) pair carried by a
// decoded record body, used to populate an index entry. Records with no
// natural timestamp (HEADER, PROCESSING_PARAMETERS read during an index
// scan before any ping) are indexed with a zero timestamp.
func recordTimestamp(body any) (int32, int32) {
	switch v := body.(type) {
	case Ping:
		return int32(v.Header.Timestamp.Unix()), int32(v.Header.Timestamp.Nanosecond())
	case Comment:
		return int32(v.Timestamp.Unix()), int32(v.Timestamp.Nanosecond())
	case SoundVelocityProfile:
		return int32(v.ObservationTimestamp.Unix()), int32(v.ObservationTimestamp.Nanosecond())
	default:
		return 0, 0
	}
}

// PingAddress returns the byte offset of ping number n (1-based, within the
// SWATH_BATHYMETRY_PING block) per §4.4 "To read ping n ... look up entry
// n-1 in that type's offset block".
func (idx *Index) PingAddress(n int) (int64, error) {
	entries := idx.blocks[SWATH_BATHYMETRY_PING]
	if n < 1 || n > len(entries) {
		return 0, errors.New("gsf: ping number out of range")
	}
	return entries[n-1].Addr, nil
}

// ScaleFactorAddressFor returns the address of the largest scale-factor
// bearing ping whose address is <= pingAddr (§4.4 "locate the largest-
// address scale-factor record whose address is <= the ping's address").
func (idx *Index) ScaleFactorAddressFor(pingAddr int64) (int64, bool) {
	addrs := idx.scaleAddrs
	i := sort.Search(len(addrs), func(i int) bool { return addrs[i] > pingAddr })
	if i == 0 {
		return 0, false
	}
	return addrs[i-1], true
}

// ReadPing performs indexed random access to ping number n: it resolves and
// (if it changed since the last read) reloads the scale factor table in
// force at that ping, then seeks and decodes it.
func (f *File) ReadPing(n int) (Ping, error) {
	if f.Index == nil {
		return Ping{}, errors.New("gsf: file was not opened with an _INDEX mode")
	}

	pingAddr, err := f.Index.PingAddress(n)
	if err != nil {
		return Ping{}, err
	}

	if sfAddr, ok := f.Index.ScaleFactorAddressFor(pingAddr); ok && sfAddr != f.Index.lastScaleAddr {
		if _, err := f.stream.Seek(sfAddr, 0); err != nil {
			return Ping{}, ErrFileSeek
		}
		hdr, err := decodeRecordHdr(f.stream)
		if err != nil {
			return Ping{}, err
		}
		body := make([]byte, hdr.Datasize)
		if _, err := fillBuffer(f.stream, body); err != nil {
			return Ping{}, ErrRead
		}
		if _, err := DecodePing(body, f.scales); err != nil {
			return Ping{}, err
		}
		f.Index.lastScaleAddr = sfAddr
	}

	if _, err := f.stream.Seek(pingAddr, 0); err != nil {
		return Ping{}, ErrFileSeek
	}
	hdr, err := decodeRecordHdr(f.stream)
	if err != nil {
		return Ping{}, err
	}
	body := make([]byte, hdr.Datasize)
	if _, err := fillBuffer(f.stream, body); err != nil {
		return Ping{}, ErrRead
	}
	f.lastOp = opRead
	return DecodePing(body, f.scales)
}

// encodeIndexEntry and decodeIndexEntry implement the on-disk index entry
// codec. Per Design Notes §9 ("gsfIndexTime byte-swaps three longs..."),
// each field is swapped independently rather than as a single struct-sized
// blob: the ambiguity the source left unresolved is treated here as an
// explicit per-field requirement, not an implicit one.
func encodeIndexEntry(e indexEntry) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint32(buf[0:4], uint32(e.Sec))
	binary.BigEndian.PutUint32(buf[4:8], uint32(e.Nsec))
	binary.BigEndian.PutUint64(buf[8:16], uint64(e.Addr))
	return buf
}

func decodeIndexEntry(buf []byte) indexEntry {
	return indexEntry{
		Sec:  int32(binary.BigEndian.Uint32(buf[0:4])),
		Nsec: int32(binary.BigEndian.Uint32(buf[4:8])),
		Addr: int64(binary.BigEndian.Uint64(buf[8:16])),
	}
}

// recordOrder fixes the on-disk block ordering of a saved index so
// SaveIndex/LoadIndex round-trip regardless of Go's randomized map
// iteration order.
var recordOrder = []RecordID{
	HEADER, SWATH_BATHYMETRY_PING, SOUND_VELOCITY_PROFILE, PROCESSING_PARAMETERS,
	SENSOR_PARAMETERS, COMMENT, HISTORY, NAVIGATION_ERROR, SWATH_BATHY_SUMMARY,
	SINGLE_BEAM_PING, HV_NAVIGATION_ERROR, ATTITUDE,
}

// SaveIndex writes idx to stream in the sidecar index layout: a magic and
// source-size header, then one block per record type of
// {count}{entry...}, then the scale-factor address array.
func SaveIndex(idx *Index, stream Stream) error {
	header := make([]byte, 12)
	binary.BigEndian.PutUint32(header[0:4], indexMagic)
	binary.BigEndian.PutUint64(header[4:12], uint64(idx.SourceSize))
	if _, err := stream.Write(header); err != nil {
		return ErrWrite
	}

	for _, id := range recordOrder {
		entries := idx.blocks[id]
		count := make([]byte, 4)
		binary.BigEndian.PutUint32(count, uint32(len(entries)))
		if _, err := stream.Write(count); err != nil {
			return ErrWrite
		}
		for _, e := range entries {
			if _, err := stream.Write(encodeIndexEntry(e)); err != nil {
				return ErrWrite
			}
		}
	}

	scaleCount := make([]byte, 4)
	binary.BigEndian.PutUint32(scaleCount, uint32(len(idx.scaleAddrs)))
	if _, err := stream.Write(scaleCount); err != nil {
		return ErrWrite
	}
	for _, addr := range idx.scaleAddrs {
		addrBuf := make([]byte, 8)
		binary.BigEndian.PutUint64(addrBuf, uint64(addr))
		if _, err := stream.Write(addrBuf); err != nil {
			return ErrWrite
		}
	}

	return nil
}

// LoadIndex reads a sidecar index previously written by SaveIndex. It
// rejects (ErrIndexMalformed) a missing/incorrect magic, and rejects
// (ErrIndexStale) an index whose recorded source size does not match
// wantSourceSize, in either case signalling the caller to rebuild (§4.4).
func LoadIndex(stream Stream, wantSourceSize int64) (*Index, error) {
	header := make([]byte, 12)
	if _, err := fillBuffer(stream, header); err != nil {
		return nil, ErrIndexMalformed
	}
	if binary.BigEndian.Uint32(header[0:4]) != indexMagic {
		return nil, ErrIndexMalformed
	}
	sourceSize := int64(binary.BigEndian.Uint64(header[4:12]))
	if sourceSize != wantSourceSize {
		return nil, ErrIndexStale
	}

	idx := newIndex()
	idx.SourceSize = sourceSize

	for _, id := range recordOrder {
		countBuf := make([]byte, 4)
		if _, err := fillBuffer(stream, countBuf); err != nil {
			return nil, ErrIndexMalformed
		}
		count := binary.BigEndian.Uint32(countBuf)
		entries := make([]indexEntry, 0, count)
		entryBuf := make([]byte, 16)
		for i := uint32(0); i < count; i++ {
			if _, err := fillBuffer(stream, entryBuf); err != nil {
				return nil, ErrIndexMalformed
			}
			entries = append(entries, decodeIndexEntry(entryBuf))
		}
		if count > 0 {
			idx.blocks[id] = entries
		}
	}

	scaleCountBuf := make([]byte, 4)
	if _, err := fillBuffer(stream, scaleCountBuf); err != nil {
		return nil, ErrIndexMalformed
	}
	scaleCount := binary.BigEndian.Uint32(scaleCountBuf)
	addrBuf := make([]byte, 8)
	for i := uint32(0); i < scaleCount; i++ {
		if _, err := fillBuffer(stream, addrBuf); err != nil {
			return nil, ErrIndexMalformed
		}
		idx.scaleAddrs = append(idx.scaleAddrs, int64(binary.BigEndian.Uint64(addrBuf)))
	}

	return idx, nil
}
