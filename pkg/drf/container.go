// Package drf implements the DRF container (spec component D, §4.2): a
// growable byte arena with a parallel offset table that stores accepted
// Data Record Frames, and supports append, file-like sequential read,
// random seek/tell, and forward enumeration of the decoded frames it
// holds. Grounded on the mbtrn r7kr reader's r7k_drfcon_* family
// (original_source/src/mbtrn/r7kr/r7kc.c).
package drf

import (
	"errors"
	"io"

	"github.com/reson7k/sonarcore/pkg/frame"
)

// ErrNoSpace is returned by Add when the container has reached its
// configured maximum capacity and cannot grow further.
var ErrNoSpace = errors.New("drf: container at capacity")

// ErrSeekRange is returned by Seek when ofs is not within [0, write cursor].
var ErrSeekRange = errors.New("drf: seek position out of range")

// recordIncrement is the fixed growth step for the offset table, matching
// R7K_DRFC_RECORD_INC's role in the original container: the table grows in
// fixed-size chunks rather than one entry at a time.
const recordIncrement = 64

// Container is an append-only arena of accepted DRFs. It is not safe for
// concurrent use.
type Container struct {
	buf   []byte // len(buf) == current capacity; data lives in buf[:writeCursor]
	maxCap int   // 0 means unbounded (still grows in arenaIncrement steps)

	writeCursor int
	readCursor  int

	offsets    []int64
	enumCursor int
}

// NewContainer returns an empty container with the given initial capacity.
// maxCap bounds how large the arena may grow via Add; pass 0 for no bound.
func NewContainer(initialCap, maxCap int) *Container {
	if initialCap <= 0 {
		initialCap = arenaIncrement
	}
	return &Container{
		buf:    make([]byte, initialCap),
		maxCap: maxCap,
	}
}

// arenaIncrement is the fixed growth step for the byte arena itself.
const arenaIncrement = 1 << 20

// Space reports how many bytes can currently be appended before the arena
// must grow.
func (c *Container) Space() int {
	return len(c.buf) - c.writeCursor
}

// Len returns the number of bytes written to the arena (the write cursor).
func (c *Container) Len() int64 {
	return int64(c.writeCursor)
}

// RecordCount returns the number of accepted DRFs (len(offset table)).
func (c *Container) RecordCount() int {
	return len(c.offsets)
}

// grow extends the arena by arenaIncrement bytes, or returns false if doing
// so would exceed maxCap.
func (c *Container) grow() bool {
	newCap := len(c.buf) + arenaIncrement
	if c.maxCap > 0 && newCap > c.maxCap {
		return false
	}
	nb := make([]byte, newCap)
	copy(nb, c.buf[:c.writeCursor])
	c.buf = nb
	return true
}

// Add appends src as one accepted DRF, recording its starting offset in the
// offset table, growing the arena in fixed increments as needed (§4.2
// "add(src, len)").
func (c *Container) Add(src []byte) error {
	for len(src) > c.Space() {
		if !c.grow() {
			return ErrNoSpace
		}
	}

	offset := int64(c.writeCursor)
	copy(c.buf[c.writeCursor:], src)
	c.writeCursor += len(src)

	if len(c.offsets) == cap(c.offsets) {
		grown := make([]int64, len(c.offsets), len(c.offsets)+recordIncrement)
		copy(grown, c.offsets)
		c.offsets = grown
	}
	c.offsets = append(c.offsets, offset)

	return nil
}

// Read copies up to len(dst) bytes from the read cursor, bounded by the
// write cursor, and advances the cursor (§4.2 "read(dst, len)").
func (c *Container) Read(dst []byte) (int, error) {
	pending := c.writeCursor - c.readCursor
	if pending <= 0 {
		return 0, io.EOF
	}
	n := len(dst)
	if n > pending {
		n = pending
	}
	copy(dst, c.buf[c.readCursor:c.readCursor+n])
	c.readCursor += n
	return n, nil
}

// Seek repositions the read cursor to ofs, which must lie within
// [0, write cursor] (§4.2 "seek(ofs) ... ofs must be <= write cursor").
func (c *Container) Seek(ofs int64) error {
	if ofs < 0 || ofs > int64(c.writeCursor) {
		return ErrSeekRange
	}
	c.readCursor = int(ofs)
	return nil
}

// Tell returns the read cursor's current position.
func (c *Container) Tell() int64 {
	return int64(c.readCursor)
}

// ResetEnumeration rewinds forward enumeration back to the first accepted
// DRF (§4.2 "resetting enumeration is a separate call").
func (c *Container) ResetEnumeration() {
	c.enumCursor = 0
}

// Next decodes and returns the next accepted DRF in enumeration order, or
// ok=false once enumeration is exhausted (§4.2 "enumerate()/next()").
func (c *Container) Next() (drf frame.DataRecordFrame, data []byte, ok bool) {
	if c.enumCursor >= len(c.offsets) {
		return frame.DataRecordFrame{}, nil, false
	}
	off := c.offsets[c.enumCursor]
	c.enumCursor++

	decoded, err := frame.DecodeDataRecordFrame(c.buf[off:c.writeCursor])
	if err != nil {
		return frame.DataRecordFrame{}, nil, false
	}
	end := off + int64(decoded.Size)
	if end > int64(c.writeCursor) {
		end = int64(c.writeCursor)
	}
	return decoded, c.buf[off:end], true
}

// Flush zeroes the arena's contents and resets both cursors and the offset
// table, dropping RecordCount back to zero (§4.2 "flush()").
func (c *Container) Flush() {
	for i := range c.buf[:c.writeCursor] {
		c.buf[i] = 0
	}
	c.writeCursor = 0
	c.readCursor = 0
	c.offsets = c.offsets[:0]
	c.enumCursor = 0
}
