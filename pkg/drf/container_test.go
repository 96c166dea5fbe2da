package drf

import (
	"io"
	"testing"
	"time"

	"github.com/reson7k/sonarcore/pkg/frame"
)

func sampleDRF(t *testing.T, recordType frame.RecordTypeID, payload []byte) []byte {
	t.Helper()
	drf := frame.DataRecordFrame{
		ProtocolVersion: frame.DRFProto,
		Offset:          frame.DRFSize,
		SyncPattern:     frame.DRFSync,
		Size:            uint32(frame.DRFSize + len(payload)),
		Time:            frame.TimestampFrom7K(time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)),
		RecordTypeID:    uint32(recordType),
	}
	return append(drf.Encode(), payload...)
}

func TestContainerAddAndRecordCount(t *testing.T) {
	c := NewContainer(0, 0)
	f1 := sampleDRF(t, frame.RTDepth, []byte("one"))
	f2 := sampleDRF(t, frame.RTHeading, []byte("two"))

	if err := c.Add(f1); err != nil {
		t.Fatalf("Add f1: %v", err)
	}
	if err := c.Add(f2); err != nil {
		t.Fatalf("Add f2: %v", err)
	}
	if c.RecordCount() != 2 {
		t.Fatalf("RecordCount = %d, want 2", c.RecordCount())
	}
	if c.Len() != int64(len(f1)+len(f2)) {
		t.Fatalf("Len = %d, want %d", c.Len(), len(f1)+len(f2))
	}
}

func TestContainerAddRespectsMaxCap(t *testing.T) {
	c := NewContainer(16, 16) // 16 byte arena with a 16 byte ceiling
	big := make([]byte, 1<<21) // bigger than the cap, forces grow() to refuse
	if err := c.Add(big); err != ErrNoSpace {
		t.Fatalf("Add beyond maxCap: err = %v, want ErrNoSpace", err)
	}
}

func TestContainerReadSequential(t *testing.T) {
	c := NewContainer(0, 0)
	f1 := sampleDRF(t, frame.RTDepth, []byte("alpha"))
	_ = c.Add(f1)

	buf := make([]byte, len(f1))
	n, err := c.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != len(f1) {
		t.Fatalf("Read n = %d, want %d", n, len(f1))
	}

	if _, err := c.Read(buf); err != io.EOF {
		t.Fatalf("second Read err = %v, want io.EOF", err)
	}
}

func TestContainerSeekTell(t *testing.T) {
	c := NewContainer(0, 0)
	f1 := sampleDRF(t, frame.RTDepth, []byte("alpha"))
	f2 := sampleDRF(t, frame.RTHeading, []byte("beta"))
	_ = c.Add(f1)
	_ = c.Add(f2)

	if err := c.Seek(int64(len(f1))); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if c.Tell() != int64(len(f1)) {
		t.Fatalf("Tell = %d, want %d", c.Tell(), len(f1))
	}

	buf := make([]byte, len(f2))
	n, err := c.Read(buf)
	if err != nil || n != len(f2) {
		t.Fatalf("Read after seek: n=%d err=%v", n, err)
	}

	if err := c.Seek(c.Len() + 1); err != ErrSeekRange {
		t.Fatalf("Seek past write cursor: err = %v, want ErrSeekRange", err)
	}
}

func TestContainerEnumerate(t *testing.T) {
	c := NewContainer(0, 0)
	f1 := sampleDRF(t, frame.RTDepth, []byte("alpha"))
	f2 := sampleDRF(t, frame.RTHeading, []byte("beta"))
	_ = c.Add(f1)
	_ = c.Add(f2)

	var types []frame.RecordTypeID
	for {
		decoded, data, ok := c.Next()
		if !ok {
			break
		}
		types = append(types, frame.RecordTypeID(decoded.RecordTypeID))
		if len(data) != int(decoded.Size) {
			t.Fatalf("enumerated data length = %d, want %d", len(data), decoded.Size)
		}
	}
	if len(types) != 2 || types[0] != frame.RTDepth || types[1] != frame.RTHeading {
		t.Fatalf("enumerated types = %v, want [RTDepth RTHeading]", types)
	}

	// Enumeration is exhausted until explicitly reset.
	if _, _, ok := c.Next(); ok {
		t.Fatal("Next() after exhaustion should return ok=false")
	}
	c.ResetEnumeration()
	if _, _, ok := c.Next(); !ok {
		t.Fatal("Next() after ResetEnumeration should yield the first record again")
	}
}

func TestContainerFlush(t *testing.T) {
	c := NewContainer(0, 0)
	f1 := sampleDRF(t, frame.RTDepth, []byte("alpha"))
	_ = c.Add(f1)
	_ = c.Seek(1)

	c.Flush()

	if c.RecordCount() != 0 {
		t.Fatalf("RecordCount after Flush = %d, want 0", c.RecordCount())
	}
	if c.Len() != 0 {
		t.Fatalf("Len after Flush = %d, want 0", c.Len())
	}
	if c.Tell() != 0 {
		t.Fatalf("Tell after Flush = %d, want 0", c.Tell())
	}
	if _, _, ok := c.Next(); ok {
		t.Fatal("Next() after Flush should return ok=false")
	}
}
