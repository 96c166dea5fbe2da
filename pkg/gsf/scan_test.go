package gsf

import (
	"testing"
	"time"
)

func TestSummarizeByRecordTypeCountsAndOrdersByID(t *testing.T) {
	idx := newIndex()
	idx.blocks[SWATH_BATHYMETRY_PING] = []indexEntry{
		{Sec: 1000, Nsec: 0, Addr: 10},
		{Sec: 1002, Nsec: 0, Addr: 20},
		{Sec: 1001, Nsec: 0, Addr: 30},
	}
	idx.blocks[COMMENT] = []indexEntry{
		{Sec: 999, Nsec: 0, Addr: 5},
	}

	results := SummarizeByRecordType(idx, 2)
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}

	// RecordTypes() orders by id value: SWATH_BATHYMETRY_PING (2) comes
	// before COMMENT (6).
	ids := idx.RecordTypes()
	if ids[0] >= ids[1] {
		t.Fatalf("RecordTypes() not ascending: %v", ids)
	}

	var pingSummary RecordTypeSummary
	for _, r := range results {
		if r.RecordID == SWATH_BATHYMETRY_PING {
			pingSummary = r
		}
	}
	if pingSummary.Count != 3 {
		t.Fatalf("ping count = %d, want 3", pingSummary.Count)
	}
	wantFirst := time.Unix(1000, 0).UTC()
	wantLast := time.Unix(1002, 0).UTC()
	if !pingSummary.First.Equal(wantFirst) {
		t.Fatalf("First = %v, want %v", pingSummary.First, wantFirst)
	}
	if !pingSummary.Last.Equal(wantLast) {
		t.Fatalf("Last = %v, want %v", pingSummary.Last, wantLast)
	}
}

func TestSummarizeByRecordTypeEmptyIndex(t *testing.T) {
	idx := newIndex()
	results := SummarizeByRecordType(idx, 4)
	if len(results) != 0 {
		t.Fatalf("len(results) = %d, want 0 for an empty index", len(results))
	}
}

func TestCountReportsPerRecordTypeEntryCount(t *testing.T) {
	idx := newIndex()
	idx.blocks[ATTITUDE] = make([]indexEntry, 7)
	if idx.Count(ATTITUDE) != 7 {
		t.Fatalf("Count(ATTITUDE) = %d, want 7", idx.Count(ATTITUDE))
	}
	if idx.Count(COMMENT) != 0 {
		t.Fatalf("Count(COMMENT) = %d, want 0 for an absent record type", idx.Count(COMMENT))
	}
}
