package gsf

import (
	"sort"
	"sync"
	"time"

	"github.com/alitto/pond"
)

// RecordTypeSummary is the {count, first, last} reduction over every record
// of one record type present in a file's index.
type RecordTypeSummary struct {
	RecordID RecordID
	Count    int
	First    time.Time
	Last     time.Time
}

// RecordTypes returns every record id represented in the index, ascending.
func (idx *Index) RecordTypes() []RecordID {
	ids := make([]RecordID, 0, len(idx.blocks))
	for id := range idx.blocks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Count reports how many records of id the index holds.
func (idx *Index) Count(id RecordID) int {
	return len(idx.blocks[id])
}

// SummarizeByRecordType computes one RecordTypeSummary per record type
// present in idx. Each record type's reduction runs on its own pond worker:
// the per-type entry slices are disjoint and the reduction reads only
// already-indexed {sec, nsec} pairs, never the file itself, so no File
// concurrency constraint is violated. Grounded on cmd/main.go's
// convert_gsf_list: a fixed pond pool sized by the caller, one Submit per
// independent unit of work, StopAndWait before returning.
func SummarizeByRecordType(idx *Index, workers int) []RecordTypeSummary {
	ids := idx.RecordTypes()
	if workers <= 0 {
		workers = 1
	}
	pool := pond.New(workers, 0, pond.MinWorkers(workers))
	defer pool.StopAndWait()

	results := make([]RecordTypeSummary, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		i, id := i, id
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			results[i] = summarizeRecordType(id, idx.blocks[id])
		})
	}
	wg.Wait()
	return results
}

func summarizeRecordType(id RecordID, entries []indexEntry) RecordTypeSummary {
	s := RecordTypeSummary{RecordID: id, Count: len(entries)}
	for i, e := range entries {
		t := time.Unix(int64(e.Sec), int64(e.Nsec)).UTC()
		if i == 0 || t.Before(s.First) {
			s.First = t
		}
		if i == 0 || t.After(s.Last) {
			s.Last = t
		}
	}
	return s
}
