package relation

import (
	"fmt"

	"bptreeidx/pagestore"
)

// Scanner walks every tuple of a Relation in (page, slot) order, the
// sequential access pattern the index core's bulk-load relies on.
type Scanner struct {
	r        *Relation
	bp       *pagestore.BufferPool
	page     pagestore.PageId
	slot     int32
	lastPage pagestore.PageId
}

// StartScan positions a new Scanner at the first tuple of r.
func (r *Relation) StartScan() *Scanner {
	return &Scanner{r: r, bp: r.bp, page: 1, slot: 0, lastPage: r.lastPage}
}

// ScanNext returns the next tuple's record id and bytes, or
// ErrEndOfFile once every page has been visited.
func (s *Scanner) ScanNext() (RecordId, []byte, error) {
	for s.page <= s.lastPage {
		pg, err := s.bp.FetchPage(s.page)
		if err != nil {
			return RecordId{}, nil, fmt.Errorf("relation scan: fetch page %d: %w", s.page, err)
		}
		v := asPage(pg)
		n := v.numSlots()
		if s.slot >= n {
			if err := s.bp.UnpinPage(s.page, false); err != nil {
				return RecordId{}, nil, err
			}
			s.page++
			s.slot = 0
			continue
		}
		_, tupleLen := v.slot(s.slot)
		if tupleLen == 0 {
			// Deleted slot; skip it without surfacing a tuple.
			if err := s.bp.UnpinPage(s.page, false); err != nil {
				return RecordId{}, nil, err
			}
			s.slot++
			continue
		}
		data := v.tuple(s.slot)
		rid := RecordId{PageNumber: int32(s.page), SlotNumber: s.slot}
		if err := s.bp.UnpinPage(s.page, false); err != nil {
			return RecordId{}, nil, err
		}
		s.slot++
		return rid, data, nil
	}
	return RecordId{}, nil, ErrEndOfFile
}
