package bptree

import (
	"fmt"

	"bptreeidx/pagestore"
)

// scanState is the cursor C4 describes: exactly one pinned leaf, a
// slot cursor into it, and the active range bounds. Index holds one
// at a time — there is no concurrent multi-cursor support, matching
// the single-threaded resource model.
type scanState struct {
	active bool
	leafPg *pagestore.Page
	slot   int

	low, high     int32
	lowOp, highOp Operator
}

func passesLow(key, low int32, op Operator) bool {
	if op == GTE {
		return key >= low
	}
	return key > low
}

func passesHigh(key, high int32, op Operator) bool {
	if op == LTE {
		return key <= high
	}
	return key < high
}

// StartScan validates the range, descends to the leaf owning low, and
// positions the cursor at the first qualifying entry. Any prior scan
// is ended first.
func (ix *Index) StartScan(low int32, lowOp Operator, high int32, highOp Operator) error {
	if lowOp != GT && lowOp != GTE {
		return fmt.Errorf("startScan: %w", ErrBadOpcodes)
	}
	if highOp != LT && highOp != LTE {
		return fmt.Errorf("startScan: %w", ErrBadOpcodes)
	}
	if low > high {
		return fmt.Errorf("startScan: %w", ErrBadRange)
	}

	if ix.scan.active {
		if err := ix.bp.UnpinPage(ix.scan.leafPg.ID, false); err != nil {
			return err
		}
		ix.scan.active = false
		ix.scan.leafPg = nil
	}

	lv, err := ix.descendToLeaf(ix.root, low)
	if err != nil {
		return fmt.Errorf("startScan: %w", err)
	}

	for {
		n := lv.used()
		slot := 0
		for slot < n {
			k := lv.Key(slot)
			if passesLow(k, low, lowOp) {
				if !passesHigh(k, high, highOp) {
					if err := ix.bp.UnpinPage(lv.pg.ID, false); err != nil {
						return err
					}
					return fmt.Errorf("startScan: %w", ErrNoSuchKey)
				}
				ix.scan = scanState{
					active: true,
					leafPg: lv.pg,
					slot:   slot,
					low:    low, lowOp: lowOp,
					high: high, highOp: highOp,
				}
				return nil
			}
			slot++
		}

		rightId := lv.RightSib()
		if err := ix.bp.UnpinPage(lv.pg.ID, false); err != nil {
			return err
		}
		if rightId == 0 {
			return fmt.Errorf("startScan: %w", ErrNoSuchKey)
		}
		npg, err := ix.bp.FetchPage(rightId)
		if err != nil {
			return fmt.Errorf("startScan: %w", err)
		}
		lv = asLeaf(npg)
	}
}

// ScanNext returns the next in-range rid, walking the leaf's sibling
// chain as needed. The leaf view is rebound after every sibling step
// and the slot cursor restarts at 0 on the new leaf — the two bugs
// spec.md calls out by name in the source material.
func (ix *Index) ScanNext() (RecordId, error) {
	if !ix.scan.active {
		return RecordId{}, fmt.Errorf("scanNext: %w", ErrScanNotInitialized)
	}

	lv := asLeaf(ix.scan.leafPg)
	for {
		n := lv.used()
		if ix.scan.slot >= n {
			rightId := lv.RightSib()
			if err := ix.bp.UnpinPage(lv.pg.ID, false); err != nil {
				return RecordId{}, err
			}
			if rightId == 0 {
				ix.scan.active = false
				ix.scan.leafPg = nil
				return RecordId{}, fmt.Errorf("scanNext: %w", ErrScanCompleted)
			}
			npg, err := ix.bp.FetchPage(rightId)
			if err != nil {
				ix.scan.active = false
				return RecordId{}, fmt.Errorf("scanNext: %w", err)
			}
			lv = asLeaf(npg)
			ix.scan.leafPg = npg
			ix.scan.slot = 0
			continue
		}

		k := lv.Key(ix.scan.slot)
		if passesLow(k, ix.scan.low, ix.scan.lowOp) && passesHigh(k, ix.scan.high, ix.scan.highOp) {
			rid := lv.Rid(ix.scan.slot)
			ix.scan.slot++
			return rid, nil
		}

		if err := ix.bp.UnpinPage(lv.pg.ID, false); err != nil {
			return RecordId{}, err
		}
		ix.scan.active = false
		ix.scan.leafPg = nil
		return RecordId{}, fmt.Errorf("scanNext: %w", ErrScanCompleted)
	}
}

// EndScan releases the cursor's pinned leaf and marks it inactive.
func (ix *Index) EndScan() error {
	if !ix.scan.active {
		return fmt.Errorf("endScan: %w", ErrScanNotInitialized)
	}
	if err := ix.bp.UnpinPage(ix.scan.leafPg.ID, false); err != nil {
		return err
	}
	ix.scan.active = false
	ix.scan.leafPg = nil
	return nil
}
