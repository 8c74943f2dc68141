package bptree

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"bptreeidx/pagestore"
	"bptreeidx/relation"
)

// openFreshIndex builds an empty relation plus a brand-new index over
// it, so tests can drive InsertEntry directly with synthetic rids
// instead of routing every entry through a bulk-loaded relation scan.
func openFreshIndex(t *testing.T, name string) *Index {
	t.Helper()
	testDir := filepath.Join(os.TempDir(), "bptreeidx_test")
	os.MkdirAll(testDir, 0755)
	t.Cleanup(func() { os.RemoveAll(testDir) })

	relFile, err := pagestore.Create(filepath.Join(testDir, name+".rel"))
	if err != nil {
		t.Fatalf("create relation file: %v", err)
	}
	t.Cleanup(func() { relFile.Close() })
	relBp := pagestore.NewBufferPool(relFile, 32)

	rel, err := relation.Open(name, relBp, relFile)
	if err != nil {
		t.Fatalf("relation.Open: %v", err)
	}

	idxPath := filepath.Join(testDir, IndexFileName(name, 0))
	idxFile, err := pagestore.Create(idxPath)
	if err != nil {
		t.Fatalf("create index file: %v", err)
	}
	t.Cleanup(func() { idxFile.Close() })
	idxBp := pagestore.NewBufferPool(idxFile, 64)

	ix, err := Open(rel, 0, INTEGER, idxBp)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return ix
}

func scanAll(t *testing.T, ix *Index) []RecordId {
	t.Helper()
	if err := ix.StartScan(-1<<31, GTE, (1<<31)-1, LTE); err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	var out []RecordId
	for {
		rid, err := ix.ScanNext()
		if err != nil {
			if errors.Is(err, ErrScanCompleted) {
				break
			}
			t.Fatalf("ScanNext: %v", err)
		}
		out = append(out, rid)
	}
	return out
}

func TestFreshBuildSingleLeaf(t *testing.T) {
	ix := openFreshIndex(t, "scenario1")
	keys := []int32{5, 2, 8, 1}
	for i, k := range keys {
		if err := ix.InsertEntry(k, RecordId{PageNumber: 1, SlotNumber: int32(i)}); err != nil {
			t.Fatalf("InsertEntry(%d): %v", k, err)
		}
	}

	rids := scanAll(t, ix)
	want := []RecordId{
		{PageNumber: 1, SlotNumber: 3}, // key 1
		{PageNumber: 1, SlotNumber: 1}, // key 2
		{PageNumber: 1, SlotNumber: 0}, // key 5
		{PageNumber: 1, SlotNumber: 2}, // key 8
	}
	if len(rids) != len(want) {
		t.Fatalf("expected %d rids, got %d: %v", len(want), len(rids), rids)
	}
	for i := range want {
		if rids[i] != want[i] {
			t.Errorf("rid[%d] = %+v, want %+v", i, rids[i], want[i])
		}
	}
}

func TestRangeScanExactAndStrictBounds(t *testing.T) {
	ix := openFreshIndex(t, "scenario34")
	for k := int32(1); k <= 20; k++ {
		if err := ix.InsertEntry(k, RecordId{PageNumber: 1, SlotNumber: k}); err != nil {
			t.Fatalf("InsertEntry(%d): %v", k, err)
		}
	}

	if err := ix.StartScan(5, GTE, 10, LTE); err != nil {
		t.Fatalf("StartScan inclusive: %v", err)
	}
	var got []int32
	for {
		rid, err := ix.ScanNext()
		if err != nil {
			if errors.Is(err, ErrScanCompleted) {
				break
			}
			t.Fatalf("ScanNext: %v", err)
		}
		got = append(got, rid.SlotNumber)
	}
	wantInclusive := []int32{5, 6, 7, 8, 9, 10}
	if !equalInt32(got, wantInclusive) {
		t.Errorf("GTE/LTE scan = %v, want %v", got, wantInclusive)
	}

	if err := ix.StartScan(5, GT, 10, LT); err != nil {
		t.Fatalf("StartScan strict: %v", err)
	}
	got = nil
	for {
		rid, err := ix.ScanNext()
		if err != nil {
			if errors.Is(err, ErrScanCompleted) {
				break
			}
			t.Fatalf("ScanNext: %v", err)
		}
		got = append(got, rid.SlotNumber)
	}
	wantStrict := []int32{6, 7, 8, 9}
	if !equalInt32(got, wantStrict) {
		t.Errorf("GT/LT scan = %v, want %v", got, wantStrict)
	}
}

func TestEmptyRangeRaisesNoSuchKey(t *testing.T) {
	ix := openFreshIndex(t, "scenario5")
	for _, k := range []int32{100, 200, 300} {
		if err := ix.InsertEntry(k, RecordId{PageNumber: 1, SlotNumber: k}); err != nil {
			t.Fatalf("InsertEntry(%d): %v", k, err)
		}
	}

	err := ix.StartScan(400, GTE, 500, LTE)
	if !errors.Is(err, ErrNoSuchKey) {
		t.Fatalf("expected ErrNoSuchKey, got %v", err)
	}
}

func TestScanNextAfterCompletionNeedsRestart(t *testing.T) {
	ix := openFreshIndex(t, "scenario_bound")
	for _, k := range []int32{1, 2, 3} {
		if err := ix.InsertEntry(k, RecordId{PageNumber: 1, SlotNumber: k}); err != nil {
			t.Fatalf("InsertEntry(%d): %v", k, err)
		}
	}
	if err := ix.StartScan(1, GTE, 3, LTE); err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := ix.ScanNext(); err != nil {
			t.Fatalf("ScanNext %d: %v", i, err)
		}
	}
	if _, err := ix.ScanNext(); !errors.Is(err, ErrScanCompleted) {
		t.Fatalf("expected ErrScanCompleted, got %v", err)
	}
	if _, err := ix.ScanNext(); !errors.Is(err, ErrScanNotInitialized) {
		t.Fatalf("expected ErrScanNotInitialized after completion, got %v", err)
	}
}

func TestBadOpcodesAndBadRange(t *testing.T) {
	ix := openFreshIndex(t, "scenario_badops")
	if err := ix.InsertEntry(1, RecordId{PageNumber: 1, SlotNumber: 1}); err != nil {
		t.Fatalf("InsertEntry: %v", err)
	}
	if err := ix.StartScan(1, LT, 10, LTE); !errors.Is(err, ErrBadOpcodes) {
		t.Fatalf("expected ErrBadOpcodes for a low bound using LT, got %v", err)
	}
	if err := ix.StartScan(10, GTE, 1, LTE); !errors.Is(err, ErrBadRange) {
		t.Fatalf("expected ErrBadRange for low > high, got %v", err)
	}
}

func TestLeafSplitAndRootGrowth(t *testing.T) {
	ix := openFreshIndex(t, "scenario2")

	total := L + 50
	for i := 0; i < total; i++ {
		k := int32(i)
		if err := ix.InsertEntry(k, RecordId{PageNumber: 1, SlotNumber: k}); err != nil {
			t.Fatalf("InsertEntry(%d): %v", k, err)
		}
	}

	if ix.root == 2 {
		t.Fatalf("expected root growth once more than L keys were inserted, root page unchanged")
	}

	rootPg, err := ix.bp.FetchPage(ix.root)
	if err != nil {
		t.Fatalf("fetch root: %v", err)
	}
	if isLeafPage(rootPg) {
		t.Errorf("expected a non-leaf root after a split, got a leaf")
	}
	if err := ix.bp.UnpinPage(ix.root, false); err != nil {
		t.Fatalf("unpin root: %v", err)
	}

	rids := scanAll(t, ix)
	if len(rids) != total {
		t.Fatalf("expected %d entries from the sibling chain, got %d", total, len(rids))
	}
	for i, rid := range rids {
		if rid.SlotNumber != int32(i) {
			t.Fatalf("sibling chain out of order at position %d: got slot %d", i, rid.SlotNumber)
			break
		}
	}
}

func TestPersistenceAcrossCloseAndReopen(t *testing.T) {
	testDir := filepath.Join(os.TempDir(), "bptreeidx_test")
	os.MkdirAll(testDir, 0755)
	t.Cleanup(func() { os.RemoveAll(testDir) })

	name := "scenario6"
	relFile, err := pagestore.Create(filepath.Join(testDir, name+".rel"))
	if err != nil {
		t.Fatalf("create relation file: %v", err)
	}
	defer relFile.Close()
	relBp := pagestore.NewBufferPool(relFile, 32)
	rel, err := relation.Open(name, relBp, relFile)
	if err != nil {
		t.Fatalf("relation.Open: %v", err)
	}

	idxPath := filepath.Join(testDir, IndexFileName(name, 0))
	idxFile, err := pagestore.Create(idxPath)
	if err != nil {
		t.Fatalf("create index file: %v", err)
	}
	idxBp := pagestore.NewBufferPool(idxFile, 64)

	ix, err := Open(rel, 0, INTEGER, idxBp)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	keys := rand.New(rand.NewSource(1)).Perm(1000)
	for _, k := range keys {
		if err := ix.InsertEntry(int32(k+1), RecordId{PageNumber: 1, SlotNumber: int32(k + 1)}); err != nil {
			t.Fatalf("InsertEntry(%d): %v", k+1, err)
		}
	}
	if err := ix.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	idxFile.Close()

	reopenedFile, err := pagestore.Open(idxPath)
	if err != nil {
		t.Fatalf("reopen index file: %v", err)
	}
	defer reopenedFile.Close()
	reopenedBp := pagestore.NewBufferPool(reopenedFile, 64)

	reopened, err := Open(rel, 0, INTEGER, reopenedBp)
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}

	rids := scanAll(t, reopened)
	if len(rids) != 1000 {
		t.Fatalf("expected 1000 entries after reopen, got %d", len(rids))
	}
	for i, rid := range rids {
		if rid.SlotNumber != int32(i+1) {
			t.Fatalf("entries out of order after reopen at position %d: got %d", i, rid.SlotNumber)
		}
	}
}

func equalInt32(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
