package relation

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"bptreeidx/pagestore"
)

func newTestRelation(t *testing.T, name string) *Relation {
	t.Helper()
	testDir := filepath.Join(os.TempDir(), "bptreeidx_test")
	os.MkdirAll(testDir, 0755)
	t.Cleanup(func() { os.RemoveAll(testDir) })

	path := filepath.Join(testDir, name)
	f, err := pagestore.Create(path)
	if err != nil {
		t.Fatalf("pagestore.Create: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	bp := pagestore.NewBufferPool(f, 16)

	r, err := Open(name, bp, f)
	if err != nil {
		t.Fatalf("relation.Open: %v", err)
	}
	return r
}

func TestInsertAndGetRecordRoundTrip(t *testing.T) {
	r := newTestRelation(t, "students.rel")

	rid, err := r.InsertTuple([]byte("alice"))
	if err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}
	data, err := r.GetRecord(rid)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if !bytes.Equal(data, []byte("alice")) {
		t.Errorf("GetRecord returned %q, want %q", data, "alice")
	}
}

func TestScanVisitsEveryTupleOnce(t *testing.T) {
	r := newTestRelation(t, "bulk.rel")

	names := []string{"alice", "bob", "carol", "dave"}
	for _, n := range names {
		if _, err := r.InsertTuple([]byte(n)); err != nil {
			t.Fatalf("InsertTuple(%s): %v", n, err)
		}
	}

	sc := r.StartScan()
	var got []string
	for {
		_, data, err := sc.ScanNext()
		if err != nil {
			if errors.Is(err, ErrEndOfFile) {
				break
			}
			t.Fatalf("ScanNext: %v", err)
		}
		got = append(got, string(data))
	}
	if len(got) != len(names) {
		t.Fatalf("expected %d tuples, got %d: %v", len(names), len(got), got)
	}
	for i, n := range names {
		if got[i] != n {
			t.Errorf("tuple %d = %q, want %q", i, got[i], n)
		}
	}
}

func TestInsertSpillsToNewPageWhenFull(t *testing.T) {
	r := newTestRelation(t, "spill.rel")

	big := bytes.Repeat([]byte("x"), 500)
	var rids []RecordId
	for i := 0; i < 20; i++ {
		rid, err := r.InsertTuple(big)
		if err != nil {
			t.Fatalf("InsertTuple %d: %v", i, err)
		}
		rids = append(rids, rid)
	}

	pages := map[int32]bool{}
	for _, rid := range rids {
		pages[rid.PageNumber] = true
	}
	if len(pages) < 2 {
		t.Fatalf("expected tuples to spill across multiple pages, all landed on %v", pages)
	}

	for _, rid := range rids {
		data, err := r.GetRecord(rid)
		if err != nil {
			t.Fatalf("GetRecord(%+v): %v", rid, err)
		}
		if !bytes.Equal(data, big) {
			t.Errorf("GetRecord(%+v) returned mismatched data", rid)
		}
	}
}
