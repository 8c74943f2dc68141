// Package relation is a minimal slotted-page heap file standing in
// for the relation this module indexes: sequential insertion, lookup
// by record id, and a forward-only scan, nothing else. It is built on the same pagestore
// buffer manager the index core uses.
package relation

import (
	"encoding/binary"
	"errors"
	"fmt"

	"bptreeidx/pagestore"
)

// ErrEndOfFile marks the end of a sequential scan.
var ErrEndOfFile = errors.New("relation: end of file")

// RecordId locates a tuple by (pageNumber, slotNumber), mirroring the
// index core's own RecordId so conversions between the two are a
// straight field copy.
type RecordId struct {
	PageNumber int32
	SlotNumber int32
}

const (
	hdrNumSlots  = 0
	hdrFreeStart = 4
	headerLen    = 8
	slotSize     = 8 // (tupleOffset int32, tupleLen int32)
)

func slotDirOff(i int32) int {
	return pagestore.PageSize - int(i+1)*slotSize
}

type pageView struct{ pg *pagestore.Page }

func asPage(pg *pagestore.Page) pageView { return pageView{pg: pg} }

func initPage(pg *pagestore.Page) pageView {
	for i := range pg.Data {
		pg.Data[i] = 0
	}
	binary.LittleEndian.PutUint32(pg.Data[hdrFreeStart:], headerLen)
	return pageView{pg: pg}
}

func (v pageView) numSlots() int32 {
	return int32(binary.LittleEndian.Uint32(v.pg.Data[hdrNumSlots:]))
}

func (v pageView) setNumSlots(n int32) {
	binary.LittleEndian.PutUint32(v.pg.Data[hdrNumSlots:], uint32(n))
}

func (v pageView) freeStart() int32 {
	return int32(binary.LittleEndian.Uint32(v.pg.Data[hdrFreeStart:]))
}

func (v pageView) setFreeStart(off int32) {
	binary.LittleEndian.PutUint32(v.pg.Data[hdrFreeStart:], uint32(off))
}

func (v pageView) slot(i int32) (tupleOffset, tupleLen int32) {
	o := slotDirOff(i)
	return int32(binary.LittleEndian.Uint32(v.pg.Data[o:])),
		int32(binary.LittleEndian.Uint32(v.pg.Data[o+4:]))
}

func (v pageView) setSlot(i, tupleOffset, tupleLen int32) {
	o := slotDirOff(i)
	binary.LittleEndian.PutUint32(v.pg.Data[o:], uint32(tupleOffset))
	binary.LittleEndian.PutUint32(v.pg.Data[o+4:], uint32(tupleLen))
}

// freeBytes is the room left between the tuple-data high-water mark
// and the slot directory growing backward from the end of the page.
func (v pageView) freeBytes() int32 {
	n := v.numSlots()
	return int32(slotDirOff(n)) - v.freeStart()
}

// insertTuple appends data to the page if there's room, returning the
// new slot number.
func (v pageView) insertTuple(data []byte) (int32, bool) {
	need := int32(len(data)) + slotSize
	if v.freeBytes() < need {
		return 0, false
	}
	off := v.freeStart()
	copy(v.pg.Data[off:], data)
	n := v.numSlots()
	v.setSlot(n, off, int32(len(data)))
	v.setNumSlots(n + 1)
	v.setFreeStart(off + int32(len(data)))
	return n, true
}

func (v pageView) tuple(i int32) []byte {
	off, length := v.slot(i)
	return append([]byte(nil), v.pg.Data[off:off+length]...)
}

// Relation is an append-only heap file plus the buffer pool it is
// paged through.
type Relation struct {
	name     string
	bp       *pagestore.BufferPool
	lastPage pagestore.PageId
}

// Open wraps an already-open file's buffer pool as a Relation. If the
// file is brand new (just the reserved page 0), a first data page is
// allocated immediately.
func Open(name string, bp *pagestore.BufferPool, file *pagestore.File) (*Relation, error) {
	r := &Relation{name: name, bp: bp}
	if file.NumPages() <= 1 {
		pg, err := bp.NewPage()
		if err != nil {
			return nil, fmt.Errorf("relation: allocate first page: %w", err)
		}
		initPage(pg)
		r.lastPage = pg.ID
		if err := bp.UnpinPage(pg.ID, true); err != nil {
			return nil, err
		}
		return r, nil
	}
	r.lastPage = pagestore.PageId(file.NumPages() - 1)
	return r, nil
}

// InsertTuple appends data to the relation, allocating a new page
// when the current last page has no room.
func (r *Relation) InsertTuple(data []byte) (RecordId, error) {
	pg, err := r.bp.FetchPage(r.lastPage)
	if err != nil {
		return RecordId{}, fmt.Errorf("relation: fetch last page: %w", err)
	}
	v := asPage(pg)
	if slot, ok := v.insertTuple(data); ok {
		rid := RecordId{PageNumber: int32(r.lastPage), SlotNumber: slot}
		if err := r.bp.UnpinPage(r.lastPage, true); err != nil {
			return RecordId{}, err
		}
		return rid, nil
	}
	if err := r.bp.UnpinPage(r.lastPage, false); err != nil {
		return RecordId{}, err
	}

	npg, err := r.bp.NewPage()
	if err != nil {
		return RecordId{}, fmt.Errorf("relation: allocate page: %w", err)
	}
	nv := initPage(npg)
	slot, ok := nv.insertTuple(data)
	if !ok {
		return RecordId{}, fmt.Errorf("relation: tuple of %d bytes does not fit in an empty page", len(data))
	}
	r.lastPage = npg.ID
	rid := RecordId{PageNumber: int32(npg.ID), SlotNumber: slot}
	if err := r.bp.UnpinPage(npg.ID, true); err != nil {
		return RecordId{}, err
	}
	return rid, nil
}

// GetRecord returns a copy of the tuple at rid.
func (r *Relation) GetRecord(rid RecordId) ([]byte, error) {
	pg, err := r.bp.FetchPage(pagestore.PageId(rid.PageNumber))
	if err != nil {
		return nil, fmt.Errorf("relation: fetch page %d: %w", rid.PageNumber, err)
	}
	v := asPage(pg)
	data := v.tuple(rid.SlotNumber)
	if err := r.bp.UnpinPage(pagestore.PageId(rid.PageNumber), false); err != nil {
		return nil, err
	}
	return data, nil
}

// LastPage reports the highest page number holding tuple data, the
// upper bound a sequential scan walks to.
func (r *Relation) LastPage() pagestore.PageId { return r.lastPage }

// Name is the relation's identifier, used to derive its index's
// deterministic file name.
func (r *Relation) Name() string { return r.name }
