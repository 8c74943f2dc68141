// Package bptree implements a disk-resident B+ tree index over a
// single 32-bit signed integer attribute of a relation: page layout
// and fanout derivation (C1), descent (C2), the recursive
// split-propagation insertion engine (C3), the sibling-chain
// range-scan cursor (C4), and index open/bulk-load/close lifecycle
// (C5). It is built entirely on pagestore's pin/unpin buffer manager
// and owns no in-memory copy of the tree.
package bptree

import (
	"encoding/binary"

	"bptreeidx/pagestore"
)

// PageId and RecordId are the value types the tree copies in and out
// of on-page arrays; neither shares storage with a pinned page's
// buffer.
type PageId = pagestore.PageId

// RecordId locates a tuple in the base relation: (pageNumber,
// slotNumber). A zero PageNumber marks an unused leaf slot.
type RecordId struct {
	PageNumber int32
	SlotNumber int32
}

const recordIdSize = 8 // two int32 fields

// Header layout shared by leaf and non-leaf pages. isLeaf resolves
// the level-encoding open question (spec.md §9): rather than the
// source's overloaded level==1-means-leaf-or-parent-of-leaves scheme,
// isLeaf is an explicit flag and level is a plain depth counter that
// increases monotonically from 0 at the leaves toward the root.
const (
	offIsLeaf = 0
	offLevel  = 4
	headerLen = 8
)

// L is leaf fanout: the maximum number of (key, rid) pairs that fit
// in one page alongside the header and the right-sibling pointer.
// N is non-leaf fanout: the maximum number of keys (with N+1 child
// pointers) that fit in one page alongside the header.
//
//	L = floor((P - headerLen - sizeof(rightSib)) / (sizeof(int32) + sizeof(RecordId)))
//	N = floor((P - headerLen - sizeof(PageId))   / (sizeof(int32) + sizeof(PageId)))
const (
	L = (pagestore.PageSize - headerLen - 4) / (4 + recordIdSize)
	N = (pagestore.PageSize - headerLen - 4) / (4 + 4)
)

func init() {
	if L < 2 || N < 2 {
		panic("bptree: page size too small to derive a usable fanout")
	}
}

// leafView is a typed accessor over a pinned page's raw buffer,
// interpreting it as a leaf node. Its lifetime is bound to the pin
// that produced the underlying *pagestore.Page; it performs no
// copying.
type leafView struct {
	pg *pagestore.Page
}

func asLeaf(pg *pagestore.Page) leafView { return leafView{pg: pg} }

// initLeaf zero-initializes pg as a fresh leaf at the given depth.
func initLeaf(pg *pagestore.Page, level int32) leafView {
	for i := range pg.Data {
		pg.Data[i] = 0
	}
	binary.LittleEndian.PutUint32(pg.Data[offIsLeaf:], 1)
	binary.LittleEndian.PutUint32(pg.Data[offLevel:], uint32(level))
	return leafView{pg: pg}
}

func (v leafView) Level() int32 {
	return int32(binary.LittleEndian.Uint32(v.pg.Data[offLevel:]))
}

func (v leafView) keyOff(i int) int { return headerLen + i*4 }
func (v leafView) ridOff(i int) int { return headerLen + L*4 + i*recordIdSize }

func (v leafView) Key(i int) int32 {
	return int32(binary.LittleEndian.Uint32(v.pg.Data[v.keyOff(i):]))
}

func (v leafView) setKey(i int, key int32) {
	binary.LittleEndian.PutUint32(v.pg.Data[v.keyOff(i):], uint32(key))
}

func (v leafView) Rid(i int) RecordId {
	o := v.ridOff(i)
	return RecordId{
		PageNumber: int32(binary.LittleEndian.Uint32(v.pg.Data[o:])),
		SlotNumber: int32(binary.LittleEndian.Uint32(v.pg.Data[o+4:])),
	}
}

func (v leafView) setRid(i int, rid RecordId) {
	o := v.ridOff(i)
	binary.LittleEndian.PutUint32(v.pg.Data[o:], uint32(rid.PageNumber))
	binary.LittleEndian.PutUint32(v.pg.Data[o+4:], uint32(rid.SlotNumber))
}

func (v leafView) clearSlot(i int) {
	v.setKey(i, 0)
	v.setRid(i, RecordId{})
}

// used reports how many leading slots are occupied: a leaf slot i is
// occupied iff its record-id page-number is non-zero (§3).
func (v leafView) used() int {
	n := 0
	for n < L && v.Rid(n).PageNumber != 0 {
		n++
	}
	return n
}

func (v leafView) full() bool { return v.Rid(L - 1).PageNumber != 0 }

func (v leafView) RightSib() PageId {
	o := headerLen + L*4 + L*recordIdSize
	return PageId(int32(binary.LittleEndian.Uint32(v.pg.Data[o:])))
}

func (v leafView) setRightSib(id PageId) {
	o := headerLen + L*4 + L*recordIdSize
	binary.LittleEndian.PutUint32(v.pg.Data[o:], uint32(id))
}

// insertAt shifts slots [at, used) right by one and writes (key, rid)
// at position at. Caller must have verified the leaf is not full.
func (v leafView) insertAt(at int, key int32, rid RecordId) {
	n := v.used()
	for i := n; i > at; i-- {
		v.setKey(i, v.Key(i-1))
		v.setRid(i, v.Rid(i-1))
	}
	v.setKey(at, key)
	v.setRid(at, rid)
}

// internalView is the analogous accessor for a non-leaf page.
type internalView struct {
	pg *pagestore.Page
}

func asInternal(pg *pagestore.Page) internalView { return internalView{pg: pg} }

func initInternal(pg *pagestore.Page, level int32) internalView {
	for i := range pg.Data {
		pg.Data[i] = 0
	}
	binary.LittleEndian.PutUint32(pg.Data[offIsLeaf:], 0)
	binary.LittleEndian.PutUint32(pg.Data[offLevel:], uint32(level))
	return internalView{pg: pg}
}

func (v internalView) Level() int32 {
	return int32(binary.LittleEndian.Uint32(v.pg.Data[offLevel:]))
}

func (v internalView) keyOff(i int) int   { return headerLen + i*4 }
func (v internalView) childOff(i int) int { return headerLen + N*4 + i*4 }

func (v internalView) Key(i int) int32 {
	return int32(binary.LittleEndian.Uint32(v.pg.Data[v.keyOff(i):]))
}

func (v internalView) setKey(i int, key int32) {
	binary.LittleEndian.PutUint32(v.pg.Data[v.keyOff(i):], uint32(key))
}

func (v internalView) Child(i int) PageId {
	return PageId(int32(binary.LittleEndian.Uint32(v.pg.Data[v.childOff(i):])))
}

func (v internalView) setChild(i int, id PageId) {
	binary.LittleEndian.PutUint32(v.pg.Data[v.childOff(i):], uint32(id))
}

// usedChildren reports how many leading child slots are occupied: a
// non-leaf slot i is occupied iff pageNoArray[i] != 0 (§3).
func (v internalView) usedChildren() int {
	n := 0
	for n < N+1 && v.Child(n) != 0 {
		n++
	}
	return n
}

func (v internalView) usedKeys() int {
	k := v.usedChildren()
	if k == 0 {
		return 0
	}
	return k - 1
}

func (v internalView) full() bool { return v.Child(N) != 0 }

// isLeafPage peeks the header of a raw page without constructing a
// typed view, for callers that don't yet know the node's kind.
func isLeafPage(pg *pagestore.Page) bool {
	return binary.LittleEndian.Uint32(pg.Data[offIsLeaf:]) == 1
}

func levelOf(pg *pagestore.Page) int32 {
	return int32(binary.LittleEndian.Uint32(pg.Data[offLevel:]))
}
