package bptree

import "github.com/dgraph-io/ristretto/v2"

// nodeSnapshot is a memoized decode of a non-leaf page's key and
// child arrays, so a hot internal node's descent comparisons walk a
// plain Go slice instead of re-reading the pinned page's byte buffer
// on every comparison. It sits beside the buffer pool, never inside
// it: a cache miss just means re-decoding from the still-pinned page,
// never a fault back to disk, so it never participates in the
// pin/unpin correctness contract.
type nodeSnapshot struct {
	keys     []int32
	children []PageId
}

func newNodeCache() (*ristretto.Cache[PageId, *nodeSnapshot], error) {
	return ristretto.NewCache(&ristretto.Config[PageId, *nodeSnapshot]{
		NumCounters: 10_000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
}

// snapshotInternal decodes iv's key/child arrays into a cacheable
// snapshot and stores it under id.
func (ix *Index) snapshotInternal(id PageId, iv internalView) *nodeSnapshot {
	k := iv.usedChildren()
	snap := &nodeSnapshot{
		keys:     make([]int32, 0, k),
		children: make([]PageId, 0, k),
	}
	for i := 0; i < k-1; i++ {
		snap.keys = append(snap.keys, iv.Key(i))
	}
	for i := 0; i < k; i++ {
		snap.children = append(snap.children, iv.Child(i))
	}
	ix.cache.Set(id, snap, int64(8+8*k))
	return snap
}

// invalidateNode drops id's cached snapshot. Called whenever a
// non-leaf page is unpinned dirty, since its decoded arrays are now
// stale. Del is applied through the same async ring buffer as Set, so
// Wait blocks until the deletion has actually landed — without it, a
// descent that revisits id immediately afterward (the common case in
// a tight insert loop) could still observe the stale pre-split entry.
func (ix *Index) invalidateNode(id PageId) {
	if ix.cache != nil {
		ix.cache.Del(id)
		ix.cache.Wait()
	}
}

// findChildIndexCached behaves like findChildIndex but consults the
// node cache first, populating it on a miss.
func (ix *Index) findChildIndexCached(id PageId, iv internalView, key int32) int {
	if ix.cache != nil {
		if snap, ok := ix.cache.Get(id); ok {
			k := len(snap.keys)
			i := 0
			for i < k && key >= snap.keys[i] {
				i++
			}
			return i
		}
	}
	idx := findChildIndex(iv, key)
	if ix.cache != nil {
		ix.snapshotInternal(id, iv)
	}
	return idx
}
