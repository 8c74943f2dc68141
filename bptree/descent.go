package bptree

import "fmt"

// findChildIndex implements C2's findChild: given the used child
// slots c[0..k) and keys k[0..k-1), returns the smallest i such that
// key < keyArray[i] for 0 <= i < k-1; if none qualifies, returns k-1.
// Ties on equal keys fall through to the right subtree, consistent
// with the §3 subtree invariant (keys equal to a separator live in
// the right subtree).
func findChildIndex(v internalView, key int32) int {
	k := v.usedChildren()
	for i := 0; i < k-1; i++ {
		if key < v.Key(i) {
			return i
		}
	}
	return k - 1
}

// descendToLeaf walks non-leaf nodes from root to the target leaf for
// key, holding at most one page pinned at a time during the descent.
// The caller receives the pinned leaf page and must unpin it.
func (ix *Index) descendToLeaf(root PageId, key int32) (leafView, error) {
	id := root
	for {
		pg, err := ix.bp.FetchPage(id)
		if err != nil {
			return leafView{}, fmt.Errorf("descend to leaf: %w", err)
		}
		if isLeafPage(pg) {
			return asLeaf(pg), nil
		}
		iv := asInternal(pg)
		next := iv.Child(ix.findChildIndexCached(id, iv, key))
		if err := ix.bp.UnpinPage(id, false); err != nil {
			return leafView{}, err
		}
		id = next
	}
}
