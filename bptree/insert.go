package bptree

import (
	"fmt"

	"bptreeidx/pagestore"
)

// promotion is what a split hands back to its caller: the separator
// key to install in the parent and the page id of the newly allocated
// right sibling. A nil promotion means the insert was absorbed without
// growing the tree upward.
type promotion struct {
	key   int32
	right PageId
}

// InsertEntry descends from the root to the leaf owning key, inserts
// (key, rid), and propagates any split all the way up, growing a new
// root if the split reaches it. At most one page per level is pinned
// at a time during plain descent; a node being split and its freshly
// allocated sibling are pinned together only for the duration of the
// split itself (spec.md §5).
func (ix *Index) InsertEntry(key int32, rid RecordId) error {
	p, err := ix.insertRecursive(ix.root, key, rid)
	if err != nil {
		return err
	}
	if p != nil {
		// Unreachable in a correctly maintained tree: a promotion that
		// reaches the root is always absorbed by growRoot before
		// insertRecursive returns.
		return fmt.Errorf("bptree: promotion escaped the root: %w", ErrBadIndexInfo)
	}
	return nil
}

func (ix *Index) insertRecursive(nodeId PageId, key int32, rid RecordId) (*promotion, error) {
	pg, err := ix.bp.FetchPage(nodeId)
	if err != nil {
		return nil, fmt.Errorf("insert: fetch node %d: %w", nodeId, err)
	}

	if isLeafPage(pg) {
		return ix.insertIntoLeaf(nodeId, pg, key, rid)
	}

	iv := asInternal(pg)
	childIdx := ix.findChildIndexCached(nodeId, iv, key)
	childId := iv.Child(childIdx)
	level := iv.Level()
	if err := ix.bp.UnpinPage(nodeId, false); err != nil {
		return nil, err
	}

	childPromo, err := ix.insertRecursive(childId, key, rid)
	if err != nil {
		return nil, err
	}
	if childPromo == nil {
		return nil, nil
	}
	return ix.insertIntoInternal(nodeId, level, childPromo.key, childPromo.right)
}

// insertIntoLeaf installs (key, rid) into the already-pinned leaf pg,
// splitting it first if it is full. Caller transfers ownership of
// pg's pin to this function.
func (ix *Index) insertIntoLeaf(nodeId PageId, pg *pagestore.Page, key int32, rid RecordId) (*promotion, error) {
	lv := asLeaf(pg)

	if !lv.full() {
		pos := leafInsertPos(lv, key)
		lv.insertAt(pos, key, rid)
		return nil, ix.bp.UnpinPage(nodeId, true)
	}

	c := L / 2
	if L%2 == 1 && key > lv.Key(c) {
		c++
	}
	level := lv.Level()
	rightSib := lv.RightSib()

	rpg, err := ix.bp.NewPage()
	if err != nil {
		return nil, fmt.Errorf("split leaf %d: %w", nodeId, err)
	}
	rlv := initLeaf(rpg, level)
	for i := c; i < L; i++ {
		rlv.setKey(i-c, lv.Key(i))
		rlv.setRid(i-c, lv.Rid(i))
		lv.clearSlot(i)
	}
	rlv.setRightSib(rightSib)
	lv.setRightSib(rpg.ID)

	if key < lv.Key(c-1) {
		lv.insertAt(leafInsertPos(lv, key), key, rid)
	} else {
		rlv.insertAt(leafInsertPos(rlv, key), key, rid)
	}

	promoKey := rlv.Key(0)

	if err := ix.bp.UnpinPage(nodeId, true); err != nil {
		return nil, err
	}
	if err := ix.bp.UnpinPage(rpg.ID, true); err != nil {
		return nil, err
	}

	if nodeId == ix.root {
		if err := ix.growRoot(nodeId, rpg.ID, promoKey, level); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &promotion{key: promoKey, right: rpg.ID}, nil
}

// insertIntoInternal installs (sepKey, rightChild) into the already
// non-leaf node nodeId, splitting it first if full. The separator is
// removed from the originating node on split (push-up), never
// duplicated, per spec.md's explicit mandate.
func (ix *Index) insertIntoInternal(nodeId PageId, level int32, sepKey int32, rightChild PageId) (*promotion, error) {
	pg, err := ix.bp.FetchPage(nodeId)
	if err != nil {
		return nil, fmt.Errorf("insert into internal %d: %w", nodeId, err)
	}
	iv := asInternal(pg)

	if !iv.full() {
		idx := internalInsertPos(iv, sepKey)
		internalInsertAt(iv, idx, sepKey, rightChild)
		ix.invalidateNode(nodeId)
		return nil, ix.bp.UnpinPage(nodeId, true)
	}

	idx := internalInsertPos(iv, sepKey)
	k := iv.usedChildren() // == N+1
	allKeys := make([]int32, N+1)
	allChildren := make([]PageId, N+2)
	for i := 0; i < idx; i++ {
		allKeys[i] = iv.Key(i)
	}
	allKeys[idx] = sepKey
	for i := idx; i < k-1; i++ {
		allKeys[i+1] = iv.Key(i)
	}
	for i := 0; i <= idx; i++ {
		allChildren[i] = iv.Child(i)
	}
	allChildren[idx+1] = rightChild
	for i := idx + 1; i < k; i++ {
		allChildren[i+1] = iv.Child(i)
	}

	midIndex := (N + 1) / 2
	leftChildCount := midIndex + 1
	promoKey := allKeys[midIndex]

	rpg, err := ix.bp.NewPage()
	if err != nil {
		return nil, fmt.Errorf("split internal %d: %w", nodeId, err)
	}
	riv := initInternal(rpg, level)
	rk := 0
	for i := midIndex + 1; i < N+1; i++ {
		riv.setKey(rk, allKeys[i])
		rk++
	}
	rc := 0
	for i := leftChildCount; i < N+2; i++ {
		riv.setChild(rc, allChildren[i])
		rc++
	}

	for i := 0; i <= N; i++ {
		if i < leftChildCount {
			iv.setChild(i, allChildren[i])
		} else {
			iv.setChild(i, 0)
		}
	}
	for i := 0; i < N; i++ {
		if i < midIndex {
			iv.setKey(i, allKeys[i])
		} else {
			iv.setKey(i, 0)
		}
	}

	ix.invalidateNode(nodeId)
	if err := ix.bp.UnpinPage(nodeId, true); err != nil {
		return nil, err
	}
	if err := ix.bp.UnpinPage(rpg.ID, true); err != nil {
		return nil, err
	}

	if nodeId == ix.root {
		if err := ix.growRoot(nodeId, rpg.ID, promoKey, level); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &promotion{key: promoKey, right: rpg.ID}, nil
}

// growRoot allocates a new non-leaf root above leftId and rightId and
// repoints the meta page at it; the new root's level is one greater
// than leftId's.
func (ix *Index) growRoot(leftId, rightId PageId, sepKey int32, childLevel int32) error {
	pg, err := ix.bp.NewPage()
	if err != nil {
		return fmt.Errorf("grow root: %w", err)
	}
	iv := initInternal(pg, childLevel+1)
	iv.setChild(0, leftId)
	iv.setKey(0, sepKey)
	iv.setChild(1, rightId)
	if err := ix.bp.UnpinPage(pg.ID, true); err != nil {
		return err
	}

	mpg, err := ix.bp.FetchPage(metaPageId)
	if err != nil {
		return fmt.Errorf("grow root: fetch meta: %w", err)
	}
	m := decodeMeta(mpg)
	m.rootPageNo = pg.ID
	encodeMeta(mpg, m)
	if err := ix.bp.UnpinPage(metaPageId, true); err != nil {
		return err
	}
	ix.root = pg.ID
	return nil
}

// leafInsertPos returns the first slot whose key exceeds key, i.e.
// the position a new (key, rid) pair is inserted at; ties fall after
// existing equal keys (stable order of insertion).
func leafInsertPos(lv leafView, key int32) int {
	n := lv.used()
	i := 0
	for i < n && lv.Key(i) <= key {
		i++
	}
	return i
}

// internalInsertPos mirrors leafInsertPos for a non-leaf's key array.
func internalInsertPos(iv internalView, key int32) int {
	k := iv.usedKeys()
	i := 0
	for i < k && iv.Key(i) <= key {
		i++
	}
	return i
}

// internalInsertAt inserts sepKey at key-slot idx and rightChild at
// child-slot idx+1, shifting the tail right by one. Caller must have
// verified the node is not full.
func internalInsertAt(iv internalView, idx int, sepKey int32, rightChild PageId) {
	k := iv.usedChildren()
	for i := k; i > idx+1; i-- {
		iv.setChild(i, iv.Child(i-1))
	}
	iv.setChild(idx+1, rightChild)
	for i := k - 1; i > idx; i-- {
		iv.setKey(i, iv.Key(i-1))
	}
	iv.setKey(idx, sepKey)
}
