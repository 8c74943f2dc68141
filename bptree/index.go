package bptree

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"

	"bptreeidx/pagestore"
	"bptreeidx/relation"
)

// Index is a disk-resident B+ tree over a single int32 attribute of a
// relation. It owns no in-memory copy of the tree: every operation
// re-derives what it needs from pages fetched through bp, apart from
// cache, which memoizes decoded non-leaf key/child arrays (cache.go).
type Index struct {
	bp             *pagestore.BufferPool
	root           PageId
	relationName   string
	attrByteOffset int32
	attrType       Datatype
	cache          *ristretto.Cache[PageId, *nodeSnapshot]

	scan scanState
}

// Open opens an existing index over rel's attrByteOffset, or builds
// one from scratch and bulk-loads it from rel if bm's backing file is
// freshly created. bm must already be wired to the file named by
// IndexFileName(rel.Name(), attrByteOffset) — see pagestore.Create
// and pagestore.Open.
func Open(rel *relation.Relation, attrByteOffset int32, attrType Datatype, bm *pagestore.BufferPool) (*Index, error) {
	if attrType != INTEGER {
		return nil, fmt.Errorf("open index: %w", ErrBadIndexInfo)
	}

	cache, err := newNodeCache()
	if err != nil {
		return nil, fmt.Errorf("open index: build node cache: %w", err)
	}

	if bm.NumPages() <= 1 {
		return createIndex(rel, attrByteOffset, attrType, bm, cache)
	}
	return openExistingIndex(rel, attrByteOffset, attrType, bm, cache)
}

func createIndex(rel *relation.Relation, attrByteOffset int32, attrType Datatype, bm *pagestore.BufferPool, cache *ristretto.Cache[PageId, *nodeSnapshot]) (*Index, error) {
	fmt.Printf("bptree: creating index %s\n", IndexFileName(rel.Name(), attrByteOffset))

	mpg, err := bm.NewPage() // always page 1, right after the reserved page 0
	if err != nil {
		return nil, fmt.Errorf("create index: allocate meta page: %w", err)
	}
	rootpg, err := bm.NewPage()
	if err != nil {
		return nil, fmt.Errorf("create index: allocate root page: %w", err)
	}
	initLeaf(rootpg, 0)
	if err := bm.UnpinPage(rootpg.ID, true); err != nil {
		return nil, err
	}

	encodeMeta(mpg, meta{
		relationName:   rel.Name(),
		attrByteOffset: attrByteOffset,
		attrType:       attrType,
		rootPageNo:     rootpg.ID,
	})
	if err := bm.UnpinPage(mpg.ID, true); err != nil {
		return nil, err
	}

	ix := &Index{
		bp:             bm,
		root:           rootpg.ID,
		relationName:   rel.Name(),
		attrByteOffset: attrByteOffset,
		attrType:       attrType,
		cache:          cache,
	}

	n, err := ix.bulkLoad(rel)
	if err != nil {
		return nil, fmt.Errorf("create index: bulk load: %w", err)
	}
	fmt.Printf("bptree: bulk-loaded %d entries\n", n)
	return ix, nil
}

func openExistingIndex(rel *relation.Relation, attrByteOffset int32, attrType Datatype, bm *pagestore.BufferPool, cache *ristretto.Cache[PageId, *nodeSnapshot]) (*Index, error) {
	mpg, err := bm.FetchPage(metaPageId)
	if err != nil {
		return nil, fmt.Errorf("open index: fetch meta page: %w", err)
	}
	m := decodeMeta(mpg)
	if err := bm.UnpinPage(metaPageId, false); err != nil {
		return nil, err
	}

	if m.relationName != rel.Name() || m.attrByteOffset != attrByteOffset || m.attrType != attrType {
		return nil, fmt.Errorf("open index: relation/attribute mismatch against stored meta: %w", ErrBadIndexInfo)
	}

	fmt.Printf("bptree: opened index %s, root=%d\n", IndexFileName(rel.Name(), attrByteOffset), m.rootPageNo)
	return &Index{
		bp:             bm,
		root:           m.rootPageNo,
		relationName:   m.relationName,
		attrByteOffset: attrByteOffset,
		attrType:       attrType,
		cache:          cache,
	}, nil
}

// bulkLoad scans rel in full, inserting one entry per tuple keyed on
// the int32 value at attrByteOffset. Returns the number of entries
// loaded.
func (ix *Index) bulkLoad(rel *relation.Relation) (int, error) {
	sc := rel.StartScan()
	n := 0
	for {
		rrid, tuple, err := sc.ScanNext()
		if err != nil {
			if errors.Is(err, relation.ErrEndOfFile) {
				break
			}
			return n, err
		}
		if int(ix.attrByteOffset)+4 > len(tuple) {
			return n, fmt.Errorf("bulk load: tuple too short for attribute offset %d: %w", ix.attrByteOffset, ErrBadIndexInfo)
		}
		key := int32(binary.LittleEndian.Uint32(tuple[ix.attrByteOffset:]))
		rid := RecordId{PageNumber: rrid.PageNumber, SlotNumber: rrid.SlotNumber}
		if err := ix.InsertEntry(key, rid); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Close deactivates any scan left running, flushes every dirty
// resident page, and releases the node cache. The Index must not be
// used afterward.
func (ix *Index) Close() error {
	if ix.scan.active {
		if err := ix.bp.UnpinPage(ix.scan.leafPg.ID, false); err != nil {
			return fmt.Errorf("close index: %w", err)
		}
		ix.scan.active = false
		ix.scan.leafPg = nil
	}
	if ix.cache != nil {
		ix.cache.Close()
	}
	if err := ix.bp.FlushAllPages(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	return nil
}

// IndexFileName computes the deterministic index file name spec.md
// §6 mandates: "<relationName>.<attrByteOffset>", decimal, no padding.
func IndexFileName(relationName string, attrByteOffset int32) string {
	return indexFileName(relationName, attrByteOffset)
}
