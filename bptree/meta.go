package bptree

import (
	"encoding/binary"
	"fmt"

	"bptreeidx/pagestore"
)

// metaPageId is the page 1 of every index file: the meta page is
// created once, mutated only when the root changes, and flushed on
// close. Page 0 is reserved and unused, matching the data model.
const metaPageId PageId = 1

const relationNameLen = 20

// meta mirrors the on-disk meta page: fixed-width relation name,
// the indexed attribute's byte offset and type tag, and the current
// root page number.
type meta struct {
	relationName   string
	attrByteOffset int32
	attrType       Datatype
	rootPageNo     PageId
}

const (
	metaOffRelationName = 0
	metaOffAttrOffset   = relationNameLen
	metaOffAttrType     = relationNameLen + 4
	metaOffRootPageNo   = relationNameLen + 8
)

func encodeMeta(pg *pagestore.Page, m meta) {
	for i := range pg.Data {
		pg.Data[i] = 0
	}
	nameBytes := []byte(m.relationName)
	if len(nameBytes) > relationNameLen {
		nameBytes = nameBytes[:relationNameLen]
	}
	copy(pg.Data[metaOffRelationName:metaOffRelationName+relationNameLen], nameBytes)
	binary.LittleEndian.PutUint32(pg.Data[metaOffAttrOffset:], uint32(m.attrByteOffset))
	binary.LittleEndian.PutUint32(pg.Data[metaOffAttrType:], uint32(m.attrType))
	binary.LittleEndian.PutUint32(pg.Data[metaOffRootPageNo:], uint32(m.rootPageNo))
}

func decodeMeta(pg *pagestore.Page) meta {
	raw := pg.Data[metaOffRelationName : metaOffRelationName+relationNameLen]
	end := len(raw)
	for end > 0 && raw[end-1] == 0 {
		end--
	}
	return meta{
		relationName:   string(raw[:end]),
		attrByteOffset: int32(binary.LittleEndian.Uint32(pg.Data[metaOffAttrOffset:])),
		attrType:       Datatype(binary.LittleEndian.Uint32(pg.Data[metaOffAttrType:])),
		rootPageNo:     PageId(int32(binary.LittleEndian.Uint32(pg.Data[metaOffRootPageNo:]))),
	}
}

// indexFileName computes the deterministic index file name spec.md
// §6 mandates: "<relationName>.<attrByteOffset>", decimal, no padding.
func indexFileName(relationName string, attrByteOffset int32) string {
	return fmt.Sprintf("%s.%d", relationName, attrByteOffset)
}
