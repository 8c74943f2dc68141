// Inspect a B+ tree index file written by package bptree.
// Usage: go run ./cmd/inspect_idx [-stats] <path-to-index-file>
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"bptreeidx/pagestore"
)

const (
	poolCapacity = 64

	offIsLeaf = 0
	offLevel  = 4
	headerLen = 8

	leafFanout     = (pagestore.PageSize - headerLen - 4) / (4 + 8)
	internalFanout = (pagestore.PageSize - headerLen - 4) / (4 + 4)

	metaRelationNameLen = 20
	metaOffAttrOffset   = metaRelationNameLen
	metaOffAttrType     = metaRelationNameLen + 4
	metaOffRootPageNo   = metaRelationNameLen + 8
)

func main() {
	showStats := flag.Bool("stats", false, "print buffer pool statistics after the walk")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-stats] <index-file>\n", os.Args[0])
		os.Exit(1)
	}
	path := flag.Arg(0)

	if err := inspect(path, *showStats); err != nil {
		fmt.Fprintf(os.Stderr, "inspect_idx: %v\n", err)
		os.Exit(1)
	}
}

func inspect(path string, showStats bool) error {
	file, err := pagestore.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	bp := pagestore.NewBufferPool(file, poolCapacity)

	mpg, err := bp.FetchPage(1)
	if err != nil {
		return fmt.Errorf("fetch meta page: %w", err)
	}
	relationName, attrOffset, attrType, root := readMeta(mpg)
	if err := bp.UnpinPage(1, false); err != nil {
		return err
	}

	fileInfo, _ := os.Stat(path)
	fmt.Printf("index file: %s (%s)\n", path, humanize.Bytes(uint64(fileInfo.Size())))
	fmt.Printf("relation=%q attrByteOffset=%d attrType=%d rootPage=%d\n", relationName, attrOffset, attrType, root)
	fmt.Printf("leaf fanout=%d internal fanout=%d\n\n", leafFanout, internalFanout)

	visited := map[pagestore.PageId]bool{}
	queue := []struct {
		id    pagestore.PageId
		depth int
	}{{id: root, depth: 0}}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if visited[node.id] {
			continue
		}
		visited[node.id] = true

		pg, err := bp.FetchPage(node.id)
		if err != nil {
			return fmt.Errorf("fetch page %d: %w", node.id, err)
		}
		isLeaf := binary.LittleEndian.Uint32(pg.Data[offIsLeaf:]) == 1
		level := int32(binary.LittleEndian.Uint32(pg.Data[offLevel:]))
		indent := ""
		for i := 0; i < node.depth; i++ {
			indent += "  "
		}

		if isLeaf {
			n := leafUsed(pg)
			fmt.Printf("%sleaf page=%d level=%d entries=%d\n", indent, node.id, level, n)
			for i := 0; i < n; i++ {
				key, rid := leafEntry(pg, i)
				fmt.Printf("%s  key=%d -> (page=%d, slot=%d)\n", indent, key, rid[0], rid[1])
			}
			if sib := leafRightSib(pg); sib != 0 {
				fmt.Printf("%s  rightSib=%d\n", indent, sib)
			}
		} else {
			n := internalUsedChildren(pg)
			fmt.Printf("%snon-leaf page=%d level=%d children=%d\n", indent, node.id, level, n)
			for i := 0; i < n; i++ {
				child := internalChild(pg, i)
				fmt.Printf("%s  child[%d]=%d\n", indent, i, child)
				queue = append(queue, struct {
					id    pagestore.PageId
					depth int
				}{id: child, depth: node.depth + 1})
			}
			for i := 0; i < n-1; i++ {
				fmt.Printf("%s  key[%d]=%d\n", indent, i, internalKey(pg, i))
			}
		}
		if err := bp.UnpinPage(node.id, false); err != nil {
			return err
		}
	}

	if showStats {
		s := bp.Stats()
		fmt.Printf("\nbuffer pool: resident=%d pinned=%d dirty=%d capacity=%d\n", s.Resident, s.Pinned, s.Dirty, s.Capacity)
	}
	return nil
}

func readMeta(pg *pagestore.Page) (relationName string, attrOffset int32, attrType int32, root pagestore.PageId) {
	raw := pg.Data[0:metaRelationNameLen]
	end := len(raw)
	for end > 0 && raw[end-1] == 0 {
		end--
	}
	relationName = string(raw[:end])
	attrOffset = int32(binary.LittleEndian.Uint32(pg.Data[metaOffAttrOffset:]))
	attrType = int32(binary.LittleEndian.Uint32(pg.Data[metaOffAttrType:]))
	root = pagestore.PageId(int32(binary.LittleEndian.Uint32(pg.Data[metaOffRootPageNo:])))
	return
}

func leafKeyOff(i int) int { return headerLen + i*4 }
func leafRidOff(i int) int { return headerLen + leafFanout*4 + i*8 }

func leafUsed(pg *pagestore.Page) int {
	n := 0
	for n < leafFanout && binary.LittleEndian.Uint32(pg.Data[leafRidOff(n):]) != 0 {
		n++
	}
	return n
}

func leafEntry(pg *pagestore.Page, i int) (int32, [2]int32) {
	key := int32(binary.LittleEndian.Uint32(pg.Data[leafKeyOff(i):]))
	o := leafRidOff(i)
	rid := [2]int32{
		int32(binary.LittleEndian.Uint32(pg.Data[o:])),
		int32(binary.LittleEndian.Uint32(pg.Data[o+4:])),
	}
	return key, rid
}

func leafRightSib(pg *pagestore.Page) pagestore.PageId {
	o := headerLen + leafFanout*4 + leafFanout*8
	return pagestore.PageId(int32(binary.LittleEndian.Uint32(pg.Data[o:])))
}

func internalKeyOff(i int) int   { return headerLen + i*4 }
func internalChildOff(i int) int { return headerLen + internalFanout*4 + i*4 }

func internalUsedChildren(pg *pagestore.Page) int {
	n := 0
	for n < internalFanout+1 && binary.LittleEndian.Uint32(pg.Data[internalChildOff(n):]) != 0 {
		n++
	}
	return n
}

func internalKey(pg *pagestore.Page, i int) int32 {
	return int32(binary.LittleEndian.Uint32(pg.Data[internalKeyOff(i):]))
}

func internalChild(pg *pagestore.Page, i int) pagestore.PageId {
	return pagestore.PageId(int32(binary.LittleEndian.Uint32(pg.Data[internalChildOff(i):])))
}
