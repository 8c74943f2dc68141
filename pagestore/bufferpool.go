package pagestore

import (
	"fmt"
	"sync"
)

// BufferPool is a fixed-capacity, pin-aware page cache in front of a
// single File. Callers pin pages with FetchPage/NewPage and release
// them with UnpinPage; only unpinned pages are ever candidates for
// eviction, and a dirty page is always written back before its frame
// is reused.
type BufferPool struct {
	mu          sync.Mutex
	file        *File
	pages       map[PageId]*Page
	capacity    int
	accessOrder []PageId // least-recently-used at the front
}

// NewBufferPool wraps file with an LRU cache holding up to capacity
// resident pages.
func NewBufferPool(file *File, capacity int) *BufferPool {
	return &BufferPool{
		file:        file,
		pages:       make(map[PageId]*Page, capacity),
		capacity:    capacity,
		accessOrder: make([]PageId, 0, capacity),
	}
}

// FetchPage returns the pinned page for id, reading it from disk on a
// cache miss. The caller owns the pin until a matching UnpinPage.
func (bp *BufferPool) FetchPage(id PageId) (*Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if pg, ok := bp.pages[id]; ok {
		pg.Lock()
		pg.PinCount++
		pg.Unlock()
		bp.touch(id)
		return pg, nil
	}

	pg := &Page{ID: id}
	if err := bp.file.ReadPage(id, pg.Data[:]); err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", id, err)
	}
	pg.PinCount = 1

	if err := bp.admit(pg); err != nil {
		return nil, err
	}
	return pg, nil
}

// NewPage allocates a fresh page in the backing file and returns it
// already pinned and zeroed.
func (bp *BufferPool) NewPage() (*Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	id, err := bp.file.AllocPage()
	if err != nil {
		return nil, fmt.Errorf("new page: %w", err)
	}
	pg := &Page{ID: id, PinCount: 1}
	if err := bp.admit(pg); err != nil {
		return nil, err
	}
	return pg, nil
}

// UnpinPage releases one pin on id. dirty must be true iff the caller
// mutated any byte of the page's buffer while it was pinned.
func (bp *BufferPool) UnpinPage(id PageId, dirty bool) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	pg, ok := bp.pages[id]
	if !ok {
		return fmt.Errorf("unpin page %d: not resident", id)
	}
	pg.Lock()
	if dirty {
		pg.IsDirty = true
	}
	if pg.PinCount > 0 {
		pg.PinCount--
	}
	pg.Unlock()
	return nil
}

// FlushPage writes id back to disk if it is dirty, regardless of pin
// state, without waiting for eviction. A page that is not resident is
// a no-op.
func (bp *BufferPool) FlushPage(id PageId) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	pg, ok := bp.pages[id]
	if !ok {
		return nil
	}
	return bp.writeBack(pg)
}

// FlushAllPages writes every dirty resident page back to disk and
// syncs the file, per the "flush on close" lifecycle requirement.
func (bp *BufferPool) FlushAllPages() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	for _, pg := range bp.pages {
		if err := bp.writeBack(pg); err != nil {
			return err
		}
	}
	return bp.file.Sync()
}

// writeBack assumes bp.mu is held.
func (bp *BufferPool) writeBack(pg *Page) error {
	pg.Lock()
	defer pg.Unlock()
	if !pg.IsDirty {
		return nil
	}
	if err := bp.file.WritePage(pg.ID, pg.Data[:]); err != nil {
		return fmt.Errorf("flush page %d: %w", pg.ID, err)
	}
	pg.IsDirty = false
	return nil
}

// admit inserts pg into the cache, evicting the least-recently-used
// unpinned page first if at capacity. Assumes bp.mu is held.
func (bp *BufferPool) admit(pg *Page) error {
	if len(bp.pages) >= bp.capacity {
		if err := bp.evictLRU(); err != nil {
			return fmt.Errorf("admit page %d: %w", pg.ID, err)
		}
	}
	bp.pages[pg.ID] = pg
	bp.touch(pg.ID)
	return nil
}

func (bp *BufferPool) evictLRU() error {
	for i, id := range bp.accessOrder {
		pg, ok := bp.pages[id]
		if !ok {
			bp.accessOrder = append(bp.accessOrder[:i], bp.accessOrder[i+1:]...)
			return bp.evictLRU()
		}
		pg.RLock()
		pinned := pg.PinCount > 0
		pg.RUnlock()
		if pinned {
			continue
		}
		if err := bp.writeBack(pg); err != nil {
			return err
		}
		delete(bp.pages, id)
		bp.accessOrder = append(bp.accessOrder[:i], bp.accessOrder[i+1:]...)
		return nil
	}
	return fmt.Errorf("buffer pool exhausted: all %d frames pinned", bp.capacity)
}

func (bp *BufferPool) touch(id PageId) {
	for i, x := range bp.accessOrder {
		if x == id {
			bp.accessOrder = append(bp.accessOrder[:i], bp.accessOrder[i+1:]...)
			break
		}
	}
	bp.accessOrder = append(bp.accessOrder, id)
}

// Stats reports a point-in-time snapshot of pool occupancy, adapted
// from the teacher's buffer-pool diagnostics for use by inspection
// tooling.
type Stats struct {
	Resident int
	Pinned   int
	Dirty    int
	Capacity int
}

// NumPages reports the backing file's page count, including the
// reserved page 0.
func (bp *BufferPool) NumPages() int64 {
	return bp.file.NumPages()
}

func (bp *BufferPool) Stats() Stats {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	s := Stats{Resident: len(bp.pages), Capacity: bp.capacity}
	for _, pg := range bp.pages {
		pg.RLock()
		if pg.PinCount > 0 {
			s.Pinned++
		}
		if pg.IsDirty {
			s.Dirty++
		}
		pg.RUnlock()
	}
	return s
}
