package pagestore

import (
	"errors"
	"fmt"
	"os"
)

// ErrFileNotFound signals that Open was asked to open an existing
// file that isn't there.
var ErrFileNotFound = errors.New("pagestore: file not found")

// File is a named container of fixed-size, numbered pages on disk —
// the "backing file abstraction" spec.md treats as given. It knows
// nothing about what the bytes inside a page mean.
type File struct {
	path     string
	f        *os.File
	numPages int64 // pages ever allocated, including page 0
}

// Open opens an existing page file. It never creates one — use
// Create for that — so callers can distinguish "doesn't exist yet"
// (ErrFileNotFound) from other I/O failures.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("open %s: %w", path, ErrFileNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return &File{
		path:     path,
		f:        f,
		numPages: stat.Size() / PageSize,
	}, nil
}

// Create makes a new, empty page file. Page 0 is never allocated by
// AllocPage, so a freshly created file reports NumPages() == 1 to keep
// the next AllocPage starting at page 1.
func Create(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	zero := make([]byte, PageSize)
	if _, err := f.WriteAt(zero, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("create %s: reserving page 0: %w", path, err)
	}
	return &File{path: path, f: f, numPages: 1}, nil
}

// ReadPage reads the page at id into dst, which must be PageSize bytes.
func (fl *File) ReadPage(id PageId, dst []byte) error {
	if len(dst) != PageSize {
		return fmt.Errorf("pagestore: dst must be %d bytes, got %d", PageSize, len(dst))
	}
	n, err := fl.f.ReadAt(dst, int64(id)*PageSize)
	if err != nil && n < PageSize {
		return fmt.Errorf("read page %d: %w", id, err)
	}
	return nil
}

// WritePage writes src (PageSize bytes) to the page at id.
func (fl *File) WritePage(id PageId, src []byte) error {
	if len(src) != PageSize {
		return fmt.Errorf("pagestore: src must be %d bytes, got %d", PageSize, len(src))
	}
	if _, err := fl.f.WriteAt(src, int64(id)*PageSize); err != nil {
		return fmt.Errorf("write page %d: %w", id, err)
	}
	return nil
}

// AllocPage extends the file by one page and returns its id. The new
// page is zero-filled, matching the data model's "all slots are
// zero-initialized on page allocation" requirement.
func (fl *File) AllocPage() (PageId, error) {
	id := PageId(fl.numPages)
	zero := make([]byte, PageSize)
	if err := fl.WritePage(id, zero); err != nil {
		return 0, fmt.Errorf("alloc page: %w", err)
	}
	fl.numPages++
	return id, nil
}

// NumPages reports how many pages (including the reserved page 0)
// have ever been allocated in this file.
func (fl *File) NumPages() int64 { return fl.numPages }

// Sync flushes any OS-buffered writes to stable storage.
func (fl *File) Sync() error {
	if err := fl.f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", fl.path, err)
	}
	return nil
}

// Close syncs and releases the underlying OS file handle.
func (fl *File) Close() error {
	if err := fl.f.Sync(); err != nil {
		fl.f.Close()
		return fmt.Errorf("sync before close %s: %w", fl.path, err)
	}
	return fl.f.Close()
}
