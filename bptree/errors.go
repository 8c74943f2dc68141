package bptree

import "errors"

// Distinct, non-recoverable error kinds the core can raise. Callers
// compare with errors.Is; internal plumbing wraps these with
// fmt.Errorf("...: %w", ...) the way the teacher wraps disk-manager
// and buffer-pool failures throughout its own codebase.
var (
	ErrBadOpcodes         = errors.New("bptree: operator outside the allowed GT/GTE/LT/LTE sets")
	ErrBadRange           = errors.New("bptree: low bound exceeds high bound")
	ErrNoSuchKey          = errors.New("bptree: no entry in range")
	ErrScanNotInitialized = errors.New("bptree: scan not initialized")
	ErrScanCompleted      = errors.New("bptree: scan completed")
	ErrBadIndexInfo       = errors.New("bptree: index file metadata disagrees with constructor parameters")
	ErrFileNotFound       = errors.New("bptree: index file not found")
	ErrEndOfFile          = errors.New("bptree: end of relation")
)

// Operator enumerates the comparison predicates a range scan bound
// may use.
type Operator int

const (
	GT Operator = iota
	GTE
	LT
	LTE
)

func (op Operator) String() string {
	switch op {
	case GT:
		return "GT"
	case GTE:
		return "GTE"
	case LT:
		return "LT"
	case LTE:
		return "LTE"
	default:
		return "UNKNOWN"
	}
}

// Datatype enumerates the supported attribute types. INTEGER is the
// only value the core accepts; anything else is a programmer error
// rejected at open time (spec.md §4.3).
type Datatype int

const (
	INTEGER Datatype = iota
)
