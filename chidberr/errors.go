// Package chidberr defines the fixed set of sentinel errors shared by
// the pager, B-tree engine, record codec and DBM. Every non-OK return
// in this module wraps one of these with errors.Is-compatible context.
package chidberr

import "errors"

var (
	// ErrIO is returned when an underlying file operation fails.
	ErrIO = errors.New("EIO: input/output error")

	// ErrNoMem is returned when an allocation cannot be satisfied.
	// No path in this pure-Go pager can hit it today; kept for parity
	// with the page-cache-exhaustion case a real allocator would hit.
	ErrNoMem = errors.New("ENOMEM: out of memory")

	// ErrPageNo is returned for out-of-range page numbers.
	ErrPageNo = errors.New("EPAGENO: invalid page number")

	// ErrCellNo is returned for out-of-range cell indices.
	ErrCellNo = errors.New("ECELLNO: invalid cell number")

	// ErrCorruptHeader is returned when the file header fails validation.
	ErrCorruptHeader = errors.New("ECORRUPTHEADER: corrupt file header")

	// ErrNotFound is returned when a lookup finds no matching key.
	ErrNotFound = errors.New("ENOTFOUND: key not found")

	// ErrDuplicate is returned when an insert targets a key already present.
	ErrDuplicate = errors.New("EDUPLICATE: duplicate key")

	// ErrMisuse is returned when an API is used in a way its contract forbids.
	ErrMisuse = errors.New("EMISUSE: invalid use of API")
)
