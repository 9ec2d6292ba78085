package chidb

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/msAlcantara/chidb/chidberr"
)

// DefaultPageSize is used whenever a new, empty file is opened without
// an explicit page size override.
const DefaultPageSize uint16 = 1024

// HeaderSize is the fixed size, in bytes, of the file header that
// precedes the node region of page 1.
const HeaderSize = 100

// IsValidPageSize reports whether size is one of the powers of two in
// {512, 1024, 2048, 4096, 8192, 16384, 32768, 65536} the format allows.
func IsValidPageSize(size uint32) bool {
	switch size {
	case 512, 1024, 2048, 4096, 8192, 16384, 32768, 65536:
		return true
	}
	return false
}

// MemPage is an in-memory copy of a page returned by the Pager. It
// borrows no pager state: once ReleaseMemPage is called the buffer
// must not be used again.
type MemPage struct {
	// number is the 1-based physical page number.
	number uint32

	// offset is where this page's B-tree node region begins. It is
	// HeaderSize on page 1 (the file header occupies the first 100
	// bytes) and 0 everywhere else.
	offset uint16

	// data is the full raw page buffer, including the header region
	// on page 1.
	data []byte
}

// Read returns the bytes of the page available to the node parser,
// i.e. everything after the file header on page 1.
func (m *MemPage) Read() []byte {
	return m.data[m.offset:]
}

// Number returns the page's 1-based page number.
func (m *MemPage) Number() uint32 {
	return m.number
}

// Len returns the length of the region returned by Read.
func (m *MemPage) Len() int {
	return len(m.data) - int(m.offset)
}

// Write overwrites the node region of the page (everything after
// m.offset) with data, which must be exactly Len() bytes.
func (m *MemPage) Write(data []byte) error {
	if len(data) != m.Len() {
		return fmt.Errorf("%w: invalid page payload size: expected %d got %d", chidberr.ErrIO, m.Len(), len(data))
	}
	copy(m.data[m.offset:], data)
	return nil
}

// WriteAt overwrites data at byte offset at within the node region.
func (m *MemPage) WriteAt(data []byte, at uint16) error {
	start := int(m.offset) + int(at)
	if start+len(data) > len(m.data) {
		return fmt.Errorf("%w: write at %d of length %d overruns page", chidberr.ErrIO, at, len(data))
	}
	copy(m.data[start:], data)
	return nil
}

// Data returns the full raw page buffer, including the 100-byte file
// header region on page 1. Cell content and the cell offset array are
// addressed in these absolute, page-start-relative coordinates: only
// the node header's own scalar fields (free_offset, n_cells, ...) are
// local to Offset().
func (m *MemPage) Data() []byte {
	return m.data
}

// Offset returns the byte position within Data() where this page's
// node header begins (HeaderSize on page 1, 0 elsewhere).
func (m *MemPage) Offset() uint16 {
	return m.offset
}

// WriteAbsAt overwrites data at absolute byte offset at within the
// full page buffer (see Data).
func (m *MemPage) WriteAbsAt(data []byte, at uint16) error {
	if int(at)+len(data) > len(m.data) {
		return fmt.Errorf("%w: write at %d of length %d overruns page", chidberr.ErrIO, at, len(data))
	}
	copy(m.data[at:], data)
	return nil
}

// Pager owns the file handle, the page size, and the page count. It
// produces and consumes fixed-size page buffers; it never interprets
// node or header contents beyond their raw bytes.
type Pager struct {
	file       *os.File
	pageSize   uint16
	totalPages uint32
	log        *logrus.Logger
}

// PagerOption configures a Pager at open time.
type PagerOption func(*Pager)

// WithPageSize overrides the default page size used when initializing
// a brand-new (empty) file.
func WithPageSize(size uint16) PagerOption {
	return func(p *Pager) { p.pageSize = size }
}

// WithLogger attaches a structured logger. When omitted, a logger with
// output discarded is used so the pager is silent by default.
func WithLogger(log *logrus.Logger) PagerOption {
	return func(p *Pager) { p.log = log }
}

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// OpenPager opens a file for paged access, creating it if absent. It
// does not interpret the file header; callers validate headers via
// ReadHeader/WriteHeader.
func OpenPager(filename string, opts ...PagerOption) (*Pager, error) {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chidberr.ErrIO, err)
	}

	p := &Pager{
		file:     f,
		pageSize: DefaultPageSize,
		log:      discardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chidberr.ErrIO, err)
	}
	if info.Size() > 0 {
		p.totalPages = uint32(info.Size()) / uint32(p.pageSize)
	}

	return p, nil
}

// PageSize returns the pager's currently configured page size.
func (p *Pager) PageSize() uint16 {
	return p.pageSize
}

// TotalPages returns the number of pages currently allocated in the
// file.
func (p *Pager) TotalPages() uint32 {
	return p.totalPages
}

// SetPageSize sets the page size used for all subsequent page I/O.
// Callers must do this before reading any page of a non-empty file,
// and the value must match the size recorded in that file's header.
// The page count is recomputed from the file size under the new size.
func (p *Pager) SetPageSize(size uint16) error {
	if !IsValidPageSize(uint32(size)) {
		return fmt.Errorf("%w: invalid page size %d", chidberr.ErrCorruptHeader, size)
	}
	info, err := p.file.Stat()
	if err != nil {
		return fmt.Errorf("%w: %v", chidberr.ErrIO, err)
	}
	p.pageSize = size
	p.totalPages = uint32(info.Size()) / uint32(size)
	return nil
}

// IsEmpty reports whether the underlying file has zero length.
func (p *Pager) IsEmpty() (bool, error) {
	info, err := p.file.Stat()
	if err != nil {
		return false, fmt.Errorf("%w: %v", chidberr.ErrIO, err)
	}
	return info.Size() == 0, nil
}

// ReadHeader reads the first HeaderSize bytes of the file without
// creating or parsing a page view. It can be called before the page
// size is known, since the header always occupies a fixed region.
func (p *Pager) ReadHeader() ([]byte, error) {
	header := make([]byte, HeaderSize)
	if _, err := p.file.ReadAt(header, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: reading header: %v", chidberr.ErrIO, err)
	}
	return header, nil
}

// WriteHeader writes exactly HeaderSize bytes at the start of the file.
func (p *Pager) WriteHeader(header []byte) error {
	if len(header) != HeaderSize {
		return fmt.Errorf("%w: invalid header size %d", chidberr.ErrIO, len(header))
	}
	if _, err := p.file.WriteAt(header, 0); err != nil {
		return fmt.Errorf("%w: writing header: %v", chidberr.ErrIO, err)
	}
	p.log.WithField("bytes", len(header)).Trace("wrote file header")
	return nil
}

// AllocatePage extends the logical page count by one and returns the
// new page's number. Bytes of a freshly allocated page read back as
// zero until the first WritePage, since ReadPage zero-fills past EOF.
func (p *Pager) AllocatePage() (uint32, error) {
	p.totalPages++
	p.log.WithField("page", p.totalPages).Debug("allocated page")
	return p.totalPages, nil
}

// ReadPage returns an in-memory copy of page npage. Bytes beyond the
// current end of file (e.g. a page allocated but never written) read
// back as zero, matching a zero-initialized new page.
func (p *Pager) ReadPage(npage uint32) (*MemPage, error) {
	if err := p.validatePageNo(npage); err != nil {
		return nil, err
	}

	data := make([]byte, p.pageSize)
	n, err := p.file.ReadAt(data, p.offset(npage))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: reading page %d: %v", chidberr.ErrIO, npage, err)
	}
	p.log.WithFields(logrus.Fields{"page": npage, "bytes": n}).Trace("read page")

	offset := uint16(0)
	if npage == 1 {
		offset = HeaderSize
	}

	return &MemPage{number: npage, offset: offset, data: data}, nil
}

// WritePage writes the buffer back at its page offset.
func (p *Pager) WritePage(page *MemPage) error {
	if err := p.validatePageNo(page.number); err != nil {
		return err
	}
	if len(page.data) != int(p.pageSize) {
		return fmt.Errorf("%w: invalid page data size: expected %d got %d", chidberr.ErrIO, p.pageSize, len(page.data))
	}

	n, err := p.file.WriteAt(page.data, p.offset(page.number))
	if err != nil {
		return fmt.Errorf("%w: writing page %d: %v", chidberr.ErrIO, page.number, err)
	}
	p.log.WithFields(logrus.Fields{"page": page.number, "bytes": n}).Trace("wrote page")
	return nil
}

// ReleaseMemPage returns the buffer to the pager. There is no page
// cache to return it to in this implementation, so this only enforces
// the discipline that callers stop using the buffer afterward; it
// never fails.
func (p *Pager) ReleaseMemPage(page *MemPage) error {
	return nil
}

// Close releases the underlying file handle.
func (p *Pager) Close() error {
	if err := p.file.Close(); err != nil {
		return fmt.Errorf("%w: %v", chidberr.ErrIO, err)
	}
	return nil
}

func (p *Pager) validatePageNo(npage uint32) error {
	if npage < 1 || npage > p.totalPages {
		return fmt.Errorf("%w: page %d (have %d pages)", chidberr.ErrPageNo, npage, p.totalPages)
	}
	return nil
}

func (p *Pager) offset(npage uint32) int64 {
	return int64(npage-1) * int64(p.pageSize)
}
