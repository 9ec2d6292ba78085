package chidb

import (
	"bytes"
	"fmt"

	"github.com/msAlcantara/chidb/chidberr"
)

// MagicBytes is the fixed 16-byte literal prefix of every chidb file,
// including its trailing NUL. The teacher's Go port dropped the NUL
// (a 15-byte slice); this implementation restores it since the format
// table in §6 is explicit about the 16-byte width.
var MagicBytes = []byte("SQLite format 3\x00")

// headerLiteral12 is the fixed 6-byte literal at offset 0x12.
var headerLiteral12 = [6]byte{0x01, 0x01, 0x00, 0x40, 0x20, 0x20}

// pageCacheSizeRejected is the page-cache-size value that marks a file
// as written by the known-buggy sibling tool; such files are rejected
// with ErrCorruptHeader. The meaning of 20000 is not explained in the
// source material and the check is retained as a pure literal per the
// spec's Open Question 3.
const pageCacheSizeRejected = 20000

// FileHeader is the 100-byte structure at the start of page 1.
type FileHeader struct {
	PageSize          uint16
	FileChangeCounter uint32
	SchemaVersion     uint32
	PageCacheSize     uint32
	UserCookie        uint32
}

// DefaultFileHeader returns the header written into a freshly created
// (previously empty) database file.
func DefaultFileHeader(pageSize uint16) FileHeader {
	return FileHeader{
		PageSize:          pageSize,
		FileChangeCounter: 0,
		SchemaVersion:     0,
		PageCacheSize:     PageCacheSizeInitial,
		UserCookie:        0,
	}
}

// PageCacheSizeInitial is the default page-cache-size value recorded
// in a freshly initialized header.
const PageCacheSizeInitial = 0x00010000 // matches the teacher's constant's intent without colliding with the rejected sentinel

// Bytes serializes the header to its exact 100-byte on-disk layout.
func (h FileHeader) Bytes() ([]byte, error) {
	buf := make([]byte, HeaderSize)

	copy(buf[0x00:0x10], MagicBytes)
	putUint16be(buf[0x10:0x12], h.PageSize)
	copy(buf[0x12:0x18], headerLiteral12[:])
	putUint32be(buf[0x18:0x1C], h.FileChangeCounter)
	// 0x1C: unused (0)
	// 0x20, 0x24: literal all-zero
	putUint32be(buf[0x28:0x2C], h.SchemaVersion)
	putUint32be(buf[0x2C:0x30], 1) // literal {0,0,0,1}
	putUint32be(buf[0x30:0x34], h.PageCacheSize)
	// 0x34: literal all-zero
	putUint32be(buf[0x38:0x3C], 1) // literal {0,0,0,1}
	putUint32be(buf[0x3C:0x40], h.UserCookie)
	// 0x40..0x64: literal all-zero / unused

	return buf, nil
}

// ParseFileHeader validates and decodes a 100-byte on-disk header,
// returning ErrCorruptHeader on any literal mismatch or on the
// rejected page-cache-size sentinel.
func ParseFileHeader(raw []byte) (FileHeader, error) {
	if len(raw) != HeaderSize {
		return FileHeader{}, fmt.Errorf("%w: header is %d bytes, want %d", chidberr.ErrCorruptHeader, len(raw), HeaderSize)
	}
	if !bytes.Equal(raw[0x00:0x10], MagicBytes) {
		return FileHeader{}, fmt.Errorf("%w: bad magic bytes", chidberr.ErrCorruptHeader)
	}
	if !bytes.Equal(raw[0x12:0x18], headerLiteral12[:]) {
		return FileHeader{}, fmt.Errorf("%w: bad literal at 0x12", chidberr.ErrCorruptHeader)
	}
	if getUint32be(raw[0x2C:0x30]) != 1 {
		return FileHeader{}, fmt.Errorf("%w: bad literal at 0x2C", chidberr.ErrCorruptHeader)
	}
	if getUint32be(raw[0x38:0x3C]) != 1 {
		return FileHeader{}, fmt.Errorf("%w: bad literal at 0x38", chidberr.ErrCorruptHeader)
	}
	for _, off := range []int{0x20, 0x24, 0x34, 0x40} {
		if getUint32be(raw[off:off+4]) != 0 {
			return FileHeader{}, fmt.Errorf("%w: bad literal at %#x", chidberr.ErrCorruptHeader, off)
		}
	}

	pageSize := getUint16be(raw[0x10:0x12])
	pageCacheSize := getUint32be(raw[0x30:0x34])
	if pageCacheSize == pageCacheSizeRejected {
		return FileHeader{}, fmt.Errorf("%w: page cache size is the rejected sentinel value", chidberr.ErrCorruptHeader)
	}

	return FileHeader{
		PageSize:          pageSize,
		FileChangeCounter: getUint32be(raw[0x18:0x1C]),
		SchemaVersion:     getUint32be(raw[0x28:0x2C]),
		PageCacheSize:     pageCacheSize,
		UserCookie:        getUint32be(raw[0x3C:0x40]),
	}, nil
}
