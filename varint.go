package chidb

import "encoding/binary"

// putVarint32 writes v into dst using this format's compressed varint
// convention: stored varints always occupy exactly 4 bytes (see "The
// chidb File Format" §2.3), so callers can treat a varint slot like
// any other fixed-width field while keeping the high-bit-continuation
// shape: each byte carries 7 value bits, most significant first, and
// the first three bytes have their high bit set. Only the low 28 bits
// of v are stored.
func putVarint32(dst []byte, v uint32) int {
	dst[0] = byte(v>>21)&0x7F | 0x80
	dst[1] = byte(v>>14)&0x7F | 0x80
	dst[2] = byte(v>>7)&0x7F | 0x80
	dst[3] = byte(v) & 0x7F
	return 4
}

// getVarint32 reads a 4-byte varint slot from src.
func getVarint32(src []byte) (uint32, int) {
	v := uint32(src[0]&0x7F)<<21 | uint32(src[1]&0x7F)<<14 | uint32(src[2]&0x7F)<<7 | uint32(src[3]&0x7F)
	return v, 4
}

func putUint16be(dst []byte, v uint16) {
	binary.BigEndian.PutUint16(dst, v)
}

func getUint16be(src []byte) uint16 {
	return binary.BigEndian.Uint16(src)
}

func putUint32be(dst []byte, v uint32) {
	binary.BigEndian.PutUint32(dst, v)
}

func getUint32be(src []byte) uint32 {
	return binary.BigEndian.Uint32(src)
}
