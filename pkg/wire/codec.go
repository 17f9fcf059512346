// Package wire encodes and decodes the fixed-width little-endian integers
// CBS uses on the wire and in its binary configuration file format: 16, 24,
// 32 and 64-bit counters, nonces and timestamps. Grounded on
// original_source/src/common/hzl_CommonEndian.c, which defines the same
// little-endian codec the rest of the original implementation calls into.
package wire

// EncodeLE16 writes v into dst[0:2], least-significant byte first.
func EncodeLE16(dst []byte, v uint16) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
}

// DecodeLE16 reads a little-endian uint16 from src[0:2].
func DecodeLE16(src []byte) uint16 {
	return uint16(src[0]) | uint16(src[1])<<8
}

// EncodeLE24 writes the low 24 bits of v into dst[0:3], least-significant
// byte first.
func EncodeLE24(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
}

// DecodeLE24 reads a little-endian 24-bit value from src[0:3] into the low
// 24 bits of a uint32.
func DecodeLE24(src []byte) uint32 {
	return uint32(src[0]) | uint32(src[1])<<8 | uint32(src[2])<<16
}

// EncodeLE32 writes v into dst[0:4], least-significant byte first.
func EncodeLE32(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}

// DecodeLE32 reads a little-endian uint32 from src[0:4].
func DecodeLE32(src []byte) uint32 {
	return uint32(src[0]) | uint32(src[1])<<8 | uint32(src[2])<<16 | uint32(src[3])<<24
}

// EncodeLE64 returns v encoded as 8 little-endian bytes.
func EncodeLE64(v uint64) []byte {
	dst := make([]byte, 8)
	PutLE64(dst, v)
	return dst
}

// PutLE64 writes v into dst[0:8], least-significant byte first.
func PutLE64(dst []byte, v uint64) {
	for i := 0; i < 8; i++ {
		dst[i] = byte(v >> (8 * uint(i)))
	}
}

// DecodeLE64 reads a little-endian uint64 from src[0:8].
func DecodeLE64(src []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(src[i]) << (8 * uint(i))
	}
	return v
}
