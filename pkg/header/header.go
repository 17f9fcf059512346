// Package header packs and unpacks the CBS header, which precedes every
// CBS payload on the wire. Seven standard layouts allocate the gid|sid|pty
// bits differently to trade header size against address space; the layout
// in use is fixed bus-wide by the party configurations' HeaderType.
//
// Grounded on original_source/src/common/hzl_CommonHeader.c. In the
// per-layout doc comments, `g` = GID bits, `s` = SID bits, `p` = PTY bits,
// `.` = unused bits.
package header

import cbs "github.com/samsamfire/cbs"

// Type identifies one of the seven standard CBS header layouts.
type Type uint8

const (
	Type0 Type = 0
	Type1 Type = 1
	Type2 Type = 2
	Type3 Type = 3
	Type4 Type = 4
	Type5 Type = 5
	Type6 Type = 6
)

func maxUintBits(bits uint) uint8 {
	return uint8((uint(1) << bits) - 1)
}

// CheckType validates that t is a known header type.
func CheckType(t uint8) cbs.Err {
	if t > uint8(Type6) {
		return cbs.ErrInvalidHeaderType
	}
	return cbs.OK
}

// Len returns the packed length in bytes of header type t, or 0 if unknown.
func Len(t uint8) uint8 {
	switch Type(t) {
	case Type0:
		return 3
	case Type1, Type2, Type5:
		return 2
	case Type3, Type4, Type6:
		return 1
	default:
		return 0
	}
}

// MaxSid returns the largest SID value that fits header type t, or 0 if unknown.
func MaxSid(t uint8) cbs.Sid {
	switch Type(t) {
	case Type0:
		return maxUintBits(8)
	case Type1:
		return maxUintBits(5)
	case Type2:
		return maxUintBits(8)
	case Type3:
		return maxUintBits(2)
	case Type4:
		return maxUintBits(3)
	case Type5:
		return maxUintBits(8)
	case Type6:
		return maxUintBits(5)
	default:
		return 0
	}
}

// MaxGid returns the largest GID value that fits header type t, or 0 if unknown.
func MaxGid(t uint8) cbs.Gid {
	switch Type(t) {
	case Type0, Type1:
		return maxUintBits(8)
	case Type2:
		return maxUintBits(5)
	case Type3:
		return maxUintBits(3)
	case Type4:
		return maxUintBits(2)
	case Type5, Type6:
		return 0
	default:
		return 0
	}
}

// Pack writes hdr into binary using header type t. binary must have
// capacity at least Len(t); the caller is responsible for field values
// fitting within the layout's bit widths (checked at configuration time by
// pkg/config, not re-validated here).
func Pack(binary []byte, t uint8, hdr cbs.Header) cbs.Err {
	switch Type(t) {
	case Type0: // | gggggggg | ssssssss | pppppppp |
		binary[0] = hdr.Gid
		binary[1] = hdr.Sid
		binary[2] = hdr.Pty
	case Type1: // | gggggggg | sssssppp |
		binary[0] = hdr.Gid
		binary[1] = (hdr.Sid&0x1F)<<3 | (hdr.Pty & 0x07)
	case Type2: // | ssssssss | gggggppp |
		binary[0] = hdr.Sid
		binary[1] = (hdr.Gid&0x1F)<<3 | (hdr.Pty & 0x07)
	case Type3: // | gggssppp |
		binary[0] = (hdr.Gid&0x07)<<5 | (hdr.Sid&0x03)<<3 | (hdr.Pty & 0x07)
	case Type4: // | sssggppp |
		binary[0] = (hdr.Sid&0x07)<<5 | (hdr.Gid&0x03)<<3 | (hdr.Pty & 0x07)
	case Type5: // | ssssssss | .....ppp |
		binary[0] = hdr.Sid
		binary[1] = hdr.Pty & 0x07
	case Type6: // | sssssppp |
		binary[0] = (hdr.Sid&0x1F)<<3 | (hdr.Pty & 0x07)
	default:
		return cbs.ErrInvalidHeaderType
	}
	return cbs.OK
}

// Unpack reads a header of type t from binary, which must have length at
// least Len(t).
func Unpack(binary []byte, t uint8) (cbs.Header, cbs.Err) {
	var hdr cbs.Header
	switch Type(t) {
	case Type0:
		hdr.Gid, hdr.Sid, hdr.Pty = binary[0], binary[1], binary[2]
	case Type1:
		hdr.Gid = binary[0]
		hdr.Sid = binary[1] >> 3
		hdr.Pty = binary[1] & 0x07
	case Type2:
		hdr.Sid = binary[0]
		hdr.Gid = binary[1] >> 3
		hdr.Pty = binary[1] & 0x07
	case Type3:
		hdr.Gid = binary[0] >> 5
		hdr.Sid = (binary[0] >> 3) & 0x03
		hdr.Pty = binary[0] & 0x07
	case Type4:
		hdr.Sid = binary[0] >> 5
		hdr.Gid = (binary[0] >> 3) & 0x03
		hdr.Pty = binary[0] & 0x07
	case Type5:
		hdr.Gid = cbs.BroadcastGid
		hdr.Sid = binary[0]
		hdr.Pty = binary[1] & 0x07
	case Type6:
		hdr.Gid = cbs.BroadcastGid
		hdr.Sid = binary[0] >> 3
		hdr.Pty = binary[0] & 0x07
	default:
		return hdr, cbs.ErrInvalidHeaderType
	}
	return hdr, cbs.OK
}
