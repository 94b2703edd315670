// Package wire defines the binary request/response protocol: one-byte
// opcodes and status codes, fixed-width integers, and 32-bit
// length-prefixed byte strings.
//
// Multibyte integers are host-order because the transport is a UNIX domain
// socket and both ends share a machine. Every encode/decode goes through the
// ToNet/FromNet hooks below, so switching the wire to big-endian is a
// one-constant change.
package wire

import (
	"encoding/binary"
	"math/bits"
)

// Request opcodes.
const (
	OpGetOne     byte = 0x01
	OpGetN       byte = 0x02
	OpGetBetween byte = 0x03
	OpPutOne     byte = 0x04
	OpPutMulti   byte = 0x05
	OpPutBulk    byte = 0x06
)

// Response status codes.
const (
	StatusOK       byte = 0x00
	StatusNotFound byte = 0x01
	StatusErr      byte = 0x02
)

// networkByteswap selects big-endian integers on the wire. Off by default:
// the UNIX-socket transport never crosses a host boundary.
const networkByteswap = false

// hostBigEndian is true when native order already is big-endian, so
// selecting big-endian on the wire needs no swap.
var hostBigEndian = binary.NativeEndian.Uint16([]byte{0x00, 0x01}) == 1

// ToNet16 converts a host-order integer to its wire representation.
func ToNet16(v uint16) uint16 {
	if networkByteswap && !hostBigEndian {
		return bits.ReverseBytes16(v)
	}
	return v
}

// ToNet32 converts a host-order integer to its wire representation.
func ToNet32(v uint32) uint32 {
	if networkByteswap && !hostBigEndian {
		return bits.ReverseBytes32(v)
	}
	return v
}

// FromNet16 converts a wire integer back to host order.
func FromNet16(v uint16) uint16 {
	return ToNet16(v)
}

// FromNet32 converts a wire integer back to host order.
func FromNet32(v uint32) uint32 {
	return ToNet32(v)
}

// PutUint16 writes v into b[0:2] in wire order.
func PutUint16(b []byte, v uint16) {
	binary.NativeEndian.PutUint16(b, ToNet16(v))
}

// PutUint32 writes v into b[0:4] in wire order.
func PutUint32(b []byte, v uint32) {
	binary.NativeEndian.PutUint32(b, ToNet32(v))
}

// Uint16 reads a wire-order integer from b[0:2].
func Uint16(b []byte) uint16 {
	return FromNet16(binary.NativeEndian.Uint16(b))
}

// Uint32 reads a wire-order integer from b[0:4].
func Uint32(b []byte) uint32 {
	return FromNet32(binary.NativeEndian.Uint32(b))
}

// AppendLP32 appends a 32-bit length prefix followed by p. A zero-length p
// encodes as just the four-byte zero prefix.
func AppendLP32(dst []byte, p []byte) []byte {
	var l [4]byte
	PutUint32(l[:], uint32(len(p)))
	dst = append(dst, l[:]...)
	return append(dst, p...)
}

// SplitLP32 decodes a length-prefixed byte string from the front of b,
// returning the payload and the remainder of b. ok is false when b is too
// short to hold the declared length.
func SplitLP32(b []byte) (p, rest []byte, ok bool) {
	if len(b) < 4 {
		return nil, b, false
	}
	n := int(Uint32(b))
	if len(b)-4 < n {
		return nil, b, false
	}
	return b[4 : 4+n], b[4+n:], true
}

// KnownOpcode reports whether op is a defined request opcode.
func KnownOpcode(op byte) bool {
	return op >= OpGetOne && op <= OpPutBulk
}
