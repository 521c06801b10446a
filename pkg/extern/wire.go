// Package extern implements the Extern transport endpoint: wire
// framing, the COM handshake, extid allocation, and fd/credential
// passing over a Unix domain socket.
package extern

import (
	"encoding/binary"
	"errors"
)

// headerSize is the fixed 8-byte header: body_size (u32), extid
// (u16), fd_offset (u8), header_size (u8).
const headerSize = 8

// NoFDOffset marks a frame as carrying no embedded file descriptor.
const NoFDOffset = 0xFF

// MaxBodySize bounds how large a single frame's declared body may be.
// A peer that declares more than this in its header is lying or
// broken, not legitimately slow; decodeReady closes the connection
// rather than buffering an attacker-controlled amount of memory
// waiting for the rest to arrive.
const MaxBodySize = 1 << 20

// frameHeader is the fixed portion of one wire frame.
type frameHeader struct {
	BodySize   uint32
	ExtID      uint16
	FDOffset   uint8
	HeaderSize uint8 // total header size: headerSize + both NUL-terminated strings
}

// ErrShortHeader is returned when fewer than headerSize bytes are
// available to decode a header.
var ErrShortHeader = errors.New("extern: short frame header")

// ErrMalformedHeader is returned when the two NUL-terminated name
// strings the header declares don't fit its declared HeaderSize.
var ErrMalformedHeader = errors.New("extern: malformed frame header")

// ErrBodyTooLarge is returned when a header declares a body larger
// than MaxBodySize.
var ErrBodyTooLarge = errors.New("extern: declared body size exceeds MaxBodySize")

// ErrWrongExtIDHalf is returned when a peer addresses a frame with an
// extid that is neither from the half the peer allocates from nor one
// this side already allocated, a protocol violation rather than a
// legitimate id.
var ErrWrongExtIDHalf = errors.New("extern: extid from the wrong half")

// ErrFDOffsetRange is returned when a header declares an fd offset
// that does not fall within the frame's own body.
var ErrFDOffsetRange = errors.New("extern: fd offset out of range")

func encodeHeader(h frameHeader, iface, method string) []byte {
	strs := len(iface) + 1 + len(method) + 1
	buf := make([]byte, headerSize+strs)
	binary.LittleEndian.PutUint32(buf[0:4], h.BodySize)
	binary.LittleEndian.PutUint16(buf[4:6], h.ExtID)
	buf[6] = h.FDOffset
	buf[7] = uint8(headerSize + strs)
	off := headerSize
	copy(buf[off:], iface)
	off += len(iface)
	buf[off] = 0
	off++
	copy(buf[off:], method)
	off += len(method)
	buf[off] = 0
	return buf
}

// decodeHeader parses the fixed 8 bytes of a header from buf. It does
// not parse the trailing strings; callers call decodeNames once
// HeaderSize bytes are available.
func decodeHeader(buf []byte) (frameHeader, error) {
	if len(buf) < headerSize {
		return frameHeader{}, ErrShortHeader
	}
	h := frameHeader{
		BodySize:   binary.LittleEndian.Uint32(buf[0:4]),
		ExtID:      binary.LittleEndian.Uint16(buf[4:6]),
		FDOffset:   buf[6],
		HeaderSize: buf[7],
	}
	if int(h.HeaderSize) < headerSize {
		return h, ErrMalformedHeader
	}
	return h, nil
}

// decodeNames extracts the interface and method NUL-terminated name
// strings from a full header (buf must be exactly h.HeaderSize bytes,
// the fixed 8-byte portion included; the strings follow it).
func decodeNames(h frameHeader, buf []byte) (iface, method string, err error) {
	if len(buf) != int(h.HeaderSize) {
		return "", "", ErrMalformedHeader
	}
	rest := buf[headerSize:]
	i := indexZero(rest)
	if i < 0 {
		return "", "", ErrMalformedHeader
	}
	iface = string(rest[:i])
	rest = rest[i+1:]
	j := indexZero(rest)
	if j < 0 {
		return "", "", ErrMalformedHeader
	}
	method = string(rest[:j])
	if j != len(rest)-1 {
		return "", "", ErrMalformedHeader
	}
	return iface, method, nil
}

func indexZero(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}
