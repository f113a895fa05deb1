// Package wire implements RtpsMessenger: serializing outgoing
// submessages into RTPS datagrams bounded by the transport MTU, and
// parsing incoming datagrams into ordered submessage streams. It plays
// the role cs104.apci.go and cs101.ft.go play in go-iecp5 — hand-rolled
// big/little-endian frame (de)serialization with explicit byte-offset
// math rather than encoding/gob or reflection.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/rtpscore/rtpscore/guid"
)

// HeaderSize is the fixed size of the RTPS message header.
const HeaderSize = 20

// Magic is the 4-byte RTPS protocol marker.
var Magic = [4]byte{'R', 'T', 'P', 'S'}

// ProtocolVersion is the (major, minor) RTPS wire version. The core
// interoperates as either 2.4 or 2.5; this implementation emits 2.4 and
// is tolerant of peers announcing 2.5 (wire layout is unchanged between
// them for everything this core produces and consumes).
type ProtocolVersion struct {
	Major, Minor byte
}

// Supported protocol versions.
var (
	ProtocolVersion24 = ProtocolVersion{Major: 2, Minor: 4}
	ProtocolVersion25 = ProtocolVersion{Major: 2, Minor: 5}
)

// VendorId identifies the implementation that produced a message. No
// vendor id is reserved for this implementation upstream; rtpscore picks
// an unused value and is consistent about it.
type VendorId [2]byte

// VendorIdRtpscore is the vendor id this implementation announces.
var VendorIdRtpscore = VendorId{0x01, 0xAA}

// Header is the 20-byte, big-endian RTPS message header.
type Header struct {
	Version ProtocolVersion
	Vendor  VendorId
	Prefix  guid.GuidPrefix
}

// Encode appends the wire form of h to buf and returns the extended slice.
func (h Header) Encode(buf []byte) []byte {
	buf = append(buf, Magic[:]...)
	buf = append(buf, h.Version.Major, h.Version.Minor)
	buf = append(buf, h.Vendor[0], h.Vendor[1])
	buf = append(buf, h.Prefix[:]...)
	return buf
}

// ErrMalformedHeader is returned when a datagram's header does not begin
// with the RTPS magic, or is truncated. Per failure semantics,
// callers must drop the datagram silently rather than propagate this as
// an API error.
var ErrMalformedHeader = fmt.Errorf("wire: malformed RTPS header")

// ParseHeader decodes the fixed 20-byte header from the front of buf,
// returning the header and the remaining bytes (the submessage stream).
func ParseHeader(buf []byte) (Header, []byte, error) {
	if len(buf) < HeaderSize {
		return Header{}, nil, ErrMalformedHeader
	}
	if buf[0] != Magic[0] || buf[1] != Magic[1] || buf[2] != Magic[2] || buf[3] != Magic[3] {
		return Header{}, nil, ErrMalformedHeader
	}
	var h Header
	h.Version = ProtocolVersion{Major: buf[4], Minor: buf[5]}
	h.Vendor = VendorId{buf[6], buf[7]}
	copy(h.Prefix[:], buf[8:20])
	return h, buf[HeaderSize:], nil
}

// byteOrder returns the binary.ByteOrder implied by a submessage's
// endianness flag bit.
func byteOrder(littleEndian bool) binary.ByteOrder {
	if littleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}
