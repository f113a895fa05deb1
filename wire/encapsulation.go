package wire

import (
	"encoding/binary"
	"fmt"
)

// EncapsulationId identifies the serialization format of a DATA payload.
// The core only needs to know which id was used, to choose
// the corresponding binary.ByteOrder when handing bytes to the Codec
// collaborator and to round-trip the 4-byte header byte-exact.
type EncapsulationId uint16

const (
	EncapsulationCDR_BE     EncapsulationId = 0x0000
	EncapsulationCDR_LE     EncapsulationId = 0x0001
	EncapsulationPL_CDR_BE  EncapsulationId = 0x0002
	EncapsulationPL_CDR_LE  EncapsulationId = 0x0003
	EncapsulationCDR2_LE    EncapsulationId = 0x000A // also DL_CDR2_LE
	EncapsulationCDR2_BE    EncapsulationId = 0x000B
	EncapsulationPL_CDR2_LE EncapsulationId = 0x0013
)

func (e EncapsulationId) String() string {
	switch e {
	case EncapsulationCDR_BE:
		return "CDR_BE"
	case EncapsulationCDR_LE:
		return "CDR_LE"
	case EncapsulationPL_CDR_BE:
		return "PL_CDR_BE"
	case EncapsulationPL_CDR_LE:
		return "PL_CDR_LE"
	case EncapsulationCDR2_LE:
		return "CDR2_LE"
	case EncapsulationCDR2_BE:
		return "CDR2_BE"
	case EncapsulationPL_CDR2_LE:
		return "PL_CDR2_LE"
	default:
		return fmt.Sprintf("Encapsulation(0x%04x)", uint16(e))
	}
}

// ByteOrder returns the CDR byte order implied by the encapsulation id.
func (e EncapsulationId) ByteOrder() binary.ByteOrder {
	switch e {
	case EncapsulationCDR_LE, EncapsulationPL_CDR_LE, EncapsulationCDR2_LE, EncapsulationPL_CDR2_LE:
		return binary.LittleEndian
	default:
		return binary.BigEndian
	}
}

// recognizedEncapsulations are the ids the core must emit and accept:
// CDR_LE/PL_CDR_LE/CDR2_LE/PL_CDR2_LE for user data, plus PL_CDR_LE for
// SPDP/SEDP parameter lists (already covered by the set).
var recognizedEncapsulations = map[EncapsulationId]bool{
	EncapsulationCDR_LE:     true,
	EncapsulationPL_CDR_LE:  true,
	EncapsulationCDR2_LE:    true,
	EncapsulationPL_CDR2_LE: true,
}

// IsRecognized reports whether this core can encode/decode payloads
// carrying this encapsulation id.
func (e EncapsulationId) IsRecognized() bool {
	return recognizedEncapsulations[e]
}

// encapsulationHeaderSize is the 4-byte header prepended to every
// serialized DATA payload: 2-byte id + 2-byte options.
const encapsulationHeaderSize = 4

// EncodeEncapsulationHeader appends the 4-byte encapsulation header
// (big-endian id, zero options) to buf.
func EncodeEncapsulationHeader(buf []byte, id EncapsulationId) []byte {
	buf = append(buf, byte(id>>8), byte(id))
	buf = append(buf, 0x00, 0x00) // options, unused by this core
	return buf
}

// ParseEncapsulationHeader decodes the 4-byte encapsulation header from
// the front of buf and returns the id and remaining payload bytes.
func ParseEncapsulationHeader(buf []byte) (EncapsulationId, []byte, error) {
	if len(buf) < encapsulationHeaderSize {
		return 0, nil, fmt.Errorf("wire: encapsulation header needs %d bytes, got %d", encapsulationHeaderSize, len(buf))
	}
	id := EncapsulationId(uint16(buf[0])<<8 | uint16(buf[1]))
	return id, buf[encapsulationHeaderSize:], nil
}

// PreferredUserDataEncapsulation is the encapsulation chosen for new user
// data when the peer's preference is unknown.
const PreferredUserDataEncapsulation = EncapsulationCDR2_LE

// PreferredBuiltinEncapsulation is the encapsulation used for SPDP/SEDP
// parameter lists.
const PreferredBuiltinEncapsulation = EncapsulationPL_CDR_LE
