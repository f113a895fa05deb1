package wire

import (
	"encoding/binary"
)

// ParameterId is the 16-bit key of a parameter-list entry.
type ParameterId uint16

// Parameter ids used by SPDP/SEDP.
const (
	PidProtocolVersion        ParameterId = 0x0015
	PidVendorId               ParameterId = 0x0016
	PidParticipantGuid        ParameterId = 0x0050
	PidDefaultUnicastLocator  ParameterId = 0x0032
	PidDefaultMulticastLocator ParameterId = 0x0033
	PidBuiltinEndpointSet     ParameterId = 0x0058
	PidLeaseDuration          ParameterId = 0x0002
	PidEndpointGuid           ParameterId = 0x005A
	PidTopicName              ParameterId = 0x0005
	PidTypeName               ParameterId = 0x0007
	PidReliability            ParameterId = 0x001A
	PidDurability             ParameterId = 0x001D
	PidDeadline               ParameterId = 0x0023
	PidLiveliness             ParameterId = 0x001B
	PidOwnership              ParameterId = 0x001F
	PidHistory                ParameterId = 0x0040
	PidPartition              ParameterId = 0x0029

	// PidSentinel terminates a parameter list.
	PidSentinel ParameterId = 0x0001

	// PidStatusInfo distinguishes a key-only DATA's dispose/unregister
	// kind on the wire; it is carried in the same inlineQos parameter
	// list as any other PID. Mirrors real RTPS's PID_STATUS_INFO.
	PidStatusInfo ParameterId = 0x0071

	// PidKeyHash carries a Change's InstanceHandle across the wire in a
	// DATA submessage's inlineQos, since DataSubmessage itself has no
	// dedicated instance-handle field. Mirrors real RTPS's PID_KEY_HASH.
	PidKeyHash ParameterId = 0x0070
)

// StatusInfo flag bits carried in the 4-byte PidStatusInfo value.
const (
	StatusInfoDisposed     uint32 = 0x01
	StatusInfoUnregistered uint32 = 0x02
)

// BuildStatusInfoInlineQos encodes a single-parameter list carrying the
// dispose/unregister status info bits, suitable for DataSubmessage.InlineQos
// on a key-only DATA.
func BuildStatusInfoInlineQos(order binary.ByteOrder, disposed, unregistered bool) []byte {
	var word uint32
	if disposed {
		word |= StatusInfoDisposed
	}
	if unregistered {
		word |= StatusInfoUnregistered
	}
	var v [4]byte
	order.PutUint32(v[:], word)
	return ParameterList{{Id: PidStatusInfo, Value: v[:]}}.Encode(order)
}

// Parameter is one (pid, value) entry of a parameter list.
type Parameter struct {
	Id    ParameterId
	Value []byte
}

// ParameterList is an ordered sequence of Parameters, as carried inline in
// DATA submessages (inlineQos) and in the serialized payload of SPDP/SEDP
// samples under PL_CDR(2)_LE encapsulation.
type ParameterList []Parameter

// Get returns the first parameter with the given id, if present.
func (pl ParameterList) Get(id ParameterId) ([]byte, bool) {
	for _, p := range pl {
		if p.Id == id {
			return p.Value, true
		}
	}
	return nil, false
}

// Encode serializes the parameter list as
// (pid: u16, length: u16, value, pad-to-4)* sentinel, in the given byte
// order.
func (pl ParameterList) Encode(order binary.ByteOrder) []byte {
	var buf []byte
	for _, p := range pl {
		buf = appendParamEntry(buf, order, p.Id, p.Value)
	}
	buf = appendParamEntry(buf, order, PidSentinel, nil)
	return buf
}

func appendParamEntry(buf []byte, order binary.ByteOrder, id ParameterId, value []byte) []byte {
	var hdr [4]byte
	order.PutUint16(hdr[0:2], uint16(id))
	order.PutUint16(hdr[2:4], uint16(len(value)))
	buf = append(buf, hdr[:]...)
	buf = append(buf, value...)
	if pad := (4 - len(value)%4) % 4; pad != 0 {
		buf = append(buf, make([]byte, pad)...)
	}
	return buf
}

// ParseParameterList decodes a parameter list from buf until the sentinel
// entry (pid=0x0001, length=0) or the buffer is exhausted. An entry whose
// declared length overruns the buffer truncates the list (returning what
// was parsed successfully) rather than erroring the whole datagram.
func ParseParameterList(buf []byte, order binary.ByteOrder) ParameterList {
	var pl ParameterList
	for len(buf) >= 4 {
		id := ParameterId(order.Uint16(buf[0:2]))
		length := int(order.Uint16(buf[2:4]))
		buf = buf[4:]
		if id == PidSentinel {
			break
		}
		if length < 0 || length > len(buf) {
			break
		}
		value := buf[:length]
		pad := (4 - length%4) % 4
		consumed := length + pad
		if consumed > len(buf) {
			consumed = len(buf)
		}
		pl = append(pl, Parameter{Id: id, Value: value})
		buf = buf[consumed:]
	}
	return pl
}

// unknown parameter ids are tolerated by ParseParameterList automatically
// (they are stored like any other entry); callers that need SPDP/SEDP
// semantics simply ignore ids they do not recognize, without requiring a
// special sentinel type here.
