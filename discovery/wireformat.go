package discovery

import (
	"encoding/binary"
	"time"

	"github.com/rtpscore/rtpscore/guid"
	"github.com/rtpscore/rtpscore/qos"
	"github.com/rtpscore/rtpscore/wire"
)

// EncodeParticipantData serializes an SPDPdiscoveredParticipantData sample
// as a PL_CDR parameter list, suitable for
// DataSubmessage.SerializedData under PreferredBuiltinEncapsulation.
func EncodeParticipantData(d ParticipantData, order binary.ByteOrder) []byte {
	var pl wire.ParameterList
	pl = append(pl, wire.Parameter{Id: wire.PidParticipantGuid, Value: append([]byte(nil), d.GuidPrefix[:]...)})
	pl = append(pl, wire.Parameter{Id: wire.PidProtocolVersion, Value: uint16Bytes(order, d.ProtocolVersion)})
	pl = append(pl, wire.Parameter{Id: wire.PidVendorId, Value: uint16Bytes(order, d.VendorId)})
	for _, loc := range d.UnicastLocators {
		pl = append(pl, wire.Parameter{Id: wire.PidDefaultUnicastLocator, Value: encodeLocator(order, loc)})
	}
	for _, loc := range d.MulticastLocators {
		pl = append(pl, wire.Parameter{Id: wire.PidDefaultMulticastLocator, Value: encodeLocator(order, loc)})
	}
	pl = append(pl, wire.Parameter{Id: wire.PidBuiltinEndpointSet, Value: uint32Bytes(order, uint32(d.AvailableEndpoints))})
	pl = append(pl, wire.Parameter{Id: wire.PidLeaseDuration, Value: durationBytes(order, d.LeaseDuration)})
	return pl.Encode(order)
}

// DecodeParticipantData parses the PL_CDR body of an SPDP sample. ok is
// false only when the mandatory participant guid parameter is missing or
// truncated; every other parameter tolerates absence under the usual
// tolerant-parsing rule.
func DecodeParticipantData(buf []byte, order binary.ByteOrder) (d ParticipantData, ok bool) {
	pl := wire.ParseParameterList(buf, order)
	v, present := pl.Get(wire.PidParticipantGuid)
	if !present || len(v) < guid.GuidPrefixSize {
		return d, false
	}
	copy(d.GuidPrefix[:], v[:guid.GuidPrefixSize])
	if v, present := pl.Get(wire.PidProtocolVersion); present && len(v) >= 2 {
		d.ProtocolVersion = order.Uint16(v)
	}
	if v, present := pl.Get(wire.PidVendorId); present && len(v) >= 2 {
		d.VendorId = order.Uint16(v)
	}
	for _, p := range pl {
		switch p.Id {
		case wire.PidDefaultUnicastLocator:
			if loc, ok := decodeLocator(p.Value, order); ok {
				d.UnicastLocators = append(d.UnicastLocators, loc)
			}
		case wire.PidDefaultMulticastLocator:
			if loc, ok := decodeLocator(p.Value, order); ok {
				d.MulticastLocators = append(d.MulticastLocators, loc)
			}
		}
	}
	if v, present := pl.Get(wire.PidBuiltinEndpointSet); present && len(v) >= 4 {
		d.AvailableEndpoints = BuiltinEndpointSet(order.Uint32(v))
	}
	if v, present := pl.Get(wire.PidLeaseDuration); present {
		d.LeaseDuration = parseDurationBytes(order, v)
	}
	return d, true
}

// EncodeEndpointData serializes a discovered-publication/subscription SEDP
// sample, carrying the endpoint identity plus the subset of its effective
// QoS that participates in compatibility matching or reader
// delivery semantics, as a PL_CDR parameter
// list.
func EncodeEndpointData(d EndpointData, order binary.ByteOrder) []byte {
	var pl wire.ParameterList
	guidBytes := append(append([]byte(nil), d.Guid.Prefix[:]...), entityIdBytes(d.Guid.Entity)...)
	pl = append(pl, wire.Parameter{Id: wire.PidEndpointGuid, Value: guidBytes})
	pl = append(pl, wire.Parameter{Id: wire.PidTopicName, Value: []byte(d.TopicName)})
	pl = append(pl, wire.Parameter{Id: wire.PidTypeName, Value: []byte(d.TypeName)})
	pl = append(pl, wire.Parameter{Id: wire.PidReliability, Value: []byte{byte(d.Endpoint.Reliability.Kind)}})
	pl = append(pl, wire.Parameter{Id: wire.PidDurability, Value: []byte{byte(d.Endpoint.Durability.Kind)}})
	pl = append(pl, wire.Parameter{Id: wire.PidDeadline, Value: durationBytes(order, d.Endpoint.Deadline.Period)})
	liveliness := append([]byte{byte(d.Endpoint.Liveliness.Kind)}, durationBytes(order, d.Endpoint.Liveliness.LeaseDuration)...)
	pl = append(pl, wire.Parameter{Id: wire.PidLiveliness, Value: liveliness})
	ownership := make([]byte, 5)
	ownership[0] = byte(d.Endpoint.Ownership.Kind)
	order.PutUint32(ownership[1:5], uint32(d.Endpoint.Ownership.Strength))
	pl = append(pl, wire.Parameter{Id: wire.PidOwnership, Value: ownership})
	history := make([]byte, 5)
	history[0] = byte(d.Endpoint.History.Kind)
	order.PutUint32(history[1:5], uint32(d.Endpoint.History.Depth))
	pl = append(pl, wire.Parameter{Id: wire.PidHistory, Value: history})
	for _, name := range d.Endpoint.Partition.Names {
		pl = append(pl, wire.Parameter{Id: wire.PidPartition, Value: []byte(name)})
	}
	return pl.Encode(order)
}

// DecodeEndpointData parses the PL_CDR body of an SEDP sample. ok is false
// only when the mandatory endpoint guid parameter is missing or truncated.
func DecodeEndpointData(buf []byte, order binary.ByteOrder) (d EndpointData, ok bool) {
	pl := wire.ParseParameterList(buf, order)
	v, present := pl.Get(wire.PidEndpointGuid)
	if !present || len(v) < guid.GuidPrefixSize+guid.EntityIdSize {
		return d, false
	}
	copy(d.Guid.Prefix[:], v[:guid.GuidPrefixSize])
	entity, err := guid.ParseEntityId(v[guid.GuidPrefixSize : guid.GuidPrefixSize+guid.EntityIdSize])
	if err != nil {
		return d, false
	}
	d.Guid.Entity = entity
	if v, present := pl.Get(wire.PidTopicName); present {
		d.TopicName = string(v)
	}
	if v, present := pl.Get(wire.PidTypeName); present {
		d.TypeName = string(v)
	}
	if v, present := pl.Get(wire.PidReliability); present && len(v) >= 1 {
		d.Endpoint.Reliability.Kind = qos.ReliabilityKind(v[0])
	}
	if v, present := pl.Get(wire.PidDurability); present && len(v) >= 1 {
		d.Endpoint.Durability.Kind = qos.DurabilityKind(v[0])
	}
	if v, present := pl.Get(wire.PidDeadline); present {
		d.Endpoint.Deadline.Period = parseDurationBytes(order, v)
	}
	if v, present := pl.Get(wire.PidLiveliness); present && len(v) >= 1 {
		d.Endpoint.Liveliness.Kind = qos.LivelinessKind(v[0])
		d.Endpoint.Liveliness.LeaseDuration = parseDurationBytes(order, v[1:])
	}
	if v, present := pl.Get(wire.PidOwnership); present && len(v) >= 5 {
		d.Endpoint.Ownership.Kind = qos.OwnershipKind(v[0])
		d.Endpoint.Ownership.Strength = int32(order.Uint32(v[1:5]))
	}
	if v, present := pl.Get(wire.PidHistory); present && len(v) >= 5 {
		d.Endpoint.History.Kind = qos.HistoryKind(v[0])
		d.Endpoint.History.Depth = int(order.Uint32(v[1:5]))
	}
	for _, p := range pl {
		if p.Id == wire.PidPartition {
			d.Endpoint.Partition.Names = append(d.Endpoint.Partition.Names, string(p.Value))
		}
	}
	return d, true
}

func entityIdBytes(e guid.EntityId) []byte {
	v := e.Value()
	return v[:]
}

func uint16Bytes(order binary.ByteOrder, v uint16) []byte {
	var b [2]byte
	order.PutUint16(b[:], v)
	return b[:]
}

func uint32Bytes(order binary.ByteOrder, v uint32) []byte {
	var b [4]byte
	order.PutUint32(b[:], v)
	return b[:]
}

func durationBytes(order binary.ByteOrder, d time.Duration) []byte {
	var b [8]byte
	order.PutUint64(b[:], uint64(int64(d)))
	return b[:]
}

func parseDurationBytes(order binary.ByteOrder, v []byte) time.Duration {
	if len(v) < 8 {
		return 0
	}
	return time.Duration(int64(order.Uint64(v)))
}

// encodeLocator packs a Locator as kind(4) + port(4) + address length(2) +
// address bytes, matching the variable-length Address field the transport
// collaborator interface uses, rather than RTPS's fixed 16-byte
// address form.
func encodeLocator(order binary.ByteOrder, loc Locator) []byte {
	b := make([]byte, 10+len(loc.Address))
	order.PutUint32(b[0:4], uint32(loc.Kind))
	order.PutUint32(b[4:8], loc.Port)
	order.PutUint16(b[8:10], uint16(len(loc.Address)))
	copy(b[10:], loc.Address)
	return b
}

func decodeLocator(v []byte, order binary.ByteOrder) (Locator, bool) {
	if len(v) < 10 {
		return Locator{}, false
	}
	var loc Locator
	loc.Kind = int32(order.Uint32(v[0:4]))
	loc.Port = order.Uint32(v[4:8])
	n := int(order.Uint16(v[8:10]))
	if 10+n > len(v) {
		return Locator{}, false
	}
	loc.Address = append([]byte(nil), v[10:10+n]...)
	return loc, true
}
