package wire

import (
	"encoding/binary"

	"github.com/rtpscore/rtpscore/guid"
)

// DATA flag bits (beyond the shared endianness bit 0).
const (
	flagDataInlineQos byte = 0x02
	flagDataPresent   byte = 0x04
	flagDataKey       byte = 0x08
)

func appendEntityId(buf []byte, id guid.EntityId) []byte {
	v := id.Value()
	return append(buf, v[:]...)
}

func parseEntityId(buf []byte) (guid.EntityId, []byte, bool) {
	if len(buf) < guid.EntityIdSize {
		return guid.EntityId{}, nil, false
	}
	id, err := guid.ParseEntityId(buf[:guid.EntityIdSize])
	if err != nil {
		return guid.EntityId{}, nil, false
	}
	return id, buf[guid.EntityIdSize:], true
}

func encodeData(order binary.ByteOrder, d DataSubmessage) (body []byte, flags byte) {
	flags = 0
	if len(d.InlineQos) > 0 {
		flags |= flagDataInlineQos
	}
	if d.KeyOnly {
		flags |= flagDataKey
	} else {
		flags |= flagDataPresent
	}

	var b []byte
	b = append(b, 0, 0) // extraFlags, reserved
	octetsToInlineQosPos := len(b)
	b = append(b, 0, 0) // placeholder for octetsToInlineQos
	b = appendEntityId(b, d.ReaderId)
	b = appendEntityId(b, d.WriterId)
	b = appendSequenceNumber(b, order, d.WriterSeq)
	order.PutUint16(b[octetsToInlineQosPos:octetsToInlineQosPos+2], uint16(len(b)-octetsToInlineQosPos-2))

	if len(d.InlineQos) > 0 {
		b = append(b, d.InlineQos...)
	}
	if flags&(flagDataPresent|flagDataKey) != 0 {
		b = EncodeEncapsulationHeader(b, d.Encapsulation)
		b = append(b, d.SerializedData...)
	}
	return b, flags
}

func decodeData(body []byte, order binary.ByteOrder, flags byte) (DataSubmessage, bool) {
	var d DataSubmessage
	if len(body) < 4 {
		return d, false
	}
	body = body[2:] // extraFlags
	octetsToInlineQos := int(order.Uint16(body[0:2]))
	body = body[2:]
	afterOffsetField := body
	var ok bool
	d.ReaderId, body, ok = parseEntityId(body)
	if !ok {
		return d, false
	}
	d.WriterId, body, ok = parseEntityId(body)
	if !ok {
		return d, false
	}
	if len(body) < seqNumWireSize {
		return d, false
	}
	d.WriterSeq = getSequenceNumber(body, order)
	body = body[seqNumWireSize:]

	// octetsToInlineQos is measured from right after its own field; use it
	// to locate the start of inlineQos/payload robustly even if this
	// core's field layout gains an extra field a peer doesn't send.
	if octetsToInlineQos <= len(afterOffsetField) {
		body = afterOffsetField[octetsToInlineQos:]
	}

	if flags&flagDataInlineQos != 0 {
		// Parse tolerantly: walk the parameter list and then resume after
		// its sentinel by re-scanning, since ParameterList doesn't report
		// consumed length directly.
		consumed := parameterListWireLength(body, order)
		d.InlineQos = append([]byte(nil), body[:consumed]...)
		body = body[consumed:]
	}
	d.KeyOnly = flags&flagDataPresent == 0 && flags&flagDataKey != 0
	if d.KeyOnly && len(d.InlineQos) > 0 {
		status := ParseParameterList(d.InlineQos, order)
		if v, ok := status.Get(PidStatusInfo); ok && len(v) == 4 {
			word := order.Uint32(v)
			d.DisposeFlag = word&StatusInfoDisposed != 0
			d.UnregisterFlag = word&StatusInfoUnregistered != 0
		}
	}

	if flags&(flagDataPresent|flagDataKey) != 0 && len(body) >= encapsulationHeaderSize {
		d.Encapsulation, body, _ = ParseEncapsulationHeader(body)
		d.SerializedData = append([]byte(nil), body...)
	}
	return d, true
}

// parameterListWireLength scans a parameter list to find its total
// encoded length including the terminating sentinel, without allocating
// the parsed Parameter slice (used to locate the payload that follows).
func parameterListWireLength(buf []byte, order binary.ByteOrder) int {
	off := 0
	for off+4 <= len(buf) {
		id := ParameterId(order.Uint16(buf[off : off+2]))
		length := int(order.Uint16(buf[off+2 : off+4]))
		off += 4
		if id == PidSentinel {
			return off
		}
		pad := (4 - length%4) % 4
		consumed := length + pad
		if off+consumed > len(buf) {
			return len(buf)
		}
		off += consumed
	}
	return off
}

func encodeHeartbeat(order binary.ByteOrder, h HeartbeatSubmessage) (body []byte, flags byte) {
	if h.Final {
		flags |= 0x02
	}
	if h.Liveliness {
		flags |= 0x04
	}
	var b []byte
	b = appendEntityId(b, h.ReaderId)
	b = appendEntityId(b, h.WriterId)
	b = appendSequenceNumber(b, order, h.FirstSeq)
	b = appendSequenceNumber(b, order, h.LastSeq)
	var cnt [4]byte
	order.PutUint32(cnt[:], h.Count)
	b = append(b, cnt[:]...)
	return b, flags
}

func decodeHeartbeat(body []byte, order binary.ByteOrder, flags byte) (HeartbeatSubmessage, bool) {
	var h HeartbeatSubmessage
	var ok bool
	h.ReaderId, body, ok = parseEntityId(body)
	if !ok {
		return h, false
	}
	h.WriterId, body, ok = parseEntityId(body)
	if !ok {
		return h, false
	}
	if len(body) < seqNumWireSize*2+4 {
		return h, false
	}
	h.FirstSeq = getSequenceNumber(body, order)
	body = body[seqNumWireSize:]
	h.LastSeq = getSequenceNumber(body, order)
	body = body[seqNumWireSize:]
	h.Count = order.Uint32(body[0:4])
	h.Final = flags&0x02 != 0
	h.Liveliness = flags&0x04 != 0
	return h, true
}

func encodeAckNack(order binary.ByteOrder, a AckNackSubmessage) (body []byte, flags byte) {
	if a.Final {
		flags |= 0x02
	}
	var b []byte
	b = appendEntityId(b, a.ReaderId)
	b = appendEntityId(b, a.WriterId)
	b = appendBitmap(b, order, a.ReaderSNState)
	var cnt [4]byte
	order.PutUint32(cnt[:], a.Count)
	b = append(b, cnt[:]...)
	return b, flags
}

func decodeAckNack(body []byte, order binary.ByteOrder, flags byte) (AckNackSubmessage, bool) {
	var a AckNackSubmessage
	var ok bool
	a.ReaderId, body, ok = parseEntityId(body)
	if !ok {
		return a, false
	}
	a.WriterId, body, ok = parseEntityId(body)
	if !ok {
		return a, false
	}
	a.ReaderSNState, body, ok = parseBitmap(body, order)
	if !ok {
		return a, false
	}
	if len(body) < 4 {
		return a, false
	}
	a.Count = order.Uint32(body[0:4])
	a.Final = flags&0x02 != 0
	return a, true
}

func encodeGap(order binary.ByteOrder, g GapSubmessage) (body []byte, flags byte) {
	var b []byte
	b = appendEntityId(b, g.ReaderId)
	b = appendEntityId(b, g.WriterId)
	b = appendSequenceNumber(b, order, g.GapStart)
	b = appendBitmap(b, order, g.GapList)
	return b, 0
}

func decodeGap(body []byte, order binary.ByteOrder) (GapSubmessage, bool) {
	var g GapSubmessage
	var ok bool
	g.ReaderId, body, ok = parseEntityId(body)
	if !ok {
		return g, false
	}
	g.WriterId, body, ok = parseEntityId(body)
	if !ok {
		return g, false
	}
	if len(body) < seqNumWireSize {
		return g, false
	}
	g.GapStart = getSequenceNumber(body, order)
	body = body[seqNumWireSize:]
	g.GapList, _, ok = parseBitmap(body, order)
	if !ok {
		return g, false
	}
	return g, true
}

func encodeInfoTs(order binary.ByteOrder, t InfoTsSubmessage) (body []byte, flags byte) {
	if t.Invalidate {
		return nil, 0x02
	}
	var b [8]byte
	order.PutUint32(b[0:4], uint32(t.Seconds))
	order.PutUint32(b[4:8], t.Fraction)
	return b[:], 0
}

func decodeInfoTs(body []byte, order binary.ByteOrder, flags byte) (InfoTsSubmessage, bool) {
	if flags&0x02 != 0 {
		return InfoTsSubmessage{Invalidate: true}, true
	}
	if len(body) < 8 {
		return InfoTsSubmessage{}, false
	}
	return InfoTsSubmessage{
		Seconds:  int32(order.Uint32(body[0:4])),
		Fraction: order.Uint32(body[4:8]),
	}, true
}

func encodeInfoDst(d InfoDstSubmessage) []byte {
	return append([]byte(nil), d.Prefix[:]...)
}

func decodeInfoDst(body []byte) (InfoDstSubmessage, bool) {
	if len(body) < guid.GuidPrefixSize {
		return InfoDstSubmessage{}, false
	}
	var d InfoDstSubmessage
	copy(d.Prefix[:], body[:guid.GuidPrefixSize])
	return d, true
}

func encodeInfoSrc(order binary.ByteOrder, s InfoSrcSubmessage) []byte {
	var b []byte
	b = append(b, 0, 0, 0, 0) // unused, reserved
	b = append(b, s.ProtocolVersion.Major, s.ProtocolVersion.Minor)
	b = append(b, s.Vendor[0], s.Vendor[1])
	b = append(b, s.Prefix[:]...)
	return b
}

func decodeInfoSrc(body []byte) (InfoSrcSubmessage, bool) {
	if len(body) < 4+2+2+guid.GuidPrefixSize {
		return InfoSrcSubmessage{}, false
	}
	body = body[4:] // unused, reserved
	var s InfoSrcSubmessage
	s.ProtocolVersion = ProtocolVersion{Major: body[0], Minor: body[1]}
	s.Vendor = VendorId{body[2], body[3]}
	copy(s.Prefix[:], body[4:4+guid.GuidPrefixSize])
	return s, true
}

func encodeInfoReply(order binary.ByteOrder, r InfoReplySubmessage) (body []byte, flags byte) {
	var b []byte
	b = appendLocatorList(b, order, r.MulticastLocators)
	if len(r.UnicastLocators) > 0 {
		flags |= 0x02
		b = appendLocatorList(b, order, r.UnicastLocators)
	}
	return b, flags
}

func decodeInfoReply(body []byte, order binary.ByteOrder, flags byte) (InfoReplySubmessage, bool) {
	var r InfoReplySubmessage
	var ok bool
	r.MulticastLocators, body, ok = parseLocatorList(body, order)
	if !ok {
		return r, false
	}
	if flags&0x02 != 0 {
		r.UnicastLocators, _, ok = parseLocatorList(body, order)
		if !ok {
			return r, false
		}
	}
	return r, true
}

// appendLocatorList encodes a count-prefixed list of opaque locators, each
// itself length-prefixed since this core's Locator representation is
// variable-length rather than RTPS's fixed 24-byte locator_t.
func appendLocatorList(buf []byte, order binary.ByteOrder, locators [][]byte) []byte {
	var count [4]byte
	order.PutUint32(count[:], uint32(len(locators)))
	buf = append(buf, count[:]...)
	for _, loc := range locators {
		var n [4]byte
		order.PutUint32(n[:], uint32(len(loc)))
		buf = append(buf, n[:]...)
		buf = append(buf, loc...)
	}
	return buf
}

func parseLocatorList(buf []byte, order binary.ByteOrder) ([][]byte, []byte, bool) {
	if len(buf) < 4 {
		return nil, nil, false
	}
	count := int(order.Uint32(buf[0:4]))
	buf = buf[4:]
	out := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		if len(buf) < 4 {
			return nil, nil, false
		}
		n := int(order.Uint32(buf[0:4]))
		buf = buf[4:]
		if len(buf) < n {
			return nil, nil, false
		}
		out = append(out, append([]byte(nil), buf[:n]...))
		buf = buf[n:]
	}
	return out, buf, true
}

func encodeDataFrag(order binary.ByteOrder, d DataFragSubmessage) (body []byte, flags byte) {
	var b []byte
	b = append(b, 0, 0) // extraFlags
	octetsToInlineQosPos := len(b)
	b = append(b, 0, 0)
	b = appendEntityId(b, d.ReaderId)
	b = appendEntityId(b, d.WriterId)
	b = appendSequenceNumber(b, order, d.WriterSeq)
	order.PutUint16(b[octetsToInlineQosPos:octetsToInlineQosPos+2], uint16(len(b)-octetsToInlineQosPos-2))
	var hdr [12]byte
	order.PutUint32(hdr[0:4], d.FragmentStartingNum)
	order.PutUint16(hdr[4:6], d.FragmentsInSubmessage)
	order.PutUint16(hdr[6:8], d.FragmentSize)
	order.PutUint32(hdr[8:12], d.SampleSize)
	b = append(b, hdr[:]...)
	b = EncodeEncapsulationHeader(b, d.Encapsulation)
	b = append(b, d.FragmentData...)
	return b, 0
}

func decodeDataFrag(body []byte, order binary.ByteOrder) (DataFragSubmessage, bool) {
	var d DataFragSubmessage
	if len(body) < 4 {
		return d, false
	}
	body = body[2:]
	octetsToInlineQos := int(order.Uint16(body[0:2]))
	afterOffsetField := body[2:]
	body = afterOffsetField
	var ok bool
	d.ReaderId, body, ok = parseEntityId(body)
	if !ok {
		return d, false
	}
	d.WriterId, body, ok = parseEntityId(body)
	if !ok {
		return d, false
	}
	if len(body) < seqNumWireSize {
		return d, false
	}
	d.WriterSeq = getSequenceNumber(body, order)
	body = body[seqNumWireSize:]
	if octetsToInlineQos <= len(afterOffsetField) {
		body = afterOffsetField[octetsToInlineQos:]
	}
	if len(body) < 12 {
		return d, false
	}
	d.FragmentStartingNum = order.Uint32(body[0:4])
	d.FragmentsInSubmessage = order.Uint16(body[4:6])
	d.FragmentSize = order.Uint16(body[6:8])
	d.SampleSize = order.Uint32(body[8:12])
	body = body[12:]
	if len(body) < encapsulationHeaderSize {
		return d, false
	}
	d.Encapsulation, body, _ = ParseEncapsulationHeader(body)
	d.FragmentData = append([]byte(nil), body...)
	return d, true
}

func encodeHeartbeatFrag(order binary.ByteOrder, h HeartbeatFragSubmessage) []byte {
	var b []byte
	b = appendEntityId(b, h.ReaderId)
	b = appendEntityId(b, h.WriterId)
	b = appendSequenceNumber(b, order, h.WriterSeq)
	var tail [8]byte
	order.PutUint32(tail[0:4], h.LastFragmentNum)
	order.PutUint32(tail[4:8], h.Count)
	return append(b, tail[:]...)
}

func decodeHeartbeatFrag(body []byte, order binary.ByteOrder) (HeartbeatFragSubmessage, bool) {
	var h HeartbeatFragSubmessage
	var ok bool
	h.ReaderId, body, ok = parseEntityId(body)
	if !ok {
		return h, false
	}
	h.WriterId, body, ok = parseEntityId(body)
	if !ok {
		return h, false
	}
	if len(body) < seqNumWireSize+8 {
		return h, false
	}
	h.WriterSeq = getSequenceNumber(body, order)
	body = body[seqNumWireSize:]
	h.LastFragmentNum = order.Uint32(body[0:4])
	h.Count = order.Uint32(body[4:8])
	return h, true
}

func encodeNackFrag(order binary.ByteOrder, n NackFragSubmessage) []byte {
	var b []byte
	b = appendEntityId(b, n.ReaderId)
	b = appendEntityId(b, n.WriterId)
	b = appendSequenceNumber(b, order, n.WriterSeq)
	b = appendBitmap(b, order, n.FragmentNumberState)
	var cnt [4]byte
	order.PutUint32(cnt[:], n.Count)
	return append(b, cnt[:]...)
}

func decodeNackFrag(body []byte, order binary.ByteOrder) (NackFragSubmessage, bool) {
	var n NackFragSubmessage
	var ok bool
	n.ReaderId, body, ok = parseEntityId(body)
	if !ok {
		return n, false
	}
	n.WriterId, body, ok = parseEntityId(body)
	if !ok {
		return n, false
	}
	if len(body) < seqNumWireSize {
		return n, false
	}
	n.WriterSeq = getSequenceNumber(body, order)
	body = body[seqNumWireSize:]
	n.FragmentNumberState, body, ok = parseBitmap(body, order)
	if !ok {
		return n, false
	}
	if len(body) < 4 {
		return n, false
	}
	n.Count = order.Uint32(body[0:4])
	return n, true
}
