package wire

import "encoding/binary"

// Submessage is one decoded submessage plus the datagram-scoped context
// that applied to it.
type Submessage struct {
	Kind SubmessageKind
	// SourceTimestamp is set from the most recent INFO_TS in this
	// datagram, if any.
	SourceTimestamp *InfoTsSubmessage
	// Destination is set from the most recent INFO_DST in this datagram,
	// if any.
	Destination *InfoDstSubmessage

	Data          *DataSubmessage
	DataFrag      *DataFragSubmessage
	Heartbeat     *HeartbeatSubmessage
	HeartbeatFrag *HeartbeatFragSubmessage
	AckNack       *AckNackSubmessage
	NackFrag      *NackFragSubmessage
	Gap           *GapSubmessage
	InfoTsBody    *InfoTsSubmessage
	InfoDstBody   *InfoDstSubmessage
	InfoSrc       *InfoSrcSubmessage
	InfoReply     *InfoReplySubmessage
	Unknown       *UnknownSubmessage
}

// Message is a fully parsed RTPS datagram: its header plus the ordered
// submessage stream, with INFO_TS/INFO_DST context already resolved onto
// each entry.
type Message struct {
	Header      Header
	Submessages []Submessage
}

// ParseMessage parses a full RTPS datagram.
// Malformed headers yield ErrMalformedHeader; a truncated submessage
// stops parsing but still returns every submessage parsed before the
// truncation.
func ParseMessage(datagram []byte) (Message, error) {
	header, rest, err := ParseHeader(datagram)
	if err != nil {
		return Message{}, err
	}
	msg := Message{Header: header}

	var curTs *InfoTsSubmessage
	var curDst *InfoDstSubmessage

	for len(rest) >= submessageHeaderSize {
		kind := SubmessageKind(rest[0])
		flags := rest[1]
		order := byteOrder(flags&FlagEndiannessLittle != 0)
		octetsToNext := int(order.Uint16(rest[2:4]))
		rest = rest[submessageHeaderSize:]

		var body []byte
		if octetsToNext == 0 {
			// Last submessage in the datagram: consumes the remainder.
			body = rest
			rest = nil
		} else {
			if octetsToNext > len(rest) {
				// Truncated submessage: stop, preserve what we already
				// parsed.
				return msg, nil
			}
			body = rest[:octetsToNext]
			rest = rest[octetsToNext:]
		}

		sub, ok := decodeSubmessage(kind, flags, order, body)
		if ok {
			sub.SourceTimestamp = curTs
			sub.Destination = curDst

			switch sub.Kind {
			case KindInfoTs:
				t := *sub.InfoTsBody
				curTs = &t
			case KindInfoDst:
				d := *sub.InfoDstBody
				curDst = &d
			}

			msg.Submessages = append(msg.Submessages, sub)
		}
		// A submessage that failed to decode despite a well-formed length
		// field is simply skipped; later
		// valid submessages in the same datagram are unaffected.

		if octetsToNext == 0 {
			break
		}
	}
	return msg, nil
}

func decodeSubmessage(kind SubmessageKind, flags byte, order binary.ByteOrder, body []byte) (Submessage, bool) {
	switch kind {
	case KindData:
		d, ok := decodeData(body, order, flags)
		return Submessage{Kind: kind, Data: &d}, ok
	case KindDataFrag:
		d, ok := decodeDataFrag(body, order)
		return Submessage{Kind: kind, DataFrag: &d}, ok
	case KindHeartbeat:
		h, ok := decodeHeartbeat(body, order, flags)
		return Submessage{Kind: kind, Heartbeat: &h}, ok
	case KindHeartbeatFrag:
		h, ok := decodeHeartbeatFrag(body, order)
		return Submessage{Kind: kind, HeartbeatFrag: &h}, ok
	case KindAckNack:
		a, ok := decodeAckNack(body, order, flags)
		return Submessage{Kind: kind, AckNack: &a}, ok
	case KindNackFrag:
		n, ok := decodeNackFrag(body, order)
		return Submessage{Kind: kind, NackFrag: &n}, ok
	case KindGap:
		g, ok := decodeGap(body, order)
		return Submessage{Kind: kind, Gap: &g}, ok
	case KindInfoTs:
		t, ok := decodeInfoTs(body, order, flags)
		return Submessage{Kind: kind, InfoTsBody: &t}, ok
	case KindInfoDst:
		d, ok := decodeInfoDst(body)
		return Submessage{Kind: kind, InfoDstBody: &d}, ok
	case KindInfoSrc:
		s, ok := decodeInfoSrc(body)
		return Submessage{Kind: kind, InfoSrc: &s}, ok
	case KindInfoReply:
		r, ok := decodeInfoReply(body, order, flags)
		return Submessage{Kind: kind, InfoReply: &r}, ok
	case KindPad:
		return Submessage{Kind: kind}, true
	default:
		// Unknown submessage kind with a well-formed length field: skip,
		// not reject — surfaced for callers that want it,
		// ignored by the default receive path.
		return Submessage{Kind: kind, Unknown: &UnknownSubmessage{Kind: kind, Body: append([]byte(nil), body...)}}, true
	}
}
