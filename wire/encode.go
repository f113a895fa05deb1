package wire

import "encoding/binary"

// Builder accumulates submessages into one or more MTU-bounded datagrams.
// It is the encode-side counterpart of ParseMessage.
type Builder struct {
	header Header
	mtu    int
	order  binary.ByteOrder

	datagrams [][]byte
	cur       []byte
}

// NewBuilder starts a Builder for one RTPS message header, packing
// submessages up to mtu bytes per datagram. order controls the
// endianness flag set on every submessage this Builder appends.
func NewBuilder(header Header, mtu int, order binary.ByteOrder) *Builder {
	b := &Builder{header: header, mtu: mtu, order: order}
	b.startDatagram()
	return b
}

func (b *Builder) startDatagram() {
	b.cur = b.header.Encode(make([]byte, 0, b.mtu))
}

func endiannessFlags(order binary.ByteOrder) byte {
	if order == binary.LittleEndian {
		return FlagEndiannessLittle
	}
	return 0
}

// appendSubmessage appends one submessage's frame+body to the current
// datagram, starting a new datagram first if it would not fit. The body
// is always written with octets-to-next-header set to its real length;
// Finish() rewrites the final submessage of each datagram to 0, letting
// it run to the end of the datagram.
func (b *Builder) appendSubmessage(kind SubmessageKind, flags byte, body []byte) {
	frameLen := submessageHeaderSize + len(body)
	if len(b.cur)+frameLen > b.mtu && len(b.cur) > HeaderSize {
		b.datagrams = append(b.datagrams, b.cur)
		b.startDatagram()
	}
	flags |= endiannessFlags(b.order)
	b.cur = append(b.cur, byte(kind), flags, 0, 0)
	lenPos := len(b.cur) - 2
	b.order.PutUint16(b.cur[lenPos:lenPos+2], uint16(len(body)))
	b.cur = append(b.cur, body...)
}

// InfoTs appends an INFO_TS submessage, applying to all following
// DATA/DATA_FRAG in the same datagram.
func (b *Builder) InfoTs(t InfoTsSubmessage) {
	body, flags := encodeInfoTs(b.order, t)
	b.appendSubmessage(KindInfoTs, flags, body)
}

// InfoDst appends an INFO_DST submessage restricting delivery of
// following submessages in the datagram.
func (b *Builder) InfoDst(d InfoDstSubmessage) {
	b.appendSubmessage(KindInfoDst, 0, encodeInfoDst(d))
}

// InfoSrc appends an INFO_SRC submessage overriding the apparent source
// of following submessages in the datagram.
func (b *Builder) InfoSrc(s InfoSrcSubmessage) {
	b.appendSubmessage(KindInfoSrc, 0, encodeInfoSrc(b.order, s))
}

// InfoReply appends an INFO_REPLY submessage carrying locators the
// receiving reader should use to respond to the writer that sent it.
func (b *Builder) InfoReply(r InfoReplySubmessage) {
	body, flags := encodeInfoReply(b.order, r)
	b.appendSubmessage(KindInfoReply, flags, body)
}

// Data appends a DATA submessage. Callers are responsible for having
// already fragmented payloads larger than the Builder's effective MTU
// (see ShouldFragment / FragmentPayload).
func (b *Builder) Data(d DataSubmessage) {
	body, flags := encodeData(b.order, d)
	b.appendSubmessage(KindData, flags, body)
}

// DataFrag appends one DATA_FRAG submessage.
func (b *Builder) DataFrag(d DataFragSubmessage) {
	body, flags := encodeDataFrag(b.order, d)
	b.appendSubmessage(KindDataFrag, flags, body)
}

// Heartbeat appends a HEARTBEAT submessage.
func (b *Builder) Heartbeat(h HeartbeatSubmessage) {
	body, flags := encodeHeartbeat(b.order, h)
	b.appendSubmessage(KindHeartbeat, flags, body)
}

// HeartbeatFrag appends a HEARTBEAT_FRAG submessage.
func (b *Builder) HeartbeatFrag(h HeartbeatFragSubmessage) {
	b.appendSubmessage(KindHeartbeatFrag, 0, encodeHeartbeatFrag(b.order, h))
}

// AckNack appends an ACKNACK submessage.
func (b *Builder) AckNack(a AckNackSubmessage) {
	body, flags := encodeAckNack(b.order, a)
	b.appendSubmessage(KindAckNack, flags, body)
}

// NackFrag appends a NACK_FRAG submessage.
func (b *Builder) NackFrag(n NackFragSubmessage) {
	b.appendSubmessage(KindNackFrag, 0, encodeNackFrag(b.order, n))
}

// Gap appends a GAP submessage.
func (b *Builder) Gap(g GapSubmessage) {
	body, flags := encodeGap(b.order, g)
	b.appendSubmessage(KindGap, flags, body)
}

// Finish closes out the current datagram (rewriting its final
// submessage's octets-to-next-header to 0, ) and returns all
// datagrams produced by this Builder.
func (b *Builder) Finish() [][]byte {
	if len(b.cur) > HeaderSize {
		terminateLastSubmessage(b.cur, b.order)
		b.datagrams = append(b.datagrams, b.cur)
	}
	out := b.datagrams
	b.datagrams = nil
	b.startDatagram()
	return out
}

// terminateLastSubmessage walks the submessage stream of a datagram being
// built (whose frame header lengths are all accurate so far) to find the
// last submessage and zero its length field, letting it run to the end
// of the datagram as permits.
func terminateLastSubmessage(datagram []byte, order binary.ByteOrder) {
	pos := HeaderSize
	lastHeaderPos := -1
	for pos+submessageHeaderSize <= len(datagram) {
		octetsToNext := int(order.Uint16(datagram[pos+2 : pos+4]))
		lastHeaderPos = pos
		pos += submessageHeaderSize + octetsToNext
		if octetsToNext == 0 {
			break
		}
	}
	if lastHeaderPos >= 0 {
		order.PutUint16(datagram[lastHeaderPos+2:lastHeaderPos+4], 0)
	}
}

// EffectiveFragmentCap is the hard cap on DATA_FRAG fragment size.
const EffectiveFragmentCap = 64 * 1024

// ShouldFragment reports whether a serialized payload of the given size
// must be sent as DATA_FRAG rather than DATA under the given transport
// MTU.
func ShouldFragment(payloadSize, mtu int) bool {
	const extraFlagsAndOffset = 4
	overhead := HeaderSize + submessageHeaderSize + extraFlagsAndOffset + dataFixedOverhead + encapsulationHeaderSize
	return overhead+payloadSize > mtu
}

// dataFixedOverhead is the fixed portion of a DATA submessage body
// (readerId + writerId + writerSeq), independent of payload size.
const dataFixedOverhead = 4 + 4 + seqNumWireSize
