package wire

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/rtpscore/rtpscore/guid"
)

func testHeader() Header {
	return Header{Version: ProtocolVersion24, Vendor: VendorIdRtpscore, Prefix: guid.GuidPrefix{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := testHeader()
	buf := h.Encode(nil)
	if len(buf) != HeaderSize {
		t.Fatalf("expected %d bytes, got %d", HeaderSize, len(buf))
	}
	got, rest, err := ParseHeader(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != h {
		t.Fatalf("got %+v, want %+v", got, h)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no remainder, got %d bytes", len(rest))
	}
}

func TestParseHeaderMalformed(t *testing.T) {
	if _, _, err := ParseHeader([]byte("short")); err != ErrMalformedHeader {
		t.Fatalf("expected ErrMalformedHeader, got %v", err)
	}
	bad := append([]byte("XXXX"), make([]byte, 16)...)
	if _, _, err := ParseHeader(bad); err != ErrMalformedHeader {
		t.Fatalf("expected ErrMalformedHeader for bad magic, got %v", err)
	}
}

func TestBuilderDataHeartbeatAckNackRoundTrip(t *testing.T) {
	h := testHeader()
	b := NewBuilder(h, 1500, binary.LittleEndian)
	b.InfoTs(InfoTsSubmessage{Seconds: 100, Fraction: 5})
	b.Data(DataSubmessage{
		ReaderId:       guid.EntityIdSPDPReader,
		WriterId:       guid.EntityIdSPDPWriter,
		WriterSeq:      42,
		Encapsulation:  EncapsulationCDR_LE,
		SerializedData: []byte("hello world"),
	})
	b.Heartbeat(HeartbeatSubmessage{
		ReaderId: guid.EntityIdSPDPReader, WriterId: guid.EntityIdSPDPWriter,
		FirstSeq: 1, LastSeq: 42, Count: 7, Final: true,
	})
	b.AckNack(AckNackSubmessage{
		ReaderId: guid.EntityIdSPDPReader, WriterId: guid.EntityIdSPDPWriter,
		ReaderSNState: SequenceNumberSet{Base: 3, Bits: []bool{true, false, true}},
		Count:         1,
	})
	datagrams := b.Finish()
	if len(datagrams) != 1 {
		t.Fatalf("expected 1 datagram, got %d", len(datagrams))
	}

	msg, err := ParseMessage(datagrams[0])
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if len(msg.Submessages) != 4 {
		t.Fatalf("expected 4 submessages, got %d", len(msg.Submessages))
	}

	ts := msg.Submessages[0]
	if ts.Kind != KindInfoTs || ts.InfoTsBody.Seconds != 100 {
		t.Fatalf("bad INFO_TS: %+v", ts)
	}

	data := msg.Submessages[1]
	if data.Kind != KindData || data.Data == nil {
		t.Fatalf("expected DATA submessage, got %+v", data)
	}
	if data.Data.WriterSeq != 42 || !bytes.Equal(data.Data.SerializedData, []byte("hello world")) {
		t.Fatalf("DATA round trip mismatch: %+v", data.Data)
	}
	if data.SourceTimestamp == nil || data.SourceTimestamp.Seconds != 100 {
		t.Fatal("DATA should inherit the preceding INFO_TS context")
	}

	hb := msg.Submessages[2]
	if hb.Kind != KindHeartbeat || hb.Heartbeat.LastSeq != 42 || !hb.Heartbeat.Final {
		t.Fatalf("HEARTBEAT round trip mismatch: %+v", hb.Heartbeat)
	}

	an := msg.Submessages[3]
	if an.Kind != KindAckNack || an.AckNack.ReaderSNState.Base != 3 {
		t.Fatalf("ACKNACK round trip mismatch: %+v", an.AckNack)
	}
	if !an.AckNack.ReaderSNState.Contains(3) || an.AckNack.ReaderSNState.Contains(4) || !an.AckNack.ReaderSNState.Contains(5) {
		t.Fatalf("ACKNACK bitmap mismatch: %+v", an.AckNack.ReaderSNState)
	}
}

func TestUnknownSubmessageIsSkippedNotRejected(t *testing.T) {
	h := testHeader()
	buf := h.Encode(nil)
	// Unknown kind 0x7F, well-formed 4-byte body.
	buf = append(buf, 0x7F, FlagEndiannessLittle, 4, 0)
	buf = append(buf, 0xDE, 0xAD, 0xBE, 0xEF)
	// Followed by a valid, final GAP-less submessage: a PAD with zero body.
	buf = append(buf, byte(KindPad), FlagEndiannessLittle, 0, 0)

	msg, err := ParseMessage(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msg.Submessages) != 2 {
		t.Fatalf("expected unknown+pad submessages preserved, got %d", len(msg.Submessages))
	}
	if msg.Submessages[0].Unknown == nil || msg.Submessages[0].Unknown.Kind != 0x7F {
		t.Fatalf("expected unknown submessage captured, got %+v", msg.Submessages[0])
	}
}

func TestTruncatedSubmessageDropsRemainderKeepsPrior(t *testing.T) {
	h := testHeader()
	b := NewBuilder(h, 1500, binary.LittleEndian)
	b.Heartbeat(HeartbeatSubmessage{ReaderId: guid.EntityIdSPDPReader, WriterId: guid.EntityIdSPDPWriter, FirstSeq: 1, LastSeq: 2, Count: 1})
	datagrams := b.Finish()
	full := datagrams[0]

	// Corrupt: claim the (only, now non-final) submessage needs more
	// bytes than are actually present.
	truncated := append([]byte(nil), full...)
	// Make the heartbeat non-final by overwriting its length field with a
	// too-large, non-zero value, so it is not treated as "runs to end of
	// datagram".
	binary.LittleEndian.PutUint16(truncated[HeaderSize+2:HeaderSize+4], 9000)

	msg, err := ParseMessage(truncated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msg.Submessages) != 0 {
		t.Fatalf("truncated submessage should yield no submessages when it's the first, got %d", len(msg.Submessages))
	}
}

func TestShouldFragmentBoundary(t *testing.T) {
	const mtu = 1500
	overhead := HeaderSize + submessageHeaderSize + 4 + dataFixedOverhead + encapsulationHeaderSize
	exact := mtu - overhead
	if ShouldFragment(exact, mtu) {
		t.Fatalf("payload exactly filling MTU must not fragment (overhead=%d, exact=%d)", overhead, exact)
	}
	if !ShouldFragment(exact+1, mtu) {
		t.Fatal("payload one byte over MTU must fragment")
	}
}

func TestParameterListRoundTrip(t *testing.T) {
	pl := ParameterList{
		{Id: PidTopicName, Value: []byte("Square")},
		{Id: PidTypeName, Value: []byte("ShapeType")},
	}
	enc := pl.Encode(binary.LittleEndian)
	got := ParseParameterList(enc, binary.LittleEndian)
	if len(got) != 2 {
		t.Fatalf("expected 2 parameters, got %d", len(got))
	}
	v, ok := got.Get(PidTopicName)
	if !ok || string(v) != "Square" {
		t.Fatalf("PidTopicName round trip failed: %v", v)
	}
}

func TestFragmentationReassembly(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 1024*1024) // 1 MiB, matches S5
	const fragSize = 1024
	frags := FragmentPayload(payload, fragSize)
	expected := (len(payload) + fragSize - 1) / fragSize
	if len(frags) != expected {
		t.Fatalf("expected %d fragments, got %d", expected, len(frags))
	}

	r := NewReassembler(uint32(len(payload)), fragSize, EncapsulationCDR2_LE)
	for i, f := range frags {
		if i == 4 || i == 16 {
			continue // simulate dropped fragments 5 and 17 (1-based), S5
		}
		r.AddFragment(uint32(i+1), 1, f)
	}
	if r.Complete() {
		t.Fatal("reassembler should not be complete with fragments missing")
	}
	missing := r.Missing()
	if len(missing) != 2 || missing[0] != 5 || missing[1] != 17 {
		t.Fatalf("expected missing fragments [5 17], got %v", missing)
	}

	// Retransmit the missing ones.
	r.AddFragment(5, 1, frags[4])
	r.AddFragment(17, 1, frags[16])
	if !r.Complete() {
		t.Fatal("reassembler should be complete after retransmission")
	}
	if !bytes.Equal(r.Reassemble(), payload) {
		t.Fatal("reassembled payload must equal source payload")
	}
}
