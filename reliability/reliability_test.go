package reliability

import (
	"testing"
	"time"

	"github.com/rtpscore/rtpscore/guid"
	"github.com/rtpscore/rtpscore/history"
	"github.com/rtpscore/rtpscore/qos"
	"github.com/rtpscore/rtpscore/wire"
)

func reliableWriterCache() *history.WriterCache {
	ep := qos.Endpoint{Reliability: qos.ReliabilityPolicy{Kind: qos.Reliable}}
	_ = ep.Valid()
	return history.NewWriterCache(ep)
}

func TestWriterHeartbeatAnnouncesCacheRange(t *testing.T) {
	wg := guid.Guid{Entity: guid.EntityIdSEDPPubWriter}
	cache := reliableWriterCache()
	cache.Add(guid.InstanceHandle{1}, history.Alive, time.Unix(1, 0), []byte("a"), nil)
	cache.Add(guid.InstanceHandle{1}, history.Alive, time.Unix(2, 0), []byte("b"), nil)

	w := NewWriter(wg, cache, DefaultWriterDefaults())
	rg := guid.Guid{Entity: guid.EntityIdSEDPPubReader}
	w.MatchReader(rg, guid.EntityIdSEDPPubReader)

	hbs := w.Heartbeats()
	if len(hbs) != 1 {
		t.Fatalf("expected 1 heartbeat, got %d", len(hbs))
	}
	if hbs[0].FirstSeq != 1 || hbs[0].LastSeq != 2 || !hbs[0].Final {
		t.Fatalf("unexpected heartbeat: %+v", hbs[0])
	}
}

func TestWriterOnAckNackSchedulesRetransmit(t *testing.T) {
	wg := guid.Guid{Entity: guid.EntityIdSEDPPubWriter}
	cache := reliableWriterCache()
	cache.Add(guid.InstanceHandle{1}, history.Alive, time.Unix(1, 0), []byte("a"), nil)
	cache.Add(guid.InstanceHandle{1}, history.Alive, time.Unix(2, 0), []byte("b"), nil)

	w := NewWriter(wg, cache, WriterDefaults{HeartbeatPeriod: time.Second})
	rg := guid.Guid{Entity: guid.EntityIdSEDPPubReader}
	w.MatchReader(rg, guid.EntityIdSEDPPubReader)

	an := wire.AckNackSubmessage{
		ReaderSNState: wire.SequenceNumberSet{Base: 1, Bits: []bool{true, true}},
		Count:         1,
	}
	gaps := w.OnAckNack(rg, an)
	if len(gaps) != 0 {
		t.Fatalf("expected no gaps (both seqs still in cache), got %+v", gaps)
	}
	state, _ := w.ReaderState(rg)
	if state != MustRepair {
		t.Fatalf("expected MustRepair, got %v", state)
	}

	due := w.RetransmitDue(time.Now())
	changes := due[rg]
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes to retransmit, got %d", len(changes))
	}
}

func TestWriterOnAckNackGapsForEvictedSeqs(t *testing.T) {
	wg := guid.Guid{Entity: guid.EntityIdSEDPPubWriter}
	cache := reliableWriterCache()
	c1, _ := cache.Add(guid.InstanceHandle{1}, history.Alive, time.Unix(1, 0), []byte("a"), nil)

	w := NewWriter(wg, cache, DefaultWriterDefaults())
	rg := guid.Guid{Entity: guid.EntityIdSEDPPubReader}
	w.MatchReader(rg, guid.EntityIdSEDPPubReader)

	// Request a sequence (2, one past the only change written) that was
	// never in the cache at all.
	an := wire.AckNackSubmessage{
		ReaderSNState: wire.SequenceNumberSet{Base: c1.Seq + 1, Bits: []bool{true}},
		Count:         1,
	}
	gaps := w.OnAckNack(rg, an)
	if len(gaps) != 1 {
		t.Fatalf("expected 1 gap for an unknown seq, got %d", len(gaps))
	}
}

func TestReaderPreemptiveAckNackOnMatch(t *testing.T) {
	rg := guid.Guid{Entity: guid.EntityIdSEDPPubReader}
	r := NewReader(rg, DefaultReaderDefaults())
	wg := guid.Guid{Entity: guid.EntityIdSEDPPubWriter}
	an := r.MatchWriter(wg, guid.EntityIdSEDPPubWriter)
	if an.Count != 0 || an.ReaderSNState.Base != 1 || len(an.ReaderSNState.Bits) != 0 {
		t.Fatalf("expected pre-emptive empty ACKNACK, got %+v", an)
	}
}

func TestReaderOnDataDuplicateDetection(t *testing.T) {
	rg := guid.Guid{Entity: guid.EntityIdSEDPPubReader}
	r := NewReader(rg, DefaultReaderDefaults())
	wg := guid.Guid{Entity: guid.EntityIdSEDPPubWriter}
	r.MatchWriter(wg, guid.EntityIdSEDPPubWriter)

	if dup := r.OnData(wg, 1); dup {
		t.Fatal("first delivery of seq 1 must not be a duplicate")
	}
	if dup := r.OnData(wg, 1); !dup {
		t.Fatal("re-delivery of already-seen seq 1 should be a duplicate")
	}
}

func TestReaderOnHeartbeatSchedulesAckNackWithMissing(t *testing.T) {
	rg := guid.Guid{Entity: guid.EntityIdSEDPPubReader}
	r := NewReader(rg, ReaderDefaults{HeartbeatResponseDelay: 10 * time.Millisecond})
	wg := guid.Guid{Entity: guid.EntityIdSEDPPubWriter}
	r.MatchWriter(wg, guid.EntityIdSEDPPubWriter)

	hb := wire.HeartbeatSubmessage{FirstSeq: 1, LastSeq: 3, Final: false}
	schedule, _ := r.OnHeartbeat(wg, hb, time.Now())
	if !schedule {
		t.Fatal("expected ACKNACK scheduling with missing sequences")
	}

	an, ok := r.BuildAckNack(wg)
	if !ok {
		t.Fatal("expected an ACKNACK to be buildable")
	}
	if an.ReaderSNState.Base != 1 {
		t.Fatalf("expected cumulative base 1 (nothing received), got %d", an.ReaderSNState.Base)
	}
	if !an.ReaderSNState.Contains(1) || !an.ReaderSNState.Contains(2) || !an.ReaderSNState.Contains(3) {
		t.Fatalf("expected 1..3 all marked missing, got %+v", an.ReaderSNState)
	}
}

func TestReaderOnGapMarksIrrelevant(t *testing.T) {
	rg := guid.Guid{Entity: guid.EntityIdSEDPPubReader}
	r := NewReader(rg, DefaultReaderDefaults())
	wg := guid.Guid{Entity: guid.EntityIdSEDPPubWriter}
	r.MatchWriter(wg, guid.EntityIdSEDPPubWriter)

	hb := wire.HeartbeatSubmessage{FirstSeq: 1, LastSeq: 5, Final: false}
	r.OnHeartbeat(wg, hb, time.Now())

	r.OnGap(wg, wire.GapSubmessage{GapStart: 1, GapList: wire.SequenceNumberSet{Base: 4}})
	an, _ := r.BuildAckNack(wg)
	if an.ReaderSNState.Contains(1) || an.ReaderSNState.Contains(3) {
		t.Fatalf("gap-covered sequences should no longer be missing: %+v", an.ReaderSNState)
	}
	if !an.ReaderSNState.Contains(4) && !an.ReaderSNState.Contains(5) {
		t.Fatalf("sequences beyond the gap should still be missing: %+v", an.ReaderSNState)
	}
}
