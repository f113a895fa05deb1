package history

import (
	"testing"
	"time"

	"github.com/rtpscore/rtpscore/guid"
	"github.com/rtpscore/rtpscore/qos"
)

func endpoint(reliable bool, keepLast bool, depth int) qos.Endpoint {
	e := qos.Endpoint{}
	if reliable {
		e.Reliability.Kind = qos.Reliable
	}
	if keepLast {
		e.History.Kind = qos.KeepLast
		e.History.Depth = depth
	} else {
		e.History.Kind = qos.KeepAll
	}
	_ = e.Valid()
	return e
}

func TestWriterCacheKeepLastEvictsFullyAcked(t *testing.T) {
	wc := NewWriterCache(endpoint(true, true, 1))
	wc.SetMatchedReliableReaderCount(1)
	reader := guid.Guid{Entity: guid.EntityIdSPDPReader}
	inst := guid.InstanceHandle{0xAA}

	c1, err := wc.Add(inst, Alive, time.Unix(1, 0), []byte("a"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wc.Acknowledged(c1.Seq, reader)

	if _, err := wc.Add(inst, Alive, time.Unix(2, 0), []byte("b"), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wc.Len() != 1 {
		t.Fatalf("expected depth-1 eviction of fully-acked change, got len=%d", wc.Len())
	}
}

func TestWriterCacheBestEffortEvictsImmediately(t *testing.T) {
	wc := NewWriterCache(endpoint(false, true, 1))
	inst := guid.InstanceHandle{0xBB}
	if _, err := wc.Add(inst, Alive, time.Unix(1, 0), []byte("a"), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := wc.Add(inst, Alive, time.Unix(2, 0), []byte("b"), nil); err != nil {
		t.Fatal(err)
	}
	if wc.Len() != 1 {
		t.Fatalf("best-effort KEEP_LAST(1) should retain exactly 1, got %d", wc.Len())
	}
}

func TestWriterCacheResourceLimitTimesOutWhenBlocked(t *testing.T) {
	ep := endpoint(true, false, 0)
	ep.ResourceLimits.MaxSamples = 1
	ep.Reliability.MaxBlockingTime = 5 * time.Millisecond
	wc := NewWriterCache(ep)
	wc.SetMatchedReliableReaderCount(1)
	inst := guid.InstanceHandle{0xCC}

	if _, err := wc.Add(inst, Alive, time.Unix(1, 0), []byte("a"), nil); err != nil {
		t.Fatal(err)
	}
	blocked := func(d time.Duration) bool {
		time.Sleep(time.Millisecond)
		return false
	}
	_, err := wc.Add(inst, Alive, time.Unix(2, 0), []byte("b"), blocked)
	if err == nil {
		t.Fatal("expected a timeout error when resource limits block and never clear")
	}
}

func TestWriterCacheMinUnackedSeq(t *testing.T) {
	wc := NewWriterCache(endpoint(true, false, 0))
	wc.SetMatchedReliableReaderCount(1)
	reader := guid.Guid{Entity: guid.EntityIdSPDPReader}
	inst := guid.InstanceHandle{0xDD}

	c1, _ := wc.Add(inst, Alive, time.Unix(1, 0), []byte("a"), nil)
	c2, _ := wc.Add(inst, Alive, time.Unix(2, 0), []byte("b"), nil)
	if wc.MinUnackedSeq() != c1.Seq {
		t.Fatalf("expected min unacked to be c1's seq, got %d", wc.MinUnackedSeq())
	}
	wc.Acknowledged(c1.Seq, reader)
	if wc.MinUnackedSeq() != c2.Seq {
		t.Fatalf("expected min unacked to advance to c2's seq, got %d", wc.MinUnackedSeq())
	}
}

func TestReaderCacheDuplicateIsIdempotent(t *testing.T) {
	rc := NewReaderCache(endpoint(true, false, 0))
	w := guid.Guid{Entity: guid.EntityIdSPDPWriter}
	ch := Change{Seq: 1, InstanceHandle: guid.InstanceHandle{0x01}, SourceTimestamp: time.Unix(1, 0)}

	if !rc.Receive(w, ch, time.Unix(1, 0)) {
		t.Fatal("first receive should insert")
	}
	if rc.Receive(w, ch, time.Unix(1, 0)) {
		t.Fatal("duplicate receive should be idempotent (no-op)")
	}
	if rc.Len() != 1 {
		t.Fatalf("expected 1 retained sample, got %d", rc.Len())
	}
}

func TestReaderCacheTakeRemovesReadDoesNot(t *testing.T) {
	rc := NewReaderCache(endpoint(true, false, 0))
	w := guid.Guid{Entity: guid.EntityIdSPDPWriter}
	rc.Receive(w, Change{Seq: 1, InstanceHandle: guid.InstanceHandle{0x01}, SourceTimestamp: time.Unix(1, 0)}, time.Unix(1, 0))
	rc.Receive(w, Change{Seq: 2, InstanceHandle: guid.InstanceHandle{0x01}, SourceTimestamp: time.Unix(2, 0)}, time.Unix(1, 0))

	read := rc.Read(1)
	if len(read) != 1 || rc.Len() != 2 {
		t.Fatalf("Read must not remove: got %d read, %d remaining", len(read), rc.Len())
	}
	taken := rc.Take(1)
	if len(taken) != 1 || rc.Len() != 1 {
		t.Fatalf("Take must remove: got %d taken, %d remaining", len(taken), rc.Len())
	}
}

func TestReaderCacheLifespanEviction(t *testing.T) {
	ep := endpoint(true, false, 0)
	ep.Lifespan.Duration = time.Second
	rc := NewReaderCache(ep)
	w := guid.Guid{Entity: guid.EntityIdSPDPWriter}

	rc.Receive(w, Change{Seq: 1, InstanceHandle: guid.InstanceHandle{0x01}, SourceTimestamp: time.Unix(0, 0)}, time.Unix(0, 0))
	expired := rc.EvictExpired(time.Unix(10, 0))
	if len(expired) != 1 {
		t.Fatalf("expected 1 expired change, got %d", len(expired))
	}
	if rc.Len() != 0 {
		t.Fatalf("expired change should have been evicted, remaining=%d", rc.Len())
	}
}

func TestReaderCacheBySourceTimestampOrdersAcrossWriters(t *testing.T) {
	ep := endpoint(true, false, 0)
	ep.DestinationOrder.Kind = qos.BySourceTimestamp
	rc := NewReaderCache(ep)
	inst := guid.InstanceHandle{0x01}
	wA := guid.Guid{Prefix: guid.GuidPrefix{1}, Entity: guid.EntityIdSPDPWriter}
	wB := guid.Guid{Prefix: guid.GuidPrefix{2}, Entity: guid.EntityIdSPDPWriter}

	rc.Receive(wB, Change{Seq: 1, InstanceHandle: inst, SourceTimestamp: time.Unix(5, 0)}, time.Unix(5, 0))
	rc.Receive(wA, Change{Seq: 1, InstanceHandle: inst, SourceTimestamp: time.Unix(1, 0)}, time.Unix(5, 0))

	out := rc.Read(0)
	if len(out) != 2 || !out[0].SourceTimestamp.Equal(time.Unix(1, 0)) {
		t.Fatalf("expected earlier source timestamp first, got %+v", out)
	}
}

func TestReaderCacheKeepLastEvictsOldestPerInstance(t *testing.T) {
	rc := NewReaderCache(endpoint(true, true, 1))
	w := guid.Guid{Entity: guid.EntityIdSPDPWriter}
	inst := guid.InstanceHandle{0x01}
	rc.Receive(w, Change{Seq: 1, InstanceHandle: inst, SourceTimestamp: time.Unix(1, 0)}, time.Unix(1, 0))
	rc.Receive(w, Change{Seq: 2, InstanceHandle: inst, SourceTimestamp: time.Unix(2, 0)}, time.Unix(1, 0))
	if rc.Len() != 1 {
		t.Fatalf("KEEP_LAST(1) should retain only the newest sample, got %d", rc.Len())
	}
}
