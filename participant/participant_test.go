package participant

import (
	"context"
	"testing"
	"time"

	"github.com/rtpscore/rtpscore/guid"
	"github.com/rtpscore/rtpscore/history"
	"github.com/rtpscore/rtpscore/qos"
	"github.com/rtpscore/rtpscore/transport/fixedcodec"
)

func testTopic() *Topic {
	return &Topic{Name: "t", Type: fixedcodec.Descriptor{Name: "fixedcodec.Sample"}}
}

func reliableEndpointQoS() qos.Endpoint {
	ep := qos.Endpoint{Reliability: qos.ReliabilityPolicy{Kind: qos.Reliable}}
	_ = ep.Valid()
	return ep
}

func TestDataWriterWriteThenReaderDeliver(t *testing.T) {
	g1 := guid.Guid{Prefix: guid.GuidPrefix{1}, Entity: guid.EntityIdSPDPWriter}
	g2 := guid.Guid{Prefix: guid.GuidPrefix{2}, Entity: guid.EntityIdSPDPReader}
	topic := testTopic()

	dw, err := NewDataWriter(g1, topic, qos.Endpoint{}, nil)
	if err != nil {
		t.Fatalf("NewDataWriter: %v", err)
	}
	dr, err := NewDataReader(g2, topic, qos.Endpoint{}, nil)
	if err != nil {
		t.Fatalf("NewDataReader: %v", err)
	}

	inst := guid.ComputeInstanceHandle([]byte("k1"))
	now := time.Unix(1000, 0)
	ch, err := dw.Write(inst, []byte("payload"), now, nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	if !dr.Deliver(ch, now) {
		t.Fatal("Deliver rejected a fresh sample")
	}

	samples := dr.Take()
	if len(samples) != 1 {
		t.Fatalf("Take() = %d samples, want 1", len(samples))
	}
	if string(samples[0].Change.Data) != "payload" {
		t.Fatalf("Data = %q", samples[0].Change.Data)
	}
	if dr.InstanceState(inst) != Alive {
		t.Fatalf("InstanceState = %v, want Alive", dr.InstanceState(inst))
	}
	if len(dr.Take()) != 0 {
		t.Fatal("second Take() should be empty")
	}
}

func TestDataReaderExclusiveOwnershipArbitration(t *testing.T) {
	topic := testTopic()
	ep := qos.Endpoint{Ownership: qos.OwnershipPolicy{Kind: qos.Exclusive}}
	_ = ep.Valid()

	dr, err := NewDataReader(guid.Guid{Prefix: guid.GuidPrefix{9}, Entity: guid.EntityIdSPDPReader}, topic, ep, nil)
	if err != nil {
		t.Fatalf("NewDataReader: %v", err)
	}

	weak := guid.Guid{Prefix: guid.GuidPrefix{1}, Entity: guid.EntityIdSPDPWriter}
	strong := guid.Guid{Prefix: guid.GuidPrefix{2}, Entity: guid.EntityIdSPDPWriter}
	dr.MatchWriter(weak, weak.Entity, 1)
	dr.MatchWriter(strong, strong.Entity, 10)

	inst := guid.ComputeInstanceHandle([]byte("k"))
	now := time.Unix(2000, 0)

	strongCh := &history.Change{WriterGuid: strong, InstanceHandle: inst, Kind: history.Alive, SourceTimestamp: now, Data: []byte("from-strong")}
	if !dr.Deliver(strongCh, now) {
		t.Fatal("strong writer's first sample should be admitted")
	}

	weakCh := &history.Change{WriterGuid: weak, InstanceHandle: inst, Kind: history.Alive, SourceTimestamp: now, Data: []byte("from-weak")}
	if dr.Deliver(weakCh, now) {
		t.Fatal("weaker writer must be rejected once the instance has a stronger owner")
	}

	samples := dr.Take()
	if len(samples) != 1 || string(samples[0].Change.Data) != "from-strong" {
		t.Fatalf("unexpected samples after arbitration: %+v", samples)
	}
}

func TestDataReaderUnregisterTransitionsToNoWriters(t *testing.T) {
	topic := testTopic()
	dr, _ := NewDataReader(guid.Guid{Prefix: guid.GuidPrefix{9}, Entity: guid.EntityIdSPDPReader}, topic, qos.Endpoint{}, nil)

	writer := guid.Guid{Prefix: guid.GuidPrefix{1}, Entity: guid.EntityIdSPDPWriter}
	inst := guid.ComputeInstanceHandle([]byte("k"))
	now := time.Unix(3000, 0)

	alive := &history.Change{WriterGuid: writer, InstanceHandle: inst, Kind: history.Alive, SourceTimestamp: now}
	dr.Deliver(alive, now)
	if dr.InstanceState(inst) != Alive {
		t.Fatalf("expected Alive after first sample")
	}

	unreg := &history.Change{WriterGuid: writer, InstanceHandle: inst, Kind: history.Unregistered, SourceTimestamp: now}
	dr.Deliver(unreg, now)
	if dr.InstanceState(inst) != NotAliveNoWriters {
		t.Fatalf("InstanceState = %v, want NotAliveNoWriters", dr.InstanceState(inst))
	}
}

func TestDataWriterDeadlineMissedPostsStatus(t *testing.T) {
	topic := testTopic()
	ep := qos.Endpoint{Deadline: qos.DeadlinePolicy{Period: 10 * time.Millisecond}}
	_ = ep.Valid()

	statuses := make(chan Status, 4)
	l := NewListener(func(s Status) { statuses <- s })
	defer l.Close()

	dw, err := NewDataWriter(guid.Guid{Prefix: guid.GuidPrefix{1}, Entity: guid.EntityIdSPDPWriter}, topic, ep, l)
	if err != nil {
		t.Fatalf("NewDataWriter: %v", err)
	}

	inst := guid.ComputeInstanceHandle([]byte("k"))
	base := time.Unix(4000, 0)
	if _, err := dw.Write(inst, []byte("v"), base, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	dw.CheckDeadlines(base.Add(50 * time.Millisecond))

	select {
	case s := <-statuses:
		if s.Kind != OfferedDeadlineMissed {
			t.Fatalf("Kind = %v, want OfferedDeadlineMissed", s.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a deadline-missed status")
	}
}

func TestWaitSetWaitReturnsTriggeredReadCondition(t *testing.T) {
	topic := testTopic()
	dr, _ := NewDataReader(guid.Guid{Prefix: guid.GuidPrefix{1}, Entity: guid.EntityIdSPDPReader}, topic, qos.Endpoint{}, nil)

	ws := NewWaitSet()
	rc := NewReadCondition(dr, nil)
	ws.Attach(rc)

	writer := guid.Guid{Prefix: guid.GuidPrefix{2}, Entity: guid.EntityIdSPDPWriter}
	inst := guid.ComputeInstanceHandle([]byte("k"))
	now := time.Unix(5000, 0)
	dr.Deliver(&history.Change{WriterGuid: writer, InstanceHandle: inst, Kind: history.Alive, SourceTimestamp: now, Data: []byte("x")}, now)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	triggered := ws.Wait(ctx, time.Second)
	if len(triggered) != 1 || triggered[0] != rc {
		t.Fatalf("Wait() = %v, want [rc]", triggered)
	}
}
