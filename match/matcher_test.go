package match

import (
	"testing"

	"github.com/rtpscore/rtpscore/guid"
	"github.com/rtpscore/rtpscore/qos"
)

func wEndpoint(g guid.Guid) Endpoint {
	return Endpoint{Guid: g, TopicName: "Square", TypeName: "ShapeType", Writer: true}
}
func rEndpoint(g guid.Guid) Endpoint {
	return Endpoint{Guid: g, TopicName: "Square", TypeName: "ShapeType", Writer: false}
}

func TestEvaluateMatchesCompatibleQoS(t *testing.T) {
	m := New()
	wg := guid.Guid{Entity: guid.EntityIdSEDPPubWriter}
	rg := guid.Guid{Prefix: guid.GuidPrefix{1}, Entity: guid.EntityIdSEDPPubReader}

	w := wEndpoint(wg)
	m.RegisterLocal(w)

	var events []Event
	m.AddListener(func(e Event) { events = append(events, e) })

	m.Evaluate(w, Remote{Guid: rg, TopicName: "Square", TypeName: "ShapeType", Writer: false})
	if m.MatchedCount(wg) != 1 {
		t.Fatalf("expected 1 matched peer, got %d", m.MatchedCount(wg))
	}
	if len(events) != 1 || events[0].Kind != Matched {
		t.Fatalf("expected 1 Matched event, got %+v", events)
	}
}

func TestEvaluateIncompatibleReliability(t *testing.T) {
	m := New()
	wg := guid.Guid{Entity: guid.EntityIdSEDPPubWriter}
	rg := guid.Guid{Prefix: guid.GuidPrefix{1}, Entity: guid.EntityIdSEDPPubReader}

	w := wEndpoint(wg)
	w.QoS.Reliability.Kind = qos.BestEffort
	m.RegisterLocal(w)

	var events []Event
	m.AddListener(func(e Event) { events = append(events, e) })

	remoteQoS := qos.Endpoint{Reliability: qos.ReliabilityPolicy{Kind: qos.Reliable}}
	m.Evaluate(w, Remote{Guid: rg, TopicName: "Square", TypeName: "ShapeType", Writer: false, QoS: remoteQoS})

	if m.MatchedCount(wg) != 0 {
		t.Fatal("expected no match on incompatible reliability")
	}
	if len(events) != 1 || events[0].Kind != IncompatibleQoS || events[0].IncompatibleQoS != qos.PolicyReliability {
		t.Fatalf("expected RELIABILITY incompatible_qos event, got %+v", events)
	}
}

func TestEvaluateTopicMismatchNeverMatches(t *testing.T) {
	m := New()
	wg := guid.Guid{Entity: guid.EntityIdSEDPPubWriter}
	rg := guid.Guid{Prefix: guid.GuidPrefix{1}, Entity: guid.EntityIdSEDPPubReader}
	w := wEndpoint(wg)
	m.RegisterLocal(w)

	m.Evaluate(w, Remote{Guid: rg, TopicName: "Circle", TypeName: "ShapeType", Writer: false})
	if m.MatchedCount(wg) != 0 {
		t.Fatal("expected no match across differing topic names")
	}
}

func TestUnmatchOnRemoteExpiry(t *testing.T) {
	m := New()
	wg := guid.Guid{Entity: guid.EntityIdSEDPPubWriter}
	rg := guid.Guid{Prefix: guid.GuidPrefix{1}, Entity: guid.EntityIdSEDPPubReader}
	w := wEndpoint(wg)
	m.RegisterLocal(w)
	m.Evaluate(w, Remote{Guid: rg, TopicName: "Square", TypeName: "ShapeType", Writer: false})

	var events []Event
	m.AddListener(func(e Event) { events = append(events, e) })
	m.Unmatch(wg, rg)

	if m.MatchedCount(wg) != 0 {
		t.Fatal("expected unmatch to clear the peer table")
	}
	if len(events) != 1 || events[0].Kind != Unmatched {
		t.Fatalf("expected 1 Unmatched event, got %+v", events)
	}
}

func TestRemoveLocalUnmatchesAllPeers(t *testing.T) {
	m := New()
	wg := guid.Guid{Entity: guid.EntityIdSEDPPubWriter}
	rg1 := guid.Guid{Prefix: guid.GuidPrefix{1}, Entity: guid.EntityIdSEDPPubReader}
	rg2 := guid.Guid{Prefix: guid.GuidPrefix{2}, Entity: guid.EntityIdSEDPPubReader}
	w := wEndpoint(wg)
	m.RegisterLocal(w)
	m.Evaluate(w, Remote{Guid: rg1, TopicName: "Square", TypeName: "ShapeType", Writer: false})
	m.Evaluate(w, Remote{Guid: rg2, TopicName: "Square", TypeName: "ShapeType", Writer: false})

	var events []Event
	m.AddListener(func(e Event) { events = append(events, e) })
	m.RemoveLocal(wg)

	if len(events) != 2 {
		t.Fatalf("expected 2 Unmatched events on teardown, got %d", len(events))
	}
}
