package discovery

import (
	"testing"
	"time"

	"github.com/rtpscore/rtpscore/guid"
	"github.com/rtpscore/rtpscore/qos"
)

func TestSPDPPortFormulas(t *testing.T) {
	if got := SPDPMulticastPort(0); got != 7400 {
		t.Fatalf("expected 7400, got %d", got)
	}
	if got := SPDPUnicastPort(0, 0); got != 7410 {
		t.Fatalf("expected 7410, got %d", got)
	}
}

func TestOnSPDPIgnoresSelf(t *testing.T) {
	local := guid.GuidPrefix{1, 2, 3}
	e := NewEngine(local)
	e.OnSPDP(ParticipantData{GuidPrefix: local, LeaseDuration: time.Second}, time.Now())
	if e.ParticipantCount() != 0 {
		t.Fatalf("expected self-announcement to be ignored, got count=%d", e.ParticipantCount())
	}
}

func TestOnSPDPTracksRemote(t *testing.T) {
	local := guid.GuidPrefix{1}
	remote := guid.GuidPrefix{2}
	e := NewEngine(local)
	e.OnSPDP(ParticipantData{GuidPrefix: remote, LeaseDuration: time.Minute}, time.Now())
	if e.ParticipantCount() != 1 {
		t.Fatalf("expected 1 remote participant, got %d", e.ParticipantCount())
	}
	rp, ok := e.RemoteParticipant(remote)
	if !ok || rp.Data.GuidPrefix != remote {
		t.Fatal("expected to find the remote participant")
	}
}

func TestSEDPWriterChangeDetection(t *testing.T) {
	e := NewEngine(guid.GuidPrefix{1})
	g := guid.Guid{Prefix: guid.GuidPrefix{2}, Entity: guid.EntityIdSEDPPubWriter}
	data := EndpointData{Guid: g, TopicName: "Square", TypeName: "ShapeType"}

	if changed := e.OnSEDPWriter(data); !changed {
		t.Fatal("first announcement should report changed=true")
	}
	if changed := e.OnSEDPWriter(data); changed {
		t.Fatal("re-announcement of unchanged data should report changed=false")
	}

	data.Endpoint.Reliability.Kind = qos.Reliable
	if changed := e.OnSEDPWriter(data); !changed {
		t.Fatal("QoS change should report changed=true")
	}
}

func TestDisposeSPDPNotifiesExpiry(t *testing.T) {
	e := NewEngine(guid.GuidPrefix{1})
	remote := guid.GuidPrefix{2}
	e.OnSPDP(ParticipantData{GuidPrefix: remote, LeaseDuration: time.Minute}, time.Now())

	notified := make(chan guid.GuidPrefix, 1)
	e.OnExpiry(func(prefix guid.GuidPrefix, last RemoteParticipant) {
		notified <- prefix
	})
	e.DisposeSPDP(remote)

	select {
	case p := <-notified:
		if p != remote {
			t.Fatalf("expected expiry for %v, got %v", remote, p)
		}
	case <-time.After(time.Second):
		t.Fatal("expected expiry notification")
	}
	if e.ParticipantCount() != 0 {
		t.Fatal("expected remote participant removed after dispose")
	}
}

func TestRemoteWritersFilterByTopic(t *testing.T) {
	e := NewEngine(guid.GuidPrefix{1})
	e.OnSEDPWriter(EndpointData{Guid: guid.Guid{Entity: guid.EntityIdSEDPPubWriter}, TopicName: "Square"})
	e.OnSEDPWriter(EndpointData{Guid: guid.Guid{Prefix: guid.GuidPrefix{9}, Entity: guid.EntityIdSEDPPubWriter}, TopicName: "Circle"})

	squares := e.RemoteWriters("Square")
	if len(squares) != 1 {
		t.Fatalf("expected 1 writer on topic Square, got %d", len(squares))
	}
}
