// Package participant implements the outermost API surface:
// Participant/Publisher/Subscriber/Topic/DataWriter/DataReader
// lifecycle, the data path (write/dispose/unregister/take/read), the
// per-instance observables (deadline, liveliness,
// ownership, instance state), and the Listener/WaitSet event and
// wait/condition machinery. It is the layer that
// wires together guid, wire, qos, history, reliability, discovery, and
// match into one cohesive entity tree, the way go-iecp5's cs104.Client
// wires together its apci/asdu/clog pieces into one connection object.
package participant

import (
	"sync"

	"github.com/rtpscore/rtpscore/guid"
	"github.com/rtpscore/rtpscore/match"
)

// StatusKind enumerates the named listener callbacks.
type StatusKind int

const (
	OfferedDeadlineMissed StatusKind = iota
	RequestedDeadlineMissed
	LivelinessLost
	LivelinessChanged
	PublicationMatched
	SubscriptionMatched
	OfferedIncompatibleQoS
	RequestedIncompatibleQoS
	SampleLost
	SampleRejected
)

func (k StatusKind) String() string {
	switch k {
	case OfferedDeadlineMissed:
		return "offered_deadline_missed"
	case RequestedDeadlineMissed:
		return "requested_deadline_missed"
	case LivelinessLost:
		return "liveliness_lost"
	case LivelinessChanged:
		return "liveliness_changed"
	case PublicationMatched:
		return "publication_matched"
	case SubscriptionMatched:
		return "subscription_matched"
	case OfferedIncompatibleQoS:
		return "offered_incompatible_qos"
	case RequestedIncompatibleQoS:
		return "requested_incompatible_qos"
	case SampleLost:
		return "sample_lost"
	case SampleRejected:
		return "sample_rejected"
	default:
		return "unknown"
	}
}

// Status is one listener invocation's payload. Fields not meaningful to
// Kind are left zero.
type Status struct {
	Kind            StatusKind
	Endpoint        guid.Guid
	Instance        guid.InstanceHandle
	TotalCount      int
	MatchedGuid     guid.Guid
	IncompatibleQoS string
}

// Listener dispatches Status events to registered callbacks on a
// dedicated per-participant goroutine, so a slow or misbehaving
// callback cannot stall the receive/timer loops.
type Listener struct {
	events    chan Status
	done      chan struct{}
	fn        func(Status)
	closeOnce sync.Once
}

// NewListener starts a Listener that invokes fn for every Status posted
// to it, serialized on its own goroutine. The channel is buffered so
// bursts of events (e.g. a batch of matches on startup) don't block the
// posting call site.
func NewListener(fn func(Status)) *Listener {
	l := &Listener{
		events: make(chan Status, 256),
		done:   make(chan struct{}),
		fn:     fn,
	}
	go l.run()
	return l
}

func (l *Listener) run() {
	for {
		select {
		case ev := <-l.events:
			l.fn(ev)
		case <-l.done:
			return
		}
	}
}

// Post enqueues ev for delivery. Post never blocks the caller past a
// full buffer; if the buffer is saturated the event is silently
// dropped, since no listener callback is critical-path.
func (l *Listener) Post(ev Status) {
	select {
	case l.events <- ev:
	default:
	}
}

// Close stops the dispatch goroutine. Safe to call more than once,
// including concurrently.
func (l *Listener) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

// fromMatchEvent adapts a match.Event into the Status to post to the
// local endpoint's listener; localIsWriter selects the writer-side or
// reader-side status kind.
func fromMatchEvent(ev match.Event, localIsWriter bool) Status {
	switch ev.Kind {
	case match.Matched:
		kind := SubscriptionMatched
		if localIsWriter {
			kind = PublicationMatched
		}
		return Status{Kind: kind, Endpoint: ev.Local, MatchedGuid: ev.Remote}
	case match.Unmatched:
		kind := SubscriptionMatched
		if localIsWriter {
			kind = PublicationMatched
		}
		return Status{Kind: kind, Endpoint: ev.Local, MatchedGuid: ev.Remote, TotalCount: -1}
	case match.IncompatibleQoS:
		kind := RequestedIncompatibleQoS
		if localIsWriter {
			kind = OfferedIncompatibleQoS
		}
		return Status{Kind: kind, Endpoint: ev.Local, MatchedGuid: ev.Remote, IncompatibleQoS: ev.IncompatibleQoS}
	default:
		return Status{}
	}
}
