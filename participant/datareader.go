package participant

import (
	"sync"
	"time"

	"github.com/rtpscore/rtpscore/guid"
	"github.com/rtpscore/rtpscore/history"
	"github.com/rtpscore/rtpscore/qos"
	"github.com/rtpscore/rtpscore/reliability"
	"github.com/rtpscore/rtpscore/wire"
)

// InstanceState is the per-instance state machine: a
// reader-local view of whether an instance is still being written.
type InstanceState int

const (
	Alive InstanceState = iota
	NotAliveDisposed
	NotAliveNoWriters
)

func (s InstanceState) String() string {
	switch s {
	case Alive:
		return "ALIVE"
	case NotAliveDisposed:
		return "NOT_ALIVE_DISPOSED"
	case NotAliveNoWriters:
		return "NOT_ALIVE_NO_WRITERS"
	default:
		return "UNKNOWN"
	}
}

// SampleState distinguishes samples the application has already
// observed via read() from ones it has not.
type SampleState int

const (
	NotRead SampleState = iota
	Read
)

// owner tracks EXCLUSIVE ownership arbitration state for one instance:
// the writer currently holding the instance and the strength it won
// with.
type owner struct {
	writer   guid.Guid
	strength int32
}

// Sample is one delivered Change plus the reader-local bookkeeping take/
// read need.
type Sample struct {
	Change        *history.Change
	InstanceState InstanceState
	SampleState   SampleState
}

// DataReader is the reader-side data path plus the
// per-instance observables: ownership arbitration, instance
// state, deadline, liveliness.
type DataReader struct {
	Guid  guid.Guid
	Topic *Topic
	QoS   qos.Endpoint

	cache    *history.ReaderCache
	reliable *reliability.Reader // nil when QoS.Reliability.Kind == qos.BestEffort

	mu          sync.Mutex
	samples     []*Sample
	instState   map[guid.InstanceHandle]InstanceState
	owners         map[guid.InstanceHandle]owner
	writerCount    map[guid.InstanceHandle]map[guid.Guid]struct{}
	writerStrength map[guid.Guid]int32
	lastArrival    map[guid.InstanceHandle]time.Time

	listener *Listener
}

// NewDataReader builds a DataReader for the given identity/QoS, wiring a
// reliability.Reader when the QoS calls for it.
func NewDataReader(g guid.Guid, topic *Topic, ep qos.Endpoint, listener *Listener) (*DataReader, error) {
	if err := ep.Valid(); err != nil {
		return nil, err
	}
	cache := history.NewReaderCache(ep)
	dr := &DataReader{
		Guid: g, Topic: topic, QoS: ep, cache: cache,
		instState:   make(map[guid.InstanceHandle]InstanceState),
		owners:         make(map[guid.InstanceHandle]owner),
		writerCount:    make(map[guid.InstanceHandle]map[guid.Guid]struct{}),
		writerStrength: make(map[guid.Guid]int32),
		lastArrival:    make(map[guid.InstanceHandle]time.Time),
		listener:    listener,
	}
	if ep.Reliability.Kind == qos.Reliable {
		dr.reliable = reliability.NewReader(g, reliability.DefaultReaderDefaults())
	}
	return dr, nil
}

// Deliver admits a Change arriving from the transport/reliability layer
// into the reader's sample queue, applying EXCLUSIVE ownership
// arbitration and instance-state transitions
// before it becomes visible to take/read.
// It returns false when the change was rejected by ownership arbitration
// (a lower-strength writer for an instance already owned by another).
func (r *DataReader) Deliver(ch *history.Change, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.QoS.Ownership.Kind == qos.Exclusive {
		if !r.admitExclusiveLocked(ch) {
			return false
		}
	}

	writers := r.writerCount[ch.InstanceHandle]
	if writers == nil {
		writers = make(map[guid.Guid]struct{})
		r.writerCount[ch.InstanceHandle] = writers
	}

	switch ch.Kind {
	case history.Disposed:
		r.instState[ch.InstanceHandle] = NotAliveDisposed
	case history.Unregistered:
		delete(writers, ch.WriterGuid)
		if len(writers) == 0 {
			r.instState[ch.InstanceHandle] = NotAliveNoWriters
		}
	default:
		writers[ch.WriterGuid] = struct{}{}
		r.instState[ch.InstanceHandle] = Alive
	}
	r.lastArrival[ch.InstanceHandle] = now

	r.samples = append(r.samples, &Sample{Change: ch, InstanceState: r.instState[ch.InstanceHandle]})
	return true
}

// admitExclusiveLocked applies EXCLUSIVE ownership rule:
// "the highest strength writer for an instance wins; on a tie the
// lexicographically greater Guid wins". Callers hold r.mu.
func (r *DataReader) admitExclusiveLocked(ch *history.Change) bool {
	cur, have := r.owners[ch.InstanceHandle]
	strength := r.writerStrength[ch.WriterGuid]
	if !have {
		r.owners[ch.InstanceHandle] = owner{writer: ch.WriterGuid, strength: strength}
		return true
	}
	if cur.writer == ch.WriterGuid {
		r.owners[ch.InstanceHandle] = owner{writer: ch.WriterGuid, strength: strength}
		return true
	}
	switch {
	case strength > cur.strength:
		r.owners[ch.InstanceHandle] = owner{writer: ch.WriterGuid, strength: strength}
		return true
	case strength < cur.strength:
		return false
	default:
		if cur.writer.Less(ch.WriterGuid) {
			r.owners[ch.InstanceHandle] = owner{writer: ch.WriterGuid, strength: strength}
			return true
		}
		return false
	}
}

// Take returns every currently queued sample and removes them from the
// reader.
func (r *DataReader) Take() []*Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.samples
	r.samples = nil
	return out
}

// Read returns every currently queued sample without removing them,
// marking them Read.
func (r *DataReader) Read() []*Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Sample, len(r.samples))
	copy(out, r.samples)
	for _, s := range out {
		s.SampleState = Read
	}
	return out
}

// TakeInstance returns and removes every queued sample for a single
// instance.
func (r *DataReader) TakeInstance(instance guid.InstanceHandle) []*Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out, rest []*Sample
	for _, s := range r.samples {
		if s.Change.InstanceHandle == instance {
			out = append(out, s)
		} else {
			rest = append(rest, s)
		}
	}
	r.samples = rest
	return out
}

// UnreadCount reports how many queued samples have not yet been
// observed via Read, for ReadCondition's default predicate.
func (r *DataReader) UnreadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.samples {
		if s.SampleState == NotRead {
			n++
		}
	}
	return n
}

// InstanceState reports the current state of the given instance, or
// Alive if unknown (no data has arrived for it yet).
func (r *DataReader) InstanceState(instance guid.InstanceHandle) InstanceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instState[instance]
}

// CheckDeadlines scans every instance with prior arrivals and posts
// RequestedDeadlineMissed for any whose deadline.period has elapsed
// since the last arrival.
func (r *DataReader) CheckDeadlines(now time.Time) {
	if r.QoS.Deadline.Period <= 0 || r.listener == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for inst, last := range r.lastArrival {
		if now.Sub(last) >= r.QoS.Deadline.Period {
			r.listener.Post(Status{Kind: RequestedDeadlineMissed, Endpoint: r.Guid, Instance: inst})
			r.lastArrival[inst] = now
		}
	}
}

// MatchWriter wires a newly matched reliable writer into the
// reliability engine, returning the pre-emptive
// ACKNACK to send immediately, and records the writer's ownership
// strength for EXCLUSIVE arbitration.
func (r *DataReader) MatchWriter(writerGuid guid.Guid, entity guid.EntityId, ownershipStrength int32) (wire.AckNackSubmessage, bool) {
	r.mu.Lock()
	r.writerStrength[writerGuid] = ownershipStrength
	r.mu.Unlock()
	if r.reliable == nil {
		return wire.AckNackSubmessage{}, false
	}
	return r.reliable.MatchWriter(writerGuid, entity), true
}

// UnmatchWriter tears down a writer's reliability state and, for
// best-effort and reliable readers alike, transitions any instance
// solely owned by it to NotAliveNoWriters.
func (r *DataReader) UnmatchWriter(writerGuid guid.Guid) {
	if r.reliable != nil {
		r.reliable.UnmatchWriter(writerGuid)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for inst, writers := range r.writerCount {
		if _, ok := writers[writerGuid]; !ok {
			continue
		}
		delete(writers, writerGuid)
		if len(writers) == 0 {
			r.instState[inst] = NotAliveNoWriters
		}
	}
}

// Cache exposes the underlying ReaderCache for the reliability/transport
// glue code driving the actual receive path.
func (r *DataReader) Cache() *history.ReaderCache { return r.cache }

// Reliable exposes the underlying reliability.Reader, or nil for a
// best-effort endpoint.
func (r *DataReader) Reliable() *reliability.Reader { return r.reliable }
