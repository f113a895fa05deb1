package participant

import (
	"sync"
	"time"

	"github.com/rtpscore/rtpscore/guid"
	"github.com/rtpscore/rtpscore/history"
	"github.com/rtpscore/rtpscore/qos"
	"github.com/rtpscore/rtpscore/reliability"
	"github.com/rtpscore/rtpscore/rtpserr"
)

// DataWriter is the writer-side data path plus the
// per-instance deadline/liveliness observables.
type DataWriter struct {
	Guid  guid.Guid
	Topic *Topic
	QoS   qos.Endpoint

	cache    *history.WriterCache
	reliable *reliability.Writer // nil when QoS.Reliability.Kind == qos.BestEffort

	mu           sync.Mutex
	lastUpdate   map[guid.InstanceHandle]time.Time
	lastLiveness time.Time

	listener *Listener
	sendHook func(*history.Change)
}

// setSendHook wires the callback the owning Participant uses to actually
// put a Change on the wire; NewDataWriter leaves this nil until the
// Participant that created it attaches one.
func (w *DataWriter) setSendHook(fn func(*history.Change)) {
	w.sendHook = fn
}

// NewDataWriter builds a DataWriter for the given identity/QoS, wiring a
// reliability.Writer when the QoS calls for it.
func NewDataWriter(g guid.Guid, topic *Topic, ep qos.Endpoint, listener *Listener) (*DataWriter, error) {
	if err := ep.Valid(); err != nil {
		return nil, err
	}
	cache := history.NewWriterCache(ep)
	dw := &DataWriter{
		Guid: g, Topic: topic, QoS: ep, cache: cache,
		lastUpdate: make(map[guid.InstanceHandle]time.Time),
		listener:   listener,
	}
	if ep.Reliability.Kind == qos.Reliable {
		dw.reliable = reliability.NewWriter(g, cache, reliability.DefaultWriterDefaults())
	}
	return dw, nil
}

// Write publishes a new sample for instance, returning the resulting
// Change. blocked is forwarded to the underlying WriterCache verbatim:
// write() may block when history is KEEP_ALL and resource limits are
// saturated.
func (w *DataWriter) Write(instance guid.InstanceHandle, data []byte, ts time.Time, blocked func(time.Duration) bool) (*history.Change, error) {
	ch, err := w.cache.Add(instance, history.Alive, ts, data, blocked)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.lastUpdate[instance] = ts
	w.mu.Unlock()
	if w.sendHook != nil {
		w.sendHook(ch)
	}
	return ch, nil
}

// Dispose marks instance as disposed.
func (w *DataWriter) Dispose(instance guid.InstanceHandle, ts time.Time) (*history.Change, error) {
	ch, err := w.cache.Add(instance, history.Disposed, ts, nil, nil)
	if err != nil {
		return nil, err
	}
	if w.sendHook != nil {
		w.sendHook(ch)
	}
	return ch, nil
}

// Unregister marks the writer as no longer owning instance.
func (w *DataWriter) Unregister(instance guid.InstanceHandle, ts time.Time) (*history.Change, error) {
	ch, err := w.cache.Add(instance, history.Unregistered, ts, nil, nil)
	if err != nil {
		return nil, err
	}
	if w.sendHook != nil {
		w.sendHook(ch)
	}
	return ch, nil
}

// AssertLiveliness explicitly asserts liveliness (meaningful for
// MANUAL_BY_TOPIC / MANUAL_BY_PARTICIPANT).
func (w *DataWriter) AssertLiveliness(now time.Time) {
	w.mu.Lock()
	w.lastLiveness = now
	w.mu.Unlock()
}

// CheckDeadlines scans every instance with a pending write and posts
// OfferedDeadlineMissed for any whose deadline.period has elapsed since
// its last update, to be called by the
// participant's timer loop.
func (w *DataWriter) CheckDeadlines(now time.Time) {
	if w.QoS.Deadline.Period <= 0 || w.listener == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for inst, last := range w.lastUpdate {
		if now.Sub(last) >= w.QoS.Deadline.Period {
			w.listener.Post(Status{Kind: OfferedDeadlineMissed, Endpoint: w.Guid, Instance: inst})
			w.lastUpdate[inst] = now // avoid re-firing every tick past the deadline
		}
	}
}

// LivelinessLeaseExpired reports whether this writer's liveliness lease
// has elapsed given AUTOMATIC/MANUAL semantics: AUTOMATIC
// writers are kept alive by the participant infrastructure at
// lease/3 cadence and effectively never expire on their own, so this
// only applies to MANUAL_BY_PARTICIPANT/MANUAL_BY_TOPIC writers.
func (w *DataWriter) LivelinessLeaseExpired(now time.Time) bool {
	if w.QoS.Liveliness.Kind == qos.Automatic {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lastLiveness.IsZero() {
		return false
	}
	return now.Sub(w.lastLiveness) > w.QoS.Liveliness.LeaseDuration
}

// MatchReader wires a newly matched reliable reader into the
// reliability engine.
func (w *DataWriter) MatchReader(readerGuid guid.Guid, entity guid.EntityId) {
	if w.reliable != nil {
		w.reliable.MatchReader(readerGuid, entity)
	}
}

// UnmatchReader tears down a reader's reliability state.
func (w *DataWriter) UnmatchReader(readerGuid guid.Guid) {
	if w.reliable != nil {
		w.reliable.UnmatchReader(readerGuid)
	}
}

// Cache exposes the underlying WriterCache for the reliability/transport
// glue code driving the actual send path.
func (w *DataWriter) Cache() *history.WriterCache { return w.cache }

// Reliable exposes the underlying reliability.Writer, or nil for a
// best-effort endpoint.
func (w *DataWriter) Reliable() *reliability.Writer { return w.reliable }

// WaitForAcknowledgments blocks (bounded by timeout) until every
// matched reliable reader has acknowledged every change currently in
// cache. poll is the caller's hook for actually pumping the receive
// loop forward while waiting; a nil poll makes this a pure deadline-bound
// busy check suitable only for tests.
func (w *DataWriter) WaitForAcknowledgments(timeout time.Duration, poll func()) error {
	deadline := time.Now().Add(timeout)
	for {
		_, max, ok := w.cache.SeqRange()
		if !ok || w.cache.MinUnackedSeq() > max {
			return nil
		}
		if time.Now().After(deadline) {
			return rtpserr.New(rtpserr.Timeout, "wait_for_acknowledgments exceeded %s", timeout)
		}
		if poll != nil {
			poll()
		} else {
			time.Sleep(time.Millisecond)
		}
	}
}
