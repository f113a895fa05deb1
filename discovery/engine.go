package discovery

import (
	"reflect"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/rtpscore/rtpscore/guid"
	"github.com/rtpscore/rtpscore/rlog"
)

// ExpiryListener is notified when a RemoteParticipant's lease elapses
// without a refresh.
type ExpiryListener func(prefix guid.GuidPrefix, last RemoteParticipant)

// Engine is the DiscoveryEngine. It owns the RemoteParticipant
// table (lease-bounded via go-cache) and the per-participant SEDP
// publication/subscription tables (bounded only by explicit dispose,
// since SEDP endpoints are reliable and not independently leased).
type Engine struct {
	localPrefix guid.GuidPrefix

	participants *gocache.Cache // key: guid.GuidPrefix.String() -> *RemoteParticipant

	mu          sync.Mutex
	writers     map[guid.Guid]*RemoteWriter
	readers     map[guid.Guid]*RemoteReader
	onExpiry    []ExpiryListener

	log *rlog.Logger
}

// NewEngine builds an Engine for the local participant identified by
// localPrefix. The go-cache cleanup interval is set relative to the
// default resend period so lease sweeps happen often enough to notice a
// silently-gone peer within a small multiple of its announced lease.
func NewEngine(localPrefix guid.GuidPrefix) *Engine {
	e := &Engine{
		localPrefix:  localPrefix,
		participants: gocache.New(gocache.NoExpiration, DefaultResendPeriod),
		writers:      make(map[guid.Guid]*RemoteWriter),
		readers:      make(map[guid.Guid]*RemoteReader),
		log:          rlog.New("discovery.engine"),
	}
	e.participants.OnEvicted(func(key string, v interface{}) {
		rp := v.(*RemoteParticipant)
		e.log.Info("remote participant %s lease expired (last heard %s ago)", key, time.Since(rp.LastHeard))
		e.purgeParticipantLocked(rp.Data.GuidPrefix)
		e.notifyExpiry(rp.Data.GuidPrefix, *rp)
	})
	return e
}

// OnExpiry registers a callback invoked whenever a remote participant's
// lease elapses.
func (e *Engine) OnExpiry(fn ExpiryListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onExpiry = append(e.onExpiry, fn)
}

func (e *Engine) notifyExpiry(prefix guid.GuidPrefix, rp RemoteParticipant) {
	e.mu.Lock()
	listeners := append([]ExpiryListener(nil), e.onExpiry...)
	e.mu.Unlock()
	for _, l := range listeners {
		l(prefix, rp)
	}
}

// OnSPDP applies an inbound SPDPdiscoveredParticipantData sample.
// Re-receipt of unchanged data only refreshes last_heard; receipt for a
// participant not seen before is treated as a new RemoteParticipant.
func (e *Engine) OnSPDP(data ParticipantData, now time.Time) {
	if data.GuidPrefix == e.localPrefix {
		return // never discover ourselves
	}
	key := data.GuidPrefix.String()
	rp := &RemoteParticipant{Data: data, LastHeard: now}
	lease := data.LeaseDuration
	if lease <= 0 {
		lease = gocache.NoExpiration
	}
	e.participants.Set(key, rp, lease)
}

// DisposeSPDP handles a self-dispose SPDP. Deleting the cache entry fires the OnEvicted callback
// registered in NewEngine, which does the actual purge and
// notification — this just needs to check presence so disposing an
// already-gone participant is a silent no-op.
func (e *Engine) DisposeSPDP(prefix guid.GuidPrefix) {
	key := prefix.String()
	if _, ok := e.participants.Get(key); !ok {
		return
	}
	e.participants.Delete(key)
}

func (e *Engine) purgeParticipantLocked(prefix guid.GuidPrefix) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for g := range e.writers {
		if g.Prefix == prefix {
			delete(e.writers, g)
		}
	}
	for g := range e.readers {
		if g.Prefix == prefix {
			delete(e.readers, g)
		}
	}
}

// RemoteParticipant looks up a discovered remote participant by prefix.
func (e *Engine) RemoteParticipant(prefix guid.GuidPrefix) (RemoteParticipant, bool) {
	v, ok := e.participants.Get(prefix.String())
	if !ok {
		return RemoteParticipant{}, false
	}
	return *v.(*RemoteParticipant), true
}

// ParticipantCount reports the number of currently-alive remote
// participants.
func (e *Engine) ParticipantCount() int {
	return e.participants.ItemCount()
}

// OnSEDPWriter applies a discovered/updated remote publication via SEDP.
// changed reports whether this altered previously-known data (QoS or
// topic/type), which callers use to decide whether to re-run the
// matcher against this remote.
func (e *Engine) OnSEDPWriter(data EndpointData) (changed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	existing, had := e.writers[data.Guid]
	rw := &RemoteWriter{EndpointData: data}
	e.writers[data.Guid] = rw
	return !had || !sameEndpointData(existing.EndpointData, data)
}

// OnSEDPReader applies a discovered/updated remote subscription.
func (e *Engine) OnSEDPReader(data EndpointData) (changed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	existing, had := e.readers[data.Guid]
	rr := &RemoteReader{EndpointData: data}
	e.readers[data.Guid] = rr
	return !had || !sameEndpointData(existing.EndpointData, data)
}

// DisposeSEDPWriter removes a disposed remote publication.
func (e *Engine) DisposeSEDPWriter(g guid.Guid) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.writers, g)
}

// DisposeSEDPReader removes a disposed remote subscription.
func (e *Engine) DisposeSEDPReader(g guid.Guid) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.readers, g)
}

// RemoteWriters returns a snapshot of all currently known remote
// publications, optionally filtered by topic name.
func (e *Engine) RemoteWriters(topic string) []RemoteWriter {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]RemoteWriter, 0, len(e.writers))
	for _, rw := range e.writers {
		if topic == "" || rw.TopicName == topic {
			out = append(out, *rw)
		}
	}
	return out
}

// RemoteReaders returns a snapshot of all currently known remote
// subscriptions, optionally filtered by topic name.
func (e *Engine) RemoteReaders(topic string) []RemoteReader {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]RemoteReader, 0, len(e.readers))
	for _, rr := range e.readers {
		if topic == "" || rr.TopicName == topic {
			out = append(out, *rr)
		}
	}
	return out
}

func sameEndpointData(a, b EndpointData) bool {
	if a.TopicName != b.TopicName || a.TypeName != b.TypeName {
		return false
	}
	return reflect.DeepEqual(a.Endpoint, b.Endpoint) && reflect.DeepEqual(a.Group, b.Group)
}
