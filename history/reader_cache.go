package history

import (
	"sync"
	"time"

	"github.com/rtpscore/rtpscore/guid"
	"github.com/rtpscore/rtpscore/qos"
	"github.com/rtpscore/rtpscore/rlog"
)

// ReaderCache is the reader-side HistoryCache.
type ReaderCache struct {
	mu sync.Mutex

	history     qos.HistoryPolicy
	resources   qos.ResourceLimitsPolicy
	lifespan    time.Duration
	destOrder   qos.DestinationOrderKind
	minSeparation time.Duration

	changes      []*Change
	seen         map[guid.Guid]map[guid.SequenceNumber]bool
	instanceCnt  map[guid.InstanceHandle]int
	lastDelivered map[guid.InstanceHandle]time.Time

	log *rlog.Logger
}

// NewReaderCache builds a ReaderCache for an endpoint's effective QoS.
func NewReaderCache(endpoint qos.Endpoint) *ReaderCache {
	return &ReaderCache{
		history:       endpoint.History,
		resources:     endpoint.ResourceLimits,
		lifespan:      endpoint.Lifespan.Duration,
		destOrder:     endpoint.DestinationOrder.Kind,
		minSeparation: endpoint.TimeBasedFilter.MinimumSeparation,
		seen:          make(map[guid.Guid]map[guid.SequenceNumber]bool),
		instanceCnt:   make(map[guid.InstanceHandle]int),
		lastDelivered: make(map[guid.InstanceHandle]time.Time),
		log:           rlog.New("history.reader"),
	}
}

// Receive inserts a received change, preserving writer-seq order within
// that writer. Duplicates (same writer, same seq) are
// idempotent and reported by inserted being false, as are changes dropped
// by Lifespan or the time-based filter. now is the wall-clock time
// to evaluate Lifespan against.
func (c *ReaderCache) Receive(writerGuid guid.Guid, ch Change, now time.Time) (inserted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ch.expired(c.lifespan, now) {
		c.log.Trace("dropping expired change seq=%d from %s (lifespan elapsed)", ch.Seq, writerGuid)
		return false
	}

	writerSeen := c.seen[writerGuid]
	if writerSeen == nil {
		writerSeen = make(map[guid.SequenceNumber]bool)
		c.seen[writerGuid] = writerSeen
	}
	if writerSeen[ch.Seq] {
		return false
	}
	writerSeen[ch.Seq] = true

	if ch.Kind == Alive && c.minSeparation > 0 {
		if last, ok := c.lastDelivered[ch.InstanceHandle]; ok && ch.SourceTimestamp.Sub(last) < c.minSeparation {
			c.log.Trace("dropping seq=%d from %s (time_based_filter minimum separation)", ch.Seq, writerGuid)
			return false
		}
	}
	c.lastDelivered[ch.InstanceHandle] = ch.SourceTimestamp

	ch.WriterGuid = writerGuid
	rec := ch
	c.insertOrderedLocked(&rec, writerGuid)
	c.instanceCnt[ch.InstanceHandle]++

	if c.history.Kind == qos.KeepLast {
		c.evictKeepLastLocked(ch.InstanceHandle)
	}
	c.enforceResourceLimitsLocked()
	return true
}

// insertOrderedLocked places rec into c.changes respecting delivery
// order: by default writer-sequence order per writer; under
// BY_SOURCE_TIMESTAMP, same-instance changes from different writers are
// ordered by source timestamp with writer-GuidPrefix as a tiebreak.
// Only the relative order of same-instance entries is
// constrained, so this scans for the first same-instance entry that
// should sort after rec rather than binary-searching the whole slice.
func (c *ReaderCache) insertOrderedLocked(rec *Change, writerGuid guid.Guid) {
	if c.destOrder != qos.BySourceTimestamp {
		c.changes = append(c.changes, rec)
		return
	}
	insertAt := len(c.changes)
	for i, other := range c.changes {
		if other.InstanceHandle != rec.InstanceHandle {
			continue
		}
		if after(rec, other, writerGuid) {
			insertAt = i
			break
		}
	}
	c.changes = append(c.changes, nil)
	copy(c.changes[insertAt+1:], c.changes[insertAt:])
	c.changes[insertAt] = rec
}

// after reports whether rec sorts strictly before other: earlier source
// timestamp first, ties broken by ascending writer Guid.
func after(rec, other *Change, recWriter guid.Guid) bool {
	if !rec.SourceTimestamp.Equal(other.SourceTimestamp) {
		return rec.SourceTimestamp.Before(other.SourceTimestamp)
	}
	return recWriter.Less(other.WriterGuid)
}

func (c *ReaderCache) evictKeepLastLocked(instance guid.InstanceHandle) {
	depth := c.history.Depth
	if depth <= 0 {
		depth = qos.HistoryDepthDefault
	}
	count := 0
	for i := len(c.changes) - 1; i >= 0; i-- {
		if c.changes[i].InstanceHandle != instance {
			continue
		}
		count++
		if count > depth {
			c.removeAtLocked(i)
		}
	}
}

func (c *ReaderCache) enforceResourceLimitsLocked() {
	if c.resources.MaxSamples <= 0 {
		return
	}
	for len(c.changes) > c.resources.MaxSamples {
		c.removeAtLocked(0)
	}
}

func (c *ReaderCache) removeAtLocked(i int) {
	ch := c.changes[i]
	c.instanceCnt[ch.InstanceHandle]--
	if c.instanceCnt[ch.InstanceHandle] <= 0 {
		delete(c.instanceCnt, ch.InstanceHandle)
	}
	c.changes = append(c.changes[:i], c.changes[i+1:]...)
}

// EvictExpired removes and returns changes whose Lifespan has elapsed as
// of now.
func (c *ReaderCache) EvictExpired(now time.Time) []*Change {
	if c.lifespan <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var expired []*Change
	kept := c.changes[:0]
	for _, ch := range c.changes {
		if ch.expired(c.lifespan, now) {
			expired = append(expired, ch)
			c.instanceCnt[ch.InstanceHandle]--
			if c.instanceCnt[ch.InstanceHandle] <= 0 {
				delete(c.instanceCnt, ch.InstanceHandle)
			}
			continue
		}
		kept = append(kept, ch)
	}
	c.changes = kept
	return expired
}

// Take returns and removes up to n samples in delivery order.
// n <= 0 means "all".
func (c *ReaderCache) Take(n int) []*Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 || n > len(c.changes) {
		n = len(c.changes)
	}
	out := append([]*Change(nil), c.changes[:n]...)
	for _, ch := range out {
		c.instanceCnt[ch.InstanceHandle]--
		if c.instanceCnt[ch.InstanceHandle] <= 0 {
			delete(c.instanceCnt, ch.InstanceHandle)
		}
	}
	c.changes = c.changes[n:]
	return out
}

// Read returns up to n samples in delivery order without removing them.
// n <= 0 means "all".
func (c *ReaderCache) Read(n int) []*Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 || n > len(c.changes) {
		n = len(c.changes)
	}
	return append([]*Change(nil), c.changes[:n]...)
}

// Len reports the number of samples currently retained, undelivered.
func (c *ReaderCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.changes)
}
