package history

import (
	"sync"
	"time"

	"github.com/rtpscore/rtpscore/guid"
	"github.com/rtpscore/rtpscore/qos"
	"github.com/rtpscore/rtpscore/rlog"
	"github.com/rtpscore/rtpscore/rtpserr"
)

// WriterCache is the writer-side HistoryCache. It is safe for
// concurrent use; the ReliabilityEngine
// and the application-facing DataWriter.write() both call into it.
type WriterCache struct {
	mu sync.Mutex

	history   qos.HistoryPolicy
	resources qos.ResourceLimitsPolicy
	reliable  bool
	maxBlock  time.Duration

	changes     []*Change // ordered by Seq ascending
	nextSeq     guid.SequenceNumber
	instanceCnt map[guid.InstanceHandle]int

	// acked[seq] is the set of reader Guids that have acknowledged seq.
	// Only populated when reliable; best-effort writers never retain
	// per-reader ack state.
	acked        map[guid.SequenceNumber]map[guid.Guid]bool
	matchedCount int // number of matched reliable readers, for ack-complete test

	log *rlog.Logger
}

// NewWriterCache builds a WriterCache for an endpoint's effective QoS.
func NewWriterCache(endpoint qos.Endpoint) *WriterCache {
	return &WriterCache{
		history:     endpoint.History,
		resources:   endpoint.ResourceLimits,
		reliable:    endpoint.Reliability.Kind == qos.Reliable,
		maxBlock:    endpoint.Reliability.MaxBlockingTime,
		nextSeq:     guid.SequenceNumberFirst,
		instanceCnt: make(map[guid.InstanceHandle]int),
		acked:       make(map[guid.SequenceNumber]map[guid.Guid]bool),
		log:         rlog.New("history.writer"),
	}
}

// SetMatchedReliableReaderCount informs the cache how many reliable
// readers are currently matched, so Acknowledged can tell "all matched
// readers acked" from "some readers acked".
func (c *WriterCache) SetMatchedReliableReaderCount(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.matchedCount = n
}

// Add inserts a new change with a fresh sequence number, applying
// History/ResourceLimits eviction. blocked is a caller
// hook invoked (with the lock released) to wait up to max_blocking_time
// for acks to free space; it returns false if the wait timed out. A
// best-effort writer, or a reliable one whose blocked is nil, instead
// evicts one change at saturation (best-effort: the oldest; reliable: the
// oldest fully-acked one) and fails as ResourceLimit when none qualifies.
func (c *WriterCache) Add(instance guid.InstanceHandle, kind ChangeKind, ts time.Time, data []byte, blocked func(time.Duration) bool) (*Change, error) {
	c.mu.Lock()
	seq := c.nextSeq
	c.nextSeq++
	change := &Change{Seq: seq, InstanceHandle: instance, Kind: kind, SourceTimestamp: ts, Data: data}

	if c.history.Kind == qos.KeepLast {
		c.evictKeepLastLocked(instance)
	}

	if err := c.enforceResourceLimitsLocked(instance, blocked); err != nil {
		c.mu.Unlock()
		return nil, err
	}

	c.changes = append(c.changes, change)
	c.instanceCnt[instance]++
	c.mu.Unlock()
	return change, nil
}

// evictKeepLastLocked drops the oldest changes of this instance beyond
// history.depth, skipping any change still unacknowledged by a reliable
// reader to preserve the at-least-once delivery guarantee; such changes
// remain until Acknowledged catches up.
func (c *WriterCache) evictKeepLastLocked(instance guid.InstanceHandle) {
	depth := c.history.Depth
	if depth <= 0 {
		depth = qos.HistoryDepthDefault
	}
	count := 1 // the change about to be appended occupies one slot of depth
	for i := len(c.changes) - 1; i >= 0; i-- {
		if c.changes[i].InstanceHandle != instance {
			continue
		}
		count++
		if count > depth && c.fullyAckedLocked(c.changes[i].Seq) {
			c.removeAtLocked(i)
		}
	}
}

func (c *WriterCache) enforceResourceLimitsLocked(instance guid.InstanceHandle, blocked func(time.Duration) bool) error {
	exceeded := func() bool {
		if c.resources.MaxSamples > 0 && len(c.changes) >= c.resources.MaxSamples {
			return true
		}
		if c.resources.MaxSamplesPerInstance > 0 && c.instanceCnt[instance] >= c.resources.MaxSamplesPerInstance {
			return true
		}
		if c.resources.MaxInstances > 0 && c.instanceCnt[instance] == 0 && len(c.instanceCnt) >= c.resources.MaxInstances {
			return true
		}
		return false
	}
	if !exceeded() {
		return nil
	}
	if !c.reliable || blocked == nil {
		if c.evictOneUnackedLocked() {
			return nil
		}
		return rtpserr.New(rtpserr.ResourceLimit, "history cache saturated with no evictable change")
	}
	c.mu.Unlock()
	ok := blocked(c.maxBlock)
	c.mu.Lock()
	if !ok {
		return rtpserr.New(rtpserr.Timeout, "write blocked past max_blocking_time waiting for reader acks")
	}
	if exceeded() {
		return rtpserr.New(rtpserr.ResourceLimit, "history cache still saturated after blocking wait")
	}
	return nil
}

// evictOneUnackedLocked drops the single oldest change to make room: any
// change for a best-effort writer, only a fully-acked one for a reliable
// writer. It reports false when no change qualifies.
func (c *WriterCache) evictOneUnackedLocked() bool {
	for i, ch := range c.changes {
		if c.fullyAckedLocked(ch.Seq) || !c.reliable {
			c.removeAtLocked(i)
			return true
		}
	}
	return false
}

func (c *WriterCache) removeAtLocked(i int) {
	ch := c.changes[i]
	c.instanceCnt[ch.InstanceHandle]--
	if c.instanceCnt[ch.InstanceHandle] <= 0 {
		delete(c.instanceCnt, ch.InstanceHandle)
	}
	delete(c.acked, ch.Seq)
	c.changes = append(c.changes[:i], c.changes[i+1:]...)
}

// Acknowledged records that readerGuid no longer needs seq.
func (c *WriterCache) Acknowledged(seq guid.SequenceNumber, readerGuid guid.Guid) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ackLocked(seq, readerGuid)
}

func (c *WriterCache) ackLocked(seq guid.SequenceNumber, readerGuid guid.Guid) {
	set, ok := c.acked[seq]
	if !ok {
		set = make(map[guid.Guid]bool)
		c.acked[seq] = set
	}
	set[readerGuid] = true
}

// AcknowledgedThrough records readerGuid's cumulative ACKNACK base: every
// retained change with Seq <= through no longer needs to be held for
// this reader.
func (c *WriterCache) AcknowledgedThrough(through guid.SequenceNumber, readerGuid guid.Guid) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.changes {
		if ch.Seq > through {
			break
		}
		c.ackLocked(ch.Seq, readerGuid)
	}
}

func (c *WriterCache) fullyAckedLocked(seq guid.SequenceNumber) bool {
	if !c.reliable || c.matchedCount == 0 {
		return true
	}
	return len(c.acked[seq]) >= c.matchedCount
}

// MinUnackedSeq returns the oldest sequence not yet acknowledged by all
// matched reliable readers, for the writer's heartbeat lowest bound.
func (c *WriterCache) MinUnackedSeq() guid.SequenceNumber {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.changes {
		if !c.fullyAckedLocked(ch.Seq) {
			return ch.Seq
		}
	}
	if len(c.changes) == 0 {
		return c.nextSeq
	}
	return c.changes[len(c.changes)-1].Seq + 1
}

// SeqRange returns the closed [min, max] sequence interval currently in
// cache, for HEARTBEAT announcement. ok is false when the
// cache is empty.
func (c *WriterCache) SeqRange() (min, max guid.SequenceNumber, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.changes) == 0 {
		return 0, 0, false
	}
	return c.changes[0].Seq, c.changes[len(c.changes)-1].Seq, true
}

// Get returns the change with the given sequence number, if still
// present in cache (it may have been evicted already).
func (c *WriterCache) Get(seq guid.SequenceNumber) (*Change, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.changes {
		if ch.Seq == seq {
			return ch, true
		}
	}
	return nil, false
}

// Len reports the number of changes currently retained.
func (c *WriterCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.changes)
}
