// Package reliability implements the ReliabilityEngine: the
// writer and reader state machines that turn a HistoryCache plus
// HEARTBEAT/ACKNACK/GAP traffic into the RTPS reliability contract.
// NACK_FRAG and HEARTBEAT_FRAG are not handled here. State machine shape follows go-iecp5's cs104 apci sender/
// receiver counters (per-peer sequence bookkeeping behind a mutex,
// ticked by an external timer loop) generalized to per-reader fan-out.
package reliability

import (
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"

	"github.com/rtpscore/rtpscore/guid"
	"github.com/rtpscore/rtpscore/history"
	"github.com/rtpscore/rtpscore/rlog"
	"github.com/rtpscore/rtpscore/wire"
)

// WriterReaderState is the per-matched-remote-reader state of a reliable
// writer.
type WriterReaderState int

const (
	Initial WriterReaderState = iota
	Announcing
	MustRepair
	Waiting
)

func (s WriterReaderState) String() string {
	switch s {
	case Initial:
		return "Initial"
	case Announcing:
		return "Announcing"
	case MustRepair:
		return "MustRepair"
	case Waiting:
		return "Waiting"
	default:
		return "Unknown"
	}
}

// remoteReader tracks one matched reader's ack/nack state within a
// writer.
type remoteReader struct {
	guid            guid.Guid
	entity          guid.EntityId
	state           WriterReaderState
	highestAckSeq   guid.SequenceNumber // cumulative ack; reader has everything <= this
	requested       map[guid.SequenceNumber]bool
	lastNackAt      time.Time
	reliable        bool
}

// WriterDefaults carries the QoS-configurable reliability timing
// parameters, each with its documented default.
type WriterDefaults struct {
	HeartbeatPeriod        time.Duration // default 100ms
	NackResponseDelay      time.Duration // default 100ms; carried but not applied by Writer
	NackSuppressionDuration time.Duration // default 0ms
}

// DefaultWriterDefaults returns documented defaults.
func DefaultWriterDefaults() WriterDefaults {
	return WriterDefaults{
		HeartbeatPeriod:         100 * time.Millisecond,
		NackResponseDelay:       100 * time.Millisecond,
		NackSuppressionDuration: 0,
	}
}

// Writer drives the reliable writer state machine. A
// best-effort writer never constructs per-reader state at all: no
// heartbeats, no retransmission, no per-reader state; callers with
// a best-effort endpoint should not use this type for sending and should
// instead emit bare DATA submessages directly.
type Writer struct {
	mu sync.Mutex

	guid    guid.Guid
	cache   *history.WriterCache
	params  WriterDefaults
	readers map[guid.Guid]*remoteReader
	hbCount uint32

	log *rlog.Logger
}

// NewWriter builds a reliable Writer bound to the given HistoryCache.
func NewWriter(writerGuid guid.Guid, cache *history.WriterCache, params WriterDefaults) *Writer {
	return &Writer{
		guid:    writerGuid,
		cache:   cache,
		params:  params,
		readers: make(map[guid.Guid]*remoteReader),
		log:     rlog.New("reliability.writer"),
	}
}

// MatchReader registers a newly matched remote reader.
func (w *Writer) MatchReader(readerGuid guid.Guid, entity guid.EntityId) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.readers[readerGuid] = &remoteReader{
		guid:      readerGuid,
		entity:    entity,
		state:     Initial,
		requested: make(map[guid.SequenceNumber]bool),
		reliable:  true,
	}
	w.cache.SetMatchedReliableReaderCount(len(w.readers))
}

// UnmatchReader drops a reader's state.
func (w *Writer) UnmatchReader(readerGuid guid.Guid) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.readers, readerGuid)
	w.cache.SetMatchedReliableReaderCount(len(w.readers))
}

// Heartbeats returns one HEARTBEAT submessage per matched reader, to be
// sent on the next periodic tick or immediately after a new sample is
// added. Final is cleared (request
// ACKNACK) whenever that reader has outstanding requested_changes.
func (w *Writer) Heartbeats() []wire.HeartbeatSubmessage {
	w.mu.Lock()
	defer w.mu.Unlock()

	min, max, ok := w.cache.SeqRange()
	if !ok {
		min, max = guid.SequenceNumberFirst, guid.SequenceNumberFirst-1 // empty range
	}
	w.hbCount++
	out := make([]wire.HeartbeatSubmessage, 0, len(w.readers))
	for _, r := range w.readers {
		out = append(out, wire.HeartbeatSubmessage{
			ReaderId: r.entity,
			WriterId: w.guid.Entity,
			FirstSeq: min,
			LastSeq:  max,
			Count:    w.hbCount,
			Final:    len(r.requested) == 0,
		})
	}
	return out
}

// OnAckNack applies an inbound ACKNACK. It returns the
// GAP submessages (if any) that must be sent immediately — for ranges
// that no longer exist in the cache — while retransmittable DATA is left
// to the next RetransmitDue call so nack_suppression_duration can apply.
func (w *Writer) OnAckNack(readerGuid guid.Guid, an wire.AckNackSubmessage) []wire.GapSubmessage {
	w.mu.Lock()
	defer w.mu.Unlock()

	r, ok := w.readers[readerGuid]
	if !ok {
		return nil
	}
	if an.ReaderSNState.Base-1 > r.highestAckSeq {
		r.highestAckSeq = an.ReaderSNState.Base - 1
	}
	w.cache.AcknowledgedThrough(r.highestAckSeq, readerGuid)

	minSeq, _, haveCache := w.cache.SeqRange()
	var gaps []wire.GapSubmessage
	bm := bitset.New(uint(wire.MaxBitmapBits))
	for i, set := range an.ReaderSNState.Bits {
		if !set {
			continue
		}
		seq := an.ReaderSNState.Base + guid.SequenceNumber(i)
		if haveCache && seq < minSeq {
			bm.Set(uint(i))
			continue
		}
		if _, exists := w.cache.Get(seq); exists {
			r.requested[seq] = true
		} else {
			bm.Set(uint(i))
		}
	}
	if bm.Count() > 0 {
		bits := make([]bool, len(an.ReaderSNState.Bits))
		for i := range bits {
			bits[i] = bm.Test(uint(i))
		}
		gaps = append(gaps, wire.GapSubmessage{
			ReaderId: r.entity,
			WriterId: w.guid.Entity,
			GapStart: an.ReaderSNState.Base,
			GapList:  wire.SequenceNumberSet{Base: an.ReaderSNState.Base, Bits: bits},
		})
	}
	if len(r.requested) > 0 {
		r.state = MustRepair
	} else {
		r.state = Waiting
	}
	return gaps
}

// RetransmitDue returns, per matched reader, the changes that should be
// resent now given nack_suppression_duration (NackResponseDelay is not
// applied; requests are served on the first call after they arrive),
// and clears them from that reader's
// requested_changes set. Changes no longer present in the cache are
// silently dropped from the request (a GAP should have already covered
// them via OnAckNack).
func (w *Writer) RetransmitDue(now time.Time) map[guid.Guid][]*history.Change {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make(map[guid.Guid][]*history.Change)
	for rg, r := range w.readers {
		if len(r.requested) == 0 {
			continue
		}
		if !r.lastNackAt.IsZero() && now.Sub(r.lastNackAt) < w.params.NackSuppressionDuration {
			continue
		}
		r.lastNackAt = now
		var changes []*history.Change
		for seq := range r.requested {
			if ch, ok := w.cache.Get(seq); ok {
				changes = append(changes, ch)
			}
			delete(r.requested, seq)
		}
		if len(changes) > 0 {
			out[rg] = changes
		}
		r.state = Waiting
	}
	return out
}

// ReaderState reports a matched reader's current state, for tests and
// diagnostics.
func (w *Writer) ReaderState(readerGuid guid.Guid) (WriterReaderState, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.readers[readerGuid]
	if !ok {
		return Initial, false
	}
	return r.state, true
}
