package reliability

import (
	"sort"
	"sync"
	"time"

	"github.com/rtpscore/rtpscore/guid"
	"github.com/rtpscore/rtpscore/wire"
)

// ReaderDefaults carries the QoS-configurable reliability timing
// parameters.
type ReaderDefaults struct {
	HeartbeatResponseDelay time.Duration // default 0-200ms
}

// DefaultReaderDefaults returns documented default.
func DefaultReaderDefaults() ReaderDefaults {
	return ReaderDefaults{HeartbeatResponseDelay: 100 * time.Millisecond}
}

// remoteWriter tracks one matched remote writer's state within a
// reliable reader.
type remoteWriter struct {
	guid           guid.Guid
	entity         guid.EntityId
	highestSeen    guid.SequenceNumber
	missing        map[guid.SequenceNumber]bool
	acknackCount   uint32
	acknackDueAt   time.Time
	hasAcknackDue  bool
}

// Reader drives the reliable reader state machine.
type Reader struct {
	mu      sync.Mutex
	guid    guid.Guid
	params  ReaderDefaults
	writers map[guid.Guid]*remoteWriter
}

// NewReader builds a reliable Reader.
func NewReader(readerGuid guid.Guid, params ReaderDefaults) *Reader {
	return &Reader{guid: readerGuid, params: params, writers: make(map[guid.Guid]*remoteWriter)}
}

// MatchWriter registers a newly discovered remote writer and returns the
// pre-emptive ACKNACK RTPS requires on first discovery ("count=0,
// base=1, bitmap=empty") to accelerate late-joiner durability replay.
func (r *Reader) MatchWriter(writerGuid guid.Guid, entity guid.EntityId) wire.AckNackSubmessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writers[writerGuid] = &remoteWriter{
		guid:    writerGuid,
		entity:  entity,
		missing: make(map[guid.SequenceNumber]bool),
	}
	return wire.AckNackSubmessage{
		ReaderId:      r.guid.Entity,
		WriterId:      entity,
		ReaderSNState: wire.SequenceNumberSet{Base: guid.SequenceNumberFirst, Bits: nil},
		Count:         0,
	}
}

// UnmatchWriter drops a writer's state.
func (r *Reader) UnmatchWriter(writerGuid guid.Guid) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.writers, writerGuid)
}

// OnData is called for every DATA received from writerGuid with the
// given sequence number. isDuplicate reports whether the caller should
// discard it without delivering to the HistoryCache.
func (r *Reader) OnData(writerGuid guid.Guid, seq guid.SequenceNumber) (isDuplicate bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.writers[writerGuid]
	if !ok {
		return false
	}
	if seq <= w.highestSeen && !w.missing[seq] {
		return true
	}
	delete(w.missing, seq)
	if seq > w.highestSeen {
		w.highestSeen = seq
	}
	return false
}

// OnGap marks [gapStart, gapList.Base-1] plus the gapList's explicit bits
// as irrelevant, removing them from missing_seqs.
func (r *Reader) OnGap(writerGuid guid.Guid, gap wire.GapSubmessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.writers[writerGuid]
	if !ok {
		return
	}
	for seq := gap.GapStart; seq < gap.GapList.Base; seq++ {
		delete(w.missing, seq)
		if seq > w.highestSeen {
			w.highestSeen = seq
		}
	}
	for i, set := range gap.GapList.Bits {
		if !set {
			continue
		}
		seq := gap.GapList.Base + guid.SequenceNumber(i)
		delete(w.missing, seq)
		if seq > w.highestSeen {
			w.highestSeen = seq
		}
	}
}

// OnHeartbeat applies an inbound HEARTBEAT and reports
// whether an ACKNACK should be scheduled (non-empty missing set, or the
// FINAL flag was clear), along with the delay to apply.
func (r *Reader) OnHeartbeat(writerGuid guid.Guid, hb wire.HeartbeatSubmessage, now time.Time) (schedule bool, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.writers[writerGuid]
	if !ok {
		return false, 0
	}
	if hb.FirstSeq > w.highestSeen+1 {
		w.highestSeen = hb.FirstSeq - 1
	}
	for seq := hb.FirstSeq; seq <= hb.LastSeq; seq++ {
		if seq <= w.highestSeen && !w.missing[seq] {
			continue
		}
		w.missing[seq] = true
	}
	if len(w.missing) == 0 && hb.Final {
		return false, 0
	}
	w.hasAcknackDue = true
	w.acknackDueAt = now.Add(r.params.HeartbeatResponseDelay)
	return true, r.params.HeartbeatResponseDelay
}

// BuildAckNack produces the ACKNACK to send for writerGuid right now,
// reporting the cumulative ack plus a bitmap of up to 256 missing
// sequences starting at the cumulative-ack base.
func (r *Reader) BuildAckNack(writerGuid guid.Guid) (wire.AckNackSubmessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.writers[writerGuid]
	if !ok {
		return wire.AckNackSubmessage{}, false
	}
	w.hasAcknackDue = false
	w.acknackCount++

	base := w.highestSeen + 1
	if len(w.missing) > 0 {
		base = lowestMissing(w.missing)
	}
	bits := make([]bool, 0, wire.MaxBitmapBits)
	limit := base + guid.SequenceNumber(wire.MaxBitmapBits)
	for seq := base; seq < limit; seq++ {
		bits = append(bits, w.missing[seq])
	}
	return wire.AckNackSubmessage{
		ReaderId:      r.guid.Entity,
		WriterId:      writerGuid.Entity,
		ReaderSNState: wire.SequenceNumberSet{Base: base, Bits: bits},
		Count:         w.acknackCount,
		Final:         len(w.missing) == 0,
	}, true
}

// DueAckNacks returns the writer Guids whose scheduled ACKNACK delay has
// elapsed as of now, for the caller's timer loop to drain via
// BuildAckNack.
func (r *Reader) DueAckNacks(now time.Time) []guid.Guid {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []guid.Guid
	for g, w := range r.writers {
		if w.hasAcknackDue && !now.Before(w.acknackDueAt) {
			due = append(due, g)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Less(due[j]) })
	return due
}

func lowestMissing(missing map[guid.SequenceNumber]bool) guid.SequenceNumber {
	first := true
	var min guid.SequenceNumber
	for seq := range missing {
		if first || seq < min {
			min = seq
			first = false
		}
	}
	return min
}
