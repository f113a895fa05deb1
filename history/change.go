// Package history implements the HistoryCache: the
// per-endpoint ordered store of Changes that enforces History and
// ResourceLimits QoS and feeds both the ReliabilityEngine (writer side)
// and the application-facing take()/read() API (reader side). It follows
// go-iecp5's cs104 buffer idiom (a bounded in-memory slice guarded by a
// mutex with explicit eviction) generalized to the DDS sample model.
package history

import (
	"time"

	"github.com/rtpscore/rtpscore/guid"
)

// ChangeKind distinguishes a live sample from a dispose/unregister
// notification.
type ChangeKind int

const (
	Alive ChangeKind = iota
	Disposed
	Unregistered
)

// Change is one produced sample's record, bundling the fields a
// HistoryCache orders and evicts on.
type Change struct {
	WriterGuid      guid.Guid
	Seq             guid.SequenceNumber
	InstanceHandle  guid.InstanceHandle
	Kind            ChangeKind
	SourceTimestamp time.Time
	Data            []byte
}

// expired reports whether this change has outlived the given Lifespan
// duration as of now. A zero lifespan means "infinite" (never expires).
func (c Change) expired(lifespan time.Duration, now time.Time) bool {
	if lifespan <= 0 {
		return false
	}
	return c.SourceTimestamp.Add(lifespan).Before(now)
}
