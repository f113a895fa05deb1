// Package qos implements the QoS policy types plus the
// compatibility math the Matcher applies between a writer's offered and a
// reader's requested policies. Structs follow go-iecp5's cs104.Config
// idiom: plain fields, a Valid() method that fills documented defaults
// for zero values and rejects out-of-range ones, and exported
// XxxMin/XxxMax bound constants.
package qos

import (
	"strings"
	"time"

	"github.com/rtpscore/rtpscore/rtpserr"
)

// ReliabilityKind orders BEST_EFFORT < RELIABLE.
type ReliabilityKind int

const (
	BestEffort ReliabilityKind = iota
	Reliable
)

func (k ReliabilityKind) String() string {
	if k == Reliable {
		return "RELIABLE"
	}
	return "BEST_EFFORT"
}

// ReliabilityPolicy configures the reliability QoS.
type ReliabilityPolicy struct {
	Kind ReliabilityKind
	// MaxBlockingTime bounds write() when KEEP_ALL and resource limits are
	// saturated . Documentation-only default is 100ms per
	// open question (the source does not normatively specify one).
	MaxBlockingTime time.Duration
}

// MaxBlockingTimeDefault is the documentation-only default applied when
// MaxBlockingTime is left zero.
const MaxBlockingTimeDefault = 100 * time.Millisecond

func (p *ReliabilityPolicy) Valid() error {
	if p.MaxBlockingTime == 0 {
		p.MaxBlockingTime = MaxBlockingTimeDefault
	} else if p.MaxBlockingTime < 0 {
		return rtpserr.New(rtpserr.InvalidArgument, "reliability.max_blocking_time must be >= 0")
	}
	return nil
}

// DurabilityKind orders VOLATILE < TRANSIENT_LOCAL < TRANSIENT < PERSISTENT.
// TRANSIENT and PERSISTENT are not implemented in the core and are
// treated as aliases of TRANSIENT_LOCAL with a log warning — see
// Normalize.
type DurabilityKind int

const (
	Volatile DurabilityKind = iota
	TransientLocal
	Transient
	Persistent
)

func (k DurabilityKind) String() string {
	switch k {
	case Volatile:
		return "VOLATILE"
	case TransientLocal:
		return "TRANSIENT_LOCAL"
	case Transient:
		return "TRANSIENT"
	case Persistent:
		return "PERSISTENT"
	default:
		return "UNKNOWN"
	}
}

// Normalize maps Transient/Persistent down to TransientLocal, as this
// core requires, returning whether a deviation note should be logged by
// the caller.
func (k DurabilityKind) Normalize() (DurabilityKind, bool) {
	if k == Transient || k == Persistent {
		return TransientLocal, true
	}
	return k, false
}

type DurabilityPolicy struct {
	Kind DurabilityKind
}

// LivelinessKind orders AUTOMATIC < MANUAL_BY_PARTICIPANT < MANUAL_BY_TOPIC.
type LivelinessKind int

const (
	Automatic LivelinessKind = iota
	ManualByParticipant
	ManualByTopic
)

func (k LivelinessKind) String() string {
	switch k {
	case Automatic:
		return "AUTOMATIC"
	case ManualByParticipant:
		return "MANUAL_BY_PARTICIPANT"
	case ManualByTopic:
		return "MANUAL_BY_TOPIC"
	default:
		return "UNKNOWN"
	}
}

type LivelinessPolicy struct {
	Kind          LivelinessKind
	LeaseDuration time.Duration
}

func (p *LivelinessPolicy) Valid() error {
	if p.LeaseDuration <= 0 {
		return rtpserr.New(rtpserr.InvalidArgument, "liveliness.lease_duration must be > 0")
	}
	return nil
}

// OwnershipKind: SHARED (default, no arbitration) or EXCLUSIVE.
type OwnershipKind int

const (
	Shared OwnershipKind = iota
	Exclusive
)

func (k OwnershipKind) String() string {
	if k == Exclusive {
		return "EXCLUSIVE"
	}
	return "SHARED"
}

type OwnershipPolicy struct {
	Kind OwnershipKind
	// Strength is meaningful only when Kind == Exclusive.
	Strength int32
}

// DestinationOrderKind orders BY_RECEPTION < BY_SOURCE_TIMESTAMP.
type DestinationOrderKind int

const (
	ByReceptionTimestamp DestinationOrderKind = iota
	BySourceTimestamp
)

func (k DestinationOrderKind) String() string {
	if k == BySourceTimestamp {
		return "BY_SOURCE_TIMESTAMP"
	}
	return "BY_RECEPTION_TIMESTAMP"
}

type DestinationOrderPolicy struct {
	Kind DestinationOrderKind
}

// PresentationAccessScope orders INSTANCE < TOPIC < GROUP.
type PresentationAccessScope int

const (
	InstanceScope PresentationAccessScope = iota
	TopicScope
	GroupScope
)

func (s PresentationAccessScope) String() string {
	switch s {
	case InstanceScope:
		return "INSTANCE"
	case TopicScope:
		return "TOPIC"
	case GroupScope:
		return "GROUP"
	default:
		return "UNKNOWN"
	}
}

type PresentationPolicy struct {
	AccessScope    PresentationAccessScope
	CoherentAccess bool
	OrderedAccess  bool
}

// HistoryKind: KEEP_LAST (bounded depth) or KEEP_ALL.
type HistoryKind int

const (
	KeepLast HistoryKind = iota
	KeepAll
)

func (k HistoryKind) String() string {
	if k == KeepAll {
		return "KEEP_ALL"
	}
	return "KEEP_LAST"
}

type HistoryPolicy struct {
	Kind  HistoryKind
	Depth int // meaningful only when Kind == KeepLast
}

// HistoryDepthDefault is the default KEEP_LAST depth (1), matching the
// DDS specification's own default and depth=1 boundary case.
const HistoryDepthDefault = 1

func (p *HistoryPolicy) Valid() error {
	if p.Kind == KeepLast && p.Depth <= 0 {
		p.Depth = HistoryDepthDefault
	}
	if p.Kind == KeepLast && p.Depth < 0 {
		return rtpserr.New(rtpserr.InvalidArgument, "history.depth must be > 0 for KEEP_LAST")
	}
	return nil
}

// ResourceLimitsPolicy bounds a HistoryCache. A value <= 0
// means "unbounded" (the DDS LENGTH_UNLIMITED convention).
type ResourceLimitsPolicy struct {
	MaxSamples             int
	MaxInstances           int
	MaxSamplesPerInstance  int
}

// Unlimited marks a ResourceLimitsPolicy field as unbounded.
const Unlimited = -1

func (p *ResourceLimitsPolicy) Valid() error {
	if p.MaxSamples == 0 {
		p.MaxSamples = Unlimited
	}
	if p.MaxInstances == 0 {
		p.MaxInstances = Unlimited
	}
	if p.MaxSamplesPerInstance == 0 {
		p.MaxSamplesPerInstance = Unlimited
	}
	if p.MaxSamples > 0 && p.MaxSamplesPerInstance > 0 && p.MaxSamplesPerInstance > p.MaxSamples {
		return rtpserr.New(rtpserr.Inconsistent, "resource_limits.max_samples_per_instance must not exceed max_samples").WithPolicy("RESOURCE_LIMITS")
	}
	return nil
}

// DeadlinePolicy bounds the maximum period between updates to an instance.
type DeadlinePolicy struct {
	Period time.Duration // zero means "infinite" (no deadline)
}

// LatencyBudgetPolicy is informational only; it never participates in
// compatibility.
type LatencyBudgetPolicy struct {
	Duration time.Duration
}

// LifespanPolicy bounds how long a sample remains valid after its source
// timestamp.
type LifespanPolicy struct {
	Duration time.Duration // zero means "infinite"
}

// TimeBasedFilterPolicy bounds the minimum separation between samples of
// the same instance delivered to a reader.
type TimeBasedFilterPolicy struct {
	MinimumSeparation time.Duration
}

// PartitionPolicy is the set of partition name expressions an endpoint
// belongs to. Names may use '*'/'?' wildcards.
type PartitionPolicy struct {
	Names []string
}

// Normalize trims whitespace and de-duplicates partition names.
func (p *PartitionPolicy) Normalize() {
	seen := make(map[string]bool, len(p.Names))
	out := p.Names[:0]
	for _, n := range p.Names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	p.Names = out
}
