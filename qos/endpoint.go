package qos

import "time"

// Endpoint bundles every per-endpoint (writer or reader) QoS policy.
// A zero-value Endpoint, after Valid(), yields the DDS
// default QoS profile (best-effort, volatile, keep-last(1), shared
// ownership, by-reception ordering).
type Endpoint struct {
	Reliability      ReliabilityPolicy
	Durability       DurabilityPolicy
	Deadline         DeadlinePolicy
	LatencyBudget    LatencyBudgetPolicy
	Liveliness       LivelinessPolicy
	Ownership        OwnershipPolicy
	DestinationOrder DestinationOrderPolicy
	History          HistoryPolicy
	ResourceLimits   ResourceLimitsPolicy
	Lifespan         LifespanPolicy
	TimeBasedFilter  TimeBasedFilterPolicy
	Partition        PartitionPolicy
}

// Valid normalizes and validates every sub-policy, filling documented
// defaults, mirroring go-iecp5's cs104.Config.Valid().
func (e *Endpoint) Valid() error {
	if e.Liveliness.LeaseDuration == 0 {
		e.Liveliness.LeaseDuration = DefaultLivelinessLease
	}
	if err := e.Reliability.Valid(); err != nil {
		return err
	}
	if err := e.Liveliness.Valid(); err != nil {
		return err
	}
	if err := e.History.Valid(); err != nil {
		return err
	}
	if err := e.ResourceLimits.Valid(); err != nil {
		return err
	}
	e.Partition.Normalize()
	return nil
}

// DefaultLivelinessLease is the default liveliness lease duration applied
// when an endpoint does not configure one.
const DefaultLivelinessLease = 10 * time.Second

// Group bundles Publisher/Subscriber-level QoS: partition and
// presentation.
type Group struct {
	Partition    PartitionPolicy
	Presentation PresentationPolicy
}

func (g *Group) Valid() error {
	g.Partition.Normalize()
	return nil
}
