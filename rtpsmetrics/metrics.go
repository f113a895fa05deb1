// Package rtpsmetrics exposes prometheus counters and gauges for the
// reliability and discovery hot paths (heartbeats sent, acknacks
// received, matched-endpoint count, discovery table size), following
// the registration-at-package-init idiom used throughout the nabbar/
// golib and linkerd2 dependency graphs.
package rtpsmetrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HeartbeatsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtpscore",
		Subsystem: "reliability",
		Name:      "heartbeats_sent_total",
		Help:      "Total HEARTBEAT submessages sent by reliable writers.",
	}, []string{"writer"})

	AckNacksReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtpscore",
		Subsystem: "reliability",
		Name:      "acknacks_received_total",
		Help:      "Total ACKNACK submessages received by reliable writers.",
	}, []string{"writer"})

	GapsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtpscore",
		Subsystem: "reliability",
		Name:      "gaps_sent_total",
		Help:      "Total GAP submessages sent by reliable writers.",
	}, []string{"writer"})

	RetransmittedSamples = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtpscore",
		Subsystem: "reliability",
		Name:      "retransmitted_samples_total",
		Help:      "Total DATA resends triggered by ACKNACK requested_changes.",
	}, []string{"writer"})

	MatchedEndpoints = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rtpscore",
		Subsystem: "match",
		Name:      "matched_endpoints",
		Help:      "Current number of matched remote endpoints per local endpoint.",
	}, []string{"local"})

	DiscoveredParticipants = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rtpscore",
		Subsystem: "discovery",
		Name:      "participants",
		Help:      "Current number of alive remote participants in the discovery table.",
	})

	DiscoveredEndpoints = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rtpscore",
		Subsystem: "discovery",
		Name:      "endpoints",
		Help:      "Current number of discovered remote endpoints by role.",
	}, []string{"role"})
)

// Register adds every rtpsmetrics collector to reg. Call once per
// process; registering the same collector twice on the default registry
// panics, matching prometheus/client_golang's own contract.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		HeartbeatsSent, AckNacksReceived, GapsSent, RetransmittedSamples,
		MatchedEndpoints, DiscoveredParticipants, DiscoveredEndpoints,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
