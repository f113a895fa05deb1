// Package discovery implements the DiscoveryEngine: SPDP (participant
// discovery) and SEDP (endpoint discovery), the
// RemoteParticipant/RemoteWriter/RemoteReader tables they populate, and
// lease-based liveliness expiry. The lease table follows go-iecp5's
// cs104 "t3 test frame" idle-timeout idiom (a timer that, left
// unrefreshed, tears the connection down) generalized to a whole-table
// TTL cache via patrickmn/go-cache rather than one-off per-connection
// timers.
package discovery

import (
	"time"

	"github.com/rtpscore/rtpscore/guid"
	"github.com/rtpscore/rtpscore/qos"
)

// Well-known SPDP network constants.
const (
	DefaultSPDPMulticastAddress = "239.255.0.1"
	PortBase                    = 7400 // PB
	DomainGain                  = 250  // DG
	SPDPMulticastOffset         = 0    // d0
	SPDPUnicastOffset           = 10   // d1
	ParticipantGain             = 2    // PG
	UserUnicastOffset           = 1    // d2
	UserMulticastOffset         = 11   // d3

	// DefaultResendPeriod is the steady-state SPDP announcement interval.
	DefaultResendPeriod = 3 * time.Second
	// InitialBurstPeriod is the SPDP interval during the first second of
	// a participant's life, to shorten discovery latency for late joiners.
	InitialBurstPeriod   = 100 * time.Millisecond
	InitialBurstDuration = 1 * time.Second
)

// SPDPMulticastPort returns the metatraffic multicast port for domainId
// ("PB + DG*domainId + d0").
func SPDPMulticastPort(domainID int) int {
	return PortBase + DomainGain*domainID + SPDPMulticastOffset
}

// SPDPUnicastPort returns the metatraffic unicast port for domainId and
// participantID ("PB + DG*domainId + d1 + PG*participantId").
func SPDPUnicastPort(domainID, participantID int) int {
	return PortBase + DomainGain*domainID + SPDPUnicastOffset + ParticipantGain*participantID
}

// UserUnicastPort returns the user-traffic unicast port.
func UserUnicastPort(domainID, participantID int) int {
	return PortBase + DomainGain*domainID + UserUnicastOffset + ParticipantGain*participantID
}

// UserMulticastPort returns the user-traffic multicast port.
func UserMulticastPort(domainID int) int {
	return PortBase + DomainGain*domainID + UserMulticastOffset
}

// Locator kinds, mirroring real RTPS's LOCATOR_KIND_* constants. The
// transport collaborator is free to ignore Kind entirely (the bundled
// loopback-bus transport keys purely on Address), but discovery still
// needs a value to put in the wire's locator parameters.
const (
	LocatorKindInvalid int32 = -1
	LocatorKindUDPv4   int32 = 1
	LocatorKindUDPv6   int32 = 2
)

// BuiltinEndpointSet is a bitmask reporting which SEDP/SPDP built-in
// endpoints a participant makes available.
type BuiltinEndpointSet uint32

const (
	HasParticipantAnnouncer BuiltinEndpointSet = 1 << iota
	HasParticipantDetector
	HasPublicationsAnnouncer
	HasPublicationsDetector
	HasSubscriptionsAnnouncer
	HasSubscriptionsDetector
)

// Locator is an opaque transport address, handed through unchanged;
// interpreting it is the transport collaborator's job.
type Locator struct {
	Kind    int32
	Address []byte
	Port    uint32
}

// ParticipantData is the content of an SPDPdiscoveredParticipantData
// sample.
type ParticipantData struct {
	GuidPrefix         guid.GuidPrefix
	ProtocolVersion    uint16
	VendorId           uint16
	UnicastLocators    []Locator
	MulticastLocators  []Locator
	LeaseDuration      time.Duration
	AvailableEndpoints BuiltinEndpointSet
	UserData           []byte
}

// RemoteParticipant tracks a discovered remote participant's liveliness
// ("alive while now - last_heard <= lease").
type RemoteParticipant struct {
	Data      ParticipantData
	LastHeard time.Time
}

// EndpointData is the content of an SEDP-discovered publication or
// subscription sample.
type EndpointData struct {
	Guid      guid.Guid
	TopicName string
	TypeName  string
	Endpoint  qos.Endpoint
	Group     qos.Group
}

// RemoteWriter is a discovered remote publication.
type RemoteWriter struct {
	EndpointData
}

// RemoteReader is a discovered remote subscription.
type RemoteReader struct {
	EndpointData
}
