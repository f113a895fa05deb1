// Package match implements the Matcher: it applies QoS
// arbitration (package qos) between local endpoints and discovered
// remote endpoints (package discovery), maintains each endpoint's
// matched-peer table, and raises on_match/on_unmatch/incompatible_qos
// listener events. Table shape follows go-iecp5's cs104 connection
// table idiom: a guarded map keyed by peer identity, snapshotted for
// read-mostly iteration on the hot path.
package match

import (
	"sync"

	"github.com/rtpscore/rtpscore/guid"
	"github.com/rtpscore/rtpscore/qos"
	"github.com/rtpscore/rtpscore/rlog"
)

// Event is one matcher outcome delivered to a listener.
type Event struct {
	Local           guid.Guid
	Remote          guid.Guid
	Kind            EventKind
	IncompatibleQoS string // set only when Kind == IncompatibleQoS
}

type EventKind int

const (
	Matched EventKind = iota
	Unmatched
	IncompatibleQoS
)

func (k EventKind) String() string {
	switch k {
	case Matched:
		return "matched"
	case Unmatched:
		return "unmatched"
	case IncompatibleQoS:
		return "incompatible_qos"
	default:
		return "unknown"
	}
}

// Listener receives matcher events. Implementations must not block —
// the matcher calls listeners synchronously from within Evaluate/Unmatch.
type Listener func(Event)

// Endpoint bundles what the Matcher needs to know about one local
// endpoint: its QoS, its owning Publisher/Subscriber group QoS, and its
// topic/type identity.
type Endpoint struct {
	Guid      guid.Guid
	TopicName string
	TypeName  string
	Writer    bool // true for a DataWriter, false for a DataReader
	QoS       qos.Endpoint
	Group     qos.Group
}

// Remote mirrors Endpoint for a discovered peer.
type Remote struct {
	Guid      guid.Guid
	TopicName string
	TypeName  string
	Writer    bool
	QoS       qos.Endpoint
	Group     qos.Group
}

// Matcher tracks the matched-peer table for every local endpoint
// registered with it.
type Matcher struct {
	mu        sync.RWMutex
	local     map[guid.Guid]Endpoint
	matched   map[guid.Guid]map[guid.Guid]bool
	listeners []Listener
	log       *rlog.Logger
}

// New builds an empty Matcher.
func New() *Matcher {
	return &Matcher{
		local:   make(map[guid.Guid]Endpoint),
		matched: make(map[guid.Guid]map[guid.Guid]bool),
		log:     rlog.New("match.matcher"),
	}
}

// AddListener registers a Listener for match/unmatch/incompatible_qos
// events.
func (m *Matcher) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Matcher) emit(ev Event) {
	m.mu.RLock()
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.RUnlock()
	for _, l := range listeners {
		l(ev)
	}
}

// RegisterLocal adds or updates a local endpoint's identity/QoS, called
// whenever a local endpoint is created or its QoS changes.
func (m *Matcher) RegisterLocal(ep Endpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.local[ep.Guid] = ep
	if _, ok := m.matched[ep.Guid]; !ok {
		m.matched[ep.Guid] = make(map[guid.Guid]bool)
	}
}

// RemoveLocal destroys a local endpoint, unmatching it from every
// currently matched remote.
func (m *Matcher) RemoveLocal(g guid.Guid) {
	m.mu.Lock()
	peers := m.matched[g]
	delete(m.matched, g)
	delete(m.local, g)
	m.mu.Unlock()

	for remote := range peers {
		m.emit(Event{Local: g, Remote: remote, Kind: Unmatched})
	}
}

// Evaluate runs the compatibility rules between a local
// endpoint and a discovered remote, updating the matched-peer table and
// emitting Matched/Unmatched/IncompatibleQoS events as the outcome
// changes from its prior state. The local and remote must be opposite
// roles (writer vs reader) of the same topic; callers are expected to
// have already filtered by topic/type name.
func (m *Matcher) Evaluate(local Endpoint, remote Remote) {
	if local.Writer == remote.Writer {
		return
	}
	if local.TopicName != remote.TopicName || local.TypeName != remote.TypeName {
		m.unmatchIfPresent(local.Guid, remote.Guid)
		return
	}

	var writerQoS, readerQoS qos.Endpoint
	var writerGroup, readerGroup qos.Group
	if local.Writer {
		writerQoS, readerQoS = local.QoS, remote.QoS
		writerGroup, readerGroup = local.Group, remote.Group
	} else {
		writerQoS, readerQoS = remote.QoS, local.QoS
		writerGroup, readerGroup = remote.Group, local.Group
	}

	if inc := qos.Compatible(writerQoS, readerQoS); inc != nil {
		m.unmatchIfPresent(local.Guid, remote.Guid)
		m.emit(Event{Local: local.Guid, Remote: remote.Guid, Kind: IncompatibleQoS, IncompatibleQoS: inc.Policy})
		return
	}
	if inc := qos.GroupCompatible(writerGroup, readerGroup); inc != nil {
		m.unmatchIfPresent(local.Guid, remote.Guid)
		m.emit(Event{Local: local.Guid, Remote: remote.Guid, Kind: IncompatibleQoS, IncompatibleQoS: inc.Policy})
		return
	}

	m.mu.Lock()
	peers := m.matched[local.Guid]
	if peers == nil {
		peers = make(map[guid.Guid]bool)
		m.matched[local.Guid] = peers
	}
	alreadyMatched := peers[remote.Guid]
	peers[remote.Guid] = true
	m.mu.Unlock()

	if !alreadyMatched {
		m.emit(Event{Local: local.Guid, Remote: remote.Guid, Kind: Matched})
	}
}

// Discover evaluates a newly-seen (or changed) remote endpoint against
// every currently-registered local endpoint of the opposite role on the
// same topic. Callers use this on the SEDP receive path, where a remote
// publication/subscription arrives (or its QoS changes) after the local
// endpoints it might match already exist.
func (m *Matcher) Discover(remote Remote) {
	m.mu.RLock()
	candidates := make([]Endpoint, 0, len(m.local))
	for _, ep := range m.local {
		if ep.Writer == remote.Writer {
			continue
		}
		if ep.TopicName != remote.TopicName {
			continue
		}
		candidates = append(candidates, ep)
	}
	m.mu.RUnlock()

	for _, ep := range candidates {
		m.Evaluate(ep, remote)
	}
}

func (m *Matcher) unmatchIfPresent(local, remote guid.Guid) {
	m.mu.Lock()
	peers := m.matched[local]
	wasMatched := peers != nil && peers[remote]
	if wasMatched {
		delete(peers, remote)
	}
	m.mu.Unlock()
	if wasMatched {
		m.emit(Event{Local: local, Remote: remote, Kind: Unmatched})
	}
}

// Unmatch explicitly tears down a match, e.g. on remote participant
// expiry.
func (m *Matcher) Unmatch(local, remote guid.Guid) {
	m.unmatchIfPresent(local, remote)
}

// MatchedPeers returns a snapshot of the remote Guids currently matched
// to the given local endpoint.
func (m *Matcher) MatchedPeers(local guid.Guid) []guid.Guid {
	m.mu.RLock()
	defer m.mu.RUnlock()
	peers := m.matched[local]
	out := make([]guid.Guid, 0, len(peers))
	for g := range peers {
		out = append(out, g)
	}
	return out
}

// MatchedCount reports how many remotes are currently matched to local.
func (m *Matcher) MatchedCount(local guid.Guid) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.matched[local])
}
