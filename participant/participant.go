package participant

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/rtpscore/rtpscore/discovery"
	"github.com/rtpscore/rtpscore/guid"
	"github.com/rtpscore/rtpscore/history"
	"github.com/rtpscore/rtpscore/match"
	"github.com/rtpscore/rtpscore/qos"
	"github.com/rtpscore/rtpscore/rlog"
	"github.com/rtpscore/rtpscore/rtpscfg"
	"github.com/rtpscore/rtpscore/rtpsmetrics"
	"github.com/rtpscore/rtpscore/transport"
	"github.com/rtpscore/rtpscore/wire"
)

// Participant is the root entity: one RTPS domain
// participant, owning the discovery engine, the QoS matcher, every
// Topic/Publisher/Subscriber/DataWriter/DataReader it has created, and
// the background goroutines that drive SPDP/SEDP announcement, timer
// callbacks, and inbound dispatch. Its shape follows go-iecp5's
// cs104.Client: one struct bundling a transport, a protocol engine, a
// context-scoped run loop, and a Close that is safe to call twice.
type Participant struct {
	Guid   guid.Guid
	Domain rtpscfg.DomainConfig

	transport   transport.Transport
	messenger   *wire.Messenger
	discovery   *discovery.Engine
	matcher     *match.Matcher
	log         *rlog.Logger
	order       binary.ByteOrder
	destLocator transport.Locator

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	topics      map[string]*Topic
	publishers  map[*Publisher]struct{}
	subscribers map[*Subscriber]struct{}
	writers     map[guid.Guid]*DataWriter
	readers     map[guid.Guid]*DataReader
	nextEntity  uint32
	spdpSeq     guid.SequenceNumber

	closeOnce sync.Once
}

// New creates a Participant in domain cfg.DomainId, bound to tr for its
// wire traffic. The caller owns tr's lifetime up to Close.
func New(cfg rtpscfg.DomainConfig, prefix guid.GuidPrefix, tr transport.Transport) (*Participant, error) {
	if err := cfg.Valid(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Participant{
		Guid:      guid.Guid{Prefix: prefix, Entity: guid.EntityIdParticipant},
		Domain:    cfg,
		transport: tr,
		messenger: wire.New(prefix),
		discovery: discovery.NewEngine(prefix),
		matcher:   match.New(),
		log:       rlog.New("participant"),
		order:     binary.LittleEndian,
		destLocator: transport.Locator{
			Kind:    discovery.LocatorKindUDPv4,
			Address: discovery.DefaultSPDPMulticastAddress,
			Port:    uint32(discovery.SPDPMulticastPort(cfg.DomainId)),
		},
		ctx:         ctx,
		cancel:      cancel,
		topics:      make(map[string]*Topic),
		publishers:  make(map[*Publisher]struct{}),
		subscribers: make(map[*Subscriber]struct{}),
		writers:     make(map[guid.Guid]*DataWriter),
		readers:     make(map[guid.Guid]*DataReader),
		spdpSeq:     guid.SequenceNumberFirst,
	}

	p.matcher.AddListener(p.onMatchEvent)
	p.discovery.OnExpiry(p.onParticipantExpiry)

	p.wg.Add(1)
	go p.announceLoop()
	p.wg.Add(1)
	go p.timerLoop()
	p.wg.Add(1)
	go p.receiveLoop()

	return p, nil
}

// CreateTopic registers a Topic, the prerequisite for any writer/reader
// created against it.
func (p *Participant) CreateTopic(name string, t transport.TypeDescriptor) *Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	topic := &Topic{Name: name, Type: t}
	p.topics[name] = topic
	return topic
}

// CreatePublisher builds a Publisher under this Participant.
func (p *Participant) CreatePublisher(groupQoS qos.Group) (*Publisher, error) {
	pub, err := NewPublisher(groupQoS)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.publishers[pub] = struct{}{}
	p.mu.Unlock()
	return pub, nil
}

// CreateSubscriber builds a Subscriber under this Participant.
func (p *Participant) CreateSubscriber(groupQoS qos.Group) (*Subscriber, error) {
	sub, err := NewSubscriber(groupQoS)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.subscribers[sub] = struct{}{}
	p.mu.Unlock()
	return sub, nil
}

// CreateDataWriter creates a DataWriter on topic under pub, registers it
// with the matcher, announces it over SEDP, wires its send hook so
// Write/Dispose/Unregister actually produce wire traffic, and evaluates
// it against every remote reader already discovered on this topic (a
// remote reader may have been discovered before this writer existed).
func (p *Participant) CreateDataWriter(pub *Publisher, topic *Topic, ep qos.Endpoint, listener *Listener) (*DataWriter, error) {
	p.mu.Lock()
	entity := p.allocEntityLocked(guid.EntityKindUserWriterWithKey)
	p.mu.Unlock()

	g := guid.Guid{Prefix: p.Guid.Prefix, Entity: entity}
	dw, err := NewDataWriter(g, topic, ep, listener)
	if err != nil {
		return nil, err
	}
	dw.setSendHook(func(ch *history.Change) { p.sendChange(dw, ch) })

	p.mu.Lock()
	p.writers[g] = dw
	p.mu.Unlock()
	pub.adopt(dw)

	local := match.Endpoint{
		Guid: g, TopicName: topic.Name, TypeName: topic.Type.TypeName(),
		Writer: true, QoS: ep, Group: pub.QoS,
	}
	p.matcher.RegisterLocal(local)
	p.discovery.OnSEDPWriter(discovery.EndpointData{Guid: g, TopicName: topic.Name, TypeName: topic.Type.TypeName(), Endpoint: ep, Group: pub.QoS})
	rtpsmetrics.DiscoveredEndpoints.WithLabelValues("writer").Inc()

	for _, rr := range p.discovery.RemoteReaders(topic.Name) {
		p.matcher.Evaluate(local, match.Remote{
			Guid: rr.Guid, TopicName: rr.TopicName, TypeName: rr.TypeName,
			Writer: false, QoS: rr.Endpoint, Group: rr.Group,
		})
	}
	return dw, nil
}

// CreateDataReader creates a DataReader on topic under sub, registers it
// with the matcher, announces it over SEDP, and evaluates it against
// every remote writer already discovered on this topic.
func (p *Participant) CreateDataReader(sub *Subscriber, topic *Topic, ep qos.Endpoint, listener *Listener) (*DataReader, error) {
	p.mu.Lock()
	entity := p.allocEntityLocked(guid.EntityKindUserReaderWithKey)
	p.mu.Unlock()

	g := guid.Guid{Prefix: p.Guid.Prefix, Entity: entity}
	dr, err := NewDataReader(g, topic, ep, listener)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.readers[g] = dr
	p.mu.Unlock()
	sub.adopt(dr)

	local := match.Endpoint{
		Guid: g, TopicName: topic.Name, TypeName: topic.Type.TypeName(),
		Writer: false, QoS: ep, Group: sub.QoS,
	}
	p.matcher.RegisterLocal(local)
	p.discovery.OnSEDPReader(discovery.EndpointData{Guid: g, TopicName: topic.Name, TypeName: topic.Type.TypeName(), Endpoint: ep, Group: sub.QoS})
	rtpsmetrics.DiscoveredEndpoints.WithLabelValues("reader").Inc()

	for _, rw := range p.discovery.RemoteWriters(topic.Name) {
		p.matcher.Evaluate(local, match.Remote{
			Guid: rw.Guid, TopicName: rw.TopicName, TypeName: rw.TypeName,
			Writer: true, QoS: rw.Endpoint, Group: rw.Group,
		})
	}
	return dr, nil
}

// DestroyDataWriter tears down a DataWriter: unregisters it from the
// matcher (which unmatches every peer), disposes its SEDP announcement,
// and drops it from the participant's table.
func (p *Participant) DestroyDataWriter(pub *Publisher, dw *DataWriter) {
	p.mu.Lock()
	if _, ok := p.writers[dw.Guid]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.writers, dw.Guid)
	p.mu.Unlock()

	pub.release(dw)
	p.matcher.RemoveLocal(dw.Guid)
	p.discovery.DisposeSEDPWriter(dw.Guid)
}

// DestroyDataReader tears down a DataReader, mirroring DestroyDataWriter.
func (p *Participant) DestroyDataReader(sub *Subscriber, dr *DataReader) {
	p.mu.Lock()
	if _, ok := p.readers[dr.Guid]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.readers, dr.Guid)
	p.mu.Unlock()

	sub.release(dr)
	p.matcher.RemoveLocal(dr.Guid)
	p.discovery.DisposeSEDPReader(dr.Guid)
}

// allocEntityLocked hands out the next user EntityId of the given kind.
// Callers must hold p.mu.
func (p *Participant) allocEntityLocked(kind guid.EntityKind) guid.EntityId {
	p.nextEntity++
	n := p.nextEntity
	return guid.EntityId{Key: [3]byte{byte(n >> 16), byte(n >> 8), byte(n)}, Kind: kind}
}

// onMatchEvent adapts match.Matcher events into participant-level
// Listener Status posts and, on a fresh Matched event between a local
// reliable endpoint and its newly discovered peer, wires up the
// reliability engine's per-peer state — including sending the
// pre-emptive ACKNACK a reliable reader owes a writer on first match.
func (p *Participant) onMatchEvent(ev match.Event) {
	p.mu.Lock()
	dw, isWriter := p.writers[ev.Local]
	dr, isReader := p.readers[ev.Local]
	p.mu.Unlock()

	switch {
	case isWriter:
		if dw.listener != nil {
			dw.listener.Post(fromMatchEvent(ev, true))
		}
		if ev.Kind == match.Matched {
			dw.MatchReader(ev.Remote, ev.Remote.Entity)
		} else if ev.Kind == match.Unmatched {
			dw.UnmatchReader(ev.Remote)
		}
	case isReader:
		if dr.listener != nil {
			dr.listener.Post(fromMatchEvent(ev, false))
		}
		switch ev.Kind {
		case match.Matched:
			strength := p.remoteOwnershipStrength(dr.Topic.Name, ev.Remote)
			if an, ok := dr.MatchWriter(ev.Remote, ev.Remote.Entity, strength); ok {
				p.sendAckNack(an)
			}
		case match.Unmatched:
			dr.UnmatchWriter(ev.Remote)
		}
	}
}

// remoteOwnershipStrength looks up a discovered remote writer's
// OWNERSHIP strength for EXCLUSIVE arbitration, defaulting
// to 0 if the writer's SEDP announcement was not retained (e.g. it
// already expired between matching and this lookup).
func (p *Participant) remoteOwnershipStrength(topic string, writerGuid guid.Guid) int32 {
	for _, rw := range p.discovery.RemoteWriters(topic) {
		if rw.Guid == writerGuid {
			return rw.Endpoint.Ownership.Strength
		}
	}
	return 0
}

// onParticipantExpiry tears down every local match referencing a remote
// that has gone silent past its lease.
func (p *Participant) onParticipantExpiry(prefix guid.GuidPrefix, last discovery.RemoteParticipant) {
	p.mu.Lock()
	locals := make([]guid.Guid, 0, len(p.writers)+len(p.readers))
	for g := range p.writers {
		locals = append(locals, g)
	}
	for g := range p.readers {
		locals = append(locals, g)
	}
	p.mu.Unlock()

	for _, local := range locals {
		for _, remote := range p.matcher.MatchedPeers(local) {
			if remote.Prefix == prefix {
				p.matcher.Unmatch(local, remote)
			}
		}
	}
}

// announceLoop periodically re-sends this participant's SPDP data.
func (p *Participant) announceLoop() {
	defer p.wg.Done()
	start := time.Now()
	for {
		interval := p.Domain.ResendPeriod
		if time.Since(start) < discovery.InitialBurstDuration {
			interval = discovery.InitialBurstPeriod
		}
		p.sendSPDP()
		select {
		case <-p.ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// sendSPDP builds and sends this participant's
// SPDPdiscoveredParticipantData sample to the domain's metatraffic
// locator, so remote participants running the same announce loop can
// discover this one.
func (p *Participant) sendSPDP() {
	data := discovery.ParticipantData{
		GuidPrefix:      p.Guid.Prefix,
		ProtocolVersion: uint16(wire.ProtocolVersion24.Major)<<8 | uint16(wire.ProtocolVersion24.Minor),
		VendorId:        p.Domain.VendorId,
		MulticastLocators: []discovery.Locator{{
			Kind:    p.destLocator.Kind,
			Address: []byte(p.destLocator.Address),
			Port:    p.destLocator.Port,
		}},
		LeaseDuration: p.Domain.LeaseDuration,
		AvailableEndpoints: discovery.HasParticipantAnnouncer | discovery.HasParticipantDetector |
			discovery.HasPublicationsAnnouncer | discovery.HasPublicationsDetector |
			discovery.HasSubscriptionsAnnouncer | discovery.HasSubscriptionsDetector,
		UserData: p.Domain.UserData,
	}
	payload := discovery.EncodeParticipantData(data, p.order)

	b := p.messenger.NewBuilder(p.transport.MTU(p.destLocator), p.order)
	b.Data(wire.DataSubmessage{
		ReaderId:       guid.EntityId{},
		WriterId:       guid.EntityIdSPDPWriter,
		WriterSeq:      p.nextSpdpSeq(),
		Encapsulation:  wire.PreferredBuiltinEncapsulation,
		SerializedData: payload,
	})
	p.sendBuilder(b)
}

func (p *Participant) nextSpdpSeq() guid.SequenceNumber {
	p.mu.Lock()
	defer p.mu.Unlock()
	seq := p.spdpSeq
	p.spdpSeq++
	return seq
}

// sendBuilder finishes b and sends every resulting datagram to this
// participant's shared destination locator, logging rather than failing
// individual send errors: a dropped datagram on an unreliable transport
// is recoverable by the next heartbeat or resend.
func (p *Participant) sendBuilder(b *wire.Builder) {
	for _, datagram := range b.Finish() {
		if err := p.transport.Send(p.ctx, p.destLocator, datagram); err != nil {
			p.log.Warn("send failed: %v", err)
		}
	}
}

// sendAckNack sends a single ACKNACK submessage, used both for the
// pre-emptive ACKNACK a reader owes a writer on first match and for the
// ACKNACKs the timer loop drains via DueAckNacks/BuildAckNack.
func (p *Participant) sendAckNack(an wire.AckNackSubmessage) {
	b := p.messenger.NewBuilder(p.transport.MTU(p.destLocator), p.order)
	b.AckNack(an)
	p.sendBuilder(b)
}

// sendChange is the DataWriter send hook: it builds and sends one DATA
// submessage per currently matched reader for ch, then (for reliable
// writers) a heartbeat so a reader missing it is prompted to nack.
func (p *Participant) sendChange(dw *DataWriter, ch *history.Change) {
	peers := p.matcher.MatchedPeers(dw.Guid)
	if len(peers) > 0 {
		base := wire.DataSubmessage{
			WriterId:      dw.Guid.Entity,
			WriterSeq:     ch.Seq,
			InlineQos:     inlineQosForChange(ch, p.order),
			Encapsulation: wire.PreferredUserDataEncapsulation,
			KeyOnly:       ch.Kind != history.Alive,
		}
		switch ch.Kind {
		case history.Disposed:
			base.DisposeFlag = true
		case history.Unregistered:
			base.UnregisterFlag = true
		default:
			base.SerializedData = ch.Data
		}

		b := p.messenger.NewBuilder(p.transport.MTU(p.destLocator), p.order)
		b.InfoTs(wire.InfoTsSubmessage{Seconds: int32(ch.SourceTimestamp.Unix()), Fraction: uint32(ch.SourceTimestamp.Nanosecond())})
		for _, peer := range peers {
			d := base
			d.ReaderId = peer.Entity
			b.Data(d)
		}
		p.sendBuilder(b)
	}
	p.sendHeartbeats(dw)
}

// inlineQosForChange builds the inlineQos parameter list a DATA
// submessage carries for ch: the instance's key hash always, plus
// status info bits for a dispose/unregister change.
func inlineQosForChange(ch *history.Change, order binary.ByteOrder) []byte {
	pl := wire.ParameterList{{Id: wire.PidKeyHash, Value: append([]byte(nil), ch.InstanceHandle[:]...)}}
	if ch.Kind != history.Alive {
		var word uint32
		if ch.Kind == history.Disposed {
			word |= wire.StatusInfoDisposed
		}
		if ch.Kind == history.Unregistered {
			word |= wire.StatusInfoUnregistered
		}
		var v [4]byte
		order.PutUint32(v[:], word)
		pl = append(pl, wire.Parameter{Id: wire.PidStatusInfo, Value: v[:]})
	}
	return pl.Encode(order)
}

// sendHeartbeats sends dw's current HEARTBEAT to every matched reader in
// one datagram; a no-op for a best-effort writer.
func (p *Participant) sendHeartbeats(dw *DataWriter) {
	w := dw.Reliable()
	if w == nil {
		return
	}
	hbs := w.Heartbeats()
	if len(hbs) == 0 {
		return
	}
	b := p.messenger.NewBuilder(p.transport.MTU(p.destLocator), p.order)
	for _, hb := range hbs {
		b.Heartbeat(hb)
	}
	p.sendBuilder(b)
	rtpsmetrics.HeartbeatsSent.WithLabelValues(dw.Guid.String()).Add(float64(len(hbs)))
}

// timerLoop drives deadline/liveliness checks, heartbeat/retransmit
// sending, and ACKNACK draining for every local writer and reader at a
// fixed cadence.
func (p *Participant) timerLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.Domain.HeartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case now := <-ticker.C:
			p.checkTimers(now)
		}
	}
}

func (p *Participant) checkTimers(now time.Time) {
	p.mu.Lock()
	writers := make([]*DataWriter, 0, len(p.writers))
	for _, w := range p.writers {
		writers = append(writers, w)
	}
	readers := make([]*DataReader, 0, len(p.readers))
	for _, r := range p.readers {
		readers = append(readers, r)
	}
	p.mu.Unlock()

	for _, w := range writers {
		w.CheckDeadlines(now)
		p.pumpWriter(w, now)
	}
	for _, r := range readers {
		r.CheckDeadlines(now)
		p.pumpReader(r, now)
	}
}

// pumpWriter sends dw's periodic heartbeat and resends any change its
// matched readers have nacked whose nack_suppression_duration elapsed;
// a no-op for a best-effort writer.
func (p *Participant) pumpWriter(dw *DataWriter, now time.Time) {
	w := dw.Reliable()
	if w == nil {
		return
	}
	p.sendHeartbeats(dw)

	for readerGuid, changes := range w.RetransmitDue(now) {
		b := p.messenger.NewBuilder(p.transport.MTU(p.destLocator), p.order)
		for _, ch := range changes {
			d := wire.DataSubmessage{
				ReaderId:      readerGuid.Entity,
				WriterId:      dw.Guid.Entity,
				WriterSeq:     ch.Seq,
				InlineQos:     inlineQosForChange(ch, p.order),
				Encapsulation: wire.PreferredUserDataEncapsulation,
				KeyOnly:       ch.Kind != history.Alive,
			}
			switch ch.Kind {
			case history.Disposed:
				d.DisposeFlag = true
			case history.Unregistered:
				d.UnregisterFlag = true
			default:
				d.SerializedData = ch.Data
			}
			b.Data(d)
		}
		p.sendBuilder(b)
		rtpsmetrics.RetransmittedSamples.WithLabelValues(dw.Guid.String()).Add(float64(len(changes)))
	}
}

// pumpReader sends every ACKNACK dr's reliability state has scheduled
// whose response delay has elapsed; a no-op for a best-effort reader.
func (p *Participant) pumpReader(dr *DataReader, now time.Time) {
	r := dr.Reliable()
	if r == nil {
		return
	}
	for _, writerGuid := range r.DueAckNacks(now) {
		if an, ok := r.BuildAckNack(writerGuid); ok {
			p.sendAckNack(an)
		}
	}
}

// receiveLoop pumps inbound datagrams from the transport, parses each
// into its submessage stream, and dispatches every submessage to the
// discovery engine, the matcher, or the matched writer/reader's
// reliability and history state as appropriate.
func (p *Participant) receiveLoop() {
	defer p.wg.Done()
	p.transport.Receive(p.ctx, func(from transport.Locator, bytes []byte) {
		msg, ok := p.messenger.Parse(bytes)
		if !ok {
			p.log.Warn("dropping unparsable datagram from %v", from)
			return
		}
		now := time.Now()
		for _, sub := range msg.Submessages {
			p.dispatchSubmessage(msg.Header.Prefix, sub, now)
		}
	})
}

func (p *Participant) dispatchSubmessage(prefix guid.GuidPrefix, sub wire.Submessage, now time.Time) {
	switch sub.Kind {
	case wire.KindData:
		p.onData(prefix, sub.Data, now)
	case wire.KindHeartbeat:
		p.onHeartbeat(prefix, sub.Heartbeat, now)
	case wire.KindAckNack:
		p.onAckNack(prefix, sub.AckNack)
	case wire.KindGap:
		p.onGap(prefix, sub.Gap)
	}
}

// onData routes a DATA submessage by writer entity id: the SPDP/SEDP
// built-in writers feed the discovery engine, everything else is user
// data for a matched local reader.
func (p *Participant) onData(prefix guid.GuidPrefix, d *wire.DataSubmessage, now time.Time) {
	switch d.WriterId {
	case guid.EntityIdSPDPWriter:
		p.onSPDPData(prefix, d, now)
	case guid.EntityIdSEDPPubWriter:
		p.onSEDPWriterData(d)
	case guid.EntityIdSEDPSubWriter:
		p.onSEDPReaderData(d)
	default:
		p.onUserData(prefix, d, now)
	}
}

// onSPDPData applies an inbound SPDPdiscoveredParticipantData sample, or
// — for a key-only DATA with the dispose flag set — a remote
// participant's own announcement that it is leaving, which disposes it
// immediately rather than waiting out its lease.
func (p *Participant) onSPDPData(prefix guid.GuidPrefix, d *wire.DataSubmessage, now time.Time) {
	if d.KeyOnly {
		if d.DisposeFlag {
			p.discovery.DisposeSPDP(prefix)
		}
		return
	}
	data, ok := discovery.DecodeParticipantData(d.SerializedData, p.order)
	if !ok {
		return
	}
	p.discovery.OnSPDP(data, now)
}

func (p *Participant) onSEDPWriterData(d *wire.DataSubmessage) {
	if d.KeyOnly || len(d.SerializedData) == 0 {
		return
	}
	data, ok := discovery.DecodeEndpointData(d.SerializedData, p.order)
	if !ok {
		return
	}
	if p.discovery.OnSEDPWriter(data) {
		p.matcher.Discover(match.Remote{
			Guid: data.Guid, TopicName: data.TopicName, TypeName: data.TypeName,
			Writer: true, QoS: data.Endpoint, Group: data.Group,
		})
	}
}

func (p *Participant) onSEDPReaderData(d *wire.DataSubmessage) {
	if d.KeyOnly || len(d.SerializedData) == 0 {
		return
	}
	data, ok := discovery.DecodeEndpointData(d.SerializedData, p.order)
	if !ok {
		return
	}
	if p.discovery.OnSEDPReader(data) {
		p.matcher.Discover(match.Remote{
			Guid: data.Guid, TopicName: data.TopicName, TypeName: data.TypeName,
			Writer: false, QoS: data.Endpoint, Group: data.Group,
		})
	}
}

// onUserData delivers application DATA to the local reader named by
// d.ReaderId, deduplicating through the reliability engine first when
// the reader is reliable.
func (p *Participant) onUserData(prefix guid.GuidPrefix, d *wire.DataSubmessage, now time.Time) {
	readerGuid := guid.Guid{Prefix: p.Guid.Prefix, Entity: d.ReaderId}
	p.mu.Lock()
	dr, ok := p.readers[readerGuid]
	p.mu.Unlock()
	if !ok {
		return
	}
	writerGuid := guid.Guid{Prefix: prefix, Entity: d.WriterId}

	if r := dr.Reliable(); r != nil && r.OnData(writerGuid, d.WriterSeq) {
		return // duplicate, already delivered
	}

	ch := p.changeFromData(writerGuid, d, now)
	if dr.Cache().Receive(writerGuid, *ch, now) {
		dr.Deliver(ch, now)
	}
}

func (p *Participant) changeFromData(writerGuid guid.Guid, d *wire.DataSubmessage, now time.Time) *history.Change {
	ch := &history.Change{
		WriterGuid:      writerGuid,
		Seq:             d.WriterSeq,
		SourceTimestamp: now,
		Data:            d.SerializedData,
	}
	switch {
	case d.DisposeFlag:
		ch.Kind = history.Disposed
	case d.UnregisterFlag:
		ch.Kind = history.Unregistered
	default:
		ch.Kind = history.Alive
	}
	if len(d.InlineQos) > 0 {
		pl := wire.ParseParameterList(d.InlineQos, p.order)
		if v, ok := pl.Get(wire.PidKeyHash); ok && len(v) == 16 {
			copy(ch.InstanceHandle[:], v)
		}
	}
	return ch
}

func (p *Participant) onHeartbeat(prefix guid.GuidPrefix, hb *wire.HeartbeatSubmessage, now time.Time) {
	readerGuid := guid.Guid{Prefix: p.Guid.Prefix, Entity: hb.ReaderId}
	p.mu.Lock()
	dr, ok := p.readers[readerGuid]
	p.mu.Unlock()
	if !ok {
		return
	}
	r := dr.Reliable()
	if r == nil {
		return
	}
	writerGuid := guid.Guid{Prefix: prefix, Entity: hb.WriterId}
	r.OnHeartbeat(writerGuid, *hb, now)
}

func (p *Participant) onAckNack(prefix guid.GuidPrefix, an *wire.AckNackSubmessage) {
	writerGuid := guid.Guid{Prefix: p.Guid.Prefix, Entity: an.WriterId}
	p.mu.Lock()
	dw, ok := p.writers[writerGuid]
	p.mu.Unlock()
	if !ok {
		return
	}
	w := dw.Reliable()
	if w == nil {
		return
	}
	readerGuid := guid.Guid{Prefix: prefix, Entity: an.ReaderId}
	rtpsmetrics.AckNacksReceived.WithLabelValues(writerGuid.String()).Inc()
	gaps := w.OnAckNack(readerGuid, *an)
	if len(gaps) == 0 {
		return
	}
	b := p.messenger.NewBuilder(p.transport.MTU(p.destLocator), p.order)
	for _, g := range gaps {
		b.Gap(g)
	}
	p.sendBuilder(b)
	rtpsmetrics.GapsSent.WithLabelValues(writerGuid.String()).Add(float64(len(gaps)))
}

func (p *Participant) onGap(prefix guid.GuidPrefix, g *wire.GapSubmessage) {
	readerGuid := guid.Guid{Prefix: p.Guid.Prefix, Entity: g.ReaderId}
	p.mu.Lock()
	dr, ok := p.readers[readerGuid]
	p.mu.Unlock()
	if !ok {
		return
	}
	r := dr.Reliable()
	if r == nil {
		return
	}
	writerGuid := guid.Guid{Prefix: prefix, Entity: g.WriterId}
	r.OnGap(writerGuid, *g)
}

// Close stops every background goroutine and releases the transport.
// Idempotent.
func (p *Participant) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.cancel()
		p.wg.Wait()
		err = p.transport.Close()
	})
	return err
}
