package participant

import (
	"sync"

	"github.com/rtpscore/rtpscore/qos"
	"github.com/rtpscore/rtpscore/transport"
)

// Topic names a data category shared by a type and a key extraction
// strategy. Topics are registered once per
// Participant and referenced by every Publisher/Subscriber that
// creates a writer/reader on them.
type Topic struct {
	Name string
	Type transport.TypeDescriptor
}

// Publisher groups DataWriters under shared Presentation/Partition QoS.
type Publisher struct {
	QoS qos.Group

	mu      sync.Mutex
	writers map[*DataWriter]struct{}
}

// NewPublisher builds a Publisher with the given group QoS, normalized
// and defaulted via Valid().
func NewPublisher(g qos.Group) (*Publisher, error) {
	if err := g.Valid(); err != nil {
		return nil, err
	}
	return &Publisher{QoS: g, writers: make(map[*DataWriter]struct{})}, nil
}

// adopt registers a newly created DataWriter under this Publisher.
func (p *Publisher) adopt(w *DataWriter) {
	p.mu.Lock()
	p.writers[w] = struct{}{}
	p.mu.Unlock()
}

// release removes a destroyed DataWriter from this Publisher.
func (p *Publisher) release(w *DataWriter) {
	p.mu.Lock()
	delete(p.writers, w)
	p.mu.Unlock()
}

// Writers returns a snapshot of this Publisher's current DataWriters.
func (p *Publisher) Writers() []*DataWriter {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*DataWriter, 0, len(p.writers))
	for w := range p.writers {
		out = append(out, w)
	}
	return out
}

// Subscriber groups DataReaders under shared Presentation/Partition QoS.
type Subscriber struct {
	QoS qos.Group

	mu      sync.Mutex
	readers map[*DataReader]struct{}
}

// NewSubscriber builds a Subscriber with the given group QoS, normalized
// and defaulted via Valid().
func NewSubscriber(g qos.Group) (*Subscriber, error) {
	if err := g.Valid(); err != nil {
		return nil, err
	}
	return &Subscriber{QoS: g, readers: make(map[*DataReader]struct{})}, nil
}

func (s *Subscriber) adopt(r *DataReader) {
	s.mu.Lock()
	s.readers[r] = struct{}{}
	s.mu.Unlock()
}

func (s *Subscriber) release(r *DataReader) {
	s.mu.Lock()
	delete(s.readers, r)
	s.mu.Unlock()
}

// Readers returns a snapshot of this Subscriber's current DataReaders.
func (s *Subscriber) Readers() []*DataReader {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*DataReader, 0, len(s.readers))
	for r := range s.readers {
		out = append(out, r)
	}
	return out
}
