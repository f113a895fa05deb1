// Package lpbtransport implements transport.Transport as an in-process
// loopback, routing "sent" datagrams directly to every other
// participant registered on the same Bus. It exists purely to let the
// rest of the module exercise end-to-end paths (discovery, reliability,
// fragmentation) in tests without a real socket, mirroring the spirit of
// go-iecp5's in-memory cs104 test harness.
package lpbtransport

import (
	"context"
	"sync"

	"github.com/rtpscore/rtpscore/transport"
)

// Bus is the shared medium a set of Transports attach to. A Bus may
// optionally drop datagrams addressed to a given locator (see Drop),
// letting tests simulate the lossy-transport scenarios S1/S5
// describe; it delivers in send order and never reorders.
type Bus struct {
	mu        sync.Mutex
	receivers map[string][]func(from transport.Locator, bytes []byte)
	drop      map[string]bool
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{receivers: make(map[string][]func(from transport.Locator, bytes []byte))}
}

func key(l transport.Locator) string { return l.Address }

// Drop marks every future datagram addressed to locator as lost. Used by
// tests simulating transport loss.
func (b *Bus) Drop(locator transport.Locator, drop bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.drop == nil {
		b.drop = make(map[string]bool)
	}
	b.drop[key(locator)] = drop
}

func (b *Bus) deliver(from, to transport.Locator, bytes []byte) {
	b.mu.Lock()
	if b.drop[key(to)] {
		b.mu.Unlock()
		return
	}
	fns := append([]func(from transport.Locator, bytes []byte){}, b.receivers[key(to)]...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn(from, bytes)
	}
}

// Transport is a transport.Transport backed by a Bus.
type Transport struct {
	bus  *Bus
	self transport.Locator
	mtu  int

	mu     sync.Mutex
	closed bool
}

// New attaches a new Transport to bus at the given locator, with mtu as
// its reported effective MTU.
func New(bus *Bus, self transport.Locator, mtu int) *Transport {
	if mtu <= 0 {
		mtu = 1500
	}
	return &Transport{bus: bus, self: self, mtu: mtu}
}

func (t *Transport) Send(ctx context.Context, locator transport.Locator, bytes []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	cp := append([]byte(nil), bytes...)
	t.bus.deliver(t.self, locator, cp)
	return nil
}

func (t *Transport) MTU(transport.Locator) int { return t.mtu }

func (t *Transport) SupportsMulticast() bool { return true }

func (t *Transport) Receive(ctx context.Context, fn func(from transport.Locator, bytes []byte)) {
	t.bus.mu.Lock()
	k := key(t.self)
	t.bus.receivers[k] = append(t.bus.receivers[k], func(from transport.Locator, bytes []byte) {
		if ctx.Err() != nil {
			return
		}
		fn(from, bytes)
	})
	t.bus.mu.Unlock()

	go func() {
		<-ctx.Done()
	}()
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
