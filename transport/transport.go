// Package transport defines the collaborator interfaces
// that the core consumes but never implements itself (transport drivers,
// codecs, and type descriptors are explicit Non-goals): Transport,
// Codec, and TypeDescriptor. Two test doubles live in subpackages — an
// in-memory loopback Transport (transport/lpbtransport) and a
// fixed-schema Codec (transport/fixedcodec) — so the rest of the module can exercise
// end-to-end paths without a real network or IDL-generated types.
package transport

import "context"

// Locator is an opaque transport address. Its fields are
// meaningful only to the Transport implementation that produced it.
type Locator struct {
	Kind    int32
	Address string
	Port    uint32
}

// Transport is the collaborator interface the core sends and receives
// datagrams through: send to a locator, report capability, and feed
// inbound datagrams to a callback. Multiple Transports may coexist; the
// messenger tries locators in preference order.
type Transport interface {
	// Send transmits bytes to locator. Send must not block past ctx's
	// deadline/cancellation.
	Send(ctx context.Context, locator Locator, bytes []byte) error
	// MTU reports the largest payload Send can deliver unfragmented to
	// locator.
	MTU(locator Locator) int
	// SupportsMulticast reports whether this Transport can join
	// multicast groups.
	SupportsMulticast() bool
	// Receive registers fn to be called with every datagram arriving on
	// this Transport, until ctx is done.
	Receive(ctx context.Context, fn func(from Locator, bytes []byte))
	// Close releases any held resources (sockets, goroutines). Close
	// must be idempotent.
	Close() error
}

// TypeDescriptor is opaque from the core's perspective:
// it provides only identity and a codec hook.
type TypeDescriptor interface {
	TypeName() string
	// KeyFieldDescriptorHash is compared between matched endpoints as a
	// coarse type-compatibility check.
	KeyFieldDescriptorHash() [16]byte
}

// Codec encodes/decodes a typed sample to/from CDR-family bytes given a
// TypeDescriptor and an encapsulation id. EncapsulationId is
// the wire.EncapsulationId numeric value, passed as a plain uint16 here so
// this package has no dependency on package wire.
type Codec interface {
	Encode(desc TypeDescriptor, encapsulation uint16, sample interface{}) ([]byte, error)
	Decode(desc TypeDescriptor, encapsulation uint16, data []byte, out interface{}) error
	// KeyBytes extracts the serialized key fields of sample, used by
	// HistoryCache to compute instance handles.
	KeyBytes(desc TypeDescriptor, sample interface{}) ([]byte, error)
}
