package wire

import (
	"encoding/binary"

	"github.com/rs/xid"

	"github.com/rtpscore/rtpscore/guid"
	"github.com/rtpscore/rtpscore/rlog"
)

// Messenger is the RtpsMessenger: it owns this participant's
// header (GuidPrefix, vendor, protocol version) and produces/parses
// datagrams against it. It does not itself own sockets — sending and
// receiving bytes is the Transport collaborator's job (package transport)
// — Messenger only frames and unframes.
type Messenger struct {
	header Header
	log    *rlog.Logger
}

// New creates a Messenger for the given participant GuidPrefix.
func New(prefix guid.GuidPrefix) *Messenger {
	return &Messenger{
		header: Header{
			Version: ProtocolVersion24,
			Vendor:  VendorIdRtpscore,
			Prefix:  prefix,
		},
		log: rlog.New("wire.messenger"),
	}
}

// Header returns the header this Messenger stamps on outgoing datagrams.
func (m *Messenger) Header() Header { return m.header }

// NewBuilder starts a Builder for this Messenger's header, bounded by mtu
// and using the given byte order for newly appended submessages.
func (m *Messenger) NewBuilder(mtu int, order binary.ByteOrder) *Builder {
	return NewBuilder(m.header, mtu, order)
}

// Parse parses an inbound datagram. Malformed headers and truncated
// submessages are not returned as errors to the caller under the usual
// failure semantics ("datagram dropped silently" / "remainder ...
// dropped"). A malformed header is logged at Debug and yields ok=false,
// since a header-less buffer yields no usable Message at all; a truncated
// submessage is not logged and yields ok=true with the submessages that
// preceded it. A correlation id is attached to every parse's log lines so an
// operator can follow one datagram's submessages through the log.
func (m *Messenger) Parse(datagram []byte) (Message, bool) {
	corr := xid.New().String()
	log := m.log.WithFields(rlog.Fields{"corr": corr})

	msg, err := ParseMessage(datagram)
	if err != nil {
		log.Debug("dropping malformed datagram: %v", err)
		return Message{}, false
	}
	log.Trace("parsed datagram from %s: %d submessage(s)", msg.Header.Prefix, len(msg.Submessages))
	return msg, true
}
