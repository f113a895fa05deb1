// Package guid implements the RTPS identifier space: GuidPrefix, EntityId,
// Guid, SequenceNumber and InstanceHandle. It is the
// rtpscore analogue of go-iecp5's asdu identifier types (TypeID,
// CommonAddr, ...): small, comparable, wire-sized value types with
// explicit Parse/Value codecs instead of reflection-based (de)serialization.
package guid

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"

	uuid "github.com/hashicorp/go-uuid"
)

// GuidPrefixSize is the wire size of a GuidPrefix in bytes.
const GuidPrefixSize = 12

// EntityIdSize is the wire size of an EntityId in bytes.
const EntityIdSize = 4

// GuidPrefix uniquely identifies a participant instance on the network.
type GuidPrefix [GuidPrefixSize]byte

// NewGuidPrefix returns a random GuidPrefix, suitable when the caller has
// no stable host+pid+instance triple to derive one from. Randomness comes
// from hashicorp/go-uuid (already a dependency of the corpus via
// nabbar/golib's AWS test helpers) rather than hand-rolling a CSPRNG call
// site.
func NewGuidPrefix() (GuidPrefix, error) {
	var gp GuidPrefix
	b, err := uuid.GenerateRandomBytes(GuidPrefixSize)
	if err != nil {
		return gp, fmt.Errorf("guid: generate random prefix: %w", err)
	}
	copy(gp[:], b)
	return gp, nil
}

// DerivedGuidPrefix builds a GuidPrefix deterministically from a host
// identifier, process id and a per-process instance counter, so that
// repeated runs of the same process on the same host do not collide
// within the counter's lifetime. The first byte is a vendor-specific
// marker (0x01 per RTPS convention for "not assigned by spec"), the next
// 4 the leading bytes of an MD5 hash of the host, the next 4 the pid
// (big-endian), the next 2 the instance counter, and the last byte is 0.
func DerivedGuidPrefix(host string, pid uint32, instance uint16) GuidPrefix {
	var gp GuidPrefix
	gp[0] = 0x01
	h := md5.Sum([]byte(host))
	copy(gp[1:5], h[:4])
	binary.BigEndian.PutUint32(gp[5:9], pid)
	binary.BigEndian.PutUint16(gp[9:11], instance)
	gp[11] = 0x00
	return gp
}

func (gp GuidPrefix) String() string {
	return fmt.Sprintf("%x", [GuidPrefixSize]byte(gp))
}

// EntityKind identifies the well-known built-in entity kinds
// plus the generic user writer/reader kinds.
type EntityKind byte

const (
	EntityKindUserUnknown          EntityKind = 0x00
	EntityKindUserWriterWithKey    EntityKind = 0x02
	EntityKindUserWriterNoKey      EntityKind = 0x03
	EntityKindUserReaderNoKey      EntityKind = 0x04
	EntityKindUserReaderWithKey    EntityKind = 0x07
	EntityKindBuiltinParticipant   EntityKind = 0xC1
	EntityKindBuiltinWriterWithKey EntityKind = 0xC2
	EntityKindBuiltinReaderWithKey EntityKind = 0xC7
)

// EntityId is a 3-byte entity key plus a 1-byte entity kind.
type EntityId struct {
	Key  [3]byte
	Kind EntityKind
}

// Well-known built-in EntityIds. The numeric literals match
// the RTPS specification's own well-known entity id assignments.
var (
	EntityIdSPDPWriter = EntityId{Key: [3]byte{0x00, 0x01, 0x00}, Kind: 0xC2} // 0x000100C2
	EntityIdSPDPReader = EntityId{Key: [3]byte{0x00, 0x01, 0x00}, Kind: 0xC7} // 0x000100C7

	EntityIdSEDPPubWriter = EntityId{Key: [3]byte{0x00, 0x03, 0x00}, Kind: 0xC2} // 0x000003C2
	EntityIdSEDPPubReader = EntityId{Key: [3]byte{0x00, 0x03, 0x00}, Kind: 0xC7} // 0x000003C7

	EntityIdSEDPSubWriter = EntityId{Key: [3]byte{0x00, 0x04, 0x00}, Kind: 0xC2} // 0x000004C2
	EntityIdSEDPSubReader = EntityId{Key: [3]byte{0x00, 0x04, 0x00}, Kind: 0xC7} // 0x000004C7

	EntityIdParticipant = EntityId{Key: [3]byte{0x00, 0x00, 0x01}, Kind: EntityKindBuiltinParticipant} // 0x000001c1
)

// ParseEntityId decodes a 4-byte big-endian wire EntityId.
func ParseEntityId(b []byte) (EntityId, error) {
	if len(b) < EntityIdSize {
		return EntityId{}, fmt.Errorf("guid: entity id needs %d bytes, got %d", EntityIdSize, len(b))
	}
	return EntityId{Key: [3]byte{b[0], b[1], b[2]}, Kind: EntityKind(b[3])}, nil
}

// Value encodes the EntityId to its 4-byte big-endian wire form.
func (e EntityId) Value() [EntityIdSize]byte {
	return [4]byte{e.Key[0], e.Key[1], e.Key[2], byte(e.Kind)}
}

func (e EntityId) String() string {
	return fmt.Sprintf("%02x%02x%02x.%02x", e.Key[0], e.Key[1], e.Key[2], byte(e.Kind))
}

// IsBuiltin reports whether this EntityId belongs to one of the SPDP/SEDP
// built-in endpoints.
func (e EntityId) IsBuiltin() bool {
	switch e.Kind {
	case EntityKindBuiltinParticipant, EntityKindBuiltinWriterWithKey, EntityKindBuiltinReaderWithKey:
		return true
	default:
		return false
	}
}

// IsWriter reports whether this EntityId's kind identifies a writer
// (publishing) endpoint.
func (e EntityId) IsWriter() bool {
	switch e.Kind {
	case EntityKindUserWriterWithKey, EntityKindUserWriterNoKey, EntityKindBuiltinWriterWithKey:
		return true
	default:
		return false
	}
}

// IsReader reports whether this EntityId's kind identifies a reader
// (subscribing) endpoint.
func (e EntityId) IsReader() bool {
	switch e.Kind {
	case EntityKindUserReaderWithKey, EntityKindUserReaderNoKey, EntityKindBuiltinReaderWithKey:
		return true
	default:
		return false
	}
}

// Guid globally identifies a participant or endpoint: GuidPrefix ∥ EntityId.
type Guid struct {
	Prefix GuidPrefix
	Entity EntityId
}

func (g Guid) String() string {
	return fmt.Sprintf("%s:%s", g.Prefix, g.Entity)
}

// Less provides the lexicographic Guid ordering used for tie
// breaks: ownership strength ties and DestinationOrder ties.
func (g Guid) Less(other Guid) bool {
	for i := 0; i < GuidPrefixSize; i++ {
		if g.Prefix[i] != other.Prefix[i] {
			return g.Prefix[i] < other.Prefix[i]
		}
	}
	for i := 0; i < 3; i++ {
		if g.Entity.Key[i] != other.Entity.Key[i] {
			return g.Entity.Key[i] < other.Entity.Key[i]
		}
	}
	return g.Entity.Kind < other.Entity.Kind
}

// SequenceNumber is a signed 64-bit, per-writer monotonically increasing
// counter starting at 1.
type SequenceNumber int64

// Unknown is the reserved SEQUENCENUMBER_UNKNOWN sentinel.
const Unknown SequenceNumber = -1

// SequenceNumberFirst is the first value a writer's counter takes.
const SequenceNumberFirst SequenceNumber = 1

// InstanceHandle locally identifies a keyed instance within an endpoint,
// derived deterministically from the CDR-encoded key fields via MD5 so
// the same key yields the same handle across restarts
// within a process and across interoperating vendors.
type InstanceHandle [16]byte

// SingletonInstanceHandle is used for unkeyed topics, where every sample
// belongs to the single implicit instance.
var SingletonInstanceHandle InstanceHandle

// ComputeInstanceHandle derives the InstanceHandle from a sample's
// CDR-encoded key bytes.
func ComputeInstanceHandle(keyBytes []byte) InstanceHandle {
	return md5.Sum(keyBytes)
}

func (h InstanceHandle) String() string {
	return fmt.Sprintf("%x", [16]byte(h))
}
