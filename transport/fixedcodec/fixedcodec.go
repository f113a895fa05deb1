// Package fixedcodec implements transport.Codec and transport.
// TypeDescriptor for a single fixed, test-only shape: a sample is a
// struct with a string Key and a []byte Value. It exists so tests
// elsewhere in the module can exercise the write/reliability/discovery
// paths without depending on a real IDL-generated codec (transport.
// Codec is an explicit Non-goal of the core itself).
package fixedcodec

import (
	"crypto/md5"
	"errors"
	"fmt"

	"github.com/rtpscore/rtpscore/transport"
)

// Sample is the one shape this codec knows how to (de)serialize.
type Sample struct {
	Key   string
	Value []byte
}

// Descriptor is a transport.TypeDescriptor for Sample.
type Descriptor struct {
	Name string
}

func (d Descriptor) TypeName() string { return d.Name }

func (d Descriptor) KeyFieldDescriptorHash() [16]byte {
	return md5.Sum([]byte("fixedcodec.Sample.Key"))
}

// Codec serializes a Sample as: 2-byte big-endian key length, key bytes,
// then the value bytes verbatim. The encapsulation id is accepted but
// ignored — this codec does not vary its wire shape by encapsulation,
// since it exists only to exercise the surrounding machinery.
type Codec struct{}

func (Codec) Encode(desc transport.TypeDescriptor, _ uint16, sample interface{}) ([]byte, error) {
	s, ok := sample.(Sample)
	if !ok {
		return nil, fmt.Errorf("fixedcodec: Encode expects fixedcodec.Sample, got %T", sample)
	}
	if len(s.Key) > 0xFFFF {
		return nil, errors.New("fixedcodec: key too long")
	}
	out := make([]byte, 2, 2+len(s.Key)+len(s.Value))
	out[0] = byte(len(s.Key) >> 8)
	out[1] = byte(len(s.Key))
	out = append(out, s.Key...)
	out = append(out, s.Value...)
	return out, nil
}

func (Codec) Decode(desc transport.TypeDescriptor, _ uint16, data []byte, out interface{}) error {
	dst, ok := out.(*Sample)
	if !ok {
		return fmt.Errorf("fixedcodec: Decode expects *fixedcodec.Sample, got %T", out)
	}
	if len(data) < 2 {
		return errors.New("fixedcodec: truncated sample")
	}
	keyLen := int(data[0])<<8 | int(data[1])
	if len(data) < 2+keyLen {
		return errors.New("fixedcodec: truncated key")
	}
	dst.Key = string(data[2 : 2+keyLen])
	dst.Value = append([]byte(nil), data[2+keyLen:]...)
	return nil
}

func (Codec) KeyBytes(desc transport.TypeDescriptor, sample interface{}) ([]byte, error) {
	s, ok := sample.(Sample)
	if !ok {
		return nil, fmt.Errorf("fixedcodec: KeyBytes expects fixedcodec.Sample, got %T", sample)
	}
	return []byte(s.Key), nil
}
