package wire

import (
	"encoding/binary"

	"github.com/rtpscore/rtpscore/guid"
)

// seqNumWireSize is the RTPS wire size of a SequenceNumber: a signed
// 32-bit high word followed by an unsigned 32-bit low word.
const seqNumWireSize = 8

func putSequenceNumber(buf []byte, order binary.ByteOrder, sn guid.SequenceNumber) {
	v := uint64(sn)
	order.PutUint32(buf[0:4], uint32(v>>32))
	order.PutUint32(buf[4:8], uint32(v))
}

func appendSequenceNumber(buf []byte, order binary.ByteOrder, sn guid.SequenceNumber) []byte {
	var tmp [seqNumWireSize]byte
	putSequenceNumber(tmp[:], order, sn)
	return append(buf, tmp[:]...)
}

func getSequenceNumber(buf []byte, order binary.ByteOrder) guid.SequenceNumber {
	high := order.Uint32(buf[0:4])
	low := order.Uint32(buf[4:8])
	return guid.SequenceNumber(int64(high)<<32 | int64(low))
}

// appendBitmap encodes a SequenceNumberSet as (base seq, numBits uint32,
// ceil(numBits/32) bitmap words), matching the RTPS ACKNACK/GAP/NACK_FRAG
// wire shape.
func appendBitmap(buf []byte, order binary.ByteOrder, set SequenceNumberSet) []byte {
	buf = appendSequenceNumber(buf, order, set.Base)
	numBits := uint32(len(set.Bits))
	var nb [4]byte
	order.PutUint32(nb[:], numBits)
	buf = append(buf, nb[:]...)
	words := (len(set.Bits) + 31) / 32
	for w := 0; w < words; w++ {
		var word uint32
		for b := 0; b < 32; b++ {
			idx := w*32 + b
			if idx >= len(set.Bits) || !set.Bits[idx] {
				continue
			}
			// Bit 0 of a word is the most-significant bit in RTPS's
			// bitmap convention (first bit = base sequence number).
			word |= 1 << uint(31-b)
		}
		var wb [4]byte
		order.PutUint32(wb[:], word)
		buf = append(buf, wb[:]...)
	}
	return buf
}

func parseBitmap(buf []byte, order binary.ByteOrder) (SequenceNumberSet, []byte, bool) {
	if len(buf) < seqNumWireSize+4 {
		return SequenceNumberSet{}, nil, false
	}
	base := getSequenceNumber(buf, order)
	buf = buf[seqNumWireSize:]
	numBits := int(order.Uint32(buf[0:4]))
	buf = buf[4:]
	if numBits < 0 || numBits > MaxBitmapBits {
		return SequenceNumberSet{}, nil, false
	}
	words := (numBits + 31) / 32
	if len(buf) < words*4 {
		return SequenceNumberSet{}, nil, false
	}
	bits := make([]bool, numBits)
	for w := 0; w < words; w++ {
		word := order.Uint32(buf[w*4 : w*4+4])
		for b := 0; b < 32; b++ {
			idx := w*32 + b
			if idx >= numBits {
				break
			}
			if word&(1<<uint(31-b)) != 0 {
				bits[idx] = true
			}
		}
	}
	return SequenceNumberSet{Base: base, Bits: bits}, buf[words*4:], true
}
