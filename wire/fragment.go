package wire

// FragmentPayload splits a serialized sample into fragments of at most
// fragmentSize bytes each . Fragment numbers are 1-based, as
// RTPS's fragmentStartingNum requires.
func FragmentPayload(payload []byte, fragmentSize int) [][]byte {
	if fragmentSize <= 0 || fragmentSize > EffectiveFragmentCap {
		fragmentSize = EffectiveFragmentCap
	}
	if len(payload) == 0 {
		return nil
	}
	n := (len(payload) + fragmentSize - 1) / fragmentSize
	frags := make([][]byte, 0, n)
	for off := 0; off < len(payload); off += fragmentSize {
		end := off + fragmentSize
		if end > len(payload) {
			end = len(payload)
		}
		frags = append(frags, payload[off:end])
	}
	return frags
}

// Reassembler accumulates DATA_FRAG submessages for a single (writer,
// seq) sample until all fragments are present, then yields the
// reassembled payload.
type Reassembler struct {
	sampleSize    uint32
	fragmentSize  uint16
	encapsulation EncapsulationId
	fragments     map[uint32][]byte // 1-based fragment number -> bytes
	totalFrags    uint32
}

// NewReassembler starts tracking a fragmented sample announced by the
// first DATA_FRAG or HEARTBEAT_FRAG seen for it.
func NewReassembler(sampleSize uint32, fragmentSize uint16, encapsulation EncapsulationId) *Reassembler {
	total := uint32(0)
	if fragmentSize > 0 {
		total = (sampleSize + uint32(fragmentSize) - 1) / uint32(fragmentSize)
	}
	return &Reassembler{
		sampleSize:    sampleSize,
		fragmentSize:  fragmentSize,
		encapsulation: encapsulation,
		fragments:     make(map[uint32][]byte),
		totalFrags:    total,
	}
}

// AddFragment records one or more consecutive fragments starting at
// startingNum. Duplicate fragments are idempotently overwritten.
func (r *Reassembler) AddFragment(startingNum uint32, count uint16, data []byte) {
	perFrag := int(r.fragmentSize)
	if perFrag <= 0 {
		perFrag = len(data)
	}
	for i := 0; i < int(count); i++ {
		fragNum := startingNum + uint32(i)
		start := i * perFrag
		end := start + perFrag
		if end > len(data) {
			end = len(data)
		}
		if start >= len(data) {
			break
		}
		r.fragments[fragNum] = append([]byte(nil), data[start:end]...)
	}
}

// Complete reports whether every fragment of the sample has been received.
func (r *Reassembler) Complete() bool {
	if r.totalFrags == 0 {
		return false
	}
	return uint32(len(r.fragments)) >= r.totalFrags
}

// Missing returns the 1-based fragment numbers not yet received, for use
// in a NACK_FRAG request.
func (r *Reassembler) Missing() []uint32 {
	var missing []uint32
	for i := uint32(1); i <= r.totalFrags; i++ {
		if _, ok := r.fragments[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

// Reassemble concatenates fragments 1..totalFrags in order. It panics if
// Complete() is false; callers must check first.
func (r *Reassembler) Reassemble() []byte {
	if !r.Complete() {
		panic("wire: Reassemble called before every fragment arrived")
	}
	out := make([]byte, 0, r.sampleSize)
	for i := uint32(1); i <= r.totalFrags; i++ {
		out = append(out, r.fragments[i]...)
	}
	return out
}
