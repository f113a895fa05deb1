package qos

import "fmt"

// Incompatibility names the first QoS policy that failed compatibility.
// A nil *Incompatibility means the pair is compatible.
type Incompatibility struct {
	Policy string
}

func (i *Incompatibility) Error() string {
	return fmt.Sprintf("incompatible QoS: %s", i.Policy)
}

// policy name constants, used as Incompatibility.Policy values so every
// incompatible-QoS report spells the policy the same way.
const (
	PolicyReliability      = "RELIABILITY"
	PolicyDurability       = "DURABILITY"
	PolicyDeadline         = "DEADLINE"
	PolicyLiveliness       = "LIVELINESS"
	PolicyOwnership        = "OWNERSHIP"
	PolicyDestinationOrder = "DESTINATION_ORDER"
	PolicyPresentation     = "PRESENTATION"
	PolicyPartition        = "PARTITION"
	PolicyTopic            = "TOPIC"
)

// Compatible applies every necessary-condition rule between
// a local writer's offered QoS and a remote reader's requested QoS (or
// vice versa — the rules are written writer-offered >= reader-requested
// and are symmetric under Compatible(r, w) with roles swapped). It
// returns the first failing policy, or nil if every rule passes.
func Compatible(writer, reader Endpoint) *Incompatibility {
	if writer.Reliability.Kind < reader.Reliability.Kind {
		return &Incompatibility{PolicyReliability}
	}
	wDurability, _ := writer.Durability.Kind.Normalize()
	rDurability, _ := reader.Durability.Kind.Normalize()
	if wDurability < rDurability {
		return &Incompatibility{PolicyDurability}
	}
	if reader.Deadline.Period > 0 {
		if writer.Deadline.Period == 0 || writer.Deadline.Period > reader.Deadline.Period {
			return &Incompatibility{PolicyDeadline}
		}
	}
	if writer.Liveliness.Kind < reader.Liveliness.Kind {
		return &Incompatibility{PolicyLiveliness}
	}
	if writer.Liveliness.LeaseDuration > reader.Liveliness.LeaseDuration {
		return &Incompatibility{PolicyLiveliness}
	}
	if writer.Ownership.Kind != reader.Ownership.Kind {
		return &Incompatibility{PolicyOwnership}
	}
	if writer.DestinationOrder.Kind < reader.DestinationOrder.Kind {
		return &Incompatibility{PolicyDestinationOrder}
	}
	if !PartitionsIntersect(writer.Partition, reader.Partition) {
		return &Incompatibility{PolicyPartition}
	}
	return nil
}

// GroupCompatible applies the Presentation compatibility rule between a
// writer's Publisher group and a reader's Subscriber group.
func GroupCompatible(writerGroup, readerGroup Group) *Incompatibility {
	if writerGroup.Presentation.AccessScope < readerGroup.Presentation.AccessScope {
		return &Incompatibility{PolicyPresentation}
	}
	if readerGroup.Presentation.CoherentAccess && !writerGroup.Presentation.CoherentAccess {
		return &Incompatibility{PolicyPresentation}
	}
	if readerGroup.Presentation.OrderedAccess && !writerGroup.Presentation.OrderedAccess {
		return &Incompatibility{PolicyPresentation}
	}
	return nil
}

// PartitionsIntersect reports whether two partition sets have non-empty
// intersection under '*'/'?' wildcard matching. Two empty
// sets are defined to match each other.
func PartitionsIntersect(a, b PartitionPolicy) bool {
	if len(a.Names) == 0 && len(b.Names) == 0 {
		return true
	}
	for _, x := range a.Names {
		for _, y := range b.Names {
			if partitionMatch(x, y) {
				return true
			}
		}
	}
	return false
}

// partitionMatch applies shell-glob-style '*'/'?' matching symmetrically:
// either side may carry wildcards.
func partitionMatch(a, b string) bool {
	return globMatch(a, b) || globMatch(b, a)
}

// globMatch reports whether text matches pattern, where pattern may use
// '*' (any run of characters, including none) and '?' (any single
// character).
func globMatch(pattern, text string) bool {
	return globMatchRunes([]rune(pattern), []rune(text))
}

func globMatchRunes(pattern, text []rune) bool {
	// Classic DP-free greedy matcher with backtracking on '*', which is
	// fine here since partition names are short.
	var pIdx, tIdx int
	var starIdx = -1
	var matchIdx int
	for tIdx < len(text) {
		if pIdx < len(pattern) && (pattern[pIdx] == '?' || pattern[pIdx] == text[tIdx]) {
			pIdx++
			tIdx++
		} else if pIdx < len(pattern) && pattern[pIdx] == '*' {
			starIdx = pIdx
			matchIdx = tIdx
			pIdx++
		} else if starIdx != -1 {
			pIdx = starIdx + 1
			matchIdx++
			tIdx = matchIdx
		} else {
			return false
		}
	}
	for pIdx < len(pattern) && pattern[pIdx] == '*' {
		pIdx++
	}
	return pIdx == len(pattern)
}
