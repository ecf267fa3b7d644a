package helper

// Dominates reports whether vc pointwise dominates other: for every
// index j, vc[j] >= other[j]. Used by RCO's drain procedure to decide
// whether a pending envelope's causal predecessors have all already
// been delivered. A shorter other is treated as zero-padded.
func Dominates(vc []uint64, other []uint64) bool {
	for j, ov := range other {
		if j >= len(vc) {
			if ov > 0 {
				return false
			}
			continue
		}
		if vc[j] < ov {
			return false
		}
	}
	return true
}
