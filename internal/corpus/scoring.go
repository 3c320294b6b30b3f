package corpus

// NoisyOR combines independent weighted signals as 1 - Π(1 - w).
// The result never decreases when a signal is added, never exceeds 1, and is
// exactly 1 when any weight is 1.
func NoisyOR(weights ...float64) float64 {
	if len(weights) == 0 {
		return 0
	}

	miss := 1.0
	for _, w := range weights {
		switch {
		case w <= 0:
			continue
		case w >= 1:
			return 1
		}
		miss *= 1 - w
	}

	score := 1 - miss
	if score < 0 {
		return 0
	}
	return score
}
