package search

// Normalizer rescales one side's candidate scores before fusion so that
// vector similarities and BM25 scores become comparable.
type Normalizer interface {
	// Normalize maps raw scores to [0, 1]. The returned slice is the same
	// length as the input.
	Normalize(scores []float64) []float64
}

// MinMaxNormalizer rescales scores linearly over the candidate list:
// the minimum maps to 0 and the maximum to 1. When every score is equal
// the whole list maps to 1, so a single-candidate side still contributes
// its full weight.
type MinMaxNormalizer struct{}

// Normalize implements Normalizer.
func (MinMaxNormalizer) Normalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}

	min, max := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}

	out := make([]float64, len(scores))
	if max == min {
		for i := range out {
			out[i] = 1
		}
		return out
	}

	span := max - min
	for i, s := range scores {
		out[i] = (s - min) / span
	}
	return out
}

var _ Normalizer = MinMaxNormalizer{}
