package analysis

import (
	"fmt"
	"math/rand"
	"sort"
)

// RankPolicy selects how persistence ranks samples.
type RankPolicy int

const (
	// RankMismatch orders by per-sample agreement rate, lowest first.
	RankMismatch RankPolicy = iota
	// RankMisclassification orders by summed correctness, lowest first.
	RankMisclassification
	// RankStability orders by summed epoch-to-epoch stability, lowest first.
	RankStability
	// RankRandom draws an unordered sample without replacement. It is the
	// explicit fallback for unrecognized policy names.
	RankRandom
)

// ParseRankPolicy maps a policy name onto its RankPolicy. Unknown names fall
// back to RankRandom rather than failing.
func ParseRankPolicy(s string) RankPolicy {
	switch s {
	case "mismatch":
		return RankMismatch
	case "misclassification":
		return RankMisclassification
	case "stability":
		return RankStability
	default:
		return RankRandom
	}
}

func (p RankPolicy) String() string {
	switch p {
	case RankMismatch:
		return "mismatch"
	case RankMisclassification:
		return "misclassification"
	case RankStability:
		return "stability"
	default:
		return "random"
	}
}

// PersistenceResult holds the selected sample indices and a renderable strip:
// for each selected sample, one correctness row per matrix followed by a
// separator row of -1, each row spanning the epoch axis.
type PersistenceResult struct {
	Indices []int
	Strip   [][]float64
}

// Persistence ranks the samples of exactly two correctness matrices under the
// given policy and returns the nSamples lowest-scoring indices together with
// the strip layout. Ties keep their original sample order. The rng is only
// consulted for RankRandom; a nil rng uses a fixed seed.
func Persistence(mats []*CorrectnessMatrix, nSamples int, policy RankPolicy, rng *rand.Rand) (*PersistenceResult, error) {
	if err := checkShapes(mats); err != nil {
		return nil, err
	}
	if len(mats) != 2 {
		return nil, fmt.Errorf("%w: persistence needs exactly two matrices, got %d",
			ErrUnsupportedConfiguration, len(mats))
	}
	a, b := mats[0], mats[1]
	epochs, samples := a.Epochs(), a.Samples()
	if nSamples <= 0 || nSamples > samples {
		return nil, fmt.Errorf("%w: cannot select %d of %d samples",
			ErrUnsupportedConfiguration, nSamples, samples)
	}

	var indices []int
	switch policy {
	case RankMismatch:
		scores := make([]float64, samples)
		for n := 0; n < samples; n++ {
			var agree float64
			for e := 0; e < epochs; e++ {
				if a.At(e, n) == b.At(e, n) {
					agree++
				}
			}
			scores[n] = agree / float64(epochs)
		}
		indices = argsort(scores)[:nSamples]
	case RankMisclassification:
		scores := make([]float64, samples)
		for n := 0; n < samples; n++ {
			var sum float64
			for e := 0; e < epochs; e++ {
				sum += a.At(e, n) + b.At(e, n)
			}
			scores[n] = sum / float64(epochs)
		}
		indices = argsort(scores)[:nSamples]
	case RankStability:
		if epochs < 2 {
			return nil, fmt.Errorf("%w: stability ranking needs at least two epochs", ErrUnsupportedConfiguration)
		}
		scores := make([]float64, samples)
		for n := 0; n < samples; n++ {
			var same float64
			for e := 1; e < epochs; e++ {
				if a.At(e, n) == a.At(e-1, n) {
					same++
				}
				if b.At(e, n) == b.At(e-1, n) {
					same++
				}
			}
			scores[n] = same / float64(epochs-1)
		}
		indices = argsort(scores)[:nSamples]
	default:
		if rng == nil {
			rng = rand.New(rand.NewSource(1))
		}
		indices = rng.Perm(samples)[:nSamples]
	}

	strip := make([][]float64, 3*nSamples)
	for i, n := range indices {
		rowA := make([]float64, epochs)
		rowB := make([]float64, epochs)
		sep := make([]float64, epochs)
		for e := 0; e < epochs; e++ {
			rowA[e] = a.At(e, n)
			rowB[e] = b.At(e, n)
			sep[e] = -1
		}
		strip[3*i] = rowA
		strip[3*i+1] = rowB
		strip[3*i+2] = sep
	}

	return &PersistenceResult{Indices: indices, Strip: strip}, nil
}

// argsort returns the sample indices ordered by ascending score, with ties
// kept in index order.
func argsort(scores []float64) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return scores[idx[i]] < scores[idx[j]]
	})
	return idx
}
