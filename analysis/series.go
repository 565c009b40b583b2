package analysis

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Bin counts used by the histogram analysis modes.
const (
	mismatchBins          = 100
	misclassificationBins = 50
)

// Series is a labelled time series keyed by epoch index.
type Series struct {
	Label string
	X     []int
	Y     []float64
}

// Histogram is a labelled binned distribution: Counts[i] covers the interval
// [Dividers[i], Dividers[i+1]).
type Histogram struct {
	Label    string
	Counts   []float64
	Dividers []float64
}

// MovingAverage smooths y with a box filter of the given window, keeping only
// fully covered positions: the result has length len(y)-window+1. A window of
// one or less returns y unchanged.
func MovingAverage(y []float64, window int) []float64 {
	if window <= 1 {
		return y
	}
	if window > len(y) {
		return nil
	}
	out := make([]float64, len(y)-window+1)
	sum := floats.Sum(y[:window])
	out[0] = sum / float64(window)
	for i := 1; i < len(out); i++ {
		sum += y[i+window-1] - y[i-1]
		out[i] = sum / float64(window)
	}
	return out
}

// windowCenters maps smoothed positions back onto the epoch index sequence:
// outLen evenly spaced points from window/2 to n-window/2, truncated to ints
// and looked up in iters.
func windowCenters(iters []int, n, window, outLen int) []int {
	x := make([]int, outLen)
	lo, hi := float64(window)/2, float64(n)-float64(window)/2
	for i := range x {
		f := lo
		if outLen > 1 {
			f = lo + (hi-lo)*float64(i)/float64(outLen-1)
		}
		x[i] = iters[int(f)]
	}
	return x
}

// smooth applies the optional moving average to y and pairs it with the
// remapped x-axis. A window longer than the series cannot produce any fully
// covered position and is rejected up front.
func smooth(y []float64, iters []int, window int) ([]int, []float64, error) {
	if window <= 1 {
		return iters, y, nil
	}
	if window > len(y) {
		return nil, nil, fmt.Errorf("%w: smoothing window %d exceeds %d epochs",
			ErrUnsupportedConfiguration, window, len(y))
	}
	sy := MovingAverage(y, window)
	return windowCenters(iters, len(y), window, len(sy)), sy, nil
}

// Stability reports, per matrix, the fraction of samples whose correctness is
// unchanged between consecutive epochs, alongside a companion accuracy
// series. Both series have length epochs-1 and start at the second epoch.
func Stability(mats []*CorrectnessMatrix, labels []string, iters []int) ([]Series, error) {
	if err := checkShapes(mats); err != nil {
		return nil, err
	}
	epochs, samples := mats[0].Epochs(), mats[0].Samples()
	if epochs < 2 {
		return nil, fmt.Errorf("%w: stability needs at least two epochs", ErrUnsupportedConfiguration)
	}
	if labels == nil {
		labels = defaultLabels(len(mats))
	}
	if iters == nil {
		iters = defaultIters(epochs)
	}
	if err := checkIters(mats, iters); err != nil {
		return nil, err
	}

	out := make([]Series, 0, 2*len(mats))
	for i, m := range mats {
		match := make([]float64, epochs-1)
		for e := 1; e < epochs; e++ {
			var same float64
			for n := 0; n < samples; n++ {
				if m.At(e, n) == m.At(e-1, n) {
					same++
				}
			}
			match[e-1] = same / float64(samples)
		}
		out = append(out, Series{Label: labels[i], X: iters[1:], Y: match})
	}
	for i, m := range mats {
		acc := make([]float64, epochs-1)
		for e := 1; e < epochs; e++ {
			var correct float64
			for n := 0; n < samples; n++ {
				correct += m.At(e, n)
			}
			acc[e-1] = correct / float64(samples)
		}
		out = append(out, Series{Label: labels[i] + " (Acc.)", X: iters[1:], Y: acc})
	}
	return out, nil
}

// Mismatch reports the per-epoch disagreement rate between every matrix pair,
// optionally smoothed with a moving average of the given window.
func Mismatch(mats []*CorrectnessMatrix, labels []string, iters []int, window int) ([]Series, error) {
	if err := checkShapes(mats); err != nil {
		return nil, err
	}
	if len(mats) < 2 {
		return nil, fmt.Errorf("%w: mismatch needs at least two matrices", ErrUnsupportedConfiguration)
	}
	epochs, samples := mats[0].Epochs(), mats[0].Samples()
	if labels == nil {
		labels = defaultLabels(len(mats))
	}
	if iters == nil {
		iters = defaultIters(epochs)
	}
	if err := checkIters(mats, iters); err != nil {
		return nil, err
	}

	var out []Series
	for i := 0; i < len(mats); i++ {
		for j := i + 1; j < len(mats); j++ {
			y := make([]float64, epochs)
			for e := 0; e < epochs; e++ {
				var diff float64
				for n := 0; n < samples; n++ {
					if mats[i].At(e, n) != mats[j].At(e, n) {
						diff++
					}
				}
				y[e] = diff / float64(samples)
			}
			x, sy, err := smooth(y, iters, window)
			if err != nil {
				return nil, err
			}
			out = append(out, Series{
				Label: fmt.Sprintf("%s - %s", labels[i], labels[j]),
				X:     x,
				Y:     sy,
			})
		}
	}
	return out, nil
}

// MismatchHistogram bins the per-sample disagreement rate between exactly two
// matrices, measured over all epochs.
func MismatchHistogram(mats []*CorrectnessMatrix) (*Histogram, error) {
	if err := checkShapes(mats); err != nil {
		return nil, err
	}
	if len(mats) != 2 {
		return nil, fmt.Errorf("%w: mismatch histogram needs exactly two matrices, got %d",
			ErrUnsupportedConfiguration, len(mats))
	}

	a, b := mats[0], mats[1]
	epochs, samples := a.Epochs(), a.Samples()
	rates := make([]float64, samples)
	for n := 0; n < samples; n++ {
		var diff float64
		for e := 0; e < epochs; e++ {
			if a.At(e, n) != b.At(e, n) {
				diff++
			}
		}
		rates[n] = diff / float64(epochs)
	}

	h := histogram(rates, mismatchBins)
	return &h, nil
}

// Misclassification reports the per-epoch error rate per matrix and, for each
// pair, the co-misclassification rate: the fraction of samples both matrices
// get wrong together.
func Misclassification(mats []*CorrectnessMatrix, labels []string, iters []int, window int) ([]Series, error) {
	if err := checkShapes(mats); err != nil {
		return nil, err
	}
	epochs, samples := mats[0].Epochs(), mats[0].Samples()
	if labels == nil {
		labels = defaultLabels(len(mats))
	}
	if iters == nil {
		iters = defaultIters(epochs)
	}
	if err := checkIters(mats, iters); err != nil {
		return nil, err
	}

	var out []Series
	for i, m := range mats {
		y := make([]float64, epochs)
		for e := 0; e < epochs; e++ {
			var wrong float64
			for n := 0; n < samples; n++ {
				wrong += 1 - m.At(e, n)
			}
			y[e] = wrong / float64(samples)
		}
		x, sy, err := smooth(y, iters, window)
		if err != nil {
			return nil, err
		}
		out = append(out, Series{Label: labels[i], X: x, Y: sy})
	}
	for i := 0; i < len(mats); i++ {
		for j := i + 1; j < len(mats); j++ {
			y := make([]float64, epochs)
			for e := 0; e < epochs; e++ {
				var both float64
				for n := 0; n < samples; n++ {
					if mats[i].At(e, n) == mats[j].At(e, n) && mats[i].At(e, n) == 0 {
						both++
					}
				}
				y[e] = both / float64(samples)
			}
			x, sy, err := smooth(y, iters, window)
			if err != nil {
				return nil, err
			}
			out = append(out, Series{
				Label: fmt.Sprintf("%s and %s", labels[i], labels[j]),
				X:     x,
				Y:     sy,
			})
		}
	}
	return out, nil
}

// MisclassificationHistogram bins each matrix's per-sample error rate,
// measured over all epochs except the first (epoch 0 predictions come from
// an untrained model and would dominate the distribution).
func MisclassificationHistogram(mats []*CorrectnessMatrix, labels []string) ([]Histogram, error) {
	if err := checkShapes(mats); err != nil {
		return nil, err
	}
	if len(mats) != 2 {
		return nil, fmt.Errorf("%w: misclassification histogram needs exactly two matrices, got %d",
			ErrUnsupportedConfiguration, len(mats))
	}
	epochs, samples := mats[0].Epochs(), mats[0].Samples()
	if epochs < 2 {
		return nil, fmt.Errorf("%w: misclassification histogram needs at least two epochs", ErrUnsupportedConfiguration)
	}
	if labels == nil {
		labels = defaultLabels(len(mats))
	}

	out := make([]Histogram, len(mats))
	for i, m := range mats {
		rates := make([]float64, samples)
		for n := 0; n < samples; n++ {
			var wrong float64
			for e := 1; e < epochs; e++ {
				wrong += 1 - m.At(e, n)
			}
			rates[n] = wrong / float64(epochs-1)
		}
		out[i] = histogram(rates, misclassificationBins)
		out[i].Label = labels[i]
	}
	return out, nil
}

// histogram bins values into equal-width bins spanning their range. A
// degenerate all-equal input gets a unit-width range centred on the value.
func histogram(values []float64, bins int) Histogram {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}

	dividers := make([]float64, bins+1)
	floats.Span(dividers, lo, hi)
	// The top divider is exclusive in stat.Histogram; nudge it so the maximum
	// value lands in the last bin.
	dividers[bins] = math.Nextafter(hi, math.Inf(1))

	counts := stat.Histogram(nil, dividers, sorted, nil)
	return Histogram{Counts: counts, Dividers: dividers}
}
