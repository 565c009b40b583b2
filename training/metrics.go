package training

import (
	"fmt"

	"gorgonia.org/tensor"
)

// LossMetric accumulates a running mean loss weighted by batch size.
type LossMetric struct {
	sum   float64
	count int
}

// Update folds one batch's mean loss into the running mean.
func (m *LossMetric) Update(loss float64, batchSize int) {
	m.sum += loss * float64(batchSize)
	m.count += batchSize
}

// Compute returns the running mean, or 0 if no samples were accumulated.
func (m *LossMetric) Compute() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// Reset clears the running state for the next epoch.
func (m *LossMetric) Reset() {
	m.sum = 0
	m.count = 0
}

// AccuracyMetric accumulates running top-k accuracy. When prediction tracking
// is enabled it also records the per-sample correctness vector for the current
// epoch, in the order batches were fed in.
type AccuracyMetric struct {
	k          int
	trackPreds bool

	correct int
	total   int
	preds   []bool
}

// NewAccuracyMetric creates a top-k accuracy accumulator.
func NewAccuracyMetric(k int, trackPreds bool) *AccuracyMetric {
	if k <= 0 {
		k = 1
	}
	return &AccuracyMetric{k: k, trackPreds: trackPreds}
}

// Update folds one batch of [batch, classes] scores and labels into the
// running accuracy. A prediction is correct when the true label is among the
// k highest-scored classes.
func (m *AccuracyMetric) Update(output *tensor.Dense, labels []int32) error {
	shape := output.Shape()
	if len(shape) != 2 {
		return fmt.Errorf("accuracy expects 2D output [batch_size, num_classes], got shape %v", shape)
	}
	batchSize, numClasses := shape[0], shape[1]
	if len(labels) != batchSize {
		return fmt.Errorf("labels length mismatch: expected %d, got %d", batchSize, len(labels))
	}
	if m.k > numClasses {
		return fmt.Errorf("top-%d accuracy requires at least %d classes, got %d", m.k, m.k, numClasses)
	}

	data := output.Data().([]float32)
	for i := 0; i < batchSize; i++ {
		row := data[i*numClasses : (i+1)*numClasses]
		hit := inTopK(row, int(labels[i]), m.k)
		if hit {
			m.correct++
		}
		if m.trackPreds {
			m.preds = append(m.preds, hit)
		}
	}
	m.total += batchSize
	return nil
}

// inTopK reports whether row[target] is among the k largest scores. Ties are
// counted in the target's favor, matching an argmax comparison for k=1.
func inTopK(row []float32, target, k int) bool {
	if target < 0 || target >= len(row) {
		return false
	}
	score := row[target]
	higher := 0
	for j, v := range row {
		if j != target && v > score {
			higher++
			if higher >= k {
				return false
			}
		}
	}
	return true
}

// Compute returns the running accuracy in [0, 1], or 0 if no samples yet.
func (m *AccuracyMetric) Compute() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.correct) / float64(m.total)
}

// Preds returns the per-sample correctness vector accumulated since the last
// Reset. It must be read after all batches of the epoch were fed in and
// before the next Reset; the returned slice is a copy.
func (m *AccuracyMetric) Preds() []bool {
	out := make([]bool, len(m.preds))
	copy(out, m.preds)
	return out
}

// Reset clears the running state for the next epoch.
func (m *AccuracyMetric) Reset() {
	m.correct = 0
	m.total = 0
	m.preds = m.preds[:0]
}
