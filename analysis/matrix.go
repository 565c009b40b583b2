// Package analysis computes stability, mismatch, misclassification and
// persistence statistics over epoch-by-sample prediction correctness
// matrices. All functions are pure: they own no state beyond their inputs.
package analysis

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrShapeMismatch indicates input matrices with differing shapes.
	ErrShapeMismatch = errors.New("correctness matrices differ in shape")

	// ErrUnsupportedConfiguration indicates an analysis mode invoked with an
	// unsupported number of inputs.
	ErrUnsupportedConfiguration = errors.New("unsupported analysis configuration")
)

// CorrectnessMatrix is an [epochs x samples] 0/1 matrix: entry (e, n) is 1
// when sample n was classified correctly at epoch e.
type CorrectnessMatrix struct {
	data *mat.Dense
}

// Stack builds a correctness matrix from per-epoch correctness vectors, one
// row per epoch. All vectors must have the same length.
func Stack(epochs [][]bool) (*CorrectnessMatrix, error) {
	if len(epochs) == 0 || len(epochs[0]) == 0 {
		return nil, fmt.Errorf("%w: empty prediction history", ErrShapeMismatch)
	}

	rows, cols := len(epochs), len(epochs[0])
	data := make([]float64, rows*cols)
	for e, preds := range epochs {
		if len(preds) != cols {
			return nil, fmt.Errorf("%w: epoch %d has %d samples, epoch 0 has %d",
				ErrShapeMismatch, e, len(preds), cols)
		}
		for n, correct := range preds {
			if correct {
				data[e*cols+n] = 1
			}
		}
	}

	return &CorrectnessMatrix{data: mat.NewDense(rows, cols, data)}, nil
}

// Epochs returns the number of recorded epochs (rows).
func (c *CorrectnessMatrix) Epochs() int {
	r, _ := c.data.Dims()
	return r
}

// Samples returns the number of tracked samples (columns).
func (c *CorrectnessMatrix) Samples() int {
	_, n := c.data.Dims()
	return n
}

// At returns the correctness value (0 or 1) for sample n at epoch e.
func (c *CorrectnessMatrix) At(e, n int) float64 {
	return c.data.At(e, n)
}

// checkShapes validates that at least one matrix was given and all share the
// first matrix's shape.
func checkShapes(mats []*CorrectnessMatrix) error {
	if len(mats) == 0 {
		return fmt.Errorf("%w: no correctness matrices given", ErrUnsupportedConfiguration)
	}
	e0, n0 := mats[0].Epochs(), mats[0].Samples()
	for i, m := range mats[1:] {
		if m.Epochs() != e0 || m.Samples() != n0 {
			return fmt.Errorf("%w: matrix 0 is [%dx%d], matrix %d is [%dx%d]",
				ErrShapeMismatch, e0, n0, i+1, m.Epochs(), m.Samples())
		}
	}
	return nil
}

// checkIters validates the caller-supplied epoch index sequence against the
// matrix epoch count.
func checkIters(mats []*CorrectnessMatrix, iters []int) error {
	if len(iters) != mats[0].Epochs() {
		return fmt.Errorf("%w: %d epoch indices for %d epochs",
			ErrShapeMismatch, len(iters), mats[0].Epochs())
	}
	return nil
}

// defaultIters returns 0..epochs-1, the x-axis used when the caller supplies
// no epoch index sequence.
func defaultIters(epochs int) []int {
	iters := make([]int, epochs)
	for i := range iters {
		iters[i] = i
	}
	return iters
}

// defaultLabels numbers the matrices 1..n when the caller supplies no labels.
func defaultLabels(n int) []string {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = fmt.Sprintf("%d", i+1)
	}
	return labels
}
