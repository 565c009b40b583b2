package training

import (
	"math"
	"testing"

	"gorgonia.org/tensor"
)

func TestLossMetric(t *testing.T) {
	m := &LossMetric{}

	if got := m.Compute(); got != 0 {
		t.Errorf("empty Compute = %v, want 0", got)
	}

	// Weighted mean: (1.0*4 + 3.0*2) / 6
	m.Update(1.0, 4)
	m.Update(3.0, 2)
	want := 10.0 / 6.0
	if got := m.Compute(); math.Abs(got-want) > 1e-12 {
		t.Errorf("Compute = %v, want %v", got, want)
	}

	m.Reset()
	if got := m.Compute(); got != 0 {
		t.Errorf("Compute after Reset = %v, want 0", got)
	}
}

func scores(rows ...[]float32) *tensor.Dense {
	flat := make([]float32, 0, len(rows)*len(rows[0]))
	for _, r := range rows {
		flat = append(flat, r...)
	}
	return tensor.New(tensor.WithShape(len(rows), len(rows[0])), tensor.WithBacking(flat))
}

func TestAccuracyMetricTop1(t *testing.T) {
	m := NewAccuracyMetric(1, false)

	out := scores(
		[]float32{0.1, 0.9, 0.0}, // label 1: correct
		[]float32{0.8, 0.1, 0.1}, // label 1: wrong
		[]float32{0.2, 0.2, 0.6}, // label 2: correct
	)
	if err := m.Update(out, []int32{1, 1, 2}); err != nil {
		t.Fatal(err)
	}

	want := 2.0 / 3.0
	if got := m.Compute(); math.Abs(got-want) > 1e-12 {
		t.Errorf("Compute = %v, want %v", got, want)
	}
}

func TestAccuracyMetricTopK(t *testing.T) {
	m := NewAccuracyMetric(2, false)

	out := scores(
		[]float32{0.5, 0.3, 0.2}, // label 1 is second best: correct for k=2
		[]float32{0.5, 0.1, 0.4}, // label 1 is last: wrong
	)
	if err := m.Update(out, []int32{1, 1}); err != nil {
		t.Fatal(err)
	}
	if got := m.Compute(); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("Compute = %v, want 0.5", got)
	}
}

func TestAccuracyMetricTieFavorsTarget(t *testing.T) {
	m := NewAccuracyMetric(1, false)

	out := scores([]float32{0.5, 0.5})
	if err := m.Update(out, []int32{1}); err != nil {
		t.Fatal(err)
	}
	if got := m.Compute(); got != 1.0 {
		t.Errorf("tied scores: Compute = %v, want 1.0", got)
	}
}

func TestAccuracyMetricTracksPreds(t *testing.T) {
	m := NewAccuracyMetric(1, true)

	first := scores(
		[]float32{0.9, 0.1},
		[]float32{0.1, 0.9},
	)
	if err := m.Update(first, []int32{0, 0}); err != nil {
		t.Fatal(err)
	}
	second := scores([]float32{0.2, 0.8})
	if err := m.Update(second, []int32{1}); err != nil {
		t.Fatal(err)
	}

	want := []bool{true, false, true}
	got := m.Preds()
	if len(got) != len(want) {
		t.Fatalf("Preds length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Preds[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	m.Reset()
	if len(m.Preds()) != 0 {
		t.Errorf("Preds after Reset = %v, want empty", m.Preds())
	}
}

func TestAccuracyMetricRejectsBadInput(t *testing.T) {
	m := NewAccuracyMetric(1, false)

	out := scores([]float32{0.5, 0.5})
	if err := m.Update(out, []int32{0, 1}); err == nil {
		t.Error("Update accepted mismatched label count")
	}

	big := NewAccuracyMetric(5, false)
	if err := big.Update(out, []int32{0}); err == nil {
		t.Error("Update accepted k larger than the class count")
	}
}
