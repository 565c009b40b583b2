package analysis

import (
	"errors"
	"math"
	"testing"
)

func mustStack(t *testing.T, rows [][]bool) *CorrectnessMatrix {
	t.Helper()
	m, err := Stack(rows)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

// constantMatrix builds an [epochs x samples] matrix that never changes
// across epochs.
func constantMatrix(t *testing.T, epochs int, row []bool) *CorrectnessMatrix {
	t.Helper()
	rows := make([][]bool, epochs)
	for e := range rows {
		rows[e] = row
	}
	return mustStack(t, rows)
}

func TestStackValidation(t *testing.T) {
	if _, err := Stack(nil); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Stack(nil): err = %v, want ErrShapeMismatch", err)
	}
	if _, err := Stack([][]bool{{true, false}, {true}}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Stack with ragged rows: err = %v, want ErrShapeMismatch", err)
	}

	m := mustStack(t, [][]bool{{true, false, true}, {false, false, true}})
	if m.Epochs() != 2 || m.Samples() != 3 {
		t.Errorf("dims = [%dx%d], want [2x3]", m.Epochs(), m.Samples())
	}
	if m.At(0, 0) != 1 || m.At(1, 1) != 0 || m.At(1, 2) != 1 {
		t.Error("Stack placed values incorrectly")
	}
}

func TestStabilityOfConstantMatrix(t *testing.T) {
	m := constantMatrix(t, 5, []bool{true, false, true, true})

	series, err := Stability([]*CorrectnessMatrix{m}, []string{"run"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	// One stability series and one accuracy companion.
	if len(series) != 2 {
		t.Fatalf("got %d series, want 2", len(series))
	}

	stab := series[0]
	if stab.Label != "run" || len(stab.Y) != 4 {
		t.Fatalf("stability series = %q with %d points, want \"run\" with 4", stab.Label, len(stab.Y))
	}
	for i, v := range stab.Y {
		if v != 1.0 {
			t.Errorf("stability[%d] = %v, want 1.0 for a constant matrix", i, v)
		}
	}
	if stab.X[0] != 1 {
		t.Errorf("stability x starts at %d, want 1", stab.X[0])
	}

	acc := series[1]
	if acc.Label != "run (Acc.)" {
		t.Errorf("companion label = %q, want \"run (Acc.)\"", acc.Label)
	}
	for i, v := range acc.Y {
		if math.Abs(v-0.75) > 1e-12 {
			t.Errorf("accuracy[%d] = %v, want 0.75", i, v)
		}
	}
}

func TestStabilityCountsFlips(t *testing.T) {
	m := mustStack(t, [][]bool{
		{true, true},
		{false, true}, // one of two samples flips
		{false, false},
	})

	series, err := Stability([]*CorrectnessMatrix{m}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0.5, 0.5}
	for i, v := range series[0].Y {
		if math.Abs(v-want[i]) > 1e-12 {
			t.Errorf("stability[%d] = %v, want %v", i, v, want[i])
		}
	}
}

func TestStabilityRejectsShapeMismatch(t *testing.T) {
	a := constantMatrix(t, 3, []bool{true, true})
	b := constantMatrix(t, 4, []bool{true, true})
	if _, err := Stability([]*CorrectnessMatrix{a, b}, nil, nil); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("err = %v, want ErrShapeMismatch", err)
	}
}

func TestMismatchSeries(t *testing.T) {
	a := mustStack(t, [][]bool{
		{true, true},
		{true, false},
	})
	b := mustStack(t, [][]bool{
		{true, false}, // epoch 0: one of two disagree
		{false, true}, // epoch 1: both disagree
	})

	series, err := Mismatch([]*CorrectnessMatrix{a, b}, []string{"a", "b"}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(series) != 1 {
		t.Fatalf("got %d series for one pair, want 1", len(series))
	}
	if series[0].Label != "a - b" {
		t.Errorf("label = %q, want \"a - b\"", series[0].Label)
	}
	want := []float64{0.5, 1.0}
	for i, v := range series[0].Y {
		if math.Abs(v-want[i]) > 1e-12 {
			t.Errorf("mismatch[%d] = %v, want %v", i, v, want[i])
		}
	}
}

func TestMismatchPairCount(t *testing.T) {
	m := constantMatrix(t, 2, []bool{true})
	mats := []*CorrectnessMatrix{m, m, m}
	series, err := Mismatch(mats, nil, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(series) != 3 {
		t.Errorf("got %d series for three matrices, want 3 pairs", len(series))
	}
}

func TestMismatchHistogramSelfIsZero(t *testing.T) {
	a := mustStack(t, [][]bool{
		{true, false, true, false},
		{false, true, false, true},
	})

	h, err := MismatchHistogram([]*CorrectnessMatrix{a, a})
	if err != nil {
		t.Fatal(err)
	}
	if len(h.Counts) != 100 {
		t.Fatalf("got %d bins, want 100", len(h.Counts))
	}
	// Every sample's disagreement rate with itself is zero: all mass sits in
	// the single bin whose range brackets zero.
	assertAllMassAtValue(t, *h, 4, 0)
}

// assertAllMassAtValue checks that a histogram holds total counts in exactly
// one bin and that bin's range contains the given value.
func assertAllMassAtValue(t *testing.T, h Histogram, total float64, value float64) {
	t.Helper()
	var sum float64
	hot := -1
	for i, c := range h.Counts {
		sum += c
		if c != 0 {
			if hot != -1 {
				t.Fatalf("mass spread over bins %d and %d, want one bin", hot, i)
			}
			hot = i
		}
	}
	if sum != total {
		t.Fatalf("total mass = %v, want %v", sum, total)
	}
	if hot == -1 {
		t.Fatal("histogram is empty")
	}
	if h.Dividers[hot] > value || value >= h.Dividers[hot+1] {
		t.Errorf("mass in bin [%v, %v), want a bin containing %v", h.Dividers[hot], h.Dividers[hot+1], value)
	}
}

func TestMismatchHistogramRequiresTwoMatrices(t *testing.T) {
	m := constantMatrix(t, 2, []bool{true})
	if _, err := MismatchHistogram([]*CorrectnessMatrix{m}); !errors.Is(err, ErrUnsupportedConfiguration) {
		t.Errorf("one matrix: err = %v, want ErrUnsupportedConfiguration", err)
	}
	if _, err := MismatchHistogram([]*CorrectnessMatrix{m, m, m}); !errors.Is(err, ErrUnsupportedConfiguration) {
		t.Errorf("three matrices: err = %v, want ErrUnsupportedConfiguration", err)
	}
}

func TestMisclassificationSeries(t *testing.T) {
	a := mustStack(t, [][]bool{
		{true, true},
		{false, true},
	})
	b := mustStack(t, [][]bool{
		{true, true},
		{false, false},
	})

	series, err := Misclassification([]*CorrectnessMatrix{a, b}, []string{"a", "b"}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	// Two per-matrix series plus one co-misclassification series.
	if len(series) != 3 {
		t.Fatalf("got %d series, want 3", len(series))
	}

	wantA := []float64{0, 0.5}
	for i, v := range series[0].Y {
		if math.Abs(v-wantA[i]) > 1e-12 {
			t.Errorf("a[%d] = %v, want %v", i, v, wantA[i])
		}
	}
	wantB := []float64{0, 1.0}
	for i, v := range series[1].Y {
		if math.Abs(v-wantB[i]) > 1e-12 {
			t.Errorf("b[%d] = %v, want %v", i, v, wantB[i])
		}
	}

	// Co-misclassification: both wrong on the same sample. Epoch 1 has sample
	// 0 wrong in both.
	co := series[2]
	if co.Label != "a and b" {
		t.Errorf("pair label = %q, want \"a and b\"", co.Label)
	}
	wantCo := []float64{0, 0.5}
	for i, v := range co.Y {
		if math.Abs(v-wantCo[i]) > 1e-12 {
			t.Errorf("co[%d] = %v, want %v", i, v, wantCo[i])
		}
	}
}

func TestMisclassificationHistogramSkipsFirstEpoch(t *testing.T) {
	// Epoch 0 is all wrong; later epochs are all right. With epoch 0 excluded
	// the error rate is zero everywhere.
	a := mustStack(t, [][]bool{
		{false, false, false},
		{true, true, true},
		{true, true, true},
	})

	hists, err := MisclassificationHistogram([]*CorrectnessMatrix{a, a}, []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hists) != 2 {
		t.Fatalf("got %d histograms, want 2", len(hists))
	}
	for _, h := range hists {
		if len(h.Counts) != 50 {
			t.Errorf("%s: got %d bins, want 50", h.Label, len(h.Counts))
		}
		// With epoch 0 excluded every per-sample error rate is zero.
		assertAllMassAtValue(t, h, 3, 0)
	}
}

func TestMovingAverage(t *testing.T) {
	y := []float64{1, 2, 3, 4, 5}

	got := MovingAverage(y, 3)
	want := []float64{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("window 3: length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("window 3: [%d] = %v, want %v", i, got[i], want[i])
		}
	}

	// A window of one or less leaves the series untouched.
	for _, w := range []int{0, 1} {
		got := MovingAverage(y, w)
		if len(got) != len(y) {
			t.Fatalf("window %d: length = %d, want %d", w, len(got), len(y))
		}
		for i := range y {
			if got[i] != y[i] {
				t.Errorf("window %d changed the series", w)
			}
		}
	}

	if got := MovingAverage([]float64{1, 2}, 3); got != nil {
		t.Errorf("window longer than series = %v, want nil", got)
	}
}

func TestSmoothedMismatchLength(t *testing.T) {
	rows := make([][]bool, 10)
	for e := range rows {
		rows[e] = []bool{e%2 == 0, true}
	}
	a := mustStack(t, rows)
	b := constantMatrix(t, 10, []bool{true, true})

	series, err := Mismatch([]*CorrectnessMatrix{a, b}, nil, nil, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(series[0].Y) != 7 {
		t.Errorf("smoothed length = %d, want 10-4+1 = 7", len(series[0].Y))
	}
	if len(series[0].X) != len(series[0].Y) {
		t.Errorf("x length %d != y length %d", len(series[0].X), len(series[0].Y))
	}
	// The re-mapped x-axis covers window centers, not the raw epoch range.
	if series[0].X[0] != 2 || series[0].X[len(series[0].X)-1] != 8 {
		t.Errorf("x spans [%d, %d], want [2, 8]", series[0].X[0], series[0].X[len(series[0].X)-1])
	}
}

func TestOversizedSmoothingWindowFails(t *testing.T) {
	a := constantMatrix(t, 3, []bool{true, false})
	b := constantMatrix(t, 3, []bool{false, true})
	mats := []*CorrectnessMatrix{a, b}

	if _, err := Mismatch(mats, nil, nil, 4); !errors.Is(err, ErrUnsupportedConfiguration) {
		t.Errorf("Mismatch with window 4 over 3 epochs: err = %v, want ErrUnsupportedConfiguration", err)
	}
	if _, err := Misclassification(mats, nil, nil, 4); !errors.Is(err, ErrUnsupportedConfiguration) {
		t.Errorf("Misclassification with window 4 over 3 epochs: err = %v, want ErrUnsupportedConfiguration", err)
	}

	// A window equal to the epoch count still yields one point.
	series, err := Mismatch(mats, nil, nil, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(series[0].Y) != 1 {
		t.Errorf("window 3 over 3 epochs: length = %d, want 1", len(series[0].Y))
	}
}

func TestSeriesRespectCustomIters(t *testing.T) {
	m := constantMatrix(t, 3, []bool{true})
	iters := []int{100, 200, 300}

	series, err := Stability([]*CorrectnessMatrix{m}, nil, iters)
	if err != nil {
		t.Fatal(err)
	}
	if series[0].X[0] != 200 || series[0].X[1] != 300 {
		t.Errorf("x = %v, want [200 300]", series[0].X)
	}

	if _, err := Stability([]*CorrectnessMatrix{m}, nil, []int{1, 2}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("short iters: err = %v, want ErrShapeMismatch", err)
	}
}
