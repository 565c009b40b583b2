package training

import (
	"math"
	"testing"
)

func TestStepLRDecay(t *testing.T) {
	s := NewStepLR(0.1, 2, 0.1)

	wantLRs := []float64{0.1, 0.1, 0.01, 0.01, 0.001}
	for i, want := range wantLRs {
		if got := s.LastLR(); math.Abs(got-want) > 1e-12 {
			t.Errorf("tick %d: LastLR = %v, want %v", i, got, want)
		}
		s.Step()
	}
}

func TestExponentialLRDecay(t *testing.T) {
	s := NewExponentialLR(1.0, 0.5)

	wantLRs := []float64{1.0, 0.5, 0.25, 0.125}
	for i, want := range wantLRs {
		if got := s.LastLR(); math.Abs(got-want) > 1e-12 {
			t.Errorf("tick %d: LastLR = %v, want %v", i, got, want)
		}
		s.Step()
	}
}

func TestCosineAnnealingLR(t *testing.T) {
	s := NewCosineAnnealingLR(1.0, 10, 0)

	if got := s.LastLR(); math.Abs(got-1.0) > 1e-12 {
		t.Errorf("tick 0: LastLR = %v, want 1.0", got)
	}

	for i := 0; i < 5; i++ {
		s.Step()
	}
	// Halfway through the schedule the cosine curve crosses the midpoint.
	if got := s.LastLR(); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("tick 5: LastLR = %v, want 0.5", got)
	}

	for i := 0; i < 10; i++ {
		s.Step()
	}
	// Past TMax the rate clamps to EtaMin.
	if got := s.LastLR(); got != 0 {
		t.Errorf("tick 15: LastLR = %v, want 0", got)
	}
}

func TestSchedulerDefaults(t *testing.T) {
	step := NewStepLR(0.1, 0, 2.0)
	if step.StepSize != 30 || step.Gamma != 0.1 {
		t.Errorf("StepLR defaults = (%d, %v), want (30, 0.1)", step.StepSize, step.Gamma)
	}

	exp := NewExponentialLR(0.1, 0)
	if exp.Gamma != 0.95 {
		t.Errorf("ExponentialLR default gamma = %v, want 0.95", exp.Gamma)
	}

	cos := NewCosineAnnealingLR(0.1, 0, -1)
	if cos.TMax != 100 || cos.EtaMin != 0 {
		t.Errorf("CosineAnnealingLR defaults = (%d, %v), want (100, 0)", cos.TMax, cos.EtaMin)
	}
}

func TestSchedulerStateRoundTrip(t *testing.T) {
	schedulers := []Scheduler{
		NewStepLR(0.1, 5, 0.5),
		NewExponentialLR(0.1, 0.9),
		NewCosineAnnealingLR(0.1, 20, 0.001),
	}

	for _, s := range schedulers {
		t.Run(s.GetName(), func(t *testing.T) {
			for i := 0; i < 7; i++ {
				s.Step()
			}
			want := s.LastLR()

			var restored Scheduler
			switch s.GetName() {
			case "StepLR":
				restored = NewStepLR(0.9, 5, 0.5)
			case "ExponentialLR":
				restored = NewExponentialLR(0.9, 0.9)
			case "CosineAnnealingLR":
				restored = NewCosineAnnealingLR(0.9, 20, 0.001)
			}
			if err := restored.LoadState(s.State()); err != nil {
				t.Fatalf("LoadState failed: %v", err)
			}
			if got := restored.LastLR(); math.Abs(got-want) > 1e-12 {
				t.Errorf("restored LastLR = %v, want %v", got, want)
			}
		})
	}
}

func TestSchedulerLoadStateRejectsWrongType(t *testing.T) {
	s := NewStepLR(0.1, 5, 0.5)
	exp := NewExponentialLR(0.1, 0.9)
	if err := s.LoadState(exp.State()); err == nil {
		t.Error("StepLR accepted ExponentialLR state")
	}
}
