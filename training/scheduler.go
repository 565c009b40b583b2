package training

import (
	"fmt"
	"math"

	"github.com/predstab/predstab/checkpoints"
)

// Scheduler defines the interface for learning rate scheduling strategies.
// Step advances the schedule by one tick (an iteration or an epoch, depending
// on trainer configuration); LastLR returns the rate for the current tick.
type Scheduler interface {
	Step()
	LastLR() float64
	State() *checkpoints.SchedulerState
	LoadState(state *checkpoints.SchedulerState) error
	GetName() string
}

// StepLR reduces the learning rate by a factor every stepSize ticks.
type StepLR struct {
	BaseLR   float64
	StepSize int     // Ticks between LR reductions
	Gamma    float64 // Multiplicative factor of LR decay

	count int
}

// NewStepLR creates a step learning rate scheduler.
func NewStepLR(baseLR float64, stepSize int, gamma float64) *StepLR {
	if stepSize <= 0 {
		stepSize = 30 // Default: reduce every 30 epochs
	}
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.1 // Default: reduce by 10x
	}
	return &StepLR{
		BaseLR:   baseLR,
		StepSize: stepSize,
		Gamma:    gamma,
	}
}

func (s *StepLR) Step() {
	s.count++
}

func (s *StepLR) LastLR() float64 {
	times := s.count / s.StepSize
	return s.BaseLR * math.Pow(s.Gamma, float64(times))
}

func (s *StepLR) State() *checkpoints.SchedulerState {
	return &checkpoints.SchedulerState{Type: s.GetName(), BaseLR: s.BaseLR, StepCount: s.count}
}

func (s *StepLR) LoadState(state *checkpoints.SchedulerState) error {
	if err := checkSchedulerType(s.GetName(), state); err != nil {
		return err
	}
	s.BaseLR = state.BaseLR
	s.count = state.StepCount
	return nil
}

func (s *StepLR) GetName() string {
	return "StepLR"
}

// ExponentialLR decays the learning rate exponentially per tick.
type ExponentialLR struct {
	BaseLR float64
	Gamma  float64

	count int
}

// NewExponentialLR creates an exponential learning rate scheduler.
func NewExponentialLR(baseLR, gamma float64) *ExponentialLR {
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.95 // Default: 5% reduction per epoch
	}
	return &ExponentialLR{BaseLR: baseLR, Gamma: gamma}
}

func (s *ExponentialLR) Step() {
	s.count++
}

func (s *ExponentialLR) LastLR() float64 {
	return s.BaseLR * math.Pow(s.Gamma, float64(s.count))
}

func (s *ExponentialLR) State() *checkpoints.SchedulerState {
	return &checkpoints.SchedulerState{Type: s.GetName(), BaseLR: s.BaseLR, StepCount: s.count}
}

func (s *ExponentialLR) LoadState(state *checkpoints.SchedulerState) error {
	if err := checkSchedulerType(s.GetName(), state); err != nil {
		return err
	}
	s.BaseLR = state.BaseLR
	s.count = state.StepCount
	return nil
}

func (s *ExponentialLR) GetName() string {
	return "ExponentialLR"
}

// CosineAnnealingLR anneals the learning rate along a cosine curve over TMax
// ticks down to EtaMin.
type CosineAnnealingLR struct {
	BaseLR float64
	TMax   int
	EtaMin float64

	count int
}

// NewCosineAnnealingLR creates a cosine annealing scheduler.
func NewCosineAnnealingLR(baseLR float64, tMax int, etaMin float64) *CosineAnnealingLR {
	if tMax <= 0 {
		tMax = 100 // Default: 100 epochs
	}
	if etaMin < 0 {
		etaMin = 0 // Default: anneal to 0
	}
	return &CosineAnnealingLR{BaseLR: baseLR, TMax: tMax, EtaMin: etaMin}
}

func (s *CosineAnnealingLR) Step() {
	s.count++
}

func (s *CosineAnnealingLR) LastLR() float64 {
	if s.count >= s.TMax {
		return s.EtaMin
	}
	return s.EtaMin + (s.BaseLR-s.EtaMin)*(1+math.Cos(math.Pi*float64(s.count)/float64(s.TMax)))/2
}

func (s *CosineAnnealingLR) State() *checkpoints.SchedulerState {
	return &checkpoints.SchedulerState{Type: s.GetName(), BaseLR: s.BaseLR, StepCount: s.count}
}

func (s *CosineAnnealingLR) LoadState(state *checkpoints.SchedulerState) error {
	if err := checkSchedulerType(s.GetName(), state); err != nil {
		return err
	}
	s.BaseLR = state.BaseLR
	s.count = state.StepCount
	return nil
}

func (s *CosineAnnealingLR) GetName() string {
	return "CosineAnnealingLR"
}

func checkSchedulerType(name string, state *checkpoints.SchedulerState) error {
	if state.Type != name {
		return fmt.Errorf("scheduler state type mismatch: expected %s, got %s", name, state.Type)
	}
	return nil
}
