package training

import (
	"fmt"

	"github.com/predstab/predstab/checkpoints"
)

// Optimizer defines the common interface for all optimizers.
// This interface enables state save/restore for checkpoint functionality.
type Optimizer interface {
	// ZeroGrad clears all parameter gradients before a new batch
	ZeroGrad()

	// Step performs a single optimization step over the registered parameters
	Step() error

	// GetState extracts optimizer state for checkpointing
	GetState() (*checkpoints.OptimizerState, error)

	// LoadState restores optimizer state from a checkpoint
	LoadState(state *checkpoints.OptimizerState) error

	// GetStepCount returns the current optimization step number
	GetStepCount() uint64

	// UpdateLearningRate updates the learning rate
	UpdateLearningRate(lr float64)

	// LearningRate returns the current learning rate
	LearningRate() float64
}

// SGD implements stochastic gradient descent with optional momentum and
// weight decay over flat parameter buffers.
type SGD struct {
	params       []*Parameter
	learningRate float64
	momentum     float64
	weightDecay  float64
	stepCount    uint64

	// one velocity buffer per parameter, allocated lazily when momentum > 0
	velocities [][]float32
}

// NewSGD creates an SGD optimizer for the given parameters.
func NewSGD(params []*Parameter, learningRate, momentum, weightDecay float64) (*SGD, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("SGD requires at least one parameter")
	}
	if learningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %v", learningRate)
	}
	if momentum < 0 || momentum >= 1 {
		return nil, fmt.Errorf("momentum must be in [0, 1), got %v", momentum)
	}
	return &SGD{
		params:       params,
		learningRate: learningRate,
		momentum:     momentum,
		weightDecay:  weightDecay,
	}, nil
}

// ZeroGrad clears all parameter gradients.
func (s *SGD) ZeroGrad() {
	for _, p := range s.params {
		p.ZeroGrad()
	}
}

// Step applies one SGD update to every registered parameter.
func (s *SGD) Step() error {
	if s.momentum > 0 && s.velocities == nil {
		s.velocities = make([][]float32, len(s.params))
		for i, p := range s.params {
			s.velocities[i] = make([]float32, p.NumElems())
		}
	}

	lr := float32(s.learningRate)
	mu := float32(s.momentum)
	wd := float32(s.weightDecay)

	for i, p := range s.params {
		for j := range p.Data {
			grad := p.Grad[j]
			if wd != 0 {
				grad += wd * p.Data[j]
			}
			if mu != 0 {
				v := mu*s.velocities[i][j] + grad
				s.velocities[i][j] = v
				grad = v
			}
			p.Data[j] -= lr * grad
		}
	}

	s.stepCount++
	return nil
}

// GetState extracts the optimizer state for checkpointing.
func (s *SGD) GetState() (*checkpoints.OptimizerState, error) {
	state := &checkpoints.OptimizerState{
		Type:      "SGD",
		StepCount: s.stepCount,
		Parameters: map[string]float64{
			"learning_rate": s.learningRate,
			"momentum":      s.momentum,
			"weight_decay":  s.weightDecay,
		},
	}
	for i, v := range s.velocities {
		data := make([]float32, len(v))
		copy(data, v)
		state.StateData = append(state.StateData, checkpoints.StateTensor{
			Name:  fmt.Sprintf("momentum_%d", i),
			Shape: append([]int(nil), s.params[i].Shape...),
			Data:  data,
		})
	}
	return state, nil
}

// LoadState restores the optimizer state from a checkpoint.
func (s *SGD) LoadState(state *checkpoints.OptimizerState) error {
	if state.Type != "SGD" {
		return fmt.Errorf("state type mismatch: expected SGD, got %s", state.Type)
	}

	s.stepCount = state.StepCount
	if lr, ok := state.Parameters["learning_rate"]; ok {
		s.learningRate = lr
	}
	if mu, ok := state.Parameters["momentum"]; ok {
		s.momentum = mu
	}
	if wd, ok := state.Parameters["weight_decay"]; ok {
		s.weightDecay = wd
	}

	if len(state.StateData) == 0 {
		s.velocities = nil
		return nil
	}
	if len(state.StateData) != len(s.params) {
		return fmt.Errorf("state tensor count mismatch: expected %d, got %d", len(s.params), len(state.StateData))
	}
	s.velocities = make([][]float32, len(s.params))
	for i, st := range state.StateData {
		if len(st.Data) != s.params[i].NumElems() {
			return fmt.Errorf("state tensor %s size mismatch: expected %d, got %d",
				st.Name, s.params[i].NumElems(), len(st.Data))
		}
		s.velocities[i] = make([]float32, len(st.Data))
		copy(s.velocities[i], st.Data)
	}
	return nil
}

// GetStepCount returns the number of optimization steps taken.
func (s *SGD) GetStepCount() uint64 {
	return s.stepCount
}

// UpdateLearningRate updates the learning rate.
func (s *SGD) UpdateLearningRate(lr float64) {
	s.learningRate = lr
}

// LearningRate returns the current learning rate.
func (s *SGD) LearningRate() float64 {
	return s.learningRate
}
