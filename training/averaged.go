package training

import (
	"fmt"
	"math"
)

// AveragedModel maintains an exponential moving average of a primary model's
// parameters in an independent buffer. The shadow copy is updated once per
// optimizer step with shadow = decay*shadow + (1-decay)*primary. There is no
// bias correction, so early steps lean toward the initial weights.
type AveragedModel struct {
	module Module
	decay  float64
}

// NewAveragedModel wraps a structurally identical clone of the primary model
// as the shadow copy, seeding the shadow buffers from the primary's current
// parameters. The decay constant is fixed for the tracker's lifetime.
func NewAveragedModel(clone Module, primary Module, decay float64) (*AveragedModel, error) {
	if decay <= 0 || decay >= 1 {
		return nil, fmt.Errorf("decay must be in (0, 1), got %v", decay)
	}

	shadow := clone.Parameters()
	src := primary.Parameters()
	if len(shadow) != len(src) {
		return nil, fmt.Errorf("parameter count mismatch: shadow %d, primary %d", len(shadow), len(src))
	}
	for i, p := range shadow {
		if p.NumElems() != src[i].NumElems() {
			return nil, fmt.Errorf("parameter %s size mismatch: shadow %d, primary %d",
				p.Name, p.NumElems(), src[i].NumElems())
		}
		copy(p.Data, src[i].Data)
	}
	clone.Eval()

	return &AveragedModel{module: clone, decay: decay}, nil
}

// Update blends the primary model's parameters into the shadow copy. Called
// once per training batch, after the optimizer step.
func (a *AveragedModel) Update(primary Module) {
	d := float32(a.decay)
	src := primary.Parameters()
	for i, p := range a.module.Parameters() {
		for j := range p.Data {
			p.Data[j] = d*p.Data[j] + (1-d)*src[i].Data[j]
		}
	}
}

// Module returns the shadow model for evaluation forward passes.
func (a *AveragedModel) Module() Module {
	return a.module
}

// Decay returns the EMA decay constant.
func (a *AveragedModel) Decay() float64 {
	return a.decay
}

// WeightNorm returns the Euclidean norm of a model's flattened parameters.
func WeightNorm(m Module) float64 {
	var sum float64
	for _, p := range m.Parameters() {
		for _, v := range p.Data {
			sum += float64(v) * float64(v)
		}
	}
	return math.Sqrt(sum)
}

// WeightDiffNorm returns ||a - b|| over the flattened parameters of two
// structurally identical models.
func WeightDiffNorm(a, b Module) float64 {
	pa, pb := a.Parameters(), b.Parameters()
	var sum float64
	for i := range pa {
		for j := range pa[i].Data {
			d := float64(pa[i].Data[j]) - float64(pb[i].Data[j])
			sum += d * d
		}
	}
	return math.Sqrt(sum)
}
