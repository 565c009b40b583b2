package training

import (
	"fmt"
	"math"
	"math/rand"

	"gorgonia.org/tensor"
)

// Global random source for deterministic initialization
var globalRng *rand.Rand = rand.New(rand.NewSource(1))

// SetRandomSeed sets the global random seed for deterministic weight initialization
func SetRandomSeed(seed int64) {
	globalRng = rand.New(rand.NewSource(seed))
}

// Parameter is a named, flat trainable buffer with its gradient accumulator.
type Parameter struct {
	Name  string
	Shape []int
	Data  []float32
	Grad  []float32
}

// NumElems returns the number of elements in the parameter.
func (p *Parameter) NumElems() int {
	return len(p.Data)
}

// ZeroGrad clears the gradient accumulator.
func (p *Parameter) ZeroGrad() {
	for i := range p.Grad {
		p.Grad[i] = 0
	}
}

// Module is the capability contract the trainer requires of a model: a forward
// pass, a backward pass that accumulates parameter gradients, parameter
// iteration, and a train/eval mode toggle.
type Module interface {
	Forward(input *tensor.Dense) (*tensor.Dense, error)
	Backward(gradOutput *tensor.Dense) error
	Parameters() []*Parameter
	Train()
	Eval()
	IsTraining() bool
}

// Loss is the capability contract for a loss function: a scalar forward value
// and the gradient with respect to the model output.
type Loss interface {
	Forward(output *tensor.Dense, labels []int32) (float64, error)
	Backward(output *tensor.Dense, labels []int32) (*tensor.Dense, error)
}

// Linear implements a fully connected layer y = xW + b with manually derived
// gradients. It is the reference model for the harness; any Module works.
type Linear struct {
	weight   *Parameter
	bias     *Parameter
	training bool

	// stashed forward input for the backward pass
	lastInput *tensor.Dense
}

// NewLinear creates a Linear layer with Xavier/Glorot uniform initialization.
func NewLinear(inputSize, outputSize int, bias bool) *Linear {
	bound := math.Sqrt(6.0 / float64(inputSize+outputSize))

	weightData := make([]float32, inputSize*outputSize)
	for i := range weightData {
		weightData[i] = float32((globalRng.Float64()*2.0 - 1.0) * bound)
	}

	l := &Linear{
		weight: &Parameter{
			Name:  "linear.weight",
			Shape: []int{inputSize, outputSize},
			Data:  weightData,
			Grad:  make([]float32, inputSize*outputSize),
		},
		training: true,
	}

	if bias {
		l.bias = &Parameter{
			Name:  "linear.bias",
			Shape: []int{outputSize},
			Data:  make([]float32, outputSize),
			Grad:  make([]float32, outputSize),
		}
	}

	return l
}

// Forward computes y = xW + b for a [batch, inputSize] input.
func (l *Linear) Forward(input *tensor.Dense) (*tensor.Dense, error) {
	shape := input.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("linear layer expects 2D input [batch_size, input_size], got shape %v", shape)
	}

	batchSize, inputSize := shape[0], shape[1]
	outputSize := l.weight.Shape[1]
	if inputSize != l.weight.Shape[0] {
		return nil, fmt.Errorf("input size mismatch: expected %d, got %d", l.weight.Shape[0], inputSize)
	}

	inputData := input.Data().([]float32)
	outputData := make([]float32, batchSize*outputSize)

	for i := 0; i < batchSize; i++ {
		row := inputData[i*inputSize : (i+1)*inputSize]
		out := outputData[i*outputSize : (i+1)*outputSize]
		if l.bias != nil {
			copy(out, l.bias.Data)
		}
		for k, x := range row {
			if x == 0 {
				continue
			}
			wRow := l.weight.Data[k*outputSize : (k+1)*outputSize]
			for j, w := range wRow {
				out[j] += x * w
			}
		}
	}

	if l.training {
		l.lastInput = input
	}

	return tensor.New(tensor.WithShape(batchSize, outputSize), tensor.WithBacking(outputData)), nil
}

// Backward accumulates dL/dW and dL/db from the output gradient of the most
// recent training-mode forward pass.
func (l *Linear) Backward(gradOutput *tensor.Dense) error {
	if l.lastInput == nil {
		return fmt.Errorf("backward called before a training-mode forward pass")
	}

	inShape := l.lastInput.Shape()
	batchSize, inputSize := inShape[0], inShape[1]
	outputSize := l.weight.Shape[1]

	gradShape := gradOutput.Shape()
	if len(gradShape) != 2 || gradShape[0] != batchSize || gradShape[1] != outputSize {
		return fmt.Errorf("gradient shape mismatch: expected [%d %d], got %v", batchSize, outputSize, gradShape)
	}

	inputData := l.lastInput.Data().([]float32)
	gradData := gradOutput.Data().([]float32)

	for i := 0; i < batchSize; i++ {
		row := inputData[i*inputSize : (i+1)*inputSize]
		grad := gradData[i*outputSize : (i+1)*outputSize]
		for k, x := range row {
			if x == 0 {
				continue
			}
			wGrad := l.weight.Grad[k*outputSize : (k+1)*outputSize]
			for j, g := range grad {
				wGrad[j] += x * g
			}
		}
		if l.bias != nil {
			for j, g := range grad {
				l.bias.Grad[j] += g
			}
		}
	}

	return nil
}

// Parameters returns the trainable parameters.
func (l *Linear) Parameters() []*Parameter {
	if l.bias != nil {
		return []*Parameter{l.weight, l.bias}
	}
	return []*Parameter{l.weight}
}

// Train sets the layer to training mode.
func (l *Linear) Train() {
	l.training = true
}

// Eval sets the layer to evaluation mode.
func (l *Linear) Eval() {
	l.training = false
	l.lastInput = nil
}

// IsTraining returns true if in training mode.
func (l *Linear) IsTraining() bool {
	return l.training
}

// CrossEntropyLoss combines softmax with negative log likelihood.
type CrossEntropyLoss struct{}

// NewCrossEntropyLoss creates a cross entropy loss.
func NewCrossEntropyLoss() *CrossEntropyLoss {
	return &CrossEntropyLoss{}
}

// Forward returns the mean negative log likelihood over the batch.
func (c *CrossEntropyLoss) Forward(output *tensor.Dense, labels []int32) (float64, error) {
	probs, batchSize, numClasses, err := softmax(output)
	if err != nil {
		return 0, err
	}
	if len(labels) != batchSize {
		return 0, fmt.Errorf("labels length mismatch: expected %d, got %d", batchSize, len(labels))
	}

	var total float64
	for i := 0; i < batchSize; i++ {
		cls := int(labels[i])
		if cls < 0 || cls >= numClasses {
			return 0, fmt.Errorf("label %d out of range [0, %d)", cls, numClasses)
		}
		total += -math.Log(float64(probs[i*numClasses+cls]) + 1e-12)
	}
	return total / float64(batchSize), nil
}

// Backward returns dL/doutput = (softmax(output) - onehot(labels)) / batch.
func (c *CrossEntropyLoss) Backward(output *tensor.Dense, labels []int32) (*tensor.Dense, error) {
	probs, batchSize, numClasses, err := softmax(output)
	if err != nil {
		return nil, err
	}
	if len(labels) != batchSize {
		return nil, fmt.Errorf("labels length mismatch: expected %d, got %d", batchSize, len(labels))
	}

	grad := make([]float32, len(probs))
	inv := float32(1.0 / float64(batchSize))
	for i := 0; i < batchSize; i++ {
		cls := int(labels[i])
		if cls < 0 || cls >= numClasses {
			return nil, fmt.Errorf("label %d out of range [0, %d)", cls, numClasses)
		}
		for j := 0; j < numClasses; j++ {
			g := probs[i*numClasses+j]
			if j == cls {
				g -= 1
			}
			grad[i*numClasses+j] = g * inv
		}
	}
	return tensor.New(tensor.WithShape(batchSize, numClasses), tensor.WithBacking(grad)), nil
}

func softmax(output *tensor.Dense) ([]float32, int, int, error) {
	shape := output.Shape()
	if len(shape) != 2 {
		return nil, 0, 0, fmt.Errorf("loss expects 2D output [batch_size, num_classes], got shape %v", shape)
	}
	batchSize, numClasses := shape[0], shape[1]
	data := output.Data().([]float32)

	probs := make([]float32, len(data))
	for i := 0; i < batchSize; i++ {
		row := data[i*numClasses : (i+1)*numClasses]
		maxVal := row[0]
		for _, v := range row[1:] {
			if v > maxVal {
				maxVal = v
			}
		}
		var sum float64
		out := probs[i*numClasses : (i+1)*numClasses]
		for j, v := range row {
			e := math.Exp(float64(v - maxVal))
			out[j] = float32(e)
			sum += e
		}
		for j := range out {
			out[j] = float32(float64(out[j]) / sum)
		}
	}
	return probs, batchSize, numClasses, nil
}
