package nn

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
)

// Global random source for deterministic initialization
var globalRng = rand.New(rand.NewSource(1))

// SetRandomSeed sets the global random seed for deterministic weight initialization
func SetRandomSeed(seed int64) {
	globalRng = rand.New(rand.NewSource(seed))
}

// Parameter is a trainable matrix together with its accumulated gradient
type Parameter struct {
	Name  string
	Value *Matrix
	Grad  *Matrix
}

// NewParameter allocates a parameter and a zeroed gradient of the same shape
func NewParameter(name string, value *Matrix) *Parameter {
	return &Parameter{
		Name:  name,
		Value: value,
		Grad:  Zeros(value.Rows, value.Cols),
	}
}

// ZeroGrad clears the accumulated gradient
func (p *Parameter) ZeroGrad() {
	p.Grad.Fill(0)
}

// Module interface defines methods that all neural network layers must implement
type Module interface {
	Forward(input *Matrix) (*Matrix, error)
	// Backward takes dLoss/dOutput for the last Forward call and returns
	// dLoss/dInput, accumulating parameter gradients along the way.
	Backward(gradOutput *Matrix) (*Matrix, error)
	Parameters() []*Parameter
	Train()
	Eval()
	IsTraining() bool
}

// Linear implements a fully connected (dense) layer: y = xW + b
type Linear struct {
	name     string
	weight   *Parameter
	bias     *Parameter
	input    *Matrix
	training bool
}

// NewLinear creates a new Linear layer
func NewLinear(name string, inputSize, outputSize int, bias bool) (*Linear, error) {
	if inputSize <= 0 || outputSize <= 0 {
		return nil, fmt.Errorf("linear layer %s: sizes must be positive, got %d -> %d", name, inputSize, outputSize)
	}

	// Xavier/Glorot uniform: W ~ U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
	bound := math.Sqrt(6.0 / float64(inputSize+outputSize))
	weight := Zeros(inputSize, outputSize)
	for i := range weight.Data {
		weight.Data[i] = (globalRng.Float64()*2.0 - 1.0) * bound
	}

	linear := &Linear{
		name:     name,
		weight:   NewParameter(name+".weight", weight),
		training: true,
	}
	if bias {
		linear.bias = NewParameter(name+".bias", Zeros(1, outputSize))
	}
	return linear, nil
}

// Forward computes xW + b and remembers x for the backward pass
func (l *Linear) Forward(input *Matrix) (*Matrix, error) {
	out, err := matMul(input, l.weight.Value)
	if err != nil {
		return nil, fmt.Errorf("linear layer %s forward: %w", l.name, err)
	}
	if l.bias != nil {
		b := l.bias.Value.Data
		for r := 0; r < out.Rows; r++ {
			row := out.Row(r)
			for c := range row {
				row[c] += b[c]
			}
		}
	}
	l.input = input
	return out, nil
}

// Backward accumulates dW = x^T g, db = sum(g) and returns g W^T
func (l *Linear) Backward(gradOutput *Matrix) (*Matrix, error) {
	if l.input == nil {
		return nil, fmt.Errorf("linear layer %s: backward called before forward", l.name)
	}
	dW, err := matMulTransA(l.input, gradOutput)
	if err != nil {
		return nil, fmt.Errorf("linear layer %s weight grad: %w", l.name, err)
	}
	for i, v := range dW.Data {
		l.weight.Grad.Data[i] += v
	}
	if l.bias != nil {
		for r := 0; r < gradOutput.Rows; r++ {
			for c, v := range gradOutput.Row(r) {
				l.bias.Grad.Data[c] += v
			}
		}
	}
	dx, err := matMulTransB(gradOutput, l.weight.Value)
	if err != nil {
		return nil, fmt.Errorf("linear layer %s input grad: %w", l.name, err)
	}
	return dx, nil
}

// Parameters returns weight and, if present, bias
func (l *Linear) Parameters() []*Parameter {
	if l.bias != nil {
		return []*Parameter{l.weight, l.bias}
	}
	return []*Parameter{l.weight}
}

func (l *Linear) Train()           { l.training = true }
func (l *Linear) Eval()            { l.training = false }
func (l *Linear) IsTraining() bool { return l.training }

func (l *Linear) String() string {
	return fmt.Sprintf("(%s): Linear(in_features=%d, out_features=%d, bias=%t)",
		l.name, l.weight.Value.Rows, l.weight.Value.Cols, l.bias != nil)
}

// ReLU implements the rectified linear activation
type ReLU struct {
	name     string
	mask     []bool
	training bool
}

// NewReLU creates a new ReLU activation
func NewReLU(name string) *ReLU {
	return &ReLU{name: name, training: true}
}

func (r *ReLU) Forward(input *Matrix) (*Matrix, error) {
	out := input.Clone()
	r.mask = make([]bool, len(out.Data))
	for i, v := range out.Data {
		if v > 0 {
			r.mask[i] = true
		} else {
			out.Data[i] = 0
		}
	}
	return out, nil
}

func (r *ReLU) Backward(gradOutput *Matrix) (*Matrix, error) {
	if len(r.mask) != len(gradOutput.Data) {
		return nil, fmt.Errorf("relu %s: gradient size %d does not match forward size %d", r.name, len(gradOutput.Data), len(r.mask))
	}
	dx := gradOutput.Clone()
	for i, keep := range r.mask {
		if !keep {
			dx.Data[i] = 0
		}
	}
	return dx, nil
}

func (r *ReLU) Parameters() []*Parameter { return nil }
func (r *ReLU) Train()                   { r.training = true }
func (r *ReLU) Eval()                    { r.training = false }
func (r *ReLU) IsTraining() bool         { return r.training }
func (r *ReLU) String() string           { return fmt.Sprintf("(%s): ReLU()", r.name) }

// Tanh implements the hyperbolic tangent activation
type Tanh struct {
	name     string
	output   *Matrix
	training bool
}

// NewTanh creates a new Tanh activation
func NewTanh(name string) *Tanh {
	return &Tanh{name: name, training: true}
}

func (t *Tanh) Forward(input *Matrix) (*Matrix, error) {
	out := input.Clone()
	for i, v := range out.Data {
		out.Data[i] = math.Tanh(v)
	}
	t.output = out
	return out, nil
}

func (t *Tanh) Backward(gradOutput *Matrix) (*Matrix, error) {
	if t.output == nil || t.output.Size() != gradOutput.Size() {
		return nil, fmt.Errorf("tanh %s: backward called without matching forward", t.name)
	}
	dx := gradOutput.Clone()
	for i, y := range t.output.Data {
		dx.Data[i] *= 1 - y*y
	}
	return dx, nil
}

func (t *Tanh) Parameters() []*Parameter { return nil }
func (t *Tanh) Train()                   { t.training = true }
func (t *Tanh) Eval()                    { t.training = false }
func (t *Tanh) IsTraining() bool         { return t.training }
func (t *Tanh) String() string           { return fmt.Sprintf("(%s): Tanh()", t.name) }

// Sequential chains modules in order
type Sequential struct {
	modules  []Module
	training bool
}

// NewSequential creates a new Sequential container
func NewSequential(modules ...Module) *Sequential {
	return &Sequential{modules: modules, training: true}
}

// Add appends a module
func (s *Sequential) Add(module Module) {
	s.modules = append(s.modules, module)
}

// Modules returns the contained modules
func (s *Sequential) Modules() []Module {
	return s.modules
}

func (s *Sequential) Forward(input *Matrix) (*Matrix, error) {
	out := input
	for i, m := range s.modules {
		var err error
		out, err = m.Forward(out)
		if err != nil {
			return nil, fmt.Errorf("forward pass failed at module %d: %w", i, err)
		}
	}
	return out, nil
}

func (s *Sequential) Backward(gradOutput *Matrix) (*Matrix, error) {
	grad := gradOutput
	for i := len(s.modules) - 1; i >= 0; i-- {
		var err error
		grad, err = s.modules[i].Backward(grad)
		if err != nil {
			return nil, fmt.Errorf("backward pass failed at module %d: %w", i, err)
		}
	}
	return grad, nil
}

func (s *Sequential) Parameters() []*Parameter {
	var params []*Parameter
	for _, m := range s.modules {
		params = append(params, m.Parameters()...)
	}
	return params
}

func (s *Sequential) Train() {
	s.training = true
	for _, m := range s.modules {
		m.Train()
	}
}

func (s *Sequential) Eval() {
	s.training = false
	for _, m := range s.modules {
		m.Eval()
	}
}

func (s *Sequential) IsTraining() bool { return s.training }

// Container is a module made of child modules
type Container interface {
	Modules() []Module
}

// Describe renders a module tree in PyTorch style
func Describe(name string, module Module) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s(\n", name)
	describeInto(&b, module, "  ")
	b.WriteString(")")
	return b.String()
}

func describeInto(b *strings.Builder, module Module, indent string) {
	switch m := module.(type) {
	case Container:
		for _, child := range m.Modules() {
			describeInto(b, child, indent)
		}
	case fmt.Stringer:
		fmt.Fprintf(b, "%s%s\n", indent, m.String())
	default:
		fmt.Fprintf(b, "%s%T\n", indent, m)
	}
}

// CountParameters returns the total number of scalar parameters
func CountParameters(params []*Parameter) int64 {
	var total int64
	for _, p := range params {
		total += int64(p.Value.Size())
	}
	return total
}
