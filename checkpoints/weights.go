package checkpoints

import (
	"fmt"

	"github.com/tsawler/go-train/nn"
)

// ExtractWeights copies every parameter value into a weight tensor
func ExtractWeights(params []*nn.Parameter) []WeightTensor {
	weights := make([]WeightTensor, 0, len(params))
	for _, p := range params {
		data := make([]float64, len(p.Value.Data))
		copy(data, p.Value.Data)
		weights = append(weights, WeightTensor{
			Name:  p.Name,
			Shape: p.Value.Shape(),
			Data:  data,
		})
	}
	return weights
}

// LoadWeights copies weight tensors back into parameters, matched by name.
// Every parameter must be present with an identical shape.
func LoadWeights(weights []WeightTensor, params []*nn.Parameter) error {
	if len(weights) != len(params) {
		return fmt.Errorf("weight count mismatch: checkpoint has %d tensors, model has %d parameters", len(weights), len(params))
	}
	byName := make(map[string]WeightTensor, len(weights))
	for _, w := range weights {
		byName[w.Name] = w
	}

	for _, p := range params {
		w, ok := byName[p.Name]
		if !ok {
			return fmt.Errorf("checkpoint has no tensor for parameter %s", p.Name)
		}
		shape := p.Value.Shape()
		if len(w.Shape) != len(shape) {
			return fmt.Errorf("shape mismatch for %s: expected %v, got %v", p.Name, shape, w.Shape)
		}
		for i := range shape {
			if w.Shape[i] != shape[i] {
				return fmt.Errorf("shape mismatch for %s: expected %v, got %v", p.Name, shape, w.Shape)
			}
		}
		if len(w.Data) != len(p.Value.Data) {
			return fmt.Errorf("data size mismatch for %s: expected %d, got %d", p.Name, len(p.Value.Data), len(w.Data))
		}
	}

	// Copy only after every tensor validated so a failed load leaves the model untouched
	for _, p := range params {
		copy(p.Value.Data, byName[p.Name].Data)
	}
	return nil
}
