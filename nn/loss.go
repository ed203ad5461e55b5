package nn

import (
	"fmt"
	"math"
)

// Loss interface defines methods that all loss functions must implement.
// Forward returns the mean loss over the batch and dLoss/dOutput.
type Loss interface {
	Forward(output *Matrix, targets []int) (float64, *Matrix, error)
	Name() string
}

// SoftmaxCrossEntropy applies softmax to logits and computes the mean
// negative log-likelihood of integer class targets
type SoftmaxCrossEntropy struct{}

// NewSoftmaxCrossEntropy creates the loss
func NewSoftmaxCrossEntropy() *SoftmaxCrossEntropy {
	return &SoftmaxCrossEntropy{}
}

func (l *SoftmaxCrossEntropy) Name() string { return "SoftmaxCrossEntropy" }

func (l *SoftmaxCrossEntropy) Forward(logits *Matrix, targets []int) (float64, *Matrix, error) {
	if err := checkTargets(logits, targets); err != nil {
		return 0, nil, err
	}

	grad := Zeros(logits.Rows, logits.Cols)
	n := float64(logits.Rows)
	var total float64

	for r := 0; r < logits.Rows; r++ {
		row := logits.Row(r)
		maxVal := row[0]
		for _, v := range row[1:] {
			if v > maxVal {
				maxVal = v
			}
		}
		var sum float64
		grow := grad.Row(r)
		for c, v := range row {
			e := math.Exp(v - maxVal)
			grow[c] = e
			sum += e
		}
		for c := range grow {
			grow[c] /= sum
		}
		p := grow[targets[r]]
		total += -math.Log(math.Max(p, 1e-12))
		grow[targets[r]] -= 1
		for c := range grow {
			grow[c] /= n
		}
	}

	return total / n, grad, nil
}

// MSELoss implements Mean Squared Error against one-hot encoded targets
type MSELoss struct{}

// NewMSELoss creates a new Mean Squared Error loss function
func NewMSELoss() *MSELoss {
	return &MSELoss{}
}

func (l *MSELoss) Name() string { return "MSELoss" }

// Forward computes L = (1/N) * sum((y_pred - onehot(y))^2)
func (l *MSELoss) Forward(output *Matrix, targets []int) (float64, *Matrix, error) {
	if err := checkTargets(output, targets); err != nil {
		return 0, nil, err
	}

	grad := Zeros(output.Rows, output.Cols)
	n := float64(output.Size())
	var total float64
	for r := 0; r < output.Rows; r++ {
		row := output.Row(r)
		grow := grad.Row(r)
		for c, v := range row {
			want := 0.0
			if c == targets[r] {
				want = 1.0
			}
			diff := v - want
			total += diff * diff
			grow[c] = 2 * diff / n
		}
	}
	return total / n, grad, nil
}

func checkTargets(output *Matrix, targets []int) error {
	if output.Rows != len(targets) {
		return fmt.Errorf("batch size mismatch: output has %d rows, got %d targets", output.Rows, len(targets))
	}
	for i, t := range targets {
		if t < 0 || t >= output.Cols {
			return fmt.Errorf("target %d at index %d out of range [0, %d)", t, i, output.Cols)
		}
	}
	return nil
}
