package training

import (
	"fmt"

	"github.com/tsawler/go-train/nn"
)

// Metric accumulates a scalar over the batches of one phase. The learner
// resets every metric at the start of a phase and reads Value at its end.
type Metric interface {
	Name() string
	Reset()
	Update(output *nn.Matrix, labels []int, loss float64) error
	Value() float64
}

// LossMetric averages the per-batch loss weighted by batch size
type LossMetric struct {
	sum   float64
	count int
}

func NewLossMetric() *LossMetric { return &LossMetric{} }

func (m *LossMetric) Name() string { return "loss" }

func (m *LossMetric) Reset() {
	m.sum = 0
	m.count = 0
}

func (m *LossMetric) Update(output *nn.Matrix, labels []int, loss float64) error {
	m.sum += loss * float64(len(labels))
	m.count += len(labels)
	return nil
}

func (m *LossMetric) Value() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// Accuracy is the fraction of samples whose argmax prediction matches the label
type Accuracy struct {
	correct int
	total   int
}

func NewAccuracy() *Accuracy { return &Accuracy{} }

func (m *Accuracy) Name() string { return "accuracy" }

func (m *Accuracy) Reset() {
	m.correct = 0
	m.total = 0
}

func (m *Accuracy) Update(output *nn.Matrix, labels []int, _ float64) error {
	if output.Rows != len(labels) {
		return fmt.Errorf("accuracy: %d outputs for %d labels", output.Rows, len(labels))
	}
	for i, label := range labels {
		if output.ArgMaxRow(i) == label {
			m.correct++
		}
		m.total++
	}
	return nil
}

func (m *Accuracy) Value() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.correct) / float64(m.total)
}

// MacroF1 is the harmonic mean of macro-averaged precision and recall
type MacroF1 struct {
	matrix *ConfusionMatrix
}

func NewMacroF1(classes int) *MacroF1 {
	return &MacroF1{matrix: NewConfusionMatrix(classes)}
}

func (m *MacroF1) Name() string { return "f1" }

func (m *MacroF1) Reset() { m.matrix.Reset() }

func (m *MacroF1) Update(output *nn.Matrix, labels []int, _ float64) error {
	return m.matrix.Update(output, labels)
}

func (m *MacroF1) Value() float64 { return m.matrix.MacroF1() }

// ConfusionMatrix counts predictions per [true class][predicted class]
type ConfusionMatrix struct {
	NumClasses   int
	Matrix       [][]int
	TotalSamples int
}

// NewConfusionMatrix creates an empty matrix for numClasses classes
func NewConfusionMatrix(numClasses int) *ConfusionMatrix {
	matrix := make([][]int, numClasses)
	for i := range matrix {
		matrix[i] = make([]int, numClasses)
	}
	return &ConfusionMatrix{NumClasses: numClasses, Matrix: matrix}
}

// Reset clears all counts
func (cm *ConfusionMatrix) Reset() {
	for i := range cm.Matrix {
		for j := range cm.Matrix[i] {
			cm.Matrix[i][j] = 0
		}
	}
	cm.TotalSamples = 0
}

// Update adds one batch of logits and labels
func (cm *ConfusionMatrix) Update(output *nn.Matrix, labels []int) error {
	if output.Rows != len(labels) {
		return fmt.Errorf("labels length mismatch: expected %d, got %d", output.Rows, len(labels))
	}
	if output.Cols != cm.NumClasses {
		return fmt.Errorf("class count mismatch: expected %d, got %d", cm.NumClasses, output.Cols)
	}
	for i, trueClass := range labels {
		if trueClass < 0 || trueClass >= cm.NumClasses {
			continue
		}
		cm.Matrix[trueClass][output.ArgMaxRow(i)]++
		cm.TotalSamples++
	}
	return nil
}

// MacroPrecision averages precision over classes that were predicted at least once
func (cm *ConfusionMatrix) MacroPrecision() float64 {
	sum := 0.0
	valid := 0
	for class := 0; class < cm.NumClasses; class++ {
		tp := float64(cm.Matrix[class][class])
		fp := 0.0
		for other := 0; other < cm.NumClasses; other++ {
			if other != class {
				fp += float64(cm.Matrix[other][class])
			}
		}
		if tp+fp > 0 {
			sum += tp / (tp + fp)
			valid++
		}
	}
	if valid == 0 {
		return 0
	}
	return sum / float64(valid)
}

// MacroRecall averages recall over classes present in the labels
func (cm *ConfusionMatrix) MacroRecall() float64 {
	sum := 0.0
	valid := 0
	for class := 0; class < cm.NumClasses; class++ {
		tp := float64(cm.Matrix[class][class])
		fn := 0.0
		for other := 0; other < cm.NumClasses; other++ {
			if other != class {
				fn += float64(cm.Matrix[class][other])
			}
		}
		if tp+fn > 0 {
			sum += tp / (tp + fn)
			valid++
		}
	}
	if valid == 0 {
		return 0
	}
	return sum / float64(valid)
}

func (cm *ConfusionMatrix) MacroF1() float64 {
	precision := cm.MacroPrecision()
	recall := cm.MacroRecall()
	if precision+recall == 0 {
		return 0
	}
	return 2 * (precision * recall) / (precision + recall)
}

// Accuracy returns overall classification accuracy
func (cm *ConfusionMatrix) Accuracy() float64 {
	if cm.TotalSamples == 0 {
		return 0
	}
	correct := 0
	for i := 0; i < cm.NumClasses; i++ {
		correct += cm.Matrix[i][i]
	}
	return float64(correct) / float64(cm.TotalSamples)
}
