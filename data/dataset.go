package data

import (
	"fmt"
	"math"
	"math/rand"
)

// Dataset interface defines methods that all datasets must implement
type Dataset interface {
	Len() int                            // Total number of samples
	Get(idx int) ([]float64, int, error) // Returns features and class label of one sample
}

// Describer is implemented by datasets that know their own dimensions
type Describer interface {
	Features() int
	Classes() int
}

// InMemoryDataset holds all samples in memory
type InMemoryDataset struct {
	features [][]float64
	labels   []int
	classes  int
}

// NewInMemoryDataset validates and wraps the given samples
func NewInMemoryDataset(features [][]float64, labels []int, classes int) (*InMemoryDataset, error) {
	if len(features) != len(labels) {
		return nil, fmt.Errorf("feature count %d does not match label count %d", len(features), len(labels))
	}
	if classes <= 0 {
		return nil, fmt.Errorf("class count must be positive, got %d", classes)
	}
	width := -1
	for i, f := range features {
		if width == -1 {
			width = len(f)
		} else if len(f) != width {
			return nil, fmt.Errorf("sample %d has %d features, expected %d", i, len(f), width)
		}
		if labels[i] < 0 || labels[i] >= classes {
			return nil, fmt.Errorf("sample %d has label %d outside [0, %d)", i, labels[i], classes)
		}
	}
	return &InMemoryDataset{features: features, labels: labels, classes: classes}, nil
}

func (d *InMemoryDataset) Len() int { return len(d.features) }

func (d *InMemoryDataset) Get(idx int) ([]float64, int, error) {
	if idx < 0 || idx >= len(d.features) {
		return nil, 0, fmt.Errorf("index %d out of range [0, %d)", idx, len(d.features))
	}
	return d.features[idx], d.labels[idx], nil
}

func (d *InMemoryDataset) Features() int {
	if len(d.features) == 0 {
		return 0
	}
	return len(d.features[0])
}

func (d *InMemoryDataset) Classes() int { return d.classes }

// Spiral generates the classic interleaved-spirals classification problem
// with two features
func Spiral(samples, classes int, noise float64, seed int64) (*InMemoryDataset, error) {
	if samples <= 0 || classes <= 0 {
		return nil, fmt.Errorf("spiral: samples and classes must be positive, got %d, %d", samples, classes)
	}
	rng := rand.New(rand.NewSource(seed))
	perClass := samples / classes
	if perClass == 0 {
		perClass = 1
	}

	var features [][]float64
	var labels []int
	for c := 0; c < classes; c++ {
		for i := 0; i < perClass; i++ {
			r := float64(i) / float64(perClass)
			theta := float64(c)*2*math.Pi/float64(classes) + r*4 + rng.NormFloat64()*noise
			features = append(features, []float64{r * math.Sin(theta), r * math.Cos(theta)})
			labels = append(labels, c)
		}
	}
	return NewInMemoryDataset(features, labels, classes)
}

// Blobs generates isotropic Gaussian clusters, one per class
func Blobs(samples, classes, features int, seed int64) (*InMemoryDataset, error) {
	if samples <= 0 || classes <= 0 || features <= 0 {
		return nil, fmt.Errorf("blobs: samples, classes and features must be positive, got %d, %d, %d", samples, classes, features)
	}
	rng := rand.New(rand.NewSource(seed))

	centers := make([][]float64, classes)
	for c := range centers {
		centers[c] = make([]float64, features)
		for f := range centers[c] {
			centers[c][f] = rng.Float64()*10 - 5
		}
	}

	xs := make([][]float64, samples)
	labels := make([]int, samples)
	for i := range xs {
		c := i % classes
		x := make([]float64, features)
		for f := range x {
			x[f] = centers[c][f] + rng.NormFloat64()
		}
		xs[i] = x
		labels[i] = c
	}
	return NewInMemoryDataset(xs, labels, classes)
}

// Subset exposes a view of a dataset restricted to the given indices
type Subset struct {
	dataset Dataset
	indices []int
}

// NewSubset creates a subset view
func NewSubset(dataset Dataset, indices []int) *Subset {
	return &Subset{dataset: dataset, indices: indices}
}

func (s *Subset) Len() int { return len(s.indices) }

func (s *Subset) Get(idx int) ([]float64, int, error) {
	if idx < 0 || idx >= len(s.indices) {
		return nil, 0, fmt.Errorf("subset index %d out of range [0, %d)", idx, len(s.indices))
	}
	return s.dataset.Get(s.indices[idx])
}

// SplitTrainValidation shuffles indices with seed and splits off fraction for validation
func SplitTrainValidation(dataset Dataset, fraction float64, seed int64) (*Subset, *Subset, error) {
	if fraction < 0 || fraction >= 1 {
		return nil, nil, fmt.Errorf("validation fraction must be in [0, 1), got %f", fraction)
	}
	n := dataset.Len()
	indices := rand.New(rand.NewSource(seed)).Perm(n)
	valCount := int(math.Round(float64(n) * fraction))
	return NewSubset(dataset, indices[valCount:]), NewSubset(dataset, indices[:valCount]), nil
}
