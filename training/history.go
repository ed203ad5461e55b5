package training

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Metric names in an EpochResult are prefixed with the phase they were
// measured in
const (
	TrainPrefix      = "train:"
	ValidationPrefix = "val:"
)

// EpochResult holds everything measured during one epoch
type EpochResult struct {
	Epoch        int                `json:"epoch" msgpack:"epoch"`
	LearningRate float64            `json:"learning_rate" msgpack:"learning_rate"`
	Metrics      map[string]float64 `json:"metrics" msgpack:"metrics"`
	Duration     time.Duration      `json:"duration" msgpack:"duration"`
}

// NewEpochResult creates an empty result for epoch
func NewEpochResult(epoch int, learningRate float64) *EpochResult {
	return &EpochResult{
		Epoch:        epoch,
		LearningRate: learningRate,
		Metrics:      make(map[string]float64),
	}
}

// Set records a metric value
func (r *EpochResult) Set(name string, value float64) {
	if r.Metrics == nil {
		r.Metrics = make(map[string]float64)
	}
	r.Metrics[name] = value
}

// Get returns a metric value
func (r *EpochResult) Get(name string) (float64, bool) {
	v, ok := r.Metrics[name]
	return v, ok
}

// Names returns metric names in sorted order
func (r *EpochResult) Names() []string {
	names := make([]string, 0, len(r.Metrics))
	for k := range r.Metrics {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (r *EpochResult) String() string {
	parts := make([]string, 0, len(r.Metrics)+2)
	parts = append(parts, fmt.Sprintf("epoch=%d", r.Epoch), fmt.Sprintf("lr=%.6f", r.LearningRate))
	for _, name := range r.Names() {
		parts = append(parts, fmt.Sprintf("%s=%.4f", name, r.Metrics[name]))
	}
	return strings.Join(parts, " ")
}

// Mode says whether a smaller or a larger metric value is better
type Mode string

const (
	MinMode Mode = "min"
	MaxMode Mode = "max"
)

// ParseMode validates a mode string
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case MinMode:
		return MinMode, nil
	case MaxMode:
		return MaxMode, nil
	default:
		return "", fmt.Errorf("invalid metric mode %q: must be 'min' or 'max'", s)
	}
}

// Better reports whether candidate improves on best
func (m Mode) Better(candidate, best float64) bool {
	if m == MaxMode {
		return candidate > best
	}
	return candidate < best
}

// History is the append-only record of a run's epoch results
type History struct {
	results []*EpochResult
}

// NewHistory creates an empty history
func NewHistory() *History {
	return &History{}
}

// Add appends an epoch result
func (h *History) Add(result *EpochResult) {
	h.results = append(h.results, result)
}

// Len returns the number of recorded epochs
func (h *History) Len() int {
	return len(h.results)
}

// Results returns the recorded results in order
func (h *History) Results() []*EpochResult {
	out := make([]*EpochResult, len(h.results))
	copy(out, h.results)
	return out
}

// Last returns the most recent result
func (h *History) Last() (*EpochResult, bool) {
	if len(h.results) == 0 {
		return nil, false
	}
	return h.results[len(h.results)-1], true
}

// Epochs returns the epoch indices in order
func (h *History) Epochs() []int {
	out := make([]int, len(h.results))
	for i, r := range h.results {
		out[i] = r.Epoch
	}
	return out
}

// Series returns a metric's values across epochs, skipping epochs without it
func (h *History) Series(metric string) []float64 {
	var out []float64
	for _, r := range h.results {
		if v, ok := r.Metrics[metric]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Best returns the result with the best value of metric under mode
func (h *History) Best(metric string, mode Mode) (*EpochResult, bool) {
	var best *EpochResult
	for _, r := range h.results {
		v, ok := r.Metrics[metric]
		if !ok {
			continue
		}
		if best == nil || mode.Better(v, best.Metrics[metric]) {
			best = r
		}
	}
	return best, best != nil
}
