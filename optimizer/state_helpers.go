package optimizer

import (
	"fmt"
	"strings"

	"github.com/tsawler/go-train/nn"
)

// Common helper functions for optimizer state management

// slotName builds names like "momentum_0", "m_3"
func slotName(kind string, index int) string {
	return fmt.Sprintf("%s_%d", kind, index)
}

// extractBufferIndex extracts the buffer index from slot names like "momentum_0", "squared_grad_avg_1"
func extractBufferIndex(name string) int {
	lastUnderscoreIdx := strings.LastIndex(name, "_")
	if lastUnderscoreIdx == -1 {
		return -1
	}
	var idx int
	if n, err := fmt.Sscanf(name[lastUnderscoreIdx+1:], "%d", &idx); n == 1 && err == nil {
		return idx
	}
	return -1
}

// extractBufferKind returns the part of a slot name before the index
func extractBufferKind(name string) string {
	lastUnderscoreIdx := strings.LastIndex(name, "_")
	if lastUnderscoreIdx == -1 {
		return name
	}
	return name[:lastUnderscoreIdx]
}

// newBuffers allocates one zeroed buffer per parameter
func newBuffers(params []*nn.Parameter) [][]float64 {
	buffers := make([][]float64, len(params))
	for i, p := range params {
		buffers[i] = make([]float64, p.Value.Size())
	}
	return buffers
}

// extractSlots copies buffers out into checkpoint slots
func extractSlots(kind string, buffers [][]float64, params []*nn.Parameter) []Slot {
	slots := make([]Slot, 0, len(buffers))
	for i, buf := range buffers {
		data := make([]float64, len(buf))
		copy(data, buf)
		slots = append(slots, Slot{
			Name:  slotName(kind, i),
			Shape: params[i].Value.Shape(),
			Data:  data,
		})
	}
	return slots
}

// restoreSlots copies checkpoint slots of the given kind back into buffers
func restoreSlots(kind string, slots []Slot, buffers [][]float64) error {
	restored := 0
	for _, slot := range slots {
		if extractBufferKind(slot.Name) != kind {
			continue
		}
		idx := extractBufferIndex(slot.Name)
		if idx < 0 || idx >= len(buffers) {
			return fmt.Errorf("invalid buffer index in slot %s", slot.Name)
		}
		if len(slot.Data) != len(buffers[idx]) {
			return fmt.Errorf("data size mismatch for %s: expected %d elements, got %d",
				slot.Name, len(buffers[idx]), len(slot.Data))
		}
		copy(buffers[idx], slot.Data)
		restored++
	}
	if restored != len(buffers) {
		return fmt.Errorf("expected %d %s slots, restored %d", len(buffers), kind, restored)
	}
	return nil
}

// extractParam safely extracts a hyperparameter from the state map
func extractParam(params map[string]float64, key string, defaultValue float64) float64 {
	if val, ok := params[key]; ok {
		return val
	}
	return defaultValue
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
