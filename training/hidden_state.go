package training

import (
	"encoding/json"
	"sort"

	"github.com/tsawler/go-train/optimizer"
)

// HiddenState is the resume payload stored alongside each checkpoint.
// Optimizer holds the optimizer state dict; Values holds callback and
// checkpoint-strategy state under namespaced keys such as
// "scheduler/last_epoch".
type HiddenState struct {
	Optimizer *optimizer.State `json:"optimizer,omitempty" msgpack:"optimizer,omitempty"`
	Values    map[string]any   `json:"values" msgpack:"values"`
}

// NewHiddenState returns an empty hidden state
func NewHiddenState() *HiddenState {
	return &HiddenState{Values: make(map[string]any)}
}

// Set stores a value under key
func (h *HiddenState) Set(key string, value any) {
	if h.Values == nil {
		h.Values = make(map[string]any)
	}
	h.Values[key] = value
}

// Has reports whether key is present
func (h *HiddenState) Has(key string) bool {
	_, ok := h.Values[key]
	return ok
}

// Keys returns the stored keys in sorted order
func (h *HiddenState) Keys() []string {
	keys := make([]string, 0, len(h.Values))
	for k := range h.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Float returns a numeric value. Decoders hand numbers back as different
// Go types (float64 from JSON and protobuf, sized ints from msgpack), so
// every numeric kind is accepted.
func (h *HiddenState) Float(key string) (float64, bool) {
	switch v := h.Values[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Int returns a numeric value truncated to int
func (h *HiddenState) Int(key string) (int, bool) {
	f, ok := h.Float(key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Bool returns a boolean value
func (h *HiddenState) Bool(key string) (bool, bool) {
	b, ok := h.Values[key].(bool)
	return b, ok
}

// String returns a string value
func (h *HiddenState) String(key string) (string, bool) {
	s, ok := h.Values[key].(string)
	return s, ok
}
