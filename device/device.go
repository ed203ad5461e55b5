// Package device resolves the device identifiers accepted in training
// configuration. Only CPU execution is available; accelerator names are
// recognised so that callers get a clear error instead of a silent fallback.
package device

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// ErrUnsupportedDevice is returned for device strings this build cannot run on
var ErrUnsupportedDevice = errors.New("unsupported device")

// Kind identifies the class of device
type Kind int

const (
	CPU Kind = iota
)

func (k Kind) String() string {
	switch k {
	case CPU:
		return "cpu"
	default:
		return "unknown"
	}
}

// Device is a resolved compute target
type Device struct {
	Kind Kind
	// Index is the worker hint for "cpu:N"; 0 means all logical cores
	Index int
}

// Parse resolves a device string such as "cpu" or "cpu:4"
func Parse(s string) (Device, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	kind, index, hasIndex := strings.Cut(name, ":")

	switch kind {
	case "cpu":
		if !hasIndex {
			return Device{Kind: CPU}, nil
		}
		n, err := strconv.Atoi(index)
		if err != nil || n < 1 {
			return Device{}, fmt.Errorf("invalid cpu worker count %q in device %q", index, s)
		}
		return Device{Kind: CPU, Index: n}, nil
	case "cuda", "gpu", "mps", "metal":
		return Device{}, fmt.Errorf("%w: %q (only cpu is available)", ErrUnsupportedDevice, s)
	default:
		return Device{}, fmt.Errorf("%w: %q", ErrUnsupportedDevice, s)
	}
}

// MustParse is like Parse but panics on error
func MustParse(s string) Device {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Workers returns the number of worker threads the device allows
func (d Device) Workers() int {
	if d.Index > 0 {
		return d.Index
	}
	return runtime.NumCPU()
}

func (d Device) String() string {
	if d.Index > 0 {
		return fmt.Sprintf("%s:%d", d.Kind, d.Index)
	}
	return d.Kind.String()
}

// Describe returns a one-line hardware description for training summaries
func (d Device) Describe() string {
	brand := cpuid.CPU.BrandName
	if brand == "" {
		brand = runtime.GOARCH
	}

	var features []string
	for _, f := range []struct {
		id   cpuid.FeatureID
		name string
	}{
		{cpuid.AVX512F, "avx512f"},
		{cpuid.AVX2, "avx2"},
		{cpuid.FMA3, "fma3"},
		{cpuid.ASIMD, "neon"},
	} {
		if cpuid.CPU.Supports(f.id) {
			features = append(features, f.name)
		}
	}
	simd := "none"
	if len(features) > 0 {
		simd = strings.Join(features, ",")
	}

	return fmt.Sprintf("%s [%s, %d physical / %d logical cores, simd=%s, workers=%d]",
		d, brand, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, simd, d.Workers())
}
