package device

import (
	"errors"
	"runtime"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Device
		wantErr bool
	}{
		{name: "plain cpu", input: "cpu", want: Device{Kind: CPU}},
		{name: "upper case", input: " CPU ", want: Device{Kind: CPU}},
		{name: "cpu with workers", input: "cpu:4", want: Device{Kind: CPU, Index: 4}},
		{name: "cpu zero workers", input: "cpu:0", wantErr: true},
		{name: "cpu bad index", input: "cpu:x", wantErr: true},
		{name: "cuda", input: "cuda:0", wantErr: true},
		{name: "garbage", input: "tpu", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestUnsupportedDeviceSentinel(t *testing.T) {
	_, err := Parse("mps")
	if !errors.Is(err, ErrUnsupportedDevice) {
		t.Fatalf("expected ErrUnsupportedDevice, got %v", err)
	}
}

func TestWorkersAndString(t *testing.T) {
	d := MustParse("cpu:2")
	if d.Workers() != 2 {
		t.Errorf("expected 2 workers, got %d", d.Workers())
	}
	if d.String() != "cpu:2" {
		t.Errorf("unexpected string %q", d.String())
	}
	all := MustParse("cpu")
	if all.Workers() != runtime.NumCPU() {
		t.Errorf("expected %d workers, got %d", runtime.NumCPU(), all.Workers())
	}
}

func TestDescribe(t *testing.T) {
	desc := MustParse("cpu:1").Describe()
	if !strings.HasPrefix(desc, "cpu:1 [") {
		t.Errorf("unexpected description %q", desc)
	}
	if !strings.Contains(desc, "workers=1") {
		t.Errorf("description missing worker count: %q", desc)
	}
}
