package training

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// ProgressBar renders a PyTorch-style progress line that redraws in place
type ProgressBar struct {
	out         io.Writer
	description string
	total       int
	current     int
	startTime   time.Time
	width       int
	metrics     map[string]float64
}

// NewProgressBar creates a progress bar over total steps
func NewProgressBar(out io.Writer, description string, total int) *ProgressBar {
	return &ProgressBar{
		out:         out,
		description: description,
		total:       total,
		startTime:   time.Now(),
		width:       40,
		metrics:     make(map[string]float64),
	}
}

// Update advances the progress bar
func (pb *ProgressBar) Update(step int, metrics map[string]float64) {
	pb.current = step
	for k, v := range metrics {
		pb.metrics[k] = v
	}
	pb.render()
}

// Finish completes the progress bar and ends the line
func (pb *ProgressBar) Finish() {
	pb.current = pb.total
	pb.render()
	fmt.Fprintln(pb.out)
}

func (pb *ProgressBar) render() {
	percentage := 1.0
	if pb.total > 0 {
		percentage = float64(pb.current) / float64(pb.total)
	}
	if percentage > 1.0 {
		percentage = 1.0
	}

	filled := int(percentage * float64(pb.width))
	bar := strings.Repeat("█", filled) + strings.Repeat(" ", pb.width-filled)

	elapsed := time.Since(pb.startTime)
	var eta time.Duration
	var rate float64
	if pb.current > 0 && elapsed > 0 {
		rate = float64(pb.current) / elapsed.Seconds()
		eta = time.Duration(float64(elapsed)/percentage) - elapsed
	}

	line := fmt.Sprintf("\r%s: %3.0f%%|%s| %d/%d [%s<%s",
		pb.description, percentage*100, bar, pb.current, pb.total,
		formatDuration(elapsed), formatDuration(eta))
	if rate > 0 {
		line += fmt.Sprintf(", %.2fbatch/s", rate)
	}

	keys := make([]string, 0, len(pb.metrics))
	for k := range pb.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		line += ", " + formatMetric(key, pb.metrics[key])
	}
	line += "]"

	fmt.Fprint(pb.out, line)
}

// formatDuration formats duration as MM:SS
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

func formatMetric(key string, value float64) string {
	if strings.Contains(key, "accuracy") {
		return fmt.Sprintf("%s=%.2f%%", key, value*100)
	}
	return fmt.Sprintf("%s=%.4f", key, value)
}

// ProgressCallback draws one bar per phase and prints the epoch's metrics
// when the epoch ends
type ProgressCallback struct {
	out    io.Writer
	epochs int
	bar    *ProgressBar
}

// NewProgressCallback creates a progress callback for a run of epochs
func NewProgressCallback(out io.Writer, epochs int) *ProgressCallback {
	return &ProgressCallback{out: out, epochs: epochs}
}

func (p *ProgressCallback) Name() string { return "progress" }

func (p *ProgressCallback) OnBatchBegin(info *BatchInfo) error {
	if info.Batch == 0 {
		if p.bar != nil {
			p.bar.Finish()
		}
		desc := fmt.Sprintf("Epoch %d/%d (%s)", info.Epoch, p.epochs, info.Phase)
		p.bar = NewProgressBar(p.out, desc, info.BatchesPerPhase)
	}
	return nil
}

func (p *ProgressCallback) OnBatchEnd(info *BatchInfo) error {
	if p.bar == nil {
		return nil
	}
	p.bar.Update(info.Batch+1, map[string]float64{"loss": info.Loss})
	return nil
}

func (p *ProgressCallback) OnEpochEnd(info *EpochInfo) error {
	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
	}
	if info.Result == nil {
		return nil
	}
	parts := make([]string, 0, len(info.Result.Metrics))
	for _, name := range info.Result.Names() {
		parts = append(parts, formatMetric(name, info.Result.Metrics[name]))
	}
	fmt.Fprintf(p.out, "Epoch %d/%d: %s (%s)\n", info.Epoch, p.epochs, strings.Join(parts, ", "), info.Result.Duration.Round(time.Millisecond))
	return nil
}
