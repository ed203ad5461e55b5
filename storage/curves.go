package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tsawler/go-train/training"
)

// PlotType names a kind of plot in curves.json
type PlotType string

const (
	LossCurves           PlotType = "loss_curves"
	AccuracyCurves       PlotType = "accuracy_curves"
	LearningRateSchedule PlotType = "learning_rate_schedule"
)

// PlotData is one plot: a set of series plus how to draw them
type PlotData struct {
	PlotType  PlotType     `json:"plot_type"`
	Title     string       `json:"title"`
	Timestamp time.Time    `json:"timestamp"`
	Series    []SeriesData `json:"series"`
	Config    PlotConfig   `json:"config"`
}

// SeriesData is a single line in a plot
type SeriesData struct {
	Name  string            `json:"name"`
	Type  string            `json:"type"`
	Data  []DataPoint       `json:"data"`
	Style map[string]string `json:"style,omitempty"`
}

// DataPoint is one (epoch, value) pair
type DataPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PlotConfig holds axis and layout settings
type PlotConfig struct {
	XAxisLabel string `json:"x_axis_label"`
	YAxisLabel string `json:"y_axis_label"`
	XAxisScale string `json:"x_axis_scale"` // "linear", "log"
	YAxisScale string `json:"y_axis_scale"`
	ShowLegend bool   `json:"show_legend"`
	ShowGrid   bool   `json:"show_grid"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// Curves is the document written to curves.json
type Curves struct {
	Plots []PlotData `json:"plots"`
}

type curveSeries struct {
	name   string
	metric string
	color  string
	dashed bool
}

var (
	lossSeries = []curveSeries{
		{"Training Loss", training.TrainPrefix + "loss", "#FF6B6B", false},
		{"Validation Loss", training.ValidationPrefix + "loss", "#FF9F43", true},
	}
	accuracySeries = []curveSeries{
		{"Training Accuracy", training.TrainPrefix + "accuracy", "#4ECDC4", false},
		{"Validation Accuracy", training.ValidationPrefix + "accuracy", "#5F27CD", true},
	}
)

// CurveRecorder collects epoch results and writes loss, accuracy and
// learning rate curves when training ends
type CurveRecorder struct {
	mu      sync.Mutex
	path    string
	logger  *slog.Logger
	results []*training.EpochResult
}

func NewCurveRecorder(path string, logger *slog.Logger) *CurveRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CurveRecorder{path: path, logger: logger}
}

func (c *CurveRecorder) Name() string { return "curves" }

// Seed preloads results from an earlier run so resumed curves start at epoch 1
func (c *CurveRecorder) Seed(history *training.History) {
	if history == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = history.Results()
}

func (c *CurveRecorder) OnEpochEnd(info *training.EpochInfo) error {
	if info.Result == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.results[:0]
	for _, r := range c.results {
		if r.Epoch < info.Result.Epoch {
			kept = append(kept, r)
		}
	}
	c.results = append(kept, info.Result)
	return nil
}

func (c *CurveRecorder) OnTrainEnd() error {
	data, err := json.MarshalIndent(c.Curves(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode curves: %w", err)
	}
	if err := retryWrite(c.logger, defaultBackOff(), c.path, data); err != nil {
		return err
	}
	c.logger.Debug("Training curves written", "path", c.path)
	return nil
}

// Curves builds the plots from the results recorded so far. Plots with no
// data are left out.
func (c *CurveRecorder) Curves() *Curves {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	out := &Curves{}
	if p, ok := c.metricPlot(LossCurves, "Training and Validation Loss", "Loss", lossSeries, now); ok {
		out.Plots = append(out.Plots, p)
	}
	if p, ok := c.metricPlot(AccuracyCurves, "Training and Validation Accuracy", "Accuracy", accuracySeries, now); ok {
		out.Plots = append(out.Plots, p)
	}
	if len(c.results) > 0 {
		lr := SeriesData{
			Name:  "Learning Rate",
			Type:  "line",
			Style: map[string]string{"color": "#6C5CE7"},
		}
		for _, r := range c.results {
			lr.Data = append(lr.Data, DataPoint{X: float64(r.Epoch), Y: r.LearningRate})
		}
		out.Plots = append(out.Plots, PlotData{
			PlotType:  LearningRateSchedule,
			Title:     "Learning Rate Schedule",
			Timestamp: now,
			Series:    []SeriesData{lr},
			Config:    plotConfig("Learning Rate", "log"),
		})
	}
	return out
}

func (c *CurveRecorder) metricPlot(kind PlotType, title, yLabel string, series []curveSeries, now time.Time) (PlotData, bool) {
	plot := PlotData{
		PlotType:  kind,
		Title:     title,
		Timestamp: now,
		Config:    plotConfig(yLabel, "linear"),
	}
	for _, s := range series {
		sd := SeriesData{Name: s.name, Type: "line", Style: map[string]string{"color": s.color}}
		if s.dashed {
			sd.Style["line_style"] = "dashed"
		}
		for _, r := range c.results {
			if v, ok := r.Get(s.metric); ok {
				sd.Data = append(sd.Data, DataPoint{X: float64(r.Epoch), Y: v})
			}
		}
		if len(sd.Data) > 0 {
			plot.Series = append(plot.Series, sd)
		}
	}
	return plot, len(plot.Series) > 0
}

func plotConfig(yLabel, yScale string) PlotConfig {
	return PlotConfig{
		XAxisLabel: "Epoch",
		YAxisLabel: yLabel,
		XAxisScale: "linear",
		YAxisScale: yScale,
		ShowLegend: true,
		ShowGrid:   true,
		Width:      800,
		Height:     600,
	}
}
