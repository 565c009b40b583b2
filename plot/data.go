// Package plot builds the wire format consumed by the external plotting
// sidecar and ships it over HTTP. The sidecar renders the images; this
// package only assembles and transports the data.
package plot

import (
	"encoding/json"
	"time"

	"github.com/predstab/predstab/analysis"
)

// PlotType identifies a renderable artifact by its fixed output name.
type PlotType string

const (
	StabilityPlot         PlotType = "stability"
	MismatchPlot          PlotType = "mismatch"
	MisclassificationPlot PlotType = "misclassification"
	PersistencePlot       PlotType = "persistence"
)

// PlotData is the universal JSON payload for the sidecar plotting service.
type PlotData struct {
	PlotType  PlotType  `json:"plot_type"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	RunName   string    `json:"run_name"`

	Series []SeriesData `json:"series"`

	Config PlotConfig `json:"config"`
}

// SeriesData is a single data series within a plot.
type SeriesData struct {
	Name string      `json:"name"`
	Type string      `json:"type"` // "line", "histogram", "heatmap"
	Data []DataPoint `json:"data"`
}

// DataPoint is one sample of a series. Heatmap rows place the row index in X
// and the full row in Row.
type DataPoint struct {
	X   float64   `json:"x"`
	Y   float64   `json:"y,omitempty"`
	Row []float64 `json:"row,omitempty"`
}

// PlotConfig carries per-plot axis labels and rendering hints.
type PlotConfig struct {
	XAxisLabel string `json:"x_axis_label"`
	YAxisLabel string `json:"y_axis_label"`
	ShowLegend bool   `json:"show_legend"`
	Bins       int    `json:"bins,omitempty"`
}

// ToJSON serializes the plot data for transmission or on-disk inspection.
func (pd PlotData) ToJSON() (string, error) {
	b, err := json.MarshalIndent(pd, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FromSeries assembles a line plot from analyzer time series.
func FromSeries(plotType PlotType, title, runName string, series []analysis.Series, xLabel, yLabel string) PlotData {
	out := make([]SeriesData, len(series))
	for i, s := range series {
		points := make([]DataPoint, len(s.Y))
		for j := range s.Y {
			points[j] = DataPoint{X: float64(s.X[j]), Y: s.Y[j]}
		}
		out[i] = SeriesData{Name: s.Label, Type: "line", Data: points}
	}
	return PlotData{
		PlotType:  plotType,
		Title:     title,
		Timestamp: time.Now(),
		RunName:   runName,
		Series:    out,
		Config: PlotConfig{
			XAxisLabel: xLabel,
			YAxisLabel: yLabel,
			ShowLegend: true,
		},
	}
}

// FromHistograms assembles an overlaid histogram plot. Each point carries a
// bin's lower divider in X and its count in Y.
func FromHistograms(plotType PlotType, title, runName string, hists []analysis.Histogram, xLabel string) PlotData {
	out := make([]SeriesData, len(hists))
	bins := 0
	for i, h := range hists {
		bins = len(h.Counts)
		points := make([]DataPoint, len(h.Counts))
		for j := range h.Counts {
			points[j] = DataPoint{X: h.Dividers[j], Y: h.Counts[j]}
		}
		out[i] = SeriesData{Name: h.Label, Type: "histogram", Data: points}
	}
	return PlotData{
		PlotType:  plotType,
		Title:     title,
		Timestamp: time.Now(),
		RunName:   runName,
		Series:    out,
		Config: PlotConfig{
			XAxisLabel: xLabel,
			YAxisLabel: "# of samples",
			ShowLegend: len(hists) > 1,
			Bins:       bins,
		},
	}
}

// FromPersistence assembles the heatmap strip plot: one heatmap row per strip
// row, separator rows carrying -1.
func FromPersistence(title, runName string, result *analysis.PersistenceResult) PlotData {
	points := make([]DataPoint, len(result.Strip))
	for i, row := range result.Strip {
		points[i] = DataPoint{X: float64(i), Row: row}
	}
	return PlotData{
		PlotType:  PersistencePlot,
		Title:     title,
		Timestamp: time.Now(),
		RunName:   runName,
		Series: []SeriesData{
			{Name: "persistence", Type: "heatmap", Data: points},
		},
		Config: PlotConfig{
			XAxisLabel: "Epoch",
			YAxisLabel: "Sample #",
		},
	}
}
