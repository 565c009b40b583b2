package training

import (
	"encoding/json"
	"fmt"
	"os"
)

// MetricWriter is an optional observability sink for scalar time series keyed
// by tag and indexed by epoch.
type MetricWriter interface {
	AddScalar(tag string, value float64, step int)
}

// NopWriter discards all scalars. A valid configuration when no observability
// sink is wanted.
type NopWriter struct{}

func (NopWriter) AddScalar(tag string, value float64, step int) {}

type scalarRecord struct {
	Tag   string  `json:"tag"`
	Value float64 `json:"value"`
	Step  int     `json:"step"`
}

// JSONLWriter appends one JSON object per scalar to a file, for consumption
// by external dashboards.
type JSONLWriter struct {
	file    *os.File
	encoder *json.Encoder
}

// NewJSONLWriter opens (or creates) the scalar log file for appending.
func NewJSONLWriter(path string) (*JSONLWriter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open scalar log: %v", err)
	}
	return &JSONLWriter{file: file, encoder: json.NewEncoder(file)}, nil
}

// AddScalar appends one scalar record. Encoding errors are swallowed; the
// sink is best-effort and must never interrupt training.
func (w *JSONLWriter) AddScalar(tag string, value float64, step int) {
	_ = w.encoder.Encode(scalarRecord{Tag: tag, Value: value, Step: step})
}

// Close closes the underlying file.
func (w *JSONLWriter) Close() error {
	return w.file.Close()
}
