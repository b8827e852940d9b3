// Package advisory asks a language model for a free-text crop report
// built from the current greenhouse readings.
package advisory

import (
	"context"
	"fmt"
	"strings"

	"github.com/afroash/vpd-monitor/internal/models"
)

// Texts shown instead of a model answer.
const (
	FailureText    = "Failed to fetch AI analysis. Check your network or API configuration."
	NoResponseText = "No response"
)

// DefaultEnclosure describes the physical test rig in the prompt.
const DefaultEnclosure = "a small experimental greenhouse (20x20x30 cm) using ESP32-C3"

// Query is the snapshot of readings sent to the model.
type Query struct {
	Temperature  float64
	Humidity     float64
	VPD          float64
	SoilMoisture float64
	Stage        models.GrowthStage
	TargetRange  models.TargetRange
	Enclosure    string
}

// QueryFromSnapshot extracts the advisory inputs from a controller snapshot
func QueryFromSnapshot(snap models.Snapshot, enclosure string) Query {
	if enclosure == "" {
		enclosure = DefaultEnclosure
	}
	return Query{
		Temperature:  snap.Reading.Temperature,
		Humidity:     snap.Reading.Humidity,
		VPD:          snap.Reading.VPD,
		SoilMoisture: snap.Reading.SoilMoisture,
		Stage:        snap.Stage,
		TargetRange:  snap.Classification.TargetRange,
		Enclosure:    enclosure,
	}
}

// Analyzer turns a query into report text.
type Analyzer interface {
	Analyze(ctx context.Context, q Query) (string, error)
}

// AnalyzerFunc adapts a function to Analyzer
type AnalyzerFunc func(ctx context.Context, q Query) (string, error)

// Analyze implements Analyzer
func (f AnalyzerFunc) Analyze(ctx context.Context, q Query) (string, error) {
	return f(ctx, q)
}

// BuildPrompt renders the instruction text for q.
func BuildPrompt(q Query) string {
	var b strings.Builder
	b.WriteString("Analyze this greenhouse sensor data:\n")
	fmt.Fprintf(&b, "Temperature: %g°C\n", q.Temperature)
	fmt.Fprintf(&b, "Humidity: %g%%\n", q.Humidity)
	fmt.Fprintf(&b, "VPD: %g kPa\n", q.VPD)
	fmt.Fprintf(&b, "Soil Moisture: %g%%\n\n", q.SoilMoisture)

	fmt.Fprintf(&b, "Context: This is %s.\n", q.Enclosure)
	if q.Stage != "" {
		fmt.Fprintf(&b, "Growth stage: %s.\n", q.Stage)
	}
	fmt.Fprintf(&b, "Target VPD: %g - %g kPa.\n\n", q.TargetRange.Min, q.TargetRange.Max)

	b.WriteString("Please provide:\n")
	b.WriteString("1. Short status summary (is it healthy?)\n")
	b.WriteString("2. Recommended actions for Fan or Misting system.\n")
	b.WriteString("3. Potential risks based on current values.\n\n")
	b.WriteString("Keep the response concise and professional, formatted for a dashboard.\n")
	return b.String()
}
