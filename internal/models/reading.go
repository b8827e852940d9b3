package models

import (
	"fmt"
	"time"
)

// DisplayTimeLayout is the hour:minute format shown next to each reading.
const DisplayTimeLayout = "15:04"

// SensorReading is one sample of the greenhouse environment.
// Readings are values: a new tick always produces a new SensorReading.
type SensorReading struct {
	Temperature  float64   `json:"temperature"`
	Humidity     float64   `json:"humidity"`
	SoilMoisture float64   `json:"soil_moisture"`
	VPD          float64   `json:"vpd"`
	Timestamp    time.Time `json:"timestamp"`
	DisplayTime  string    `json:"display_time"`
}

func (r SensorReading) String() string {
	return fmt.Sprintf("Time: %s, Temperature: %.1f°C, Humidity: %.1f%%, Soil: %.1f%%, VPD: %.2f kPa",
		r.DisplayTime,
		r.Temperature,
		r.Humidity,
		r.SoilMoisture,
		r.VPD)
}

// StampReading sets both timestamps of a reading from at.
func StampReading(r SensorReading, at time.Time) SensorReading {
	r.Timestamp = at
	r.DisplayTime = at.Format(DisplayTimeLayout)
	return r
}
