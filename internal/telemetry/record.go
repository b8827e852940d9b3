// Package telemetry ships controller snapshots to external systems.
// Snapshots are queued without blocking the control loop and flushed
// in batches to every configured Sink.
package telemetry

import (
	"context"
	"time"

	"github.com/afroash/vpd-monitor/internal/models"
)

// Record is the flat telemetry form of a snapshot, without history
type Record struct {
	GreenhouseID string              `json:"greenhouse_id"`
	Tick         int64               `json:"tick"`
	Timestamp    time.Time           `json:"timestamp"`
	Temperature  float64             `json:"temperature"`
	Humidity     float64             `json:"humidity"`
	SoilMoisture float64             `json:"soil_moisture"`
	VPD          float64             `json:"vpd"`
	Status       models.VPDStatus    `json:"status"`
	TargetMin    float64             `json:"target_min"`
	TargetMax    float64             `json:"target_max"`
	Fan          models.DeviceStatus `json:"fan"`
	Mister       models.DeviceStatus `json:"mister"`
	Mode         models.ControlMode  `json:"mode"`
	Stage        models.GrowthStage  `json:"stage"`
}

// RecordFromSnapshot flattens s
func RecordFromSnapshot(s models.Snapshot) Record {
	return Record{
		GreenhouseID: s.GreenhouseID,
		Tick:         s.Tick,
		Timestamp:    s.Reading.Timestamp,
		Temperature:  s.Reading.Temperature,
		Humidity:     s.Reading.Humidity,
		SoilMoisture: s.Reading.SoilMoisture,
		VPD:          s.Reading.VPD,
		Status:       s.Classification.Status,
		TargetMin:    s.Classification.TargetRange.Min,
		TargetMax:    s.Classification.TargetRange.Max,
		Fan:          s.Actuators.Fan,
		Mister:       s.Actuators.Mister,
		Mode:         s.Mode,
		Stage:        s.Stage,
	}
}

// Sink delivers batches of records somewhere
type Sink interface {
	Name() string
	Send(ctx context.Context, batch []Record) error
	Close() error
}
