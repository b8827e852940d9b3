package models

import "time"

// Snapshot is what the presentation layer sees after every tick or operator action.
type Snapshot struct {
	GreenhouseID   string          `json:"greenhouse_id"`
	Reading        SensorReading   `json:"reading"`
	Classification Classification  `json:"classification"`
	Actuators      ActuatorState   `json:"actuators"`
	Mode           ControlMode     `json:"mode"`
	Stage          GrowthStage     `json:"stage"`
	History        []SensorReading `json:"history"`
	Tick           int64           `json:"tick"`
	CreatedAt      time.Time       `json:"created_at"`
}
