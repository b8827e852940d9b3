package vpd

import "github.com/afroash/vpd-monitor/internal/models"

// DecideActuators is the automatic control rule.
// Above target: ventilate and mist. Below target: ventilate only. Inside: idle.
func DecideActuators(vpd float64, target models.TargetRange) models.ActuatorState {
	switch {
	case vpd > target.Max:
		return models.ActuatorState{Fan: models.DeviceOn, Mister: models.DeviceOn}
	case vpd < target.Min:
		return models.ActuatorState{Fan: models.DeviceOn, Mister: models.DeviceOff}
	default:
		return models.AllOff()
	}
}
