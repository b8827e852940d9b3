package greenhouse

import "github.com/afroash/vpd-monitor/internal/models"

// State is the operator-visible greenhouse aggregate.
type State struct {
	Actuators models.ActuatorState `json:"actuators"`
	Mode      models.ControlMode   `json:"mode"`
	Stage     models.GrowthStage   `json:"stage"`
}

// DefaultState is Automatic mode, Early Veg, everything off.
func DefaultState() State {
	return State{
		Actuators: models.AllOff(),
		Mode:      models.ModeAutomatic,
		Stage:     models.StageEarlyVeg,
	}
}
