package models

import "fmt"

// DeviceStatus is the binary state of an actuator.
type DeviceStatus string

const (
	DeviceOff DeviceStatus = "OFF"
	DeviceOn  DeviceStatus = "ON"
)

// Toggle returns the opposite status.
func (d DeviceStatus) Toggle() DeviceStatus {
	if d == DeviceOn {
		return DeviceOff
	}
	return DeviceOn
}

// ControlMode decides who may change actuator state.
type ControlMode string

const (
	ModeAutomatic ControlMode = "Automatic"
	ModeManual    ControlMode = "Manual"
)

// ParseControlMode accepts the mode names, case sensitive, plus the short AUTO/MANUAL forms.
func ParseControlMode(s string) (ControlMode, error) {
	switch s {
	case string(ModeAutomatic), "AUTO", "auto", "automatic":
		return ModeAutomatic, nil
	case string(ModeManual), "MANUAL", "manual":
		return ModeManual, nil
	}
	return "", fmt.Errorf("unknown control mode %q", s)
}

// Actuator names a controlled device.
type Actuator string

const (
	ActuatorFan    Actuator = "fan"
	ActuatorMister Actuator = "mister"
)

// ActuatorState holds the status of both actuators.
type ActuatorState struct {
	Fan    DeviceStatus `json:"fan"`
	Mister DeviceStatus `json:"mister"`
}

// AllOff is the idle actuator state.
func AllOff() ActuatorState {
	return ActuatorState{Fan: DeviceOff, Mister: DeviceOff}
}

// FanOn reports whether the fan is running.
func (a ActuatorState) FanOn() bool {
	return a.Fan == DeviceOn
}

// MisterOn reports whether the mister is running.
func (a ActuatorState) MisterOn() bool {
	return a.Mister == DeviceOn
}
