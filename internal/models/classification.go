package models

// VPDStatus is the classification category of a VPD value.
type VPDStatus string

const (
	StatusLow    VPDStatus = "low"
	StatusIdeal  VPDStatus = "ideal"
	StatusHigh   VPDStatus = "high"
	StatusDanger VPDStatus = "danger"
)

// Classification describes a VPD value relative to the stage target.
type Classification struct {
	Status      VPDStatus   `json:"status"`
	Label       string      `json:"label"`
	Advice      string      `json:"advice"`
	Tone        string      `json:"tone"`
	TargetRange TargetRange `json:"target_range"`
}
