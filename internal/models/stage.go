package models

// GrowthStage is the plant development phase chosen by the operator.
// Values outside the five known stages are allowed; they get a fallback target range.
type GrowthStage string

const (
	StageSeedling   GrowthStage = "Seedling/Clone"
	StageEarlyVeg   GrowthStage = "Early Veg"
	StageLateVeg    GrowthStage = "Late Veg"
	StageFlowering  GrowthStage = "Flowering"
	StageLateFlower GrowthStage = "Late Flower"
)

// Stages returns the known growth stages in selector order.
func Stages() []GrowthStage {
	return []GrowthStage{
		StageSeedling,
		StageEarlyVeg,
		StageLateVeg,
		StageFlowering,
		StageLateFlower,
	}
}

// IsKnown reports whether s is one of the five enumerated stages.
func (s GrowthStage) IsKnown() bool {
	for _, known := range Stages() {
		if s == known {
			return true
		}
	}
	return false
}

// TargetRange is the ideal VPD band in kPa.
type TargetRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether vpd lies inside the closed range.
func (tr TargetRange) Contains(vpd float64) bool {
	return vpd >= tr.Min && vpd <= tr.Max
}
