package vpd

import "github.com/afroash/vpd-monitor/internal/models"

// fallbackRange applies to any stage outside the known set.
var fallbackRange = models.TargetRange{Min: 0.8, Max: 1.2}

// TargetRangeFor returns the ideal VPD band for a growth stage.
func TargetRangeFor(stage models.GrowthStage) models.TargetRange {
	switch stage {
	case models.StageSeedling:
		return models.TargetRange{Min: 0.4, Max: 0.8}
	case models.StageEarlyVeg:
		return models.TargetRange{Min: 0.8, Max: 1.0}
	case models.StageLateVeg:
		return models.TargetRange{Min: 1.0, Max: 1.2}
	case models.StageFlowering:
		return models.TargetRange{Min: 1.2, Max: 1.5}
	case models.StageLateFlower:
		return models.TargetRange{Min: 1.4, Max: 1.6}
	default:
		return fallbackRange
	}
}

// StageTarget pairs a stage with its range for the stage selector.
type StageTarget struct {
	Stage       models.GrowthStage `json:"stage"`
	TargetRange models.TargetRange `json:"target_range"`
}

// StageCatalog lists every known stage with its target range.
func StageCatalog() []StageTarget {
	stages := models.Stages()
	catalog := make([]StageTarget, 0, len(stages))
	for _, s := range stages {
		catalog = append(catalog, StageTarget{Stage: s, TargetRange: TargetRangeFor(s)})
	}
	return catalog
}
