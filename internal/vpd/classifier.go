package vpd

import "github.com/afroash/vpd-monitor/internal/models"

// HighBand is how far above the target max a VPD may go before it is critical.
const HighBand = 0.3

// Classify places vpd into exactly one of low, ideal, high or danger for the stage.
func Classify(vpd float64, stage models.GrowthStage) models.Classification {
	r := TargetRangeFor(stage)

	switch {
	case vpd < r.Min:
		return models.Classification{
			Status:      models.StatusLow,
			Label:       "Too Low (High Humidity)",
			Advice:      "VPD is below target for this stage. Increase air circulation or temperature.",
			Tone:        "blue",
			TargetRange: r,
		}
	case r.Contains(vpd):
		return models.Classification{
			Status:      models.StatusIdeal,
			Label:       "Optimal Growth",
			Advice:      "VPD is in the perfect range for current plant stage.",
			Tone:        "emerald",
			TargetRange: r,
		}
	case vpd <= r.Max+HighBand:
		return models.Classification{
			Status:      models.StatusHigh,
			Label:       "Stress Warning",
			Advice:      "VPD is getting high. Consider misting or reducing temperature.",
			Tone:        "orange",
			TargetRange: r,
		}
	default:
		// Also catches NaN.
		return models.Classification{
			Status:      models.StatusDanger,
			Label:       "Critical High",
			Advice:      "VPD is too high. Plants are transpiring excessively. Action required.",
			Tone:        "red",
			TargetRange: r,
		}
	}
}
