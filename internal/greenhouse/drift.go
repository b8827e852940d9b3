package greenhouse

import (
	"math/rand/v2"
	"sync"

	"github.com/afroash/vpd-monitor/internal/models"
)

// Drift is the per-tick change applied to the environment.
type Drift struct {
	Temperature  float64 `json:"temperature"`
	Humidity     float64 `json:"humidity"`
	SoilMoisture float64 `json:"soil_moisture"`
}

// DriftSource stands in for the real greenhouse physics.
type DriftSource interface {
	// NextDrift returns the change for the next tick given the current actuators
	NextDrift(actuators models.ActuatorState) Drift
}

// Actuator effects per tick.
const (
	fanTemperatureEffect    = -0.15
	fanHumidityEffect       = -0.3
	misterTemperatureEffect = -0.05
	misterHumidityEffect    = 0.5
)

// ApplyActuatorBias adds the fan and mister effects to a base drift.
func ApplyActuatorBias(d Drift, actuators models.ActuatorState) Drift {
	if actuators.FanOn() {
		d.Temperature += fanTemperatureEffect
		d.Humidity += fanHumidityEffect
	}
	if actuators.MisterOn() {
		d.Temperature += misterTemperatureEffect
		d.Humidity += misterHumidityEffect
	}
	return d
}

// RandomDrift produces small uniform perturbations biased by the actuators:
// ±0.1 °C, ±0.2 % humidity and ±0.05 % soil moisture per tick.
type RandomDrift struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomDrift creates a drift source seeded with seed
func NewRandomDrift(seed uint64) *RandomDrift {
	return &RandomDrift{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// NextDrift implements DriftSource
func (r *RandomDrift) NextDrift(actuators models.ActuatorState) Drift {
	r.mu.Lock()
	base := Drift{
		Temperature:  (r.rng.Float64() - 0.5) * 0.2,
		Humidity:     (r.rng.Float64() - 0.5) * 0.4,
		SoilMoisture: (r.rng.Float64() - 0.5) * 0.1,
	}
	r.mu.Unlock()
	return ApplyActuatorBias(base, actuators)
}

// FixedDrift always returns the same drift and ignores the actuators.
// The zero value is a still environment.
type FixedDrift Drift

// NextDrift implements DriftSource
func (f FixedDrift) NextDrift(models.ActuatorState) Drift {
	return Drift(f)
}
