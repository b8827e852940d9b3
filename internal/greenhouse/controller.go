// Package greenhouse runs the simulated greenhouse session: the tick loop,
// the automatic controller and the operator overrides.
package greenhouse

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/afroash/vpd-monitor/internal/models"
	"github.com/afroash/vpd-monitor/internal/vpd"
	"github.com/rs/zerolog"
)

// Humidity is kept inside this band after drift. Temperature and soil moisture are not bounded.
const (
	minHumidity = 20.0
	maxHumidity = 95.0
)

var (
	// ErrAutomaticMode is returned when an actuator toggle is attempted in Automatic mode.
	ErrAutomaticMode = errors.New("actuators are system controlled in automatic mode")
	// ErrUnknownActuator is returned for actuator names other than fan and mister.
	ErrUnknownActuator = errors.New("unknown actuator")
	// ErrInvalidMode is returned for modes other than Automatic and Manual.
	ErrInvalidMode = errors.New("invalid control mode")
)

// Config holds the session settings
type Config struct {
	GreenhouseID        string
	TickInterval        time.Duration
	HistorySize         int
	InitialTemperature  float64
	InitialHumidity     float64
	InitialSoilMoisture float64
	InitialStage        models.GrowthStage
	InitialMode         models.ControlMode
}

// DefaultConfig returns the dashboard's starting conditions
func DefaultConfig() Config {
	return Config{
		GreenhouseID:        "greenhouse-01",
		TickInterval:        3 * time.Second,
		HistorySize:         DefaultHistorySize,
		InitialTemperature:  26.5,
		InitialHumidity:     65,
		InitialSoilMoisture: 52,
		InitialStage:        models.StageEarlyVeg,
		InitialMode:         models.ModeAutomatic,
	}
}

// Observer receives every snapshot the controller produces.
// Observe is called synchronously and must not block.
type Observer interface {
	Observe(snapshot models.Snapshot)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(models.Snapshot)

// Observe implements Observer
func (f ObserverFunc) Observe(s models.Snapshot) { f(s) }

// Controller owns the greenhouse state, the current reading and the history.
type Controller struct {
	cfg    Config
	drift  DriftSource
	logger zerolog.Logger

	mu      sync.RWMutex
	state   State
	current models.SensorReading
	history *History
	ticks   int64

	observersMu sync.RWMutex
	observers   []Observer

	resetCh chan struct{}
}

// NewController creates a session with the initial reading already in history
func NewController(cfg Config, drift DriftSource, logger zerolog.Logger) *Controller {
	defaults := DefaultConfig()
	if cfg.TickInterval <= 0 {
		logger.Warn().
			Dur("provided_interval", cfg.TickInterval).
			Dur("default_interval", defaults.TickInterval).
			Msg("Invalid tick interval, using default")
		cfg.TickInterval = defaults.TickInterval
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.GreenhouseID == "" {
		cfg.GreenhouseID = defaults.GreenhouseID
	}

	state := DefaultState()
	if cfg.InitialStage != "" {
		state.Stage = cfg.InitialStage
	}
	if cfg.InitialMode != "" {
		state.Mode = cfg.InitialMode
	}

	initial := models.StampReading(models.SensorReading{
		Temperature:  cfg.InitialTemperature,
		Humidity:     cfg.InitialHumidity,
		SoilMoisture: cfg.InitialSoilMoisture,
		VPD:          vpd.CalculateVPD(cfg.InitialTemperature, cfg.InitialHumidity),
	}, time.Now())

	history := NewHistory(cfg.HistorySize)
	history.Push(initial)

	return &Controller{
		cfg:     cfg,
		drift:   drift,
		logger:  logger.With().Str("greenhouse_id", cfg.GreenhouseID).Logger(),
		state:   state,
		current: initial,
		history: history,
		resetCh: make(chan struct{}, 1),
	}
}

// AddObserver registers o for every future snapshot
func (c *Controller) AddObserver(o Observer) {
	c.observersMu.Lock()
	defer c.observersMu.Unlock()
	c.observers = append(c.observers, o)
}

// Run ticks every TickInterval until ctx is cancelled.
// No tick starts after ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	c.logger.Info().Dur("interval", c.cfg.TickInterval).Msg("Control loop started")
	defer func() {
		c.logger.Info().Stringer("history", c.history).Msg("Control loop stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.resetCh:
			ticker.Reset(c.cfg.TickInterval)
		case <-ticker.C:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.Tick()
		}
	}
}

// Tick advances the simulation by one step and returns the resulting snapshot
func (c *Controller) Tick() models.Snapshot {
	c.mu.Lock()

	target := vpd.TargetRangeFor(c.state.Stage)
	d := c.drift.NextDrift(c.state.Actuators)
	prev := c.current

	nextTemp := prev.Temperature + d.Temperature
	nextHum := clamp(prev.Humidity+d.Humidity, minHumidity, maxHumidity)
	nextVPD := vpd.CalculateVPD(nextTemp, nextHum)

	reading := models.StampReading(models.SensorReading{
		Temperature:  vpd.Round(nextTemp, 1),
		Humidity:     vpd.Round(nextHum, 1),
		SoilMoisture: vpd.Round(prev.SoilMoisture+d.SoilMoisture, 1),
		VPD:          nextVPD,
	}, time.Now())

	previousActuators := c.state.Actuators
	if c.state.Mode == models.ModeAutomatic {
		c.state.Actuators = vpd.DecideActuators(nextVPD, target)
	}

	c.current = reading
	c.history.Push(reading)
	c.ticks++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Debug().
		Int64("tick", snap.Tick).
		Float64("temperature", reading.Temperature).
		Float64("humidity", reading.Humidity).
		Float64("vpd", reading.VPD).
		Str("status", string(snap.Classification.Status)).
		Str("fan", string(snap.Actuators.Fan)).
		Str("mister", string(snap.Actuators.Mister)).
		Msg("Tick")
	if snap.Actuators != previousActuators {
		c.logger.Info().
			Str("fan", string(snap.Actuators.Fan)).
			Str("mister", string(snap.Actuators.Mister)).
			Float64("vpd", reading.VPD).
			Msg("Automatic control changed actuators")
	}

	c.notify(snap)
	return snap
}

// SetStage changes the growth stage; any value is accepted
func (c *Controller) SetStage(stage models.GrowthStage) models.Snapshot {
	c.mu.Lock()
	c.state.Stage = stage
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if !stage.IsKnown() {
		c.logger.Warn().Str("stage", string(stage)).Msg("Unknown growth stage, using fallback target range")
	}
	c.logger.Info().Str("stage", string(stage)).Msg("Growth stage changed")
	c.afterOperatorChange(snap)
	return snap
}

// SetMode switches between Automatic and Manual control
func (c *Controller) SetMode(mode models.ControlMode) (models.Snapshot, error) {
	if mode != models.ModeAutomatic && mode != models.ModeManual {
		return models.Snapshot{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	c.mu.Lock()
	c.state.Mode = mode
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info().Str("mode", string(mode)).Msg("Control mode changed")
	c.afterOperatorChange(snap)
	return snap, nil
}

// ToggleActuator flips one actuator. Only allowed in Manual mode.
func (c *Controller) ToggleActuator(which models.Actuator) (models.Snapshot, error) {
	c.mu.Lock()
	if c.state.Mode != models.ModeManual {
		c.mu.Unlock()
		return models.Snapshot{}, ErrAutomaticMode
	}
	switch which {
	case models.ActuatorFan:
		c.state.Actuators.Fan = c.state.Actuators.Fan.Toggle()
	case models.ActuatorMister:
		c.state.Actuators.Mister = c.state.Actuators.Mister.Toggle()
	default:
		c.mu.Unlock()
		return models.Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownActuator, which)
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info().
		Str("actuator", string(which)).
		Str("fan", string(snap.Actuators.Fan)).
		Str("mister", string(snap.Actuators.Mister)).
		Msg("Actuator toggled")
	c.afterOperatorChange(snap)
	return snap, nil
}

// Snapshot returns the current view of the session
func (c *Controller) Snapshot() models.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// State returns the current operator-visible state
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// HistoryStats reports how many readings the history has taken and evicted
func (c *Controller) HistoryStats() HistoryStats {
	return c.history.Stats()
}

// Config returns the effective session settings
func (c *Controller) Config() Config {
	return c.cfg
}

func (c *Controller) snapshotLocked() models.Snapshot {
	return models.Snapshot{
		GreenhouseID:   c.cfg.GreenhouseID,
		Reading:        c.current,
		Classification: vpd.Classify(c.current.VPD, c.state.Stage),
		Actuators:      c.state.Actuators,
		Mode:           c.state.Mode,
		Stage:          c.state.Stage,
		History:        c.history.Readings(),
		Tick:           c.ticks,
		CreatedAt:      time.Now(),
	}
}

// afterOperatorChange restarts the tick schedule and publishes the new state.
func (c *Controller) afterOperatorChange(snap models.Snapshot) {
	select {
	case c.resetCh <- struct{}{}:
	default:
	}
	c.notify(snap)
}

func (c *Controller) notify(snap models.Snapshot) {
	c.observersMu.RLock()
	defer c.observersMu.RUnlock()
	for _, o := range c.observers {
		o.Observe(snap)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
