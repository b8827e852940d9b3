package greenhouse

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/afroash/vpd-monitor/internal/models"
	"github.com/rs/zerolog"
)

// MockDriftSource returns whatever drift the test sets and records the actuators it saw
type MockDriftSource struct {
	mu       sync.Mutex
	drift    Drift
	seen     []models.ActuatorState
	numCalls int
}

func (m *MockDriftSource) NextDrift(actuators models.ActuatorState) Drift {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.numCalls++
	m.seen = append(m.seen, actuators)
	return m.drift
}

func (m *MockDriftSource) Set(d Drift) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drift = d
}

// sweetSpotConfig starts at 24 °C / 67 % which is 0.98 kPa, inside Early Veg.
func sweetSpotConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialTemperature = 24
	cfg.InitialHumidity = 67
	cfg.InitialSoilMoisture = 50
	cfg.TickInterval = 10 * time.Millisecond
	return cfg
}

func TestNewController_Defaults(t *testing.T) {
	c := NewController(DefaultConfig(), FixedDrift{}, zerolog.Nop())
	snap := c.Snapshot()

	if snap.Mode != models.ModeAutomatic {
		t.Errorf("Mode = %v, want Automatic", snap.Mode)
	}
	if snap.Stage != models.StageEarlyVeg {
		t.Errorf("Stage = %v, want Early Veg", snap.Stage)
	}
	if snap.Actuators != models.AllOff() {
		t.Errorf("Actuators = %+v, want all off", snap.Actuators)
	}
	if snap.Reading.VPD != 1.21 {
		t.Errorf("initial VPD = %v, want 1.21 computed from 26.5°C/65%%", snap.Reading.VPD)
	}
	if len(snap.History) != 1 {
		t.Errorf("History len = %d, want the initial reading", len(snap.History))
	}
	if snap.Classification.TargetRange != (models.TargetRange{Min: 0.8, Max: 1.0}) {
		t.Errorf("TargetRange = %+v", snap.Classification.TargetRange)
	}
}

func TestNewController_InvalidIntervalFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TickInterval = 0
	cfg.HistorySize = -1

	c := NewController(cfg, FixedDrift{}, zerolog.Nop())
	if c.Config().TickInterval != 3*time.Second {
		t.Errorf("TickInterval = %v, want 3s", c.Config().TickInterval)
	}
	if c.Config().HistorySize != DefaultHistorySize {
		t.Errorf("HistorySize = %d, want %d", c.Config().HistorySize, DefaultHistorySize)
	}
}

func TestController_ZeroDriftStaysIdle(t *testing.T) {
	c := NewController(sweetSpotConfig(), FixedDrift{}, zerolog.Nop())

	if got := c.Snapshot().Reading.VPD; got != 0.98 {
		t.Fatalf("starting VPD = %v, want 0.98", got)
	}

	for i := 0; i < 20; i++ {
		snap := c.Tick()
		if snap.Actuators != models.AllOff() {
			t.Fatalf("tick %d: actuators = %+v, want all off", i, snap.Actuators)
		}
		if snap.Classification.Status != models.StatusIdeal {
			t.Fatalf("tick %d: status = %v, want ideal", i, snap.Classification.Status)
		}
	}
}

func TestController_DriftAboveTargetTurnsBothOn(t *testing.T) {
	drift := &MockDriftSource{}
	c := NewController(sweetSpotConfig(), drift, zerolog.Nop())

	c.Tick()
	if c.State().Actuators != models.AllOff() {
		t.Fatalf("actuators = %+v before drift", c.State().Actuators)
	}

	// 24 °C / 64 % is 1.07 kPa, above Early Veg max.
	drift.Set(Drift{Humidity: -3})
	snap := c.Tick()

	if snap.Reading.VPD <= 1.0 {
		t.Fatalf("VPD = %v, expected above 1.0", snap.Reading.VPD)
	}
	want := models.ActuatorState{Fan: models.DeviceOn, Mister: models.DeviceOn}
	if snap.Actuators != want {
		t.Errorf("actuators = %+v, want %+v", snap.Actuators, want)
	}

	// The drift source sees the actuator state decided by the previous tick.
	drift.Set(Drift{})
	c.Tick()
	if last := drift.seen[len(drift.seen)-1]; last != want {
		t.Errorf("drift source saw %+v, want %+v", last, want)
	}
}

func TestController_DriftBelowTargetRunsFanOnly(t *testing.T) {
	c := NewController(sweetSpotConfig(), FixedDrift{Humidity: 10}, zerolog.Nop())

	snap := c.Tick()
	if snap.Classification.Status != models.StatusLow {
		t.Fatalf("status = %v, want low (VPD %v)", snap.Classification.Status, snap.Reading.VPD)
	}
	want := models.ActuatorState{Fan: models.DeviceOn, Mister: models.DeviceOff}
	if snap.Actuators != want {
		t.Errorf("actuators = %+v, want %+v", snap.Actuators, want)
	}
}

func TestController_HumidityClampedTemperatureNot(t *testing.T) {
	c := NewController(sweetSpotConfig(), FixedDrift{Temperature: 5, Humidity: 10, SoilMoisture: -20}, zerolog.Nop())

	var snap models.Snapshot
	for i := 0; i < 10; i++ {
		snap = c.Tick()
	}
	if snap.Reading.Humidity != 95 {
		t.Errorf("Humidity = %v, want clamped to 95", snap.Reading.Humidity)
	}
	if snap.Reading.Temperature != 74 {
		t.Errorf("Temperature = %v, want unbounded 74", snap.Reading.Temperature)
	}
	if snap.Reading.SoilMoisture != -150 {
		t.Errorf("SoilMoisture = %v, want unbounded -150", snap.Reading.SoilMoisture)
	}

	c2 := NewController(sweetSpotConfig(), FixedDrift{Humidity: -30}, zerolog.Nop())
	for i := 0; i < 5; i++ {
		snap = c2.Tick()
	}
	if snap.Reading.Humidity != 20 {
		t.Errorf("Humidity = %v, want clamped to 20", snap.Reading.Humidity)
	}
}

func TestController_HistoryKeepsLast30(t *testing.T) {
	c := NewController(sweetSpotConfig(), FixedDrift{Temperature: 1}, zerolog.Nop())

	for i := 0; i < 35; i++ {
		c.Tick()
	}

	history := c.Snapshot().History
	if len(history) != 30 {
		t.Fatalf("History len = %d, want 30", len(history))
	}
	// Initial reading (24) plus 35 ticks (25..59): the last 30 are 30..59.
	for i, r := range history {
		want := float64(30 + i)
		if r.Temperature != want {
			t.Errorf("history[%d].Temperature = %v, want %v", i, r.Temperature, want)
		}
	}
	if c.Snapshot().Tick != 35 {
		t.Errorf("Tick = %d, want 35", c.Snapshot().Tick)
	}
}

func TestController_ReadingsAreFreshValues(t *testing.T) {
	c := NewController(sweetSpotConfig(), FixedDrift{Temperature: 1}, zerolog.Nop())

	before := c.Snapshot()
	c.Tick()
	if before.Reading.Temperature != 24 {
		t.Errorf("earlier snapshot changed to %v", before.Reading.Temperature)
	}
	if before.History[0].Temperature != 24 || len(before.History) != 1 {
		t.Error("earlier snapshot history changed")
	}
}

func TestController_ManualModeSkipsPolicy(t *testing.T) {
	c := NewController(sweetSpotConfig(), FixedDrift{Humidity: -10}, zerolog.Nop())

	if _, err := c.SetMode(models.ModeManual); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}

	snap := c.Tick()
	if snap.Classification.Status == models.StatusIdeal {
		t.Fatalf("expected VPD outside target, got %v", snap.Reading.VPD)
	}
	if snap.Actuators != models.AllOff() {
		t.Errorf("manual mode actuators = %+v, policy must not run", snap.Actuators)
	}

	snap, err := c.ToggleActuator(models.ActuatorFan)
	if err != nil {
		t.Fatalf("ToggleActuator failed: %v", err)
	}
	if snap.Actuators.Fan != models.DeviceOn || snap.Actuators.Mister != models.DeviceOff {
		t.Errorf("after fan toggle = %+v", snap.Actuators)
	}

	snap, _ = c.ToggleActuator(models.ActuatorMister)
	snap, _ = c.ToggleActuator(models.ActuatorFan)
	if snap.Actuators.Fan != models.DeviceOff || snap.Actuators.Mister != models.DeviceOn {
		t.Errorf("after toggles = %+v", snap.Actuators)
	}

	// Manual state survives ticks.
	snap = c.Tick()
	if snap.Actuators.Mister != models.DeviceOn {
		t.Errorf("tick overwrote manual actuators: %+v", snap.Actuators)
	}
}

func TestController_ToggleRejectedInAutomatic(t *testing.T) {
	c := NewController(sweetSpotConfig(), FixedDrift{}, zerolog.Nop())

	_, err := c.ToggleActuator(models.ActuatorFan)
	if !errors.Is(err, ErrAutomaticMode) {
		t.Fatalf("err = %v, want ErrAutomaticMode", err)
	}
	if c.State().Actuators != models.AllOff() {
		t.Errorf("actuators changed to %+v", c.State().Actuators)
	}
}

func TestController_ToggleUnknownActuator(t *testing.T) {
	c := NewController(sweetSpotConfig(), FixedDrift{}, zerolog.Nop())
	c.SetMode(models.ModeManual)

	_, err := c.ToggleActuator(models.Actuator("heater"))
	if !errors.Is(err, ErrUnknownActuator) {
		t.Errorf("err = %v, want ErrUnknownActuator", err)
	}
}

func TestController_SetModeInvalid(t *testing.T) {
	c := NewController(sweetSpotConfig(), FixedDrift{}, zerolog.Nop())

	if _, err := c.SetMode(models.ControlMode("Turbo")); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("err = %v, want ErrInvalidMode", err)
	}
	if c.State().Mode != models.ModeAutomatic {
		t.Errorf("Mode = %v, want unchanged", c.State().Mode)
	}
}

func TestController_BackToAutomaticOverwrites(t *testing.T) {
	c := NewController(sweetSpotConfig(), FixedDrift{}, zerolog.Nop())
	c.SetMode(models.ModeManual)
	c.ToggleActuator(models.ActuatorMister)

	c.SetMode(models.ModeAutomatic)
	snap := c.Tick()
	if snap.Actuators != models.AllOff() {
		t.Errorf("actuators = %+v, automatic should idle inside target", snap.Actuators)
	}
}

func TestController_SetStageChangesTarget(t *testing.T) {
	c := NewController(sweetSpotConfig(), FixedDrift{}, zerolog.Nop())

	snap := c.SetStage(models.StageFlowering)
	if snap.Classification.TargetRange != (models.TargetRange{Min: 1.2, Max: 1.5}) {
		t.Errorf("TargetRange = %+v", snap.Classification.TargetRange)
	}
	if snap.Classification.Status != models.StatusLow {
		t.Errorf("0.98 in Flowering should be low, got %v", snap.Classification.Status)
	}

	snap = c.Tick()
	want := models.ActuatorState{Fan: models.DeviceOn, Mister: models.DeviceOff}
	if snap.Actuators != want {
		t.Errorf("actuators = %+v, want %+v", snap.Actuators, want)
	}

	snap = c.SetStage(models.GrowthStage("Harvest"))
	if snap.Classification.TargetRange != (models.TargetRange{Min: 0.8, Max: 1.2}) {
		t.Errorf("unknown stage TargetRange = %+v", snap.Classification.TargetRange)
	}
}

func TestController_ObserversSeeEveryChange(t *testing.T) {
	c := NewController(sweetSpotConfig(), FixedDrift{}, zerolog.Nop())

	var got []models.Snapshot
	c.AddObserver(ObserverFunc(func(s models.Snapshot) {
		got = append(got, s)
	}))

	c.Tick()
	c.SetStage(models.StageLateVeg)
	c.SetMode(models.ModeManual)
	c.ToggleActuator(models.ActuatorFan)
	c.ToggleActuator(models.ActuatorFan) // second toggle also notifies

	if len(got) != 5 {
		t.Fatalf("observer saw %d snapshots, want 5", len(got))
	}
	if got[1].Stage != models.StageLateVeg {
		t.Errorf("second snapshot stage = %v", got[1].Stage)
	}
	if got[3].Actuators.Fan != models.DeviceOn {
		t.Errorf("fourth snapshot fan = %v", got[3].Actuators.Fan)
	}
}

func TestController_RunTicksUntilCancelled(t *testing.T) {
	drift := &MockDriftSource{}
	c := NewController(sweetSpotConfig(), drift, zerolog.Nop())

	var ticks atomic.Int64
	c.AddObserver(ObserverFunc(func(s models.Snapshot) {
		ticks.Store(s.Tick)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := c.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run returned %v, want DeadlineExceeded", err)
	}

	// 100ms / 10ms: allow scheduler slack
	after := ticks.Load()
	if after < 3 {
		t.Errorf("got %d ticks, expected at least 3", after)
	}

	time.Sleep(50 * time.Millisecond)
	if ticks.Load() != after {
		t.Error("ticks continued after Run returned")
	}
}

func TestController_OperatorChangeRestartsTickSchedule(t *testing.T) {
	cfg := sweetSpotConfig()
	cfg.TickInterval = 200 * time.Millisecond
	c := NewController(cfg, FixedDrift{}, zerolog.Nop())

	// operator snapshots carry the previous tick number; only count new ticks
	var lastTick atomic.Int64
	tickTimes := make(chan time.Time, 8)
	c.AddObserver(ObserverFunc(func(s models.Snapshot) {
		if s.Tick > lastTick.Load() {
			lastTick.Store(s.Tick)
			select {
			case tickTimes <- time.Now():
			default:
			}
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	var first time.Time
	select {
	case first = <-tickTimes:
	case <-time.After(2 * time.Second):
		t.Fatal("no tick within 2s")
	}

	// change the stage 150ms into the interval; the old deadline is 50ms away
	time.Sleep(150*time.Millisecond - time.Since(first))
	changed := time.Now()
	c.SetStage(models.StageFlowering)

	select {
	case next := <-tickTimes:
		gap := next.Sub(changed)
		if gap < 180*time.Millisecond {
			t.Errorf("next tick %v after the change, want a full %v (old deadline was %v after it)",
				gap, cfg.TickInterval, first.Add(cfg.TickInterval).Sub(changed))
		}
		if gap > 500*time.Millisecond {
			t.Errorf("next tick %v after the change, want about %v", gap, cfg.TickInterval)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no tick after the stage change")
	}

	if got := c.State().Stage; got != models.StageFlowering {
		t.Errorf("stage = %v, want Flowering", got)
	}
}

func TestController_OperatorChangesDuringRun(t *testing.T) {
	c := NewController(sweetSpotConfig(), FixedDrift{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	for i := 0; i < 20; i++ {
		c.SetStage(models.Stages()[i%5])
		time.Sleep(2 * time.Millisecond)
	}
	c.SetMode(models.ModeManual)
	if _, err := c.ToggleActuator(models.ActuatorFan); err != nil {
		t.Errorf("ToggleActuator failed: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
