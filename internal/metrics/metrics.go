// Package metrics exposes the greenhouse session as Prometheus metrics.
package metrics

import (
	"sync"

	"github.com/afroash/vpd-monitor/internal/models"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "greenhouse"

// Metrics records snapshots, operator actions and advisory outcomes
type Metrics struct {
	temperature  prometheus.Gauge
	humidity     prometheus.Gauge
	soilMoisture prometheus.Gauge
	vpd          prometheus.Gauge
	targetMin    prometheus.Gauge
	targetMax    prometheus.Gauge
	fanOn        prometheus.Gauge
	misterOn     prometheus.Gauge
	automatic    prometheus.Gauge

	ticksTotal    prometheus.Counter
	statusTotal   *prometheus.CounterVec
	operatorTotal *prometheus.CounterVec
	advisoryTotal *prometheus.CounterVec

	mu       sync.Mutex
	lastTick int64
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer, greenhouseID string) *Metrics {
	labels := prometheus.Labels{"greenhouse_id": greenhouseID}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	m := &Metrics{
		temperature:  gauge("temperature_celsius", "Simulated air temperature"),
		humidity:     gauge("humidity_percent", "Simulated relative humidity"),
		soilMoisture: gauge("soil_moisture_percent", "Simulated soil moisture"),
		vpd:          gauge("vpd_kpa", "Vapor pressure deficit"),
		targetMin:    gauge("vpd_target_min_kpa", "Lower bound of the stage target range"),
		targetMax:    gauge("vpd_target_max_kpa", "Upper bound of the stage target range"),
		fanOn:        gauge("fan_on_binary", "1 when the fan is running, 0 otherwise"),
		misterOn:     gauge("mister_on_binary", "1 when the mister is running, 0 otherwise"),
		automatic:    gauge("automatic_mode_binary", "1 when the controller is in automatic mode, 0 otherwise"),
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "ticks_total",
			Help:        "Control loop ticks",
			ConstLabels: labels,
		}),
		statusTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "vpd_status_total",
			Help:        "Ticks per VPD classification",
			ConstLabels: labels,
		}, []string{"status"}),
		operatorTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "operator_actions_total",
			Help:        "Operator actions by kind",
			ConstLabels: labels,
		}, []string{"action"}),
		advisoryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "advisory_reports_total",
			Help:        "Settled advisory reports by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.temperature, m.humidity, m.soilMoisture, m.vpd,
		m.targetMin, m.targetMax, m.fanOn, m.misterOn, m.automatic,
		m.ticksTotal, m.statusTotal, m.operatorTotal, m.advisoryTotal,
	)
	return m
}

// Observe implements greenhouse.Observer.
// Counters only move for snapshots with a new tick number.
func (m *Metrics) Observe(snap models.Snapshot) {
	m.temperature.Set(snap.Reading.Temperature)
	m.humidity.Set(snap.Reading.Humidity)
	m.soilMoisture.Set(snap.Reading.SoilMoisture)
	m.vpd.Set(snap.Reading.VPD)
	m.targetMin.Set(snap.Classification.TargetRange.Min)
	m.targetMax.Set(snap.Classification.TargetRange.Max)
	m.fanOn.Set(binary(snap.Actuators.FanOn()))
	m.misterOn.Set(binary(snap.Actuators.MisterOn()))
	m.automatic.Set(binary(snap.Mode == models.ModeAutomatic))

	m.mu.Lock()
	fresh := snap.Tick > m.lastTick
	if fresh {
		m.lastTick = snap.Tick
	}
	m.mu.Unlock()

	if fresh {
		m.ticksTotal.Inc()
		m.statusTotal.WithLabelValues(string(snap.Classification.Status)).Inc()
	}
}

// OperatorAction counts one accepted operator change (stage, mode, toggle_fan, ...)
func (m *Metrics) OperatorAction(action string) {
	m.operatorTotal.WithLabelValues(action).Inc()
}

// AdvisorySettled counts a settled advisory report
func (m *Metrics) AdvisorySettled(report models.AdvisoryReport) {
	outcome := "ok"
	if report.Failed {
		outcome = "failed"
	}
	m.advisoryTotal.WithLabelValues(outcome).Inc()
}

func binary(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
