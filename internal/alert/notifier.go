// Package alert emails the grower when VPD enters or leaves the danger band.
package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/afroash/vpd-monitor/internal/models"
	"github.com/rs/zerolog"
)

// Sender delivers one alert
type Sender interface {
	Send(ctx context.Context, subject, body string) error
}

// NotifierConfig holds alert settings
type NotifierConfig struct {
	Cooldown    time.Duration // Min time between danger alerts (default: 30m)
	SendTimeout time.Duration // default: 10s
	QueueSize   int           // default: 8
}

// Notifier watches snapshots and sends an alert on entering danger and on recovery.
// A danger episode starting within Cooldown of the last danger alert is not reported,
// and neither is its recovery.
type Notifier struct {
	sender Sender
	cfg    NotifierConfig
	logger zerolog.Logger
	now    func() time.Time

	mu          sync.Mutex
	inDanger    bool
	reported    bool // current episode was alerted
	lastAlerted time.Time
	sent        int64
	failed      int64
	closed      bool

	queue    chan message
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type message struct {
	subject string
	body    string
}

// NewNotifier creates a notifier and starts its send loop
func NewNotifier(sender Sender, cfg NotifierConfig, logger zerolog.Logger) *Notifier {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Minute
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 8
	}
	n := &Notifier{
		sender: sender,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		queue:  make(chan message, cfg.QueueSize),
	}
	n.wg.Add(1)
	go n.sendLoop()
	return n
}

// Observe implements greenhouse.Observer
func (n *Notifier) Observe(snap models.Snapshot) {
	danger := snap.Classification.Status == models.StatusDanger

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}

	switch {
	case danger && !n.inDanger:
		n.inDanger = true
		now := n.now()
		if n.lastAlerted.IsZero() || now.Sub(n.lastAlerted) >= n.cfg.Cooldown {
			n.lastAlerted = now
			n.reported = true
			n.enqueueLocked(dangerMessage(snap))
		} else {
			n.reported = false
			n.logger.Debug().Float64("vpd", snap.Reading.VPD).Msg("Danger alert suppressed by cooldown")
		}
	case !danger && n.inDanger:
		n.inDanger = false
		if n.reported {
			n.reported = false
			n.enqueueLocked(recoveryMessage(snap))
		}
	}
}

func (n *Notifier) enqueueLocked(m message) {
	select {
	case n.queue <- m:
	default:
		n.logger.Warn().Str("subject", m.subject).Msg("Alert queue full, dropping alert")
	}
}

func (n *Notifier) sendLoop() {
	defer n.wg.Done()
	for m := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), n.cfg.SendTimeout)
		err := n.sender.Send(ctx, m.subject, m.body)
		cancel()

		n.mu.Lock()
		if err != nil {
			n.failed++
		} else {
			n.sent++
		}
		n.mu.Unlock()

		if err != nil {
			n.logger.Error().Err(err).Str("subject", m.subject).Msg("Failed to send alert")
			continue
		}
		n.logger.Info().Str("subject", m.subject).Msg("Alert sent")
	}
}

// Counts returns how many alerts were sent and how many failed
func (n *Notifier) Counts() (sent, failed int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent, n.failed
}

// Close sends queued alerts and stops the send loop
func (n *Notifier) Close() {
	n.stopOnce.Do(func() {
		n.mu.Lock()
		n.closed = true
		close(n.queue)
		n.mu.Unlock()
		n.wg.Wait()
	})
}

func dangerMessage(snap models.Snapshot) message {
	r := snap.Reading
	target := snap.Classification.TargetRange
	return message{
		subject: fmt.Sprintf("[%s] Critical VPD %.2f kPa", snap.GreenhouseID, r.VPD),
		body: fmt.Sprintf(
			"VPD is %.2f kPa, target for %s is %.1f-%.1f kPa.\n%s\n\n"+
				"Temperature: %.1f°C\nHumidity: %.1f%%\nSoil moisture: %.1f%%\n"+
				"Fan: %s, Mister: %s, Mode: %s\nTime: %s\n",
			r.VPD, snap.Stage, target.Min, target.Max, snap.Classification.Advice,
			r.Temperature, r.Humidity, r.SoilMoisture,
			snap.Actuators.Fan, snap.Actuators.Mister, snap.Mode,
			r.Timestamp.Format(time.RFC1123),
		),
	}
}

func recoveryMessage(snap models.Snapshot) message {
	r := snap.Reading
	return message{
		subject: fmt.Sprintf("[%s] VPD recovered: %.2f kPa (%s)", snap.GreenhouseID, r.VPD, snap.Classification.Label),
		body: fmt.Sprintf("VPD is back to %.2f kPa (%s) at %s.\n",
			r.VPD, snap.Classification.Label, r.Timestamp.Format(time.RFC1123)),
	}
}
