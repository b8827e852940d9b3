package advisory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/afroash/vpd-monitor/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrRequestPending is returned while an earlier report has not settled.
	ErrRequestPending = errors.New("advisory request already pending")
	// ErrAdvisoryDisabled is returned when no analyzer is configured.
	ErrAdvisoryDisabled = errors.New("advisory service not configured")
	// ErrAdvisorClosed is returned after Close.
	ErrAdvisorClosed = errors.New("advisor closed")
)

// AdvisorConfig holds request settings
type AdvisorConfig struct {
	Timeout   time.Duration // Max time for one analysis (default: 60s)
	Enclosure string        // Enclosure description for the prompt
}

// Advisor runs at most one analysis at a time and keeps the last report.
// States: idle -> pending -> settled -> pending -> ...
type Advisor struct {
	analyzer Analyzer
	cfg      AdvisorConfig
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	report    models.AdvisoryReport
	closed    bool
	listeners []func(models.AdvisoryReport)
}

// NewAdvisor creates an advisor. A nil analyzer makes every request fail with ErrAdvisoryDisabled.
func NewAdvisor(analyzer Analyzer, cfg AdvisorConfig, logger zerolog.Logger) *Advisor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Advisor{
		analyzer: analyzer,
		cfg:      cfg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		report:   models.AdvisoryReport{Status: models.AdvisoryIdle},
	}
}

// Enabled reports whether an analyzer is configured
func (a *Advisor) Enabled() bool {
	return a.analyzer != nil
}

// OnSettled registers fn to be called with every settled report
func (a *Advisor) OnSettled(fn func(models.AdvisoryReport)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// Request starts an analysis of snap and returns the pending report
func (a *Advisor) Request(snap models.Snapshot) (models.AdvisoryReport, error) {
	if a.analyzer == nil {
		return models.AdvisoryReport{}, ErrAdvisoryDisabled
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return models.AdvisoryReport{}, ErrAdvisorClosed
	}
	if a.report.Status == models.AdvisoryPending {
		report := a.report
		a.mu.Unlock()
		return report, ErrRequestPending
	}
	a.report = models.AdvisoryReport{
		ID:          uuid.NewString(),
		Status:      models.AdvisoryPending,
		RequestedAt: time.Now(),
	}
	report := a.report
	a.wg.Add(1)
	a.mu.Unlock()

	q := QueryFromSnapshot(snap, a.cfg.Enclosure)
	a.logger.Info().Str("request_id", report.ID).Float64("vpd", q.VPD).Msg("Advisory requested")

	go a.run(report.ID, q)
	return report, nil
}

// run performs one analysis; errors become FailureText and are never retried
func (a *Advisor) run(id string, q Query) {
	defer a.wg.Done()

	ctx, cancel := context.WithTimeout(a.ctx, a.cfg.Timeout)
	defer cancel()

	text, err := a.analyzer.Analyze(ctx, q)
	failed := false
	if err != nil {
		a.logger.Error().Err(err).Str("request_id", id).Msg("AI analysis error")
		text = FailureText
		failed = true
	} else if strings.TrimSpace(text) == "" {
		text = NoResponseText
	}

	a.mu.Lock()
	if a.closed || a.report.ID != id {
		a.mu.Unlock()
		a.logger.Debug().Str("request_id", id).Msg("Advisory result discarded")
		return
	}
	a.report.Status = models.AdvisorySettled
	a.report.Text = text
	a.report.Failed = failed
	a.report.SettledAt = time.Now()
	report := a.report
	listeners := append([]func(models.AdvisoryReport){}, a.listeners...)
	a.mu.Unlock()

	a.logger.Info().
		Str("request_id", id).
		Bool("failed", failed).
		Dur("elapsed", report.SettledAt.Sub(report.RequestedAt)).
		Msg("Advisory settled")

	for _, fn := range listeners {
		fn(report)
	}
}

// Report returns the current advisory state
func (a *Advisor) Report() models.AdvisoryReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.report
}

// Close discards any pending analysis and waits for it to return
func (a *Advisor) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	a.cancel()
	a.wg.Wait()
}
