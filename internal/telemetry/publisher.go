package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/afroash/vpd-monitor/internal/models"
	"github.com/rs/zerolog"
)

// Publisher handles async batched delivery of records to sinks
type Publisher struct {
	sinks       []Sink
	logger      zerolog.Logger
	queue       chan Record
	batchSize   int
	flushPeriod time.Duration
	sendTimeout time.Duration
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup

	// Stats
	mu              sync.RWMutex
	totalPublished  int64
	totalBatches    int64
	totalErrors     int64
	totalDropped    int64
	lastPublishTime time.Time
}

// PublisherConfig holds configuration for the async publisher
type PublisherConfig struct {
	BatchSize   int           // Number of records to batch before sending (default: 10)
	FlushPeriod time.Duration // Max time between flushes (default: 15s)
	QueueSize   int           // Size of the queue buffer (default: 100)
	SendTimeout time.Duration // Per-sink timeout for one batch (default: 10s)
}

// DefaultPublisherConfig returns sensible defaults
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		BatchSize:   10,
		FlushPeriod: 15 * time.Second,
		QueueSize:   100,
		SendTimeout: 10 * time.Second,
	}
}

// PublisherStats contains statistics about the publisher
type PublisherStats struct {
	TotalPublished  int64     `json:"total_published"`
	TotalBatches    int64     `json:"total_batches"`
	TotalErrors     int64     `json:"total_errors"`
	TotalDropped    int64     `json:"total_dropped"`
	LastPublishTime time.Time `json:"last_publish_time,omitempty"`
	QueueLength     int       `json:"queue_length"`
}

// NewPublisher creates a publisher and starts its background loop
func NewPublisher(config PublisherConfig, logger zerolog.Logger, sinks ...Sink) *Publisher {
	defaults := DefaultPublisherConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.FlushPeriod <= 0 {
		config.FlushPeriod = defaults.FlushPeriod
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = defaults.SendTimeout
	}

	p := &Publisher{
		sinks:       sinks,
		logger:      logger,
		queue:       make(chan Record, config.QueueSize),
		batchSize:   config.BatchSize,
		flushPeriod: config.FlushPeriod,
		sendTimeout: config.SendTimeout,
		stopChan:    make(chan struct{}),
	}

	p.wg.Add(1)
	go p.publishLoop()

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	logger.Info().
		Strs("sinks", names).
		Int("batch_size", config.BatchSize).
		Dur("flush_period", config.FlushPeriod).
		Int("queue_size", config.QueueSize).
		Msg("Telemetry publisher started")

	return p
}

// Observe implements greenhouse.Observer
func (p *Publisher) Observe(snap models.Snapshot) {
	p.Publish(RecordFromSnapshot(snap))
}

// Publish queues a record for async delivery.
// Returns true if queued, false if dropped (queue full or stopped)
func (p *Publisher) Publish(r Record) bool {
	select {
	case <-p.stopChan:
		return false
	default:
	}

	select {
	case p.queue <- r:
		return true
	default:
		p.mu.Lock()
		p.totalDropped++
		p.mu.Unlock()
		p.logger.Warn().Msg("Telemetry queue full, dropping record")
		return false
	}
}

// publishLoop is the background goroutine that batches and sends records
func (p *Publisher) publishLoop() {
	defer p.wg.Done()

	batch := make([]Record, 0, p.batchSize)
	ticker := time.NewTicker(p.flushPeriod)
	defer ticker.Stop()

	for {
		select {
		case r := <-p.queue:
			batch = append(batch, r)
			if len(batch) >= p.batchSize {
				p.flush(batch)
				batch = make([]Record, 0, p.batchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				p.flush(batch)
				batch = make([]Record, 0, p.batchSize)
			}

		case <-p.stopChan:
			// Drain remaining records from the queue
			draining := true
			for draining {
				select {
				case r := <-p.queue:
					batch = append(batch, r)
				default:
					draining = false
				}
			}
			if len(batch) > 0 {
				p.flush(batch)
			}
			p.logger.Info().Msg("Telemetry publisher stopped")
			return
		}
	}
}

// flush sends a batch to every sink; a failing sink does not stop the others
func (p *Publisher) flush(batch []Record) {
	if len(batch) == 0 {
		return
	}

	failures := 0
	for _, sink := range p.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), p.sendTimeout)
		err := sink.Send(ctx, batch)
		cancel()
		if err != nil {
			failures++
			p.logger.Error().Err(err).Str("sink", sink.Name()).Int("batch_size", len(batch)).Msg("Failed to send batch")
		}
	}

	p.mu.Lock()
	p.totalErrors += int64(failures)
	if failures < len(p.sinks) || len(p.sinks) == 0 {
		p.totalPublished += int64(len(batch))
		p.totalBatches++
		p.lastPublishTime = time.Now()
		p.logger.Debug().Int("count", len(batch)).Msg("Flushed telemetry batch")
	}
	p.mu.Unlock()
}

// Stop flushes queued records and closes every sink
func (p *Publisher) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		p.wg.Wait()
		for _, sink := range p.sinks {
			if err := sink.Close(); err != nil {
				p.logger.Warn().Err(err).Str("sink", sink.Name()).Msg("Failed to close sink")
			}
		}
	})
}

// Stats returns current publisher statistics
func (p *Publisher) Stats() PublisherStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return PublisherStats{
		TotalPublished:  p.totalPublished,
		TotalBatches:    p.totalBatches,
		TotalErrors:     p.totalErrors,
		TotalDropped:    p.totalDropped,
		LastPublishTime: p.lastPublishTime,
		QueueLength:     len(p.queue),
	}
}
