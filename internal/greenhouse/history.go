package greenhouse

import (
	"fmt"
	"sync"
	"time"

	"github.com/afroash/vpd-monitor/internal/models"
)

// DefaultHistorySize is how many readings the dashboard chart keeps.
const DefaultHistorySize = 30

// History is a bounded FIFO of readings; the oldest reading is evicted first
type History struct {
	readings []models.SensorReading
	capacity int
	mutex    sync.RWMutex
	stats    HistoryStats
}

// HistoryStats tracks history usage
type HistoryStats struct {
	TotalPushed  int64     `json:"total_pushed"`
	TotalEvicted int64     `json:"total_evicted"`
	LastPushTime time.Time `json:"last_push_time,omitempty"`
}

// NewHistory creates a history holding at most capacity readings
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{
		readings: make([]models.SensorReading, 0, capacity),
		capacity: capacity,
	}
}

// Push appends a reading, evicting the oldest one when full
func (h *History) Push(reading models.SensorReading) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if len(h.readings) >= h.capacity {
		h.readings = h.readings[1:]
		h.stats.TotalEvicted++
	}
	h.readings = append(h.readings, reading)
	h.stats.TotalPushed++
	h.stats.LastPushTime = time.Now()
}

// Readings returns a copy of the history in arrival order (oldest first)
func (h *History) Readings() []models.SensorReading {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	result := make([]models.SensorReading, len(h.readings))
	copy(result, h.readings)
	return result
}

// Len returns the number of readings held
func (h *History) Len() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.readings)
}

// Capacity returns the maximum number of readings held
func (h *History) Capacity() int {
	return h.capacity
}

// Stats returns a copy of the history statistics
func (h *History) Stats() HistoryStats {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.stats
}

// String returns something like "History[12/30, evicted: 5]"
func (h *History) String() string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return fmt.Sprintf("History[%d/%d, evicted: %d]", len(h.readings), h.capacity, h.stats.TotalEvicted)
}
