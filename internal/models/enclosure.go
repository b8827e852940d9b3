package models

import "time"

// EnclosureInfo contains metadata about the simulated greenhouse
type EnclosureInfo struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Controller  string    `json:"controller"`
	Version     string    `json:"version"`
	StartTime   time.Time `json:"start_time"`
}

// Uptime returns the duration since the session started
func (e *EnclosureInfo) Uptime() time.Duration {
	return time.Since(e.StartTime)
}

// NewEnclosureInfo creates a new EnclosureInfo with the current time as start time
func NewEnclosureInfo(id, description, controller, version string) *EnclosureInfo {
	return &EnclosureInfo{
		ID:          id,
		Description: description,
		Controller:  controller,
		Version:     version,
		StartTime:   time.Now(),
	}
}
