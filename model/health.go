package model

import "time"

type HealthStatus string

const (
	HealthHealthy HealthStatus = "healthy"
	HealthWarning HealthStatus = "warning"
	HealthError   HealthStatus = "error"
)

// SessionHealth is the derived status snapshot served by the ops endpoints.
// It is computed on demand and never stored.
type SessionHealth struct {
	Status      HealthStatus         `json:"status"`
	Conflicts   []ConflictResolution `json:"conflicts"`
	ActiveTabs  []string             `json:"active_tabs"`
	TabCount    int                  `json:"tab_count"`
	IsMultiTab  bool                 `json:"is_multi_tab"`
	LastSync    time.Time            `json:"last_sync"`
	SessionData *SessionRecord       `json:"session_data,omitempty"`
}
