package dto

import (
	"strings"

	"main/model"
)

type SystemStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

type HealthResponse struct {
	Health model.SessionHealth `json:"health"`
	System SystemStats         `json:"system"`
}

type TabsResponse struct {
	ActiveTabs []string `json:"active_tabs"`
	TabCount   int      `json:"tab_count"`
	IsMultiTab bool     `json:"is_multi_tab"`
}

// RedactRecord masks the bearer token before the record leaves the agent on
// the ops surface.
func RedactRecord(record *model.SessionRecord) *model.SessionRecord {
	if record == nil {
		return nil
	}
	out := record.Clone()
	if len(out.Token) > 8 {
		out.Token = out.Token[:4] + strings.Repeat("*", 8) + out.Token[len(out.Token)-4:]
	} else if out.Token != "" {
		out.Token = "********"
	}
	return out
}
