package model

import "time"

type ConflictAction string

const (
	ConflictKeepCurrent ConflictAction = "keep_current"
	ConflictUseIncoming ConflictAction = "use_incoming"
	ConflictMerge       ConflictAction = "merge"
	ConflictLogoutAll   ConflictAction = "logout_all"
)

// ConflictResolution describes how a detected disagreement between the local
// and the shared session view should be reconciled. It lives only in the
// in-memory conflict log and is never persisted.
type ConflictResolution struct {
	Action    ConflictAction `json:"action"`
	Reason    string         `json:"reason"`
	Timestamp time.Time      `json:"timestamp"`
}
