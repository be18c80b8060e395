package services

import (
	"time"

	"main/model"
)

// DetectSessionConflicts compares the local view of the session against the
// shared record and classifies any disagreement. It is a pure function of the
// two snapshots and the clock; the shared record is assumed authoritative
// (most recent write wins), so mismatches resolve toward it.
//
// Checks run in priority order: token mismatch, active/inactive mismatch,
// expiry divergence. The first hit wins.
func DetectSessionConflicts(local, shared *model.SessionRecord, now time.Time, tolerance time.Duration) *model.ConflictResolution {
	if local == nil || shared == nil {
		return nil
	}

	if local.Token != "" && shared.Token != "" && local.Token != shared.Token {
		return &model.ConflictResolution{
			Action:    model.ConflictUseIncoming,
			Reason:    "Token mismatch detected",
			Timestamp: now,
		}
	}

	if !shared.IsActive && local.IsActive {
		return &model.ConflictResolution{
			Action:    model.ConflictLogoutAll,
			Reason:    "Session deactivated by another instance",
			Timestamp: now,
		}
	}

	if local.IsActive && shared.IsActive && !local.ExpiresAt.IsZero() && !shared.ExpiresAt.IsZero() {
		divergence := local.ExpiresAt.Sub(shared.ExpiresAt)
		if divergence < 0 {
			divergence = -divergence
		}
		if divergence > tolerance {
			return &model.ConflictResolution{
				Action:    model.ConflictUseIncoming,
				Reason:    "Session expiry divergence detected",
				Timestamp: now,
			}
		}
	}

	return nil
}
