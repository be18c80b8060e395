package model

import "time"

// SessionRecord is the shared view of the one logical authenticated session.
// Every instance pointing at the same storage namespace converges to the same
// record; TabID identifies the instance that wrote it last.
type SessionRecord struct {
	TabID     string            `bson:"tab_id" json:"tab_id"`
	SessionID string            `bson:"session_id" json:"session_id"`
	UserID    int64             `bson:"user_id" json:"user_id"`
	Token     string            `bson:"token" json:"token"`
	ExpiresAt time.Time         `bson:"expires_at" json:"expires_at"`
	IsActive  bool              `bson:"is_active" json:"is_active"`
	Metadata  map[string]string `bson:"metadata" json:"metadata,omitempty"` // advisory only, never used for auth decisions
	UpdatedAt time.Time         `bson:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy so callers can hold a snapshot without racing
// later merges.
func (r *SessionRecord) Clone() *SessionRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Metadata != nil {
		out.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// SessionPatch is a partial SessionRecord for merge-style updates. Nil fields
// leave the stored record untouched; metadata entries are merged key by key
// rather than replaced wholesale.
type SessionPatch struct {
	SessionID *string           `json:"session_id,omitempty"`
	UserID    *int64            `json:"user_id,omitempty"`
	Token     *string           `json:"token,omitempty"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	IsActive  *bool             `json:"is_active,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// TabEntry is one instance's liveness heartbeat. Entries older than the
// staleness window are treated as dead.
type TabEntry struct {
	TabID         string    `bson:"tab_id" json:"tab_id"`
	LastHeartbeat time.Time `bson:"last_heartbeat" json:"last_heartbeat"`
}
