package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"main/model"
	"main/storage"
)

func recordKey(namespace string) string { return fmt.Sprintf("%s:record", namespace) }

func tabKey(namespace, tabID string) string { return fmt.Sprintf("%s:tab:%s", namespace, tabID) }

func lockKey(namespace, operation string) string {
	return fmt.Sprintf("%s:lock:%s", namespace, operation)
}

// SessionStore is the single source of truth for the shared SessionRecord and
// the publish side of the cross-instance event channel. Reads never fail: if
// the backend is unreachable the store answers from its last known snapshot,
// which is exactly "no cross-instance coordination available".
type SessionStore struct {
	backend   storage.Backend
	namespace string
	tabID     string

	mu       sync.Mutex
	snapshot *model.SessionRecord
}

func NewSessionStore(backend storage.Backend, namespace, tabID string) *SessionStore {
	return &SessionStore{
		backend:   backend,
		namespace: namespace,
		tabID:     tabID,
	}
}

func (s *SessionStore) TabID() string { return s.tabID }

// GetSessionData returns the current shared view, falling back to the last
// local snapshot (or a default-initialized inactive record) when the backend
// cannot be read.
func (s *SessionStore) GetSessionData(ctx context.Context) *model.SessionRecord {
	data, err := s.backend.Get(ctx, recordKey(s.namespace))
	if err != nil {
		log.Printf("Warning: failed to read shared session record: %v", err)
		return s.lastKnown()
	}
	if data == nil {
		return s.lastKnown()
	}

	var record model.SessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		log.Printf("Warning: malformed shared session record: %v", err)
		return s.lastKnown()
	}

	s.mu.Lock()
	s.snapshot = record.Clone()
	s.mu.Unlock()
	return &record
}

// UpdateSessionData merges the patch into the shared record and announces the
// change. Merge, never blind overwrite: concurrent instances writing
// different fields must not clobber each other.
func (s *SessionStore) UpdateSessionData(ctx context.Context, patch model.SessionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.readForMerge(ctx)
	merged := MergeSessionRecord(current, patch, s.tabID, time.Now())
	s.snapshot = merged.Clone()

	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %v", err)
	}
	if err := s.backend.Set(ctx, recordKey(s.namespace), data, 0); err != nil {
		return fmt.Errorf("failed to write session record: %w", err)
	}

	s.publish(ctx, storage.EventSessionUpdated, merged)
	return nil
}

// BroadcastSessionUpdate re-announces the current record without changing it,
// used by the periodic resync to keep other instances' views fresh.
func (s *SessionStore) BroadcastSessionUpdate(ctx context.Context) {
	record := s.GetSessionData(ctx)
	s.publish(ctx, storage.EventSessionUpdated, record)
}

// BroadcastLogout tells every other instance to clear local state without
// calling the backend again.
func (s *SessionStore) BroadcastLogout(ctx context.Context) {
	s.publish(ctx, storage.EventCrossTabLogout, nil)
}

// BroadcastConflict shares a detected conflict so other instances can log it
// and reconcile.
func (s *SessionStore) BroadcastConflict(ctx context.Context, resolution model.ConflictResolution) {
	s.publish(ctx, storage.EventSessionConflict, resolution)
}

// Subscribe exposes the backend event channel to the controller.
func (s *SessionStore) Subscribe(ctx context.Context) (<-chan storage.Event, func(), error) {
	return s.backend.Subscribe(ctx)
}

func (s *SessionStore) publish(ctx context.Context, eventType string, payload interface{}) {
	event := storage.Event{
		Type:      eventType,
		TabID:     s.tabID,
		Timestamp: time.Now(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			log.Printf("Warning: failed to marshal %s payload: %v", eventType, err)
			return
		}
		event.Payload = data
	}
	if err := s.backend.Publish(ctx, event); err != nil {
		log.Printf("Warning: failed to broadcast %s: %v", eventType, err)
	}
}

// readForMerge fetches the stored record for merging, degrading to the local
// snapshot so a flaky backend cannot block an update. Caller holds s.mu.
func (s *SessionStore) readForMerge(ctx context.Context) *model.SessionRecord {
	data, err := s.backend.Get(ctx, recordKey(s.namespace))
	if err != nil || data == nil {
		if err != nil {
			log.Printf("Warning: merging against local snapshot: %v", err)
		}
		return s.snapshot.Clone()
	}
	var record model.SessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return s.snapshot.Clone()
	}
	return &record
}

func (s *SessionStore) lastKnown() *model.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot != nil {
		return s.snapshot.Clone()
	}
	return &model.SessionRecord{TabID: s.tabID}
}

// MergeSessionRecord applies a partial update on top of the current record.
// Expiry is monotonic within one logical session: a patch may only move
// expires_at backward when it also establishes a new session id (re-login).
func MergeSessionRecord(current *model.SessionRecord, patch model.SessionPatch, tabID string, now time.Time) *model.SessionRecord {
	merged := current.Clone()
	if merged == nil {
		merged = &model.SessionRecord{}
	}

	newSession := patch.SessionID != nil && *patch.SessionID != merged.SessionID
	if patch.SessionID != nil {
		merged.SessionID = *patch.SessionID
	}
	if patch.UserID != nil {
		merged.UserID = *patch.UserID
	}
	if patch.Token != nil {
		merged.Token = *patch.Token
	}
	if patch.ExpiresAt != nil {
		if newSession || patch.ExpiresAt.After(merged.ExpiresAt) {
			merged.ExpiresAt = *patch.ExpiresAt
		}
	}
	if patch.IsActive != nil {
		merged.IsActive = *patch.IsActive
	}
	if len(patch.Metadata) > 0 {
		if merged.Metadata == nil {
			merged.Metadata = make(map[string]string, len(patch.Metadata))
		}
		for k, v := range patch.Metadata {
			merged.Metadata[k] = v
		}
	}

	merged.TabID = tabID
	merged.UpdatedAt = now
	return merged
}
