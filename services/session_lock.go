package services

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"main/config"
	"main/model"
	"main/storage"
	"main/utils"

	"github.com/google/uuid"
)

// LockCoordinator serializes one named cross-instance operation (logout) so
// only one instance performs the shared side effect. Leases auto-expire, so a
// crashed holder cannot wedge the others; an expired lease may be reclaimed by
// anyone.
type LockCoordinator struct {
	backend   storage.Backend
	namespace string
	tabID     string
	lease     time.Duration
	now       func() time.Time

	mu   sync.Mutex
	held map[string]string // operation -> nonce of our live acquisition
}

func NewLockCoordinator(backend storage.Backend, cfg config.CoordinatorConfig, tabID string) *LockCoordinator {
	return &LockCoordinator{
		backend:   backend,
		namespace: cfg.Namespace,
		tabID:     tabID,
		lease:     cfg.LockLease,
		now:       time.Now,
		held:      make(map[string]string),
	}
}

// RequestSessionLock attempts to acquire the named lock. It returns false
// when another live holder exists or the shared medium misbehaves; callers
// must still complete their local cleanup either way.
func (l *LockCoordinator) RequestSessionLock(ctx context.Context, operation string) bool {
	record := model.LockRecord{
		Operation:  operation,
		TabID:      l.tabID,
		Nonce:      uuid.New().String(),
		AcquiredAt: l.now(),
		ExpiresAt:  l.now().Add(l.lease),
	}

	acquired, err := l.tryAcquire(ctx, record)
	if err != nil {
		utils.TrackLockAttempt(operation, "error")
		log.Printf("Warning: lock acquisition for %q failed: %v", operation, err)
		return false
	}
	if !acquired {
		// A live lease exists. Lapsed leases are reclaimed by the backend
		// itself: SetNX overwrites a key whose TTL has run out, so only the
		// store's clock decides expiry. Judging the lease payload against the
		// local clock would let a fast-clocked instance evict a holder that
		// is still live.
		utils.TrackLockAttempt(operation, "contended")
		return false
	}

	// Read back to confirm ownership: two instances racing SetNX against a
	// flaky medium must never both believe they hold the lock.
	confirmed := l.read(ctx, operation)
	if confirmed == nil || confirmed.Nonce != record.Nonce {
		utils.TrackLockAttempt(operation, "contended")
		return false
	}

	l.mu.Lock()
	l.held[operation] = record.Nonce
	l.mu.Unlock()
	utils.TrackLockAttempt(operation, "acquired")
	return true
}

// ReleaseSessionLock releases the named lock only if this instance's live
// acquisition still owns it; otherwise it is a no-op.
func (l *LockCoordinator) ReleaseSessionLock(ctx context.Context, operation string) {
	l.mu.Lock()
	nonce, ok := l.held[operation]
	delete(l.held, operation)
	l.mu.Unlock()
	if !ok {
		return
	}

	current := l.read(ctx, operation)
	if current == nil || current.Nonce != nonce {
		// lease expired and someone else reclaimed it
		return
	}
	if err := l.backend.Delete(ctx, lockKey(l.namespace, operation)); err != nil {
		log.Printf("Warning: failed to release lock %q: %v", operation, err)
	}
}

func (l *LockCoordinator) tryAcquire(ctx context.Context, record model.LockRecord) (bool, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return false, err
	}
	return l.backend.SetNX(ctx, lockKey(l.namespace, record.Operation), data, l.lease)
}

func (l *LockCoordinator) read(ctx context.Context, operation string) *model.LockRecord {
	data, err := l.backend.Get(ctx, lockKey(l.namespace, operation))
	if err != nil || data == nil {
		return nil
	}
	var record model.LockRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil
	}
	return &record
}
