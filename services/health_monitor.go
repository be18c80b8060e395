package services

import (
	"context"
	"log"
	"sync"
	"time"

	"main/config"
	"main/model"
	"main/utils"
)

// SessionValidator is the backend check the health monitor runs independently
// of local conflict detection.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (bool, error)
}

// HealthMonitor runs the periodic self-check: conflict detection combined
// with backend validation, folded into one status. Precedence is
// error > warning > healthy.
type HealthMonitor struct {
	store     *SessionStore
	registry  *TabRegistry
	validator SessionValidator
	cfg       config.CoordinatorConfig

	// localSnapshot supplies the controller's current local view; onConflict
	// hands detected conflicts back to it.
	localSnapshot func() *model.SessionRecord
	onConflict    func(model.ConflictResolution)

	now func() time.Time

	mu       sync.Mutex
	status   model.HealthStatus
	lastSync time.Time
	started  bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewHealthMonitor(store *SessionStore, registry *TabRegistry, validator SessionValidator,
	cfg config.CoordinatorConfig, localSnapshot func() *model.SessionRecord,
	onConflict func(model.ConflictResolution)) *HealthMonitor {
	return &HealthMonitor{
		store:         store,
		registry:      registry,
		validator:     validator,
		cfg:           cfg,
		localSnapshot: localSnapshot,
		onConflict:    onConflict,
		now:           time.Now,
		status:        model.HealthHealthy,
		stopCh:        make(chan struct{}),
	}
}

// Start launches the health-check and resync tickers. Both run in a single
// goroutine so Stop cancels them as a unit.
func (m *HealthMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go func() {
		healthTicker := time.NewTicker(m.cfg.HealthCheckInterval)
		resyncTicker := time.NewTicker(m.cfg.ResyncInterval)
		defer healthTicker.Stop()
		defer resyncTicker.Stop()
		for {
			select {
			case <-healthTicker.C:
				m.PerformHealthCheck(ctx)
			case <-resyncTicker.C:
				m.Resync(ctx)
			case <-m.stopCh:
				return
			}
		}
	}()
}

// PerformHealthCheck returns whether the session is usable. A local conflict
// degrades status to warning but the check can still pass; a failed backend
// validation forces error and fails the check.
func (m *HealthMonitor) PerformHealthCheck(ctx context.Context) bool {
	local := m.localSnapshot()
	shared := m.store.GetSessionData(ctx)

	status := model.HealthHealthy
	if resolution := DetectSessionConflicts(local, shared, m.now(), m.cfg.ExpiryTolerance); resolution != nil {
		status = model.HealthWarning
		if m.onConflict != nil {
			m.onConflict(*resolution)
		}
	}

	usable := true
	if local != nil && local.IsActive && local.Token != "" {
		valid, err := m.validator.ValidateSession(ctx, local.Token)
		if err != nil {
			log.Printf("Warning: session validation failed: %v", err)
		}
		if err != nil || !valid {
			status = model.HealthError
			usable = false
		}
	}

	m.setStatus(status)
	utils.TrackHealthCheck(string(status))
	return usable
}

// Resync pushes the local session data outward even absent conflicts so
// last_sync stays fresh for observability.
func (m *HealthMonitor) Resync(ctx context.Context) {
	local := m.localSnapshot()
	if local != nil && local.IsActive {
		patch := model.SessionPatch{
			SessionID: &local.SessionID,
			UserID:    &local.UserID,
			Token:     &local.Token,
			ExpiresAt: &local.ExpiresAt,
			IsActive:  &local.IsActive,
		}
		if err := m.store.UpdateSessionData(ctx, patch); err != nil {
			log.Printf("Warning: resync failed: %v", err)
			return
		}
	} else {
		m.store.BroadcastSessionUpdate(ctx)
	}

	m.mu.Lock()
	m.lastSync = m.now()
	m.mu.Unlock()
}

func (m *HealthMonitor) Status() model.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// SetStatus lets the controller degrade or restore the status when conflicts
// arrive or resolve outside a scheduled check.
func (m *HealthMonitor) SetStatus(status model.HealthStatus) {
	m.setStatus(status)
}

func (m *HealthMonitor) LastSync() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSync
}

// Stop cancels both tickers. Idempotent, safe after teardown.
func (m *HealthMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *HealthMonitor) setStatus(status model.HealthStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
}
