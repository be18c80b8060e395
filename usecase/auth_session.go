package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"main/authclient"
	"main/config"
	"main/model"
	"main/services"
	"main/storage"
	"main/utils"

	"github.com/google/uuid"
)

// AuthBackend is the slice of the auth API the controller consumes.
type AuthBackend interface {
	Login(ctx context.Context, creds authclient.Credentials) (*authclient.LoginResult, error)
	Logout(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, token string) (*model.User, error)
	RefreshToken(ctx context.Context, refreshToken string) (*authclient.RefreshResult, error)
	ValidateSession(ctx context.Context, token string) (bool, error)
	ExtendSession(ctx context.Context, token string) (time.Time, error)
}

// LogoutResult records what happened during logout. Logout itself never
// fails from the caller's perspective; local state is always cleared.
type LogoutResult struct {
	LockAcquired    bool
	BackendNotified bool
	BackendErr      error
}

// AuthSessionService is the only component the rest of the agent talks to.
// It owns the local authentication state and decides when to involve the
// shared store, the registry, the lock coordinator and the health monitor.
type AuthSessionService struct {
	client   AuthBackend
	store    *services.SessionStore
	registry *services.TabRegistry
	locks    *services.LockCoordinator
	tokens   *services.LocalTokenStore
	apiCfg   config.AuthAPIConfig
	coordCfg config.CoordinatorConfig

	// injected for tests; default to the real clock
	sleep func(time.Duration)
	now   func() time.Time

	// OnLoggedOut is the "navigate to the login view" hook; called whenever
	// the session ends, locally or remotely initiated.
	OnLoggedOut func(reason string)

	mu            sync.Mutex
	user          *model.User
	token         string
	refreshToken  string
	expiresAt     time.Time
	sessionID     string
	authenticated bool
	refreshCount  int
	conflicts     []model.ConflictResolution
	initialized   bool
	disposed      bool

	// fetch circuit breaker: coalesce concurrent calls, back off after
	// repeated failures
	fetchInFlight    bool
	fetchFailures    int
	fetchNextAllowed time.Time

	monitor      *services.HealthMonitor
	cancelEvents func()
	stopCh       chan struct{}
	stopOnce     sync.Once
}

func NewAuthSessionService(client AuthBackend, store *services.SessionStore,
	registry *services.TabRegistry, locks *services.LockCoordinator,
	tokens *services.LocalTokenStore, apiCfg config.AuthAPIConfig,
	coordCfg config.CoordinatorConfig) *AuthSessionService {
	return &AuthSessionService{
		client:   client,
		store:    store,
		registry: registry,
		locks:    locks,
		tokens:   tokens,
		apiCfg:   apiCfg,
		coordCfg: coordCfg,
		sleep:    time.Sleep,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

func (s *AuthSessionService) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *AuthSessionService) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *AuthSessionService) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Login authenticates against the backend. Network failures retry with
// exponential backoff up to the configured ceiling; invalid credentials and
// rate limiting surface immediately without retry.
func (s *AuthSessionService) Login(ctx context.Context, creds authclient.Credentials) error {
	var lastErr error
	for attempt := 1; attempt <= s.apiCfg.LoginMaxAttempts; attempt++ {
		result, err := s.client.Login(ctx, creds)
		if err == nil {
			utils.TrackAuthAttempt("success", "login")
			return s.applyLogin(ctx, result)
		}

		if !authclient.IsRetryable(err) {
			utils.TrackAuthAttempt("failure", "login")
			return err
		}
		lastErr = err
		if attempt < s.apiCfg.LoginMaxAttempts {
			s.sleep(s.backoffDelay(attempt))
		}
	}
	utils.TrackAuthAttempt("failure", "login")
	return fmt.Errorf("login failed after %d attempts: %w", s.apiCfg.LoginMaxAttempts, lastErr)
}

// Resume restores a persisted token from a previous run. The backend gets
// the final word on whether it is still good; rejected tokens are cleared. A
// valid one adopts the shared record's session identity when the tokens match
// and brings the coordination machinery up.
func (s *AuthSessionService) Resume(ctx context.Context) (bool, error) {
	token, err := s.tokens.Load()
	if err != nil {
		return false, err
	}
	if token == "" {
		return false, nil
	}

	valid, err := s.client.ValidateSession(ctx, token)
	if err != nil {
		if errors.Is(err, authclient.ErrUnauthorized) {
			valid = false
		} else {
			return false, err
		}
	}
	if !valid {
		if clearErr := s.tokens.Clear(); clearErr != nil {
			log.Printf("Warning: failed to clear persisted token: %v", clearErr)
		}
		return false, nil
	}

	// zero stays zero when the token carries no expiry claim; the countdown
	// ignores it and the shared record may fill it in
	expiry, _ := services.TokenExpiry(token)

	sessionID := uuid.New().String()
	if shared := s.store.GetSessionData(ctx); shared != nil && shared.Token == token && shared.SessionID != "" {
		sessionID = shared.SessionID
		if shared.ExpiresAt.After(expiry) {
			expiry = shared.ExpiresAt
		}
	}

	s.mu.Lock()
	s.token = token
	s.sessionID = sessionID
	s.expiresAt = expiry
	s.authenticated = true
	s.mu.Unlock()

	if err := s.InitializeCrossTabSession(ctx); err != nil {
		log.Printf("Warning: cross-instance coordination unavailable: %v", err)
	}
	if _, err := s.FetchUser(ctx); err != nil {
		log.Printf("Warning: could not refresh user after resume: %v", err)
	}
	return s.IsAuthenticated(), nil
}

func (s *AuthSessionService) applyLogin(ctx context.Context, result *authclient.LoginResult) error {
	s.mu.Lock()
	user := result.User
	s.user = &user
	s.token = result.Token
	s.refreshToken = result.RefreshToken
	s.expiresAt = result.Expiry()
	s.sessionID = uuid.New().String()
	s.authenticated = true
	s.refreshCount = 0
	s.fetchFailures = 0
	s.fetchNextAllowed = time.Time{}
	initialized := s.initialized
	s.mu.Unlock()

	if err := s.tokens.Save(result.Token); err != nil {
		log.Printf("Warning: failed to persist token: %v", err)
	}

	if !initialized {
		if err := s.InitializeCrossTabSession(ctx); err != nil {
			log.Printf("Warning: cross-instance coordination unavailable: %v", err)
		}
	} else {
		// a prior logout stopped the monitor; the new session needs a live one
		s.stopMonitor()
		s.startMonitor(ctx)
		s.syncSessionData(ctx)
	}
	return nil
}

// InitializeCrossTabSession starts the coordination machinery: heartbeats,
// the event subscription, the health monitor and the expiry countdown. Safe
// to call more than once.
func (s *AuthSessionService) InitializeCrossTabSession(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized || s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.initialized = true
	s.mu.Unlock()

	s.registry.Start(ctx)

	events, cancel, err := s.store.Subscribe(context.Background())
	if err != nil {
		s.mu.Lock()
		s.initialized = false
		s.mu.Unlock()
		return fmt.Errorf("failed to subscribe to session events: %w", err)
	}
	s.mu.Lock()
	s.cancelEvents = cancel
	s.mu.Unlock()

	go s.eventLoop(events)
	go s.countdownLoop()
	s.startMonitor(ctx)
	s.syncSessionData(ctx)
	return nil
}

// Logout ends the session everywhere. Exactly one instance performs the
// backend call (guarded by the session lock); every instance clears its own
// local state no matter what.
func (s *AuthSessionService) Logout(ctx context.Context) *LogoutResult {
	// stop timers before anything else so a health check cannot race teardown
	s.stopMonitor()

	result := &LogoutResult{}
	token := s.Token()

	result.LockAcquired = s.locks.RequestSessionLock(ctx, "logout")
	if result.LockAcquired {
		if token != "" {
			if err := s.client.Logout(ctx, token); err != nil {
				result.BackendErr = err
				log.Printf("Warning: backend logout failed: %v", err)
			} else {
				result.BackendNotified = true
			}
		}

		inactive := false
		if err := s.store.UpdateSessionData(ctx, model.SessionPatch{IsActive: &inactive}); err != nil {
			log.Printf("Warning: failed to deactivate shared session: %v", err)
		}
		s.store.BroadcastLogout(ctx)
		s.locks.ReleaseSessionLock(ctx, "logout")
	}
	// no lock means another instance owns the backend call; local cleanup
	// still happens unconditionally

	s.cleanupAuthState()
	s.notifyLoggedOut("logout")
	utils.TrackAuthAttempt("success", "logout")
	return result
}

// FetchUser loads the current user. Concurrent calls coalesce, repeated
// failures back off exponentially, and a 401 clears all local auth state
// without surfacing an error.
func (s *AuthSessionService) FetchUser(ctx context.Context) (*model.User, error) {
	s.mu.Lock()
	if s.fetchInFlight {
		user := s.user
		s.mu.Unlock()
		return user, nil
	}
	if !s.fetchNextAllowed.IsZero() && s.now().Before(s.fetchNextAllowed) {
		s.mu.Unlock()
		return nil, fmt.Errorf("user fetch backing off after %d failures", s.fetchFailures)
	}
	s.fetchInFlight = true
	token := s.token
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.fetchInFlight = false
		s.mu.Unlock()
	}()

	user, err := s.client.CurrentUser(ctx, token)
	if err != nil {
		if errors.Is(err, authclient.ErrUnauthorized) {
			log.Printf("Warning: session rejected by backend, clearing local state")
			s.cleanupAuthState()
			s.notifyLoggedOut("unauthorized")
			return nil, nil
		}
		s.mu.Lock()
		s.fetchFailures++
		s.fetchNextAllowed = s.now().Add(s.backoffDelay(s.fetchFailures))
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	s.fetchFailures = 0
	s.fetchNextAllowed = time.Time{}
	s.user = user
	s.mu.Unlock()
	return user, nil
}

// RefreshToken exchanges the refresh token for a fresh access token and
// pushes the new state outward.
func (s *AuthSessionService) RefreshToken(ctx context.Context) error {
	s.mu.Lock()
	refresh := s.refreshToken
	s.mu.Unlock()
	if refresh == "" {
		return fmt.Errorf("no refresh token available")
	}

	result, err := s.client.RefreshToken(ctx, refresh)
	if err != nil {
		if errors.Is(err, authclient.ErrUnauthorized) {
			s.cleanupAuthState()
			s.notifyLoggedOut("unauthorized")
			return nil
		}
		utils.TrackAuthAttempt("failure", "refresh")
		return err
	}

	s.mu.Lock()
	s.token = result.Token
	if result.RefreshToken != "" {
		s.refreshToken = result.RefreshToken
	}
	if result.SessionExpiry.After(s.expiresAt) {
		s.expiresAt = result.SessionExpiry
	}
	s.refreshCount++
	s.mu.Unlock()

	if err := s.tokens.Save(result.Token); err != nil {
		log.Printf("Warning: failed to persist token: %v", err)
	}
	s.syncSessionData(ctx)
	utils.TrackAuthAttempt("success", "refresh")
	return nil
}

// ExtendSession pushes the expiry out in response to activity. Expiry never
// moves backward while authenticated.
func (s *AuthSessionService) ExtendSession(ctx context.Context) error {
	token := s.Token()
	if token == "" {
		return fmt.Errorf("no active session to extend")
	}

	newExpiry, err := s.client.ExtendSession(ctx, token)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if newExpiry.After(s.expiresAt) {
		s.expiresAt = newExpiry
	}
	s.mu.Unlock()

	s.syncSessionData(ctx)
	return nil
}

// HandleSessionConflictEvent logs the conflict, degrades health to warning,
// and auto-applies use_incoming resolutions. The log entry stays until
// ResolveSessionConflict clears it.
func (s *AuthSessionService) HandleSessionConflictEvent(ctx context.Context, resolution model.ConflictResolution) {
	s.mu.Lock()
	s.conflicts = append(s.conflicts, resolution)
	s.mu.Unlock()

	utils.TrackConflict(string(resolution.Action))
	if s.monitorRef() != nil {
		s.monitorRef().SetStatus(model.HealthWarning)
	}

	if resolution.Action == model.ConflictUseIncoming {
		s.RecoverFromConflict(ctx, resolution)
	}
}

// RecoverFromConflict applies a resolution. use_incoming copies the shared
// record into local state; logout_all clears local state without
// re-broadcasting (the initiating instance already did). merge and
// keep_current are reserved policy branches and deliberately do nothing.
func (s *AuthSessionService) RecoverFromConflict(ctx context.Context, resolution model.ConflictResolution) {
	switch resolution.Action {
	case model.ConflictUseIncoming:
		shared := s.store.GetSessionData(ctx)
		if shared == nil {
			return
		}
		s.mu.Lock()
		s.token = shared.Token
		s.sessionID = shared.SessionID
		s.expiresAt = shared.ExpiresAt
		s.authenticated = shared.IsActive
		if s.user != nil && shared.UserID != 0 {
			s.user.ID = shared.UserID
		}
		token := s.token
		s.mu.Unlock()
		if token != "" {
			if err := s.tokens.Save(token); err != nil {
				log.Printf("Warning: failed to persist token: %v", err)
			}
		}
	case model.ConflictLogoutAll:
		s.stopMonitor()
		s.cleanupAuthState()
		s.notifyLoggedOut("conflict")
	case model.ConflictMerge, model.ConflictKeepCurrent:
		// reserved, intentionally no-ops
	}
}

// ResolveSessionConflict removes a logged conflict; health returns to
// healthy once the log is empty.
func (s *AuthSessionService) ResolveSessionConflict(resolution model.ConflictResolution) {
	s.mu.Lock()
	kept := s.conflicts[:0]
	for _, c := range s.conflicts {
		if c.Timestamp.Equal(resolution.Timestamp) && c.Reason == resolution.Reason {
			continue
		}
		kept = append(kept, c)
	}
	s.conflicts = kept
	empty := len(kept) == 0
	s.mu.Unlock()

	if empty && s.monitorRef() != nil {
		s.monitorRef().SetStatus(model.HealthHealthy)
	}
}

func (s *AuthSessionService) Conflicts() []model.ConflictResolution {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ConflictResolution, len(s.conflicts))
	copy(out, s.conflicts)
	return out
}

func (s *AuthSessionService) HealthStatus() model.HealthStatus {
	if m := s.monitorRef(); m != nil {
		return m.Status()
	}
	return model.HealthHealthy
}

// Health assembles the derived status snapshot for the ops surface.
func (s *AuthSessionService) Health(ctx context.Context) model.SessionHealth {
	s.mu.Lock()
	initialized := s.initialized
	s.mu.Unlock()

	health := model.SessionHealth{
		Status:    s.HealthStatus(),
		Conflicts: s.Conflicts(),
	}
	if initialized {
		health.ActiveTabs = s.registry.GetActiveTabs(ctx)
		health.TabCount = len(health.ActiveTabs)
		health.IsMultiTab = health.TabCount > 1
		health.SessionData = s.store.GetSessionData(ctx)
	}
	if m := s.monitorRef(); m != nil {
		health.LastSync = m.LastSync()
	}
	return health
}

// PerformHealthCheck runs one on-demand check through the monitor.
func (s *AuthSessionService) PerformHealthCheck(ctx context.Context) bool {
	if m := s.monitorRef(); m != nil {
		return m.PerformHealthCheck(ctx)
	}
	return !s.IsAuthenticated()
}

// Dispose tears down every timer and listener. Idempotent; the service is
// unusable afterwards.
func (s *AuthSessionService) Dispose() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.disposed = true
		cancel := s.cancelEvents
		s.mu.Unlock()

		close(s.stopCh)
		s.stopMonitor()
		s.registry.Stop()
		if cancel != nil {
			cancel()
		}
	})
}

func (s *AuthSessionService) localSnapshot() *model.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := &model.SessionRecord{
		TabID:     s.store.TabID(),
		SessionID: s.sessionID,
		Token:     s.token,
		ExpiresAt: s.expiresAt,
		IsActive:  s.authenticated,
	}
	if s.user != nil {
		record.UserID = s.user.ID
	}
	return record
}

// syncSessionData pushes the local view into the shared record.
func (s *AuthSessionService) syncSessionData(ctx context.Context) {
	s.mu.Lock()
	sessionID, token := s.sessionID, s.token
	expiresAt, active := s.expiresAt, s.authenticated
	patch := model.SessionPatch{
		SessionID: &sessionID,
		Token:     &token,
		ExpiresAt: &expiresAt,
		IsActive:  &active,
		Metadata: map[string]string{
			"client":        utils.ClientDescription(),
			"refresh_count": fmt.Sprintf("%d", s.refreshCount),
		},
	}
	if s.user != nil {
		userID := s.user.ID
		patch.UserID = &userID
	}
	s.mu.Unlock()

	if err := s.store.UpdateSessionData(ctx, patch); err != nil {
		log.Printf("Warning: failed to sync session data: %v", err)
	}
}

// cleanupAuthState clears everything local: in-memory state and the
// persisted token. Never fails; the session must not survive half-cleared.
func (s *AuthSessionService) cleanupAuthState() {
	s.mu.Lock()
	s.user = nil
	s.token = ""
	s.refreshToken = ""
	s.expiresAt = time.Time{}
	s.sessionID = ""
	s.authenticated = false
	s.refreshCount = 0
	s.fetchInFlight = false
	s.fetchFailures = 0
	s.fetchNextAllowed = time.Time{}
	s.mu.Unlock()

	if err := s.tokens.Clear(); err != nil {
		log.Printf("Warning: failed to clear persisted token: %v", err)
	}
}

// eventLoop reacts to broadcasts from sibling instances. Own events are
// skipped; the originator already applied them.
func (s *AuthSessionService) eventLoop(events <-chan storage.Event) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.TabID == s.store.TabID() {
				continue
			}
			s.handleEvent(event)
		case <-s.stopCh:
			return
		}
	}
}

func (s *AuthSessionService) handleEvent(event storage.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch event.Type {
	case storage.EventCrossTabLogout:
		// the initiating instance already called the backend
		if s.IsAuthenticated() {
			s.stopMonitor()
			s.cleanupAuthState()
			s.notifyLoggedOut("cross-tab-logout")
		}
	case storage.EventSessionUpdated:
		record := decodeRecord(event)
		if record == nil {
			return
		}
		local := s.localSnapshot()
		if resolution := services.DetectSessionConflicts(local, record, s.now(), s.coordCfg.ExpiryTolerance); resolution != nil {
			s.HandleSessionConflictEvent(ctx, *resolution)
		}
	case storage.EventSessionConflict:
		resolution := decodeResolution(event)
		if resolution == nil {
			return
		}
		s.HandleSessionConflictEvent(ctx, *resolution)
	}
}

// countdownLoop enforces the session deadline against the authoritative
// expiry, which activity may keep pushing out.
func (s *AuthSessionService) countdownLoop() {
	ticker := time.NewTicker(s.coordCfg.CountdownInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			expired := s.authenticated && !s.expiresAt.IsZero() && !s.now().Before(s.expiresAt)
			s.mu.Unlock()
			if expired {
				log.Printf("Session expired, logging out")
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				s.Logout(ctx)
				cancel()
			}
		case <-s.stopCh:
			return
		}
	}
}

// startMonitor builds a fresh health monitor; the previous one, if any, was
// stopped by logout.
func (s *AuthSessionService) startMonitor(ctx context.Context) {
	monitor := services.NewHealthMonitor(s.store, s.registry, s.client, s.coordCfg,
		s.localSnapshot, func(resolution model.ConflictResolution) {
			checkCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			s.HandleSessionConflictEvent(checkCtx, resolution)
		})
	s.mu.Lock()
	s.monitor = monitor
	s.mu.Unlock()
	monitor.Start(ctx)
}

func (s *AuthSessionService) stopMonitor() {
	if m := s.monitorRef(); m != nil {
		m.Stop()
	}
}

func (s *AuthSessionService) monitorRef() *services.HealthMonitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitor
}

func (s *AuthSessionService) notifyLoggedOut(reason string) {
	if s.OnLoggedOut != nil {
		s.OnLoggedOut(reason)
	}
}

func (s *AuthSessionService) backoffDelay(attempt int) time.Duration {
	delay := s.apiCfg.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.apiCfg.BackoffMax {
			return s.apiCfg.BackoffMax
		}
	}
	if delay > s.apiCfg.BackoffMax {
		delay = s.apiCfg.BackoffMax
	}
	return delay
}

func decodeRecord(event storage.Event) *model.SessionRecord {
	if event.Payload == nil {
		return nil
	}
	var record model.SessionRecord
	if err := json.Unmarshal(event.Payload, &record); err != nil {
		log.Printf("Warning: malformed %s payload: %v", event.Type, err)
		return nil
	}
	return &record
}

func decodeResolution(event storage.Event) *model.ConflictResolution {
	if event.Payload == nil {
		return nil
	}
	var resolution model.ConflictResolution
	if err := json.Unmarshal(event.Payload, &resolution); err != nil {
		log.Printf("Warning: malformed %s payload: %v", event.Type, err)
		return nil
	}
	return &resolution
}
