package services

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"main/config"
	"main/model"
	"main/storage"
	"main/utils"
)

// TabRegistry tracks which instances are alive. Every instance computes the
// active set independently from the same shared entries; a just-closed
// instance may linger for up to one staleness window before its entry lapses.
type TabRegistry struct {
	backend   storage.Backend
	namespace string
	tabID     string
	interval  time.Duration
	staleness time.Duration
	now       func() time.Time

	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewTabRegistry(backend storage.Backend, cfg config.CoordinatorConfig, tabID string) *TabRegistry {
	return &TabRegistry{
		backend:   backend,
		namespace: cfg.Namespace,
		tabID:     tabID,
		interval:  cfg.HeartbeatInterval,
		staleness: cfg.StalenessWindow(),
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

func (r *TabRegistry) TabID() string { return r.tabID }

// Start begins the heartbeat loop. Safe to call once; Stop tears it down.
func (r *TabRegistry) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	if err := r.Heartbeat(ctx); err != nil {
		log.Printf("Warning: initial heartbeat failed: %v", err)
	}

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := r.Heartbeat(ctx); err != nil {
					log.Printf("Warning: heartbeat failed: %v", err)
				}
			case <-r.stopCh:
				return
			}
		}
	}()
}

// Heartbeat writes this instance's liveness entry under the staleness TTL, so
// a crashed instance disappears without anyone cleaning up after it.
func (r *TabRegistry) Heartbeat(ctx context.Context) error {
	entry := model.TabEntry{
		TabID:         r.tabID,
		LastHeartbeat: r.now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := r.backend.Set(ctx, tabKey(r.namespace, r.tabID), data, r.staleness); err != nil {
		return err
	}
	utils.Heartbeats.Inc()
	return nil
}

// GetActiveTabs returns the ids of instances with a credible heartbeat,
// always including the caller's own. Entries past the staleness window are
// skipped even if the backend TTL has not expired them yet.
func (r *TabRegistry) GetActiveTabs(ctx context.Context) []string {
	active := map[string]bool{r.tabID: true}

	keys, err := r.backend.Keys(ctx, tabKey(r.namespace, ""))
	if err != nil {
		log.Printf("Warning: failed to list tab entries: %v", err)
	}
	cutoff := r.now().Add(-r.staleness)
	for _, key := range keys {
		data, err := r.backend.Get(ctx, key)
		if err != nil || data == nil {
			continue
		}
		var entry model.TabEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		if entry.LastHeartbeat.Before(cutoff) {
			continue
		}
		active[entry.TabID] = true
	}

	tabs := make([]string, 0, len(active))
	for id := range active {
		tabs = append(tabs, id)
	}
	sort.Strings(tabs)
	utils.ActiveTabs.Set(float64(len(tabs)))
	return tabs
}

// Stop halts the heartbeat loop and removes this instance's entry. Idempotent.
func (r *TabRegistry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.backend.Delete(ctx, tabKey(r.namespace, r.tabID)); err != nil {
			log.Printf("Warning: failed to remove tab entry: %v", err)
		}
	})
}
