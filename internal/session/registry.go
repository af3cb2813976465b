package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ticket-storefront/monitoring"
)

// Registry holds the live sessions of all visitors. Sessions are created on
// first use and dropped after SESSION_IDLE_TTL without requests; their
// persisted storage outlives them.
type Registry struct {
	newStorage StorageFactory
	refresher  Refresher
	idleTTL    time.Duration
	opts       []Option
	monitor    *monitoring.Monitor
	logger     *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(newStorage StorageFactory, refresher Refresher, idleTTL time.Duration, monitor *monitoring.Monitor, opts ...Option) *Registry {
	return &Registry{
		newStorage: newStorage,
		refresher:  refresher,
		idleTTL:    idleTTL,
		opts:       append(opts, WithMonitor(monitor)),
		monitor:    monitor,
		logger:     slog.Default(),
		sessions:   make(map[string]*Session),
	}
}

// Get returns the visitor's session, restoring it from storage the first
// time. Concurrent first requests wait for the same restore.
func (r *Registry) Get(ctx context.Context, visitor string) *Session {
	r.mu.Lock()
	s, ok := r.sessions[visitor]
	if !ok {
		s = New(visitor, r.newStorage(visitor), r.refresher, r.opts...)
		r.sessions[visitor] = s
		r.monitor.SetActiveSessions(len(r.sessions))
	}
	r.mu.Unlock()

	s.Touch()
	s.ensureInitialized(ctx)
	return s
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep drops sessions idle since before now-idleTTL and reports how many
// went away.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-r.idleTTL)
	removed := 0
	for visitor, s := range r.sessions {
		if s.LastSeen().Before(cutoff) {
			delete(r.sessions, visitor)
			removed++
		}
	}
	r.monitor.SetActiveSessions(len(r.sessions))
	return removed
}

// Run sweeps on every tick until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.Sweep(now); n > 0 {
				r.logger.Debug("idle sessions evicted", "count", n)
			}
		}
	}
}
