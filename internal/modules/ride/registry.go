// README: Per-user session registry used by the HTTP surface.
package ride

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gogo/internal/modules/promo"
	"gogo/internal/observability"
)

// Registry hands out one Synchronizer per authenticated user. A single
// background loop refreshes surge for every session and evicts sessions that
// have sat idle for longer than Config.IdleTTL.
type Registry struct {
	deps         Deps
	cfg          Config
	surgeRefresh time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	sessions map[string]*registryEntry
}

type registryEntry struct {
	s        *Synchronizer
	lastUsed time.Time
}

// NewRegistry shares deps across sessions; Identity is replaced per user. A
// surgeRefresh of zero disables the surge loop.
func NewRegistry(deps Deps, cfg Config, surgeRefresh time.Duration) *Registry {
	cfg = cfg.withDefaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	// One promo service so the attempt throttle is shared and can be
	// forgotten on eviction.
	if deps.Promos == nil {
		deps.Promos = promo.NewService(promo.NewStore(deps.Store), nil, deps.Logger)
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		deps:         deps,
		cfg:          cfg,
		surgeRefresh: surgeRefresh,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		sessions:     make(map[string]*registryEntry),
	}
	go r.run()
	return r
}

// Session returns the user's synchronizer, creating it on first use.
func (r *Registry) Session(uid string) *Synchronizer {
	now := r.deps.Clock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[uid]; ok {
		e.lastUsed = now
		return e.s
	}
	deps := r.deps
	deps.Identity = StaticIdentity(uid)
	s := NewSynchronizer(uid, deps, r.cfg)
	r.sessions[uid] = &registryEntry{s: s, lastUsed: now}
	observability.ActiveSessions.Inc()
	return s
}

// Drop closes and forgets the user's session.
func (r *Registry) Drop(uid string) {
	r.mu.Lock()
	e, ok := r.sessions[uid]
	delete(r.sessions, uid)
	r.mu.Unlock()
	if ok {
		r.release(uid, e.s)
	}
}

// Sweep evicts sessions unused since now-IdleTTL that have no ride in
// flight and no watcher. It returns how many were evicted.
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.cfg.IdleTTL)
	evicted := make(map[string]*Synchronizer)
	r.mu.Lock()
	for uid, e := range r.sessions {
		if e.lastUsed.After(cutoff) || !e.s.idle() {
			continue
		}
		evicted[uid] = e.s
		delete(r.sessions, uid)
	}
	r.mu.Unlock()
	for uid, s := range evicted {
		r.release(uid, s)
	}
	if len(evicted) > 0 {
		r.deps.Logger.Debug("evicted idle sessions", "count", len(evicted))
	}
	return len(evicted)
}

// RefreshSurge re-evaluates surge for every session.
func (r *Registry) RefreshSurge(now time.Time) {
	r.mu.Lock()
	sessions := make([]*Synchronizer, 0, len(r.sessions))
	for _, e := range r.sessions {
		sessions = append(sessions, e.s)
	}
	r.mu.Unlock()
	for _, s := range sessions {
		s.RefreshSurge(now)
	}
}

func (r *Registry) release(uid string, s *Synchronizer) {
	s.Close()
	r.deps.Promos.Forget(uid)
	observability.ActiveSessions.Dec()
}

func (r *Registry) run() {
	defer close(r.done)

	var surge <-chan time.Time
	if r.surgeRefresh > 0 {
		t := time.NewTicker(r.surgeRefresh)
		defer t.Stop()
		surge = t.C
	}
	sweepEvery := r.cfg.IdleTTL / 2
	if sweepEvery < time.Second {
		sweepEvery = time.Second
	}
	sweep := time.NewTicker(sweepEvery)
	defer sweep.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-surge:
			r.RefreshSurge(r.deps.Clock())
		case <-sweep.C:
			r.Sweep(r.deps.Clock())
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops the background loop and every session; the registry must not
// be used afterwards.
func (r *Registry) Close() {
	r.cancel()
	<-r.done
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*registryEntry)
	r.mu.Unlock()
	for uid, e := range sessions {
		r.release(uid, e.s)
	}
}
