package status

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/nsstatus/internal/metrics"
)

// Registry keeps one Tracker per analysis id so that status transitions
// seen across requests trigger fetches the same way a long-lived page would.
type Registry struct {
	fetcher      Fetcher
	fetchTimeout time.Duration
	idleTTL      time.Duration
	now          func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	tracker  *Tracker
	props    Props
	lastSeen time.Time
}

// NewRegistry creates a Registry. Trackers unseen for idleTTL are dropped
// by Evict; zero keeps them forever.
func NewRegistry(f Fetcher, fetchTimeout, idleTTL time.Duration) *Registry {
	return &Registry{
		fetcher:      f,
		fetchTimeout: fetchTimeout,
		idleTTL:      idleTTL,
		now:          time.Now,
		entries:      make(map[string]*entry),
	}
}

// Observe reports fresh props for an analysis. The first observation
// attaches a new tracker; later ones are fed to OnPropsChanged with the
// previous props.
func (r *Registry) Observe(ctx context.Context, p Props) *Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[p.AnalysisID]
	if !ok {
		e = &entry{tracker: NewTracker(r.fetcher, r.fetchTimeout)}
		r.entries[p.AnalysisID] = e
		e.tracker.OnAttach(ctx, p)
		metrics.SetTrackedAnalyses(len(r.entries))
	} else {
		e.tracker.OnPropsChanged(ctx, e.props, p)
	}
	e.props = p
	e.lastSeen = r.now()
	return e.tracker
}

// Lookup returns the tracker for id without touching it.
func (r *Registry) Lookup(id string) (*Tracker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.tracker, true
}

// Len returns the number of tracked analyses.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Evict drops trackers idle for longer than the TTL and returns how many
// were removed. In-flight fetches of evicted trackers finish on their own.
func (r *Registry) Evict() int {
	if r.idleTTL <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.idleTTL)
	removed := 0
	for id, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			delete(r.entries, id)
			removed++
		}
	}
	if removed > 0 {
		metrics.SetTrackedAnalyses(len(r.entries))
	}
	return removed
}

// Run calls Evict every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Evict(); n > 0 {
				slog.Debug("evicted idle status trackers", "count", n)
			}
		}
	}
}
