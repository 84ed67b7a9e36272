// Package analytics caches the backend's analytics snapshot, refreshed on
// a fixed interval.
package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/deskhaus/deskchat/internal/domain"
)

// Feed fetches one snapshot. *transport.Backend implements it.
type Feed interface {
	Analytics(ctx context.Context) (domain.AnalyticsSnapshot, error)
}

// Poller refreshes an AnalyticsSnapshot on a fixed interval. Each
// successful poll replaces the cached snapshot wholesale; a failed poll
// keeps the last known value. There is no backoff or jitter.
type Poller struct {
	feed     Feed
	interval time.Duration
	logger   *slog.Logger

	mu       sync.RWMutex
	snapshot domain.AnalyticsSnapshot
	fetched  bool
}

// NewPoller creates a poller; call Run to start refreshing.
func NewPoller(feed Feed, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		feed:     feed,
		interval: interval,
		logger:   logger,
	}
}

// Run polls immediately and then on every interval tick until the context
// is cancelled. It blocks; run it in its own goroutine.
func (p *Poller) Run(ctx context.Context) {
	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// Snapshot returns the cached snapshot and whether any poll has succeeded
// yet. The returned value is a copy; mutating it cannot leak into the cache.
func (p *Poller) Snapshot() (domain.AnalyticsSnapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot.Clone(), p.fetched
}

func (p *Poller) poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	snap, err := p.feed.Analytics(pollCtx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("Analytics poll failed, keeping last snapshot", "error", err)
		}
		return
	}

	p.mu.Lock()
	p.snapshot = snap
	p.fetched = true
	p.mu.Unlock()

	p.logger.Debug("Analytics snapshot replaced", "total_queries", snap.TotalQueries)
}
