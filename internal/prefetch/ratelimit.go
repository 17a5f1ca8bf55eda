package prefetch

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// assetLimiter token-buckets long-range prefetch dispatch per asset, so a
// single ForwardScrub-pattern asset can't monopolize the worker pool at
// the expense of every other asset's short-range (foreground-adjacent)
// work. Adapted from the teacher's per-IP HTTP rate limiter
// (infrastructure/api/src/middleware/logic/ratelimit.go): same
// lazily-created-bucket-plus-TTL-sweep shape, generalized from
// per-client-IP to per-asset-ID and driven directly rather than through
// gin middleware.
type assetLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	ttl      time.Duration

	stop chan struct{}
	once sync.Once
}

type limiterEntry struct {
	limiter        *rate.Limiter
	lastAccessUnix int64
}

// newAssetLimiter allows up to burst long-range dispatches immediately,
// refilling at ratePerSecond thereafter, per asset. Entries idle past ttl
// are swept so long-lived processes don't accumulate one bucket per
// asset ever seen.
func newAssetLimiter(ratePerSecond float64, burst int, ttl time.Duration) *assetLimiter {
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	al := &assetLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(ratePerSecond),
		burst:    burst,
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
	go al.cleanupLoop()
	return al
}

// allow reports whether a long-range dispatch for assetID may proceed
// right now, consuming a token if so.
func (al *assetLimiter) allow(assetID string) bool {
	return al.get(assetID).Allow()
}

func (al *assetLimiter) get(assetID string) *rate.Limiter {
	now := time.Now().UnixNano()

	al.mu.RLock()
	entry, ok := al.limiters[assetID]
	al.mu.RUnlock()
	if ok {
		atomic.StoreInt64(&entry.lastAccessUnix, now)
		return entry.limiter
	}

	al.mu.Lock()
	defer al.mu.Unlock()
	if entry, ok := al.limiters[assetID]; ok {
		atomic.StoreInt64(&entry.lastAccessUnix, now)
		return entry.limiter
	}
	entry = &limiterEntry{limiter: rate.NewLimiter(al.rate, al.burst), lastAccessUnix: now}
	al.limiters[assetID] = entry
	return entry.limiter
}

func (al *assetLimiter) cleanupLoop() {
	ticker := time.NewTicker(2 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-al.stop:
			return
		case <-ticker.C:
			al.cleanup()
		}
	}
}

func (al *assetLimiter) cleanup() {
	cutoff := time.Now().Add(-al.ttl).UnixNano()
	al.mu.Lock()
	defer al.mu.Unlock()
	for id, entry := range al.limiters {
		if atomic.LoadInt64(&entry.lastAccessUnix) < cutoff {
			delete(al.limiters, id)
		}
	}
}

// close stops the background cleanup loop. Safe to call more than once.
func (al *assetLimiter) close() {
	al.once.Do(func() { close(al.stop) })
}
