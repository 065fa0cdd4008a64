package middleware

import (
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// RateLimitConfig configures a token bucket per client IP, per spec.md
// §4.11 ("token bucket per client IP, lock-free fast path"). Grounded on
// original_source/src/middleware/builtin/rate_limit.rs's AtomicU64
// compare-and-swap bucket, translated to Go's sync/atomic; the bucket map
// itself uses a plain sync.Map rather than a sharded concurrent map since
// the critical section per request is a single load-or-store.
type RateLimitConfig struct {
	Name            string
	AverageRPS      uint64
	Burst           uint64
	RejectStatus    int
}

type tokenBucket struct {
	tokensMilli atomic.Uint64 // tokens scaled by 1000 for fractional precision
	lastNanos   atomic.Int64
}

type rateLimitMiddleware struct {
	name         string
	averageRPS   uint64
	burst        uint64
	rejectStatus int
	buckets      sync.Map // string (client IP) -> *tokenBucket
	start        time.Time
}

func NewRateLimit(cfg RateLimitConfig) Middleware {
	burst := cfg.Burst
	if burst == 0 {
		burst = cfg.AverageRPS
	}
	if burst == 0 {
		burst = 1
	}
	status := cfg.RejectStatus
	if status == 0 {
		status = http.StatusTooManyRequests
	}

	return &rateLimitMiddleware{
		name:         cfg.Name,
		averageRPS:   cfg.AverageRPS,
		burst:        burst,
		rejectStatus: status,
		start:        time.Now(),
	}
}

func (m *rateLimitMiddleware) Name() string { return m.name }

func (m *rateLimitMiddleware) Handle(w http.ResponseWriter, r *http.Request) (http.ResponseWriter, *http.Request, bool) {
	ip := clientIP(r)
	if m.allow(ip) {
		return w, r, true
	}

	w.WriteHeader(m.rejectStatus)
	return w, r, false
}

func (m *rateLimitMiddleware) allow(ip string) bool {
	fresh := &tokenBucket{}
	fresh.tokensMilli.Store(m.burst * 1000)
	v, _ := m.buckets.LoadOrStore(ip, fresh)
	b := v.(*tokenBucket)

	nowNanos := time.Since(m.start).Nanoseconds()
	last := b.lastNanos.Swap(nowNanos)

	elapsedMillis := uint64(0)
	if nowNanos > last {
		elapsedMillis = uint64(nowNanos-last) / 1_000_000
	}
	tokensToAdd := elapsedMillis * m.averageRPS // in thousandths of a token
	maxTokensMilli := m.burst * 1000

	for {
		current := b.tokensMilli.Load()
		newTokens := current + tokensToAdd
		if newTokens > maxTokensMilli {
			newTokens = maxTokensMilli
		}
		if newTokens < 1000 {
			return false
		}
		if b.tokensMilli.CompareAndSwap(current, newTokens-1000) {
			return true
		}
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
