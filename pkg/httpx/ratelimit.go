package httpx

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig defines outbound rate limiting parameters. A zero
// RequestsPerWindow disables limiting.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the window.
	RequestsPerWindow int
	Window            time.Duration
	// Burst allows temporary bursts above the steady rate.
	Burst int
}

// Enabled reports whether the config limits anything.
func (c RateLimitConfig) Enabled() bool {
	return c.RequestsPerWindow > 0 && c.Window > 0
}

// Limit converts the config to a token bucket rate.
func (c RateLimitConfig) Limit() rate.Limit {
	if !c.Enabled() {
		return rate.Inf
	}
	return rate.Limit(float64(c.RequestsPerWindow) / c.Window.Seconds())
}

// AuthLimit is applied to the credential endpoints so a misbehaving caller
// cannot hammer /login. Override with MEDIBOOK_RATELIMIT_AUTH_*.
var AuthLimit = ParseRateLimitFromEnv("AUTH", RateLimitConfig{
	RequestsPerWindow: 10,
	Window:            time.Minute,
	Burst:             5,
})

// ParseRateLimitFromEnv reads overrides from MEDIBOOK_RATELIMIT_{prefix}_REQUESTS,
// _WINDOW_SEC and _BURST. Invalid or non-positive values are ignored.
func ParseRateLimitFromEnv(prefix string, def RateLimitConfig) RateLimitConfig {
	cfg := def
	env := "MEDIBOOK_RATELIMIT_" + prefix

	if n, ok := positiveEnv(env + "_REQUESTS"); ok {
		cfg.RequestsPerWindow = n
	}
	if n, ok := positiveEnv(env + "_WINDOW_SEC"); ok {
		cfg.Window = time.Duration(n) * time.Second
	}
	if n, ok := positiveEnv(env + "_BURST"); ok {
		cfg.Burst = n
	}
	return cfg
}

func positiveEnv(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// KeyExtractor groups requests that share a bucket.
type KeyExtractor func(*Request) string

// GlobalKey puts every request in one bucket.
func GlobalKey(*Request) string { return "*" }

// RouteKey buckets by the first path segment, so /appointments/12 and
// /appointments share a bucket.
func RouteKey(r *Request) string {
	p := strings.TrimPrefix(r.Path, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	return p
}

// RateLimiter delays outbound requests that exceed their bucket. Callers
// wait rather than fail; only context cancellation aborts the wait.
type RateLimiter struct {
	key       KeyExtractor
	def       RateLimitConfig
	overrides map[string]RateLimitConfig

	limiters sync.Map // map[string]*rate.Limiter

	mu          sync.Mutex
	lastCleanup time.Time
}

// NewRateLimiter returns a limiter applying def to every bucket. A nil key
// extractor means RouteKey.
func NewRateLimiter(def RateLimitConfig, key KeyExtractor) *RateLimiter {
	if key == nil {
		key = RouteKey
	}
	return &RateLimiter{
		key:         key,
		def:         def,
		overrides:   map[string]RateLimitConfig{},
		lastCleanup: time.Now(),
	}
}

// Override applies cfg to the named bucket instead of the default. Call it
// before the limiter is shared.
func (rl *RateLimiter) Override(bucket string, cfg RateLimitConfig) *RateLimiter {
	rl.overrides[bucket] = cfg
	return rl
}

// Wait blocks until req may be sent.
func (rl *RateLimiter) Wait(ctx context.Context, req *Request) error {
	limiter := rl.get(rl.key(req))
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	cfg, ok := rl.overrides[key]
	if !ok {
		cfg = rl.def
	}
	if !cfg.Enabled() {
		return nil
	}

	if l, ok := rl.limiters.Load(key); ok {
		return l.(*rate.Limiter)
	}

	burst := max(cfg.Burst, 1)
	actual, _ := rl.limiters.LoadOrStore(key, rate.NewLimiter(cfg.Limit(), burst))
	rl.maybeCleanup()
	return actual.(*rate.Limiter)
}

// maybeCleanup drops idle buckets, those whose token bucket is full again.
func (rl *RateLimiter) maybeCleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastCleanup) < 5*time.Minute {
		return
	}
	rl.lastCleanup = time.Now()

	rl.limiters.Range(func(key, value any) bool {
		l := value.(*rate.Limiter)
		if l.Tokens() >= float64(l.Burst()) {
			rl.limiters.Delete(key)
		}
		return true
	})
}
