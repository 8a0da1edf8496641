package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AzeemWaqarr/wattwise/internal/httpx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const rateLimitPrefix = "ratelimit:"

// Counter counts hits for key inside a fixed window and reports the running total.
type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

type RateLimiter struct {
	requests int64
	window   time.Duration
	counter  Counter
	log      *zap.SugaredLogger
}

// NewRateLimiter returns a limiter backed by counter. A nil counter keeps the
// windows in process memory. Non-positive limits disable limiting.
func NewRateLimiter(requests int, window time.Duration, counter Counter, logger *zap.SugaredLogger) *RateLimiter {
	if requests <= 0 || window <= 0 {
		return &RateLimiter{}
	}
	if counter == nil {
		counter = NewMemoryCounter()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RateLimiter{
		requests: int64(requests),
		window:   window,
		counter:  counter,
		log:      logger,
	}
}

func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	if r == nil || r.requests == 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		count, err := r.counter.Hit(req.Context(), clientKey(req), r.window)
		if err != nil {
			// Fail open when the counter store is unreachable.
			r.log.Warnw("rate limit counter failed", "error", err)
			next.ServeHTTP(w, req)
			return
		}
		if count > r.requests {
			w.Header().Set("Retry-After", strconv.Itoa(int(r.window.Seconds())))
			httpx.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, req)
	})
}

type memoryCounter struct {
	mu      sync.Mutex
	now     func() time.Time
	clients map[string]*clientWindow
}

type clientWindow struct {
	count   int64
	expires time.Time
}

func NewMemoryCounter() Counter {
	return &memoryCounter{
		now:     time.Now,
		clients: make(map[string]*clientWindow),
	}
}

func (m *memoryCounter) Hit(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	state, ok := m.clients[key]
	if !ok || now.After(state.expires) {
		m.clients[key] = &clientWindow{count: 1, expires: now.Add(window)}
		m.sweep(now)
		return 1, nil
	}
	state.count++
	return state.count, nil
}

func (m *memoryCounter) sweep(now time.Time) {
	for key, state := range m.clients {
		if now.After(state.expires) {
			delete(m.clients, key)
		}
	}
}

// hitScript increments the window counter and arms its expiry on the first
// hit. A key left without a TTL is re-armed so it cannot pin a client forever.
var hitScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 or redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

type redisCounter struct {
	rdb redis.Scripter
}

// NewRedisCounter shares rate-limit windows across replicas.
func NewRedisCounter(rdb redis.UniversalClient) Counter {
	return &redisCounter{rdb: rdb}
}

func (c *redisCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	return hitScript.Run(ctx, c.rdb, []string{rateLimitPrefix + key}, window.Milliseconds()).Int64()
}

func clientKey(r *http.Request) string {
	if r == nil {
		return "unknown"
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if first := strings.TrimSpace(parts[0]); first != "" {
			return first
		}
	}

	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}
