// Package ratelimit throttles prediction requests per client and route.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// Option configures a Limiter.
type Option func(*Limiter)

// WithRejectHook registers fn to be called with the route of every rejected
// request.
func WithRejectHook(fn func(route string)) Option {
	return func(l *Limiter) { l.onReject = fn }
}

// Limiter keeps one token bucket per client and route. Buckets not used for
// idleTTL are dropped on the next sweep, at most once per idleTTL.
type Limiter struct {
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	onReject func(route string)

	mu        sync.Mutex
	buckets   map[bucketKey]*bucket
	lastSweep time.Time
}

type bucketKey struct {
	client string
	route  string
}

type bucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// New returns nil, which limits nothing, if rps or burst is not positive.
// idleTTL defaults to ten minutes.
func New(rps float64, burst int, idleTTL time.Duration, opts ...Option) *Limiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	l := &Limiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		buckets: make(map[bucketKey]*bucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow consumes one token from the bucket of client on route. When the
// bucket is empty it returns false and how long until a token is available.
// Requests without a client address are never limited.
func (l *Limiter) Allow(client, route string, now time.Time) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	client = strings.TrimSpace(client)
	if client == "" {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)

	key := bucketKey{client: client, route: route}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	if b.tokens.AllowN(now, 1) {
		return true, 0
	}
	missing := 1 - b.tokens.TokensAt(now)
	return false, time.Duration(missing / float64(l.limit) * float64(time.Second))
}

func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idleTTL {
		return
	}
	l.lastSweep = now
	cutoff := now.Add(-l.idleTTL)
	for k, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, k)
		}
	}
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header, keyed by client IP and matched route. A nil Limiter lets
// everything through.
func (l *Limiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			ok, wait := l.Allow(c.RealIP(), route, time.Now())
			if ok {
				return next(c)
			}
			if l.onReject != nil {
				l.onReject(route)
			}
			c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
			return echo.NewHTTPError(http.StatusTooManyRequests, map[string]string{
				"detail": "Too many requests",
			})
		}
	}
}

func retryAfterSeconds(wait time.Duration) int {
	return max(1, int(math.Ceil(wait.Seconds())))
}
