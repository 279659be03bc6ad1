// Package ratelimit implements the API-boundary token-bucket limiter
// described in spec.md §5: one bucket per client IP, scoped to one of three
// classes (auth, API-read, API-mutate), built on golang.org/x/time/rate the
// way the rest of this module leans on the golang.org/x family already
// pulled in elsewhere in this module (golang.org/x/crypto).
package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Class identifies which bucket a request consumes from.
type Class string

const (
	ClassAuth      Class = "auth"
	ClassAPIRead   Class = "api-read"
	ClassAPIMutate Class = "api-mutate"
)

// Limits holds the requests-per-window and window duration for one class.
// Defaults match spec.md §5: auth 5/60s, API-read 100/60s, API-mutate 30/60s.
type Limits struct {
	Requests int
	Window   time.Duration
}

// DefaultLimits returns the documented defaults, keyed by Class.
func DefaultLimits() map[Class]Limits {
	return map[Class]Limits{
		ClassAuth:      {Requests: 5, Window: time.Minute},
		ClassAPIRead:   {Requests: 100, Window: time.Minute},
		ClassAPIMutate: {Requests: 30, Window: time.Minute},
	}
}

// Limiter tracks one golang.org/x/time/rate.Limiter per (class, client IP)
// pair. Settings changes are applied by calling SetLimits, which resets every
// in-flight counter for the affected class (spec.md §5 "changing them resets
// in-flight counters").
type Limiter struct {
	mu      sync.Mutex
	limits  map[Class]Limits
	buckets map[Class]map[string]*rate.Limiter
}

// New creates a Limiter. limits may be nil to use DefaultLimits.
func New(limits map[Class]Limits) *Limiter {
	if limits == nil {
		limits = DefaultLimits()
	}
	l := &Limiter{
		limits:  limits,
		buckets: make(map[Class]map[string]*rate.Limiter),
	}
	for c := range limits {
		l.buckets[c] = make(map[string]*rate.Limiter)
	}
	return l
}

// SetLimits replaces the configuration for one class and drops every bucket
// currently tracked for it, so the new rate takes effect immediately rather
// than only for clients seen after the change.
func (l *Limiter) SetLimits(class Class, limits Limits) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits[class] = limits
	l.buckets[class] = make(map[string]*rate.Limiter)
}

// Allow reports whether a request from clientIP in the given class may
// proceed, creating that client's bucket on first use.
func (l *Limiter) Allow(class Class, clientIP string) bool {
	return l.bucketFor(class, clientIP).Allow()
}

func (l *Limiter) bucketFor(class Class, clientIP string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	perClass, ok := l.buckets[class]
	if !ok {
		perClass = make(map[string]*rate.Limiter)
		l.buckets[class] = perClass
	}

	if b, ok := perClass[clientIP]; ok {
		return b
	}

	lim := l.limits[class]
	if lim.Requests <= 0 || lim.Window <= 0 {
		lim = Limits{Requests: 1, Window: time.Second}
	}
	// rate.Limit is events/second; burst equals the window's full quota so a
	// client may use its whole allowance immediately, then refill gradually.
	perSecond := rate.Limit(float64(lim.Requests) / lim.Window.Seconds())
	b := rate.NewLimiter(perSecond, lim.Requests)
	perClass[clientIP] = b
	return b
}

// Middleware returns a chi-compatible http.Handler wrapper enforcing class
// against the request's remote IP, responding 429 when exhausted.
func Middleware(l *Limiter, class Class) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !l.Allow(class, ip) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
