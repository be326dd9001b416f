// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ============================================================================
// CORS
// ============================================================================

// Methods and headers the proxy routes accept from browsers.
const (
	corsMethods = "GET, POST, DELETE, OPTIONS"
	corsHeaders = "Content-Type, Authorization"
)

// CORSPolicy decides which browser origins may call the proxy. Origins
// holds exact origins, "*.example.com" subdomain patterns, or "*".
type CORSPolicy struct {
	Origins []string
	MaxAge  time.Duration
}

// DefaultCORSPolicy allows any origin, as the bundled web client may be
// served from anywhere.
func DefaultCORSPolicy() CORSPolicy {
	return CORSPolicy{Origins: []string{"*"}, MaxAge: 24 * time.Hour}
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin and
// whether the origin was matched by name. "" means the origin is refused.
func (p CORSPolicy) allowOrigin(origin string) (value string, named bool) {
	wildcard := false
	for _, o := range p.Origins {
		switch {
		case o == "*":
			wildcard = true
		case origin == "":
		case o == origin:
			return origin, true
		case strings.HasPrefix(o, "*.") && strings.HasSuffix(origin, o[1:]):
			return origin, true
		}
	}
	if wildcard {
		return "*", false
	}
	return "", false
}

// CORSMiddleware sets the CORS headers for p and answers preflights with
// 204.
func CORSMiddleware(p CORSPolicy) func(http.Handler) http.Handler {
	maxAge := strconv.Itoa(int(p.MaxAge / time.Second))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			allow, named := p.allowOrigin(r.Header.Get("Origin"))
			if named {
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Add("Vary", "Origin")
			}
			if allow != "" {
				h.Set("Access-Control-Allow-Origin", allow)
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Allow-Headers", corsHeaders)
				h.Set("Access-Control-Max-Age", maxAge)
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ============================================================================
// Rate Limiter
// ============================================================================

// visitorTTL is how long an idle client keeps its bucket.
const visitorTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter creates a RateLimiter allowing rps requests per second with
// the given burst. rps <= 0 disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
	rl.limit, rl.burst = limitOf(rps, burst)
	rl.lastSweep = rl.now()
	return rl
}

func limitOf(rps float64, burst int) (rate.Limit, int) {
	if rps <= 0 {
		return rate.Inf, 0
	}
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return rate.Limit(rps), burst
}

// Update changes the rate for every client, current buckets included.
func (rl *RateLimiter) Update(rps float64, burst int) {
	limit, b := limitOf(rps, burst)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limit, rl.burst = limit, b
	now := rl.now()
	for _, v := range rl.visitors {
		v.limiter.SetLimitAt(now, limit)
		v.limiter.SetBurstAt(now, b)
	}
}

// Allow reports whether a request from ip may proceed, consuming a token
// if so.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > visitorTTL {
		rl.sweepLocked(now)
	}

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Remaining returns the whole tokens left for ip.
func (rl *RateLimiter) Remaining(ip string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.limit == rate.Inf {
		return -1
	}
	v, ok := rl.visitors[ip]
	if !ok {
		return rl.burst
	}
	tokens := int(v.limiter.TokensAt(rl.now()))
	if tokens < 0 {
		tokens = 0
	}
	return tokens
}

// Limits returns the current rate and burst.
func (rl *RateLimiter) Limits() (rate.Limit, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.limit, rl.burst
}

// sweepLocked drops buckets of clients idle longer than visitorTTL.
func (rl *RateLimiter) sweepLocked(now time.Time) {
	for ip, v := range rl.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(rl.visitors, ip)
		}
	}
	rl.lastSweep = now
}

// RateLimitMiddleware returns HTTP middleware that enforces rate limiting.
//
// Returns 429 Too Many Requests if the rate limit is exceeded.
// Adds X-RateLimit-* headers to limited responses.
func RateLimitMiddleware(limiter *RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := GetClientIP(r)

			limit, burst := limiter.Limits()
			if limit == rate.Inf {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(burst))

			if !limiter.Allow(clientIP) {
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter(limit)))

				logger.Warn("RATE_LIMIT_EXCEEDED", "ip", clientIP, "rps", float64(limit), "burst", burst)
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limiter.Remaining(clientIP)))
			next.ServeHTTP(w, r)
		})
	}
}

// retryAfter is the whole seconds until one token is back.
func retryAfter(limit rate.Limit) int {
	secs := int(1/float64(limit) + 0.999)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// ============================================================================
// Request Logging Middleware
// ============================================================================

// responseWriter wraps http.ResponseWriter to capture the status code and
// size. Unwrap lets http.ResponseController reach the flusher underneath.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	bytes      int64
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// WriteHeader captures the status code before writing it.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// LoggingMiddleware returns HTTP middleware that logs every request once it
// completes.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			level := slog.LevelInfo
			if wrapped.statusCode >= 500 {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "REQUEST_COMPLETE",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"bytes", wrapped.bytes,
				"duration", time.Since(start).Round(time.Millisecond),
				"ip", GetClientIP(r),
			)
		})
	}
}

// ============================================================================
// Security Headers Middleware
// ============================================================================

// SecurityHeadersMiddleware returns HTTP middleware that sets security
// headers on every response. The content security policy allows the inline
// styles of the bundled front end.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data: http: https:")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			next.ServeHTTP(w, r)
		})
	}
}

// ============================================================================
// Recovery Middleware
// ============================================================================

// RecoveryMiddleware returns HTTP middleware that recovers from panics,
// logs the stack and answers 500.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("PANIC_RECOVERED",
						"method", r.Method,
						"path", r.URL.Path,
						"error", err,
						"stack", string(debug.Stack()),
					)
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// ============================================================================
// Middleware Chain Helper
// ============================================================================

// Chain composes multiple middleware functions into a single middleware.
// Middlewares run in the order provided.
func Chain(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// ============================================================================
// Client Address
// ============================================================================

// trustedProxies are the networks allowed to set X-Forwarded-For and
// X-Real-IP. Headers from anywhere else are ignored.
var trustedProxies = []netip.Prefix{
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("fc00::/7"),
}

func isTrustedProxy(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range trustedProxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// GetClientIP returns the address rate limits and logs are keyed on.
// Forwarding headers count only when the connection comes from a trusted
// proxy and they hold a valid address.
func GetClientIP(r *http.Request) string {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	conn, err := netip.ParseAddr(host)
	if err != nil || !isTrustedProxy(conn) {
		return host
	}

	first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	for _, candidate := range []string{first, r.Header.Get("X-Real-IP")} {
		if addr, err := netip.ParseAddr(strings.TrimSpace(candidate)); err == nil {
			return addr.String()
		}
	}
	return host
}
