package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"wishlistbuilder/internal/config"
	"wishlistbuilder/internal/logger"
)

type rateLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type clientTracker struct {
	errors404    []time.Time
	blockedUntil time.Time
	lastSeen     time.Time
}

// limiterSet hands out one token bucket per client IP.
type limiterSet struct {
	mu      sync.Mutex
	clients map[string]*rateLimiter
	every   time.Duration
	burst   int
	idle    time.Duration
}

func newLimiterSet(every time.Duration, burst int, idle time.Duration) *limiterSet {
	return &limiterSet{
		clients: make(map[string]*rateLimiter),
		every:   every,
		burst:   burst,
		idle:    idle,
	}
}

func (s *limiterSet) allow(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	client, exists := s.clients[ip]
	if !exists {
		client = &rateLimiter{limiter: rate.NewLimiter(rate.Every(s.every), s.burst)}
		s.clients[ip] = client
	}
	client.lastSeen = now

	for other, c := range s.clients {
		if now.Sub(c.lastSeen) > s.idle {
			delete(s.clients, other)
		}
	}
	return client.limiter.Allow()
}

func limit(cfg *config.Config, set *limiterSet, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip rate limiting in development mode
		if cfg.IsDevelopment() {
			c.Next()
			return
		}

		if !set.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": message})
			return
		}
		c.Next()
	}
}

// RateLimit allows 20 requests per second per client with a burst of 20.
func RateLimit(cfg *config.Config) gin.HandlerFunc {
	return limit(cfg, newLimiterSet(time.Second/20, 20, 10*time.Minute), "Rate limit exceeded")
}

// UpstreamRateLimit guards routes that call Bungie or GitHub on the
// client's behalf.
func UpstreamRateLimit(cfg *config.Config) gin.HandlerFunc {
	return limit(cfg, newLimiterSet(time.Minute/6, 3, 30*time.Minute), "Too many upstream requests, slow down")
}

// Blocker bans clients that keep hitting unknown routes or resources.
type Blocker struct {
	cfg      *config.Config
	mu       sync.Mutex
	trackers map[string]*clientTracker
}

func NewBlocker(cfg *config.Config) *Blocker {
	return &Blocker{cfg: cfg, trackers: make(map[string]*clientTracker)}
}

func (b *Blocker) IPBlocker() gin.HandlerFunc {
	return func(c *gin.Context) {
		if b.cfg.IsDevelopment() {
			c.Next()
			return
		}

		b.mu.Lock()
		tracker, exists := b.trackers[c.ClientIP()]
		blocked := exists && time.Now().Before(tracker.blockedUntil)
		b.mu.Unlock()

		if blocked {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Your IP has been temporarily blocked due to excessive invalid requests",
			})
			return
		}
		c.Next()
	}
}

func (b *Blocker) Track404AndBlock() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if b.cfg.IsDevelopment() || c.Writer.Status() != http.StatusNotFound {
			return
		}
		// Only unmatched routes count; a handler answering 404 for a missing
		// wishlist or build is ordinary traffic.
		if c.FullPath() != "" {
			return
		}

		ip := c.ClientIP()
		now := time.Now()

		b.mu.Lock()
		defer b.mu.Unlock()

		tracker, exists := b.trackers[ip]
		if !exists {
			tracker = &clientTracker{}
			b.trackers[ip] = tracker
		}
		tracker.lastSeen = now

		// Keep only the last 5 minutes of 404s
		cutoff := now.Add(-5 * time.Minute)
		recent := tracker.errors404[:0]
		for _, t := range tracker.errors404 {
			if t.After(cutoff) {
				recent = append(recent, t)
			}
		}
		tracker.errors404 = append(recent, now)

		if len(tracker.errors404) >= 10 {
			tracker.blockedUntil = now.Add(15 * time.Minute)
			logger.Warn("Blocked client after repeated 404s", "ip", ip, "count", len(tracker.errors404))
			tracker.errors404 = nil
		}

		for other, t := range b.trackers {
			if now.Sub(t.lastSeen) > 30*time.Minute && now.After(t.blockedUntil) {
				delete(b.trackers, other)
			}
		}
	}
}

func CORS(allowedOrigins string) gin.HandlerFunc {
	origins := strings.Split(allowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		for _, allowedOrigin := range origins {
			if origin != "" && (origin == allowedOrigin || allowedOrigin == "*") {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Credentials", "true")
				c.Header("Vary", "Origin")
				break
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-GitHub-Token")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func SecurityHeaders(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.IsDevelopment() {
			c.Next()
			return
		}

		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Next()
	}
}

// LogRequests writes one access log line per request through the logger.
func LogRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		kv := []interface{}{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", time.Since(start).String(),
			"ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			kv = append(kv, "errors", c.Errors.String())
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("HTTP request", kv...)
		case status >= http.StatusBadRequest:
			logger.Warn("HTTP request", kv...)
		default:
			logger.Debug("HTTP request", kv...)
		}
	}
}
