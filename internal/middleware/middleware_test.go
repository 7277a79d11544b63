package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"wishlistbuilder/internal/config"
)

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func request(r *gin.Engine, method, path string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "203.0.113.7:4000"
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestUpstreamRateLimit(t *testing.T) {
	r := newRouter(UpstreamRateLimit(&config.Config{Environment: "production"}))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/ok").Code, "request %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, request(r, http.MethodGet, "/ok").Code)
}

func TestRateLimitSkippedInDevelopment(t *testing.T) {
	r := newRouter(UpstreamRateLimit(&config.Config{Environment: "development"}))

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/ok").Code)
	}
}

func TestTrack404AndBlock(t *testing.T) {
	b := NewBlocker(&config.Config{Environment: "production"})
	r := newRouter(b.IPBlocker(), b.Track404AndBlock())

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusNotFound, request(r, http.MethodGet, "/missing").Code)
	}
	assert.Equal(t, http.StatusForbidden, request(r, http.MethodGet, "/ok").Code)
}

func TestTrack404IgnoresHandlerNotFound(t *testing.T) {
	b := NewBlocker(&config.Config{Environment: "production"})
	r := newRouter(b.IPBlocker(), b.Track404AndBlock())
	r.GET("/wishlists/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for i := 0; i < 12; i++ {
		assert.Equal(t, http.StatusNotFound, request(r, http.MethodGet, "/wishlists/99").Code)
	}
	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/ok").Code)
}

func TestCORS(t *testing.T) {
	r := newRouter(CORS("http://localhost:3000, https://wishlists.example"))

	w := request(r, http.MethodGet, "/ok", "Origin", "https://wishlists.example")
	assert.Equal(t, "https://wishlists.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = request(r, http.MethodGet, "/ok", "Origin", "https://evil.example")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = request(r, http.MethodOptions, "/ok", "Origin", "http://localhost:3000")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSecurityHeaders(t *testing.T) {
	w := request(newRouter(SecurityHeaders(&config.Config{Environment: "production"})), http.MethodGet, "/ok")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))

	w = request(newRouter(SecurityHeaders(&config.Config{Environment: "development"})), http.MethodGet, "/ok")
	assert.Empty(t, w.Header().Get("X-Frame-Options"))
}
