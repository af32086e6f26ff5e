package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func performRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "203.0.113.7:51000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitCapsRequestsPerWindow(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RateLimit("general", NewMemoryRateStore(), 3, time.Minute))
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pong": true})
	})

	for i := 0; i < 3; i++ {
		rec := performRequest(router, http.MethodGet, "/ping")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := performRequest(router, http.MethodGet, "/ping")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")
}

func TestRateLimitScopesAreIndependent(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := NewMemoryRateStore()
	router := gin.New()
	router.GET("/a", RateLimit("a", store, 1, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/b", RateLimit("b", store, 1, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	require.Equal(t, http.StatusOK, performRequest(router, http.MethodGet, "/a").Code)
	require.Equal(t, http.StatusTooManyRequests, performRequest(router, http.MethodGet, "/a").Code)

	// Exhausting scope "a" leaves scope "b" untouched.
	require.Equal(t, http.StatusOK, performRequest(router, http.MethodGet, "/b").Code)
}

func TestRateLimitWindowExpires(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RateLimit("general", NewMemoryRateStore(), 1, 50*time.Millisecond))
	router.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	require.Equal(t, http.StatusOK, performRequest(router, http.MethodGet, "/ping").Code)
	require.Equal(t, http.StatusTooManyRequests, performRequest(router, http.MethodGet, "/ping").Code)

	time.Sleep(80 * time.Millisecond)
	require.Equal(t, http.StatusOK, performRequest(router, http.MethodGet, "/ping").Code)
}

func TestLoginRateLimitCountsOnlyFailures(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var succeed bool
	router := gin.New()
	router.POST("/login", LoginRateLimit(NewMemoryRateStore(), 3, time.Minute), func(c *gin.Context) {
		if succeed {
			c.JSON(http.StatusOK, gin.H{"token": "x"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "bad credentials"})
	})

	// Successful logins never consume the budget.
	succeed = true
	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusOK, performRequest(router, http.MethodPost, "/login").Code)
	}

	// Three failures exhaust it.
	succeed = false
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusUnauthorized, performRequest(router, http.MethodPost, "/login").Code)
	}

	rec := performRequest(router, http.MethodPost, "/login")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Even would-be-valid credentials are refused once the cap is hit.
	succeed = true
	require.Equal(t, http.StatusTooManyRequests, performRequest(router, http.MethodPost, "/login").Code)
}

func TestRateLimitDisabledWithoutBudget(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RateLimit("general", NewMemoryRateStore(), 0, time.Minute))
	router.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 20; i++ {
		require.Equal(t, http.StatusOK, performRequest(router, http.MethodGet, "/ping").Code)
	}
}
