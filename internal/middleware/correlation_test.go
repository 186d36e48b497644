package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/nntndfrk/alias-game/internal/logging"
)

func TestCorrelationIDGeneratesNew(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CorrelationID())

	var seen string
	r.GET("/test", func(c *gin.Context) {
		id, ok := c.Request.Context().Value(logging.CorrelationIDKey).(string)
		assert.True(t, ok)
		assert.NotEmpty(t, id)
		seen = id
	})

	req, _ := http.NewRequest(http.MethodGet, "/test", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, seen, resp.Header().Get(HeaderXCorrelationID))
}

func TestCorrelationIDPropagatesExisting(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CorrelationID())

	const existing = "existing-id-123"
	r.GET("/test", func(c *gin.Context) {
		id, _ := c.Request.Context().Value(logging.CorrelationIDKey).(string)
		assert.Equal(t, existing, id)
	})

	req, _ := http.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderXCorrelationID, existing)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, existing, resp.Header().Get(HeaderXCorrelationID))
}
