package middleware

import (
	"errors"
	"log"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLog writes one line per request. Successful status polls and sync
// upgrades are skipped, as are requests whose client hung up mid-response.
func RequestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if clientGone(c) || quiet(c) {
			return
		}

		role, _ := c.Get("user_role")
		if role == nil {
			role = "-"
		}
		status := c.Writer.Status()
		log.Printf("%s %3d %-6s %s (%s, %v)",
			statusMark(status), status, c.Request.Method, c.Request.URL.Path, role, time.Since(start).Round(time.Microsecond))
	}
}

func quiet(c *gin.Context) bool {
	if c.Writer.Status() >= 400 {
		return false
	}
	if strings.HasSuffix(c.Request.URL.Path, "/playback/status") {
		return true
	}
	// The hub logs peers joining and leaving itself.
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

func clientGone(c *gin.Context) bool {
	for _, e := range c.Errors {
		if errors.Is(e.Err, syscall.EPIPE) || errors.Is(e.Err, syscall.ECONNRESET) {
			return true
		}
	}
	return false
}

func statusMark(status int) string {
	switch {
	case status >= 500:
		return "❌"
	case status >= 400:
		return "⚠️"
	default:
		return "✅"
	}
}
