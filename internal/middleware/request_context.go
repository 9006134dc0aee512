// Package middleware holds gin middleware for the ingress HTTP surface.
// Caller authentication (the teacher's ApiKeyAuth) is out of scope here —
// this module has no API-key/user/billing layer — so the only middleware
// left is extracting the request-correlation fields spec §6 names.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	conversationIDHeader = "conversation_id"
	sessionIDHeader      = "session_id"
)

// RequestContext stores the per-request correlation fields this middleware
// extracts, so handlers don't re-parse headers.
func RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("conversation_id", c.GetHeader(conversationIDHeader))
		c.Set("session_id", c.GetHeader(sessionIDHeader))
		c.Set("client_ip", clientIP(c))
		c.Next()
	}
}

// clientIP resolves the caller's address per spec §6: X-Forwarded-For then
// X-Real-IP, taking the first comma-split value; falls back to gin's own
// resolution.
func clientIP(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	}
	if real := c.GetHeader("X-Real-IP"); real != "" {
		return strings.TrimSpace(real)
	}
	return c.ClientIP()
}

// ConversationID reads the value RequestContext stored.
func ConversationID(c *gin.Context) string {
	v, _ := c.Get("conversation_id")
	s, _ := v.(string)
	return s
}

// SessionID reads the value RequestContext stored.
func SessionID(c *gin.Context) string {
	v, _ := c.Get("session_id")
	s, _ := v.(string)
	return s
}

// ClientIP reads the value RequestContext stored.
func ClientIP(c *gin.Context) string {
	v, _ := c.Get("client_ip")
	s, _ := v.(string)
	return s
}
