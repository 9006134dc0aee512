package dispatch

import (
	"time"

	"github.com/arcrelay/geminiproxy/internal/model"
	"github.com/arcrelay/geminiproxy/internal/pool"
	"github.com/arcrelay/geminiproxy/internal/translator"
)

// RequestContext carries everything a single client request's dispatch
// loop needs, including the per-request in-flight account-exclusion set.
//
// Spec §9 REDESIGN FLAG: the source kept this set in task-local storage.
// Here it is an explicit value created fresh at the top of each inbound
// handler (handler.newRequestContext) and threaded by reference through every retry attempt — never
// task-local or a process global.
type RequestContext struct {
	RequestID         string
	ConversationID    string
	SessionID         string
	ClientIP          string
	UserAgent         string
	PreferredProvider model.Provider
	IsStreaming       bool
	Directives        translator.ModelDirectives

	InFlight pool.InFlightSet

	RequestStartTime time.Time

	// ResponseStarted is set once any byte of the response has been
	// written to the client; once true the loop may not retry even if the
	// upstream attempt subsequently fails (classified ResponseStarted).
	ResponseStarted bool
}

// NewRequestContext creates a fresh per-request dispatch context.
func NewRequestContext(requestID, conversationID, sessionID, clientIP, userAgent string, preferred model.Provider, streaming bool) *RequestContext {
	return &RequestContext{
		RequestID:         requestID,
		ConversationID:    conversationID,
		SessionID:         sessionID,
		ClientIP:          clientIP,
		UserAgent:         userAgent,
		PreferredProvider: preferred,
		IsStreaming:       streaming,
		InFlight:          pool.NewInFlightSet(),
		RequestStartTime:  time.Now(),
	}
}
