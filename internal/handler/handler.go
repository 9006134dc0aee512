// Package handler implements the ingress HTTP surface (spec §6): one gin
// handler per public route, each parsing its protocol's request shape,
// translating it to the internal Gemini payload, driving it through the
// dispatch loop, and translating the response back. Grounded on the
// teacher's GeminiGatewayHandler (same read-body/select-account/forward/
// async-record-usage shape), trimmed of the concurrency-slot and billing
// steps this module has no equivalent of (no user/API-key/billing layer).
package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/arcrelay/geminiproxy/internal/dispatch"
	"github.com/arcrelay/geminiproxy/internal/logpipeline"
	"github.com/arcrelay/geminiproxy/internal/middleware"
	"github.com/arcrelay/geminiproxy/internal/model"
	"github.com/arcrelay/geminiproxy/internal/settings"
	"github.com/arcrelay/geminiproxy/internal/translator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handlers bundles every route's shared dependencies.
type Handlers struct {
	Loop     *dispatch.Loop
	Producer *logpipeline.Producer
	Settings *settings.Provider
}

func New(loop *dispatch.Loop, producer *logpipeline.Producer, settingsProvider *settings.Provider) *Handlers {
	return &Handlers{Loop: loop, Producer: producer, Settings: settingsProvider}
}

// aliasMap resolves the current model_mapping_rules setting into an
// AliasMap, falling back to an empty map (no rules) on missing/invalid
// configuration — alias resolution is an enhancement, never a hard
// dependency for serving a request.
func (h *Handlers) aliasMap(ctx context.Context) translator.AliasMap {
	raw, ok := h.Settings.Get(ctx, "model_mapping_rules")
	if !ok {
		return translator.AliasMap{}
	}
	aliases, err := translator.ParseAliasMap(raw)
	if err != nil {
		log.Printf("[handler] invalid model_mapping_rules setting, ignoring: %v", err)
		return translator.AliasMap{}
	}
	return aliases
}

// readBody reads the request body and rejects an empty one. It does not
// check that the body is valid JSON.
func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeOpenAIError(c, http.StatusBadRequest, "invalid_request_error", "failed to read request body")
		return nil, false
	}
	if len(body) == 0 {
		writeOpenAIError(c, http.StatusBadRequest, "invalid_request_error", "request body is empty")
		return nil, false
	}
	return body, true
}

func sessionHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func newRequestContext(c *gin.Context, preferred model.Provider, streaming bool, directives translator.ModelDirectives) *dispatch.RequestContext {
	rc := dispatch.NewRequestContext(
		uuid.NewString(),
		middleware.ConversationID(c),
		middleware.SessionID(c),
		middleware.ClientIP(c),
		c.Request.UserAgent(),
		preferred,
		streaming,
	)
	rc.Directives = directives
	return rc
}

// createLog enqueues the initial request_logs row for a newly-arrived
// request (spec §4.5 step 1).
func (h *Handlers) createLog(ctx context.Context, rc *dispatch.RequestContext, provider, modelName string) {
	h.Producer.CreateLog(ctx, &model.RequestLog{
		RequestID:      rc.RequestID,
		ConversationID: rc.ConversationID,
		SessionID:      rc.SessionID,
		Provider:       provider,
		Model:          modelName,
		IsStreaming:    rc.IsStreaming,
		ClientIP:       rc.ClientIP,
		UserAgent:      rc.UserAgent,
	})
}

// finishLog records the terminal outcome of a dispatch attempt.
func (h *Handlers) finishLog(ctx context.Context, rc *dispatch.RequestContext, outcome *dispatch.Outcome, terminalErr *dispatch.TerminalError, promptTokens, completionTokens *int) {
	duration := time.Since(rc.RequestStartTime).Milliseconds()

	if terminalErr != nil {
		var accountID *int64
		if outcome != nil && outcome.Account != nil {
			id := outcome.Account.ID
			accountID = &id
		}
		h.Producer.RecordFailure(ctx, dispatch.FailureResult{
			RequestID:     rc.RequestID,
			AccountID:     accountID,
			StatusCode:    terminalErr.StatusCode,
			ErrorMessage:  terminalErr.Message,
			TotalAttempts: maxInt(outcomeAttempts(outcome), 1),
			IsRateLimited: terminalErr.Classification == dispatch.AccountRateLimit,
			DurationMs:    duration,
		})
		return
	}

	var totalTokens *int
	if promptTokens != nil && completionTokens != nil {
		t := *promptTokens + *completionTokens
		totalTokens = &t
	}
	h.Producer.RecordSuccess(ctx, dispatch.SuccessResult{
		RequestID:             rc.RequestID,
		AccountID:             outcome.Account.ID,
		StatusCode:            outcome.Response.StatusCode,
		TotalAttempts:         outcome.Attempts,
		IsRateLimited:         false,
		SessionStickinessUsed: outcome.StickyHit,
		TimeToFirstByteMs:     &outcome.TimeToFirstMs,
		DurationMs:            duration,
		PromptTokens:          promptTokens,
		CompletionTokens:      completionTokens,
		TotalTokens:           totalTokens,
	})
}

func outcomeAttempts(outcome *dispatch.Outcome) int {
	if outcome == nil {
		return 0
	}
	return outcome.Attempts
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// writeOpenAIError writes the caller's native OpenAI error envelope (spec §6).
func writeOpenAIError(c *gin.Context, status int, errType, message string) {
	c.JSON(status, gin.H{"error": gin.H{"message": message, "type": errType, "code": status}})
}

// writeAnthropicError writes the caller's native Anthropic error envelope.
func writeAnthropicError(c *gin.Context, status int, errType, message string) {
	c.JSON(status, gin.H{"type": "error", "error": gin.H{"type": errType, "message": message}})
}

// writeGeminiError writes the caller's native Gemini error envelope.
func writeGeminiError(c *gin.Context, status int, errStatus, message string) {
	c.JSON(status, gin.H{"error": gin.H{"code": status, "message": message, "status": errStatus}})
}

// statusAndMessageFromError maps a dispatch error into an HTTP status and
// message, forwarding the upstream's own status for terminal client errors.
func statusAndMessageFromError(err error) (int, string) {
	if terminal, ok := err.(*dispatch.TerminalError); ok {
		status := terminal.StatusCode
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return status, terminal.Message
	}
	return http.StatusInternalServerError, "服务器内部错误: " + err.Error()
}

func marshalOrNil(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
