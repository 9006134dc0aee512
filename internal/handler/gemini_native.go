package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/arcrelay/geminiproxy/internal/dispatch"
	"github.com/arcrelay/geminiproxy/internal/model"
	"github.com/arcrelay/geminiproxy/internal/translator"

	"github.com/gin-gonic/gin"
)

// RouteModelAction handles the gin wildcard route
// POST /v1beta/models/*modelAction, dispatching on the ":action" suffix the
// way the teacher's HandleModelAction does, since gin route params can't
// branch on a literal ":" themselves.
func (h *Handlers) RouteModelAction(c *gin.Context) {
	raw := c.Param("modelAction")
	switch {
	case strings.HasSuffix(raw, ":streamGenerateContent"):
		h.handleGeminiNative(c, true)
	case strings.HasSuffix(raw, ":generateContent"):
		h.handleGeminiNative(c, false)
	default:
		writeGeminiError(c, http.StatusNotFound, "NOT_FOUND", "unsupported model action")
	}
}

func (h *Handlers) handleGeminiNative(c *gin.Context, streaming bool) {
	body, ok := readBody(c)
	if !ok {
		return
	}

	modelName := modelParamFrom(c)
	if modelName == "" {
		writeGeminiError(c, http.StatusBadRequest, "INVALID_ARGUMENT", "model name is required")
		return
	}

	directives := translator.PreprocessModelName(modelName, "gemini", h.aliasMap(c.Request.Context()))
	payload, err := translator.TranslateGeminiIn(json.RawMessage(body), directives)
	if err != nil {
		writeGeminiError(c, http.StatusBadRequest, "INVALID_ARGUMENT", "failed to parse request body")
		return
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		writeGeminiError(c, http.StatusInternalServerError, "INTERNAL", "服务器内部错误: "+err.Error())
		return
	}

	preferred := model.Provider(directives.TargetProvider)
	rc := newRequestContext(c, preferred, streaming, directives)
	rc.SessionID = sessionHash(body)

	h.createLog(c.Request.Context(), rc, string(preferred), directives.BaseModel)

	outcome, dispatchErr := h.Loop.Run(c.Request.Context(), rc, payloadBytes)
	if dispatchErr != nil {
		status, message := statusAndMessageFromError(dispatchErr)
		terminal, _ := dispatchErr.(*dispatch.TerminalError)
		h.finishLog(c.Request.Context(), rc, outcome, terminal, nil, nil)
		writeGeminiError(c, status, "UNAVAILABLE", message)
		return
	}
	defer outcome.Response.Body.Close()

	if streaming {
		h.streamGeminiNative(c, rc, outcome)
		return
	}
	h.bufferedGeminiNative(c, rc, outcome)
}

// bufferedGeminiNative relays the upstream JSON body verbatim: the ingress
// and egress wire formats are already identical (spec §4.1's near-identity
// Gemini passthrough), so no response translation is needed.
func (h *Handlers) bufferedGeminiNative(c *gin.Context, rc *dispatch.RequestContext, outcome *dispatch.Outcome) {
	body, err := io.ReadAll(outcome.Response.Body)
	if err != nil {
		h.finishLog(c.Request.Context(), rc, outcome, &dispatch.TerminalError{Message: err.Error()}, nil, nil)
		writeGeminiError(c, http.StatusInternalServerError, "INTERNAL", "服务器内部错误: "+err.Error())
		return
	}

	var resp translator.GeminiResponse
	var promptTokens, completionTokens *int
	if err := json.Unmarshal(body, &resp); err == nil && resp.UsageMetadata != nil {
		p, cmpl := resp.UsageMetadata.PromptTokenCount, resp.UsageMetadata.CandidatesTokenCount
		promptTokens, completionTokens = &p, &cmpl
	}

	h.finishLog(c.Request.Context(), rc, outcome, nil, promptTokens, completionTokens)
	c.Data(http.StatusOK, "application/json", body)
}

// streamGeminiNative relays the upstream SSE stream verbatim.
func (h *Handlers) streamGeminiNative(c *gin.Context, rc *dispatch.RequestContext, outcome *dispatch.Outcome) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	err := relayUpstreamSSE(outcome.Response, func(payload []byte) error {
		rc.ResponseStarted = true
		return writeAndFlush(c.Writer, dispatch.FrameSSE(payload))
	})
	if err == nil {
		_, err = c.Writer.Write([]byte(dispatch.DoneMarker))
		c.Writer.Flush()
	}

	if err != nil {
		h.finishLog(c.Request.Context(), rc, outcome, &dispatch.TerminalError{Message: err.Error()}, nil, nil)
		return
	}
	h.finishLog(c.Request.Context(), rc, outcome, nil, nil, nil)
}

// modelParamFrom extracts the model name from the gin wildcard route
// parameter, trimming the leading slash and the trailing ":action" suffix
// the Gemini path convention appends.
func modelParamFrom(c *gin.Context) string {
	raw := strings.TrimPrefix(c.Param("modelAction"), "/")
	if idx := strings.LastIndex(raw, ":"); idx != -1 {
		raw = raw[:idx]
	}
	return raw
}
