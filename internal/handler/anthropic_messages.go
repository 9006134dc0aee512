package handler

import (
	"encoding/json"
	"net/http"

	"github.com/arcrelay/geminiproxy/internal/dispatch"
	"github.com/arcrelay/geminiproxy/internal/model"
	"github.com/arcrelay/geminiproxy/internal/translator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Messages handles POST /v1/messages (spec §6).
func (h *Handlers) Messages(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}

	var req translator.AnthropicRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeAnthropicError(c, http.StatusBadRequest, "invalid_request_error", "failed to parse request body")
		return
	}

	aliases := h.aliasMap(c.Request.Context())
	directives := translator.PreprocessModelName(req.Model, "anthropic", aliases)

	payload, mapper, estimatedInputTokens, err := translator.TranslateAnthropicIn(&req, directives)
	if err != nil {
		writeAnthropicError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		writeAnthropicError(c, http.StatusInternalServerError, "api_error", "服务器内部错误: "+err.Error())
		return
	}

	preferred := model.Provider(directives.TargetProvider)
	rc := newRequestContext(c, preferred, req.Stream, directives)
	rc.SessionID = sessionHash(body)

	h.createLog(c.Request.Context(), rc, string(preferred), directives.BaseModel)

	outcome, dispatchErr := h.Loop.Run(c.Request.Context(), rc, payloadBytes)
	if dispatchErr != nil {
		status, message := statusAndMessageFromError(dispatchErr)
		terminal, _ := dispatchErr.(*dispatch.TerminalError)
		h.finishLog(c.Request.Context(), rc, outcome, terminal, nil, nil)
		writeAnthropicError(c, status, "api_error", message)
		return
	}
	defer outcome.Response.Body.Close()

	respID := "msg_" + uuid.NewString()
	if req.Stream {
		h.streamAnthropicMessage(c, rc, outcome, respID, directives.BaseModel, mapper, estimatedInputTokens)
		return
	}
	h.bufferedAnthropicMessage(c, rc, outcome, respID, directives.BaseModel, mapper)
}

func (h *Handlers) bufferedAnthropicMessage(c *gin.Context, rc *dispatch.RequestContext, outcome *dispatch.Outcome, respID, modelName string, mapper *model.ToolNameMapper) {
	var resp translator.GeminiResponse
	if err := json.NewDecoder(outcome.Response.Body).Decode(&resp); err != nil {
		h.finishLog(c.Request.Context(), rc, outcome, &dispatch.TerminalError{Message: err.Error()}, nil, nil)
		writeAnthropicError(c, http.StatusInternalServerError, "api_error", "服务器内部错误: "+err.Error())
		return
	}
	out := translator.TranslateGeminiToAnthropic(&resp, respID, modelName, mapper)

	promptTokens, completionTokens := out.Usage.InputTokens, out.Usage.OutputTokens
	h.finishLog(c.Request.Context(), rc, outcome, nil, &promptTokens, &completionTokens)
	c.JSON(http.StatusOK, out)
}

func (h *Handlers) streamAnthropicMessage(c *gin.Context, rc *dispatch.RequestContext, outcome *dispatch.Outcome, respID, modelName string, mapper *model.ToolNameMapper, estimatedInputTokens int) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	machine := translator.NewAnthropicStreamMachine(respID, modelName, mapper, estimatedInputTokens)
	var writeErr error
	emit := func(events []translator.Event) {
		for _, ev := range events {
			if writeErr != nil {
				return
			}
			frame := append([]byte("event: "+ev.Name+"\n"), dispatch.FrameSSE(ev.Data)...)
			writeErr = writeAndFlush(c.Writer, frame)
		}
	}

	err := relayUpstreamSSE(outcome.Response, func(payload []byte) error {
		rc.ResponseStarted = true
		events, err := machine.Feed(payload)
		if err != nil {
			return err
		}
		emit(events)
		return writeErr
	})
	if err == nil {
		emit(machine.Finish())
		err = writeErr
	}
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

// CountTokens handles POST /v1/messages/count_tokens (spec §6): returns an
// estimated input token count without calling the upstream.
func (h *Handlers) CountTokens(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}

	var req translator.AnthropicRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeAnthropicError(c, http.StatusBadRequest, "invalid_request_error", "failed to parse request body")
		return
	}

	directives := translator.PreprocessModelName(req.Model, "anthropic", h.aliasMap(c.Request.Context()))
	_, _, estimatedInputTokens, err := translator.TranslateAnthropicIn(&req, directives)
	if err != nil {
		writeAnthropicError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"input_tokens": estimatedInputTokens})
}
