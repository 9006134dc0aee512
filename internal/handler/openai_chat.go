package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/arcrelay/geminiproxy/internal/dispatch"
	"github.com/arcrelay/geminiproxy/internal/model"
	"github.com/arcrelay/geminiproxy/internal/translator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ChatCompletions handles POST /v1/chat/completions (spec §6).
func (h *Handlers) ChatCompletions(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}

	var req translator.OpenAIChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeOpenAIError(c, http.StatusBadRequest, "invalid_request_error", "failed to parse request body")
		return
	}

	aliases := h.aliasMap(c.Request.Context())
	directives := translator.PreprocessModelName(req.Model, "openai_chat", aliases)

	payload, mapper, err := translator.TranslateOpenAIChatIn(&req, directives, aliases)
	if err != nil {
		writeOpenAIError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		writeOpenAIError(c, http.StatusInternalServerError, "api_error", "服务器内部错误: "+err.Error())
		return
	}

	preferred := model.Provider(directives.TargetProvider)
	rc := newRequestContext(c, preferred, req.Stream, directives)
	rc.SessionID = sessionHash(body)

	h.createLog(c.Request.Context(), rc, string(preferred), directives.BaseModel)

	respID := "chatcmpl-" + uuid.NewString()
	if directives.FakeStreaming && req.Stream {
		h.chatCompletionsFakeStream(c, rc, payloadBytes, respID, directives.BaseModel, mapper)
		return
	}

	outcome, dispatchErr := h.Loop.Run(c.Request.Context(), rc, payloadBytes)
	if dispatchErr != nil {
		status, message := statusAndMessageFromError(dispatchErr)
		terminal, _ := dispatchErr.(*dispatch.TerminalError)
		h.finishLog(c.Request.Context(), rc, outcome, terminal, nil, nil)
		writeOpenAIError(c, status, "api_error", message)
		return
	}
	defer outcome.Response.Body.Close()

	if req.Stream {
		h.streamOpenAIChat(c, rc, outcome, respID, directives.BaseModel, mapper)
		return
	}
	h.bufferedOpenAIChat(c, rc, outcome, respID, directives.BaseModel, mapper)
}

// chatCompletionsFakeStream implements spec §4.4's fake-streaming mode for
// the OpenAI ingress: the client asked for SSE, but the `假流式/` prefix
// means the upstream call is actually buffered, with synthetic heartbeats
// covering the wait.
func (h *Handlers) chatCompletionsFakeStream(c *gin.Context, rc *dispatch.RequestContext, payloadBytes []byte, respID, modelName string, mapper *model.ToolNameMapper) {
	rc.IsStreaming = false
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	var outcome *dispatch.Outcome
	var dispatchErr error

	fetch := func(ctx context.Context) (string, string, error) {
		var err error
		outcome, err = h.Loop.Run(ctx, rc, payloadBytes)
		if err != nil {
			dispatchErr = err
			return "", "", err
		}
		defer outcome.Response.Body.Close()
		var resp translator.GeminiResponse
		if err := json.NewDecoder(outcome.Response.Body).Decode(&resp); err != nil {
			dispatchErr = err
			return "", "", err
		}
		return extractTextAndReasoning(&resp)
	}

	heartbeat := func() []byte {
		return marshalOrNil(openAIChunk(respID, modelName, "assistant", "", nil))
	}
	final := func(content string) []byte {
		reason := "stop"
		return marshalOrNil(openAIChunk(respID, modelName, "", content, &reason))
	}

	err := dispatch.RunFakeStream(c.Request.Context(), fetch, heartbeat, final, func(chunk dispatch.FakeStreamChunk) error {
		if chunk.Final {
			rc.ResponseStarted = true
		}
		return writeAndFlush(c.Writer, dispatch.FrameSSE(chunk.JSON))
	})
	if err == nil {
		_, err = c.Writer.Write([]byte(dispatch.DoneMarker))
		c.Writer.Flush()
	}

	if dispatchErr != nil {
		terminal, _ := dispatchErr.(*dispatch.TerminalError)
		h.finishLog(c.Request.Context(), rc, outcome, terminal, nil, nil)
		return
	}
	if err != nil {
		h.finishLog(c.Request.Context(), rc, outcome, &dispatch.TerminalError{Message: err.Error()}, nil, nil)
		return
	}
	h.finishLog(c.Request.Context(), rc, outcome, nil, nil, nil)
}

func openAIChunk(respID, modelName, role, content string, finishReason *string) map[string]any {
	delta := map[string]any{}
	if role != "" {
		delta["role"] = role
	}
	delta["content"] = content
	return map[string]any{
		"id":     respID,
		"object": "chat.completion.chunk",
		"model":  modelName,
		"choices": []map[string]any{{
			"index":         0,
			"delta":         delta,
			"finish_reason": finishReason,
		}},
	}
}

func extractTextAndReasoning(resp *translator.GeminiResponse) (content, reasoning string, err error) {
	if len(resp.Candidates) == 0 {
		return "", "", nil
	}
	var text, thought string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Thought {
			thought += part.Text
		} else {
			text += part.Text
		}
	}
	return text, thought, nil
}

func (h *Handlers) bufferedOpenAIChat(c *gin.Context, rc *dispatch.RequestContext, outcome *dispatch.Outcome, respID, modelName string, mapper *model.ToolNameMapper) {
	var resp translator.GeminiResponse
	if err := json.NewDecoder(outcome.Response.Body).Decode(&resp); err != nil {
		h.finishLog(c.Request.Context(), rc, outcome, &dispatch.TerminalError{Message: err.Error()}, nil, nil)
		writeOpenAIError(c, http.StatusInternalServerError, "api_error", "服务器内部错误: "+err.Error())
		return
	}
	out := translator.TranslateGeminiToOpenAI(&resp, respID, modelName, mapper)

	var promptTokens, completionTokens *int
	if out.Usage != nil {
		promptTokens = &out.Usage.PromptTokens
		completionTokens = &out.Usage.CompletionTokens
	}
	h.finishLog(c.Request.Context(), rc, outcome, nil, promptTokens, completionTokens)
	c.JSON(http.StatusOK, out)
}

func (h *Handlers) streamOpenAIChat(c *gin.Context, rc *dispatch.RequestContext, outcome *dispatch.Outcome, respID, modelName string, mapper *model.ToolNameMapper) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	st := translator.StreamChunkState{ResponseID: respID, Model: modelName}
	err := relayUpstreamSSE(outcome.Response, func(payload []byte) error {
		rc.ResponseStarted = true
		chunk, err := translator.TranslateGeminiSSEChunkToOpenAI(payload, st, mapper)
		if err != nil || chunk == nil {
			return err
		}
		return writeAndFlush(c.Writer, dispatch.FrameSSE(chunk))
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
