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

// Responses handles POST /v1/responses (spec §6: "OpenAI Responses API").
// The retry loop and upstream are identical to Chat Completions; only the
// ingress/egress JSON shape differs, so this reuses TranslateOpenAIChatIn by
// first normalising `input` into `messages` (translator.ToChatRequest).
func (h *Handlers) Responses(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}

	var req translator.OpenAIResponsesRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeOpenAIError(c, http.StatusBadRequest, "invalid_request_error", "failed to parse request body")
		return
	}
	chatReq, err := req.ToChatRequest()
	if err != nil {
		writeOpenAIError(c, http.StatusBadRequest, "invalid_request_error", "invalid input: "+err.Error())
		return
	}

	aliases := h.aliasMap(c.Request.Context())
	directives := translator.PreprocessModelName(chatReq.Model, "openai_chat", aliases)

	payload, mapper, err := translator.TranslateOpenAIChatIn(chatReq, directives, aliases)
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

	outcome, dispatchErr := h.Loop.Run(c.Request.Context(), rc, payloadBytes)
	if dispatchErr != nil {
		status, message := statusAndMessageFromError(dispatchErr)
		terminal, _ := dispatchErr.(*dispatch.TerminalError)
		h.finishLog(c.Request.Context(), rc, outcome, terminal, nil, nil)
		writeOpenAIError(c, status, "api_error", message)
		return
	}
	defer outcome.Response.Body.Close()

	respID := "resp_" + uuid.NewString()
	if req.Stream {
		h.streamResponses(c, rc, outcome, respID, directives.BaseModel, mapper)
		return
	}
	h.bufferedResponses(c, rc, outcome, respID, directives.BaseModel, mapper)
}

func (h *Handlers) bufferedResponses(c *gin.Context, rc *dispatch.RequestContext, outcome *dispatch.Outcome, respID, modelName string, mapper *model.ToolNameMapper) {
	var resp translator.GeminiResponse
	if err := json.NewDecoder(outcome.Response.Body).Decode(&resp); err != nil {
		h.finishLog(c.Request.Context(), rc, outcome, &dispatch.TerminalError{Message: err.Error()}, nil, nil)
		writeOpenAIError(c, http.StatusInternalServerError, "api_error", "服务器内部错误: "+err.Error())
		return
	}
	chat := translator.TranslateGeminiToOpenAI(&resp, respID, modelName, mapper)
	out := translator.ToResponsesOutput(chat, respID)

	var promptTokens, completionTokens *int
	if out.Usage != nil {
		promptTokens = &out.Usage.InputTokens
		completionTokens = &out.Usage.OutputTokens
	}
	h.finishLog(c.Request.Context(), rc, outcome, nil, promptTokens, completionTokens)
	c.JSON(http.StatusOK, out)
}

// streamResponses emits a minimal subset of the real Responses API's SSE
// event taxonomy: response.created up front, one response.output_text.delta
// per upstream chunk carrying text, and response.completed at the end. Tool
// calls and reasoning-delta events are not translated to Responses event
// types; no repository example implements the Responses streaming format to
// ground a fuller translation against.
func (h *Handlers) streamResponses(c *gin.Context, rc *dispatch.RequestContext, outcome *dispatch.Outcome, respID, modelName string, mapper *model.ToolNameMapper) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	emit := func(eventName string, data any) error {
		payload := marshalOrNil(data)
		frame := append([]byte("event: "+eventName+"\n"), dispatch.FrameSSE(payload)...)
		return writeAndFlush(c.Writer, frame)
	}

	writeErr := emit("response.created", map[string]any{
		"type":     "response.created",
		"response": map[string]any{"id": respID, "object": "response", "model": modelName, "status": "in_progress"},
	})

	var full string
	st := translator.StreamChunkState{ResponseID: respID, Model: modelName}
	err := relayUpstreamSSE(outcome.Response, func(payload []byte) error {
		if writeErr != nil {
			return writeErr
		}
		rc.ResponseStarted = true
		chunkBytes, err := translator.TranslateGeminiSSEChunkToOpenAI(payload, st, mapper)
		if err != nil {
			return err
		}
		delta := deltaTextFromChunk(chunkBytes)
		if delta == "" {
			return nil
		}
		full += delta
		writeErr = emit("response.output_text.delta", map[string]any{
			"type":  "response.output_text.delta",
			"delta": delta,
		})
		return writeErr
	})
	if err == nil {
		err = writeErr
	}
	if err == nil {
		err = emit("response.completed", map[string]any{
			"type": "response.completed",
			"response": map[string]any{
				"id": respID, "object": "response", "model": modelName, "status": "completed",
				"output": []translator.ResponsesOutputItem{{
					Type: "message", ID: "msg_" + respID, Role: "assistant",
					Content: []translator.ResponsesOutputPart{{Type: "output_text", Text: full}},
				}},
			},
		})
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

func deltaTextFromChunk(chunkBytes []byte) string {
	if len(chunkBytes) == 0 {
		return ""
	}
	var parsed struct {
		Choices []struct {
			Delta *struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(chunkBytes, &parsed); err != nil || len(parsed.Choices) == 0 || parsed.Choices[0].Delta == nil {
		return ""
	}
	return parsed.Choices[0].Delta.Content
}
