package translator

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/arcrelay/geminiproxy/internal/model"
	"github.com/tidwall/gjson"
)

// TranslateGeminiToOpenAI builds a non-streaming OpenAI chat.completion
// response from a decoded Gemini response (spec §4.1 egress).
func TranslateGeminiToOpenAI(resp *GeminiResponse, respID, modelName string, mapper *model.ToolNameMapper) *OpenAIChatResponse {
	out := &OpenAIChatResponse{ID: respID, Object: "chat.completion", Model: modelName}

	if resp.UsageMetadata != nil {
		out.Usage = &OpenAIUsage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}

	if len(resp.Candidates) == 0 {
		out.Choices = []OpenAIChoice{{Index: 0, Message: &OpenAIRespMsg{Role: "assistant", Content: ""}}}
		return out
	}

	cand := resp.Candidates[0]
	var text, reasoning strings.Builder
	var toolCalls []OpenAIToolCall

	for _, part := range cand.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			originalName := mapper.Original(part.FunctionCall.Name)
			toolCalls = append(toolCalls, OpenAIToolCall{
				ID:   "call_" + randomHex(24),
				Type: "function",
				Function: struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				}{Name: originalName, Arguments: string(part.FunctionCall.Args)},
			})
		case part.Thought:
			reasoning.WriteString(part.Text)
		default:
			text.WriteString(part.Text)
		}
	}

	finish := mapFinishReason(cand.FinishReason)
	msg := &OpenAIRespMsg{Role: "assistant", Content: text.String(), ReasoningContent: reasoning.String()}
	if len(toolCalls) > 0 {
		msg.ToolCalls = toolCalls
		tc := "tool_calls"
		finish = &tc
	}

	out.Choices = []OpenAIChoice{{Index: 0, Message: msg, FinishReason: finish}}
	return out
}

func mapFinishReason(geminiReason string) *string {
	var s string
	switch geminiReason {
	case "STOP":
		s = "stop"
	case "MAX_TOKENS":
		s = "length"
	case "SAFETY", "RECITATION":
		s = "content_filter"
	default:
		return nil
	}
	return &s
}

func randomHex(n int) string {
	b := make([]byte, n/2+1)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)[:n]
}

// StreamChunkState carries the state needed to translate successive Gemini
// SSE chunks into OpenAI chat.completion.chunk events with a stable id.
type StreamChunkState struct {
	ResponseID string
	Model      string
}

// TranslateGeminiSSEChunkToOpenAI parses one upstream SSE data line (with the
// "data: " prefix already stripped) and returns the OpenAI chunk JSON bytes,
// or nil if the line carried no translatable content (e.g. a keep-alive).
func TranslateGeminiSSEChunkToOpenAI(line []byte, st StreamChunkState, mapper *model.ToolNameMapper) ([]byte, error) {
	body := line
	if wrapped := gjson.GetBytes(line, "response"); wrapped.Exists() {
		body = []byte(wrapped.Raw)
	}

	var resp GeminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 {
		return nil, nil
	}

	chunk := struct {
		ID      string         `json:"id"`
		Object  string         `json:"object"`
		Model   string         `json:"model"`
		Choices []OpenAIChoice `json:"choices"`
		Usage   *OpenAIUsage   `json:"usage,omitempty"`
	}{ID: st.ResponseID, Object: "chat.completion.chunk", Model: st.Model}

	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		var text, reasoning strings.Builder
		var toolCalls []OpenAIToolCall
		for _, part := range cand.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				originalName := mapper.Original(part.FunctionCall.Name)
				toolCalls = append(toolCalls, OpenAIToolCall{
					ID:   "call_" + randomHex(24),
					Type: "function",
					Function: struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					}{Name: originalName, Arguments: string(part.FunctionCall.Args)},
				})
			case part.Thought:
				reasoning.WriteString(part.Text)
			default:
				text.WriteString(part.Text)
			}
		}
		finish := mapFinishReason(cand.FinishReason)
		delta := &OpenAIRespMsg{Content: text.String(), ReasoningContent: reasoning.String()}
		if len(toolCalls) > 0 {
			delta.ToolCalls = toolCalls
			tc := "tool_calls"
			finish = &tc
		}
		chunk.Choices = []OpenAIChoice{{Index: 0, Delta: delta, FinishReason: finish}}
		// Usage is attached only on a chunk that also carries finish_reason (spec §4.1).
		if finish != nil && resp.UsageMetadata != nil {
			chunk.Usage = &OpenAIUsage{
				PromptTokens:     resp.UsageMetadata.PromptTokenCount,
				CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
				TotalTokens:      resp.UsageMetadata.TotalTokenCount,
			}
		}
	}

	return json.Marshal(chunk)
}
