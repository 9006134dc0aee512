package translator

import (
	"encoding/json"

	"github.com/arcrelay/geminiproxy/internal/model"
)

// AnthropicMessageResponse is the non-streaming /v1/messages response shape.
type AnthropicMessageResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Model      string         `json:"model"`
	Content    []any          `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      AnthropicUsage `json:"usage"`
}

// TranslateGeminiToAnthropic builds a non-streaming Anthropic response.
func TranslateGeminiToAnthropic(resp *GeminiResponse, respID, modelName string, mapper *model.ToolNameMapper) *AnthropicMessageResponse {
	out := &AnthropicMessageResponse{ID: respID, Type: "message", Role: "assistant", Model: modelName}
	hasToolUse := false

	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		for _, part := range cand.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				hasToolUse = true
				out.Content = append(out.Content, map[string]any{
					"type":  "tool_use",
					"id":    part.FunctionCall.ID,
					"name":  mapper.Original(part.FunctionCall.Name),
					"input": rawOrEmpty(part.FunctionCall.Args),
				})
			case part.InlineData != nil:
				out.Content = append(out.Content, map[string]any{
					"type":   "image",
					"source": map[string]any{"type": "base64", "media_type": part.InlineData.MimeType, "data": part.InlineData.Data},
				})
			case part.Thought:
				block := map[string]any{"type": "thinking", "thinking": part.Text}
				if part.ThoughtSignature != "" {
					block["signature"] = part.ThoughtSignature
				}
				out.Content = append(out.Content, block)
			default:
				out.Content = append(out.Content, map[string]any{"type": "text", "text": part.Text})
			}
		}
		out.StopReason = stopReason(hasToolUse, cand.FinishReason)
	}

	if resp.UsageMetadata != nil {
		out.Usage = AnthropicUsage{InputTokens: resp.UsageMetadata.PromptTokenCount, OutputTokens: resp.UsageMetadata.CandidatesTokenCount}
	}
	return out
}

func stopReason(hasToolUse bool, finishReason string) string {
	switch {
	case hasToolUse:
		return "tool_use"
	case finishReason == "MAX_TOKENS":
		return "max_tokens"
	default:
		return "end_turn"
	}
}

// rawOrEmpty passes a functionCall's args straight through as json.RawMessage
// so it marshals without being re-encoded as a string.
func rawOrEmpty(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	return raw
}
