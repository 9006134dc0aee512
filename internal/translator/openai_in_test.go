package translator

import (
	"encoding/json"
	"testing"

	"github.com/arcrelay/geminiproxy/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateOpenAIChatInToolCallThenResultRoundTrip(t *testing.T) {
	req := &OpenAIChatRequest{
		Model: "gpt-4o",
		Messages: []OpenAIMessage{
			{Role: "system", Content: json.RawMessage(`"be terse"`)},
			{Role: "user", Content: json.RawMessage(`"what's the weather?"`)},
			{Role: "assistant", ToolCalls: []OpenAIToolCall{{
				ID:   "call_1",
				Type: "function",
				Function: struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				}{Name: "get weather!", Arguments: `{"city":"nyc"}`},
			}}},
			{Role: "tool", ToolCallID: "call_1", Content: json.RawMessage(`"72F and sunny"`)},
		},
	}

	payload, mapper, err := TranslateOpenAIChatIn(req, ModelDirectives{BaseModel: req.Model}, AliasMap{})
	require.NoError(t, err)
	require.Len(t, payload.Contents, 3) // user text + assistant tool_call + tool result (system folded into systemInstruction)

	call := payload.Contents[1].Parts[0].FunctionCall
	require.NotNil(t, call)
	assert.NotEqual(t, "get weather!", call.Name)

	resp := payload.Contents[2].Parts[0].FunctionResponse
	require.NotNil(t, resp)
	assert.Equal(t, "get weather!", resp.Name)

	geminiResp := &GeminiResponse{
		Candidates: []GeminiCandidate{{
			Content: GeminiContent{Parts: []GeminiPart{{
				FunctionCall: &FunctionCall{Name: call.Name, Args: json.RawMessage(`{"city":"nyc"}`)},
			}}},
			FinishReason: "STOP",
		}},
	}
	out := TranslateGeminiToOpenAI(geminiResp, "chatcmpl_1", "gpt-4o", mapper)
	require.Len(t, out.Choices, 1)
	require.Len(t, out.Choices[0].Message.ToolCalls, 1)
	assert.Equal(t, "get weather!", out.Choices[0].Message.ToolCalls[0].Function.Name)
	require.NotNil(t, out.Choices[0].FinishReason)
	assert.Equal(t, "tool_calls", *out.Choices[0].FinishReason)
}

func TestTranslateOpenAIChatInToolResultFallsBackToExplicitName(t *testing.T) {
	req := &OpenAIChatRequest{
		Model: "gpt-4o",
		Messages: []OpenAIMessage{
			{Role: "tool", Name: "explicit_name", ToolCallID: "call_unknown", Content: json.RawMessage(`"result"`)},
		},
	}

	payload, _, err := TranslateOpenAIChatIn(req, ModelDirectives{BaseModel: req.Model}, AliasMap{})
	require.NoError(t, err)
	require.Len(t, payload.Contents, 1)
	resp := payload.Contents[0].Parts[0].FunctionResponse
	require.NotNil(t, resp)
	assert.Equal(t, "explicit_name", resp.Name)
}

func TestTranslateGeminiSSEChunkToOpenAIRoundTripsToolName(t *testing.T) {
	mapper := model.NewToolNameMapper()
	mapper.Record("weird tool!", "weird_tool")
	line := []byte(`{"candidates":[{"content":{"parts":[{"functionCall":{"name":"weird_tool","args":{"x":1}}}]},"finishReason":"STOP"}]}`)

	out, err := TranslateGeminiSSEChunkToOpenAI(line, StreamChunkState{ResponseID: "r1", Model: "gpt-4o"}, mapper)
	require.NoError(t, err)

	var decoded struct {
		Choices []struct {
			Delta struct {
				ToolCalls []struct {
					Function struct {
						Name string `json:"name"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"delta"`
		} `json:"choices"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded.Choices[0].Delta.ToolCalls, 1)
	assert.Equal(t, "weird tool!", decoded.Choices[0].Delta.ToolCalls[0].Function.Name)
}
