package translator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToChatRequestStringInput(t *testing.T) {
	req := &OpenAIResponsesRequest{
		Model:  "gemini-2.5-pro",
		Input:  []byte(`"hello there"`),
		Stream: true,
	}

	chat, err := req.ToChatRequest()
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-pro", chat.Model)
	assert.True(t, chat.Stream)
	require.Len(t, chat.Messages, 1)
	assert.Equal(t, "user", chat.Messages[0].Role)
	assert.JSONEq(t, `"hello there"`, string(chat.Messages[0].Content))
}

func TestToChatRequestItemInput(t *testing.T) {
	req := &OpenAIResponsesRequest{
		Model: "gemini-2.5-flash",
		Input: []byte(`[
			{"role": "system", "content": "be terse"},
			{"role": "user", "content": "hi"}
		]`),
	}

	chat, err := req.ToChatRequest()
	require.NoError(t, err)
	require.Len(t, chat.Messages, 2)
	assert.Equal(t, "system", chat.Messages[0].Role)
	assert.Equal(t, "user", chat.Messages[1].Role)
}

func TestToChatRequestDefaultsRoleToUser(t *testing.T) {
	req := &OpenAIResponsesRequest{Input: []byte(`[{"content": "no role given"}]`)}

	chat, err := req.ToChatRequest()
	require.NoError(t, err)
	require.Len(t, chat.Messages, 1)
	assert.Equal(t, "user", chat.Messages[0].Role)
}

func TestToChatRequestEmptyInput(t *testing.T) {
	req := &OpenAIResponsesRequest{Model: "gemini-2.5-pro"}

	chat, err := req.ToChatRequest()
	require.NoError(t, err)
	assert.Nil(t, chat.Messages)
}

func TestToChatRequestMalformedInput(t *testing.T) {
	req := &OpenAIResponsesRequest{Input: []byte(`{"not": "a list or string"}`)}

	_, err := req.ToChatRequest()
	assert.Error(t, err)
}

func TestToResponsesOutputProjectsMessageAndUsage(t *testing.T) {
	finish := "stop"
	chat := &OpenAIChatResponse{
		Model: "gemini-2.5-pro",
		Choices: []OpenAIChoice{{
			Message:      &OpenAIRespMsg{Role: "assistant", Content: "hi there"},
			FinishReason: &finish,
		}},
		Usage: &OpenAIUsage{PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8},
	}

	out := ToResponsesOutput(chat, "resp-1")
	assert.Equal(t, "resp-1", out.ID)
	assert.Equal(t, "response", out.Object)
	assert.Equal(t, "completed", out.Status)
	require.Len(t, out.Output, 1)
	assert.Equal(t, "assistant", out.Output[0].Role)
	require.Len(t, out.Output[0].Content, 1)
	assert.Equal(t, "hi there", out.Output[0].Content[0].Text)
	require.NotNil(t, out.Usage)
	assert.Equal(t, 8, out.Usage.TotalTokens)
}

func TestToResponsesOutputNoChoicesOmitsOutput(t *testing.T) {
	chat := &OpenAIChatResponse{Model: "gemini-2.5-pro"}

	out := ToResponsesOutput(chat, "resp-2")
	assert.Empty(t, out.Output)
	assert.Nil(t, out.Usage)
}
