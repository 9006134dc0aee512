package translator

import (
	"testing"

	"github.com/arcrelay/geminiproxy/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventNames(events []Event) []string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Name
	}
	return names
}

func TestAnthropicStreamMachineMessageStartEmittedOnce(t *testing.T) {
	m := NewAnthropicStreamMachine("msg_1", "claude-3-5-sonnet", model.NewToolNameMapper(), 10)

	first, err := m.Feed([]byte(`{"candidates":[{"content":{"parts":[{"text":"hi"}]}}]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"message_start", "content_block_start", "content_block_delta"}, eventNames(first))
	assert.Contains(t, string(first[0].Data), `"msg_1"`)

	second, err := m.Feed([]byte(`{"candidates":[{"content":{"parts":[{"text":" there"}]}}]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"content_block_delta"}, eventNames(second), "message_start must not repeat")
}

func TestAnthropicStreamMachineTextBlockMergesAcrossChunks(t *testing.T) {
	m := NewAnthropicStreamMachine("msg_1", "claude-3-5-sonnet", model.NewToolNameMapper(), 10)

	events, err := m.Feed([]byte(`{"candidates":[{"content":{"parts":[{"text":"hello "}]}}]}`))
	require.NoError(t, err)
	require.Len(t, events, 3) // message_start, content_block_start, content_block_delta
	assert.Contains(t, string(events[1].Data), `"index":0`)
	assert.Contains(t, string(events[2].Data), "hello ")

	events, err = m.Feed([]byte(`{"candidates":[{"content":{"parts":[{"text":"world"}]}}]}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "content_block_delta", events[0].Name)
	assert.Contains(t, string(events[0].Data), "world")
	assert.Contains(t, string(events[0].Data), `"index":0`)
}

func TestAnthropicStreamMachineFinishClosesOpenTextBlockOnFinishReason(t *testing.T) {
	m := NewAnthropicStreamMachine("msg_1", "claude-3-5-sonnet", model.NewToolNameMapper(), 10)

	_, err := m.Feed([]byte(`{"candidates":[{"content":{"parts":[{"text":"hi"}]}}]}`))
	require.NoError(t, err)

	events, err := m.Feed([]byte(`{"candidates":[{"content":{"parts":[]},"finishReason":"STOP"}]}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "content_block_stop", events[0].Name)

	final := m.Finish()
	require.Len(t, final, 2)
	assert.Equal(t, "message_delta", final[0].Name)
	assert.Equal(t, "message_stop", final[1].Name)
	assert.Contains(t, string(final[0].Data), `"end_turn"`)
}

func TestAnthropicStreamMachineThinkingBlockWithSignature(t *testing.T) {
	m := NewAnthropicStreamMachine("msg_1", "claude-3-5-sonnet", model.NewToolNameMapper(), 10)

	events, err := m.Feed([]byte(`{"candidates":[{"content":{"parts":[{"text":"pondering","thought":true,"thoughtSignature":"sig123"}]}}]}`))
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "content_block_start", events[1].Name)
	assert.Contains(t, string(events[1].Data), `"thinking"`)
	assert.Contains(t, string(events[1].Data), "sig123")
	assert.Equal(t, "content_block_delta", events[2].Name)
	assert.Contains(t, string(events[2].Data), "thinking_delta")
	assert.Contains(t, string(events[2].Data), "pondering")

	more, err := m.Feed([]byte(`{"candidates":[{"content":{"parts":[{"text":" more","thought":true}]}}]}`))
	require.NoError(t, err)
	require.Len(t, more, 1)
	assert.Contains(t, string(more[0].Data), "thinking_delta")
	assert.Contains(t, string(more[0].Data), " more")
}

func TestAnthropicStreamMachineStandaloneSignatureDelta(t *testing.T) {
	m := NewAnthropicStreamMachine("msg_1", "claude-3-5-sonnet", model.NewToolNameMapper(), 10)

	_, err := m.Feed([]byte(`{"candidates":[{"content":{"parts":[{"text":"thinking...","thought":true}]}}]}`))
	require.NoError(t, err)

	events, err := m.Feed([]byte(`{"candidates":[{"content":{"parts":[{"thought":true,"thoughtSignature":"sig456"}]}}]}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "content_block_delta", events[0].Name)
	assert.Contains(t, string(events[0].Data), "signature_delta")
	assert.Contains(t, string(events[0].Data), "sig456")
}

func TestAnthropicStreamMachineToolUseResolvesOriginalName(t *testing.T) {
	mapper := model.NewToolNameMapper()
	mapper.Record("get weather!", "get_weather_abc12345")
	m := NewAnthropicStreamMachine("msg_1", "claude-3-5-sonnet", mapper, 10)

	events, err := m.Feed([]byte(`{"candidates":[{"content":{"parts":[{"functionCall":{"id":"toolu_1","name":"get_weather_abc12345","args":{"city":"nyc"}}}]}}]}`))
	require.NoError(t, err)
	require.Len(t, events, 4) // message_start, content_block_start, content_block_delta, content_block_stop
	start := events[1]
	assert.Equal(t, "content_block_start", start.Name)
	assert.Contains(t, string(start.Data), `"get weather!"`, "tool_use block must carry the original, not sanitised, function name")
	assert.Contains(t, string(start.Data), "toolu_1")

	final := m.Finish()
	assert.Contains(t, string(final[0].Data), `"tool_use"`)
}

func TestAnthropicStreamMachineImageBlock(t *testing.T) {
	m := NewAnthropicStreamMachine("msg_1", "claude-3-5-sonnet", model.NewToolNameMapper(), 10)

	events, err := m.Feed([]byte(`{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":"Zm9v"}}]}}]}`))
	require.NoError(t, err)
	require.Len(t, events, 3) // message_start, content_block_start, content_block_stop
	assert.Equal(t, "content_block_start", events[1].Name)
	assert.Contains(t, string(events[1].Data), "image/png")
	assert.Equal(t, "content_block_stop", events[2].Name)
}

func TestAnthropicStreamMachineSwitchingBlockTypesClosesThePrevious(t *testing.T) {
	m := NewAnthropicStreamMachine("msg_1", "claude-3-5-sonnet", model.NewToolNameMapper(), 10)

	_, err := m.Feed([]byte(`{"candidates":[{"content":{"parts":[{"text":"before the call"}]}}]}`))
	require.NoError(t, err)

	events, err := m.Feed([]byte(`{"candidates":[{"content":{"parts":[{"functionCall":{"id":"toolu_1","name":"lookup","args":{}}}]}}]}`))
	require.NoError(t, err)
	require.Len(t, events, 4) // content_block_stop (text), content_block_start/delta/stop (tool_use)
	assert.Equal(t, "content_block_stop", events[0].Name, "opening a tool_use block must close the preceding text block first")
}

func TestAnthropicStreamMachineFinishUsesFinalUsageWhenPresent(t *testing.T) {
	m := NewAnthropicStreamMachine("msg_1", "claude-3-5-sonnet", model.NewToolNameMapper(), 999)

	_, err := m.Feed([]byte(`{"candidates":[{"content":{"parts":[{"text":"hi"}]}}],"usageMetadata":{"promptTokenCount":12,"candidatesTokenCount":34,"totalTokenCount":46}}`))
	require.NoError(t, err)

	final := m.Finish()
	assert.Contains(t, string(final[0].Data), `"input_tokens":12`)
	assert.Contains(t, string(final[0].Data), `"output_tokens":34`)
}

func TestAnthropicStreamMachineFinishFallsBackToEstimateWithoutUsage(t *testing.T) {
	m := NewAnthropicStreamMachine("msg_1", "claude-3-5-sonnet", model.NewToolNameMapper(), 777)

	_, err := m.Feed([]byte(`{"candidates":[{"content":{"parts":[{"text":"hi"}]}}]}`))
	require.NoError(t, err)

	final := m.Finish()
	assert.Contains(t, string(final[0].Data), `"input_tokens":777`)
}

func TestAnthropicStreamMachineFinishMapsMaxTokens(t *testing.T) {
	m := NewAnthropicStreamMachine("msg_1", "claude-3-5-sonnet", model.NewToolNameMapper(), 10)

	_, err := m.Feed([]byte(`{"candidates":[{"content":{"parts":[{"text":"hi"}]},"finishReason":"MAX_TOKENS"}]}`))
	require.NoError(t, err)

	final := m.Finish()
	assert.Contains(t, string(final[0].Data), `"max_tokens"`)
}

func TestEstimateInputTokens(t *testing.T) {
	assert.Equal(t, 1, EstimateInputTokens(0, 0))
	assert.Equal(t, 25, EstimateInputTokens(100, 0))
	assert.Equal(t, 325, EstimateInputTokens(100, 1))
}
