package translator

import (
	"encoding/json"
	"math"

	"github.com/arcrelay/geminiproxy/internal/model"
	"github.com/tidwall/gjson"
)

type blockState int

const (
	stateNone blockState = iota
	stateText
	stateThinking
)

// AnthropicStreamMachine is the block-oriented state machine described in
// spec §4.1a: it rewrites successive Gemini SSE chunks into the Anthropic
// message_start/content_block_*/message_delta/message_stop event sequence.
type AnthropicStreamMachine struct {
	respID    string
	modelName string
	mapper    *model.ToolNameMapper

	messageStarted bool
	current        blockState
	blockIndex     int
	hasToolUse     bool

	totalChars          int
	imageCount          int
	fallbackInputTokens int
	finalUsage          *UsageMetadata
	finishReason        string
}

func NewAnthropicStreamMachine(respID, modelName string, mapper *model.ToolNameMapper, estimatedInputTokens int) *AnthropicStreamMachine {
	return &AnthropicStreamMachine{
		respID:              respID,
		modelName:           modelName,
		mapper:              mapper,
		blockIndex:          -1,
		fallbackInputTokens: estimatedInputTokens,
	}
}

// Event is one SSE event name paired with its JSON body.
type Event struct {
	Name string
	Data []byte
}

// Feed consumes one upstream SSE data line (prefix already stripped) and
// returns the Anthropic events it produces, in order.
func (m *AnthropicStreamMachine) Feed(line []byte) ([]Event, error) {
	body := line
	if wrapped := gjson.GetBytes(line, "response"); wrapped.Exists() {
		body = []byte(wrapped.Raw)
	}

	var resp GeminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	var events []Event

	if resp.UsageMetadata != nil {
		m.finalUsage = resp.UsageMetadata
	}

	if len(resp.Candidates) == 0 {
		return events, nil
	}
	cand := resp.Candidates[0]

	for _, part := range cand.Content.Parts {
		events = append(events, m.ensureMessageStart()...)

		switch {
		case part.InlineData != nil:
			events = append(events, m.stopCurrent()...)
			idx := m.nextIndex()
			events = append(events,
				Event{"content_block_start", marshalBlockStart(idx, map[string]any{
					"type": "image", "source": map[string]any{
						"type": "base64", "media_type": part.InlineData.MimeType, "data": part.InlineData.Data,
					},
				})},
				Event{"content_block_stop", marshalBlockStop(idx)},
			)

		case part.FunctionCall != nil:
			events = append(events, m.stopCurrent()...)
			m.hasToolUse = true
			idx := m.nextIndex()
			originalName := m.mapper.Original(part.FunctionCall.Name)
			events = append(events,
				Event{"content_block_start", marshalBlockStart(idx, map[string]any{
					"type": "tool_use", "id": part.FunctionCall.ID, "name": originalName, "input": map[string]any{},
				})},
				Event{"content_block_delta", marshalBlockDelta(idx, map[string]any{
					"type": "input_json_delta", "partial_json": string(part.FunctionCall.Args),
				})},
				Event{"content_block_stop", marshalBlockStop(idx)},
			)

		case part.Thought && part.Text != "":
			if m.current == stateThinking {
				events = append(events, Event{"content_block_delta", marshalBlockDelta(m.blockIndex, map[string]any{
					"type": "thinking_delta", "thinking": part.Text,
				})})
			} else {
				events = append(events, m.stopCurrent()...)
				idx := m.nextIndex()
				block := map[string]any{"type": "thinking", "thinking": ""}
				if part.ThoughtSignature != "" {
					block["signature"] = part.ThoughtSignature
				}
				events = append(events, Event{"content_block_start", marshalBlockStart(idx, block)})
				events = append(events, Event{"content_block_delta", marshalBlockDelta(idx, map[string]any{
					"type": "thinking_delta", "thinking": part.Text,
				})})
				m.current = stateThinking
			}

		case part.Thought && part.Text == "" && part.ThoughtSignature != "":
			// standalone signature with no thinking text yet in this block
			if m.current == stateThinking {
				events = append(events, Event{"content_block_delta", marshalBlockDelta(m.blockIndex, map[string]any{
					"type": "signature_delta", "signature": part.ThoughtSignature,
				})})
			}

		case part.Text != "":
			if m.current == stateText {
				events = append(events, Event{"content_block_delta", marshalBlockDelta(m.blockIndex, map[string]any{
					"type": "text_delta", "text": part.Text,
				})})
			} else {
				events = append(events, m.stopCurrent()...)
				idx := m.nextIndex()
				events = append(events, Event{"content_block_start", marshalBlockStart(idx, map[string]any{"type": "text", "text": ""})})
				events = append(events, Event{"content_block_delta", marshalBlockDelta(idx, map[string]any{
					"type": "text_delta", "text": part.Text,
				})})
				m.current = stateText
			}
		}

		m.totalChars += len(part.Text)
		if part.InlineData != nil {
			m.imageCount++
		}
	}

	if cand.FinishReason != "" {
		m.finishReason = cand.FinishReason
		events = append(events, m.stopCurrent()...)
	}

	return events, nil
}

// Finish emits message_delta + message_stop. Call once after the upstream
// stream (or non-streaming buffered response) is exhausted.
func (m *AnthropicStreamMachine) Finish() []Event {
	reason := stopReason(m.hasToolUse, m.finishReason)
	usage := AnthropicUsage{InputTokens: m.fallbackInputTokens}
	if m.finalUsage != nil {
		usage = AnthropicUsage{InputTokens: m.finalUsage.PromptTokenCount, OutputTokens: m.finalUsage.CandidatesTokenCount}
	}

	delta := AnthropicMessageDelta{Type: "message_delta", Usage: usage}
	delta.Delta.StopReason = &reason
	b, _ := json.Marshal(delta)

	return []Event{
		{"message_delta", b},
		{"message_stop", []byte(`{"type":"message_stop"}`)},
	}
}

func (m *AnthropicStreamMachine) ensureMessageStart() []Event {
	if m.messageStarted {
		return nil
	}
	m.messageStarted = true
	start := AnthropicMessageStart{Type: "message_start"}
	start.Message.ID = m.respID
	start.Message.Type = "message"
	start.Message.Role = "assistant"
	start.Message.Content = []any{}
	start.Message.Model = m.modelName
	start.Message.Usage = AnthropicUsage{InputTokens: m.fallbackInputTokens}
	b, _ := json.Marshal(start)
	return []Event{{"message_start", b}}
}

func (m *AnthropicStreamMachine) stopCurrent() []Event {
	if m.current == stateNone {
		return nil
	}
	ev := []Event{{"content_block_stop", marshalBlockStop(m.blockIndex)}}
	m.current = stateNone
	return ev
}

func (m *AnthropicStreamMachine) nextIndex() int {
	m.blockIndex++
	return m.blockIndex
}

func marshalBlockStart(idx int, block map[string]any) []byte {
	b, _ := json.Marshal(AnthropicBlockStart{Type: "content_block_start", Index: idx, ContentBlock: block})
	return b
}

func marshalBlockDelta(idx int, delta map[string]any) []byte {
	b, _ := json.Marshal(AnthropicBlockDelta{Type: "content_block_delta", Index: idx, Delta: delta})
	return b
}

func marshalBlockStop(idx int) []byte {
	b, _ := json.Marshal(AnthropicBlockStop{Type: "content_block_stop", Index: idx})
	return b
}

// EstimateInputTokens exposes the §4.1a fallback estimator for callers that
// only have raw text/image counts (e.g. the non-streaming path).
func EstimateInputTokens(totalChars, imageCount int) int {
	est := int(math.Ceil(float64(totalChars) / 4.0))
	est += 300 * imageCount
	if est < 1 {
		est = 1
	}
	return est
}
