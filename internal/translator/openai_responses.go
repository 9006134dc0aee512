package translator

import "encoding/json"

// OpenAIResponsesRequest is the /v1/responses ingress shape (spec §6:
// "OpenAI Responses API"). Input accepts either a bare string or an array of
// {role, content} items, mirroring the real API's two accepted shapes.
type OpenAIResponsesRequest struct {
	Model  string          `json:"model"`
	Input  json.RawMessage `json:"input"`
	Stream bool            `json:"stream"`
}

type responsesInputItem struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// ToChatRequest normalises a Responses API request into the Chat
// Completions shape: `input` becomes `messages`, so the rest of the pipeline
// (TranslateOpenAIChatIn, TranslateGeminiToOpenAI, the SSE chunk
// translator) is reused unchanged rather than duplicated for a second wire
// format that differs only in its envelope.
func (r *OpenAIResponsesRequest) ToChatRequest() (*OpenAIChatRequest, error) {
	messages, err := normalizeResponsesInput(r.Input)
	if err != nil {
		return nil, err
	}
	return &OpenAIChatRequest{
		Model:    r.Model,
		Messages: messages,
		Stream:   r.Stream,
	}, nil
}

func normalizeResponsesInput(raw json.RawMessage) ([]OpenAIMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		content, _ := json.Marshal(asString)
		return []OpenAIMessage{{Role: "user", Content: content}}, nil
	}

	var items []responsesInputItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	messages := make([]OpenAIMessage, 0, len(items))
	for _, item := range items {
		role := item.Role
		if role == "" {
			role = "user"
		}
		messages = append(messages, OpenAIMessage{Role: role, Content: item.Content})
	}
	return messages, nil
}

// ResponsesOutput is the buffered /v1/responses egress shape: a trimmed
// projection of the real API's response object covering plain-text output,
// which is all this module's upstream (text-only code-assist) can produce.
type ResponsesOutput struct {
	ID     string              `json:"id"`
	Object string              `json:"object"`
	Model  string              `json:"model"`
	Status string              `json:"status"`
	Output []ResponsesOutputItem `json:"output"`
	Usage  *ResponsesUsage     `json:"usage,omitempty"`
}

type ResponsesOutputItem struct {
	Type    string                `json:"type"`
	ID      string                `json:"id"`
	Role    string                `json:"role"`
	Content []ResponsesOutputPart `json:"content"`
}

type ResponsesOutputPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ResponsesUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ToResponsesOutput projects a Chat Completions response onto the Responses
// API's output shape.
func ToResponsesOutput(chat *OpenAIChatResponse, respID string) *ResponsesOutput {
	out := &ResponsesOutput{
		ID:     respID,
		Object: "response",
		Model:  chat.Model,
		Status: "completed",
	}
	if len(chat.Choices) > 0 && chat.Choices[0].Message != nil {
		out.Output = []ResponsesOutputItem{{
			Type: "message",
			ID:   "msg_" + respID,
			Role: "assistant",
			Content: []ResponsesOutputPart{{
				Type: "output_text",
				Text: chat.Choices[0].Message.Content,
			}},
		}}
	}
	if chat.Usage != nil {
		out.Usage = &ResponsesUsage{
			InputTokens:  chat.Usage.PromptTokens,
			OutputTokens: chat.Usage.CompletionTokens,
			TotalTokens:  chat.Usage.TotalTokens,
		}
	}
	return out
}
