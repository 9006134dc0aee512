package translator

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/arcrelay/geminiproxy/internal/model"
	"github.com/arcrelay/geminiproxy/internal/toolname"
)

// ErrInvalidRequest signals a terminal client error — not retryable against
// the upstream (spec §4.1: unparseable tool-call arguments with no text).
var ErrInvalidRequest = errors.New("invalid_request")

// TranslateOpenAIChatIn builds the internal Gemini payload for an OpenAI
// Chat Completions request (spec §4.1).
func TranslateOpenAIChatIn(req *OpenAIChatRequest, d ModelDirectives, aliases AliasMap) (*GeminiPayload, *model.ToolNameMapper, error) {
	mapper := model.NewToolNameMapper()

	var systemParts []string
	leadingSystem := true
	var contents []GeminiContent

	// Track assistant tool_call_id -> function name for role:"tool" resolution.
	toolCallNames := map[string]string{}

	for _, msg := range req.Messages {
		if msg.Role == "system" && leadingSystem {
			text := extractText(msg.Content)
			if text != "" {
				systemParts = append(systemParts, text)
			}
			continue
		}
		leadingSystem = false

		switch msg.Role {
		case "system":
			// demoted to user once a non-system role has appeared
			contents = append(contents, GeminiContent{Role: "user", Parts: []GeminiPart{{Text: extractText(msg.Content)}}})

		case "tool":
			name := msg.Name
			if name == "" {
				name = toolCallNames[msg.ToolCallID]
			}
			resp, _ := json.Marshal(map[string]any{"output": extractText(msg.Content)})
			contents = append(contents, GeminiContent{Role: "user", Parts: []GeminiPart{{
				FunctionResponse: &FunctionResponse{Name: name, Response: resp},
			}}})

		case "assistant":
			parts, err := assistantParts(msg, mapper, toolCallNames)
			if err != nil {
				return nil, nil, err
			}
			contents = append(contents, GeminiContent{Role: "model", Parts: parts})

		default: // user
			parts := multipartParts(msg.Content)
			contents = append(contents, GeminiContent{Role: "user", Parts: parts})
		}
	}

	if len(contents) == 0 {
		contents = []GeminiContent{{Role: "user", Parts: []GeminiPart{{Text: "请根据系统指令回答。"}}}}
	}

	payload := &GeminiPayload{Contents: contents}
	if len(systemParts) > 0 {
		payload.SystemInstruction = &GeminiContent{Parts: []GeminiPart{{Text: strings.Join(systemParts, "\n\n")}}}
	}

	payload.GenerationConfig = buildGenerationConfig(req, d)
	payload.SafetySettings = SafetySettings()
	payload.Tools = ApplySearchTool(d, buildTools(req.Tools))

	return payload, mapper, nil
}

func buildGenerationConfig(req *OpenAIChatRequest, d ModelDirectives) *GenerationConfig {
	topK := defaultTopK
	cfg := &GenerationConfig{
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		TopK:             &topK,
		StopSequences:    req.Stop,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Seed:             req.Seed,
	}
	if req.N != nil {
		cfg.CandidateCount = req.N
	}
	maxTok := req.MaxTokens
	if req.MaxCompletionTok != nil {
		maxTok = req.MaxCompletionTok
	}
	if maxTok != nil {
		clamped := ClampMaxTokens(*maxTok)
		cfg.MaxOutputTokens = &clamped
	}
	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_object" {
		cfg.ResponseMimeType = "application/json"
	}
	ApplyThinkingConfig(d, cfg)
	return cfg
}

func buildTools(tools []OpenAITool) []GeminiTool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, FunctionDeclaration{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}
	return []GeminiTool{{FunctionDeclarations: decls}}
}

func assistantParts(msg OpenAIMessage, mapper *model.ToolNameMapper, toolCallNames map[string]string) ([]GeminiPart, error) {
	var parts []GeminiPart
	text := extractText(msg.Content)
	if text != "" {
		parts = append(parts, GeminiPart{Text: text})
	}

	parseFailures := 0
	for _, tc := range msg.ToolCalls {
		toolCallNames[tc.ID] = tc.Function.Name
		sanitised := toolname.Normalise(tc.Function.Name)
		mapper.Record(tc.Function.Name, sanitised)

		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			parseFailures++
			continue
		}
		parts = append(parts, GeminiPart{FunctionCall: &FunctionCall{Name: sanitised, Args: args}})
	}

	if len(msg.ToolCalls) > 0 && parseFailures == len(msg.ToolCalls) && text == "" {
		return nil, ErrInvalidRequest
	}
	return parts, nil
}

func multipartParts(raw json.RawMessage) []GeminiPart {
	if len(raw) == 0 {
		return []GeminiPart{{Text: ""}}
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return []GeminiPart{{Text: asString}}
	}
	var asParts []OpenAIContentPart
	if err := json.Unmarshal(raw, &asParts); err == nil {
		var parts []GeminiPart
		for _, p := range asParts {
			switch p.Type {
			case "text":
				parts = append(parts, GeminiPart{Text: p.Text})
			case "image_url":
				if p.ImageURL == nil {
					continue
				}
				if mime, data, ok := parseDataURL(p.ImageURL.URL); ok {
					parts = append(parts, GeminiPart{InlineData: &InlineData{MimeType: mime, Data: data}})
				}
				// non-data-URL image URLs are dropped per spec §4.1
			}
		}
		return parts
	}
	return []GeminiPart{{Text: string(raw)}}
}

func extractText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var asParts []OpenAIContentPart
	if err := json.Unmarshal(raw, &asParts); err == nil {
		var sb strings.Builder
		for _, p := range asParts {
			if p.Type == "text" {
				sb.WriteString(p.Text)
			}
		}
		return sb.String()
	}
	return ""
}

// parseDataURL extracts mime/data from "data:<mime>;base64,<data>".
func parseDataURL(url string) (mime, data string, ok bool) {
	const prefix = "data:"
	if !strings.HasPrefix(url, prefix) {
		return "", "", false
	}
	rest := url[len(prefix):]
	semi := strings.Index(rest, ";base64,")
	if semi < 0 {
		return "", "", false
	}
	return rest[:semi], rest[semi+len(";base64,"):], true
}
