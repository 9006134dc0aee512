package translator

import (
	"encoding/json"
	"strings"

	"github.com/arcrelay/geminiproxy/internal/model"
	"github.com/arcrelay/geminiproxy/internal/toolname"
)

// TranslateAnthropicIn builds the internal Gemini payload for an Anthropic
// Messages request, plus an estimated input-token count used as the
// streaming fallback estimator until real usage arrives (spec §4.1/§4.1a).
func TranslateAnthropicIn(req *AnthropicRequest, d ModelDirectives) (*GeminiPayload, *model.ToolNameMapper, int, error) {
	mapper := model.NewToolNameMapper()

	var contents []GeminiContent
	totalChars := 0
	imageCount := 0

	// Track tool_use id -> original function name for tool_result resolution
	// (tool_use ids are never keys in mapper's name<->name table).
	toolUseNames := map[string]string{}

	for _, msg := range req.Messages {
		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}
		for _, block := range msg.Content {
			part, chars, isImage, err := anthropicBlockToPart(block, mapper, toolUseNames)
			if err != nil {
				return nil, nil, 0, err
			}
			if part == nil {
				continue
			}
			totalChars += chars
			if isImage {
				imageCount++
			}
			// flatten: one Content per Part (spec §4.1)
			contents = append(contents, GeminiContent{Role: role, Parts: []GeminiPart{*part}})
		}
	}

	contents = reorderFunctionResponses(contents)

	payload := &GeminiPayload{Contents: contents}

	if sys := aggregateSystem(req.System); sys != "" {
		payload.SystemInstruction = &GeminiContent{Parts: []GeminiPart{{Text: sys}}}
		totalChars += len(sys)
	}

	maxTok := ClampMaxTokens(req.MaxTokens)
	cfg := &GenerationConfig{
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		MaxOutputTokens: &maxTok,
		StopSequences:   req.StopSequences,
	}
	topK := defaultTopK
	cfg.TopK = &topK
	ApplyThinkingConfig(d, cfg)
	payload.GenerationConfig = cfg

	payload.SafetySettings = SafetySettings()
	payload.Tools = ApplySearchTool(d, buildAnthropicTools(req.Tools))

	estimatedInputTokens := estimateInputTokens(totalChars, imageCount)
	return payload, mapper, estimatedInputTokens, nil
}

// estimateInputTokens implements the §4.1a fallback: ceil(totalChars/4) +
// 300*imageCount, minimum 1.
func estimateInputTokens(totalChars, imageCount int) int {
	est := (totalChars + 3) / 4
	est += 300 * imageCount
	if est < 1 {
		est = 1
	}
	return est
}

func anthropicBlockToPart(block AnthropicContentBlock, mapper *model.ToolNameMapper, toolUseNames map[string]string) (*GeminiPart, int, bool, error) {
	switch block.Type {
	case "text":
		return &GeminiPart{Text: block.Text}, len(block.Text), false, nil

	case "thinking":
		return &GeminiPart{Text: block.Text, Thought: true, ThoughtSignature: block.Signature}, len(block.Text), false, nil

	case "redacted_thinking":
		if block.Signature == "" {
			return nil, 0, false, nil
		}
		return &GeminiPart{Text: block.Text, Thought: true, ThoughtSignature: block.Signature}, len(block.Text), false, nil

	case "image":
		if block.Source == nil || block.Source.Type != "base64" {
			return nil, 0, false, nil
		}
		return &GeminiPart{InlineData: &InlineData{MimeType: block.Source.MediaType, Data: block.Source.Data}}, 0, true, nil

	case "tool_use":
		sanitised := toolname.Normalise(block.Name)
		mapper.Record(block.Name, sanitised)
		toolUseNames[block.ID] = block.Name
		args := removeNulls(block.Input)
		return &GeminiPart{FunctionCall: &FunctionCall{ID: block.ID, Name: sanitised, Args: args}}, len(args), false, nil

	case "tool_result":
		text := extractToolResultText(block.Content)
		resp, _ := json.Marshal(map[string]any{"output": text})
		name := toolUseNames[block.ToolUseID]
		return &GeminiPart{FunctionResponse: &FunctionResponse{ID: block.ToolUseID, Name: name, Response: resp}}, len(text), false, nil
	}
	return nil, 0, false, nil
}

func extractToolResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []AnthropicContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var sb strings.Builder
		for _, b := range blocks {
			if b.Type == "text" {
				sb.WriteString(b.Text)
			}
		}
		return sb.String()
	}
	return string(raw)
}

// removeNulls strips JSON null-valued keys from a tool_use input object,
// matching Gemini's functionCall.args which rejects explicit nulls.
func removeNulls(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return raw
	}
	for k, v := range m {
		if v == nil {
			delete(m, k)
		}
	}
	out, err := json.Marshal(m)
	if err != nil {
		return raw
	}
	return out
}

// reorderFunctionResponses ensures every functionResponse part immediately
// follows its matching functionCall by id — an upstream correctness
// requirement (spec §4.1).
func reorderFunctionResponses(contents []GeminiContent) []GeminiContent {
	callIndexByID := map[string]int{}
	for i, c := range contents {
		if len(c.Parts) == 1 && c.Parts[0].FunctionCall != nil {
			callIndexByID[c.Parts[0].FunctionCall.ID] = i
		}
	}

	result := make([]GeminiContent, 0, len(contents))
	consumed := make([]bool, len(contents))
	responsesByCallIdx := map[int][]int{}

	for i, c := range contents {
		if len(c.Parts) == 1 && c.Parts[0].FunctionResponse != nil {
			if callIdx, ok := callIndexByID[c.Parts[0].FunctionResponse.ID]; ok {
				responsesByCallIdx[callIdx] = append(responsesByCallIdx[callIdx], i)
				continue
			}
		}
	}

	for i, c := range contents {
		if consumed[i] {
			continue
		}
		if resp, ok := responsesByCallIdx[i]; ok && len(c.Parts) == 1 && c.Parts[0].FunctionCall != nil {
			result = append(result, c)
			consumed[i] = true
			for _, ri := range resp {
				result = append(result, contents[ri])
				consumed[ri] = true
			}
			continue
		}
		// functionResponse already matched to an earlier call: skip here, emitted above
		isMatchedResponse := false
		if len(c.Parts) == 1 && c.Parts[0].FunctionResponse != nil {
			if _, ok := callIndexByID[c.Parts[0].FunctionResponse.ID]; ok {
				isMatchedResponse = true
			}
		}
		if isMatchedResponse {
			continue
		}
		result = append(result, c)
		consumed[i] = true
	}
	return result
}

func aggregateSystem(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []AnthropicContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var parts []string
		for _, b := range blocks {
			if b.Type == "text" && b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		return strings.Join(parts, "\n\n")
	}
	return ""
}

func buildAnthropicTools(tools []AnthropicTool) []GeminiTool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, FunctionDeclaration{Name: t.Name, Description: t.Description, Parameters: t.InputSchema})
	}
	return []GeminiTool{{FunctionDeclarations: decls}}
}
