package translator

import "encoding/json"

// TranslateGeminiIn is the near-identity translator for native Gemini
// generateContent/streamGenerateContent passthrough requests (spec §4.1):
// the caller already speaks the wire format, so this only normalises the
// safety settings and applies model-name directives (thinking/search)
// consistently with the other two ingress protocols.
func TranslateGeminiIn(raw json.RawMessage, d ModelDirectives) (*GeminiPayload, error) {
	var payload GeminiPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	if payload.GenerationConfig == nil {
		payload.GenerationConfig = &GenerationConfig{}
	}
	ApplyThinkingConfig(d, payload.GenerationConfig)
	if len(payload.SafetySettings) == 0 {
		payload.SafetySettings = SafetySettings()
	}
	payload.Tools = ApplySearchTool(d, payload.Tools)
	return &payload, nil
}
