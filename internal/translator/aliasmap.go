package translator

import "encoding/json"

// aliasMapJSON mirrors the `model_mapping_rules` settings value (spec §6):
// a JSON object with "anthropic" and "openai_chat" arrays of rules.
type aliasMapJSON struct {
	Anthropic  []AliasRule `json:"anthropic"`
	OpenAIChat []AliasRule `json:"openai_chat"`
}

// ParseAliasMap decodes the `model_mapping_rules` settings value. An empty
// string yields a zero-value AliasMap (no rules configured).
func ParseAliasMap(raw string) (AliasMap, error) {
	if raw == "" {
		return AliasMap{}, nil
	}
	var parsed aliasMapJSON
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return AliasMap{}, err
	}
	return AliasMap{Anthropic: parsed.Anthropic, OpenAIChat: parsed.OpenAIChat}, nil
}
