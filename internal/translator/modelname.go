package translator

import (
	"log"
	"strings"
)

const (
	fakeStreamingPrefix  = "假流式/"
	antiTruncationPrefix = "流式抗截断/"

	suffixNoThinking  = "-nothinking"
	suffixMaxThinking = "-maxthinking"
	suffixSearch      = "-search"
)

// AliasRule is one entry of a {anthropic, openai_chat} alias group.
type AliasRule struct {
	Source         string `json:"source"` // matched case-insensitively
	TargetModel    string `json:"target_model"`
	TargetProvider string `json:"target_provider"` // "", "gemini" or "gemini_antigravity"
}

// AliasMap groups alias rules by ingress protocol family.
type AliasMap struct {
	Anthropic  []AliasRule
	OpenAIChat []AliasRule
}

// PreprocessModelName strips feature prefixes and suffix flags from the
// caller's model field, then resolves the remaining base name through the
// alias map for the given protocol group. See spec §4.1.
func PreprocessModelName(raw string, group string, aliases AliasMap) ModelDirectives {
	d := ModelDirectives{BaseModel: raw}

	name := raw
	if strings.HasPrefix(name, fakeStreamingPrefix) {
		d.FakeStreaming = true
		name = strings.TrimPrefix(name, fakeStreamingPrefix)
	}
	if strings.HasPrefix(name, antiTruncationPrefix) {
		// Detected and logged only — continuation logic is not implemented
		// (spec §9: left as an open TODO, semantics deliberately unguessed).
		d.AntiTruncation = true
		log.Printf("[translator] anti-truncation prefix seen on model %q, continuation not implemented", raw)
		name = strings.TrimPrefix(name, antiTruncationPrefix)
	}

	switch {
	case strings.HasSuffix(name, suffixNoThinking):
		d.NoThinking = true
		name = strings.TrimSuffix(name, suffixNoThinking)
	case strings.HasSuffix(name, suffixMaxThinking):
		d.MaxThinking = true
		name = strings.TrimSuffix(name, suffixMaxThinking)
	}
	if strings.HasSuffix(name, suffixSearch) {
		d.Search = true
		name = strings.TrimSuffix(name, suffixSearch)
	}

	var rules []AliasRule
	switch group {
	case "anthropic":
		rules = aliases.Anthropic
	case "openai_chat":
		rules = aliases.OpenAIChat
	}

	lowered := strings.ToLower(name)
	for _, rule := range rules {
		if strings.ToLower(rule.Source) != lowered {
			continue
		}
		if rule.TargetModel != "" {
			name = rule.TargetModel
		}
		if rule.TargetProvider != "" {
			if rule.TargetProvider == "gemini" || rule.TargetProvider == "gemini_antigravity" {
				d.TargetProvider = rule.TargetProvider
			} else {
				log.Printf("[translator] alias rule for %q names invalid target provider %q, ignoring", rule.Source, rule.TargetProvider)
			}
		}
		break
	}

	d.BaseModel = name
	return d
}

// ApplyThinkingConfig mutates cfg per the suffix flags recorded in d.
func ApplyThinkingConfig(d ModelDirectives, cfg *GenerationConfig) {
	base := strings.ToLower(d.BaseModel)
	switch {
	case d.NoThinking:
		budget := 128
		cfg.ThinkingConfig = &ThinkingConfig{
			ThinkingBudget:  &budget,
			IncludeThoughts: strings.Contains(base, "pro"),
		}
	case d.MaxThinking:
		budget := 32768
		if strings.Contains(base, "flash") {
			budget = 24576
		}
		cfg.ThinkingConfig = &ThinkingConfig{ThinkingBudget: &budget}
	}
}

// ApplySearchTool appends a googleSearch tool when the -search suffix was seen.
func ApplySearchTool(d ModelDirectives, tools []GeminiTool) []GeminiTool {
	if !d.Search {
		return tools
	}
	return append(tools, GeminiTool{GoogleSearch: &struct{}{}})
}
