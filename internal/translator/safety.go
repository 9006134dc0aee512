package translator

// SafetySettings always sets every known harm category threshold to
// BLOCK_NONE (spec §4.1) — the upstream applies its own moderation; this
// proxy never second-guesses it.
func SafetySettings() []SafetySetting {
	categories := []string{
		"HARM_CATEGORY_HARASSMENT",
		"HARM_CATEGORY_HATE_SPEECH",
		"HARM_CATEGORY_SEXUALLY_EXPLICIT",
		"HARM_CATEGORY_DANGEROUS_CONTENT",
		"HARM_CATEGORY_CIVIC_INTEGRITY",
		"HARM_CATEGORY_UNSPECIFIED",
		"HARM_CATEGORY_DEROGATORY",
		"HARM_CATEGORY_TOXICITY",
		"HARM_CATEGORY_VIOLENCE",
		"HARM_CATEGORY_SEXUAL",
	}
	settings := make([]SafetySetting, 0, len(categories))
	for _, c := range categories {
		settings = append(settings, SafetySetting{Category: c, Threshold: "BLOCK_NONE"})
	}
	return settings
}

const defaultTopK = 64

// ClampMaxTokens enforces the ≤65535 ceiling spec §4.1 requires before
// translation into maxOutputTokens.
func ClampMaxTokens(v int) int {
	const ceiling = 65535
	if v > ceiling {
		return ceiling
	}
	return v
}
