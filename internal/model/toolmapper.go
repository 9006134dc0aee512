package model

// ToolNameMapper is a per-request ephemeral bidirectional table recording
// every original<->sanitised function-name pair produced during ingress
// translation, so egress translation can restore the caller's original
// naming (spec §3/§4.1, Normalise/Denormalise round-trip in §8).
type ToolNameMapper struct {
	toSanitised map[string]string
	toOriginal  map[string]string
}

func NewToolNameMapper() *ToolNameMapper {
	return &ToolNameMapper{
		toSanitised: make(map[string]string),
		toOriginal:  make(map[string]string),
	}
}

// Record stores an original->sanitised pair. Idempotent for repeats.
func (m *ToolNameMapper) Record(original, sanitised string) {
	m.toSanitised[original] = sanitised
	m.toOriginal[sanitised] = original
}

// Sanitised returns the sanitised name previously recorded for original, if any.
func (m *ToolNameMapper) Sanitised(original string) (string, bool) {
	v, ok := m.toSanitised[original]
	return v, ok
}

// Original returns the original name for a sanitised name, defaulting to the
// sanitised name itself when nothing was recorded (egress saw a name the
// ingress translator never produced, e.g. a provider-injected tool).
func (m *ToolNameMapper) Original(sanitised string) string {
	if v, ok := m.toOriginal[sanitised]; ok {
		return v
	}
	return sanitised
}
