package dispatch

import (
	"fmt"
	"runtime"

	"github.com/arcrelay/geminiproxy/internal/model"
)

const geminiCLIVersion = "0.1.0"

// antigravityUserAgent is a fixed constant (spec §4.4 step 4); Gemini's
// varies by build/OS/arch like the teacher's CLI-facing clients.
const antigravityUserAgent = "antigravity-cloudcode/1.0"

// BuildUpstreamURL implements spec §4.4 step 4: the sole upstream is the
// v1internal code-assist surface, reached at a provider-specific base URL,
// adapted from the teacher's BuildGenerateContentURL (internal/pkg/gemini/
// constants.go) for the v1internal:{generateContent|streamGenerateContent}
// suffix this module's ingress protocols all translate down to.
func BuildUpstreamURL(baseURL string, streaming bool) string {
	endpoint := "generateContent"
	if streaming {
		endpoint = "streamGenerateContent?alt=sse"
	}
	return baseURL + "/v1internal:" + endpoint
}

// BaseURLFor resolves the code-assist base URL for an account's provider.
func BaseURLFor(acct *model.Account, codeAssistEndpoint, antigravityAPIURL string) string {
	if acct.BaseURL != "" {
		return acct.BaseURL
	}
	if acct.Provider == model.ProviderGeminiAntigravity {
		return antigravityAPIURL
	}
	return codeAssistEndpoint
}

// UserAgentFor returns the per-provider User-Agent header value (spec §4.4
// step 4).
func UserAgentFor(acct *model.Account) string {
	if acct.Provider == model.ProviderGeminiAntigravity {
		return antigravityUserAgent
	}
	return fmt.Sprintf("GeminiCLI/%s (%s; %s)", geminiCLIVersion, runtime.GOOS, runtime.GOARCH)
}
