package dispatch

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/arcrelay/geminiproxy/internal/config"
)

// Transport is the outbound HTTP client used to reach the two upstream code
// assist surfaces. Grounded on the teacher's generic httpUpstreamService
// (internal/repository/http_upstream.go): one tuned *http.Client per
// upstream, separated here because Antigravity needs its own optional
// TLS-skip knob (spec §6) that must never leak onto the Gemini client.
type Transport struct {
	gemini       *http.Client
	antigravity  *http.Client
}

func NewTransport(cfg *config.GatewayConfig) *Transport {
	headerTimeout := time.Duration(cfg.ResponseHeaderTimeout) * time.Second
	if headerTimeout == 0 {
		headerTimeout = 300 * time.Second
	}

	gemini := &http.Client{Transport: &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
	}}

	antigravityTransport := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
	}
	if cfg.AntigravitySkipTLS {
		antigravityTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-in, spec §6
	}

	return &Transport{
		gemini:      gemini,
		antigravity: &http.Client{Transport: antigravityTransport},
	}
}

// NewTransportWithClients builds a Transport from already-configured
// clients, bypassing NewTransport's defaults. Used by tests to point both
// upstream clients at a local httptest server.
func NewTransportWithClients(gemini, antigravity *http.Client) *Transport {
	return &Transport{gemini: gemini, antigravity: antigravity}
}

// For returns the client for the given upstream provider family.
func (t *Transport) For(isAntigravity bool) *http.Client {
	if isAntigravity {
		return t.antigravity
	}
	return t.gemini
}
