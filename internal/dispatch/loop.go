// Package dispatch implements the bounded retry loop (spec §4.4): account
// selection, OAuth refresh, upstream POST, response classification, and
// terminal/retry bookkeeping, generalized from the teacher's
// Forward/handleErrorResponse status-code switch (internal/service/
// gemini_gateway_service.go) and the reference Antigravity proxy's bounded
// attempt loop (other_examples).
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/arcrelay/geminiproxy/internal/model"
	"github.com/arcrelay/geminiproxy/internal/oauthclient"
	"github.com/arcrelay/geminiproxy/internal/pool"
	"github.com/arcrelay/geminiproxy/internal/quota"
)

// TokenRefresher refreshes an account's access token for a provider family.
// Satisfied by oauthclient.Chain.
type TokenRefresher interface {
	Refresh(ctx context.Context, account *model.Account) (*oauthclient.TokenResult, error)
}

// TerminalError is returned by Run when the loop gives up — either because
// MaxRetries was exhausted or a classification says not to retry.
type TerminalError struct {
	Classification Classification
	StatusCode     int
	Message        string
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("dispatch: terminal failure (%s, status=%d): %s", e.Classification, e.StatusCode, e.Message)
}

// Outcome is the successful result of Run: the caller relays resp.Body to
// the client (streaming or buffered) and must Close it when done.
type Outcome struct {
	Account       *model.Account
	Response      *http.Response
	Attempts      int
	StickyHit     bool
	TimeToFirstMs int64
}

type Loop struct {
	pool       *pool.Pool
	quota      *quota.Cache
	refresher  TokenRefresher
	transport  *Transport
	logger     Recorder
	maxRetries int
	refreshWindow time.Duration

	codeAssistEndpoint string
	antigravityAPIURL  string
}

type Config struct {
	MaxRetries         int
	RefreshWindow      time.Duration
	CodeAssistEndpoint string
	AntigravityAPIURL  string
}

func NewLoop(p *pool.Pool, q *quota.Cache, refresher TokenRefresher, transport *Transport, logger Recorder, cfg Config) *Loop {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 15
	}
	return &Loop{
		pool:               p,
		quota:              q,
		refresher:          refresher,
		transport:          transport,
		logger:             logger,
		maxRetries:         maxRetries,
		refreshWindow:      cfg.RefreshWindow,
		codeAssistEndpoint: cfg.CodeAssistEndpoint,
		antigravityAPIURL:  cfg.AntigravityAPIURL,
	}
}

// Run executes the bounded retry loop (spec §4.4) and returns the first
// successful upstream response, or a *TerminalError.
func (l *Loop) Run(ctx context.Context, rc *RequestContext, payload []byte) (*Outcome, error) {
	var lastStatusCode int
	var lastMessage string

	for attempt := 1; attempt <= l.maxRetries; attempt++ {
		if rc.ResponseStarted {
			return nil, &TerminalError{Classification: ResponseStarted, StatusCode: lastStatusCode, Message: "response already started; cannot retry"}
		}

		acct, stickyHit, err := l.pool.Pick(ctx, pool.PickRequest{
			PreferredProvider: rc.PreferredProvider,
			ConversationID:    rc.ConversationID,
			InFlight:          rc.InFlight,
		})
		if err != nil {
			return nil, &TerminalError{Classification: TransientUpstream, Message: "account pool lookup failed: " + err.Error()}
		}
		if acct == nil {
			return nil, &TerminalError{Classification: PoolExhausted, StatusCode: http.StatusServiceUnavailable, Message: "account pool exhausted"}
		}

		l.logger.UpdateRetry(ctx, rc.RequestID, attempt, acct.ID)

		if acct.IsTokenExpired() || l.withinRefreshWindow(acct) {
			result, err := l.refresher.Refresh(ctx, acct)
			if err != nil {
				log.Printf("[dispatch] token refresh failed for account %d: %v", acct.ID, err)
				l.pool.Disable(ctx, acct.ID)
				lastMessage = "token refresh failed: " + err.Error()
				continue
			}
			acct.SetCredentials(result.AccessToken, result.RefreshToken, result.Expiry)
		}

		resp, err := l.send(ctx, acct, rc.Directives.BaseModel, payload, rc.IsStreaming)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &TerminalError{Classification: ClientCancelled, Message: "request cancelled"}
			}
			lastMessage = err.Error()
			continue
		}

		if IsSuccessStatus(resp.StatusCode) {
			l.pool.RecordAffinity(ctx, rc.ConversationID, acct.ID)
			if info, ok := quota.ParseHeaders(acct.ID, resp.Header); ok {
				if err := l.quota.Update(ctx, info); err != nil {
					log.Printf("[dispatch] quota update failed for account %d: %v", acct.ID, err)
				}
			}
			return &Outcome{Account: acct, Response: resp, Attempts: attempt, StickyHit: stickyHit}, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		class := Classify(resp.StatusCode, body, nil)
		lastStatusCode = resp.StatusCode
		lastMessage = extractMessage(body)

		switch class {
		case AccountAuth:
			l.pool.Disable(ctx, acct.ID)
		case AccountRateLimit:
			resetAfter := time.Duration(ParseRetryAfterSeconds(resp.Header.Get("Retry-After"))) * time.Second
			l.pool.MarkRateLimited(ctx, acct.ID, resetAfter)
			if err := l.quota.MarkExhausted(ctx, acct.ID, int(resetAfter.Seconds())); err != nil {
				log.Printf("[dispatch] mark exhausted failed for account %d: %v", acct.ID, err)
			}
		case ClientError:
			return nil, &TerminalError{Classification: ClientError, StatusCode: resp.StatusCode, Message: lastMessage}
		}
		// TransientUpstream and the handled cases above all fall through to retry.
	}

	status := lastStatusCode
	if status == 0 {
		status = http.StatusServiceUnavailable
	}
	return nil, &TerminalError{Classification: TransientUpstream, StatusCode: status, Message: lastMessage}
}

func (l *Loop) withinRefreshWindow(acct *model.Account) bool {
	if l.refreshWindow <= 0 {
		return false
	}
	expiry := acct.Expiry()
	if expiry == nil {
		return false
	}
	return time.Until(*expiry) < l.refreshWindow
}

func (l *Loop) send(ctx context.Context, acct *model.Account, modelName string, payload []byte, streaming bool) (*http.Response, error) {
	baseURL := BaseURLFor(acct, l.codeAssistEndpoint, l.antigravityAPIURL)
	url := BuildUpstreamURL(baseURL, streaming)

	body, err := wrapCodeAssistEnvelope(modelName, acct.ProjectID(), payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+acct.AccessToken())
	req.Header.Set("User-Agent", UserAgentFor(acct))

	client := l.transport.For(acct.Provider == model.ProviderGeminiAntigravity)
	return client.Do(req)
}

// wrapCodeAssistEnvelope wraps a translated inner Gemini request in the
// v1internal code-assist envelope ({model, project, request}). project is
// resolved per attempt since it is the chosen account's onboarded GCP
// project, not a property of the translated request.
func wrapCodeAssistEnvelope(modelName, project string, innerRequest []byte) ([]byte, error) {
	envelope := struct {
		Model   string          `json:"model"`
		Project string          `json:"project,omitempty"`
		Request json.RawMessage `json:"request"`
	}{Model: modelName, Project: project, Request: innerRequest}
	return json.Marshal(envelope)
}

func extractMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	const max = 512
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}

