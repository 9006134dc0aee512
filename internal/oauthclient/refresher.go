// Package oauthclient refreshes Gemini/Antigravity OAuth access tokens
// (spec §4.4 step 3) using golang.org/x/oauth2's token-source refresh flow
// in place of the teacher's hand-rolled form-encoded POST.
package oauthclient

import (
	"context"
	"fmt"
	"time"

	"github.com/arcrelay/geminiproxy/internal/model"
	"golang.org/x/oauth2"
)

// googleTokenEndpoint is Google's OAuth2 token endpoint. Both the Gemini
// and Antigravity client registrations refresh against it.
var googleTokenEndpoint = oauth2.Endpoint{TokenURL: "https://oauth2.googleapis.com/token"}

// Credentials are the OAuth client identity used to refresh a given
// account's token. Distinct provider families may use distinct client
// registrations, so this is passed in rather than hardcoded.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// TokenResult is the refreshed credential set, ready for
// model.Account.SetCredentials.
type TokenResult struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Refresher refreshes an account's OAuth access token.
type Refresher interface {
	CanRefresh(account *model.Account) bool
	Refresh(ctx context.Context, account *model.Account) (*TokenResult, error)
}

// GeminiRefresher refreshes tokens for the standard Gemini OAuth app
// (spec §4.4: "Resolve OAuth ... call the provider's refresh").
type GeminiRefresher struct {
	creds Credentials
}

func NewGeminiRefresher(creds Credentials) *GeminiRefresher {
	return &GeminiRefresher{creds: creds}
}

func (r *GeminiRefresher) CanRefresh(account *model.Account) bool {
	return account != nil && account.Provider == model.ProviderGemini
}

func (r *GeminiRefresher) Refresh(ctx context.Context, account *model.Account) (*TokenResult, error) {
	return refreshWithConfig(ctx, r.oauthConfig(), account)
}

func (r *GeminiRefresher) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     r.creds.ClientID,
		ClientSecret: r.creds.ClientSecret,
		Endpoint:     googleTokenEndpoint,
	}
}

// AntigravityRefresher refreshes tokens for the Antigravity code-assist
// surface, which speaks the same Google OAuth token endpoint under a
// distinct client registration (spec §9: Antigravity is a parallel
// upstream, not a wire-format difference).
type AntigravityRefresher struct {
	creds Credentials
}

func NewAntigravityRefresher(creds Credentials) *AntigravityRefresher {
	return &AntigravityRefresher{creds: creds}
}

func (r *AntigravityRefresher) CanRefresh(account *model.Account) bool {
	return account != nil && account.Provider == model.ProviderGeminiAntigravity
}

func (r *AntigravityRefresher) Refresh(ctx context.Context, account *model.Account) (*TokenResult, error) {
	return refreshWithConfig(ctx, &oauth2.Config{
		ClientID:     r.creds.ClientID,
		ClientSecret: r.creds.ClientSecret,
		Endpoint:     googleTokenEndpoint,
	}, account)
}

func refreshWithConfig(ctx context.Context, cfg *oauth2.Config, account *model.Account) (*TokenResult, error) {
	refreshToken := account.RefreshToken()
	if refreshToken == "" {
		return nil, fmt.Errorf("oauthclient: account %d has no refresh token", account.ID)
	}

	old := &oauth2.Token{RefreshToken: refreshToken}
	src := cfg.TokenSource(ctx, old)
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("oauthclient: refresh account %d: %w", account.ID, err)
	}

	result := &TokenResult{
		AccessToken: tok.AccessToken,
		Expiry:      tok.Expiry,
	}
	if tok.RefreshToken != "" {
		result.RefreshToken = tok.RefreshToken
	} else {
		result.RefreshToken = refreshToken
	}
	return result, nil
}

// Chain tries each Refresher in order and uses the first that claims the
// account, mirroring the per-provider dispatch in spec §4.4 step 3.
type Chain []Refresher

func (c Chain) Refresh(ctx context.Context, account *model.Account) (*TokenResult, error) {
	for _, r := range c {
		if r.CanRefresh(account) {
			return r.Refresh(ctx, account)
		}
	}
	return nil, fmt.Errorf("oauthclient: no refresher registered for provider %q", account.Provider)
}
