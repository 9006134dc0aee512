package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Provider identifies which upstream family an Account's credentials speak to.
type Provider string

const (
	ProviderOpenAI            Provider = "openai"
	ProviderGemini            Provider = "gemini"
	ProviderGeminiAntigravity Provider = "gemini_antigravity"
	ProviderClaude            Provider = "claude"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderGemini, ProviderGeminiAntigravity, ProviderClaude:
		return true
	}
	return false
}

// JSONB is an opaque credential/extra blob stored as a jsonb column.
type JSONB map[string]any

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value any) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// Account is one upstream OAuth-bearing credential in the dispatch pool.
//
// Invariants: IsRateLimited() true implies RateLimitResetTime != nil; once
// RateLimitResetTime is in the past the account re-enters the pool without
// any DB mutation (IsAvailable recomputes it on every call). Disabling is a
// persistent transition undone only by an admin re-enable — never by time.
type Account struct {
	ID       int64          `gorm:"primaryKey" json:"id"`
	Provider Provider       `gorm:"size:32;not null;index" json:"provider"`
	Name     string         `gorm:"size:100;not null" json:"name"`
	Email    string         `gorm:"size:255" json:"email"`
	BaseURL  string         `gorm:"size:255" json:"base_url"`

	// Credentials holds access_token, refresh_token, expiry (RFC3339),
	// project_id and any provider-specific extras. Opaque to everything
	// except the oauthclient package and the accessor methods below.
	Credentials JSONB `gorm:"type:jsonb;default:'{}'" json:"-"`
	Extra       JSONB `gorm:"type:jsonb;default:'{}'" json:"extra"`

	IsEnabled  bool `gorm:"default:true;not null;index" json:"is_enabled"`
	UsageCount int64 `gorm:"default:0;not null" json:"usage_count"`

	IsRateLimited     bool       `gorm:"default:false;not null;index" json:"is_rate_limited"`
	RateLimitResetTime *time.Time `json:"rate_limit_reset_time"`

	LastUsedAt *time.Time `gorm:"index" json:"last_used_at"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"not null" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Account) TableName() string { return "accounts" }

// IsAvailable reports whether the account may currently be selected.
// IsAvailable := isEnabled AND (not isRateLimited OR rateLimitResetTime <= now)
func (a *Account) IsAvailable() bool {
	if !a.IsEnabled {
		return false
	}
	if a.IsRateLimited && a.RateLimitResetTime != nil && time.Now().Before(*a.RateLimitResetTime) {
		return false
	}
	return true
}

// MarkRateLimited flags the account rate-limited for resetAfter, mutated in place.
// The caller (repository) is responsible for persisting this as an atomic update.
func (a *Account) MarkRateLimited(resetAfter time.Duration) {
	a.IsRateLimited = true
	t := time.Now().Add(resetAfter)
	a.RateLimitResetTime = &t
}

// Disable sets the terminal-until-admin-re-enables state.
func (a *Account) Disable() {
	a.IsEnabled = false
}

// GetCredential reads a string field from the opaque credentials blob.
func (a *Account) GetCredential(key string) string {
	if a.Credentials == nil {
		return ""
	}
	if v, ok := a.Credentials[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (a *Account) AccessToken() string  { return a.GetCredential("access_token") }
func (a *Account) RefreshToken() string { return a.GetCredential("refresh_token") }
func (a *Account) ProjectID() string    { return a.GetCredential("project_id") }

// Expiry returns the parsed token expiry, or nil if absent (treated as valid).
func (a *Account) Expiry() *time.Time {
	raw := a.GetCredential("expiry")
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}

// IsTokenExpired reports whether the access token needs a refresh before use.
// Absent expiry is treated as valid per spec §4.4 step 3.
func (a *Account) IsTokenExpired() bool {
	expiry := a.Expiry()
	if expiry == nil {
		return false
	}
	return time.Now().After(*expiry)
}

// SetCredentials replaces the refreshed token triple in place.
func (a *Account) SetCredentials(accessToken, refreshToken string, expiry time.Time) {
	if a.Credentials == nil {
		a.Credentials = JSONB{}
	}
	a.Credentials["access_token"] = accessToken
	if refreshToken != "" {
		a.Credentials["refresh_token"] = refreshToken
	}
	a.Credentials["expiry"] = expiry.Format(time.RFC3339)
}

func (a *Account) IsGeminiFamily() bool {
	return a.Provider == ProviderGemini || a.Provider == ProviderGeminiAntigravity
}
