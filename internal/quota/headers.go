// Package quota implements the quota cache (spec §4.3): parsing of
// upstream `x-codex-*` response headers into a QuotaInfo, permanent
// (no-TTL) storage with freshness governed by QuotaInfo.IsExpired, and the
// synthetic-exhaustion path used on a bare 429 with no quota headers.
package quota

import (
	"net/http"
	"strconv"
	"time"

	"github.com/arcrelay/geminiproxy/internal/model"
)

const (
	headerPlanType               = "x-codex-plan-type"
	headerPrimaryUsedPercent     = "x-codex-primary-used-percent"
	headerPrimaryWindowMinutes   = "x-codex-primary-window-minutes"
	headerPrimaryResetAfterSec   = "x-codex-primary-reset-after-seconds"
	headerSecondaryUsedPercent   = "x-codex-secondary-used-percent"
	headerSecondaryWindowMinutes = "x-codex-secondary-window-minutes"
	headerSecondaryResetAfterSec = "x-codex-secondary-reset-after-seconds"
	headerHasCredits             = "x-codex-has-credits"
	headerCreditsBalance         = "x-codex-credits-balance"
	headerCreditsUnlimited       = "x-codex-credits-unlimited"
)

// ParseHeaders builds a QuotaInfo from an upstream response's x-codex-*
// headers. Returns (nil, false) if none of the relevant headers are
// present — callers should leave any existing cached entry untouched.
func ParseHeaders(accountID int64, h http.Header) (*model.QuotaInfo, bool) {
	if h == nil {
		return nil, false
	}
	found := false
	get := func(name string) string {
		v := h.Get(name)
		if v != "" {
			found = true
		}
		return v
	}

	info := &model.QuotaInfo{
		AccountID:     accountID,
		PlanType:      get(headerPlanType),
		LastUpdatedAt: time.Now(),
	}

	info.PrimaryUsedPct = parseFloat(get(headerPrimaryUsedPercent))
	info.PrimaryWindowMinutes = parseInt(get(headerPrimaryWindowMinutes))
	info.PrimaryResetAfterSec = parseInt(get(headerPrimaryResetAfterSec))
	if info.PrimaryResetAfterSec > 0 {
		info.PrimaryResetAt = info.LastUpdatedAt.Add(time.Duration(info.PrimaryResetAfterSec) * time.Second).Unix()
	}

	info.SecondaryUsedPct = parseFloat(get(headerSecondaryUsedPercent))
	info.SecondaryWindowMinutes = parseInt(get(headerSecondaryWindowMinutes))
	info.SecondaryResetAfterSec = parseInt(get(headerSecondaryResetAfterSec))
	if info.SecondaryResetAfterSec > 0 {
		info.SecondaryResetAt = info.LastUpdatedAt.Add(time.Duration(info.SecondaryResetAfterSec) * time.Second).Unix()
	}

	info.HasCredits = get(headerHasCredits) == "true"
	info.CreditsUnlimited = get(headerCreditsUnlimited) == "true"
	if raw := get(headerCreditsBalance); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			info.CreditsBalance = &v
		}
	}

	if !found {
		return nil, false
	}
	return info, true
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int {
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
