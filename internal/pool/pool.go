// Package pool implements the account pool & selector (spec §4.2): a
// scored, provider-filtered dispatcher with conversation-sticky affinity
// and per-request in-flight exclusion.
package pool

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/arcrelay/geminiproxy/internal/model"
)

// AccountRepository is the persistence surface this package needs.
// Satisfied by internal/repository.AccountRepository and its
// CachedAccountRepository wrapper.
type AccountRepository interface {
	ListSchedulable(ctx context.Context, provider model.Provider) ([]*model.Account, error)
	GetByID(ctx context.Context, id int64) (*model.Account, error)
	IncrementUsage(ctx context.Context, id int64, now time.Time) error
	SetRateLimited(ctx context.Context, id int64, resetAt time.Time) error
	Disable(ctx context.Context, id int64) error
}

// AffinityCache is the conversation-sticky cache surface.
// Satisfied by internal/repository.AffinityCache.
type AffinityCache interface {
	Get(ctx context.Context, conversationID string) (int64, bool, error)
	Set(ctx context.Context, conversationID string, accountID int64, ttl time.Duration) error
}

// QuotaHealth resolves the cached health score and exhaustion state for an
// account. Satisfied by internal/quota.Cache.
type QuotaHealth interface {
	HealthScore(ctx context.Context, accountID int64) (score float64, hasInfo bool)
	IsExhausted(ctx context.Context, accountID int64) bool
}

// InFlightSet is the request-scoped set of account ids already attempted in
// the current dispatch (spec §9 REDESIGN FLAG: never task-local/global —
// created fresh per request and threaded explicitly by the caller).
type InFlightSet map[int64]struct{}

func NewInFlightSet() InFlightSet { return make(InFlightSet) }

func (s InFlightSet) Contains(id int64) bool { _, ok := s[id]; return ok }
func (s InFlightSet) Add(id int64)           { s[id] = struct{}{} }

// PickRequest is the per-call selection criteria.
type PickRequest struct {
	PreferredProvider model.Provider // "" = use default Gemini-chat fallback order
	ConversationID    string
	InFlight          InFlightSet
}

type Pool struct {
	accounts AccountRepository
	affinity AffinityCache
	quota    QuotaHealth
}

// nowFunc is overridden in tests to make recency scoring deterministic.
var nowFunc = time.Now

func New(accounts AccountRepository, affinity AffinityCache, quota QuotaHealth) *Pool {
	return &Pool{accounts: accounts, affinity: affinity, quota: quota}
}

// Pick selects the best-scoring available account, or nil if the pool is
// exhausted. Side effects: increments usageCount, sets lastUsedAt, and adds
// the chosen account to req.InFlight (spec §4.2). The second return value
// reports whether the pick came from conversation affinity (the log
// pipeline's sessionStickinessUsed flag).
func (p *Pool) Pick(ctx context.Context, req PickRequest) (*model.Account, bool, error) {
	if req.InFlight == nil {
		req.InFlight = NewInFlightSet()
	}

	if acct := p.tryAffinity(ctx, req); acct != nil {
		if err := p.commitPick(ctx, acct, req.InFlight); err != nil {
			return nil, false, err
		}
		return acct, true, nil
	}

	providers := providerCandidates(req.PreferredProvider)
	var candidates []*model.Account
	for _, prov := range providers {
		accts, err := p.accounts.ListSchedulable(ctx, prov)
		if err != nil {
			return nil, false, err
		}
		candidates = append(candidates, accts...)
		if len(candidates) > 0 {
			break // preferred-then-fallback: stop at first non-empty provider tier
		}
	}

	scored := p.scoreAndFilter(ctx, candidates, req.InFlight)
	if len(scored) == 0 {
		return nil, false, nil
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		if scored[i].account.UsageCount != scored[j].account.UsageCount {
			return scored[i].account.UsageCount < scored[j].account.UsageCount
		}
		return lastUsedBefore(scored[i].account, scored[j].account)
	})

	chosen := scored[0].account
	if err := p.commitPick(ctx, chosen, req.InFlight); err != nil {
		return nil, false, err
	}
	return chosen, false, nil
}

func lastUsedBefore(a, b *model.Account) bool {
	if a.LastUsedAt == nil {
		return true
	}
	if b.LastUsedAt == nil {
		return false
	}
	return a.LastUsedAt.Before(*b.LastUsedAt)
}

func providerCandidates(preferred model.Provider) []model.Provider {
	if preferred != "" {
		return []model.Provider{preferred}
	}
	return []model.Provider{model.ProviderGemini, model.ProviderGeminiAntigravity}
}

func (p *Pool) tryAffinity(ctx context.Context, req PickRequest) *model.Account {
	if req.ConversationID == "" {
		return nil
	}
	accountID, ok, err := p.affinity.Get(ctx, req.ConversationID)
	if err != nil || !ok {
		return nil
	}
	if req.InFlight.Contains(accountID) {
		return nil
	}
	acct, err := p.accounts.GetByID(ctx, accountID)
	if err != nil || acct == nil {
		return nil
	}
	if req.PreferredProvider != "" && acct.Provider != req.PreferredProvider {
		return nil
	}
	if !acct.IsAvailable() || !acct.IsEnabled {
		return nil
	}
	if p.quota.IsExhausted(ctx, acct.ID) {
		return nil
	}
	return acct
}

type scoredAccount struct {
	account *model.Account
	score   float64
}

func (p *Pool) scoreAndFilter(ctx context.Context, accounts []*model.Account, inFlight InFlightSet) []scoredAccount {
	var out []scoredAccount
	for _, acct := range accounts {
		if inFlight.Contains(acct.ID) {
			continue
		}
		if !acct.IsAvailable() {
			continue
		}
		if p.quota.IsExhausted(ctx, acct.ID) {
			continue
		}
		healthScore, hasInfo := p.quota.HealthScore(ctx, acct.ID)
		score := Score(acct, healthScore, hasInfo)
		out = append(out, scoredAccount{account: acct, score: score})
	}
	return out
}

func (p *Pool) commitPick(ctx context.Context, acct *model.Account, inFlight InFlightSet) error {
	now := nowFunc()
	if err := p.accounts.IncrementUsage(ctx, acct.ID, now); err != nil {
		log.Printf("[pool] IncrementUsage(%d) failed: %v", acct.ID, err)
		return err
	}
	acct.UsageCount++
	acct.LastUsedAt = &now
	inFlight.Add(acct.ID)
	return nil
}

// RecordAffinity persists conversationId->accountId on success (spec §4.2/§4.4).
func (p *Pool) RecordAffinity(ctx context.Context, conversationID string, accountID int64) {
	if conversationID == "" {
		return
	}
	if err := p.affinity.Set(ctx, conversationID, accountID, model.AffinityTTL); err != nil {
		log.Printf("[pool] RecordAffinity(%s) failed: %v", conversationID, err)
	}
}

// MarkRateLimited flags resetAfter on the account; zero rows affected is
// logged as a warning, never returned as an error (spec §4.2).
func (p *Pool) MarkRateLimited(ctx context.Context, accountID int64, resetAfter time.Duration) {
	if err := p.accounts.SetRateLimited(ctx, accountID, time.Now().Add(resetAfter)); err != nil {
		log.Printf("[pool] MarkRateLimited(%d) failed: %v", accountID, err)
	}
}

// Disable marks the account permanently unschedulable until admin re-enable.
func (p *Pool) Disable(ctx context.Context, accountID int64) {
	if err := p.accounts.Disable(ctx, accountID); err != nil {
		log.Printf("[pool] Disable(%d) failed: %v", accountID, err)
	}
}
