package repository

import (
	"context"
	"log"
	"time"

	"github.com/arcrelay/geminiproxy/internal/model"

	"gorm.io/gorm"
)

// AccountRepository is the gorm-backed implementation of pool.AccountRepository.
// Trimmed from the teacher's same-named file: the admin-dashboard surface
// (groups, proxies, pagination, bulk CRUD) has no equivalent in this domain,
// so only the dispatch-loop-facing methods survive.
type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	var account model.Account
	if err := r.db.WithContext(ctx).First(&account, id).Error; err != nil {
		if gorm.ErrRecordNotFound == err {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// ListSchedulable returns every account of provider that is enabled and
// currently past its rate-limit window (spec §4.2's candidate list; final
// scoring and in-flight exclusion happen in internal/pool).
func (r *AccountRepository) ListSchedulable(ctx context.Context, provider model.Provider) ([]*model.Account, error) {
	var accounts []*model.Account
	now := time.Now()
	err := r.db.WithContext(ctx).
		Where("provider = ? AND is_enabled = ?", provider, true).
		Where("(is_rate_limited = false OR rate_limit_reset_time IS NULL OR rate_limit_reset_time <= ?)", now).
		Find(&accounts).Error
	return accounts, err
}

// IncrementUsage bumps usageCount and stamps lastUsedAt atomically, used by
// internal/pool.Pool.commitPick on every successful selection.
func (r *AccountRepository) IncrementUsage(ctx context.Context, id int64, now time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Account{}).Where("id = ?", id).
		Updates(map[string]any{
			"usage_count":  gorm.Expr("usage_count + 1"),
			"last_used_at": now,
		}).Error
}

// SetRateLimited flags the account rate-limited until resetAt (spec §4.2/§4.4).
func (r *AccountRepository) SetRateLimited(ctx context.Context, id int64, resetAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.Account{}).Where("id = ?", id).
		Updates(map[string]any{
			"is_rate_limited":       true,
			"rate_limit_reset_time": resetAt,
		})
	if res.Error == nil && res.RowsAffected == 0 {
		log.Printf("[repository] SetRateLimited(%d): zero rows affected", id)
	}
	return res.Error
}

// Disable marks the account permanently unschedulable until admin re-enable.
func (r *AccountRepository) Disable(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&model.Account{}).Where("id = ?", id).
		Update("is_enabled", false).Error
}

// UpdateCredentials persists a refreshed access/refresh token triple after
// internal/oauthclient.Refresher.Refresh succeeds.
func (r *AccountRepository) UpdateCredentials(ctx context.Context, id int64, credentials model.JSONB) error {
	return r.db.WithContext(ctx).Model(&model.Account{}).Where("id = ?", id).
		Update("credentials", credentials).Error
}
