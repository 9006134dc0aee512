package repository

import (
	"context"
	"time"

	"github.com/arcrelay/geminiproxy/internal/model"

	"gorm.io/gorm"
)

// HourlySummaryRepository implements the write/idempotency half of
// aggregator.Repository. New; grounded on the teacher's private-gorm-
// model-per-file idiom (usage_log_repo.go) generalized to three sibling
// tables sharing one hourStartTime-keyed idempotency rule (spec §3/§4.6).
type HourlySummaryRepository struct {
	db          *gorm.DB
	accountRepo *AccountRepository
}

func NewHourlySummaryRepository(db *gorm.DB, accountRepo *AccountRepository) *HourlySummaryRepository {
	return &HourlySummaryRepository{db: db, accountRepo: accountRepo}
}

// AnySummaryExists reports whether any overall-summary row exists at all —
// the signal the aggregator uses to decide whether to run its startup
// catch-up walk.
func (r *HourlySummaryRepository) AnySummaryExists(ctx context.Context) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.HourlySummaryOverall{}).Limit(1).Count(&count).Error
	return count > 0, err
}

// HourAlreadyAggregated is the per-hour idempotency check (spec §4.6:
// presence of a row for hourStartTime).
func (r *HourlySummaryRepository) HourAlreadyAggregated(ctx context.Context, hourStart time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.HourlySummaryOverall{}).
		Where("hour_start_time = ?", hourStart).Count(&count).Error
	return count > 0, err
}

// SaveHour persists all three summary variants for one hour in a single
// transaction so a partial write never leaves the idempotency check
// (keyed on the overall row) inconsistent with the by-model/by-account rows.
func (r *HourlySummaryRepository) SaveHour(ctx context.Context, overall *model.HourlySummaryOverall, byModel []*model.HourlySummaryByModel, byAccount []*model.HourlySummaryByAccount) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(overall).Error; err != nil {
			return err
		}
		if len(byModel) > 0 {
			if err := tx.Create(&byModel).Error; err != nil {
				return err
			}
		}
		if len(byAccount) > 0 {
			if err := tx.Create(&byAccount).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// AccountNameProvider resolves an account's display name/provider at
// aggregation time (spec §4.6: "resolved from the account store at
// aggregation time", not snapshotted onto the request log).
func (r *HourlySummaryRepository) AccountNameProvider(ctx context.Context, accountID int64) (string, string, error) {
	account, err := r.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return "", "", err
	}
	if account == nil {
		return "", "", nil
	}
	return account.Name, string(account.Provider), nil
}
