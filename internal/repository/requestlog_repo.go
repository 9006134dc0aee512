package repository

import (
	"context"
	"time"

	"github.com/arcrelay/geminiproxy/internal/model"

	"gorm.io/gorm"
)

// RequestLogRepository is the gorm-backed implementation of
// logpipeline.Repository and the log-reading half of aggregator.Repository.
// Adapted from the teacher's usage_log_repo.go: same
// Create/GetByID/flat-column-update shape, trimmed of the admin dashboard's
// paginated listing and RPM/TPM rolling-window endpoints (no dashboard in
// this module).
type RequestLogRepository struct {
	db *gorm.DB
}

func NewRequestLogRepository(db *gorm.DB) *RequestLogRepository {
	return &RequestLogRepository{db: db}
}

func (r *RequestLogRepository) Create(ctx context.Context, entry *model.RequestLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *RequestLogRepository) Update(ctx context.Context, id int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.RequestLog{}).Where("id = ?", id).Updates(fields).Error
}

func (r *RequestLogRepository) GetByID(ctx context.Context, id int64) (*model.RequestLog, error) {
	var entry model.RequestLog
	if err := r.db.WithContext(ctx).First(&entry, id).Error; err != nil {
		if gorm.ErrRecordNotFound == err {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// EarliestLogHour returns the UTC hour boundary of the very first
// request_logs row, used by the aggregator's startup catch-up walk.
func (r *RequestLogRepository) EarliestLogHour(ctx context.Context) (time.Time, bool, error) {
	var entry model.RequestLog
	err := r.db.WithContext(ctx).Order("request_start_time ASC").Limit(1).Find(&entry).Error
	if err != nil {
		return time.Time{}, false, err
	}
	if entry.ID == 0 {
		return time.Time{}, false, nil
	}
	return entry.RequestStartTime.UTC().Truncate(time.Hour), true, nil
}

// LogsInHour returns every finalised log whose requestStartTime falls in
// [hourStart, hourEnd) — the window the hourly aggregator folds per hour.
func (r *RequestLogRepository) LogsInHour(ctx context.Context, hourStart, hourEnd time.Time) ([]model.RequestLog, error) {
	var logs []model.RequestLog
	err := r.db.WithContext(ctx).
		Where("request_start_time >= ? AND request_start_time < ?", hourStart, hourEnd).
		Where("request_end_time IS NOT NULL").
		Find(&logs).Error
	return logs, err
}
