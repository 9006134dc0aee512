package repository

import (
	"context"
	"time"

	"github.com/arcrelay/geminiproxy/internal/model"
)

// AggregatorRepository satisfies aggregator.Repository by composing the log
// and summary repositories: aggregation reads from request_logs and writes
// to the three hourly_summary_* tables, which this module keeps as two
// separate repositories (mirroring the teacher's one-gorm-model-per-file
// convention) rather than one wide repository spanning both tables.
type AggregatorRepository struct {
	logs    *RequestLogRepository
	summary *HourlySummaryRepository
}

func NewAggregatorRepository(logs *RequestLogRepository, summary *HourlySummaryRepository) *AggregatorRepository {
	return &AggregatorRepository{logs: logs, summary: summary}
}

func (r *AggregatorRepository) EarliestLogHour(ctx context.Context) (time.Time, bool, error) {
	return r.logs.EarliestLogHour(ctx)
}

func (r *AggregatorRepository) LogsInHour(ctx context.Context, hourStart, hourEnd time.Time) ([]model.RequestLog, error) {
	return r.logs.LogsInHour(ctx, hourStart, hourEnd)
}

func (r *AggregatorRepository) AnySummaryExists(ctx context.Context) (bool, error) {
	return r.summary.AnySummaryExists(ctx)
}

func (r *AggregatorRepository) HourAlreadyAggregated(ctx context.Context, hourStart time.Time) (bool, error) {
	return r.summary.HourAlreadyAggregated(ctx, hourStart)
}

func (r *AggregatorRepository) SaveHour(ctx context.Context, overall *model.HourlySummaryOverall, byModel []*model.HourlySummaryByModel, byAccount []*model.HourlySummaryByAccount) error {
	return r.summary.SaveHour(ctx, overall, byModel, byAccount)
}

func (r *AggregatorRepository) AccountNameProvider(ctx context.Context, accountID int64) (string, string, error) {
	return r.summary.AccountNameProvider(ctx, accountID)
}
