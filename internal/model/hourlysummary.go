package model

import "time"

// HourlySummaryOverall is the all-traffic rollup for one UTC hour.
// An hour is aggregated at most once: the presence of a row for
// HourStartTime is the idempotency key (see internal/aggregator).
type HourlySummaryOverall struct {
	ID            int64     `gorm:"primaryKey" json:"id"`
	HourStartTime time.Time `gorm:"not null;uniqueIndex" json:"hour_start_time"`

	TotalRequests      int64   `json:"total_requests"`
	SuccessRequests     int64   `json:"success_requests"`
	SuccessRate         float64 `json:"success_rate"`
	TotalDurationMs     int64   `json:"total_duration_ms"`
	MinDurationMs       int64   `json:"min_duration_ms"`
	MaxDurationMs       int64   `json:"max_duration_ms"`
	AvgDurationMs       float64 `json:"avg_duration_ms"`
	P50DurationMs       int64   `json:"p50_duration_ms"`
	P95DurationMs       int64   `json:"p95_duration_ms"`
	P99DurationMs       int64   `json:"p99_duration_ms"`
	TotalPromptTokens   int64   `json:"total_prompt_tokens"`
	TotalCompletionToks int64   `json:"total_completion_tokens"`
	AvgTTFBMs           float64 `json:"avg_ttfb_ms"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (HourlySummaryOverall) TableName() string { return "hourly_summary_overall" }

// HourlySummaryByModel is grouped by (model, provider) within one hour.
type HourlySummaryByModel struct {
	ID            int64     `gorm:"primaryKey" json:"id"`
	HourStartTime time.Time `gorm:"not null;uniqueIndex:idx_hsm_hour_model" json:"hour_start_time"`
	Model         string    `gorm:"size:128;not null;uniqueIndex:idx_hsm_hour_model" json:"model"`
	Provider      string    `gorm:"size:32;not null;uniqueIndex:idx_hsm_hour_model" json:"provider"`

	TotalRequests   int64   `json:"total_requests"`
	SuccessRequests int64   `json:"success_requests"`
	SuccessRate     float64 `json:"success_rate"`
	AvgDurationMs   float64 `json:"avg_duration_ms"`
	P50DurationMs   int64   `json:"p50_duration_ms"`
	P95DurationMs   int64   `json:"p95_duration_ms"`
	P99DurationMs   int64   `json:"p99_duration_ms"`
	TotalTokens     int64   `json:"total_tokens"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (HourlySummaryByModel) TableName() string { return "hourly_summary_by_model" }

// HourlySummaryByAccount is grouped by accountId within one hour.
type HourlySummaryByAccount struct {
	ID              int64     `gorm:"primaryKey" json:"id"`
	HourStartTime   time.Time `gorm:"not null;uniqueIndex:idx_hsa_hour_account" json:"hour_start_time"`
	AccountID       int64     `gorm:"not null;uniqueIndex:idx_hsa_hour_account" json:"account_id"`
	AccountName     string    `gorm:"size:100" json:"account_name"`
	AccountProvider string    `gorm:"size:32" json:"account_provider"`

	TotalRequests   int64   `json:"total_requests"`
	SuccessRequests int64   `json:"success_requests"`
	SuccessRate     float64 `json:"success_rate"`
	AvgDurationMs   float64 `json:"avg_duration_ms"`
	P50DurationMs   int64   `json:"p50_duration_ms"`
	P95DurationMs   int64   `json:"p95_duration_ms"`
	P99DurationMs   int64   `json:"p99_duration_ms"`
	TotalTokens     int64   `json:"total_tokens"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (HourlySummaryByAccount) TableName() string { return "hourly_summary_by_account" }
