package model

import "time"

// RequestLog is one row per inbound request, written through the async
// log pipeline (internal/logpipeline). See spec §3/§4.5 for lifecycle.
type RequestLog struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	RequestID      string    `gorm:"size:36;not null;uniqueIndex" json:"request_id"`
	ConversationID string    `gorm:"size:128;index" json:"conversation_id"`
	SessionID      string    `gorm:"size:128" json:"session_id"`
	AccountID      *int64    `gorm:"index" json:"account_id"`
	Provider       string    `gorm:"size:32" json:"provider"`
	Model          string    `gorm:"size:128;index" json:"model"`
	IsStreaming    bool      `json:"is_streaming"`
	MessageSummary string    `gorm:"size:512" json:"message_summary"`

	StatusCode   *int   `json:"status_code"`
	IsSuccess    bool   `gorm:"index" json:"is_success"`
	ErrorMessage string `gorm:"type:text" json:"error_message"`

	RetryCount    int `json:"retry_count"`
	TotalAttempts int `json:"total_attempts"`

	PromptTokens     *int `json:"prompt_tokens"`
	CompletionTokens *int `json:"completion_tokens"`
	TotalTokens      *int `json:"total_tokens"`

	RequestStartTime  time.Time  `gorm:"not null;index" json:"request_start_time"`
	RequestEndTime    *time.Time `json:"request_end_time"`
	DurationMs        *int64     `json:"duration_ms"`
	TimeToFirstByteMs *int64     `json:"time_to_first_byte_ms"`

	IsRateLimited         bool `json:"is_rate_limited"`
	RateLimitResetSeconds *int `json:"rate_limit_reset_seconds"`

	SessionStickinessUsed bool `json:"session_stickiness_used"`

	ClientIP   string `gorm:"size:64" json:"client_ip"`
	UserAgent  string `gorm:"size:512" json:"user_agent"`
	Originator string `gorm:"size:64" json:"originator"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (RequestLog) TableName() string { return "request_logs" }

// Finalised reports whether this record has reached a terminal state.
func (r *RequestLog) Finalised() bool {
	return r.RequestEndTime != nil
}
