package dispatch

import "context"

// Recorder is the logging surface the dispatch loop drives (spec §4.4
// step 6 / §4.5). Implemented by internal/logpipeline.Producer; kept as a
// narrow interface here so the loop can be tested without a real queue.
type Recorder interface {
	// UpdateRetry is called once per attempt, including the first.
	UpdateRetry(ctx context.Context, requestID string, attemptNumber int, accountID int64)
	// RecordSuccess finalises the log for a successful terminal attempt.
	RecordSuccess(ctx context.Context, result SuccessResult)
	// RecordFailure finalises the log for a terminal failure.
	RecordFailure(ctx context.Context, result FailureResult)
}

// SuccessResult is everything the log pipeline needs to finalise a
// successful request's record.
type SuccessResult struct {
	RequestID             string
	AccountID             int64
	StatusCode            int
	TotalAttempts         int
	IsRateLimited         bool
	SessionStickinessUsed bool
	TimeToFirstByteMs     *int64
	DurationMs            int64
	PromptTokens          *int
	CompletionTokens      *int
	TotalTokens           *int
}

// FailureResult is everything the log pipeline needs to finalise a failed
// request's record.
type FailureResult struct {
	RequestID     string
	AccountID     *int64
	StatusCode    int
	ErrorMessage  string
	TotalAttempts int
	IsRateLimited bool
	DurationMs    int64
}
