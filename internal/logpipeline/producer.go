// Package logpipeline implements the async request log pipeline (spec
// §4.5): a fire-and-forget producer feeding an in-process queue, drained by
// a single consumer goroutine that batches writes and resolves the
// temp-id→real-id mapping created by the database. Grounded on the
// teacher's only async-bookkeeping precedent, DeferredService's sync.Map +
// periodic-flush design (internal/service/deferred_service.go), generalized
// from "batch last-used timestamp updates" to "batch CreateLog/UpdateRetry/
// RecordSuccess/RecordFailure queue items."
package logpipeline

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arcrelay/geminiproxy/internal/dispatch"
	"github.com/arcrelay/geminiproxy/internal/model"
	"github.com/arcrelay/geminiproxy/internal/pkg/geminicli"
)

// Repository is the persistence surface the consumer drives.
type Repository interface {
	Create(ctx context.Context, entry *model.RequestLog) error
	Update(ctx context.Context, id int64, fields map[string]any) error
}

type opType int

const (
	opCreate opType = iota
	opUpdate
)

type queueItem struct {
	op        opType
	tempLogID int64
	log       *model.RequestLog // set only for opCreate
	fields    map[string]any    // set only for opUpdate
	terminal  bool              // true for RecordSuccess/RecordFailure updates
	retries   int
}

// Producer is the request-path-facing half of the pipeline: every method
// enqueues and returns immediately. Satisfies dispatch.Recorder.
type Producer struct {
	nextTempID int64 // atomic

	mu  sync.Mutex
	buf []queueItem

	notify chan struct{}

	// requestIDToTemp resolves the UUID RequestLog.RequestID the dispatch
	// loop speaks in back to the process-local tempLogId this pipeline
	// actually tracks. Populated by CreateLog, consumed (and removed) by
	// the terminal Record* call for that request.
	requestIDToTemp sync.Map // string -> int64
}

func NewProducer() *Producer {
	return &Producer{notify: make(chan struct{}, 1)}
}

// CreateLog enqueues the initial record for a newly-arrived request and
// returns the tempLogId and start timestamp the caller should thread
// through the rest of the request lifecycle.
func (p *Producer) CreateLog(ctx context.Context, entry *model.RequestLog) (tempLogID int64, startTime time.Time) {
	id := atomic.AddInt64(&p.nextTempID, 1)
	startTime = time.Now()
	entry.RequestStartTime = startTime
	p.requestIDToTemp.Store(entry.RequestID, id)
	p.enqueue(queueItem{op: opCreate, tempLogID: id, log: entry})
	return id, startTime
}

// UpdateRetry implements dispatch.Recorder.
func (p *Producer) UpdateRetry(ctx context.Context, requestID string, attemptNumber int, accountID int64) {
	tempID, ok := p.lookupTemp(requestID)
	if !ok {
		log.Printf("[logpipeline] UpdateRetry(%s): no pending create, dropped", requestID)
		return
	}
	p.enqueue(queueItem{op: opUpdate, tempLogID: tempID, fields: map[string]any{
		"retry_count":    attemptNumber - 1,
		"total_attempts": attemptNumber,
		"account_id":     accountID,
	}})
}

// RecordSuccess implements dispatch.Recorder.
func (p *Producer) RecordSuccess(ctx context.Context, result dispatch.SuccessResult) {
	tempID, ok := p.lookupTemp(result.RequestID)
	if !ok {
		log.Printf("[logpipeline] RecordSuccess(%s): no pending create, dropped", result.RequestID)
		return
	}
	fields := map[string]any{
		"account_id":              result.AccountID,
		"status_code":             result.StatusCode,
		"is_success":              true,
		"total_attempts":          result.TotalAttempts,
		"is_rate_limited":         result.IsRateLimited,
		"session_stickiness_used": result.SessionStickinessUsed,
		"duration_ms":             result.DurationMs,
		"request_end_time":        time.Now(),
	}
	if result.TimeToFirstByteMs != nil {
		fields["time_to_first_byte_ms"] = *result.TimeToFirstByteMs
	}
	if result.PromptTokens != nil {
		fields["prompt_tokens"] = *result.PromptTokens
	}
	if result.CompletionTokens != nil {
		fields["completion_tokens"] = *result.CompletionTokens
	}
	if result.TotalTokens != nil {
		fields["total_tokens"] = *result.TotalTokens
	}
	p.requestIDToTemp.Delete(result.RequestID)
	p.enqueue(queueItem{op: opUpdate, tempLogID: tempID, fields: fields, terminal: true})
}

// RecordFailure implements dispatch.Recorder.
func (p *Producer) RecordFailure(ctx context.Context, result dispatch.FailureResult) {
	tempID, ok := p.lookupTemp(result.RequestID)
	if !ok {
		log.Printf("[logpipeline] RecordFailure(%s): no pending create, dropped", result.RequestID)
		return
	}
	fields := map[string]any{
		"status_code":     result.StatusCode,
		"is_success":      false,
		"error_message":   geminicli.SanitizeBodyForLogs(result.ErrorMessage),
		"total_attempts":  result.TotalAttempts,
		"is_rate_limited": result.IsRateLimited,
		"duration_ms":     result.DurationMs,
		"request_end_time": time.Now(),
	}
	if result.AccountID != nil {
		fields["account_id"] = *result.AccountID
	}
	p.requestIDToTemp.Delete(result.RequestID)
	p.enqueue(queueItem{op: opUpdate, tempLogID: tempID, fields: fields, terminal: true})
}

func (p *Producer) lookupTemp(requestID string) (int64, bool) {
	v, ok := p.requestIDToTemp.Load(requestID)
	if !ok {
		return 0, false
	}
	return v.(int64), true
}

func (p *Producer) enqueue(item queueItem) {
	p.mu.Lock()
	p.buf = append(p.buf, item)
	full := len(p.buf) >= batchSize
	p.mu.Unlock()
	if full {
		select {
		case p.notify <- struct{}{}:
		default:
		}
	}
}

// drain returns and clears the current buffer. Called only by the consumer.
func (p *Producer) drain() []queueItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buf) == 0 {
		return nil
	}
	items := p.buf
	p.buf = nil
	return items
}

// requeue puts undeliverable update items back at the front of the buffer
// for the next flush cycle. Called only by the consumer.
func (p *Producer) requeue(items []queueItem) {
	if len(items) == 0 {
		return
	}
	p.mu.Lock()
	p.buf = append(items, p.buf...)
	p.mu.Unlock()
}

func (p *Producer) pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf)
}
