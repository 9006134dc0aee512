package dispatch

import (
	"context"
	"encoding/json"
	"time"
)

const (
	heartbeatInterval = 3 * time.Second
	thinkingFallback  = "[模型正在思考中，请稍后再试或重新提问]"
	emptyFallback     = "[响应为空，请重新尝试]"
)

// FakeStreamChunk is one SSE frame emitted by RunFakeStream: either a
// zero-content heartbeat or the final content-bearing chunk.
type FakeStreamChunk struct {
	JSON  []byte
	Final bool
}

// FetchFunc performs the actual non-streaming upstream round trip and
// returns the buffered response's content text and reasoning text, which
// the fallback rules below choose between.
type FetchFunc func(ctx context.Context) (content, reasoning string, err error)

// HeartbeatBuilder renders a single zero-content chunk in the client's wire
// format (the caller's closure supplies the response id and model name).
type HeartbeatBuilder func() []byte

// FinalChunkBuilder renders the terminal content-bearing chunk once the
// buffered fetch completes (with fallback substitution already applied).
type FinalChunkBuilder func(content string) []byte

// RunFakeStream implements spec §4.4's fake-streaming mode (triggered by
// the `假流式/` prefix with stream=true): emit a heartbeat immediately,
// launch the real non-streaming fetch in the background, keep emitting
// heartbeats every 3s while it's in flight, then emit one final content
// chunk. The caller writes the [DONE] marker after it returns. Grounded on the teacher's fire-and-forget
// goroutine + channel hand-off idiom (billing_cache_service.go /
// RecordUsage's async bookkeeping).
//
// emit receives a FakeStreamChunk tagged Final only for the terminal
// content-bearing chunk. Heartbeats are disposable placeholders flushed
// before the real upstream attempt (fetch, which drives the retryable
// dispatch loop) has even started — the caller must not mistake a flushed
// heartbeat for "the response has started" the way it would a real
// upstream byte, or the underlying loop would be wrongly barred from
// retrying once fetch actually runs.
func RunFakeStream(ctx context.Context, fetch FetchFunc, heartbeat HeartbeatBuilder, final FinalChunkBuilder, emit func(chunk FakeStreamChunk) error) error {
	if err := emit(FakeStreamChunk{JSON: heartbeat()}); err != nil {
		return err
	}

	type fetchResult struct {
		content   string
		reasoning string
		err       error
	}
	resultCh := make(chan fetchResult, 1)
	go func() {
		content, reasoning, err := fetch(ctx)
		resultCh <- fetchResult{content: content, reasoning: reasoning, err: err}
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := emit(FakeStreamChunk{JSON: heartbeat()}); err != nil {
				return err
			}
		case res := <-resultCh:
			if res.err != nil {
				return res.err
			}
			content := applyContentFallback(res.content, res.reasoning)
			return emit(FakeStreamChunk{JSON: final(content), Final: true})
		}
	}
}

// applyContentFallback implements the two fallback rules from spec §4.4:
// empty content with non-empty reasoning substitutes a "thinking" message;
// both empty substitutes an "empty response" message.
func applyContentFallback(content, reasoning string) string {
	if content != "" {
		return content
	}
	if reasoning != "" {
		return thinkingFallback
	}
	return emptyFallback
}

// DoneMarker is the terminal SSE line clients expect after the final chunk.
const DoneMarker = "data: [DONE]\n\n"

// FrameSSE wraps a JSON payload in the "data: ...\n\n" SSE envelope
// (spec §4.4's streaming framing rule).
func FrameSSE(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+8)
	out = append(out, []byte("data: ")...)
	out = append(out, payload...)
	out = append(out, []byte("\n\n")...)
	return out
}

// MarshalOrEmpty is a small helper for building heartbeat/final chunk JSON
// without repeating error-discard boilerplate at every call site.
func MarshalOrEmpty(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}
