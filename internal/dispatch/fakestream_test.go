package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunFakeStreamEmitsHeartbeatsThenFinal(t *testing.T) {
	var emitted []FakeStreamChunk
	heartbeat := func() []byte { return []byte(`{"heartbeat":true}`) }
	final := func(content string) []byte { return []byte(`{"content":"` + content + `"}`) }

	fetch := func(ctx context.Context) (string, string, error) {
		time.Sleep(10 * time.Millisecond)
		return "hello world", "", nil
	}

	err := RunFakeStream(context.Background(), fetch, heartbeat, final, func(chunk FakeStreamChunk) error {
		emitted = append(emitted, chunk)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, emitted, 2)
	assert.Contains(t, string(emitted[0].JSON), "heartbeat")
	assert.False(t, emitted[0].Final)
	assert.Contains(t, string(emitted[1].JSON), "hello world")
	assert.True(t, emitted[1].Final)
}

// TestRunFakeStreamHeartbeatDoesNotImplyResponseStarted guards the fix for a
// bug where the handler's emit closure set rc.ResponseStarted from the very
// first (heartbeat) emit, which ran before fetch — i.e. before the dispatch
// loop's first attempt — deterministically tripping the loop's
// response-already-started guard on every fake-streaming request. Only the
// Final-tagged chunk may be treated as "the response has started".
func TestRunFakeStreamHeartbeatDoesNotImplyResponseStarted(t *testing.T) {
	heartbeat := func() []byte { return []byte(`{"heartbeat":true}`) }
	final := func(content string) []byte { return []byte(`{"content":"` + content + `"}`) }

	fetchStarted := make(chan struct{})
	fetch := func(ctx context.Context) (string, string, error) {
		close(fetchStarted)
		return "done", "", nil
	}

	responseStarted := false
	err := RunFakeStream(context.Background(), fetch, heartbeat, final, func(chunk FakeStreamChunk) error {
		if !chunk.Final {
			select {
			case <-fetchStarted:
				t.Fatal("fetch must not have started before the first heartbeat is emitted")
			default:
			}
			assert.False(t, responseStarted, "a heartbeat must never flip responseStarted")
			return nil
		}
		responseStarted = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, responseStarted)
}

func TestApplyContentFallback(t *testing.T) {
	assert.Equal(t, "actual text", applyContentFallback("actual text", "reasoning"))
	assert.Equal(t, thinkingFallback, applyContentFallback("", "some reasoning"))
	assert.Equal(t, emptyFallback, applyContentFallback("", ""))
}

func TestFrameSSE(t *testing.T) {
	framed := FrameSSE([]byte(`{"a":1}`))
	assert.Equal(t, "data: {\"a\":1}\n\n", string(framed))
}
