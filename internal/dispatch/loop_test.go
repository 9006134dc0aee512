package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arcrelay/geminiproxy/internal/model"
	"github.com/arcrelay/geminiproxy/internal/oauthclient"
	"github.com/arcrelay/geminiproxy/internal/pool"
	"github.com/arcrelay/geminiproxy/internal/quota"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	retries   []int
	successes []SuccessResult
	failures  []FailureResult
}

func (f *fakeRecorder) UpdateRetry(ctx context.Context, requestID string, attemptNumber int, accountID int64) {
	f.retries = append(f.retries, attemptNumber)
}
func (f *fakeRecorder) RecordSuccess(ctx context.Context, result SuccessResult) {
	f.successes = append(f.successes, result)
}
func (f *fakeRecorder) RecordFailure(ctx context.Context, result FailureResult) {
	f.failures = append(f.failures, result)
}

type fakeAccountsRepo struct {
	accounts []*model.Account
}

func (f *fakeAccountsRepo) ListSchedulable(ctx context.Context, provider model.Provider) ([]*model.Account, error) {
	var out []*model.Account
	for _, a := range f.accounts {
		if a.Provider == provider && a.IsAvailable() {
			out = append(out, a)
		}
	}
	return out, nil
}
func (f *fakeAccountsRepo) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	for _, a := range f.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}
func (f *fakeAccountsRepo) IncrementUsage(ctx context.Context, id int64, now time.Time) error { return nil }
func (f *fakeAccountsRepo) SetRateLimited(ctx context.Context, id int64, resetAt time.Time) error {
	for _, a := range f.accounts {
		if a.ID == id {
			a.IsRateLimited = true
			a.RateLimitResetTime = &resetAt
		}
	}
	return nil
}
func (f *fakeAccountsRepo) Disable(ctx context.Context, id int64) error {
	for _, a := range f.accounts {
		if a.ID == id {
			a.IsEnabled = false
		}
	}
	return nil
}

type fakeAffinityRepo struct{}

func (fakeAffinityRepo) Get(ctx context.Context, conversationID string) (int64, bool, error) {
	return 0, false, nil
}
func (fakeAffinityRepo) Set(ctx context.Context, conversationID string, accountID int64, ttl time.Duration) error {
	return nil
}

type fakeQuotaStore struct{ data map[int64][]byte }

func (f *fakeQuotaStore) Get(ctx context.Context, accountID int64) ([]byte, bool, error) {
	d, ok := f.data[accountID]
	return d, ok, nil
}
func (f *fakeQuotaStore) Set(ctx context.Context, accountID int64, data []byte) error {
	f.data[accountID] = data
	return nil
}

type noopRefresher struct{}

func (noopRefresher) Refresh(ctx context.Context, account *model.Account) (*oauthclient.TokenResult, error) {
	return &oauthclient.TokenResult{AccessToken: "tok", Expiry: time.Now().Add(time.Hour)}, nil
}

func newTestLoop(t *testing.T, handler http.HandlerFunc, accounts []*model.Account) (*Loop, *fakeRecorder, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)

	repo := &fakeAccountsRepo{accounts: accounts}
	p := pool.New(repo, fakeAffinityRepo{}, quota.NewCache(&fakeQuotaStore{data: map[int64][]byte{}}))
	q := quota.NewCache(&fakeQuotaStore{data: map[int64][]byte{}})
	transport := NewTransportWithClients(server.Client(), server.Client())
	rec := &fakeRecorder{}

	loop := NewLoop(p, q, noopRefresher{}, transport, rec, Config{
		MaxRetries:         5,
		CodeAssistEndpoint: server.URL,
		AntigravityAPIURL:  server.URL,
	})
	return loop, rec, server
}

func testAccount(id int64) *model.Account {
	return &model.Account{
		ID:          id,
		Provider:    model.ProviderGemini,
		IsEnabled:   true,
		Credentials: model.JSONB{"access_token": "tok", "refresh_token": "refresh"},
	}
}

func TestLoopSucceedsFirstAttempt(t *testing.T) {
	loop, rec, server := newTestLoop(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"candidates":[]}`))
	}, []*model.Account{testAccount(1)})
	defer server.Close()

	rc := NewRequestContext("req-1", "", "", "", "", model.ProviderGemini, false)
	outcome, err := loop.Run(context.Background(), rc, []byte(`{}`))
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, int64(1), outcome.Account.ID)
	assert.Len(t, rec.retries, 1)
	outcome.Response.Body.Close()
}

func TestLoopRetriesOn429ThenSucceeds(t *testing.T) {
	attempts := 0
	loop, rec, server := newTestLoop(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limited"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"candidates":[]}`))
	}, []*model.Account{testAccount(1), testAccount(2)})
	defer server.Close()

	rc := NewRequestContext("req-2", "", "", "", "", model.ProviderGemini, false)
	outcome, err := loop.Run(context.Background(), rc, []byte(`{}`))
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Len(t, rec.retries, 2)
	outcome.Response.Body.Close()
}

func TestLoopTerminalOnClientError(t *testing.T) {
	loop, _, server := newTestLoop(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_argument: bad request"}`))
	}, []*model.Account{testAccount(1)})
	defer server.Close()

	rc := NewRequestContext("req-3", "", "", "", "", model.ProviderGemini, false)
	_, err := loop.Run(context.Background(), rc, []byte(`{}`))
	require.Error(t, err)
	var termErr *TerminalError
	require.ErrorAs(t, err, &termErr)
	assert.Equal(t, ClientError, termErr.Classification)
}

func TestLoopPoolExhaustedWhenNoAccounts(t *testing.T) {
	loop, _, server := newTestLoop(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, nil)
	defer server.Close()

	rc := NewRequestContext("req-4", "", "", "", "", model.ProviderGemini, false)
	_, err := loop.Run(context.Background(), rc, []byte(`{}`))
	require.Error(t, err)
	var termErr *TerminalError
	require.ErrorAs(t, err, &termErr)
	assert.Equal(t, PoolExhausted, termErr.Classification)
}
