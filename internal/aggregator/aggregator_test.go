package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/arcrelay/geminiproxy/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentileClampsIndex(t *testing.T) {
	sorted := []int64{10, 20, 30, 40, 50}
	assert.Equal(t, int64(30), percentile(sorted, 0.50))
	assert.Equal(t, int64(50), percentile(sorted, 0.95))
	assert.Equal(t, int64(0), percentile(nil, 0.50))
}

func ptrInt64(v int64) *int64 { return &v }
func ptrInt(v int) *int       { return &v }

func TestBuildOverallComputesRatesAndPercentiles(t *testing.T) {
	hour := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	logs := []model.RequestLog{
		{IsSuccess: true, DurationMs: ptrInt64(100), PromptTokens: ptrInt(10), CompletionTokens: ptrInt(5), TimeToFirstByteMs: ptrInt64(20)},
		{IsSuccess: true, DurationMs: ptrInt64(200), PromptTokens: ptrInt(20), CompletionTokens: ptrInt(10)},
		{IsSuccess: false, DurationMs: ptrInt64(300)},
	}

	overall := buildOverall(hour, logs)
	assert.Equal(t, int64(3), overall.TotalRequests)
	assert.Equal(t, int64(2), overall.SuccessRequests)
	assert.InDelta(t, 66.666, overall.SuccessRate, 0.01)
	assert.Equal(t, int64(100), overall.MinDurationMs)
	assert.Equal(t, int64(300), overall.MaxDurationMs)
	assert.Equal(t, int64(600), overall.TotalDurationMs)
	assert.Equal(t, int64(30), overall.TotalPromptTokens)
	assert.Equal(t, int64(15), overall.TotalCompletionToks)
	assert.Equal(t, 20.0, overall.AvgTTFBMs)
}

func TestBuildByModelGroupsByModelAndProvider(t *testing.T) {
	hour := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	logs := []model.RequestLog{
		{Model: "gemini-2.5-pro", Provider: "gemini", IsSuccess: true, DurationMs: ptrInt64(100), TotalTokens: ptrInt(50)},
		{Model: "gemini-2.5-pro", Provider: "gemini", IsSuccess: true, DurationMs: ptrInt64(200), TotalTokens: ptrInt(60)},
		{Model: "gemini-2.5-flash", Provider: "gemini", IsSuccess: false, DurationMs: ptrInt64(50), TotalTokens: ptrInt(10)},
	}

	byModel := buildByModel(hour, logs)
	require.Len(t, byModel, 2)

	var pro, flash *model.HourlySummaryByModel
	for _, m := range byModel {
		switch m.Model {
		case "gemini-2.5-pro":
			pro = m
		case "gemini-2.5-flash":
			flash = m
		}
	}
	require.NotNil(t, pro)
	require.NotNil(t, flash)
	assert.Equal(t, int64(2), pro.TotalRequests)
	assert.Equal(t, int64(110), pro.TotalTokens)
	assert.Equal(t, int64(1), flash.TotalRequests)
	assert.Equal(t, float64(0), flash.SuccessRate)
}

type fakeAggRepo struct {
	summaryExists    bool
	hourAggregated   map[time.Time]bool
	logsByHour       map[time.Time][]model.RequestLog
	earliestHour     time.Time
	hasEarliest      bool
	savedHours       []time.Time
	accountNameByID  map[int64]string
}

func (f *fakeAggRepo) EarliestLogHour(ctx context.Context) (time.Time, bool, error) {
	return f.earliestHour, f.hasEarliest, nil
}
func (f *fakeAggRepo) AnySummaryExists(ctx context.Context) (bool, error) {
	return f.summaryExists, nil
}
func (f *fakeAggRepo) HourAlreadyAggregated(ctx context.Context, hourStart time.Time) (bool, error) {
	return f.hourAggregated[hourStart], nil
}
func (f *fakeAggRepo) LogsInHour(ctx context.Context, hourStart, hourEnd time.Time) ([]model.RequestLog, error) {
	return f.logsByHour[hourStart], nil
}
func (f *fakeAggRepo) SaveHour(ctx context.Context, overall *model.HourlySummaryOverall, byModel []*model.HourlySummaryByModel, byAccount []*model.HourlySummaryByAccount) error {
	f.savedHours = append(f.savedHours, overall.HourStartTime)
	if f.hourAggregated == nil {
		f.hourAggregated = map[time.Time]bool{}
	}
	f.hourAggregated[overall.HourStartTime] = true
	return nil
}
func (f *fakeAggRepo) AccountNameProvider(ctx context.Context, accountID int64) (string, string, error) {
	return f.accountNameByID[accountID], "gemini", nil
}

func TestAggregateHourSkipsWhenAlreadyAggregated(t *testing.T) {
	hour := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	repo := &fakeAggRepo{hourAggregated: map[time.Time]bool{hour: true}}
	a := New(repo)

	err := a.aggregateHour(context.Background(), hour)
	require.NoError(t, err)
	assert.Empty(t, repo.savedHours)
}

func TestAggregateHourSkipsWhenNoLogs(t *testing.T) {
	hour := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	repo := &fakeAggRepo{hourAggregated: map[time.Time]bool{}, logsByHour: map[time.Time][]model.RequestLog{}}
	a := New(repo)

	err := a.aggregateHour(context.Background(), hour)
	require.NoError(t, err)
	assert.Empty(t, repo.savedHours)
}

func TestAggregateHourSavesWhenLogsPresent(t *testing.T) {
	hour := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	repo := &fakeAggRepo{
		hourAggregated: map[time.Time]bool{},
		logsByHour: map[time.Time][]model.RequestLog{
			hour: {{IsSuccess: true, DurationMs: ptrInt64(10)}},
		},
	}
	a := New(repo)

	err := a.aggregateHour(context.Background(), hour)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{hour}, repo.savedHours)
}

func TestCatchUpWalksFromEarliestHourWhenNoSummariesExist(t *testing.T) {
	now := time.Now().UTC()
	earliest := now.Add(-3 * time.Hour).Truncate(time.Hour)
	repo := &fakeAggRepo{
		summaryExists:  false,
		hasEarliest:    true,
		earliestHour:   earliest,
		hourAggregated: map[time.Time]bool{},
		logsByHour: map[time.Time][]model.RequestLog{
			earliest:                    {{IsSuccess: true, DurationMs: ptrInt64(1)}},
			earliest.Add(time.Hour):     {{IsSuccess: true, DurationMs: ptrInt64(1)}},
			earliest.Add(2 * time.Hour): {{IsSuccess: true, DurationMs: ptrInt64(1)}},
		},
	}
	a := New(repo)

	a.catchUp(context.Background())
	assert.GreaterOrEqual(t, len(repo.savedHours), 2)
}

func TestCatchUpSkipsWhenSummariesAlreadyExist(t *testing.T) {
	repo := &fakeAggRepo{summaryExists: true}
	a := New(repo)

	a.catchUp(context.Background())
	assert.Empty(t, repo.savedHours)
}

func TestTargetHourFloorsWithDelay(t *testing.T) {
	now := time.Date(2026, 7, 30, 14, 3, 0, 0, time.UTC)
	got := targetHour(now)
	assert.Equal(t, time.Date(2026, 7, 30, 13, 0, 0, 0, time.UTC), got)
}
