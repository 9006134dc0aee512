package aggregator

import (
	"context"
	"log"
	"math"
	"sort"
	"time"

	"github.com/arcrelay/geminiproxy/internal/model"
)

// percentile implements spec §4.6's formula: sortedValues[ceil(N*p)-1],
// clamped to a valid index. sorted must already be ascending.
func percentile(sorted []int64, p float64) int64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(float64(n)*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

func buildOverall(hourStart time.Time, logs []model.RequestLog) *model.HourlySummaryOverall {
	var total, success int64
	var totalDuration, minDuration, maxDuration int64
	var totalPrompt, totalCompletion int64
	var ttfbSum float64
	var ttfbCount int64
	minDuration = math.MaxInt64

	durations := make([]int64, 0, len(logs))
	for _, l := range logs {
		total++
		if l.IsSuccess {
			success++
		}
		if l.DurationMs != nil {
			d := *l.DurationMs
			totalDuration += d
			if d < minDuration {
				minDuration = d
			}
			if d > maxDuration {
				maxDuration = d
			}
			durations = append(durations, d)
		}
		if l.PromptTokens != nil {
			totalPrompt += int64(*l.PromptTokens)
		}
		if l.CompletionTokens != nil {
			totalCompletion += int64(*l.CompletionTokens)
		}
		if l.TimeToFirstByteMs != nil {
			ttfbSum += float64(*l.TimeToFirstByteMs)
			ttfbCount++
		}
	}
	if minDuration == math.MaxInt64 {
		minDuration = 0
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var successRate, avgDuration, avgTTFB float64
	if total > 0 {
		successRate = float64(success) / float64(total) * 100
	}
	if len(durations) > 0 {
		avgDuration = float64(totalDuration) / float64(len(durations))
	}
	if ttfbCount > 0 {
		avgTTFB = ttfbSum / float64(ttfbCount)
	}

	return &model.HourlySummaryOverall{
		HourStartTime:       hourStart,
		TotalRequests:       total,
		SuccessRequests:     success,
		SuccessRate:         successRate,
		TotalDurationMs:     totalDuration,
		MinDurationMs:       minDuration,
		MaxDurationMs:       maxDuration,
		AvgDurationMs:       avgDuration,
		P50DurationMs:       percentile(durations, 0.50),
		P95DurationMs:       percentile(durations, 0.95),
		P99DurationMs:       percentile(durations, 0.99),
		TotalPromptTokens:   totalPrompt,
		TotalCompletionToks: totalCompletion,
		AvgTTFBMs:           avgTTFB,
		CreatedAt:           time.Now(),
	}
}

type modelGroupKey struct {
	model    string
	provider string
}

func buildByModel(hourStart time.Time, logs []model.RequestLog) []*model.HourlySummaryByModel {
	groups := make(map[modelGroupKey][]model.RequestLog)
	for _, l := range logs {
		k := modelGroupKey{model: l.Model, provider: l.Provider}
		groups[k] = append(groups[k], l)
	}

	out := make([]*model.HourlySummaryByModel, 0, len(groups))
	for k, group := range groups {
		total, success, totalTokens, avgDuration, durations := summarizeGroup(group, func(l model.RequestLog) int64 {
			if l.TotalTokens != nil {
				return int64(*l.TotalTokens)
			}
			return 0
		})
		var successRate float64
		if total > 0 {
			successRate = float64(success) / float64(total) * 100
		}
		out = append(out, &model.HourlySummaryByModel{
			HourStartTime:   hourStart,
			Model:           k.model,
			Provider:        k.provider,
			TotalRequests:   total,
			SuccessRequests: success,
			SuccessRate:     successRate,
			AvgDurationMs:   avgDuration,
			P50DurationMs:   percentile(durations, 0.50),
			P95DurationMs:   percentile(durations, 0.95),
			P99DurationMs:   percentile(durations, 0.99),
			TotalTokens:     totalTokens,
			CreatedAt:       time.Now(),
		})
	}
	return out
}

func (a *Aggregator) buildByAccount(ctx context.Context, hourStart time.Time, logs []model.RequestLog) []*model.HourlySummaryByAccount {
	groups := make(map[int64][]model.RequestLog)
	for _, l := range logs {
		if l.AccountID == nil {
			continue
		}
		groups[*l.AccountID] = append(groups[*l.AccountID], l)
	}

	out := make([]*model.HourlySummaryByAccount, 0, len(groups))
	for accountID, group := range groups {
		total, success, totalTokens, avgDuration, durations := summarizeGroup(group, func(l model.RequestLog) int64 {
			if l.TotalTokens != nil {
				return int64(*l.TotalTokens)
			}
			return 0
		})
		var successRate float64
		if total > 0 {
			successRate = float64(success) / float64(total) * 100
		}

		name, provider, err := a.repo.AccountNameProvider(ctx, accountID)
		if err != nil {
			log.Printf("[aggregator] account lookup failed for %d: %v", accountID, err)
		}

		out = append(out, &model.HourlySummaryByAccount{
			HourStartTime:   hourStart,
			AccountID:       accountID,
			AccountName:     name,
			AccountProvider: provider,
			TotalRequests:   total,
			SuccessRequests: success,
			SuccessRate:     successRate,
			AvgDurationMs:   avgDuration,
			P50DurationMs:   percentile(durations, 0.50),
			P95DurationMs:   percentile(durations, 0.95),
			P99DurationMs:   percentile(durations, 0.99),
			TotalTokens:     totalTokens,
			CreatedAt:       time.Now(),
		})
	}
	return out
}

// summarizeGroup folds the shared counters (total, success, token sum,
// average/sorted durations) used by both the by-model and by-account
// variants; tokenOf extracts the per-log token count each variant sums.
func summarizeGroup(group []model.RequestLog, tokenOf func(model.RequestLog) int64) (total, success, totalTokens int64, avgDuration float64, durations []int64) {
	var durationSum int64
	durations = make([]int64, 0, len(group))
	for _, l := range group {
		total++
		if l.IsSuccess {
			success++
		}
		if l.DurationMs != nil {
			durations = append(durations, *l.DurationMs)
			durationSum += *l.DurationMs
		}
		totalTokens += tokenOf(l)
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	if len(durations) > 0 {
		avgDuration = float64(durationSum) / float64(len(durations))
	}
	return total, success, totalTokens, avgDuration, durations
}
