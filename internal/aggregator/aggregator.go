// Package aggregator implements the hourly rollup background loop (spec
// §4.6): new code grounded on the teacher's only other periodic-background
// pattern in the pack, DeferredService.Start()/TimingWheelService's
// recurring-schedule idiom (internal/service/deferred_service.go),
// reshaped into a plain time.Ticker loop since no equivalent timing-wheel
// scheduler is wired into this module.
package aggregator

import (
	"context"
	"log"
	"time"

	"github.com/arcrelay/geminiproxy/internal/model"
)

const (
	tickInterval     = 10 * time.Minute
	aggregationDelay = 5 * time.Minute
)

// Repository is the read/write surface the aggregator needs. LogsInHour
// must return only finalised entries (RequestEndTime != nil).
type Repository interface {
	EarliestLogHour(ctx context.Context) (hourStart time.Time, ok bool, err error)
	AnySummaryExists(ctx context.Context) (bool, error)
	HourAlreadyAggregated(ctx context.Context, hourStart time.Time) (bool, error)
	LogsInHour(ctx context.Context, hourStart, hourEnd time.Time) ([]model.RequestLog, error)
	SaveHour(ctx context.Context, overall *model.HourlySummaryOverall, byModel []*model.HourlySummaryByModel, byAccount []*model.HourlySummaryByAccount) error
	AccountNameProvider(ctx context.Context, accountID int64) (name, provider string, err error)
}

type Aggregator struct {
	repo Repository
}

func New(repo Repository) *Aggregator {
	return &Aggregator{repo: repo}
}

// Run performs the startup catch-up pass, then aggregates the target hour
// every tickInterval until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context) {
	a.catchUp(ctx)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *Aggregator) tick(ctx context.Context) {
	target := targetHour(time.Now())
	if err := a.aggregateHour(ctx, target); err != nil {
		log.Printf("[aggregator] aggregate %s failed: %v", target, err)
	}
}

// targetHour is floor(now-5min, hour): the 5-minute delay lets in-flight
// requests in that hour finish before it is summarised.
func targetHour(now time.Time) time.Time {
	return now.Add(-aggregationDelay).Truncate(time.Hour).UTC()
}

func (a *Aggregator) catchUp(ctx context.Context) {
	any, err := a.repo.AnySummaryExists(ctx)
	if err != nil {
		log.Printf("[aggregator] catch-up existence check failed: %v", err)
		return
	}
	if any {
		return
	}

	earliest, ok, err := a.repo.EarliestLogHour(ctx)
	if err != nil {
		log.Printf("[aggregator] catch-up earliest-hour lookup failed: %v", err)
		return
	}
	if !ok {
		return
	}

	cutoff := time.Now().Add(-time.Hour).Truncate(time.Hour).UTC()
	for h := earliest; !h.After(cutoff); h = h.Add(time.Hour) {
		if err := a.aggregateHour(ctx, h); err != nil {
			log.Printf("[aggregator] catch-up aggregate %s failed: %v", h, err)
		}
	}
}

func (a *Aggregator) aggregateHour(ctx context.Context, hourStart time.Time) error {
	already, err := a.repo.HourAlreadyAggregated(ctx, hourStart)
	if err != nil {
		return err
	}
	if already {
		return nil
	}

	logs, err := a.repo.LogsInHour(ctx, hourStart, hourStart.Add(time.Hour))
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		return nil
	}

	overall := buildOverall(hourStart, logs)
	byModel := buildByModel(hourStart, logs)
	byAccount := a.buildByAccount(ctx, hourStart, logs)
	return a.repo.SaveHour(ctx, overall, byModel, byAccount)
}
