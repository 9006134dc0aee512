package repository

import (
	"github.com/arcrelay/geminiproxy/internal/aggregator"
	"github.com/arcrelay/geminiproxy/internal/logpipeline"
	"github.com/arcrelay/geminiproxy/internal/pool"
	"github.com/arcrelay/geminiproxy/internal/quota"
	"github.com/arcrelay/geminiproxy/internal/settings"

	"github.com/google/wire"
)

// ProviderSet is the Wire provider set for this module's repositories and
// caches, trimmed from the teacher's admin-dashboard-spanning set down to
// exactly what the pool, quota, log pipeline, aggregator, and settings
// packages need.
var ProviderSet = wire.NewSet(
	NewAccountRepository,
	NewCachedAccountRepository,
	NewRequestLogRepository,
	NewHourlySummaryRepository,
	NewAggregatorRepository,
	NewSettingsStore,

	NewAffinityCache,
	NewQuotaStore,

	wire.Bind(new(pool.AccountRepository), new(*CachedAccountRepository)),
	wire.Bind(new(pool.AffinityCache), new(*AffinityCache)),
	wire.Bind(new(quota.Store), new(*QuotaStore)),
	wire.Bind(new(logpipeline.Repository), new(*RequestLogRepository)),
	wire.Bind(new(aggregator.Repository), new(*AggregatorRepository)),
	wire.Bind(new(settings.Store), new(*SettingsStore)),
)
