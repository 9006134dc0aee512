// Command server is the process entrypoint: load configuration, bootstrap
// Postgres/Redis, wire every package's constructor by hand (mirroring what
// the teacher's wire.go declarations would produce, since no wire_gen.go
// was retrieved), register routes, and serve until a shutdown signal, then
// wait for the log pipeline to drain. The aggregator simply stops when the
// context is cancelled.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/arcrelay/geminiproxy/internal/aggregator"
	"github.com/arcrelay/geminiproxy/internal/config"
	"github.com/arcrelay/geminiproxy/internal/dispatch"
	"github.com/arcrelay/geminiproxy/internal/handler"
	"github.com/arcrelay/geminiproxy/internal/infrastructure"
	"github.com/arcrelay/geminiproxy/internal/logpipeline"
	"github.com/arcrelay/geminiproxy/internal/oauthclient"
	"github.com/arcrelay/geminiproxy/internal/pool"
	"github.com/arcrelay/geminiproxy/internal/quota"
	"github.com/arcrelay/geminiproxy/internal/repository"
	"github.com/arcrelay/geminiproxy/internal/server/routes"
	"github.com/arcrelay/geminiproxy/internal/settings"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "config.yaml", "configuration file path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := infrastructure.InitDB(cfg)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	rdb := infrastructure.InitRedis(cfg)

	accountRepo := repository.NewAccountRepository(db)
	cachedAccountRepo := repository.NewCachedAccountRepository(accountRepo)
	affinityCache := repository.NewAffinityCache(rdb)
	quotaStore := repository.NewQuotaStore(rdb)
	requestLogRepo := repository.NewRequestLogRepository(db)
	summaryRepo := repository.NewHourlySummaryRepository(db, accountRepo)
	aggregatorRepo := repository.NewAggregatorRepository(requestLogRepo, summaryRepo)
	settingsStore := repository.NewSettingsStore(db)

	settingsProvider := settings.NewProvider(settingsStore)
	quotaCache := quota.NewCache(quotaStore)
	accountPool := pool.New(cachedAccountRepo, affinityCache, quotaCache)

	refresher := oauthclient.Chain{
		oauthclient.NewGeminiRefresher(oauthclient.Credentials{
			ClientID:     cfg.Gateway.GeminiOAuthClientID,
			ClientSecret: cfg.Gateway.GeminiOAuthClientSecret,
		}),
		oauthclient.NewAntigravityRefresher(oauthclient.Credentials{
			ClientID:     cfg.Gateway.AntigravityOAuthClientID,
			ClientSecret: cfg.Gateway.AntigravityOAuthClientSecret,
		}),
	}
	transport := dispatch.NewTransport(&cfg.Gateway)

	logProducer := logpipeline.NewProducer()
	logConsumer := logpipeline.NewConsumer(logProducer, requestLogRepo)

	dispatchLoop := dispatch.NewLoop(accountPool, quotaCache, refresher, transport, logProducer, dispatch.Config{
		MaxRetries:         cfg.Gateway.MaxRetries,
		RefreshWindow:      cfg.TokenRefreshBeforeExpiry(),
		CodeAssistEndpoint: cfg.Gateway.CodeAssistEndpoint,
		AntigravityAPIURL:  cfg.Gateway.AntigravityAPIURL,
	})

	hourlyAggregator := aggregator.New(aggregatorRepo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := settingsProvider.Refresh(ctx); err != nil {
		log.Printf("[startup] initial settings load failed, continuing with defaults: %v", err)
	}

	go logConsumer.Run(ctx)
	go hourlyAggregator.Run(ctx)
	go watchSettings(ctx, settingsProvider)

	if cfg.Server.Mode != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	h := handler.New(dispatchLoop, logProducer, settingsProvider)
	routes.RegisterGatewayRoutes(r, h)

	srv := &http.Server{
		Addr:    cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}

	<-logConsumer.Done()
}

// watchSettings periodically refreshes the settings cache (spec §6's
// settings-store keys are hot-reloadable, not process-start-only).
func watchSettings(ctx context.Context, p *settings.Provider) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Refresh(ctx); err != nil {
				log.Printf("[settings] refresh failed: %v", err)
			}
		}
	}
}

