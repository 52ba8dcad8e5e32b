package main

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/example/fortune-bot/internal/analytics"
	"github.com/example/fortune-bot/internal/bot"
	"github.com/example/fortune-bot/internal/commerce"
	botconfig "github.com/example/fortune-bot/internal/config"
	"github.com/example/fortune-bot/internal/conversation"
	"github.com/example/fortune-bot/internal/entitlement"
	"github.com/example/fortune-bot/internal/kv"
	"github.com/example/fortune-bot/internal/line"
	"github.com/example/fortune-bot/internal/oracle"
	platformanalytics "github.com/example/fortune-bot/internal/platform/analytics"
	"github.com/example/fortune-bot/internal/platform/auth"
	"github.com/example/fortune-bot/internal/platform/config"
	"github.com/example/fortune-bot/internal/platform/httpserver"
	"github.com/example/fortune-bot/internal/platform/logging"
	"github.com/example/fortune-bot/internal/platform/natsconn"
	"github.com/example/fortune-bot/internal/platform/run"
	"github.com/example/fortune-bot/internal/usage"
)

func main() {
	appCfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(appCfg.ServiceName, appCfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := botconfig.Load()
	if err != nil {
		log.Error("config", zap.Error(err))
		run.Exit(1)
	}
	isProd := appCfg.IsProd()

	store, err := kv.New(cfg.Storage.RedisDSN, isProd)
	if err != nil {
		log.Error("kv store", zap.Error(err))
		run.Exit(1)
	}
	usageStore, err := usage.NewStore(cfg.Storage.RedisDSN, cfg.Storage.DatabaseURL, cfg.Policy.UsageTTL, isProd)
	if err != nil {
		log.Error("usage store", zap.Error(err))
		run.Exit(1)
	}
	log.Info("stores initialised",
		zap.Bool("redis", cfg.Storage.RedisDSN != ""),
		zap.Bool("postgres", cfg.Storage.DatabaseURL != ""),
	)

	events, closeNATS := initEvents(cfg, isProd, log)
	defer closeNATS()

	shop := commerce.New(commerce.Config{
		BaseURL:    cfg.Commerce.BaseURL,
		AuthMode:   cfg.Commerce.AuthMode,
		Token:      cfg.Commerce.Token,
		HeaderName: cfg.Commerce.HeaderName,
	}, commerce.WithCircuitBreaker(breaker("commerce", log)), commerce.WithLogger(log))

	completer := oracle.New(oracle.Config{
		BaseURL:     cfg.Oracle.BaseURL,
		APIKey:      cfg.Oracle.APIKey,
		Model:       cfg.Oracle.Model,
		Temperature: cfg.Oracle.Temperature,
		TopP:        cfg.Oracle.TopP,
		MaxTokens:   cfg.Oracle.MaxTokens,
	}, oracle.WithCircuitBreaker(breaker("oracle", log)), oracle.WithLogger(log))

	engine := entitlement.NewEngine(store, usageStore, shop, cfg.Commerce.PlanRules, entitlement.Policy{
		DayPassDuration:      cfg.Policy.DayPassDuration,
		SubscriptionReverify: cfg.Policy.SubscriptionReverify,
	}, events, log)
	history := conversation.NewLog(store, cfg.Policy.HistoryMaxTurns, cfg.Policy.HistoryTTL)
	replier := line.NewClient(cfg.Line.ChannelToken, log)

	webhook := bot.NewWebhookHandler(cfg.Line.ChannelSecret, log, replier, engine, history, completer, events)

	r := chi.NewRouter()
	httpserver.SetupRouter(r)
	r.Post("/v1/line/webhook", webhook.ServeHTTP)

	if cfg.AdminJWTSecret != "" {
		admin := bot.NewAdminHandler(log, completer, engine)
		verifier := auth.JWTVerifier{Secret: []byte(cfg.AdminJWTSecret)}
		r.Route("/v1/admin", func(r chi.Router) {
			r.Use(auth.RequireBearer(verifier))
			r.Use(auth.RequireAdmin)
			r.Get("/diag/oracle", admin.DiagOracle)
			r.Get("/entitlements/{userID}", admin.InspectEntitlement)
		})
	} else {
		log.Warn("ADMIN_JWT_SECRET not set, admin endpoints are disabled")
	}

	srv := httpserver.New(httpserver.Options{Addr: appCfg.HTTP.Addr, ServiceName: appCfg.ServiceName, Logger: log, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		go func() {
			<-ctx.Done()
			_ = srv.Shutdown(context.Background())
		}()
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// initEvents wires the NATS publisher and, when PostHog is configured,
// an in-process sink that forwards fortune.* events to it. In
// production a configured NATS_URL must be reachable; in development a
// missing broker degrades to a no-op publisher.
func initEvents(cfg botconfig.Config, isProd bool, log *zap.Logger) (*platformanalytics.Publisher, func()) {
	noop := func() {}
	if cfg.NATSURL == "" {
		log.Warn("NATS_URL not set, analytics events will not be published")
		return platformanalytics.New(nil, log), noop
	}

	nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL})
	if err != nil {
		if isProd {
			log.Error("NATS is required in production", zap.Error(err))
			run.Exit(1)
		}
		log.Warn("NATS unavailable, analytics events will not be published", zap.Error(err))
		return platformanalytics.New(nil, log), noop
	}

	closers := []func(){nc.Close}
	if cfg.PostHogAPIKey != "" {
		ph, err := analytics.NewClient(cfg.PostHogAPIKey, cfg.PostHogHost, 10*time.Second, 50, log)
		if err != nil {
			log.Error("posthog init", zap.Error(err))
			run.Exit(1)
		}
		sink := analytics.NewSink(ph, log)
		if _, err := sink.Subscribe(nc); err != nil {
			log.Error("analytics subscribe", zap.Error(err))
			run.Exit(1)
		}
		closers = append(closers, func() {
			if err := ph.Close(); err != nil {
				log.Warn("posthog close", zap.Error(err))
			}
		})
	}

	return platformanalytics.New(nc, log), func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}

// breaker builds the shared circuit-breaker profile for outbound HTTP.
func breaker(name string, log *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit-breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}
