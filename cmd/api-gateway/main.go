package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/storefront-gateway/internal/audit"
	"github.com/fjod/storefront-gateway/internal/backend"
	"github.com/fjod/storefront-gateway/internal/cart"
	"github.com/fjod/storefront-gateway/internal/catalog"
	"github.com/fjod/storefront-gateway/internal/config"
	"github.com/fjod/storefront-gateway/internal/events"
	h "github.com/fjod/storefront-gateway/internal/http"
	"github.com/fjod/storefront-gateway/internal/logger"
	"github.com/fjod/storefront-gateway/internal/pricing"
	"github.com/fjod/storefront-gateway/internal/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const lastQuoteTTL = 24 * time.Hour

type publisher interface {
	Publish(ctx context.Context, change events.CatalogChange) error
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	lg := logger.New(logger.Options{
		Service: "storefront-gateway",
		Env:     cfg.AppEnv,
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
	})
	log.Logger = lg

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api, err := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout)
	if err != nil {
		lg.Fatal().Err(err).Msg("create backend client")
	}

	// Set up MongoDB connection
	mongoClient, mongoDB, err := cart.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		lg.Fatal().Err(err).Msg("connect to MongoDB")
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			lg.Warn().Err(err).Msg("disconnect MongoDB")
		}
	}()
	repo := cart.NewMongoRepository(mongoDB)
	if err := repo.CreateIndexes(ctx); err != nil {
		lg.Fatal().Err(err).Msg("create cart indexes")
	}
	lg.Info().Str("db", cfg.MongoDBName).Msg("connected to MongoDB")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		lg.Fatal().Err(err).Msg("redis ping")
	}

	auditRepo, err := audit.Open(ctx, cfg.AuditDBDriver, cfg.AuditDBDSN)
	if err != nil {
		lg.Fatal().Err(err).Msg("open audit database")
	}
	defer auditRepo.Close()
	if err := auditRepo.RunMigrations(); err != nil {
		lg.Fatal().Err(err).Msg("migrate audit database")
	}

	carts := cart.NewService(repo, cart.NewRedisCache(redisClient), lg)
	products := catalog.NewService(api, catalog.NewRedisCache(redisClient, cfg.PriceCacheTTL), lg)
	quotes := pricing.NewRedisLastQuoteStore(redisClient, lastQuoteTTL)
	pricer := pricing.NewReconciler(products, api, carts, quotes, pricing.Options{
		FetchTimeout:  cfg.PricingFetchTimeout,
		MaxConcurrent: cfg.PricingMaxConcurrent,
	}, lg)

	sessions := session.NewRedisStore(redisClient, cfg.SessionTTL)
	refresher := session.NewRefresher(sessions, api, cfg.TokenRefreshSkew, lg)
	trail := audit.NewTrail(auditRepo, lg)

	var pub publisher = events.NopPublisher{}
	var consumers sync.WaitGroup
	if cfg.KafkaEnabled() {
		pub = events.NewKafkaPublisher(cfg.KafkaTopic, lg, cfg.KafkaBrokers...)

		consumer := events.NewConsumer(products, cfg.KafkaTopic, cfg.KafkaGroupID, lg, cfg.KafkaBrokers...)
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			consumer.Run(ctx)
			consumer.Close()
		}()
		lg.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("catalog change events enabled")
	}
	defer func() {
		if err := pub.Close(); err != nil {
			lg.Warn().Err(err).Msg("close event publisher")
		}
	}()

	sessionOpts := h.SessionOptions{TTL: cfg.SessionTTL, SecureCookie: cfg.CookieSecure}
	handlers := h.Handlers{
		Products:   h.NewProductHandler(api, products, cfg.RequestTimeout),
		Cart:       h.NewCartHandler(carts, products, pricer, cfg.RequestTimeout),
		Orders:     h.NewOrdersHandler(api, carts, quotes, cfg.RequestTimeout),
		FlashSales: h.NewFlashSaleHandler(api, cfg.RequestTimeout),
		Auth:       h.NewAuthHandler(api, sessions, sessionOpts, cfg.RequestTimeout),
		Admin:      h.NewAdminHandler(api, sessions, products, pub, trail, sessionOpts, cfg.RequestTimeout),
	}
	router := h.NewRouter(h.RouterConfig{
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		SecureCookie:       cfg.CookieSecure,
	}, handlers, sessions, refresher, lg)

	// no WriteTimeout: event streams outlive any single request
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           otelhttp.NewHandler(router, "storefront-gateway"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		lg.Info().Str("port", cfg.HTTPPort).Str("backend", cfg.BackendURL).Msg("storefront gateway starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()

	lg.Info().Msg("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error().Err(err).Msg("server forced to shutdown")
	}
	consumers.Wait()

	lg.Info().Msg("server exited")
}
