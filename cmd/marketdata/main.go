package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/papertrading/internal/marketdata/application"
	"github.com/wyfcoding/papertrading/internal/marketdata/domain"
	"github.com/wyfcoding/papertrading/internal/marketdata/infrastructure/messaging"
	"github.com/wyfcoding/papertrading/internal/marketdata/infrastructure/persistence"
	"github.com/wyfcoding/papertrading/internal/marketdata/infrastructure/persistence/mysql"
	persistence_redis "github.com/wyfcoding/papertrading/internal/marketdata/infrastructure/persistence/redis"
	"github.com/wyfcoding/papertrading/internal/marketdata/infrastructure/provider"
	infra_ratelimit "github.com/wyfcoding/papertrading/internal/marketdata/infrastructure/ratelimit"
	httpserver "github.com/wyfcoding/papertrading/internal/marketdata/interfaces/http"
	"github.com/wyfcoding/papertrading/pkg/cache"
	"github.com/wyfcoding/papertrading/pkg/config"
	"github.com/wyfcoding/papertrading/pkg/db"
	"github.com/wyfcoding/papertrading/pkg/logger"
	"github.com/wyfcoding/papertrading/pkg/metrics"
	"github.com/wyfcoding/papertrading/pkg/middleware"
	"github.com/wyfcoding/papertrading/pkg/mq"
	"github.com/wyfcoding/papertrading/pkg/ratelimit"
)

var configPath = flag.String("config", "configs/marketdata/config.toml", "config file path")

func main() {
	flag.Parse()

	// 1. Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. Logger
	log, err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}
	log = log.With("module", "marketdata")

	// 3. Metrics
	m := metrics.New(cfg.Server.Name)
	if err := m.Register(); err != nil {
		log.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}
	if cfg.Metrics.Enabled {
		go m.ExposeHTTP(cfg.Metrics.Port)
	}

	// 4. Database
	gormDB, err := db.Init(db.Config{
		DSN:                cfg.Data.Database.DSN,
		MaxOpenConns:       cfg.Data.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Data.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Data.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Data.Database.LogEnabled,
		SlowQueryThreshold: cfg.Data.Database.SlowQueryThreshold,
	})
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}

	// Auto Migrate
	if cfg.Server.Environment == "dev" {
		if err := gormDB.AutoMigrate(&mysql.PricePointModel{}, &mysql.WatchlistEntryModel{}, &mysql.JobRunModel{}); err != nil {
			log.Error("failed to migrate database", "error", err)
		}
	}

	// 5. Redis
	redisClient, redisCleanup, err := cache.New(cache.Config{
		Host:         cfg.Data.Redis.Host,
		Port:         cfg.Data.Redis.Port,
		Password:     cfg.Data.Redis.Password,
		DB:           cfg.Data.Redis.DB,
		MaxPoolSize:  cfg.Data.Redis.MaxPoolSize,
		ReadTimeout:  cfg.Data.Redis.ReadTimeout,
		WriteTimeout: cfg.Data.Redis.WriteTimeout,
	})
	if err != nil {
		log.Error("failed to connect redis", "error", err)
		os.Exit(1)
	}
	defer redisCleanup()

	// 6. Repository
	priceStore := mysql.NewPriceRepository(gormDB)
	watchlistRepo := mysql.NewWatchlistRepository(gormDB)
	jobRunRepo := mysql.NewJobRunRepository(gormDB)
	hotCache := persistence_redis.NewPriceRedisCache(redisClient, cfg.Cache.HotTTL(true), cfg.Cache.HotTTL(false))
	tiered := persistence.NewTieredPriceCache(hotCache, priceStore, log, m)

	// 7. 外部配额闸门，多副本经 Redis 共享同一份令牌
	limiter := infra_ratelimit.NewRedisRateLimiter(redisClient, cfg.Quota.PerMinute, cfg.Quota.PerDay)

	// 8. Provider
	var priceProvider domain.PriceProvider
	switch cfg.Provider.Driver {
	case "memory":
		priceProvider = provider.NewMemoryProvider()
	default:
		priceProvider = provider.NewAlphaVantageProvider(provider.AlphaVantageConfig{
			BaseURL: cfg.Provider.BaseURL,
			APIKey:  cfg.Provider.APIKey,
			Timeout: time.Duration(cfg.Provider.Timeout) * time.Second,
		})
	}

	// 9. Events
	var publisher domain.EventPublisher = messaging.NoopEventPublisher{}
	if cfg.Kafka.Enabled {
		producer := mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
		})
		defer producer.Close()
		publisher = messaging.NewKafkaEventPublisher(producer, log)
	}

	// 10. Application
	gateway := application.NewMarketDataGateway(tiered, priceProvider, limiter, watchlistRepo, publisher, log, m, application.GatewayConfig{
		Capability:   domain.Capability(cfg.Provider.Capability),
		MaxRetries:   cfg.Provider.MaxRetries,
		FetchTimeout: time.Duration(cfg.Provider.Timeout*(cfg.Provider.MaxRetries+1)) * time.Second,
	})
	watchlistSvc := application.NewWatchlistService(watchlistRepo, log, m)
	refreshJob := application.NewRefreshJob(gateway, watchlistRepo, priceStore, jobRunRepo, limiter, log, m, application.RefreshJobConfig{
		Interval:           time.Duration(cfg.Refresh.Interval) * time.Second,
		StalenessThreshold: time.Duration(cfg.Refresh.StalenessThreshold) * time.Second,
		BatchSize:          cfg.Refresh.BatchSize,
		BatchDelay:         time.Duration(cfg.Refresh.BatchDelay) * time.Millisecond,
		MaxQuotaWait:       time.Duration(cfg.Refresh.MaxQuotaWait) * time.Second,
		WarmRetentionDays:  cfg.Cache.WarmRetentionDays,
	})

	// 11. Interfaces
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.RateLimit.Enabled {
		r.Use(middleware.RateLimit(ratelimit.NewRedisLimiter(redisClient), cfg.RateLimit.QPS, cfg.RateLimit.Burst))
	}

	handler := httpserver.NewMarketDataHandler(gateway, watchlistSvc, refreshJob)
	handler.RegisterRoutes(r.Group("/api"))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: r,
	}

	// 12. Run
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	if cfg.Refresh.Enabled {
		g.Go(func() error {
			refreshJob.Start(gctx)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("service exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("service stopped")
}
