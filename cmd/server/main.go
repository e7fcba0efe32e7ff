package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/SlpAus/fedivote/api"
	"github.com/SlpAus/fedivote/internal/actor"
	"github.com/SlpAus/fedivote/internal/community"
	"github.com/SlpAus/fedivote/internal/content"
	"github.com/SlpAus/fedivote/internal/lock"
	"github.com/SlpAus/fedivote/internal/platform/config"
	"github.com/SlpAus/fedivote/internal/platform/database"
	"github.com/SlpAus/fedivote/internal/platform/health"
	"github.com/SlpAus/fedivote/internal/platform/logging"
	"github.com/SlpAus/fedivote/internal/platform/metadata"
	"github.com/SlpAus/fedivote/internal/platform/shutdown"
	"github.com/SlpAus/fedivote/internal/platform/startup"
	"github.com/SlpAus/fedivote/internal/ranking"
	"github.com/SlpAus/fedivote/internal/trust"
	"github.com/SlpAus/fedivote/internal/vote"
	"github.com/SlpAus/fedivote/pkg/lifecycle"
	"github.com/SlpAus/fedivote/pkg/retry"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic("读取配置失败: " + err.Error())
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		panic("初始化日志失败: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	db, err := database.OpenDB(cfg.Database, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	rdb, err := database.OpenRedis(ctx, cfg.Database.Redis, logger)
	if err != nil {
		logger.Fatal("Redis连接失败", zap.Error(err))
	}
	if err := startup.Migrate(db); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 1. 组装投票引擎
	var provider lock.Provider
	switch cfg.Engine.Lock.Provider {
	case "local":
		provider = lock.NewLocalProvider()
	default:
		provider = lock.NewRedisProvider(rdb)
	}
	guard := lock.NewGuard(provider, cfg.Engine.Lock.Lease, cfg.Engine.Lock.Wait, logger)

	actors := actor.NewRepository(db)
	communities := community.NewRepository(db)
	contents := content.NewRepository(db)
	snapshot := ranking.NewSnapshot()
	index := content.NewRankIndex(rdb)
	status := health.NewStatus(logger)

	engine := vote.NewEngine(vote.Deps{
		DB:    db,
		Guard: guard,
		Trust: trust.NewResolver(actors, communities, trust.SitePolicy{
			DownvotesEnabled: cfg.Engine.DownvotesEnabled,
			LocalInstanceID:  cfg.Engine.LocalInstanceID,
		}),
		Heuristic: trust.Heuristic{LocalInstanceID: cfg.Engine.LocalInstanceID},
		Aggregator: vote.NewAggregator(vote.SpicyTiers{
			Under10:     cfg.Engine.Spicy.Under10,
			Under30:     cfg.Engine.Spicy.Under30,
			Under60:     cfg.Engine.Spicy.Under60,
			DownUnder30: cfg.Engine.Spicy.DownUnder30,
			DownUnder60: cfg.Engine.Spicy.DownUnder60,
		}),
		Ranking:     ranking.NewCalculator(cfg.Engine.Ranking.EpochOffset, snapshot),
		Reputation:  actor.NewReputationPropagator(guard),
		Actors:      actors,
		Communities: communities,
		Contents:    contents,
		Emitter:     vote.NewRedisStreamEmitter(rdb, cfg.Engine.Events.VoteChangedStream, cfg.Engine.Events.FederationStream, cfg.Engine.Events.MaxLen),
		Index:       startup.GatedIndex{Index: index, Status: status},
		Logger:      logger,
	})

	// 2. 启动预热：排序基准与排序索引
	refresher := ranking.NewRefresher(communities, metadata.NewStore(db), snapshot,
		cfg.Engine.Ranking.TopPercentile, cfg.Engine.Ranking.RefreshInterval, logger)
	warmer := &startup.Warmer{Refresher: refresher, Index: index, Contents: contents, Logger: logger}
	checker := health.NewChecker(health.RedisRunID{RDB: rdb}, status, warmer.RebuildCache, 0, logger)

	if err := checker.Initialize(ctx); err != nil {
		logger.Fatal("无法在启动时获取Redis Run ID，请检查Redis服务", zap.Error(err))
	}
	if err := warmer.InitializeApplication(ctx); err != nil {
		logger.Fatal("应用初始化失败，无法启动", zap.Error(err))
	}
	checker.PerformCheck(ctx)

	// 3. 后台服务
	gracefulMgr := lifecycle.NewManager(logger)
	forcefulMgr := lifecycle.NewManager(logger)
	startService(gracefulMgr, logger, "health_checker", checker.Run)
	startService(gracefulMgr, logger, "ranking_refresher", refresher.Run)

	// 4. HTTP
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.Cors.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	api.SetupRoutes(r, api.Handlers{
		Votes:    vote.NewHandler(engine, retry.DefaultOptions),
		Contents: content.NewHandler(index, contents),
		Status:   status,
	})

	server := &http.Server{Addr: cfg.Server.Address, Handler: r}
	go func() {
		logger.Info("服务器已准备就绪，开始监听", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP服务器启动失败", zap.Error(err))
		}
	}()

	coordinator := shutdown.NewCoordinator(gracefulMgr, forcefulMgr, logger,
		shutdown.Finalizer{Name: "redis", Fn: func(context.Context) error { return rdb.Close() }},
		shutdown.Finalizer{Name: "database", Fn: func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		}},
	)
	coordinator.ListenForSignalsAndShutdown(server)
}

func startService(mgr *lifecycle.Manager, logger *zap.Logger, name string, run func(*lifecycle.Handle)) {
	handle, err := mgr.NewServiceHandle(name)
	if err != nil {
		logger.Fatal("注册后台服务失败", zap.String("service", name), zap.Error(err))
	}
	go run(handle)
}
