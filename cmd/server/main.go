// @title                      VibeUp API
// @version                    1.0
// @description                Posts, tracks and reactions ranked by vibe score.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/vibeup/config"
	"github.com/d60-Lab/vibeup/internal/api"
	"github.com/d60-Lab/vibeup/internal/api/handler"
	"github.com/d60-Lab/vibeup/internal/api/middleware"
	"github.com/d60-Lab/vibeup/internal/events"
	"github.com/d60-Lab/vibeup/internal/metrics"
	"github.com/d60-Lab/vibeup/internal/model"
	"github.com/d60-Lab/vibeup/internal/ranking"
	"github.com/d60-Lab/vibeup/internal/repository"
	"github.com/d60-Lab/vibeup/internal/service"
	"github.com/d60-Lab/vibeup/internal/vibe"
	"github.com/d60-Lab/vibeup/pkg/database"
	"github.com/d60-Lab/vibeup/pkg/errtrack"
	"github.com/d60-Lab/vibeup/pkg/logger"
	"github.com/d60-Lab/vibeup/pkg/tracing"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := errtrack.Init(cfg.Sentry.DSN, cfg.Sentry.Environment, version); err != nil {
		logger.Warn("sentry init failed", zap.Error(err))
	}
	defer errtrack.Flush(2 * time.Second)

	shutdownTracing, err := tracing.Init(context.Background(), cfg.Tracing)
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Fatal("database init failed", zap.Error(err))
	}
	if err := db.AutoMigrate(model.All()...); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	postRepo := repository.NewPostRepository(db)
	trackRepo := repository.NewTrackRepository(db)
	reactionRepo := repository.NewReactionRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	catalog := service.NewCatalog(postRepo, trackRepo)

	// Redis 可选：未配置时排行榜直接读数据库
	var (
		rdb       redis.UniversalClient
		board     *ranking.Board
		boardSync *service.BoardSync
		stopSync  = func(context.Context) error { return nil }
	)
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		board = ranking.NewBoard(rdb, cfg.Redis.TTL)
		boardSync = service.NewBoardSync(board, catalog, cfg.Board.QueueSize)
		stopSync = boardSync.Start(cfg.Board.Workers)
		boardSync.EnqueueRebuild(vibe.KindPost)
		boardSync.EnqueueRebuild(vibe.KindTrack)
	} else {
		logger.Info("redis not configured, ranking served from database")
	}

	clock := clockwork.NewRealClock()
	engine := vibe.NewEngine(repository.NewReactionStore(db),
		vibe.WithClock(clock),
		vibe.WithMaxAttempts(cfg.Engine.MaxAttempts),
		vibe.WithConflictObserver(func(ref vibe.EntityRef, attempt int) {
			metrics.CASConflictsTotal.WithLabelValues(string(ref.Kind)).Inc()
		}),
	)

	postService := service.NewPostService(postRepo, trackRepo, board, boardSync, clock)
	trackService := service.NewTrackService(trackRepo, board, boardSync, clock)
	reactionService := service.NewReactionService(engine, catalog, reactionRepo, boardSync)

	pub, err := events.NewPublisher(cfg.Events, logger.L())
	if err != nil {
		logger.Fatal("event publisher init failed", zap.Error(err))
	}
	relay := service.NewRelay(outboxRepo, pub, clock,
		cfg.Relay.Workers, cfg.Relay.Batch, cfg.Relay.MaxAttempts, cfg.Relay.PollInterval)
	stopRelay := relay.Start()

	gin.SetMode(cfg.Server.Mode)
	router := api.NewRouter(
		handler.New(postService, trackService, reactionService),
		handler.NewHealthHandler(db, rdb),
		api.RouterOptions{
			ServiceName: cfg.Tracing.ServiceName,
			JWTSecret:   []byte(cfg.Auth.JWTSecret),
			JWTIssuer:   cfg.Auth.Issuer,
			Limiter:     middleware.NewLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
			Swagger:     cfg.Server.Mode != gin.ReleaseMode,
		},
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           http.TimeoutHandler(router, cfg.Server.RequestTimeout, `{"code":503,"message":"request timeout"}`),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if err := stopRelay(ctx); err != nil {
		logger.Warn("relay stop", zap.Error(err))
	}
	if err := stopSync(ctx); err != nil {
		logger.Warn("board sync stop", zap.Error(err))
	}
	if err := pub.Close(); err != nil {
		logger.Warn("event publisher close", zap.Error(err))
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}
