// Package main runs the assembly governance HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/civic-assembly/backend/config"
	"github.com/civic-assembly/backend/internal/audit"
	"github.com/civic-assembly/backend/internal/auth"
	"github.com/civic-assembly/backend/internal/governance"
	"github.com/civic-assembly/backend/internal/meetings"
	"github.com/civic-assembly/backend/internal/metrics"
	"github.com/civic-assembly/backend/internal/middleware"
	"github.com/civic-assembly/backend/internal/models"
	"github.com/civic-assembly/backend/internal/organizations"
	"github.com/civic-assembly/backend/internal/protocols"
	"github.com/civic-assembly/backend/internal/votes"
	"github.com/civic-assembly/backend/pkg/database"
	"github.com/civic-assembly/backend/pkg/queue"
	"github.com/civic-assembly/backend/pkg/redis"
	"github.com/civic-assembly/backend/pkg/response"
	"github.com/civic-assembly/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.PoolOptions(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Options(), logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		Bucket:               cfg.AWS.ProtocolsBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	// Audit
	auditRepo := audit.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	var sink audit.Sink
	switch cfg.Governance.AuditSink {
	case config.AuditSinkDatabase:
		sink = audit.NewRepositorySink(auditRepo)
	case config.AuditSinkLog:
		sink = audit.NewLogSink(logger)
	default:
		sink = audit.NewQueueSink(jobQueue)
	}
	promMetrics := metrics.New()
	emitter := audit.NewEmitter(sink, cfg.Governance.AuditBufferSize, logger, audit.WithDropHook(promMetrics.AuditDropped))
	events := promMetrics.CountEvents(emitter)

	// Governance engine
	g := cfg.Governance
	defaultQuorum := governance.QuorumPolicy{Numerator: g.QuorumNumerator, Denominator: g.QuorumDenominator, Rounding: g.QuorumRounding}
	orgRepo := organizations.NewRepository(pool, defaultQuorum)
	meetingRepo := meetings.NewRepository(pool)
	voteRepo := votes.NewRepository(pool)
	engine := governance.NewEngine(governance.Deps{
		Meetings:   meetingRepo,
		Votes:      voteRepo,
		Members:    orgRepo,
		Policy:     orgRepo,
		Attendance: meetingRepo,
		Protocols:  protocols.NewSource(s3Client),
		Quorum:     orgRepo,
		Mode:       governance.StaticMode(g.GAMode),
		Audit:      events,
	}, logger)
	logger.Info("governance engine ready", zap.String("ga_mode", string(g.GAMode)), zap.String("audit_sink", g.AuditSink))

	// Auth
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL())
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	quorumCache := meetings.NewRedisQuorumCache(rdb.Client, g.QuorumCacheTTL, logger)

	// Organizations and memberships
	orgService := organizations.NewService(orgRepo, events, logger,
		organizations.WithConsentWindow(g.ConsentWindow()),
		organizations.WithQuorumInvalidator(quorumCache))
	orgHandler := organizations.NewHandler(orgService)

	// Meetings, votes, protocols
	meetingService := meetings.NewService(meetingRepo, orgService, engine, quorumCache, events, logger)
	voteService := votes.NewService(voteRepo, meetingRepo, orgRepo, orgService, engine, quorumCache, votes.Config{EarlyVotingDays: g.EarlyVotingDays}, logger)
	protocolService := protocols.NewService(s3Client, meetingRepo, orgService, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics(promMetrics))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promMetrics.Handler()))

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/users", middleware.RequireRole(models.RoleAdmin), authHandler.List)

		orgHandler.Register(api)
		meetings.NewHandler(meetingService).Register(api)
		votes.NewHandler(voteService).Register(api)
		protocols.NewHandler(protocolService).Register(api)
		audit.NewHandler(auditRepo, orgService).Register(api)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if err := emitter.Close(shutdownCtx); err != nil {
		logger.Warn("audit events not drained", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
