package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"recruitoj/internal/common/cache"
	"recruitoj/internal/common/db"
	commonmw "recruitoj/internal/common/http/middleware"
	"recruitoj/internal/common/mq"
	"recruitoj/internal/common/storage"
	"recruitoj/internal/contest/controller"
	"recruitoj/internal/contest/event"
	"recruitoj/internal/contest/judge0"
	"recruitoj/internal/contest/repository"
	"recruitoj/internal/contest/service"
	"recruitoj/internal/contest/testcase"
	pkgerrors "recruitoj/pkg/errors"
	"recruitoj/pkg/utils/logger"
	"recruitoj/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultConfigPath = "configs/contest_service.yaml"
	defaultEnvPath    = ".env"
	readinessTimeout  = 2 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	envPath := flag.String("env", defaultEnvPath, "Path to optional .env file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath, *envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	database, err := db.Open(appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = database.Close()
	}()
	dbProvider := db.NewManager(database)

	redisCache, err := cache.NewRedisCache(appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	var objStorage storage.ObjectStorage
	if appCfg.MinIO.Endpoint != "" {
		minioStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			logger.Error(context.Background(), "init minio failed", zap.Error(err))
			return
		}
		objStorage = minioStorage
	}

	var (
		events   service.EventPublisher
		producer *mq.KafkaProducer
	)
	if len(appCfg.Kafka.Brokers) > 0 && appCfg.Events.Topic != "" {
		producer, err = mq.NewKafkaProducer(appCfg.Kafka)
		if err != nil {
			logger.Error(context.Background(), "init kafka failed", zap.Error(err))
			return
		}
		defer func() {
			_ = producer.Close()
		}()
		publisher, err := event.NewPublisher(producer, appCfg.Events.Topic)
		if err != nil {
			logger.Error(context.Background(), "init event publisher failed", zap.Error(err))
			return
		}
		events = publisher
	}

	judgeClient, err := judge0.NewClient(appCfg.Judge0)
	if err != nil {
		logger.Error(context.Background(), "init judge0 client failed", zap.Error(err))
		return
	}

	testCases, err := buildTestCaseProvider(appCfg.TestCases, objStorage, redisCache)
	if err != nil {
		logger.Error(context.Background(), "init test case provider failed", zap.Error(err))
		return
	}

	submissionRepo := repository.NewSubmissionRepositoryWithTTL(dbProvider, redisCache, appCfg.Contest.SubmissionCacheTTL, appCfg.Contest.SubmissionEmptyTTL)

	sourceBucket := appCfg.Contest.SourceBucket
	if objStorage == nil {
		sourceBucket = ""
	}
	contestService, err := service.NewContestService(service.Config{
		SubmissionRepo:  submissionRepo,
		TestCases:       testCases,
		Judge:           judgeClient,
		Cache:           redisCache,
		Storage:         objStorage,
		Events:          events,
		Cohorts:         appCfg.Contest.Cohorts,
		Languages:       appCfg.Contest.Languages,
		SourceBucket:    sourceBucket,
		SourceKeyPrefix: appCfg.Contest.SourceKeyPrefix,
		MaxCodeBytes:    appCfg.Contest.MaxCodeBytes,
		RateLimit:       appCfg.Contest.RateLimit,
		Poll:            appCfg.Contest.Poll,
		Timeouts:        appCfg.Contest.Timeouts,
	})
	if err != nil {
		logger.Error(context.Background(), "init contest service failed", zap.Error(err))
		return
	}

	checks := map[string]pinger{
		"database": database,
		"redis":    redisCache,
	}
	if producer != nil {
		checks["kafka"] = producer
	}
	httpServer := buildHTTPServer(appCfg.Server, appCfg.Auth, redisCache, checks, contestService)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "contest http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.String("testcase_source", appCfg.TestCases.Source),
			zap.Bool("events", events != nil),
		)
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
}

func buildTestCaseProvider(cfg TestCaseConfig, objStorage storage.ObjectStorage, cacheClient cache.Cache) (testcase.Provider, error) {
	var base testcase.Provider
	switch cfg.Source {
	case testCaseSourceObject, testCaseSourcePack:
		if objStorage == nil {
			return nil, fmt.Errorf("object storage is required for %s test cases", cfg.Source)
		}
		if cfg.Source == testCaseSourcePack {
			base = testcase.NewPackProvider(objStorage, cfg.Bucket, cfg.Prefix)
		} else {
			base = testcase.NewObjectProvider(objStorage, cfg.Bucket, cfg.Prefix)
		}
	default:
		base = testcase.NewDirProvider(cfg.Dir)
	}
	return testcase.NewCachedProvider(base, cacheClient, cfg.CacheTTL), nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

func buildHTTPServer(cfg ServerConfig, auth commonmw.AuthConfig, counter commonmw.Counter, checks map[string]pinger, contestService controller.ContestService) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.CORSMiddleware(cfg.CORS))
	router.Use(requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	router.GET("/readyz", readiness(checks))

	api := router.Group("/api/v1/contest")
	api.Use(commonmw.IPRateLimit(counter, cfg.IPRateLimit))
	api.Use(commonmw.JWTAuth(auth))
	controller.NewContestController(contestService).Register(api)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// readiness pings every dependency and names the ones that failed. Ping
// errors are logged, never returned.
func readiness(checks map[string]pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()

		failed := make([]string, 0, len(checks))
		for name, check := range checks {
			if err := check.Ping(ctx); err != nil {
				logger.Warn(c.Request.Context(), "readiness check failed", zap.String("dependency", name), zap.Error(err))
				failed = append(failed, name)
			}
		}
		if len(failed) > 0 {
			sort.Strings(failed)
			response.Error(c, pkgerrors.New(pkgerrors.ServiceUnavailable).WithDetail("failed", failed))
			return
		}
		response.Success(c, gin.H{"status": "ready"})
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
