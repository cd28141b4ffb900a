// Package main 医学知识问答 API 服务入口
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medkb-qa-api/internal/application/pipeline"
	"medkb-qa-api/internal/config"
	"medkb-qa-api/internal/infrastructure/embedding"
	"medkb-qa-api/internal/infrastructure/persistence/milvus"
	"medkb-qa-api/internal/infrastructure/persistence/postgres"
	"medkb-qa-api/internal/infrastructure/persistence/redis"
	"medkb-qa-api/internal/interfaces/http/handler"
	"medkb-qa-api/internal/interfaces/http/router"
	"medkb-qa-api/pkg/logger"
	"medkb-qa-api/pkg/tracer"

	"github.com/joho/godotenv"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx := context.Background()
	log := logger.FromContext(ctx)
	log.Info("starting api-gateway",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	// 初始化追踪
	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// PostgreSQL（必需，实体与关系图谱）
	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatal(ctx, "failed to connect postgres", err)
	}
	defer pgClient.Close()

	// Redis（必需，回答缓存与限流）
	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Fatal(ctx, "failed to connect redis", err)
	}
	defer redisClient.Close()

	// Milvus（可选，不可用时语义检索降级为图谱检索）
	var milvusClient *milvus.Client
	var vectorStore pipeline.VectorStore
	milvusClient, err = milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		log.Warn("milvus unavailable, semantic search disabled", "error", err)
		milvusClient = nil
	} else {
		defer milvusClient.Close()
		vectorRepo := milvus.NewRepository(milvusClient, cfg.Embedding.Dimension)
		vectorStore = milvus.NewVectorStore(vectorRepo)
	}

	// 仓储与图谱存储
	entityRepo := postgres.NewEntityRepository(pgClient)
	relationRepo := postgres.NewRelationRepository(pgClient)
	feedbackRepo := postgres.NewFeedbackRepository(pgClient)
	graphStore := postgres.NewGraphStore(pgClient, entityRepo, relationRepo)

	// Embedding 客户端
	embedClient := embedding.NewClient(&cfg.Embedding)

	// 问答管道
	analyzer := pipeline.NewLexicalAnalyzer()
	interpreter := pipeline.NewInterpreter(analyzer, nil)
	decomposer := pipeline.NewDecomposer(interpreter)
	agent := pipeline.NewAgent(graphStore, vectorStore, embedClient, analyzer, pipeline.RetrievalOptions{
		TopK:              cfg.Retrieval.TopK,
		ScoreFloor:        cfg.Retrieval.ScoreFloor,
		FusedTopN:         cfg.Retrieval.FusedTopN,
		GraphDefaultScore: cfg.Retrieval.GraphDefaultScore,
		CallTimeout:       cfg.Retrieval.CallTimeout,
	})
	renderer := pipeline.NewRenderer(cfg.Retrieval.DisclaimerBelow)
	orchestrator := pipeline.NewOrchestrator(interpreter, decomposer, agent, renderer, pipeline.Options{
		MinConfidence: cfg.Retrieval.MinConfidence,
		MaxConcurrent: cfg.Retrieval.MaxConcurrentSubQuestions,
	})

	// HTTP 层
	answerCache := redis.NewCache(redisClient)
	rateLimiter := redis.NewRateLimiter(redisClient)
	handlers := router.Handlers{
		Health:   handler.NewHealthHandler(pgClient, redisClient, milvusClient),
		QA:       handler.NewQAHandler(orchestrator, answerCache, cfg.Cache.AnswerTTL),
		Feedback: handler.NewFeedbackHandler(feedbackRepo),
	}
	r := router.New(cfg, handlers, rateLimiter)

	// 创建 HTTP 服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	// 启动服务器
	go func() {
		log.Info("http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}
