// Package main 医学知识库装载工具入口
// 从 JSON 种子文件导入实体与关系，并向量化写入向量库
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"medkb-qa-api/internal/application/loader"
	"medkb-qa-api/internal/config"
	"medkb-qa-api/internal/infrastructure/embedding"
	"medkb-qa-api/internal/infrastructure/persistence/milvus"
	"medkb-qa-api/internal/infrastructure/persistence/postgres"
	"medkb-qa-api/internal/infrastructure/persistence/redis"
	"medkb-qa-api/pkg/logger"

	"github.com/joho/godotenv"
)

func main() {
	seedPath := flag.String("seed", "configs/seed.json", "path to knowledge base seed file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx := context.Background()

	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatal(ctx, "failed to connect postgres", err)
	}
	defer pgClient.Close()

	milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		logger.Fatal(ctx, "failed to connect milvus", err)
	}
	defer milvusClient.Close()

	// Redis（可选，导入成功后清空问答缓存）
	var answerCache loader.AnswerCache
	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Warn(ctx, "redis unavailable, stale answers persist until ttl expiry", "error", err)
	} else {
		defer redisClient.Close()
		answerCache = redis.NewCache(redisClient)
	}

	entityRepo := postgres.NewEntityRepository(pgClient)
	relationRepo := postgres.NewRelationRepository(pgClient)
	txManager := postgres.NewTxManager(pgClient)
	vectorRepo := milvus.NewRepository(milvusClient, cfg.Embedding.Dimension)
	embedClient := embedding.NewClient(&cfg.Embedding)

	l := loader.NewLoader(entityRepo, relationRepo, txManager, embedClient, vectorRepo, answerCache)
	if err := l.LoadFile(ctx, *seedPath); err != nil {
		logger.Fatal(ctx, "failed to load knowledge base", err, "seed", *seedPath)
	}

	logger.Info(ctx, "knowledge base load completed", "seed", *seedPath)
}
