package main

import (
	"fmt"
	"log"
	"os"

	"github.com/qs3c/grade_go_server/config"
	"github.com/qs3c/grade_go_server/internal/api"
	"github.com/qs3c/grade_go_server/internal/api/handler"
	"github.com/qs3c/grade_go_server/internal/database"
	"github.com/qs3c/grade_go_server/internal/pkg/queue"
	"github.com/qs3c/grade_go_server/internal/provider"
	"github.com/qs3c/grade_go_server/internal/repository"
	"github.com/qs3c/grade_go_server/internal/service"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// 上传目录
	if err := os.MkdirAll(cfg.Upload.TempDir, 0755); err != nil {
		log.Fatalf("Failed to create upload dir: %v", err)
	}

	// 初始化 Queue 与供应商注册表
	jobQueue := queue.NewQueue(rdb, cfg.Queue.GradingQueue)
	providers := provider.NewRegistry(cfg.Providers)

	// 初始化 Repository
	jobRepo := repository.NewJobRepository(db)
	subRepo := repository.NewSubmissionRepository(db)
	batchRepo := repository.NewBatchRepository(db)

	// 初始化 Service
	jobService := service.NewJobService(jobRepo, subRepo, providers, jobQueue, cfg)
	retryService := service.NewRetryService(subRepo, jobRepo, jobQueue)
	batchService := service.NewBatchService(batchRepo, jobRepo, subRepo, jobQueue, cfg)

	// 初始化 Handler 与路由
	jobHandler := handler.NewJobHandler(jobService, retryService, cfg)
	submissionHandler := handler.NewSubmissionHandler(subRepo, retryService)
	batchHandler := handler.NewBatchHandler(batchService)

	router := api.NewRouter(jobHandler, submissionHandler, batchHandler, cfg)
	engine := router.Setup()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server listening on %s", addr)
	if err := engine.Run(addr); err != nil {
		log.Fatalf("Server exited: %v", err)
	}
}
