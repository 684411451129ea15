package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qs3c/grade_go_server/config"
	"github.com/qs3c/grade_go_server/internal/database"
	"github.com/qs3c/grade_go_server/internal/pkg/extract"
	"github.com/qs3c/grade_go_server/internal/pkg/lease"
	"github.com/qs3c/grade_go_server/internal/pkg/limiter"
	"github.com/qs3c/grade_go_server/internal/pkg/pubsub"
	"github.com/qs3c/grade_go_server/internal/pkg/queue"
	"github.com/qs3c/grade_go_server/internal/provider"
	"github.com/qs3c/grade_go_server/internal/repository"
	"github.com/qs3c/grade_go_server/internal/worker"
)

// 意外失败的任务延迟重投一次的间隔
const requeueDelay = 30 * time.Second

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

	// 初始化 Queue、供应商注册表与限流注册表
	jobQueue := queue.NewQueue(rdb, cfg.Queue.GradingQueue)
	providers := provider.NewRegistry(cfg.Providers)
	limiters := limiter.NewRegistry(cfg.Limiter, providers.Class, rdb)
	leases := lease.NewManager(rdb, time.Duration(cfg.Queue.LeaseSeconds)*time.Second)
	publisher := pubsub.NewPublisher(rdb)

	// 初始化 Repository
	jobRepo := repository.NewJobRepository(db)
	subRepo := repository.NewSubmissionRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	resultRepo := repository.NewGradeResultRepository(db)

	// 创建任务处理器
	subProcessor := worker.NewSubmissionProcessor(subRepo, resultRepo, providers, limiters, extract.New(), cfg)
	jobProcessor := worker.NewJobProcessor(jobRepo, subRepo, batchRepo, subProcessor, publisher, leases)

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal")
		cancel()
	}()

	// 延迟任务搬运：到期的错峰任务进入就绪队列
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := jobQueue.MoveDue(ctx, time.Now(), 100); err != nil && ctx.Err() == nil {
					log.Printf("Failed to move due tasks: %v", err)
				}
			}
		}
	}()

	maxWorkers := cfg.Queue.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	log.Printf("Worker started, max workers: %d", maxWorkers)

	// 启动 worker 循环
	for i := 0; i < maxWorkers; i++ {
		go func(workerID int) {
			for {
				select {
				case <-ctx.Done():
					log.Printf("Worker %d shutting down", workerID)
					return
				default:
					msg, err := jobQueue.Pop(ctx, 5*time.Second)
					if err != nil {
						if ctx.Err() != nil {
							return
						}
						log.Printf("Worker %d: failed to pop task: %v", workerID, err)
						continue
					}

					if msg == nil {
						continue // 超时，继续等待
					}

					if msg.Task != queue.TaskProcessJob {
						log.Printf("Worker %d: unknown task %q, dropped", workerID, msg.Task)
						continue
					}

					log.Printf("Worker %d: processing job %d", workerID, msg.JobID)
					if err := jobProcessor.Process(ctx, msg.JobID); err != nil {
						if errors.Is(err, worker.ErrJobNotFound) {
							// 致命错误，不重投
							log.Printf("Worker %d: %v", workerID, err)
							continue
						}
						log.Printf("Worker %d: job %d failed: %v, requeueing", workerID, msg.JobID, err)
						requeue := &queue.TaskMessage{Task: queue.TaskProcessJob, JobID: msg.JobID}
						if err := jobQueue.Enqueue(ctx, requeue, requeueDelay); err != nil {
							log.Printf("Worker %d: failed to requeue job %d: %v", workerID, msg.JobID, err)
						}
					}
				}
			}
		}(i)
	}

	// 等待 context 取消
	<-ctx.Done()
	log.Println("Worker shutdown complete")
}
