package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/qs3c/grade_go_server/config"
	"github.com/qs3c/grade_go_server/internal/database"
	"github.com/qs3c/grade_go_server/internal/repository"
)

var (
	dryRun       = flag.Bool("dry-run", true, "Dry run mode, don't actually modify anything")
	stuckMinutes = flag.Int("stuck-minutes", 60, "Minutes a submission may sit in processing before reset")
	uploadExpire = flag.Int("upload-expire", 0, "Hours to keep orphaned upload files, 0 to use config")
	resetStuck   = flag.Bool("reset-stuck", true, "Reset submissions stuck in processing back to pending")
	cleanUploads = flag.Bool("clean-uploads", true, "Clean expired upload files")
)

// 运维清扫：worker 崩溃会把提交留在 processing，核心流程不自动恢复，
// 由这里定期重置回 pending；同时清理过期的孤儿上传文件。
func main() {
	flag.Parse()

	log.Println("Starting cleanup task...")
	log.Printf("Mode: dry-run=%v", *dryRun)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// 1. 重置卡死的提交
	if *resetStuck {
		cutoff := time.Now().Add(-time.Duration(*stuckMinutes) * time.Minute)
		if *dryRun {
			log.Printf("[dry-run] would reset submissions stuck in processing since before %v", cutoff)
		} else {
			subRepo := repository.NewSubmissionRepository(db)
			count, err := subRepo.ResetStuckProcessing(cutoff)
			if err != nil {
				log.Fatalf("Failed to reset stuck submissions: %v", err)
			}
			log.Printf("Reset %d stuck submissions back to pending", count)
		}
	}

	// 2. 清理过期上传文件
	if *cleanUploads {
		expireHours := *uploadExpire
		if expireHours <= 0 {
			expireHours = cfg.Upload.ExpireHours
		}
		if expireHours <= 0 {
			expireHours = 72
		}
		size, count := cleanExpiredUploads(cfg.Upload.TempDir, expireHours, *dryRun)
		log.Printf("Removed %d expired upload files (%d bytes)", count, size)
	}

	log.Println("Cleanup complete")
}

// cleanExpiredUploads 删除超过保留期的上传文件。
// 成功的提交会主动删文件，残留的是失败后始终未被重试的孤儿。
func cleanExpiredUploads(dir string, expireHours int, dryRun bool) (int64, int) {
	cutoff := time.Now().Add(-time.Duration(expireHours) * time.Hour)
	var totalSize int64
	var totalCount int

	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if dryRun {
			log.Printf("[dry-run] would remove %s (%d bytes)", path, info.Size())
			return nil
		}
		if err := os.Remove(path); err != nil {
			log.Printf("Failed to remove %s: %v", path, err)
			return nil
		}
		totalSize += info.Size()
		totalCount++
		return nil
	})

	return totalSize, totalCount
}
