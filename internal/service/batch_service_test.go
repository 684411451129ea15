package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/grade_go_server/config"
	"github.com/qs3c/grade_go_server/internal/model"
	"github.com/qs3c/grade_go_server/internal/model/dto"
	"github.com/qs3c/grade_go_server/internal/pkg/queue"
	"github.com/qs3c/grade_go_server/internal/repository"
	"github.com/qs3c/grade_go_server/internal/testutil"
)

const testQueueName = "test_grading_queue"

type batchEnv struct {
	db        *gorm.DB
	rdb       *redis.Client
	batchRepo *repository.BatchRepository
	jobRepo   *repository.JobRepository
	subRepo   *repository.SubmissionRepository
	q         *queue.Queue
	svc       *BatchService
}

func setupBatchService(t *testing.T) (*batchEnv, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	env := &batchEnv{
		db:        db,
		rdb:       rdb,
		batchRepo: repository.NewBatchRepository(db),
		jobRepo:   repository.NewJobRepository(db),
		subRepo:   repository.NewSubmissionRepository(db),
		q:         queue.NewQueue(rdb, testQueueName),
	}
	env.svc = NewBatchService(env.batchRepo, env.jobRepo, env.subRepo, env.q, &config.Config{
		Queue: config.QueueConfig{GradingQueue: testQueueName, StaggerSeconds: 10},
	})

	cleanup := func() {
		rdb.Close()
		testutil.CleanupTestDB(t, db)
	}
	return env, cleanup
}

// delayedJobIDs 按延迟时刻升序返回延迟集合里的任务 ID 及分值
func delayedJobIDs(t *testing.T, env *batchEnv) ([]int64, []float64) {
	t.Helper()
	members, err := env.rdb.ZRangeByScoreWithScores(context.Background(), testQueueName+":delayed", &redis.ZRangeBy{
		Min: "-inf", Max: "+inf",
	}).Result()
	require.NoError(t, err)

	var ids []int64
	var scores []float64
	for _, m := range members {
		var msg queue.TaskMessage
		require.NoError(t, json.Unmarshal([]byte(m.Member.(string)), &msg))
		ids = append(ids, msg.JobID)
		scores = append(scores, m.Score)
	}
	return ids, scores
}

func readyJobIDs(t *testing.T, env *batchEnv) []int64 {
	t.Helper()
	raw, err := env.rdb.LRange(context.Background(), testQueueName, 0, -1).Result()
	require.NoError(t, err)

	var ids []int64
	for _, r := range raw {
		var msg queue.TaskMessage
		require.NoError(t, json.Unmarshal([]byte(r), &msg))
		ids = append(ids, msg.JobID)
	}
	return ids
}

func TestBatchService_Create(t *testing.T) {
	env, cleanup := setupBatchService(t)
	defer cleanup()

	batch, err := env.svc.Create(&dto.CreateBatchRequest{
		Name:     "期末作文批改",
		Provider: "openai",
		Priority: 5,
	})
	require.NoError(t, err)
	assert.NotZero(t, batch.ID)
	assert.Equal(t, model.StatusPending, batch.Status)

	found, err := env.svc.Get(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, "期末作文批改", found.Name)
}

func TestBatchService_Start_StaggersByPriority(t *testing.T) {
	env, cleanup := setupBatchService(t)
	defer cleanup()

	ctx := context.Background()
	batch := testutil.TestBatch(t, env.db)

	// 创建顺序 [3, 7, 7, 1]，期待调度顺序 [7a, 7b, 3, 1]
	j3 := testutil.TestJob(t, env.db, testutil.WithJobBatch(batch.ID), testutil.WithJobPriority(3))
	j7a := testutil.TestJob(t, env.db, testutil.WithJobBatch(batch.ID), testutil.WithJobPriority(7))
	j7b := testutil.TestJob(t, env.db, testutil.WithJobBatch(batch.ID), testutil.WithJobPriority(7))
	j1 := testutil.TestJob(t, env.db, testutil.WithJobBatch(batch.ID), testutil.WithJobPriority(1))

	require.NoError(t, env.svc.Start(ctx, batch.ID))

	// 首个任务零延迟直接进就绪队列
	assert.Equal(t, []int64{j7a.ID}, readyJobIDs(t, env))

	// 其余任务按优先级降序进延迟集合，同优先级保持创建序，延迟严格递增
	ids, scores := delayedJobIDs(t, env)
	assert.Equal(t, []int64{j7b.ID, j3.ID, j1.ID}, ids)
	require.Len(t, scores, 3)
	assert.Less(t, scores[0], scores[1])
	assert.Less(t, scores[1], scores[2])

	found, err := env.batchRepo.GetByID(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, found.Status)
	assert.NotNil(t, found.StartedAt)
	assert.Equal(t, 4, found.TotalJobs)
}

func TestBatchService_Start_EmptyBatch(t *testing.T) {
	env, cleanup := setupBatchService(t)
	defer cleanup()

	ctx := context.Background()
	batch := testutil.TestBatch(t, env.db)

	err := env.svc.Start(ctx, batch.ID)
	assert.ErrorIs(t, err, ErrBatchEmpty)

	// 拒绝启动后批次停在 pending，不会卡死在 processing
	found, err := env.batchRepo.GetByID(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, found.Status)
	assert.Nil(t, found.StartedAt)
	assert.Empty(t, readyJobIDs(t, env))
}

func TestBatchService_Start_InvalidState(t *testing.T) {
	env, cleanup := setupBatchService(t)
	defer cleanup()

	ctx := context.Background()

	for _, status := range []string{model.StatusProcessing, model.StatusCompleted, model.StatusCancelled, model.StatusArchived} {
		t.Run(status, func(t *testing.T) {
			batch := testutil.TestBatch(t, env.db, testutil.WithBatchStatus(status))
			err := env.svc.Start(ctx, batch.ID)
			assert.ErrorIs(t, err, ErrBatchNotStartable)
		})
	}
}

func TestBatchService_Start_FromFailed(t *testing.T) {
	env, cleanup := setupBatchService(t)
	defer cleanup()

	ctx := context.Background()
	batch := testutil.TestBatch(t, env.db, testutil.WithBatchStatus(model.StatusFailed))
	testutil.TestJob(t, env.db, testutil.WithJobBatch(batch.ID))

	require.NoError(t, env.svc.Start(ctx, batch.ID))

	found, err := env.batchRepo.GetByID(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, found.Status)
	assert.Len(t, readyJobIDs(t, env), 1)
}

func TestBatchService_PauseResume(t *testing.T) {
	env, cleanup := setupBatchService(t)
	defer cleanup()

	ctx := context.Background()
	batch := testutil.TestBatch(t, env.db, testutil.WithBatchStatus(model.StatusProcessing))
	job := testutil.TestJob(t, env.db, testutil.WithJobBatch(batch.ID))

	require.NoError(t, env.svc.Pause(ctx, batch.ID))
	found, err := env.batchRepo.GetByID(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaused, found.Status)

	// 暂停态不允许再次暂停
	assert.ErrorIs(t, env.svc.Pause(ctx, batch.ID), ErrBatchNotPausable)

	// 恢复后 pending 任务重新入队
	require.NoError(t, env.svc.Resume(ctx, batch.ID))
	found, err = env.batchRepo.GetByID(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, found.Status)
	assert.Equal(t, []int64{job.ID}, readyJobIDs(t, env))

	// 处理中不允许恢复
	assert.ErrorIs(t, env.svc.Resume(ctx, batch.ID), ErrBatchNotResumable)
}

func TestBatchService_Cancel(t *testing.T) {
	env, cleanup := setupBatchService(t)
	defer cleanup()

	ctx := context.Background()

	for _, status := range []string{model.StatusPending, model.StatusProcessing, model.StatusPaused} {
		t.Run(status, func(t *testing.T) {
			batch := testutil.TestBatch(t, env.db, testutil.WithBatchStatus(status))
			require.NoError(t, env.svc.Cancel(ctx, batch.ID))

			found, err := env.batchRepo.GetByID(batch.ID)
			require.NoError(t, err)
			assert.Equal(t, model.StatusCancelled, found.Status)
		})
	}

	t.Run("completed", func(t *testing.T) {
		batch := testutil.TestBatch(t, env.db, testutil.WithBatchStatus(model.StatusCompleted))
		assert.ErrorIs(t, env.svc.Cancel(ctx, batch.ID), ErrBatchNotCancellable)
	})
}

func TestBatchService_Archive(t *testing.T) {
	env, cleanup := setupBatchService(t)
	defer cleanup()

	ctx := context.Background()

	batch := testutil.TestBatch(t, env.db, testutil.WithBatchStatus(model.StatusCompleted))
	require.NoError(t, env.svc.Archive(ctx, batch.ID))

	found, err := env.batchRepo.GetByID(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusArchived, found.Status)

	// 只有完成态可归档
	pending := testutil.TestBatch(t, env.db)
	assert.ErrorIs(t, env.svc.Archive(ctx, pending.ID), ErrBatchNotArchivable)
}

func TestBatchService_AssignRemoveJob(t *testing.T) {
	env, cleanup := setupBatchService(t)
	defer cleanup()

	ctx := context.Background()
	batch := testutil.TestBatch(t, env.db)
	job := testutil.TestJob(t, env.db)

	require.NoError(t, env.svc.AssignJob(ctx, batch.ID, job.ID))
	found, err := env.jobRepo.GetByID(job.ID)
	require.NoError(t, err)
	require.NotNil(t, found.BatchID)
	assert.Equal(t, batch.ID, *found.BatchID)

	b, err := env.batchRepo.GetByID(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, b.TotalJobs)

	require.NoError(t, env.svc.RemoveJob(ctx, batch.ID, job.ID))
	found, err = env.jobRepo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Nil(t, found.BatchID)

	// 批次启动后不允许调整成员
	started := testutil.TestBatch(t, env.db, testutil.WithBatchStatus(model.StatusProcessing))
	assert.ErrorIs(t, env.svc.AssignJob(ctx, started.ID, job.ID), ErrBatchNotEditable)
	assert.ErrorIs(t, env.svc.RemoveJob(ctx, started.ID, job.ID), ErrBatchNotEditable)
}

func TestBatchService_RetryFailedJobs(t *testing.T) {
	env, cleanup := setupBatchService(t)
	defer cleanup()

	ctx := context.Background()
	batch := testutil.TestBatch(t, env.db, testutil.WithBatchStatus(model.StatusFailed))
	failed := testutil.TestJob(t, env.db, testutil.WithJobBatch(batch.ID), testutil.WithJobStatus(model.StatusFailed))
	completed := testutil.TestJob(t, env.db, testutil.WithJobBatch(batch.ID), testutil.WithJobStatus(model.StatusCompleted))
	sub := testutil.TestSubmission(t, env.db, failed.ID,
		testutil.WithSubmissionStatus(model.StatusFailed))

	count, err := env.svc.RetryFailedJobs(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// 失败任务和失败提交都被重置
	foundJob, err := env.jobRepo.GetByID(failed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, foundJob.Status)
	assert.Nil(t, foundJob.CompletedAt)

	foundSub, err := env.subRepo.GetByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, foundSub.Status)
	assert.Empty(t, foundSub.ErrorMessage)

	// 已完成任务不受影响
	foundDone, err := env.jobRepo.GetByID(completed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, foundDone.Status)

	foundBatch, err := env.batchRepo.GetByID(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, foundBatch.Status)

	// 只有失败任务被重新入队
	assert.Equal(t, []int64{failed.ID}, readyJobIDs(t, env))
}

func TestBatchService_RetryFailedJobs_NoneFailed(t *testing.T) {
	env, cleanup := setupBatchService(t)
	defer cleanup()

	ctx := context.Background()
	batch := testutil.TestBatch(t, env.db, testutil.WithBatchStatus(model.StatusCompleted))
	testutil.TestJob(t, env.db, testutil.WithJobBatch(batch.ID), testutil.WithJobStatus(model.StatusCompleted))

	count, err := env.svc.RetryFailedJobs(ctx, batch.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	// 没有失败任务时批次状态不变，也不入队
	found, err := env.batchRepo.GetByID(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, found.Status)
	assert.Empty(t, readyJobIDs(t, env))
}

func TestBatchService_GetProgress(t *testing.T) {
	env, cleanup := setupBatchService(t)
	defer cleanup()

	ctx := context.Background()
	batch := testutil.TestBatch(t, env.db, testutil.WithBatchStatus(model.StatusProcessing))

	progress, err := env.svc.GetProgress(ctx, batch.ID)
	require.NoError(t, err)
	assert.Zero(t, progress)

	testutil.TestJob(t, env.db, testutil.WithJobBatch(batch.ID), testutil.WithJobStatus(model.StatusCompleted))
	testutil.TestJob(t, env.db, testutil.WithJobBatch(batch.ID), testutil.WithJobStatus(model.StatusFailed))
	testutil.TestJob(t, env.db, testutil.WithJobBatch(batch.ID), testutil.WithJobStatus(model.StatusProcessing))
	testutil.TestJob(t, env.db, testutil.WithJobBatch(batch.ID))

	progress, err = env.svc.GetProgress(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, progress)
}
